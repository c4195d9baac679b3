// Package protocol implements a single-shot masked threshold proximity
// test over a database of binary fingerprints.
//
// # Roles and Workflow
//
// Three parties participate:
//
//  1. Dealer (trusted third party): holds the fingerprint database and,
//     once per epoch, derives setup material from a secret seed: a nonzero
//     gamma per database item and an additive mask per fingerprint chunk.
//     The material is distributed to enrolled clients and verifiers.
//
//  2. Client: splits a query fingerprint into chunks and computes, for
//     each chunk, a gamma-weighted evaluation of a vanishing polynomial in
//     the chunk's Hamming distance to every database item. The per-chunk
//     values are masked and summed into a single field element, committed
//     to, and bound into a transcript.
//
//  3. Verifier: recomputes the submission from the attached witness,
//     rejects on any inconsistency, then strips the aggregate mask. A
//     nonzero residue means some chunk of the query was within the match
//     threshold of some database item.
//
// The vanishing polynomial z(d) = prod_{t=eps..ell}(d - t) is zero for
// every distance in [eps, ell] and nonzero below eps, so only matching
// chunks contribute to the residue. Gammas randomize contributions so
// that distinct matches cannot cancel except with negligible probability.
//
// The proof object here carries the witness in the clear; it makes the
// protocol executable and benchmarkable but is not zero knowledge.
//
// # Epochs
//
// Setup material rotates per epoch. Epoch numbers are derived from wall
// clock time and the configured epoch duration; the dealer derives each
// epoch's setup seed from its master secret, so material is reproducible
// without storing it.
package protocol
