// Package crypto provides the primitives shared by all threshnet parties:
// arithmetic over the Mersenne field 2^61-1, the deterministic xorshift
// generator for epoch setup material, 64-bit commitment and transcript
// hashing, Ed25519 identity keys and signatures, and X25519 enrollment
// key exchange.
package crypto
