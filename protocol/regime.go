package protocol

import (
	"errors"
	"fmt"
	"slices"

	"github.com/lingering/threshnet/crypto"
)

// Params holds the public protocol parameters. A fingerprint is split
// into Chunks chunks of Ell bits each; a chunk of the query matches a
// chunk of a database item when their Hamming distance is below Epsilon.
type Params struct {
	Prime     uint64 `json:"prime"`
	Generator uint64 `json:"generator"`
	Ell       int    `json:"ell"`
	Chunks    int    `json:"chunks"`
	Epsilon   int    `json:"epsilon"`
}

// NewParams validates and builds protocol parameters over the default field.
func NewParams(ell, chunks, epsilon int) (Params, error) {
	if ell <= 0 {
		return Params{}, errors.New("chunk length must be positive")
	}
	if chunks <= 0 {
		return Params{}, errors.New("chunk count must be positive")
	}
	if epsilon < 0 || epsilon > ell {
		return Params{}, fmt.Errorf("threshold %d out of range [0, %d]", epsilon, ell)
	}
	return Params{
		Prime:     crypto.FieldPrime,
		Generator: crypto.FieldGenerator,
		Ell:       ell,
		Chunks:    chunks,
		Epsilon:   epsilon,
	}, nil
}

// Lambda returns the total fingerprint length in bits.
func (p Params) Lambda() int {
	return p.Ell * p.Chunks
}

// EpochSetup is the dealer's output for one epoch: a per-item nonzero
// gamma, a per-chunk additive mask, and the database itself. Clients and
// verifiers both hold the full setup; the verifier additionally uses
// MaskSum to strip the masks from submitted responses.
type EpochSetup struct {
	Params   Params   `json:"params"`
	Epoch    uint64   `json:"epoch"`
	Gammas   []uint64 `json:"gammas"`
	Masks    []uint64 `json:"masks"`
	MaskSum  uint64   `json:"mask_sum"`
	Database [][]byte `json:"database"`
}

// Setup derives epoch setup material deterministically from the seed.
// Every database item must be a binary vector of exactly Lambda bits.
func Setup(database [][]byte, params Params, seed uint64) (*EpochSetup, error) {
	if len(database) == 0 {
		return nil, errors.New("database is empty")
	}
	lambda := params.Lambda()
	for i, item := range database {
		if len(item) != lambda {
			return nil, fmt.Errorf("database item %d has %d bits, want %d", i, len(item), lambda)
		}
		if !isBinary(item) {
			return nil, fmt.Errorf("database item %d is not a bit vector", i)
		}
	}

	rng := crypto.NewXorShift64(seed)

	gammas := make([]uint64, len(database))
	for i := range gammas {
		gammas[i] = rng.NextFieldNonzero()
	}

	masks := make([]uint64, params.Chunks)
	maskSum := uint64(0)
	for b := range masks {
		masks[b] = rng.NextField()
		maskSum = crypto.FieldAdd(maskSum, masks[b])
	}

	return &EpochSetup{
		Params:   params,
		Epoch:    0,
		Gammas:   gammas,
		Masks:    masks,
		MaskSum:  maskSum,
		Database: database,
	}, nil
}

func isBinary(bits []byte) bool {
	for _, b := range bits {
		if b > 1 {
			return false
		}
	}
	return true
}

// chunk returns chunk b of a full-length bit vector.
func (s *EpochSetup) chunk(d []byte, b int) []byte {
	start := b * s.Params.Ell
	return d[start : start+s.Params.Ell]
}

func hammingChunk(x, y []byte) int {
	d := 0
	for i := range x {
		if x[i] != y[i] {
			d++
		}
	}
	return d
}

// zPoly evaluates the vanishing polynomial prod_{t=eps..ell} (d - t).
// Zero exactly when the chunk distance d falls in [eps, ell], so a
// nonzero value marks a chunk within the match threshold.
func (s *EpochSetup) zPoly(distance int) uint64 {
	acc := uint64(1)
	d := uint64(distance) % s.Params.Prime
	for t := s.Params.Epsilon; t <= s.Params.Ell; t++ {
		term := crypto.FieldSub(d, uint64(t)%s.Params.Prime)
		acc = crypto.FieldMul(acc, term)
	}
	return acc
}

// sForChunk accumulates gamma-weighted vanishing evaluations of the query
// chunk against every database item.
func (s *EpochSetup) sForChunk(queryChunk []byte, chunkIdx int) uint64 {
	acc := uint64(0)
	for i, item := range s.Database {
		d := hammingChunk(queryChunk, s.chunk(item, chunkIdx))
		z := s.zPoly(d)
		acc = crypto.FieldAdd(acc, crypto.FieldMul(s.Gammas[i], z))
	}
	return acc
}

// maskedExponent returns the masked per-chunk response. Group elements use
// the additive encoding: g^x is represented by x mod p.
func (s *EpochSetup) maskedExponent(queryChunk []byte, chunkIdx int) uint64 {
	return crypto.FieldAdd(s.sForChunk(queryChunk, chunkIdx), s.Masks[chunkIdx])
}

// responseTotal sums the masked per-chunk responses for a full query.
func (s *EpochSetup) responseTotal(query []byte) uint64 {
	total := uint64(0)
	for b := 0; b < s.Params.Chunks; b++ {
		total = crypto.FieldAdd(total, s.maskedExponent(s.chunk(query, b), b))
	}
	return total
}

// Proof binds a submission to the witness it was computed from. The
// witness travels with the proof; this is the executable stand-in for a
// zero-knowledge argument, not a hiding proof.
type Proof struct {
	MsgID      uint64 `json:"msg_id"`
	Transcript uint64 `json:"transcript"`
	Witness    []byte `json:"witness"`
}

// Submission is a client's masked threshold-test response for one query.
type Submission struct {
	Epoch      uint64 `json:"epoch"`
	MsgID      uint64 `json:"msg_id"`
	Root       uint64 `json:"root"`
	Commitment uint64 `json:"commitment"`
	ResTotal   uint64 `json:"res_total"`
	Proof      Proof  `json:"proof"`
}

// Decision is the verifier's verdict for a submission.
type Decision int

const (
	// DecisionNo means no chunk of the query is within the match
	// threshold of any database item.
	DecisionNo Decision = iota
	// DecisionYes means some chunk matched some database item.
	DecisionYes
)

func (d Decision) String() string {
	if d == DecisionYes {
		return "yes"
	}
	return "no"
}

// ClientSubmit computes a masked submission for the query under the epoch
// setup. The query must be a binary vector of exactly Lambda bits.
func ClientSubmit(setup *EpochSetup, query []byte, msgID uint64) (*Submission, error) {
	if len(query) != setup.Params.Lambda() {
		return nil, fmt.Errorf("query has %d bits, want %d", len(query), setup.Params.Lambda())
	}
	if !isBinary(query) {
		return nil, errors.New("query is not a bit vector")
	}

	commitment := crypto.Hash64(query)
	root := crypto.Hash64Uint64(commitment)
	resTotal := setup.responseTotal(query)
	transcript := crypto.TranscriptHash(msgID, root, commitment, resTotal)

	return &Submission{
		Epoch:      setup.Epoch,
		MsgID:      msgID,
		Root:       root,
		Commitment: commitment,
		ResTotal:   resTotal,
		Proof: Proof{
			MsgID:      msgID,
			Transcript: transcript,
			Witness:    slices.Clone(query),
		},
	}, nil
}

// ErrInvalidSubmission is returned when a submission fails any consistency
// check before a verdict can be derived.
var ErrInvalidSubmission = errors.New("invalid submission")

// VerifyAndDecide checks a submission against the epoch setup and, when
// consistent, strips the masks and returns the verdict. Any mismatch
// between the proof, the commitments and the recomputed response is a
// rejection, not a DecisionNo.
func VerifyAndDecide(setup *EpochSetup, sub *Submission) (Decision, error) {
	if sub.Proof.MsgID != sub.MsgID {
		return 0, fmt.Errorf("%w: proof message id mismatch", ErrInvalidSubmission)
	}
	if len(sub.Proof.Witness) != setup.Params.Lambda() {
		return 0, fmt.Errorf("%w: witness has %d bits, want %d", ErrInvalidSubmission, len(sub.Proof.Witness), setup.Params.Lambda())
	}
	if !isBinary(sub.Proof.Witness) {
		return 0, fmt.Errorf("%w: witness is not a bit vector", ErrInvalidSubmission)
	}

	if crypto.Hash64(sub.Proof.Witness) != sub.Commitment {
		return 0, fmt.Errorf("%w: commitment does not match witness", ErrInvalidSubmission)
	}
	if crypto.Hash64Uint64(sub.Commitment) != sub.Root {
		return 0, fmt.Errorf("%w: root does not match commitment", ErrInvalidSubmission)
	}

	if setup.responseTotal(sub.Proof.Witness) != sub.ResTotal {
		return 0, fmt.Errorf("%w: response does not match witness", ErrInvalidSubmission)
	}

	expected := crypto.TranscriptHash(sub.MsgID, sub.Root, sub.Commitment, sub.ResTotal)
	if expected != sub.Proof.Transcript {
		return 0, fmt.Errorf("%w: transcript mismatch", ErrInvalidSubmission)
	}

	unmasked := crypto.FieldSub(sub.ResTotal, setup.MaskSum)
	if unmasked != 0 {
		return DecisionYes, nil
	}
	return DecisionNo, nil
}
