package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lingering/threshnet/crypto"
)

func testParams(t *testing.T) Params {
	t.Helper()
	params, err := NewParams(8, 4, 3)
	require.NoError(t, err)
	return params
}

func uniformDB(params Params, bit byte, n int) [][]byte {
	db := make([][]byte, n)
	for i := range db {
		item := make([]byte, params.Lambda())
		for j := range item {
			item[j] = bit
		}
		db[i] = item
	}
	return db
}

func TestNewParamsValidation(t *testing.T) {
	_, err := NewParams(0, 4, 0)
	require.Error(t, err)

	_, err = NewParams(8, 0, 3)
	require.Error(t, err)

	_, err = NewParams(8, 4, 9)
	require.Error(t, err)

	params, err := NewParams(16, 16, 6)
	require.NoError(t, err)
	require.Equal(t, 256, params.Lambda())
}

func TestSetupValidatesDatabase(t *testing.T) {
	params := testParams(t)

	_, err := Setup(nil, params, 1)
	require.Error(t, err)

	_, err = Setup([][]byte{make([]byte, params.Lambda()-1)}, params, 1)
	require.Error(t, err)

	bad := make([]byte, params.Lambda())
	bad[3] = 2
	_, err = Setup([][]byte{bad}, params, 1)
	require.Error(t, err)
}

func TestSetupDeterministic(t *testing.T) {
	params := testParams(t)
	db := uniformDB(params, 0, 3)

	s1, err := Setup(db, params, 12345)
	require.NoError(t, err)
	s2, err := Setup(db, params, 12345)
	require.NoError(t, err)
	require.Equal(t, s1.Gammas, s2.Gammas)
	require.Equal(t, s1.Masks, s2.Masks)
	require.Equal(t, s1.MaskSum, s2.MaskSum)

	s3, err := Setup(db, params, 54321)
	require.NoError(t, err)
	require.NotEqual(t, s1.Gammas, s3.Gammas)
}

func TestMaskSumConsistent(t *testing.T) {
	params := testParams(t)
	setup, err := Setup(uniformDB(params, 0, 2), params, 7)
	require.NoError(t, err)

	sum := uint64(0)
	for _, r := range setup.Masks {
		sum = crypto.FieldAdd(sum, r)
	}
	require.Equal(t, sum, setup.MaskSum)
	require.Len(t, setup.Gammas, 2)
	require.Len(t, setup.Masks, params.Chunks)
}

func TestYesForCloseNeighbor(t *testing.T) {
	params := testParams(t)
	db := [][]byte{
		uniformDB(params, 0, 1)[0],
		uniformDB(params, 1, 1)[0],
	}
	setup, err := Setup(db, params, 7)
	require.NoError(t, err)

	// One flipped bit per chunk: both chunks sit at distance 1 from the
	// all-zero item, below the threshold of 3.
	query := make([]byte, params.Lambda())
	query[0] = 1
	query[9] = 1

	sub, err := ClientSubmit(setup, query, 42)
	require.NoError(t, err)

	decision, err := VerifyAndDecide(setup, sub)
	require.NoError(t, err)
	require.Equal(t, DecisionYes, decision)
}

func TestNoWhenEveryChunkFar(t *testing.T) {
	params := testParams(t)
	setup, err := Setup(uniformDB(params, 0, 1), params, 9)
	require.NoError(t, err)

	// Every chunk of the all-ones query is at distance ell from the
	// all-zero item, inside the vanishing range.
	query := make([]byte, params.Lambda())
	for i := range query {
		query[i] = 1
	}

	sub, err := ClientSubmit(setup, query, 11)
	require.NoError(t, err)

	decision, err := VerifyAndDecide(setup, sub)
	require.NoError(t, err)
	require.Equal(t, DecisionNo, decision)
}

// plaintextMatch is the predicate the protocol computes obliviously.
func plaintextMatch(setup *EpochSetup, query []byte) bool {
	for b := 0; b < setup.Params.Chunks; b++ {
		qc := setup.chunk(query, b)
		for _, item := range setup.Database {
			if hammingChunk(qc, setup.chunk(item, b)) < setup.Params.Epsilon {
				return true
			}
		}
	}
	return false
}

func TestDecisionMatchesPlaintextPredicate(t *testing.T) {
	params := testParams(t)
	rng := crypto.NewXorShift64(99)

	randomBits := func() []byte {
		bits := make([]byte, params.Lambda())
		for i := range bits {
			bits[i] = byte(rng.Next() & 1)
		}
		return bits
	}

	for trial := 0; trial < 50; trial++ {
		db := [][]byte{randomBits(), randomBits(), randomBits()}
		setup, err := Setup(db, params, rng.Next())
		require.NoError(t, err)

		query := randomBits()
		sub, err := ClientSubmit(setup, query, uint64(trial))
		require.NoError(t, err)

		decision, err := VerifyAndDecide(setup, sub)
		require.NoError(t, err)

		want := DecisionNo
		if plaintextMatch(setup, query) {
			want = DecisionYes
		}
		require.Equal(t, want, decision, "trial %d", trial)
	}
}

func TestClientSubmitValidatesQuery(t *testing.T) {
	params := testParams(t)
	setup, err := Setup(uniformDB(params, 0, 1), params, 3)
	require.NoError(t, err)

	_, err = ClientSubmit(setup, make([]byte, params.Lambda()-1), 1)
	require.Error(t, err)

	bad := make([]byte, params.Lambda())
	bad[0] = 7
	_, err = ClientSubmit(setup, bad, 1)
	require.Error(t, err)
}

func TestVerifyRejectsTampering(t *testing.T) {
	params := testParams(t)
	setup, err := Setup(uniformDB(params, 0, 2), params, 5)
	require.NoError(t, err)

	query := make([]byte, params.Lambda())
	query[0] = 1

	fresh := func() *Submission {
		sub, err := ClientSubmit(setup, query, 42)
		require.NoError(t, err)
		return sub
	}

	sub := fresh()
	sub.MsgID = 43
	_, err = VerifyAndDecide(setup, sub)
	require.ErrorIs(t, err, ErrInvalidSubmission)

	sub = fresh()
	sub.Proof.Witness[1] ^= 1
	_, err = VerifyAndDecide(setup, sub)
	require.ErrorIs(t, err, ErrInvalidSubmission)

	sub = fresh()
	sub.Proof.Witness[1] = 2
	_, err = VerifyAndDecide(setup, sub)
	require.ErrorIs(t, err, ErrInvalidSubmission)

	sub = fresh()
	sub.Commitment++
	_, err = VerifyAndDecide(setup, sub)
	require.ErrorIs(t, err, ErrInvalidSubmission)

	sub = fresh()
	sub.Root++
	_, err = VerifyAndDecide(setup, sub)
	require.ErrorIs(t, err, ErrInvalidSubmission)

	sub = fresh()
	sub.ResTotal = crypto.FieldAdd(sub.ResTotal, 1)
	_, err = VerifyAndDecide(setup, sub)
	require.ErrorIs(t, err, ErrInvalidSubmission)

	sub = fresh()
	sub.Proof.Transcript++
	_, err = VerifyAndDecide(setup, sub)
	require.ErrorIs(t, err, ErrInvalidSubmission)
}

func TestVerifyRejectsWrongEpochMasks(t *testing.T) {
	params := testParams(t)
	db := uniformDB(params, 0, 2)

	setupA, err := Setup(db, params, 1)
	require.NoError(t, err)
	setupB, err := Setup(db, params, 2)
	require.NoError(t, err)

	query := make([]byte, params.Lambda())
	query[0] = 1

	sub, err := ClientSubmit(setupA, query, 77)
	require.NoError(t, err)

	// A submission masked under different setup material cannot verify.
	_, err = VerifyAndDecide(setupB, sub)
	require.ErrorIs(t, err, ErrInvalidSubmission)
}
