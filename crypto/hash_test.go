package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHash64Deterministic(t *testing.T) {
	data := []byte{0, 1, 1, 0, 1}
	require.Equal(t, Hash64(data), Hash64(data))
	require.NotEqual(t, Hash64(data), Hash64([]byte{0, 1, 1, 0, 0}))
}

func TestTranscriptHashFieldOrderMatters(t *testing.T) {
	h1 := TranscriptHash(1, 2, 3, 4)
	h2 := TranscriptHash(2, 1, 3, 4)
	require.NotEqual(t, h1, h2)
	require.Equal(t, h1, TranscriptHash(1, 2, 3, 4))
}

func TestHash64Uint64DiffersFromRaw(t *testing.T) {
	require.NotEqual(t, Hash64Uint64(42), uint64(42))
	require.Equal(t, Hash64Uint64(42), Hash64Uint64(42))
}
