package crypto

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// Hash64 returns the 64-bit digest of data used for commitments.
func Hash64(data []byte) uint64 {
	return xxhash.Sum64(data)
}

// Hash64Uint64 returns the 64-bit digest of a single value. Used to chain
// the commitment into the submission root.
func Hash64Uint64(v uint64) uint64 {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return xxhash.Sum64(buf[:])
}

// TranscriptHash binds a submission's identifier, root, commitment and
// masked response into a single digest. Field order is fixed; changing it
// breaks verification of all outstanding submissions.
func TranscriptHash(msgID, root, commitment, resTotal uint64) uint64 {
	d := xxhash.New()
	var buf [8]byte
	for _, v := range [4]uint64{msgID, root, commitment, resTotal} {
		binary.BigEndian.PutUint64(buf[:], v)
		d.Write(buf[:])
	}
	return d.Sum64()
}
