// Package fingerprint handles the 256-bit perceptual fingerprints that make
// up the matching database. Fingerprints are produced upstream (PDQ-style
// image hashes) and arrive hex-encoded; this package parses them and
// expands them into the bit vectors the protocol operates on.
package fingerprint

import (
	"encoding/hex"
	"fmt"
	"math/bits"
)

// Size is the fingerprint length in bytes.
const Size = 32

// BitLen is the fingerprint length in bits.
const BitLen = Size * 8

// Fingerprint is a fixed-size binary fingerprint compared under Hamming
// distance.
type Fingerprint [Size]byte

// FromBytes copies raw into a Fingerprint.
func FromBytes(raw []byte) (Fingerprint, error) {
	var fp Fingerprint
	if len(raw) != Size {
		return fp, fmt.Errorf("fingerprint must be %d bytes, got %d", Size, len(raw))
	}
	copy(fp[:], raw)
	return fp, nil
}

// ParseHex decodes a hex-encoded fingerprint.
func ParseHex(s string) (Fingerprint, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("invalid fingerprint hex: %w", err)
	}
	return FromBytes(raw)
}

// String returns the hex encoding.
func (fp Fingerprint) String() string {
	return hex.EncodeToString(fp[:])
}

// Distance returns the Hamming distance between two fingerprints.
func Distance(a, b Fingerprint) int {
	d := 0
	for i := range a {
		d += bits.OnesCount8(a[i] ^ b[i])
	}
	return d
}

// BitVector expands the fingerprint into one byte per bit, most
// significant bit of each byte first. This is the representation the
// protocol's chunked distance computation consumes.
func (fp Fingerprint) BitVector() []byte {
	out := make([]byte, BitLen)
	for i := 0; i < BitLen; i++ {
		out[i] = (fp[i/8] >> (7 - i%8)) & 1
	}
	return out
}

// FromBitVector packs a bit vector (one 0/1 byte per bit) back into a
// Fingerprint. The vector must be exactly BitLen long and binary.
func FromBitVector(vec []byte) (Fingerprint, error) {
	var fp Fingerprint
	if len(vec) != BitLen {
		return fp, fmt.Errorf("bit vector must be %d bits, got %d", BitLen, len(vec))
	}
	for i, b := range vec {
		switch b {
		case 0:
		case 1:
			fp[i/8] |= 1 << (7 - i%8)
		default:
			return Fingerprint{}, fmt.Errorf("bit %d is %d, want 0 or 1", i, b)
		}
	}
	return fp, nil
}
