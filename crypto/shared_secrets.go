package crypto

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/sha3"
)

// EnrollmentInfo is the HKDF context for enrollment shared secrets.
var EnrollmentInfo = []byte("threshnet/enrollment")

// KemPublicKey is an X25519 public key used for enrollment key exchange.
type KemPublicKey [32]byte

// NewKemPublicKeyFromString decodes a hex-encoded X25519 public key.
func NewKemPublicKeyFromString(data string) (KemPublicKey, error) {
	var pubKey KemPublicKey
	raw, err := hex.DecodeString(data)
	if err != nil {
		return pubKey, err
	}
	if len(raw) != len(pubKey) {
		return pubKey, fmt.Errorf("exchange key has %d bytes, want %d", len(raw), len(pubKey))
	}
	copy(pubKey[:], raw)
	return pubKey, nil
}

// String returns the hex encoding of the public key.
func (pk KemPublicKey) String() string {
	return hex.EncodeToString(pk[:])
}

// KemPrivateKey is an X25519 private key used for enrollment key exchange.
type KemPrivateKey [32]byte

// GenerateKemKeyPair generates a new X25519 key pair.
func GenerateKemKeyPair() (KemPublicKey, KemPrivateKey, error) {
	var privKey KemPrivateKey
	var pubKey KemPublicKey

	if _, err := rand.Read(privKey[:]); err != nil {
		return pubKey, privKey, err
	}

	curve25519.ScalarBaseMult((*[32]byte)(&pubKey), (*[32]byte)(&privKey))
	return pubKey, privKey, nil
}

// KemPublicKeyOf derives the public half of an X25519 private key.
func KemPublicKeyOf(privateKey KemPrivateKey) KemPublicKey {
	var pubKey KemPublicKey
	curve25519.ScalarBaseMult((*[32]byte)(&pubKey), (*[32]byte)(&privateKey))
	return pubKey
}

// DeriveSharedSecret performs X25519 key agreement and expands the result
// through HKDF-SHA256 with the given context info.
func DeriveSharedSecret(privateKey KemPrivateKey, publicKey KemPublicKey, info []byte) (SharedKey, error) {
	sharedPoint, err := curve25519.X25519(privateKey[:], publicKey[:])
	if err != nil {
		return nil, err
	}

	kdf := hkdf.New(sha256.New, sharedPoint, nil, info)
	secret := make([]byte, 32)
	if _, err := kdf.Read(secret); err != nil {
		return nil, err
	}

	return SharedKey(secret), nil
}

// EpochAuthTag authenticates an epoch-material request with the
// enrollment shared secret. The requesting party and the dealer compute
// the same tag, so presenting it proves a completed enrollment.
func EpochAuthTag(secret SharedKey, publicKey PublicKey, epoch uint64) []byte {
	var epochBuf [8]byte
	binary.BigEndian.PutUint64(epochBuf[:], epoch)

	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte("threshnet/epoch-material"))
	mac.Write(epochBuf[:])
	mac.Write(publicKey)
	return mac.Sum(nil)
}

// EpochSeed derives the deterministic setup seed for an epoch from the
// dealer's master secret. All setup material for an epoch follows from
// this one value.
func EpochSeed(masterSecret []byte, epoch uint64) uint64 {
	var epochBuf [8]byte
	binary.BigEndian.PutUint64(epochBuf[:], epoch)

	h := sha3.New256()
	h.Write([]byte("threshnet/epoch-seed"))
	h.Write(masterSecret)
	h.Write(epochBuf[:])

	return binary.BigEndian.Uint64(h.Sum(nil)[:8])
}
