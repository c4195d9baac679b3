package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"slices"
)

// PublicKey is an Ed25519 public key. Hex-encoded public keys double as
// party identifiers throughout the system.
type PublicKey []byte

// NewPublicKeyFromBytes copies data into a new PublicKey.
func NewPublicKeyFromBytes(data []byte) PublicKey {
	return PublicKey(slices.Clone(data))
}

// NewPublicKeyFromString decodes a hex-encoded public key.
func NewPublicKeyFromString(data string) (PublicKey, error) {
	raw, err := hex.DecodeString(data)
	if err != nil {
		return nil, err
	}
	return PublicKey(raw), nil
}

// Bytes returns the raw key bytes.
func (pk PublicKey) Bytes() []byte {
	return pk
}

// Equal reports whether two public keys hold the same bytes.
func (pk PublicKey) Equal(other PublicKey) bool {
	return len(pk) == len(other) && subtle.ConstantTimeCompare(pk, other) == 1
}

// String returns the hex encoding, suitable for use as a map key.
func (pk PublicKey) String() string {
	return hex.EncodeToString(pk)
}

// PrivateKey is an Ed25519 private key.
type PrivateKey []byte

// NewPrivateKeyFromBytes copies data into a new PrivateKey.
func NewPrivateKeyFromBytes(data []byte) PrivateKey {
	return PrivateKey(slices.Clone(data))
}

// Bytes returns the raw key bytes. Handle with care.
func (sk PrivateKey) Bytes() []byte {
	return sk
}

// PublicKey extracts the public half embedded in the Ed25519 private key.
func (sk PrivateKey) PublicKey() (PublicKey, error) {
	if len(sk) != ed25519.PrivateKeySize {
		return nil, errors.New("invalid private key size")
	}
	return PublicKey(sk[32:]), nil
}

// GenerateKeyPair generates a fresh Ed25519 signing key pair.
func GenerateKeyPair() (PublicKey, PrivateKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	return PublicKey(pub), PrivateKey(priv), nil
}

// Signature is an Ed25519 signature over a serialized message.
type Signature []byte

// NewSignature copies data into a new Signature.
func NewSignature(data []byte) Signature {
	return Signature(slices.Clone(data))
}

// Bytes returns the raw signature bytes.
func (s Signature) Bytes() []byte {
	return s
}

// Verify reports whether s is a valid signature over data by publicKey.
func (s Signature) Verify(publicKey PublicKey, data []byte) bool {
	if len(publicKey) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(publicKey), data, s)
}

// String returns the hex encoding of the signature.
func (s Signature) String() string {
	return hex.EncodeToString(s)
}

// Sign signs data with an Ed25519 private key.
func Sign(privateKey PrivateKey, data []byte) (Signature, error) {
	if len(privateKey) != ed25519.PrivateKeySize {
		return nil, errors.New("invalid private key size")
	}
	return Signature(ed25519.Sign(ed25519.PrivateKey(privateKey), data)), nil
}

// SharedKey is a Diffie-Hellman shared secret. It must only be fed into a
// KDF, never used directly as key material.
type SharedKey []byte

// NewSharedKey copies data into a new SharedKey.
func NewSharedKey(data []byte) SharedKey {
	return SharedKey(slices.Clone(data))
}

// Bytes returns a copy of the secret bytes.
func (sk SharedKey) Bytes() []byte {
	return slices.Clone(sk)
}
