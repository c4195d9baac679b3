package protocol

import (
	"encoding/json"
	"errors"
	"io"

	"github.com/lingering/threshnet/crypto"
)

// Signed wraps a message with an Ed25519 signature for authentication.
type Signed[T any] struct {
	PublicKey crypto.PublicKey `json:"public_key"`
	Signature crypto.Signature `json:"signature"`
	Object    *T               `json:"object"`
}

// NewSigned signs the serialized object together with the signer's public
// key and wraps it into an authenticated envelope.
func NewSigned[T any](privkey crypto.PrivateKey, obj *T) (*Signed[T], error) {
	pubkey, err := privkey.PublicKey()
	if err != nil {
		return nil, err
	}

	serialized, err := SerializeMessage(obj)
	if err != nil {
		return nil, err
	}

	signature, err := crypto.Sign(privkey, append(serialized, pubkey...))
	if err != nil {
		return nil, err
	}

	return &Signed[T]{
		PublicKey: pubkey,
		Signature: signature,
		Object:    obj,
	}, nil
}

// UnsafeObject returns the wrapped object without verifying the signature.
func (s *Signed[T]) UnsafeObject() *T {
	return s.Object
}

// Recover verifies the signature and returns the object and the signer.
func (s *Signed[T]) Recover() (*T, crypto.PublicKey, error) {
	serialized, err := SerializeMessage(s.Object)
	if err != nil {
		return nil, nil, err
	}

	if !s.Signature.Verify(s.PublicKey, append(serialized, s.PublicKey...)) {
		return nil, nil, errors.New("signature not valid")
	}

	return s.Object, s.PublicKey, nil
}

// Role identifies which side of the protocol a party enrolls as.
type Role string

const (
	RoleClient   Role = "client"
	RoleVerifier Role = "verifier"
)

// Valid returns true for recognized enrollment roles.
func (r Role) Valid() bool {
	return r == RoleClient || r == RoleVerifier
}

// EnrollmentRequest asks the dealer to admit a party to the protocol.
// ExchangeKey is the hex-encoded X25519 public key used to derive the
// enrollment shared secret.
type EnrollmentRequest struct {
	Role        Role   `json:"role"`
	PublicKey   string `json:"public_key"`
	ExchangeKey string `json:"exchange_key"`
	Endpoint    string `json:"endpoint,omitempty"`
	Attestation []byte `json:"attestation,omitempty"`
}

// EnrollmentResponse returns the dealer's own exchange key so both sides
// can derive the shared secret.
type EnrollmentResponse struct {
	Success     bool   `json:"success"`
	ExchangeKey string `json:"exchange_key,omitempty"`
	Message     string `json:"message,omitempty"`
}

// EpochMaterialMessage carries the signed setup material for one epoch.
type EpochMaterialMessage struct {
	Epoch uint64      `json:"epoch"`
	Setup *EpochSetup `json:"setup"`
}

// VerdictMessage is the verifier's signed decision for one submission.
type VerdictMessage struct {
	Epoch    uint64   `json:"epoch"`
	MsgID    uint64   `json:"msg_id"`
	Decision Decision `json:"decision"`
}

// UnmarshalMessage deserializes a message from JSON bytes.
func UnmarshalMessage[T any](data []byte) (*T, error) {
	var msg T
	err := json.Unmarshal(data, &msg)
	return &msg, err
}

// DecodeMessage deserializes a message from a JSON reader.
func DecodeMessage[T any](reader io.Reader) (*T, error) {
	var msg T
	err := json.NewDecoder(reader).Decode(&msg)
	return &msg, err
}

// SerializeMessage serializes a message to JSON.
func SerializeMessage[T any](msg *T) ([]byte, error) {
	return json.Marshal(msg)
}
