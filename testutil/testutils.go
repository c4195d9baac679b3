// Package testutil provides deterministic fixtures shared by tests and
// the benchmark harness.
package testutil

import (
	"time"

	"github.com/lingering/threshnet/crypto"
	"github.com/lingering/threshnet/protocol"
)

// SynthDatabase generates a deterministic database of n bit vectors of
// lambda bits each. The bit pattern matches the published benchmark
// fixtures, so timings stay comparable across runs and implementations.
func SynthDatabase(n, lambda int) [][]byte {
	db := make([][]byte, n)
	for i := range db {
		item := make([]byte, lambda)
		for j := range item {
			item[j] = byte((i*131 + j*17 + 3) % 2)
		}
		db[i] = item
	}
	return db
}

// SynthQuery generates the deterministic benchmark query vector.
func SynthQuery(lambda int) []byte {
	q := make([]byte, lambda)
	for i := range q {
		q[i] = byte((i*7 + 11) % 2)
	}
	return q
}

// TestConfigOption customizes a protocol config fixture.
type TestConfigOption func(*protocol.Config)

// WithChunks sets the chunk geometry.
func WithChunks(ell, chunks int) TestConfigOption {
	return func(cfg *protocol.Config) {
		cfg.Ell = ell
		cfg.Chunks = chunks
	}
}

// WithEpsilon sets the per-chunk match threshold.
func WithEpsilon(epsilon int) TestConfigOption {
	return func(cfg *protocol.Config) {
		cfg.Epsilon = epsilon
	}
}

// WithEpochDuration sets the epoch duration.
func WithEpochDuration(d time.Duration) TestConfigOption {
	return func(cfg *protocol.Config) {
		cfg.EpochDuration = protocol.Duration(d)
	}
}

// NewTestConfig builds a small, fast protocol config for tests.
func NewTestConfig(options ...TestConfigOption) *protocol.Config {
	cfg := &protocol.Config{
		Ell:           8,
		Chunks:        4,
		Epsilon:       3,
		EpochDuration: protocol.Duration(time.Second),
	}
	for _, option := range options {
		option(cfg)
	}
	return cfg
}

// NewTestSetup builds deterministic epoch setup material over a synthetic
// database.
func NewTestSetup(cfg *protocol.Config, n int, seed uint64) (*protocol.EpochSetup, error) {
	params, err := cfg.Params()
	if err != nil {
		return nil, err
	}
	return protocol.Setup(SynthDatabase(n, params.Lambda()), params, seed)
}

// GenerateTestKeyPair generates a signing key pair for tests.
func GenerateTestKeyPair() (crypto.PublicKey, crypto.PrivateKey, error) {
	return crypto.GenerateKeyPair()
}
