// Package common provides shared helpers for the service binaries:
// key loading and generation, configuration fetching, logger setup, and
// TEE provider and measurement source construction.
package common

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/lingering/threshnet/crypto"
	"github.com/lingering/threshnet/protocol"
	"github.com/lingering/threshnet/services"
	"github.com/lingering/threshnet/tdx"
)

// NewLogger creates the process-wide structured logger.
func NewLogger(json, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	var handler slog.Handler
	if json {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	return slog.New(handler)
}

// LoadOrGenerateSigningKey loads an Ed25519 private key from a hex
// string, or generates a fresh key pair when hexKey is empty.
func LoadOrGenerateSigningKey(hexKey string) (crypto.PrivateKey, error) {
	if hexKey != "" {
		keyBytes, err := hex.DecodeString(hexKey)
		if err != nil {
			return nil, fmt.Errorf("invalid hex: %w", err)
		}
		return crypto.NewPrivateKeyFromBytes(keyBytes), nil
	}
	_, privKey, err := crypto.GenerateKeyPair()
	return privKey, err
}

// LoadOrGenerateKemKey loads an X25519 private key from a hex string, or
// generates a fresh key when hexKey is empty.
func LoadOrGenerateKemKey(hexKey string) (crypto.KemPrivateKey, error) {
	var key crypto.KemPrivateKey
	if hexKey != "" {
		keyBytes, err := hex.DecodeString(hexKey)
		if err != nil {
			return key, fmt.Errorf("invalid hex: %w", err)
		}
		if len(keyBytes) != len(key) {
			return key, fmt.Errorf("exchange key has %d bytes, want %d", len(keyBytes), len(key))
		}
		copy(key[:], keyBytes)
		return key, nil
	}

	_, key, err := crypto.GenerateKemKeyPair()
	return key, err
}

// LoadMasterSecret loads the dealer's master secret from a hex string,
// or generates a fresh one when hexKey is empty. A generated secret is
// printed so the operator can persist it.
func LoadMasterSecret(hexSecret string, log *slog.Logger) ([]byte, error) {
	if hexSecret != "" {
		secret, err := hex.DecodeString(hexSecret)
		if err != nil {
			return nil, fmt.Errorf("invalid hex: %w", err)
		}
		return secret, nil
	}

	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, err
	}
	log.Warn("Generated ephemeral master secret, past epochs will not be reproducible after restart",
		"masterSecret", hex.EncodeToString(secret))
	return secret, nil
}

// FetchConfig retrieves the protocol configuration from the registry.
func FetchConfig(registryURL string) (*protocol.Config, error) {
	return services.NewRegistryClient(registryURL).Config()
}

// NewAttestationProvider creates a TEE provider from configuration
// flags. With useTDX false a dummy provider is returned for testing.
func NewAttestationProvider(useTDX bool, remoteTDXURL string) services.TEEProvider {
	if useTDX {
		if remoteTDXURL != "" {
			return &tdx.RemoteProvider{URL: remoteTDXURL, Timeout: 30 * time.Second}
		}
		return &tdx.LocalProvider{}
	}
	return &tdx.DummyProvider{}
}

// NewMeasurementSource creates a measurement source from a URL. Returns
// nil when measurementsURL is empty, disabling measurement checks.
func NewMeasurementSource(measurementsURL string) services.MeasurementSource {
	if measurementsURL != "" {
		return services.NewRemoteMeasurementSource(measurementsURL)
	}
	return nil
}

// NewStore creates a Postgres store when a host is configured, otherwise
// an in-memory store.
func NewStore(host string, port int, user, password, database string) (services.Store, error) {
	if host == "" {
		return services.NewInMemoryStore(), nil
	}
	return services.NewPostgresStore(&services.PostgresConfig{
		Host:     host,
		Port:     port,
		User:     user,
		Password: password,
		Database: database,
	})
}
