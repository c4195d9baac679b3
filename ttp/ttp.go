// Package ttp implements the dealer role: it owns the fingerprint
// database and the master secret, derives setup material per epoch, and
// hands it to enrolled clients and verifiers.
package ttp

import (
	"bytes"
	"context"
	"crypto/hmac"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/lingering/threshnet/crypto"
	"github.com/lingering/threshnet/fingerprint"
	"github.com/lingering/threshnet/metrics"
	"github.com/lingering/threshnet/protocol"
	"github.com/lingering/threshnet/services"
)

// setupCacheSize bounds how many epochs of derived material stay cached.
// Material is reproducible from the master secret, so eviction is cheap.
const setupCacheSize = 8

// Config configures a TTP instance.
type Config struct {
	ProtocolConfig *protocol.Config

	// MasterSecret seeds every epoch's setup material. Losing it means
	// losing the ability to reproduce past epochs.
	MasterSecret []byte

	// Store optionally persists the fingerprint database. The in-memory
	// database is loaded from it on startup.
	Store services.FingerprintStore

	// AttestationProvider optionally gates enrollment on TEE evidence.
	// When set, requests must carry a quote binding the party's exchange
	// key, endpoint and public key.
	AttestationProvider services.TEEProvider

	Log *slog.Logger
}

type enrolledParty struct {
	role        protocol.Role
	endpoint    string
	exchangeKey crypto.KemPublicKey
	sharedKey   crypto.SharedKey
}

// TTP is the dealer. All state behind mu; setup derivation is
// deterministic so concurrent derivations of the same epoch agree.
type TTP struct {
	cfg    *Config
	log    *slog.Logger
	params protocol.Params

	signingKey crypto.PrivateKey
	publicKey  crypto.PublicKey
	kemKey     crypto.KemPrivateKey
	kemPublic  crypto.KemPublicKey

	coordinator protocol.EpochCoordinator

	mu       sync.RWMutex
	database [][]byte
	enrolled map[string]enrolledParty
	setups   map[uint64]*protocol.EpochSetup
}

// New creates a TTP. The fingerprint database is loaded from the store
// when one is configured.
func New(cfg *Config, signingKey crypto.PrivateKey, kemKey crypto.KemPrivateKey) (*TTP, error) {
	if len(cfg.MasterSecret) == 0 {
		return nil, errors.New("master secret is empty")
	}

	params, err := cfg.ProtocolConfig.Params()
	if err != nil {
		return nil, err
	}

	publicKey, err := signingKey.PublicKey()
	if err != nil {
		return nil, err
	}

	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}

	t := &TTP{
		cfg:         cfg,
		log:         log,
		params:      params,
		signingKey:  signingKey,
		publicKey:   publicKey,
		kemKey:      kemKey,
		kemPublic:   crypto.KemPublicKeyOf(kemKey),
		coordinator: protocol.NewLocalEpochCoordinator(cfg.ProtocolConfig.EpochDuration.Std()),
		enrolled:    make(map[string]enrolledParty),
		setups:      make(map[uint64]*protocol.EpochSetup),
	}

	if cfg.Store != nil {
		fps, err := cfg.Store.LoadFingerprints()
		if err != nil {
			return nil, fmt.Errorf("loading fingerprint database: %w", err)
		}
		for _, fp := range fps {
			if err := t.addFingerprintLocked(fp); err != nil {
				return nil, err
			}
		}
	}

	return t, nil
}

// PublicKey returns the TTP's signing public key.
func (t *TTP) PublicKey() crypto.PublicKey {
	return t.publicKey
}

// ExchangeKey returns the TTP's X25519 public key.
func (t *TTP) ExchangeKey() crypto.KemPublicKey {
	return t.kemPublic
}

// Coordinator returns the TTP's epoch coordinator.
func (t *TTP) Coordinator() protocol.EpochCoordinator {
	return t.coordinator
}

// CurrentEpoch returns the current epoch number.
func (t *TTP) CurrentEpoch() uint64 {
	return t.coordinator.CurrentEpoch()
}

func (t *TTP) addFingerprintLocked(fp fingerprint.Fingerprint) error {
	if t.params.Lambda() != fingerprint.BitLen {
		return fmt.Errorf("parameters span %d bits, fingerprints are %d", t.params.Lambda(), fingerprint.BitLen)
	}
	t.database = append(t.database, fp.BitVector())
	return nil
}

// AddFingerprint adds a fingerprint to the database and persists it.
// Setup material for epochs derived after this call includes the new
// item; already-derived epochs are unaffected.
func (t *TTP) AddFingerprint(fp fingerprint.Fingerprint) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.addFingerprintLocked(fp); err != nil {
		return err
	}
	// Cached setups describe the old database.
	t.setups = make(map[uint64]*protocol.EpochSetup)

	if t.cfg.Store != nil {
		if err := t.cfg.Store.SaveFingerprint(fp); err != nil {
			return fmt.Errorf("persisting fingerprint: %w", err)
		}
	}
	return nil
}

// AddDatabaseItem adds a raw bit vector to the database. Used when the
// configured parameters span fewer bits than a full fingerprint.
func (t *TTP) AddDatabaseItem(bits []byte) error {
	if len(bits) != t.params.Lambda() {
		return fmt.Errorf("item has %d bits, want %d", len(bits), t.params.Lambda())
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.database = append(t.database, bits)
	t.setups = make(map[uint64]*protocol.EpochSetup)
	return nil
}

// DatabaseSize returns the number of database items.
func (t *TTP) DatabaseSize() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.database)
}

// Enroll admits a party after verifying its signed request. The response
// carries the TTP's exchange key so the party can derive the same shared
// secret.
func (t *TTP) Enroll(signed *protocol.Signed[protocol.EnrollmentRequest]) (*protocol.EnrollmentResponse, error) {
	req, signer, err := signed.Recover()
	if err != nil {
		return nil, fmt.Errorf("invalid signature: %w", err)
	}

	if !req.Role.Valid() {
		return nil, fmt.Errorf("invalid role %q", req.Role)
	}

	if signer.String() != req.PublicKey {
		return nil, errors.New("signer does not match claimed public key")
	}

	exchangeKey, err := crypto.NewKemPublicKeyFromString(req.ExchangeKey)
	if err != nil {
		return nil, fmt.Errorf("invalid exchange key: %w", err)
	}

	if t.cfg.AttestationProvider != nil {
		if len(req.Attestation) == 0 {
			return nil, errors.New("attestation required")
		}
		reportData := services.ReportDataForService(req.ExchangeKey, req.Endpoint, req.PublicKey)
		if _, err := t.cfg.AttestationProvider.Verify(req.Attestation, reportData); err != nil {
			return nil, fmt.Errorf("attestation verification failed: %w", err)
		}
	}

	sharedKey, err := crypto.DeriveSharedSecret(t.kemKey, exchangeKey, crypto.EnrollmentInfo)
	if err != nil {
		return nil, fmt.Errorf("deriving shared secret: %w", err)
	}

	t.mu.Lock()
	t.enrolled[signer.String()] = enrolledParty{
		role:        req.Role,
		endpoint:    req.Endpoint,
		exchangeKey: exchangeKey,
		sharedKey:   sharedKey,
	}
	t.mu.Unlock()

	metrics.IncEnrollment()
	t.log.Info("Party enrolled", "role", req.Role, "publicKey", signer.String())

	return &protocol.EnrollmentResponse{
		Success:     true,
		ExchangeKey: t.kemPublic.String(),
	}, nil
}

// IsEnrolled reports whether a public key belongs to an enrolled party.
func (t *TTP) IsEnrolled(publicKey string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.enrolled[publicKey]
	return ok
}

// VerifyEpochAuth checks an epoch-material tag against the shared secret
// derived during the party's enrollment. Unenrolled keys never verify.
func (t *TTP) VerifyEpochAuth(publicKey string, epoch uint64, tag []byte) bool {
	t.mu.RLock()
	party, enrolled := t.enrolled[publicKey]
	t.mu.RUnlock()
	if !enrolled {
		return false
	}

	pub, err := crypto.NewPublicKeyFromString(publicKey)
	if err != nil {
		return false
	}

	expected := crypto.EpochAuthTag(party.sharedKey, pub, epoch)
	return hmac.Equal(expected, tag)
}

// SetupForEpoch derives (or returns cached) setup material for an epoch.
func (t *TTP) SetupForEpoch(epoch uint64) (*protocol.EpochSetup, error) {
	t.mu.RLock()
	setup, cached := t.setups[epoch]
	t.mu.RUnlock()
	if cached {
		return setup, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if setup, cached := t.setups[epoch]; cached {
		return setup, nil
	}

	if len(t.database) == 0 {
		return nil, errors.New("fingerprint database is empty")
	}

	seed := crypto.EpochSeed(t.cfg.MasterSecret, epoch)
	setup, err := protocol.Setup(t.database, t.params, seed)
	if err != nil {
		return nil, err
	}
	setup.Epoch = epoch

	if len(t.setups) >= setupCacheSize {
		for cachedEpoch := range t.setups {
			if cachedEpoch+setupCacheSize <= epoch {
				delete(t.setups, cachedEpoch)
			}
		}
	}
	t.setups[epoch] = setup

	metrics.IncEpochSetup()
	t.log.Info("Derived epoch setup", "epoch", epoch, "items", len(t.database))

	return setup, nil
}

// Start begins epoch progression. On every transition the next epoch's
// material is derived eagerly and pushed to enrolled verifiers that
// registered an endpoint.
func (t *TTP) Start(ctx context.Context) {
	t.coordinator.Start(ctx)

	epochs := t.coordinator.Subscribe(ctx)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case epoch, ok := <-epochs:
				if !ok {
					return
				}
				t.distributeEpochMaterial(epoch)
			}
		}
	}()
}

func (t *TTP) distributeEpochMaterial(epoch uint64) {
	if t.DatabaseSize() == 0 {
		return
	}

	material, err := t.SignedEpochMaterial(epoch)
	if err != nil {
		t.log.Error("Failed to derive epoch material", "epoch", epoch, "err", err)
		return
	}

	t.mu.RLock()
	endpoints := make([]string, 0)
	for _, party := range t.enrolled {
		if party.role == protocol.RoleVerifier && party.endpoint != "" {
			endpoints = append(endpoints, party.endpoint)
		}
	}
	t.mu.RUnlock()

	for _, endpoint := range endpoints {
		if err := pushEpochMaterial(endpoint, material); err != nil {
			t.log.Error("Failed to push epoch material", "endpoint", endpoint, "epoch", epoch, "err", err)
		}
	}
}

func pushEpochMaterial(endpoint string, material *protocol.Signed[protocol.EpochMaterialMessage]) error {
	body, err := protocol.SerializeMessage(&services.EpochMaterialRequest{Material: material})
	if err != nil {
		return err
	}

	resp, err := http.Post(endpoint+"/api/epoch-material", "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("verifier returned status %d", resp.StatusCode)
	}
	return nil
}

// SignedEpochMaterial returns setup material for an epoch wrapped in the
// TTP's signature.
func (t *TTP) SignedEpochMaterial(epoch uint64) (*protocol.Signed[protocol.EpochMaterialMessage], error) {
	setup, err := t.SetupForEpoch(epoch)
	if err != nil {
		return nil, err
	}

	return protocol.NewSigned(t.signingKey, &protocol.EpochMaterialMessage{
		Epoch: epoch,
		Setup: setup,
	})
}
