package services

import (
	"errors"
	"sync"

	"github.com/lingering/threshnet/fingerprint"
	"github.com/lingering/threshnet/protocol"
)

// RegistryStore persists signed service registrations across restarts.
type RegistryStore interface {
	SaveService(signed *protocol.Signed[RegisteredService]) error
	DeleteService(publicKey string) error
	LoadAllServices() (map[ServiceType]map[string]*protocol.Signed[RegisteredService], error)
}

// VerdictStore persists issued verdicts. Verdicts are keyed by epoch and
// message id; re-saving an existing key is an idempotent overwrite.
type VerdictStore interface {
	SaveVerdict(submitter string, verdict *protocol.Signed[protocol.VerdictMessage]) error
	LoadVerdict(epoch, msgID uint64) (*protocol.Signed[protocol.VerdictMessage], error)
}

// FingerprintStore persists the dealer's fingerprint database.
type FingerprintStore interface {
	SaveFingerprint(fp fingerprint.Fingerprint) error
	LoadFingerprints() ([]fingerprint.Fingerprint, error)
}

// Store combines all persistence concerns. Both PostgresStore and
// InMemoryStore implement it.
type Store interface {
	RegistryStore
	VerdictStore
	FingerprintStore
}

// ErrVerdictNotFound is returned by LoadVerdict for unknown keys.
var ErrVerdictNotFound = errors.New("verdict not found")

type verdictKey struct {
	epoch uint64
	msgID uint64
}

// InMemoryStore implements RegistryStore, VerdictStore and
// FingerprintStore without a database. Used in tests and demo runs.
type InMemoryStore struct {
	mu           sync.RWMutex
	services     map[string]*protocol.Signed[RegisteredService]
	verdicts     map[verdictKey]*protocol.Signed[protocol.VerdictMessage]
	fingerprints []fingerprint.Fingerprint
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		services: make(map[string]*protocol.Signed[RegisteredService]),
		verdicts: make(map[verdictKey]*protocol.Signed[protocol.VerdictMessage]),
	}
}

// SaveService stores a service registration in memory.
func (s *InMemoryStore) SaveService(signed *protocol.Signed[RegisteredService]) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.services[signed.Object.PublicKey] = signed
	return nil
}

// DeleteService removes a service registration from memory.
func (s *InMemoryStore) DeleteService(publicKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.services, publicKey)
	return nil
}

// LoadAllServices returns all stored registrations grouped by type.
func (s *InMemoryStore) LoadAllServices() (map[ServiceType]map[string]*protocol.Signed[RegisteredService], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := map[ServiceType]map[string]*protocol.Signed[RegisteredService]{
		TTPService:      make(map[string]*protocol.Signed[RegisteredService]),
		VerifierService: make(map[string]*protocol.Signed[RegisteredService]),
		ClientService:   make(map[string]*protocol.Signed[RegisteredService]),
	}

	for pk, signed := range s.services {
		svcType := signed.Object.ServiceType
		if !svcType.Valid() {
			continue
		}
		result[svcType][pk] = signed
	}

	return result, nil
}

// SaveVerdict stores a verdict in memory.
func (s *InMemoryStore) SaveVerdict(submitter string, verdict *protocol.Signed[protocol.VerdictMessage]) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := verdict.Object
	s.verdicts[verdictKey{v.Epoch, v.MsgID}] = verdict
	return nil
}

// LoadVerdict returns a stored verdict or ErrVerdictNotFound.
func (s *InMemoryStore) LoadVerdict(epoch, msgID uint64) (*protocol.Signed[protocol.VerdictMessage], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	verdict, ok := s.verdicts[verdictKey{epoch, msgID}]
	if !ok {
		return nil, ErrVerdictNotFound
	}
	return verdict, nil
}

// SaveFingerprint appends a fingerprint to the in-memory database.
func (s *InMemoryStore) SaveFingerprint(fp fingerprint.Fingerprint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fingerprints = append(s.fingerprints, fp)
	return nil
}

// LoadFingerprints returns the stored fingerprint database.
func (s *InMemoryStore) LoadFingerprints() ([]fingerprint.Fingerprint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]fingerprint.Fingerprint, len(s.fingerprints))
	copy(result, s.fingerprints)
	return result, nil
}
