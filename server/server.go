// Package server implements the verifier role: it receives masked
// submissions from registered clients, checks them against the current
// epoch's setup material, and issues signed verdicts.
package server

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/lingering/threshnet/crypto"
	"github.com/lingering/threshnet/metrics"
	"github.com/lingering/threshnet/protocol"
	"github.com/lingering/threshnet/services"
)

// setupRetention is how many past epochs of setup material stay usable.
const setupRetention = 4

// Config configures a Verifier.
type Config struct {
	ProtocolConfig *protocol.Config

	// TTPPublicKey identifies the dealer. Only epoch material signed by
	// this key is accepted.
	TTPPublicKey crypto.PublicKey

	// Store optionally persists verdicts. The in-memory verdict cache is
	// backed by it for idempotent resubmissions across restarts.
	Store services.VerdictStore

	Log *slog.Logger
}

type verdictKey struct {
	epoch uint64
	msgID uint64
}

// Verifier holds per-epoch setup material and issues verdicts.
type Verifier struct {
	cfg *Config
	log *slog.Logger

	signingKey crypto.PrivateKey
	publicKey  crypto.PublicKey

	mu       sync.RWMutex
	setups   map[uint64]*protocol.EpochSetup
	clients  map[string]bool
	verdicts map[verdictKey]*protocol.Signed[protocol.VerdictMessage]
}

// New creates a Verifier.
func New(cfg *Config, signingKey crypto.PrivateKey) (*Verifier, error) {
	if len(cfg.TTPPublicKey) == 0 {
		return nil, errors.New("dealer public key is not configured")
	}

	publicKey, err := signingKey.PublicKey()
	if err != nil {
		return nil, err
	}

	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}

	return &Verifier{
		cfg:        cfg,
		log:        log,
		signingKey: signingKey,
		publicKey:  publicKey,
		setups:     make(map[uint64]*protocol.EpochSetup),
		clients:    make(map[string]bool),
		verdicts:   make(map[verdictKey]*protocol.Signed[protocol.VerdictMessage]),
	}, nil
}

// PublicKey returns the verifier's signing public key.
func (v *Verifier) PublicKey() crypto.PublicKey {
	return v.publicKey
}

// RegisterClient allows a client public key to submit queries.
func (v *Verifier) RegisterClient(publicKey crypto.PublicKey) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.clients[publicKey.String()] = true
}

// SetEpochMaterial installs setup material after verifying the dealer's
// signature. Material older than the retention window is dropped.
func (v *Verifier) SetEpochMaterial(signed *protocol.Signed[protocol.EpochMaterialMessage]) error {
	msg, signer, err := signed.Recover()
	if err != nil {
		return fmt.Errorf("invalid signature: %w", err)
	}

	if !signer.Equal(v.cfg.TTPPublicKey) {
		return errors.New("epoch material not signed by the dealer")
	}

	if msg.Setup == nil {
		return errors.New("epoch material has no setup")
	}
	if msg.Setup.Epoch != msg.Epoch {
		return fmt.Errorf("setup is for epoch %d, message says %d", msg.Setup.Epoch, msg.Epoch)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	v.setups[msg.Epoch] = msg.Setup
	for epoch := range v.setups {
		if epoch+setupRetention <= msg.Epoch {
			delete(v.setups, epoch)
		}
	}

	v.log.Info("Installed epoch material", "epoch", msg.Epoch, "items", len(msg.Setup.Database))
	return nil
}

// ErrUnknownEpoch is returned for submissions against epochs the verifier
// has no material for.
var ErrUnknownEpoch = errors.New("no setup material for epoch")

// ErrUnknownClient is returned for submissions from unregistered keys.
var ErrUnknownClient = errors.New("client not registered")

// ProcessSubmission verifies a signed submission and returns the signed
// verdict. Resubmissions of an already-decided (epoch, msgID) pair return
// the original verdict.
func (v *Verifier) ProcessSubmission(signed *protocol.Signed[protocol.Submission]) (*protocol.Signed[protocol.VerdictMessage], error) {
	sub, signer, err := signed.Recover()
	if err != nil {
		metrics.IncSubmissionRejected()
		return nil, fmt.Errorf("invalid signature: %w", err)
	}

	v.mu.RLock()
	registered := v.clients[signer.String()]
	setup := v.setups[sub.Epoch]
	cached := v.verdicts[verdictKey{sub.Epoch, sub.MsgID}]
	v.mu.RUnlock()

	if !registered {
		metrics.IncSubmissionRejected()
		return nil, ErrUnknownClient
	}

	if cached != nil {
		return cached, nil
	}
	if v.cfg.Store != nil {
		if stored, err := v.cfg.Store.LoadVerdict(sub.Epoch, sub.MsgID); err == nil {
			return stored, nil
		}
	}

	if setup == nil {
		metrics.IncSubmissionRejected()
		return nil, fmt.Errorf("%w: %d", ErrUnknownEpoch, sub.Epoch)
	}

	decision, err := protocol.VerifyAndDecide(setup, sub)
	if err != nil {
		metrics.IncSubmissionRejected()
		return nil, err
	}

	verdict, err := protocol.NewSigned(v.signingKey, &protocol.VerdictMessage{
		Epoch:    sub.Epoch,
		MsgID:    sub.MsgID,
		Decision: decision,
	})
	if err != nil {
		return nil, err
	}

	v.mu.Lock()
	v.verdicts[verdictKey{sub.Epoch, sub.MsgID}] = verdict
	v.mu.Unlock()

	if v.cfg.Store != nil {
		if err := v.cfg.Store.SaveVerdict(signer.String(), verdict); err != nil {
			v.log.Error("Failed to persist verdict", "err", err)
		}
	}

	metrics.IncSubmissionAccepted()
	metrics.IncVerdict(decision == protocol.DecisionYes)
	v.log.Info("Issued verdict", "epoch", sub.Epoch, "msgID", sub.MsgID, "decision", decision.String())

	return verdict, nil
}

// Verdict returns a previously issued verdict, checking the cache first
// and then the store.
func (v *Verifier) Verdict(epoch, msgID uint64) (*protocol.Signed[protocol.VerdictMessage], error) {
	v.mu.RLock()
	cached := v.verdicts[verdictKey{epoch, msgID}]
	v.mu.RUnlock()
	if cached != nil {
		return cached, nil
	}

	if v.cfg.Store != nil {
		return v.cfg.Store.LoadVerdict(epoch, msgID)
	}
	return nil, services.ErrVerdictNotFound
}
