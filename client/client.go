// Package client implements the querying side: it enrolls with the
// dealer, holds epoch setup material, and turns fingerprints into signed
// masked submissions.
package client

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/lingering/threshnet/crypto"
	"github.com/lingering/threshnet/fingerprint"
	"github.com/lingering/threshnet/protocol"
)

// Config configures a Client.
type Config struct {
	ProtocolConfig *protocol.Config

	// TTPPublicKey identifies the dealer. Only epoch material signed by
	// this key is accepted.
	TTPPublicKey crypto.PublicKey

	Log *slog.Logger
}

// Client prepares submissions under the current epoch's setup material.
type Client struct {
	cfg *Config
	log *slog.Logger

	signingKey crypto.PrivateKey
	publicKey  crypto.PublicKey
	kemKey     crypto.KemPrivateKey
	kemPublic  crypto.KemPublicKey

	mu        sync.RWMutex
	sharedKey crypto.SharedKey
	setups    map[uint64]*protocol.EpochSetup
}

// New creates a Client.
func New(cfg *Config, signingKey crypto.PrivateKey, kemKey crypto.KemPrivateKey) (*Client, error) {
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

	return &Client{
		cfg:        cfg,
		log:        log,
		signingKey: signingKey,
		publicKey:  publicKey,
		kemKey:     kemKey,
		kemPublic:  crypto.KemPublicKeyOf(kemKey),
		setups:     make(map[uint64]*protocol.EpochSetup),
	}, nil
}

// PublicKey returns the client's signing public key.
func (c *Client) PublicKey() crypto.PublicKey {
	return c.publicKey
}

// EnrollmentRequest builds the signed enrollment request for the dealer.
// The endpoint is optional and only used for dealer-initiated pushes.
func (c *Client) EnrollmentRequest(endpoint string) (*protocol.Signed[protocol.EnrollmentRequest], error) {
	return protocol.NewSigned(c.signingKey, &protocol.EnrollmentRequest{
		Role:        protocol.RoleClient,
		PublicKey:   c.publicKey.String(),
		ExchangeKey: c.kemPublic.String(),
		Endpoint:    endpoint,
	})
}

// HandleEnrollmentResponse derives the shared secret from the dealer's
// exchange key.
func (c *Client) HandleEnrollmentResponse(resp *protocol.EnrollmentResponse) error {
	if !resp.Success {
		return fmt.Errorf("enrollment refused: %s", resp.Message)
	}

	dealerKey, err := crypto.NewKemPublicKeyFromString(resp.ExchangeKey)
	if err != nil {
		return fmt.Errorf("invalid dealer exchange key: %w", err)
	}

	sharedKey, err := crypto.DeriveSharedSecret(c.kemKey, dealerKey, crypto.EnrollmentInfo)
	if err != nil {
		return fmt.Errorf("deriving shared secret: %w", err)
	}

	c.mu.Lock()
	c.sharedKey = sharedKey
	c.mu.Unlock()
	return nil
}

// EpochAuthTag computes the tag authenticating an epoch-material fetch
// from the dealer. Requires a completed enrollment.
func (c *Client) EpochAuthTag(epoch uint64) ([]byte, error) {
	c.mu.RLock()
	sharedKey := c.sharedKey
	c.mu.RUnlock()

	if sharedKey == nil {
		return nil, errors.New("not enrolled")
	}
	return crypto.EpochAuthTag(sharedKey, c.publicKey, epoch), nil
}

// SetEpochMaterial installs setup material after verifying the dealer's
// signature.
func (c *Client) SetEpochMaterial(signed *protocol.Signed[protocol.EpochMaterialMessage]) error {
	msg, signer, err := signed.Recover()
	if err != nil {
		return fmt.Errorf("invalid signature: %w", err)
	}

	if !signer.Equal(c.cfg.TTPPublicKey) {
		return errors.New("epoch material not signed by the dealer")
	}
	if msg.Setup == nil || msg.Setup.Epoch != msg.Epoch {
		return errors.New("inconsistent epoch material")
	}

	c.mu.Lock()
	c.setups[msg.Epoch] = msg.Setup
	for epoch := range c.setups {
		if epoch+2 <= msg.Epoch {
			delete(c.setups, epoch)
		}
	}
	c.mu.Unlock()

	c.log.Info("Installed epoch material", "epoch", msg.Epoch)
	return nil
}

// NewMsgID draws a random message id. Ids only need to be unique per
// epoch; collisions just return the earlier verdict.
func NewMsgID() (uint64, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(buf[:]), nil
}

// PrepareSubmission computes and signs a masked submission for a
// fingerprint under the given epoch's material.
func (c *Client) PrepareSubmission(fp fingerprint.Fingerprint, epoch uint64) (*protocol.Signed[protocol.Submission], error) {
	return c.PrepareSubmissionBits(fp.BitVector(), epoch)
}

// PrepareSubmissionBits is PrepareSubmission for a raw query bit vector.
func (c *Client) PrepareSubmissionBits(query []byte, epoch uint64) (*protocol.Signed[protocol.Submission], error) {
	c.mu.RLock()
	setup := c.setups[epoch]
	c.mu.RUnlock()

	if setup == nil {
		return nil, fmt.Errorf("no setup material for epoch %d", epoch)
	}

	msgID, err := NewMsgID()
	if err != nil {
		return nil, err
	}

	sub, err := protocol.ClientSubmit(setup, query, msgID)
	if err != nil {
		return nil, err
	}

	return protocol.NewSigned(c.signingKey, sub)
}
