package client

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lingering/threshnet/crypto"
	"github.com/lingering/threshnet/protocol"
	"github.com/lingering/threshnet/testutil"
)

func newTestClient(t *testing.T, ttpPub crypto.PublicKey) *Client {
	t.Helper()

	_, signingKey, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	_, kemKey, err := crypto.GenerateKemKeyPair()
	require.NoError(t, err)

	c, err := New(&Config{
		ProtocolConfig: testutil.NewTestConfig(),
		TTPPublicKey:   ttpPub,
	}, signingKey, kemKey)
	require.NoError(t, err)
	return c
}

func TestEnrollmentRequest(t *testing.T) {
	ttpPub, _, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	c := newTestClient(t, ttpPub)

	signed, err := c.EnrollmentRequest("http://localhost:8080")
	require.NoError(t, err)

	req, signer, err := signed.Recover()
	require.NoError(t, err)
	require.True(t, signer.Equal(c.PublicKey()))
	require.Equal(t, protocol.RoleClient, req.Role)
	require.Equal(t, c.PublicKey().String(), req.PublicKey)
}

func TestHandleEnrollmentResponse(t *testing.T) {
	ttpPub, _, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	c := newTestClient(t, ttpPub)

	kemPub, _, err := crypto.GenerateKemKeyPair()
	require.NoError(t, err)

	require.NoError(t, c.HandleEnrollmentResponse(&protocol.EnrollmentResponse{
		Success:     true,
		ExchangeKey: kemPub.String(),
	}))

	require.Error(t, c.HandleEnrollmentResponse(&protocol.EnrollmentResponse{
		Success: false,
		Message: "database unavailable",
	}))

	require.Error(t, c.HandleEnrollmentResponse(&protocol.EnrollmentResponse{
		Success:     true,
		ExchangeKey: "zz",
	}))
}

func TestEpochAuthTag(t *testing.T) {
	ttpPub, _, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	c := newTestClient(t, ttpPub)

	// Before enrollment there is no shared secret to tag with.
	_, err = c.EpochAuthTag(3)
	require.Error(t, err)

	kemPub, _, err := crypto.GenerateKemKeyPair()
	require.NoError(t, err)
	require.NoError(t, c.HandleEnrollmentResponse(&protocol.EnrollmentResponse{
		Success:     true,
		ExchangeKey: kemPub.String(),
	}))

	tag, err := c.EpochAuthTag(3)
	require.NoError(t, err)
	require.NotEmpty(t, tag)

	// Deterministic per epoch, distinct across epochs.
	again, err := c.EpochAuthTag(3)
	require.NoError(t, err)
	require.Equal(t, tag, again)
	other, err := c.EpochAuthTag(4)
	require.NoError(t, err)
	require.NotEqual(t, tag, other)
}

func TestPrepareSubmission(t *testing.T) {
	ttpPub, ttpKey, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	c := newTestClient(t, ttpPub)

	setup, err := testutil.NewTestSetup(testutil.NewTestConfig(), 4, 12345)
	require.NoError(t, err)
	setup.Epoch = 3

	material, err := protocol.NewSigned(ttpKey, &protocol.EpochMaterialMessage{Epoch: 3, Setup: setup})
	require.NoError(t, err)
	require.NoError(t, c.SetEpochMaterial(material))

	query := testutil.SynthQuery(setup.Params.Lambda())
	signed, err := c.PrepareSubmissionBits(query, 3)
	require.NoError(t, err)

	sub, signer, err := signed.Recover()
	require.NoError(t, err)
	require.True(t, signer.Equal(c.PublicKey()))
	require.Equal(t, uint64(3), sub.Epoch)

	// The submission verifies against the same material.
	_, err = protocol.VerifyAndDecide(setup, sub)
	require.NoError(t, err)

	// No material for other epochs.
	_, err = c.PrepareSubmissionBits(query, 4)
	require.Error(t, err)
}

func TestSetEpochMaterialRejectsForeignSigner(t *testing.T) {
	ttpPub, _, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	c := newTestClient(t, ttpPub)

	_, impostorKey, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	setup, err := testutil.NewTestSetup(testutil.NewTestConfig(), 2, 1)
	require.NoError(t, err)

	material, err := protocol.NewSigned(impostorKey, &protocol.EpochMaterialMessage{Epoch: 0, Setup: setup})
	require.NoError(t, err)
	require.Error(t, c.SetEpochMaterial(material))
}
