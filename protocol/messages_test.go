package protocol

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lingering/threshnet/crypto"
)

func TestSignedRoundtrip(t *testing.T) {
	_, privkey, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	verdict := &VerdictMessage{Epoch: 3, MsgID: 77, Decision: DecisionYes}
	signed, err := NewSigned(privkey, verdict)
	require.NoError(t, err)

	serialized, err := SerializeMessage(signed)
	require.NoError(t, err)

	parsed, err := UnmarshalMessage[Signed[VerdictMessage]](serialized)
	require.NoError(t, err)

	obj, signer, err := parsed.Recover()
	require.NoError(t, err)
	require.Equal(t, verdict, obj)

	pubkey, err := privkey.PublicKey()
	require.NoError(t, err)
	require.True(t, signer.Equal(pubkey))
}

func TestSignedRejectsTamperedObject(t *testing.T) {
	_, privkey, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	signed, err := NewSigned(privkey, &VerdictMessage{Epoch: 1, MsgID: 5, Decision: DecisionNo})
	require.NoError(t, err)

	signed.Object.Decision = DecisionYes
	_, _, err = signed.Recover()
	require.Error(t, err)
}

func TestSignedRejectsSwappedSigner(t *testing.T) {
	_, privkey, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	otherPub, _, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	signed, err := NewSigned(privkey, &VerdictMessage{Epoch: 1, MsgID: 5})
	require.NoError(t, err)

	signed.PublicKey = otherPub
	_, _, err = signed.Recover()
	require.Error(t, err)
}

func TestDecodeMessage(t *testing.T) {
	req := &EnrollmentRequest{
		Role:        RoleClient,
		PublicKey:   "aa",
		ExchangeKey: "bb",
	}
	serialized, err := SerializeMessage(req)
	require.NoError(t, err)

	decoded, err := DecodeMessage[EnrollmentRequest](bytes.NewReader(serialized))
	require.NoError(t, err)
	require.Equal(t, req, decoded)
}

func TestRoleValid(t *testing.T) {
	require.True(t, RoleClient.Valid())
	require.True(t, RoleVerifier.Valid())
	require.False(t, Role("dealer").Valid())
	require.False(t, Role("").Valid())
}
