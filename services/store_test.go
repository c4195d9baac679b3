package services

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lingering/threshnet/crypto"
	"github.com/lingering/threshnet/fingerprint"
	"github.com/lingering/threshnet/protocol"
)

func TestInMemoryStoreServices(t *testing.T) {
	store := NewInMemoryStore()

	signed, pubKey := signedRegistration(t, VerifierService, nil)
	require.NoError(t, store.SaveService(signed))

	all, err := store.LoadAllServices()
	require.NoError(t, err)
	require.Len(t, all[VerifierService], 1)
	require.Empty(t, all[ClientService])
	require.Contains(t, all[VerifierService], pubKey.String())

	require.NoError(t, store.DeleteService(pubKey.String()))
	all, err = store.LoadAllServices()
	require.NoError(t, err)
	require.Empty(t, all[VerifierService])
}

func TestInMemoryStoreVerdicts(t *testing.T) {
	store := NewInMemoryStore()

	_, key, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	verdict, err := protocol.NewSigned(key, &protocol.VerdictMessage{
		Epoch:    2,
		MsgID:    77,
		Decision: protocol.DecisionYes,
	})
	require.NoError(t, err)

	require.NoError(t, store.SaveVerdict("submitter", verdict))

	loaded, err := store.LoadVerdict(2, 77)
	require.NoError(t, err)
	require.Equal(t, protocol.DecisionYes, loaded.Object.Decision)

	_, err = store.LoadVerdict(2, 78)
	require.ErrorIs(t, err, ErrVerdictNotFound)
}

func TestInMemoryStoreFingerprints(t *testing.T) {
	store := NewInMemoryStore()

	fps, err := store.LoadFingerprints()
	require.NoError(t, err)
	require.Empty(t, fps)

	fp := fingerprint.Fingerprint{1, 2, 3}
	require.NoError(t, store.SaveFingerprint(fp))

	fps, err = store.LoadFingerprints()
	require.NoError(t, err)
	require.Equal(t, []fingerprint.Fingerprint{fp}, fps)
}
