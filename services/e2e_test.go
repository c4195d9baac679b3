package services_test

import (
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/lingering/threshnet/client"
	"github.com/lingering/threshnet/crypto"
	"github.com/lingering/threshnet/server"
	"github.com/lingering/threshnet/services"
	"github.com/lingering/threshnet/testutil"
	"github.com/lingering/threshnet/ttp"
)

// Full flow over HTTP: the client enrolls with the dealer, the dealer
// hands out epoch material, the client submits a query to the verifier
// and receives a signed verdict.
func TestEndToEndSubmission(t *testing.T) {
	cfg := testutil.NewTestConfig()

	// Dealer.
	_, ttpSigningKey, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	_, ttpKemKey, err := crypto.GenerateKemKeyPair()
	require.NoError(t, err)

	dealer, err := ttp.New(&ttp.Config{
		ProtocolConfig: cfg,
		MasterSecret:   []byte("e2e-master-secret"),
	}, ttpSigningKey, ttpKemKey)
	require.NoError(t, err)

	params, err := cfg.Params()
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		require.NoError(t, dealer.AddDatabaseItem(testutil.SynthDatabase(4, params.Lambda())[i]))
	}

	ttpRouter := chi.NewRouter()
	ttp.NewHandler(dealer).RegisterRoutes(ttpRouter)
	ttpSrv := httptest.NewServer(ttpRouter)
	defer ttpSrv.Close()

	// Verifier.
	_, verifierKey, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	verifier, err := server.New(&server.Config{
		ProtocolConfig: cfg,
		TTPPublicKey:   dealer.PublicKey(),
	}, verifierKey)
	require.NoError(t, err)

	verifierRouter := chi.NewRouter()
	server.NewHandler(verifier).RegisterRoutes(verifierRouter)
	verifierSrv := httptest.NewServer(verifierRouter)
	defer verifierSrv.Close()

	// Client.
	clientPub, clientKey, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	_, clientKemKey, err := crypto.GenerateKemKeyPair()
	require.NoError(t, err)

	querier, err := client.New(&client.Config{
		ProtocolConfig: cfg,
		TTPPublicKey:   dealer.PublicKey(),
	}, clientKey, clientKemKey)
	require.NoError(t, err)

	// Enrollment over HTTP.
	ttpClient := services.NewTTPClient(ttpSrv.URL)
	enrollReq, err := querier.EnrollmentRequest("")
	require.NoError(t, err)
	enrollResp, err := ttpClient.Enroll(clientKey, enrollReq.Object)
	require.NoError(t, err)
	require.NoError(t, querier.HandleEnrollmentResponse(enrollResp))

	// Fetch epoch material for the current epoch, authenticated with the
	// enrollment shared secret.
	epoch, err := ttpClient.CurrentEpoch()
	require.NoError(t, err)
	authTag, err := querier.EpochAuthTag(epoch)
	require.NoError(t, err)
	material, err := ttpClient.EpochMaterial(clientPub, epoch, authTag)
	require.NoError(t, err)
	require.NoError(t, querier.SetEpochMaterial(material))

	// Without a valid tag the dealer refuses to serve material.
	_, err = ttpClient.EpochMaterial(clientPub, epoch, []byte("forged"))
	require.Error(t, err)

	// The verifier gets the same material and knows the client.
	require.NoError(t, verifier.SetEpochMaterial(material))
	verifier.RegisterClient(clientPub)

	// Submit a query and check the verdict roundtrip.
	query := testutil.SynthQuery(params.Lambda())
	submission, err := querier.PrepareSubmissionBits(query, epoch)
	require.NoError(t, err)

	verifierClient := services.NewVerifierClient(verifierSrv.URL)
	verdictResp, err := verifierClient.Submit(submission)
	require.NoError(t, err)
	require.NotNil(t, verdictResp.Verdict)

	verdict, signer, err := verdictResp.Verdict.Recover()
	require.NoError(t, err)
	require.True(t, signer.Equal(verifier.PublicKey()))
	require.Equal(t, epoch, verdict.Epoch)
	require.Equal(t, submission.Object.MsgID, verdict.MsgID)

	// The verdict stays retrievable.
	fetched, err := verifierClient.Verdict(epoch, verdict.MsgID)
	require.NoError(t, err)
	require.Equal(t, verdict.Decision, fetched.Verdict.Object.Decision)
}
