package ttp

import (
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lingering/threshnet/crypto"
	"github.com/lingering/threshnet/protocol"
	"github.com/lingering/threshnet/testutil"
)

func TestHandlerEpochMaterialAuth(t *testing.T) {
	ttp := newTestTTP(t, &Config{})
	params, err := testutil.NewTestConfig().Params()
	require.NoError(t, err)
	require.NoError(t, ttp.AddDatabaseItem(testutil.SynthQuery(params.Lambda())))

	pubKey, sharedKey := enrollParty(t, ttp, protocol.RoleClient)

	r := chi.NewRouter()
	NewHandler(ttp).RegisterRoutes(r)

	get := func(path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		return w
	}
	materialPath := func(epoch uint64, tag []byte) string {
		return fmt.Sprintf("/api/epoch-material/%d?public_key=%s&auth=%s",
			epoch, pubKey.String(), hex.EncodeToString(tag))
	}

	epoch := ttp.CurrentEpoch()
	tag := crypto.EpochAuthTag(sharedKey, pubKey, epoch)

	w := get(materialPath(epoch, tag))
	require.Equal(t, http.StatusOK, w.Code)

	material, err := protocol.DecodeMessage[protocol.Signed[protocol.EpochMaterialMessage]](w.Body)
	require.NoError(t, err)
	msg, signer, err := material.Recover()
	require.NoError(t, err)
	require.True(t, signer.Equal(ttp.PublicKey()))
	require.Equal(t, epoch, msg.Epoch)

	// An enrolled key alone is not enough; the tag must verify.
	assert.Equal(t, http.StatusForbidden, get(materialPath(epoch, nil)).Code)
	assert.Equal(t, http.StatusForbidden, get(materialPath(epoch, []byte("bogus tag"))).Code)

	wrongEpochTag := crypto.EpochAuthTag(sharedKey, pubKey, epoch+1)
	assert.Equal(t, http.StatusForbidden, get(materialPath(epoch, wrongEpochTag)).Code)

	// An unenrolled key is refused outright.
	strangerPub, _, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	strangerPath := fmt.Sprintf("/api/epoch-material/%d?public_key=%s&auth=%s",
		epoch, strangerPub.String(), hex.EncodeToString(tag))
	assert.Equal(t, http.StatusForbidden, get(strangerPath).Code)
}
