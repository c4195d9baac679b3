package ttp

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/lingering/threshnet/protocol"
	"github.com/lingering/threshnet/services"
)

// Handler exposes the TTP over HTTP.
type Handler struct {
	ttp *TTP
}

// NewHandler creates an HTTP handler around a TTP.
func NewHandler(t *TTP) *Handler {
	return &Handler{ttp: t}
}

// RegisterRoutes mounts the TTP API under /api.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/enroll", h.handleEnroll)
		r.Get("/epoch-material/{epoch}", h.handleEpochMaterial)
		r.Get("/current-epoch", h.handleCurrentEpoch)
		r.Get("/config", h.handleConfig)
	})
}

func (h *Handler) handleEnroll(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	signed, err := protocol.DecodeMessage[protocol.Signed[protocol.EnrollmentRequest]](r.Body)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to parse request: %v", err), http.StatusBadRequest)
		return
	}

	resp, err := h.ttp.Enroll(signed)
	if err != nil {
		http.Error(w, err.Error(), http.StatusForbidden)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (h *Handler) handleEpochMaterial(w http.ResponseWriter, r *http.Request) {
	epoch, err := strconv.ParseUint(chi.URLParam(r, "epoch"), 10, 64)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid epoch: %v", err), http.StatusBadRequest)
		return
	}

	// The tag is an HMAC over the epoch under the enrollment shared
	// secret, so only a party that completed enrollment can fetch
	// material for its key.
	publicKey := r.URL.Query().Get("public_key")
	authTag, err := hex.DecodeString(r.URL.Query().Get("auth"))
	if err != nil || !h.ttp.VerifyEpochAuth(publicKey, epoch, authTag) {
		http.Error(w, "enrollment authentication failed", http.StatusForbidden)
		return
	}

	// Material is only served for the current epoch and its direct
	// neighbors, so a lagging party can still finish a submission.
	current := h.ttp.CurrentEpoch()
	if epoch+1 < current || epoch > current+1 {
		http.Error(w, fmt.Sprintf("epoch %d out of bounds, current epoch %d", epoch, current), http.StatusBadRequest)
		return
	}

	material, err := h.ttp.SignedEpochMaterial(epoch)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(material)
}

func (h *Handler) handleCurrentEpoch(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(&services.CurrentEpochResponse{Epoch: h.ttp.CurrentEpoch()})
}

func (h *Handler) handleConfig(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.ttp.cfg.ProtocolConfig)
}
