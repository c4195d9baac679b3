package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/lingering/threshnet/protocol"
	"github.com/lingering/threshnet/services"
)

// Handler exposes the verifier over HTTP.
type Handler struct {
	verifier *Verifier
}

// NewHandler creates an HTTP handler around a Verifier.
func NewHandler(v *Verifier) *Handler {
	return &Handler{verifier: v}
}

// RegisterRoutes mounts the verifier API under /api.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/submit", h.handleSubmit)
		r.Get("/verdict/{epoch}/{msg_id}", h.handleVerdict)
		r.Post("/epoch-material", h.handleEpochMaterial)
		r.Post("/register-client", h.handleRegisterClient)
	})
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	req, err := protocol.DecodeMessage[services.SubmissionRequest](r.Body)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to parse request: %v", err), http.StatusBadRequest)
		return
	}

	if req.Submission == nil {
		http.Error(w, "missing submission", http.StatusBadRequest)
		return
	}

	verdict, err := h.verifier.ProcessSubmission(req.Submission)
	switch {
	case errors.Is(err, ErrUnknownClient):
		http.Error(w, err.Error(), http.StatusForbidden)
		return
	case errors.Is(err, ErrUnknownEpoch):
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	case errors.Is(err, protocol.ErrInvalidSubmission):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(&services.VerdictResponse{Verdict: verdict})
}

func (h *Handler) handleVerdict(w http.ResponseWriter, r *http.Request) {
	epoch, err := strconv.ParseUint(chi.URLParam(r, "epoch"), 10, 64)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid epoch: %v", err), http.StatusBadRequest)
		return
	}
	msgID, err := strconv.ParseUint(chi.URLParam(r, "msg_id"), 10, 64)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid message id: %v", err), http.StatusBadRequest)
		return
	}

	verdict, err := h.verifier.Verdict(epoch, msgID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(&services.VerdictResponse{Verdict: verdict})
}

func (h *Handler) handleEpochMaterial(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	req, err := protocol.DecodeMessage[services.EpochMaterialRequest](r.Body)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to parse request: %v", err), http.StatusBadRequest)
		return
	}

	if req.Material == nil {
		http.Error(w, "missing material", http.StatusBadRequest)
		return
	}

	if err := h.verifier.SetEpochMaterial(req.Material); err != nil {
		http.Error(w, err.Error(), http.StatusForbidden)
		return
	}

	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleRegisterClient(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	signed, err := protocol.DecodeMessage[protocol.Signed[services.RegisteredService]](r.Body)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to parse request: %v", err), http.StatusBadRequest)
		return
	}

	svc, signer, err := signed.Recover()
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid signature: %v", err), http.StatusForbidden)
		return
	}
	if svc.ServiceType != services.ClientService {
		http.Error(w, "only clients may register here", http.StatusBadRequest)
		return
	}
	if signer.String() != svc.PublicKey {
		http.Error(w, "signer does not match claimed public key", http.StatusForbidden)
		return
	}

	h.verifier.RegisterClient(signer)

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(&services.ServiceRegistrationResponse{
		Success:   true,
		PublicKey: signer.String(),
	})
}
