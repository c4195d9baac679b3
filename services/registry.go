package services

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/lingering/threshnet/metrics"
	"github.com/lingering/threshnet/protocol"
)

// TEEProvider abstracts attestation generation and verification.
type TEEProvider interface {
	AttestationType() string
	Attest(reportData [64]byte) ([]byte, error)
	Verify(quote []byte, expectedReportData [64]byte) (map[int][]byte, error)
}

// Measurements maps register indices to measurement values extracted from
// a verified quote.
type Measurements map[int][]byte

// RegistryConfig configures attestation gating for the registry.
type RegistryConfig struct {
	MeasurementSource   MeasurementSource
	AttestationProvider TEEProvider
	Store               RegistryStore
	Log                 *slog.Logger
}

// Registry manages discovery and registration of protocol services. It
// serves the deployment-wide protocol configuration and, when configured
// with an attestation provider, admits only attested services.
type Registry struct {
	config      *RegistryConfig
	protoConfig *protocol.Config
	log         *slog.Logger

	mu       sync.RWMutex
	services map[ServiceType]map[string]*protocol.Signed[RegisteredService]
}

// NewRegistry creates a registry and loads persisted registrations from
// the configured store.
func NewRegistry(config *RegistryConfig, protoConfig *protocol.Config) (*Registry, error) {
	log := config.Log
	if log == nil {
		log = slog.Default()
	}

	r := &Registry{
		config:      config,
		protoConfig: protoConfig,
		log:         log,
		services: map[ServiceType]map[string]*protocol.Signed[RegisteredService]{
			TTPService:      make(map[string]*protocol.Signed[RegisteredService]),
			VerifierService: make(map[string]*protocol.Signed[RegisteredService]),
			ClientService:   make(map[string]*protocol.Signed[RegisteredService]),
		},
	}

	if config.Store != nil {
		persisted, err := config.Store.LoadAllServices()
		if err != nil {
			return nil, fmt.Errorf("loading persisted services: %w", err)
		}
		for svcType, typeMap := range persisted {
			for pk, signed := range typeMap {
				r.services[svcType][pk] = signed
			}
		}
	}

	return r, nil
}

// RegisterAdminRoutes mounts management endpoints. These must sit behind
// operator authentication.
func (r *Registry) RegisterAdminRoutes(router chi.Router) {
	router.Post("/register/{service_type}", r.handleRegister)
	router.Delete("/unregister/{public_key}", r.handleUnregister)
}

// RegisterPublicRoutes mounts the discovery endpoints.
func (r *Registry) RegisterPublicRoutes(router chi.Router) {
	router.Post("/register/{service_type}", r.handleRegisterPublic)
	router.Get("/services", r.handleGetServices)
	router.Get("/services/{type}", r.handleGetServicesByType)
	router.Get("/config", r.handleGetConfig)
}

// RegisterRoutes mounts the public API under /api.
func (r *Registry) RegisterRoutes(router chi.Router) {
	router.Route("/api", r.RegisterPublicRoutes)
}

func (r *Registry) handleRegisterPublic(w http.ResponseWriter, req *http.Request) {
	// Unauthenticated registration is limited to clients; dealers and
	// verifiers go through the admin API.
	serviceType := ServiceType(chi.URLParam(req, "service_type"))
	if serviceType != ClientService {
		http.Error(w, "only clients may self-register", http.StatusForbidden)
		return
	}
	r.handleRegister(w, req)
}

func (r *Registry) handleRegister(w http.ResponseWriter, req *http.Request) {
	serviceType := ServiceType(chi.URLParam(req, "service_type"))
	if !serviceType.Valid() {
		http.Error(w, "invalid service type", http.StatusBadRequest)
		return
	}

	signedReq, err := protocol.DecodeMessage[protocol.Signed[RegisteredService]](req.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	regReq, signer, err := signedReq.Recover()
	if err != nil {
		http.Error(w, fmt.Errorf("invalid signature: %w", err).Error(), http.StatusForbidden)
		return
	}

	if regReq.ServiceType != serviceType {
		http.Error(w, fmt.Sprintf("service type mismatch: URL says %s, body says %s", serviceType, regReq.ServiceType), http.StatusBadRequest)
		return
	}

	pubKey, err := regReq.ParsePublicKey()
	if err != nil {
		http.Error(w, "invalid public key", http.StatusBadRequest)
		return
	}

	if signer.String() != pubKey.String() {
		http.Error(w, "signer does not match claimed public key", http.StatusForbidden)
		return
	}

	if _, err := regReq.ParseExchangeKey(); err != nil {
		http.Error(w, "invalid exchange key", http.StatusBadRequest)
		return
	}

	if r.config != nil && r.config.AttestationProvider != nil {
		if _, err := VerifyRegistration(r.config.MeasurementSource, r.config.AttestationProvider, signedReq); err != nil {
			http.Error(w, fmt.Sprintf("attestation verification failed: %v", err), http.StatusForbidden)
			return
		}
	}

	r.mu.Lock()
	r.services[serviceType][pubKey.String()] = signedReq
	r.mu.Unlock()

	if r.config != nil && r.config.Store != nil {
		if err := r.config.Store.SaveService(signedReq); err != nil {
			r.log.Error("Failed to persist service registration", "err", err)
		}
	}

	metrics.IncEnrollment()
	r.log.Info("Service registered", "type", serviceType, "publicKey", pubKey.String())

	json.NewEncoder(w).Encode(&ServiceRegistrationResponse{
		Success:   true,
		PublicKey: pubKey.String(),
	})
}

func (r *Registry) handleUnregister(w http.ResponseWriter, req *http.Request) {
	publicKey := chi.URLParam(req, "public_key")

	r.mu.Lock()
	for _, typeMap := range r.services {
		delete(typeMap, publicKey)
	}
	r.mu.Unlock()

	if r.config != nil && r.config.Store != nil {
		if err := r.config.Store.DeleteService(publicKey); err != nil {
			r.log.Error("Failed to delete persisted service", "err", err)
		}
	}

	w.WriteHeader(http.StatusOK)
}

func (r *Registry) handleGetServices(w http.ResponseWriter, req *http.Request) {
	r.mu.RLock()
	resp := &ServiceListResponse{
		TTPs:      r.collectServices(TTPService),
		Verifiers: r.collectServices(VerifierService),
		Clients:   r.collectServices(ClientService),
	}
	r.mu.RUnlock()

	json.NewEncoder(w).Encode(resp)
}

func (r *Registry) handleGetServicesByType(w http.ResponseWriter, req *http.Request) {
	svcType := ServiceType(chi.URLParam(req, "type"))
	if !svcType.Valid() {
		http.Error(w, "invalid service type", http.StatusBadRequest)
		return
	}

	r.mu.RLock()
	services := r.collectServices(svcType)
	r.mu.RUnlock()

	json.NewEncoder(w).Encode(services)
}

func (r *Registry) handleGetConfig(w http.ResponseWriter, req *http.Request) {
	json.NewEncoder(w).Encode(r.protoConfig)
}

func (r *Registry) collectServices(serviceType ServiceType) []*protocol.Signed[RegisteredService] {
	typeMap := r.services[serviceType]
	result := make([]*protocol.Signed[RegisteredService], 0, len(typeMap))
	for _, svc := range typeMap {
		result = append(result, svc)
	}
	return result
}

// ReportDataForService computes the attestation report data binding a
// service's keys and endpoint.
func ReportDataForService(exchangeKey string, httpEndpoint string, pubKey string) [64]byte {
	hash := sha256.New()
	hash.Write([]byte(exchangeKey))
	hash.Write([]byte(httpEndpoint))
	hash.Write([]byte(pubKey))

	var reportData [64]byte
	copy(reportData[:], hash.Sum(nil))
	return reportData
}

// AttestServiceRegistration generates attestation evidence binding the
// registration payload. Returns nil evidence without a provider.
func AttestServiceRegistration(provider TEEProvider, r *RegisteredService) ([]byte, error) {
	if provider == nil {
		return nil, nil
	}
	reportData := ReportDataForService(r.ExchangeKey, r.HTTPEndpoint, r.PublicKey)
	return provider.Attest(reportData)
}

// VerifyRegistration checks the signature and attestation of a discovered
// service against the allowed measurement sets.
func VerifyRegistration(source MeasurementSource, provider TEEProvider, signed *protocol.Signed[RegisteredService]) (Measurements, error) {
	svc, signer, err := signed.Recover()
	if err != nil {
		return nil, err
	}
	if signer.String() != svc.PublicKey {
		return nil, errors.New("signer does not match registered public key")
	}

	if provider == nil {
		return nil, nil
	}
	if len(svc.Attestation) == 0 {
		return nil, errors.New("no attestation data")
	}

	reportData := ReportDataForService(svc.ExchangeKey, svc.HTTPEndpoint, svc.PublicKey)
	measurements, err := provider.Verify(svc.Attestation, reportData)
	if err != nil {
		return nil, fmt.Errorf("could not verify attestation: %w", err)
	}

	if source != nil {
		allowed, err := source.GetAllowedMeasurements()
		if err != nil {
			return nil, fmt.Errorf("could not fetch allowed measurements: %w", err)
		}

		if _, err := VerifyMeasurementsMatch(allowed, measurements); err != nil {
			return nil, fmt.Errorf("attestation is not allowed: %w", err)
		}
	}

	return measurements, nil
}
