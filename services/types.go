package services

import (
	"github.com/lingering/threshnet/crypto"
	"github.com/lingering/threshnet/protocol"
)

// ServiceConfig contains configuration shared by the HTTP services.
type ServiceConfig struct {
	ProtocolConfig            *protocol.Config
	AttestationProvider       TEEProvider
	AllowedMeasurementsSource MeasurementSource
	HTTPAddr                  string
	ServiceType               ServiceType
	RegistryURL               string
	TTPURL                    string
}

// ServiceType identifies the role a service registers as.
type ServiceType string

const (
	TTPService      ServiceType = "ttp"
	VerifierService ServiceType = "verifier"
	ClientService   ServiceType = "client"
)

// Valid returns true if the service type is recognized.
func (t ServiceType) Valid() bool {
	switch t {
	case TTPService, VerifierService, ClientService:
		return true
	}
	return false
}

// RegisteredService contains the registration data for a service instance.
// It doubles as the registration request payload; the registry stores the
// signed envelope so discovery responses stay verifiable end to end.
type RegisteredService struct {
	ServiceType  ServiceType `json:"service_type"`
	HTTPEndpoint string      `json:"http_endpoint"`
	PublicKey    string      `json:"public_key"`
	ExchangeKey  string      `json:"exchange_key"`
	Attestation  []byte      `json:"attestation,omitempty"`
}

// ParsePublicKey returns the parsed signing public key.
func (s *RegisteredService) ParsePublicKey() (crypto.PublicKey, error) {
	return crypto.NewPublicKeyFromString(s.PublicKey)
}

// ParseExchangeKey returns the parsed X25519 exchange key.
func (s *RegisteredService) ParseExchangeKey() (crypto.KemPublicKey, error) {
	return crypto.NewKemPublicKeyFromString(s.ExchangeKey)
}

// ServiceRegistrationResponse confirms registry registration.
type ServiceRegistrationResponse struct {
	Success   bool   `json:"success"`
	PublicKey string `json:"public_key,omitempty"`
	Message   string `json:"message,omitempty"`
}

// ServiceListResponse contains all registered services by type.
type ServiceListResponse struct {
	TTPs      []*protocol.Signed[RegisteredService] `json:"ttps"`
	Verifiers []*protocol.Signed[RegisteredService] `json:"verifiers"`
	Clients   []*protocol.Signed[RegisteredService] `json:"clients"`
}

// SubmissionRequest wraps a signed client submission for HTTP transport.
type SubmissionRequest struct {
	Submission *protocol.Signed[protocol.Submission] `json:"submission"`
}

// VerdictResponse wraps the verifier's signed verdict.
type VerdictResponse struct {
	Verdict *protocol.Signed[protocol.VerdictMessage] `json:"verdict"`
}

// EpochMaterialRequest wraps signed setup material pushed by the dealer.
type EpochMaterialRequest struct {
	Material *protocol.Signed[protocol.EpochMaterialMessage] `json:"material"`
}

// CurrentEpochResponse reports the dealer's current epoch.
type CurrentEpochResponse struct {
	Epoch uint64 `json:"epoch"`
}
