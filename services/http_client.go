package services

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/lingering/threshnet/crypto"
	"github.com/lingering/threshnet/protocol"
)

func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}

func postJSON[Req, Resp any](client *http.Client, url string, body *Req) (*Resp, error) {
	serialized, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	resp, err := client.Post(url, "application/json", bytes.NewReader(serialized))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%s returned status %d: %s", url, resp.StatusCode, msg)
	}

	return protocol.DecodeMessage[Resp](resp.Body)
}

func getJSON[Resp any](client *http.Client, url string) (*Resp, error) {
	resp, err := client.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%s returned status %d: %s", url, resp.StatusCode, msg)
	}

	return protocol.DecodeMessage[Resp](resp.Body)
}

// RegistryClient talks to the registry's public API.
type RegistryClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewRegistryClient creates a client for the registry at baseURL.
func NewRegistryClient(baseURL string) *RegistryClient {
	return &RegistryClient{
		BaseURL:    baseURL,
		HTTPClient: defaultHTTPClient(),
	}
}

// Register signs and submits a service registration.
func (c *RegistryClient) Register(signingKey crypto.PrivateKey, svc *RegisteredService) (*ServiceRegistrationResponse, error) {
	signed, err := protocol.NewSigned(signingKey, svc)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/api/register/%s", c.BaseURL, svc.ServiceType)
	return postJSON[protocol.Signed[RegisteredService], ServiceRegistrationResponse](c.HTTPClient, url, signed)
}

// Services returns all registered services grouped by type.
func (c *RegistryClient) Services() (*ServiceListResponse, error) {
	return getJSON[ServiceListResponse](c.HTTPClient, c.BaseURL+"/api/services")
}

// ServicesByType returns registered services of one type.
func (c *RegistryClient) ServicesByType(serviceType ServiceType) ([]*protocol.Signed[RegisteredService], error) {
	result, err := getJSON[[]*protocol.Signed[RegisteredService]](c.HTTPClient, fmt.Sprintf("%s/api/services/%s", c.BaseURL, serviceType))
	if err != nil {
		return nil, err
	}
	return *result, nil
}

// Config fetches the deployment-wide protocol configuration.
func (c *RegistryClient) Config() (*protocol.Config, error) {
	return getJSON[protocol.Config](c.HTTPClient, c.BaseURL+"/api/config")
}

// TTPClient talks to the dealer's API.
type TTPClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewTTPClient creates a client for the dealer at baseURL.
func NewTTPClient(baseURL string) *TTPClient {
	return &TTPClient{
		BaseURL:    baseURL,
		HTTPClient: defaultHTTPClient(),
	}
}

// Enroll signs and submits an enrollment request.
func (c *TTPClient) Enroll(signingKey crypto.PrivateKey, req *protocol.EnrollmentRequest) (*protocol.EnrollmentResponse, error) {
	signed, err := protocol.NewSigned(signingKey, req)
	if err != nil {
		return nil, err
	}
	return postJSON[protocol.Signed[protocol.EnrollmentRequest], protocol.EnrollmentResponse](c.HTTPClient, c.BaseURL+"/api/enroll", signed)
}

// EpochMaterial fetches signed setup material for an epoch. The auth tag
// is the caller's crypto.EpochAuthTag under its enrollment shared secret;
// the dealer serves only parties that present a valid tag.
func (c *TTPClient) EpochMaterial(publicKey crypto.PublicKey, epoch uint64, authTag []byte) (*protocol.Signed[protocol.EpochMaterialMessage], error) {
	url := fmt.Sprintf("%s/api/epoch-material/%d?public_key=%s&auth=%s",
		c.BaseURL, epoch, publicKey.String(), hex.EncodeToString(authTag))
	return getJSON[protocol.Signed[protocol.EpochMaterialMessage]](c.HTTPClient, url)
}

// CurrentEpoch returns the dealer's current epoch number.
func (c *TTPClient) CurrentEpoch() (uint64, error) {
	resp, err := getJSON[CurrentEpochResponse](c.HTTPClient, c.BaseURL+"/api/current-epoch")
	if err != nil {
		return 0, err
	}
	return resp.Epoch, nil
}

// VerifierClient talks to a verifier's API.
type VerifierClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewVerifierClient creates a client for the verifier at baseURL.
func NewVerifierClient(baseURL string) *VerifierClient {
	return &VerifierClient{
		BaseURL:    baseURL,
		HTTPClient: defaultHTTPClient(),
	}
}

// Submit sends a signed submission and returns the signed verdict.
func (c *VerifierClient) Submit(submission *protocol.Signed[protocol.Submission]) (*VerdictResponse, error) {
	req := &SubmissionRequest{Submission: submission}
	return postJSON[SubmissionRequest, VerdictResponse](c.HTTPClient, c.BaseURL+"/api/submit", req)
}

// Verdict fetches a previously issued verdict.
func (c *VerifierClient) Verdict(epoch, msgID uint64) (*VerdictResponse, error) {
	url := fmt.Sprintf("%s/api/verdict/%d/%d", c.BaseURL, epoch, msgID)
	return getJSON[VerdictResponse](c.HTTPClient, url)
}

// RegisterClient announces a querying client to the verifier so its
// submissions are accepted.
func (c *VerifierClient) RegisterClient(signingKey crypto.PrivateKey) (*ServiceRegistrationResponse, error) {
	publicKey, err := signingKey.PublicKey()
	if err != nil {
		return nil, err
	}
	signed, err := protocol.NewSigned(signingKey, &RegisteredService{
		ServiceType: ClientService,
		PublicKey:   publicKey.String(),
	})
	if err != nil {
		return nil, err
	}
	return postJSON[protocol.Signed[RegisteredService], ServiceRegistrationResponse](c.HTTPClient, c.BaseURL+"/api/register-client", signed)
}
