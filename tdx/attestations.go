// Package tdx produces and verifies Intel TDX DCAP attestation quotes.
// The dealer uses these to gate enrollment: a party is only admitted when
// its quote binds the enrollment keys and matches an allowed build.
package tdx

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/go-tdx-guest/abi"
	"github.com/google/go-tdx-guest/client"
	checkconfig "github.com/google/go-tdx-guest/proto/checkconfig"
	tdxproto "github.com/google/go-tdx-guest/proto/tdx"
	"github.com/google/go-tdx-guest/validate"
	"github.com/google/go-tdx-guest/verify"
)

// LocalProvider obtains quotes from the local TDX device via configfs.
// Verify returns the quote's measurement registers keyed by register
// index (0 is MRTD, 1-4 are RTMR0-RTMR3).
type LocalProvider struct{}

func (p *LocalProvider) AttestationType() string {
	return "dcap-tdx"
}

// Attest generates a quote binding the report data.
func (p *LocalProvider) Attest(reportData [64]byte) ([]byte, error) {
	qp := &client.LinuxConfigFsQuoteProvider{}
	return qp.GetRawQuote(reportData)
}

// Verify validates a quote and returns its measurements.
func (p *LocalProvider) Verify(quote []byte, expectedReportData [64]byte) (map[int][]byte, error) {
	return VerifyQuote(quote, expectedReportData[:])
}

// RemoteProvider requests quotes from a sidecar attestation service and
// verifies them locally. Used when the process itself has no /dev/tdx
// access, for example inside a container.
type RemoteProvider struct {
	URL     string
	Timeout time.Duration
}

func (p *RemoteProvider) AttestationType() string {
	return "dcap-tdx"
}

// Attest requests a quote for the report data from the remote service.
func (p *RemoteProvider) Attest(reportData [64]byte) ([]byte, error) {
	url := fmt.Sprintf("%s/attest/%s", p.URL, hex.EncodeToString(reportData[:]))

	ctx, cancel := context.WithTimeout(context.Background(), p.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating quote request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling quote provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("quote provider returned status %d: %s", resp.StatusCode, string(body))
	}

	return io.ReadAll(resp.Body)
}

// Verify validates a quote and returns its measurements.
func (p *RemoteProvider) Verify(quote []byte, expectedReportData [64]byte) (map[int][]byte, error) {
	return VerifyQuote(quote, expectedReportData[:])
}

// intelQeVendorID identifies quotes produced by Intel's quoting enclave.
const intelQeVendorID = "939a7233f79c4ca9940a0db3957f0607"

func mustDecodeHex(data string) []byte {
	decoded, err := hex.DecodeString(data)
	if err != nil {
		panic(err.Error())
	}
	return decoded
}

// VerifyQuote validates a DCAP quote against the expected report data and
// returns the measurement registers.
func VerifyQuote(rawQuote []byte, expectedReportData []byte) (map[int][]byte, error) {
	anyQuote, err := abi.QuoteToProto(rawQuote)
	if err != nil {
		return nil, fmt.Errorf("parsing quote: %w", err)
	}
	quote, ok := anyQuote.(*tdxproto.QuoteV4)
	if !ok {
		return nil, errors.New("quote is not a QuoteV4")
	}

	config := &checkconfig.Config{
		RootOfTrust: &checkconfig.RootOfTrust{
			CheckCrl:      true,
			GetCollateral: true,
		},
		Policy: &checkconfig.Policy{
			HeaderPolicy: &checkconfig.HeaderPolicy{
				MinimumQeSvn:  0,
				MinimumPceSvn: 0,
				QeVendorId:    mustDecodeHex(intelQeVendorID),
			},
			TdQuoteBodyPolicy: &checkconfig.TDQuoteBodyPolicy{
				TdAttributes: mustDecodeHex("0000001000000000"),
				ReportData:   expectedReportData,
			},
		},
	}

	options, err := verify.RootOfTrustToOptions(config.RootOfTrust)
	if err != nil {
		return nil, fmt.Errorf("converting root of trust to options: %w", err)
	}

	if err := verify.TdxQuote(quote, options); err != nil {
		return nil, fmt.Errorf("verifying quote signature chain: %w", err)
	}

	opts, err := validate.PolicyToOptions(config.Policy)
	if err != nil {
		return nil, fmt.Errorf("converting policy to options: %w", err)
	}

	if err := validate.TdxQuote(quote, opts); err != nil {
		return nil, fmt.Errorf("validating quote policy: %w", err)
	}

	body := quote.GetTdQuoteBody()
	return map[int][]byte{
		0: body.MrTd,
		1: body.Rtmrs[0],
		2: body.Rtmrs[1],
		3: body.Rtmrs[2],
		4: body.Rtmrs[3],
	}, nil
}

// DummyProvider stands in for TEE hardware in tests and demos. The quote
// is the report data itself.
type DummyProvider struct{}

func (p *DummyProvider) AttestationType() string {
	return "dummy-tdx"
}

// Attest echoes the report data as the quote.
func (p *DummyProvider) Attest(reportData [64]byte) ([]byte, error) {
	return bytes.Clone(reportData[:]), nil
}

// Verify checks the echoed report data and returns fixed measurements.
func (p *DummyProvider) Verify(quote []byte, expectedReportData [64]byte) (map[int][]byte, error) {
	if !bytes.Equal(quote, expectedReportData[:]) {
		return nil, errors.New("attestation mismatch")
	}

	return map[int][]byte{
		0: {0},
		1: {1},
		2: {2},
		3: {3},
		4: {4},
	}, nil
}
