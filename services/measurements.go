package services

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// PublishedMeasurements lists attestation measurements for released
// builds. The registry fetches these from a public URL and admits a
// service only when its quote matches one entry.
//
// JSON format:
//
//	[
//	  {
//	    "measurement_id": "threshnet-v0.1.0-tdx-abc123...",
//	    "measurements": {
//	      0: {"expected": "hex-encoded-mrtd..."},
//	      1: {"expected": "hex-encoded-rtmr0..."}
//	    }
//	  }
//	]
//
// Keys in "measurements" are register indices. A quote is accepted when
// it matches any entry in the array.
type PublishedMeasurements []MeasurementEntry

// MeasurementEntry represents a single acceptable build configuration.
type MeasurementEntry struct {
	MeasurementID string                   `json:"measurement_id"`
	Measurements  map[int]MeasurementValue `json:"measurements"`
}

// MeasurementValue holds an expected measurement value.
type MeasurementValue struct {
	Expected string `json:"expected"`
}

// ToMeasurements decodes the entry's expected values into the internal
// register-indexed format.
func (e *MeasurementEntry) ToMeasurements() (Measurements, error) {
	result := make(Measurements, len(e.Measurements))
	for idx, mv := range e.Measurements {
		val, err := hex.DecodeString(mv.Expected)
		if err != nil {
			return nil, fmt.Errorf("invalid hex for index %d: %w", idx, err)
		}
		result[idx] = val
	}
	return result, nil
}

// matches reports whether every register the entry pins has the expected
// value in actual. Registers the entry does not mention are ignored, and
// an entry with undecodable expected values never matches.
func (e *MeasurementEntry) matches(actual Measurements) bool {
	expected, err := e.ToMeasurements()
	if err != nil {
		return false
	}
	for idx, want := range expected {
		if !bytes.Equal(want, actual[idx]) {
			return false
		}
	}
	return true
}

// MeasurementSource provides expected measurements for attestation
// verification.
type MeasurementSource interface {
	// GetAllowedMeasurements returns all acceptable measurement sets.
	GetAllowedMeasurements() (PublishedMeasurements, error)
}

// StaticMeasurementSource serves measurements from a fixed configuration.
// Used in tests and demo deployments where measurements are known in
// advance.
type StaticMeasurementSource struct {
	Measurements PublishedMeasurements
}

// NewStaticMeasurementSource creates a source with predefined measurements.
func NewStaticMeasurementSource(measurements PublishedMeasurements) *StaticMeasurementSource {
	return &StaticMeasurementSource{Measurements: measurements}
}

// GetAllowedMeasurements returns the static measurement sets.
func (s *StaticMeasurementSource) GetAllowedMeasurements() (PublishedMeasurements, error) {
	return s.Measurements, nil
}

// dummyRegisterCount is the number of registers tdx.DummyProvider reports.
const dummyRegisterCount = 5

// DemoMeasurementSource returns a source that accepts dummy attestations.
// The values match what tdx.DummyProvider produces. Only use in demo and
// testing environments.
func DemoMeasurementSource() *StaticMeasurementSource {
	values := make(map[int]MeasurementValue, dummyRegisterCount)
	for i := 0; i < dummyRegisterCount; i++ {
		values[i] = MeasurementValue{Expected: hex.EncodeToString([]byte{byte(i)})}
	}
	return NewStaticMeasurementSource(PublishedMeasurements{
		{MeasurementID: "demo-dummy-attestation", Measurements: values},
	})
}

// remoteCacheTTL bounds how long fetched measurements stay cached before
// the source re-fetches them.
const remoteCacheTTL = time.Hour

// RemoteMeasurementSource fetches measurements from a URL and caches them.
type RemoteMeasurementSource struct {
	URL        string
	HTTPClient *http.Client

	mu        sync.Mutex
	cached    PublishedMeasurements
	fetchedAt time.Time
}

// NewRemoteMeasurementSource creates a source that fetches from a URL.
func NewRemoteMeasurementSource(url string) *RemoteMeasurementSource {
	return &RemoteMeasurementSource{
		URL:        url,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// GetAllowedMeasurements returns the cached measurement sets, re-fetching
// once the cache has expired.
func (r *RemoteMeasurementSource) GetAllowedMeasurements() (PublishedMeasurements, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cached != nil && time.Since(r.fetchedAt) < remoteCacheTTL {
		return r.cached, nil
	}

	resp, err := r.HTTPClient.Get(r.URL)
	if err != nil {
		return nil, fmt.Errorf("fetching measurements: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("measurements returned %d: %s", resp.StatusCode, body)
	}

	var published PublishedMeasurements
	if err := json.NewDecoder(resp.Body).Decode(&published); err != nil {
		return nil, fmt.Errorf("decoding measurements: %w", err)
	}

	r.cached = published
	r.fetchedAt = time.Now()
	return published, nil
}

// VerifyMeasurementsMatch returns the first allowed entry matching the
// actual measurements extracted from a verified quote.
func VerifyMeasurementsMatch(allowed PublishedMeasurements, actual Measurements) (MeasurementEntry, error) {
	for _, entry := range allowed {
		if entry.matches(actual) {
			return entry, nil
		}
	}
	return MeasurementEntry{}, errors.New("measurements do not match any allowed set")
}
