package services

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVerifyMeasurementsMatch(t *testing.T) {
	allowed := PublishedMeasurements{
		{
			MeasurementID: "build-a",
			Measurements: map[int]MeasurementValue{
				0: {Expected: "aa"},
				1: {Expected: "bb"},
			},
		},
		{
			MeasurementID: "build-b",
			Measurements: map[int]MeasurementValue{
				0: {Expected: "cc"},
			},
		},
	}

	entry, err := VerifyMeasurementsMatch(allowed, Measurements{0: {0xaa}, 1: {0xbb}})
	require.NoError(t, err)
	require.Equal(t, "build-a", entry.MeasurementID)

	// Extra registers beyond the expected set are ignored.
	entry, err = VerifyMeasurementsMatch(allowed, Measurements{0: {0xcc}, 4: {0x04}})
	require.NoError(t, err)
	require.Equal(t, "build-b", entry.MeasurementID)

	_, err = VerifyMeasurementsMatch(allowed, Measurements{0: {0xdd}})
	require.Error(t, err)

	_, err = VerifyMeasurementsMatch(allowed, Measurements{1: {0xbb}})
	require.Error(t, err)
}

func TestVerifyMeasurementsMatchDecodesExpectedValues(t *testing.T) {
	// Hex case differences do not defeat a match; the comparison runs
	// over decoded bytes.
	allowed := PublishedMeasurements{
		{MeasurementID: "upper", Measurements: map[int]MeasurementValue{0: {Expected: "AABB"}}},
	}
	entry, err := VerifyMeasurementsMatch(allowed, Measurements{0: {0xaa, 0xbb}})
	require.NoError(t, err)
	require.Equal(t, "upper", entry.MeasurementID)

	// An entry with undecodable expected values never matches.
	broken := PublishedMeasurements{
		{MeasurementID: "broken", Measurements: map[int]MeasurementValue{0: {Expected: "zz"}}},
	}
	_, err = VerifyMeasurementsMatch(broken, Measurements{0: {0xaa}})
	require.Error(t, err)
}

func TestDemoMeasurementSourceMatchesDummyProvider(t *testing.T) {
	allowed, err := DemoMeasurementSource().GetAllowedMeasurements()
	require.NoError(t, err)

	actual := Measurements{0: {0}, 1: {1}, 2: {2}, 3: {3}, 4: {4}}
	entry, err := VerifyMeasurementsMatch(allowed, actual)
	require.NoError(t, err)
	require.Equal(t, "demo-dummy-attestation", entry.MeasurementID)
}

func TestMeasurementEntryToMeasurements(t *testing.T) {
	entry := MeasurementEntry{
		Measurements: map[int]MeasurementValue{
			0: {Expected: "00ff"},
		},
	}

	m, err := entry.ToMeasurements()
	require.NoError(t, err)
	require.Equal(t, []byte{0x00, 0xff}, m[0])

	entry.Measurements[1] = MeasurementValue{Expected: "zz"}
	_, err = entry.ToMeasurements()
	require.Error(t, err)
}

func TestRemoteMeasurementSource(t *testing.T) {
	published := PublishedMeasurements{
		{MeasurementID: "remote-build", Measurements: map[int]MeasurementValue{0: {Expected: "aa"}}},
	}

	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		json.NewEncoder(w).Encode(published)
	}))
	defer srv.Close()

	source := NewRemoteMeasurementSource(srv.URL)

	got, err := source.GetAllowedMeasurements()
	require.NoError(t, err)
	require.Equal(t, published, got)

	// Second fetch is served from cache.
	_, err = source.GetAllowedMeasurements()
	require.NoError(t, err)
	require.Equal(t, 1, calls)
}
