package tdx

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDummyProviderRoundtrip(t *testing.T) {
	provider := &DummyProvider{}
	require.Equal(t, "dummy-tdx", provider.AttestationType())

	var reportData [64]byte
	copy(reportData[:], "binding data")

	quote, err := provider.Attest(reportData)
	require.NoError(t, err)

	measurements, err := provider.Verify(quote, reportData)
	require.NoError(t, err)
	require.Len(t, measurements, 5)
	require.Equal(t, []byte{0}, measurements[0])

	var other [64]byte
	other[0] = 1
	_, err = provider.Verify(quote, other)
	require.Error(t, err)
}
