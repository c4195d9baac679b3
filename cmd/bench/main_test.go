package main

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// The rendered table must keep the structure and labels of the published
// results document.
func TestTableHeaderMatchesPublishedFormat(t *testing.T) {
	lines := strings.Split(tableHeader, "\n")
	require.Len(t, lines, 2)
	require.Equal(t, "| n | ttp_setup | client_submit | server_verify |", lines[0])
	require.Equal(t, "|---:|---:|---:|---:|", lines[1])
}

func TestTableRow(t *testing.T) {
	row := tableRow(32, "5.48–5.54 µs", "51.62–52.25 µs", "52.78–53.39 µs")
	require.Equal(t, "| 32 | 5.48–5.54 µs | 51.62–52.25 µs | 52.78–53.39 µs |", row)

	// Column count matches the header.
	require.Equal(t,
		strings.Count(strings.SplitN(tableHeader, "\n", 2)[0], "|"),
		strings.Count(row, "|"))
}

func TestFormatRange(t *testing.T) {
	require.Equal(t, "5.48–5.54 µs", formatRange(5480, 5540))
	require.Equal(t, "0.00–0.00 µs", formatRange(0, 0))

	cell := regexp.MustCompile(`^\d+\.\d{2}–\d+\.\d{2} µs$`)
	require.Regexp(t, cell, formatRange(855070, 869470))
	require.Equal(t, "855.07–869.47 µs", formatRange(855070, 869470))
}
