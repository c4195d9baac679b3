// Command bench measures the three protocol phases over synthetic
// databases and renders the results as a markdown table.
//
// Each phase is timed with testing.Benchmark several times; the table
// reports the min and max of the per-op means, in microseconds, for
// database sizes 32, 128 and 512.
//
// # Usage
//
//	go run ./cmd/bench
package main

import (
	"flag"
	"fmt"
	"os"
	"testing"

	"github.com/lingering/threshnet/protocol"
	"github.com/lingering/threshnet/testutil"
)

const (
	benchSeed  = 12345
	benchMsgID = 77
)

var benchSizes = []int{32, 128, 512}

func main() {
	var (
		ell     = flag.Int("ell", 16, "chunk length in bits")
		chunks  = flag.Int("chunks", 16, "number of chunks per fingerprint")
		epsilon = flag.Int("epsilon", 6, "per-chunk match threshold")
		runs    = flag.Int("runs", 5, "benchmark repetitions per cell")
	)
	flag.Parse()

	params, err := protocol.NewParams(*ell, *chunks, *epsilon)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid parameters: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Parameters: ell=%d chunks=%d epsilon=%d (lambda=%d bits)\n\n",
		*ell, *chunks, *epsilon, params.Lambda())
	fmt.Println(tableHeader)

	for _, n := range benchSizes {
		database := testutil.SynthDatabase(n, params.Lambda())
		query := testutil.SynthQuery(params.Lambda())

		setup, err := protocol.Setup(database, params, benchSeed)
		if err != nil {
			fmt.Fprintf(os.Stderr, "setup failed for n=%d: %v\n", n, err)
			os.Exit(1)
		}
		submission, err := protocol.ClientSubmit(setup, query, benchMsgID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "submit failed for n=%d: %v\n", n, err)
			os.Exit(1)
		}

		setupRange := measure(*runs, func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				if _, err := protocol.Setup(database, params, benchSeed); err != nil {
					b.Fatal(err)
				}
			}
		})
		submitRange := measure(*runs, func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				if _, err := protocol.ClientSubmit(setup, query, benchMsgID); err != nil {
					b.Fatal(err)
				}
			}
		})
		verifyRange := measure(*runs, func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				if _, err := protocol.VerifyAndDecide(setup, submission); err != nil {
					b.Fatal(err)
				}
			}
		})

		fmt.Println(tableRow(n, setupRange, submitRange, verifyRange))
	}
}

// tableHeader matches the published results table layout.
const tableHeader = "| n | ttp_setup | client_submit | server_verify |\n|---:|---:|---:|---:|"

func tableRow(n int, setup, submit, verify string) string {
	return fmt.Sprintf("| %d | %s | %s | %s |", n, setup, submit, verify)
}

// formatRange renders a nanosecond interval as microseconds, in the cell
// format of the published table.
func formatRange(minNs, maxNs float64) string {
	return fmt.Sprintf("%.2f–%.2f µs", minNs/1000, maxNs/1000)
}

// measure runs fn several times and returns the min and max of the
// per-op means as a microsecond range.
func measure(runs int, fn func(b *testing.B)) string {
	var minNs, maxNs float64
	for i := 0; i < runs; i++ {
		result := testing.Benchmark(fn)
		ns := float64(result.NsPerOp())
		if i == 0 || ns < minNs {
			minNs = ns
		}
		if ns > maxNs {
			maxNs = ns
		}
	}
	return formatRange(minNs, maxNs)
}
