package protocol

import (
	"fmt"
	"testing"
)

// Benchmark fixtures mirror the published measurements: 256-bit
// fingerprints split into 16 chunks of 16 bits with threshold 6, over
// synthetic databases of 32, 128 and 512 items.

func benchParams(b *testing.B) Params {
	b.Helper()
	params, err := NewParams(16, 16, 6)
	if err != nil {
		b.Fatal(err)
	}
	return params
}

func benchDatabase(n, lambda int) [][]byte {
	db := make([][]byte, n)
	for i := range db {
		item := make([]byte, lambda)
		for j := range item {
			item[j] = byte((i*131 + j*17 + 3) % 2)
		}
		db[i] = item
	}
	return db
}

func benchQuery(lambda int) []byte {
	q := make([]byte, lambda)
	for i := range q {
		q[i] = byte((i*7 + 11) % 2)
	}
	return q
}

func BenchmarkTTPSetup(b *testing.B) {
	params := benchParams(b)
	for _, n := range []int{32, 128, 512} {
		db := benchDatabase(n, params.Lambda())
		b.Run(fmt.Sprintf("n=%d", n), func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				if _, err := Setup(db, params, 12345); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkClientSubmit(b *testing.B) {
	params := benchParams(b)
	query := benchQuery(params.Lambda())
	for _, n := range []int{32, 128, 512} {
		setup, err := Setup(benchDatabase(n, params.Lambda()), params, 12345)
		if err != nil {
			b.Fatal(err)
		}
		b.Run(fmt.Sprintf("n=%d", n), func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				if _, err := ClientSubmit(setup, query, 77); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkServerVerify(b *testing.B) {
	params := benchParams(b)
	query := benchQuery(params.Lambda())
	for _, n := range []int{32, 128, 512} {
		setup, err := Setup(benchDatabase(n, params.Lambda()), params, 12345)
		if err != nil {
			b.Fatal(err)
		}
		sub, err := ClientSubmit(setup, query, 77)
		if err != nil {
			b.Fatal(err)
		}
		b.Run(fmt.Sprintf("n=%d", n), func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				if _, err := VerifyAndDecide(setup, sub); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
