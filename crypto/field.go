package crypto

import "math/bits"

// FieldPrime is the Mersenne prime 2^61 - 1 over which all protocol
// responses are computed.
const FieldPrime uint64 = (1 << 61) - 1

// FieldGenerator is the fixed generator of the multiplicative group mod
// FieldPrime used for the group-element encoding of masked responses.
const FieldGenerator uint64 = 5

// FieldAdd returns (a + b) mod FieldPrime. Inputs must already be reduced.
func FieldAdd(a, b uint64) uint64 {
	s := a + b
	if s >= FieldPrime {
		s -= FieldPrime
	}
	return s
}

// FieldSub returns (a - b) mod FieldPrime. Inputs must already be reduced.
func FieldSub(a, b uint64) uint64 {
	if a >= b {
		return a - b
	}
	return a + FieldPrime - b
}

// FieldMul returns (a * b) mod FieldPrime. Inputs must already be reduced.
func FieldMul(a, b uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	// hi < 2^58 < FieldPrime, so Div64 cannot panic.
	_, rem := bits.Div64(hi, lo, FieldPrime)
	return rem
}

// FieldReduce maps an arbitrary uint64 into [0, FieldPrime).
func FieldReduce(x uint64) uint64 {
	return x % FieldPrime
}

// XorShift64 is the deterministic generator used for epoch setup material.
// Both the trusted dealer and auditors re-derive identical gammas and masks
// from the same seed, so the exact sequence is part of the protocol.
type XorShift64 struct {
	state uint64
}

// NewXorShift64 creates a generator from a seed. A zero seed is replaced
// with a fixed nonzero constant since xorshift has a zero fixed point.
func NewXorShift64(seed uint64) *XorShift64 {
	if seed == 0 {
		seed = 0x9e3779b97f4a7c15
	}
	return &XorShift64{state: seed}
}

// Next returns the next raw 64-bit value.
func (g *XorShift64) Next() uint64 {
	x := g.state
	x ^= x << 13
	x ^= x >> 7
	x ^= x << 17
	g.state = x
	return x
}

// NextField returns a field element in [0, FieldPrime).
func (g *XorShift64) NextField() uint64 {
	return g.Next() % FieldPrime
}

// NextFieldNonzero returns a field element in [1, FieldPrime).
func (g *XorShift64) NextFieldNonzero() uint64 {
	return 1 + g.Next()%(FieldPrime-1)
}
