package crypto

import (
	"math/big"
	"testing"
)

var bigPrime = new(big.Int).SetUint64(FieldPrime)

func FuzzFieldAdd(f *testing.F) {
	f.Add(uint64(0), uint64(0))
	f.Add(uint64(1), FieldPrime-1)
	f.Add(FieldPrime-1, FieldPrime-1)

	f.Fuzz(func(t *testing.T, a, b uint64) {
		a %= FieldPrime
		b %= FieldPrime

		result := FieldAdd(a, b)
		if result >= FieldPrime {
			t.Errorf("result out of range: %d", result)
		}

		expected := new(big.Int).Add(new(big.Int).SetUint64(a), new(big.Int).SetUint64(b))
		expected.Mod(expected, bigPrime)
		if result != expected.Uint64() {
			t.Errorf("FieldAdd(%d, %d) = %d, want %v", a, b, result, expected)
		}

		if result != FieldAdd(b, a) {
			t.Errorf("commutativity failed: %d + %d", a, b)
		}
	})
}

func FuzzFieldSub(f *testing.F) {
	f.Add(uint64(0), uint64(0))
	f.Add(uint64(1), uint64(2)) // underflow case
	f.Add(uint64(0), FieldPrime-1)

	f.Fuzz(func(t *testing.T, a, b uint64) {
		a %= FieldPrime
		b %= FieldPrime

		result := FieldSub(a, b)
		if result >= FieldPrime {
			t.Errorf("result out of range: %d", result)
		}

		expected := new(big.Int).Sub(new(big.Int).SetUint64(a), new(big.Int).SetUint64(b))
		expected.Mod(expected, bigPrime)
		if result != expected.Uint64() {
			t.Errorf("FieldSub(%d, %d) = %d, want %v", a, b, result, expected)
		}

		// (a - b) + b = a
		if FieldAdd(result, b) != a {
			t.Errorf("inverse property failed: (%d - %d) + %d != %d", a, b, b, a)
		}
	})
}

func FuzzFieldMul(f *testing.F) {
	f.Add(uint64(0), uint64(0))
	f.Add(uint64(1), FieldPrime-1)
	f.Add(FieldPrime-1, FieldPrime-1)
	f.Add(FieldGenerator, FieldPrime-2)

	f.Fuzz(func(t *testing.T, a, b uint64) {
		a %= FieldPrime
		b %= FieldPrime

		result := FieldMul(a, b)
		if result >= FieldPrime {
			t.Errorf("result out of range: %d", result)
		}

		expected := new(big.Int).Mul(new(big.Int).SetUint64(a), new(big.Int).SetUint64(b))
		expected.Mod(expected, bigPrime)
		if result != expected.Uint64() {
			t.Errorf("FieldMul(%d, %d) = %d, want %v", a, b, result, expected)
		}

		if result != FieldMul(b, a) {
			t.Errorf("commutativity failed: %d * %d", a, b)
		}
	})
}

func FuzzFieldReduce(f *testing.F) {
	f.Add(uint64(0))
	f.Add(FieldPrime)
	f.Add(^uint64(0))

	f.Fuzz(func(t *testing.T, x uint64) {
		result := FieldReduce(x)
		if result >= FieldPrime {
			t.Errorf("result out of range: %d", result)
		}
		if x < FieldPrime && result != x {
			t.Errorf("reduced an already-reduced value: %d -> %d", x, result)
		}
	})
}
