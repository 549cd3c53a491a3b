// Copyright 2024 The SERAPH Authors
// This file is part of SERAPH.
//
// SERAPH is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package numeric implements SERAPH's fixed-point Scalar (Q64.64) and
// hyper-dual Galactic value types. Every arithmetic operation is
// VOID-propagating: if either operand is VOID, the result is VOID, and
// division by zero yields VOID rather than trapping (spec §3).
package numeric

import (
	"github.com/holiman/uint256"
)

// Scalar is a 128-bit signed fixed-point value with 64 fractional bits
// (Q64.64), represented as a two's-complement pair of 64-bit limbs.
type Scalar struct {
	Hi  int64  // sign-extended high 64 bits
	Lo  uint64 // low 64 bits
	voi bool   // true iff this value is the VOID scalar
}

// ScalarVoid is the VOID sentinel Scalar.
var ScalarVoid = Scalar{voi: true}

// ScalarFromInt builds a Scalar representing the integer v (fractional bits
// zero).
func ScalarFromInt(v int64) Scalar {
	return Scalar{Hi: v, Lo: 0}
}

// IsVoid reports whether s is the VOID scalar.
func (s Scalar) IsVoid() bool { return s.voi }

// asUint256 packs the 128-bit two's-complement value into a uint256 so the
// multiply path can use a single 256-bit accumulator instead of a hand
// rolled four-limb multiply.
func (s Scalar) asUint256() *uint256.Int {
	loWord := new(uint256.Int).SetUint64(s.Lo)
	hiWord := new(uint256.Int).SetUint64(uint64(s.Hi))
	hiWord.Lsh(hiWord, 64)
	return new(uint256.Int).Or(loWord, hiWord)
}

func scalarFromUint256Low128(u *uint256.Int) Scalar {
	lo := u.Uint64()
	hiWord := new(uint256.Int).Rsh(u, 64)
	return Scalar{Hi: int64(hiWord.Uint64()), Lo: lo}
}

// Add returns a+b, VOID-propagating.
func Add(a, b Scalar) Scalar {
	if a.voi || b.voi {
		return ScalarVoid
	}
	lo, carry := bitsAdd64(a.Lo, b.Lo, 0)
	hi := a.Hi + b.Hi + int64(carry)
	return Scalar{Hi: hi, Lo: lo}
}

// Sub returns a-b, VOID-propagating.
func Sub(a, b Scalar) Scalar {
	if a.voi || b.voi {
		return ScalarVoid
	}
	lo, borrow := bitsSub64(a.Lo, b.Lo, 0)
	hi := a.Hi - b.Hi - int64(borrow)
	return Scalar{Hi: hi, Lo: lo}
}

func bitsAdd64(x, y, carry uint64) (sum, carryOut uint64) {
	sum = x + y + carry
	if sum < x || (carry == 1 && sum == x) {
		carryOut = 1
	}
	return
}

func bitsSub64(x, y, borrow uint64) (diff, borrowOut uint64) {
	diff = x - y - borrow
	if x < y+borrow {
		borrowOut = 1
	}
	return
}

// Mul returns a*b: a 128x128->256 bit integer multiply followed by a 64-bit
// right shift to renormalize the Q64.64 fractional point, VOID-propagating.
// The 256-bit intermediate is carried in a uint256.Int (see asUint256 on
// why SERAPH reaches for holiman/uint256 here rather than a hand-rolled
// four-limb multiply).
func Mul(a, b Scalar) Scalar {
	if a.voi || b.voi {
		return ScalarVoid
	}
	negA, negB := a.Hi < 0, b.Hi < 0
	ua, ub := a, b
	if negA {
		ua = negateScalar(a)
	}
	if negB {
		ub = negateScalar(b)
	}

	x := ua.asUint256()
	y := ub.asUint256()

	// Both operands fit in 128 bits, so a 128x128->256 multiply is exactly
	// what uint256.Int's native Mul (which wraps mod 2^256) computes without
	// overflow — no 512-bit intermediate is needed.
	product := new(uint256.Int).Mul(x, y)
	shifted := new(uint256.Int).Rsh(product, 64)
	result := scalarFromUint256Low128(shifted)

	if negA != negB {
		result = negateScalar(result)
	}
	return result
}

func negateScalar(s Scalar) Scalar {
	lo := ^s.Lo + 1
	carry := uint64(0)
	if s.Lo == 0 {
		carry = 1
	}
	hi := ^s.Hi + carry
	return Scalar{Hi: hi, Lo: lo}
}

// Div returns a/b, VOID on a VOID operand or a zero divisor (spec §3: "All
// arithmetic is VOID-propagating ... division by zero yields VOID").
func Div(a, b Scalar) Scalar {
	if a.voi || b.voi {
		return ScalarVoid
	}
	if b.Hi == 0 && b.Lo == 0 {
		return ScalarVoid
	}
	// Scale a by 2^64 before the integer division to preserve Q64.64
	// fractional precision, using uint256 to avoid overflow during the
	// scale-up.
	negA, negB := a.Hi < 0, b.Hi < 0
	ua, ub := a, b
	if negA {
		ua = negateScalar(a)
	}
	if negB {
		ub = negateScalar(b)
	}
	numerator := new(uint256.Int).Lsh(ua.asUint256(), 64)
	denom := ub.asUint256()
	quotient := new(uint256.Int).Div(numerator, denom)
	result := scalarFromUint256Low128(quotient)
	if negA != negB {
		result = negateScalar(result)
	}
	return result
}

// Mod returns a%b (remainder of the fixed-point division), VOID on a VOID
// operand or a zero divisor.
func Mod(a, b Scalar) Scalar {
	if a.voi || b.voi {
		return ScalarVoid
	}
	if b.Hi == 0 && b.Lo == 0 {
		return ScalarVoid
	}
	q := Div(a, b)
	return Sub(a, Mul(q, b))
}

// Neg returns -a, VOID-propagating.
func Neg(a Scalar) Scalar {
	if a.voi {
		return ScalarVoid
	}
	return negateScalar(a)
}
