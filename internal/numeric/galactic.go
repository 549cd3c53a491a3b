// Copyright 2024 The SERAPH Authors
// This file is part of SERAPH.
//
// SERAPH is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package numeric

// Galactic is a four-component hyper-dual value: a primal W and three
// tangent channels X, Y, Z. It is first-class in the Celestial IR (not
// lowered until code generation) so later compiler passes — and the Strand
// scheduler's predictive-scheduling component — can reason about
// derivatives directly (spec §3).
type Galactic struct {
	W, X, Y, Z Scalar
	voi        bool
}

// GalacticVoid is the VOID sentinel Galactic value.
var GalacticVoid = Galactic{voi: true}

// NewGalactic builds a Galactic from its four components.
func NewGalactic(w, x, y, z Scalar) Galactic {
	return Galactic{W: w, X: x, Y: y, Z: z}
}

// IsVoid reports whether g is the VOID Galactic.
func (g Galactic) IsVoid() bool { return g.voi }

// AddGalactic performs componentwise addition, VOID-propagating.
func AddGalactic(a, b Galactic) Galactic {
	if a.voi || b.voi {
		return GalacticVoid
	}
	return Galactic{
		W: Add(a.W, b.W),
		X: Add(a.X, b.X),
		Y: Add(a.Y, b.Y),
		Z: Add(a.Z, b.Z),
	}
}

// MulGalactic multiplies two hyper-duals following the chain rule:
// (a*b).w = a.w*b.w, and symmetrically (a*b).x = a.w*b.x + a.x*b.w for each
// tangent channel (spec §3).
func MulGalactic(a, b Galactic) Galactic {
	if a.voi || b.voi {
		return GalacticVoid
	}
	return Galactic{
		W: Mul(a.W, b.W),
		X: Add(Mul(a.W, b.X), Mul(a.X, b.W)),
		Y: Add(Mul(a.W, b.Y), Mul(a.Y, b.W)),
		Z: Add(Mul(a.W, b.Z), Mul(a.Z, b.W)),
	}
}

// DivGalactic divides two hyper-duals via the quotient rule, VOID on a
// VOID operand or a zero-primal divisor.
func DivGalactic(a, b Galactic) Galactic {
	if a.voi || b.voi || b.W.IsVoid() {
		return GalacticVoid
	}
	if b.W.Hi == 0 && b.W.Lo == 0 {
		return GalacticVoid
	}
	w := Div(a.W, b.W)
	bwSquared := Mul(b.W, b.W)
	quotientTangent := func(an, bn Scalar) Scalar {
		num := Sub(Mul(an, b.W), Mul(a.W, bn))
		return Div(num, bwSquared)
	}
	return Galactic{
		W: w,
		X: quotientTangent(a.X, b.X),
		Y: quotientTangent(a.Y, b.Y),
		Z: quotientTangent(a.Z, b.Z),
	}
}

// Predict extrapolates g's primal forward by step dt using its tangent
// channel: w' = w + x*dt (spec §8: "predict(g, Δt).w = g.w + g.x·Δt"). The
// tangent channels themselves are carried through unchanged — they are the
// (assumed locally constant) rates the extrapolation is performed against,
// not quantities being extrapolated in turn.
func Predict(g Galactic, dt Scalar) Galactic {
	if g.voi || dt.IsVoid() {
		return GalacticVoid
	}
	return Galactic{
		W: Add(g.W, Mul(g.X, dt)),
		X: g.X,
		Y: g.Y,
		Z: g.Z,
	}
}

// Extract returns one of the four components by index (0=W,1=X,2=Y,3=Z),
// VOID on an out-of-range index or a VOID operand.
func Extract(g Galactic, idx int) Scalar {
	if g.voi {
		return ScalarVoid
	}
	switch idx {
	case 0:
		return g.W
	case 1:
		return g.X
	case 2:
		return g.Y
	case 3:
		return g.Z
	default:
		return ScalarVoid
	}
}

// Insert returns a copy of g with component idx replaced by v.
func Insert(g Galactic, idx int, v Scalar) Galactic {
	if g.voi {
		return GalacticVoid
	}
	out := g
	switch idx {
	case 0:
		out.W = v
	case 1:
		out.X = v
	case 2:
		out.Y = v
	case 3:
		out.Z = v
	}
	return out
}
