// Copyright 2024 The SERAPH Authors
// This file is part of SERAPH.
//
// SERAPH is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package checker implements Seraphim's two coupled passes: bottom-up type
// synthesis and effect inference (spec §4.3). It runs over the same arena
// the parser populated.
package checker

import "fmt"

// Kind categorizes the fundamental shape of a Seraphim type.
type Kind int

const (
	KindVoid Kind = iota
	KindBool
	KindU8
	KindU16
	KindU32
	KindU64
	KindI8
	KindI16
	KindI32
	KindI64
	KindScalar // Q64.64 fixed point
	KindGalactic
	KindString
	KindChar
	KindArray
	KindSlice
	KindRef
	KindMutRef
	KindStruct
	KindEnum
	KindFn
	KindCapability
)

var kindNames = [...]string{
	KindVoid: "void", KindBool: "bool",
	KindU8: "u8", KindU16: "u16", KindU32: "u32", KindU64: "u64",
	KindI8: "i8", KindI16: "i16", KindI32: "i32", KindI64: "i64",
	KindScalar: "Scalar", KindGalactic: "Galactic",
	KindString: "string", KindChar: "char",
	KindArray: "array", KindSlice: "slice",
	KindRef: "ref", KindMutRef: "mut_ref",
	KindStruct: "struct", KindEnum: "enum", KindFn: "fn",
	KindCapability: "Capability",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Type is the interface every Seraphim type implements.
type Type interface {
	Kind() Kind
	String() string
	Equals(other Type) bool
}

// Primitive is a built-in scalar type.
type Primitive struct{ K Kind }

func (p *Primitive) Kind() Kind   { return p.K }
func (p *Primitive) String() string { return p.K.String() }
func (p *Primitive) Equals(o Type) bool {
	return o != nil && o.Kind() == p.K
}

var (
	TBool     = &Primitive{K: KindBool}
	TU64      = &Primitive{K: KindU64}
	TI64      = &Primitive{K: KindI64}
	TScalar   = &Primitive{K: KindScalar}
	TGalactic = &Primitive{K: KindGalactic}
	TString   = &Primitive{K: KindString}
	TChar     = &Primitive{K: KindChar}
	TVoidOnly = &Primitive{K: KindVoid} // the type of a bare VOID literal before unification
)

// Voidable is Seraphim's structural VOID-ability wrapper type: `T?` (spec
// §4.3's "VOID-ability is a structural wrapper type").
type Voidable struct{ Elem Type }

func (v *Voidable) Kind() Kind   { return v.Elem.Kind() }
func (v *Voidable) String() string { return v.Elem.String() + "?" }
func (v *Voidable) Equals(o Type) bool {
	ov, ok := o.(*Voidable)
	return ok && v.Elem.Equals(ov.Elem)
}

// Unwrap strips one layer of VOID-ability, per spec §4.3: "`??T` strips
// one layer." Returns the same type unchanged if t isn't Voidable.
func Unwrap(t Type) Type {
	if v, ok := t.(*Voidable); ok {
		return v.Elem
	}
	return t
}

// IsVoidable reports whether t carries the VOID-ability wrapper.
func IsVoidable(t Type) bool {
	_, ok := t.(*Voidable)
	return ok
}

// MakeVoidable wraps t in a Voidable, collapsing double-wraps.
func MakeVoidable(t Type) Type {
	if IsVoidable(t) {
		return t
	}
	return &Voidable{Elem: t}
}

// Array is a fixed-length array type: [T; N].
type Array struct {
	Elem Type
	Size int64
}

func (a *Array) Kind() Kind   { return KindArray }
func (a *Array) String() string { return fmt.Sprintf("[%s; %d]", a.Elem.String(), a.Size) }
func (a *Array) Equals(o Type) bool {
	oa, ok := o.(*Array)
	return ok && a.Size == oa.Size && a.Elem.Equals(oa.Elem)
}

// Slice is a dynamically-sized slice type: [T].
type Slice struct{ Elem Type }

func (s *Slice) Kind() Kind   { return KindSlice }
func (s *Slice) String() string { return "[" + s.Elem.String() + "]" }
func (s *Slice) Equals(o Type) bool {
	os, ok := o.(*Slice)
	return ok && s.Elem.Equals(os.Elem)
}

// Ref is a capability-backed reference type: &T or &mut T.
type Ref struct {
	Elem    Type
	Mutable bool
}

func (r *Ref) Kind() Kind {
	if r.Mutable {
		return KindMutRef
	}
	return KindRef
}
func (r *Ref) String() string {
	if r.Mutable {
		return "&mut " + r.Elem.String()
	}
	return "&" + r.Elem.String()
}
func (r *Ref) Equals(o Type) bool {
	or, ok := o.(*Ref)
	return ok && r.Mutable == or.Mutable && r.Elem.Equals(or.Elem)
}

// Struct is a named struct type.
type Struct struct {
	Name   string
	Fields map[string]Type
	Order  []string
}

func (s *Struct) Kind() Kind   { return KindStruct }
func (s *Struct) String() string { return s.Name }
func (s *Struct) Equals(o Type) bool {
	os, ok := o.(*Struct)
	return ok && s.Name == os.Name
}

// Enum is a named enum type.
type Enum struct {
	Name     string
	Variants map[string][]Type
}

func (e *Enum) Kind() Kind   { return KindEnum }
func (e *Enum) String() string { return e.Name }
func (e *Enum) Equals(o Type) bool {
	oe, ok := o.(*Enum)
	return ok && e.Name == oe.Name
}

// Fn is a function type: fn(T1, T2) -> R.
type Fn struct {
	Params []Type
	Return Type
}

func (f *Fn) Kind() Kind { return KindFn }
func (f *Fn) String() string {
	out := "fn("
	for i, p := range f.Params {
		if i > 0 {
			out += ", "
		}
		out += p.String()
	}
	out += ")"
	if f.Return != nil {
		out += " -> " + f.Return.String()
	}
	return out
}
func (f *Fn) Equals(o Type) bool {
	of, ok := o.(*Fn)
	if !ok || len(f.Params) != len(of.Params) {
		return false
	}
	for i := range f.Params {
		if !f.Params[i].Equals(of.Params[i]) {
			return false
		}
	}
	if f.Return == nil || of.Return == nil {
		return f.Return == of.Return
	}
	return f.Return.Equals(of.Return)
}

// Capability is the built-in capability record type, opaque to the checker
// beyond its identity (spec §3).
var TCapability = &Primitive{K: KindCapability}
