// Copyright 2024 The SERAPH Authors
// This file is part of SERAPH.
//
// SERAPH is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package checker

import (
	"strings"

	"github.com/seraphlang/seraph/internal/ast"
	"github.com/seraphlang/seraph/internal/diag"
	"github.com/seraphlang/seraph/internal/effect"
)

// scope is a single lexical binding scope; scopes nest within a function.
type scope struct {
	vars   map[string]Type
	parent *scope
}

func newScope(parent *scope) *scope {
	return &scope{vars: make(map[string]Type), parent: parent}
}

func (s *scope) lookup(name string) (Type, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		if t, ok := cur.vars[name]; ok {
			return t, true
		}
	}
	return nil, false
}

func (s *scope) bind(name string, t Type) { s.vars[name] = t }

// effectFrame tracks, per function activation, the declared-allowed set and
// the running inferred set (spec §4.3: "entering a function pushes
// (allowed := declared, inferred := NONE)").
type effectFrame struct {
	allowed  effect.Set
	inferred effect.Set
}

const maxEffectStackDepth = 32

// Checker runs the two coupled passes (type synthesis, effect inference)
// over a parsed Program.
type Checker struct {
	diags diag.List

	structs map[string]*Struct
	enums   map[string]*Enum
	fnSigs  map[string]*Fn
	fnDecls map[string]*ast.FnDecl

	effectStack []effectFrame
	cur         *scope
}

// New returns a Checker ready to check a Program.
func New() *Checker {
	return &Checker{
		structs: make(map[string]*Struct),
		enums:   make(map[string]*Enum),
		fnSigs:  make(map[string]*Fn),
		fnDecls: make(map[string]*ast.FnDecl),
	}
}

// Diagnostics returns every diagnostic accumulated during Check.
func (c *Checker) Diagnostics() []diag.Diagnostic { return c.diags.Errors() }

// Check runs both passes over prog and returns the accumulated diagnostics.
func (c *Checker) Check(prog *ast.Program) []diag.Diagnostic {
	c.collectDeclarations(prog)
	// Global scope allows ALL (spec §4.3).
	c.effectStack = append(c.effectStack, effectFrame{allowed: effect.ALL})
	c.cur = newScope(nil)

	for _, d := range prog.Declarations {
		switch decl := d.(type) {
		case *ast.FnDecl:
			c.checkFn(decl)
		case *ast.ImplDecl:
			for _, m := range decl.Methods {
				c.checkFn(m)
			}
		}
	}
	return c.diags.Errors()
}

// ---------------------------------------------------------------------------
// Declaration collection
// ---------------------------------------------------------------------------

func (c *Checker) collectDeclarations(prog *ast.Program) {
	for _, d := range prog.Declarations {
		switch decl := d.(type) {
		case *ast.StructDecl:
			s := &Struct{Name: decl.Name, Fields: make(map[string]Type)}
			for _, f := range decl.Fields {
				ft := c.resolveTypeExpr(f.Type)
				s.Fields[f.Name] = ft
				s.Order = append(s.Order, f.Name)
			}
			c.structs[decl.Name] = s
		case *ast.EnumDecl:
			e := &Enum{Name: decl.Name, Variants: make(map[string][]Type)}
			for _, v := range decl.Variants {
				var fts []Type
				for _, f := range v.Fields {
					fts = append(fts, c.resolveTypeExpr(f))
				}
				e.Variants[v.Name] = fts
			}
			c.enums[decl.Name] = e
		case *ast.FnDecl:
			c.fnDecls[decl.Name] = decl
			c.fnSigs[decl.Name] = c.signatureOf(decl)
		}
	}
}

func (c *Checker) signatureOf(fn *ast.FnDecl) *Fn {
	sig := &Fn{}
	for _, p := range fn.Params {
		if p.Type != nil {
			sig.Params = append(sig.Params, c.resolveTypeExpr(p.Type))
		} else {
			sig.Params = append(sig.Params, TI64)
		}
	}
	if fn.ReturnType != nil {
		sig.Return = c.resolveTypeExpr(fn.ReturnType)
	}
	return sig
}

// declaredEffects returns the effect set a function's annotation grants,
// defaulting to ALL when no annotation is present (so an unannotated
// function never spuriously fails effect checking).
func (c *Checker) declaredEffects(ann *ast.EffectAnnotation) effect.Set {
	if ann == nil {
		return effect.ALL
	}
	if ann.Pure {
		return effect.NONE
	}
	s, unknown := effect.FromNames(ann.Effect)
	for _, u := range unknown {
		c.diags.Add(diag.Diagnostic{Kind: diag.KindEffect, Message: "unknown effect name " + u})
	}
	return s
}

func (c *Checker) resolveTypeExpr(t ast.TypeExpr) Type {
	switch te := t.(type) {
	case nil:
		return TI64
	case *ast.NamedType:
		return c.resolveNamed(te.Name)
	case *ast.VoidableType:
		return MakeVoidable(c.resolveTypeExpr(te.Elem))
	case *ast.ArrayType:
		return &Array{Elem: c.resolveTypeExpr(te.Elem), Size: 0}
	case *ast.SliceType:
		return &Slice{Elem: c.resolveTypeExpr(te.Elem)}
	case *ast.RefType:
		return &Ref{Elem: c.resolveTypeExpr(te.Elem), Mutable: false}
	case *ast.MutRefType:
		return &Ref{Elem: c.resolveTypeExpr(te.Elem), Mutable: true}
	case *ast.FnType:
		sig := &Fn{}
		for _, p := range te.ParamTypes {
			sig.Params = append(sig.Params, c.resolveTypeExpr(p))
		}
		if te.ReturnType != nil {
			sig.Return = c.resolveTypeExpr(te.ReturnType)
		}
		return sig
	default:
		return TI64
	}
}

func (c *Checker) resolveNamed(name string) Type {
	switch name {
	case "bool":
		return TBool
	case "u64", "u32", "u16", "u8":
		return TU64
	case "i64", "i32", "i16", "i8":
		return TI64
	case "Scalar":
		return TScalar
	case "Galactic":
		return TGalactic
	case "string":
		return TString
	case "char":
		return TChar
	case "Capability":
		return TCapability
	}
	if s, ok := c.structs[name]; ok {
		return s
	}
	if e, ok := c.enums[name]; ok {
		return e
	}
	return TI64
}

// ---------------------------------------------------------------------------
// Effect bookkeeping
// ---------------------------------------------------------------------------

func (c *Checker) pushEffectFrame(allowed effect.Set) {
	if len(c.effectStack) >= maxEffectStackDepth {
		c.diags.Add(diag.Diagnostic{Kind: diag.KindEffect, Message: "effect stack overflow (max depth 32)"})
		return
	}
	c.effectStack = append(c.effectStack, effectFrame{allowed: allowed})
}

func (c *Checker) popEffectFrame() effectFrame {
	n := len(c.effectStack)
	f := c.effectStack[n-1]
	c.effectStack = c.effectStack[:n-1]
	return f
}

func (c *Checker) addEffect(bits effect.Set) {
	n := len(c.effectStack)
	c.effectStack[n-1].inferred = c.effectStack[n-1].inferred.Union(bits)
}

// ---------------------------------------------------------------------------
// Functions
// ---------------------------------------------------------------------------

func (c *Checker) checkFn(fn *ast.FnDecl) {
	allowed := c.declaredEffects(fn.Annotation)
	c.pushEffectFrame(allowed)

	prevScope := c.cur
	c.cur = newScope(prevScope)
	sig := c.fnSigs[fn.Name]
	for i, p := range fn.Params {
		if sig != nil && i < len(sig.Params) {
			c.cur.bind(p.Name, sig.Params[i])
		} else {
			c.cur.bind(p.Name, TI64)
		}
	}

	c.checkBlock(fn.Body)

	frame := c.popEffectFrame()
	if !frame.inferred.Subset(frame.allowed) {
		c.diags.Add(diag.Diagnostic{
			Kind:     diag.KindEffect,
			Message:  "function " + fn.Name + " performs effects not in its declared set",
			Required: uint8(frame.inferred),
			Allowed:  uint8(frame.allowed),
		})
	}
	c.cur = prevScope
}

// ---------------------------------------------------------------------------
// Statements and blocks
// ---------------------------------------------------------------------------

func (c *Checker) checkBlock(b *ast.BlockExpr) Type {
	prevScope := c.cur
	c.cur = newScope(prevScope)
	defer func() { c.cur = prevScope }()

	for _, s := range b.Statements {
		c.checkStmt(s)
	}
	if b.Trailing != nil {
		return c.checkExpr(b.Trailing)
	}
	return TVoidOnly
}

func (c *Checker) checkStmt(s ast.Statement) {
	switch st := s.(type) {
	case *ast.LetStmt:
		t := c.checkExpr(st.Value)
		if st.Type != nil {
			t = c.resolveTypeExpr(st.Type)
		}
		c.cur.bind(st.Name, t)
	case *ast.ConstStmt:
		t := c.checkExpr(st.Value)
		if st.Type != nil {
			t = c.resolveTypeExpr(st.Type)
		}
		c.cur.bind(st.Name, t)
	case *ast.ReturnStmt:
		if st.Value != nil {
			c.checkExpr(st.Value)
		}
	case *ast.WhileStmt:
		c.checkExpr(st.Condition)
		c.checkBlock(st.Body)
	case *ast.ForInStmt:
		c.checkExpr(st.Iterable)
		prevScope := c.cur
		c.cur = newScope(prevScope)
		c.cur.bind(st.Name, TI64)
		c.checkBlock(st.Body)
		c.cur = prevScope
	case *ast.ExprStmt:
		c.checkExpr(st.Expr)
	case *ast.BreakStmt, *ast.ContinueStmt:
		// no-op
	}
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

func (c *Checker) checkExpr(e ast.Expression) Type {
	switch ex := e.(type) {
	case *ast.Ident:
		if t, ok := c.cur.lookup(ex.Value); ok {
			return t
		}
		c.diags.Add(diag.Diagnostic{Kind: diag.KindUndefined, Message: "undefined identifier " + ex.Value})
		return TI64
	case *ast.IntLiteral:
		return suffixedIntType(ex.Suffix)
	case *ast.FloatLiteral:
		return suffixedFloatType(ex.Suffix)
	case *ast.StringLiteral:
		return TString
	case *ast.CharLiteral:
		return TChar
	case *ast.BoolLiteral:
		return TBool
	case *ast.VoidLiteral:
		c.addEffect(effect.VOID)
		return MakeVoidable(TVoidOnly)
	case *ast.PrefixExpr:
		return c.checkExpr(ex.Right)
	case *ast.InfixExpr:
		return c.checkInfix(ex)
	case *ast.VoidPropagateExpr:
		c.addEffect(effect.VOID)
		return Unwrap(c.checkExpr(ex.Value))
	case *ast.VoidAssertExpr:
		c.addEffect(effect.VOID)
		return Unwrap(c.checkExpr(ex.Value))
	case *ast.PipeExpr:
		c.checkExpr(ex.Left)
		return c.checkExpr(ex.Func)
	case *ast.RangeExpr:
		c.checkExpr(ex.Low)
		c.checkExpr(ex.High)
		return TI64
	case *ast.IndexExpr:
		left := c.checkExpr(ex.Left)
		c.checkExpr(ex.Index)
		c.addEffect(effect.VOID)
		if arr, ok := left.(*Array); ok {
			return arr.Elem
		}
		if sl, ok := left.(*Slice); ok {
			return sl.Elem
		}
		return TI64
	case *ast.FieldExpr:
		obj := c.checkExpr(ex.Object)
		if s, ok := obj.(*Struct); ok {
			if ft, ok := s.Fields[ex.Field]; ok {
				return ft
			}
		}
		return TI64
	case *ast.CallExpr:
		return c.checkCall(ex)
	case *ast.MethodCallExpr:
		c.checkExpr(ex.Receiver)
		for _, a := range ex.Arguments {
			c.checkExpr(a)
		}
		return TI64
	case *ast.StructLiteral:
		for _, name := range ex.Order {
			c.checkExpr(ex.Fields[name])
		}
		if s, ok := c.structs[ex.Name]; ok {
			return s
		}
		return TI64
	case *ast.ArrayLiteral:
		var elem Type = TI64
		for _, el := range ex.Elements {
			elem = c.checkExpr(el)
		}
		return &Array{Elem: elem, Size: int64(len(ex.Elements))}
	case *ast.BlockExpr:
		return c.checkBlock(ex)
	case *ast.IfExpr:
		c.checkExpr(ex.Condition)
		thenT := c.checkBlock(ex.Then)
		if ex.Else != nil {
			return c.checkExpr(ex.Else)
		}
		return thenT
	case *ast.MatchExpr:
		c.checkExpr(ex.Subject)
		var last Type = TI64
		for _, arm := range ex.Arms {
			if arm.Guard != nil {
				c.checkExpr(arm.Guard)
			}
			last = c.checkExpr(arm.Body)
		}
		return last
	case *ast.SubstrateBlock:
		return c.checkSubstrateBlock(ex)
	default:
		return TI64
	}
}

func (c *Checker) checkInfix(ex *ast.InfixExpr) Type {
	left := c.checkExpr(ex.Left)
	c.checkExpr(ex.Right)
	switch ex.Operator {
	case "/", "%":
		c.addEffect(effect.VOID)
	case "??":
		c.addEffect(effect.VOID)
		return Unwrap(left)
	}
	switch ex.Operator {
	case "==", "!=", "<", ">", "<=", ">=", "&&", "||":
		return TBool
	default:
		return left
	}
}

// checkCall applies spec §4.3's built-in name-prefix effect rules and
// unions the callee's declared effects with effects inferred from its
// arguments.
func (c *Checker) checkCall(ex *ast.CallExpr) Type {
	if id, ok := ex.Function.(*ast.Ident); ok {
		switch {
		case strings.HasPrefix(id.Value, "atlas"):
			c.addEffect(effect.PERSIST | effect.VOID)
		case strings.HasPrefix(id.Value, "aether"):
			c.addEffect(effect.NETWORK | effect.VOID)
		case strings.HasPrefix(id.Value, "timer"), strings.HasPrefix(id.Value, "chronon"):
			c.addEffect(effect.TIMER)
		case strings.HasPrefix(id.Value, "print"):
			c.addEffect(effect.IO)
		case strings.HasPrefix(id.Value, "read"), strings.HasPrefix(id.Value, "write"):
			c.addEffect(effect.IO | effect.VOID)
		}
		if sig, ok := c.fnSigs[id.Value]; ok {
			if fn, ok := c.fnDecls[id.Value]; ok {
				c.addEffect(c.declaredEffects(fn.Annotation))
			}
			for _, a := range ex.Arguments {
				c.checkExpr(a)
			}
			if sig.Return != nil {
				return sig.Return
			}
			return TVoidOnly
		}
	} else {
		c.checkExpr(ex.Function)
	}
	for _, a := range ex.Arguments {
		c.checkExpr(a)
	}
	return TI64
}

// checkSubstrateBlock constrains reads/writes within the block to the
// named substrate's capability and raises the corresponding effect bit
// (spec §4.3). When a recover/else clause is present, the block re-types
// so the body's result is ??T and the whole expression is T (spec §4.3's
// recover-else rule).
func (c *Checker) checkSubstrateBlock(sb *ast.SubstrateBlock) Type {
	switch sb.Kind {
	case "persist":
		c.addEffect(effect.PERSIST | effect.VOID)
	case "aether":
		c.addEffect(effect.NETWORK | effect.VOID)
	}
	bodyType := c.checkBlock(sb.Body)

	if sb.Recover == nil {
		return bodyType
	}
	recoverType := c.checkBlock(sb.Recover)
	if sb.ElseBlock != nil {
		elseType := c.checkBlock(sb.ElseBlock)
		if !typesCompatible(recoverType, elseType) {
			c.diags.Add(diag.Diagnostic{
				Kind:    diag.KindType,
				Message: "recover and else branches must agree in type: " + recoverType.String() + " vs " + elseType.String(),
			})
		}
	}
	return recoverType
}

func typesCompatible(a, b Type) bool {
	if a == nil || b == nil {
		return true
	}
	return Unwrap(a).Equals(Unwrap(b)) || a.Kind() == b.Kind()
}

func suffixedIntType(suffix string) Type {
	switch suffix {
	case "s", "d", "g":
		return TScalar
	case "u8", "u16", "u32", "u64", "u":
		return TU64
	case "i8", "i16", "i32", "i64", "i":
		return TI64
	default:
		return TI64
	}
}

func suffixedFloatType(suffix string) Type {
	switch suffix {
	case "g":
		return TGalactic
	case "s", "d":
		return TScalar
	default:
		return TScalar
	}
}
