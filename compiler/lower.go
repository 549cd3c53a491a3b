// Copyright 2024 The SERAPH Authors
// This file is part of SERAPH.
//
// SERAPH is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// lower.go walks a checked *ast.Program and emits Celestial IR through
// internal/ir.Builder. The traversal mirrors internal/checker.Checker's own
// declaration/statement/expression switches (same node order, same
// collect-then-walk shape) so the two passes stay easy to read side by
// side; only the action taken at each node differs (emit an instruction
// instead of synthesizing a type).
package compiler

import (
	"fmt"

	"github.com/seraphlang/seraph/internal/ast"
	"github.com/seraphlang/seraph/internal/diag"
	"github.com/seraphlang/seraph/internal/effect"
	"github.com/seraphlang/seraph/internal/ir"
)

// lowerer carries the ir.Builder plus the per-function/per-block bookkeeping
// a lowering pass needs: a value environment (name -> current SSA value,
// rebound on every `let`/assignment since Celestial IR is strict SSA), the
// enclosing function's declared return type, and loop exit/continue targets
// for break/continue.
type lowerer struct {
	b       *ir.Builder
	diags   *diag.List
	env     map[string]ir.Value
	retType ir.TypeRef

	loopExit []*ir.Block
	loopHead []*ir.Block
}

// Lower runs AST-to-Celestial-IR lowering over a program the checker has
// already validated (diagnostics from Check are expected to be empty or the
// caller skips this step, per spec §7 "code generation is skipped if the
// checker reports errors").
func Lower(prog *ast.Program) *ir.Module {
	b := ir.NewBuilder()
	l := &lowerer{b: b, diags: &diag.List{}}

	for _, d := range prog.Declarations {
		switch decl := d.(type) {
		case *ast.FnDecl:
			l.lowerFn(decl)
		case *ast.ImplDecl:
			for _, m := range decl.Methods {
				l.lowerFn(m)
			}
		}
	}
	return b.Module()
}

// typeRefOfAnnotation maps a type annotation directly to a Celestial IR
// TypeRef, mirroring internal/checker.Checker.resolveNamed's name table
// (struct/enum types resolve to TypeI64 here, since this pass represents
// every aggregate by a single word — see lowerExpr's StructLiteral case,
// which yields the last field's value, and FieldExpr case, which yields a
// pointer to field 0).
func typeRefOfAnnotation(t ast.TypeExpr) ir.TypeRef {
	switch te := t.(type) {
	case nil:
		return ir.TypeI64
	case *ast.NamedType:
		switch te.Name {
		case "bool":
			return ir.TypeBool
		case "u64", "u32", "u16", "u8":
			return ir.TypeU64
		case "i64", "i32", "i16", "i8":
			return ir.TypeI64
		case "Scalar":
			return ir.TypeScalar
		case "Galactic":
			return ir.TypeGalactic
		case "string":
			return ir.TypeString
		case "char":
			return ir.TypeChar
		case "Capability":
			return ir.TypeCapability
		default:
			return ir.TypeI64
		}
	case *ast.VoidableType:
		return typeRefOfAnnotation(te.Elem)
	case *ast.RefType:
		return typeRefOfAnnotation(te.Elem)
	case *ast.MutRefType:
		return typeRefOfAnnotation(te.Elem)
	default:
		return ir.TypeI64
	}
}

func (l *lowerer) lowerFn(fn *ast.FnDecl) {
	ann := fn.Annotation
	var effects effect.Set
	switch {
	case ann == nil:
		effects = effect.ALL
	case ann.Pure:
		effects = effect.NONE
	default:
		effects, _ = effect.FromNames(ann.Effect)
	}

	retRef := ir.TypeI64
	if fn.ReturnType != nil {
		retRef = typeRefOfAnnotation(fn.ReturnType)
	}

	l.env = make(map[string]ir.Value)
	l.retType = retRef

	var params []ir.Value
	for _, p := range fn.Params {
		typ := ir.TypeI64
		if p.Type != nil {
			typ = typeRefOfAnnotation(p.Type)
		}
		v := ir.Value{Type: typ, Name: p.Name}
		params = append(params, v)
	}

	l.b.StartFunction(fn.Name, params, retRef, effects)
	entry := l.b.NewBlock("entry")
	l.b.SetBlock(entry)

	// NewValue must be called after StartFunction so vreg numbering starts
	// at 0 for this function; re-bind the parameter Values to ids the
	// builder actually allocated.
	for i, p := range fn.Params {
		typ := ir.TypeI64
		if p.Type != nil {
			typ = typeRefOfAnnotation(p.Type)
		}
		v := l.b.NewValue(typ, p.Name, false)
		l.env[p.Name] = v
		params[i] = v
	}

	result := l.lowerBlock(fn.Body)
	curFn := l.curFunc()
	if curBlockOpen(curFn) {
		if retRef == ir.TypeVoid {
			l.b.EmitReturn(nil)
		} else {
			l.b.EmitReturn(&result)
		}
	}
}

// lowerBlock lowers every statement, then the trailing expression (if any),
// returning the block's resulting value (zero Value for a void block).
func (l *lowerer) lowerBlock(blk *ast.BlockExpr) ir.Value {
	for _, s := range blk.Statements {
		l.lowerStmt(s)
	}
	if blk.Trailing != nil {
		return l.lowerExpr(blk.Trailing)
	}
	return ir.Value{Type: ir.TypeVoid}
}

func (l *lowerer) lowerStmt(s ast.Statement) {
	switch st := s.(type) {
	case *ast.LetStmt:
		l.env[st.Name] = l.lowerExpr(st.Value)
	case *ast.ConstStmt:
		l.env[st.Name] = l.lowerExpr(st.Value)
	case *ast.ReturnStmt:
		if st.Value == nil {
			l.b.EmitReturn(nil)
			return
		}
		v := l.lowerExpr(st.Value)
		l.b.EmitReturn(&v)
	case *ast.WhileStmt:
		l.lowerWhile(st)
	case *ast.ForInStmt:
		l.lowerForIn(st)
	case *ast.ExprStmt:
		l.lowerExpr(st.Expr)
	case *ast.BreakStmt:
		if n := len(l.loopExit); n > 0 {
			l.b.EmitBranch(l.loopExit[n-1])
		}
	case *ast.ContinueStmt:
		if n := len(l.loopHead); n > 0 {
			l.b.EmitBranch(l.loopHead[n-1])
		}
	default:
		l.diags.Add(diag.Diagnostic{Kind: diag.KindInternal, Message: fmt.Sprintf("lower: unhandled statement %T", s)})
	}
}

func (l *lowerer) lowerWhile(st *ast.WhileStmt) {
	fn := l.curFunc()
	head := newNamedBlock(l.b, fn, "while.head")
	body := newNamedBlock(l.b, fn, "while.body")
	exit := newNamedBlock(l.b, fn, "while.exit")

	l.b.EmitBranch(head)
	l.b.SetBlock(head)
	cond := l.lowerExpr(st.Condition)
	l.b.EmitCondBranch(cond, body, exit)

	l.b.SetBlock(body)
	l.loopHead = append(l.loopHead, head)
	l.loopExit = append(l.loopExit, exit)
	l.lowerBlock(st.Body)
	l.loopHead = l.loopHead[:len(l.loopHead)-1]
	l.loopExit = l.loopExit[:len(l.loopExit)-1]
	l.b.EmitBranch(head)

	l.b.SetBlock(exit)
}

// lowerForIn lowers `for name in lo..hi { body }` into a counted loop; any
// other iterable lowers its bound expression once and loops zero times,
// since Seraphim's iterator protocol beyond integer ranges is compiler
// out-of-scope for this pass (struct/enum iteration, see DESIGN.md).
func (l *lowerer) lowerForIn(st *ast.ForInStmt) {
	rangeExpr, ok := st.Iterable.(*ast.RangeExpr)
	if !ok {
		l.lowerExpr(st.Iterable)
		return
	}
	fn := l.curFunc()
	head := newNamedBlock(l.b, fn, "for.head")
	body := newNamedBlock(l.b, fn, "for.body")
	exit := newNamedBlock(l.b, fn, "for.exit")

	lo := l.lowerExpr(rangeExpr.Low)
	hi := l.lowerExpr(rangeExpr.High)
	l.env[st.Name] = lo
	l.b.EmitBranch(head)

	l.b.SetBlock(head)
	iv := l.env[st.Name]
	cmpOp := ir.OpLt
	if rangeExpr.Inclusive {
		cmpOp = ir.OpLte
	}
	cond := l.b.NewValue(ir.TypeBool, "", false)
	l.b.Emit(cmpOp, cond, iv, hi)
	l.b.EmitCondBranch(cond, body, exit)

	l.b.SetBlock(body)
	l.loopHead = append(l.loopHead, head)
	l.loopExit = append(l.loopExit, exit)
	l.lowerBlock(st.Body)
	l.loopHead = l.loopHead[:len(l.loopHead)-1]
	l.loopExit = l.loopExit[:len(l.loopExit)-1]

	one := l.constValue(ir.TypeI64, int64(1))
	next := l.b.NewValue(iv.Type, "", false)
	l.b.Emit(ir.OpAdd, next, l.env[st.Name], one)
	l.env[st.Name] = next
	l.b.EmitBranch(head)

	l.b.SetBlock(exit)
}

func (l *lowerer) curFunc() *ir.Function {
	fns := l.b.Module().Functions
	return fns[len(fns)-1]
}

func newNamedBlock(b *ir.Builder, fn *ir.Function, label string) *ir.Block {
	n := 0
	for _, blk := range fn.Blocks {
		if blk.Label == label || (len(blk.Label) > len(label) && blk.Label[:len(label)] == label) {
			n++
		}
	}
	if n > 0 {
		label = fmt.Sprintf("%s.%d", label, n)
	}
	return b.NewBlock(label)
}

func (l *lowerer) constValue(typ ir.TypeRef, v interface{}) ir.Value {
	idx := l.b.AddConstant(ir.Constant{Type: typ, Value: v})
	result := l.b.NewValue(typ, "", false)
	l.b.EmitConst(result, idx)
	return result
}

func (l *lowerer) lowerExpr(e ast.Expression) ir.Value {
	switch ex := e.(type) {
	case *ast.Ident:
		if v, ok := l.env[ex.Value]; ok {
			return v
		}
		l.diags.Add(diag.Diagnostic{Kind: diag.KindInternal, Message: "lower: unbound identifier " + ex.Value})
		return l.constValue(ir.TypeI64, int64(0))
	case *ast.IntLiteral:
		return l.constValue(intSuffixTypeRef(ex.Suffix), ex.Value)
	case *ast.FloatLiteral:
		return l.constValue(ir.TypeScalar, ex.Value)
	case *ast.StringLiteral:
		return l.constValue(ir.TypeString, ex.Value)
	case *ast.CharLiteral:
		return l.constValue(ir.TypeChar, ex.Value)
	case *ast.BoolLiteral:
		return l.constValue(ir.TypeBool, ex.Value)
	case *ast.VoidLiteral:
		v := l.constValue(ir.TypeVoid, nil)
		v.MayBeVoid = true
		return v
	case *ast.PrefixExpr:
		return l.lowerPrefix(ex)
	case *ast.InfixExpr:
		return l.lowerInfix(ex)
	case *ast.VoidPropagateExpr:
		v := l.lowerExpr(ex.Value)
		result := l.b.NewValue(v.Type, "", false)
		l.b.EmitVoidProp(result, v)
		return result
	case *ast.VoidAssertExpr:
		v := l.lowerExpr(ex.Value)
		result := l.b.NewValue(v.Type, "", false)
		l.b.EmitVoidAssert(result, v)
		return result
	case *ast.PipeExpr:
		arg := l.lowerExpr(ex.Left)
		if id, ok := ex.Func.(*ast.Ident); ok {
			result := l.b.NewValue(ir.TypeI64, "", true)
			return l.b.EmitCall(result, id.Value, arg)
		}
		return l.lowerExpr(ex.Func)
	case *ast.IndexExpr:
		left := l.lowerExpr(ex.Left)
		idx := l.lowerExpr(ex.Index)
		result := l.b.NewValue(ir.TypeI64, "", true)
		return l.b.Emit(ir.OpIndexPtr, result, left, idx)
	case *ast.FieldExpr:
		obj := l.lowerExpr(ex.Object)
		result := l.b.NewValue(ir.TypeI64, "", false)
		return l.b.EmitFieldPtr(result, obj, 0)
	case *ast.CallExpr:
		return l.lowerCall(ex)
	case *ast.MethodCallExpr:
		recv := l.lowerExpr(ex.Receiver)
		args := []ir.Value{recv}
		for _, a := range ex.Arguments {
			args = append(args, l.lowerExpr(a))
		}
		result := l.b.NewValue(ir.TypeI64, "", true)
		return l.b.EmitCall(result, ex.Method, args...)
	case *ast.ArrayLiteral:
		var last ir.Value
		for _, el := range ex.Elements {
			last = l.lowerExpr(el)
		}
		return last
	case *ast.BlockExpr:
		return l.lowerBlock(ex)
	case *ast.IfExpr:
		return l.lowerIf(ex)
	case *ast.SubstrateBlock:
		return l.lowerSubstrateBlock(ex)
	case *ast.MatchExpr:
		return l.lowerMatch(ex)
	case *ast.StructLiteral:
		var last ir.Value
		for _, name := range ex.Order {
			last = l.lowerExpr(ex.Fields[name])
		}
		return last
	case *ast.RangeExpr:
		return l.lowerExpr(ex.Low)
	default:
		l.diags.Add(diag.Diagnostic{Kind: diag.KindInternal, Message: fmt.Sprintf("lower: unhandled expression %T", e)})
		return l.constValue(ir.TypeI64, int64(0))
	}
}

func intSuffixTypeRef(suffix string) ir.TypeRef {
	switch suffix {
	case "s", "d", "g":
		return ir.TypeScalar
	case "u", "u8", "u16", "u32", "u64":
		return ir.TypeU64
	default:
		return ir.TypeI64
	}
}

func (l *lowerer) lowerPrefix(ex *ast.PrefixExpr) ir.Value {
	v := l.lowerExpr(ex.Right)
	switch ex.Operator {
	case "-":
		result := l.b.NewValue(v.Type, "", v.MayBeVoid)
		return l.b.Emit(ir.OpNeg, result, v)
	case "!":
		result := l.b.NewValue(ir.TypeBool, "", v.MayBeVoid)
		return l.b.Emit(ir.OpLogNot, result, v)
	case "~":
		result := l.b.NewValue(v.Type, "", v.MayBeVoid)
		return l.b.Emit(ir.OpBitNot, result, v)
	default:
		// &x / &mut x: a capability reference is already the value in this
		// lowering (no separate pointer representation), so pass through.
		return v
	}
}

var infixOps = map[string]ir.Op{
	"+": ir.OpAdd, "-": ir.OpSub, "*": ir.OpMul,
	"&": ir.OpBitAnd, "|": ir.OpBitOr, "^": ir.OpBitXor,
	"<<": ir.OpShl, ">>": ir.OpShr,
	"==": ir.OpEq, "!=": ir.OpNeq, "<": ir.OpLt, "<=": ir.OpLte, ">": ir.OpGt, ">=": ir.OpGte,
	"&&": ir.OpLogAnd, "||": ir.OpLogOr,
}

func (l *lowerer) lowerInfix(ex *ast.InfixExpr) ir.Value {
	// Assignment rebinds the SSA environment rather than emitting an
	// instruction: Celestial IR is strict SSA, so `name = expr` means
	// "the env entry for name now names this new value" (mirrors
	// checker.checkInfix's own default-to-left-hand-type treatment of "=",
	// which likewise does no special binding-state bookkeeping beyond what
	// checkExpr(ex.Left) already did).
	if ex.Operator == "=" {
		v := l.lowerExpr(ex.Right)
		if id, ok := ex.Left.(*ast.Ident); ok {
			l.env[id.Value] = v
		}
		return v
	}

	left := l.lowerExpr(ex.Left)

	switch ex.Operator {
	case "/":
		right := l.lowerExpr(ex.Right)
		result := l.b.NewValue(left.Type, "", true)
		return l.b.EmitDiv(result, left, right)
	case "%":
		right := l.lowerExpr(ex.Right)
		result := l.b.NewValue(left.Type, "", true)
		return l.b.EmitMod(result, left, right)
	case "??":
		right := l.lowerExpr(ex.Right)
		result := l.b.NewValue(left.Type, "", false)
		return l.b.EmitVoidCoalesce(result, left, right)
	}

	right := l.lowerExpr(ex.Right)
	op, ok := infixOps[ex.Operator]
	if !ok {
		l.diags.Add(diag.Diagnostic{Kind: diag.KindInternal, Message: "lower: unknown infix operator " + ex.Operator})
		return left
	}
	typ := left.Type
	switch ex.Operator {
	case "==", "!=", "<", "<=", ">", ">=", "&&", "||":
		typ = ir.TypeBool
	}
	result := l.b.NewValue(typ, "", left.MayBeVoid || right.MayBeVoid)
	return l.b.Emit(op, result, left, right)
}

// lowerCall lowers every call, atlas/aether-prefixed ones included, to a
// plain OpCall. No substrate-enter/exit pair is emitted around a call, so a
// call's substrate use is visible only as the effect bit the checker infers.
func (l *lowerer) lowerCall(ex *ast.CallExpr) ir.Value {
	id, isIdent := ex.Function.(*ast.Ident)
	var args []ir.Value
	for _, a := range ex.Arguments {
		args = append(args, l.lowerExpr(a))
	}
	if !isIdent {
		l.lowerExpr(ex.Function)
		result := l.b.NewValue(ir.TypeI64, "", true)
		return l.b.EmitCall(result, "", args...)
	}
	result := l.b.NewValue(ir.TypeI64, "", true)
	return l.b.EmitCall(result, id.Value, args...)
}

func (l *lowerer) lowerIf(ex *ast.IfExpr) ir.Value {
	fn := l.curFunc()
	cond := l.lowerExpr(ex.Condition)
	thenBlk := newNamedBlock(l.b, fn, "if.then")
	elseBlk := newNamedBlock(l.b, fn, "if.else")
	joinBlk := newNamedBlock(l.b, fn, "if.join")
	l.b.EmitCondBranch(cond, thenBlk, elseBlk)

	l.b.SetBlock(thenBlk)
	thenVal := l.lowerBlock(ex.Then)
	if curBlockOpen(fn) {
		l.b.EmitBranch(joinBlk)
	}

	l.b.SetBlock(elseBlk)
	var elseVal ir.Value
	if ex.Else != nil {
		elseVal = l.lowerExpr(ex.Else)
	} else {
		elseVal = ir.Value{Type: ir.TypeVoid}
	}
	if curBlockOpen(fn) {
		l.b.EmitBranch(joinBlk)
	}

	l.b.SetBlock(joinBlk)
	result := l.b.NewValue(thenVal.Type, "", thenVal.MayBeVoid || elseVal.MayBeVoid)
	return l.b.EmitPhi(result, thenVal, elseVal)
}

func curBlockOpen(fn *ir.Function) bool {
	if len(fn.Blocks) == 0 {
		return true
	}
	return fn.Blocks[len(fn.Blocks)-1].Terminator == nil
}

// lowerMatch does not lower pattern tests: it evaluates the subject, then
// every arm's guard and body in order for their side effects (so effect
// inference and this pass agree on what executes), and the last arm's
// value is the match's value,
// mirroring checker.checkExpr's MatchExpr case exactly.
func (l *lowerer) lowerMatch(ex *ast.MatchExpr) ir.Value {
	l.lowerExpr(ex.Subject)
	var last ir.Value
	for _, arm := range ex.Arms {
		if arm.Guard != nil {
			l.lowerExpr(arm.Guard)
		}
		last = l.lowerExpr(arm.Body)
	}
	return last
}

// lowerSubstrateBlock emits OpSubstrateEnter/Exit around the body, pinning
// a placeholder capability value (the real capability comes from the
// enclosing scope's substrate-typed binding; this pass does not yet thread
// a per-block capability resolver, see DESIGN.md). recover/else re-lower as
// VOID-coalesce, matching the checker's own recover-else re-typing rule.
func (l *lowerer) lowerSubstrateBlock(sb *ast.SubstrateBlock) ir.Value {
	capVal := l.b.NewValue(ir.TypeCapability, "", false)
	l.b.EmitSubstrateEnter(sb.Kind, capVal)
	bodyVal := l.lowerBlock(sb.Body)
	l.b.EmitSubstrateExit(sb.Kind)

	if sb.Recover == nil {
		return bodyVal
	}
	recoverVal := l.lowerBlock(sb.Recover)
	if sb.ElseBlock != nil {
		elseVal := l.lowerBlock(sb.ElseBlock)
		result := l.b.NewValue(recoverVal.Type, "", false)
		return l.b.EmitVoidCoalesce(result, recoverVal, elseVal)
	}
	return recoverVal
}
