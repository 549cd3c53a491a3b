// Copyright 2024 The SERAPH Authors
// This file is part of SERAPH.
//
// SERAPH is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package parser implements a recursive-descent / Pratt parser for
// Seraphim.
//
// Design overview:
//
//   - Declarations are parsed with straightforward recursive descent.
//   - Expressions are parsed with a Pratt (top-down operator precedence)
//     table, reusing the binding powers defined in internal/token so the
//     lexer's notion of precedence and the parser's agree by construction.
//   - Errors are collected rather than aborting; the parser attempts to
//     recover by skipping to the next semicolon or closing brace so that
//     subsequent declarations can still be parsed (spec §7).
//   - Comments produced by the lexer are silently skipped.
//   - `??` is disambiguated between its postfix (VOID propagation) and
//     infix (VOID coalescing) forms by whether an expression can start at
//     the following token — the Open Question decision recorded in
//     SPEC_FULL.md §9.
package parser

import (
	"fmt"
	"strconv"

	"github.com/seraphlang/seraph/internal/ast"
	"github.com/seraphlang/seraph/internal/lexer"
	"github.com/seraphlang/seraph/internal/token"
)

// Parser holds the mutable state for a single parse run.
type Parser struct {
	lex  *lexer.Lexer
	cur  token.Token
	peek token.Token

	errors []error

	prefixFns map[token.Type]func() ast.Expression
	infixFns  map[token.Type]func(ast.Expression) ast.Expression
}

func newParser(filename, source string) *Parser {
	p := &Parser{lex: lexer.New(filename, source)}
	p.advance()
	p.advance()

	p.prefixFns = map[token.Type]func() ast.Expression{
		token.IDENT:    p.parseIdentOrStruct,
		token.INT:      p.parseIntLiteral,
		token.FLOAT:    p.parseFloatLiteral,
		token.STRING:   p.parseStringLiteral,
		token.CHAR:     p.parseCharLiteral,
		token.TRUE:     p.parseBoolLiteral,
		token.FALSE:    p.parseBoolLiteral,
		token.MINUS:    p.parsePrefixExpr,
		token.BANG:     p.parsePrefixExpr,
		token.TILDE:    p.parsePrefixExpr,
		token.AMP:      p.parsePrefixExpr,
		token.LPAREN:   p.parseGroupedExpr,
		token.LBRACKET: p.parseArrayLiteral,
		token.LBRACE:   p.parseBlockExprAsExpr,
		token.IF:       p.parseIfExpr,
		token.MATCH:    p.parseMatchExpr,
		token.PERSIST:  p.parseSubstrateBlock,
		token.AETHER:   p.parseSubstrateBlock,
		token.SELF:     p.parseIdentOrStruct,
	}

	p.infixFns = map[token.Type]func(ast.Expression) ast.Expression{
		token.PLUS: p.parseInfixExpr, token.MINUS: p.parseInfixExpr,
		token.STAR: p.parseInfixExpr, token.SLASH: p.parseInfixExpr, token.PERCENT: p.parseInfixExpr,
		token.AMP: p.parseInfixExpr, token.PIPE: p.parseInfixExpr, token.CARET: p.parseInfixExpr,
		token.LSHIFT: p.parseInfixExpr, token.RSHIFT: p.parseInfixExpr,
		token.EQ: p.parseInfixExpr, token.NEQ: p.parseInfixExpr,
		token.LT: p.parseInfixExpr, token.GT: p.parseInfixExpr, token.LTE: p.parseInfixExpr, token.GTE: p.parseInfixExpr,
		token.ANDAND: p.parseInfixExpr, token.OROR: p.parseInfixExpr,
		token.ASSIGN: p.parseInfixExpr,
		token.DOTDOT: p.parseRangeExpr, token.DOTDOTEQ: p.parseRangeExpr,
		token.DOT:      p.parseFieldOrMethodExpr,
		token.LBRACKET: p.parseIndexExpr,
		token.LPAREN:   p.parseCallExpr,
		token.QQ:       p.parseQQExpr,
		token.BANGBANG: p.parseVoidAssertExpr,
		token.PIPEOP:   p.parsePipeExpr,
	}
	return p
}

// Parse is the public entry point: it tokenizes source, runs the parser,
// and returns the program AST together with any non-fatal errors that were
// collected along the way.
func Parse(filename, source string) (*ast.Program, []error) {
	p := newParser(filename, source)
	prog := p.parseProgram()
	return prog, p.errors
}

// ---------------------------------------------------------------------------
// Token navigation helpers
// ---------------------------------------------------------------------------

func (p *Parser) advance() {
	p.cur = p.peek
	for {
		p.peek = p.lex.NextToken()
		if p.peek.Type != token.COMMENT {
			break
		}
	}
}

func (p *Parser) expect(typ token.Type) (token.Token, bool) {
	if p.cur.Type == typ {
		tok := p.cur
		p.advance()
		return tok, true
	}
	p.errorf(p.cur.Pos, "expected %s, got %s (%q)", typ, p.cur.Type, p.cur.Literal)
	return p.cur, false
}

func (p *Parser) curIs(typ token.Type) bool  { return p.cur.Type == typ }
func (p *Parser) peekIs(typ token.Type) bool { return p.peek.Type == typ }

// skipTo advances until one of the given types (or EOF) is current, for
// error recovery.
func (p *Parser) skipTo(types ...token.Type) {
	for p.cur.Type != token.EOF {
		for _, t := range types {
			if p.cur.Type == t {
				return
			}
		}
		p.advance()
	}
}

func (p *Parser) errorf(pos token.Position, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	p.errors = append(p.errors, fmt.Errorf("%s: %s", pos, msg))
}

// startsExpression reports whether an expression can begin at t — used to
// disambiguate `??`'s postfix (propagate) vs. infix (coalesce) reading.
func startsExpression(t token.Type) bool {
	switch t {
	case token.IDENT, token.INT, token.FLOAT, token.STRING, token.CHAR,
		token.TRUE, token.FALSE, token.MINUS, token.BANG, token.TILDE, token.AMP,
		token.LPAREN, token.LBRACKET, token.LBRACE, token.IF, token.MATCH,
		token.PERSIST, token.AETHER, token.SELF:
		return true
	default:
		return false
	}
}

// ---------------------------------------------------------------------------
// Program and declarations
// ---------------------------------------------------------------------------

func (p *Parser) parseProgram() *ast.Program {
	prog := &ast.Program{}
	for !p.curIs(token.EOF) {
		decl := p.parseDeclaration()
		if decl != nil {
			prog.Declarations = append(prog.Declarations, decl)
		} else {
			p.skipTo(token.FN, token.STRUCT, token.ENUM, token.CONST, token.USE, token.IMPL, token.EOF)
		}
	}
	return prog
}

func (p *Parser) parseDeclaration() ast.Declaration {
	switch p.cur.Type {
	case token.LBRACKET, token.EFFECTS:
		ann := p.parseEffectAnnotation()
		if !p.curIs(token.FN) {
			p.errorf(p.cur.Pos, "expected fn after effect annotation, got %s", p.cur.Type)
			return nil
		}
		return p.parseFnDecl(ann)
	case token.FN:
		return p.parseFnDecl(nil)
	case token.STRUCT:
		return p.parseStructDecl()
	case token.ENUM:
		return p.parseEnumDecl()
	case token.CONST:
		return p.parseConstDecl()
	case token.USE:
		return p.parseUseDecl()
	case token.IMPL:
		return p.parseImplDecl()
	default:
		p.errorf(p.cur.Pos, "expected declaration, got %s", p.cur.Type)
		return nil
	}
}

// parseEffectAnnotation parses `[pure]` or `effects(NAME, NAME, ...)`.
func (p *Parser) parseEffectAnnotation() *ast.EffectAnnotation {
	if p.curIs(token.LBRACKET) {
		tok := p.cur
		p.advance()
		if !p.curIs(token.PURE) {
			p.errorf(p.cur.Pos, "expected 'pure' inside [], got %s", p.cur.Type)
		} else {
			p.advance()
		}
		p.expect(token.RBRACKET)
		return &ast.EffectAnnotation{Token: tok, Pure: true}
	}

	tok := p.cur
	p.advance() // consume 'effects'
	p.expect(token.LPAREN)
	var names []string
	for !p.curIs(token.RPAREN) && !p.curIs(token.EOF) {
		if p.curIs(token.IDENT) {
			names = append(names, p.cur.Literal)
			p.advance()
		}
		if p.curIs(token.COMMA) {
			p.advance()
		}
	}
	p.expect(token.RPAREN)
	return &ast.EffectAnnotation{Token: tok, Pure: false, Effect: names}
}

func (p *Parser) parseFnDecl(ann *ast.EffectAnnotation) *ast.FnDecl {
	tok := p.cur
	p.expect(token.FN)
	name := p.cur.Literal
	p.expect(token.IDENT)
	p.expect(token.LPAREN)
	var params []ast.Param
	for !p.curIs(token.RPAREN) && !p.curIs(token.EOF) {
		before := p.cur
		params = append(params, p.parseParam())
		if p.curIs(token.COMMA) {
			p.advance()
		} else if p.cur == before {
			break // parseParam consumed nothing; stop instead of looping
		}
	}
	p.expect(token.RPAREN)

	var ret ast.TypeExpr
	if p.curIs(token.ARROW) {
		p.advance()
		ret = p.parseType()
	}

	body := p.parseBlockExpr()
	return &ast.FnDecl{Token: tok, Name: name, Annotation: ann, Params: params, ReturnType: ret, Body: body}
}

func (p *Parser) parseParam() ast.Param {
	tok := p.cur
	mutable := false
	if p.curIs(token.MUT) {
		mutable = true
		p.advance()
	}
	name := p.cur.Literal
	if p.curIs(token.SELF) {
		p.advance()
	} else {
		p.expect(token.IDENT)
	}
	var typ ast.TypeExpr
	if p.curIs(token.COLON) {
		p.advance()
		typ = p.parseType()
	}
	return ast.Param{Token: tok, Name: name, Mutable: mutable, Type: typ}
}

func (p *Parser) parseStructDecl() *ast.StructDecl {
	tok := p.cur
	p.expect(token.STRUCT)
	name := p.cur.Literal
	p.expect(token.IDENT)
	p.expect(token.LBRACE)
	var fields []ast.Field
	for !p.curIs(token.RBRACE) && !p.curIs(token.EOF) {
		ftok := p.cur
		pub := false
		fname := p.cur.Literal
		p.expect(token.IDENT)
		p.expect(token.COLON)
		ftype := p.parseType()
		fields = append(fields, ast.Field{Token: ftok, Name: fname, Public: pub, Type: ftype})
		if p.curIs(token.COMMA) {
			p.advance()
		}
	}
	p.expect(token.RBRACE)
	return &ast.StructDecl{Token: tok, Name: name, Fields: fields}
}

func (p *Parser) parseEnumDecl() *ast.EnumDecl {
	tok := p.cur
	p.expect(token.ENUM)
	name := p.cur.Literal
	p.expect(token.IDENT)
	p.expect(token.LBRACE)
	var variants []ast.EnumVariant
	for !p.curIs(token.RBRACE) && !p.curIs(token.EOF) {
		vtok := p.cur
		vname := p.cur.Literal
		p.expect(token.IDENT)
		var fields []ast.TypeExpr
		if p.curIs(token.LPAREN) {
			p.advance()
			for !p.curIs(token.RPAREN) && !p.curIs(token.EOF) {
				fields = append(fields, p.parseType())
				if p.curIs(token.COMMA) {
					p.advance()
				}
			}
			p.expect(token.RPAREN)
		}
		variants = append(variants, ast.EnumVariant{Token: vtok, Name: vname, Fields: fields})
		if p.curIs(token.COMMA) {
			p.advance()
		}
	}
	p.expect(token.RBRACE)
	return &ast.EnumDecl{Token: tok, Name: name, Variants: variants}
}

func (p *Parser) parseConstDecl() *ast.ConstDecl {
	tok := p.cur
	p.expect(token.CONST)
	name := p.cur.Literal
	p.expect(token.IDENT)
	var typ ast.TypeExpr
	if p.curIs(token.COLON) {
		p.advance()
		typ = p.parseType()
	}
	p.expect(token.ASSIGN)
	val := p.parseExpression(token.PrecNone)
	if p.curIs(token.SEMICOLON) {
		p.advance()
	}
	return &ast.ConstDecl{Token: tok, Name: name, Type: typ, Value: val}
}

func (p *Parser) parseUseDecl() *ast.UseDecl {
	tok := p.cur
	p.expect(token.USE)
	var path []string
	path = append(path, p.cur.Literal)
	p.expect(token.IDENT)
	for p.curIs(token.COLONCOLON) {
		p.advance()
		path = append(path, p.cur.Literal)
		p.expect(token.IDENT)
	}
	if p.curIs(token.SEMICOLON) {
		p.advance()
	}
	return &ast.UseDecl{Token: tok, Path: path}
}

func (p *Parser) parseImplDecl() *ast.ImplDecl {
	tok := p.cur
	p.expect(token.IMPL)
	target := p.cur.Literal
	p.expect(token.IDENT)
	p.expect(token.LBRACE)
	var methods []*ast.FnDecl
	for !p.curIs(token.RBRACE) && !p.curIs(token.EOF) {
		var ann *ast.EffectAnnotation
		if p.curIs(token.LBRACKET) || p.curIs(token.EFFECTS) {
			ann = p.parseEffectAnnotation()
		}
		methods = append(methods, p.parseFnDecl(ann))
	}
	p.expect(token.RBRACE)
	return &ast.ImplDecl{Token: tok, Target: target, Methods: methods}
}

// ---------------------------------------------------------------------------
// Types
// ---------------------------------------------------------------------------

func (p *Parser) parseType() ast.TypeExpr {
	var base ast.TypeExpr
	switch p.cur.Type {
	case token.AMP:
		tok := p.cur
		p.advance()
		if p.curIs(token.MUT) {
			p.advance()
			base = &ast.MutRefType{Token: tok, Elem: p.parseType()}
		} else {
			base = &ast.RefType{Token: tok, Elem: p.parseType()}
		}
	case token.LBRACKET:
		tok := p.cur
		p.advance()
		elem := p.parseType()
		if p.curIs(token.SEMICOLON) {
			p.advance()
			size := p.parseExpression(token.PrecNone)
			p.expect(token.RBRACKET)
			base = &ast.ArrayType{Token: tok, Elem: elem, Size: size}
		} else {
			p.expect(token.RBRACKET)
			base = &ast.SliceType{Token: tok, Elem: elem}
		}
	case token.FN:
		tok := p.cur
		p.advance()
		p.expect(token.LPAREN)
		var params []ast.TypeExpr
		for !p.curIs(token.RPAREN) && !p.curIs(token.EOF) {
			params = append(params, p.parseType())
			if p.curIs(token.COMMA) {
				p.advance()
			}
		}
		p.expect(token.RPAREN)
		var ret ast.TypeExpr
		if p.curIs(token.ARROW) {
			p.advance()
			ret = p.parseType()
		}
		base = &ast.FnType{Token: tok, ParamTypes: params, ReturnType: ret}
	default:
		tok := p.cur
		name := p.cur.Literal
		p.expect(token.IDENT)
		base = &ast.NamedType{Token: tok, Name: name}
	}

	if p.curIs(token.QQ) {
		tok := p.cur
		p.advance()
		base = &ast.VoidableType{Token: tok, Elem: base}
	}
	return base
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (p *Parser) parseBlockExpr() *ast.BlockExpr {
	tok := p.cur
	p.expect(token.LBRACE)
	block := &ast.BlockExpr{Token: tok}
	for !p.curIs(token.RBRACE) && !p.curIs(token.EOF) {
		if isExprStart(p.cur.Type) {
			expr := p.parseExpression(token.PrecNone)
			if p.curIs(token.RBRACE) {
				block.Trailing = expr
				break
			}
			block.Statements = append(block.Statements, &ast.ExprStmt{Token: tok, Expr: expr})
			if p.curIs(token.SEMICOLON) {
				p.advance()
			}
			continue
		}
		stmt := p.parseStatement()
		if stmt != nil {
			block.Statements = append(block.Statements, stmt)
		} else {
			p.skipTo(token.SEMICOLON, token.RBRACE)
			if p.curIs(token.SEMICOLON) {
				p.advance()
			}
		}
	}
	p.expect(token.RBRACE)
	return block
}

func isExprStart(t token.Type) bool {
	return startsExpression(t)
}

func (p *Parser) parseBlockExprAsExpr() ast.Expression {
	return p.parseBlockExpr()
}

func (p *Parser) parseStatement() ast.Statement {
	switch p.cur.Type {
	case token.LET:
		return p.parseLetStmt()
	case token.CONST:
		return p.parseConstStmt()
	case token.RETURN:
		return p.parseReturnStmt()
	case token.WHILE:
		return p.parseWhileStmt()
	case token.FOR:
		return p.parseForInStmt()
	case token.BREAK:
		tok := p.cur
		p.advance()
		if p.curIs(token.SEMICOLON) {
			p.advance()
		}
		return &ast.BreakStmt{Token: tok}
	case token.CONTINUE:
		tok := p.cur
		p.advance()
		if p.curIs(token.SEMICOLON) {
			p.advance()
		}
		return &ast.ContinueStmt{Token: tok}
	default:
		tok := p.cur
		expr := p.parseExpression(token.PrecNone)
		if expr == nil {
			return nil // caller skips to the next ';' or '}'
		}
		if p.curIs(token.SEMICOLON) {
			p.advance()
		}
		return &ast.ExprStmt{Token: tok, Expr: expr}
	}
}

func (p *Parser) parseLetStmt() *ast.LetStmt {
	tok := p.cur
	p.expect(token.LET)
	mutable := false
	if p.curIs(token.MUT) {
		mutable = true
		p.advance()
	}
	name := p.cur.Literal
	p.expect(token.IDENT)
	var typ ast.TypeExpr
	if p.curIs(token.COLON) {
		p.advance()
		typ = p.parseType()
	}
	p.expect(token.ASSIGN)
	val := p.parseExpression(token.PrecNone)
	if p.curIs(token.SEMICOLON) {
		p.advance()
	}
	return &ast.LetStmt{Token: tok, Name: name, Mutable: mutable, Type: typ, Value: val}
}

func (p *Parser) parseConstStmt() *ast.ConstStmt {
	tok := p.cur
	p.expect(token.CONST)
	name := p.cur.Literal
	p.expect(token.IDENT)
	var typ ast.TypeExpr
	if p.curIs(token.COLON) {
		p.advance()
		typ = p.parseType()
	}
	p.expect(token.ASSIGN)
	val := p.parseExpression(token.PrecNone)
	if p.curIs(token.SEMICOLON) {
		p.advance()
	}
	return &ast.ConstStmt{Token: tok, Name: name, Type: typ, Value: val}
}

func (p *Parser) parseReturnStmt() *ast.ReturnStmt {
	tok := p.cur
	p.advance()
	var val ast.Expression
	if !p.curIs(token.SEMICOLON) && !p.curIs(token.RBRACE) {
		val = p.parseExpression(token.PrecNone)
	}
	if p.curIs(token.SEMICOLON) {
		p.advance()
	}
	return &ast.ReturnStmt{Token: tok, Value: val}
}

func (p *Parser) parseWhileStmt() *ast.WhileStmt {
	tok := p.cur
	p.advance()
	cond := p.parseExpression(token.PrecNone)
	body := p.parseBlockExpr()
	return &ast.WhileStmt{Token: tok, Condition: cond, Body: body}
}

func (p *Parser) parseForInStmt() *ast.ForInStmt {
	tok := p.cur
	p.advance()
	name := p.cur.Literal
	p.expect(token.IDENT)
	p.expect(token.IN)
	iter := p.parseExpression(token.PrecNone)
	body := p.parseBlockExpr()
	return &ast.ForInStmt{Token: tok, Name: name, Iterable: iter, Body: body}
}

// ---------------------------------------------------------------------------
// Expressions (Pratt parser)
// ---------------------------------------------------------------------------

func (p *Parser) parseExpression(precedence int) ast.Expression {
	prefix, ok := p.prefixFns[p.cur.Type]
	if !ok {
		p.errorf(p.cur.Pos, "unexpected token %s (%q) in expression", p.cur.Type, p.cur.Literal)
		return nil
	}
	left := prefix()

	for !p.curIs(token.SEMICOLON) && precedence < p.currentInfixPrecedence() {
		infix, ok := p.infixFns[p.cur.Type]
		if !ok {
			break
		}
		left = infix(left)
	}
	return left
}

// currentInfixPrecedence returns token.InfixPrecedence of the current token
// unchanged. `??` gets PrecVoidPostfx in both of its readings; its infixFn,
// parseQQExpr, then decides between postfix propagate and infix coalesce.
func (p *Parser) currentInfixPrecedence() int {
	return token.InfixPrecedence(p.cur.Type)
}

func (p *Parser) parseIdentOrStruct() ast.Expression {
	tok := p.cur
	name := p.cur.Literal
	p.advance()
	if p.curIs(token.LBRACE) && isStructLiteralContext(name) {
		return p.parseStructLiteralBody(tok, name)
	}
	return &ast.Ident{Token: tok, Value: name}
}

// isStructLiteralContext is a deliberately permissive heuristic: any
// capitalized identifier directly followed by '{' is read as a struct
// literal. Lowercase identifiers (e.g. loop/if conditions) never trigger
// it, avoiding the classic `if x {` ambiguity.
func isStructLiteralContext(name string) bool {
	if name == "" {
		return false
	}
	c := name[0]
	return c >= 'A' && c <= 'Z'
}

func (p *Parser) parseStructLiteralBody(tok token.Token, name string) ast.Expression {
	p.expect(token.LBRACE)
	fields := map[string]ast.Expression{}
	var order []string
	for !p.curIs(token.RBRACE) && !p.curIs(token.EOF) {
		fname := p.cur.Literal
		p.expect(token.IDENT)
		p.expect(token.COLON)
		val := p.parseExpression(token.PrecNone)
		fields[fname] = val
		order = append(order, fname)
		if p.curIs(token.COMMA) {
			p.advance()
		}
	}
	p.expect(token.RBRACE)
	return &ast.StructLiteral{Token: tok, Name: name, Fields: fields, Order: order}
}

func (p *Parser) parseIntLiteral() ast.Expression {
	tok := p.cur
	v, err := strconv.ParseInt(tok.Literal, 10, 64)
	if err != nil {
		p.errorf(tok.Pos, "invalid integer literal %q: %v", tok.Literal, err)
	}
	p.advance()
	return &ast.IntLiteral{Token: tok, Value: v, Suffix: tok.Suffix}
}

func (p *Parser) parseFloatLiteral() ast.Expression {
	tok := p.cur
	v, err := strconv.ParseFloat(tok.Literal, 64)
	if err != nil {
		p.errorf(tok.Pos, "invalid float literal %q: %v", tok.Literal, err)
	}
	p.advance()
	return &ast.FloatLiteral{Token: tok, Value: v, Suffix: tok.Suffix}
}

func (p *Parser) parseStringLiteral() ast.Expression {
	tok := p.cur
	p.advance()
	val := tok.Literal
	if len(val) >= 2 {
		val = val[1 : len(val)-1]
	}
	return &ast.StringLiteral{Token: tok, Value: val}
}

func (p *Parser) parseCharLiteral() ast.Expression {
	tok := p.cur
	p.advance()
	var r rune
	if len(tok.Literal) >= 2 {
		inner := tok.Literal[1 : len(tok.Literal)-1]
		if len(inner) > 0 {
			r = rune(inner[0])
		}
	}
	return &ast.CharLiteral{Token: tok, Value: r}
}

func (p *Parser) parseBoolLiteral() ast.Expression {
	tok := p.cur
	p.advance()
	return &ast.BoolLiteral{Token: tok, Value: tok.Type == token.TRUE}
}

func (p *Parser) parsePrefixExpr() ast.Expression {
	tok := p.cur
	op := tok.Literal
	p.advance()
	right := p.parseExpression(token.PrecUnary)
	return &ast.PrefixExpr{Token: tok, Operator: op, Right: right}
}

func (p *Parser) parseGroupedExpr() ast.Expression {
	p.advance() // consume '('
	expr := p.parseExpression(token.PrecNone)
	p.expect(token.RPAREN)
	return expr
}

func (p *Parser) parseArrayLiteral() ast.Expression {
	tok := p.cur
	p.advance()
	var elems []ast.Expression
	for !p.curIs(token.RBRACKET) && !p.curIs(token.EOF) {
		elems = append(elems, p.parseExpression(token.PrecNone))
		if p.curIs(token.COMMA) {
			p.advance()
		}
	}
	p.expect(token.RBRACKET)
	return &ast.ArrayLiteral{Token: tok, Elements: elems}
}

func (p *Parser) parseIfExpr() ast.Expression {
	tok := p.cur
	p.advance()
	cond := p.parseExpressionNoStructLiteral()
	then := p.parseBlockExpr()
	var elseExpr ast.Expression
	if p.curIs(token.ELSE) {
		p.advance()
		if p.curIs(token.IF) {
			elseExpr = p.parseIfExpr()
		} else {
			elseExpr = p.parseBlockExpr()
		}
	}
	return &ast.IfExpr{Token: tok, Condition: cond, Then: then, Else: elseExpr}
}

// parseExpressionNoStructLiteral parses an if condition or match subject.
// It is plain parseExpression: a capitalized `Name {` here is still read as
// a struct literal by parseIdentOrStruct; only a lowercase name followed by
// `{` is left for the following block.
func (p *Parser) parseExpressionNoStructLiteral() ast.Expression {
	return p.parseExpression(token.PrecNone)
}

func (p *Parser) parseMatchExpr() ast.Expression {
	tok := p.cur
	p.advance()
	subject := p.parseExpressionNoStructLiteral()
	p.expect(token.LBRACE)
	var arms []*ast.MatchArm
	for !p.curIs(token.RBRACE) && !p.curIs(token.EOF) {
		atok := p.cur
		pattern := p.parseExpression(token.PrecUnary)
		var guard ast.Expression
		if p.curIs(token.IF) {
			p.advance()
			guard = p.parseExpression(token.PrecNone)
		}
		p.expect(token.FATARROW)
		body := p.parseExpression(token.PrecNone)
		arms = append(arms, &ast.MatchArm{Token: atok, Pattern: pattern, Guard: guard, Body: body})
		if p.curIs(token.COMMA) {
			p.advance()
		}
	}
	p.expect(token.RBRACE)
	return &ast.MatchExpr{Token: tok, Subject: subject, Arms: arms}
}

func (p *Parser) parseSubstrateBlock() ast.Expression {
	tok := p.cur
	kind := tok.Literal
	p.advance()
	body := p.parseBlockExpr()
	var recover, elseBlock *ast.BlockExpr
	if p.curIs(token.RECOVER) {
		p.advance()
		recover = p.parseBlockExpr()
		if p.curIs(token.ELSE) {
			p.advance()
			elseBlock = p.parseBlockExpr()
		}
	}
	return &ast.SubstrateBlock{Token: tok, Kind: kind, Body: body, Recover: recover, ElseBlock: elseBlock}
}

func (p *Parser) parseInfixExpr(left ast.Expression) ast.Expression {
	tok := p.cur
	op := tok.Literal
	prec := token.InfixPrecedence(tok.Type)
	p.advance()
	if token.RightAssociative(tok.Type) {
		prec--
	}
	right := p.parseExpression(prec)
	return &ast.InfixExpr{Token: tok, Left: left, Operator: op, Right: right}
}

func (p *Parser) parseRangeExpr(left ast.Expression) ast.Expression {
	tok := p.cur
	inclusive := tok.Type == token.DOTDOTEQ
	p.advance()
	right := p.parseExpression(token.InfixPrecedence(tok.Type))
	return &ast.RangeExpr{Token: tok, Low: left, High: right, Inclusive: inclusive}
}

func (p *Parser) parseFieldOrMethodExpr(left ast.Expression) ast.Expression {
	tok := p.cur
	p.advance()
	name := p.cur.Literal
	p.expect(token.IDENT)
	if p.curIs(token.LPAREN) {
		p.advance()
		var args []ast.Expression
		for !p.curIs(token.RPAREN) && !p.curIs(token.EOF) {
			args = append(args, p.parseExpression(token.PrecNone))
			if p.curIs(token.COMMA) {
				p.advance()
			}
		}
		p.expect(token.RPAREN)
		return &ast.MethodCallExpr{Token: tok, Receiver: left, Method: name, Arguments: args}
	}
	return &ast.FieldExpr{Token: tok, Object: left, Field: name}
}

func (p *Parser) parseIndexExpr(left ast.Expression) ast.Expression {
	tok := p.cur
	p.advance()
	idx := p.parseExpression(token.PrecNone)
	p.expect(token.RBRACKET)
	return &ast.IndexExpr{Token: tok, Left: left, Index: idx}
}

func (p *Parser) parseCallExpr(left ast.Expression) ast.Expression {
	tok := p.cur
	p.advance()
	var args []ast.Expression
	for !p.curIs(token.RPAREN) && !p.curIs(token.EOF) {
		args = append(args, p.parseExpression(token.PrecNone))
		if p.curIs(token.COMMA) {
			p.advance()
		}
	}
	p.expect(token.RPAREN)
	return &ast.CallExpr{Token: tok, Function: left, Arguments: args}
}

// parseQQExpr implements the Open Question decision: `??` is postfix
// (VOID-propagate) unless an expression can start at the following token,
// in which case it is the infix coalescing operator.
func (p *Parser) parseQQExpr(left ast.Expression) ast.Expression {
	tok := p.cur
	p.advance()
	if startsExpression(p.cur.Type) {
		right := p.parseExpression(token.PrecVoidPostfx)
		return &ast.InfixExpr{Token: tok, Left: left, Operator: "??", Right: right}
	}
	return &ast.VoidPropagateExpr{Token: tok, Value: left}
}

func (p *Parser) parseVoidAssertExpr(left ast.Expression) ast.Expression {
	tok := p.cur
	p.advance()
	return &ast.VoidAssertExpr{Token: tok, Value: left}
}

func (p *Parser) parsePipeExpr(left ast.Expression) ast.Expression {
	tok := p.cur
	p.advance()
	fn := p.parseExpression(token.PrecPipe)
	return &ast.PipeExpr{Token: tok, Left: left, Func: fn}
}
