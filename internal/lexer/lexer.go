// Copyright 2024 The SERAPH Authors
// This file is part of SERAPH.
//
// SERAPH is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package lexer implements a single-pass, no-backtracking lexer for
// Seraphim.
//
// Design principles:
//   - ASCII-only input
//   - Single-pass, no backtracking
//   - Support // line comments and /* */ block comments
//   - Numeric literals carry an optional width/class suffix (spec §4.1):
//     u, i, u8..u64, i8..i64, s, d, g
//   - String literals ("...") support standard escape sequences
//   - Maximal munch for multi-character operators, including the
//     three-character "..=" and "<<=" / ">>=" forms
//   - A lex failure never panics: it produces a VOID_TOKEN carrying the
//     offending byte, so the parser can keep accumulating diagnostics
//     (spec §7)
package lexer

import (
	"github.com/seraphlang/seraph/internal/token"
)

// Lexer holds the state for a single-pass tokenization run.
type Lexer struct {
	filename string
	input    []byte

	// pos is the index into input of the next byte to be loaded into ch.
	// After advance(), ch == input[pos-1] and pos points one past it.
	pos  int
	line int
	col  int

	ch byte // current character; 0 when past end
}

// New creates a new Lexer for the given filename and input string.
func New(filename, input string) *Lexer {
	l := &Lexer{
		filename: filename,
		input:    []byte(input),
		line:     1,
		col:      0,
	}
	l.advance() // prime l.ch with the first byte
	return l
}

func (l *Lexer) advance() {
	if l.ch == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	if l.pos >= len(l.input) {
		l.ch = 0
		return
	}
	l.ch = l.input[l.pos]
	l.pos++
}

func (l *Lexer) peek() byte {
	if l.pos >= len(l.input) {
		return 0
	}
	return l.input[l.pos]
}

func (l *Lexer) peek2() byte {
	if l.pos+1 >= len(l.input) {
		return 0
	}
	return l.input[l.pos+1]
}

func (l *Lexer) currentPos() token.Position {
	return token.Position{
		File:   l.filename,
		Line:   l.line,
		Column: l.col,
		Offset: l.pos - 1,
	}
}

func makeToken(typ token.Type, literal string, pos token.Position) token.Token {
	return token.Token{Type: typ, Literal: literal, Pos: pos}
}

func (l *Lexer) skipWhitespace() {
	for l.ch == ' ' || l.ch == '\t' || l.ch == '\r' || l.ch == '\n' {
		l.advance()
	}
}

// NextToken scans and returns the next token from the input. After EOF is
// reached, subsequent calls continue returning EOF tokens.
func (l *Lexer) NextToken() token.Token {
	l.skipWhitespace()

	pos := l.currentPos()
	ch := l.ch

	if ch == 0 {
		return makeToken(token.EOF, "", pos)
	}

	l.advance() // consume ch; from here on, l.ch is the character AFTER ch

	switch {
	case isIdentStart(ch):
		lit := l.readIdentFromFirst(ch)
		typ := token.LookupIdent(lit)
		return makeToken(typ, lit, pos)

	case isDigit(ch):
		return l.readNumberFromFirst(ch, pos)

	case ch == '"':
		lit, ok := l.readStringBody()
		if !ok {
			return makeToken(token.VOID_TOKEN, lit, pos)
		}
		return makeToken(token.STRING, lit, pos)

	case ch == '\'':
		lit, ok := l.readCharBody()
		if !ok {
			return makeToken(token.VOID_TOKEN, lit, pos)
		}
		return makeToken(token.CHAR, lit, pos)

	case ch == '/':
		switch l.ch {
		case '/':
			l.advance()
			body := l.readLineCommentBody()
			return makeToken(token.COMMENT, "//"+body, pos)
		case '*':
			lit, ok := l.readBlockCommentBody()
			if !ok {
				return makeToken(token.VOID_TOKEN, lit, pos)
			}
			return makeToken(token.COMMENT, lit, pos)
		case '=':
			l.advance()
			return makeToken(token.SLASHEQ, "/=", pos)
		default:
			return makeToken(token.SLASH, "/", pos)
		}

	case ch == '+':
		if l.ch == '=' {
			l.advance()
			return makeToken(token.PLUSEQ, "+=", pos)
		}
		return makeToken(token.PLUS, "+", pos)

	case ch == '-':
		switch l.ch {
		case '=':
			l.advance()
			return makeToken(token.MINUSEQ, "-=", pos)
		case '>':
			l.advance()
			return makeToken(token.ARROW, "->", pos)
		default:
			return makeToken(token.MINUS, "-", pos)
		}

	case ch == '*':
		if l.ch == '=' {
			l.advance()
			return makeToken(token.STAREQ, "*=", pos)
		}
		return makeToken(token.STAR, "*", pos)

	case ch == '%':
		if l.ch == '=' {
			l.advance()
			return makeToken(token.PERCENTEQ, "%=", pos)
		}
		return makeToken(token.PERCENT, "%", pos)

	case ch == '&':
		switch l.ch {
		case '&':
			l.advance()
			return makeToken(token.ANDAND, "&&", pos)
		case '=':
			l.advance()
			return makeToken(token.AMPEQ, "&=", pos)
		default:
			return makeToken(token.AMP, "&", pos)
		}

	case ch == '|':
		switch l.ch {
		case '|':
			l.advance()
			return makeToken(token.OROR, "||", pos)
		case '=':
			l.advance()
			return makeToken(token.PIPEEQ, "|=", pos)
		case '>':
			l.advance()
			return makeToken(token.PIPEOP, "|>", pos)
		default:
			return makeToken(token.PIPE, "|", pos)
		}

	case ch == '^':
		if l.ch == '=' {
			l.advance()
			return makeToken(token.CARETEQ, "^=", pos)
		}
		return makeToken(token.CARET, "^", pos)

	case ch == '!':
		switch l.ch {
		case '=':
			l.advance()
			return makeToken(token.NEQ, "!=", pos)
		case '!':
			l.advance()
			return makeToken(token.BANGBANG, "!!", pos)
		default:
			return makeToken(token.BANG, "!", pos)
		}

	case ch == '?':
		if l.ch == '?' {
			l.advance()
			return makeToken(token.QQ, "??", pos)
		}
		return makeToken(token.VOID_TOKEN, "?", pos)

	case ch == '=':
		switch l.ch {
		case '=':
			l.advance()
			return makeToken(token.EQ, "==", pos)
		case '>':
			l.advance()
			return makeToken(token.FATARROW, "=>", pos)
		default:
			return makeToken(token.ASSIGN, "=", pos)
		}

	case ch == '<':
		switch l.ch {
		case '<':
			l.advance()
			if l.ch == '=' {
				l.advance()
				return makeToken(token.LSHIFTEQ, "<<=", pos)
			}
			return makeToken(token.LSHIFT, "<<", pos)
		case '=':
			l.advance()
			return makeToken(token.LTE, "<=", pos)
		default:
			return makeToken(token.LT, "<", pos)
		}

	case ch == '>':
		switch l.ch {
		case '>':
			l.advance()
			if l.ch == '=' {
				l.advance()
				return makeToken(token.RSHIFTEQ, ">>=", pos)
			}
			return makeToken(token.RSHIFT, ">>", pos)
		case '=':
			l.advance()
			return makeToken(token.GTE, ">=", pos)
		default:
			return makeToken(token.GT, ">", pos)
		}

	// Dot: field access (.), range (..), or inclusive range (..=).
	case ch == '.':
		if l.ch == '.' {
			l.advance()
			if l.ch == '=' {
				l.advance()
				return makeToken(token.DOTDOTEQ, "..=", pos)
			}
			return makeToken(token.DOTDOT, "..", pos)
		}
		return makeToken(token.DOT, ".", pos)

	case ch == ':':
		if l.ch == ':' {
			l.advance()
			return makeToken(token.COLONCOLON, "::", pos)
		}
		return makeToken(token.COLON, ":", pos)

	case ch == '~':
		return makeToken(token.TILDE, "~", pos)
	case ch == '(':
		return makeToken(token.LPAREN, "(", pos)
	case ch == ')':
		return makeToken(token.RPAREN, ")", pos)
	case ch == '[':
		return makeToken(token.LBRACKET, "[", pos)
	case ch == ']':
		return makeToken(token.RBRACKET, "]", pos)
	case ch == '{':
		return makeToken(token.LBRACE, "{", pos)
	case ch == '}':
		return makeToken(token.RBRACE, "}", pos)
	case ch == ',':
		return makeToken(token.COMMA, ",", pos)
	case ch == ';':
		return makeToken(token.SEMICOLON, ";", pos)
	}

	return makeToken(token.VOID_TOKEN, string([]byte{ch}), pos)
}

// Tokenize returns all tokens (including the final EOF) produced by repeated
// calls to NextToken.
func (l *Lexer) Tokenize() []token.Token {
	var toks []token.Token
	for {
		tok := l.NextToken()
		toks = append(toks, tok)
		if tok.Type == token.EOF {
			break
		}
	}
	return toks
}

// ---------------------------------------------------------------------------
// Internal readers
// ---------------------------------------------------------------------------

func (l *Lexer) readIdentFromFirst(first byte) string {
	buf := make([]byte, 1, 16)
	buf[0] = first
	for isIdentContinue(l.ch) {
		buf = append(buf, l.ch)
		l.advance()
	}
	return string(buf)
}

// numericSuffixes are recognized in maximal-munch, longest-first order so
// "u64" isn't cut short at "u" (spec §4.1).
var numericSuffixes = []string{
	"u64", "u32", "u16", "u8",
	"i64", "i32", "i16", "i8",
	"u", "i", "s", "d", "g",
}

// readNumberFromFirst parses an integer or float literal given the
// already-consumed first digit, then consumes an optional trailing suffix
// token (u, i, u8..u64, i8..i64, s for Scalar, d for doubled-precision
// Scalar, g for Galactic).
func (l *Lexer) readNumberFromFirst(first byte, pos token.Position) token.Token {
	buf := make([]byte, 1, 24)
	buf[0] = first

	typ := token.INT

	for isDigit(l.ch) {
		buf = append(buf, l.ch)
		l.advance()
	}

	if l.ch == '.' && isDigit(l.peek()) {
		typ = token.FLOAT
		buf = append(buf, '.')
		l.advance()
		for isDigit(l.ch) {
			buf = append(buf, l.ch)
			l.advance()
		}
		if l.ch == 'e' || l.ch == 'E' {
			buf = append(buf, l.ch)
			l.advance()
			if l.ch == '+' || l.ch == '-' {
				buf = append(buf, l.ch)
				l.advance()
			}
			for isDigit(l.ch) {
				buf = append(buf, l.ch)
				l.advance()
			}
		}
	}

	suffix := l.readNumericSuffix()
	tok := makeToken(typ, string(buf), pos)
	tok.Suffix = suffix
	return tok
}

// readNumericSuffix consumes one of numericSuffixes if the upcoming bytes
// match exactly (not merely as an identifier prefix — "use" must not be
// swallowed as suffix "u" followed by ident "se").
func (l *Lexer) readNumericSuffix() string {
	for _, suf := range numericSuffixes {
		if l.matchesAhead(suf) && !isIdentContinue(l.byteAt(len(suf))) {
			for range suf {
				l.advance()
			}
			return suf
		}
	}
	return ""
}

// matchesAhead reports whether the bytes starting at the current character
// (l.ch plus lookahead) equal s.
func (l *Lexer) matchesAhead(s string) bool {
	if len(s) == 0 {
		return false
	}
	if l.ch != s[0] {
		return false
	}
	for i := 1; i < len(s); i++ {
		if l.byteAt(i) != s[i] {
			return false
		}
	}
	return true
}

// byteAt returns the byte n positions from l.ch (0 == l.ch, 1 == l.peek()),
// or 0 past end of input.
func (l *Lexer) byteAt(n int) byte {
	idx := l.pos + n - 1
	if idx < 0 {
		return l.ch
	}
	if idx >= len(l.input) {
		return 0
	}
	return l.input[idx]
}

func (l *Lexer) readStringBody() (string, bool) {
	buf := make([]byte, 1, 32)
	buf[0] = '"'
	for {
		switch l.ch {
		case 0, '\n':
			return string(buf), false
		case '\\':
			buf = append(buf, '\\')
			l.advance()
			if l.ch == 0 {
				return string(buf), false
			}
			buf = append(buf, l.ch)
			l.advance()
		case '"':
			buf = append(buf, '"')
			l.advance()
			return string(buf), true
		default:
			buf = append(buf, l.ch)
			l.advance()
		}
	}
}

func (l *Lexer) readCharBody() (string, bool) {
	buf := make([]byte, 1, 4)
	buf[0] = '\''
	if l.ch == '\\' {
		buf = append(buf, l.ch)
		l.advance()
		if l.ch == 0 {
			return string(buf), false
		}
		buf = append(buf, l.ch)
		l.advance()
	} else if l.ch != 0 && l.ch != '\'' {
		buf = append(buf, l.ch)
		l.advance()
	} else {
		return string(buf), false
	}
	if l.ch != '\'' {
		return string(buf), false
	}
	buf = append(buf, '\'')
	l.advance()
	return string(buf), true
}

func (l *Lexer) readLineCommentBody() string {
	var buf []byte
	for l.ch != '\n' && l.ch != 0 {
		buf = append(buf, l.ch)
		l.advance()
	}
	return string(buf)
}

func (l *Lexer) readBlockCommentBody() (string, bool) {
	buf := []byte{'/', '*'}
	l.advance()
	for {
		switch {
		case l.ch == 0:
			return string(buf), false
		case l.ch == '*' && l.peek() == '/':
			buf = append(buf, '*', '/')
			l.advance()
			l.advance()
			return string(buf), true
		default:
			buf = append(buf, l.ch)
			l.advance()
		}
	}
}

// ---------------------------------------------------------------------------
// Character classification helpers
// ---------------------------------------------------------------------------

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isIdentStart(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch == '_'
}

func isIdentContinue(ch byte) bool {
	return isIdentStart(ch) || isDigit(ch)
}
