// Copyright 2024 The SERAPH Authors
// This file is part of SERAPH.

package token

import "testing"

func TestLookupIdentFindsKeywords(t *testing.T) {
	cases := map[string]Type{
		"fn":      FN,
		"let":     LET,
		"persist": PERSIST,
		"aether":  AETHER,
		"recover": RECOVER,
		"else":    ELSE,
		"match":   MATCH,
	}
	for ident, want := range cases {
		if got := LookupIdent(ident); got != want {
			t.Errorf("LookupIdent(%q) = %v, want %v", ident, got, want)
		}
	}
}

func TestLookupIdentFallsBackToIdent(t *testing.T) {
	if got := LookupIdent("seraphim_user_name"); got != IDENT {
		t.Errorf("LookupIdent(unreserved) = %v, want IDENT", got)
	}
}

func TestIsKeywordBounds(t *testing.T) {
	if !FN.IsKeyword() {
		t.Errorf("FN should be a keyword")
	}
	if IDENT.IsKeyword() {
		t.Errorf("IDENT should not be a keyword")
	}
	if PLUS.IsKeyword() {
		t.Errorf("PLUS should not be a keyword")
	}
}

func TestIsLiteralBounds(t *testing.T) {
	for _, tok := range []Type{IDENT, INT, FLOAT, STRING, CHAR} {
		if !tok.IsLiteral() {
			t.Errorf("%v should be a literal", tok)
		}
	}
	if FN.IsLiteral() {
		t.Errorf("FN should not be a literal")
	}
}

func TestStringRoundTrip(t *testing.T) {
	cases := map[Type]string{
		FN: "fn", DOTDOTEQ: "..=", QQ: "??", BANGBANG: "!!", PIPEOP: "|>",
		COLONCOLON: "::", FATARROW: "=>",
	}
	for tok, want := range cases {
		if got := tok.String(); got != want {
			t.Errorf("%v.String() = %q, want %q", int(tok), got, want)
		}
	}
}

func TestInfixPrecedenceOrdering(t *testing.T) {
	if InfixPrecedence(STAR) <= InfixPrecedence(PLUS) {
		t.Errorf("* must bind tighter than +")
	}
	if InfixPrecedence(PLUS) <= InfixPrecedence(EQ) {
		t.Errorf("+ must bind tighter than ==")
	}
	if InfixPrecedence(ANDAND) <= InfixPrecedence(OROR) {
		t.Errorf("&& must bind tighter than ||")
	}
	if InfixPrecedence(ASSIGN) != PrecAssign {
		t.Errorf("= must be PrecAssign")
	}
	if InfixPrecedence(PIPEOP) <= InfixPrecedence(QQ) {
		t.Errorf("|> must bind tighter than ??")
	}
}

func TestRightAssociativeAssignOnly(t *testing.T) {
	if !RightAssociative(ASSIGN) {
		t.Errorf("= must be right-associative")
	}
	if RightAssociative(PLUS) {
		t.Errorf("+ must be left-associative")
	}
}
