package rjs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLexerBasicTokens(t *testing.T) {
	toks, err := Tokenize(`let x: num = 1 + 2;`)
	require.NoError(t, err)
	var kinds []TokenKind
	var lexemes []string
	for _, tok := range toks {
		kinds = append(kinds, tok.Kind)
		lexemes = append(lexemes, tok.Lexeme)
	}
	assert.Equal(t, []string{"let", "x", ":", "num", "=", "1", "+", "2", ";", ""}, lexemes)
	assert.Equal(t, TokEOF, kinds[len(kinds)-1])
}

func TestLexerTwoCharOperators(t *testing.T) {
	toks, err := Tokenize(`a == b != c && d || e <= f >= g`)
	require.NoError(t, err)
	var ops []string
	for _, tok := range toks {
		if tok.Kind == TokOperator {
			ops = append(ops, tok.Lexeme)
		}
	}
	assert.Equal(t, []string{"==", "!=", "&&", "||", "<=", ">="}, ops)
}

func TestLexerStringEscapes(t *testing.T) {
	toks, err := Tokenize(`"a\nb\t\"c\\d"`)
	require.NoError(t, err)
	require.Len(t, toks, 2)
	assert.Equal(t, "a\nb\t\"c\\d", toks[0].Lexeme)
}

func TestLexerUnterminatedString(t *testing.T) {
	_, err := Tokenize(`"abc`)
	require.Error(t, err)
	var lexErr *LexError
	assert.ErrorAs(t, err, &lexErr)
}

func TestLexerTemplateStringInterpolation(t *testing.T) {
	toks, err := Tokenize("`hi ${name}, you are ${age + 1}`")
	require.NoError(t, err)
	require.Len(t, toks, 2)
	tok := toks[0]
	require.Equal(t, TokTemplateString, tok.Kind)
	assert.Equal(t, []string{"hi ", ", you are ", ""}, tok.Parts)
	assert.Equal(t, []string{"name", "age + 1"}, tok.Exprs)
}

func TestLexerTemplateNestedBraces(t *testing.T) {
	toks, err := Tokenize("`v=${ {a: 1}.a }`")
	require.NoError(t, err)
	require.Len(t, toks, 2)
	assert.Equal(t, []string{" {a: 1}.a "}, toks[0].Exprs)
}

func TestLexerComments(t *testing.T) {
	toks, err := Tokenize("let x: num = 1; // trailing comment\n/* block\ncomment */let y: num = 2;")
	require.NoError(t, err)
	var idents []string
	for _, tok := range toks {
		if tok.Kind == TokIdent {
			idents = append(idents, tok.Lexeme)
		}
	}
	assert.Equal(t, []string{"x", "y"}, idents)
}

func TestLexerNumberNoExponent(t *testing.T) {
	toks, err := Tokenize("3.14")
	require.NoError(t, err)
	assert.Equal(t, "3.14", toks[0].Lexeme)
}

func TestLexerUnexpectedCharacter(t *testing.T) {
	_, err := Tokenize("let x = @;")
	require.Error(t, err)
}

func TestLexerUnterminatedBlockComment(t *testing.T) {
	_, err := Tokenize("/* never closed")
	require.Error(t, err)
}
