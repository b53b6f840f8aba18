package scanner

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/toi-lang/toi/lang/token"
)

func scanAll(t *testing.T, src string) []TokenAndValue {
	t.Helper()
	fs := token.NewFileSet()
	file := fs.AddFile("test.toi", len(src))
	var errs []string
	s := New(file, []byte(src), func(pos token.Position, msg string) {
		errs = append(errs, msg)
	})
	var toks []TokenAndValue
	var v token.Value
	for {
		tok := s.Scan(&v)
		toks = append(toks, TokenAndValue{Token: tok, Value: v})
		if tok == token.EOF {
			break
		}
	}
	require.Empty(t, errs, "unexpected scan errors: %v", errs)
	return toks
}

func kinds(toks []TokenAndValue) []token.Token {
	out := make([]token.Token, len(toks))
	for i, tv := range toks {
		out[i] = tv.Token
	}
	return out
}

func TestIndentDedentBalance(t *testing.T) {
	src := "if true:\n  x = 1\n  if true:\n    y = 2\nz = 3\n"
	toks := scanAll(t, src)

	indents, dedents := 0, 0
	for _, tv := range toks {
		switch tv.Token {
		case token.INDENT:
			indents++
		case token.DEDENT:
			dedents++
		}
	}
	require.Equal(t, indents, dedents, "INDENT/DEDENT must balance (§8 invariant 1)")
}

func TestBlankAndCommentLinesDoNotIndent(t *testing.T) {
	src := "x = 1\n\n-- a comment\ny = 2\n"
	toks := kinds(scanAll(t, src))
	for _, tok := range toks {
		require.NotEqual(t, token.INDENT, tok)
		require.NotEqual(t, token.DEDENT, tok)
	}
}

func TestInconsistentIndentationErrors(t *testing.T) {
	fs := token.NewFileSet()
	src := "if true:\n    x = 1\n  y = 2\n"
	file := fs.AddFile("test.toi", len(src))
	var errs []string
	s := New(file, []byte(src), func(pos token.Position, msg string) {
		errs = append(errs, msg)
	})
	var v token.Value
	for {
		if s.Scan(&v) == token.EOF {
			break
		}
	}
	require.NotEmpty(t, errs)
}

func TestNumberWithSeparator(t *testing.T) {
	toks := scanAll(t, "1_000_000\n")
	require.Equal(t, token.INT, toks[0].Token)
	require.Equal(t, int64(1000000), toks[0].Value.Int)
}

func TestStringEscapes(t *testing.T) {
	toks := scanAll(t, `"a\nb"` + "\n")
	require.Equal(t, token.STRING, toks[0].Token)
	require.Equal(t, "a\nb", toks[0].Value.String)
}

func TestRawLongString(t *testing.T) {
	toks := scanAll(t, "[[line1\nline2]]\n")
	require.Equal(t, token.STRING, toks[0].Token)
	require.Equal(t, "line1\nline2", toks[0].Value.String)
}

func TestFString(t *testing.T) {
	toks := scanAll(t, `f"hello {name}"` + "\n")
	require.Equal(t, token.FSTRING, toks[0].Token)
	require.Equal(t, "hello {name}", toks[0].Value.String)
}

func TestTableLiteralSuppressesIndent(t *testing.T) {
	src := "t = {\n  a=1,\n  b=2,\n}\n"
	toks := kinds(scanAll(t, src))
	for _, tok := range toks {
		require.NotEqual(t, token.INDENT, tok)
		require.NotEqual(t, token.DEDENT, tok)
	}
}

func TestMarkRewindReproducesSameStream(t *testing.T) {
	src := "local a, b = 1, 2\nif a == 1:\n    b = 2\n"
	fs := token.NewFileSet()
	file := fs.AddFile("test.toi", len(src))
	s := New(file, []byte(src), func(token.Position, string) {
		t.Fatal("unexpected scan error")
	})

	var v token.Value
	require.Equal(t, token.LOCAL, s.Scan(&v)) // "local"
	require.Equal(t, token.IDENT, s.Scan(&v)) // "a"

	mark := s.Mark()

	// Scan ahead across a comma, a newline/indent boundary, and more.
	var lookahead []token.Token
	for i := 0; i < 8; i++ {
		lookahead = append(lookahead, s.Scan(&v))
	}

	s.Rewind(mark)

	var replay []token.Token
	for i := 0; i < 8; i++ {
		replay = append(replay, s.Scan(&v))
	}
	require.Equal(t, lookahead, replay, "rewinding mid-stream must reproduce an identical token sequence")
}

func TestOperators(t *testing.T) {
	toks := kinds(scanAll(t, "a <= b >= c == d != e .. f := g <+ h\n"))
	want := []token.Token{
		token.IDENT, token.LE, token.IDENT, token.GE, token.IDENT, token.EQEQ,
		token.IDENT, token.BANGEQ, token.IDENT, token.DOTDOT, token.IDENT,
		token.COLONEQ, token.IDENT, token.LARROW, token.IDENT, token.NEWLINE, token.EOF,
	}
	require.Equal(t, want, toks)
}

func TestRangeAfterIntLexesAsDotDot(t *testing.T) {
	toks := kinds(scanAll(t, "1..3\n"))
	want := []token.Token{
		token.INT, token.DOTDOT, token.INT, token.NEWLINE, token.EOF,
	}
	require.Equal(t, want, toks)
}

func TestFloatLiteralsStillLex(t *testing.T) {
	toks := scanAll(t, "1.5 .5 2.\n")
	require.Equal(t, token.FLOAT, toks[0].Token)
	require.Equal(t, 1.5, toks[0].Value.Float)
	require.Equal(t, token.FLOAT, toks[1].Token)
	require.Equal(t, 0.5, toks[1].Value.Float)
	require.Equal(t, token.FLOAT, toks[2].Token)
	require.Equal(t, 2.0, toks[2].Value.Float)
}

func TestEOFDrainsOpenIndents(t *testing.T) {
	// no trailing newline, two open indentation levels at EOF
	src := "if true:\n  if true:\n    x = 1"
	toks := scanAll(t, src)

	indents, dedents := 0, 0
	for _, tv := range toks {
		switch tv.Token {
		case token.INDENT:
			indents++
		case token.DEDENT:
			dedents++
		}
	}
	require.Equal(t, 2, indents)
	require.Equal(t, indents, dedents, "EOF must close every open indent level")
}
