package replline

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNeedsMore(t *testing.T) {
	cases := []struct {
		src  string
		want bool
	}{
		{"1 + 2", false},
		{"print(x)", false},
		{"f(1,", true},
		{"x +", true},
		{"t = {", true},
		{"a.", true},
		{"fn f(x)", true},
		{"if x > 1:", true},
		{"for k, v in t:", true},
		{"x = 5", false},
	}
	for _, c := range cases {
		require.Equal(t, c.want, NeedsMore([]byte(c.src)), "source: %q", c.src)
	}
}

func TestReadStatementSingleLine(t *testing.T) {
	ed := New(strings.NewReader("print(1)\n"), io.Discard)
	stmt, err := ed.ReadStatement()
	require.NoError(t, err)
	require.Equal(t, "print(1)", stmt)
}

func TestReadStatementContinuationSubmitsOnBlankLine(t *testing.T) {
	ed := New(strings.NewReader("fn f(x)\n  return x*x\n\nf(5)\n"), io.Discard)

	stmt, err := ed.ReadStatement()
	require.NoError(t, err)
	require.Equal(t, "fn f(x)\n  return x*x", stmt)

	stmt, err = ed.ReadStatement()
	require.NoError(t, err)
	require.Equal(t, "f(5)", stmt)
}

func TestReadStatementEOFAtFreshPrompt(t *testing.T) {
	ed := New(strings.NewReader(""), io.Discard)
	_, err := ed.ReadStatement()
	require.Equal(t, io.EOF, err)
}
