package token

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTokenString(t *testing.T) {
	for tok := Token(0); tok < maxToken; tok++ {
		require.NotEmpty(t, tok.String(), "token %d missing string representation", tok)
	}
}

func TestLookupKeyword(t *testing.T) {
	require.Equal(t, AND, LookupKeyword("and"))
	require.Equal(t, FN, LookupKeyword("fn"))
	require.Equal(t, IMPORT, LookupKeyword("import"))
	require.Equal(t, IDENT, LookupKeyword("notakeyword"))
}

func TestIsUnop(t *testing.T) {
	require.True(t, MINUS.IsUnop())
	require.True(t, NOT.IsUnop())
	require.True(t, POUND.IsUnop())
	require.False(t, PLUS.IsUnop())
}

func TestIsAssignOp(t *testing.T) {
	require.True(t, PLUS_EQ.IsAssignOp())
	require.Equal(t, PLUS, PLUS_EQ.BinaryOpFor())
	require.False(t, EQ.IsAssignOp())
	require.Equal(t, ILLEGAL, EQ.BinaryOpFor())
}
