package token

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPosLineCol(t *testing.T) {
	p := MakePos(12, 3)
	line, col := p.LineCol()
	require.Equal(t, 12, line)
	require.Equal(t, 3, col)
	require.False(t, p.Unknown())
}

func TestPosUnknown(t *testing.T) {
	var p Pos
	require.True(t, p.Unknown())
}

func TestFileSetFormat(t *testing.T) {
	fs := NewFileSet()
	f := fs.AddFile("main.toi", 100)
	pos := MakePos(4, 1)

	require.Equal(t, "main.toi:4:1:", FormatPos(PosLong, f, pos, true))
	require.Equal(t, "4:1", FormatPos(PosShort, f, pos, false))
	require.Equal(t, Position{Filename: "main.toi", Line: 4, Column: 1}, f.Position(pos))
}
