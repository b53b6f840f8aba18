package chunk

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteAndLine(t *testing.T) {
	c := New()
	c.WriteOp(CONSTANT, 1)
	c.WriteUint16(0, 1)
	c.WriteOp(RETURN, 2)

	require.Equal(t, 1, c.Line(0))
	require.Equal(t, 1, c.Line(2))
	require.Equal(t, 2, c.Line(3))
}

func TestAddConstantDeduplicates(t *testing.T) {
	c := New()
	i1, err := c.AddConstant("hi")
	require.NoError(t, err)
	i2, err := c.AddConstant("hi")
	require.NoError(t, err)
	require.Equal(t, i1, i2)
}

func TestAddConstantOverflow(t *testing.T) {
	c := New()
	for i := 0; i < MaxConstants; i++ {
		_, err := c.AddConstant(i)
		require.NoError(t, err)
	}
	_, err := c.AddConstant("one too many")
	require.Error(t, err)
}

func TestPatchUint16(t *testing.T) {
	c := New()
	pc := c.WriteOp(JUMP, 1)
	c.WriteUint16(0, 1)
	c.PatchUint16(pc+1, 42)
	require.Equal(t, uint16(42), c.ReadUint16(pc+1))
}

func TestEnsureCaches(t *testing.T) {
	c := New()
	c.WriteOp(GET_GLOBAL, 1)
	c.WriteUint16(0, 1)
	c.EnsureCaches()
	require.Len(t, c.GlobalCache, len(c.Code))
	require.Len(t, c.IndexCache, len(c.Code))
}
