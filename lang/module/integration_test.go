package module

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/toi-lang/toi/lang/compiler"
	"github.com/toi-lang/toi/lang/machine"
	"github.com/toi-lang/toi/lang/token"
)

// runSrc compiles and runs src on a Thread wired to a real Loader, exercising
// the import/format-spec path end to end (compiler's fstring.go lowering ->
// IMPORT opcode -> this package's native "string" module).
func runSrc(t *testing.T, src string) string {
	t.Helper()
	fn, err := compiler.Compile(token.NewFileSet(), "test.toi", []byte(src), false)
	require.NoError(t, err)

	var out bytes.Buffer
	th := machine.NewThread()
	th.Stdout = &out
	th.Load = NewLoader().Load

	_, err = th.Run(nil, &machine.Closure{Fn: fn}, nil)
	require.NoError(t, err)
	return out.String()
}

func TestFStringFormatSpecLowersThroughStringModule(t *testing.T) {
	src := "local n = 255\n" +
		"print(f\"{n|%x}\")\n"
	require.Equal(t, "ff\n", runSrc(t, src))
}

func TestImportExpressionYieldsNativeModule(t *testing.T) {
	src := "local co = (import coroutine)\n" +
		"print(co)\n"
	out := runSrc(t, src)
	require.Contains(t, out, "table")
}

func TestCoroutineResumeLibraryCall(t *testing.T) {
	src := "local co = (import coroutine)\n" +
		"fn gen():\n" +
		"    yield 10\n" +
		"    yield 20\n" +
		"local g = gen()\n" +
		"local ok = nil\n" +
		"local v = nil\n" +
		"ok, v = co.resume(g)\n" +
		"print(v)\n" +
		"ok, v = co.resume(g)\n" +
		"print(v)\n"
	out := runSrc(t, src)
	require.Equal(t, "10\n20\n", out)
}
