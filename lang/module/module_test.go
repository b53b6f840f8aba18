package module

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/toi-lang/toi/lang/machine"
)

func newTestThread(l *Loader) *machine.Thread {
	th := machine.NewThread()
	th.Load = l.Load
	th.Init(nil)
	return th
}

func TestLoadResolvesFileUnderRoot(t *testing.T) {
	l := NewLoader("testdata")
	th := newTestThread(l)

	v, err := l.Load(th, "greeter")
	require.NoError(t, err)
	tbl, ok := v.(*machine.Table)
	require.True(t, ok)

	fn, _, err := tbl.Get(machine.String("greet"))
	require.NoError(t, err)
	require.NotNil(t, fn)
}

func TestLoadCachesModuleByPath(t *testing.T) {
	l := NewLoader("testdata")
	th := newTestThread(l)

	first, err := l.Load(th, "greeter")
	require.NoError(t, err)
	second, err := l.Load(th, "greeter")
	require.NoError(t, err)
	require.Same(t, first, second)
}

func TestLoadUnknownModuleReportsAllCandidates(t *testing.T) {
	l := NewLoader("testdata")
	th := newTestThread(l)

	_, err := l.Load(th, "does.not.exist")
	require.Error(t, err)
}

func TestNativeCoroutineModuleInstalled(t *testing.T) {
	l := NewLoader()
	th := newTestThread(l)

	v, err := l.Load(th, "coroutine")
	require.NoError(t, err)
	tbl, ok := v.(*machine.Table)
	require.True(t, ok)

	_, _, err = tbl.Get(machine.String("resume"))
	require.NoError(t, err)
	_, _, err = tbl.Get(machine.String("yield"))
	require.NoError(t, err)
}

func TestNativeStringFormatModule(t *testing.T) {
	l := NewLoader()
	th := newTestThread(l)

	v, err := l.Load(th, "string")
	require.NoError(t, err)
	tbl := v.(*machine.Table)

	fmtFn, _, err := tbl.Get(machine.String("format"))
	require.NoError(t, err)
	callable := fmtFn.(machine.Callable)

	result, err := callable.CallInternal(th, machine.NewTuple([]machine.Value{
		machine.String("%d"), machine.Int(42),
	}), nil)
	require.NoError(t, err)
	require.Equal(t, "42", result.String())
}
