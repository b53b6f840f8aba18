package compiler

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/toi-lang/toi/lang/token"
)

func compileSrc(t *testing.T, src string) (*Function, error) {
	t.Helper()
	fset := token.NewFileSet()
	return Compile(fset, "test.toi", []byte(src), false)
}

func TestCompileArithmeticExpression(t *testing.T) {
	fn, err := compileSrc(t, "local x = 1 + 2 * 3\n")
	require.NoError(t, err)
	require.NotNil(t, fn)
	require.NotEmpty(t, fn.Chunk.Code)
}

func TestCompileIfElse(t *testing.T) {
	src := "local x = 1\n" +
		"if x == 1:\n" +
		"    x = 2\n" +
		"elif x == 2:\n" +
		"    x = 3\n" +
		"else:\n" +
		"    x = 4\n"
	fn, err := compileSrc(t, src)
	require.NoError(t, err)
	require.NotNil(t, fn)
}

func TestCompileWhileBreak(t *testing.T) {
	src := "local i = 0\n" +
		"while i < 10:\n" +
		"    if i == 5:\n" +
		"        break\n" +
		"    i = i + 1\n"
	fn, err := compileSrc(t, src)
	require.NoError(t, err)
	require.NotNil(t, fn)
}

func TestCompileFunctionAndCall(t *testing.T) {
	src := "fn add(a, b):\n" +
		"    return a + b\n" +
		"local r = add(1, 2)\n"
	fn, err := compileSrc(t, src)
	require.NoError(t, err)
	require.NotNil(t, fn)
}

func TestCompileForRange(t *testing.T) {
	src := "for i in 0..10:\n" +
		"    local y = i\n"
	fn, err := compileSrc(t, src)
	require.NoError(t, err)
	require.NotNil(t, fn)
}

func TestCompileMultipleAssignment(t *testing.T) {
	src := "local a = 1\n" +
		"local b = 2\n" +
		"a, b = b, a\n"
	fn, err := compileSrc(t, src)
	require.NoError(t, err)
	require.NotNil(t, fn)
}

func TestCompileTryExceptFinally(t *testing.T) {
	src := "try:\n" +
		"    throw \"boom\"\n" +
		"except e:\n" +
		"    local x = e\n" +
		"finally:\n" +
		"    local y = 1\n"
	fn, err := compileSrc(t, src)
	require.NoError(t, err)
	require.NotNil(t, fn)
}

func TestCompileFString(t *testing.T) {
	src := "local name = \"world\"\n" +
		"local greeting = f\"hello {name}!\"\n"
	fn, err := compileSrc(t, src)
	require.NoError(t, err)
	require.NotNil(t, fn)
}

func TestCompileCompoundAssignToUndeclaredNameInsideFunctionIsError(t *testing.T) {
	src := "fn f():\n" +
		"    x += 1\n"
	fn, err := compileSrc(t, src)
	require.Error(t, err)
	require.Nil(t, fn)
}

func TestCompileTableLiteralAndComprehension(t *testing.T) {
	src := "local t = {a=1, b=2}\n" +
		"local squares = {i * i for i in 0..5}\n"
	fn, err := compileSrc(t, src)
	require.NoError(t, err)
	require.NotNil(t, fn)
}

func TestCompileTableComprehensionWithFilterAndDestructure(t *testing.T) {
	src := "local pairs = {[1]=10, [2]=20, [3]=30}\n" +
		"local evens = {v for k, v in pairs if v > 15}\n"
	fn, err := compileSrc(t, src)
	require.NoError(t, err)
	require.NotNil(t, fn)
}

func TestCompileTableComprehensionWithKeyAssign(t *testing.T) {
	src := "local squares = {i=i * i for i in 0..5}\n"
	fn, err := compileSrc(t, src)
	require.NoError(t, err)
	require.NotNil(t, fn)
}

func TestCompileGeneratorComprehension(t *testing.T) {
	src := "local squares = (i * i for i in 0..5)\n"
	fn, err := compileSrc(t, src)
	require.NoError(t, err)
	require.NotNil(t, fn)
}

func TestCompileImportAsExpression(t *testing.T) {
	src := "local fmtMod = (import string)\n"
	fn, err := compileSrc(t, src)
	require.NoError(t, err)
	require.NotNil(t, fn)
}

func TestCompileFStringFormatSpec(t *testing.T) {
	src := "local n = 42\n" +
		"local s = f\"value: {n|%d}\"\n"
	fn, err := compileSrc(t, src)
	require.NoError(t, err)
	require.NotNil(t, fn)
}

func TestCompileFStringFastPathBareNameAndMod(t *testing.T) {
	src := "local n = 42\n" +
		"local a = f\"{n}\"\n" +
		"local b = f\"{n % 7}\"\n"
	fn, err := compileSrc(t, src)
	require.NoError(t, err)
	require.NotNil(t, fn)
}

func TestCompileDecorator(t *testing.T) {
	src := "fn memo(f):\n" +
		"    return f\n" +
		"@memo\n" +
		"fn slow(x):\n" +
		"    return x\n"
	fn, err := compileSrc(t, src)
	require.NoError(t, err)
	require.NotNil(t, fn)
}

func TestCompileNotIn(t *testing.T) {
	fn, err := compileSrc(t, "local t = {a=1}\nlocal ok = \"b\" not in t\n")
	require.NoError(t, err)
	require.NotNil(t, fn)
}

func TestCompileSliceForms(t *testing.T) {
	src := "local a = [1, 2, 3, 4]\n" +
		"local b = a[1..3]\n" +
		"local c = a[..2]\n" +
		"local d = a[1..3:2]\n"
	fn, err := compileSrc(t, src)
	require.NoError(t, err)
	require.NotNil(t, fn)
}

func TestCompileMetatableApply(t *testing.T) {
	fn, err := compileSrc(t, "local proto = {}\nlocal obj = proto {x=1}\n")
	require.NoError(t, err)
	require.NotNil(t, fn)
}

func TestCompileAssignThroughMetaDotIsError(t *testing.T) {
	fn, err := compileSrc(t, "local t = {}\nt::name = 1\n")
	require.Error(t, err)
	require.Nil(t, fn)
}

func TestCompileLocalAndGlobalFnForms(t *testing.T) {
	src := "fn outer():\n" +
		"    local fn helper():\n" +
		"        return 1\n" +
		"    global fn shared():\n" +
		"        return 2\n" +
		"    return helper()\n"
	fn, err := compileSrc(t, src)
	require.NoError(t, err)
	require.NotNil(t, fn)
}

func TestCompileWithStatement(t *testing.T) {
	src := "local cm = {}\n" +
		"with cm as c:\n" +
		"    local x = c\n"
	fn, err := compileSrc(t, src)
	require.NoError(t, err)
	require.NotNil(t, fn)
}

func TestCompileMatchStatement(t *testing.T) {
	src := "local x = 2\n" +
		"match x:\n" +
		"    case 1:\n" +
		"        print(\"one\")\n" +
		"    case _:\n" +
		"        print(\"other\")\n"
	fn, err := compileSrc(t, src)
	require.NoError(t, err)
	require.NotNil(t, fn)
}

func TestCompileFromImport(t *testing.T) {
	src := "from string import format\n" +
		"from string import *\n"
	fn, err := compileSrc(t, src)
	require.NoError(t, err)
	require.NotNil(t, fn)
}

func TestCompileNonConstantDefaultIsError(t *testing.T) {
	fn, err := compileSrc(t, "local y = 2\nfn f(x = y + 1):\n    return x\n")
	require.Error(t, err)
	require.Nil(t, fn)
}

func TestCompileTooManyLocalsIsError(t *testing.T) {
	src := "fn f():\n"
	for i := 0; i < 260; i++ {
		src += "    local v" + string(rune('a'+i%26)) + "_" + itoa(i) + " = 1\n"
	}
	fn, err := compileSrc(t, src)
	require.Error(t, err)
	require.Nil(t, fn)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var b []byte
	for n > 0 {
		b = append([]byte{byte('0' + n%10)}, b...)
		n /= 10
	}
	return string(b)
}

func TestCompileReplModeBindsGlobals(t *testing.T) {
	fset := token.NewFileSet()
	fn, err := Compile(fset, "<stdin>", []byte("x = 1\n"), true)
	require.NoError(t, err)
	require.NotNil(t, fn)
}

func TestCompileBreakOutsideLoopIsError(t *testing.T) {
	fn, err := compileSrc(t, "break\n")
	require.Error(t, err)
	require.Nil(t, fn)
}
