package machine

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/toi-lang/toi/lang/compiler"
	"github.com/toi-lang/toi/lang/token"
)

func runSrc(t *testing.T, src string) (string, error) {
	t.Helper()
	fset := token.NewFileSet()
	fn, err := compiler.Compile(fset, "test.toi", []byte(src), false)
	require.NoError(t, err)
	require.NotNil(t, fn)

	var out bytes.Buffer
	th := NewThread()
	th.Stdout = &out
	_, err = th.Run(nil, &Closure{Fn: fn}, nil)
	return out.String(), err
}

func TestRunPrintArithmetic(t *testing.T) {
	out, err := runSrc(t, "print(1 + 2 * 3)\n")
	require.NoError(t, err)
	require.Equal(t, "7\n", out)
}

func TestRunDirectCallArities(t *testing.T) {
	// exercises CALL0/CALL1/CALL2 (the opcode-width fix in chunk/opcode.go):
	// each of these calls must leave the instruction pointer correctly
	// positioned on the following PRINT, not offset by two phantom bytes.
	src := "fn zero():\n" +
		"    return 1\n" +
		"fn one(a):\n" +
		"    return a\n" +
		"fn two(a, b):\n" +
		"    return a + b\n" +
		"print(zero())\n" +
		"print(one(2))\n" +
		"print(two(3, 4))\n"
	out, err := runSrc(t, src)
	require.NoError(t, err)
	require.Equal(t, "1\n2\n7\n", out)
}

func TestRunClosureCapturesUpvalue(t *testing.T) {
	src := "fn counter():\n" +
		"    local n = 0\n" +
		"    fn inc():\n" +
		"        n = n + 1\n" +
		"        return n\n" +
		"    return inc\n" +
		"local c = counter()\n" +
		"print(c())\n" +
		"print(c())\n" +
		"print(c())\n"
	out, err := runSrc(t, src)
	require.NoError(t, err)
	require.Equal(t, "1\n2\n3\n", out)
}

func TestRunTryFinallyRunsOnUncaughtThrow(t *testing.T) {
	src := "try:\n" +
		"    throw \"boom\"\n" +
		"finally:\n" +
		"    print(\"cleanup\")\n"
	out, err := runSrc(t, src)
	require.Error(t, err)
	require.Equal(t, "cleanup\n", out)
}

func TestRunTryExceptCatchesThrow(t *testing.T) {
	src := "try:\n" +
		"    throw \"boom\"\n" +
		"except e:\n" +
		"    print(e)\n"
	out, err := runSrc(t, src)
	require.NoError(t, err)
	require.Equal(t, "boom\n", out)
}

func TestRunGeneratorComprehension(t *testing.T) {
	src := "local squares = (i * i for i in 0..4)\n" +
		"for v in squares:\n" +
		"    print(v)\n"
	out, err := runSrc(t, src)
	require.NoError(t, err)
	require.Equal(t, "0\n1\n4\n9\n16\n", out)
}

func TestRunTableComprehensionWithFilterAndDestructure(t *testing.T) {
	src := "local pairs = {[1]=10, [2]=20, [3]=30}\n" +
		"local evens = {v for k, v in pairs if v > 15}\n" +
		"for _, v in evens:\n" +
		"    print(v)\n"
	out, err := runSrc(t, src)
	require.NoError(t, err)
	require.Equal(t, "20\n30\n", out)
}

func TestRunSingleVariableForIteratesTableKeys(t *testing.T) {
	src := "local arr = [10, 20, 30]\n" +
		"for k in arr:\n" +
		"    print(k)\n"
	out, err := runSrc(t, src)
	require.NoError(t, err)
	require.Equal(t, "1\n2\n3\n", out)
}

func TestRunFStringBareNameFastPath(t *testing.T) {
	src := "local name = \"world\"\n" +
		"print(f\"hello {name}!\")\n"
	out, err := runSrc(t, src)
	require.NoError(t, err)
	require.Equal(t, "hello world!\n", out)
}

func TestRunGeneratorYieldsValues(t *testing.T) {
	src := "fn gen():\n" +
		"    yield 1\n" +
		"    yield 2\n" +
		"    yield 3\n" +
		"for v in gen():\n" +
		"    print(v)\n"
	out, err := runSrc(t, src)
	require.NoError(t, err)
	require.Equal(t, "1\n2\n3\n", out)
}

func TestRunRecursiveFunction(t *testing.T) {
	src := "fn fib(n)\n" +
		"  if n < 2: return n\n" +
		"  return fib(n - 1) + fib(n - 2)\n" +
		"print(fib(10))\n"
	out, err := runSrc(t, src)
	require.NoError(t, err)
	require.Equal(t, "55\n", out)
}

func TestRunKeyedTableIteration(t *testing.T) {
	src := "local t = {a=1, b=2}\n" +
		"local n = 0\n" +
		"for k, v in t:\n" +
		"    n += 1\n" +
		"print(n)\n"
	out, err := runSrc(t, src)
	require.NoError(t, err)
	require.Equal(t, "2\n", out)
}

func TestRunTryExceptFinallyOrder(t *testing.T) {
	src := "try:\n" +
		"    throw \"boom\"\n" +
		"except e:\n" +
		"    print(e)\n" +
		"finally:\n" +
		"    print(\"done\")\n"
	out, err := runSrc(t, src)
	require.NoError(t, err)
	require.Equal(t, "boom\ndone\n", out)
}

func TestRunReturnRunsThroughFinally(t *testing.T) {
	src := "fn f():\n" +
		"    try:\n" +
		"        return 1\n" +
		"    finally:\n" +
		"        print(\"cleanup\")\n" +
		"print(f())\n"
	out, err := runSrc(t, src)
	require.NoError(t, err)
	require.Equal(t, "cleanup\n1\n", out)
}

func TestRunExceptFilter(t *testing.T) {
	src := "try:\n" +
		"    try:\n" +
		"        throw 7\n" +
		"    except e if e == 8:\n" +
		"        print(\"wrong\")\n" +
		"except e:\n" +
		"    print(e)\n"
	out, err := runSrc(t, src)
	require.NoError(t, err)
	require.Equal(t, "7\n", out)
}

func TestRunMatchStatement(t *testing.T) {
	src := "fn describe(x):\n" +
		"    match x:\n" +
		"        case 1:\n" +
		"            return \"one\"\n" +
		"        case 2:\n" +
		"            return \"two\"\n" +
		"        case _:\n" +
		"            return \"many\"\n" +
		"print(describe(1))\n" +
		"print(describe(2))\n" +
		"print(describe(9))\n"
	out, err := runSrc(t, src)
	require.NoError(t, err)
	require.Equal(t, "one\ntwo\nmany\n", out)
}

func TestRunWithStatementRethrows(t *testing.T) {
	src := "local cm = {}\n" +
		"try:\n" +
		"    with cm as c:\n" +
		"        throw \"leak\"\n" +
		"except e:\n" +
		"    print(e)\n"
	out, err := runSrc(t, src)
	require.NoError(t, err)
	require.Equal(t, "leak\n", out)
}

func TestRunNotIn(t *testing.T) {
	src := "local t = {a=1}\n" +
		"print(\"b\" not in t)\n" +
		"print(\"a\" not in t)\n"
	out, err := runSrc(t, src)
	require.NoError(t, err)
	require.Equal(t, "true\nfalse\n", out)
}

func TestRunTernary(t *testing.T) {
	src := "local x = 5\n" +
		"print(x > 3 ? \"big\" : \"small\")\n"
	out, err := runSrc(t, src)
	require.NoError(t, err)
	require.Equal(t, "big\n", out)
}

func TestRunStringSlice(t *testing.T) {
	src := "print(\"hello\"[1..3])\n"
	out, err := runSrc(t, src)
	require.NoError(t, err)
	require.Equal(t, "el\n", out)
}

func TestRunMetatableApplyAndMetaDot(t *testing.T) {
	src := "local proto = {kind=\"point\"}\n" +
		"local obj = proto {x=1}\n" +
		"print(obj::kind)\n" +
		"print(obj.x)\n"
	out, err := runSrc(t, src)
	require.NoError(t, err)
	require.Equal(t, "point\n1\n", out)
}

func TestRunMultipleAssignmentSwap(t *testing.T) {
	src := "local a = 1\n" +
		"local b = 2\n" +
		"a, b = b, a\n" +
		"print(a, b)\n"
	out, err := runSrc(t, src)
	require.NoError(t, err)
	require.Equal(t, "2 1\n", out)
}

func TestRunMultipleAssignmentUnpacksReturn(t *testing.T) {
	src := "fn pair():\n" +
		"    return 1, 2\n" +
		"a, b, c = pair()\n" +
		"print(a, b, c)\n"
	out, err := runSrc(t, src)
	require.NoError(t, err)
	require.Equal(t, "1 2 nil\n", out)
}

func TestRunCommaRHSBuildsArray(t *testing.T) {
	src := "xs = 10, 20, 30\n" +
		"print(#xs)\n" +
		"print(xs[2])\n"
	out, err := runSrc(t, src)
	require.NoError(t, err)
	require.Equal(t, "3\n20\n", out)
}

func TestRunNamedArguments(t *testing.T) {
	src := "fn greet(name, greeting):\n" +
		"    return greeting + \" \" + name\n" +
		"print(greet(\"toi\", greeting=\"hello\"))\n"
	out, err := runSrc(t, src)
	require.NoError(t, err)
	require.Equal(t, "hello toi\n", out)
}

func TestRunDefaultParameters(t *testing.T) {
	src := "fn step(x, by=1):\n" +
		"    return x + by\n" +
		"print(step(5))\n" +
		"print(step(5, 3))\n"
	out, err := runSrc(t, src)
	require.NoError(t, err)
	require.Equal(t, "6\n8\n", out)
}

func TestRunSpreadCall(t *testing.T) {
	src := "fn add3(a, b, c):\n" +
		"    return a + b + c\n" +
		"local args = [1, 2, 3]\n" +
		"print(add3(*args))\n"
	out, err := runSrc(t, src)
	require.NoError(t, err)
	require.Equal(t, "6\n", out)
}

func TestRunBreakAndContinue(t *testing.T) {
	src := "local total = 0\n" +
		"for i in 1..10:\n" +
		"    if i % 2 == 0: continue\n" +
		"    if i > 7: break\n" +
		"    total += i\n" +
		"print(total)\n"
	out, err := runSrc(t, src)
	require.NoError(t, err)
	require.Equal(t, "16\n", out)
}

func TestRunBreakOutOfTableIterationUnlocksTable(t *testing.T) {
	src := "local t = {a=1, b=2}\n" +
		"for k, v in t:\n" +
		"    break\n" +
		"t.c = 3\n" +
		"print(t.c)\n"
	out, err := runSrc(t, src)
	require.NoError(t, err)
	require.Equal(t, "3\n", out)
}

func TestRunAssertStatement(t *testing.T) {
	src := "try:\n" +
		"    assert 1 == 2, \"mismatch\"\n" +
		"except e:\n" +
		"    print(e)\n"
	out, err := runSrc(t, src)
	require.NoError(t, err)
	require.Equal(t, "mismatch\n", out)
}

func TestRunDecoratorRebindsFunction(t *testing.T) {
	src := "fn doubled(f):\n" +
		"    fn wrapper(x):\n" +
		"        return f(x) * 2\n" +
		"    return wrapper\n" +
		"@doubled\n" +
		"fn inc(x):\n" +
		"    return x + 1\n" +
		"print(inc(3))\n"
	out, err := runSrc(t, src)
	require.NoError(t, err)
	require.Equal(t, "8\n", out)
}

func TestRunLocalAndGlobalFnDeclarations(t *testing.T) {
	src := "fn outer():\n" +
		"    global fn exported():\n" +
		"        return \"from global\"\n" +
		"    local fn helper():\n" +
		"        return \"from local\"\n" +
		"    return helper()\n" +
		"print(outer())\n" +
		"print(exported())\n"
	out, err := runSrc(t, src)
	require.NoError(t, err)
	require.Equal(t, "from local\nfrom global\n", out)
}

func TestRunReplModeEchoesExpressions(t *testing.T) {
	fset := token.NewFileSet()
	fn, err := compiler.Compile(fset, "<stdin>", []byte("x = 5\nx * 2\n"), true)
	require.NoError(t, err)

	var out bytes.Buffer
	th := NewThread()
	th.Stdout = &out
	_, err = th.Run(nil, &Closure{Fn: fn}, nil)
	require.NoError(t, err)
	require.Equal(t, "10\n", out.String())
}

func TestRunIntFloatMixedArithmetic(t *testing.T) {
	src := "print(1 + 2.5)\n" +
		"print(7 / 2)\n" +
		"print(7 // 2)\n" +
		"print(1 == 1.0)\n"
	out, err := runSrc(t, src)
	require.NoError(t, err)
	require.Equal(t, "3.5\n3.5\n3\ntrue\n", out)
}

func TestRunInterruptStopsLoop(t *testing.T) {
	src := "while true:\n" +
		"    local x = 1\n"
	fset := token.NewFileSet()
	fn, err := compiler.Compile(fset, "test.toi", []byte(src), false)
	require.NoError(t, err)

	th := NewThread()
	th.Stdout = &bytes.Buffer{}
	th.MaxSteps = 10000
	_, err = th.Run(nil, &Closure{Fn: fn}, nil)
	require.Error(t, err)
}
