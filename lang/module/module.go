// Package module implements the IMPORT opcode's file-resolution, caching,
// and module-context save/restore algorithm (spec.md §4.7), wired into a
// machine.Thread through its Load callback (lang/machine/thread.go).
package module

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/toi-lang/toi/lang/compiler"
	"github.com/toi-lang/toi/lang/machine"
	"github.com/toi-lang/toi/lang/token"
)

// Loader resolves dotted module paths to source files and runs them on the
// importing Thread, grounded on the teacher's Thread.Load callback stub
// generalized into a concrete search-path algorithm. Roots extends the
// search beyond the two built-in locations ("." and "lib") with additional
// directories, the toi-side equivalent of the teacher's --with-comments
// style CLI flag (here: --lib-path, internal/maincmd).
type Loader struct {
	// Roots are extra directories searched, in order, after "." and "lib"
	// have both failed all four suffix forms.
	Roots []string

	// Native holds built-in modules installed by name instead of resolved to
	// a file (spec.md §4.7 step 2), e.g. "coroutine".
	Native map[string]machine.Value

	fset *token.FileSet
}

// NewLoader returns a Loader with the standard native module table
// installed and ready to be assigned to a Thread's Load field.
func NewLoader(extraRoots ...string) *Loader {
	l := &Loader{Roots: extraRoots, Native: make(map[string]machine.Value), fset: token.NewFileSet()}
	l.Native["coroutine"] = coroutineModule()
	l.Native["string"] = stringModule()
	return l
}

// Load implements machine.Thread's Load signature: cache check, native
// module check, file search, compile, and run, caching the module's
// returned value under path for subsequent imports (spec.md §4.7).
func (l *Loader) Load(th *machine.Thread, path string) (machine.Value, error) {
	if cached, ok := th.Modules[path]; ok {
		return cached, nil
	}
	if native, ok := l.Native[path]; ok {
		th.Modules[path] = native
		return native, nil
	}

	file, src, err := l.resolve(path)
	if err != nil {
		return nil, err
	}

	fn, err := compiler.Compile(l.fset, file, src, false)
	if err != nil {
		return nil, fmt.Errorf("module %q: %w", path, err)
	}

	closure := &machine.Closure{Fn: fn}
	result, err := th.RunModule(closure, path, file, false)
	if err != nil {
		return nil, err
	}
	th.Modules[path] = result
	return result, nil
}

// resolve walks spec.md §4.7 step 3's four candidate suffixes across "."
// and each configured root, returning the first file that exists.
func (l *Loader) resolve(path string) (file string, src []byte, err error) {
	rel := strings.ReplaceAll(path, ".", string(filepath.Separator))
	suffixes := []string{
		rel + ".toi",
		filepath.Join(rel, "__.toi"),
		filepath.Join("lib", rel+".toi"),
		filepath.Join("lib", rel, "__.toi"),
	}

	roots := append([]string{"."}, l.Roots...)
	var errs *multierror.Error
	for _, root := range roots {
		for _, suf := range suffixes {
			candidate := filepath.Join(root, suf)
			data, readErr := os.ReadFile(candidate)
			if readErr == nil {
				return candidate, data, nil
			}
			errs = multierror.Append(errs, readErr)
		}
	}
	return "", nil, fmt.Errorf("module %q not found (searched %d candidates): %w", path, len(roots)*len(suffixes), errs.ErrorOrNil())
}

// coroutineModule builds the native "coroutine" table (spec.md §4.7 step 2,
// §5 "External coroutine.resume/coroutine.yield library calls"): an
// explicit-call surface over the same Generator/Thread.Yield rendezvous the
// compiler's "yield" expression lowers to directly.
func coroutineModule() *machine.Table {
	t := machine.NewTable(2)
	_ = t.SetKey(machine.String("resume"), machine.NewNative("coroutine.resume", coroutineResume))
	_ = t.SetKey(machine.String("yield"), machine.NewNative("coroutine.yield", coroutineYield))
	return t
}

// coroutineResume(gen, v) resumes gen with v as the value its pending
// "yield" evaluates to, returning (ok, value): ok is false both when the
// generator has already finished and when its body raised an error, mirroring
// the teacher's pattern of reporting failure as a value rather than a Go
// error at this boundary so toi code can branch on it without a try/except.
func coroutineResume(th *machine.Thread, args *machine.Tuple, _ *machine.Table) (machine.Value, error) {
	if args.Len() < 1 {
		return nil, fmt.Errorf("coroutine.resume() requires a generator argument")
	}
	gen, ok := args.Index(0).(*machine.Generator)
	if !ok {
		return nil, fmt.Errorf("coroutine.resume() requires a generator, got %s", args.Index(0).Type())
	}
	var resumeVal machine.Value = machine.Nil
	if args.Len() > 1 {
		resumeVal = args.Index(1)
	}
	val, _, err := gen.Resume(resumeVal)
	if err != nil {
		return machine.NewTuple([]machine.Value{machine.Bool(false), machine.String(err.Error())}), nil
	}
	return machine.NewTuple([]machine.Value{machine.Bool(true), val}), nil
}

// stringModule builds the native "string" table, whose sole current member
// is "format": the target of f-string "|spec" substitution lowering
// (compiler/fstring.go, spec.md §4.3.4).
func stringModule() *machine.Table {
	t := machine.NewTable(1)
	_ = t.SetKey(machine.String("format"), machine.NewNative("string.format", stringFormat))
	return t
}

// stringFormat implements "string.format(spec, value)" as a thin wrapper
// over fmt.Sprintf, spec already carrying its "%" prefix (compileSubstitution
// adds it if the author omitted it).
func stringFormat(th *machine.Thread, args *machine.Tuple, _ *machine.Table) (machine.Value, error) {
	if args.Len() != 2 {
		return nil, fmt.Errorf("string.format() takes exactly 2 arguments (%d given)", args.Len())
	}
	spec, ok := args.Index(0).(machine.String)
	if !ok {
		return nil, fmt.Errorf("string.format() spec must be a string, got %s", args.Index(0).Type())
	}
	return machine.String(fmt.Sprintf(string(spec), goValue(args.Index(1)))), nil
}

// goValue unwraps a toi Value to the Go primitive fmt.Sprintf's verbs
// expect, so a "%d"/"%x"/"%5.2f"/"%s" spec behaves the way a user familiar
// with printf-style formatting expects.
func goValue(v machine.Value) any {
	switch v := v.(type) {
	case machine.Int:
		return int64(v)
	case machine.Float:
		return float64(v)
	case machine.String:
		return string(v)
	case machine.Bool:
		return bool(v)
	default:
		return v.String()
	}
}

// coroutineYield is the library-call form of the "yield" expression,
// usable from code that wants to yield without the keyword (e.g. behind a
// helper function called from inside a generator body).
func coroutineYield(th *machine.Thread, args *machine.Tuple, _ *machine.Table) (machine.Value, error) {
	var v machine.Value = machine.Nil
	switch {
	case args.Len() == 1:
		v = args.Index(0)
	case args.Len() > 1:
		vals := make([]machine.Value, args.Len())
		for i := range vals {
			vals[i] = args.Index(i)
		}
		v = machine.NewTuple(vals)
	}
	return th.Yield(v)
}
