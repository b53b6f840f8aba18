package machine

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Thread is the machine's single current-thread descriptor (§5 Concurrency:
// "a VM object owns one current-thread descriptor"). It owns the shared
// value stack every frame's locals/operands live in, the module cache, and
// the cooperative interrupt/step-budget machinery, grounded on the
// teacher's Thread (Stdout/Stderr/Stdin fields, MaxSteps, context-driven
// cancellation goroutine).
type Thread struct {
	Name string

	Stdout io.Writer
	Stderr io.Writer
	Stdin  io.Reader

	// MaxSteps caps the number of executed instructions before the thread is
	// cancelled with a runtime error (§5 "host interrupt flag"). <= 0 means
	// unlimited.
	MaxSteps int

	Globals *Table

	// Modules caches loaded module tables by resolved dotted path (§4.7). The
	// module package populates this through Thread.Load.
	Modules map[string]Value

	// Load resolves and runs a module, called by the IMPORT opcode. Left nil
	// for a Thread that never imports (e.g. a pure expression evaluator).
	Load func(th *Thread, path string) (Value, error)

	ctx       context.Context
	ctxCancel context.CancelFunc
	cancelled atomic.Bool

	stack        []Value
	openUpvalues []*Upvalue

	steps, maxSteps uint64

	stdout io.Writer
	stderr io.Writer
	stdin  io.Reader

	// gen is non-nil when this Thread is the private execution thread of a
	// Generator (§4.3.5); it is what the YIELD opcode rendezvous with.
	gen *Generator
}

// NewThread returns a ready-to-use Thread with a fresh global table
// pre-populated with the language's built-ins (§5 "thin global built-in
// surface": print and len).
func NewThread() *Thread {
	th := &Thread{Globals: NewTable(16), Modules: make(map[string]Value)}
	_ = th.Globals.SetKey(String("print"), NewNative("print", builtinPrint))
	_ = th.Globals.SetKey(String("len"), NewNative("len", builtinLen))
	return th
}

// Interrupt requests cooperative cancellation; the VM loop observes it
// before the next instruction it executes (checkInterrupt runs once per
// instruction).
func (th *Thread) Interrupt() { th.cancelled.Store(true) }

func (th *Thread) init(ctx context.Context) {
	if th.stdout != nil {
		return // already initialized
	}
	if th.Stdout != nil {
		th.stdout = th.Stdout
	} else {
		th.stdout = os.Stdout
	}
	if th.Stderr != nil {
		th.stderr = th.Stderr
	} else {
		th.stderr = os.Stderr
	}
	if th.Stdin != nil {
		th.stdin = th.Stdin
	} else {
		th.stdin = os.Stdin
	}
	if th.MaxSteps > 0 {
		th.maxSteps = uint64(th.MaxSteps)
	} else {
		th.maxSteps-- // wrap to max uint64: unlimited
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	th.ctx, th.ctxCancel = ctx, cancel
	go func() {
		<-ctx.Done()
		th.cancelled.Store(true)
	}()
}

// Init prepares th to run under ctx: Stdout/Stderr/Stdin defaults, step
// budget, and the cancellation goroutine. Safe to call once before using
// RunModule directly (Run and Call do this internally); a second call is a
// no-op. Exposed so callers that need __name__/__file__/__main__ semantics
// on their very first module (internal/maincmd's "run" command) don't have
// to go through Run's plain top-level call.
func (th *Thread) Init(ctx context.Context) { th.init(ctx) }

// Run executes top, the compiled top-level function of one source file.
// args are forwarded as positional arguments, relevant only when top
// declares parameters (scripts normally take none).
func (th *Thread) Run(ctx context.Context, top *Closure, args *Tuple) (Value, error) {
	th.init(ctx)
	if args == nil {
		args = NilaryTuple
	}
	result, err := th.runClosure(top, args, nil)
	if err != nil {
		// Off by default: only surfaces with logrus's level raised to Debug.
		logrus.WithField("thread", th.Name).Debugln("uncaught exception trace:", err)
	}
	return result, err
}

// Call invokes any Callable value with positional args and optional named
// args (§4.3.3 call forms). CALL-family opcodes in exec.go use this too, so
// built-ins and toi closures share one call path.
func Call(th *Thread, fn Value, args *Tuple, named *Table) (Value, error) {
	c, ok := fn.(Callable)
	if !ok {
		return nil, fmt.Errorf("attempt to call a %s value", fn.Type())
	}
	th.init(nil)
	result, err := c.CallInternal(th, args, named)
	if result == nil && err == nil {
		return nil, fmt.Errorf("internal error: %s returned no value and no error", fn)
	}
	return result, err
}

func (th *Thread) checkInterrupt() error {
	th.steps++
	if th.steps >= th.maxSteps {
		th.ctxCancel()
		return fmt.Errorf("thread cancelled: step budget exhausted")
	}
	if th.cancelled.Load() {
		return fmt.Errorf("thread cancelled: %s", contextCause(th.ctx))
	}
	return nil
}

func contextCause(ctx context.Context) string {
	if err := context.Cause(ctx); err != nil {
		return err.Error()
	}
	return "interrupted"
}
