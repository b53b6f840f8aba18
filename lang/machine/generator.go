package machine

import "fmt"

// Generator is the runtime value a call to a "fn" containing yield produces
// instead of running synchronously (§4.3.5 generators, §5 concurrency model:
// "single current-thread descriptor" per generator, rendezvousing with its
// parent over a pair of unbuffered channels so only one of the two is ever
// actually running).
type Generator struct {
	closure *Closure
	args    *Tuple
	named   *Table

	th *Thread

	resumeCh chan Value
	yieldCh  chan genResult

	started bool
	done    bool

	// LastErr is the error, if any, a finished Resume call ended with. The
	// Iterator adapter (generatorIterator) has no channel of its own to
	// report it through, so "for x in gen():" callers that need to surface a
	// generator body's runtime error read it from here after iteration ends.
	LastErr error
}

type genResult struct {
	val  Value
	err  error
	done bool
}

var (
	_ Value    = (*Generator)(nil)
	_ Iterable = (*Generator)(nil)
)

// newGenerator builds a suspended Generator for a generator-bodied closure
// call. The child thread shares the parent's globals and module loader but
// gets its own value stack, so a generator body's locals never alias its
// caller's.
func newGenerator(parent *Thread, c *Closure, args *Tuple, named *Table) *Generator {
	g := &Generator{
		closure:  c,
		args:     args,
		named:    named,
		resumeCh: make(chan Value),
		yieldCh:  make(chan genResult),
	}
	g.th = &Thread{
		Globals: parent.Globals,
		Modules: parent.Modules,
		Load:    parent.Load,
		Stdout:  parent.Stdout,
		Stderr:  parent.Stderr,
		Stdin:   parent.Stdin,
		gen:     g,
	}
	return g
}

func (g *Generator) String() string { return fmt.Sprintf("generator(%s)", g.closure.Name()) }
func (g *Generator) Type() string   { return "generator" }

// yield is called from the YIELD opcode, running on the generator's own
// goroutine: it hands v to whoever is waiting on Resume and blocks until the
// next Resume supplies a value to continue with.
func (g *Generator) yield(v Value) Value {
	g.yieldCh <- genResult{val: v}
	return <-g.resumeCh
}

// Resume runs the generator body until its next yield (or completion),
// starting it on first call. resumeVal becomes YIELD's result inside the
// body; it is ignored on the call that starts the generator.
func (g *Generator) Resume(resumeVal Value) (Value, bool, error) {
	if g.done {
		return Nil, true, fmt.Errorf("cannot resume a finished generator")
	}
	if !g.started {
		g.started = true
		g.th.init(nil)
		go func() {
			result, err := g.th.runClosure(g.closure, g.args, g.named)
			g.yieldCh <- genResult{val: result, err: err, done: true}
		}()
	} else {
		g.resumeCh <- resumeVal
	}
	res := <-g.yieldCh
	if res.done {
		g.done = true
		g.LastErr = res.err
	}
	return res.val, res.done, res.err
}

// Iterate lets a generator value drive a "for x in gen():" loop directly
// (§4.3.5): each step is one Resume, stopping when the body returns.
func (g *Generator) Iterate() Iterator { return &generatorIterator{g: g} }

type generatorIterator struct{ g *Generator }

func (it *generatorIterator) Next(p *Value) bool {
	if it.g.done {
		return false
	}
	v, done, err := it.g.Resume(Nil)
	if err != nil || done {
		return false
	}
	*p = v
	return true
}

func (it *generatorIterator) Done() {}

func (it *generatorIterator) Err() error { return it.g.LastErr }
