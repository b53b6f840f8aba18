package machine

import (
	"fmt"

	"github.com/toi-lang/toi/lang/chunk"
	"github.com/toi-lang/toi/lang/compiler"
	"github.com/toi-lang/toi/lang/token"
)

// thrownErr carries a toi exception value up through Go's error-return
// mechanism so a nested call's uncaught throw can be re-raised against the
// caller's own try-handler stack exactly as if THROW had executed at the
// call site (§4.6 unwind algorithm). Each frame the throw escapes appends
// itself to trace, so an exception nothing catches reports where it
// travelled (§6 error output).
type thrownErr struct {
	val   Value
	trace []string
}

func (e *thrownErr) Error() string {
	s := fmt.Sprintf("uncaught exception: %s", e.val)
	for _, fr := range e.trace {
		s += "\n\tat " + fr
	}
	return s
}

func errValue(err error) Value {
	if te, ok := err.(*thrownErr); ok {
		return te.val
	}
	return String(err.Error())
}

// runClosure is the VM's instruction-dispatch loop (§4 Machine, §5 Execution
// model). One Go call of runClosure corresponds to one toi call frame;
// nested toi calls recurse into runClosure again, so the Go call stack
// mirrors the toi call stack and panics/stack overflows surface the same way
// a deeply-recursive native program's would.
func (th *Thread) runClosure(c *Closure, args *Tuple, named *Table) (Value, error) {
	return th.runClosureIn(c, args, named, false, Value(nil), Value(nil), Value(nil))
}

// RunModule runs a module's top-level closure with __name__/__file__/__main__
// installed in the shared globals table for the duration of the call, saving
// and restoring whatever was there before (§4.7). Called by lang/module's
// Loader once it has resolved and compiled a module's source file.
func (th *Thread) RunModule(c *Closure, name, file string, isMain bool) (Value, error) {
	savedName, _, _ := th.Globals.Get(String("__name__"))
	savedFile, _, _ := th.Globals.Get(String("__file__"))
	savedMain, _, _ := th.Globals.Get(String("__main__"))
	_ = th.Globals.SetKey(String("__name__"), String(name))
	_ = th.Globals.SetKey(String("__file__"), String(file))
	_ = th.Globals.SetKey(String("__main__"), Bool(isMain))
	return th.runClosureIn(c, NilaryTuple, nil, true, savedName, savedFile, savedMain)
}

func (th *Thread) runClosureIn(c *Closure, args *Tuple, named *Table, isModule bool, savedName, savedFile, savedMain Value) (Value, error) {
	fn := c.Fn
	base := len(th.stack)
	th.stack = append(th.stack, c) // slot 0: the closure itself

	nPos := args.Len()
	if nPos > fn.Arity && !fn.IsVariadic {
		th.stack = th.stack[:base]
		return nil, fmt.Errorf("%s() takes %d arguments (%d given)", c.Name(), fn.Arity, nPos)
	}
	for i := 0; i < fn.Arity; i++ {
		var pname string
		if i < len(fn.ParamNames) {
			pname = fn.ParamNames[i]
		}
		if i < nPos {
			if named != nil && pname != "" {
				if _, dup, _ := named.Get(String(pname)); dup {
					th.stack = th.stack[:base]
					return nil, fmt.Errorf("%s() got multiple values for argument %q", c.Name(), pname)
				}
			}
			th.stack = append(th.stack, args.Index(i))
			continue
		}
		if named != nil && pname != "" {
			if v, ok, _ := named.Get(String(pname)); ok {
				th.stack = append(th.stack, v)
				continue
			}
		}
		if i < len(fn.Defaults) && fn.Defaults[i] >= 0 {
			th.stack = append(th.stack, toValue(fn.Chunk.Constants[fn.Defaults[i]]))
			continue
		}
		th.stack = th.stack[:base]
		return nil, fmt.Errorf("%s() missing required argument %q (%d given, %d required)", c.Name(), pname, nPos, fn.Arity)
	}
	if fn.IsVariadic {
		extra := NewTable(0)
		if nPos > fn.Arity {
			for i := fn.Arity; i < nPos; i++ {
				_ = extra.Append(args.Index(i))
			}
		}
		th.stack = append(th.stack, extra)
	}
	frame := &Frame{closure: c, pc: 0, base: base, isModule: isModule, savedName: savedName, savedFile: savedFile, savedMain: savedMain}
	result, err := th.dispatch(frame)
	if err != nil {
		th.discardStackTo(base)
		if te, ok := err.(*thrownErr); ok {
			pc := frame.pc
			if pc > 0 {
				pc--
			}
			te.trace = append(te.trace, fmt.Sprintf("%s (line %d)", c.Name(), fn.Chunk.Line(pc)))
		}
		return nil, err
	}
	return result, nil
}

// dispatch runs frame's bytecode to completion (a RETURN/RETURN_N reached,
// or an error/uncaught exception propagating out).
func (th *Thread) dispatch(frame *Frame) (Value, error) {
	code := frame.closure.Fn.Chunk.Code
	ch := frame.closure.Fn.Chunk

	pop := func() Value {
		v := th.stack[len(th.stack)-1]
		th.stack = th.stack[:len(th.stack)-1]
		return v
	}
	push := func(v Value) { th.stack = append(th.stack, v) }
	peek := func(d int) Value { return th.stack[len(th.stack)-1-d] }
	popN := func(n int) []Value {
		l := len(th.stack)
		vs := make([]Value, n)
		copy(vs, th.stack[l-n:])
		th.stack = th.stack[:l-n]
		return vs
	}

	raise := func(val Value) bool {
		rec, ok := frame.popTry()
		if !ok {
			return false
		}
		th.discardStackTo(rec.StackDepth)
		push(val)
		frame.pc = rec.TargetPC
		return true
	}

	// fault converts a Go error from opcode execution into the exception
	// protocol: caught by this frame's own try-handler stack if possible,
	// else propagated to the caller as a *thrownErr.
	fault := func(err error) (Value, error) {
		val := errValue(err)
		if raise(val) {
			return nil, nil // signals "continue the loop"
		}
		if te, ok := err.(*thrownErr); ok {
			return nil, te // keep the trace accumulated so far
		}
		return nil, &thrownErr{val: val}
	}

	for {
		if frame.pc >= len(code) {
			return Nil, nil
		}
		if err := th.checkInterrupt(); err != nil {
			return nil, err
		}

		op := chunk.Opcode(code[frame.pc])
		opPC := frame.pc
		frame.pc++
		var operand uint16
		if op.HasOperand() {
			operand = ch.ReadUint16(frame.pc)
			frame.pc += 2
		}

		switch op {
		case chunk.NOP:
			// inert, left behind by the peephole optimizer

		case chunk.CONSTANT:
			push(toValue(ch.Constants[operand]))
		case chunk.NIL:
			push(Nil)
		case chunk.TRUE:
			push(Bool(true))
		case chunk.FALSE:
			push(Bool(false))
		case chunk.POP:
			// a discarded iterator cursor (break out of a loop) must release
			// its table's mutation lock
			if cur, ok := pop().(*iterCursor); ok {
				cur.it.Done()
			}
		case chunk.DUP:
			push(peek(0))
		case chunk.DUP2:
			a, b := peek(1), peek(0)
			push(a)
			push(b)
		case chunk.ADJUST_STACK:
			target := frame.base + int(operand)
			for len(th.stack) < target {
				push(Nil)
			}
			if len(th.stack) > target {
				th.stack = th.stack[:target]
			}

		case chunk.GET_GLOBAL:
			name, _ := ch.Constants[operand].(string)
			cache := &ch.GlobalCache[opPC]
			if cache.Version == th.Globals.Version && cache.Name == name {
				push(cache.Value.(Value))
				continue
			}
			v, ok, err := th.Globals.Get(String(name))
			if err != nil {
				if v, e2 := fault(err); e2 != nil || v != nil {
					return v, e2
				}
				continue
			}
			if !ok {
				if v, e2 := fault(fmt.Errorf("undefined global %q", name)); e2 != nil || v != nil {
					return v, e2
				}
				continue
			}
			cache.Version, cache.Name, cache.Value = th.Globals.Version, name, v
			push(v)
		case chunk.SET_GLOBAL:
			name, _ := ch.Constants[operand].(string)
			if err := th.Globals.SetKey(String(name), peek(0)); err != nil {
				if v, e2 := fault(err); e2 != nil || v != nil {
					return v, e2
				}
			}
		case chunk.DEFINE_GLOBAL:
			name, _ := ch.Constants[operand].(string)
			v := pop()
			if err := th.Globals.SetKey(String(name), v); err != nil {
				if v, e2 := fault(err); e2 != nil || v != nil {
					return v, e2
				}
			}
		case chunk.DELETE_GLOBAL:
			name, _ := ch.Constants[operand].(string)
			_ = th.Globals.Delete(String(name))

		case chunk.GET_LOCAL:
			push(th.stack[frame.base+int(operand)])
		case chunk.SET_LOCAL:
			th.stack[frame.base+int(operand)] = peek(0)
		case chunk.GET_UPVALUE:
			push(frame.closure.Upvalues[operand].Get())
		case chunk.SET_UPVALUE:
			frame.closure.Upvalues[operand].Set(peek(0))
		case chunk.CLOSE_UPVALUE:
			th.closeUpvaluesFrom(len(th.stack) - 1)
			pop()

		case chunk.NEW_TABLE:
			push(NewTable(int(operand)))
		case chunk.APPEND:
			v := pop()
			t, ok := peek(0).(*Table)
			if !ok {
				if v, e2 := fault(fmt.Errorf("attempt to append to a %s value", peek(0).Type())); e2 != nil || v != nil {
					return v, e2
				}
				continue
			}
			if err := t.Append(v); err != nil {
				if v, e2 := fault(err); e2 != nil || v != nil {
					return v, e2
				}
			}
		case chunk.GET_TABLE:
			key := pop()
			obj := pop()
			if tbl, ok := obj.(*Table); ok {
				cache := &ch.IndexCache[opPC]
				if cache.Version == tbl.Version && cache.Table == any(tbl) && cache.Key == any(key) {
					push(cache.Value.(Value))
					continue
				}
				v, err := getIndexed(obj, key)
				if err != nil {
					if v, e2 := fault(err); e2 != nil || v != nil {
						return v, e2
					}
					continue
				}
				cache.Version, cache.Table, cache.Key, cache.Value = tbl.Version, tbl, key, v
				push(v)
				continue
			}
			v, err := getIndexed(obj, key)
			if err != nil {
				if v, e2 := fault(err); e2 != nil || v != nil {
					return v, e2
				}
				continue
			}
			push(v)
		case chunk.SET_TABLE:
			v := pop()
			key := pop()
			obj := peek(0)
			if err := setIndexed(obj, key, v); err != nil {
				if v, e2 := fault(err); e2 != nil || v != nil {
					return v, e2
				}
			}
		case chunk.GET_FIELD:
			name, _ := ch.Constants[operand].(string)
			obj := pop()
			if tbl, ok := obj.(*Table); ok {
				cache := &ch.IndexCache[opPC]
				if cache.Version == tbl.Version && cache.Table == any(tbl) && cache.Key == any(String(name)) {
					push(cache.Value.(Value))
					continue
				}
				v, err := getIndexed(obj, String(name))
				if err != nil {
					if v, e2 := fault(err); e2 != nil || v != nil {
						return v, e2
					}
					continue
				}
				cache.Version, cache.Table, cache.Key, cache.Value = tbl.Version, tbl, String(name), v
				push(v)
				continue
			}
			v, err := getIndexed(obj, String(name))
			if err != nil {
				if v, e2 := fault(err); e2 != nil || v != nil {
					return v, e2
				}
				continue
			}
			push(v)
		case chunk.SET_FIELD:
			name, _ := ch.Constants[operand].(string)
			v := pop()
			obj := peek(0)
			if err := setIndexed(obj, String(name), v); err != nil {
				if v, e2 := fault(err); e2 != nil || v != nil {
					return v, e2
				}
			}
		case chunk.DELETE_TABLE:
			key := pop()
			if t, ok := peek(0).(*Table); ok {
				_ = t.Delete(key)
			}
		case chunk.GET_META_TABLE:
			name, _ := ch.Constants[operand].(string)
			obj := pop()
			hm, ok := obj.(HasMetamap)
			if !ok || hm.Metamap() == nil {
				push(Nil)
				continue
			}
			v, _, err := hm.Metamap().Get(String(name))
			if err != nil {
				if v, e2 := fault(err); e2 != nil || v != nil {
					return v, e2
				}
				continue
			}
			push(v)
		case chunk.SET_METATABLE:
			// [meta, table] -> [table], the shape "<expr> { ... }" leaves
			obj := pop()
			meta := pop()
			hm, ok := obj.(HasMetamap)
			if !ok {
				if v, e2 := fault(fmt.Errorf("attempt to set a metatable on a %s value", obj.Type())); e2 != nil || v != nil {
					return v, e2
				}
				continue
			}
			if meta == Nil {
				hm.SetMetamap(nil)
			} else if mt, ok := meta.(*Table); ok {
				hm.SetMetamap(mt)
			} else {
				if v, e2 := fault(fmt.Errorf("metatable must be a table, got %s", meta.Type())); e2 != nil || v != nil {
					return v, e2
				}
				continue
			}
			push(obj)
		case chunk.SLICE:
			step := pop()
			end := pop()
			start := pop()
			obj := pop()
			v, err := sliceValue(obj, start, end, step)
			if err != nil {
				if v, e2 := fault(err); e2 != nil || v != nil {
					return v, e2
				}
				continue
			}
			push(v)

		case chunk.ADD, chunk.SUB, chunk.MUL, chunk.DIV, chunk.POWER, chunk.INT_DIV, chunk.MODULO:
			b := pop()
			a := pop()
			v, err := Binary(binaryTok(op), a, b)
			if err != nil {
				if v, e2 := fault(err); e2 != nil || v != nil {
					return v, e2
				}
				continue
			}
			push(v)
		case chunk.IADD, chunk.ISUB, chunk.IMUL, chunk.IDIV, chunk.IMOD:
			b := pop()
			a := pop()
			ai, aok := a.(Int)
			bi, bok := b.(Int)
			if !aok || !bok {
				if v, e2 := fault(fmt.Errorf("unsupported operand types for %s: %s and %s", op, a.Type(), b.Type())); e2 != nil || v != nil {
					return v, e2
				}
				continue
			}
			v, err := intArith(intTok(op), ai, bi)
			if err != nil {
				if v, e2 := fault(err); e2 != nil || v != nil {
					return v, e2
				}
				continue
			}
			push(v)
		case chunk.FADD, chunk.FSUB, chunk.FMUL, chunk.FDIV:
			// "any-float pair" specialization (§4.3.2): the other operand may
			// still be an int at runtime, so coerce rather than require Float
			b := pop()
			a := pop()
			af, aok := toFloat(a)
			bf, bok := toFloat(b)
			if !aok || !bok {
				if v, e2 := fault(fmt.Errorf("unsupported operand types for %s: %s and %s", op, a.Type(), b.Type())); e2 != nil || v != nil {
					return v, e2
				}
				continue
			}
			v, err := floatArith(floatTok(op), Float(af), Float(bf))
			if err != nil {
				if v, e2 := fault(err); e2 != nil || v != nil {
					return v, e2
				}
				continue
			}
			push(v)
		case chunk.ADD_CONST, chunk.SUB_CONST, chunk.MUL_CONST, chunk.DIV_CONST:
			a := pop()
			k := toValue(ch.Constants[operand])
			var tok token.Token
			switch op {
			case chunk.ADD_CONST:
				tok = token.PLUS
			case chunk.SUB_CONST:
				tok = token.MINUS
			case chunk.MUL_CONST:
				tok = token.STAR
			case chunk.DIV_CONST:
				tok = token.SLASH
			}
			v, err := Binary(tok, a, k)
			if err != nil {
				if v, e2 := fault(err); e2 != nil || v != nil {
					return v, e2
				}
				continue
			}
			push(v)
		case chunk.INC_LOCAL:
			// nets the same stack effect as the GET_LOCAL/CONSTANT/IADD/
			// SET_LOCAL span it replaced: the new value stays on the stack
			idx := frame.base + int(operand)
			cur, ok := th.stack[idx].(Int)
			if !ok {
				if v, e2 := fault(fmt.Errorf("unsupported operand type for +=: %s", th.stack[idx].Type())); e2 != nil || v != nil {
					return v, e2
				}
				continue
			}
			th.stack[idx] = cur + 1
			push(cur + 1)
		case chunk.ADD_SET_LOCAL:
			// replaces GET_LOCAL/ADD/SET_LOCAL: the addend on the stack is
			// swapped for the stored sum
			v := pop()
			idx := frame.base + int(operand)
			sum, err := Binary(token.PLUS, th.stack[idx], v)
			if err != nil {
				if v, e2 := fault(err); e2 != nil || v != nil {
					return v, e2
				}
				continue
			}
			th.stack[idx] = sum
			push(sum)

		case chunk.NEGATE:
			v, err := Unary(token.MINUS, pop())
			if err != nil {
				if v, e2 := fault(err); e2 != nil || v != nil {
					return v, e2
				}
				continue
			}
			push(v)
		case chunk.NOT:
			v, _ := Unary(token.NOT, pop())
			push(v)
		case chunk.LENGTH:
			v, err := Unary(token.POUND, pop())
			if err != nil {
				if v, e2 := fault(err); e2 != nil || v != nil {
					return v, e2
				}
				continue
			}
			push(v)
		case chunk.BNOT:
			v, err := Unary(token.TILDE, pop())
			if err != nil {
				if v, e2 := fault(err); e2 != nil || v != nil {
					return v, e2
				}
				continue
			}
			push(v)

		case chunk.EQUAL:
			b, a := pop(), pop()
			v, err := Equal(a, b)
			if err != nil {
				if v, e2 := fault(err); e2 != nil || v != nil {
					return v, e2
				}
				continue
			}
			push(Bool(v))
		case chunk.LESS, chunk.GREATER:
			b, a := pop(), pop()
			c, err := Compare(a, b)
			if err != nil {
				if v, e2 := fault(err); e2 != nil || v != nil {
					return v, e2
				}
				continue
			}
			if op == chunk.LESS {
				push(Bool(c < 0))
			} else {
				push(Bool(c > 0))
			}
		case chunk.HAS:
			key, obj := pop(), pop()
			found, err := hasKey(obj, key)
			if err != nil {
				if v, e2 := fault(err); e2 != nil || v != nil {
					return v, e2
				}
				continue
			}
			push(Bool(found))
		case chunk.IN:
			container := pop()
			elem := pop()
			found, err := hasKey(container, elem)
			if err != nil {
				if v, e2 := fault(err); e2 != nil || v != nil {
					return v, e2
				}
				continue
			}
			push(Bool(found))
		case chunk.RANGE:
			end, start := pop(), pop()
			si, ok1 := start.(Int)
			ei, ok2 := end.(Int)
			if !ok1 || !ok2 {
				if v, e2 := fault(fmt.Errorf("range bounds must be int, got %s and %s", start.Type(), end.Type())); e2 != nil || v != nil {
					return v, e2
				}
				continue
			}
			push(Range{Start: si, Stop: ei, Step: 1})
		case chunk.BAND, chunk.BOR, chunk.BXOR, chunk.SHL, chunk.SHR:
			b, a := pop(), pop()
			ai, aok := a.(Int)
			bi, bok := b.(Int)
			if !aok || !bok {
				if v, e2 := fault(fmt.Errorf("unsupported operand types for %s: %s and %s", op, a.Type(), b.Type())); e2 != nil || v != nil {
					return v, e2
				}
				continue
			}
			var r Int
			switch op {
			case chunk.BAND:
				r = ai & bi
			case chunk.BOR:
				r = ai | bi
			case chunk.BXOR:
				r = ai ^ bi
			case chunk.SHL:
				r = ai << uint(bi)
			case chunk.SHR:
				r = ai >> uint(bi)
			}
			push(r)

		case chunk.JUMP:
			frame.pc = int(operand)
		case chunk.JUMP_IF_FALSE:
			if !Truth(peek(0)) {
				frame.pc = int(operand)
			}
		case chunk.JUMP_IF_TRUE:
			if Truth(peek(0)) {
				frame.pc = int(operand)
			}
		case chunk.LOOP:
			frame.pc = int(operand)

		case chunk.FOR_PREP:
			r, ok := pop().(Range)
			if !ok {
				if v, e2 := fault(fmt.Errorf("attempt to iterate a non-range value")); e2 != nil || v != nil {
					return v, e2
				}
				continue
			}
			push(&iterCursor{it: r.Iterate()})
		case chunk.ITER_PREP:
			v := pop()
			it, err := iteratorFor(v)
			if err != nil {
				if v, e2 := fault(err); e2 != nil || v != nil {
					return v, e2
				}
				continue
			}
			push(&iterCursor{it: it})
		case chunk.ITER_PREP_IPAIRS:
			v := pop()
			it, err := pairIteratorFor(v)
			if err != nil {
				if v, e2 := fault(err); e2 != nil || v != nil {
					return v, e2
				}
				continue
			}
			push(&iterCursor{it: it})
		case chunk.FOR_LOOP:
			cur, ok := peek(0).(*iterCursor)
			if !ok {
				if v, e2 := fault(fmt.Errorf("internal error: FOR_LOOP without a cursor")); e2 != nil || v != nil {
					return v, e2
				}
				continue
			}
			var v Value
			if cur.it.Next(&v) {
				push(v)
			} else {
				cur.it.Done()
				if erri, ok := cur.it.(interface{ Err() error }); ok {
					if err := erri.Err(); err != nil {
						pop() // drop the cursor before faulting
						if v, e2 := fault(err); e2 != nil || v != nil {
							return v, e2
						}
						continue
					}
				}
				pop() // drop the cursor
				frame.pc = int(operand)
			}
		case chunk.UNPACK:
			v := pop()
			elems := unpackValue(v, int(operand))
			for _, e := range elems {
				push(e)
			}

		case chunk.CALL, chunk.CALL0, chunk.CALL1, chunk.CALL2, chunk.CALL_NAMED, chunk.CALL_EXPAND:
			var posArgs []Value
			var namedTable *Table
			switch op {
			case chunk.CALL0:
			case chunk.CALL1:
				posArgs = popN(1)
			case chunk.CALL2:
				posArgs = popN(2)
			case chunk.CALL:
				posArgs = popN(int(operand))
			case chunk.CALL_NAMED:
				namedTable, _ = pop().(*Table)
				posArgs = popN(int(operand))
			case chunk.CALL_EXPAND:
				spread := pop()
				base := popN(int(operand))
				extra, err := expandValue(spread)
				if err != nil {
					if v, e2 := fault(err); e2 != nil || v != nil {
						return v, e2
					}
					continue
				}
				posArgs = append(base, extra...)
			}
			callee := pop()
			result, err := th.callValue(callee, NewTuple(posArgs), namedTable)
			if err != nil {
				if v, e2 := fault(err); e2 != nil || v != nil {
					return v, e2
				}
				continue
			}
			push(result)

		case chunk.CLOSURE:
			fnVal, _ := ch.Constants[operand].(*compiler.Function)
			nUp := int(ch.ReadUint16(frame.pc))
			frame.pc += 2
			upvalues := make([]*Upvalue, nUp)
			for i := 0; i < nUp; i++ {
				isLocal := code[frame.pc] != 0
				frame.pc++
				idx := int(ch.ReadUint16(frame.pc))
				frame.pc += 2
				if isLocal {
					upvalues[i] = th.findOrCreateUpvalue(frame.base + idx)
				} else {
					upvalues[i] = frame.closure.Upvalues[idx]
				}
			}
			push(&Closure{Fn: fnVal, Upvalues: upvalues})

		case chunk.RETURN:
			result := pop()
			th.closeUpvaluesFrom(frame.base)
			th.discardStackTo(frame.base)
			if frame.isModule {
				th.restoreModuleContext(frame)
			}
			return result, nil
		case chunk.RETURN_N:
			vals := popN(int(operand))
			th.closeUpvaluesFrom(frame.base)
			th.discardStackTo(frame.base)
			if frame.isModule {
				th.restoreModuleContext(frame)
			}
			return NewTuple(vals), nil

		case chunk.TRY:
			frame.pushTry(TryRecord{TargetPC: int(operand), StackDepth: len(th.stack)})
		case chunk.END_TRY:
			frame.popTry()
		case chunk.END_FINALLY:
			// operand is the slot of the (pending, tag) pair the compiler's
			// finally join left below the finished finally body (§4.6)
			pendIdx := frame.base + int(operand)
			tag, _ := th.stack[pendIdx+1].(Int)
			pending := th.stack[pendIdx]
			th.stack = th.stack[:pendIdx]
			switch int(tag) {
			case chunk.PendThrow:
				if !raise(pending) {
					return nil, &thrownErr{val: pending}
				}
			case chunk.PendReturn:
				th.closeUpvaluesFrom(frame.base)
				th.discardStackTo(frame.base)
				if frame.isModule {
					th.restoreModuleContext(frame)
				}
				return pending, nil
			}
		case chunk.THROW:
			v := pop()
			if !raise(v) {
				return nil, &thrownErr{val: v}
			}

		case chunk.IMPORT:
			path, _ := ch.Constants[operand].(string)
			if th.Load == nil {
				if v, e2 := fault(fmt.Errorf("imports are not supported by this thread")); e2 != nil || v != nil {
					return v, e2
				}
				continue
			}
			mod, err := th.Load(th, path)
			if err != nil {
				if v, e2 := fault(err); e2 != nil || v != nil {
					return v, e2
				}
				continue
			}
			push(mod)
		case chunk.IMPORT_STAR:
			mod, ok := pop().(*Table)
			if !ok {
				continue
			}
			it := mod.Iterate()
			var kv Value
			for it.Next(&kv) {
				pair := kv.(*Tuple)
				name, ok := pair.Index(0).(String)
				if !ok || pair.Index(1) == Nil {
					continue
				}
				_ = th.Globals.SetKey(name, pair.Index(1))
			}
			it.Done()

		case chunk.BUILD_STRING:
			parts := popN(int(operand))
			var sb []byte
			for _, p := range parts {
				sb = append(sb, p.String()...)
			}
			push(String(sb))

		case chunk.PRINT:
			// REPL echo: show the value of an expression statement, staying
			// quiet for nil so calls made for their side effects don't chatter
			v := pop()
			if v != Nil {
				fmt.Fprintln(th.stdout, v.String())
			}
		case chunk.GC:
			// no-op: Go's own garbage collector owns every toi value.
		case chunk.YIELD:
			vals := popN(int(operand))
			var v Value
			if len(vals) == 1 {
				v = vals[0]
			} else {
				v = NewTuple(vals)
			}
			resumeVal, err := th.Yield(v)
			if err != nil {
				if v, e2 := fault(err); e2 != nil || v != nil {
					return v, e2
				}
				continue
			}
			push(resumeVal)

		default:
			return nil, fmt.Errorf("unimplemented opcode %s", op)
		}
	}
}

// discardStackTo truncates the value stack to n, releasing any live iterator
// cursor in the discarded span so its table's mutation lock is dropped even
// when a loop is abandoned by a throw or an early return (§5 resource
// lifetimes).
func (th *Thread) discardStackTo(n int) {
	for _, v := range th.stack[n:] {
		if cur, ok := v.(*iterCursor); ok {
			cur.it.Done()
		}
	}
	th.stack = th.stack[:n]
}

// Yield suspends the calling generator thread until its owning Generator is
// next resumed, returning the value resume supplied. Shared by the YIELD
// opcode and the "coroutine.yield" native library function (lang/module)
// so an explicit "yield expr" and a call through the coroutine module
// behave identically.
func (th *Thread) Yield(v Value) (Value, error) {
	if th.gen == nil {
		return nil, fmt.Errorf("yield outside a generator")
	}
	return th.gen.yield(v), nil
}

func (th *Thread) restoreModuleContext(frame *Frame) {
	set := func(name string, v Value) {
		if v == nil {
			_ = th.Globals.Delete(String(name))
			return
		}
		_ = th.Globals.SetKey(String(name), v)
	}
	set("__name__", frame.savedName)
	set("__file__", frame.savedFile)
	set("__main__", frame.savedMain)
}

// callValue dispatches a call through the Callable capability, routing a
// generator-bodied closure to generator construction instead of direct
// execution (§4.3.5 generators).
func (th *Thread) callValue(callee Value, args *Tuple, named *Table) (Value, error) {
	c, ok := callee.(Callable)
	if !ok {
		return nil, fmt.Errorf("attempt to call a %s value", callee.Type())
	}
	return c.CallInternal(th, args, named)
}

func toValue(c chunk.Value) Value {
	switch v := c.(type) {
	case int64:
		return Int(v)
	case float64:
		return Float(v)
	case string:
		return String(v)
	case bool:
		return Bool(v)
	case Value:
		return v
	default:
		return Nil
	}
}

func binaryTok(op chunk.Opcode) token.Token {
	switch op {
	case chunk.ADD:
		return token.PLUS
	case chunk.SUB:
		return token.MINUS
	case chunk.MUL:
		return token.STAR
	case chunk.DIV:
		return token.SLASH
	case chunk.POWER:
		return token.STARSTAR
	case chunk.INT_DIV:
		return token.SLASHSLASH
	case chunk.MODULO:
		return token.PERCENT
	}
	return token.ILLEGAL
}

func intTok(op chunk.Opcode) token.Token {
	switch op {
	case chunk.IADD:
		return token.PLUS
	case chunk.ISUB:
		return token.MINUS
	case chunk.IMUL:
		return token.STAR
	case chunk.IDIV:
		return token.SLASHSLASH
	case chunk.IMOD:
		return token.PERCENT
	}
	return token.ILLEGAL
}

func floatTok(op chunk.Opcode) token.Token {
	switch op {
	case chunk.FADD:
		return token.PLUS
	case chunk.FSUB:
		return token.MINUS
	case chunk.FMUL:
		return token.STAR
	case chunk.FDIV:
		return token.SLASH
	}
	return token.ILLEGAL
}


func getIndexed(obj, key Value) (Value, error) {
	if m, ok := obj.(Mapping); ok {
		v, found, err := m.Get(key)
		if err != nil {
			return nil, err
		}
		if found {
			return v, nil
		}
		if ha, ok := obj.(HasAttrs); ok {
			if ks, ok := key.(String); ok {
				if v, err := ha.Attr(string(ks)); err != nil || v != nil {
					return v, err
				}
			}
		}
		return Nil, nil
	}
	if ha, ok := obj.(HasAttrs); ok {
		if ks, ok := key.(String); ok {
			v, err := ha.Attr(string(ks))
			if err != nil {
				return nil, err
			}
			if v != nil {
				return v, nil
			}
			return nil, fmt.Errorf("%s has no attribute %q", obj.Type(), ks)
		}
	}
	if idx, ok := obj.(Indexable); ok {
		ik, ok := key.(Int)
		if !ok {
			return nil, fmt.Errorf("attempt to index a %s with a %s", obj.Type(), key.Type())
		}
		i := int(ik)
		if i < 0 || i >= idx.Len() {
			return nil, fmt.Errorf("index %d out of range (len %d)", i, idx.Len())
		}
		return idx.Index(i), nil
	}
	return nil, fmt.Errorf("attempt to index a %s value", obj.Type())
}

func setIndexed(obj, key, v Value) error {
	if sk, ok := obj.(HasSetKey); ok {
		return sk.SetKey(key, v)
	}
	if sf, ok := obj.(HasSetField); ok {
		if ks, ok := key.(String); ok {
			return sf.SetField(string(ks), v)
		}
	}
	if si, ok := obj.(HasSetIndex); ok {
		ik, ok := key.(Int)
		if !ok {
			return fmt.Errorf("attempt to index a %s with a %s", obj.Type(), key.Type())
		}
		i := int(ik)
		if i < 0 || i >= si.Len() {
			return fmt.Errorf("index %d out of range (len %d)", i, si.Len())
		}
		return si.SetIndex(i, v)
	}
	return fmt.Errorf("attempt to assign to a %s value", obj.Type())
}

func hasKey(obj, key Value) (bool, error) {
	if m, ok := obj.(Mapping); ok {
		_, found, err := m.Get(key)
		return found, err
	}
	if idx, ok := obj.(Indexable); ok {
		for i := 0; i < idx.Len(); i++ {
			eq, err := Equal(idx.Index(i), key)
			if err != nil {
				return false, err
			}
			if eq {
				return true, nil
			}
		}
		return false, nil
	}
	if it, ok := obj.(Iterable); ok {
		iter := it.Iterate()
		defer iter.Done()
		var v Value
		for iter.Next(&v) {
			eq, err := Equal(v, key)
			if err != nil {
				return false, err
			}
			if eq {
				return true, nil
			}
		}
		return false, nil
	}
	return false, fmt.Errorf("attempt to use 'in' on a %s value", obj.Type())
}

// unpackValue spreads v into exactly n values (§4.3.8 multi-assignment,
// §4.4 multi-variable for): a Tuple or Table's array part pads/truncates to
// n; any other value is treated as a single-element source padded with nil.
func unpackValue(v Value, n int) []Value {
	var src []Value
	switch v := v.(type) {
	case *Tuple:
		for i := 0; i < v.Len(); i++ {
			src = append(src, v.Index(i))
		}
	case *Table:
		for i := 0; i < v.Len(); i++ {
			src = append(src, v.Index(i))
		}
	default:
		src = []Value{v}
	}
	out := make([]Value, n)
	for i := 0; i < n; i++ {
		if i < len(src) {
			out[i] = src[i]
		} else {
			out[i] = Nil
		}
	}
	return out
}

// expandValue spreads a "*expr" call argument into its constituent values
// (§4.3.3 call forms).
func expandValue(v Value) ([]Value, error) {
	switch v := v.(type) {
	case *Tuple:
		out := make([]Value, v.Len())
		for i := range out {
			out[i] = v.Index(i)
		}
		return out, nil
	case *Table:
		out := make([]Value, v.Len())
		for i := range out {
			out[i] = v.Index(i)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("attempt to spread a %s value", v.Type())
	}
}

// sliceValue implements SLICE over anything Indexable, §4.3.2. Missing
// bounds come in as Nil (start defaults to 0, end to the container's
// length, step to 1); negative indices are not supported, matching the
// compiler's own 0-based Indexable contract.
func sliceValue(obj, start, end, step Value) (Value, error) {
	idx, ok := obj.(Indexable)
	if !ok {
		return nil, fmt.Errorf("attempt to slice a %s value", obj.Type())
	}
	n := idx.Len()
	s, e, st := 0, n, 1
	if start != Nil {
		si, ok := start.(Int)
		if !ok {
			return nil, fmt.Errorf("slice start must be int")
		}
		s = int(si)
	}
	if end != Nil {
		ei, ok := end.(Int)
		if !ok {
			return nil, fmt.Errorf("slice end must be int")
		}
		e = int(ei)
	}
	if step != Nil {
		sti, ok := step.(Int)
		if !ok {
			return nil, fmt.Errorf("slice step must be int")
		}
		st = int(sti)
	}
	if st == 0 {
		return nil, fmt.Errorf("slice step cannot be zero")
	}
	var out []Value
	if st > 0 {
		for i := s; i < e && i < n; i += st {
			if i >= 0 {
				out = append(out, idx.Index(i))
			}
		}
	} else {
		for i := s; i > e && i >= 0; i += st {
			if i < n {
				out = append(out, idx.Index(i))
			}
		}
	}
	switch obj.(type) {
	case String:
		var sb []byte
		for _, v := range out {
			sb = append(sb, v.String()...)
		}
		return String(sb), nil
	default:
		t := NewTable(len(out))
		for _, v := range out {
			_ = t.Append(v)
		}
		return t, nil
	}
}
