package vm

import "math/big"

// jumpCondition evaluates a condition against the evaluation stack for the
// JMPIF/JMPEQ/... opcode family; always true for unconditional JMP/JMP_L.
func (v *VM) jumpCondition(ctx *Context, op Opcode) (bool, error) {
	switch op {
	case JMP, JMP_L:
		return true, nil
	case JMPIF, JMPIF_L:
		i, err := ctx.evalStack.Pop()
		if err != nil {
			return false, err
		}
		return i.Bool(), nil
	case JMPIFNOT, JMPIFNOT_L:
		i, err := ctx.evalStack.Pop()
		if err != nil {
			return false, err
		}
		return !i.Bool(), nil
	case JMPEQ, JMPEQ_L, JMPNE, JMPNE_L, JMPGT, JMPGT_L, JMPGE, JMPGE_L,
		JMPLT, JMPLT_L, JMPLE, JMPLE_L:
		b, err := popInt(ctx)
		if err != nil {
			return false, err
		}
		a, err := popInt(ctx)
		if err != nil {
			return false, err
		}
		cmp := a.v.Cmp(b.v)
		switch op {
		case JMPEQ, JMPEQ_L:
			return cmp == 0, nil
		case JMPNE, JMPNE_L:
			return cmp != 0, nil
		case JMPGT, JMPGT_L:
			return cmp > 0, nil
		case JMPGE, JMPGE_L:
			return cmp >= 0, nil
		case JMPLT, JMPLT_L:
			return cmp < 0, nil
		default: // JMPLE, JMPLE_L
			return cmp <= 0, nil
		}
	}
	return false, ErrInvalidOpcode
}

func isLongJump(op Opcode) bool {
	switch op {
	case JMP_L, JMPIF_L, JMPIFNOT_L, JMPEQ_L, JMPNE_L, JMPGT_L, JMPGE_L,
		JMPLT_L, JMPLE_L, CALL_L, TRY_L, ENDTRY_L:
		return true
	}
	return false
}

func (v *VM) opJump(ctx *Context, op Opcode) error {
	instrStart := ctx.IP - 1
	ok, err := v.readJumpCond(ctx, op)
	if err != nil {
		return err
	}
	off, err := v.readOffset(ctx, op)
	if err != nil {
		return err
	}
	if ok {
		ctx.IP = instrStart + off
	}
	return nil
}

// readJumpCond evaluates the branch condition; it must be read before the
// offset operand because condition opcodes pop their operands from the
// evaluation stack, not the instruction stream, and the offset always
// immediately follows the opcode byte regardless of condition kind.
func (v *VM) readJumpCond(ctx *Context, op Opcode) (bool, error) {
	return v.jumpCondition(ctx, op)
}

func (v *VM) readOffset(ctx *Context, op Opcode) (int, error) {
	if isLongJump(op) {
		off, err := v.readI32(ctx)
		return int(off), err
	}
	off, err := v.readI8(ctx)
	return int(off), err
}

func (v *VM) opCall(ctx *Context, op Opcode) error {
	instrStart := ctx.IP - 1
	off, err := v.readOffset(ctx, op)
	if err != nil {
		return err
	}
	target := instrStart + off
	if target < 0 || target > len(ctx.Script) {
		return ErrScriptOutOfBounds
	}
	return v.callInternal(ctx, target)
}

func (v *VM) opCallA(ctx *Context) error {
	i, err := ctx.evalStack.Pop()
	if err != nil {
		return err
	}
	p, ok := i.(Pointer)
	if !ok {
		return ErrTypeMismatch
	}
	return v.callInternal(ctx, p.Position)
}

// callInternal pushes a new context sharing the caller's script, jumping to
// target — used for in-script CALL (NOT System.Contract.Call, which lives
// in pkg/engine and loads a different script).
func (v *VM) callInternal(ctx *Context, target int) error {
	if len(v.invStack) >= v.limits.MaxInvocationStackDepth {
		return ErrInvocationDepth
	}
	nc := newContext(ctx.Script, v.rc, -1)
	nc.IP = target
	nc.ScriptHash = ctx.ScriptHash
	nc.CallingScriptHash = ctx.CallingScriptHash
	nc.CallFlags = ctx.CallFlags
	v.invStack = append(v.invStack, nc)
	return nil
}

func (v *VM) opAssert(ctx *Context) error {
	i, err := ctx.evalStack.Pop()
	if err != nil {
		return err
	}
	if !i.Bool() {
		return &FaultError{Cause: ErrThrown, Exception: ByteString("ASSERT failed")}
	}
	return nil
}

func (v *VM) opThrow(ctx *Context) error {
	i, err := ctx.evalStack.Pop()
	if err != nil {
		return err
	}
	return &FaultError{Cause: ErrThrown, Exception: i}
}

func (v *VM) opTry(ctx *Context, op Opcode) error {
	instrStart := ctx.IP - 1
	catchOff, err := v.readOffset(ctx, op)
	if err != nil {
		return err
	}
	finallyOff, err := v.readOffset(ctx, op)
	if err != nil {
		return err
	}
	frame := exceptionFrame{catchOffset: -1, finallyOffset: -1, state: exTry}
	if catchOff != 0 {
		frame.catchOffset = instrStart + catchOff
	}
	if finallyOff != 0 {
		frame.finallyOffset = instrStart + finallyOff
	}
	ctx.tryStack = append(ctx.tryStack, frame)
	return nil
}

func (v *VM) opEndTry(ctx *Context, op Opcode) error {
	instrStart := ctx.IP - 1
	off, err := v.readOffset(ctx, op)
	if err != nil {
		return err
	}
	if len(ctx.tryStack) == 0 {
		return ErrNoCatchHandler
	}
	frame := ctx.tryStack[len(ctx.tryStack)-1]
	if frame.finallyOffset >= 0 && frame.state != exFinally {
		ctx.tryStack[len(ctx.tryStack)-1].state = exFinally
		ctx.tryStack[len(ctx.tryStack)-1].endOffset = instrStart + off
		ctx.IP = frame.finallyOffset
		return nil
	}
	ctx.tryStack = ctx.tryStack[:len(ctx.tryStack)-1]
	ctx.IP = instrStart + off
	return nil
}

func (v *VM) opEndFinally(ctx *Context) error {
	if len(ctx.tryStack) == 0 {
		return ErrNoCatchHandler
	}
	frame := ctx.tryStack[len(ctx.tryStack)-1]
	ctx.tryStack = ctx.tryStack[:len(ctx.tryStack)-1]
	ctx.IP = frame.endOffset
	return nil
}

func (v *VM) opRet(ctx *Context) error {
	popped := v.popContext()
	n := popped.evalStack.Len()
	if popped.ReturnCount >= 0 {
		n = popped.ReturnCount
	}
	values := make([]Item, 0, n)
	for i := 0; i < n; i++ {
		it, err := popped.evalStack.Pop()
		if err != nil {
			break
		}
		values = append(values, it)
	}
	caller := v.CurrentContext()
	if caller == nil {
		// Top-level return: keep the result reachable via v.ResultStack()
		// even though the invocation stack is now empty.
		v.halted = popped
		for i := len(values) - 1; i >= 0; i-- {
			popped.evalStack.Push(values[i])
		}
		return nil
	}
	for i := len(values) - 1; i >= 0; i-- {
		caller.evalStack.Push(values[i])
	}
	return nil
}

func (v *VM) opSyscall(ctx *Context) error {
	b, err := v.readOperand(ctx, 4)
	if err != nil {
		return err
	}
	hash := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
	if v.Syscall == nil {
		return ErrInvalidOpcode
	}
	return v.Syscall(v, hash)
}

func popInt(ctx *Context) (Integer, error) {
	i, err := ctx.evalStack.Pop()
	if err != nil {
		return Integer{}, err
	}
	n, ok := i.(Integer)
	if !ok {
		return Integer{}, ErrTypeMismatch
	}
	return n, nil
}

var _ = big.NewInt
