package vm

import (
	"encoding/binary"
	"fmt"
	"math/big"
)

// State is the top-level VM execution state: NONE, RUNNING, then one of
// HALT, FAULT, or BREAK.
type State int

const (
	StateNone State = iota
	StateRunning
	StateHalt
	StateFault
	StateBreak
)

func (s State) String() string {
	switch s {
	case StateNone:
		return "NONE"
	case StateRunning:
		return "RUNNING"
	case StateHalt:
		return "HALT"
	case StateFault:
		return "FAULT"
	case StateBreak:
		return "BREAK"
	default:
		return "UNKNOWN"
	}
}

// SyscallHandler is invoked on SYSCALL with the decoded 4-byte interop name
// hash; the ApplicationEngine layer (pkg/engine) registers the real
// dispatcher (gas metering, CallFlags checks, native handler invocation).
// The bare VM has no knowledge of interops beyond this hook.
type SyscallHandler func(v *VM, nameHash uint32) error

// StepHook runs before every opcode dispatch; the ApplicationEngine uses it
// to meter gas. Returning an error faults the VM before the opcode's side
// effects run.
type StepHook func(v *VM, op Opcode) error

// VM is a single-threaded, deterministic bytecode interpreter: identical
// (script, initial stack) inputs always produce identical
// (state, result stack, gas) outputs.
type VM struct {
	state    State
	invStack []*Context
	rc       *refCounter
	limits   Limits

	Syscall   SyscallHandler
	PreStep   StepHook
	Exception Item // set on FAULT/uncaught THROW, inspectable after Run
	halted    *Context

	// UncaughtFault records the Go error that produced StateFault, for
	// ApplicationEngine's receipt construction.
	UncaughtFault error
}

// New creates a VM with the given execution limits.
func New(limits Limits) *VM {
	return &VM{state: StateNone, rc: newRefCounter(), limits: limits}
}

// State reports the current top-level VM state.
func (v *VM) State() State { return v.state }

// CurrentContext returns the topmost invocation frame, or nil if the
// invocation stack is empty.
func (v *VM) CurrentContext() *Context {
	if len(v.invStack) == 0 {
		return nil
	}
	return v.invStack[len(v.invStack)-1]
}

// ResultStack exposes the evaluation stack left behind when the entry
// context returned, readable after HALT.
func (v *VM) ResultStack() *Stack {
	if v.halted != nil {
		return v.halted.evalStack
	}
	if len(v.invStack) == 0 {
		return nil
	}
	return v.invStack[0].evalStack
}

// LoadScript pushes a fresh execution context for script onto the
// invocation stack and transitions the VM into StateNone (ready to Run).
func (v *VM) LoadScript(script []byte, returnCount int) (*Context, error) {
	if len(script) > v.limits.MaxScriptLength {
		return nil, ErrScriptTooLong
	}
	if len(v.invStack) >= v.limits.MaxInvocationStackDepth {
		return nil, ErrInvocationDepth
	}
	ctx := newContext(script, v.rc, returnCount)
	v.invStack = append(v.invStack, ctx)
	return ctx, nil
}

// popContext pops the current context off the invocation stack, releasing
// its slot banks' stack references.
func (v *VM) popContext() *Context {
	ctx := v.invStack[len(v.invStack)-1]
	v.invStack = v.invStack[:len(v.invStack)-1]
	releaseSlots := func(s *slots) {
		if s == nil {
			return
		}
		for _, it := range s.items {
			v.rc.RemoveStackRef(it)
		}
	}
	releaseSlots(ctx.args)
	releaseSlots(ctx.locals)
	releaseSlots(ctx.statics)
	return ctx
}

// Run executes until HALT, FAULT, or BREAK, the interpreter's public
// contract. Each step reads one opcode byte plus its operand and dispatches
// through the jump table.
func (v *VM) Run() State {
	v.state = StateRunning
	for v.state == StateRunning {
		if err := v.step(); err != nil {
			v.fault(err)
			break
		}
		if len(v.invStack) == 0 {
			v.state = StateHalt
		}
	}
	return v.state
}

func (v *VM) fault(err error) {
	v.state = StateFault
	v.UncaughtFault = err
	if fe, ok := err.(*FaultError); ok {
		v.Exception = fe.Exception
	}
}

// step decodes and executes a single instruction in the current context.
func (v *VM) step() error {
	if v.rc.Size() > v.limits.MaxStackSize {
		return ErrStackSize
	}
	ctx := v.CurrentContext()
	if ctx == nil {
		return nil
	}
	if ctx.IP < 0 || ctx.IP > len(ctx.Script) {
		return ErrScriptOutOfBounds
	}
	// Falling off the end of a script is an implicit RET, matching the
	// reference VM's instruction fetch; verification scripts end on their
	// final SYSCALL with no explicit RET byte.
	op := RET
	if ctx.IP < len(ctx.Script) {
		op = Opcode(ctx.Script[ctx.IP])
	}
	start := ctx.IP
	ctx.IP++

	if v.PreStep != nil {
		if err := v.PreStep(v, op); err != nil {
			return err
		}
	}

	err := v.dispatch(ctx, op)
	if err != nil {
		if unwound := v.unwind(ctx, err); unwound {
			return nil
		}
		return err
	}
	_ = start
	return nil
}

// unwind attempts to route a THROW/opcode-error into the nearest matching
// exception frame in ctx, executing finally blocks LIFO. It returns true if
// the exception was caught (execution continues), false if it must
// propagate and fault the VM.
func (v *VM) unwind(ctx *Context, cause error) bool {
	var exc Item
	if fe, ok := cause.(*FaultError); ok && fe.Exception != nil {
		exc = fe.Exception
	} else {
		exc = ByteString(cause.Error())
	}
	for len(ctx.tryStack) > 0 {
		frame := &ctx.tryStack[len(ctx.tryStack)-1]
		switch frame.state {
		case exTry:
			if frame.catchOffset >= 0 {
				frame.state = exCatch
				ctx.evalStack.Push(exc)
				ctx.IP = frame.catchOffset
				v.Exception = exc
				return true
			}
			if frame.finallyOffset >= 0 {
				frame.state = exFinally
				ctx.IP = frame.finallyOffset
				v.Exception = exc
				// Remember to re-raise after the finally block via ENDFINALLY.
				ctx.tryStack[len(ctx.tryStack)-1].state = exFinally
				return true
			}
			ctx.tryStack = ctx.tryStack[:len(ctx.tryStack)-1]
		case exCatch:
			if frame.finallyOffset >= 0 {
				frame.state = exFinally
				ctx.IP = frame.finallyOffset
				return true
			}
			ctx.tryStack = ctx.tryStack[:len(ctx.tryStack)-1]
		default:
			ctx.tryStack = ctx.tryStack[:len(ctx.tryStack)-1]
		}
	}
	// No handler in this context: the exception propagates across
	// invocation-stack frames, faulting the VM if nothing catches it.
	if len(v.invStack) > 1 {
		v.popContext()
		parent := v.CurrentContext()
		return v.unwind(parent, &FaultError{Cause: ErrThrown, Exception: exc})
	}
	return false
}

// readOperand reads a fixed-width operand, advancing ctx.IP past it.
func (v *VM) readOperand(ctx *Context, n int) ([]byte, error) {
	if ctx.IP+n > len(ctx.Script) {
		return nil, ErrScriptOutOfBounds
	}
	b := ctx.Script[ctx.IP : ctx.IP+n]
	ctx.IP += n
	return b, nil
}

func (v *VM) readI8(ctx *Context) (int8, error) {
	b, err := v.readOperand(ctx, 1)
	if err != nil {
		return 0, err
	}
	return int8(b[0]), nil
}

func (v *VM) readI32(ctx *Context) (int32, error) {
	b, err := v.readOperand(ctx, 4)
	if err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(b)), nil
}

func (v *VM) readU8(ctx *Context) (uint8, error) {
	b, err := v.readOperand(ctx, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (v *VM) readU16(ctx *Context) (uint16, error) {
	b, err := v.readOperand(ctx, 2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (v *VM) checkItemSize(i Item) error {
	switch it := i.(type) {
	case ByteString:
		if len(it) > v.limits.MaxItemSize {
			return ErrItemTooLarge
		}
	case *Buffer:
		if len(it.Data) > v.limits.MaxItemSize {
			return ErrItemTooLarge
		}
	}
	return nil
}

func (v *VM) push(ctx *Context, i Item) error {
	if err := v.checkItemSize(i); err != nil {
		return err
	}
	ctx.evalStack.Push(i)
	return nil
}

func intToBig(b []byte) *big.Int {
	// Two's-complement little-endian, the NeoVM PUSHINT encoding.
	n := len(b)
	if n == 0 {
		return big.NewInt(0)
	}
	be := make([]byte, n)
	for i, c := range b {
		be[n-1-i] = c
	}
	v := new(big.Int).SetBytes(be)
	if be[0]&0x80 != 0 {
		mod := new(big.Int).Lsh(big.NewInt(1), uint(n*8))
		v.Sub(v, mod)
	}
	return v
}

// fmtOpErr annotates a dispatch error with the opcode that produced it.
func fmtOpErr(op Opcode, err error) error {
	return fmt.Errorf("vm: %s: %w", op, err)
}
