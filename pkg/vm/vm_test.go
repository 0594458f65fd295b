package vm

import "testing"

// TestAddHaltsWithFive: PUSH2, PUSH3, ADD, RET over an
// empty initial stack must HALT with result stack [Integer(5)].
func TestAddHaltsWithFive(t *testing.T) {
	script := []byte{byte(PUSH2), byte(PUSH3), byte(ADD), byte(RET)}
	m := New(DefaultLimits())
	if _, err := m.LoadScript(script, -1); err != nil {
		t.Fatalf("load script: %v", err)
	}
	state := m.Run()
	if state != StateHalt {
		t.Fatalf("expected HALT, got %s (fault=%v)", state, m.UncaughtFault)
	}
	res := m.ResultStack()
	if res.Len() != 1 {
		t.Fatalf("expected 1 result item, got %d", res.Len())
	}
	top, err := res.Peek(0)
	if err != nil {
		t.Fatalf("peek: %v", err)
	}
	n, ok := top.(Integer)
	if !ok {
		t.Fatalf("expected Integer, got %T", top)
	}
	if n.Big().Int64() != 5 {
		t.Fatalf("expected 5, got %s", n.Big().String())
	}
}

func TestDivideByZeroFaults(t *testing.T) {
	script := []byte{byte(PUSH1), byte(PUSH0), byte(DIV), byte(RET)}
	m := New(DefaultLimits())
	if _, err := m.LoadScript(script, -1); err != nil {
		t.Fatalf("load script: %v", err)
	}
	if state := m.Run(); state != StateFault {
		t.Fatalf("expected FAULT, got %s", state)
	}
}

func TestDupAliasesCompound(t *testing.T) {
	// NEWARRAY0, DUP, PUSH1, APPEND -> the original array on the stack
	// below must see the appended item too (reference aliasing).
	script := []byte{
		byte(NEWARRAY0),
		byte(DUP),
		byte(PUSH1),
		byte(APPEND),
		byte(RET),
	}
	m := New(DefaultLimits())
	if _, err := m.LoadScript(script, -1); err != nil {
		t.Fatalf("load script: %v", err)
	}
	if state := m.Run(); state != StateHalt {
		t.Fatalf("expected HALT, got %s (fault=%v)", state, m.UncaughtFault)
	}
	res := m.ResultStack()
	if res.Len() != 1 {
		t.Fatalf("expected 1 item left, got %d", res.Len())
	}
	arr, ok := res.items[0].(*Array)
	if !ok {
		t.Fatalf("expected *Array, got %T", res.items[0])
	}
	if len(arr.Items) != 1 {
		t.Fatalf("expected aliased append to be visible, got %d items", len(arr.Items))
	}
}

func TestTryCatchRecovers(t *testing.T) {
	// TRY with a catch handler around ABORT-equivalent THROW, landing on a
	// PUSH1 in the catch block.
	script := []byte{
		byte(TRY), 0x05, 0x00, // catch at offset 5 (the DROP below), no finally
		byte(PUSH0),
		byte(THROW),
		byte(DROP), // catch: drop the exception item
		byte(PUSH1),
		byte(RET),
	}
	m := New(DefaultLimits())
	if _, err := m.LoadScript(script, -1); err != nil {
		t.Fatalf("load script: %v", err)
	}
	state := m.Run()
	if state != StateHalt {
		t.Fatalf("expected HALT, got %s (fault=%v)", state, m.UncaughtFault)
	}
	res := m.ResultStack()
	if res.Len() != 1 {
		t.Fatalf("expected 1 result item, got %d", res.Len())
	}
}

func TestJmpIfTakesBranch(t *testing.T) {
	// PUSH1; JMPIF over PUSH2, landing on PUSH3.
	script := []byte{
		byte(PUSH1),
		byte(JMPIF), 0x03, // instrStart=1, target=4 (the PUSH3)
		byte(PUSH2),
		byte(PUSH3),
		byte(RET),
	}
	m := New(DefaultLimits())
	if _, err := m.LoadScript(script, -1); err != nil {
		t.Fatalf("load script: %v", err)
	}
	if state := m.Run(); state != StateHalt {
		t.Fatalf("expected HALT, got %s (fault=%v)", state, m.UncaughtFault)
	}
	res := m.ResultStack()
	if res.Len() != 1 {
		t.Fatalf("expected PUSH2 to be skipped, got %d items", res.Len())
	}
	if n := res.items[0].(Integer); n.Big().Int64() != 3 {
		t.Fatalf("expected 3, got %s", n.Big())
	}
}

func TestJmpIfFallsThroughOnFalse(t *testing.T) {
	script := []byte{
		byte(PUSH0),
		byte(JMPIF), 0x03,
		byte(PUSH2),
		byte(PUSH3),
		byte(RET),
	}
	m := New(DefaultLimits())
	if _, err := m.LoadScript(script, -1); err != nil {
		t.Fatalf("load script: %v", err)
	}
	if state := m.Run(); state != StateHalt {
		t.Fatalf("expected HALT, got %s (fault=%v)", state, m.UncaughtFault)
	}
	if m.ResultStack().Len() != 2 {
		t.Fatalf("expected both pushes on a false condition, got %d items", m.ResultStack().Len())
	}
}

func TestPackUnpackRoundTrip(t *testing.T) {
	// PACK 2 items into an array, UNPACK them back plus the count.
	script := []byte{
		byte(PUSH1),
		byte(PUSH2),
		byte(PUSH2), // count
		byte(PACK),
		byte(UNPACK),
		byte(RET),
	}
	m := New(DefaultLimits())
	if _, err := m.LoadScript(script, -1); err != nil {
		t.Fatalf("load script: %v", err)
	}
	if state := m.Run(); state != StateHalt {
		t.Fatalf("expected HALT, got %s (fault=%v)", state, m.UncaughtFault)
	}
	res := m.ResultStack()
	if res.Len() != 3 {
		t.Fatalf("expected 2 items + count, got %d", res.Len())
	}
	if count := res.items[2].(Integer); count.Big().Int64() != 2 {
		t.Fatalf("expected count 2 on top, got %s", count.Big())
	}
}

func TestSwapReordersTopTwo(t *testing.T) {
	script := []byte{byte(PUSH1), byte(PUSH2), byte(SWAP), byte(RET)}
	m := New(DefaultLimits())
	if _, err := m.LoadScript(script, -1); err != nil {
		t.Fatalf("load script: %v", err)
	}
	if state := m.Run(); state != StateHalt {
		t.Fatalf("expected HALT, got %s (fault=%v)", state, m.UncaughtFault)
	}
	res := m.ResultStack()
	if res.Len() != 2 {
		t.Fatalf("expected 2 items, got %d", res.Len())
	}
	bottom := res.items[0].(Integer)
	top := res.items[1].(Integer)
	if bottom.Big().Int64() != 2 || top.Big().Int64() != 1 {
		t.Fatalf("expected [2 1] after SWAP, got [%s %s]", bottom.Big(), top.Big())
	}
}

func TestStackSizeLimitFaults(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxStackSize = 3
	script := []byte{
		byte(PUSH1), byte(PUSH1), byte(PUSH1),
		byte(PUSH1), byte(PUSH1), byte(PUSH1),
		byte(RET),
	}
	m := New(limits)
	if _, err := m.LoadScript(script, -1); err != nil {
		t.Fatalf("load script: %v", err)
	}
	if state := m.Run(); state != StateFault {
		t.Fatalf("expected FAULT on stack-size breach, got %s", state)
	}
}

func TestInvocationDepthLimitFaults(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxInvocationStackDepth = 8
	// CALL back to its own instruction start: unbounded recursion that must
	// be stopped by the depth limit, not by running out of Go stack.
	script := []byte{byte(CALL), 0x00}
	m := New(limits)
	if _, err := m.LoadScript(script, -1); err != nil {
		t.Fatalf("load script: %v", err)
	}
	if state := m.Run(); state != StateFault {
		t.Fatalf("expected FAULT on invocation-depth breach, got %s", state)
	}
}

func TestImplicitReturnAtScriptEnd(t *testing.T) {
	// A script with no trailing RET byte halts cleanly; verification
	// scripts end on their final SYSCALL this way.
	script := []byte{byte(PUSH1), byte(PUSH2), byte(ADD)}
	m := New(DefaultLimits())
	if _, err := m.LoadScript(script, -1); err != nil {
		t.Fatalf("load script: %v", err)
	}
	if state := m.Run(); state != StateHalt {
		t.Fatalf("expected HALT at script end, got %s (fault=%v)", state, m.UncaughtFault)
	}
	if n := m.ResultStack().items[0].(Integer); n.Big().Int64() != 3 {
		t.Fatalf("expected 3, got %s", n.Big())
	}
}
