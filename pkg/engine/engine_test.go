package engine

import (
	"errors"
	"testing"

	"github.com/neonium/neond/pkg/chain"
	"github.com/neonium/neond/pkg/store"
	"github.com/neonium/neond/pkg/util"
	"github.com/neonium/neond/pkg/vm"
)

// signerContainer satisfies ScriptContainer with a configurable signer
// list, the same minimal-stub shape pkg/native's fakeContainer uses.
type signerContainer struct {
	signers []chain.Signer
}

func (signerContainer) Hash() util.UInt256            { return util.UInt256{} }
func (c signerContainer) GetSigners() []chain.Signer { return c.signers }

func newCache() *store.Cache {
	return store.NewCache(store.NewMemStore().Snapshot())
}

func syscallScript(name string) []byte {
	h := util.Sha256([]byte(name))
	return []byte{byte(vm.SYSCALL), h[0], h[1], h[2], h[3], byte(vm.RET)}
}

func TestGasMeteringMatchesOpcodeTable(t *testing.T) {
	e := New(TriggerApplication, signerContainer{}, newCache(), 1<<30, nil, nil)
	script := []byte{byte(vm.PUSH2), byte(vm.PUSH3), byte(vm.ADD), byte(vm.RET)}
	if _, err := e.LoadScript(script, util.UInt160{}, util.UInt160{}, FlagAll, -1); err != nil {
		t.Fatalf("load: %v", err)
	}
	if state := e.Execute(); state != vm.StateHalt {
		t.Fatalf("expected HALT, got %s", state)
	}
	want := (vm.GasCost(vm.PUSH2) + vm.GasCost(vm.PUSH3) + vm.GasCost(vm.ADD) + vm.GasCost(vm.RET)) * defaultPolicy{}.ExecFeeFactor()
	if e.GasConsumed != want {
		t.Fatalf("gas_consumed = %d, want %d", e.GasConsumed, want)
	}
}

func TestGasLimitFaultsBeforeOpcodeRuns(t *testing.T) {
	e := New(TriggerApplication, signerContainer{}, newCache(), 0, nil, nil)
	script := []byte{byte(vm.PUSH1), byte(vm.RET)}
	if _, err := e.LoadScript(script, util.UInt160{}, util.UInt160{}, FlagAll, -1); err != nil {
		t.Fatalf("load: %v", err)
	}
	if state := e.Execute(); state != vm.StateFault {
		t.Fatalf("expected FAULT, got %s", state)
	}
	if e.GasConsumed != 0 {
		t.Fatalf("gas must not be charged for an opcode that never ran, got %d", e.GasConsumed)
	}
}

func TestSyscallWithoutRequiredFlagsFaults(t *testing.T) {
	e := New(TriggerApplication, signerContainer{}, newCache(), 1<<30, nil, nil)
	// System.Runtime.Notify requires FlagAllowNotify; load without it.
	if _, err := e.LoadScript(syscallScript("System.Runtime.Notify"), util.UInt160{}, util.UInt160{}, FlagReadStates, -1); err != nil {
		t.Fatalf("load: %v", err)
	}
	if state := e.Execute(); state != vm.StateFault {
		t.Fatalf("expected FAULT NoPermission, got %s", state)
	}
}

func TestUnknownSyscallFaults(t *testing.T) {
	e := New(TriggerApplication, signerContainer{}, newCache(), 1<<30, nil, nil)
	if _, err := e.LoadScript(syscallScript("System.No.Such.Interop"), util.UInt160{}, util.UInt160{}, FlagAll, -1); err != nil {
		t.Fatalf("load: %v", err)
	}
	if state := e.Execute(); state != vm.StateFault {
		t.Fatalf("expected FAULT for unknown interop, got %s", state)
	}
}

func TestNotifyDeepClonesAndCoercesBuffers(t *testing.T) {
	e := New(TriggerApplication, signerContainer{}, newCache(), -1, nil, nil)
	buf := vm.NewBuffer(3)
	copy(buf.Data, []byte{1, 2, 3})
	inner := vm.NewArray([]vm.Item{buf})
	state := vm.NewArray([]vm.Item{inner, vm.NewIntegerInt64(7)})

	if err := e.Notify(util.UInt160{0xAA}, "Transfer", state); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	// Mutating the original buffer must not affect the recorded state.
	buf.Data[0] = 0xFF

	if len(e.Notifications) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(e.Notifications))
	}
	rec := e.Notifications[0]
	if rec.EventName != "Transfer" {
		t.Fatalf("event name = %q", rec.EventName)
	}
	recInner, ok := rec.State.Items[0].(*vm.Array)
	if !ok {
		t.Fatalf("expected cloned inner array, got %T", rec.State.Items[0])
	}
	bs, ok := recInner.Items[0].(vm.ByteString)
	if !ok {
		t.Fatalf("expected Buffer coerced to ByteString, got %T", recInner.Items[0])
	}
	if bs[0] != 1 {
		t.Fatal("recorded state mutated through the original buffer alias")
	}
}

func TestNotifyRejectsCyclicState(t *testing.T) {
	e := New(TriggerApplication, signerContainer{}, newCache(), -1, nil, nil)
	cyclic := vm.NewArray([]vm.Item{vm.Bool(true)})
	cyclic.Items = append(cyclic.Items, cyclic)
	err := e.Notify(util.UInt160{}, "Bad", cyclic)
	if !errors.Is(err, ErrInvalidNotification) {
		t.Fatalf("expected ErrInvalidNotification, got %v", err)
	}
	if len(e.Notifications) != 0 {
		t.Fatal("cyclic notification must not be recorded")
	}
}

func TestCheckWitnessScopes(t *testing.T) {
	account := util.UInt160{0x01}
	entryHash := util.UInt160{0xE0}
	otherHash := util.UInt160{0xE1}

	load := func(e *ApplicationEngine) {
		if _, err := e.LoadScript([]byte{byte(vm.RET)}, entryHash, util.UInt160{}, FlagAll, -1); err != nil {
			t.Fatalf("load: %v", err)
		}
	}

	global := New(TriggerApplication, signerContainer{signers: []chain.Signer{{Account: account, Scopes: chain.ScopeGlobal}}}, newCache(), -1, nil, nil)
	load(global)
	if !global.CheckWitness(account) {
		t.Fatal("Global scope must witness any context")
	}

	entry := New(TriggerApplication, signerContainer{signers: []chain.Signer{{Account: account, Scopes: chain.ScopeCalledByEntry}}}, newCache(), -1, nil, nil)
	load(entry)
	if !entry.CheckWitness(account) {
		t.Fatal("CalledByEntry must witness the entry script")
	}

	custom := New(TriggerApplication, signerContainer{signers: []chain.Signer{{
		Account: account, Scopes: chain.ScopeCustomContracts, AllowedContracts: []util.UInt160{otherHash},
	}}}, newCache(), -1, nil, nil)
	load(custom)
	if custom.CheckWitness(account) {
		t.Fatal("CustomContracts must not witness a script outside its allow list")
	}

	none := New(TriggerApplication, signerContainer{signers: []chain.Signer{{Account: account, Scopes: chain.ScopeNone}}}, newCache(), -1, nil, nil)
	load(none)
	if none.CheckWitness(account) {
		t.Fatal("None scope must never witness")
	}
	if none.CheckWitness(util.UInt160{0xFF}) {
		t.Fatal("an account absent from the signer list must never witness")
	}
}

func sysOp(name string) []byte {
	h := util.Sha256([]byte(name))
	return []byte{byte(vm.SYSCALL), h[0], h[1], h[2], h[3]}
}

func pushData1(b []byte) []byte {
	return append([]byte{byte(vm.PUSHDATA1), byte(len(b))}, b...)
}

func TestSyscallFixedPriceUsesExecFeeFactor(t *testing.T) {
	e := New(TriggerApplication, signerContainer{}, newCache(), 1<<30, nil, nil)
	script := append(sysOp("System.Runtime.GetTrigger"), byte(vm.RET))
	if _, err := e.LoadScript(script, util.UInt160{}, util.UInt160{}, FlagAll, -1); err != nil {
		t.Fatalf("load: %v", err)
	}
	if state := e.Execute(); state != vm.StateHalt {
		t.Fatalf("expected HALT, got %s", state)
	}
	d, ok := LookupInterop(interopNameHash("System.Runtime.GetTrigger"))
	if !ok {
		t.Fatal("GetTrigger interop not registered")
	}
	factor := defaultPolicy{}.ExecFeeFactor()
	want := (vm.GasCost(vm.SYSCALL)+vm.GasCost(vm.RET))*factor + d.FixedPrice*factor
	if e.GasConsumed != want {
		t.Fatalf("gas_consumed = %d, want %d (fixed price must be multiplied by the fee factor)", e.GasConsumed, want)
	}
}

// stubIDs satisfies ContractIDResolver with a single fixed contract id.
type stubIDs struct{ id int32 }

func (s stubIDs) ContractID(util.UInt160) (int32, bool) { return s.id, true }

func TestStoragePutGetRoundTripChargesPerByte(t *testing.T) {
	e := New(TriggerApplication, signerContainer{}, newCache(), 1<<31, nil, nil)
	e.IDs = stubIDs{id: 7}

	key := []byte("key")
	val := []byte("v1")
	var script []byte
	script = append(script, sysOp("System.Storage.GetContext")...)
	script = append(script, pushData1(key)...)
	script = append(script, pushData1(val)...)
	script = append(script, sysOp("System.Storage.Put")...)
	script = append(script, sysOp("System.Storage.GetContext")...)
	script = append(script, pushData1(key)...)
	script = append(script, sysOp("System.Storage.Get")...)
	script = append(script, byte(vm.RET))

	if _, err := e.LoadScript(script, util.UInt160{0x07}, util.UInt160{}, FlagAll, -1); err != nil {
		t.Fatalf("load: %v", err)
	}
	if state := e.Execute(); state != vm.StateHalt {
		t.Fatalf("expected HALT, got %s (fault=%v)", state, e.VM.UncaughtFault)
	}
	top, err := e.VM.ResultStack().Peek(0)
	if err != nil {
		t.Fatalf("peek: %v", err)
	}
	got, ok := top.(vm.ByteString)
	if !ok || string(got) != "v1" {
		t.Fatalf("Get returned %v (%T), want %q", top, top, "v1")
	}

	factor := defaultPolicy{}.ExecFeeFactor()
	getCtx, _ := LookupInterop(interopNameHash("System.Storage.GetContext"))
	put, _ := LookupInterop(interopNameHash("System.Storage.Put"))
	get, _ := LookupInterop(interopNameHash("System.Storage.Get"))
	opBase := 4*vm.GasCost(vm.SYSCALL) + 3*vm.GasCost(vm.PUSHDATA1) + vm.GasCost(vm.RET)
	fixedBase := 2*getCtx.FixedPrice + put.FixedPrice + get.FixedPrice
	perByte := defaultPolicy{}.StoragePrice() * factor * int64(len(key)+len(val))
	want := (opBase+fixedBase)*factor + perByte
	if e.GasConsumed != want {
		t.Fatalf("gas_consumed = %d, want %d (missing per-byte storage charge?)", e.GasConsumed, want)
	}
}

func TestStoragePutThroughReadOnlyContextFaults(t *testing.T) {
	e := New(TriggerApplication, signerContainer{}, newCache(), 1<<31, nil, nil)
	e.IDs = stubIDs{id: 7}
	var script []byte
	script = append(script, sysOp("System.Storage.GetReadOnlyContext")...)
	script = append(script, pushData1([]byte("k"))...)
	script = append(script, pushData1([]byte("v"))...)
	script = append(script, sysOp("System.Storage.Put")...)
	script = append(script, byte(vm.RET))
	if _, err := e.LoadScript(script, util.UInt160{}, util.UInt160{}, FlagAll, -1); err != nil {
		t.Fatalf("load: %v", err)
	}
	if state := e.Execute(); state != vm.StateFault {
		t.Fatalf("expected FAULT writing through a read-only context, got %s", state)
	}
}

func TestStorageContextUnavailableToAdHocScript(t *testing.T) {
	// No ContractIDResolver wired: an ad-hoc entry script owns no storage.
	e := New(TriggerApplication, signerContainer{}, newCache(), 1<<31, nil, nil)
	script := append(sysOp("System.Storage.GetContext"), byte(vm.RET))
	if _, err := e.LoadScript(script, util.UInt160{}, util.UInt160{}, FlagAll, -1); err != nil {
		t.Fatalf("load: %v", err)
	}
	if state := e.Execute(); state != vm.StateFault {
		t.Fatalf("expected FAULT without a storage context, got %s", state)
	}
}
