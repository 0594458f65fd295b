package engine

import (
	"errors"
	"fmt"

	"github.com/neonium/neond/pkg/chain"
	"github.com/neonium/neond/pkg/store"
	"github.com/neonium/neond/pkg/util"
	"github.com/neonium/neond/pkg/vm"
)

// ScriptContainer is the transaction or block a script runs on behalf of,
// kept as a narrow interface (not a concrete chain.* type) so
// pkg/engine never needs pkg/chain's full surface, only what CheckWitness
// and the notification log need.
type ScriptContainer interface {
	Hash() util.UInt256
	GetSigners() []chain.Signer
}

// PolicyReader supplies the live fee-factor/storage-price parameters a
// native PolicyContract maintains; pkg/engine only reads through this
// interface so it never imports pkg/native (which itself depends on
// pkg/engine to run), per the chain/engine/native dependency order.
type PolicyReader interface {
	ExecFeeFactor() int64
	StoragePrice() int64
}

// defaultPolicy is used when no PolicyReader is wired (e.g. the
// Verification trigger, unit tests); values match PolicyContract's genesis
// defaults.
type defaultPolicy struct{}

func (defaultPolicy) ExecFeeFactor() int64 { return 30 }
func (defaultPolicy) StoragePrice() int64  { return 100000 }

// ContractResolver looks up a deployed contract's script and declared
// CallFlags for System.Contract.Call, satisfied by
// pkg/native.ContractManagement at wiring time.
type ContractResolver interface {
	ResolveContract(hash util.UInt160) (script []byte, manifestFlags CallFlags, found bool)
}

// ContractIDResolver maps an executing script hash to the contract id that
// owns its storage namespace, consulted by the System.Storage interops.
// Satisfied by pkg/native.ContractManagement at wiring time (native
// contracts answer from the registry, deployed contracts from the
// ContractHash index).
type ContractIDResolver interface {
	ContractID(hash util.UInt160) (int32, bool)
}

// Notification is a single System.Runtime.Notify event, captured with a
// deep-cloned State so later mutation of the emitting contract's stack items
// can't retroactively change a already-recorded notification.
type Notification struct {
	ScriptHash util.UInt160
	EventName  string
	State      *vm.Array
}

// LogEntry is a System.Runtime.Log message.
type LogEntry struct {
	ScriptHash util.UInt160
	Message    string
}

// ErrGasLimitExceeded is FAULT when metering would push gas_consumed past
// gas_limit.
var ErrGasLimitExceeded = errors.New("engine: gas limit exceeded")

// ApplicationEngine is the gas-metered, interop-dispatching wrapper around
// pkg/vm. It owns the single store.Cache all
// contract storage reads/writes flow through for the run, and accumulates
// the notification/log side-channel the receipt is built from.
type ApplicationEngine struct {
	VM        *vm.VM
	Trigger   Trigger
	Container ScriptContainer

	GasLimit    int64
	GasConsumed int64

	Cache    *store.Cache
	Policy   PolicyReader
	Resolver ContractResolver
	// IDs resolves the current script's storage-owning contract id for the
	// System.Storage interops; nil makes Storage.GetContext fail (an
	// ad-hoc entry script owns no storage namespace).
	IDs ContractIDResolver

	// EntryScriptHash is the bottom-of-invocation-stack script, used by the
	// CalledByEntry witness scope.
	EntryScriptHash util.UInt160

	Notifications []Notification
	Logs          []LogEntry

	limits vm.Limits
}

// New creates an ApplicationEngine ready to load an entry script.
// policy/resolver may be nil; nil policy falls back to defaultPolicy{}, nil
// resolver makes System.Contract.Call always fail with ErrUnknownContract.
func New(trigger Trigger, container ScriptContainer, cache *store.Cache, gasLimit int64, policy PolicyReader, resolver ContractResolver) *ApplicationEngine {
	if policy == nil {
		policy = defaultPolicy{}
	}
	limits := vm.DefaultLimits()
	e := &ApplicationEngine{
		Trigger:  trigger,
		Container: container,
		GasLimit: gasLimit,
		Cache:    cache,
		Policy:   policy,
		Resolver: resolver,
		limits:   limits,
	}
	e.VM = vm.New(limits)
	e.VM.PreStep = e.meterGas
	e.VM.Syscall = e.dispatchSyscall
	return e
}

// meterGas is the vm.StepHook: it prices each opcode at GasCost(op) *
// ExecFeeFactor and FAULTs the VM before the opcode's side effects run if
// that would exceed GasLimit: gas is charged before the opcode runs.
func (e *ApplicationEngine) meterGas(v *vm.VM, op vm.Opcode) error {
	price := vm.GasCost(op) * e.Policy.ExecFeeFactor()
	if e.GasLimit >= 0 && e.GasConsumed+price > e.GasLimit {
		return ErrGasLimitExceeded
	}
	e.GasConsumed += price
	return nil
}

// AddGas charges a fixed amount outside the per-opcode metering loop (used
// by interop handlers whose price depends on their arguments, e.g.
// Storage.Put's per-byte cost).
func (e *ApplicationEngine) AddGas(amount int64) error {
	if e.GasLimit >= 0 && e.GasConsumed+amount > e.GasLimit {
		return ErrGasLimitExceeded
	}
	e.GasConsumed += amount
	return nil
}

// dispatchSyscall is the vm.SyscallHandler: it resolves the interop
// descriptor, enforces CallFlags, charges FixedPrice at the same
// fee-factor multiplier the opcode path uses, and invokes Handler.
func (e *ApplicationEngine) dispatchSyscall(v *vm.VM, nameHash uint32) error {
	d, ok := LookupInterop(nameHash)
	if !ok {
		return fmt.Errorf("%w: %08x", ErrUnknownInterop, nameHash)
	}
	ctx := v.CurrentContext()
	if ctx != nil && !CallFlags(ctx.CallFlags).Has(d.RequiredFlags) {
		return ErrNoPermission
	}
	if err := e.AddGas(d.FixedPrice * e.Policy.ExecFeeFactor()); err != nil {
		return err
	}
	return d.Handler(e)
}

// LoadScript pushes script as a new invocation frame carrying scriptHash,
// callingScriptHash, and flags. The very first LoadScript call also
// establishes EntryScriptHash.
func (e *ApplicationEngine) LoadScript(script []byte, scriptHash, callingScriptHash util.UInt160, flags CallFlags, returnCount int) (*vm.Context, error) {
	first := e.VM.CurrentContext() == nil
	ctx, err := e.VM.LoadScript(script, returnCount)
	if err != nil {
		return nil, err
	}
	ctx.ScriptHash = scriptHash.Bytes()
	ctx.CallingScriptHash = callingScriptHash.Bytes()
	ctx.CallFlags = uint32(flags)
	if first {
		e.EntryScriptHash = scriptHash
	}
	return ctx, nil
}

// Execute runs the loaded script to completion, returning the final VM
// state (HALT/FAULT).
func (e *ApplicationEngine) Execute() vm.State {
	return e.VM.Run()
}

// CurrentScriptHash returns the executing context's script hash, or the
// zero hash if nothing is loaded.
func (e *ApplicationEngine) CurrentScriptHash() util.UInt160 {
	ctx := e.VM.CurrentContext()
	if ctx == nil || len(ctx.ScriptHash) == 0 {
		return util.UInt160{}
	}
	h, _ := util.Uint160FromBytes(ctx.ScriptHash)
	return h
}

// CheckWitness reports whether hash has authorized the current execution,
// for this call: hash must appear in the container's Signers with a scope
// that covers the currently executing script. This does not re-verify a
// signature (that happened once, at the Verification trigger, before
// Application execution began) — it only checks scope membership.
func (e *ApplicationEngine) CheckWitness(hash util.UInt160) bool {
	if e.Container == nil {
		return false
	}
	current := e.CurrentScriptHash()
	for _, s := range e.Container.GetSigners() {
		if s.Account != hash {
			continue
		}
		switch {
		case s.Scopes&chain.ScopeGlobal != 0:
			return true
		case s.Scopes&chain.ScopeCalledByEntry != 0 && current == e.EntryScriptHash:
			return true
		case s.Scopes&chain.ScopeCustomContracts != 0:
			for _, c := range s.AllowedContracts {
				if c == current {
					return true
				}
			}
		}
		// ScopeCustomGroups and ScopeWitnessRules require evaluating a
		// compiled condition tree against the live call stack; no example
		// in the corpus implements a condition-tree evaluator, so these two
		// scopes are left unsupported here (documented as an Open Question).
	}
	return false
}

// Notify records a System.Runtime.Notify event, deep-cloning state so later
// in-place mutation of the emitting contract's own stack items can't alter
// an already-recorded notification.
func (e *ApplicationEngine) Notify(hash util.UInt160, eventName string, state *vm.Array) error {
	clone, err := deepCloneArray(state, make(map[vm.Item]bool))
	if err != nil {
		return err
	}
	e.Notifications = append(e.Notifications, Notification{ScriptHash: hash, EventName: eventName, State: clone})
	return nil
}

// Log records a System.Runtime.Log message.
func (e *ApplicationEngine) Log(hash util.UInt160, message string) {
	e.Logs = append(e.Logs, LogEntry{ScriptHash: hash, Message: message})
}

// CallContract implements System.Contract.Call: it resolves hash through
// Resolver, checks the target's declared flags against the caller's own
// (a callee can never gain more than the caller grants it), and loads the
// target script as a new frame.
func (e *ApplicationEngine) CallContract(hash util.UInt160, requested CallFlags, returnCount int) error {
	if e.Resolver == nil {
		return ErrUnknownContract
	}
	script, manifestFlags, found := e.Resolver.ResolveContract(hash)
	if !found {
		return ErrUnknownContract
	}
	caller := e.VM.CurrentContext()
	var callerFlags CallFlags = FlagAll
	if caller != nil {
		callerFlags = CallFlags(caller.CallFlags)
	}
	effective := requested & manifestFlags & callerFlags
	calling := e.CurrentScriptHash()
	_, err := e.LoadScript(script, hash, calling, effective, returnCount)
	return err
}

// ErrUnknownContract is FAULT when System.Contract.Call targets a hash with
// no deployed contract.
var ErrUnknownContract = errors.New("engine: unknown contract")
