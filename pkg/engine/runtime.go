package engine

import (
	"github.com/neonium/neond/pkg/util"
	"github.com/neonium/neond/pkg/vm"
)

// This file wires the fixed set of System.* interops every script (witness
// verification scripts included) needs to call, as opposed to pkg/native's
// per-contract interops: CheckWitness/Notify/Log/GetTrigger read engine
// fields directly, and CheckSig/CheckMultisig are the verification-script
// primitives pkg/util.BuildMultiSigScript's CALLed SYSCALL expects to
// resolve. Registered from this package's init() — unlike native contracts,
// these have no contract object of their own to construct first, so there
// is nothing a constructor call would add over a plain package init().

func init() {
	RegisterInterop(InteropDescriptor{
		Name: "System.Runtime.CheckWitness", FixedPrice: 1 << 10, RequiredFlags: FlagNone,
		Handler: func(e *ApplicationEngine) error {
			b, err := popStackBytes(e)
			if err != nil {
				return err
			}
			if len(b) == util.UInt160Size {
				h, err := util.Uint160FromBytes(b)
				if err != nil {
					return err
				}
				return pushStack(e, vm.Bool(e.CheckWitness(h)))
			}
			// A compressed public key: check witness against its Hash160
			// account the way a single-sig verification script would.
			return pushStack(e, vm.Bool(e.CheckWitness(util.Hash160(b))))
		},
	})
	RegisterInterop(InteropDescriptor{
		Name: "System.Runtime.Notify", FixedPrice: 1 << 15, RequiredFlags: FlagAllowNotify,
		Handler: func(e *ApplicationEngine) error {
			state, err := popStackArray(e)
			if err != nil {
				return err
			}
			name, err := popStackString(e)
			if err != nil {
				return err
			}
			return e.Notify(e.CurrentScriptHash(), name, state)
		},
	})
	RegisterInterop(InteropDescriptor{
		Name: "System.Runtime.Log", FixedPrice: 1 << 15, RequiredFlags: FlagNone,
		Handler: func(e *ApplicationEngine) error {
			msg, err := popStackString(e)
			if err != nil {
				return err
			}
			e.Log(e.CurrentScriptHash(), msg)
			return nil
		},
	})
	RegisterInterop(InteropDescriptor{
		Name: "System.Runtime.GetTrigger", FixedPrice: 1 << 8, RequiredFlags: FlagNone,
		Handler: func(e *ApplicationEngine) error {
			return pushStack(e, vm.NewIntegerInt64(int64(e.Trigger)))
		},
	})
	RegisterInterop(InteropDescriptor{
		Name: "System.Runtime.GasLeft", FixedPrice: 1 << 4, RequiredFlags: FlagNone,
		Handler: func(e *ApplicationEngine) error {
			if e.GasLimit < 0 {
				return pushStack(e, vm.NewIntegerInt64(-1))
			}
			return pushStack(e, vm.NewIntegerInt64(e.GasLimit-e.GasConsumed))
		},
	})
	RegisterInterop(InteropDescriptor{
		Name: "System.Contract.Call", FixedPrice: 1 << 15, RequiredFlags: FlagAllowCall,
		Handler: func(e *ApplicationEngine) error {
			args, err := popStackArray(e)
			if err != nil {
				return err
			}
			flags, err := popStackInt(e)
			if err != nil {
				return err
			}
			method, err := popStackString(e)
			if err != nil {
				return err
			}
			_ = method // native/deployed dispatch resolves by hash+entry offset only in this scope
			hash, err := popStackUInt160(e)
			if err != nil {
				return err
			}
			for i := len(args.Items) - 1; i >= 0; i-- {
				if ctx := e.VM.CurrentContext(); ctx != nil {
					ctx.Estack().Push(args.Items[i])
				}
			}
			return e.CallContract(hash, CallFlags(flags), 1)
		},
	})
	RegisterInterop(InteropDescriptor{
		Name: "System.Crypto.CheckSig", FixedPrice: 1 << 15, RequiredFlags: FlagNone,
		Handler: func(e *ApplicationEngine) error {
			// Stack top-down at the SYSCALL: pubkey (pushed last, by the
			// verification script), then sig (pushed by the invocation
			// script before the verification script ran).
			pubKey, err := popStackBytes(e)
			if err != nil {
				return err
			}
			sig, err := popStackBytes(e)
			if err != nil {
				return err
			}
			msg := e.signData()
			ok, _ := util.VerifySignature(util.CurveSecp256r1, pubKey, msg, sig)
			return pushStack(e, vm.Bool(ok))
		},
	})
	RegisterInterop(InteropDescriptor{
		Name: "System.Crypto.CheckMultisig", FixedPrice: 1 << 17, RequiredFlags: FlagNone,
		Handler: func(e *ApplicationEngine) error {
			// The canonical m-of-n script (pkg/util.BuildMultiSigScript) lays
			// the stack out as individual pushes, not packed arrays: the
			// invocation script pushes m signatures in ascending key order,
			// the verification script then pushes m, the n sorted pubkeys,
			// and n. Popping therefore yields each group in reverse push
			// order; both are flipped back to ascending before the check.
			n, err := popStackInt(e)
			if err != nil {
				return err
			}
			if n <= 0 || n > 1024 {
				return vm.ErrTypeMismatch
			}
			pubKeys, err := popStackBytesN(e, int(n))
			if err != nil {
				return err
			}
			m, err := popStackInt(e)
			if err != nil {
				return err
			}
			if m <= 0 || m > n {
				return vm.ErrTypeMismatch
			}
			sigs, err := popStackBytesN(e, int(m))
			if err != nil {
				return err
			}
			msg := e.signData()
			ok := util.CheckMultiSig(util.CurveSecp256r1, pubKeys, msg, sigs, int(m))
			return pushStack(e, vm.Bool(ok))
		},
	})
}

// signData is the message a verification script's CheckSig/CheckMultisig
// authenticates against: the script container's hash. The reference node
// additionally domain-separates by network magic; that constant lives in
// ProtocolSettings (pkg/ledger), outside what pkg/engine can see, so this
// is documented as a simplification rather than a bit-exact reproduction.
func (e *ApplicationEngine) signData() []byte {
	if e.Container == nil {
		return nil
	}
	h := e.Container.Hash()
	return h.Bytes()
}

func pushStack(e *ApplicationEngine, item vm.Item) error {
	ctx := e.VM.CurrentContext()
	if ctx == nil {
		return ErrUnknownContract
	}
	ctx.Estack().Push(item)
	return nil
}

func popStackItem(e *ApplicationEngine) (vm.Item, error) {
	ctx := e.VM.CurrentContext()
	if ctx == nil {
		return nil, ErrUnknownContract
	}
	return ctx.Estack().Pop()
}

func popStackBytes(e *ApplicationEngine) ([]byte, error) {
	i, err := popStackItem(e)
	if err != nil {
		return nil, err
	}
	switch v := i.(type) {
	case vm.ByteString:
		return []byte(v), nil
	case *vm.Buffer:
		return v.Data, nil
	default:
		return nil, vm.ErrTypeMismatch
	}
}

func popStackString(e *ApplicationEngine) (string, error) {
	b, err := popStackBytes(e)
	return string(b), err
}

func popStackUInt160(e *ApplicationEngine) (util.UInt160, error) {
	b, err := popStackBytes(e)
	if err != nil {
		return util.UInt160{}, err
	}
	return util.Uint160FromBytes(b)
}

func popStackInt(e *ApplicationEngine) (int64, error) {
	i, err := popStackItem(e)
	if err != nil {
		return 0, err
	}
	n, ok := i.(vm.Integer)
	if !ok {
		return 0, vm.ErrTypeMismatch
	}
	return n.Big().Int64(), nil
}

func popStackArray(e *ApplicationEngine) (*vm.Array, error) {
	i, err := popStackItem(e)
	if err != nil {
		return nil, err
	}
	arr, ok := i.(*vm.Array)
	if !ok {
		return nil, vm.ErrTypeMismatch
	}
	return arr, nil
}

// popStackBytesN pops n individually-pushed byte strings, returning them in
// push order (bottom-most first).
func popStackBytesN(e *ApplicationEngine, n int) ([][]byte, error) {
	out := make([][]byte, n)
	for i := n - 1; i >= 0; i-- {
		b, err := popStackBytes(e)
		if err != nil {
			return nil, err
		}
		out[i] = b
	}
	return out, nil
}
