package engine

import (
	"errors"

	"github.com/neonium/neond/pkg/store"
	"github.com/neonium/neond/pkg/vm"
)

// StorageContext names the contract-id namespace a System.Storage interop
// operates on. Scripts obtain one through System.Storage.GetContext (or
// the read-only variant) and pass it back as the first argument of
// Get/Put/Delete/Find, boxed in an InteropInterface stack item; a script
// can therefore only ever reach the namespace its own contract id owns.
type StorageContext struct {
	ID       int32
	ReadOnly bool
}

// ErrNoStorageContext is raised when a script with no deployed (or native)
// contract behind it asks for a storage context: ad-hoc entry scripts own
// no storage namespace.
var ErrNoStorageContext = errors.New("engine: executing script owns no storage context")

// ErrReadOnlyStorageContext is raised when Put/Delete is handed a context
// obtained through GetReadOnlyContext.
var ErrReadOnlyStorageContext = errors.New("engine: write through read-only storage context")

// This file wires the System.Storage.* interops deployed contracts persist
// state through. Reads go straight to the engine's cache; writes charge
// storage_price * exec_fee_factor per byte written, on top of the
// syscall's fixed price, before they land in the cache.

func init() {
	RegisterInterop(InteropDescriptor{
		Name: "System.Storage.GetContext", FixedPrice: 1 << 4, RequiredFlags: FlagReadStates,
		Handler: func(e *ApplicationEngine) error {
			return pushStorageContext(e, false)
		},
	})
	RegisterInterop(InteropDescriptor{
		Name: "System.Storage.GetReadOnlyContext", FixedPrice: 1 << 4, RequiredFlags: FlagReadStates,
		Handler: func(e *ApplicationEngine) error {
			return pushStorageContext(e, true)
		},
	})
	RegisterInterop(InteropDescriptor{
		Name: "System.Storage.Get", FixedPrice: 1 << 15, RequiredFlags: FlagReadStates,
		Handler: func(e *ApplicationEngine) error {
			key, err := popStackBytes(e)
			if err != nil {
				return err
			}
			sc, err := popStorageContext(e)
			if err != nil {
				return err
			}
			v, err := e.Cache.Get(store.StorageKey(sc.ID, key))
			if err != nil {
				return pushStack(e, vm.Null{})
			}
			return pushStack(e, vm.ByteString(append([]byte(nil), v...)))
		},
	})
	RegisterInterop(InteropDescriptor{
		Name: "System.Storage.Put", FixedPrice: 1 << 15, RequiredFlags: FlagWriteStates,
		Handler: func(e *ApplicationEngine) error {
			value, err := popStackBytes(e)
			if err != nil {
				return err
			}
			key, err := popStackBytes(e)
			if err != nil {
				return err
			}
			sc, err := popStorageContext(e)
			if err != nil {
				return err
			}
			if sc.ReadOnly {
				return ErrReadOnlyStorageContext
			}
			written := int64(len(key) + len(value))
			if err := e.AddGas(e.Policy.StoragePrice() * e.Policy.ExecFeeFactor() * written); err != nil {
				return err
			}
			e.Cache.Put(store.StorageKey(sc.ID, key), append([]byte(nil), value...))
			return nil
		},
	})
	RegisterInterop(InteropDescriptor{
		Name: "System.Storage.Delete", FixedPrice: 1 << 15, RequiredFlags: FlagWriteStates,
		Handler: func(e *ApplicationEngine) error {
			key, err := popStackBytes(e)
			if err != nil {
				return err
			}
			sc, err := popStorageContext(e)
			if err != nil {
				return err
			}
			if sc.ReadOnly {
				return ErrReadOnlyStorageContext
			}
			e.Cache.Delete(store.StorageKey(sc.ID, key))
			return nil
		},
	})
	RegisterInterop(InteropDescriptor{
		Name: "System.Storage.Find", FixedPrice: 1 << 15, RequiredFlags: FlagReadStates,
		Handler: func(e *ApplicationEngine) error {
			prefix, err := popStackBytes(e)
			if err != nil {
				return err
			}
			sc, err := popStorageContext(e)
			if err != nil {
				return err
			}
			full := store.StorageKey(sc.ID, prefix)
			nsLen := len(store.StoragePrefix(sc.ID))
			it := e.Cache.Seek(full, store.Forward)
			defer it.Close()
			// Matches are materialized as an array of (key, value) structs,
			// keys trimmed back to the contract's own subkey space. A lazy
			// iterator handle would need per-engine iterator lifetime
			// bookkeeping that nothing else here requires yet.
			results := vm.NewArray(nil)
			for it.Next() {
				key := append([]byte(nil), it.Key()[nsLen:]...)
				val := append([]byte(nil), it.Value()...)
				results.Items = append(results.Items, vm.NewStruct([]vm.Item{
					vm.ByteString(key), vm.ByteString(val),
				}))
			}
			return pushStack(e, results)
		},
	})
}

func pushStorageContext(e *ApplicationEngine, readOnly bool) error {
	if e.IDs == nil {
		return ErrNoStorageContext
	}
	id, ok := e.IDs.ContractID(e.CurrentScriptHash())
	if !ok {
		return ErrNoStorageContext
	}
	return pushStack(e, vm.InteropInterface{Value: StorageContext{ID: id, ReadOnly: readOnly}})
}

func popStorageContext(e *ApplicationEngine) (StorageContext, error) {
	it, err := popStackItem(e)
	if err != nil {
		return StorageContext{}, err
	}
	ii, ok := it.(vm.InteropInterface)
	if !ok {
		return StorageContext{}, vm.ErrTypeMismatch
	}
	sc, ok := ii.Value.(StorageContext)
	if !ok {
		return StorageContext{}, vm.ErrTypeMismatch
	}
	return sc, nil
}
