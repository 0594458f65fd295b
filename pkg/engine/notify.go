package engine

import (
	"errors"

	"github.com/neonium/neond/pkg/vm"
)

// ErrInvalidNotification is FAULT InvalidNotification: a Notify argument
// contains a reference cycle, which can't be captured as an independent,
// immutable notification record.
var ErrInvalidNotification = errors.New("engine: notification state contains a cycle")

// deepCloneArray recursively copies arr and everything it (transitively)
// contains, so a recorded Notification is immune to later in-place mutation
// of the emitting contract's own stack items. visiting tracks the items
// currently being cloned on the current path to detect cycles.
func deepCloneArray(arr *vm.Array, visiting map[vm.Item]bool) (*vm.Array, error) {
	if visiting[arr] {
		return nil, ErrInvalidNotification
	}
	visiting[arr] = true
	defer delete(visiting, arr)

	items := make([]vm.Item, len(arr.Items))
	for i, it := range arr.Items {
		cloned, err := deepCloneItem(it, visiting)
		if err != nil {
			return nil, err
		}
		items[i] = cloned
	}
	return vm.NewArray(items), nil
}

func deepCloneItem(it vm.Item, visiting map[vm.Item]bool) (vm.Item, error) {
	switch v := it.(type) {
	case *vm.Array:
		return deepCloneArray(v, visiting)
	case *vm.Struct:
		if visiting[v] {
			return nil, ErrInvalidNotification
		}
		visiting[v] = true
		items := make([]vm.Item, len(v.Items))
		for i, inner := range v.Items {
			cloned, err := deepCloneItem(inner, visiting)
			if err != nil {
				delete(visiting, v)
				return nil, err
			}
			items[i] = cloned
		}
		delete(visiting, v)
		return vm.NewStruct(items), nil
	case *vm.Map:
		if visiting[v] {
			return nil, ErrInvalidNotification
		}
		visiting[v] = true
		out := vm.NewMap()
		for _, k := range v.Keys() {
			val, _, _ := v.Get(k)
			clonedVal, err := deepCloneItem(val, visiting)
			if err != nil {
				delete(visiting, v)
				return nil, err
			}
			if err := out.Set(k, clonedVal); err != nil {
				delete(visiting, v)
				return nil, err
			}
		}
		delete(visiting, v)
		return out, nil
	case *vm.Buffer:
		// Buffers coerce to immutable ByteStrings in the recorded state.
		return vm.ByteString(append([]byte(nil), v.Data...)), nil
	default:
		// Null, Bool, Integer, ByteString, Pointer, InteropInterface are all
		// immutable value types; no clone needed.
		return it, nil
	}
}
