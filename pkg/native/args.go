package native

import (
	"math/big"

	"github.com/neonium/neond/pkg/engine"
	"github.com/neonium/neond/pkg/util"
	"github.com/neonium/neond/pkg/vm"
)

// push is the common "write a result back onto the calling script's
// evaluation stack" tail every interop handler ends with.
func push(e *engine.ApplicationEngine, item vm.Item) error {
	e.VM.CurrentContext().Estack().Push(item)
	return nil
}

func popInteger(e *engine.ApplicationEngine) (*big.Int, error) {
	i, err := e.VM.CurrentContext().Estack().Pop()
	if err != nil {
		return nil, err
	}
	n, ok := i.(vm.Integer)
	if !ok {
		return nil, vm.ErrTypeMismatch
	}
	return n.Big(), nil
}

func popBytes(e *engine.ApplicationEngine) ([]byte, error) {
	i, err := e.VM.CurrentContext().Estack().Pop()
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

func popUInt160(e *engine.ApplicationEngine) (util.UInt160, error) {
	b, err := popBytes(e)
	if err != nil {
		return util.UInt160{}, err
	}
	return util.Uint160FromBytes(b)
}

func popString(e *engine.ApplicationEngine) (string, error) {
	b, err := popBytes(e)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func popBool(e *engine.ApplicationEngine) (bool, error) {
	i, err := e.VM.CurrentContext().Estack().Pop()
	if err != nil {
		return false, err
	}
	return i.Bool(), nil
}

// popByteArrays pops an Array of ByteString/Buffer items, used by interops
// that take a node/pubkey list argument (e.g. RoleManagement.Designate).
func popByteArrays(e *engine.ApplicationEngine) ([][]byte, error) {
	i, err := e.VM.CurrentContext().Estack().Pop()
	if err != nil {
		return nil, err
	}
	arr, ok := i.(*vm.Array)
	if !ok {
		return nil, vm.ErrTypeMismatch
	}
	out := make([][]byte, len(arr.Items))
	for idx, it := range arr.Items {
		switch v := it.(type) {
		case vm.ByteString:
			out[idx] = []byte(v)
		case *vm.Buffer:
			out[idx] = v.Data
		default:
			return nil, vm.ErrTypeMismatch
		}
	}
	return out, nil
}
