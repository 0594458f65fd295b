package native

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"math/big"

	"github.com/mr-tron/base58"

	"github.com/neonium/neond/pkg/engine"
	"github.com/neonium/neond/pkg/vm"
)

// StdLib is the StdLib native: pure helpers with no storage of
// their own — base58/base64 codecs, JSON serialize/deserialize, atoi/itoa,
// and byte-string comparison.
type StdLib struct {
	Base
}

// NewStdLib constructs and registers StdLib.
func NewStdLib() *StdLib {
	s := &StdLib{Base: newBase(IDStdLib, "StdLib")}
	Register(s)
	registerStdLibInterops(s)
	return s
}

func (s *StdLib) OnPersist(e *engine.ApplicationEngine) error   { return nil }
func (s *StdLib) PostPersist(e *engine.ApplicationEngine) error { return nil }

// itemToJSON converts a stack item into the plain Go value encoding/json
// can marshal: Integer as a decimal string, ByteString/Buffer
// as base64 string, Array/Struct as JSON array, Map as JSON object (keys
// stringified) convention.
func itemToJSON(item vm.Item) (interface{}, error) {
	switch v := item.(type) {
	case vm.Null:
		return nil, nil
	case vm.Bool:
		return bool(v), nil
	case vm.Integer:
		return v.Big().String(), nil
	case vm.ByteString:
		return base64.StdEncoding.EncodeToString([]byte(v)), nil
	case *vm.Buffer:
		return base64.StdEncoding.EncodeToString(v.Data), nil
	case *vm.Array:
		out := make([]interface{}, len(v.Items))
		for i, it := range v.Items {
			j, err := itemToJSON(it)
			if err != nil {
				return nil, err
			}
			out[i] = j
		}
		return out, nil
	case *vm.Struct:
		out := make([]interface{}, len(v.Items))
		for i, it := range v.Items {
			j, err := itemToJSON(it)
			if err != nil {
				return nil, err
			}
			out[i] = j
		}
		return out, nil
	case *vm.Map:
		out := make(map[string]interface{}, v.Len())
		for _, k := range v.Keys() {
			val, _, err := v.Get(k)
			if err != nil {
				return nil, err
			}
			kj, err := itemToJSON(k)
			if err != nil {
				return nil, err
			}
			jv, err := itemToJSON(val)
			if err != nil {
				return nil, err
			}
			out[stringifyJSONKey(kj)] = jv
		}
		return out, nil
	default:
		return nil, vm.ErrTypeMismatch
	}
}

func stringifyJSONKey(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}

// jsonToItem is itemToJSON's inverse: numbers decode back as vm.Integer via
// their string form (json.Unmarshal into interface{} gives float64 for bare
// numbers, which loses big-integer precision, so StdLib's wire convention
// always carries integers as decimal strings — matching itemToJSON above).
func jsonToItem(v interface{}) (vm.Item, error) {
	switch t := v.(type) {
	case nil:
		return vm.Null{}, nil
	case bool:
		return vm.Bool(t), nil
	case string:
		if n, ok := new(big.Int).SetString(t, 10); ok {
			return vm.NewInteger(n), nil
		}
		b, err := base64.StdEncoding.DecodeString(t)
		if err != nil {
			return vm.ByteString(t), nil
		}
		return vm.ByteString(b), nil
	case []interface{}:
		items := make([]vm.Item, len(t))
		for i, e := range t {
			item, err := jsonToItem(e)
			if err != nil {
				return nil, err
			}
			items[i] = item
		}
		return vm.NewArray(items), nil
	case map[string]interface{}:
		m := vm.NewMap()
		for k, val := range t {
			jv, err := jsonToItem(val)
			if err != nil {
				return nil, err
			}
			if err := m.Set(vm.ByteString(k), jv); err != nil {
				return nil, err
			}
		}
		return m, nil
	default:
		return nil, vm.ErrTypeMismatch
	}
}

func registerStdLibInterops(s *StdLib) {
	engine.RegisterInterop(engine.InteropDescriptor{
		Name: "StdLib.Base58Encode", FixedPrice: 1 << 12, RequiredFlags: engine.FlagNone,
		Handler: func(e *engine.ApplicationEngine) error {
			b, err := popBytes(e)
			if err != nil {
				return err
			}
			return push(e, vm.ByteString(base58.Encode(b)))
		},
	})
	engine.RegisterInterop(engine.InteropDescriptor{
		Name: "StdLib.Base58Decode", FixedPrice: 1 << 12, RequiredFlags: engine.FlagNone,
		Handler: func(e *engine.ApplicationEngine) error {
			str, err := popString(e)
			if err != nil {
				return err
			}
			b, err := base58.Decode(str)
			if err != nil {
				return err
			}
			return push(e, vm.ByteString(b))
		},
	})
	engine.RegisterInterop(engine.InteropDescriptor{
		Name: "StdLib.Base64Encode", FixedPrice: 1 << 12, RequiredFlags: engine.FlagNone,
		Handler: func(e *engine.ApplicationEngine) error {
			b, err := popBytes(e)
			if err != nil {
				return err
			}
			return push(e, vm.ByteString(base64.StdEncoding.EncodeToString(b)))
		},
	})
	engine.RegisterInterop(engine.InteropDescriptor{
		Name: "StdLib.Base64Decode", FixedPrice: 1 << 12, RequiredFlags: engine.FlagNone,
		Handler: func(e *engine.ApplicationEngine) error {
			str, err := popString(e)
			if err != nil {
				return err
			}
			b, err := base64.StdEncoding.DecodeString(str)
			if err != nil {
				return err
			}
			return push(e, vm.ByteString(b))
		},
	})
	engine.RegisterInterop(engine.InteropDescriptor{
		Name: "StdLib.JsonSerialize", FixedPrice: 1 << 14, RequiredFlags: engine.FlagNone,
		Handler: func(e *engine.ApplicationEngine) error {
			item, err := e.VM.CurrentContext().Estack().Pop()
			if err != nil {
				return err
			}
			j, err := itemToJSON(item)
			if err != nil {
				return err
			}
			raw, err := json.Marshal(j)
			if err != nil {
				return err
			}
			return push(e, vm.ByteString(raw))
		},
	})
	engine.RegisterInterop(engine.InteropDescriptor{
		Name: "StdLib.JsonDeserialize", FixedPrice: 1 << 14, RequiredFlags: engine.FlagNone,
		Handler: func(e *engine.ApplicationEngine) error {
			raw, err := popBytes(e)
			if err != nil {
				return err
			}
			var v interface{}
			if err := json.Unmarshal(raw, &v); err != nil {
				return err
			}
			item, err := jsonToItem(v)
			if err != nil {
				return err
			}
			return push(e, item)
		},
	})
	engine.RegisterInterop(engine.InteropDescriptor{
		Name: "StdLib.Itoa", FixedPrice: 1 << 10, RequiredFlags: engine.FlagNone,
		Handler: func(e *engine.ApplicationEngine) error {
			n, err := popInteger(e)
			if err != nil {
				return err
			}
			return push(e, vm.ByteString(n.String()))
		},
	})
	engine.RegisterInterop(engine.InteropDescriptor{
		Name: "StdLib.Atoi", FixedPrice: 1 << 10, RequiredFlags: engine.FlagNone,
		Handler: func(e *engine.ApplicationEngine) error {
			str, err := popString(e)
			if err != nil {
				return err
			}
			n, ok := new(big.Int).SetString(str, 10)
			if !ok {
				return vm.ErrTypeMismatch
			}
			return push(e, vm.NewInteger(n))
		},
	})
	engine.RegisterInterop(engine.InteropDescriptor{
		Name: "StdLib.MemoryCompare", FixedPrice: 1 << 10, RequiredFlags: engine.FlagNone,
		Handler: func(e *engine.ApplicationEngine) error {
			b, err := popBytes(e)
			if err != nil {
				return err
			}
			a, err := popBytes(e)
			if err != nil {
				return err
			}
			return push(e, vm.NewIntegerInt64(int64(bytes.Compare(a, b))))
		},
	})
}
