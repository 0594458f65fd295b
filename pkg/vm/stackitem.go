package vm

import (
	"bytes"
	"errors"
	"math/big"

	"github.com/holiman/uint256"
)

// Type tags the stack-item type system.
type Type byte

const (
	TypeAny             Type = iota // Null
	TypeBoolean
	TypeInteger
	TypeByteString
	TypeBuffer
	TypeArray
	TypeStruct
	TypeMap
	TypePointer
	TypeInteropInterface
)

func (t Type) String() string {
	switch t {
	case TypeAny:
		return "Any"
	case TypeBoolean:
		return "Boolean"
	case TypeInteger:
		return "Integer"
	case TypeByteString:
		return "ByteString"
	case TypeBuffer:
		return "Buffer"
	case TypeArray:
		return "Array"
	case TypeStruct:
		return "Struct"
	case TypeMap:
		return "Map"
	case TypePointer:
		return "Pointer"
	case TypeInteropInterface:
		return "InteropInterface"
	default:
		return "Unknown"
	}
}

// ErrInvalidConversion is returned when CONVERT/type coercion cannot
// represent a value in the requested type.
var ErrInvalidConversion = errors.New("vm: invalid stack item conversion")

// Item is the tagged stack-item union. Compound items
// (Array/Struct/Map/Buffer) are reference types: two Go pointers to the
// same underlying struct alias the same logical item, so mutations are
// visible through every alias.
type Item interface {
	Type() Type
	// Bool renders the item's truthiness for JMPIF-family opcodes and the
	// NOT/BOOLAND family.
	Bool() bool
	// Equals implements value equality: primitives compare by value,
	// Struct compares member-wise (recursively), Array/Map/Buffer compare
	// by reference identity only.
	Equals(other Item) bool
}

// Null is the singleton Any(null) item.
type Null struct{}

func (Null) Type() Type         { return TypeAny }
func (Null) Bool() bool         { return false }
func (Null) Equals(o Item) bool { _, ok := o.(Null); return ok }

// Bool is a Boolean stack item.
type Bool bool

func (Bool) Type() Type { return TypeBoolean }
func (b Bool) Bool() bool { return bool(b) }
func (b Bool) Equals(o Item) bool {
	ob, ok := o.(Bool)
	return ok && ob == b
}

// Integer is an arbitrary-precision Integer stack item backed by math/big.
// ADD (AddInteger) takes a uint256.Int fast path when both operands are
// non-negative and fit in 256 bits; every other opcode uses math/big.
type Integer struct {
	v *big.Int
}

// NewInteger wraps v as an Integer item.
func NewInteger(v *big.Int) Integer { return Integer{v: new(big.Int).Set(v)} }

// NewIntegerInt64 wraps an int64 as an Integer item.
func NewIntegerInt64(v int64) Integer { return Integer{v: big.NewInt(v)} }

func (i Integer) Type() Type     { return TypeInteger }
func (i Integer) Big() *big.Int  { return new(big.Int).Set(i.v) }
func (i Integer) Bool() bool     { return i.v.Sign() != 0 }
func (i Integer) Equals(o Item) bool {
	oi, ok := o.(Integer)
	return ok && i.v.Cmp(oi.v) == 0
}

// fitsUint256 reports whether i can be represented by a fixed 256-bit
// uint256.Int fast path (non-negative, <= 2^256-1).
func fitsUint256(v *big.Int) bool {
	return v.Sign() >= 0 && v.BitLen() <= 256
}

// AddInteger computes a+b, using the uint256 fast path when both operands
// and the result fit in 256 unsigned bits, falling back to math/big
// otherwise (negative operands, or a sum that overflows 256 bits). No
// upper bound is placed on the result's size.
func AddInteger(a, b Integer) Integer {
	if fitsUint256(a.v) && fitsUint256(b.v) {
		ua, oa := uint256.FromBig(a.v)
		ub, ob := uint256.FromBig(b.v)
		if !oa && !ob {
			sum := new(uint256.Int).Add(ua, ub)
			if !sum.Lt(ua) { // no wraparound: a valid 256-bit result
				return NewInteger(sum.ToBig())
			}
		}
	}
	return NewInteger(new(big.Int).Add(a.v, b.v))
}

// ByteString is an immutable byte-string item.
type ByteString []byte

func (ByteString) Type() Type     { return TypeByteString }
func (b ByteString) Bool() bool   { return len(b) > 0 && !allZero(b) }
func (b ByteString) Equals(o Item) bool {
	switch ov := o.(type) {
	case ByteString:
		return bytes.Equal(b, ov)
	case *Buffer:
		return bytes.Equal(b, ov.Data)
	default:
		return false
	}
}

func allZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

// Buffer is a mutable byte-string item, distinct from ByteString in that it
// may be written through MEMCPY and coerces to ByteString on NOTIFY per
// recorded notification state.
type Buffer struct {
	Data []byte
}

func NewBuffer(size int) *Buffer { return &Buffer{Data: make([]byte, size)} }

func (*Buffer) Type() Type     { return TypeBuffer }
func (b *Buffer) Bool() bool   { return len(b.Data) > 0 && !allZero(b.Data) }
func (b *Buffer) Equals(o Item) bool {
	ob, ok := o.(*Buffer)
	return ok && ob == b // reference identity, not content
}

// Array is an ordered, mutable, reference-type compound item.
type Array struct {
	Items []Item
}

func NewArray(items []Item) *Array { return &Array{Items: items} }

func (*Array) Type() Type   { return TypeArray }
func (a *Array) Bool() bool { return true }
func (a *Array) Equals(o Item) bool {
	oa, ok := o.(*Array)
	return ok && oa == a
}

// Struct is the value-equality variant of Array: Equals recurses member-wise
// instead of comparing identity.
type Struct struct {
	Items []Item
}

func NewStruct(items []Item) *Struct { return &Struct{Items: items} }

func (*Struct) Type() Type   { return TypeStruct }
func (s *Struct) Bool() bool { return true }
func (s *Struct) Equals(o Item) bool {
	os, ok := o.(*Struct)
	if !ok || len(os.Items) != len(s.Items) {
		return false
	}
	for i := range s.Items {
		if !s.Items[i].Equals(os.Items[i]) {
			return false
		}
	}
	return true
}

// Clone performs a shallow field-wise copy used by DUP on Struct, which in
// NeoVM deep-copies one level rather than aliasing (unlike Array).
func (s *Struct) Clone() *Struct {
	items := make([]Item, len(s.Items))
	copy(items, s.Items)
	return &Struct{Items: items}
}

// mapKey is the subset of item types valid as Map keys
// ("keys are primitive types only").
type mapKey struct {
	kind Type
	raw  string
}

func keyFor(i Item) (mapKey, error) {
	switch v := i.(type) {
	case Bool:
		if v {
			return mapKey{kind: TypeBoolean, raw: "1"}, nil
		}
		return mapKey{kind: TypeBoolean, raw: "0"}, nil
	case Integer:
		return mapKey{kind: TypeInteger, raw: v.v.String()}, nil
	case ByteString:
		return mapKey{kind: TypeByteString, raw: string(v)}, nil
	case *Buffer:
		return mapKey{kind: TypeByteString, raw: string(v.Data)}, nil
	default:
		return mapKey{}, errors.New("vm: invalid map key type")
	}
}

// Map is an insertion-ordered mutable compound item, honoring the determinism
// rule ("Map iteration is insertion-ordered").
type Map struct {
	keys   []Item
	keyIdx map[mapKey]int
	vals   map[mapKey]Item
}

func NewMap() *Map {
	return &Map{keyIdx: map[mapKey]int{}, vals: map[mapKey]Item{}}
}

func (*Map) Type() Type   { return TypeMap }
func (m *Map) Bool() bool { return true }
func (m *Map) Equals(o Item) bool {
	om, ok := o.(*Map)
	return ok && om == m
}

// Set inserts or updates key→value, preserving original insertion order on
// update.
func (m *Map) Set(key, value Item) error {
	k, err := keyFor(key)
	if err != nil {
		return err
	}
	if _, ok := m.keyIdx[k]; !ok {
		m.keyIdx[k] = len(m.keys)
		m.keys = append(m.keys, key)
	}
	m.vals[k] = value
	return nil
}

// Get looks up key, returning (nil, false) on miss.
func (m *Map) Get(key Item) (Item, bool, error) {
	k, err := keyFor(key)
	if err != nil {
		return nil, false, err
	}
	v, ok := m.vals[k]
	return v, ok, nil
}

// Delete removes key if present.
func (m *Map) Delete(key Item) error {
	k, err := keyFor(key)
	if err != nil {
		return err
	}
	idx, ok := m.keyIdx[k]
	if !ok {
		return nil
	}
	delete(m.vals, k)
	delete(m.keyIdx, k)
	m.keys = append(m.keys[:idx], m.keys[idx+1:]...)
	for kk, i := range m.keyIdx {
		if i > idx {
			m.keyIdx[kk] = i - 1
		}
	}
	return nil
}

// Keys returns the keys in insertion order.
func (m *Map) Keys() []Item { return m.keys }

// Len reports the number of entries.
func (m *Map) Len() int { return len(m.keys) }

// Pointer is a code-position reference item (CALLA target).
type Pointer struct {
	Position int
}

func (Pointer) Type() Type     { return TypePointer }
func (Pointer) Bool() bool     { return true }
func (p Pointer) Equals(o Item) bool {
	op, ok := o.(Pointer)
	return ok && op == p
}

// InteropInterface wraps an opaque host object handle (e.g. an iterator)
// exposed to scripts via a SYSCALL return value.
type InteropInterface struct {
	Value interface{}
}

func (InteropInterface) Type() Type  { return TypeInteropInterface }
func (InteropInterface) Bool() bool  { return true }
func (i InteropInterface) Equals(o Item) bool {
	oi, ok := o.(InteropInterface)
	return ok && oi.Value == i.Value
}

// childrenOf returns the items a compound directly contains, for reference
// counting: Array/Struct members, and each Map key followed by its value.
// Buffer has no item children but still participates in the containment
// graph as a leaf, so it (like every primitive) yields nil.
func childrenOf(i Item) []Item {
	switch v := i.(type) {
	case *Array:
		return v.Items
	case *Struct:
		return v.Items
	case *Map:
		out := make([]Item, 0, 2*len(v.keys))
		for _, k := range v.keys {
			out = append(out, k)
			val, _, _ := v.Get(k)
			out = append(out, val)
		}
		return out
	default:
		return nil
	}
}
