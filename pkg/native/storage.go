package native

import (
	"encoding/binary"
	"math/big"

	"github.com/neonium/neond/pkg/engine"
	"github.com/neonium/neond/pkg/store"
)

// getItem/putItem/deleteItem read and write a contract's own storage
// through the engine's cache, keyed under the contract's id namespace per
// pkg/store's Storage(id, key) schema. All mutations go through the
// engine's cache; the cache is the commit unit.
func getItem(e *engine.ApplicationEngine, contractID int32, subkey []byte) ([]byte, bool) {
	v, err := e.Cache.Get(store.StorageKey(contractID, subkey))
	if err != nil {
		return nil, false
	}
	return v, true
}

func putItem(e *engine.ApplicationEngine, contractID int32, subkey, value []byte) {
	e.Cache.Put(store.StorageKey(contractID, subkey), value)
}

func deleteItem(e *engine.ApplicationEngine, contractID int32, subkey []byte) {
	e.Cache.Delete(store.StorageKey(contractID, subkey))
}

// getBigInt/putBigInt encode a contract-internal counter/balance as a
// fixed-endian big.Int byte string, reusing pkg/vm's existing PUSHINT
// two's-complement convention so storage values round-trip through Integer
// stack items without a second encoding.
func getBigInt(e *engine.ApplicationEngine, contractID int32, subkey []byte) *big.Int {
	v, ok := getItem(e, contractID, subkey)
	if !ok || len(v) == 0 {
		return big.NewInt(0)
	}
	be := make([]byte, len(v))
	for i, b := range v {
		be[len(v)-1-i] = b
	}
	n := new(big.Int).SetBytes(be)
	if be[0]&0x80 != 0 {
		mod := new(big.Int).Lsh(big.NewInt(1), uint(len(v)*8))
		n.Sub(n, mod)
	}
	return n
}

func putBigInt(e *engine.ApplicationEngine, contractID int32, subkey []byte, v *big.Int) {
	// One byte more than the magnitude's whole bytes leaves room for the
	// sign bit; negatives are stored as 2^(8n) + v.
	n := v.BitLen()/8 + 1
	u := new(big.Int).Set(v)
	if v.Sign() < 0 {
		u.Add(u, new(big.Int).Lsh(big.NewInt(1), uint(n*8)))
	}
	be := u.FillBytes(make([]byte, n))
	le := make([]byte, n)
	for i, b := range be {
		le[n-1-i] = b
	}
	putItem(e, contractID, subkey, le)
}

func getUint32(e *engine.ApplicationEngine, contractID int32, subkey []byte) uint32 {
	v, ok := getItem(e, contractID, subkey)
	if !ok || len(v) != 4 {
		return 0
	}
	return binary.LittleEndian.Uint32(v)
}

func putUint32(e *engine.ApplicationEngine, contractID int32, subkey []byte, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	putItem(e, contractID, subkey, b[:])
}
