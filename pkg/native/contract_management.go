package native

import (
	"github.com/neonium/neond/pkg/engine"
	"github.com/neonium/neond/pkg/store"
	"github.com/neonium/neond/pkg/util"
	"github.com/neonium/neond/pkg/vm"
)

// storage subkeys for ContractManagement.
const (
	keyNextID          byte = 0x01
	keyContractPrefix   byte = 0x02 // Contract(id)
	keyContractHashPrefix byte = 0x03 // ContractHash(hash) -> id
)

// ContractState is the deployed-contract record the `Contract(id)`
// entry names: (hash, nef, manifest, update_counter).
type ContractState struct {
	ID             int32
	Hash           util.UInt160
	NEF            []byte
	Manifest       []byte
	UpdateCounter  uint32
	AllowedCallers CallFlagsByMethod
}

// CallFlagsByMethod records the manifest-declared CallFlags a contract
// grants System.Contract.Call on each of its own methods; simplified to a
// single contract-wide flag set; per-method granularity is collapsed into
// one contract-wide grant.
type CallFlagsByMethod = engine.CallFlags

// ContractManagement is the ContractManagement native:
// deploy/update/destroy/getContract, NEF+manifest storage, monotonically
// increasing contract ids, and System.Contract.Call dispatch via the
// manifest.
type ContractManagement struct {
	Base
	store store.KVStore // direct read access for ResolveContract outside a cache-bearing call
}

// NewContractManagement constructs and registers ContractManagement.
func NewContractManagement() *ContractManagement {
	c := &ContractManagement{Base: newBase(IDContractManagement, "ContractManagement")}
	Register(c)
	registerContractManagementInterops(c)
	return c
}

func (c *ContractManagement) OnPersist(e *engine.ApplicationEngine) error   { return nil }
func (c *ContractManagement) PostPersist(e *engine.ApplicationEngine) error { return nil }

// nextID allocates and persists the next monotonically increasing contract
// id, starting at 1 (native contracts keep the negative id space).
func (c *ContractManagement) nextID(e *engine.ApplicationEngine) int32 {
	id := getUint32(e, c.ID(), []byte{keyNextID})
	id++
	putUint32(e, c.ID(), []byte{keyNextID}, id)
	return int32(id)
}

func contractKey(id int32) []byte {
	b := []byte{byte(id), byte(id >> 8), byte(id >> 16), byte(id >> 24)}
	return append([]byte{keyContractPrefix}, b...)
}

// Deploy stores a new ContractState under a freshly allocated,
// monotonically increasing id.
func (c *ContractManagement) Deploy(e *engine.ApplicationEngine, nef, manifest []byte) (*ContractState, error) {
	id := c.nextID(e)
	hash := util.Uint160FromScript(nef)
	cs := &ContractState{ID: id, Hash: hash, NEF: nef, Manifest: manifest, UpdateCounter: 0}
	c.persist(e, cs)
	return cs, nil
}

// Update rewrites an existing contract's NEF/manifest in place, bumping its
// update counter.
func (c *ContractManagement) Update(e *engine.ApplicationEngine, hash util.UInt160, nef, manifest []byte) (*ContractState, error) {
	cs, ok := c.GetContractByHash(e, hash)
	if !ok {
		return nil, engine.ErrUnknownContract
	}
	if nef != nil {
		cs.NEF = nef
	}
	if manifest != nil {
		cs.Manifest = manifest
	}
	cs.UpdateCounter++
	c.persist(e, cs)
	return cs, nil
}

// Destroy removes a contract's record and its entire storage namespace.
func (c *ContractManagement) Destroy(e *engine.ApplicationEngine, hash util.UInt160) {
	cs, ok := c.GetContractByHash(e, hash)
	if !ok {
		return
	}
	deleteItem(e, c.ID(), contractKey(cs.ID))
	deleteItem(e, c.ID(), append([]byte{keyContractHashPrefix}, hash.Bytes()...))
	it := e.Cache.Seek(store.StoragePrefix(cs.ID), store.Forward)
	defer it.Close()
	var keys [][]byte
	for it.Next() {
		keys = append(keys, append([]byte(nil), it.Key()...))
	}
	for _, k := range keys {
		e.Cache.Delete(k)
	}
}

func (c *ContractManagement) persist(e *engine.ApplicationEngine, cs *ContractState) {
	putItem(e, c.ID(), contractKey(cs.ID), encodeContractState(cs))
	var idBytes [4]byte
	idBytes[0], idBytes[1], idBytes[2], idBytes[3] = byte(cs.ID), byte(cs.ID>>8), byte(cs.ID>>16), byte(cs.ID>>24)
	putItem(e, c.ID(), append([]byte{keyContractHashPrefix}, cs.Hash.Bytes()...), idBytes[:])
}

// GetContract looks up a deployed contract by id.
func (c *ContractManagement) GetContract(e *engine.ApplicationEngine, id int32) (*ContractState, bool) {
	v, ok := getItem(e, c.ID(), contractKey(id))
	if !ok {
		return nil, false
	}
	return decodeContractState(v), true
}

// GetContractByHash looks up a deployed contract by its script hash.
func (c *ContractManagement) GetContractByHash(e *engine.ApplicationEngine, hash util.UInt160) (*ContractState, bool) {
	idBytes, ok := getItem(e, c.ID(), append([]byte{keyContractHashPrefix}, hash.Bytes()...))
	if !ok || len(idBytes) != 4 {
		return nil, false
	}
	id := int32(uint32(idBytes[0]) | uint32(idBytes[1])<<8 | uint32(idBytes[2])<<16 | uint32(idBytes[3])<<24)
	return c.GetContract(e, id)
}

// ResolveContract satisfies engine.ContractResolver for System.Contract.Call:
// native contracts resolve through pkg/native's registry, deployed
// contracts through storage. This requires a live ApplicationEngine to read
// the cache, so ResolveContract is a method value bound per-engine by the
// ledger at ApplicationEngine construction time (see pkg/ledger wiring).
func (c *ContractManagement) ResolveContract(e *engine.ApplicationEngine) engine.ContractResolver {
	return resolverFunc(func(hash util.UInt160) ([]byte, engine.CallFlags, bool) {
		if nc, ok := ByHash(hash); ok {
			// Native contracts have no NEF script; System.Contract.Call on a
			// native hash is handled specially by the ledger's dispatch
			// (native methods are interop-registered, not script-resolved).
			_ = nc
			return nil, engine.FlagAll, true
		}
		cs, ok := c.GetContractByHash(e, hash)
		if !ok {
			return nil, 0, false
		}
		return cs.NEF, engine.FlagAll, true
	})
}

type resolverFunc func(hash util.UInt160) ([]byte, engine.CallFlags, bool)

func (f resolverFunc) ResolveContract(hash util.UInt160) ([]byte, engine.CallFlags, bool) { return f(hash) }

// ContractIDResolver satisfies engine.ContractIDResolver for the
// System.Storage interops: native contracts answer from the registry,
// deployed contracts from the ContractHash(hash) index. Bound per-engine
// the same way ResolveContract is, since the deployed-contract lookup
// reads through the engine's cache.
func (c *ContractManagement) ContractIDResolver(e *engine.ApplicationEngine) engine.ContractIDResolver {
	return idResolverFunc(func(hash util.UInt160) (int32, bool) {
		if nc, ok := ByHash(hash); ok {
			return nc.ID(), true
		}
		cs, ok := c.GetContractByHash(e, hash)
		if !ok {
			return 0, false
		}
		return cs.ID, true
	})
}

type idResolverFunc func(hash util.UInt160) (int32, bool)

func (f idResolverFunc) ContractID(hash util.UInt160) (int32, bool) { return f(hash) }

// encodeContractState/decodeContractState use a simple length-prefixed
// concatenation; contract records are opaque blobs to every reader except
// ContractManagement itself, so there is no cross-package wire-format
// requirement beyond round-tripping correctly.
func encodeContractState(cs *ContractState) []byte {
	var out []byte
	out = append(out, cs.Hash.Bytes()...)
	out = appendVarBytes(out, cs.NEF)
	out = appendVarBytes(out, cs.Manifest)
	out = append(out, byte(cs.UpdateCounter), byte(cs.UpdateCounter>>8), byte(cs.UpdateCounter>>16), byte(cs.UpdateCounter>>24))
	return out
}

func decodeContractState(b []byte) *ContractState {
	cs := &ContractState{}
	if len(b) < util.UInt160Size {
		return cs
	}
	copy(cs.Hash[:], b[:util.UInt160Size])
	rest := b[util.UInt160Size:]
	cs.NEF, rest = readVarBytes(rest)
	cs.Manifest, rest = readVarBytes(rest)
	if len(rest) >= 4 {
		cs.UpdateCounter = uint32(rest[0]) | uint32(rest[1])<<8 | uint32(rest[2])<<16 | uint32(rest[3])<<24
	}
	return cs
}

func appendVarBytes(out, b []byte) []byte {
	n := uint32(len(b))
	out = append(out, byte(n), byte(n>>8), byte(n>>16), byte(n>>24))
	return append(out, b...)
}

func readVarBytes(b []byte) ([]byte, []byte) {
	if len(b) < 4 {
		return nil, b
	}
	n := int(uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24)
	b = b[4:]
	if n > len(b) {
		return nil, nil
	}
	return b[:n], b[n:]
}

func registerContractManagementInterops(c *ContractManagement) {
	engine.RegisterInterop(engine.InteropDescriptor{
		Name: "ContractManagement.GetContract", FixedPrice: 1 << 15, RequiredFlags: engine.FlagReadStates,
		Handler: func(e *engine.ApplicationEngine) error {
			hash, err := popUInt160(e)
			if err != nil {
				return err
			}
			cs, ok := c.GetContractByHash(e, hash)
			if !ok {
				return push(e, vm.Null{})
			}
			return push(e, vm.NewStruct([]vm.Item{
				vm.NewIntegerInt64(int64(cs.ID)),
				vm.ByteString(cs.Hash.Bytes()),
				vm.NewIntegerInt64(int64(cs.UpdateCounter)),
			}))
		},
	})
	engine.RegisterInterop(engine.InteropDescriptor{
		Name: "ContractManagement.Deploy", FixedPrice: 1 << 20, RequiredFlags: engine.FlagWriteStates | engine.FlagAllowNotify,
		Handler: func(e *engine.ApplicationEngine) error {
			manifest, err := popBytes(e)
			if err != nil {
				return err
			}
			nef, err := popBytes(e)
			if err != nil {
				return err
			}
			cs, err := c.Deploy(e, nef, manifest)
			if err != nil {
				return err
			}
			return push(e, vm.ByteString(cs.Hash.Bytes()))
		},
	})
}
