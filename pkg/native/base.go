// Package native implements the fixed set of native contracts:
// ContractManagement, LedgerContract, PolicyContract, NeoToken,
// GasToken, RoleManagement, OracleContract, NotaryContract, StdLib, and
// CryptoLib. Each is its own file, one concern per file, registered into
// a shared id-keyed registry.
package native

import (
	"sort"
	"sync"

	"github.com/neonium/neond/pkg/engine"
	"github.com/neonium/neond/pkg/util"
)

// Contract is the common shape every native contract satisfies: a stable id
// and hash, plus the on_persist/post_persist hooks the ledger invokes in a
// fixed order per block.
type Contract interface {
	ID() int32
	Hash() util.UInt160
	OnPersist(e *engine.ApplicationEngine) error
	PostPersist(e *engine.ApplicationEngine) error
}

// Base supplies the id/hash plumbing every concrete native contract embeds.
// The contract hash derives from (id, name): Hash160 of the little-endian
// id bytes concatenated with the contract's ASCII name. All peers must
// derive these hashes identically for cross-contract calls to resolve.
type Base struct {
	id   int32
	name string
	hash util.UInt160
}

func newBase(id int32, name string) Base {
	idBytes := []byte{byte(id), byte(id >> 8), byte(id >> 16), byte(id >> 24)}
	h := util.Hash160(append(idBytes, []byte(name)...))
	return Base{id: id, name: name, hash: h}
}

func (b Base) ID() int32          { return b.id }
func (b Base) Name() string       { return b.name }
func (b Base) Hash() util.UInt160 { return b.hash }

// Fixed native contract ids; negative by convention, deployed contracts
// count up from 1.
const (
	IDContractManagement int32 = -1
	IDLedgerContract      int32 = -2
	IDNeoToken            int32 = -3
	IDGasToken             int32 = -4
	IDPolicyContract       int32 = -5
	IDRoleManagement       int32 = -6
	IDOracleContract       int32 = -7
	IDNotaryContract       int32 = -8
	IDStdLib                int32 = -9
	IDCryptoLib              int32 = -10
)

// registryMu/registry hold every constructed native contract instance for
// the ledger to iterate over at on_persist/post_persist time, in a fixed
// deterministic order (ascending id magnitude mirrors deployment order).
var (
	registryMu sync.Mutex
	registry   = map[int32]Contract{}
)

// Register installs c in the global contract registry and returns c, so
// each contract's constructor can both build and self-register.
func Register(c Contract) Contract {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[c.ID()] = c
	return c
}

// All returns every registered native contract ordered by id, the fixed
// order the ledger runs on_persist/post_persist hooks in.
func All() []Contract {
	registryMu.Lock()
	defer registryMu.Unlock()
	out := make([]Contract, 0, len(registry))
	for _, c := range registry {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() > out[j].ID() })
	return out
}

// ByHash looks up a registered native contract by its script hash, used by
// engine.ContractResolver wiring (pkg/ledger composes this with
// ContractManagement's deployed-contract lookups).
func ByHash(hash util.UInt160) (Contract, bool) {
	registryMu.Lock()
	defer registryMu.Unlock()
	for _, c := range registry {
		if c.Hash() == hash {
			return c, true
		}
	}
	return nil, false
}
