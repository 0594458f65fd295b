package native

import (
	"github.com/neonium/neond/pkg/engine"
	"github.com/neonium/neond/pkg/store"
	"github.com/neonium/neond/pkg/vm"
)

// Role identifies a network role RoleManagement can designate nodes to.
// Designations are snapshotted per height, so historical queries resolve
// against the height they ask about.
type Role byte

const (
	RoleStateValidator Role = 4
	RoleOracle         Role = 8
	RoleNeoFSAlphabet  Role = 16
)

// RoleManagement is the RoleManagement native: committee-gated,
// per-height snapshot designation of node roles, queried by the role's
// most recent designation at or before a given height.
type RoleManagement struct {
	Base
	committee CommitteeChecker
}

// NewRoleManagement constructs and registers RoleManagement.
func NewRoleManagement() *RoleManagement {
	r := &RoleManagement{Base: newBase(IDRoleManagement, "RoleManagement")}
	Register(r)
	registerRoleManagementInterops(r)
	return r
}

// SetCommittee wires the committee-witness check, mirroring PolicyContract's
// wiring (see policy.go) to avoid a NeoToken<->RoleManagement cycle.
func (r *RoleManagement) SetCommittee(c CommitteeChecker) { r.committee = c }

func (r *RoleManagement) OnPersist(e *engine.ApplicationEngine) error   { return nil }
func (r *RoleManagement) PostPersist(e *engine.ApplicationEngine) error { return nil }

func roleKey(role Role, height uint32) []byte {
	return []byte{byte(role), byte(height), byte(height >> 8), byte(height >> 16), byte(height >> 24)}
}

// Designate records nodes as holding role as of height, requiring a
// committee witness.
func (r *RoleManagement) Designate(e *engine.ApplicationEngine, role Role, height uint32, nodes [][]byte) bool {
	if r.committee == nil || !r.committee.CheckCommitteeWitness(e) {
		return false
	}
	var blob []byte
	for _, n := range nodes {
		blob = appendVarBytes(blob, n)
	}
	putItem(e, r.ID(), roleKey(role, height), blob)
	return true
}

// GetDesignatedByRole returns the node set designated for role as of the
// latest snapshot at or before height.
func (r *RoleManagement) GetDesignatedByRole(e *engine.ApplicationEngine, role Role, height uint32) [][]byte {
	prefix := store.StorageKey(r.ID(), []byte{byte(role)})
	it := e.Cache.Seek(prefix, store.Forward)
	defer it.Close()
	var best []byte
	var bestHeight uint32
	found := false
	for it.Next() {
		key := it.Key()
		if len(key) < len(prefix)+4 {
			continue
		}
		h := uint32(key[len(prefix)]) | uint32(key[len(prefix)+1])<<8 | uint32(key[len(prefix)+2])<<16 | uint32(key[len(prefix)+3])<<24
		if h > height {
			continue
		}
		if !found || h > bestHeight {
			bestHeight = h
			found = true
			best = append([]byte(nil), it.Value()...)
		}
	}
	if !found {
		return nil
	}
	var out [][]byte
	for len(best) > 0 {
		var n []byte
		n, best = readVarBytes(best)
		if n == nil {
			break
		}
		out = append(out, n)
	}
	return out
}

func registerRoleManagementInterops(r *RoleManagement) {
	engine.RegisterInterop(engine.InteropDescriptor{
		Name: "RoleManagement.GetDesignatedByRole", FixedPrice: 1 << 15, RequiredFlags: engine.FlagReadStates,
		Handler: func(e *engine.ApplicationEngine) error {
			height, err := popInteger(e)
			if err != nil {
				return err
			}
			roleInt, err := popInteger(e)
			if err != nil {
				return err
			}
			nodes := r.GetDesignatedByRole(e, Role(roleInt.Int64()), uint32(height.Int64()))
			items := make([]vm.Item, len(nodes))
			for i, n := range nodes {
				items[i] = vm.ByteString(n)
			}
			return push(e, vm.NewArray(items))
		},
	})
	engine.RegisterInterop(engine.InteropDescriptor{
		Name: "RoleManagement.Designate", FixedPrice: 1 << 20, RequiredFlags: engine.FlagWriteStates,
		Handler: func(e *engine.ApplicationEngine) error {
			nodes, err := popByteArrays(e)
			if err != nil {
				return err
			}
			height, err := popInteger(e)
			if err != nil {
				return err
			}
			roleInt, err := popInteger(e)
			if err != nil {
				return err
			}
			return push(e, vm.Bool(r.Designate(e, Role(roleInt.Int64()), uint32(height.Int64()), nodes)))
		},
	})
}
