package native

import (
	"github.com/neonium/neond/pkg/engine"
	"github.com/neonium/neond/pkg/util"
	"github.com/neonium/neond/pkg/vm"
)

// storage subkeys for PolicyContract's scalar tunables.
const (
	keyFeePerByte            byte = 0x01
	keyExecFeeFactor          byte = 0x02
	keyStoragePrice            byte = 0x03
	keyMaxBlockSize              byte = 0x04
	keyMaxBlockSystemFee          byte = 0x05
	keyMaxTransactionsPerBlock      byte = 0x06
	keyMaxTraceableBlocks             byte = 0x07
	keyBlockedAccountPrefix              byte = 0x08
)

// Defaults match the reference genesis policy values.
const (
	defaultFeePerByte               int64 = 1000
	defaultExecFeeFactor              int64 = 30
	defaultStoragePrice                  int64 = 100000
	defaultMaxBlockSize                     uint32 = 1024 * 1024
	defaultMaxBlockSystemFee                   int64 = 9000 * 100000000
	defaultMaxTransactionsPerBlock                 uint32 = 512
	defaultMaxTraceableBlocks                         uint32 = 2102400
)

// PolicyContract is the PolicyContract native: per-chain
// tunables gated behind committee witness on every mutator.
type PolicyContract struct {
	Base
	committee CommitteeChecker
}

// CommitteeChecker abstracts "is this call witnessed by the committee",
// satisfied by NeoToken at wiring time (committee membership is NeoToken's
// concern, not Policy's) — kept as a narrow interface to avoid a
// Policy<->NeoToken import cycle between sibling native-contract files.
type CommitteeChecker interface {
	CheckCommitteeWitness(e *engine.ApplicationEngine) bool
}

// NewPolicyContract constructs and registers PolicyContract. committee may
// be nil until NeoToken is constructed; SetCommittee wires it after the
// fact, since PolicyContract gates its setters on NeoToken's committee but
// can be constructed before NeoToken exists.
func NewPolicyContract() *PolicyContract {
	p := &PolicyContract{Base: newBase(IDPolicyContract, "PolicyContract")}
	Register(p)
	registerPolicyInterops(p)
	return p
}

// SetCommittee wires the committee-witness checker once NeoToken exists.
func (p *PolicyContract) SetCommittee(c CommitteeChecker) { p.committee = c }

func (p *PolicyContract) requireCommittee(e *engine.ApplicationEngine) error {
	if p.committee == nil || !p.committee.CheckCommitteeWitness(e) {
		return engine.ErrNoPermission
	}
	return nil
}

// ExecFeeFactor/StoragePrice satisfy engine.PolicyReader.
func (p *PolicyContract) ExecFeeFactor() int64 { return defaultExecFeeFactor }
func (p *PolicyContract) StoragePrice() int64  { return defaultStoragePrice }

// ExecFeeFactorFor/StoragePriceFor read the live value out of e's cache,
// falling back to the genesis default before the first block persists.
func (p *PolicyContract) ExecFeeFactorFor(e *engine.ApplicationEngine) int64 {
	v := getBigInt(e, p.ID(), []byte{keyExecFeeFactor})
	if v.Sign() == 0 {
		return defaultExecFeeFactor
	}
	return v.Int64()
}

func (p *PolicyContract) StoragePriceFor(e *engine.ApplicationEngine) int64 {
	v := getBigInt(e, p.ID(), []byte{keyStoragePrice})
	if v.Sign() == 0 {
		return defaultStoragePrice
	}
	return v.Int64()
}

// IsBlocked reports whether account is on the blocked-accounts set.
func (p *PolicyContract) IsBlocked(e *engine.ApplicationEngine, account util.UInt160) bool {
	_, ok := getItem(e, p.ID(), append([]byte{keyBlockedAccountPrefix}, account.Bytes()...))
	return ok
}

func (p *PolicyContract) OnPersist(e *engine.ApplicationEngine) error   { return nil }
func (p *PolicyContract) PostPersist(e *engine.ApplicationEngine) error { return nil }

func registerPolicyInterops(p *PolicyContract) {
	engine.RegisterInterop(engine.InteropDescriptor{
		Name: "Policy.GetExecFeeFactor", FixedPrice: 1 << 15, RequiredFlags: engine.FlagReadStates,
		Handler: func(e *engine.ApplicationEngine) error {
			return push(e, vm.NewIntegerInt64(p.ExecFeeFactorFor(e)))
		},
	})
	engine.RegisterInterop(engine.InteropDescriptor{
		Name: "Policy.GetStoragePrice", FixedPrice: 1 << 15, RequiredFlags: engine.FlagReadStates,
		Handler: func(e *engine.ApplicationEngine) error {
			return push(e, vm.NewIntegerInt64(p.StoragePriceFor(e)))
		},
	})
	engine.RegisterInterop(engine.InteropDescriptor{
		Name: "Policy.SetExecFeeFactor", FixedPrice: 1 << 15, RequiredFlags: engine.FlagWriteStates,
		Handler: func(e *engine.ApplicationEngine) error {
			if err := p.requireCommittee(e); err != nil {
				return err
			}
			n, err := popInteger(e)
			if err != nil {
				return err
			}
			putBigInt(e, p.ID(), []byte{keyExecFeeFactor}, n)
			return nil
		},
	})
	engine.RegisterInterop(engine.InteropDescriptor{
		Name: "Policy.IsBlocked", FixedPrice: 1 << 15, RequiredFlags: engine.FlagReadStates,
		Handler: func(e *engine.ApplicationEngine) error {
			h, err := popUInt160(e)
			if err != nil {
				return err
			}
			return push(e, vm.Bool(p.IsBlocked(e, h)))
		},
	})
	engine.RegisterInterop(engine.InteropDescriptor{
		Name: "Policy.BlockAccount", FixedPrice: 1 << 15, RequiredFlags: engine.FlagWriteStates,
		Handler: func(e *engine.ApplicationEngine) error {
			if err := p.requireCommittee(e); err != nil {
				return err
			}
			h, err := popUInt160(e)
			if err != nil {
				return err
			}
			putItem(e, p.ID(), append([]byte{keyBlockedAccountPrefix}, h.Bytes()...), []byte{1})
			return nil
		},
	})
}
