package native

import (
	"math/big"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/neonium/neond/pkg/engine"
	"github.com/neonium/neond/pkg/util"
	"github.com/neonium/neond/pkg/vm"
)

// storage subkeys for NotaryContract.
const (
	notaryDepositPrefix byte = 0x01 // account -> encoded NotaryDeposit
)

// NotaryDeposit is a GAS escrow locked by an account until Till, grounded
// on an Escrow{ID, Amount, State} record shape in
// core/ai.go — renamed to this contract's deposit/height-unlock semantics;
// there is no counterparty to escrow against here, so Buyer/Seller collapse
// into the single depositing account (the storage key itself).
type NotaryDeposit struct {
	ID     string
	Amount *big.Int
	Till   uint32
	State  string // "locked", "released"
}

// NotaryContract is the (optional) NotaryContract native: GAS
// escrow deposits backing notary-assisted transactions, locked until a
// target height.
type NotaryContract struct {
	Base
	gas *GasToken
}

// NewNotaryContract constructs and registers NotaryContract.
func NewNotaryContract(gas *GasToken) *NotaryContract {
	n := &NotaryContract{Base: newBase(IDNotaryContract, "NotaryContract"), gas: gas}
	Register(n)
	registerNotaryInterops(n)
	return n
}

func (n *NotaryContract) OnPersist(e *engine.ApplicationEngine) error   { return nil }
func (n *NotaryContract) PostPersist(e *engine.ApplicationEngine) error { return nil }

func (n *NotaryContract) depositKey(account util.UInt160) []byte {
	return append([]byte{notaryDepositPrefix}, account.Bytes()...)
}

// LockDeposit escrows amount of account's GAS balance until till, requiring
// account's witness. Replaces any prior released deposit record.
func (n *NotaryContract) LockDeposit(e *engine.ApplicationEngine, account util.UInt160, amount *big.Int, till uint32) bool {
	logger := zap.L().Sugar()
	if amount.Sign() <= 0 || !e.CheckWitness(account) {
		return false
	}
	if n.gas != nil {
		if err := n.gas.Charge(e, account, amount); err != nil {
			logger.Errorw("notary deposit charge failed", "account", account.StringBE(), "error", err)
			return false
		}
	}
	dep := NotaryDeposit{ID: uuid.New().String(), Amount: amount, Till: till, State: "locked"}
	putItem(e, n.ID(), n.depositKey(account), encodeNotaryDeposit(&dep))
	logger.Infow("notary deposit locked", "account", account.StringBE(), "till", till)
	return true
}

// Withdraw releases account's locked deposit back to it once height has
// reached Till.
func (n *NotaryContract) Withdraw(e *engine.ApplicationEngine, account util.UInt160, height uint32) bool {
	logger := zap.L().Sugar()
	raw, ok := getItem(e, n.ID(), n.depositKey(account))
	if !ok {
		return false
	}
	dep := decodeNotaryDeposit(raw)
	if dep.State != "locked" || height < dep.Till || !e.CheckWitness(account) {
		return false
	}
	if n.gas != nil {
		if err := n.gas.Mint(e, account, dep.Amount, n.Hash()); err != nil {
			logger.Errorw("notary deposit release failed", "account", account.StringBE(), "error", err)
			return false
		}
	}
	dep.State = "released"
	putItem(e, n.ID(), n.depositKey(account), encodeNotaryDeposit(dep))
	logger.Infow("notary deposit released", "account", account.StringBE())
	return true
}

// Balance returns account's currently locked deposit amount, zero if none
// or already released.
func (n *NotaryContract) Balance(e *engine.ApplicationEngine, account util.UInt160) *big.Int {
	raw, ok := getItem(e, n.ID(), n.depositKey(account))
	if !ok {
		return big.NewInt(0)
	}
	dep := decodeNotaryDeposit(raw)
	if dep.State != "locked" {
		return big.NewInt(0)
	}
	return dep.Amount
}

func encodeNotaryDeposit(d *NotaryDeposit) []byte {
	var out []byte
	out = appendVarBytes(out, []byte(d.ID))
	out = appendVarBytes(out, d.Amount.Bytes())
	out = append(out, byte(d.Till), byte(d.Till>>8), byte(d.Till>>16), byte(d.Till>>24))
	out = appendVarBytes(out, []byte(d.State))
	return out
}

func decodeNotaryDeposit(b []byte) *NotaryDeposit {
	d := &NotaryDeposit{Amount: big.NewInt(0)}
	var idB, amtB, stateB []byte
	idB, b = readVarBytes(b)
	d.ID = string(idB)
	amtB, b = readVarBytes(b)
	d.Amount = new(big.Int).SetBytes(amtB)
	if len(b) >= 4 {
		d.Till = uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
		b = b[4:]
	}
	stateB, _ = readVarBytes(b)
	d.State = string(stateB)
	return d
}

func registerNotaryInterops(n *NotaryContract) {
	engine.RegisterInterop(engine.InteropDescriptor{
		Name: "Notary.LockDeposit", FixedPrice: 1 << 17, RequiredFlags: engine.FlagWriteStates,
		Handler: func(e *engine.ApplicationEngine) error {
			till, err := popInteger(e)
			if err != nil {
				return err
			}
			amount, err := popInteger(e)
			if err != nil {
				return err
			}
			acct, err := popUInt160(e)
			if err != nil {
				return err
			}
			return push(e, vm.Bool(n.LockDeposit(e, acct, amount, uint32(till.Int64()))))
		},
	})
	engine.RegisterInterop(engine.InteropDescriptor{
		Name: "Notary.Withdraw", FixedPrice: 1 << 17, RequiredFlags: engine.FlagWriteStates,
		Handler: func(e *engine.ApplicationEngine) error {
			height, err := popInteger(e)
			if err != nil {
				return err
			}
			acct, err := popUInt160(e)
			if err != nil {
				return err
			}
			return push(e, vm.Bool(n.Withdraw(e, acct, uint32(height.Int64()))))
		},
	})
	engine.RegisterInterop(engine.InteropDescriptor{
		Name: "Notary.BalanceOf", FixedPrice: 1 << 15, RequiredFlags: engine.FlagReadStates,
		Handler: func(e *engine.ApplicationEngine) error {
			acct, err := popUInt160(e)
			if err != nil {
				return err
			}
			return push(e, vm.NewInteger(n.Balance(e, acct)))
		},
	})
}
