package native

import (
	"math/big"

	"github.com/neonium/neond/pkg/engine"
	"github.com/neonium/neond/pkg/util"
	"github.com/neonium/neond/pkg/vm"
)

// nep17 holds the balance/total-supply bookkeeping shared by NeoToken and
// GasToken: one balance-map idiom under each token's own contract id, with
// Transfer notifications emitted by the embedding contract's hash.
type nep17 struct {
	contractID int32
	symbol     string
	decimals   byte
}

const (
	nep17BalancePrefix byte = 0xF0
	nep17SupplyKey      byte = 0xF1
)

func balanceKey(account util.UInt160) []byte {
	return append([]byte{nep17BalancePrefix}, account.Bytes()...)
}

func (n *nep17) BalanceOf(e *engine.ApplicationEngine, account util.UInt160) *big.Int {
	return getBigInt(e, n.contractID, balanceKey(account))
}

func (n *nep17) TotalSupply(e *engine.ApplicationEngine) *big.Int {
	return getBigInt(e, n.contractID, []byte{nep17SupplyKey})
}

func (n *nep17) setBalance(e *engine.ApplicationEngine, account util.UInt160, amount *big.Int) {
	if amount.Sign() == 0 {
		deleteItem(e, n.contractID, balanceKey(account))
		return
	}
	putBigInt(e, n.contractID, balanceKey(account), amount)
}

// Mint credits amount to account and bumps total supply, used by genesis
// funding, GasToken.DistributeBlockReward and NotaryContract deposit release.
func (n *nep17) Mint(e *engine.ApplicationEngine, account util.UInt160, amount *big.Int, hash util.UInt160) error {
	if amount.Sign() <= 0 {
		return nil
	}
	bal := n.BalanceOf(e, account)
	n.setBalance(e, account, new(big.Int).Add(bal, amount))
	supply := n.TotalSupply(e)
	putBigInt(e, n.contractID, []byte{nep17SupplyKey}, new(big.Int).Add(supply, amount))
	return e.Notify(hash, "Transfer", vm.NewArray([]vm.Item{
		vm.Null{},
		vm.ByteString(account.Bytes()),
		vm.NewInteger(amount),
	}))
}

// Burn debits amount from account and shrinks total supply, used by the
// ledger to pay transaction fees out of GasToken balances.
func (n *nep17) Burn(e *engine.ApplicationEngine, account util.UInt160, amount *big.Int, hash util.UInt160) error {
	if amount.Sign() <= 0 {
		return nil
	}
	bal := n.BalanceOf(e, account)
	if bal.Cmp(amount) < 0 {
		return engine.ErrInsufficientGas
	}
	n.setBalance(e, account, new(big.Int).Sub(bal, amount))
	supply := n.TotalSupply(e)
	putBigInt(e, n.contractID, []byte{nep17SupplyKey}, new(big.Int).Sub(supply, amount))
	return e.Notify(hash, "Transfer", vm.NewArray([]vm.Item{
		vm.ByteString(account.Bytes()),
		vm.Null{},
		vm.NewInteger(amount),
	}))
}

// Transfer moves amount from 'from' to 'to', requiring 'from`'s witness,
// per the standard NEP-17 transfer contract.
func (n *nep17) Transfer(e *engine.ApplicationEngine, hash, from, to util.UInt160, amount *big.Int) (bool, error) {
	if amount.Sign() < 0 {
		return false, nil
	}
	if !e.CheckWitness(from) {
		return false, nil
	}
	bal := n.BalanceOf(e, from)
	if bal.Cmp(amount) < 0 {
		return false, nil
	}
	if from != to {
		n.setBalance(e, from, new(big.Int).Sub(bal, amount))
		toBal := n.BalanceOf(e, to)
		n.setBalance(e, to, new(big.Int).Add(toBal, amount))
	}
	if err := e.Notify(hash, "Transfer", vm.NewArray([]vm.Item{
		vm.ByteString(from.Bytes()),
		vm.ByteString(to.Bytes()),
		vm.NewInteger(amount),
	})); err != nil {
		return false, err
	}
	return true, nil
}

// registerNEP17Interops wires the standard balanceOf/transfer/totalSupply
// surface for a token under name prefix (e.g. "NEO", "GAS").
func registerNEP17Interops(name string, n *nep17, hash func() util.UInt160) {
	engine.RegisterInterop(engine.InteropDescriptor{
		Name: name + ".BalanceOf", FixedPrice: 1 << 15, RequiredFlags: engine.FlagReadStates,
		Handler: func(e *engine.ApplicationEngine) error {
			acct, err := popUInt160(e)
			if err != nil {
				return err
			}
			return push(e, vm.NewInteger(n.BalanceOf(e, acct)))
		},
	})
	engine.RegisterInterop(engine.InteropDescriptor{
		Name: name + ".TotalSupply", FixedPrice: 1 << 15, RequiredFlags: engine.FlagReadStates,
		Handler: func(e *engine.ApplicationEngine) error {
			return push(e, vm.NewInteger(n.TotalSupply(e)))
		},
	})
	engine.RegisterInterop(engine.InteropDescriptor{
		Name: name + ".Transfer", FixedPrice: 1 << 17, RequiredFlags: engine.FlagWriteStates | engine.FlagAllowNotify,
		Handler: func(e *engine.ApplicationEngine) error {
			amount, err := popInteger(e)
			if err != nil {
				return err
			}
			to, err := popUInt160(e)
			if err != nil {
				return err
			}
			from, err := popUInt160(e)
			if err != nil {
				return err
			}
			ok, err := n.Transfer(e, hash(), from, to, amount)
			if err != nil {
				return err
			}
			return push(e, vm.Bool(ok))
		},
	})
}
