package ledger

import (
	"math/big"

	"github.com/neonium/neond/pkg/chain"
	"github.com/neonium/neond/pkg/engine"
	"github.com/neonium/neond/pkg/store"
	"github.com/neonium/neond/pkg/util"
)

// emptyContainer satisfies engine.ScriptContainer for read-only engine runs
// that have no real transaction or block behind them (balance reads), the
// same minimal shape pkg/native's tests use as fakeContainer.
type emptyContainer struct{}

func (emptyContainer) Hash() util.UInt256       { return util.UInt256{} }
func (emptyContainer) GetSigners() []chain.Signer { return nil }

// GasBalance returns account's current GAS balance over a snapshot of
// committed state, satisfying pkg/mempool.StateVerifier's sufficient-balance
// check.
func (l *Ledger) GasBalance(account util.UInt160) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	cache := store.NewCache(l.store.Snapshot())
	e := l.engineFor(engine.TriggerApplication, emptyContainer{}, cache, unlimitedGas)
	return l.gas.BalanceOf(e, account)
}

// VerifyWitnesses checks every signer's witness against tx over a snapshot
// of committed state, returning the total gas consumed — the network-fee
// floor mempool admission enforces — or the first witness
// failure. Reuses the same verifyWitness loop validateTransaction runs at
// block-persist time, so the pool's pre-admission check and the ledger's
// at-persist check can never disagree on what a valid witness is.
func (l *Ledger) VerifyWitnesses(tx *chain.Transaction) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cache := store.NewCache(l.store.Snapshot())
	if len(tx.Signers) != len(tx.Witnesses) {
		return 0, ErrValidation
	}
	var total int64
	for i, signer := range tx.Signers {
		ok, gas := l.verifyWitness(cache, tx.Witnesses[i], signer.Account, tx)
		total += gas
		if !ok {
			return total, ErrValidation
		}
	}
	return total, nil
}
