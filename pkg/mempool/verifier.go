package mempool

import (
	"math/big"

	"github.com/neonium/neond/pkg/chain"
	"github.com/neonium/neond/pkg/util"
)

// StateVerifier is the narrow read-only capability the pool needs from the
// ledger to perform state-dependent verification, kept as an interface
// rather than a concrete *ledger.Ledger dependency so pkg/mempool stays a
// leaf package the way pkg/chain is.
type StateVerifier interface {
	// Height returns the ledger's current persisted block index.
	Height() uint32
	// ContainsTransaction reports whether hash is already persisted.
	ContainsTransaction(hash util.UInt256) bool
	// GasBalance returns account's current GAS balance.
	GasBalance(account util.UInt160) *big.Int
	// VerifyWitnesses checks every signer's witness against tx, returning
	// the total gas the verification scripts consumed (the network-fee
	// floor) or an error if any witness fails.
	VerifyWitnesses(tx *chain.Transaction) (witnessGas int64, err error)
}
