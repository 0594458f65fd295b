package native

import (
	"math/big"

	"github.com/neonium/neond/pkg/engine"
	"github.com/neonium/neond/pkg/util"
)

// GasToken is the GasToken native: a NEP-17 token burned by transaction
// system+network fees. On block persist it mints the block's network fees
// to the primary validator (DistributeBlockReward); the committee receives
// GAS only at genesis, and no per-block committee reward is minted.
type GasToken struct {
	Base
	nep17
}

// NewGasToken constructs and registers GasToken.
func NewGasToken() *GasToken {
	g := &GasToken{Base: newBase(IDGasToken, "GasToken")}
	g.nep17 = nep17{contractID: g.ID(), symbol: "GAS", decimals: 8}
	Register(g)
	registerNEP17Interops("GAS", &g.nep17, g.Hash)
	return g
}

func (g *GasToken) OnPersist(e *engine.ApplicationEngine) error { return nil }

// PostPersist does nothing: the ledger mints the block's accumulated
// network fees to the primary through DistributeBlockReward instead (system
// fees are simply burned on transaction execution; a FAULT still consumes
// the full system_fee).
func (g *GasToken) PostPersist(e *engine.ApplicationEngine) error {
	return nil
}

// DistributeBlockReward mints networkFeeTotal to primary, invoked by the
// ledger once it knows the block's primary validator and accumulated
// network fees (information GasToken itself has no access to).
func (g *GasToken) DistributeBlockReward(e *engine.ApplicationEngine, primary util.UInt160, networkFeeTotal *big.Int) error {
	return g.Mint(e, primary, networkFeeTotal, g.Hash())
}

// Charge burns system_fee+network_fee from account, invoked by the ledger
// before executing a transaction's Application trigger.
func (g *GasToken) Charge(e *engine.ApplicationEngine, account util.UInt160, amount *big.Int) error {
	return g.Burn(e, account, amount, g.Hash())
}
