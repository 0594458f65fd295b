package ledger

import (
	"fmt"

	"github.com/neonium/neond/pkg/chain"
	"github.com/neonium/neond/pkg/engine"
	"github.com/neonium/neond/pkg/store"
	"github.com/neonium/neond/pkg/util"
	"github.com/neonium/neond/pkg/vm"
)

// scriptContainer adapts a block or transaction to engine.ScriptContainer
// for witness verification. Both chain.Block and chain.Transaction already
// satisfy this directly; the alias just documents the call-site intent.
type scriptContainer = engine.ScriptContainer

// validateBlockStructure checks the structural invariants that don't
// require consulting the previous block: version,
// transaction count, merkle root, and per-tx structural validity plus
// uniqueness. Height/prevHash continuity is checked separately against the
// current ledger state in applyBlock, since genesis has no predecessor.
func (l *Ledger) validateBlockStructure(b *chain.Block) error {
	if b.Header.Version != 0 {
		return fmt.Errorf("%w: unsupported block version %d", ErrValidation, b.Header.Version)
	}
	if uint32(len(b.Transactions)) > l.settings.MaxTransactionsPerBlock {
		return fmt.Errorf("%w: too many transactions in block", ErrValidation)
	}
	seen := make(map[util.UInt256]bool, len(b.Transactions))
	hashes := make([]util.UInt256, len(b.Transactions))
	for i, tx := range b.Transactions {
		if err := tx.Validate(); err != nil {
			return fmt.Errorf("%w: tx %d: %v", ErrValidation, i, err)
		}
		h := tx.Hash()
		if seen[h] {
			return fmt.Errorf("%w: duplicate transaction %s in block", ErrValidation, h)
		}
		seen[h] = true
		hashes[i] = h
	}
	if chain.MerkleRoot(hashes) != b.Header.MerkleRoot {
		return fmt.Errorf("%w: merkle root mismatch", ErrValidation)
	}
	return nil
}

// validateBlockContinuity checks index/prev_hash agreement against the
// ledger's current tip. Skipped for genesis, which by
// definition has no predecessor to check against.
func (l *Ledger) validateBlockContinuity(b *chain.Block) error {
	if b.Header.Index != l.height+1 {
		return fmt.Errorf("%w: block index %d does not follow current height %d", ErrValidation, b.Header.Index, l.height)
	}
	if b.Header.PrevHash != l.currentHash {
		return fmt.Errorf("%w: block prev_hash does not match current tip", ErrValidation)
	}
	return nil
}

// verifyWitness checks a single witness authorizes expectedAccount against
// container. The reference node verifies invocation and verification
// scripts as two separate VM contexts; this concatenates them into one
// script and runs it under a single Verification-trigger context instead,
// sufficient to prove knowledge of the signature(s) the verification
// script checks.
func (l *Ledger) verifyWitness(cache *store.Cache, w chain.Witness, expectedAccount util.UInt160, container engine.ScriptContainer) (bool, int64) {
	if w.ScriptHash() != expectedAccount {
		return false, 0
	}
	script := append(append([]byte(nil), w.InvocationScript...), w.VerificationScript...)
	e := l.engineFor(engine.TriggerVerification, container, cache, l.settings.witnessGasLimit())
	if _, err := e.LoadScript(script, expectedAccount, util.UInt160{}, engine.FlagReadOnly, -1); err != nil {
		return false, e.GasConsumed
	}
	if e.Execute() != vm.StateHalt {
		return false, e.GasConsumed
	}
	top, err := e.VM.ResultStack().Peek(0)
	if err != nil {
		return false, e.GasConsumed
	}
	return top.Bool(), e.GasConsumed
}

// witnessGasLimit bounds signature-verification scripts; set high enough
// to cover an m-of-n CheckMultisig over the full committee, per
// NeoToken.CommitteeAccount's (n/2+1)-of-n construction.
func (p *ProtocolSettings) witnessGasLimit() int64 { return 2_000000000 }

// validateBlockWitness verifies the block header's single witness against
// the previous block's NextConsensus account (the committee multi-sig that
// endorsed this block). Genesis carries no witness to
// check since there is no prior NextConsensus to verify against.
func (l *Ledger) validateBlockWitness(cache *store.Cache, b *chain.Block, prevNextConsensus util.UInt160) error {
	ok, _ := l.verifyWitness(cache, b.Header.Witness, prevNextConsensus, b)
	if !ok {
		return fmt.Errorf("%w: block witness verification failed", ErrValidation)
	}
	return nil
}

// validateTransaction checks the per-tx rules that
// need live ledger/cache state: not already persisted, valid_until_block
// window, per-signer witness verification, and network-fee sufficiency
// against the witness verification cost. System-fee sufficiency for the
// tx's own script execution is enforced by the gas-metered engine run
// itself in applyTransaction, not here.
func (l *Ledger) validateTransaction(cache *store.Cache, tx *chain.Transaction, height uint32) error {
	if l.ContainsTransaction(tx.Hash()) {
		return fmt.Errorf("%w: transaction %s", ErrAlreadyExists, tx.Hash())
	}
	if tx.ValidUntilBlock <= height {
		return fmt.Errorf("%w: transaction expired at height %d", ErrValidation, height)
	}
	if tx.ValidUntilBlock > height+l.settings.MaxValidUntilBlockIncrement {
		return fmt.Errorf("%w: valid_until_block too far in the future", ErrValidation)
	}
	if len(tx.Signers) != len(tx.Witnesses) {
		return fmt.Errorf("%w: signer/witness count mismatch", ErrValidation)
	}
	var witnessGas int64
	for i, signer := range tx.Signers {
		ok, gas := l.verifyWitness(cache, tx.Witnesses[i], signer.Account, tx)
		if !ok {
			return fmt.Errorf("%w: witness verification failed for signer %s", ErrValidation, signer.Account)
		}
		witnessGas += gas
	}
	if tx.NetworkFee < witnessGas {
		return fmt.Errorf("%w: network fee too low to cover witness verification", ErrValidation)
	}
	for _, attr := range tx.Attributes {
		if attr.Type == chain.AttrConflicts && l.ContainsTransaction(attr.ConflictHash) {
			return fmt.Errorf("%w: conflicts with already-persisted transaction %s", ErrValidation, attr.ConflictHash)
		}
	}
	return nil
}
