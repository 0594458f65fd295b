package ledger

import (
	"bytes"
	"fmt"
	"math"
	"math/big"

	"github.com/neonium/neond/pkg/chain"
	"github.com/neonium/neond/pkg/engine"
	"github.com/neonium/neond/pkg/native"
	"github.com/neonium/neond/pkg/store"
	"github.com/neonium/neond/pkg/util"
	"github.com/neonium/neond/pkg/vm"
)

// unlimitedGas bounds System-trigger (on_persist/post_persist) engine runs,
// which execute fixed native bookkeeping rather than arbitrary user script
// and so are never meant to FAULT on gas.
const unlimitedGas = math.MaxInt64

// AddBlock validates and persists b: validate, apply native hooks, apply
// transactions, commit state, advance height — all under the ledger's own
// lock so only one block applies at a time.
func (l *Ledger) AddBlock(b *chain.Block) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.applyBlock(b, false)
}

// persistGenesis constructs and applies the network's genesis block: index
// 0, no transactions, next_consensus derived from the standby committee,
// and no witness to verify since no prior block exists to have endorsed it.
func (l *Ledger) persistGenesis() error {
	nextConsensus, err := l.settings.GenesisNextConsensus()
	if err != nil {
		return fmt.Errorf("genesis next_consensus: %w", err)
	}
	genesis := &chain.Block{
		Header: chain.Header{
			Version:       0,
			PrevHash:      util.UInt256{},
			MerkleRoot:    chain.MerkleRoot(nil),
			Timestamp:     0,
			Nonce:         0,
			Index:         0,
			PrimaryIndex:  0,
			NextConsensus: nextConsensus,
		},
	}
	return l.applyBlock(genesis, true)
}

// applyBlock runs the full persist pipeline. isGenesis skips
// continuity/witness checks, since genesis has no predecessor.
func (l *Ledger) applyBlock(b *chain.Block, isGenesis bool) error {
	if err := l.validateBlockStructure(b); err != nil {
		return err
	}

	snap := l.store.Snapshot()
	blockCache := store.NewCache(snap)

	if !isGenesis {
		if err := l.validateBlockContinuity(b); err != nil {
			return err
		}
		prevHeader, err := l.GetHeaderByHeight(l.height)
		if err != nil {
			return fmt.Errorf("ledger: load previous header: %w", err)
		}
		if b.Header.Timestamp <= prevHeader.Timestamp {
			return fmt.Errorf("%w: block timestamp must exceed previous block's", ErrValidation)
		}
		if err := l.validateBlockWitness(blockCache, b, prevHeader.NextConsensus); err != nil {
			return err
		}
		for _, tx := range b.Transactions {
			if err := l.validateTransaction(blockCache, tx, b.Header.Index); err != nil {
				return err
			}
		}
	}

	sysEngine := l.engineFor(engine.TriggerOnPersist, b, blockCache, unlimitedGas)
	for _, c := range native.All() {
		if err := c.OnPersist(sysEngine); err != nil {
			return fmt.Errorf("ledger: on_persist %s: %w", nameOf(c), err)
		}
	}
	if isGenesis {
		if err := l.initGenesisState(sysEngine); err != nil {
			return fmt.Errorf("ledger: seed genesis state: %w", err)
		}
	}

	networkFeeTotal := new(big.Int)
	for _, tx := range b.Transactions {
		if err := l.applyTransaction(blockCache, b, tx); err != nil {
			return err
		}
		networkFeeTotal.Add(networkFeeTotal, big.NewInt(tx.NetworkFee))
	}

	primary, err := l.primaryAccount(blockCache, b)
	if err != nil {
		return fmt.Errorf("ledger: resolve primary account: %w", err)
	}
	postEngine := l.engineFor(engine.TriggerPostPersist, b, blockCache, unlimitedGas)
	if err := l.gas.DistributeBlockReward(postEngine, primary, networkFeeTotal); err != nil {
		return fmt.Errorf("ledger: distribute block reward: %w", err)
	}
	for _, c := range native.All() {
		if err := c.PostPersist(postEngine); err != nil {
			return fmt.Errorf("ledger: post_persist %s: %w", nameOf(c), err)
		}
	}

	l.applyStorageDiffToTrie(blockCache)
	stateRoot := l.trie.Root()

	if err := l.writeBlockRecords(blockCache, b, stateRoot); err != nil {
		return err
	}

	if err := blockCache.Commit(l.store); err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}

	l.height = b.Header.Index
	l.currentHash = b.Hash()
	l.log.WithFields(map[string]interface{}{
		"height": l.height,
		"hash":   l.currentHash.String(),
		"txs":    len(b.Transactions),
	}).Info("block persisted")
	return nil
}

// initGenesisState seeds the native-contract storage a fresh chain starts
// from: the standby committee as NeoToken's candidate set, the full NEO
// supply in the committee's joint account, and the configured initial GAS
// distribution alongside it.
func (l *Ledger) initGenesisState(e *engine.ApplicationEngine) error {
	l.neo.InitStandbyCommittee(e, l.settings.StandbyCommittee)
	committee, err := l.neo.CommitteeAccount(e)
	if err != nil {
		return err
	}
	if err := l.neo.Mint(e, committee, big.NewInt(native.NeoTotalSupply), l.neo.Hash()); err != nil {
		return err
	}
	gasAmount := new(big.Int).SetUint64(l.settings.InitialGasDistribution)
	return l.gas.Mint(e, committee, gasAmount, l.gas.Hash())
}

// applyTransaction runs one transaction's fee charge and script execution,
// the fee charge landing directly on blockCache (so it
// survives a FAULT), while the script itself runs on a Clone that is merged
// back only on HALT.
func (l *Ledger) applyTransaction(blockCache *store.Cache, b *chain.Block, tx *chain.Transaction) error {
	chargeEngine := l.engineFor(engine.TriggerApplication, tx, blockCache, unlimitedGas)
	totalFee := new(big.Int).Add(big.NewInt(tx.SystemFee), big.NewInt(tx.NetworkFee))
	if err := l.gas.Charge(chargeEngine, tx.Sender(), totalFee); err != nil {
		return fmt.Errorf("%w: insufficient balance for fees: %v", ErrValidation, err)
	}

	clone := blockCache.Clone()
	txEngine := l.engineFor(engine.TriggerApplication, tx, clone, tx.SystemFee)
	if _, err := txEngine.LoadScript(tx.Script, util.Uint160FromScript(tx.Script), util.UInt160{}, engine.FlagAll, -1); err != nil {
		return l.recordTransaction(blockCache, b, tx, nil, false)
	}
	state := txEngine.Execute()
	if state == vm.StateHalt {
		blockCache.Merge(clone)
	}
	return l.recordTransaction(blockCache, b, tx, txEngine, state == vm.StateHalt)
}

// recordTransaction writes the Transaction(hash) index record unconditionally
// and an AppLog only when the script HALTed.
func (l *Ledger) recordTransaction(blockCache *store.Cache, b *chain.Block, tx *chain.Transaction, e *engine.ApplicationEngine, halted bool) error {
	var buf bytes.Buffer
	w := util.NewBinWriter(&buf)
	w.WriteU32LE(b.Header.Index)
	if w.Err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, w.Err)
	}
	if err := chain.EncodeTransaction(&buf, tx); err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	blockCache.Put(append([]byte{store.PrefixTransaction}, tx.Hash().Bytes()...), buf.Bytes())

	if halted && e != nil {
		blockCache.Put(appLogKey(tx.Hash()), encodeAppLog(e))
	}
	return nil
}

func appLogKey(hash util.UInt256) []byte {
	return append([]byte{store.PrefixAppLog}, hash.Bytes()...)
}

// encodeAppLog serializes notifications and log entries into a compact
// record: count-prefixed (script_hash, event_name) pairs followed by
// count-prefixed (script_hash, message) pairs. A full structured
// NVM-compatible notification state encoding would only feed an RPC
// surface this node does not carry, so the record keeps the essentials:
// notifications and logs.
func encodeAppLog(e *engine.ApplicationEngine) []byte {
	var buf bytes.Buffer
	w := util.NewBinWriter(&buf)
	w.WriteVarUint(uint64(len(e.Notifications)))
	for _, n := range e.Notifications {
		w.WriteBytes(n.ScriptHash.Bytes())
		w.WriteVarBytes([]byte(n.EventName))
	}
	w.WriteVarUint(uint64(len(e.Logs)))
	for _, lg := range e.Logs {
		w.WriteBytes(lg.ScriptHash.Bytes())
		w.WriteVarBytes([]byte(lg.Message))
	}
	return buf.Bytes()
}

// primaryAccount derives the script hash of the validator at
// header.PrimaryIndex among the committee that produced this block, the
// recipient of DistributeBlockReward. Modeled as a 1-of-1 multi-sig script
// over that validator's own key, since pkg/util carries no dedicated
// single-signature script builder and a 1-of-1 CheckMultisig script hashes
// identically in effect.
func (l *Ledger) primaryAccount(cache *store.Cache, b *chain.Block) (util.UInt160, error) {
	e := l.engineFor(engine.TriggerApplication, b, cache, unlimitedGas)
	validators := l.neo.NextBlockValidators(e)
	if len(validators) == 0 {
		validators = l.settings.StandbyCommittee
		if len(validators) > l.settings.ValidatorsCount {
			validators = validators[:l.settings.ValidatorsCount]
		}
	}
	idx := int(b.Header.PrimaryIndex)
	if idx < 0 || idx >= len(validators) {
		return util.UInt160{}, fmt.Errorf("primary index %d out of range", idx)
	}
	script, err := util.BuildMultiSigScript(1, [][]byte{validators[idx]})
	if err != nil {
		return util.UInt160{}, err
	}
	return util.Uint160FromScript(script), nil
}

// applyStorageDiffToTrie replays every Storage(*)-prefixed mutation staged
// in blockCache into the in-memory MPT; the state root derives from the
// Storage key-space only. pkg/mpt keeps no independent
// persistence, so this mutates the trie in place; if the subsequent
// blockCache.Commit then fails, the trie is left ahead of disk until a
// restart rebuilds it from a fresh Storage(*) scan (see rebuildTrie) — an
// accepted limitation, not a correctness gap in the common case where
// Commit succeeds.
func (l *Ledger) applyStorageDiffToTrie(blockCache *store.Cache) {
	added, changed, deleted := blockCache.Diff()
	for k, v := range added {
		if len(k) > 0 && k[0] == store.PrefixStorage {
			l.trie.Put([]byte(k), v)
		}
	}
	for k, v := range changed {
		if len(k) > 0 && k[0] == store.PrefixStorage {
			l.trie.Put([]byte(k), v)
		}
	}
	for _, k := range deleted {
		if len(k) > 0 && k[0] == store.PrefixStorage {
			l.trie.Delete([]byte(k))
		}
	}
}

// writeBlockRecords stages the block/header/state-root index entries,
// mirroring the exact byte shapes
// pkg/native/ledger_contract.go's readers expect.
func (l *Ledger) writeBlockRecords(blockCache *store.Cache, b *chain.Block, stateRoot util.UInt256) error {
	var blockBuf bytes.Buffer
	if err := chain.EncodeBlock(&blockBuf, b); err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	hash := b.Hash()
	blockCache.Put(append([]byte{store.PrefixBlock}, hash.Bytes()...), blockBuf.Bytes())
	blockCache.Put(headerIndexKey(b.Header.Index), hash.Bytes())
	blockCache.Put(stateRootKey(b.Header.Index), stateRoot.Bytes())

	current := make([]byte, 36)
	copy(current[:32], hash.Bytes())
	current[32] = byte(b.Header.Index)
	current[33] = byte(b.Header.Index >> 8)
	current[34] = byte(b.Header.Index >> 16)
	current[35] = byte(b.Header.Index >> 24)
	blockCache.Put([]byte{store.PrefixCurrentBlock}, current)
	blockCache.Put([]byte{store.PrefixCurrentHeader}, current)
	return nil
}

func nameOf(c native.Contract) string {
	type named interface{ Name() string }
	if n, ok := c.(named); ok {
		return n.Name()
	}
	return fmt.Sprintf("contract(%d)", c.ID())
}
