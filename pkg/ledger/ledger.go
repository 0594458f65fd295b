package ledger

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/neonium/neond/pkg/chain"
	"github.com/neonium/neond/pkg/engine"
	"github.com/neonium/neond/pkg/mpt"
	"github.com/neonium/neond/pkg/native"
	"github.com/neonium/neond/pkg/store"
	"github.com/neonium/neond/pkg/util"
)

// mptNodeCacheSize bounds the MPT's LRU node cache; sized generously since
// the trie is rebuilt from Storage(*) scan at startup rather than persisted
// node-by-node (pkg/mpt carries no store-backed persistence of its own).
const mptNodeCacheSize = 1 << 16

// Ledger is the single actor owning the write cache, header backlog, and
// MPT root; no other task mutates any of the three. All per-block
// bookkeeping flows through a single store.Cache commit plus the MPT root
// recomputation.
type Ledger struct {
	mu sync.Mutex

	store    store.KVStore
	settings *ProtocolSettings
	trie     *mpt.Trie
	headers  *HeaderCache
	log      *logrus.Logger

	height      uint32
	currentHash util.UInt256

	contractMgmt *native.ContractManagement
	ledgerC      *native.LedgerContract
	policy       *native.PolicyContract
	neo          *native.NeoToken
	gas          *native.GasToken
	roles        *native.RoleManagement
	oracle       *native.OracleContract
	notary       *native.NotaryContract
	stdlib       *native.StdLib
	cryptolib    *native.CryptoLib
}

// NewLedger constructs a Ledger over kv, wiring every native contract, and
// either resumes at the persisted CurrentBlock height or constructs and
// persists the genesis block.
func NewLedger(settings *ProtocolSettings, kv store.KVStore, log *logrus.Logger) (*Ledger, error) {
	if log == nil {
		log = logrus.New()
	}
	trie, err := mpt.New(mptNodeCacheSize)
	if err != nil {
		return nil, fmt.Errorf("ledger: create trie: %w", err)
	}
	l := &Ledger{
		store:    kv,
		settings: settings,
		trie:     trie,
		headers:  NewHeaderCache(int(settings.MaxTraceableBlocks)),
		log:      log,
	}
	l.wireNativeContracts(settings)

	snap := kv.Snapshot()
	cur, err := snap.Get([]byte{store.PrefixCurrentBlock})
	switch {
	case err == store.ErrKeyNotFound:
		if err := l.persistGenesis(); err != nil {
			return nil, fmt.Errorf("ledger: persist genesis: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	default:
		if len(cur) < 36 {
			return nil, fmt.Errorf("%w: malformed CurrentBlock record", ErrStorage)
		}
		hash, herr := util.Uint256FromBytes(cur[:32])
		if herr != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorage, herr)
		}
		l.currentHash = hash
		l.height = uint32(cur[32]) | uint32(cur[33])<<8 | uint32(cur[34])<<16 | uint32(cur[35])<<24
		if err := l.rebuildTrie(); err != nil {
			return nil, fmt.Errorf("ledger: rebuild trie: %w", err)
		}
		l.log.WithFields(logrus.Fields{"height": l.height}).Info("ledger resumed from existing store")
	}
	return l, nil
}

// wireNativeContracts constructs every native contract in the order
// pkg/native.All() later replays on_persist/post_persist in, resolving the
// cross-contract constructor dependencies (Policy<->NeoToken,
// RoleManagement<->NeoToken, Oracle<->GasToken/RoleManagement) the same way
// pkg/native's own tests do (see native_test.go's engineWithSigner setup).
func (l *Ledger) wireNativeContracts(settings *ProtocolSettings) {
	l.contractMgmt = native.NewContractManagement()
	l.ledgerC = native.NewLedgerContract()
	l.neo = native.NewNeoToken(settings.ValidatorsCount, settings.CommitteeSize)
	l.gas = native.NewGasToken()
	l.policy = native.NewPolicyContract()
	l.policy.SetCommittee(l.neo)
	l.roles = native.NewRoleManagement()
	l.roles.SetCommittee(l.neo)
	l.oracle = native.NewOracleContract(l.gas)
	l.oracle.SetRoles(l.roles)
	l.notary = native.NewNotaryContract(l.gas)
	l.stdlib = native.NewStdLib()
	l.cryptolib = native.NewCryptoLib()
}

// Height returns the current persisted block index.
func (l *Ledger) Height() uint32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.height
}

// CurrentHash returns the current persisted block hash.
func (l *Ledger) CurrentHash() util.UInt256 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.currentHash
}

// StateRoot returns the MPT root committed at the current height.
func (l *Ledger) StateRoot() util.UInt256 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.trie.Root()
}

// HeaderCache exposes the backlog for the P2P/consensus layers to push
// received headers into ahead of their matching blocks.
func (l *Ledger) HeaderCache() *HeaderCache { return l.headers }

// Settings returns the process-wide protocol configuration.
func (l *Ledger) Settings() *ProtocolSettings { return l.settings }

// ContainsBlock reports whether hash is already persisted, satisfying
// pkg/p2p.BlockchainProvider's contains_block.
func (l *Ledger) ContainsBlock(hash util.UInt256) bool {
	_, err := l.store.Get(append([]byte{store.PrefixBlock}, hash.Bytes()...))
	return err == nil
}

// ContainsTransaction reports whether hash is already persisted, satisfying
// pkg/p2p.BlockchainProvider's contains_transaction.
func (l *Ledger) ContainsTransaction(hash util.UInt256) bool {
	_, err := l.store.Get(append([]byte{store.PrefixTransaction}, hash.Bytes()...))
	return err == nil
}

// GetBlock reads a persisted block by hash.
func (l *Ledger) GetBlock(hash util.UInt256) (*chain.Block, error) {
	v, err := l.store.Get(append([]byte{store.PrefixBlock}, hash.Bytes()...))
	if err == store.ErrKeyNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return chain.DecodeBlock(bytes.NewReader(v))
}

// GetHeaderByHeight reads a persisted block's header by height, via the
// HeaderIndex(height) -> hash -> Block(hash) indirection.
func (l *Ledger) GetHeaderByHeight(height uint32) (*chain.Header, error) {
	hash, err := l.hashAtHeight(height)
	if err != nil {
		return nil, err
	}
	blk, err := l.GetBlock(hash)
	if err != nil {
		return nil, err
	}
	return &blk.Header, nil
}

func (l *Ledger) hashAtHeight(height uint32) (util.UInt256, error) {
	key := headerIndexKey(height)
	v, err := l.store.Get(key)
	if err == store.ErrKeyNotFound {
		return util.UInt256{}, ErrNotFound
	}
	if err != nil {
		return util.UInt256{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return util.Uint256FromBytes(v)
}

// GetTransaction reads a persisted transaction by hash, plus the block
// index it was recorded in.
func (l *Ledger) GetTransaction(hash util.UInt256) (*chain.Transaction, uint32, error) {
	v, err := l.store.Get(append([]byte{store.PrefixTransaction}, hash.Bytes()...))
	if err == store.ErrKeyNotFound {
		return nil, 0, ErrNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if len(v) < 4 {
		return nil, 0, fmt.Errorf("%w: malformed transaction record", ErrStorage)
	}
	blockIndex := uint32(v[0]) | uint32(v[1])<<8 | uint32(v[2])<<16 | uint32(v[3])<<24
	tx, err := chain.DecodeTransaction(bytes.NewReader(v[4:]))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return tx, blockIndex, nil
}

func headerIndexKey(height uint32) []byte {
	return []byte{store.PrefixHeaderIndex, byte(height), byte(height >> 8), byte(height >> 16), byte(height >> 24)}
}

func stateRootKey(height uint32) []byte {
	return []byte{store.PrefixStateRoot, byte(height), byte(height >> 8), byte(height >> 16), byte(height >> 24)}
}

// rebuildTrie repopulates the in-memory MPT from every Storage(*)-prefixed
// key in the store, since pkg/mpt keeps no on-disk node persistence of its
// own (an LRU node cache only) — a resumed process must reconstruct trie
// structure from the authoritative key/value data rather than from any
// serialized trie representation.
func (l *Ledger) rebuildTrie() error {
	it := l.store.Seek([]byte{store.PrefixStorage}, store.Forward)
	defer it.Close()
	for it.Next() {
		key := append([]byte(nil), it.Key()...)
		val := append([]byte(nil), it.Value()...)
		l.trie.Put(key, val)
	}
	return it.Error()
}

// engineFor builds an ApplicationEngine sharing cache, wiring the
// ContractManagement resolver the chicken-and-egg way
// pkg/native/contract_management.go documents: the resolver needs a live
// engine reference to read the cache, so it is bound after construction.
func (l *Ledger) engineFor(trigger engine.Trigger, container engine.ScriptContainer, cache *store.Cache, gasLimit int64) *engine.ApplicationEngine {
	e := engine.New(trigger, container, cache, gasLimit, l.policy, nil)
	e.Resolver = l.contractMgmt.ResolveContract(e)
	e.IDs = l.contractMgmt.ContractIDResolver(e)
	return e
}
