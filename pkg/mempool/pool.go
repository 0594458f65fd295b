// Package mempool implements the fee-prioritized transaction pool:
// admission against a strict capacity, conflict-attribute bookkeeping, and
// block-persist reverification. A flat mutex-guarded map at its core,
// extended with the indexed structure (fee-sorted iteration, sender index,
// conflict index, unverified bucket) admission and eviction need.
package mempool

import (
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/neonium/neond/pkg/chain"
	"github.com/neonium/neond/pkg/util"
)

// entry is one pool-resident transaction plus its precomputed sort keys.
type entry struct {
	tx           *chain.Transaction
	feePerByte   int64
	highPriority bool
}

func newEntry(tx *chain.Transaction) *entry {
	size := tx.Size()
	if size == 0 {
		size = 1
	}
	e := &entry{tx: tx, feePerByte: tx.NetworkFee / int64(size)}
	for _, a := range tx.Attributes {
		if a.Type == chain.AttrHighPriority {
			e.highPriority = true
			break
		}
	}
	return e
}

// Config bounds pool capacity and admission rules.
type Config struct {
	// Capacity is MemoryPoolMaxTransactions, the verified-set hard cap.
	Capacity int
	// MaxBlockSystemFee mirrors PolicyContract's dBFT acceptance policy:
	// a single transaction's system_fee can never exceed what a block
	// could ever accommodate.
	MaxBlockSystemFee int64
	// UnverifiedDepth bounds the unverified bucket retained across block
	// persists; entries beyond it are dropped (lowest fee first), per
	// lowest fee first.
	UnverifiedDepth int
}

// Pool is the single mempool actor: verified/unverified sets and fee
// indices, mutated only under its own lock.
type Pool struct {
	mu       sync.Mutex
	cfg      Config
	verifier StateVerifier
	log      *logrus.Logger

	verified      map[util.UInt256]*entry
	unverified    map[util.UInt256]*entry
	bySenderNonce map[util.UInt160]map[uint32]util.UInt256
	// conflictIndex maps a conflict target hash to the set of resident
	// hashes that declared Conflicts(target). It is maintained on add and
	// remove only; conflict eviction scans the verified and unverified
	// maps rather than reading it.
	conflictIndex map[util.UInt256]map[util.UInt256]struct{}
}

// NewPool constructs an empty pool. verifier supplies the state-dependent
// checks; log defaults to a fresh logrus.Logger the way every
// other component in this repo does when none is supplied.
func NewPool(cfg Config, verifier StateVerifier, log *logrus.Logger) *Pool {
	if log == nil {
		log = logrus.New()
	}
	if cfg.UnverifiedDepth <= 0 {
		cfg.UnverifiedDepth = cfg.Capacity
	}
	return &Pool{
		cfg:           cfg,
		verifier:      verifier,
		log:           log,
		verified:      make(map[util.UInt256]*entry),
		unverified:    make(map[util.UInt256]*entry),
		bySenderNonce: make(map[util.UInt160]map[uint32]util.UInt256),
		conflictIndex: make(map[util.UInt256]map[util.UInt256]struct{}),
	}
}

// Count returns the number of verified, pool-resident transactions.
func (p *Pool) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.verified)
}

// UnverifiedCount returns the number of transactions awaiting reverification.
func (p *Pool) UnverifiedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.unverified)
}

// Has reports whether hash is a verified, pool-resident transaction.
func (p *Pool) Has(hash util.UInt256) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.verified[hash]
	return ok
}

// Get returns the verified transaction for hash, if resident.
func (p *Pool) Get(hash util.UInt256) (*chain.Transaction, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.verified[hash]
	if !ok {
		return nil, false
	}
	return e.tx, true
}

// Add runs state-independent and state-dependent verification
// and, if tx passes, admits it — evicting the lowest-fee resident if the
// pool is at capacity and tx outbids it.
func (p *Pool) Add(tx *chain.Transaction) error {
	if err := tx.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	hash := tx.Hash()

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.verified[hash]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, hash)
	}
	if p.verifier.ContainsTransaction(hash) {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, hash)
	}
	if err := p.verifyStateDependent(tx); err != nil {
		return err
	}
	if err := p.checkConflicts(tx); err != nil {
		return err
	}
	if tx.SystemFee > p.cfg.MaxBlockSystemFee {
		return fmt.Errorf("%w: system fee %d exceeds block limit %d", ErrValidation, tx.SystemFee, p.cfg.MaxBlockSystemFee)
	}

	e := newEntry(tx)
	if err := p.makeRoom(e); err != nil {
		return err
	}
	p.insertLocked(e)
	p.log.WithFields(logrus.Fields{"hash": hash.String(), "fee_per_byte": e.feePerByte}).Debug("mempool: admitted transaction")
	return nil
}

// verifyStateDependent checks sender GAS balance sufficiency,
// "valid signatures under scope", and "valid_until_block > current" rules.
func (p *Pool) verifyStateDependent(tx *chain.Transaction) error {
	height := p.verifier.Height()
	if tx.ValidUntilBlock <= height {
		return fmt.Errorf("%w: transaction expired at height %d", ErrValidation, height)
	}
	total := new(big.Int).Add(big.NewInt(tx.SystemFee), big.NewInt(tx.NetworkFee))
	if p.verifier.GasBalance(tx.Sender()).Cmp(total) < 0 {
		return fmt.Errorf("%w: insufficient GAS balance for fees", ErrValidation)
	}
	witnessGas, err := p.verifier.VerifyWitnesses(tx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if tx.NetworkFee < witnessGas {
		return fmt.Errorf("%w: network fee too low to cover witness verification", ErrValidation)
	}
	return nil
}

// checkConflicts enforces the Conflicts-attribute consistency rule: a tx
// declaring Conflicts(h) may only coexist with h's author when
// signed by that same sender — otherwise its admission is rejected rather
// than letting two mutually-conflicting, differently-signed transactions
// sit in the pool together.
func (p *Pool) checkConflicts(tx *chain.Transaction) error {
	for _, attr := range tx.Attributes {
		if attr.Type != chain.AttrConflicts {
			continue
		}
		if existing, ok := p.verified[attr.ConflictHash]; ok && !sharesSigner(tx, existing.tx) {
			return fmt.Errorf("%w: conflicts with %s but shares no signer", ErrConflict, attr.ConflictHash)
		}
	}
	return nil
}

func sharesSigner(a, b *chain.Transaction) bool {
	for _, sa := range a.Signers {
		for _, sb := range b.Signers {
			if sa.Account == sb.Account {
				return true
			}
		}
	}
	return false
}

// makeRoom evicts the single lowest-fee resident when the pool is full and
// e outbids it. Returns
// ErrFull if e cannot be admitted without evicting a transaction at or
// above its own fee rate.
func (p *Pool) makeRoom(e *entry) error {
	if len(p.verified) < p.cfg.Capacity {
		return nil
	}
	var lowestHash util.UInt256
	var lowest *entry
	for h, cand := range p.verified {
		if lowest == nil || cand.feePerByte < lowest.feePerByte {
			lowest, lowestHash = cand, h
		}
	}
	if lowest == nil || e.feePerByte <= lowest.feePerByte {
		return fmt.Errorf("%w", ErrFull)
	}
	p.removeLocked(lowestHash)
	return nil
}

// insertLocked must be called with p.mu held.
func (p *Pool) insertLocked(e *entry) {
	hash := e.tx.Hash()
	p.verified[hash] = e
	sender := e.tx.Sender()
	if p.bySenderNonce[sender] == nil {
		p.bySenderNonce[sender] = make(map[uint32]util.UInt256)
	}
	p.bySenderNonce[sender][e.tx.Nonce] = hash
	for _, attr := range e.tx.Attributes {
		if attr.Type != chain.AttrConflicts {
			continue
		}
		if p.conflictIndex[attr.ConflictHash] == nil {
			p.conflictIndex[attr.ConflictHash] = make(map[util.UInt256]struct{})
		}
		p.conflictIndex[attr.ConflictHash][hash] = struct{}{}
		// The tx this one conflicts with is no longer admissible alongside
		// it once both share the same signer (checkConflicts already
		// proved that); displace it now that e has been chosen to land.
		if _, ok := p.verified[attr.ConflictHash]; ok {
			p.removeLocked(attr.ConflictHash)
		}
	}
}

// removeLocked must be called with p.mu held.
func (p *Pool) removeLocked(hash util.UInt256) {
	e, ok := p.verified[hash]
	if !ok {
		return
	}
	delete(p.verified, hash)
	if byNonce, ok := p.bySenderNonce[e.tx.Sender()]; ok {
		delete(byNonce, e.tx.Nonce)
		if len(byNonce) == 0 {
			delete(p.bySenderNonce, e.tx.Sender())
		}
	}
	for _, attr := range e.tx.Attributes {
		if attr.Type != chain.AttrConflicts {
			continue
		}
		if deps, ok := p.conflictIndex[attr.ConflictHash]; ok {
			delete(deps, hash)
			if len(deps) == 0 {
				delete(p.conflictIndex, attr.ConflictHash)
			}
		}
	}
	delete(p.conflictIndex, hash)
}

// Remove drops hash from both the verified and unverified sets, e.g. when
// the P2P layer reports the sending peer disconnected and asked to retract.
func (p *Pool) Remove(hash util.UInt256) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removeLocked(hash)
	delete(p.unverified, hash)
}

// SortedVerified returns every verified transaction ordered by descending
// priority: (is_high_priority_attribute, network_fee_per_byte,
// hash descending).
func (p *Pool) SortedVerified() []*chain.Transaction {
	p.mu.Lock()
	defer p.mu.Unlock()
	entries := make([]*entry, 0, len(p.verified))
	for _, e := range p.verified {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.highPriority != b.highPriority {
			return a.highPriority
		}
		if a.feePerByte != b.feePerByte {
			return a.feePerByte > b.feePerByte
		}
		return b.tx.Hash().Less(a.tx.Hash())
	})
	out := make([]*chain.Transaction, len(entries))
	for i, e := range entries {
		out[i] = e.tx
	}
	return out
}

// OnBlockPersisted applies a persisted block's effects to the pool: every
// persisted transaction is removed; pool transactions conflicting with a
// persisted transaction (subject to the shared-signer rule) are removed;
// the remainder is moved to the unverified bucket for later
// reverification via ReverifyUnverified.
func (p *Pool) OnBlockPersisted(b *chain.Block) {
	p.mu.Lock()
	defer p.mu.Unlock()

	persisted := make(map[util.UInt256]*chain.Transaction, len(b.Transactions))
	for _, tx := range b.Transactions {
		persisted[tx.Hash()] = tx
	}
	for h := range persisted {
		p.removeLocked(h)
		delete(p.unverified, h)
	}
	p.evictConflictsLocked(persisted)

	for h, e := range p.verified {
		p.unverified[h] = e
	}
	p.verified = make(map[util.UInt256]*entry)
	p.bySenderNonce = make(map[util.UInt160]map[uint32]util.UInt256)
	p.conflictIndex = make(map[util.UInt256]map[util.UInt256]struct{})

	p.pruneUnverifiedLocked()
}

// evictConflictsLocked removes every pool-resident transaction (verified or
// unverified) that Conflicts any persisted transaction, or is the target of
// a persisted transaction's Conflicts attribute — in both cases only when
// the two share a signer.
func (p *Pool) evictConflictsLocked(persisted map[util.UInt256]*chain.Transaction) {
	victims := map[util.UInt256]bool{}
	scan := func(pool map[util.UInt256]*entry) {
		for h, e := range pool {
			for _, attr := range e.tx.Attributes {
				if attr.Type != chain.AttrConflicts {
					continue
				}
				if pt, ok := persisted[attr.ConflictHash]; ok && sharesSigner(e.tx, pt) {
					victims[h] = true
				}
			}
		}
	}
	scan(p.verified)
	scan(p.unverified)
	for _, pt := range persisted {
		for _, attr := range pt.Attributes {
			if attr.Type != chain.AttrConflicts {
				continue
			}
			if e, ok := p.verified[attr.ConflictHash]; ok && sharesSigner(pt, e.tx) {
				victims[attr.ConflictHash] = true
			}
			if e, ok := p.unverified[attr.ConflictHash]; ok && sharesSigner(pt, e.tx) {
				victims[attr.ConflictHash] = true
			}
		}
	}
	for h := range victims {
		p.removeLocked(h)
		delete(p.unverified, h)
	}
}

// pruneUnverifiedLocked drops the lowest-fee unverified entries beyond
// UnverifiedDepth.
func (p *Pool) pruneUnverifiedLocked() {
	if len(p.unverified) <= p.cfg.UnverifiedDepth {
		return
	}
	entries := make([]*entry, 0, len(p.unverified))
	for _, e := range p.unverified {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].feePerByte > entries[j].feePerByte })
	for _, e := range entries[p.cfg.UnverifiedDepth:] {
		delete(p.unverified, e.tx.Hash())
	}
}

// ReverifyUnverified re-verifies entries from the unverified bucket back
// into the verified set, bounded by budget. Entries that fail
// reverification are dropped rather than re-queued.
func (p *Pool) ReverifyUnverified(budget time.Duration) int {
	deadline := time.Now().Add(budget)
	p.mu.Lock()
	defer p.mu.Unlock()

	moved := 0
	for h, e := range p.unverified {
		if time.Now().After(deadline) {
			break
		}
		delete(p.unverified, h)
		if err := p.verifyStateDependent(e.tx); err != nil {
			continue
		}
		if err := p.checkConflicts(e.tx); err != nil {
			continue
		}
		if err := p.makeRoom(e); err != nil {
			continue
		}
		p.insertLocked(e)
		moved++
	}
	return moved
}
