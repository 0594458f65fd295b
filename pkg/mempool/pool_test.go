package mempool

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/neonium/neond/pkg/chain"
	"github.com/neonium/neond/pkg/util"
)

// stubVerifier is a minimal, configurable StateVerifier for pool tests —
// the pool's own admission logic is under test, not ledger witness
// verification (that has its own tests in pkg/ledger).
type stubVerifier struct {
	height     uint32
	persisted  map[util.UInt256]bool
	balances   map[util.UInt160]*big.Int
	witnessGas int64
	witnessErr error
}

func newStubVerifier() *stubVerifier {
	return &stubVerifier{persisted: map[util.UInt256]bool{}, balances: map[util.UInt160]*big.Int{}}
}

func (s *stubVerifier) Height() uint32 { return s.height }

func (s *stubVerifier) ContainsTransaction(h util.UInt256) bool { return s.persisted[h] }

func (s *stubVerifier) GasBalance(a util.UInt160) *big.Int {
	if b, ok := s.balances[a]; ok {
		return b
	}
	return big.NewInt(1_000_000_000_000)
}

func (s *stubVerifier) VerifyWitnesses(tx *chain.Transaction) (int64, error) {
	return s.witnessGas, s.witnessErr
}

func account(b byte) util.UInt160 {
	var a util.UInt160
	a[0] = b
	return a
}

func makeTx(sender util.UInt160, nonce uint32, netFee int64, attrs ...chain.Attribute) *chain.Transaction {
	return &chain.Transaction{
		Version:         0,
		Nonce:           nonce,
		SystemFee:       0,
		NetworkFee:      netFee,
		ValidUntilBlock: 1000,
		Signers:         []chain.Signer{{Account: sender, Scopes: chain.ScopeCalledByEntry}},
		Attributes:      attrs,
		Script:          []byte{0x40},
		Witnesses:       []chain.Witness{{InvocationScript: []byte{0x0c, 0x01}, VerificationScript: []byte{0x0c, 0x01}}},
	}
}

func newTestPool(capacity int) (*Pool, *stubVerifier) {
	v := newStubVerifier()
	p := NewPool(Config{Capacity: capacity, MaxBlockSystemFee: 1_000_000_000, UnverifiedDepth: capacity}, v, nil)
	return p, v
}

func TestPoolAddAndGet(t *testing.T) {
	p, _ := newTestPool(10)
	tx := makeTx(account(1), 1, 1000)
	if err := p.Add(tx); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if !p.Has(tx.Hash()) {
		t.Fatal("expected tx resident")
	}
	got, ok := p.Get(tx.Hash())
	if !ok || got != tx {
		t.Fatal("Get did not return the added transaction")
	}
	if p.Count() != 1 {
		t.Fatalf("Count = %d, want 1", p.Count())
	}
}

func TestPoolRejectsDuplicate(t *testing.T) {
	p, _ := newTestPool(10)
	tx := makeTx(account(1), 1, 1000)
	if err := p.Add(tx); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := p.Add(tx); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("Add duplicate: got %v, want ErrAlreadyExists", err)
	}
}

func TestPoolRejectsAlreadyPersisted(t *testing.T) {
	p, v := newTestPool(10)
	tx := makeTx(account(1), 1, 1000)
	v.persisted[tx.Hash()] = true
	if err := p.Add(tx); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("Add persisted: got %v, want ErrAlreadyExists", err)
	}
}

func TestPoolRejectsExpired(t *testing.T) {
	p, v := newTestPool(10)
	v.height = 2000
	tx := makeTx(account(1), 1, 1000)
	if err := p.Add(tx); !errors.Is(err, ErrValidation) {
		t.Fatalf("Add expired: got %v, want ErrValidation", err)
	}
}

func TestPoolRejectsInsufficientBalance(t *testing.T) {
	p, v := newTestPool(10)
	sender := account(1)
	v.balances[sender] = big.NewInt(0)
	tx := makeTx(sender, 1, 1000)
	if err := p.Add(tx); !errors.Is(err, ErrValidation) {
		t.Fatalf("Add insufficient balance: got %v, want ErrValidation", err)
	}
}

func TestPoolRejectsNetworkFeeBelowWitnessCost(t *testing.T) {
	p, v := newTestPool(10)
	v.witnessGas = 5000
	tx := makeTx(account(1), 1, 1000)
	if err := p.Add(tx); !errors.Is(err, ErrValidation) {
		t.Fatalf("Add underpriced witness: got %v, want ErrValidation", err)
	}
}

// TestPoolFeeOrdering verifies SortedVerified orders by
// (is_high_priority, network_fee_per_byte, hash descending).
func TestPoolFeeOrdering(t *testing.T) {
	p, _ := newTestPool(10)
	low := makeTx(account(1), 1, 100)
	mid := makeTx(account(2), 2, 500)
	high := makeTx(account(3), 3, 900)
	prio := makeTx(account(4), 4, 50, chain.Attribute{Type: chain.AttrHighPriority})

	for _, tx := range []*chain.Transaction{low, mid, high, prio} {
		if err := p.Add(tx); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	sorted := p.SortedVerified()
	if len(sorted) != 4 {
		t.Fatalf("len(sorted) = %d, want 4", len(sorted))
	}
	if sorted[0].Hash() != prio.Hash() {
		t.Fatalf("expected high-priority tx first, got %s", sorted[0].Hash())
	}
	rest := sorted[1:]
	if rest[0].Hash() != high.Hash() || rest[1].Hash() != mid.Hash() || rest[2].Hash() != low.Hash() {
		t.Fatalf("expected descending fee order after high-priority, got %v", rest)
	}
}

// TestPoolEvictsLowestFeeOnCapacity verifies a higher-fee arrival displaces
// the lowest-fee resident once the pool is full, and a lower-fee arrival is
// rejected with ErrFull.
func TestPoolEvictsLowestFeeOnCapacity(t *testing.T) {
	p, _ := newTestPool(2)
	low := makeTx(account(1), 1, 100)
	mid := makeTx(account(2), 2, 200)
	if err := p.Add(low); err != nil {
		t.Fatalf("Add low: %v", err)
	}
	if err := p.Add(mid); err != nil {
		t.Fatalf("Add mid: %v", err)
	}

	tooLow := makeTx(account(3), 3, 50)
	if err := p.Add(tooLow); !errors.Is(err, ErrFull) {
		t.Fatalf("Add tooLow: got %v, want ErrFull", err)
	}

	high := makeTx(account(4), 4, 900)
	if err := p.Add(high); err != nil {
		t.Fatalf("Add high: %v", err)
	}
	if p.Has(low.Hash()) {
		t.Fatal("expected lowest-fee resident to be evicted")
	}
	if !p.Has(mid.Hash()) || !p.Has(high.Hash()) {
		t.Fatal("expected mid and high to remain resident")
	}
}

// TestPoolConflictRejectsUnrelatedSigner verifies a tx declaring
// Conflicts(h) against a resident tx signed by a different account is
// rejected rather than admitted alongside it.
func TestPoolConflictRejectsUnrelatedSigner(t *testing.T) {
	p, _ := newTestPool(10)
	victim := makeTx(account(1), 1, 1000)
	if err := p.Add(victim); err != nil {
		t.Fatalf("Add victim: %v", err)
	}
	attacker := makeTx(account(2), 2, 2000, chain.Attribute{Type: chain.AttrConflicts, ConflictHash: victim.Hash()})
	if err := p.Add(attacker); !errors.Is(err, ErrConflict) {
		t.Fatalf("Add attacker: got %v, want ErrConflict", err)
	}
	if !p.Has(victim.Hash()) {
		t.Fatal("victim should remain resident")
	}
}

// TestPoolConflictReplacesSameSigner verifies a Conflicts-attribute tx
// signed by the same sender as its target displaces that target.
func TestPoolConflictReplacesSameSigner(t *testing.T) {
	p, _ := newTestPool(10)
	sender := account(1)
	original := makeTx(sender, 1, 1000)
	if err := p.Add(original); err != nil {
		t.Fatalf("Add original: %v", err)
	}
	replacement := makeTx(sender, 2, 2000, chain.Attribute{Type: chain.AttrConflicts, ConflictHash: original.Hash()})
	if err := p.Add(replacement); err != nil {
		t.Fatalf("Add replacement: %v", err)
	}
	if p.Has(original.Hash()) {
		t.Fatal("expected original to be displaced by same-signer replacement")
	}
	if !p.Has(replacement.Hash()) {
		t.Fatal("expected replacement resident")
	}
}

// TestPoolOnBlockPersistedRemovesAndRequeues verifies persisted
// transactions are dropped, unrelated residents are moved to the
// unverified bucket, and ReverifyUnverified brings them back.
func TestPoolOnBlockPersistedRemovesAndRequeues(t *testing.T) {
	p, v := newTestPool(10)
	persisted := makeTx(account(1), 1, 1000)
	survivor := makeTx(account(2), 2, 2000)
	if err := p.Add(persisted); err != nil {
		t.Fatalf("Add persisted: %v", err)
	}
	if err := p.Add(survivor); err != nil {
		t.Fatalf("Add survivor: %v", err)
	}

	block := &chain.Block{Transactions: []*chain.Transaction{persisted}}
	v.persisted[persisted.Hash()] = true
	p.OnBlockPersisted(block)

	if p.Count() != 0 {
		t.Fatalf("Count after persist = %d, want 0", p.Count())
	}
	if p.UnverifiedCount() != 1 {
		t.Fatalf("UnverifiedCount after persist = %d, want 1", p.UnverifiedCount())
	}

	moved := p.ReverifyUnverified(time.Second)
	if moved != 1 {
		t.Fatalf("ReverifyUnverified moved %d, want 1", moved)
	}
	if !p.Has(survivor.Hash()) {
		t.Fatal("expected survivor to be reverified back into the pool")
	}
}

// TestPoolOnBlockPersistedEvictsConflicts verifies a resident tx declaring
// Conflicts against a persisted tx it shares a signer with is evicted
// rather than requeued for reverification.
func TestPoolOnBlockPersistedEvictsConflicts(t *testing.T) {
	p, v := newTestPool(10)
	sender := account(1)
	persisted := makeTx(sender, 1, 1000)
	dependent := makeTx(sender, 2, 900, chain.Attribute{Type: chain.AttrConflicts, ConflictHash: persisted.Hash()})

	// dependent is admitted while persisted is still in flight elsewhere on
	// the network (never resident in this node's pool); once persisted
	// lands in a block, dependent must be evicted rather than requeued.
	if err := p.Add(dependent); err != nil {
		t.Fatalf("Add dependent: %v", err)
	}

	block := &chain.Block{Transactions: []*chain.Transaction{persisted}}
	v.persisted[persisted.Hash()] = true
	p.OnBlockPersisted(block)

	if p.Has(dependent.Hash()) || p.UnverifiedCount() != 0 {
		t.Fatal("expected dependent tx to be evicted, not requeued")
	}
}

func TestPoolRemove(t *testing.T) {
	p, _ := newTestPool(10)
	tx := makeTx(account(1), 1, 1000)
	if err := p.Add(tx); err != nil {
		t.Fatalf("Add: %v", err)
	}
	p.Remove(tx.Hash())
	if p.Has(tx.Hash()) {
		t.Fatal("expected tx removed")
	}
}
