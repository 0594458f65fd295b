package ledger

import (
	"crypto/ecdsa"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/neonium/neond/pkg/chain"
	"github.com/neonium/neond/pkg/store"
	"github.com/neonium/neond/pkg/util"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	return log
}

// newTestLedger bootstraps a single-validator chain over a fresh MemStore,
// returning the validator key alongside so tests can endorse blocks.
func newTestLedger(t *testing.T) (*Ledger, store.KVStore, *ecdsa.PrivateKey, *ProtocolSettings) {
	t.Helper()
	priv, err := util.GenerateP256Key()
	if err != nil {
		t.Fatal(err)
	}
	settings := DefaultSettings()
	settings.StandbyCommittee = [][]byte{util.CompressPubKey(&priv.PublicKey)}
	settings.ValidatorsCount = 1
	settings.CommitteeSize = 1

	kv := store.NewMemStore()
	l, err := NewLedger(settings, kv, quietLogger())
	if err != nil {
		t.Fatalf("NewLedger: %v", err)
	}
	return l, kv, priv, settings
}

// endorsedBlock builds an empty block at the current tip + 1 carrying a
// valid 1-of-1 committee witness from priv.
func endorsedBlock(t *testing.T, l *Ledger, priv *ecdsa.PrivateKey) *chain.Block {
	t.Helper()
	pub := util.CompressPubKey(&priv.PublicKey)
	prev, err := l.GetHeaderByHeight(l.Height())
	if err != nil {
		t.Fatalf("load tip header: %v", err)
	}
	nextConsensus, err := l.Settings().GenesisNextConsensus()
	if err != nil {
		t.Fatal(err)
	}
	header := chain.Header{
		Version:       0,
		PrevHash:      prev.Hash(),
		MerkleRoot:    chain.MerkleRoot(nil),
		Timestamp:     prev.Timestamp + 1000,
		Index:         l.Height() + 1,
		PrimaryIndex:  0,
		NextConsensus: nextConsensus,
	}
	sig, err := util.SignData(priv, header.Hash().Bytes())
	if err != nil {
		t.Fatal(err)
	}
	verification, err := util.BuildMultiSigScript(1, [][]byte{pub})
	if err != nil {
		t.Fatal(err)
	}
	invocation, err := util.BuildMultiSigInvocation(1, [][]byte{pub}, map[string][]byte{string(pub): sig})
	if err != nil {
		t.Fatal(err)
	}
	header.Witness = chain.Witness{InvocationScript: invocation, VerificationScript: verification}
	return &chain.Block{Header: header}
}

func TestGenesisPersists(t *testing.T) {
	l, _, _, _ := newTestLedger(t)
	if l.Height() != 0 {
		t.Fatalf("fresh chain height = %d, want 0", l.Height())
	}
	if l.CurrentHash() == (util.UInt256{}) {
		t.Fatal("genesis hash must not be zero")
	}
	genesis, err := l.GetBlock(l.CurrentHash())
	if err != nil {
		t.Fatalf("GetBlock(genesis): %v", err)
	}
	if genesis.Header.Index != 0 || genesis.Header.PrevHash != (util.UInt256{}) {
		t.Fatalf("malformed genesis header: %+v", genesis.Header)
	}
	if !l.ContainsBlock(l.CurrentHash()) {
		t.Fatal("ContainsBlock must see genesis")
	}
}

func TestGenesisSeedsCommitteeFunds(t *testing.T) {
	l, _, _, settings := newTestLedger(t)
	// With a single standby key the committee account and next_consensus
	// coincide (both 1-of-1 over the same key).
	committee, err := settings.GenesisNextConsensus()
	if err != nil {
		t.Fatal(err)
	}
	got := l.GasBalance(committee)
	if got.Uint64() != settings.InitialGasDistribution {
		t.Fatalf("committee GAS after genesis = %s, want %d", got, settings.InitialGasDistribution)
	}
}

func TestLedgerResumesFromExistingStore(t *testing.T) {
	l, kv, priv, settings := newTestLedger(t)
	if err := l.AddBlock(endorsedBlock(t, l, priv)); err != nil {
		t.Fatalf("AddBlock: %v", err)
	}
	wantHeight, wantHash, wantRoot := l.Height(), l.CurrentHash(), l.StateRoot()

	resumed, err := NewLedger(settings, kv, quietLogger())
	if err != nil {
		t.Fatalf("NewLedger(resume): %v", err)
	}
	if resumed.Height() != wantHeight {
		t.Fatalf("resumed height = %d, want %d", resumed.Height(), wantHeight)
	}
	if resumed.CurrentHash() != wantHash {
		t.Fatal("resumed tip hash diverges")
	}
	if resumed.StateRoot() != wantRoot {
		t.Fatal("rebuilt MPT root diverges from the committed one")
	}
}

func TestAddBlockAdvancesChain(t *testing.T) {
	l, _, priv, _ := newTestLedger(t)
	b := endorsedBlock(t, l, priv)
	if err := l.AddBlock(b); err != nil {
		t.Fatalf("AddBlock: %v", err)
	}
	if l.Height() != 1 {
		t.Fatalf("height = %d, want 1", l.Height())
	}
	if l.CurrentHash() != b.Hash() {
		t.Fatal("tip hash must be the persisted block's")
	}
	header, err := l.GetHeaderByHeight(1)
	if err != nil {
		t.Fatalf("GetHeaderByHeight(1): %v", err)
	}
	if header.Hash() != b.Hash() {
		t.Fatal("HeaderIndex(1) resolves to a different block")
	}
}

func TestAddBlockRejectsBadWitness(t *testing.T) {
	l, _, priv, _ := newTestLedger(t)
	intruder, err := util.GenerateP256Key()
	if err != nil {
		t.Fatal(err)
	}
	b := endorsedBlock(t, l, priv)
	// Re-sign with a key outside the committee; the verification script
	// still names the committee key, so CheckMultisig must fail.
	sig, err := util.SignData(intruder, b.Header.Hash().Bytes())
	if err != nil {
		t.Fatal(err)
	}
	pub := util.CompressPubKey(&priv.PublicKey)
	b.Header.Witness.InvocationScript, err = util.BuildMultiSigInvocation(1, [][]byte{pub}, map[string][]byte{string(pub): sig})
	if err != nil {
		t.Fatal(err)
	}
	if err := l.AddBlock(b); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for forged witness, got %v", err)
	}
	if l.Height() != 0 {
		t.Fatal("rejected block must not advance the chain")
	}
}

func TestAddBlockRejectsDiscontinuity(t *testing.T) {
	l, _, priv, _ := newTestLedger(t)
	b := endorsedBlock(t, l, priv)
	b.Header.Index = 5
	if err := l.AddBlock(b); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for index gap, got %v", err)
	}

	stale := endorsedBlock(t, l, priv)
	stale.Header.Timestamp = 0 // not past genesis's timestamp
	if err := l.AddBlock(stale); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for stale timestamp, got %v", err)
	}
}
