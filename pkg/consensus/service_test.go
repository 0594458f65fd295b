package consensus

import (
	"bytes"
	"crypto/ecdsa"
	"errors"
	"sort"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/neonium/neond/pkg/chain"
	"github.com/neonium/neond/pkg/p2p"
	"github.com/neonium/neond/pkg/util"
)

var errFakeHeaderNotFound = errors.New("consensus: fake ledger has no header at that height")

// fakeLedger is an in-memory LedgerProvider stand-in: just enough to drive a
// round to completion and inspect what Service would have persisted,
// without pulling in the real pkg/ledger (which validates witnesses,
// applies natives, and needs a store.KVStore of its own — orthogonal to
// what these tests are checking).
type fakeLedger struct {
	validators [][]byte
	headers    map[uint32]*chain.Header
	height     uint32
}

func newFakeLedger(validators [][]byte) *fakeLedger {
	genesis := &chain.Header{Index: 0, Timestamp: 1000}
	return &fakeLedger{
		validators: validators,
		headers:    map[uint32]*chain.Header{0: genesis},
	}
}

func (l *fakeLedger) Height() uint32            { return l.height }
func (l *fakeLedger) CurrentHash() util.UInt256 { return l.headers[l.height].Hash() }
func (l *fakeLedger) Validators() [][]byte      { return l.validators }

func (l *fakeLedger) GetHeaderByHeight(h uint32) (*chain.Header, error) {
	hdr, ok := l.headers[h]
	if !ok {
		return nil, errFakeHeaderNotFound
	}
	return hdr, nil
}

func (l *fakeLedger) AddBlock(b *chain.Block) error {
	l.headers[b.Header.Index] = &b.Header
	l.height = b.Header.Index
	return nil
}

// fakePool is a TxProvider with no pending transactions: these tests exercise
// the round-agreement state machine, not mempool selection (covered in
// pkg/mempool's own tests).
type fakePool struct{}

func (fakePool) SortedVerified() []*chain.Transaction        { return nil }
func (fakePool) Get(util.UInt256) (*chain.Transaction, bool) { return nil, false }

// fakePeers delivers a broadcast straight to every other validator's
// HandleConsensusPayload, standing in for a real p2p.Node so a round can be
// driven synchronously inside a test.
type fakePeers struct {
	self int
	all  []*Service
}

func (f *fakePeers) ConnectedCount() int { return len(f.all) - 1 }

func (f *fakePeers) Broadcast(msg p2p.Message) error {
	payload, err := chain.DecodeExtensiblePayload(bytes.NewReader(msg.Data))
	if err != nil {
		return err
	}
	for j, s := range f.all {
		if j == f.self {
			continue
		}
		s.HandleConsensusPayload(p2p.PeerID("validator"), payload)
	}
	return nil
}

func (f *fakePeers) BroadcastExcept(msg p2p.Message, except []p2p.PeerID) error {
	return f.Broadcast(msg)
}
func (f *fakePeers) SendTo(p2p.PeerID, p2p.Message) error { return nil }
func (f *fakePeers) OnConnect(p2p.ConnectHandler)         {}
func (f *fakePeers) OnDisconnect(p2p.DisconnectHandler)   {}

// drain runs every service's pending inbound queue to quiescence, the
// synchronous stand-in for Service.run's goroutine these tests use so round
// progress is deterministic instead of timing-dependent.
func drain(t *testing.T, services []*Service) {
	t.Helper()
	for round := 0; round < 64; round++ {
		progressed := false
		for _, s := range services {
			for {
				select {
				case m := <-s.msgs:
					s.mu.Lock()
					s.dispatch(m)
					s.mu.Unlock()
					progressed = true
					continue
				default:
				}
				break
			}
		}
		if !progressed {
			return
		}
	}
	t.Fatalf("drain: round pipeline did not quiesce")
}

func newFourValidatorNetwork(t *testing.T) ([]*Service, *fakeLedger) {
	t.Helper()
	const n = 4
	keys := make([]*ecdsa.PrivateKey, n)
	validators := make([][]byte, n)
	for i := 0; i < n; i++ {
		priv, err := util.GenerateP256Key()
		if err != nil {
			t.Fatalf("generate key %d: %v", i, err)
		}
		keys[i] = priv
		validators[i] = util.CompressPubKey(&priv.PublicKey)
	}

	ledger := newFakeLedger(validators)
	services := make([]*Service, n)
	for i := 0; i < n; i++ {
		log := logrus.New()
		log.SetLevel(logrus.PanicLevel)
		svc, err := NewService(Config{PrivateKey: keys[i]}, ledger, fakePool{}, nil, nil, log)
		if err != nil {
			t.Fatalf("new service %d: %v", i, err)
		}
		services[i] = svc
	}
	for i, s := range services {
		s.peers = &fakePeers{self: i, all: services}
	}
	return services, ledger
}

func TestFourValidatorHappyPathReachesCommit(t *testing.T) {
	services, ledger := newFourValidatorNetwork(t)

	for _, s := range services {
		s.mu.Lock()
		s.beginRoundLocked()
		s.mu.Unlock()
	}
	drain(t, services)

	if ledger.Height() != 1 {
		t.Fatalf("ledger height = %d, want 1 (one block agreed)", ledger.Height())
	}
	hdr := ledger.headers[1]
	if hdr == nil {
		t.Fatalf("no header persisted at height 1")
	}
	if len(hdr.Witness.VerificationScript) == 0 || len(hdr.Witness.InvocationScript) == 0 {
		t.Fatalf("persisted block has an empty witness")
	}

	m := len(services) - (len(services)-1)/3
	sigs := splitPushedSignatures(hdr.Witness.InvocationScript, m)
	if len(sigs) != m {
		t.Fatalf("invocation script carries %d signatures, want %d", len(sigs), m)
	}
	if !util.CheckMultiSig(util.CurveSecp256r1, servicePubKeys(services), hdr.Hash().Bytes(), sigs, m) {
		t.Fatalf("persisted block witness does not satisfy the m-of-n multisig it claims")
	}
}

// ctxPrimaryIndexForTest computes the primary index for the upcoming round
// (view 0 at the ledger's next block index), the same formula
// beginRoundLocked uses to build its roundState, but without requiring a
// round to have started yet.
func (s *Service) ctxPrimaryIndexForTest() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	validators := s.ledger.Validators()
	n := len(validators)
	if n == 0 {
		return 0
	}
	nextIndex := s.ledger.Height() + 1
	idx := int(nextIndex) % n
	if idx < 0 {
		idx += n
	}
	return idx
}

// TestViewChangeOnStallElectsNextPrimary simulates scenario 7: the primary
// for view 0 is unreachable (its broadcasts are dropped), so every backup
// times out and the network must change view before it can commit a block.
func TestViewChangeOnStallElectsNextPrimary(t *testing.T) {
	services, ledger := newFourValidatorNetwork(t)

	stalledPrimary := services[0].ctxPrimaryIndexForTest()
	for i, s := range services {
		if i == stalledPrimary {
			s.peers = &fakePeers{self: i, all: nil} // never reaches anyone
		}
	}

	for i, s := range services {
		if i == stalledPrimary {
			continue
		}
		s.mu.Lock()
		s.beginRoundLocked()
		s.mu.Unlock()
	}
	// the stalled primary still needs a context so its ChangeView vote counts
	// once backups start soliciting one, but must not successfully broadcast.
	services[stalledPrimary].mu.Lock()
	services[stalledPrimary].beginRoundLocked()
	services[stalledPrimary].mu.Unlock()
	drain(t, services)

	for i, s := range services {
		if i == stalledPrimary {
			continue
		}
		s.mu.Lock()
		s.broadcastChangeView(s.ctx.viewNumber+1, reasonTimeout)
		s.mu.Unlock()
	}
	drain(t, services)

	if ledger.Height() != 1 {
		t.Fatalf("ledger height = %d, want 1 after the network recovers via view change", ledger.Height())
	}
	hdr := ledger.headers[1]
	if hdr.PrimaryIndex == byte(stalledPrimary) {
		t.Fatalf("block was produced by the stalled primary (index %d), view change had no effect", stalledPrimary)
	}
}

// servicePubKeys returns every validator key in the canonical ascending
// X-coordinate order the multi-sig script layout uses — the invocation
// script's signatures are laid out in that order, and CheckMultiSig's
// relative-order matching requires keys and signatures to agree on it.
func servicePubKeys(services []*Service) [][]byte {
	out := make([][]byte, len(services))
	for i, s := range services {
		out[i] = s.pubKey
	}
	sort.Slice(out, func(i, j int) bool {
		if c := bytes.Compare(out[i][1:], out[j][1:]); c != 0 {
			return c < 0
		}
		return out[i][0] < out[j][0]
	})
	return out
}

// splitPushedSignatures extracts count 64-byte signatures back out of a
// BuildMultiSigInvocation script, mirroring how pushData emits a value of
// at most 255 bytes as PUSHDATA1 plus a one-byte length (every r||s
// signature here is exactly 64 bytes, well under that cutoff).
func splitPushedSignatures(script []byte, count int) [][]byte {
	out := make([][]byte, 0, count)
	i := 0
	for len(out) < count && i+1 < len(script) {
		n := int(script[i+1]) // script[i] is the PUSHDATA1 opcode
		i += 2
		if i+n > len(script) {
			break
		}
		out = append(out, script[i:i+n])
		i += n
	}
	return out
}
