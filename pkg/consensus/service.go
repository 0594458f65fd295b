// Package consensus implements the dBFT 2.0 state machine: primary
// rotation, PrepareRequest/Response/Commit/ChangeView, and recovery. The
// Service is a single actor — a constructor wiring injected
// logger/ledger/network/pool adapters, Start(ctx) spawning goroutines
// timed off time.Timer, mutex-guarded state, logrus progress logging.
package consensus

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/neonium/neond/pkg/chain"
	"github.com/neonium/neond/pkg/p2p"
	"github.com/neonium/neond/pkg/store"
	"github.com/neonium/neond/pkg/util"
)

// LedgerProvider is the narrow read/persist surface consensus needs from
// pkg/ledger, kept as an interface so pkg/consensus never imports
// pkg/ledger directly.
type LedgerProvider interface {
	Height() uint32
	CurrentHash() util.UInt256
	GetHeaderByHeight(height uint32) (*chain.Header, error)
	Validators() [][]byte
	AddBlock(b *chain.Block) error
}

// TxProvider is the narrow mempool surface consensus needs: the primary's
// block-proposal source and every validator's "are these txs fetchable"
// check.
type TxProvider interface {
	SortedVerified() []*chain.Transaction
	Get(hash util.UInt256) (*chain.Transaction, bool)
}

// Config configures a Service.
type Config struct {
	PrivateKey              *ecdsa.PrivateKey
	BlockTime               time.Duration
	MaxTransactionsPerBlock int
	RecoveryRequestDelay    time.Duration
}

// Service is the consensus actor: one context per round, a single run loop
// reading from an internal message channel, and a re-armed timer per view.
type Service struct {
	cfg     Config
	pubKey  []byte
	ledger  LedgerProvider
	pool    TxProvider
	peers   p2p.PeerRegistry
	kv      store.KVStore
	log     *logrus.Logger

	mu  sync.Mutex
	ctx *roundState

	msgs   chan inboundMsg
	cancel context.CancelFunc
	done   chan struct{}
}

type inboundMsg struct {
	from p2p.PeerID
	data []byte
}

// NewService wires a Service: one constructor call binds every
// collaborator, no ambient globals. kv may be nil (e.g. in tests); when
// set, round state is persisted under store.PrefixConsensus on every
// mutation and resumed from on Start, so a crashed validator picks up the
// exact (index, view, preparations, commits) it last emitted.
func NewService(cfg Config, ledger LedgerProvider, pool TxProvider, peers p2p.PeerRegistry, kv store.KVStore, log *logrus.Logger) (*Service, error) {
	if cfg.PrivateKey == nil {
		return nil, fmt.Errorf("consensus: no private key configured")
	}
	if cfg.BlockTime <= 0 {
		cfg.BlockTime = 15 * time.Second
	}
	if cfg.RecoveryRequestDelay <= 0 {
		cfg.RecoveryRequestDelay = cfg.BlockTime
	}
	if log == nil {
		log = logrus.New()
	}
	return &Service{
		cfg:    cfg,
		pubKey: util.CompressPubKey(&cfg.PrivateKey.PublicKey),
		ledger: ledger,
		pool:   pool,
		peers:  peers,
		kv:     kv,
		log:    log,
		msgs:   make(chan inboundMsg, 256),
	}, nil
}

// Start begins a consensus round at the ledger's current height+1 and runs
// the single-threaded message loop until ctx is cancelled: Stop cancels
// the internal context but lets the current loop iteration finish, so no
// in-flight message is dropped mid-handling.
func (s *Service) Start(parent context.Context) {
	runCtx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	s.done = make(chan struct{})

	s.mu.Lock()
	s.beginRoundLocked()
	s.mu.Unlock()

	go s.run(runCtx)
}

// Stop cancels the run loop and waits for it to exit, leaving the last
// persisted consensus context (if any persistence hook is wired by the
// caller) intact for the next Start to resume from.
func (s *Service) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.done != nil {
		<-s.done
	}
}

// HandleConsensusPayload is the P2P-facing entry point: decode an
// ExtensiblePayload carried on p2p.TopicConsensus, verify the sender's
// signature against the current validator set, and enqueue the message for
// the run loop; the single buffered channel keeps messages in receipt
// order. Invalid-signature messages are dropped silently.
func (s *Service) HandleConsensusPayload(from p2p.PeerID, payload *chain.ExtensiblePayload) {
	env, err := decodeEnvelope(payload.Data)
	if err != nil {
		return
	}
	s.mu.Lock()
	valid := s.ctx != nil && int(env.ValidatorIndex) < s.ctx.n() && verifyWitness(payload.Witness, s.ctx.validators[env.ValidatorIndex], payload.Data)
	s.mu.Unlock()
	if !valid {
		return
	}
	select {
	case s.msgs <- inboundMsg{from: from, data: payload.Data}:
	default:
		s.log.Warn("consensus: message queue full, dropping payload")
	}
}

// run is the single-threaded event loop: it owns s.ctx exclusively; no
// other goroutine mutates consensus state.
func (s *Service) run(ctx context.Context) {
	defer close(s.done)
	timer := time.NewTimer(s.armDuration())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			s.mu.Lock()
			s.onTimeout()
			s.persistLocked()
			timer.Reset(s.armDuration())
			s.mu.Unlock()
		case m := <-s.msgs:
			s.mu.Lock()
			advanced := s.dispatch(m)
			if advanced {
				s.persistLocked()
				timer.Reset(s.armDuration())
			}
			s.mu.Unlock()
		}
	}
}

func (s *Service) armDuration() time.Duration {
	if s.ctx == nil {
		return s.cfg.BlockTime
	}
	return timerDuration(s.cfg.BlockTime, s.ctx.viewNumber)
}

// beginRoundLocked (re)initialises s.ctx for the ledger's next height and
// sends a PrepareRequest immediately if this node is the new round's
// primary.
func (s *Service) beginRoundLocked() {
	height := s.ledger.Height()
	prevHeader, err := s.ledger.GetHeaderByHeight(height)
	if err != nil {
		s.log.WithError(err).Error("consensus: load previous header for new round")
		return
	}
	validators := s.ledger.Validators()
	myIndex := indexOfPubKey(validators, s.pubKey)
	nextIndex := height + 1

	s.ctx = newContext(nextIndex, prevHeader.Hash(), prevHeader.Timestamp, prevHeader.NextConsensus, validators, myIndex, privKeySigner{s.cfg.PrivateKey})

	if saved := s.loadPersistedForHeight(nextIndex); saved != nil {
		s.ctx.viewNumber = saved.ViewNumber
		s.ctx.request = saved.Request
		s.ctx.responses = saved.Responses
		s.ctx.commits = saved.Commits
		s.ctx.changeViews = saved.ChangeViews
		s.ctx.committedLocally = saved.CommittedLocally
		s.ctx.blockSent = saved.BlockSent
		if s.ctx.request != nil {
			for _, h := range s.ctx.request.TransactionHashes {
				if tx, ok := s.pool.Get(h); ok {
					s.ctx.transactions[h] = tx
				}
			}
		}
		s.log.WithFields(logrus.Fields{"index": s.ctx.blockIndex, "view": s.ctx.viewNumber}).Info("consensus: resumed round from persisted state")
	}

	s.log.WithFields(logrus.Fields{"index": s.ctx.blockIndex, "validators": len(validators), "primary": s.ctx.isPrimary()}).Info("consensus: new round")

	if s.ctx.isPrimary() {
		s.sendPrepareRequest()
	}
	s.persistLocked()
}

func indexOfPubKey(validators [][]byte, pubKey []byte) int {
	for i, v := range validators {
		if string(v) == string(pubKey) {
			return i
		}
	}
	return -1
}

// onTimeout broadcasts ChangeView(view+1).
func (s *Service) onTimeout() {
	if s.ctx == nil || s.ctx.committedLocally {
		return
	}
	s.broadcastChangeView(s.ctx.viewNumber+1, reasonTimeout)
}

// dispatch decodes and routes one inbound payload, returning true if
// handling it changed local view/phase state enough to warrant rearming
// the round timer.
func (s *Service) dispatch(m inboundMsg) bool {
	env, err := decodeEnvelope(m.data)
	if err != nil {
		s.log.WithError(err).Debug("consensus: malformed envelope, dropping")
		return false
	}
	if s.ctx == nil {
		return false
	}
	if int(env.ValidatorIndex) >= s.ctx.n() {
		return false
	}
	switch env.Type {
	case msgPrepareRequest:
		return s.onPrepareRequest(env)
	case msgPrepareResponse:
		return s.onPrepareResponse(env)
	case msgCommit:
		return s.onCommit(env)
	case msgChangeView:
		return s.onChangeView(env)
	case msgRecoveryRequest:
		s.onRecoveryRequest(env)
		return false
	case msgRecoveryMessage:
		return s.onRecoveryMessage(env)
	default:
		return false
	}
}

func (s *Service) onPrepareRequest(env *envelope) bool {
	if env.ViewNumber != s.ctx.viewNumber {
		return false
	}
	if int(env.ValidatorIndex) != s.ctx.primaryIndex() {
		s.log.Debug("consensus: PrepareRequest from non-primary, dropping")
		return false
	}
	if s.ctx.request != nil {
		return false // a validator must never accept two requests in one round
	}
	pr, err := decodePrepareRequest(env.Body)
	if err != nil {
		s.log.WithError(err).Debug("consensus: malformed PrepareRequest")
		return false
	}
	s.ctx.request = pr
	for _, h := range pr.TransactionHashes {
		if tx, ok := s.pool.Get(h); ok {
			s.ctx.transactions[h] = tx
		}
	}
	if !s.ctx.haveAllTransactions() {
		s.log.Warn("consensus: PrepareRequest references unknown transactions, awaiting recovery/relay")
		return false
	}
	s.sendPrepareResponse()
	s.tryPrepare()
	return true
}

func (s *Service) onPrepareResponse(env *envelope) bool {
	if env.ViewNumber != s.ctx.viewNumber {
		return false
	}
	resp, err := decodePrepareResponse(env.Body)
	if err != nil {
		return false
	}
	s.ctx.responses[env.ValidatorIndex] = resp.PreparationHash
	s.tryPrepare()
	return true
}

// tryPrepare transitions Prepared -> Committed-intent once M preparations
// (including the primary's own implicit one) agree on the current request,
// the Prepared-phase action.
func (s *Service) tryPrepare() {
	if s.ctx.request == nil || s.ctx.blockSent {
		return
	}
	if s.ctx.preparedCount() < s.ctx.m() {
		return
	}
	if !s.ctx.haveAllTransactions() {
		return
	}
	s.ctx.blockSent = true
	s.sendCommit()
}

func (s *Service) onCommit(env *envelope) bool {
	c, err := decodeCommit(env.Body)
	if err != nil {
		return false
	}
	// Commit entries are accepted for any view >= local, the recovery
	// replay rule generalized to live receipt too: a
	// validator that is behind on view but sees M commits for a header it
	// can itself reconstruct should still be able to persist.
	if env.ViewNumber < s.ctx.viewNumber {
		return false
	}
	s.ctx.commits[env.ValidatorIndex] = c.Signature
	return s.tryCommit(c.BlockHash)
}

// tryCommit assembles and persists the block once M commits are gathered
// for the same block hash: collect the verifying signatures, build the
// multi-sig witness, attach it as the block's sole witness.
func (s *Service) tryCommit(blockHash util.UInt256) bool {
	if s.ctx.request == nil || len(s.ctx.commits) < s.ctx.m() {
		return false
	}
	header, err := s.ctx.makeHeader()
	if err != nil {
		return false
	}
	if header.Hash() != blockHash {
		// Commits for a header we can't reproduce yet (still missing
		// transactions, or a stale request) — wait for more information.
		return false
	}

	// Only signatures that actually verify against this header go into the
	// witness; a byzantine validator's garbage Commit must not be able to
	// poison an otherwise-valid block.
	sigsByPubKey := make(map[string][]byte, len(s.ctx.commits))
	for idx, sig := range s.ctx.commits {
		if int(idx) >= len(s.ctx.validators) {
			continue
		}
		pub := s.ctx.validators[idx]
		if ok, err := util.VerifySignature(util.CurveSecp256r1, pub, header.Hash().Bytes(), sig); err == nil && ok {
			sigsByPubKey[string(pub)] = sig
		}
	}
	m := s.ctx.m()
	verification, err := util.BuildMultiSigScript(m, s.ctx.validators)
	if err != nil {
		s.log.WithError(err).Error("consensus: build verification script")
		return false
	}
	invocation, err := util.BuildMultiSigInvocation(m, s.ctx.validators, sigsByPubKey)
	if err != nil {
		// Fewer than M signatures verified so far against this exact
		// header; wait for more Commit messages.
		return false
	}
	header.Witness = chain.Witness{InvocationScript: invocation, VerificationScript: verification}

	txs := make([]*chain.Transaction, len(s.ctx.request.TransactionHashes))
	for i, h := range s.ctx.request.TransactionHashes {
		txs[i] = s.ctx.transactions[h]
	}
	block := &chain.Block{Header: *header, Transactions: txs}

	if err := s.ledger.AddBlock(block); err != nil {
		s.log.WithError(err).Error("consensus: persist agreed block")
		return false
	}
	s.ctx.committedLocally = true
	s.log.WithFields(logrus.Fields{"index": header.Index, "hash": header.Hash().String()}).Info("consensus: block persisted")
	s.beginRoundLocked()
	return true
}

func (s *Service) onChangeView(env *envelope) bool {
	cv, err := decodeChangeView(env.Body)
	if err != nil {
		return false
	}
	if cv.NewViewNumber <= s.ctx.viewNumber && s.ctx.changeViews[env.ValidatorIndex].NewViewNumber >= cv.NewViewNumber {
		return false // stale or duplicate, ignored per byzantine-safety rules
	}
	s.ctx.changeViews[env.ValidatorIndex] = *cv
	target := cv.NewViewNumber
	if s.ctx.changeViewCount(target) < s.ctx.m() {
		return false
	}
	if s.ctx.committedLocally {
		// Already past the commit point: per the byzantine-safety rule, do
		// not change view unless recovery proves enough peers are also
		// past commit or have lost it. A live M-ChangeView quorum alone
		// does not satisfy that bar, so this node waits for Recovery
		// instead of unilaterally moving.
		return false
	}
	s.ctx.resetForView(target)
	s.log.WithFields(logrus.Fields{"view": target}).Info("consensus: view changed")
	if s.ctx.isPrimary() {
		s.sendPrepareRequest()
	}
	return true
}

func (s *Service) onRecoveryRequest(env *envelope) {
	if s.ctx == nil || s.ctx.committedLocally {
		// A validator already past its own commit point does not
		// re-broadcast pre-commit state — it lets the still-undecided
		// validators reach quorum among themselves or catch up via a
		// future block relay instead.
		return
	}
	rm := &recoveryMessage{
		ChangeViews:      s.ctx.changeViews,
		PrepareRequest:   s.ctx.request,
		PrepareResponses: responsesToCompact(s.ctx.responses),
		Commits:          commitsToCompact(s.ctx.commits, s.ctx.request),
	}
	s.sendEnvelope(msgRecoveryMessage, rm.encode())
}

func responsesToCompact(responses map[byte]util.UInt256) map[byte]prepareResponse {
	out := make(map[byte]prepareResponse, len(responses))
	for idx, h := range responses {
		out[idx] = prepareResponse{PreparationHash: h}
	}
	return out
}

func commitsToCompact(commits map[byte][]byte, req *prepareRequest) map[byte]commitMsg {
	out := make(map[byte]commitMsg, len(commits))
	if req == nil {
		return out
	}
	for idx, sig := range commits {
		out[idx] = commitMsg{Signature: sig}
	}
	return out
}

// onRecoveryMessage replays a peer's bundled state into the local context.
// The replay rules: ChangeView entries count only if
// new_view_number >= current_view; PrepareRequest/Response entries apply
// only to the current view; Commit entries are accepted for any view >=
// local if their signature verifies.
func (s *Service) onRecoveryMessage(env *envelope) bool {
	rm, err := decodeRecoveryMessage(env.Body)
	if err != nil {
		return false
	}
	changed := false
	for idx, cv := range rm.ChangeViews {
		if cv.NewViewNumber >= s.ctx.viewNumber {
			if existing, ok := s.ctx.changeViews[idx]; !ok || cv.NewViewNumber > existing.NewViewNumber {
				s.ctx.changeViews[idx] = cv
				changed = true
			}
		}
	}
	if rm.PrepareRequest != nil && s.ctx.request == nil && int(env.ValidatorIndex) == s.ctx.primaryIndex() {
		s.ctx.request = rm.PrepareRequest
		for _, h := range rm.PrepareRequest.TransactionHashes {
			if tx, ok := s.pool.Get(h); ok {
				s.ctx.transactions[h] = tx
			}
		}
		changed = true
	}
	for idx, pr := range rm.PrepareResponses {
		if _, ok := s.ctx.responses[idx]; !ok {
			s.ctx.responses[idx] = pr.PreparationHash
			changed = true
		}
	}
	for idx, c := range rm.Commits {
		if _, ok := s.ctx.commits[idx]; !ok {
			s.ctx.commits[idx] = c.Signature
			changed = true
		}
	}
	if target := s.ctx.viewNumber; s.ctx.changeViewCount(target+1) >= s.ctx.m() && !s.ctx.committedLocally {
		s.ctx.resetForView(target + 1)
		if s.ctx.isPrimary() {
			s.sendPrepareRequest()
		}
	}
	s.tryPrepare()
	return changed
}

// sendPrepareRequest is the primary's proposal action: pick transactions
// from the pool (up to the configured cap), sign, broadcast, and locally
// record the request as if received.
func (s *Service) sendPrepareRequest() {
	if s.ctx.request != nil {
		return // a validator must never produce PrepareRequest twice in a round
	}
	candidates := s.pool.SortedVerified()
	max := s.cfg.MaxTransactionsPerBlock
	if max <= 0 || max > len(candidates) {
		max = len(candidates)
	}
	candidates = candidates[:max]

	hashes := make([]util.UInt256, len(candidates))
	for i, tx := range candidates {
		h := tx.Hash()
		hashes[i] = h
		s.ctx.transactions[h] = tx
	}
	pr := &prepareRequest{
		Timestamp:         nowMillis(s.ctx.prevTimestamp),
		Nonce:             nonceFromPrivateKey(s.cfg.PrivateKey),
		TransactionHashes: hashes,
	}
	s.ctx.request = pr
	s.sendEnvelope(msgPrepareRequest, pr.encode())
	s.tryPrepare()
}

func (s *Service) sendPrepareResponse() {
	resp := &prepareResponse{PreparationHash: s.ctx.request.prepareHash()}
	s.ctx.responses[byte(s.ctx.myIndex)] = resp.PreparationHash
	s.sendEnvelope(msgPrepareResponse, resp.encode())
}

func (s *Service) sendCommit() {
	header, err := s.ctx.makeHeader()
	if err != nil {
		s.log.WithError(err).Error("consensus: build header for commit")
		return
	}
	sig, err := s.ctx.privKey.Sign(header.Hash().Bytes())
	if err != nil {
		s.log.WithError(err).Error("consensus: sign commit")
		return
	}
	s.ctx.commits[byte(s.ctx.myIndex)] = sig
	c := &commitMsg{BlockHash: header.Hash(), Signature: sig}
	s.sendEnvelope(msgCommit, c.encode())
	s.tryCommit(header.Hash())
}

func (s *Service) broadcastChangeView(newView byte, reason roundChangeReason) {
	if s.ctx.myIndex < 0 {
		return
	}
	cv := &changeView{NewViewNumber: newView, Timestamp: nowMillis(s.ctx.prevTimestamp), Reason: byte(reason)}
	s.ctx.changeViews[byte(s.ctx.myIndex)] = *cv
	s.sendEnvelope(msgChangeView, cv.encode())
	if s.ctx.changeViewCount(newView) >= s.ctx.m() {
		s.ctx.resetForView(newView)
		if s.ctx.isPrimary() {
			s.sendPrepareRequest()
		}
	}
}

// sendEnvelope signs and broadcasts one dBFT message over
// p2p.TopicConsensus, wrapped in an ExtensiblePayload.
func (s *Service) sendEnvelope(t messageType, body []byte) {
	if s.ctx.myIndex < 0 {
		return
	}
	env := envelope{Type: t, ValidatorIndex: byte(s.ctx.myIndex), ViewNumber: s.ctx.viewNumber, Body: body}
	data := encodeEnvelope(env)
	w, err := buildWitness(s.ctx.privKey, s.pubKey, data)
	if err != nil {
		s.log.WithError(err).Error("consensus: sign outbound message")
		return
	}
	payload := &chain.ExtensiblePayload{
		Category: p2p.TopicConsensus,
		Sender:   util.Uint160FromScript(w.VerificationScript),
		Data:     data,
		Witness:  w,
	}
	var buf bytes.Buffer
	if err := chain.EncodeExtensiblePayload(&buf, payload); err != nil {
		s.log.WithError(err).Error("consensus: encode outbound payload")
		return
	}
	if err := s.peers.Broadcast(p2p.Message{Topic: p2p.TopicConsensus, Data: buf.Bytes()}); err != nil {
		s.log.WithError(err).Warn("consensus: broadcast failed")
	}
}

func nonceFromPrivateKey(priv *ecdsa.PrivateKey) uint64 {
	b := priv.D.Bytes()
	var n uint64
	for i := 0; i < 8 && i < len(b); i++ {
		n = n<<8 | uint64(b[i])
	}
	return n
}

// nowMillis returns a timestamp strictly greater than prev, the only
// observable time source consensus uses; a real deployment reads the wall
// clock here, but always clamps forward of the previous block's timestamp
// (a block's timestamp must exceed its predecessor's).
func nowMillis(prev uint64) uint64 {
	now := uint64(time.Now().UnixMilli())
	if now <= prev {
		return prev + 1
	}
	return now
}
