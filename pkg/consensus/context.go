package consensus

import (
	"crypto/ecdsa"
	"fmt"
	"time"

	"github.com/neonium/neond/pkg/chain"
	"github.com/neonium/neond/pkg/util"
)

// ecdsaSigner is the narrow signing capability context needs from a
// validator's private key, kept as an interface so context_test.go can
// exercise the state machine with a fixture signer instead of a real
// *ecdsa.PrivateKey.
type ecdsaSigner interface {
	Sign(msg []byte) ([]byte, error)
}

// privKeySigner adapts a *ecdsa.PrivateKey to ecdsaSigner via
// util.SignData, the one real implementation Service wires in.
type privKeySigner struct{ priv *ecdsa.PrivateKey }

func (s privKeySigner) Sign(msg []byte) ([]byte, error) { return util.SignData(s.priv, msg) }

// roundChangeReason tags why a validator requested a view change, carried
// on the wire (changeView.Reason) purely for diagnostics/logging; the
// state machine's acceptance rule never branches on it.
type roundChangeReason byte

const (
	reasonTimeout              roundChangeReason = 0
	reasonTxNotFound           roundChangeReason = 1
	reasonTxInvalid            roundChangeReason = 2
	reasonTxRejectedByPolicy   roundChangeReason = 3
	reasonBlockRejectedByPolicy roundChangeReason = 4
)

// roundState holds the full per-round dBFT state: block index, view,
// primary index, per-validator preparation/commit/change-view slots, the
// block under construction, and the committed local commit. Exactly one
// roundState exists per Service, reset on every height advance and mutated
// only from Service's single run loop; no other goroutine touches
// consensus state.
type roundState struct {
	myIndex int // -1 if this node is not a current validator

	blockIndex uint32
	viewNumber byte

	validators [][]byte // compressed pubkeys, index-ordered
	privKey    ecdsaSigner

	prevHash      util.UInt256
	prevTimestamp uint64
	nextConsensus util.UInt160

	request       *prepareRequest
	responses     map[byte]util.UInt256
	commits       map[byte][]byte // validator index -> signature over header
	changeViews   map[byte]changeView

	transactions map[util.UInt256]*chain.Transaction

	committedLocally bool
	blockSent         bool
}

// newContext resets state for (blockIndex, view=0) against the given
// validator set; called on every height advance and on genesis start,
// state is re-initialised on every block-index change.
func newContext(blockIndex uint32, prevHash util.UInt256, prevTimestamp uint64, nextConsensus util.UInt160, validators [][]byte, myIndex int, priv ecdsaSigner) *roundState {
	return &roundState{
		myIndex:       myIndex,
		blockIndex:    blockIndex,
		viewNumber:    0,
		validators:    validators,
		privKey:       priv,
		prevHash:      prevHash,
		prevTimestamp: prevTimestamp,
		nextConsensus: nextConsensus,
		responses:     map[byte]util.UInt256{},
		commits:       map[byte][]byte{},
		changeViews:   map[byte]changeView{},
		transactions:  map[util.UInt256]*chain.Transaction{},
	}
}

// n, f, m are the dBFT validator-count quantities.
func (c *roundState) n() int { return len(c.validators) }
func (c *roundState) f() int { return (c.n() - 1) / 3 }
func (c *roundState) m() int { return c.n() - c.f() }

// primaryIndex is (block_index - view) mod N.
func (c *roundState) primaryIndex() int {
	n := c.n()
	if n == 0 {
		return 0
	}
	idx := (int(c.blockIndex) - int(c.viewNumber)) % n
	if idx < 0 {
		idx += n
	}
	return idx
}

func (c *roundState) isPrimary() bool { return c.myIndex >= 0 && c.myIndex == c.primaryIndex() }

// resetForView clears per-view state (preparations, commits are kept only
// up to the byzantine-safety rule enforced by the caller) and advances
// viewNumber ("advance view; clear preparations; restart
// timers" ChangeView-threshold action.
func (c *roundState) resetForView(newView byte) {
	c.viewNumber = newView
	c.request = nil
	c.responses = map[byte]util.UInt256{}
	// commits are NOT cleared: a validator that already committed in an
	// earlier view must never forget it, per the byzantine-safety rule
	// "after sending Commit, a validator must not change view unless
	// recovery proves > F validators are also past the commit point".
	c.blockSent = false
}

// timerDuration is block_time * 2^view, capped
// to avoid an overflow on a pathologically high view number.
func timerDuration(blockTime time.Duration, view byte) time.Duration {
	shift := view
	if shift > 32 {
		shift = 32
	}
	d := blockTime
	for i := byte(0); i < shift; i++ {
		if d > time.Hour {
			return time.Hour
		}
		d *= 2
	}
	return d
}

// makeHeader builds the block header this round agrees on once a
// PrepareRequest is known. The witness is filled in only once M commits
// are gathered (buildWitness in service.go).
func (c *roundState) makeHeader() (*chain.Header, error) {
	if c.request == nil {
		return nil, fmt.Errorf("consensus: no prepare request to build header from")
	}
	hashes := c.request.TransactionHashes
	txs := make([]util.UInt256, len(hashes))
	copy(txs, hashes)
	return &chain.Header{
		Version:       0,
		PrevHash:      c.prevHash,
		MerkleRoot:    chain.MerkleRoot(txs),
		Timestamp:     c.request.Timestamp,
		Nonce:         c.request.Nonce,
		Index:         c.blockIndex,
		PrimaryIndex:  byte(c.primaryIndex()),
		NextConsensus: c.nextConsensus,
	}, nil
}

// haveAllTransactions reports whether every hash request.TransactionHashes
// names is present in c.transactions, the condition PrepareResponse waits
// on before a backup may respond to a PrepareRequest.
func (c *roundState) haveAllTransactions() bool {
	if c.request == nil {
		return false
	}
	for _, h := range c.request.TransactionHashes {
		if _, ok := c.transactions[h]; !ok {
			return false
		}
	}
	return true
}

// preparedCount is the number of validators (including the primary's own
// implicit preparation) known to have endorsed the current request.
func (c *roundState) preparedCount() int {
	if c.request == nil {
		return 0
	}
	count := 0
	rh := c.request.prepareHash()
	for _, h := range c.responses {
		if h == rh {
			count++
		}
	}
	// the primary's own PrepareRequest counts as its preparation.
	count++
	return count
}

// changeViewCount reports how many validators (c.myIndex included, if it
// has itself broadcast one) have requested a view >= target.
// Greater-or-equal, not equal: staggered change requests must still
// converge on the highest requested view.
func (c *roundState) changeViewCount(target byte) int {
	count := 0
	for _, cv := range c.changeViews {
		if cv.NewViewNumber >= target {
			count++
		}
	}
	return count
}
