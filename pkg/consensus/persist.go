package consensus

import (
	"bytes"
	"fmt"

	"github.com/neonium/neond/pkg/store"
	"github.com/neonium/neond/pkg/util"
)

// consensusStateKey is the sole key under store.PrefixConsensus: at most one
// round is ever in flight, so there is nothing to range over, unlike
// PrefixBlock/PrefixStorage's per-entity keys.
var consensusStateKey = []byte{store.PrefixConsensus}

// persistedRoundState is the on-disk shape of a roundState, serving the
// "write the full consensus context atomically on every state mutation so a
// crashed validator resumes on the exact same (index, view, preparations,
// commits) it last emitted" requirement. Transactions are deliberately not
// persisted: a resuming node re-fetches them from the mempool by hash
// (haveAllTransactions already handles "not yet fetched").
type persistedRoundState struct {
	BlockIndex       uint32
	ViewNumber       byte
	PrevHash         util.UInt256
	PrevTimestamp    uint64
	NextConsensus    util.UInt160
	Request          *prepareRequest
	Responses        map[byte]util.UInt256
	Commits          map[byte][]byte
	ChangeViews      map[byte]changeView
	CommittedLocally bool
	BlockSent        bool
}

func encodeRoundState(c *roundState) []byte {
	var buf bytes.Buffer
	w := util.NewBinWriter(&buf)
	w.WriteU32LE(c.blockIndex)
	w.WriteU8(c.viewNumber)
	w.WriteBytes(c.prevHash.Bytes())
	w.WriteU64LE(c.prevTimestamp)
	w.WriteBytes(c.nextConsensus.Bytes())

	if c.request != nil {
		w.WriteU8(1)
		w.WriteVarBytes(c.request.encode())
	} else {
		w.WriteU8(0)
	}

	w.WriteVarUint(uint64(len(c.responses)))
	for idx, h := range c.responses {
		w.WriteU8(idx)
		w.WriteBytes(h.Bytes())
	}

	w.WriteVarUint(uint64(len(c.commits)))
	for idx, sig := range c.commits {
		w.WriteU8(idx)
		w.WriteVarBytes(sig)
	}

	w.WriteVarUint(uint64(len(c.changeViews)))
	for idx, cv := range c.changeViews {
		w.WriteU8(idx)
		w.WriteVarBytes(cv.encode())
	}

	if c.committedLocally {
		w.WriteU8(1)
	} else {
		w.WriteU8(0)
	}
	if c.blockSent {
		w.WriteU8(1)
	} else {
		w.WriteU8(0)
	}
	return buf.Bytes()
}

func decodeRoundState(data []byte) (*persistedRoundState, error) {
	r := util.NewBinReader(bytes.NewReader(data))
	out := &persistedRoundState{
		BlockIndex: r.ReadU32LE(),
		ViewNumber: r.ReadU8(),
	}
	prevHash := r.ReadBytes(util.UInt256Size)
	out.PrevTimestamp = r.ReadU64LE()
	nextConsensus := r.ReadBytes(util.UInt160Size)
	if r.Err != nil {
		return nil, fmt.Errorf("consensus: decode round state: %w", r.Err)
	}
	var err error
	if out.PrevHash, err = util.Uint256FromBytes(prevHash); err != nil {
		return nil, fmt.Errorf("consensus: decode round state: %w", err)
	}
	if out.NextConsensus, err = util.Uint160FromBytes(nextConsensus); err != nil {
		return nil, fmt.Errorf("consensus: decode round state: %w", err)
	}

	if r.ReadU8() == 1 {
		body := r.ReadVarBytes(1 << 20)
		pr, err := decodePrepareRequest(body)
		if err != nil {
			return nil, err
		}
		out.Request = pr
	}

	out.Responses = map[byte]util.UInt256{}
	n := r.ReadVarUint()
	for i := uint64(0); i < n; i++ {
		idx := r.ReadU8()
		hb := r.ReadBytes(util.UInt256Size)
		if r.Err != nil {
			break
		}
		h, err := util.Uint256FromBytes(hb)
		if err != nil {
			return nil, fmt.Errorf("consensus: decode round state: %w", err)
		}
		out.Responses[idx] = h
	}

	out.Commits = map[byte][]byte{}
	n = r.ReadVarUint()
	for i := uint64(0); i < n; i++ {
		idx := r.ReadU8()
		sig := r.ReadVarBytes(256)
		if r.Err != nil {
			break
		}
		out.Commits[idx] = sig
	}

	out.ChangeViews = map[byte]changeView{}
	n = r.ReadVarUint()
	for i := uint64(0); i < n; i++ {
		idx := r.ReadU8()
		body := r.ReadVarBytes(1 << 16)
		if r.Err != nil {
			break
		}
		cv, err := decodeChangeView(body)
		if err != nil {
			return nil, err
		}
		out.ChangeViews[idx] = *cv
	}

	out.CommittedLocally = r.ReadU8() == 1
	out.BlockSent = r.ReadU8() == 1
	if r.Err != nil {
		return nil, fmt.Errorf("consensus: decode round state: %w", r.Err)
	}
	return out, nil
}

// persistLocked writes the current round state atomically, honoring the
// crash-resume requirement. A nil s.kv (no persistence configured, e.g. in
// unit tests) is a silent no-op rather than an error.
func (s *Service) persistLocked() {
	if s.kv == nil || s.ctx == nil {
		return
	}
	if err := s.kv.Put(consensusStateKey, encodeRoundState(s.ctx)); err != nil {
		s.log.WithError(err).Warn("consensus: persist round state")
	}
}

// loadPersistedForHeight returns the saved round state if it matches the
// round this node is about to (re)start, so a restart resumes mid-round
// instead of silently re-proposing or re-voting from view 0. A blob for a
// different block index belongs to an already-finalized or abandoned round
// and is ignored.
func (s *Service) loadPersistedForHeight(blockIndex uint32) *persistedRoundState {
	if s.kv == nil {
		return nil
	}
	data, err := s.kv.Get(consensusStateKey)
	if err != nil {
		return nil
	}
	saved, err := decodeRoundState(data)
	if err != nil {
		s.log.WithError(err).Warn("consensus: discard unreadable persisted round state")
		return nil
	}
	if saved.BlockIndex != blockIndex {
		return nil
	}
	return saved
}
