// This file defines the dBFT message wire shapes: the signed envelope and
// the PrepareRequest/PrepareResponse/Commit/ChangeView/Recovery bodies it
// carries, plus the witness build/verify pair ExtensiblePayloads use.

package consensus

import (
	"bytes"
	"fmt"

	"github.com/neonium/neond/pkg/chain"
	"github.com/neonium/neond/pkg/util"
)

// messageType identifies which dBFT message an envelope carries.
type messageType byte

const (
	msgPrepareRequest  messageType = 1
	msgPrepareResponse messageType = 2
	msgCommit          messageType = 3
	msgChangeView      messageType = 4
	msgRecoveryRequest messageType = 5
	msgRecoveryMessage messageType = 6
)

// envelope is the common header every dBFT message shares: which validator
// sent it, for which (block already implied by the carrying
// ExtensiblePayload) view, and the message-specific body.
type envelope struct {
	Type           messageType
	ValidatorIndex byte
	ViewNumber     byte
	Body           []byte
}

func encodeEnvelope(e envelope) []byte {
	var buf bytes.Buffer
	w := util.NewBinWriter(&buf)
	w.WriteU8(byte(e.Type))
	w.WriteU8(e.ValidatorIndex)
	w.WriteU8(e.ViewNumber)
	w.WriteVarBytes(e.Body)
	return buf.Bytes()
}

func decodeEnvelope(data []byte) (*envelope, error) {
	r := util.NewBinReader(bytes.NewReader(data))
	e := &envelope{
		Type:           messageType(r.ReadU8()),
		ValidatorIndex: r.ReadU8(),
		ViewNumber:     r.ReadU8(),
	}
	e.Body = r.ReadVarBytes(1 << 20)
	if r.Err != nil {
		return nil, fmt.Errorf("consensus: decode envelope: %w", r.Err)
	}
	return e, nil
}

// prepareRequest is the primary's proposal for a view: block
// timestamp, nonce, and the ordered transaction hash list it implies.
type prepareRequest struct {
	Timestamp         uint64
	Nonce             uint64
	TransactionHashes []util.UInt256
}

func (p *prepareRequest) encode() []byte {
	var buf bytes.Buffer
	w := util.NewBinWriter(&buf)
	w.WriteU64LE(p.Timestamp)
	w.WriteU64LE(p.Nonce)
	w.WriteVarUint(uint64(len(p.TransactionHashes)))
	for _, h := range p.TransactionHashes {
		w.WriteBytes(h.Bytes())
	}
	return buf.Bytes()
}

func decodePrepareRequest(body []byte) (*prepareRequest, error) {
	r := util.NewBinReader(bytes.NewReader(body))
	p := &prepareRequest{Timestamp: r.ReadU64LE(), Nonce: r.ReadU64LE()}
	n := r.ReadVarUint()
	p.TransactionHashes = make([]util.UInt256, 0, n)
	for i := uint64(0); i < n; i++ {
		b := r.ReadBytes(util.UInt256Size)
		if r.Err != nil {
			break
		}
		h, err := util.Uint256FromBytes(b)
		if err != nil {
			return nil, fmt.Errorf("consensus: decode prepare request: %w", err)
		}
		p.TransactionHashes = append(p.TransactionHashes, h)
	}
	if r.Err != nil {
		return nil, fmt.Errorf("consensus: decode prepare request: %w", r.Err)
	}
	return p, nil
}

// prepareHash identifies a PrepareRequest for PrepareResponse/recovery
// matching purposes, independent of the ExtensiblePayload it travels in.
func (p *prepareRequest) prepareHash() util.UInt256 {
	return util.UInt256(util.Sha256(p.encode()))
}

// prepareResponse is a backup's endorsement of the PrepareRequest it
// received, identified by that request's prepareHash.
type prepareResponse struct {
	PreparationHash util.UInt256
}

func (p *prepareResponse) encode() []byte { return p.PreparationHash.Bytes() }

func decodePrepareResponse(body []byte) (*prepareResponse, error) {
	h, err := util.Uint256FromBytes(body)
	if err != nil {
		return nil, fmt.Errorf("consensus: decode prepare response: %w", err)
	}
	return &prepareResponse{PreparationHash: h}, nil
}

// commitMsg carries a validator's signature over the agreed block header.
type commitMsg struct {
	BlockHash util.UInt256
	Signature []byte
}

func (c *commitMsg) encode() []byte {
	var buf bytes.Buffer
	w := util.NewBinWriter(&buf)
	w.WriteBytes(c.BlockHash.Bytes())
	w.WriteVarBytes(c.Signature)
	return buf.Bytes()
}

func decodeCommit(body []byte) (*commitMsg, error) {
	r := util.NewBinReader(bytes.NewReader(body))
	hb := r.ReadBytes(util.UInt256Size)
	sig := r.ReadVarBytes(256)
	if r.Err != nil {
		return nil, fmt.Errorf("consensus: decode commit: %w", r.Err)
	}
	h, err := util.Uint256FromBytes(hb)
	if err != nil {
		return nil, fmt.Errorf("consensus: decode commit: %w", err)
	}
	return &commitMsg{BlockHash: h, Signature: sig}, nil
}

// changeView requests advancing to NewViewNumber.
type changeView struct {
	NewViewNumber byte
	Timestamp     uint64
	Reason        byte
}

func (c *changeView) encode() []byte {
	var buf bytes.Buffer
	w := util.NewBinWriter(&buf)
	w.WriteU8(c.NewViewNumber)
	w.WriteU64LE(c.Timestamp)
	w.WriteU8(c.Reason)
	return buf.Bytes()
}

func decodeChangeView(body []byte) (*changeView, error) {
	r := util.NewBinReader(bytes.NewReader(body))
	c := &changeView{NewViewNumber: r.ReadU8(), Timestamp: r.ReadU64LE(), Reason: r.ReadU8()}
	if r.Err != nil {
		return nil, fmt.Errorf("consensus: decode change view: %w", r.Err)
	}
	return c, nil
}

// recoveryRequest asks peers to resend their current-round state.
type recoveryRequest struct {
	Timestamp uint64
}

func (r *recoveryRequest) encode() []byte {
	var buf bytes.Buffer
	w := util.NewBinWriter(&buf)
	w.WriteU64LE(r.Timestamp)
	return buf.Bytes()
}

func decodeRecoveryRequest(body []byte) (*recoveryRequest, error) {
	br := util.NewBinReader(bytes.NewReader(body))
	r := &recoveryRequest{Timestamp: br.ReadU64LE()}
	if br.Err != nil {
		return nil, fmt.Errorf("consensus: decode recovery request: %w", br.Err)
	}
	return r, nil
}

// recoveryMessage bundles the responder's own current-round state. A
// simplified, non-compact encoding relative to the reference node's
// ChangeViewCompact/PrepareRequestCompact/PreparationPayloadCompact/
// CommitCompact bit-packed forms: every entry here carries its own
// validator index and signature in full, trading wire size for a
// materially simpler decoder — a deliberate, documented
// simplification, not a silent gap.
type recoveryMessage struct {
	ChangeViews      map[byte]changeView
	PrepareRequest   *prepareRequest
	PrepareResponses map[byte]prepareResponse
	Commits          map[byte]commitMsg
}

func (r *recoveryMessage) encode() []byte {
	var buf bytes.Buffer
	w := util.NewBinWriter(&buf)
	w.WriteVarUint(uint64(len(r.ChangeViews)))
	for idx, cv := range r.ChangeViews {
		w.WriteU8(idx)
		w.WriteVarBytes(cv.encode())
	}
	if r.PrepareRequest != nil {
		w.WriteU8(1)
		w.WriteVarBytes(r.PrepareRequest.encode())
	} else {
		w.WriteU8(0)
	}
	w.WriteVarUint(uint64(len(r.PrepareResponses)))
	for idx, pr := range r.PrepareResponses {
		w.WriteU8(idx)
		w.WriteVarBytes(pr.encode())
	}
	w.WriteVarUint(uint64(len(r.Commits)))
	for idx, c := range r.Commits {
		w.WriteU8(idx)
		w.WriteVarBytes(c.encode())
	}
	return buf.Bytes()
}

func decodeRecoveryMessage(body []byte) (*recoveryMessage, error) {
	r := util.NewBinReader(bytes.NewReader(body))
	out := &recoveryMessage{
		ChangeViews:      map[byte]changeView{},
		PrepareResponses: map[byte]prepareResponse{},
		Commits:          map[byte]commitMsg{},
	}
	n := r.ReadVarUint()
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
	if r.ReadU8() == 1 {
		body := r.ReadVarBytes(1 << 20)
		pr, err := decodePrepareRequest(body)
		if err != nil {
			return nil, err
		}
		out.PrepareRequest = pr
	}
	n = r.ReadVarUint()
	for i := uint64(0); i < n; i++ {
		idx := r.ReadU8()
		body := r.ReadVarBytes(1 << 16)
		if r.Err != nil {
			break
		}
		pr, err := decodePrepareResponse(body)
		if err != nil {
			return nil, err
		}
		out.PrepareResponses[idx] = *pr
	}
	n = r.ReadVarUint()
	for i := uint64(0); i < n; i++ {
		idx := r.ReadU8()
		body := r.ReadVarBytes(1 << 16)
		if r.Err != nil {
			break
		}
		c, err := decodeCommit(body)
		if err != nil {
			return nil, err
		}
		out.Commits[idx] = *c
	}
	if r.Err != nil {
		return nil, fmt.Errorf("consensus: decode recovery message: %w", r.Err)
	}
	return out, nil
}

// buildWitness signs body with priv and constructs the 1-of-1 verification
// script the recipient uses to confirm sender identity, the same
// single-key-as-trivial-multisig trick pkg/ledger/persist.go's
// primaryAccount already relies on. The invocation script stores the raw
// signature directly rather than a VM-executable push script: this
// package verifies signatures directly via util.VerifySignature instead of
// through the engine (no contract call needed to check one validator's own
// signature over a consensus message), so there is nothing for the VM to
// execute here — a documented simplification alongside
// pkg/ledger/validate.go's own divergence from split invocation/
// verification script execution.
func buildWitness(priv ecdsaSigner, pubKey, body []byte) (chain.Witness, error) {
	sig, err := priv.Sign(body)
	if err != nil {
		return chain.Witness{}, fmt.Errorf("consensus: sign message: %w", err)
	}
	script, err := util.BuildMultiSigScript(1, [][]byte{pubKey})
	if err != nil {
		return chain.Witness{}, fmt.Errorf("consensus: build witness script: %w", err)
	}
	return chain.Witness{InvocationScript: sig, VerificationScript: script}, nil
}

// verifyWitness confirms w was produced by pubKey over body.
func verifyWitness(w chain.Witness, pubKey, body []byte) bool {
	expected, err := util.BuildMultiSigScript(1, [][]byte{pubKey})
	if err != nil || !bytes.Equal(expected, w.VerificationScript) {
		return false
	}
	ok, err := util.VerifySignature(util.CurveSecp256r1, pubKey, body, w.InvocationScript)
	return err == nil && ok
}
