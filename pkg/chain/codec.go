package chain

import (
	"bytes"
	"fmt"
	"io"

	"github.com/neonium/neond/pkg/util"
)

func writeSigner(w *util.BinWriter, s Signer) {
	w.WriteBytes(s.Account.Bytes())
	w.WriteU8(byte(s.Scopes))
	if s.Scopes&ScopeCustomContracts != 0 {
		w.WriteVarUint(uint64(len(s.AllowedContracts)))
		for _, c := range s.AllowedContracts {
			w.WriteBytes(c.Bytes())
		}
	}
	if s.Scopes&ScopeCustomGroups != 0 {
		w.WriteVarUint(uint64(len(s.AllowedGroups)))
		for _, g := range s.AllowedGroups {
			w.WriteVarBytes(g)
		}
	}
	if s.Scopes&ScopeWitnessRules != 0 {
		w.WriteVarUint(uint64(len(s.Rules)))
		for _, r := range s.Rules {
			w.WriteU8(byte(r.Action))
			w.WriteVarBytes(r.Condition)
		}
	}
}

func readSigner(r *util.BinReader) Signer {
	var s Signer
	acct := r.ReadBytes(util.UInt160Size)
	if r.Err == nil {
		s.Account, r.Err = util.Uint160FromBytes(acct)
	}
	s.Scopes = WitnessScope(r.ReadU8())
	if s.Scopes&ScopeCustomContracts != 0 {
		n := r.ReadVarUint()
		for i := uint64(0); i < n && r.Err == nil; i++ {
			b := r.ReadBytes(util.UInt160Size)
			u, err := util.Uint160FromBytes(b)
			if err != nil {
				r.Err = err
				break
			}
			s.AllowedContracts = append(s.AllowedContracts, u)
		}
	}
	if s.Scopes&ScopeCustomGroups != 0 {
		n := r.ReadVarUint()
		for i := uint64(0); i < n && r.Err == nil; i++ {
			s.AllowedGroups = append(s.AllowedGroups, r.ReadVarBytes(128))
		}
	}
	if s.Scopes&ScopeWitnessRules != 0 {
		n := r.ReadVarUint()
		for i := uint64(0); i < n && r.Err == nil; i++ {
			var rule WitnessRule
			rule.Action = WitnessRuleAction(r.ReadU8())
			rule.Condition = r.ReadVarBytes(65536)
			s.Rules = append(s.Rules, rule)
		}
	}
	return s
}

func writeAttribute(w *util.BinWriter, a Attribute) {
	w.WriteU8(byte(a.Type))
	switch a.Type {
	case AttrHighPriority:
		// no payload
	case AttrOracleResponse:
		w.WriteU64LE(a.OracleResponseID)
		w.WriteU8(a.OracleResultCode)
		w.WriteVarBytes(a.OracleResult)
	case AttrNotValidBefore:
		w.WriteU32LE(a.NotValidBeforeHeight)
	case AttrConflicts:
		w.WriteBytes(a.ConflictHash.Bytes())
	case AttrNotaryAssisted:
		w.WriteU8(a.NKeys)
	}
}

func readAttribute(r *util.BinReader) Attribute {
	var a Attribute
	a.Type = AttributeType(r.ReadU8())
	switch a.Type {
	case AttrHighPriority:
	case AttrOracleResponse:
		a.OracleResponseID = r.ReadU64LE()
		a.OracleResultCode = r.ReadU8()
		a.OracleResult = r.ReadVarBytes(65536)
	case AttrNotValidBefore:
		a.NotValidBeforeHeight = r.ReadU32LE()
	case AttrConflicts:
		b := r.ReadBytes(util.UInt256Size)
		if r.Err == nil {
			a.ConflictHash, r.Err = util.Uint256FromBytes(b)
		}
	case AttrNotaryAssisted:
		a.NKeys = r.ReadU8()
	}
	return a
}

func writeWitness(w *util.BinWriter, wit Witness) {
	w.WriteVarBytes(wit.InvocationScript)
	w.WriteVarBytes(wit.VerificationScript)
}

func readWitness(r *util.BinReader) Witness {
	return Witness{
		InvocationScript:   r.ReadVarBytes(65536),
		VerificationScript: r.ReadVarBytes(MaxWitnessScriptSize),
	}
}

// EncodeTransaction writes the full wire encoding (unsigned fields plus
// witnesses) of tx to w.
func EncodeTransaction(w io.Writer, tx *Transaction) error {
	bw := util.NewBinWriter(w)
	bw.WriteBytes(tx.unsignedBytes())
	bw.WriteVarUint(uint64(len(tx.Witnesses)))
	for _, wit := range tx.Witnesses {
		writeWitness(bw, wit)
	}
	return bw.Err
}

// DecodeTransaction reads a transaction from r.
func DecodeTransaction(r io.Reader) (*Transaction, error) {
	br := util.NewBinReader(r)
	tx := &Transaction{}
	tx.Version = br.ReadU8()
	tx.Nonce = br.ReadU32LE()
	tx.SystemFee = br.ReadI64LE()
	tx.NetworkFee = br.ReadI64LE()
	tx.ValidUntilBlock = br.ReadU32LE()
	n := br.ReadVarUint()
	if n > MaxSignerCount {
		return nil, fmt.Errorf("decode transaction: %w", ErrInvalidTransaction)
	}
	for i := uint64(0); i < n && br.Err == nil; i++ {
		tx.Signers = append(tx.Signers, readSigner(br))
	}
	na := br.ReadVarUint()
	if na > MaxTransactionAttributes {
		return nil, fmt.Errorf("decode transaction: %w", ErrInvalidTransaction)
	}
	for i := uint64(0); i < na && br.Err == nil; i++ {
		tx.Attributes = append(tx.Attributes, readAttribute(br))
	}
	tx.Script = br.ReadVarBytes(MaxTransactionSize)
	nw := br.ReadVarUint()
	for i := uint64(0); i < nw && br.Err == nil; i++ {
		tx.Witnesses = append(tx.Witnesses, readWitness(br))
	}
	if br.Err != nil {
		return nil, fmt.Errorf("decode transaction: %w", br.Err)
	}
	return tx, nil
}

// Header is a block header (everything but the transaction
// list).
type Header struct {
	Version         uint32
	PrevHash        util.UInt256
	MerkleRoot      util.UInt256
	Timestamp       uint64
	Nonce           uint64
	Index           uint32
	PrimaryIndex    byte
	NextConsensus   util.UInt160
	Witness         Witness

	hash *util.UInt256
}

func (h *Header) unsignedBytes() []byte {
	var buf bytes.Buffer
	w := util.NewBinWriter(&buf)
	w.WriteU32LE(h.Version)
	w.WriteBytes(h.PrevHash.Bytes())
	w.WriteBytes(h.MerkleRoot.Bytes())
	w.WriteU64LE(h.Timestamp)
	w.WriteU64LE(h.Nonce)
	w.WriteU32LE(h.Index)
	w.WriteU8(h.PrimaryIndex)
	w.WriteBytes(h.NextConsensus.Bytes())
	return buf.Bytes()
}

// Hash is SHA-256 over the unsigned header bytes.
func (h *Header) Hash() util.UInt256 {
	if h.hash != nil {
		return *h.hash
	}
	sum := util.Sha256(h.unsignedBytes())
	u := util.UInt256(sum)
	h.hash = &u
	return u
}

func (h *Header) encode(w *util.BinWriter) {
	w.WriteBytes(h.unsignedBytes())
	w.WriteU8(1) // block headers carry exactly one witness
	writeWitness(w, h.Witness)
}

func decodeHeader(r *util.BinReader) *Header {
	h := &Header{}
	h.Version = r.ReadU32LE()
	h.PrevHash, r.Err = util.Uint256FromBytes(r.ReadBytes(util.UInt256Size))
	if r.Err != nil {
		return h
	}
	h.MerkleRoot, r.Err = util.Uint256FromBytes(r.ReadBytes(util.UInt256Size))
	h.Timestamp = r.ReadU64LE()
	h.Nonce = r.ReadU64LE()
	h.Index = r.ReadU32LE()
	h.PrimaryIndex = r.ReadU8()
	h.NextConsensus, r.Err = util.Uint160FromBytes(r.ReadBytes(util.UInt160Size))
	wc := r.ReadU8()
	if wc == 1 {
		h.Witness = readWitness(r)
	}
	return h
}

// Block is a header plus its ordered transaction list.
type Block struct {
	Header       Header
	Transactions []*Transaction
}

// Hash delegates to the header.
func (b *Block) Hash() util.UInt256 { return b.Header.Hash() }

// GetSigners satisfies pkg/engine's ScriptContainer interface. Blocks carry
// no Signers of their own (their authority is NextConsensus's multi-sig
// witness), so this is empty; OnPersist/PostPersist triggers never need
// CheckWitness against the block container.
func (b *Block) GetSigners() []Signer { return nil }

// EncodeBlock writes the full block.
func EncodeBlock(w io.Writer, b *Block) error {
	bw := util.NewBinWriter(w)
	b.Header.encode(bw)
	bw.WriteVarUint(uint64(len(b.Transactions)))
	for _, tx := range b.Transactions {
		if err := EncodeTransaction(&txBufWriter{bw}, tx); err != nil {
			return err
		}
	}
	return bw.Err
}

// txBufWriter adapts a *util.BinWriter to io.Writer for nested transaction
// encoding, preserving the sticky-error discipline.
type txBufWriter struct{ w *util.BinWriter }

func (t *txBufWriter) Write(p []byte) (int, error) {
	t.w.WriteBytes(p)
	if t.w.Err != nil {
		return 0, t.w.Err
	}
	return len(p), nil
}

// DecodeBlock reads a full block.
func DecodeBlock(r io.Reader) (*Block, error) {
	br := util.NewBinReader(r)
	b := &Block{}
	h := decodeHeader(br)
	if br.Err != nil {
		return nil, fmt.Errorf("decode block: %w", br.Err)
	}
	b.Header = *h
	n := br.ReadVarUint()
	for i := uint64(0); i < n && br.Err == nil; i++ {
		tx, err := DecodeTransaction(br.R)
		if err != nil {
			return nil, err
		}
		b.Transactions = append(b.Transactions, tx)
	}
	if br.Err != nil {
		return nil, fmt.Errorf("decode block: %w", br.Err)
	}
	return b, nil
}

// MerkleRoot computes the standard duplicated-last-leaf SHA-256 Merkle tree
// root over hashes.
func MerkleRoot(hashes []util.UInt256) util.UInt256 {
	if len(hashes) == 0 {
		return util.UInt256{}
	}
	level := make([]util.UInt256, len(hashes))
	copy(level, hashes)
	for len(level) > 1 {
		if len(level)%2 != 0 {
			level = append(level, level[len(level)-1])
		}
		next := make([]util.UInt256, len(level)/2)
		for i := 0; i < len(next); i++ {
			buf := append(append([]byte{}, level[2*i].Bytes()...), level[2*i+1].Bytes()...)
			next[i] = util.Hash256(buf)
		}
		level = next
	}
	return level[0]
}

// ExtensiblePayload is the wire-level carrier for consensus and state-root
// gossip.
type ExtensiblePayload struct {
	Category       string
	ValidBlockStart uint32
	ValidBlockEnd   uint32
	Sender          util.UInt160
	Data            []byte
	Witness         Witness
}

func EncodeExtensiblePayload(w io.Writer, p *ExtensiblePayload) error {
	bw := util.NewBinWriter(w)
	bw.WriteVarBytes([]byte(p.Category))
	bw.WriteU32LE(p.ValidBlockStart)
	bw.WriteU32LE(p.ValidBlockEnd)
	bw.WriteBytes(p.Sender.Bytes())
	bw.WriteVarBytes(p.Data)
	writeWitness(bw, p.Witness)
	return bw.Err
}

func DecodeExtensiblePayload(r io.Reader) (*ExtensiblePayload, error) {
	br := util.NewBinReader(r)
	p := &ExtensiblePayload{}
	p.Category = string(br.ReadVarBytes(64))
	p.ValidBlockStart = br.ReadU32LE()
	p.ValidBlockEnd = br.ReadU32LE()
	b := br.ReadBytes(util.UInt160Size)
	if br.Err == nil {
		p.Sender, br.Err = util.Uint160FromBytes(b)
	}
	p.Data = br.ReadVarBytes(1 << 20)
	p.Witness = readWitness(br)
	if br.Err != nil {
		return nil, fmt.Errorf("decode extensible payload: %w", br.Err)
	}
	return p, nil
}
