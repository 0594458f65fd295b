// Package chain holds the wire-level block/transaction data model: pure
// value types with binary codecs and structural validation only.
// Nothing here depends on the VM or ApplicationEngine, so the ledger,
// engine, native-contract, and mempool packages can all import chain
// without forming a cycle — the "IVerificationContext capability" split
// engine and ledger both rely on, so a Transaction can be handed to a witness-verifying
// collaborator without itself referencing the concrete engine type.
package chain

import (
	"bytes"
	"errors"

	"github.com/neonium/neond/pkg/util"
)

// Limits bound structural decode sizes, referenced by both the wire codec
// and mempool/ledger admission checks.
const (
	MaxTransactionSize          = 102400
	MaxTransactionAttributes    = 16
	MaxSignerCount              = 16
	MaxWitnessScriptSize        = 65536
	MaxValidUntilBlockIncrement = 5760
)

// WitnessScope is the bitmask controlling which contexts a signer's witness
// is considered valid in.
type WitnessScope byte

const (
	ScopeNone             WitnessScope = 0x00
	ScopeCalledByEntry     WitnessScope = 0x01
	ScopeCustomContracts   WitnessScope = 0x10
	ScopeCustomGroups      WitnessScope = 0x20
	ScopeWitnessRules      WitnessScope = 0x40
	ScopeGlobal            WitnessScope = 0x80
)

// WitnessRuleAction is Allow or Deny for a WitnessRule.
type WitnessRuleAction byte

const (
	RuleDeny  WitnessRuleAction = 0
	RuleAllow WitnessRuleAction = 1
)

// WitnessRule gates a CustomContracts/CustomGroups-style scope with a
// boolean condition tree, kept here as an opaque serialized expression.
// Rules are carried and serialized but not evaluated: pkg/engine does not
// grant witnesses through the WitnessRules scope.
type WitnessRule struct {
	Action    WitnessRuleAction
	Condition []byte // opaque serialized condition
}

// Signer is one authorizer of a transaction.
type Signer struct {
	Account          util.UInt160
	Scopes           WitnessScope
	AllowedContracts []util.UInt160
	AllowedGroups    [][]byte // compressed EC points
	Rules            []WitnessRule
}

// Witness is an invocation+verification script pair.
type Witness struct {
	InvocationScript   []byte
	VerificationScript []byte
}

// ScriptHash derives the account this witness verifies: the verification
// script hashes to the signer account.
func (w Witness) ScriptHash() util.UInt160 {
	return util.Uint160FromScript(w.VerificationScript)
}

// AttributeType enumerates the transaction-attribute kinds this node
// handles: HighPriority, OracleResponse, NotValidBefore, Conflicts and
// NotaryAssisted.
type AttributeType byte

const (
	AttrHighPriority   AttributeType = 0x01
	AttrOracleResponse AttributeType = 0x11
	AttrNotValidBefore AttributeType = 0x20
	AttrConflicts      AttributeType = 0x21
	AttrNotaryAssisted AttributeType = 0x22
)

// Attribute is a single transaction attribute; the binary codec decodes the
// type-specific payload into the field(s) named for its Type below.
type Attribute struct {
	Type AttributeType
	// OracleResponseID is set for AttrOracleResponse.
	OracleResponseID uint64
	OracleResultCode  byte
	OracleResult      []byte
	// NotValidBeforeHeight is set for AttrNotValidBefore.
	NotValidBeforeHeight uint32
	// ConflictHash is set for AttrConflicts.
	ConflictHash util.UInt256
	// NKeys is set for AttrNotaryAssisted.
	NKeys byte
}

// ErrInvalidTransaction tags any structural violation of the Transaction
// invariants.
var ErrInvalidTransaction = errors.New("chain: invalid transaction")

// Transaction is a single signed invocation. Hash is computed lazily
// and cached; callers must not mutate a Transaction after first hashing.
type Transaction struct {
	Version         uint8
	Nonce           uint32
	SystemFee       int64
	NetworkFee      int64
	ValidUntilBlock uint32
	Signers         []Signer
	Attributes      []Attribute
	Script          []byte
	Witnesses       []Witness

	hash *util.UInt256
}

// Sender is the first signer's account, the fee payer by convention.
func (tx *Transaction) Sender() util.UInt160 {
	if len(tx.Signers) == 0 {
		return util.UInt160{}
	}
	return tx.Signers[0].Account
}

// GetSigners satisfies pkg/engine's ScriptContainer interface.
func (tx *Transaction) GetSigners() []Signer { return tx.Signers }

// unsignedBytes serializes every field except Witnesses, the pre-image for
// Hash(): SHA-256 of the unsigned header.
func (tx *Transaction) unsignedBytes() []byte {
	var buf bytes.Buffer
	w := util.NewBinWriter(&buf)
	w.WriteU8(tx.Version)
	w.WriteU32LE(tx.Nonce)
	w.WriteI64LE(tx.SystemFee)
	w.WriteI64LE(tx.NetworkFee)
	w.WriteU32LE(tx.ValidUntilBlock)
	w.WriteVarUint(uint64(len(tx.Signers)))
	for _, s := range tx.Signers {
		writeSigner(w, s)
	}
	w.WriteVarUint(uint64(len(tx.Attributes)))
	for _, a := range tx.Attributes {
		writeAttribute(w, a)
	}
	w.WriteVarBytes(tx.Script)
	return buf.Bytes()
}

// Hash returns the transaction hash, a single round of SHA-256 over the
// unsigned serialization, bit-exact ("hash(tx) ==
// SHA256(unsigned_bytes(tx))") — deliberately NOT the double-SHA256
// Hash256 helper in pkg/util, which is a different (Bitcoin-style)
// primitive reused elsewhere (MPT node hashing) but wrong for tx/block
// identity here.
func (tx *Transaction) Hash() util.UInt256 {
	if tx.hash != nil {
		return *tx.hash
	}
	h := util.Sha256(tx.unsignedBytes())
	u := util.UInt256(h)
	tx.hash = &u
	return u
}

// Size returns the total wire-encoded size, checked against
// MaxTransactionSize.
func (tx *Transaction) Size() int {
	var buf bytes.Buffer
	_ = EncodeTransaction(&buf, tx)
	return buf.Len()
}

// Validate checks the structural invariants that don't
// require chain state (signatures, balances, valid_until_block range are
// checked by the mempool/ledger against live state).
func (tx *Transaction) Validate() error {
	if len(tx.Witnesses) != len(tx.Signers) {
		return wrapInvalid("witness/signer count mismatch")
	}
	if len(tx.Signers) == 0 || len(tx.Signers) > MaxSignerCount {
		return wrapInvalid("invalid signer count")
	}
	if len(tx.Attributes) > MaxTransactionAttributes {
		return wrapInvalid("too many attributes")
	}
	if tx.SystemFee < 0 || tx.NetworkFee < 0 {
		return wrapInvalid("negative fee")
	}
	seen := map[util.UInt160]bool{}
	for _, s := range tx.Signers {
		if seen[s.Account] {
			return wrapInvalid("duplicate signer")
		}
		seen[s.Account] = true
	}
	if tx.Size() > MaxTransactionSize {
		return wrapInvalid("transaction too large")
	}
	return nil
}

func wrapInvalid(msg string) error {
	return &wrappedErr{msg: msg}
}

type wrappedErr struct{ msg string }

func (e *wrappedErr) Error() string { return "chain: " + e.msg }
func (e *wrappedErr) Unwrap() error  { return ErrInvalidTransaction }
