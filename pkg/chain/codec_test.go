package chain

import (
	"bytes"
	"testing"

	"github.com/neonium/neond/pkg/util"
)

// TestTransactionRoundTrip covers the serialization round-trip
// property: decode(encode(tx)) == tx.
func TestTransactionRoundTrip(t *testing.T) {
	tx := &Transaction{
		Version:         0,
		Nonce:           0x01020304,
		ValidUntilBlock: 100,
		Signers: []Signer{
			{Account: util.UInt160{1, 1, 1}, Scopes: ScopeCalledByEntry},
		},
		Script:    []byte{0x40},
		Witnesses: []Witness{{InvocationScript: nil, VerificationScript: []byte{0x11, 0x0B, 0x41}}},
	}
	var buf bytes.Buffer
	if err := EncodeTransaction(&buf, tx); err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeTransaction(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Hash() != tx.Hash() {
		t.Fatalf("hash mismatch after round-trip")
	}
	if got.Nonce != tx.Nonce || got.ValidUntilBlock != tx.ValidUntilBlock {
		t.Fatalf("field mismatch after round-trip: %+v", got)
	}
}

// TestMerkleRootDuplicatesLastLeaf checks the duplicated-last-leaf tree.
func TestMerkleRootDuplicatesLastLeaf(t *testing.T) {
	h1 := mustU256(t, 0x11)
	h2 := mustU256(t, 0x22)
	h3 := mustU256(t, 0x33)

	got := MerkleRoot([]util.UInt256{h1, h2, h3})

	// Reference computation: tree over [H1,H2,H3,H3].
	l1 := util.Hash256(append(append([]byte{}, h1.Bytes()...), h2.Bytes()...))
	l2 := util.Hash256(append(append([]byte{}, h3.Bytes()...), h3.Bytes()...))
	want := util.Hash256(append(append([]byte{}, l1.Bytes()...), l2.Bytes()...))

	if got != want {
		t.Fatalf("merkle root mismatch:\n got  %x\n want %x", got, want)
	}
}

func mustU256(t *testing.T, b byte) util.UInt256 {
	t.Helper()
	var u util.UInt256
	for i := range u {
		u[i] = b
	}
	return u
}

func TestTransactionValidateRejectsMismatchedWitnesses(t *testing.T) {
	tx := &Transaction{
		Signers:   []Signer{{Account: util.UInt160{1}}},
		Witnesses: nil,
	}
	if err := tx.Validate(); err == nil {
		t.Fatalf("expected validation error for witness/signer mismatch")
	}
}

// TestTransactionHashIsSha256OfUnsignedBytes pins transaction identity to a
// single SHA-256 round over the unsigned serialization, byte for byte.
func TestTransactionHashIsSha256OfUnsignedBytes(t *testing.T) {
	account := util.UInt160{}
	for i := range account {
		account[i] = 0x01
	}
	tx := &Transaction{
		Version:         0,
		Nonce:           0x01020304,
		SystemFee:       0,
		NetworkFee:      0,
		ValidUntilBlock: 100,
		Signers:         []Signer{{Account: account, Scopes: ScopeCalledByEntry}},
		Script:          []byte{0x40},
		Witnesses:       []Witness{{InvocationScript: nil, VerificationScript: []byte{0x11, 0x0B, 0x41, 0xAA, 0xBB, 0xCC, 0xDD}}},
	}
	want := util.UInt256(util.Sha256(tx.unsignedBytes()))
	if tx.Hash() != want {
		t.Fatalf("hash = %s, want SHA-256 of unsigned bytes %s", tx.Hash(), want)
	}
	// The witness must not influence identity.
	tx2 := *tx
	tx2.Witnesses = []Witness{{InvocationScript: []byte{0x01}, VerificationScript: []byte{0x02}}}
	tx2.hash = nil
	if tx2.Hash() != tx.Hash() {
		t.Fatal("witness bytes leaked into the transaction hash")
	}
}
