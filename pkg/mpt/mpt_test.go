package mpt

import (
	"fmt"
	"testing"

	"github.com/neonium/neond/pkg/util"
)

func newTestTrie(t *testing.T) *Trie {
	t.Helper()
	tr, err := New(128)
	if err != nil {
		t.Fatal(err)
	}
	return tr
}

func TestPutGetRoundTrip(t *testing.T) {
	tr := newTestTrie(t)
	tr.Put([]byte("alpha"), []byte{1})
	tr.Put([]byte("alphabet"), []byte{2})
	tr.Put([]byte("beta"), []byte{3})

	for key, want := range map[string]byte{"alpha": 1, "alphabet": 2, "beta": 3} {
		got, err := tr.Get([]byte(key))
		if err != nil {
			t.Fatalf("Get(%s): %v", key, err)
		}
		if len(got) != 1 || got[0] != want {
			t.Fatalf("Get(%s) = %v, want [%d]", key, got, want)
		}
	}
	if _, err := tr.Get([]byte("alp")); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound for prefix key, got %v", err)
	}
}

func TestPutOverwritesValue(t *testing.T) {
	tr := newTestTrie(t)
	tr.Put([]byte("k"), []byte("old"))
	first := tr.Root()
	tr.Put([]byte("k"), []byte("new"))
	got, err := tr.Get([]byte("k"))
	if err != nil || string(got) != "new" {
		t.Fatalf("Get after overwrite = %q, %v", got, err)
	}
	if tr.Root() == first {
		t.Fatal("root must change when a value changes")
	}
}

func TestRootIsInsertionOrderIndependent(t *testing.T) {
	a := newTestTrie(t)
	b := newTestTrie(t)
	keys := []string{"storage/01", "storage/02", "state", "s", "zz"}
	for _, k := range keys {
		a.Put([]byte(k), []byte(k))
	}
	for i := len(keys) - 1; i >= 0; i-- {
		b.Put([]byte(keys[i]), []byte(keys[i]))
	}
	if a.Root() != b.Root() {
		t.Fatal("same contents must commit to the same root regardless of insertion order")
	}
}

func TestDeleteRemovesKey(t *testing.T) {
	tr := newTestTrie(t)
	tr.Put([]byte("keep"), []byte{1})
	tr.Put([]byte("drop"), []byte{2})
	withBoth := tr.Root()

	tr.Delete([]byte("drop"))
	if _, err := tr.Get([]byte("drop")); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if got, err := tr.Get([]byte("keep")); err != nil || got[0] != 1 {
		t.Fatalf("sibling key lost after delete: %v, %v", got, err)
	}
	if tr.Root() == withBoth {
		t.Fatal("root must change after delete")
	}
	// Deleting an absent key is a no-op.
	before := tr.Root()
	tr.Delete([]byte("never-here"))
	if tr.Root() != before {
		t.Fatal("deleting an absent key must not move the root")
	}
}

func TestProofVerifies(t *testing.T) {
	tr := newTestTrie(t)
	for i := 0; i < 32; i++ {
		tr.Put([]byte(fmt.Sprintf("key-%02d", i)), []byte(fmt.Sprintf("val-%02d", i)))
	}
	root := tr.Root()

	proof, err := tr.GetProof([]byte("key-07"))
	if err != nil {
		t.Fatalf("GetProof: %v", err)
	}
	if !VerifyProof(root, []byte("key-07"), []byte("val-07"), proof) {
		t.Fatal("valid proof rejected")
	}
}

func TestProofRejectsTampering(t *testing.T) {
	tr := newTestTrie(t)
	tr.Put([]byte("a"), []byte("1"))
	tr.Put([]byte("b"), []byte("2"))
	root := tr.Root()

	proof, err := tr.GetProof([]byte("a"))
	if err != nil {
		t.Fatalf("GetProof: %v", err)
	}
	if VerifyProof(root, []byte("a"), []byte("wrong"), proof) {
		t.Fatal("proof accepted for wrong value")
	}
	if VerifyProof(util.UInt256{0xFF}, []byte("a"), []byte("1"), proof) {
		t.Fatal("proof accepted under wrong root")
	}
	if VerifyProof(root, []byte("b"), []byte("1"), proof) {
		t.Fatal("proof accepted for wrong key")
	}
	// Flip one byte in an intermediate node.
	if len(proof) > 1 {
		tampered := make([][]byte, len(proof))
		for i, p := range proof {
			tampered[i] = append([]byte(nil), p...)
		}
		tampered[0][len(tampered[0])-1] ^= 0x01
		if VerifyProof(root, []byte("a"), []byte("1"), tampered) {
			t.Fatal("proof accepted with tampered intermediate node")
		}
	}
	if VerifyProof(root, []byte("a"), []byte("1"), nil) {
		t.Fatal("empty proof accepted")
	}
}

func TestProofForAbsentKey(t *testing.T) {
	tr := newTestTrie(t)
	tr.Put([]byte("present"), []byte("x"))
	if _, err := tr.GetProof([]byte("absent")); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound proving an absent key, got %v", err)
	}
}
