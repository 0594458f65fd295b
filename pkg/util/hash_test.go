package util

import (
	"bytes"
	"testing"
)

func TestHash256RoundTrip(t *testing.T) {
	h := Hash256([]byte("hello"))
	if h.String() == (UInt256{}).String() {
		t.Fatal("hash of non-empty input must not be zero")
	}
	be := h.StringBE()
	if be[:2] != "0x" {
		t.Fatalf("expected 0x prefix, got %q", be)
	}
	var back UInt256
	if err := back.UnmarshalJSON([]byte(`"` + be + `"`)); err != nil {
		t.Fatal(err)
	}
	if back != h {
		t.Fatalf("round trip mismatch: got %s want %s", back, h)
	}
}

func TestUInt160JSONRoundTrip(t *testing.T) {
	u := Hash160([]byte("script"))
	data, err := u.MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}
	var got UInt160
	if err := got.UnmarshalJSON(data); err != nil {
		t.Fatal(err)
	}
	if got != u {
		t.Fatalf("round trip mismatch: got %s want %s", got, u)
	}
}

func TestVarUintRoundTrip(t *testing.T) {
	cases := []uint64{0, 0xFC, 0xFD, 0xFFFF, 0x10000, 0xFFFFFFFF, 0x100000000}
	for _, v := range cases {
		buf := &bytes.Buffer{}
		w := NewBinWriter(buf)
		w.WriteVarUint(v)
		if w.Err != nil {
			t.Fatal(w.Err)
		}
		r := NewBinReader(buf)
		got := r.ReadVarUint()
		if r.Err != nil {
			t.Fatal(r.Err)
		}
		if got != v {
			t.Fatalf("varuint round trip: got %d want %d", got, v)
		}
	}
}

func TestVarBytesRejectsOverLong(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewBinWriter(buf)
	w.WriteVarBytes(make([]byte, 10))
	r := NewBinReader(buf)
	r.ReadVarBytes(5)
	if r.Err != ErrTooLong {
		t.Fatalf("expected ErrTooLong, got %v", r.Err)
	}
}
