package util

import (
	"encoding/binary"
	"errors"
	"io"
)

// ErrTooLong is returned when a variable-length payload exceeds a codec's
// configured maximum, a defense against hostile block/transaction inputs.
var ErrTooLong = errors.New("util: variable-length payload exceeds maximum")

// BinWriter accumulates a sticky error across writes: individual Write*
// helpers never return an error, callers check Err once at the end.
type BinWriter struct {
	W   io.Writer
	Err error
}

// NewBinWriter wraps w for sequential little-endian writes.
func NewBinWriter(w io.Writer) *BinWriter { return &BinWriter{W: w} }

func (w *BinWriter) write(b []byte) {
	if w.Err != nil {
		return
	}
	_, w.Err = w.W.Write(b)
}

// WriteU8 writes a single byte.
func (w *BinWriter) WriteU8(v uint8) { w.write([]byte{v}) }

// WriteU32LE writes a 4-byte little-endian uint32.
func (w *BinWriter) WriteU32LE(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.write(b[:])
}

// WriteU64LE writes an 8-byte little-endian uint64.
func (w *BinWriter) WriteU64LE(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.write(b[:])
}

// WriteI64LE writes an 8-byte little-endian int64 (system_fee/network_fee).
func (w *BinWriter) WriteI64LE(v int64) { w.WriteU64LE(uint64(v)) }

// WriteVarUint writes v using the reference var-int prefix scheme:
// < 0xFD inline, 0xFD+u16, 0xFE+u32, 0xFF+u64.
func (w *BinWriter) WriteVarUint(v uint64) {
	switch {
	case v < 0xFD:
		w.WriteU8(uint8(v))
	case v <= 0xFFFF:
		w.WriteU8(0xFD)
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], uint16(v))
		w.write(b[:])
	case v <= 0xFFFFFFFF:
		w.WriteU8(0xFE)
		w.WriteU32LE(uint32(v))
	default:
		w.WriteU8(0xFF)
		w.WriteU64LE(v)
	}
}

// WriteVarBytes writes a var-int length prefix followed by b.
func (w *BinWriter) WriteVarBytes(b []byte) {
	w.WriteVarUint(uint64(len(b)))
	w.write(b)
}

// WriteBytes writes b with no length prefix (fixed-width fields).
func (w *BinWriter) WriteBytes(b []byte) { w.write(b) }

// BinReader mirrors BinWriter: a sticky error, checked once at the end of a
// decode sequence.
type BinReader struct {
	R   io.Reader
	Err error
}

// NewBinReader wraps r for sequential little-endian reads.
func NewBinReader(r io.Reader) *BinReader { return &BinReader{R: r} }

func (r *BinReader) readN(n int) []byte {
	if r.Err != nil {
		return nil
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r.R, b); err != nil {
		r.Err = err
		return nil
	}
	return b
}

// ReadU8 reads a single byte.
func (r *BinReader) ReadU8() uint8 {
	b := r.readN(1)
	if b == nil {
		return 0
	}
	return b[0]
}

// ReadU32LE reads a 4-byte little-endian uint32.
func (r *BinReader) ReadU32LE() uint32 {
	b := r.readN(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

// ReadU64LE reads an 8-byte little-endian uint64.
func (r *BinReader) ReadU64LE() uint64 {
	b := r.readN(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

// ReadI64LE reads an 8-byte little-endian int64.
func (r *BinReader) ReadI64LE() int64 { return int64(r.ReadU64LE()) }

// ReadVarUint reads the var-int prefix scheme written by WriteVarUint.
func (r *BinReader) ReadVarUint() uint64 {
	b := r.ReadU8()
	switch b {
	case 0xFD:
		bb := r.readN(2)
		if bb == nil {
			return 0
		}
		return uint64(binary.LittleEndian.Uint16(bb))
	case 0xFE:
		return uint64(r.ReadU32LE())
	case 0xFF:
		return r.ReadU64LE()
	default:
		return uint64(b)
	}
}

// ReadVarBytes reads a var-int length prefix then that many bytes, rejecting
// lengths above max to bound memory use on hostile input.
func (r *BinReader) ReadVarBytes(max uint64) []byte {
	n := r.ReadVarUint()
	if r.Err != nil {
		return nil
	}
	if n > max {
		r.Err = ErrTooLong
		return nil
	}
	return r.readN(int(n))
}

// ReadBytes reads exactly n bytes with no length prefix.
func (r *BinReader) ReadBytes(n int) []byte { return r.readN(n) }
