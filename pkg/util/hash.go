// Package util provides the fixed-width primitives shared by every other
// package in the node: hash types, variable-length codecs, and curve
// wrappers. Nothing here touches the store, the VM, or the ledger.
package util

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // no stdlib equivalent
)

// UInt160Size and UInt256Size are the fixed byte widths of the two hash
// types used throughout the protocol (script hashes and block/tx hashes).
const (
	UInt160Size = 20
	UInt256Size = 32
)

// UInt160 is a 20-byte little-endian hash, typically a script hash.
type UInt160 [UInt160Size]byte

// UInt256 is a 32-byte little-endian hash, typically a block or tx hash.
type UInt256 [UInt256Size]byte

var (
	// ErrInvalidHashLength is returned when decoding a hash of the wrong size.
	ErrInvalidHashLength = errors.New("util: invalid hash length")
)

// Uint160FromBytes copies b (expected little-endian, len 20) into a UInt160.
func Uint160FromBytes(b []byte) (UInt160, error) {
	var u UInt160
	if len(b) != UInt160Size {
		return u, fmt.Errorf("uint160 from bytes: %w", ErrInvalidHashLength)
	}
	copy(u[:], b)
	return u, nil
}

// Uint256FromBytes copies b (expected little-endian, len 32) into a UInt256.
func Uint256FromBytes(b []byte) (UInt256, error) {
	var u UInt256
	if len(b) != UInt256Size {
		return u, fmt.Errorf("uint256 from bytes: %w", ErrInvalidHashLength)
	}
	copy(u[:], b)
	return u, nil
}

// Bytes returns the little-endian encoding.
func (u UInt160) Bytes() []byte { b := make([]byte, UInt160Size); copy(b, u[:]); return b }

// Bytes returns the little-endian encoding.
func (u UInt256) Bytes() []byte { b := make([]byte, UInt256Size); copy(b, u[:]); return b }

// BytesBE returns the big-endian (display) byte order.
func (u UInt160) BytesBE() []byte { return reversed(u.Bytes()) }

// BytesBE returns the big-endian (display) byte order.
func (u UInt256) BytesBE() []byte { return reversed(u.Bytes()) }

func reversed(b []byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		out[len(b)-1-i] = v
	}
	return out
}

// String renders the little-endian hex form, used as a map/index key.
func (u UInt160) String() string { return hex.EncodeToString(u[:]) }

// String renders the little-endian hex form, used as a map/index key.
func (u UInt256) String() string { return hex.EncodeToString(u[:]) }

// StringBE renders the reference "0x..." big-endian display form.
func (u UInt160) StringBE() string { return "0x" + hex.EncodeToString(u.BytesBE()) }

// StringBE renders the reference "0x..." big-endian display form.
func (u UInt256) StringBE() string { return "0x" + hex.EncodeToString(u.BytesBE()) }

// Equals reports whether u and v are the same hash.
func (u UInt160) Equals(v UInt160) bool { return u == v }

// Equals reports whether u and v are the same hash.
func (u UInt256) Equals(v UInt256) bool { return u == v }

// Less gives a total order over UInt160, used for fee/committee sorting.
func (u UInt160) Less(v UInt160) bool { return bytes.Compare(u[:], v[:]) < 0 }

// Less gives a total order over UInt256, used as a deterministic tie-break.
func (u UInt256) Less(v UInt256) bool { return bytes.Compare(u[:], v[:]) < 0 }

// MarshalJSON renders the big-endian "0x..." display form, matching the
// reference node's JSON-RPC encoding of hashes.
func (u UInt160) MarshalJSON() ([]byte, error) { return []byte(`"` + u.StringBE() + `"`), nil }

// MarshalJSON renders the big-endian "0x..." display form.
func (u UInt256) MarshalJSON() ([]byte, error) { return []byte(`"` + u.StringBE() + `"`), nil }

// UnmarshalJSON parses a "0x..." or bare-hex big-endian string.
func (u *UInt160) UnmarshalJSON(data []byte) error {
	b, err := parseHexJSON(data, UInt160Size)
	if err != nil {
		return err
	}
	copy(u[:], reversed(b))
	return nil
}

// UnmarshalJSON parses a "0x..." or bare-hex big-endian string.
func (u *UInt256) UnmarshalJSON(data []byte) error {
	b, err := parseHexJSON(data, UInt256Size)
	if err != nil {
		return err
	}
	copy(u[:], reversed(b))
	return nil
}

func parseHexJSON(data []byte, size int) ([]byte, error) {
	s := string(bytes.Trim(data, `"`))
	s = string(bytes.TrimPrefix([]byte(s), []byte("0x"))) // #nosec G103 -- trivial byte trim
	var out []byte
	out, err := hex.DecodeString(string(s))
	if err != nil {
		return nil, fmt.Errorf("parse hash json: %w", err)
	}
	if len(out) != size {
		return nil, ErrInvalidHashLength
	}
	return out, nil
}

// Sha256 computes a single round of SHA-256.
func Sha256(b []byte) [32]byte { return sha256.Sum256(b) }

// Hash256 is SHA256(SHA256(b)), used for merkle-tree and MPT node hashes;
// transaction and header hashes are a single Sha256.
func Hash256(b []byte) UInt256 {
	first := sha256.Sum256(b)
	second := sha256.Sum256(first[:])
	var out UInt256
	copy(out[:], second[:])
	return out
}

// Hash160 is RIPEMD160(SHA256(b)), the script-hash derivation primitive.
// golang.org/x/crypto/ripemd160 is required here: the standard library has
// no RIPEMD160 implementation, and Neo script hashes are defined in terms of
// it, so there is no stdlib substitute to prefer.
func Hash160(b []byte) UInt160 {
	sh := sha256.Sum256(b)
	r := ripemd160.New() //nolint:staticcheck
	_, _ = r.Write(sh[:])
	sum := r.Sum(nil)
	var out UInt160
	copy(out[:], sum)
	return out
}

// Uint160FromScript derives a contract/account script hash from its
// verification script.
func Uint160FromScript(script []byte) UInt160 { return Hash160(script) }
