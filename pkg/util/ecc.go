package util

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	dcrecdsa "github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// Curve identifies which elliptic curve a public key or signature is over.
// Neo N3 accounts default to secp256r1 (P-256); secp256k1 is accepted for
// interoperability with chains/oracles that use it (CryptoLib exposes
// verification over both).
type Curve uint8

const (
	// CurveSecp256r1 is the default account curve (NIST P-256).
	CurveSecp256r1 Curve = iota
	// CurveSecp256k1 is the alternate curve exposed by CryptoLib.
	CurveSecp256k1
)

// ErrInvalidSignature is returned by VerifySignature on a malformed or
// non-matching signature.
var ErrInvalidSignature = errors.New("util: invalid signature")

// VerifySignature checks a 64-byte r||s big-endian signature over msg for
// pubKey (X9.62 uncompressed or compressed encoding) on the given curve, per
// the wire rule: ECDSA signatures are 64 bytes, r||s, big-endian.
//
// secp256r1 verification goes through stdlib crypto/ecdsa/crypto/elliptic:
// none of the usual third-party curve libraries
// (decred/btcsuite secp256k1, herumi/kilic BLS12-381) implement NIST P-256,
// so stdlib is the only correct source for it, not a workaround.
func VerifySignature(curve Curve, pubKey, msg, sig []byte) (bool, error) {
	if len(sig) != 64 {
		return false, fmt.Errorf("verify signature: %w", ErrInvalidSignature)
	}
	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:])

	switch curve {
	case CurveSecp256r1:
		x, y := elliptic.UnmarshalCompressed(elliptic.P256(), pubKey)
		if x == nil {
			x, y = elliptic.Unmarshal(elliptic.P256(), pubKey)
		}
		if x == nil {
			return false, fmt.Errorf("verify signature: %w", ErrInvalidSignature)
		}
		pub := &ecdsa.PublicKey{Curve: elliptic.P256(), X: x, Y: y}
		h := Sha256(msg)
		return ecdsa.Verify(pub, h[:], r, s), nil
	case CurveSecp256k1:
		pub, err := secp256k1.ParsePubKey(pubKey)
		if err != nil {
			return false, fmt.Errorf("verify signature: %w", err)
		}
		var rs, ss secp256k1.ModNScalar
		rs.SetByteSlice(sig[:32])
		ss.SetByteSlice(sig[32:])
		sig := dcrecdsa.NewSignature(&rs, &ss)
		h := Sha256(msg)
		return sig.Verify(h[:], pub), nil
	default:
		return false, fmt.Errorf("verify signature: unknown curve %d", curve)
	}
}

// GenerateP256Key creates a fresh secp256r1 keypair for genesis/test fixtures.
func GenerateP256Key() (*ecdsa.PrivateKey, error) {
	return ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
}

// CompressPubKey returns the 33-byte X9.62 compressed encoding of pub, the
// form every ECPoint in ProtocolSettings.StandbyCommittee and every
// consensus validator identity is carried in.
func CompressPubKey(pub *ecdsa.PublicKey) []byte {
	return elliptic.MarshalCompressed(pub.Curve, pub.X, pub.Y)
}

// SignData produces a 64-byte r||s big-endian secp256r1 signature over msg,
// the counterpart VerifySignature(CurveSecp256r1, ...) checks — used by
// consensus validators to sign PrepareRequest/Response/Commit/ChangeView
// payloads over their SHA-256 digest.
func SignData(priv *ecdsa.PrivateKey, msg []byte) ([]byte, error) {
	h := Sha256(msg)
	r, s, err := ecdsa.Sign(rand.Reader, priv, h[:])
	if err != nil {
		return nil, fmt.Errorf("sign data: %w", err)
	}
	out := make([]byte, 64)
	rb := r.Bytes()
	sb := s.Bytes()
	copy(out[32-len(rb):32], rb)
	copy(out[64-len(sb):64], sb)
	return out, nil
}
