//go:build !noherumi

package native

import (
	"errors"
	"sync"

	bls "github.com/herumi/bls-eth-go-binary/bls"
)

// blsOnce guards bls.Init, which the library requires exactly once per
// process before any key/signature type is touched, the binding's own
// package-level init() in core/security.go.
var blsOnce sync.Once

func ensureBLSInit() {
	blsOnce.Do(func() {
		if err := bls.Init(bls.BLS12_381); err != nil {
			panic(err)
		}
	})
}

// blsVerify checks a compressed BLS12-381 signature over msg under pubKey,
// via the herumi cgo binding — the primary backend per SPEC's DOMAIN STACK
// wiring; cryptolib_bls_purego.go is the pure-Go fallback built with tag
// noherumi.
func blsVerify(pubKey, msg, sig []byte) (bool, error) {
	ensureBLSInit()
	var pk bls.PublicKey
	if err := pk.Deserialize(pubKey); err != nil {
		return false, err
	}
	var s bls.Sign
	if err := s.Deserialize(sig); err != nil {
		return false, err
	}
	return s.VerifyByte(&pk, msg), nil
}

// blsAggregateSignatures merges compressed BLS signatures by point
// addition.
func blsAggregateSignatures(sigs [][]byte) ([]byte, error) {
	ensureBLSInit()
	if len(sigs) == 0 {
		return nil, errors.New("cryptolib: no signatures to aggregate")
	}
	var agg bls.Sign
	for i, raw := range sigs {
		var s bls.Sign
		if err := s.Deserialize(raw); err != nil {
			return nil, err
		}
		if i == 0 {
			agg = s
		} else {
			agg.Add(&s)
		}
	}
	return agg.Serialize(), nil
}

// blsAggregatePublicKeys merges compressed BLS public keys by point
// addition.
func blsAggregatePublicKeys(pubKeys [][]byte) ([]byte, error) {
	ensureBLSInit()
	if len(pubKeys) == 0 {
		return nil, errors.New("cryptolib: no public keys to aggregate")
	}
	var agg bls.PublicKey
	for i, raw := range pubKeys {
		var pk bls.PublicKey
		if err := pk.Deserialize(raw); err != nil {
			return nil, err
		}
		if i == 0 {
			agg = pk
		} else {
			agg.Add(&pk)
		}
	}
	return agg.Serialize(), nil
}
