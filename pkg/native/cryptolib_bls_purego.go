//go:build noherumi

package native

import (
	"errors"

	bls12381 "github.com/kilic/bls12-381"
)

// blsDST is the hash-to-curve domain separation tag for minimal-pubkey-size
// BLS12-381 signatures (signatures in G2, public keys in G1), the standard
// ciphersuite both herumi and kilic implement.
const blsDST = "BLS_SIG_BLS12381G2_XMD:SHA-256_SSWU_RO_NUL_"

// blsVerify is the pure-Go fallback backend (build tag noherumi), used when
// the herumi cgo binding is unavailable. Checks the pairing equation
// e(pubKey, H(msg)) * e(-G1, sig) == 1 via kilic/bls12-381's engine, which
// is equivalent to herumi's VerifyByte for the same ciphersuite. No pack
// repo exercises kilic directly, so this is a best-effort reconstruction of
// its documented pairing-engine API.
func blsVerify(pubKey, msg, sig []byte) (bool, error) {
	g1 := bls12381.NewG1()
	g2 := bls12381.NewG2()

	pk, err := g1.FromCompressed(pubKey)
	if err != nil {
		return false, err
	}
	sigPoint, err := g2.FromCompressed(sig)
	if err != nil {
		return false, err
	}
	hm, err := g2.HashToCurve(msg, []byte(blsDST))
	if err != nil {
		return false, err
	}

	e := bls12381.NewEngine()
	e.AddPair(pk, hm)
	e.AddPairInv(g1.One(), sigPoint)
	return e.Check(), nil
}

// blsAggregateSignatures merges compressed BLS signatures (G2 points) by
// curve addition.
func blsAggregateSignatures(sigs [][]byte) ([]byte, error) {
	if len(sigs) == 0 {
		return nil, errors.New("cryptolib: no signatures to aggregate")
	}
	g2 := bls12381.NewG2()
	agg, err := g2.FromCompressed(sigs[0])
	if err != nil {
		return nil, err
	}
	for _, raw := range sigs[1:] {
		p, err := g2.FromCompressed(raw)
		if err != nil {
			return nil, err
		}
		g2.Add(agg, agg, p)
	}
	return g2.ToCompressed(agg), nil
}

// blsAggregatePublicKeys merges compressed BLS public keys (G1 points) by
// curve addition.
func blsAggregatePublicKeys(pubKeys [][]byte) ([]byte, error) {
	if len(pubKeys) == 0 {
		return nil, errors.New("cryptolib: no public keys to aggregate")
	}
	g1 := bls12381.NewG1()
	agg, err := g1.FromCompressed(pubKeys[0])
	if err != nil {
		return nil, err
	}
	for _, raw := range pubKeys[1:] {
		p, err := g1.FromCompressed(raw)
		if err != nil {
			return nil, err
		}
		g1.Add(agg, agg, p)
	}
	return g1.ToCompressed(agg), nil
}
