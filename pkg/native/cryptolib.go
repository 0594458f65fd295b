package native

import (
	"crypto/ed25519"

	"github.com/neonium/neond/pkg/engine"
	"github.com/neonium/neond/pkg/util"
	"github.com/neonium/neond/pkg/vm"
)

// CryptoLib is the CryptoLib native: pure cryptographic
// helpers with no storage of their own — ECDSA verify over secp256r1/k1,
// Ed25519 verify, and BLS12-381 pairing/aggregation.
type CryptoLib struct {
	Base
}

// NewCryptoLib constructs and registers CryptoLib.
func NewCryptoLib() *CryptoLib {
	c := &CryptoLib{Base: newBase(IDCryptoLib, "CryptoLib")}
	Register(c)
	registerCryptoLibInterops(c)
	return c
}

func (c *CryptoLib) OnPersist(e *engine.ApplicationEngine) error   { return nil }
func (c *CryptoLib) PostPersist(e *engine.ApplicationEngine) error { return nil }

func registerCryptoLibInterops(c *CryptoLib) {
	engine.RegisterInterop(engine.InteropDescriptor{
		Name: "CryptoLib.VerifyWithECDsaSecp256r1", FixedPrice: 1 << 15, RequiredFlags: engine.FlagNone,
		Handler: func(e *engine.ApplicationEngine) error {
			sig, err := popBytes(e)
			if err != nil {
				return err
			}
			pubKey, err := popBytes(e)
			if err != nil {
				return err
			}
			msg, err := popBytes(e)
			if err != nil {
				return err
			}
			ok, err := util.VerifySignature(util.CurveSecp256r1, pubKey, msg, sig)
			if err != nil {
				return push(e, vm.Bool(false))
			}
			return push(e, vm.Bool(ok))
		},
	})
	engine.RegisterInterop(engine.InteropDescriptor{
		Name: "CryptoLib.VerifyWithECDsaSecp256k1", FixedPrice: 1 << 15, RequiredFlags: engine.FlagNone,
		Handler: func(e *engine.ApplicationEngine) error {
			sig, err := popBytes(e)
			if err != nil {
				return err
			}
			pubKey, err := popBytes(e)
			if err != nil {
				return err
			}
			msg, err := popBytes(e)
			if err != nil {
				return err
			}
			ok, err := util.VerifySignature(util.CurveSecp256k1, pubKey, msg, sig)
			if err != nil {
				return push(e, vm.Bool(false))
			}
			return push(e, vm.Bool(ok))
		},
	})
	engine.RegisterInterop(engine.InteropDescriptor{
		Name: "CryptoLib.VerifyWithEd25519", FixedPrice: 1 << 15, RequiredFlags: engine.FlagNone,
		Handler: func(e *engine.ApplicationEngine) error {
			sig, err := popBytes(e)
			if err != nil {
				return err
			}
			pubKey, err := popBytes(e)
			if err != nil {
				return err
			}
			msg, err := popBytes(e)
			if err != nil {
				return err
			}
			if len(pubKey) != ed25519.PublicKeySize {
				return push(e, vm.Bool(false))
			}
			return push(e, vm.Bool(ed25519.Verify(ed25519.PublicKey(pubKey), msg, sig)))
		},
	})
	engine.RegisterInterop(engine.InteropDescriptor{
		Name: "CryptoLib.Bls12381Verify", FixedPrice: 1 << 18, RequiredFlags: engine.FlagNone,
		Handler: func(e *engine.ApplicationEngine) error {
			sig, err := popBytes(e)
			if err != nil {
				return err
			}
			pubKey, err := popBytes(e)
			if err != nil {
				return err
			}
			msg, err := popBytes(e)
			if err != nil {
				return err
			}
			ok, err := blsVerify(pubKey, msg, sig)
			if err != nil {
				return push(e, vm.Bool(false))
			}
			return push(e, vm.Bool(ok))
		},
	})
	engine.RegisterInterop(engine.InteropDescriptor{
		Name: "CryptoLib.Bls12381AggregateSignatures", FixedPrice: 1 << 18, RequiredFlags: engine.FlagNone,
		Handler: func(e *engine.ApplicationEngine) error {
			sigs, err := popByteArrays(e)
			if err != nil {
				return err
			}
			agg, err := blsAggregateSignatures(sigs)
			if err != nil {
				return err
			}
			return push(e, vm.ByteString(agg))
		},
	})
	engine.RegisterInterop(engine.InteropDescriptor{
		Name: "CryptoLib.Bls12381AggregatePublicKeys", FixedPrice: 1 << 18, RequiredFlags: engine.FlagNone,
		Handler: func(e *engine.ApplicationEngine) error {
			pubKeys, err := popByteArrays(e)
			if err != nil {
				return err
			}
			agg, err := blsAggregatePublicKeys(pubKeys)
			if err != nil {
				return err
			}
			return push(e, vm.ByteString(agg))
		},
	})
}
