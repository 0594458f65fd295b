package native

import (
	"crypto/ed25519"
	"math/big"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/mr-tron/base58"

	"github.com/neonium/neond/pkg/chain"
	"github.com/neonium/neond/pkg/engine"
	"github.com/neonium/neond/pkg/store"
	"github.com/neonium/neond/pkg/util"
	"github.com/neonium/neond/pkg/vm"
)

// testPubKey generates a fresh compressed public key for tests exercising
// NeoToken.CommitteeAccount and RoleManagement designation; the multi-sig
// script builder rejects byte slices that aren't well-formed 33-byte
// compressed points, so an arbitrary filler slice won't do.
func testPubKey(t *testing.T) []byte {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatal(err)
	}
	return priv.PubKey().SerializeCompressed()
}

func vmArrayFixture() *vm.Array {
	return vm.NewArray([]vm.Item{
		vm.NewIntegerInt64(42),
		vm.ByteString("neond"),
		vm.Bool(true),
	})
}

// fakeContainer satisfies engine.ScriptContainer with a single Global-scope
// signer, enough to exercise native contract witness checks without
// loading a real VM script.
type fakeContainer struct {
	signer util.UInt160
}

func (f fakeContainer) Hash() util.UInt256 { return util.UInt256{} }
func (f fakeContainer) GetSigners() []chain.Signer {
	return []chain.Signer{{Account: f.signer, Scopes: chain.ScopeGlobal}}
}

func newCache() *store.Cache {
	ms := store.NewMemStore()
	return store.NewCache(ms.Snapshot())
}

func newTestEngine(signer util.UInt160) *engine.ApplicationEngine {
	return engineWithSigner(newCache(), signer)
}

// engineWithSigner builds an engine sharing cache with a fakeContainer
// witnessing signer — used when a call is gated behind a witness other
// than a plain account (e.g. NeoToken's derived committee multisig
// account), where a setup engine first computes the target hash and a
// second engine presents it as the witnessed signer.
func engineWithSigner(cache *store.Cache, signer util.UInt160) *engine.ApplicationEngine {
	return engine.New(engine.TriggerApplication, fakeContainer{signer: signer}, cache, -1, nil, nil)
}

func TestGasTokenMintBurnAndCharge(t *testing.T) {
	acct := util.UInt160{1, 2, 3}
	e := newTestEngine(acct)
	gas := NewGasToken()

	if err := gas.DistributeBlockReward(e, acct, big.NewInt(1000)); err != nil {
		t.Fatal(err)
	}
	if bal := gas.BalanceOf(e, acct); bal.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("expected balance 1000, got %s", bal)
	}
	if err := gas.Charge(e, acct, big.NewInt(400)); err != nil {
		t.Fatal(err)
	}
	if bal := gas.BalanceOf(e, acct); bal.Cmp(big.NewInt(600)) != 0 {
		t.Fatalf("expected balance 600 after charge, got %s", bal)
	}
	if err := gas.Charge(e, acct, big.NewInt(10000)); err != engine.ErrInsufficientGas {
		t.Fatalf("expected insufficient gas, got %v", err)
	}
}

func TestNeoTokenCommitteeFallsBackToStandby(t *testing.T) {
	acct := util.UInt160{9}
	e := newTestEngine(acct)
	neo := NewNeoToken(1, 1)

	standby := [][]byte{{0x01, 0x02}}
	neo.InitStandbyCommittee(e, standby)

	committee := neo.Committee(e)
	if len(committee) != 1 {
		t.Fatalf("expected standby fallback of len 1, got %d", len(committee))
	}
	validators := neo.NextBlockValidators(e)
	if len(validators) != 1 {
		t.Fatalf("expected 1 validator, got %d", len(validators))
	}
}

func TestRoleManagementDesignateAndQuery(t *testing.T) {
	cache := newCache()
	setup := engineWithSigner(cache, util.UInt160{})
	neo := NewNeoToken(1, 1)
	neo.InitStandbyCommittee(setup, [][]byte{testPubKey(t)})
	committeeAcct, err := neo.CommitteeAccount(setup)
	if err != nil {
		t.Fatal(err)
	}

	e := engineWithSigner(cache, committeeAcct)
	roles := NewRoleManagement()
	roles.SetCommittee(neo)

	nodes := [][]byte{{0x01}, {0x02}}
	if !roles.Designate(e, RoleOracle, 100, nodes) {
		t.Fatal("expected committee-witnessed designate to succeed")
	}
	got := roles.GetDesignatedByRole(e, RoleOracle, 200)
	if len(got) != 2 {
		t.Fatalf("expected 2 designated nodes, got %d", len(got))
	}
	if none := roles.GetDesignatedByRole(e, RoleOracle, 50); none != nil {
		t.Fatalf("expected no designation before height 100, got %v", none)
	}
}

func TestOracleRequestAndRespond(t *testing.T) {
	cache := newCache()
	// Request charges e.CurrentScriptHash(), which with no VM script
	// loaded resolves to the zero UInt160 — fund that account directly
	// rather than an arbitrary caller account.
	zeroPayer := util.UInt160{}
	gas := NewGasToken()
	fundEngine := engineWithSigner(cache, zeroPayer)
	if err := gas.DistributeBlockReward(fundEngine, zeroPayer, big.NewInt(1_000_000)); err != nil {
		t.Fatal(err)
	}

	neo := NewNeoToken(1, 1)
	neo.InitStandbyCommittee(fundEngine, [][]byte{testPubKey(t)})
	committeeAcct, err := neo.CommitteeAccount(fundEngine)
	if err != nil {
		t.Fatal(err)
	}
	roles := NewRoleManagement()
	roles.SetCommittee(neo)
	oracle := NewOracleContract(gas)
	oracle.SetRoles(roles)

	nodePub := testPubKey(t)
	nodeAcct := util.Hash160(append([]byte{0x0C, byte(len(nodePub))}, nodePub...))
	committeeEngine := engineWithSigner(cache, committeeAcct)
	if !roles.Designate(committeeEngine, RoleOracle, 0, [][]byte{nodePub}) {
		t.Fatal("expected committee-witnessed designate to succeed")
	}

	callback := util.UInt160{8}
	id, ok := oracle.Request(fundEngine, "https://example.test", "$", callback, "onData", []byte("ud"), big.NewInt(100))
	if !ok || id == "" {
		t.Fatal("expected request to be admitted")
	}

	oracleCallerEngine := engineWithSigner(cache, nodeAcct)
	if !oracle.Respond(oracleCallerEngine, id, 0, []byte("result")) {
		t.Fatal("expected oracle-node-witnessed response to be accepted")
	}
	if oracle.Respond(oracleCallerEngine, id, 0, []byte("again")) {
		t.Fatal("expected duplicate response to be rejected")
	}
	contract, method, ud, found := oracle.PendingCallback(fundEngine, id)
	if !found || contract != callback || method != "onData" || string(ud) != "ud" {
		t.Fatalf("unexpected pending callback: %v %v %v %v", contract, method, ud, found)
	}
}

func TestNotaryLockAndWithdraw(t *testing.T) {
	acct := util.UInt160{3}
	e := newTestEngine(acct)
	gas := NewGasToken()
	if err := gas.DistributeBlockReward(e, acct, big.NewInt(5000)); err != nil {
		t.Fatal(err)
	}
	notary := NewNotaryContract(gas)

	if !notary.LockDeposit(e, acct, big.NewInt(1000), 100) {
		t.Fatal("expected deposit lock to succeed")
	}
	if bal := gas.BalanceOf(e, acct); bal.Cmp(big.NewInt(4000)) != 0 {
		t.Fatalf("expected balance debited to 4000, got %s", bal)
	}
	if notary.Withdraw(e, acct, 50) {
		t.Fatal("expected withdraw before Till to fail")
	}
	if !notary.Withdraw(e, acct, 100) {
		t.Fatal("expected withdraw at Till to succeed")
	}
	if bal := gas.BalanceOf(e, acct); bal.Cmp(big.NewInt(5000)) != 0 {
		t.Fatalf("expected balance restored to 5000, got %s", bal)
	}
	if notary.Balance(e, acct).Sign() != 0 {
		t.Fatal("expected no locked balance after withdrawal")
	}
}

func TestStdLibJSONRoundTrip(t *testing.T) {
	_ = NewStdLib()
	arr := vmArrayFixture()
	j, err := itemToJSON(arr)
	if err != nil {
		t.Fatal(err)
	}
	back, err := jsonToItem(j)
	if err != nil {
		t.Fatal(err)
	}
	backArr, ok := back.(*vm.Array)
	if !ok || len(backArr.Items) != len(arr.Items) {
		t.Fatalf("json round-trip shape mismatch: %#v", back)
	}
	for i := range arr.Items {
		if !backArr.Items[i].Equals(arr.Items[i]) {
			t.Fatalf("item %d mismatch: %#v vs %#v", i, backArr.Items[i], arr.Items[i])
		}
	}
}

func TestStdLibBase58RoundTrip(t *testing.T) {
	encoded := base58.Encode([]byte("neond"))
	decoded, err := base58.Decode(encoded)
	if err != nil || string(decoded) != "neond" {
		t.Fatalf("base58 round-trip failed: %q %v", decoded, err)
	}
}

func TestCryptoLibEd25519Verify(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatal(err)
	}
	msg := []byte("neond oracle response")
	sig := ed25519.Sign(priv, msg)
	if !ed25519.Verify(pub, msg, sig) {
		t.Fatal("expected stdlib ed25519 verification to succeed")
	}
	_ = NewCryptoLib()
}
