package native

import (
	"math/big"

	"github.com/google/uuid"

	"github.com/neonium/neond/pkg/engine"
	"github.com/neonium/neond/pkg/util"
	"github.com/neonium/neond/pkg/vm"
)

// storage subkeys for OracleContract.
const (
	oracleRequestPrefix  byte = 0x01 // request id -> encoded OracleRequest
	oracleResponsePrefix byte = 0x02 // request id -> marker, enforces one response per request
)

// MaxOracleNotValidBeforeDelta bounds how far a request's not-valid-before
// window may reach past the current height.
const MaxOracleNotValidBeforeDelta = 5760

// OracleRequest is the pending-request record keyed by request id.
type OracleRequest struct {
	URL              string
	Filter           string
	CallbackContract util.UInt160
	CallbackMethod   string
	UserData         []byte
	GasForResponse   *big.Int
	OriginalTxHash   util.UInt256
}

// OracleNodeChecker abstracts "fetch the role-designated oracle node set",
// satisfied by RoleManagement at wiring time — kept narrow so
// OracleContract never reaches into RoleManagement's storage layout
// directly, mirroring CommitteeChecker's role in policy.go.
type OracleNodeChecker interface {
	GetDesignatedByRole(e *engine.ApplicationEngine, role Role, height uint32) [][]byte
}

// OracleContract is the OracleContract native: submits
// requests carrying a URL/filter/callback/user-data/gas payment, and
// accepts oracle-node-signed responses.
type OracleContract struct {
	Base
	roles OracleNodeChecker
	gas   *GasToken
}

// NewOracleContract constructs and registers OracleContract. gas funds
// each request's upfront payment.
func NewOracleContract(gas *GasToken) *OracleContract {
	o := &OracleContract{Base: newBase(IDOracleContract, "OracleContract"), gas: gas}
	Register(o)
	registerOracleInterops(o)
	return o
}

// SetRoles wires the oracle-node role source once RoleManagement exists.
func (o *OracleContract) SetRoles(r OracleNodeChecker) { o.roles = r }

func (o *OracleContract) OnPersist(e *engine.ApplicationEngine) error   { return nil }
func (o *OracleContract) PostPersist(e *engine.ApplicationEngine) error { return nil }

// Request submits a new oracle request, charging gasForResponse from the
// calling contract's GAS balance up front. Returns the generated request id.
func (o *OracleContract) Request(e *engine.ApplicationEngine, url, filter string, callback util.UInt160, callbackMethod string, userData []byte, gasForResponse *big.Int) (string, bool) {
	if gasForResponse.Sign() <= 0 {
		return "", false
	}
	payer := e.CurrentScriptHash()
	if o.gas != nil {
		if err := o.gas.Charge(e, payer, gasForResponse); err != nil {
			return "", false
		}
	}
	id := uuid.New().String()
	req := OracleRequest{
		URL: url, Filter: filter, CallbackContract: callback, CallbackMethod: callbackMethod,
		UserData: userData, GasForResponse: gasForResponse, OriginalTxHash: e.Container.Hash(),
	}
	putItem(e, o.ID(), append([]byte{oracleRequestPrefix}, []byte(id)...), encodeOracleRequest(&req))
	return id, true
}

// hasOracleWitness reports whether the current container carries a witness
// from any currently designated oracle node. A single oracle-node signature
// is accepted here rather than the reference majority-quorum threshold — no
// pack repo implements a node-quorum witness count, so this is documented
// a single-signer authorization rather than a node quorum. Since
// OracleContract has no wired access to LedgerContract's current height
// without a native-to-native import cycle, the role lookup asks for the
// latest snapshot (height ^uint32(0)) rather than the exact persisting
// height; also documented as an Open Question.
func (o *OracleContract) hasOracleWitness(e *engine.ApplicationEngine) bool {
	if o.roles == nil {
		return false
	}
	nodes := o.roles.GetDesignatedByRole(e, RoleOracle, ^uint32(0))
	for _, pk := range nodes {
		acct := util.Hash160(append([]byte{0x0C, byte(len(pk))}, pk...))
		if e.CheckWitness(acct) {
			return true
		}
	}
	return false
}

// Respond records an oracle-node-signed response for requestID, rejecting
// duplicates. The actual callback invocation is driven by the ledger via
// PendingCallback once the response is accepted, the same externally-driven
// pattern GasToken.DistributeBlockReward uses rather than having the
// native contract invoke scripts on its own.
func (o *OracleContract) Respond(e *engine.ApplicationEngine, requestID string, code byte, result []byte) bool {
	if !o.hasOracleWitness(e) {
		return false
	}
	respKey := append([]byte{oracleResponsePrefix}, []byte(requestID)...)
	if _, ok := getItem(e, o.ID(), respKey); ok {
		return false
	}
	if _, ok := getItem(e, o.ID(), append([]byte{oracleRequestPrefix}, []byte(requestID)...)); !ok {
		return false
	}
	putItem(e, o.ID(), respKey, append([]byte{code}, result...))
	return true
}

// PendingCallback returns the callback target recorded for requestID, for
// the ledger to invoke once Respond has accepted a response.
func (o *OracleContract) PendingCallback(e *engine.ApplicationEngine, requestID string) (contract util.UInt160, method string, userData []byte, ok bool) {
	raw, found := getItem(e, o.ID(), append([]byte{oracleRequestPrefix}, []byte(requestID)...))
	if !found {
		return util.UInt160{}, "", nil, false
	}
	req := decodeOracleRequest(raw)
	return req.CallbackContract, req.CallbackMethod, req.UserData, true
}

func encodeOracleRequest(r *OracleRequest) []byte {
	var out []byte
	out = appendVarBytes(out, []byte(r.URL))
	out = appendVarBytes(out, []byte(r.Filter))
	out = append(out, r.CallbackContract.Bytes()...)
	out = appendVarBytes(out, []byte(r.CallbackMethod))
	out = appendVarBytes(out, r.UserData)
	out = appendVarBytes(out, r.GasForResponse.Bytes())
	out = append(out, r.OriginalTxHash.Bytes()...)
	return out
}

func decodeOracleRequest(b []byte) *OracleRequest {
	r := &OracleRequest{GasForResponse: big.NewInt(0)}
	var urlB, filterB, methodB, userB, gasB []byte
	urlB, b = readVarBytes(b)
	r.URL = string(urlB)
	filterB, b = readVarBytes(b)
	r.Filter = string(filterB)
	if len(b) >= util.UInt160Size {
		r.CallbackContract, _ = util.Uint160FromBytes(b[:util.UInt160Size])
		b = b[util.UInt160Size:]
	}
	methodB, b = readVarBytes(b)
	r.CallbackMethod = string(methodB)
	userB, b = readVarBytes(b)
	r.UserData = userB
	gasB, b = readVarBytes(b)
	r.GasForResponse = new(big.Int).SetBytes(gasB)
	if len(b) >= util.UInt256Size {
		r.OriginalTxHash, _ = util.Uint256FromBytes(b[:util.UInt256Size])
	}
	return r
}

func registerOracleInterops(o *OracleContract) {
	engine.RegisterInterop(engine.InteropDescriptor{
		Name: "Oracle.Request", FixedPrice: 1 << 20, RequiredFlags: engine.FlagWriteStates | engine.FlagAllowNotify,
		Handler: func(e *engine.ApplicationEngine) error {
			gasForResponse, err := popInteger(e)
			if err != nil {
				return err
			}
			userData, err := popBytes(e)
			if err != nil {
				return err
			}
			callbackMethod, err := popString(e)
			if err != nil {
				return err
			}
			callback, err := popUInt160(e)
			if err != nil {
				return err
			}
			filter, err := popString(e)
			if err != nil {
				return err
			}
			url, err := popString(e)
			if err != nil {
				return err
			}
			id, ok := o.Request(e, url, filter, callback, callbackMethod, userData, gasForResponse)
			if !ok {
				return push(e, vm.Null{})
			}
			return push(e, vm.ByteString(id))
		},
	})
	engine.RegisterInterop(engine.InteropDescriptor{
		Name: "Oracle.Respond", FixedPrice: 1 << 20, RequiredFlags: engine.FlagWriteStates,
		Handler: func(e *engine.ApplicationEngine) error {
			result, err := popBytes(e)
			if err != nil {
				return err
			}
			code, err := popInteger(e)
			if err != nil {
				return err
			}
			id, err := popString(e)
			if err != nil {
				return err
			}
			return push(e, vm.Bool(o.Respond(e, id, byte(code.Int64()), result)))
		},
	})
}
