package native

import (
	"math/big"
	"sort"

	"github.com/neonium/neond/pkg/engine"
	"github.com/neonium/neond/pkg/store"
	"github.com/neonium/neond/pkg/util"
	"github.com/neonium/neond/pkg/vm"
)

// NeoTotalSupply is the fixed, indivisible NEO supply, minted in full to
// the committee's joint account at genesis.
const NeoTotalSupply = 100_000_000

const (
	neoCandidatePrefix      byte = 0x01 // candidate pubkey -> registered marker
	neoCandidateVotesPrefix byte = 0x02 // candidate pubkey -> vote tally (big.Int)
	neoVotePrefix           byte = 0x03 // account -> candidate pubkey (current vote target)
	neoStandbyKey           byte = 0x04 // the genesis standby committee pubkey list
)

// NeoToken is the NeoToken native: NEP-17 governance token with
// candidate registration, voting, committee/validator derivation, and the
// committee-witness check PolicyContract's mutators gate on.
type NeoToken struct {
	Base
	nep17
	validatorsCount int
	committeeSize   int
}

// NewNeoToken constructs and registers NeoToken. validatorsCount and
// committeeSize come from config.ProtocolSettings at wiring time.
func NewNeoToken(validatorsCount, committeeSize int) *NeoToken {
	n := &NeoToken{Base: newBase(IDNeoToken, "NeoToken"), validatorsCount: validatorsCount, committeeSize: committeeSize}
	n.nep17 = nep17{contractID: n.ID(), symbol: "NEO", decimals: 0}
	Register(n)
	registerNEP17Interops("NEO", &n.nep17, n.Hash)
	registerNeoTokenInterops(n)
	return n
}

// InitStandbyCommittee seeds the genesis candidate set from the
// ProtocolSettings standby_committee list, called once at genesis block
// construction.
func (n *NeoToken) InitStandbyCommittee(e *engine.ApplicationEngine, pubKeys [][]byte) {
	var blob []byte
	for _, pk := range pubKeys {
		blob = appendVarBytes(blob, pk)
		putItem(e, n.ID(), append([]byte{neoCandidatePrefix}, pk...), []byte{1})
	}
	putItem(e, n.ID(), []byte{neoStandbyKey}, blob)
}

func (n *NeoToken) standbyCommittee(e *engine.ApplicationEngine) [][]byte {
	blob, ok := getItem(e, n.ID(), []byte{neoStandbyKey})
	if !ok {
		return nil
	}
	var out [][]byte
	for len(blob) > 0 {
		var pk []byte
		pk, blob = readVarBytes(blob)
		if pk == nil {
			break
		}
		out = append(out, pk)
	}
	return out
}

type candidate struct {
	pubKey []byte
	votes  *big.Int
}

func (n *NeoToken) votesFor(e *engine.ApplicationEngine, pubKey []byte) *big.Int {
	return getBigInt(e, n.ID(), append([]byte{neoCandidateVotesPrefix}, pubKey...))
}

func (n *NeoToken) setVotesFor(e *engine.ApplicationEngine, pubKey []byte, v *big.Int) {
	putBigInt(e, n.ID(), append([]byte{neoCandidateVotesPrefix}, pubKey...), v)
}

// candidates returns every registered candidate with its vote tally,
// ordered by votes descending then pubkey ascending (a deterministic
// tie-break, since Go map iteration order is not stable).
func (n *NeoToken) candidates(e *engine.ApplicationEngine) []candidate {
	var out []candidate
	prefix := store.StorageKey(n.ID(), []byte{neoCandidatePrefix})
	it := e.Cache.Seek(prefix, store.Forward)
	defer it.Close()
	for it.Next() {
		key := it.Key()
		if len(key) <= len(prefix) {
			continue
		}
		pk := append([]byte(nil), key[len(prefix):]...)
		out = append(out, candidate{pubKey: pk, votes: n.votesFor(e, pk)})
	}
	sort.Slice(out, func(i, j int) bool {
		c := out[i].votes.Cmp(out[j].votes)
		if c != 0 {
			return c > 0
		}
		return string(out[i].pubKey) < string(out[j].pubKey)
	})
	return out
}

// Committee returns the top committeeSize candidates by vote, falling back
// to the standby list when fewer are registered.
func (n *NeoToken) Committee(e *engine.ApplicationEngine) [][]byte {
	cands := n.candidates(e)
	if len(cands) < n.committeeSize {
		return n.standbyCommittee(e)
	}
	out := make([][]byte, n.committeeSize)
	for i := 0; i < n.committeeSize; i++ {
		out[i] = cands[i].pubKey
	}
	return out
}

// NextBlockValidators returns the first validatorsCount members of the
// committee, in committee order; BuildMultiSigScript sorts them when the
// multi-sig script is built.
func (n *NeoToken) NextBlockValidators(e *engine.ApplicationEngine) [][]byte {
	committee := n.Committee(e)
	if len(committee) > n.validatorsCount {
		committee = committee[:n.validatorsCount]
	}
	return committee
}

// CommitteeAccount derives the committee's m-of-n multi-sig script hash,
// the account PolicyContract mutators require a witness from. m is a plain
// majority (n/2 + 1).
func (n *NeoToken) CommitteeAccount(e *engine.ApplicationEngine) (util.UInt160, error) {
	committee := n.Committee(e)
	m := len(committee)/2 + 1
	script, err := util.BuildMultiSigScript(m, committee)
	if err != nil {
		return util.UInt160{}, err
	}
	return util.Uint160FromScript(script), nil
}

// CheckCommitteeWitness satisfies native.CommitteeChecker for
// PolicyContract's gated mutators.
func (n *NeoToken) CheckCommitteeWitness(e *engine.ApplicationEngine) bool {
	acct, err := n.CommitteeAccount(e)
	if err != nil {
		return false
	}
	return e.CheckWitness(acct)
}

// RegisterCandidate marks pubKey as a registered candidate; requires a
// witness from the account the pubkey derives: the Hash160 of a PUSHDATA1
// push of pubKey (no CheckSig SYSCALL is part of the hashed bytes).
func (n *NeoToken) RegisterCandidate(e *engine.ApplicationEngine, pubKey []byte) bool {
	acct := util.Hash160(append([]byte{0x0C, byte(len(pubKey))}, pubKey...))
	if !e.CheckWitness(acct) {
		return false
	}
	if _, ok := getItem(e, n.ID(), append([]byte{neoCandidatePrefix}, pubKey...)); !ok {
		putItem(e, n.ID(), append([]byte{neoCandidatePrefix}, pubKey...), []byte{1})
	}
	return true
}

// Vote sets account's vote target to candidatePubKey (nil cancels), scaled
// by account's NEO balance; requires account's witness.
func (n *NeoToken) Vote(e *engine.ApplicationEngine, account util.UInt160, candidatePubKey []byte) bool {
	if !e.CheckWitness(account) {
		return false
	}
	bal := n.BalanceOf(e, account)
	if old, ok := getItem(e, n.ID(), append([]byte{neoVotePrefix}, account.Bytes()...)); ok {
		n.adjustVotes(e, old, new(big.Int).Neg(bal))
	}
	if candidatePubKey == nil {
		deleteItem(e, n.ID(), append([]byte{neoVotePrefix}, account.Bytes()...))
		return true
	}
	putItem(e, n.ID(), append([]byte{neoVotePrefix}, account.Bytes()...), candidatePubKey)
	n.adjustVotes(e, candidatePubKey, bal)
	return true
}

func (n *NeoToken) adjustVotes(e *engine.ApplicationEngine, pubKey []byte, delta *big.Int) {
	votes := n.votesFor(e, pubKey)
	votes.Add(votes, delta)
	if votes.Sign() < 0 {
		votes.SetInt64(0)
	}
	n.setVotesFor(e, pubKey, votes)
}

func registerNeoTokenInterops(n *NeoToken) {
	engine.RegisterInterop(engine.InteropDescriptor{
		Name: "NEO.RegisterCandidate", FixedPrice: 1 << 20, RequiredFlags: engine.FlagWriteStates,
		Handler: func(e *engine.ApplicationEngine) error {
			pk, err := popBytes(e)
			if err != nil {
				return err
			}
			return push(e, vm.Bool(n.RegisterCandidate(e, pk)))
		},
	})
	engine.RegisterInterop(engine.InteropDescriptor{
		Name: "NEO.Vote", FixedPrice: 1 << 18, RequiredFlags: engine.FlagWriteStates,
		Handler: func(e *engine.ApplicationEngine) error {
			pk, err := popBytes(e)
			if err != nil {
				return err
			}
			acct, err := popUInt160(e)
			if err != nil {
				return err
			}
			var target []byte
			if len(pk) > 0 {
				target = pk
			}
			return push(e, vm.Bool(n.Vote(e, acct, target)))
		},
	})
	engine.RegisterInterop(engine.InteropDescriptor{
		Name: "NEO.GetCommittee", FixedPrice: 1 << 16, RequiredFlags: engine.FlagReadStates,
		Handler: func(e *engine.ApplicationEngine) error {
			committee := n.Committee(e)
			items := make([]vm.Item, len(committee))
			for i, pk := range committee {
				items[i] = vm.ByteString(pk)
			}
			return push(e, vm.NewArray(items))
		},
	})
	engine.RegisterInterop(engine.InteropDescriptor{
		Name: "NEO.GetNextBlockValidators", FixedPrice: 1 << 16, RequiredFlags: engine.FlagReadStates,
		Handler: func(e *engine.ApplicationEngine) error {
			vs := n.NextBlockValidators(e)
			items := make([]vm.Item, len(vs))
			for i, pk := range vs {
				items[i] = vm.ByteString(pk)
			}
			return push(e, vm.NewArray(items))
		},
	})
}

func (n *NeoToken) OnPersist(e *engine.ApplicationEngine) error   { return nil }
func (n *NeoToken) PostPersist(e *engine.ApplicationEngine) error { return nil }
