package native

import (
	"bytes"

	"github.com/neonium/neond/pkg/chain"
	"github.com/neonium/neond/pkg/engine"
	"github.com/neonium/neond/pkg/store"
	"github.com/neonium/neond/pkg/util"
	"github.com/neonium/neond/pkg/vm"
)

// LedgerContract is the LedgerContract native: read-only access
// to persisted blocks/headers/transactions and the current index. It reads
// directly through the top-level store.Prefix* keys pkg/ledger writes
// (Block/Transaction/CurrentBlock), rather than duplicating that data under
// its own contract-id namespace, since the ledger is the sole writer and
// this contract only ever reads.
type LedgerContract struct {
	Base
}

// NewLedgerContract constructs and registers LedgerContract.
func NewLedgerContract() *LedgerContract {
	l := &LedgerContract{Base: newBase(IDLedgerContract, "LedgerContract")}
	Register(l)
	registerLedgerInterops(l)
	return l
}

func (l *LedgerContract) OnPersist(e *engine.ApplicationEngine) error   { return nil }
func (l *LedgerContract) PostPersist(e *engine.ApplicationEngine) error { return nil }

// CurrentIndex reads the height persisted in CurrentBlock.
func (l *LedgerContract) CurrentIndex(e *engine.ApplicationEngine) uint32 {
	v, err := e.Cache.Get([]byte{store.PrefixCurrentBlock})
	if err != nil || len(v) < 36 {
		return 0
	}
	return uint32(v[32]) | uint32(v[33])<<8 | uint32(v[34])<<16 | uint32(v[35])<<24
}

// GetBlock reads a full persisted block (header + transactions) by hash.
func (l *LedgerContract) GetBlock(e *engine.ApplicationEngine, hash util.UInt256) (*chain.Block, bool) {
	v, err := e.Cache.Get(append([]byte{store.PrefixBlock}, hash.Bytes()...))
	if err != nil {
		return nil, false
	}
	b := &chain.Block{}
	return b, decodeFullBlock(v, b)
}

// GetTransaction reads a persisted transaction by hash, alongside the
// block index it was recorded at (its position within the block is not
// stored).
func (l *LedgerContract) GetTransaction(e *engine.ApplicationEngine, hash util.UInt256) (*chain.Transaction, uint32, bool) {
	v, err := e.Cache.Get(append([]byte{store.PrefixTransaction}, hash.Bytes()...))
	if err != nil || len(v) < 4 {
		return nil, 0, false
	}
	blockIndex := uint32(v[0]) | uint32(v[1])<<8 | uint32(v[2])<<16 | uint32(v[3])<<24
	tx, err := decodeTxBytes(v[4:])
	if err != nil {
		return nil, 0, false
	}
	return tx, blockIndex, true
}

func decodeTxBytes(b []byte) (*chain.Transaction, error) {
	return chain.DecodeTransaction(bytes.NewReader(b))
}

func decodeFullBlock(b []byte, out *chain.Block) bool {
	blk, err := chain.DecodeBlock(bytes.NewReader(b))
	if err != nil {
		return false
	}
	*out = *blk
	return true
}

func registerLedgerInterops(l *LedgerContract) {
	engine.RegisterInterop(engine.InteropDescriptor{
		Name: "Ledger.CurrentIndex", FixedPrice: 1 << 15, RequiredFlags: engine.FlagReadStates,
		Handler: func(e *engine.ApplicationEngine) error {
			return push(e, vm.NewIntegerInt64(int64(l.CurrentIndex(e))))
		},
	})
	engine.RegisterInterop(engine.InteropDescriptor{
		Name: "Ledger.GetTransaction", FixedPrice: 1 << 15, RequiredFlags: engine.FlagReadStates,
		Handler: func(e *engine.ApplicationEngine) error {
			hashBytes, err := popBytes(e)
			if err != nil {
				return err
			}
			hash, err := util.Uint256FromBytes(hashBytes)
			if err != nil {
				return err
			}
			tx, _, ok := l.GetTransaction(e, hash)
			if !ok {
				return push(e, vm.Null{})
			}
			return push(e, vm.ByteString(tx.Script))
		},
	})
}
