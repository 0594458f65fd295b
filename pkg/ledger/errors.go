package ledger

import "errors"

// Error taxonomy: tagged kinds, not type names. Every exported
// error below satisfies errors.Is against its kind sentinel via %w wrapping
// at the call site.
var (
	// ErrValidation is a structural violation of block/tx/witness
	// invariants; the inventory is dropped.
	ErrValidation = errors.New("ledger: validation error")
	// ErrAlreadyExists is an idempotent rejection of a tx/block already
	// persisted.
	ErrAlreadyExists = errors.New("ledger: already exists")
	// ErrStorage is a fatal underlying store I/O failure; the persist is
	// aborted and on-disk state remains unchanged.
	ErrStorage = errors.New("ledger: storage error")
	// ErrHeaderCacheFull is returned by HeaderCache.Push when the backlog
	// is at capacity; it rejects rather than evicts.
	ErrHeaderCacheFull = errors.New("ledger: header cache full")
)

// ErrNotFound is returned by read accessors for a hash/height with no
// persisted record.
var ErrNotFound = errors.New("ledger: not found")
