package mempool

import "errors"

// Error taxonomy, mirroring pkg/ledger's sentinel-plus-%w style.
var (
	// ErrAlreadyExists is an idempotent rejection of a tx already in the
	// pool.
	ErrAlreadyExists = errors.New("mempool: already exists")
	// ErrConflict is an admission rejection from the Conflicts-attribute
	// rules.
	ErrConflict = errors.New("mempool: conflict")
	// ErrFull is returned when the pool is at capacity and the incoming
	// transaction does not out-bid the lowest-fee resident.
	ErrFull = errors.New("mempool: full")
	// ErrValidation is a state-independent or state-dependent verification
	// failure.
	ErrValidation = errors.New("mempool: validation error")
)
