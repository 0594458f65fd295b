package ledger

import (
	"github.com/neonium/neond/pkg/engine"
	"github.com/neonium/neond/pkg/store"
)

// Validators returns the compressed public keys of the committee expected
// to produce the next block, satisfying pkg/consensus's read-only need for
// the current validator set. Falls back to the configured standby
// committee before any committee vote has been recorded, mirroring
// persist.go's primaryAccount fallback.
func (l *Ledger) Validators() [][]byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	cache := store.NewCache(l.store.Snapshot())
	e := l.engineFor(engine.TriggerApplication, emptyContainer{}, cache, unlimitedGas)
	validators := l.neo.NextBlockValidators(e)
	if len(validators) == 0 {
		validators = l.settings.StandbyCommittee
		if len(validators) > l.settings.ValidatorsCount {
			validators = validators[:l.settings.ValidatorsCount]
		}
	}
	return validators
}
