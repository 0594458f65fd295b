// Package ledger implements block/transaction validation, persistence, and
// state commitment: the single actor that owns the write cache, the header
// backlog, and the MPT root.
package ledger

import (
	"fmt"

	"github.com/neonium/neond/pkg/util"
)

// HardFork names a protocol upgrade gate; activation heights are carried in
// ProtocolSettings.HardForks, consulted once per dispatch path rather than
// scattering height checks.
type HardFork string

// ProtocolSettings is the process-wide static per-network configuration,
// YAML-tagged for config.Load (pkg/config, wired by cmd/neond).
type ProtocolSettings struct {
	NetworkMagic               uint32            `yaml:"network_magic"`
	AddressVersion             byte              `yaml:"address_version"`
	MillisecondsPerBlock       uint32            `yaml:"milliseconds_per_block"`
	MaxTransactionsPerBlock    uint32            `yaml:"max_transactions_per_block"`
	MemoryPoolMaxTransactions  int               `yaml:"memory_pool_max_transactions"`
	MaxTraceableBlocks         uint32            `yaml:"max_traceable_blocks"`
	MaxValidUntilBlockIncrement uint32           `yaml:"max_valid_until_block_increment"`
	InitialGasDistribution     uint64            `yaml:"initial_gas_distribution"`
	StandbyCommittee           [][]byte          `yaml:"standby_committee"`
	ValidatorsCount            int               `yaml:"validators_count"`
	CommitteeSize              int               `yaml:"committee_size"`
	SeedList                   []string          `yaml:"seed_list"`
	HardForks                  map[HardFork]uint32 `yaml:"hardforks"`
}

// HardForkActive reports whether fork is activated at or before height,
// the single gate every hard-fork-sensitive dispatch path consults.
func (p *ProtocolSettings) HardForkActive(fork HardFork, height uint32) bool {
	h, ok := p.HardForks[fork]
	if !ok {
		return false
	}
	return height >= h
}

// DefaultSettings returns the reference genesis defaults used when no
// config file overrides them, matching PolicyContract's own hardcoded
// defaults (pkg/native/policy.go) so a freshly bootstrapped node's Policy
// reads agree with the settings it was launched with.
func DefaultSettings() *ProtocolSettings {
	return &ProtocolSettings{
		NetworkMagic:                0x334F454E, // "NEO3" little-endian-ish magic, environment-specific
		AddressVersion:              0x35,
		MillisecondsPerBlock:        15000,
		MaxTransactionsPerBlock:     512,
		MemoryPoolMaxTransactions:   50000,
		MaxTraceableBlocks:          2102400,
		MaxValidUntilBlockIncrement: 5760,
		InitialGasDistribution:      52000000 * 100000000,
		ValidatorsCount:             7,
		CommitteeSize:               21,
		HardForks:                   map[HardFork]uint32{},
	}
}

// committeeMultiSigM mirrors NeoToken.CommitteeAccount's majority rule
// (n/2+1), kept here too since genesis construction derives next_consensus
// before any NeoToken call runs.
func committeeMultiSigM(n int) int { return n/2 + 1 }

// GenesisNextConsensus derives the genesis block's next_consensus account:
// the validators_count-sized multi-sig script hash over the standby
// committee's first ValidatorsCount keys, mirroring
// NeoToken.NextBlockValidators' pre-committee-vote fallback.
func (p *ProtocolSettings) GenesisNextConsensus() (util.UInt160, error) {
	if len(p.StandbyCommittee) == 0 {
		return util.UInt160{}, fmt.Errorf("no standby committee configured")
	}
	validators := p.StandbyCommittee
	if len(validators) > p.ValidatorsCount {
		validators = validators[:p.ValidatorsCount]
	}
	m := committeeMultiSigM(len(validators))
	script, err := util.BuildMultiSigScript(m, validators)
	if err != nil {
		return util.UInt160{}, err
	}
	return util.Uint160FromScript(script), nil
}
