// Package config loads the node's YAML configuration file and applies
// environment-variable overrides: a reusable loader package consumed by
// cmd/, built on gopkg.in/yaml.v3 plus a github.com/joho/godotenv overlay.
package config

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"encoding/hex"
	"fmt"
	"math/big"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/neonium/neond/pkg/ledger"
)

// Config mirrors the structure of the node's YAML config file, one nested
// struct per section.
type Config struct {
	Protocol  ProtocolSection  `yaml:"protocol"`
	Node      NodeSection      `yaml:"node"`
	Consensus ConsensusSection `yaml:"consensus"`
	Logging   LoggingSection   `yaml:"logging"`
}

// ProtocolSection carries the per-network protocol parameters in their
// file representation: committee keys are hex strings here and decoded to
// raw compressed points by ProtocolSettings().
type ProtocolSection struct {
	NetworkMagic                uint32            `yaml:"network_magic"`
	AddressVersion              byte              `yaml:"address_version"`
	MillisecondsPerBlock        uint32            `yaml:"milliseconds_per_block"`
	MaxTransactionsPerBlock     uint32            `yaml:"max_transactions_per_block"`
	MemoryPoolMaxTransactions   int               `yaml:"memory_pool_max_transactions"`
	MaxTraceableBlocks          uint32            `yaml:"max_traceable_blocks"`
	MaxValidUntilBlockIncrement uint32            `yaml:"max_valid_until_block_increment"`
	InitialGasDistribution      uint64            `yaml:"initial_gas_distribution"`
	StandbyCommittee            []string          `yaml:"standby_committee"`
	ValidatorsCount             int               `yaml:"validators_count"`
	CommitteeSize               int               `yaml:"committee_size"`
	SeedList                    []string          `yaml:"seed_list"`
	HardForks                   map[string]uint32 `yaml:"hardforks"`
}

// NodeSection configures the P2P node.
type NodeSection struct {
	ListenAddr     string   `yaml:"listen_addr"`
	BootstrapPeers []string `yaml:"bootstrap_peers"`
	ProtocolID     string   `yaml:"protocol_id"`
	DiscoveryTag   string   `yaml:"discovery_tag"`
}

// ConsensusSection enables validator mode. PrivateKey is the hex-encoded
// 32-byte P-256 scalar of this validator's signing key; leaving it empty
// runs the node as an observer.
type ConsensusSection struct {
	Enabled         bool   `yaml:"enabled"`
	PrivateKey      string `yaml:"private_key"`
	RecoveryDelayMS int    `yaml:"recovery_delay_ms"`
}

// LoggingSection carries the logging options; only the level is
// configurable, log-output routing is the operator's concern.
type LoggingSection struct {
	Level string `yaml:"level"`
}

// Load reads an optional .env file, then the YAML config at path (skipped
// when path is empty), then applies NEOND_* environment overrides. Missing
// .env is not an error, mirroring godotenv's conventional best-effort use
// in the pack's cmd entrypoints.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("NEOND_LISTEN_ADDR"); v != "" {
		c.Node.ListenAddr = v
	}
	if v := os.Getenv("NEOND_NETWORK_MAGIC"); v != "" {
		if n, err := strconv.ParseUint(v, 0, 32); err == nil {
			c.Protocol.NetworkMagic = uint32(n)
		}
	}
	if v := os.Getenv("NEOND_CONSENSUS_KEY"); v != "" {
		c.Consensus.PrivateKey = v
		c.Consensus.Enabled = true
	}
	if v := os.Getenv("NEOND_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

func (c *Config) applyDefaults() {
	if c.Node.ListenAddr == "" {
		c.Node.ListenAddr = "/ip4/0.0.0.0/tcp/20333"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// ProtocolSettings converts the file representation into the ledger's
// runtime settings, starting from ledger.DefaultSettings so fields the file
// omits keep the reference defaults.
func (c *Config) ProtocolSettings() (*ledger.ProtocolSettings, error) {
	s := ledger.DefaultSettings()
	p := c.Protocol
	if p.NetworkMagic != 0 {
		s.NetworkMagic = p.NetworkMagic
	}
	if p.AddressVersion != 0 {
		s.AddressVersion = p.AddressVersion
	}
	if p.MillisecondsPerBlock != 0 {
		s.MillisecondsPerBlock = p.MillisecondsPerBlock
	}
	if p.MaxTransactionsPerBlock != 0 {
		s.MaxTransactionsPerBlock = p.MaxTransactionsPerBlock
	}
	if p.MemoryPoolMaxTransactions != 0 {
		s.MemoryPoolMaxTransactions = p.MemoryPoolMaxTransactions
	}
	if p.MaxTraceableBlocks != 0 {
		s.MaxTraceableBlocks = p.MaxTraceableBlocks
	}
	if p.MaxValidUntilBlockIncrement != 0 {
		s.MaxValidUntilBlockIncrement = p.MaxValidUntilBlockIncrement
	}
	if p.InitialGasDistribution != 0 {
		s.InitialGasDistribution = p.InitialGasDistribution
	}
	if p.ValidatorsCount != 0 {
		s.ValidatorsCount = p.ValidatorsCount
	}
	if p.CommitteeSize != 0 {
		s.CommitteeSize = p.CommitteeSize
	}
	s.SeedList = p.SeedList
	for name, height := range p.HardForks {
		s.HardForks[ledger.HardFork(name)] = height
	}
	for i, keyHex := range p.StandbyCommittee {
		raw, err := hex.DecodeString(keyHex)
		if err != nil {
			return nil, fmt.Errorf("config: standby_committee[%d]: %w", i, err)
		}
		if len(raw) != 33 {
			return nil, fmt.Errorf("config: standby_committee[%d]: want 33-byte compressed point, got %d bytes", i, len(raw))
		}
		s.StandbyCommittee = append(s.StandbyCommittee, raw)
	}
	return s, nil
}

// ConsensusKey decodes the configured validator key. Returns nil with no
// error when consensus is disabled or no key is set.
func (c *Config) ConsensusKey() (*ecdsa.PrivateKey, error) {
	if !c.Consensus.Enabled || c.Consensus.PrivateKey == "" {
		return nil, nil
	}
	raw, err := hex.DecodeString(c.Consensus.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("config: consensus private_key: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("config: consensus private_key: want 32 bytes, got %d", len(raw))
	}
	curve := elliptic.P256()
	d := new(big.Int).SetBytes(raw)
	if d.Sign() == 0 || d.Cmp(curve.Params().N) >= 0 {
		return nil, fmt.Errorf("config: consensus private_key out of range")
	}
	priv := &ecdsa.PrivateKey{D: d}
	priv.Curve = curve
	priv.X, priv.Y = curve.ScalarBaseMult(raw)
	return priv, nil
}

// RecoveryDelay returns the configured recovery-request delay, zero when
// unset (consensus.NewService then falls back to the block time).
func (c *Config) RecoveryDelay() time.Duration {
	return time.Duration(c.Consensus.RecoveryDelayMS) * time.Millisecond
}

// Logger builds a logrus logger at the configured level, falling back to
// Info on an unparseable level string rather than failing startup.
func (c *Config) Logger() *logrus.Logger {
	log := logrus.New()
	lvl, err := logrus.ParseLevel(c.Logging.Level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)
	return log
}
