package config

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "node.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAppliesDefaultsWhenFileOmitsFields(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Node.ListenAddr == "" {
		t.Fatal("expected default listen address")
	}
	if cfg.Logging.Level != "info" {
		t.Fatalf("expected default log level info, got %q", cfg.Logging.Level)
	}
	s, err := cfg.ProtocolSettings()
	if err != nil {
		t.Fatalf("ProtocolSettings: %v", err)
	}
	if s.MillisecondsPerBlock != 15000 {
		t.Fatalf("expected reference block time default, got %d", s.MillisecondsPerBlock)
	}
}

func TestLoadParsesYAMLAndCommitteeKeys(t *testing.T) {
	key := make([]byte, 33)
	key[0] = 0x02
	key[32] = 0x7F
	path := writeConfig(t, `
protocol:
  network_magic: 12345
  milliseconds_per_block: 1000
  validators_count: 1
  standby_committee:
    - `+hex.EncodeToString(key)+`
node:
  listen_addr: /ip4/127.0.0.1/tcp/30333
logging:
  level: debug
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Node.ListenAddr != "/ip4/127.0.0.1/tcp/30333" {
		t.Fatalf("listen addr not read: %q", cfg.Node.ListenAddr)
	}
	s, err := cfg.ProtocolSettings()
	if err != nil {
		t.Fatalf("ProtocolSettings: %v", err)
	}
	if s.NetworkMagic != 12345 || s.MillisecondsPerBlock != 1000 {
		t.Fatalf("protocol overrides not applied: %+v", s)
	}
	if len(s.StandbyCommittee) != 1 || s.StandbyCommittee[0][32] != 0x7F {
		t.Fatal("committee key not decoded")
	}
	if cfg.Logger().Level.String() != "debug" {
		t.Fatal("log level not applied")
	}
}

func TestLoadRejectsMalformedCommitteeKey(t *testing.T) {
	path := writeConfig(t, `
protocol:
  standby_committee:
    - "zzzz"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := cfg.ProtocolSettings(); err == nil {
		t.Fatal("expected error for non-hex committee key")
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
node:
  listen_addr: /ip4/127.0.0.1/tcp/30333
`)
	t.Setenv("NEOND_LISTEN_ADDR", "/ip4/0.0.0.0/tcp/40333")
	t.Setenv("NEOND_LOG_LEVEL", "warn")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Node.ListenAddr != "/ip4/0.0.0.0/tcp/40333" {
		t.Fatalf("env override not applied: %q", cfg.Node.ListenAddr)
	}
	if cfg.Logging.Level != "warn" {
		t.Fatalf("env log level not applied: %q", cfg.Logging.Level)
	}
}

func TestConsensusKeyRoundTrip(t *testing.T) {
	raw := make([]byte, 32)
	raw[31] = 0x01
	cfg := &Config{Consensus: ConsensusSection{Enabled: true, PrivateKey: hex.EncodeToString(raw)}}
	priv, err := cfg.ConsensusKey()
	if err != nil {
		t.Fatalf("ConsensusKey: %v", err)
	}
	if priv == nil || priv.D.Sign() == 0 {
		t.Fatal("expected a usable private key")
	}
	disabled := &Config{}
	if k, err := disabled.ConsensusKey(); err != nil || k != nil {
		t.Fatal("disabled consensus must yield nil key, nil error")
	}
}
