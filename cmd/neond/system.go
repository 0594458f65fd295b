package main

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/neonium/neond/pkg/chain"
	"github.com/neonium/neond/pkg/config"
	"github.com/neonium/neond/pkg/consensus"
	"github.com/neonium/neond/pkg/ledger"
	"github.com/neonium/neond/pkg/mempool"
	"github.com/neonium/neond/pkg/p2p"
	"github.com/neonium/neond/pkg/store"
	"github.com/neonium/neond/pkg/util"
)

// maxBlockSystemFee mirrors PolicyContract's default dBFT acceptance bound
// (pkg/native/policy.go), applied at mempool admission so the pool never
// holds a transaction no block could carry.
const maxBlockSystemFee = 9000 * 100000000

// unverifiedPoolDepth bounds the post-persist unverified bucket.
const unverifiedPoolDepth = 5000

// System owns the lifecycle of every core component and routes block/tx
// relay between them: ledger and mempool are wired to the P2P boundary
// through System itself (it is the p2p.BlockchainProvider), and consensus
// — when a validator key is configured — consumes the mempool and persists
// through the same AddBlock path inbound blocks use.
type System struct {
	cfg      *config.Config
	settings *ledger.ProtocolSettings
	log      *logrus.Logger

	kv     store.KVStore
	ledger *ledger.Ledger
	pool   *mempool.Pool
	node   *p2p.Node
	cons   *consensus.Service
}

// NewSystem builds every component bottom-up: store, ledger, mempool,
// P2P node, and (optionally) consensus. There are no package-level
// singletons anywhere in the tree; System is the only place all the
// handles meet.
func NewSystem(cfg *config.Config) (*System, error) {
	log := cfg.Logger()
	settings, err := cfg.ProtocolSettings()
	if err != nil {
		return nil, err
	}

	// The in-memory store is the default backend; a persistent engine
	// drops in behind the same KVStore interface.
	kv := store.NewMemStore()

	led, err := ledger.NewLedger(settings, kv, log)
	if err != nil {
		return nil, fmt.Errorf("system: open ledger: %w", err)
	}

	pool := mempool.NewPool(mempool.Config{
		Capacity:          settings.MemoryPoolMaxTransactions,
		MaxBlockSystemFee: maxBlockSystemFee,
		UnverifiedDepth:   unverifiedPoolDepth,
	}, led, log)

	node, err := p2p.NewNode(p2p.Config{
		ListenAddr:     cfg.Node.ListenAddr,
		BootstrapPeers: append(cfg.Node.BootstrapPeers, settings.SeedList...),
		ProtocolID:     cfg.Node.ProtocolID,
		DiscoveryTag:   cfg.Node.DiscoveryTag,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("system: start p2p node: %w", err)
	}

	s := &System{cfg: cfg, settings: settings, log: log, kv: kv, ledger: led, pool: pool, node: node}

	key, err := cfg.ConsensusKey()
	if err != nil {
		node.Close()
		return nil, err
	}
	if key != nil {
		cons, err := consensus.NewService(consensus.Config{
			PrivateKey:              key,
			BlockTime:               time.Duration(settings.MillisecondsPerBlock) * time.Millisecond,
			MaxTransactionsPerBlock: int(settings.MaxTransactionsPerBlock),
			RecoveryRequestDelay:    cfg.RecoveryDelay(),
		}, led, pool, node, kv, log)
		if err != nil {
			node.Close()
			return nil, fmt.Errorf("system: wire consensus: %w", err)
		}
		s.cons = cons
	}

	node.OnMessage(s.handleInventory)
	return s, nil
}

// Start subscribes the node to the three inventory topics and, when
// configured as a validator, starts the consensus actor.
func (s *System) Start(ctx context.Context) error {
	for _, topic := range []string{p2p.TopicBlock, p2p.TopicTransaction, p2p.TopicConsensus} {
		if err := s.node.Subscribe(topic); err != nil {
			return fmt.Errorf("system: subscribe %s: %w", topic, err)
		}
	}
	if s.cons != nil {
		s.cons.Start(ctx)
	}
	s.log.WithFields(logrus.Fields{
		"height":    s.ledger.Height(),
		"magic":     s.settings.NetworkMagic,
		"validator": s.cons != nil,
	}).Info("node started")
	return nil
}

// Stop shuts components down in reverse dependency order: consensus first
// (it may still persist a committed block), then the network. The ledger
// needs no explicit stop — its persistence is a single atomic write batch
// per block, so there is never a partial state to flush.
func (s *System) Stop() {
	if s.cons != nil {
		s.cons.Stop()
	}
	if err := s.node.Close(); err != nil {
		s.log.WithError(err).Warn("system: close p2p node")
	}
	s.log.Info("node stopped")
}

// handleInventory routes one inbound P2P message by topic: blocks and
// transactions feed the relay methods below, consensus payloads go to the
// consensus actor's inbox.
func (s *System) handleInventory(from p2p.PeerID, msg p2p.Message) {
	switch msg.Topic {
	case p2p.TopicBlock:
		b, err := chain.DecodeBlock(bytes.NewReader(msg.Data))
		if err != nil {
			s.log.WithError(err).Debug("system: malformed block inventory")
			return
		}
		if err := s.RelayBlock(b); err != nil {
			s.log.WithError(err).WithField("hash", b.Hash().String()).Debug("system: block rejected")
		}
	case p2p.TopicTransaction:
		tx, err := chain.DecodeTransaction(bytes.NewReader(msg.Data))
		if err != nil {
			s.log.WithError(err).Debug("system: malformed transaction inventory")
			return
		}
		if err := s.RelayTransaction(tx); err != nil {
			s.log.WithError(err).WithField("hash", tx.Hash().String()).Debug("system: transaction rejected")
		}
	case p2p.TopicConsensus:
		if s.cons == nil {
			return
		}
		payload, err := chain.DecodeExtensiblePayload(bytes.NewReader(msg.Data))
		if err != nil {
			return
		}
		s.cons.HandleConsensusPayload(from, payload)
	}
}

// Height implements p2p.BlockchainProvider.
func (s *System) Height() uint32 { return s.ledger.Height() }

// GetBlock implements p2p.BlockchainProvider.
func (s *System) GetBlock(hash util.UInt256) (*chain.Block, error) {
	return s.ledger.GetBlock(hash)
}

// GetHeader implements p2p.BlockchainProvider.
func (s *System) GetHeader(hash util.UInt256) (*chain.Header, error) {
	b, err := s.ledger.GetBlock(hash)
	if err != nil {
		return nil, err
	}
	return &b.Header, nil
}

// ContainsBlock implements p2p.BlockchainProvider.
func (s *System) ContainsBlock(hash util.UInt256) bool {
	return s.ledger.ContainsBlock(hash)
}

// ContainsTransaction implements p2p.BlockchainProvider.
func (s *System) ContainsTransaction(hash util.UInt256) bool {
	return s.ledger.ContainsTransaction(hash) || s.pool.Has(hash)
}

// RelayBlock persists an inbound block, updates the mempool (removal of
// persisted/conflicting transactions plus bounded reverification of the
// rest), and re-gossips the block — driven here because relay is a
// cross-actor concern no single actor owns.
func (s *System) RelayBlock(b *chain.Block) error {
	if s.ledger.ContainsBlock(b.Hash()) {
		return nil
	}
	if err := s.ledger.AddBlock(b); err != nil {
		return err
	}
	s.pool.OnBlockPersisted(b)
	budget := time.Duration(s.settings.MillisecondsPerBlock) * time.Millisecond / 5
	s.pool.ReverifyUnverified(budget)

	var buf bytes.Buffer
	if err := chain.EncodeBlock(&buf, b); err != nil {
		return err
	}
	if err := s.node.Broadcast(p2p.Message{Topic: p2p.TopicBlock, Data: buf.Bytes()}); err != nil {
		s.log.WithError(err).Warn("system: re-broadcast block")
	}
	return nil
}

// RelayTransaction admits an inbound transaction to the pool and gossips
// it on success. Pool admission runs the full verification battery, so a
// transaction this node re-broadcasts has already passed the same checks
// peers will run.
func (s *System) RelayTransaction(tx *chain.Transaction) error {
	if err := s.pool.Add(tx); err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := chain.EncodeTransaction(&buf, tx); err != nil {
		return err
	}
	if err := s.node.Broadcast(p2p.Message{Topic: p2p.TopicTransaction, Data: buf.Bytes()}); err != nil {
		s.log.WithError(err).Warn("system: re-broadcast transaction")
	}
	return nil
}
