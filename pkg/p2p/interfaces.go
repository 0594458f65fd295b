// Package p2p is the node's interface-only network boundary: the core
// depends on two small interfaces (BlockchainProvider, PeerRegistry)
// rather than any concrete transport, and this package's own Node type is
// one implementation of PeerRegistry built on libp2p and gossipsub — kept
// in the same package as the interfaces themselves since, unlike
// ledger/mempool/consensus, nothing else in this repo needs to reach this
// package without also being willing to depend on libp2p.
package p2p

import (
	"github.com/neonium/neond/pkg/chain"
	"github.com/neonium/neond/pkg/util"
)

// PeerID identifies a connected peer; backed by a libp2p peer.ID's string
// form in the concrete Node, kept as a plain string here so neither this
// interface nor its consumers need to import libp2p's peer package.
type PeerID string

// Message is one inventory item addressed to a topic: Topic names which
// kind Data decodes as (block, transaction, or consensus payload), and
// Data is the wire-encoded payload produced by pkg/chain's own codecs.
type Message struct {
	Topic string
	Data  []byte
}

// Well-known topics for the three inventory kinds the core exchanges.
const (
	TopicBlock       = "block"
	TopicTransaction = "tx"
	TopicConsensus   = "dBFT"
)

// ConnectHandler and DisconnectHandler are invoked as peers join or leave
// the registry, the callback-registration half of PeerRegistry's
// "peer connect/disconnect callback registration" requirement.
type ConnectHandler func(peer PeerID)
type DisconnectHandler func(peer PeerID)

// BlockchainProvider is the read/relay surface the P2P layer consumes from
// the core to answer inventory requests from peers and to feed inbound
// blocks/transactions back into the node's own ledger and mempool.
type BlockchainProvider interface {
	Height() uint32
	GetBlock(hash util.UInt256) (*chain.Block, error)
	GetHeader(hash util.UInt256) (*chain.Header, error)
	RelayBlock(b *chain.Block) error
	RelayTransaction(tx *chain.Transaction) error
	ContainsBlock(hash util.UInt256) bool
	ContainsTransaction(hash util.UInt256) bool
}

// PeerRegistry is the send/broadcast surface the core (principally
// pkg/consensus) consumes from the P2P layer.
type PeerRegistry interface {
	ConnectedCount() int
	Broadcast(msg Message) error
	BroadcastExcept(msg Message, except []PeerID) error
	SendTo(peer PeerID, msg Message) error
	OnConnect(h ConnectHandler)
	OnDisconnect(h DisconnectHandler)
}
