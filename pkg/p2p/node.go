package p2p

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	libp2p "github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	ma "github.com/multiformats/go-multiaddr"
	"github.com/sirupsen/logrus"

	"github.com/neonium/neond/pkg/util"
)

// Config configures a Node: a listen multiaddress, a set of bootstrap
// peers to dial on startup, and the protocol ID direct (non-gossip) sends
// use.
type Config struct {
	ListenAddr     string
	BootstrapPeers []string
	ProtocolID     string
	DiscoveryTag   string
}

// Node is a libp2p-backed PeerRegistry: gossipsub for Broadcast, direct
// streams for SendTo/BroadcastExcept (gossipsub has no per-peer exclusion
// primitive at publish time).
type Node struct {
	host host.Host
	ps   *pubsub.PubSub
	log  *logrus.Logger

	protocolID protocol.ID

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	topics map[string]*pubsub.Topic
	peers  map[PeerID]peer.ID

	handlerMu          sync.RWMutex
	connectHandlers    []ConnectHandler
	disconnectHandlers []DisconnectHandler
	messageHandlers    []func(from PeerID, msg Message)
}

// NewNode creates and bootstraps a node: a libp2p host, a GossipSub
// router, a direct-stream handler for non-gossip sends, and outbound
// connections to every configured bootstrap peer.
func NewNode(cfg Config, log *logrus.Logger) (*Node, error) {
	if log == nil {
		log = logrus.New()
	}
	ctx, cancel := context.WithCancel(context.Background())

	h, err := libp2p.New(libp2p.ListenAddrStrings(cfg.ListenAddr))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("p2p: create host: %w", err)
	}
	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		h.Close()
		cancel()
		return nil, fmt.Errorf("p2p: create pubsub: %w", err)
	}

	protoID := cfg.ProtocolID
	if protoID == "" {
		protoID = "/neond/1.0.0"
	}

	n := &Node{
		host:       h,
		ps:         ps,
		log:        log,
		protocolID: protocol.ID(protoID),
		ctx:        ctx,
		cancel:     cancel,
		topics:     make(map[string]*pubsub.Topic),
		peers:      make(map[PeerID]peer.ID),
	}

	h.Network().Notify(n)
	h.SetStreamHandler(n.protocolID, n.handleStream)

	var dialErrs []error
	for _, addr := range cfg.BootstrapPeers {
		if err := n.dial(addr); err != nil {
			dialErrs = append(dialErrs, err)
		}
	}
	if len(dialErrs) > 0 {
		n.log.WithField("errors", dialErrs).Warn("p2p: some bootstrap peers unreachable")
	}
	return n, nil
}

func (n *Node) dial(addr string) error {
	info, err := peer.AddrInfoFromString(addr)
	if err != nil {
		return fmt.Errorf("p2p: invalid bootstrap address %q: %w", addr, err)
	}
	ctx, cancel := context.WithTimeout(n.ctx, 10*time.Second)
	defer cancel()
	if err := n.host.Connect(ctx, *info); err != nil {
		return fmt.Errorf("p2p: dial %q: %w", addr, err)
	}
	return nil
}

// Close tears down the host and stops all background goroutines.
func (n *Node) Close() error {
	n.cancel()
	return n.host.Close()
}

// ConnectedCount reports the number of peers libp2p currently has an open
// connection to.
func (n *Node) ConnectedCount() int {
	return len(n.host.Network().Peers())
}

// Broadcast gossips msg to every subscriber of msg.Topic, joining the topic
// on first use — mirrors core.Node.Broadcast's join-then-publish shape.
func (n *Node) Broadcast(msg Message) error {
	t, err := n.topicFor(msg.Topic)
	if err != nil {
		return err
	}
	if err := t.Publish(n.ctx, msg.Data); err != nil {
		return fmt.Errorf("p2p: publish topic %s: %w", msg.Topic, err)
	}
	return nil
}

// BroadcastExcept delivers msg to every connected peer other than those in
// except, via direct streams rather than gossipsub (which has no per-peer
// exclusion primitive) — needed for dBFT fan-out, where a validator must
// not re-send a message to the peer it just received it from.
func (n *Node) BroadcastExcept(msg Message, except []PeerID) error {
	excluded := make(map[PeerID]bool, len(except))
	for _, p := range except {
		excluded[p] = true
	}
	n.mu.RLock()
	targets := make([]PeerID, 0, len(n.peers))
	for id := range n.peers {
		if !excluded[id] {
			targets = append(targets, id)
		}
	}
	n.mu.RUnlock()

	var firstErr error
	for _, id := range targets {
		if err := n.SendTo(id, msg); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// SendTo opens a direct stream to peer and writes msg, the counterpart to
// core.PeerManagement.SendAsync (core/peer_management.go), generalized from
// a single-byte message code into a (topic, data) pair framed with
// pkg/util's own var-bytes codec.
func (n *Node) SendTo(id PeerID, msg Message) error {
	n.mu.RLock()
	pid, ok := n.peers[id]
	n.mu.RUnlock()
	if !ok {
		var err error
		pid, err = peer.Decode(string(id))
		if err != nil {
			return fmt.Errorf("p2p: unknown peer %s: %w", id, err)
		}
	}
	ctx, cancel := context.WithTimeout(n.ctx, 5*time.Second)
	defer cancel()
	s, err := n.host.NewStream(ctx, pid, n.protocolID)
	if err != nil {
		return fmt.Errorf("p2p: open stream to %s: %w", id, err)
	}
	defer s.Close()

	var buf bytes.Buffer
	w := util.NewBinWriter(&buf)
	w.WriteVarBytes([]byte(msg.Topic))
	w.WriteVarBytes(msg.Data)
	if w.Err != nil {
		return fmt.Errorf("p2p: frame message: %w", w.Err)
	}
	if _, err := s.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("p2p: write stream to %s: %w", id, err)
	}
	return nil
}

func (n *Node) handleStream(s network.Stream) {
	defer s.Close()
	r := util.NewBinReader(s)
	topic := string(r.ReadVarBytes(64))
	data := r.ReadVarBytes(1 << 20)
	if r.Err != nil {
		n.log.WithError(r.Err).Warn("p2p: malformed direct message")
		return
	}
	from := PeerID(s.Conn().RemotePeer().String())
	n.dispatch(from, Message{Topic: topic, Data: data})
}

// Subscribe joins topic (if not already joined) and delivers every message
// received on it to every registered message handler, the gossip-path
// counterpart to handleStream's direct-send path.
func (n *Node) Subscribe(topic string) error {
	t, err := n.topicFor(topic)
	if err != nil {
		return err
	}
	sub, err := t.Subscribe()
	if err != nil {
		return fmt.Errorf("p2p: subscribe topic %s: %w", topic, err)
	}
	go func() {
		for {
			m, err := sub.Next(n.ctx)
			if err != nil {
				return
			}
			if m.ReceivedFrom == n.host.ID() {
				continue
			}
			n.dispatch(PeerID(m.ReceivedFrom.String()), Message{Topic: topic, Data: m.Data})
		}
	}()
	return nil
}

func (n *Node) topicFor(topic string) (*pubsub.Topic, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	t, ok := n.topics[topic]
	if ok {
		return t, nil
	}
	t, err := n.ps.Join(topic)
	if err != nil {
		return nil, fmt.Errorf("p2p: join topic %s: %w", topic, err)
	}
	n.topics[topic] = t
	return t, nil
}

// OnMessage registers a handler invoked for every inbound message, whether
// delivered over gossipsub (Subscribe) or a direct stream (SendTo).
func (n *Node) OnMessage(h func(from PeerID, msg Message)) {
	n.handlerMu.Lock()
	defer n.handlerMu.Unlock()
	n.messageHandlers = append(n.messageHandlers, h)
}

func (n *Node) dispatch(from PeerID, msg Message) {
	n.handlerMu.RLock()
	handlers := append([]func(from PeerID, msg Message){}, n.messageHandlers...)
	n.handlerMu.RUnlock()
	for _, h := range handlers {
		h(from, msg)
	}
}

// OnConnect registers h to be invoked whenever a new peer connects.
func (n *Node) OnConnect(h ConnectHandler) {
	n.handlerMu.Lock()
	defer n.handlerMu.Unlock()
	n.connectHandlers = append(n.connectHandlers, h)
}

// OnDisconnect registers h to be invoked whenever a peer disconnects.
func (n *Node) OnDisconnect(h DisconnectHandler) {
	n.handlerMu.Lock()
	defer n.handlerMu.Unlock()
	n.disconnectHandlers = append(n.disconnectHandlers, h)
}

// Connected implements network.Notifiee: records the peer and fires every
// registered ConnectHandler, mirroring core.Node.HandlePeerFound's
// peers-map bookkeeping but driven by libp2p's own connection notifications
// rather than mDNS discovery.
func (n *Node) Connected(_ network.Network, c network.Conn) {
	id := PeerID(c.RemotePeer().String())
	n.mu.Lock()
	n.peers[id] = c.RemotePeer()
	n.mu.Unlock()

	n.handlerMu.RLock()
	handlers := append([]ConnectHandler{}, n.connectHandlers...)
	n.handlerMu.RUnlock()
	for _, h := range handlers {
		h(id)
	}
}

// Disconnected implements network.Notifiee.
func (n *Node) Disconnected(_ network.Network, c network.Conn) {
	id := PeerID(c.RemotePeer().String())
	n.mu.Lock()
	delete(n.peers, id)
	n.mu.Unlock()

	n.handlerMu.RLock()
	handlers := append([]DisconnectHandler{}, n.disconnectHandlers...)
	n.handlerMu.RUnlock()
	for _, h := range handlers {
		h(id)
	}
}

// Listen and ListenClose complete the network.Notifiee interface; this node
// has no listen-address bookkeeping of its own to do on either event.
func (n *Node) Listen(network.Network, ma.Multiaddr)      {}
func (n *Node) ListenClose(network.Network, ma.Multiaddr) {}
