// Package gossip implements the chain's full-mesh broadcast transport: a
// thin WebSocket gossip surface, not a general-purpose P2P stack. Grounded
// in the teacher's network.go/node.go naming conventions (Node, Broadcast,
// ConnectToPeer) adapted to gorilla/websocket + go-chi/chi instead of libp2p,
// since the spec treats gossip as an external collaborator reached only
// through the chain engine's public API, not a pubsub/NAT-traversal system.
package gossip

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Message is the wire envelope every gossip frame carries.
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Handler processes one received message's payload, re-marshaled to JSON.
type Handler func(payload []byte)

// StatusFunc returns the JSON-serializable operational snapshot served at
// /status.
type StatusFunc func() interface{}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Node is one peer in the full-mesh gossip network. It dials outbound only
// the peers passed to ConnectToPeer (it holds no list of configured peers and
// dials none by itself) and accepts inbound connections on /ws; every
// connected peer, inbound or outbound, is broadcast to equally.
type Node struct {
	mu    sync.RWMutex
	peers map[string]*websocket.Conn

	handlersMu sync.RWMutex
	handlers   map[string]Handler

	statusFn StatusFunc
}

// NewNode returns a Node with no connected peers.
func NewNode(statusFn StatusFunc) *Node {
	return &Node{
		peers:    make(map[string]*websocket.Conn),
		handlers: make(map[string]Handler),
		statusFn: statusFn,
	}
}

// On registers a handler for a gossip message type. Registering a second
// handler for the same type replaces the first.
func (n *Node) On(msgType string, h Handler) {
	n.handlersMu.Lock()
	defer n.handlersMu.Unlock()
	n.handlers[msgType] = h
}

// Router returns the HTTP router serving /ws and /status, mountable into a
// larger chi mux or served standalone.
func (n *Node) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/ws", n.handleInbound)
	r.Get("/status", n.handleStatus)
	return r
}

func (n *Node) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if n.statusFn == nil {
		w.Write([]byte(`{}`))
		return
	}
	json.NewEncoder(w).Encode(n.statusFn())
}

// handleInbound upgrades an incoming HTTP request to a WebSocket connection
// and registers it as a peer identified by its remote address.
func (n *Node) handleInbound(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.WithError(err).Warn("gossip: inbound upgrade failed")
		return
	}
	peerID := r.RemoteAddr
	n.addPeer(peerID, conn)
	go n.readLoop(peerID, conn)
}

// ConnectToPeer dials a peer's /ws endpoint and adds it to the active peer
// set. The connection participates symmetrically in broadcast once
// established, mirroring the source's connect_to_peers/handle_connection
// symmetry.
func (n *Node) ConnectToPeer(url string) error {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return err
	}
	n.addPeer(url, conn)
	go n.readLoop(url, conn)
	return nil
}

func (n *Node) addPeer(id string, conn *websocket.Conn) {
	n.mu.Lock()
	n.peers[id] = conn
	n.mu.Unlock()
	logrus.WithField("peer", id).Info("gossip: peer connected")
}

func (n *Node) dropPeer(id string) {
	n.mu.Lock()
	if conn, ok := n.peers[id]; ok {
		conn.Close()
		delete(n.peers, id)
	}
	n.mu.Unlock()
	logrus.WithField("peer", id).Info("gossip: peer disconnected")
}

// readLoop dispatches every frame received from a peer to its registered
// handler. Network errors are logged and the offending connection is
// discarded without retry — there is no per-message timeout or TTL.
func (n *Node) readLoop(peerID string, conn *websocket.Conn) {
	defer n.dropPeer(peerID)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			logrus.WithFields(logrus.Fields{"peer": peerID, "err": err}).Info("gossip: read failed, dropping connection")
			return
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			logrus.WithError(err).Warn("gossip: malformed message")
			continue
		}
		n.dispatch(msg)
	}
}

func (n *Node) dispatch(msg Message) {
	n.handlersMu.RLock()
	h, ok := n.handlers[msg.Type]
	n.handlersMu.RUnlock()
	if !ok {
		return
	}
	raw, err := json.Marshal(msg.Payload)
	if err != nil {
		logrus.WithError(err).Warn("gossip: failed to re-marshal payload")
		return
	}
	h(raw)
}

// Broadcast sends a typed message to every currently connected peer,
// dropping silently on a per-peer send failure (the offending connection is
// also removed).
func (n *Node) Broadcast(msgType string, payload interface{}) {
	msg := Message{Type: msgType, Payload: payload}
	data, err := json.Marshal(msg)
	if err != nil {
		logrus.WithError(err).Warn("gossip: failed to marshal broadcast")
		return
	}

	n.mu.RLock()
	targets := make(map[string]*websocket.Conn, len(n.peers))
	for id, conn := range n.peers {
		targets[id] = conn
	}
	n.mu.RUnlock()

	for id, conn := range targets {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			n.dropPeer(id)
		}
	}
}

// PeerCount returns the number of currently connected peers.
func (n *Node) PeerCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.peers)
}
