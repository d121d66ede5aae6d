// Package ws is the websocket peer gateway: it accepts inbound peers,
// dials outbound ones, runs the HELLO/WELCOME admission handshake, and
// fans world broadcasts out to every connected peer. Determinism-critical
// parameters (protocol version, world id, catalog digests, world params)
// are verified during the handshake; a peer that disagrees is rejected
// with a coded ERROR before it can exchange content.
package ws

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/collin2985/chunkstream/internal/protocol"
	"github.com/collin2985/chunkstream/internal/sim/world"
)

const (
	handshakeTimeout = 5 * time.Second
	writeTimeout     = 5 * time.Second
	readTimeout      = 60 * time.Second
	peerQueue        = 256
)

// Params is the local side of the handshake: what we announce and what we
// require a peer to match.
type Params struct {
	PeerName    string
	WorldID     string
	WorldParams protocol.WorldParams
	Catalogs    protocol.CatalogDigests
}

type Gateway struct {
	world  *world.World
	params Params
	log    *log.Logger

	upgrader websocket.Upgrader

	mu    sync.Mutex
	peers map[string]*peer

	dropped atomic.Uint64
}

type peer struct {
	id   string
	conn *websocket.Conn
	out  chan []byte
	once sync.Once
	done chan struct{}
}

func NewGateway(w *world.World, params Params, logger *log.Logger) *Gateway {
	return &Gateway{
		world:  w,
		params: params,
		log:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		peers: map[string]*peer{},
	}
}

// Handler accepts one inbound peer connection and serves it until it
// drops. Blocks for the lifetime of the connection.
func (g *Gateway) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := g.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		p := g.acceptHandshake(conn)
		if p == nil {
			_ = conn.Close()
			return
		}
		g.servePeer(p)
	}
}

// Dial connects to a remote host, runs the client side of the handshake,
// and keeps the connection as a broadcast target. The remote's WELCOME
// must carry world params identical to ours; sharing content with a peer
// that generates differently would silently fork the world.
func (g *Gateway) Dial(url string) error {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", url, err)
	}

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		PeerName:        g.params.PeerName,
		WorldID:         g.params.WorldID,
		Catalogs:        g.params.Catalogs,
	}
	if err := writeJSON(conn, hello); err != nil {
		_ = conn.Close()
		return fmt.Errorf("dial %s: hello: %w", url, err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("dial %s: welcome: %w", url, err)
	}
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("dial %s: %w", url, err)
	}
	if base.Type == protocol.TypeError {
		var em protocol.ErrorMsg
		_ = json.Unmarshal(msg, &em)
		_ = conn.Close()
		return fmt.Errorf("dial %s: rejected: %s %s", url, em.Code, em.Message)
	}
	if base.Type != protocol.TypeWelcome {
		_ = conn.Close()
		return fmt.Errorf("dial %s: expected WELCOME, got %q", url, base.Type)
	}
	var welcome protocol.WelcomeMsg
	if err := json.Unmarshal(msg, &welcome); err != nil {
		_ = conn.Close()
		return fmt.Errorf("dial %s: bad WELCOME: %w", url, err)
	}
	if welcome.ProtocolVersion != protocol.Version {
		_ = conn.Close()
		return fmt.Errorf("dial %s: protocol version %q, want %q", url, welcome.ProtocolVersion, protocol.Version)
	}
	if welcome.WorldID != g.params.WorldID {
		_ = conn.Close()
		return fmt.Errorf("dial %s: world %q, want %q", url, welcome.WorldID, g.params.WorldID)
	}
	if welcome.WorldParams != g.params.WorldParams {
		_ = conn.Close()
		return fmt.Errorf("dial %s: world params diverge: %+v vs %+v", url, welcome.WorldParams, g.params.WorldParams)
	}
	if welcome.Catalogs != g.params.Catalogs {
		_ = conn.Close()
		return fmt.Errorf("dial %s: catalog digests diverge", url)
	}

	p := &peer{
		id:   welcome.PeerID,
		conn: conn,
		out:  make(chan []byte, peerQueue),
		done: make(chan struct{}),
	}
	go g.servePeer(p)
	return nil
}

// acceptHandshake runs the host side: HELLO in, WELCOME (or coded ERROR)
// out. Returns nil if the peer was rejected.
func (g *Gateway) acceptHandshake(conn *websocket.Conn) *peer {
	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		g.reject(conn, protocol.ErrProtoBadRequest, "expected HELLO")
		return nil
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		g.reject(conn, protocol.ErrProtoBadRequest, "bad HELLO")
		return nil
	}
	if hello.ProtocolVersion != protocol.Version {
		g.reject(conn, protocol.ErrVersionMismatch, fmt.Sprintf("protocol %q, host speaks %q", hello.ProtocolVersion, protocol.Version))
		return nil
	}
	if hello.WorldID != "" && hello.WorldID != g.params.WorldID {
		g.reject(conn, protocol.ErrWorldMismatch, fmt.Sprintf("world %q, host serves %q", hello.WorldID, g.params.WorldID))
		return nil
	}
	if hello.Catalogs != g.params.Catalogs {
		g.reject(conn, protocol.ErrCatalogMismatch, "catalog digests do not match")
		return nil
	}

	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		PeerID:          uuid.NewString(),
		WorldID:         g.params.WorldID,
		WorldParams:     g.params.WorldParams,
		Catalogs:        g.params.Catalogs,
	}
	if err := writeJSON(conn, welcome); err != nil {
		return nil
	}

	if g.log != nil {
		g.log.Printf("peer %s joined (%s)", welcome.PeerID, hello.PeerName)
	}
	return &peer{
		id:   welcome.PeerID,
		conn: conn,
		out:  make(chan []byte, peerQueue),
		done: make(chan struct{}),
	}
}

func (g *Gateway) reject(conn *websocket.Conn, code, reason string) {
	_ = writeJSON(conn, protocol.ErrorMsg{
		Type:            protocol.TypeError,
		ProtocolVersion: protocol.Version,
		Code:            code,
		Message:         reason,
	})
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, code),
		time.Now().Add(time.Second))
	if g.log != nil {
		g.log.Printf("peer rejected: %s (%s)", code, reason)
	}
}

// servePeer registers the peer, runs its write pump, and reads until the
// connection drops. Blocks.
func (g *Gateway) servePeer(p *peer) {
	g.mu.Lock()
	g.peers[p.id] = p
	g.mu.Unlock()
	defer g.removePeer(p)

	go g.writePump(p)

	for {
		_ = p.conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, msg, err := p.conn.ReadMessage()
		if err != nil {
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		if base.ProtocolVersion != protocol.Version {
			continue
		}
		switch base.Type {
		case protocol.TypePlace, protocol.TypeRemove, protocol.TypeState:
			g.world.RemoteInbox() <- world.RemoteEnvelope{PeerID: p.id, Type: base.Type, Raw: msg}
		default:
			// Unknown types are ignored; the protocol grows by addition.
		}
	}
}

func (g *Gateway) writePump(p *peer) {
	for {
		select {
		case <-p.done:
			return
		case b, ok := <-p.out:
			if !ok {
				return
			}
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := p.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				g.removePeer(p)
				return
			}
		}
	}
}

func (g *Gateway) removePeer(p *peer) {
	p.once.Do(func() {
		close(p.done)
		_ = p.conn.Close()
	})
	g.mu.Lock()
	if g.peers[p.id] == p {
		delete(g.peers, p.id)
	}
	g.mu.Unlock()
}

// Send broadcasts one already-encoded message to every peer. Slow peers
// drop messages rather than stall the world goroutine; determinism does
// not depend on delivery (peers regenerate content locally) except for
// removals, which the index makes durable anyway.
func (g *Gateway) Send(msgType string, payload []byte) {
	g.mu.Lock()
	targets := make([]*peer, 0, len(g.peers))
	for _, p := range g.peers {
		targets = append(targets, p)
	}
	g.mu.Unlock()

	for _, p := range targets {
		select {
		case p.out <- payload:
		default:
			g.dropped.Add(1)
		}
	}
}

// PeerCount is the number of connected peers. Safe from any goroutine.
func (g *Gateway) PeerCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.peers)
}

// Dropped is the count of broadcast messages discarded because a peer's
// send queue was full.
func (g *Gateway) Dropped() uint64 { return g.dropped.Load() }

// Close drops every peer connection.
func (g *Gateway) Close() {
	g.mu.Lock()
	targets := make([]*peer, 0, len(g.peers))
	for _, p := range g.peers {
		targets = append(targets, p)
	}
	g.mu.Unlock()
	for _, p := range targets {
		g.removePeer(p)
	}
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, b)
}
