package coord

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/rjulian/strudel/debug"
)

// Relay is the hub for cross-process coordination: every frame a
// client sends is rebroadcast to all other connected clients. Run it
// once per machine (or per shared page) and point each process's WSBus
// at it.
type Relay struct {
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*websocket.Conn]bool
}

func NewRelay() *Relay {
	return &Relay{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Coordination traffic is same-user, so accept any origin.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		conns: make(map[*websocket.Conn]bool),
	}
}

func (r *Relay) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		debug.Log("relay", "upgrade failed: %v", err)
		return
	}

	r.mu.Lock()
	r.conns[conn] = true
	r.mu.Unlock()
	debug.Log("relay", "client connected (%d total)", r.clientCount())

	go r.readLoop(conn)
}

func (r *Relay) readLoop(conn *websocket.Conn) {
	defer func() {
		r.mu.Lock()
		delete(r.conns, conn)
		r.mu.Unlock()
		conn.Close()
		debug.Log("relay", "client disconnected (%d total)", r.clientCount())
	}()

	for {
		msgType, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		r.broadcast(conn, payload)
	}
}

// broadcast sends payload to every connection except the sender.
func (r *Relay) broadcast(from *websocket.Conn, payload []byte) {
	r.mu.Lock()
	targets := make([]*websocket.Conn, 0, len(r.conns))
	for c := range r.conns {
		if c != from {
			targets = append(targets, c)
		}
	}
	r.mu.Unlock()

	for _, c := range targets {
		if err := c.WriteMessage(websocket.TextMessage, payload); err != nil {
			debug.Log("relay", "write failed: %v", err)
		}
	}
}

func (r *Relay) clientCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// WSBus is a Bus backed by a websocket connection to a Relay. Local
// subscribers hear both local publishes and frames arriving from other
// processes. Reconnection is not attempted; a dropped relay leaves the
// sessions uncoordinated until restart.
type WSBus struct {
	local *MemoryBus

	writeMu sync.Mutex
	conn    *websocket.Conn
	done    chan struct{}
}

// DialWSBus connects to a relay at url (e.g. ws://localhost:8449/coord).
func DialWSBus(url string) (*WSBus, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial coordination relay: %w", err)
	}
	b := &WSBus{
		local: NewMemoryBus(),
		conn:  conn,
		done:  make(chan struct{}),
	}
	go b.readLoop()
	return b, nil
}

func (b *WSBus) readLoop() {
	defer close(b.done)
	for {
		var msg StartMsg
		if err := b.conn.ReadJSON(&msg); err != nil {
			debug.Log("coord", "relay read ended: %v", err)
			return
		}
		b.local.Publish(msg)
	}
}

func (b *WSBus) Publish(msg StartMsg) {
	// The relay only forwards to other clients, so deliver locally too.
	b.local.Publish(msg)

	b.writeMu.Lock()
	err := b.conn.WriteJSON(msg)
	b.writeMu.Unlock()
	if err != nil {
		debug.Log("coord", "relay write failed: %v", err)
	}
}

func (b *WSBus) Subscribe(fn func(StartMsg)) func() {
	return b.local.Subscribe(fn)
}

// Close drops the relay connection. Local subscribers stay registered
// but stop hearing remote sessions.
func (b *WSBus) Close() error {
	err := b.conn.Close()
	<-b.done
	return err
}
