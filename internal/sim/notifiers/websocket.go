// Package notifiers bridges the simulation's broadcast bus to external
// delivery channels.
package notifiers

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hello3x3/SwarmRescueUI/internal/sim"
)

const writeDeadline = 10 * time.Second

// WebSocketBridge subscribes to the broadcast bus and fans every event out
// to the connected websocket clients as JSON. Slow or dead clients are
// dropped; delivery is best effort, matching the bus contract.
type WebSocketBridge struct {
	mu       sync.RWMutex
	clients  map[*websocket.Conn]bool
	upgrader websocket.Upgrader
	logger   sim.Logger

	events      <-chan sim.Event
	unsubscribe func()
	register    chan *websocket.Conn
	unregister  chan *websocket.Conn
	done        chan struct{}
	wg          sync.WaitGroup
}

// NewWebSocketBridge creates a bridge subscribed to bus and starts its
// fan-out goroutine.
func NewWebSocketBridge(bus *sim.Bus, logger sim.Logger) *WebSocketBridge {
	if logger == nil {
		logger = sim.NewNoOpLogger()
	}
	events, cancel := bus.Subscribe(256)
	b := &WebSocketBridge{
		clients:     make(map[*websocket.Conn]bool),
		logger:      logger,
		events:      events,
		unsubscribe: cancel,
		register:    make(chan *websocket.Conn),
		unregister:  make(chan *websocket.Conn),
		done:        make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}

	b.wg.Add(1)
	go b.run()
	return b
}

// Handle upgrades an HTTP request to a websocket subscription. It blocks
// until the client goes away, using the read loop to detect disconnects.
func (b *WebSocketBridge) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Errorf("websocket upgrade failed: %v", err)
		return
	}
	b.registerClient(conn)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	b.unregisterClient(conn)
}

// ClientCount returns the number of connected clients.
func (b *WebSocketBridge) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

func (b *WebSocketBridge) registerClient(conn *websocket.Conn) {
	select {
	case b.register <- conn:
	case <-b.done:
	}
}

func (b *WebSocketBridge) unregisterClient(conn *websocket.Conn) {
	select {
	case b.unregister <- conn:
	case <-b.done:
	}
}

// run handles client registration and event fan-out.
func (b *WebSocketBridge) run() {
	defer b.wg.Done()
	for {
		select {
		case <-b.done:
			return

		case conn := <-b.register:
			if conn == nil {
				continue
			}
			b.mu.Lock()
			b.clients[conn] = true
			b.mu.Unlock()

		case conn := <-b.unregister:
			if conn == nil {
				continue
			}
			b.mu.Lock()
			if _, ok := b.clients[conn]; ok {
				delete(b.clients, conn)
				conn.Close()
			}
			b.mu.Unlock()

		case ev, ok := <-b.events:
			if !ok {
				return
			}
			b.broadcast(ev)
		}
	}
}

func (b *WebSocketBridge) broadcast(ev sim.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		b.logger.Errorf("cannot encode event %q: %v", ev.Type, err)
		return
	}

	// Snapshot the client set so writes happen outside the lock.
	b.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(b.clients))
	for conn := range b.clients {
		conns = append(conns, conn)
	}
	b.mu.RUnlock()

	var toRemove []*websocket.Conn
	for _, conn := range conns {
		conn.SetWriteDeadline(time.Now().Add(writeDeadline))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			b.logger.Warnf("dropping websocket client: %v", err)
			toRemove = append(toRemove, conn)
			conn.Close()
		}
	}

	if len(toRemove) > 0 {
		b.mu.Lock()
		for _, conn := range toRemove {
			delete(b.clients, conn)
		}
		b.mu.Unlock()
	}
}

// Close unsubscribes from the bus and disconnects every client.
func (b *WebSocketBridge) Close() error {
	close(b.done)
	b.unsubscribe()

	b.mu.Lock()
	for conn := range b.clients {
		conn.Close()
		delete(b.clients, conn)
	}
	b.mu.Unlock()

	b.wg.Wait()
	return nil
}
