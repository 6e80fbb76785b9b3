package notifiers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hello3x3/SwarmRescueUI/internal/sim"
)

func dialBridge(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dialing bridge: %v", err)
	}
	return conn
}

func waitForClients(t *testing.T, bridge *WebSocketBridge, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for bridge.ClientCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("client count = %d, want %d", bridge.ClientCount(), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWebSocketBridge_DeliversEvents(t *testing.T) {
	bus := sim.NewBus()
	bridge := NewWebSocketBridge(bus, sim.NewNoOpLogger())
	defer bridge.Close()

	srv := httptest.NewServer(http.HandlerFunc(bridge.Handle))
	defer srv.Close()

	conn := dialBridge(t, srv)
	defer conn.Close()
	waitForClients(t, bridge, 1)

	bus.Publish(sim.Event{Type: sim.EventTick})
	bus.Publish(sim.Event{Type: sim.EventLog, Payload: "line one\nline two"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var first sim.Event
	if _, data, err := conn.ReadMessage(); err != nil {
		t.Fatalf("reading first event: %v", err)
	} else if err := json.Unmarshal(data, &first); err != nil {
		t.Fatalf("decoding first event: %v", err)
	}
	if first.Type != sim.EventTick {
		t.Errorf("first event = %q, want tick", first.Type)
	}

	var second sim.Event
	if _, data, err := conn.ReadMessage(); err != nil {
		t.Fatalf("reading second event: %v", err)
	} else if err := json.Unmarshal(data, &second); err != nil {
		t.Fatalf("decoding second event: %v", err)
	}
	if second.Type != sim.EventLog || second.Payload != "line one\nline two" {
		t.Errorf("second event = %+v, want the log batch", second)
	}
}

func TestWebSocketBridge_MultipleClients(t *testing.T) {
	bus := sim.NewBus()
	bridge := NewWebSocketBridge(bus, sim.NewNoOpLogger())
	defer bridge.Close()

	srv := httptest.NewServer(http.HandlerFunc(bridge.Handle))
	defer srv.Close()

	a := dialBridge(t, srv)
	defer a.Close()
	b := dialBridge(t, srv)
	defer b.Close()
	waitForClients(t, bridge, 2)

	bus.Publish(sim.Event{Type: sim.EventClock, Payload: "12:00:00"})
	for name, conn := range map[string]*websocket.Conn{"a": a, "b": b} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		if _, _, err := conn.ReadMessage(); err != nil {
			t.Errorf("client %s got no event: %v", name, err)
		}
	}
}

func TestWebSocketBridge_DropsDisconnectedClient(t *testing.T) {
	bus := sim.NewBus()
	bridge := NewWebSocketBridge(bus, sim.NewNoOpLogger())
	defer bridge.Close()

	srv := httptest.NewServer(http.HandlerFunc(bridge.Handle))
	defer srv.Close()

	conn := dialBridge(t, srv)
	waitForClients(t, bridge, 1)
	conn.Close()
	waitForClients(t, bridge, 0)
}

func TestWebSocketBridge_CloseIsClean(t *testing.T) {
	bus := sim.NewBus()
	bridge := NewWebSocketBridge(bus, sim.NewNoOpLogger())

	if err := bridge.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if got := bus.SubscriberCount(); got != 0 {
		t.Errorf("bus still has %d subscribers after Close", got)
	}
}
