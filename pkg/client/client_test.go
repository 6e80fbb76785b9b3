package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/hello3x3/SwarmRescueUI/internal/sim"
	"github.com/hello3x3/SwarmRescueUI/internal/sim/notifiers"
)

// stubServer mimics the server's command surface so the client can be
// tested without booting the full engine.
type stubServer struct {
	mu        sync.Mutex
	lastInit  map[string]any
	lastCount int
	snap      sim.Snapshot
}

func newStubHandler(t *testing.T, stub *stubServer) http.Handler {
	t.Helper()
	mux := http.NewServeMux()
	writeSnap := func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		stub.mu.Lock()
		defer stub.mu.Unlock()
		if err := json.NewEncoder(w).Encode(stub.snap); err != nil {
			t.Errorf("encoding stub snapshot: %v", err)
		}
	}
	mux.HandleFunc("/initialize", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if r.Body != nil {
			json.NewDecoder(r.Body).Decode(&body)
		}
		stub.mu.Lock()
		stub.lastInit = body
		stub.snap.Initialized = true
		stub.mu.Unlock()
		writeSnap(w)
	})
	mux.HandleFunc("/destroy", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Count int `json:"count"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		stub.mu.Lock()
		stub.lastCount = body.Count
		initialized := stub.snap.Initialized
		stub.mu.Unlock()
		if !initialized {
			http.Error(w, "Simulation not initialized", http.StatusConflict)
			return
		}
		writeSnap(w)
	})
	mux.HandleFunc("/step", func(w http.ResponseWriter, r *http.Request) {
		stub.mu.Lock()
		initialized := stub.snap.Initialized
		if initialized {
			stub.snap.StepCount++
		}
		stub.mu.Unlock()
		if !initialized {
			http.Error(w, "Simulation not initialized", http.StatusConflict)
			return
		}
		writeSnap(w)
	})
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("started"))
	})
	mux.HandleFunc("/stop", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("stopping"))
	})
	mux.HandleFunc("/snapshot", func(w http.ResponseWriter, r *http.Request) {
		writeSnap(w)
	})
	return mux
}

func TestClient_Initialize(t *testing.T) {
	stub := &stubServer{snap: sim.Snapshot{Algorithm: 5}}
	srv := httptest.NewServer(newStubHandler(t, stub))
	defer srv.Close()

	c := New(srv.URL)
	snap, err := c.Initialize(context.Background(), WithAlgorithm(sim.ModeCSDS), WithDestroyCount(30))
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if !snap.Initialized {
		t.Error("snapshot not initialized")
	}

	stub.mu.Lock()
	defer stub.mu.Unlock()
	if got := stub.lastInit["algorithm"]; got != float64(0) {
		t.Errorf("algorithm sent = %v, want 0", got)
	}
	if got := stub.lastInit["destroy_count"]; got != float64(30) {
		t.Errorf("destroy_count sent = %v, want 30", got)
	}
}

func TestClient_InitializeDefaultsSendEmptyBody(t *testing.T) {
	stub := &stubServer{}
	srv := httptest.NewServer(newStubHandler(t, stub))
	defer srv.Close()

	if _, err := New(srv.URL).Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	stub.mu.Lock()
	defer stub.mu.Unlock()
	if len(stub.lastInit) != 0 {
		t.Errorf("default initialize sent fields %v, want none", stub.lastInit)
	}
}

func TestClient_StepAndDestroy(t *testing.T) {
	stub := &stubServer{snap: sim.Snapshot{Initialized: true}}
	srv := httptest.NewServer(newStubHandler(t, stub))
	defer srv.Close()

	c := New(srv.URL)
	snap, err := c.Step(context.Background())
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if snap.StepCount != 1 {
		t.Errorf("step count = %d, want 1", snap.StepCount)
	}

	if _, err := c.DestroyNow(context.Background(), 7); err != nil {
		t.Fatalf("DestroyNow: %v", err)
	}
	stub.mu.Lock()
	defer stub.mu.Unlock()
	if stub.lastCount != 7 {
		t.Errorf("destroy count sent = %d, want 7", stub.lastCount)
	}
}

func TestClient_ConflictIsDetectable(t *testing.T) {
	stub := &stubServer{}
	srv := httptest.NewServer(newStubHandler(t, stub))
	defer srv.Close()

	_, err := New(srv.URL).Step(context.Background())
	if err == nil {
		t.Fatal("expected error stepping before initialize")
	}
	if !IsConflict(err) {
		t.Errorf("IsConflict(%v) = false, want true", err)
	}
}

func TestClient_StartStop(t *testing.T) {
	stub := &stubServer{snap: sim.Snapshot{Initialized: true}}
	srv := httptest.NewServer(newStubHandler(t, stub))
	defer srv.Close()

	c := New(srv.URL)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := c.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestClient_Snapshot(t *testing.T) {
	stub := &stubServer{snap: sim.Snapshot{Initialized: true, Algorithm: 3, StepCount: 12}}
	srv := httptest.NewServer(newStubHandler(t, stub))
	defer srv.Close()

	snap, err := New(srv.URL).Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.Algorithm != 3 || snap.StepCount != 12 {
		t.Errorf("snapshot = %+v, want algorithm 3 step 12", snap)
	}
}

func TestClient_Subscribe(t *testing.T) {
	bus := sim.NewBus()
	bridge := notifiers.NewWebSocketBridge(bus, nil)
	defer bridge.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", bridge.Handle)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := New(srv.URL).Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for bridge.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("bridge never saw the client")
		}
		time.Sleep(5 * time.Millisecond)
	}

	bus.Publish(sim.Event{Type: sim.EventLog, Payload: "agent 3 destroyed"})

	select {
	case ev := <-events:
		if ev.Type != sim.EventLog || ev.Payload != "agent 3 destroyed" {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event delivered")
	}

	cancel()
	select {
	case _, ok := <-events:
		if ok {
			// A buffered event may still drain; the channel must close after.
			for range events {
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after cancel")
	}
}
