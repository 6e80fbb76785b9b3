package main

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/hello3x3/SwarmRescueUI/internal/sim"
	"github.com/hello3x3/SwarmRescueUI/internal/sim/notifiers"
)

// Server wires the controller, runner, log pipeline, clock and websocket
// bridge behind the dashboard's command surface.
type Server struct {
	cfg     sim.Config
	ctrl    *sim.Controller
	runner  *sim.Runner
	pipe    *sim.Pipeline
	clock   *sim.Clock
	bridge  *notifiers.WebSocketBridge
	history *sim.History
	logger  *Logger
}

// NewServer builds the full engine for cfg. Start must be called before
// serving to launch the background stages.
func NewServer(cfg sim.Config, logger *Logger) *Server {
	bus := sim.NewBus()
	pipe := sim.NewPipeline(bus, cfg.Pipeline)
	history := sim.NewHistory()

	ctrl := sim.NewController(cfg, sim.BuiltinCollaborators(cfg))
	ctrl.SetLogger(&simLoggerAdapter{logger: logger})
	ctrl.SetLogSink(pipe)
	ctrl.SetHistory(history)

	return &Server{
		cfg:     cfg,
		ctrl:    ctrl,
		runner:  sim.NewRunner(ctrl, pipe, cfg.Run.StepInterval()),
		pipe:    pipe,
		clock:   sim.NewClock(pipe, cfg.Clock.Interval()),
		bridge:  notifiers.NewWebSocketBridge(bus, &simLoggerAdapter{logger: logger}),
		history: history,
		logger:  logger,
	}
}

// Start launches the pipeline and clock.
func (s *Server) Start() {
	s.pipe.Start()
	s.clock.Start()
}

// Shutdown stops the background stages and disconnects subscribers.
func (s *Server) Shutdown() {
	s.runner.Stop()
	s.clock.Stop()
	s.pipe.Stop()
	s.bridge.Close()
}

// routes builds the HTTP command surface.
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/initialize", s.handleInitialize)
	mux.HandleFunc("/destroy", s.handleDestroy)
	mux.HandleFunc("/step", s.handleStep)
	mux.HandleFunc("/start", s.handleStart)
	mux.HandleFunc("/stop", s.handleStop)
	mux.HandleFunc("/snapshot", s.handleSnapshot)
	mux.HandleFunc("/ws", s.bridge.Handle)
	return mux
}

// writeCommandError maps the controller's error taxonomy onto HTTP statuses.
// Everything is reported in-band; the process never exits on a command error.
func writeCommandError(w http.ResponseWriter, err error) {
	var uerr *sim.UserError
	if errors.As(err, &uerr) {
		http.Error(w, uerr.Error(), http.StatusConflict)
		return
	}
	var ierr *sim.InitializationError
	if errors.As(err, &ierr) {
		http.Error(w, ierr.Error(), http.StatusInternalServerError)
		return
	}
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "cannot encode: "+err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// POST /initialize
// Body: { "algorithm": 0..5, "destroy_count": n } — both optional, config
// defaults apply.
type initializeRequest struct {
	Algorithm    *int `json:"algorithm"`
	DestroyCount *int `json:"destroy_count"`
}

func (s *Server) handleInitialize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	defer r.Body.Close()

	// An empty body means "use the configured defaults".
	req := initializeRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}
	mode := sim.AlgorithmMode(s.cfg.Swarm.DefaultAlgorithm)
	if req.Algorithm != nil {
		mode = sim.AlgorithmMode(*req.Algorithm)
	}
	destroyCount := s.cfg.Swarm.DefaultDestroyCount
	if req.DestroyCount != nil {
		destroyCount = *req.DestroyCount
	}

	if err := s.ctrl.Initialize(mode, destroyCount); err != nil {
		s.logger.Errorf("initialize failed: %v", err)
		writeCommandError(w, err)
		return
	}
	s.runner.Reset()
	s.pipe.AppendEvent(sim.Event{Type: sim.EventTick})
	s.logger.Infof("initialized: algorithm=%s destroy_count=%d", mode, destroyCount)
	writeJSON(w, s.ctrl.Snapshot())
}

// POST /destroy
// Body: { "count": n }
type destroyRequest struct {
	Count int `json:"count"`
}

func (s *Server) handleDestroy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	defer r.Body.Close()

	var req destroyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.ctrl.DestroyNow(req.Count); err != nil {
		writeCommandError(w, err)
		return
	}
	s.pipe.AppendEvent(sim.Event{Type: sim.EventTick})
	writeJSON(w, s.ctrl.Snapshot())
}

// POST /step — a single manual step.
func (s *Server) handleStep(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	outcome, err := s.ctrl.Step()
	if err != nil {
		writeCommandError(w, err)
		return
	}
	s.pipe.AppendEvent(sim.Event{Type: sim.EventTick})
	if outcome == sim.StepFinished {
		s.pipe.AppendEvent(sim.Event{Type: sim.EventButtonState, Payload: "Start"})
	}
	writeJSON(w, s.ctrl.Snapshot())
}

// POST /start — begin auto-stepping.
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := s.runner.Start(); err != nil {
		writeCommandError(w, err)
		return
	}
	s.pipe.AppendEvent(sim.Event{Type: sim.EventButtonState, Payload: "Pause"})
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("started"))
}

// POST /stop — cooperative stop; the in-flight step finishes first.
func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.runner.Stop()
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("stopping"))
}

// GET /snapshot — the latest committed view.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.ctrl.Snapshot())
}

// simLoggerAdapter adapts the server's Logger to the sim.Logger interface
type simLoggerAdapter struct {
	logger *Logger
}

func (a *simLoggerAdapter) Debugf(format string, v ...any) { a.logger.Debugf(format, v...) }
func (a *simLoggerAdapter) Infof(format string, v ...any)  { a.logger.Infof(format, v...) }
func (a *simLoggerAdapter) Warnf(format string, v ...any)  { a.logger.Warnf(format, v...) }
func (a *simLoggerAdapter) Errorf(format string, v ...any) { a.logger.Errorf(format, v...) }
