package sim

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// LogSink receives operator-visible log lines. The Pipeline satisfies it.
type LogSink interface {
	Logf(format string, v ...any)
}

// Collaborators supplies the factories the controller uses to (re)build its
// Environment and Swarm on Initialize.
type Collaborators struct {
	NewEnvironment func() (Environment, error)
	NewSwarm       func(mode AlgorithmMode, enableCSDS, useMetaParams bool) (Swarm, error)
}

// BuiltinCollaborators wires the built-in field environment and reconnect
// swarm for the given configuration.
func BuiltinCollaborators(cfg Config) Collaborators {
	return Collaborators{
		NewEnvironment: func() (Environment, error) {
			return NewFieldEnvironment(cfg.Field), nil
		},
		NewSwarm: func(mode AlgorithmMode, enableCSDS, useMetaParams bool) (Swarm, error) {
			return NewReconnectSwarm(cfg.Swarm, cfg.Field.CommRange, mode, enableCSDS, useMetaParams), nil
		},
	}
}

// StepOutcome is the result of a successful Step call.
type StepOutcome int

const (
	// StepAdvanced means one full action/update cycle was committed.
	StepAdvanced StepOutcome = iota
	// StepFinished means the step limit is reached; the call was a no-op.
	StepFinished
)

// Controller owns the simulation state and serializes every mutation.
// Initialize, Step and DestroyNow are the only mutation points; each runs
// inside one critical section and commits by swapping in a fresh Snapshot,
// so readers never observe a half-updated state and never take the lock.
type Controller struct {
	mu     sync.Mutex
	cfg    Config
	collab Collaborators

	env   Environment
	swarm Swarm
	st    State

	view    atomic.Pointer[Snapshot]
	logger  Logger
	sink    LogSink
	history *History
}

// NewController creates a controller in the uninitialized state.
func NewController(cfg Config, collab Collaborators) *Controller {
	c := &Controller{
		cfg:    cfg,
		collab: collab,
		logger: NewNoOpLogger(),
	}
	c.st = State{MaxSteps: cfg.Run.MaxSteps}
	c.view.Store(c.st.snapshot())
	return c
}

// SetLogger replaces the diagnostic logger. Not safe once goroutines are
// calling the controller; wire it during setup.
func (c *Controller) SetLogger(l Logger) {
	if l != nil {
		c.logger = l
	}
}

// SetLogSink routes operator-visible lines into a sink such as the Pipeline.
func (c *Controller) SetLogSink(sink LogSink) {
	c.sink = sink
}

// SetHistory attaches a run-history recorder. Initialize resets it.
func (c *Controller) SetHistory(h *History) {
	c.history = h
}

// Snapshot returns the latest committed view of the simulation. Never nil.
func (c *Controller) Snapshot() *Snapshot {
	return c.view.Load()
}

// Initialized reports whether the last committed state is initialized.
func (c *Controller) Initialized() bool {
	return c.view.Load().Initialized
}

// Initialize discards any prior simulation wholesale and builds a fresh one
// with the given algorithm mode and destruction count. On any collaborator
// failure the controller is left uninitialized with no partial state.
func (c *Controller) Initialize(mode AlgorithmMode, destroyCount int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.printf("Initializing simulation...")
	if !mode.Valid() {
		return c.failInitLocked(fmt.Errorf("invalid algorithm mode %d", int(mode)))
	}
	if destroyCount < 0 {
		return c.failInitLocked(fmt.Errorf("destroy count must not be negative, got %d", destroyCount))
	}

	env, err := c.collab.NewEnvironment()
	if err != nil {
		return c.failInitLocked(fmt.Errorf("building environment: %w", err))
	}
	if err := env.Reset(); err != nil {
		return c.failInitLocked(fmt.Errorf("resetting environment: %w", err))
	}

	enableCSDS := mode == ModeCSDS
	c.printf("Algorithm: %s, CSDS: %v", mode, enableCSDS)
	sw, err := c.collab.NewSwarm(mode, enableCSDS, c.cfg.Swarm.UseMetaParams)
	if err != nil {
		return c.failInitLocked(fmt.Errorf("building swarm: %w", err))
	}
	if err := sw.Reset(true, mode); err != nil {
		return c.failInitLocked(fmt.Errorf("resetting swarm: %w", err))
	}

	c.env = env
	c.swarm = sw
	c.swarm.ApplyPositions(env.Positions())
	c.st = State{
		MaxSteps:     c.cfg.Run.MaxSteps,
		Algorithm:    mode,
		DestroyCount: destroyCount,
		Initialized:  true,
		Destroyed:    make(map[int]struct{}),
	}
	c.refreshDerivedLocked()
	if c.history != nil {
		c.history.Reset()
	}
	c.publishLocked()
	c.printf("Initialization complete.")
	return nil
}

// failInitLocked drops any partial collaborators and publishes the
// uninitialized state.
func (c *Controller) failInitLocked(err error) error {
	c.env = nil
	c.swarm = nil
	c.st = State{MaxSteps: c.cfg.Run.MaxSteps}
	c.publishLocked()
	ierr := &InitializationError{Err: err}
	c.printf("Error during initialization: %v", err)
	c.logger.Errorf("%v", ierr)
	return ierr
}

// DestroyNow removes n agents immediately via the environment's stochastic
// destruction and notifies the swarm. Ids already destroyed are tolerated
// (set union) but not re-notified.
func (c *Controller) DestroyNow(n int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.st.Initialized {
		c.printf("Simulation not initialized")
		return &UserError{Op: "destroy", Reason: "simulation not initialized"}
	}

	c.printf("Destroying %d agents...", n)
	ids, err := c.env.StochasticDestroy(DestroyModeUniform, n)
	if err != nil {
		serr := &StepError{Phase: "destroy", Err: err}
		c.printf("Error during destruction: %v", err)
		c.logger.Errorf("%v", serr)
		return serr
	}

	fresh := c.unionDestroyedLocked(ids)
	if len(fresh) > 0 {
		c.swarm.NotifyDestroyed(fresh, c.env.Positions())
	}
	c.refreshDerivedLocked()
	c.publishLocked()
	c.printf("Destroyed agents: %v", ids)
	return nil
}

// Step runs one simulation step: on the very first step after Initialize it
// performs the configured destruction phase, then requests actions from the
// swarm, transitions the environment, and commits. The whole sequence is one
// critical section; on failure nothing is committed and the previously
// published snapshot stays visible.
func (c *Controller) Step() (StepOutcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.st.Initialized {
		c.printf("Simulation not initialized")
		return StepFinished, &UserError{Op: "step", Reason: "simulation not initialized"}
	}
	if c.st.StepCount >= c.st.MaxSteps {
		c.printf("Reached max steps")
		return StepFinished, nil
	}

	start := time.Now()

	// One-time destruction phase, coupled to the first step. Results are
	// staged and folded into state only when the whole step commits.
	var destroyed []int
	if c.st.StepCount == 0 && c.st.DestroyCount > 0 {
		c.printf("Executing destruction phase...")
		ids, err := c.env.StochasticDestroy(DestroyModeUniform, c.st.DestroyCount)
		if err != nil {
			return c.failStepLocked("destroy", err)
		}
		c.swarm.NotifyDestroyed(ids, c.env.Positions())
		destroyed = ids
		c.printf("Destruction phase complete.")
	}

	c.printf("Step %d: Taking actions...", c.st.StepCount)
	actions, aux, err := c.swarm.TakeActions()
	if err != nil {
		return c.failStepLocked("actions", err)
	}

	c.printf("Actions taken. Updating state...")
	next, err := c.env.NextState(actions)
	if err != nil {
		return c.failStepLocked("transition", err)
	}
	c.swarm.ApplyPositions(next)
	c.env.Advance()

	// Commit.
	c.unionDestroyedLocked(destroyed)
	c.st.StepCount++
	c.refreshDerivedLocked()
	c.publishLocked()

	elapsed := time.Since(start)
	if c.history != nil {
		c.history.Add(StepRecord{
			Step:       c.st.StepCount - 1,
			Clusters:   c.st.Clusters,
			Connected:  c.st.Connected,
			Remaining:  len(c.st.Remain),
			Destroyed:  len(c.st.Destroyed),
			MeanSpeed:  aux,
			DurationMS: float64(elapsed) / float64(time.Millisecond),
		})
	}
	c.printf("Step %d completed in %.4fs", c.st.StepCount-1, elapsed.Seconds())
	return StepAdvanced, nil
}

func (c *Controller) failStepLocked(phase string, err error) (StepOutcome, error) {
	serr := &StepError{Phase: phase, Err: err}
	c.printf("Error in step: %v", err)
	c.logger.Errorf("%v", serr)
	return StepFinished, serr
}

// unionDestroyedLocked merges ids into the destroyed set and returns the
// ones that were not already in it.
func (c *Controller) unionDestroyedLocked(ids []int) []int {
	fresh := make([]int, 0, len(ids))
	for _, id := range ids {
		if _, dup := c.st.Destroyed[id]; !dup {
			c.st.Destroyed[id] = struct{}{}
			fresh = append(fresh, id)
		}
	}
	return fresh
}

// refreshDerivedLocked recomputes the view fields from the environment.
// Connected is always derived from the cluster count, never set directly.
func (c *Controller) refreshDerivedLocked() {
	if c.env == nil {
		return
	}
	c.st.Positions = c.env.Positions()
	c.st.Remain = c.env.RemainList()
	c.st.Clusters = c.env.ClusterCount()
	c.st.Connected = c.st.Clusters == 1
}

// publishLocked commits the current state by swapping in a fresh snapshot.
func (c *Controller) publishLocked() {
	c.view.Store(c.st.snapshot())
}

// setRunning records the runner's activity flag in the published state.
func (c *Controller) setRunning(running bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.st.Running = running
	c.publishLocked()
}

// printf writes an operator-visible line to both the logger and the sink.
func (c *Controller) printf(format string, v ...any) {
	c.logger.Infof(format, v...)
	if c.sink != nil {
		c.sink.Logf(format, v...)
	}
}
