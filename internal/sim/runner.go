package sim

import (
	"context"
	"errors"
	"sync"
	"time"
)

// RunnerState is the lifecycle state of the background stepping loop.
type RunnerState int

const (
	// RunnerIdle means no loop is active; Start is allowed.
	RunnerIdle RunnerState = iota
	// RunnerRunning means the pacing loop is stepping the controller.
	RunnerRunning
	// RunnerTerminal means the last run hit the step limit or a step
	// failure; Reset (or a reinitialize) is needed before Start.
	RunnerTerminal
)

func (s RunnerState) String() string {
	switch s {
	case RunnerIdle:
		return "idle"
	case RunnerRunning:
		return "running"
	case RunnerTerminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// Runner drives Controller.Step at a fixed pacing interval until the
// simulation finishes, a step fails, or Stop is called. Cancellation is
// cooperative: the flag is checked once per iteration and an in-flight step
// always runs to completion.
type Runner struct {
	ctrl     *Controller
	pipe     *Pipeline
	interval time.Duration

	mu     sync.Mutex
	state  RunnerState
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRunner creates an idle runner stepping ctrl and emitting events
// through pipe.
func NewRunner(ctrl *Controller, pipe *Pipeline, interval time.Duration) *Runner {
	return &Runner{ctrl: ctrl, pipe: pipe, interval: interval}
}

// State returns the current lifecycle state.
func (r *Runner) State() RunnerState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Start spawns the pacing loop. Valid only from Idle and only once the
// controller is initialized.
func (r *Runner) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != RunnerIdle {
		return &UserError{Op: "start", Reason: "runner is " + r.state.String()}
	}
	if !r.ctrl.Initialized() {
		return &UserError{Op: "start", Reason: "simulation not initialized"}
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.state = RunnerRunning
	r.ctrl.setRunning(true)

	r.wg.Add(1)
	go r.loop(ctx)
	return nil
}

// Stop requests cooperative cancellation. The current step, if any, is
// allowed to finish; Stop does not wait for the loop to exit.
func (r *Runner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == RunnerRunning && r.cancel != nil {
		r.cancel()
	}
}

// Reset moves a Terminal runner back to Idle. The server calls it after a
// reinitialize so a finished run can be started again.
func (r *Runner) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == RunnerTerminal {
		r.state = RunnerIdle
	}
}

// Wait blocks until the loop goroutine has exited. Test helper.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) loop(ctx context.Context) {
	defer r.wg.Done()
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.finish(RunnerIdle)
			return
		case <-ticker.C:
			outcome, err := r.ctrl.Step()
			switch {
			case err != nil:
				// A UserError here means the controller was torn down
				// under us; either way auto-stepping must stop.
				var uerr *UserError
				if errors.As(err, &uerr) {
					r.finish(RunnerIdle)
				} else {
					r.finish(RunnerTerminal)
				}
				return
			case outcome == StepFinished:
				r.finish(RunnerTerminal)
				return
			default:
				r.pipe.AppendEvent(Event{Type: EventTick})
			}
		}
	}
}

// finish records the final state and emits the control-reset event so the
// dashboard flips its start/pause button back.
func (r *Runner) finish(state RunnerState) {
	r.mu.Lock()
	r.state = state
	r.cancel = nil
	r.mu.Unlock()

	r.ctrl.setRunning(false)
	r.pipe.AppendEvent(Event{Type: EventTick})
	r.pipe.AppendEvent(Event{Type: EventButtonState, Payload: "Start"})
}
