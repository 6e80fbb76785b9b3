package sim

import (
	"fmt"
	"math"
	"math/rand"
	"time"
)

// DestroyModeUniform selects victims uniformly at random among survivors.
// It is the only stochastic destruction mode the controller uses.
const DestroyModeUniform = 2

// Environment is the physical side of the simulation: agent positions,
// survivor bookkeeping, connectivity and stochastic destruction. The
// controller is its only caller and always holds its own lock across calls,
// so implementations need no internal synchronization.
type Environment interface {
	Reset() error
	// Positions returns the coordinates of all agents, indexed by agent id.
	// The returned slice is a copy.
	Positions() []Position
	// RemainList returns the ids of the surviving agents, ascending.
	RemainList() []int
	ClusterCount() int
	// StochasticDestroy removes count agents according to mode and returns
	// the ids it destroyed.
	StochasticDestroy(mode, count int) ([]int, error)
	// NextState applies one displacement per agent and returns the new
	// positions. Destroyed agents stay where they fell.
	NextState(actions []Position) ([]Position, error)
	// Advance performs per-step bookkeeping after a state transition.
	Advance()
}

// FieldEnvironment is the built-in Environment: agents scattered over a
// rectangular field, connected when within communication range.
type FieldEnvironment struct {
	cfg       FieldConfig
	rng       *rand.Rand
	positions []Position
	alive     []bool
	tick      int
}

// NewFieldEnvironment creates an environment for cfg. Reset must be called
// before first use.
func NewFieldEnvironment(cfg FieldConfig) *FieldEnvironment {
	return &FieldEnvironment{cfg: cfg}
}

// Reset discards all prior state and scatters the full population over the
// field. A zero seed draws one from the wall clock.
func (e *FieldEnvironment) Reset() error {
	if e.cfg.AgentCount <= 0 {
		return fmt.Errorf("agent count must be positive, got %d", e.cfg.AgentCount)
	}
	seed := e.cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	e.rng = rand.New(rand.NewSource(seed))
	e.positions = make([]Position, e.cfg.AgentCount)
	e.alive = make([]bool, e.cfg.AgentCount)
	for i := range e.positions {
		e.positions[i] = Position{
			X: e.rng.Float64() * e.cfg.Width,
			Y: e.rng.Float64() * e.cfg.Height,
		}
		e.alive[i] = true
	}
	e.tick = 0
	return nil
}

func (e *FieldEnvironment) Positions() []Position {
	return clonePositions(e.positions)
}

func (e *FieldEnvironment) RemainList() []int {
	out := make([]int, 0, len(e.alive))
	for id, ok := range e.alive {
		if ok {
			out = append(out, id)
		}
	}
	return out
}

func (e *FieldEnvironment) ClusterCount() int {
	return len(connectedComponents(e.positions, e.RemainList(), e.cfg.CommRange))
}

// StochasticDestroy samples only from the survivors, so an already-destroyed
// id is never re-selected. A count larger than the surviving population
// destroys everyone.
func (e *FieldEnvironment) StochasticDestroy(mode, count int) ([]int, error) {
	if mode != DestroyModeUniform {
		return nil, fmt.Errorf("unsupported destroy mode %d", mode)
	}
	if count <= 0 {
		return nil, nil
	}

	remain := e.RemainList()
	if count > len(remain) {
		count = len(remain)
	}
	e.rng.Shuffle(len(remain), func(i, j int) {
		remain[i], remain[j] = remain[j], remain[i]
	})

	destroyed := make([]int, count)
	copy(destroyed, remain[:count])
	for _, id := range destroyed {
		e.alive[id] = false
	}
	return destroyed, nil
}

// NextState integrates one displacement per agent, clamped to the field.
// Destroyed agents ignore their action.
func (e *FieldEnvironment) NextState(actions []Position) ([]Position, error) {
	if len(actions) != len(e.positions) {
		return nil, fmt.Errorf("got %d actions for %d agents", len(actions), len(e.positions))
	}
	for id := range e.positions {
		if !e.alive[id] {
			continue
		}
		e.positions[id].X = clamp(e.positions[id].X+actions[id].X, 0, e.cfg.Width)
		e.positions[id].Y = clamp(e.positions[id].Y+actions[id].Y, 0, e.cfg.Height)
	}
	return clonePositions(e.positions), nil
}

func (e *FieldEnvironment) Advance() {
	e.tick++
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// connectedComponents groups the given agent ids into maximal sets of
// mutually reachable agents under the communication-range relation.
func connectedComponents(positions []Position, ids []int, commRange float64) [][]int {
	parent := make(map[int]int, len(ids))
	for _, id := range ids {
		parent[id] = id
	}

	var find func(int) int
	find = func(x int) int {
		if parent[x] != x {
			parent[x] = find(parent[x])
		}
		return parent[x]
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[ra] = rb
		}
	}

	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			a, b := ids[i], ids[j]
			if distance(positions[a], positions[b]) <= commRange {
				union(a, b)
			}
		}
	}

	groups := make(map[int][]int)
	for _, id := range ids {
		root := find(id)
		groups[root] = append(groups[root], id)
	}
	out := make([][]int, 0, len(groups))
	for _, members := range groups {
		out = append(out, members)
	}
	return out
}

func distance(a, b Position) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}
