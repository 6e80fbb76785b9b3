package sim

import "sort"

// Position is a 2D coordinate (or displacement) in the operating field.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// AlgorithmMode selects the swarm reconnection algorithm.
type AlgorithmMode int

const (
	ModeCSDS AlgorithmMode = iota
	ModeHERO
	ModeCentering
	ModeSIDR
	ModeGCN2017
	ModeCRMGC
)

func (m AlgorithmMode) String() string {
	switch m {
	case ModeCSDS:
		return "CSDS"
	case ModeHERO:
		return "HERO"
	case ModeCentering:
		return "Centering"
	case ModeSIDR:
		return "SIDR"
	case ModeGCN2017:
		return "GCN 2017"
	case ModeCRMGC:
		return "CR-MGC"
	default:
		return "unknown"
	}
}

// Valid reports whether m is one of the supported modes.
func (m AlgorithmMode) Valid() bool {
	return m >= ModeCSDS && m <= ModeCRMGC
}

// State is the mutable record of a running simulation. It is owned by the
// Controller and mutated only inside its critical section; everything else
// reads a Snapshot.
type State struct {
	StepCount    int
	MaxSteps     int
	Algorithm    AlgorithmMode
	DestroyCount int
	Initialized  bool
	Running      bool

	Positions []Position
	Remain    []int
	Destroyed map[int]struct{}
	Clusters  int
	Connected bool
}

// Snapshot is an immutable, rendering-only copy of the committed state.
// Consumers never alias the live State.
type Snapshot struct {
	StepCount   int        `json:"step_count"`
	MaxSteps    int        `json:"max_steps"`
	Algorithm   int        `json:"algorithm"`
	Initialized bool       `json:"initialized"`
	Running     bool       `json:"running"`
	Positions   []Position `json:"positions"`
	Remain      []int      `json:"remain"`
	Destroyed   []int      `json:"destroyed"`
	Clusters    int        `json:"clusters"`
	Connected   bool       `json:"connected"`
}

// snapshot copies the state into a Snapshot. Destroyed ids come out sorted
// so the wire form is stable across runs.
func (s *State) snapshot() *Snapshot {
	destroyed := make([]int, 0, len(s.Destroyed))
	for id := range s.Destroyed {
		destroyed = append(destroyed, id)
	}
	sort.Ints(destroyed)

	return &Snapshot{
		StepCount:   s.StepCount,
		MaxSteps:    s.MaxSteps,
		Algorithm:   int(s.Algorithm),
		Initialized: s.Initialized,
		Running:     s.Running,
		Positions:   clonePositions(s.Positions),
		Remain:      cloneInts(s.Remain),
		Destroyed:   destroyed,
		Clusters:    s.Clusters,
		Connected:   s.Connected,
	}
}

func clonePositions(ps []Position) []Position {
	if ps == nil {
		return nil
	}
	out := make([]Position, len(ps))
	copy(out, ps)
	return out
}

func cloneInts(xs []int) []int {
	if xs == nil {
		return nil
	}
	out := make([]int, len(xs))
	copy(out, xs)
	return out
}
