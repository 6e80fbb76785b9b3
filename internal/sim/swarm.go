package sim

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Swarm is the decision-making side of the simulation. Like Environment it
// is only ever called under the controller's lock.
type Swarm interface {
	Reset(changeMode bool, mode AlgorithmMode) error
	// NotifyDestroyed informs the swarm that the given agents were removed,
	// together with a snapshot of all agent positions at that moment.
	NotifyDestroyed(destroyed []int, positions []Position)
	// TakeActions computes one displacement per agent (zero for destroyed
	// agents) plus an auxiliary metric: the mean commanded speed.
	TakeActions() (actions []Position, aux float64, err error)
	// ApplyPositions feeds the environment's committed positions back in.
	ApplyPositions(positions []Position)
}

// ReconnectSwarm is the built-in Swarm: each algorithm mode is a contraction
// policy that pulls survivors toward a rally point until the communication
// graph has a single cluster again.
type ReconnectSwarm struct {
	mode          AlgorithmMode
	enableCSDS    bool
	useMetaParams bool
	maxSpeed      float64
	commRange     float64

	positions []Position
	alive     []bool
}

// NewReconnectSwarm constructs a swarm with the given algorithm mode. The
// CSDS and meta-parameter flags mirror the collaborator contract; CSDS only
// changes behaviour for ModeCSDS itself.
func NewReconnectSwarm(cfg SwarmConfig, commRange float64, mode AlgorithmMode, enableCSDS, useMetaParams bool) *ReconnectSwarm {
	return &ReconnectSwarm{
		mode:          mode,
		enableCSDS:    enableCSDS,
		useMetaParams: useMetaParams,
		maxSpeed:      cfg.MaxSpeed,
		commRange:     commRange,
	}
}

// Reset clears all per-run state. With changeMode set the algorithm mode is
// replaced as well.
func (s *ReconnectSwarm) Reset(changeMode bool, mode AlgorithmMode) error {
	if changeMode {
		if !mode.Valid() {
			return fmt.Errorf("invalid algorithm mode %d", int(mode))
		}
		s.mode = mode
		s.enableCSDS = mode == ModeCSDS
	}
	s.positions = nil
	s.alive = nil
	return nil
}

func (s *ReconnectSwarm) NotifyDestroyed(destroyed []int, positions []Position) {
	s.ApplyPositions(positions)
	for _, id := range destroyed {
		if id >= 0 && id < len(s.alive) {
			s.alive[id] = false
		}
	}
}

func (s *ReconnectSwarm) ApplyPositions(positions []Position) {
	if len(positions) != len(s.positions) {
		// Population changed: start over, everyone alive until notified.
		s.alive = make([]bool, len(positions))
		for i := range s.alive {
			s.alive[i] = true
		}
	}
	s.positions = clonePositions(positions)
}

// TakeActions computes the per-agent displacement for the current mode.
func (s *ReconnectSwarm) TakeActions() ([]Position, float64, error) {
	if len(s.positions) == 0 {
		return nil, 0, fmt.Errorf("swarm has no positions, apply a snapshot first")
	}

	survivors := make([]int, 0, len(s.positions))
	for id, ok := range s.alive {
		if ok {
			survivors = append(survivors, id)
		}
	}
	actions := make([]Position, len(s.positions))
	if len(survivors) == 0 {
		return actions, 0, nil
	}

	clusters := connectedComponents(s.positions, survivors, s.commRange)
	speeds := make([]float64, 0, len(survivors))
	for _, id := range survivors {
		target := s.targetFor(id, survivors, clusters)
		a := s.steer(s.positions[id], target)
		actions[id] = a
		speeds = append(speeds, math.Hypot(a.X, a.Y))
	}
	return actions, stat.Mean(speeds, nil), nil
}

// targetFor picks the rally point an agent should move toward.
func (s *ReconnectSwarm) targetFor(id int, survivors []int, clusters [][]int) Position {
	switch s.mode {
	case ModeCSDS:
		if s.enableCSDS {
			// Cohere with the local cluster before chasing the swarm center.
			own := clusterOf(id, clusters)
			mid := centroid(s.positions, own)
			c := centroid(s.positions, survivors)
			return Position{X: (mid.X + c.X) / 2, Y: (mid.Y + c.Y) / 2}
		}
		return centroid(s.positions, survivors)
	case ModeHERO:
		// Greedy link repair: head for the nearest survivor out of range.
		best, bestDist := -1, math.Inf(1)
		for _, other := range survivors {
			if other == id {
				continue
			}
			d := distance(s.positions[id], s.positions[other])
			if d > s.commRange && d < bestDist {
				best, bestDist = other, d
			}
		}
		if best >= 0 {
			return s.positions[best]
		}
		return centroid(s.positions, survivors)
	case ModeCRMGC:
		// Mass toward the largest remaining cluster.
		largest := clusters[0]
		for _, c := range clusters[1:] {
			if len(c) > len(largest) {
				largest = c
			}
		}
		return centroid(s.positions, largest)
	default: // Centering, SIDR, GCN 2017
		return centroid(s.positions, survivors)
	}
}

// steer returns the displacement from pos toward target, scaled by the
// mode's gain and clamped to the speed limit.
func (s *ReconnectSwarm) steer(pos, target Position) Position {
	v := []float64{target.X - pos.X, target.Y - pos.Y}
	gain := 1.0
	switch s.mode {
	case ModeSIDR:
		gain = 0.5
	case ModeGCN2017:
		if s.useMetaParams {
			gain = 0.8
		} else {
			gain = 0.6
		}
	}
	floats.Scale(gain, v)
	if n := floats.Norm(v, 2); n > s.maxSpeed {
		floats.Scale(s.maxSpeed/n, v)
	}
	return Position{X: v[0], Y: v[1]}
}

func clusterOf(id int, clusters [][]int) []int {
	for _, c := range clusters {
		for _, member := range c {
			if member == id {
				return c
			}
		}
	}
	return []int{id}
}

func centroid(positions []Position, ids []int) Position {
	if len(ids) == 0 {
		return Position{}
	}
	xs := make([]float64, len(ids))
	ys := make([]float64, len(ids))
	for i, id := range ids {
		xs[i] = positions[id].X
		ys[i] = positions[id].Y
	}
	return Position{X: stat.Mean(xs, nil), Y: stat.Mean(ys, nil)}
}
