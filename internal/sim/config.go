// Package sim implements the real-time control core of the swarm
// reconnection simulation: a controller that serializes all mutation of the
// simulation state, a background runner pacing repeated steps, a bounded
// log pipeline, and a broadcast bus feeding UI subscribers.
package sim

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds all simulation parameters.
type Config struct {
	Field    FieldConfig    `yaml:"field"`
	Swarm    SwarmConfig    `yaml:"swarm"`
	Run      RunConfig      `yaml:"run"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Clock    ClockConfig    `yaml:"clock"`
}

// FieldConfig describes the operating field and the agent population.
type FieldConfig struct {
	AgentCount int     `yaml:"agent_count"`
	Width      float64 `yaml:"width"`
	Height     float64 `yaml:"height"`
	CommRange  float64 `yaml:"comm_range"`
	// Seed for the field RNG; 0 means seed from the wall clock.
	Seed int64 `yaml:"seed"`
}

// SwarmConfig describes the swarm collaborator defaults.
type SwarmConfig struct {
	MaxSpeed            float64 `yaml:"max_speed"`
	UseMetaParams       bool    `yaml:"use_meta_params"`
	DefaultAlgorithm    int     `yaml:"default_algorithm"`
	DefaultDestroyCount int     `yaml:"default_destroy_count"`
}

// RunConfig describes stepping behaviour.
type RunConfig struct {
	MaxSteps       int `yaml:"max_steps"`
	StepIntervalMS int `yaml:"step_interval_ms"`
}

// StepInterval returns the runner pacing interval.
func (r RunConfig) StepInterval() time.Duration {
	return time.Duration(r.StepIntervalMS) * time.Millisecond
}

// PipelineConfig describes the log pipeline queues and cadences.
type PipelineConfig struct {
	IngestCapacity     int `yaml:"ingest_capacity"`
	OutboundCapacity   int `yaml:"outbound_capacity"`
	BatchSize          int `yaml:"batch_size"`
	DispatchIntervalMS int `yaml:"dispatch_interval_ms"`
	SendIntervalMS     int `yaml:"send_interval_ms"`
}

// DispatchInterval returns the batching dispatcher cadence.
func (p PipelineConfig) DispatchInterval() time.Duration {
	return time.Duration(p.DispatchIntervalMS) * time.Millisecond
}

// SendInterval returns the sender cadence.
func (p PipelineConfig) SendInterval() time.Duration {
	return time.Duration(p.SendIntervalMS) * time.Millisecond
}

// ClockConfig describes the wall-clock ticker.
type ClockConfig struct {
	IntervalMS int `yaml:"interval_ms"`
}

// Interval returns the clock cadence.
func (c ClockConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMS) * time.Millisecond
}

// DefaultConfig returns the embedded default configuration.
func DefaultConfig() Config {
	var cfg Config
	if err := yaml.Unmarshal(defaultsYAML, &cfg); err != nil {
		// The defaults ship with the binary; failing to parse them is a bug.
		panic(fmt.Sprintf("sim: invalid embedded defaults: %v", err))
	}
	return cfg
}

// LoadConfig loads configuration from a YAML file layered over the embedded
// defaults. An empty path returns the defaults unchanged.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the engine cannot run with.
func (c Config) Validate() error {
	if c.Field.AgentCount <= 0 {
		return fmt.Errorf("field.agent_count must be positive, got %d", c.Field.AgentCount)
	}
	if c.Field.Width <= 0 || c.Field.Height <= 0 {
		return fmt.Errorf("field dimensions must be positive, got %gx%g", c.Field.Width, c.Field.Height)
	}
	if c.Field.CommRange <= 0 {
		return fmt.Errorf("field.comm_range must be positive, got %g", c.Field.CommRange)
	}
	if c.Swarm.MaxSpeed <= 0 {
		return fmt.Errorf("swarm.max_speed must be positive, got %g", c.Swarm.MaxSpeed)
	}
	if !AlgorithmMode(c.Swarm.DefaultAlgorithm).Valid() {
		return fmt.Errorf("swarm.default_algorithm must be 0..5, got %d", c.Swarm.DefaultAlgorithm)
	}
	if c.Swarm.DefaultDestroyCount < 0 {
		return fmt.Errorf("swarm.default_destroy_count must not be negative, got %d", c.Swarm.DefaultDestroyCount)
	}
	if c.Run.MaxSteps <= 0 {
		return fmt.Errorf("run.max_steps must be positive, got %d", c.Run.MaxSteps)
	}
	if c.Run.StepIntervalMS <= 0 {
		return fmt.Errorf("run.step_interval_ms must be positive, got %d", c.Run.StepIntervalMS)
	}
	if c.Pipeline.IngestCapacity <= 0 || c.Pipeline.OutboundCapacity <= 0 {
		return fmt.Errorf("pipeline capacities must be positive")
	}
	if c.Pipeline.BatchSize <= 0 {
		return fmt.Errorf("pipeline.batch_size must be positive, got %d", c.Pipeline.BatchSize)
	}
	if c.Pipeline.DispatchIntervalMS <= 0 || c.Pipeline.SendIntervalMS <= 0 {
		return fmt.Errorf("pipeline intervals must be positive")
	}
	if c.Clock.IntervalMS <= 0 {
		return fmt.Errorf("clock.interval_ms must be positive, got %d", c.Clock.IntervalMS)
	}
	return nil
}
