// Package config loads chemsimctl configuration from YAML files and
// CHEMSIM_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"chemsim/internal/sim"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Config contains all chemsimctl settings.
type Config struct {
	Simulation SimulationConfig `json:"simulation" yaml:"simulation"`
	Logging    LoggingConfig    `json:"logging" yaml:"logging"`
	Store      StoreConfig      `json:"store" yaml:"store"`
	Metrics    MetricsConfig    `json:"metrics" yaml:"metrics"`
}

// SimulationConfig holds the defaults for a simulate call. Zero numeric
// tuning values leave the simulator's own default in place.
type SimulationConfig struct {
	Simulator string  `json:"simulator" yaml:"simulator" validate:"required"`
	Start     float64 `json:"start" yaml:"start"`
	End       float64 `json:"end" yaml:"end"`
	Points    int     `json:"points" yaml:"points" validate:"gte=2"`

	EnsembleSize       int     `json:"ensemble_size,omitempty" yaml:"ensemble_size,omitempty" validate:"gte=0"`
	RelativeError      float64 `json:"relative_error,omitempty" yaml:"relative_error,omitempty" validate:"gte=0"`
	AbsoluteError      float64 `json:"absolute_error,omitempty" yaml:"absolute_error,omitempty" validate:"gte=0"`
	MinSteps           int     `json:"min_steps,omitempty" yaml:"min_steps,omitempty" validate:"gte=0"`
	StepFraction       float64 `json:"step_fraction,omitempty" yaml:"step_fraction,omitempty" validate:"gte=0,lte=1"`
	HistoryBins        int     `json:"history_bins,omitempty" yaml:"history_bins,omitempty" validate:"gte=0"`
	Seed               *uint64 `json:"seed,omitempty" yaml:"seed,omitempty"`
	Fluctuations       bool    `json:"fluctuations" yaml:"fluctuations"`
	ConcentrationUnits bool    `json:"concentration_units" yaml:"concentration_units"`

	// Workers is the number of simulator instances run in parallel.
	Workers int `json:"workers" yaml:"workers" validate:"gte=1,lte=256"`
}

type LoggingConfig struct {
	// Level is one of error, warn, info, debug or trace.
	Level string `json:"level" yaml:"level" validate:"omitempty,oneof=error warn info debug trace"`
}

type StoreConfig struct {
	Kind       string `json:"kind" yaml:"kind" validate:"omitempty,oneof=memory sqlite"`
	SQLitePath string `json:"sqlite_path,omitempty" yaml:"sqlite_path,omitempty" validate:"required_if=Kind sqlite"`
}

type MetricsConfig struct {
	// Addr serves /metrics when set, for example ":9090".
	Addr string `json:"addr,omitempty" yaml:"addr,omitempty" validate:"omitempty,hostname_port"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Simulation: SimulationConfig{
			Simulator: "ODE-RK5-adaptive",
			Start:     0,
			End:       10,
			Points:    11,
			Workers:   1,
		},
		Logging: LoggingConfig{Level: "info"},
		Store: StoreConfig{
			Kind:       "memory",
			SQLitePath: "chemsim.db",
		},
	}
}

// LoadFromFile loads configuration from a YAML file on top of the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return config, nil
}

// Validate checks struct constraints and the cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var invalid validator.ValidationErrors
		if errors.As(err, &invalid) {
			fields := make([]string, 0, len(invalid))
			for _, fe := range invalid {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(fields, ", "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if !(c.Simulation.End > c.Simulation.Start) {
		return fmt.Errorf("invalid config: simulation end %g must be greater than start %g", c.Simulation.End, c.Simulation.Start)
	}
	return nil
}

// Parameters converts the tuning values into simulator parameters.
func (s SimulationConfig) Parameters() sim.Parameters {
	p := sim.Parameters{
		ComputeFluctuations: s.Fluctuations,
		ConcentrationUnits:  s.ConcentrationUnits,
	}
	if s.EnsembleSize > 0 {
		p.EnsembleSize = sim.Int(s.EnsembleSize)
	}
	if s.MinSteps > 0 {
		p.MinNumSteps = sim.Int(s.MinSteps)
	}
	if s.RelativeError > 0 {
		p.MaxAllowedRelativeError = sim.Float(s.RelativeError)
	}
	if s.AbsoluteError > 0 {
		p.MaxAllowedAbsoluteError = sim.Float(s.AbsoluteError)
	}
	if s.StepFraction > 0 {
		p.StepSizeFraction = sim.Float(s.StepFraction)
	}
	if s.HistoryBins > 0 {
		p.NumHistoryBins = sim.Int(s.HistoryBins)
	}
	if s.Seed != nil {
		p.Seed = sim.Uint64(*s.Seed)
	}
	return p
}

// ApplyEnv applies CHEMSIM_* environment overrides. Values that do not
// parse are ignored.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("CHEMSIM_SIMULATOR"); v != "" {
		c.Simulation.Simulator = v
	}
	setFloat("CHEMSIM_START", &c.Simulation.Start)
	setFloat("CHEMSIM_END", &c.Simulation.End)
	setInt("CHEMSIM_POINTS", &c.Simulation.Points)
	setInt("CHEMSIM_ENSEMBLE_SIZE", &c.Simulation.EnsembleSize)
	setInt("CHEMSIM_WORKERS", &c.Simulation.Workers)
	if v := os.Getenv("CHEMSIM_SEED"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			c.Simulation.Seed = &n
		}
	}
	if v := os.Getenv("CHEMSIM_FLUCTUATIONS"); v != "" {
		c.Simulation.Fluctuations = v == "true" || v == "1"
	}
	if v := os.Getenv("CHEMSIM_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("CHEMSIM_STORE"); v != "" {
		c.Store.Kind = v
	}
	if v := os.Getenv("CHEMSIM_SQLITE_PATH"); v != "" {
		c.Store.SQLitePath = v
	}
	if v := os.Getenv("CHEMSIM_METRICS_ADDR"); v != "" {
		c.Metrics.Addr = v
	}
}

func setFloat(key string, dst *float64) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
