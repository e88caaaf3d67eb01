package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadFromFileOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chemsim.yaml")
	data := `
simulation:
  simulator: gibson-bruck
  end: 5
  ensemble_size: 20
  seed: 9
logging:
  level: debug
store:
  kind: sqlite
  sqlite_path: /tmp/ledger.db
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if cfg.Simulation.Simulator != "gibson-bruck" || cfg.Simulation.End != 5 || cfg.Simulation.Points != 11 {
		t.Fatalf("unexpected simulation config: %+v", cfg.Simulation)
	}
	if cfg.Store.Kind != "sqlite" || cfg.Logging.Level != "debug" {
		t.Fatalf("unexpected config: %+v", cfg)
	}

	p := cfg.Simulation.Parameters()
	if p.EnsembleSize == nil || *p.EnsembleSize != 20 || p.Seed == nil || *p.Seed != 9 {
		t.Fatalf("unexpected parameters: %+v", p)
	}
	if p.MinNumSteps != nil || p.MaxAllowedRelativeError != nil {
		t.Fatalf("unset values should keep simulator defaults: %+v", p)
	}
}

func TestLoadFromFileRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("simulation: [unclosed"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadFromFile(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]func(*Config){
		"end before start": func(c *Config) { c.Simulation.End = -1 },
		"one point":        func(c *Config) { c.Simulation.Points = 1 },
		"no workers":       func(c *Config) { c.Simulation.Workers = 0 },
		"bad level":        func(c *Config) { c.Logging.Level = "loud" },
		"bad store":        func(c *Config) { c.Store.Kind = "postgres" },
		"sqlite no path": func(c *Config) {
			c.Store.Kind = "sqlite"
			c.Store.SQLitePath = ""
		},
		"bad fraction":     func(c *Config) { c.Simulation.StepFraction = 2 },
		"bad metrics addr": func(c *Config) { c.Metrics.Addr = "not an address" },
		"no simulator":     func(c *Config) { c.Simulation.Simulator = "" },
	}
	for name, mutate := range cases {
		cfg := Default()
		mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		} else if !strings.Contains(err.Error(), "invalid config") {
			t.Fatalf("%s: unexpected error %v", name, err)
		}
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("CHEMSIM_SIMULATOR", "tauleap-simple")
	t.Setenv("CHEMSIM_END", "3.5")
	t.Setenv("CHEMSIM_WORKERS", "4")
	t.Setenv("CHEMSIM_SEED", "12")
	t.Setenv("CHEMSIM_POINTS", "not-a-number")
	t.Setenv("CHEMSIM_METRICS_ADDR", ":9090")

	cfg := Default()
	cfg.ApplyEnv()
	if cfg.Simulation.Simulator != "tauleap-simple" || cfg.Simulation.End != 3.5 || cfg.Simulation.Workers != 4 {
		t.Fatalf("env overrides not applied: %+v", cfg.Simulation)
	}
	if cfg.Simulation.Seed == nil || *cfg.Simulation.Seed != 12 {
		t.Fatalf("seed override not applied: %+v", cfg.Simulation.Seed)
	}
	if cfg.Simulation.Points != 11 {
		t.Fatalf("unparseable override should be ignored, got %d", cfg.Simulation.Points)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}
