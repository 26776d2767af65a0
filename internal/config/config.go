// Package config loads prognos configuration from .prognos/config.json with
// environment overrides. All knobs the engine exposes live here so the core
// packages stay free of ambient process state.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config is the root configuration.
type Config struct {
	LLM       LLMConfig       `json:"llm"`
	Limits    LimitsConfig    `json:"limits"`
	Synthesis SynthesisConfig `json:"synthesis"`
	Logging   LoggingConfig   `json:"logging"`
	Journal   JournalConfig   `json:"journal"`
}

// LLMConfig configures the agent client.
type LLMConfig struct {
	Provider string        `json:"provider"` // currently "gemini"
	Model    string        `json:"model"`
	APIKey   string        `json:"api_key"`
	Timeout  time.Duration `json:"timeout_ns"`
}

// LimitsConfig bounds the decomposition pipeline. These are explicit
// construction-time configuration, not process-wide state, so the
// coordinator stays deterministic and unit-testable.
type LimitsConfig struct {
	MaxDepth      int           `json:"max_depth"`       // recursion guard budget
	MaxFanOut     int           `json:"max_fan_out"`     // concurrent units per decomposition step
	MaxConcurrent int           `json:"max_concurrent"`  // API slots shared across the process
	MaxRetries    int           `json:"max_retries"`     // transient-failure retries in the executor
	UnitTimeout   time.Duration `json:"unit_timeout_ns"` // per sub-forecast unit
	GracePeriod   time.Duration `json:"grace_period_ns"` // wait on cancelled in-flight units
}

// SynthesisConfig carries the distribution policy constants. The defaults
// are documented policy choices, not derived values; see DESIGN.md.
type SynthesisConfig struct {
	MinStepFraction     float64 `json:"min_step_fraction"`
	TailOvershoot       float64 `json:"tail_overshoot"`
	CDFFloor            float64 `json:"cdf_floor"`
	DefaultOutcomeCount int     `json:"default_outcome_count"`
}

// LoggingConfig controls the zap root logger.
type LoggingConfig struct {
	Level string `json:"level"`
}

// JournalConfig locates the forecast journal database.
type JournalConfig struct {
	Path string `json:"path"`
}

// Default returns the baseline configuration rooted at workspace.
func Default(workspace string) Config {
	return Config{
		LLM: LLMConfig{
			Provider: "gemini",
			Model:    "gemini-2.5-flash",
			Timeout:  2 * time.Minute,
		},
		Limits: LimitsConfig{
			MaxDepth:      3,
			MaxFanOut:     4,
			MaxConcurrent: 5,
			MaxRetries:    2,
			UnitTimeout:   5 * time.Minute,
			GracePeriod:   2 * time.Second,
		},
		Synthesis: SynthesisConfig{
			MinStepFraction:     0.05,
			TailOvershoot:       0.15,
			CDFFloor:            1e-5,
			DefaultOutcomeCount: 201,
		},
		Logging: LoggingConfig{Level: "info"},
		Journal: JournalConfig{
			Path: filepath.Join(workspace, ".prognos", "journal.db"),
		},
	}
}

// Load reads .prognos/config.json under workspace, falling back to defaults
// when the file is absent. A present-but-broken file is an error, not a
// silent fallback. Environment overrides apply last.
func Load(workspace string) (Config, error) {
	cfg := Default(workspace)

	path := filepath.Join(workspace, ".prognos", "config.json")
	data, err := os.ReadFile(path)
	if err == nil {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("failed to read %s: %w", path, err)
	}

	applyEnv(&cfg)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PROGNOS_GEMINI_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" && cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("PROGNOS_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("PROGNOS_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
}

func (c Config) validate() error {
	if c.Limits.MaxDepth < 1 {
		return fmt.Errorf("limits.max_depth must be >= 1, got %d", c.Limits.MaxDepth)
	}
	if c.Limits.MaxFanOut < 1 {
		return fmt.Errorf("limits.max_fan_out must be >= 1, got %d", c.Limits.MaxFanOut)
	}
	if c.Limits.MaxConcurrent < 1 {
		return fmt.Errorf("limits.max_concurrent must be >= 1, got %d", c.Limits.MaxConcurrent)
	}
	if c.Synthesis.MinStepFraction <= 0 || c.Synthesis.MinStepFraction >= 1 {
		return fmt.Errorf("synthesis.min_step_fraction must be in (0,1), got %v", c.Synthesis.MinStepFraction)
	}
	if c.Synthesis.CDFFloor <= 0 || c.Synthesis.CDFFloor >= 0.5 {
		return fmt.Errorf("synthesis.cdf_floor must be in (0,0.5), got %v", c.Synthesis.CDFFloor)
	}
	if c.Synthesis.DefaultOutcomeCount < 2 {
		return fmt.Errorf("synthesis.default_outcome_count must be >= 2, got %d", c.Synthesis.DefaultOutcomeCount)
	}
	return nil
}
