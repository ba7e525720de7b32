package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables that override file configuration.
const (
	EnvTaskTimeout  = "CONTRACTOR_TASK_TIMEOUT_SECONDS"
	EnvMaxParallel  = "CONTRACTOR_MAX_PARALLEL_TASKS"
	EnvLogLevel     = "CONTRACTOR_LOG_LEVEL"
	EnvJournalPath  = "CONTRACTOR_JOURNAL_PATH"
	EnvOTLPEndpoint = "CONTRACTOR_OTLP_ENDPOINT"
)

// Load reads and merges configuration from global and project paths.
// Order of precedence (highest to lowest): project config, global config, defaults.
// Missing files are not errors; malformed JSON returns an error.
func Load(globalPath, projectPath string) (*ContractorConfig, error) {
	cfg := DefaultConfig()

	if globalPath != "" {
		if err := mergeConfigFile(cfg, globalPath); err != nil {
			return nil, fmt.Errorf("loading global config: %w", err)
		}
	}

	if projectPath != "" {
		if err := mergeConfigFile(cfg, projectPath); err != nil {
			return nil, fmt.Errorf("loading project config: %w", err)
		}
	}

	return cfg, nil
}

// LoadDefault loads configuration from conventional paths, then applies
// a .env file in the working directory and CONTRACTOR_* environment variables.
// Global: ~/.contractor/config.json
// Project: .contractor/config.json (relative to cwd)
func LoadDefault() (*ContractorConfig, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting home directory: %w", err)
	}

	globalPath := filepath.Join(homeDir, ".contractor", "config.json")
	projectPath := filepath.Join(".contractor", "config.json")

	cfg, err := Load(globalPath, projectPath)
	if err != nil {
		return nil, err
	}

	// godotenv never overwrites variables already present in the environment.
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
	if err := ApplyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides scalar settings from environment variables.
func ApplyEnv(cfg *ContractorConfig, lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvTaskTimeout); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", EnvTaskTimeout, err)
		}
		cfg.Scheduler.TaskTimeoutSeconds = n
	}
	if v, ok := lookup(EnvMaxParallel); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", EnvMaxParallel, err)
		}
		cfg.Scheduler.MaxParallel = n
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		cfg.LogLevel = v
	}
	if v, ok := lookup(EnvJournalPath); ok && v != "" {
		cfg.Journal.Enabled = true
		cfg.Journal.Path = v
	}
	if v, ok := lookup(EnvOTLPEndpoint); ok && v != "" {
		cfg.Telemetry.Enabled = true
		cfg.Telemetry.OTLPEndpoint = v
	}
	return nil
}

// mergeConfigFile reads a JSON config file and merges it into the base config.
// Missing files are silently skipped. Malformed JSON returns an error.
func mergeConfigFile(base *ContractorConfig, path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil // Missing file is not an error
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	var loaded ContractorConfig
	if err := json.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	for key, provider := range loaded.Providers {
		base.Providers[key] = provider
	}
	for key, agent := range loaded.Agents {
		base.Agents[key] = agent
	}

	// Scalar sections: only fields set in the file override.
	s := loaded.Scheduler
	if s.TaskTimeoutSeconds != 0 {
		base.Scheduler.TaskTimeoutSeconds = s.TaskTimeoutSeconds
	}
	if s.MaxParallel != 0 {
		base.Scheduler.MaxParallel = s.MaxParallel
	}
	if s.MaxPhaseIterations != 0 {
		base.Scheduler.MaxPhaseIterations = s.MaxPhaseIterations
	}
	if len(s.Phases) > 0 {
		base.Scheduler.Phases = s.Phases
	}

	r := loaded.Retry
	if r.MaxRetries != 0 {
		base.Retry.MaxRetries = r.MaxRetries
	}
	if r.InitialIntervalMs != 0 {
		base.Retry.InitialIntervalMs = r.InitialIntervalMs
	}
	if r.MaxIntervalMs != 0 {
		base.Retry.MaxIntervalMs = r.MaxIntervalMs
	}
	if r.Multiplier != 0 {
		base.Retry.Multiplier = r.Multiplier
	}

	if loaded.Journal.Enabled || loaded.Journal.Path != "" {
		base.Journal.Enabled = loaded.Journal.Enabled
		if loaded.Journal.Path != "" {
			base.Journal.Path = loaded.Journal.Path
		}
	}

	t := loaded.Telemetry
	if t.Enabled {
		base.Telemetry.Enabled = true
		base.Telemetry.Insecure = t.Insecure
	}
	if t.ServiceName != "" {
		base.Telemetry.ServiceName = t.ServiceName
	}
	if t.OTLPEndpoint != "" {
		base.Telemetry.OTLPEndpoint = t.OTLPEndpoint
	}

	if loaded.LogLevel != "" {
		base.LogLevel = loaded.LogLevel
	}

	return nil
}

// Validate checks cross-references and limits.
func (c *ContractorConfig) Validate() error {
	for name, agent := range c.Agents {
		if _, ok := c.Providers[agent.Provider]; !ok {
			return fmt.Errorf("agent %q references unknown provider %q", name, agent.Provider)
		}
	}
	if c.Scheduler.TaskTimeoutSeconds <= 0 {
		return fmt.Errorf("task timeout must be positive, got %d", c.Scheduler.TaskTimeoutSeconds)
	}
	if c.Scheduler.MaxParallel < 0 {
		return fmt.Errorf("max parallel tasks must not be negative, got %d", c.Scheduler.MaxParallel)
	}
	if len(c.Scheduler.Phases) == 0 {
		return errors.New("phase order is empty")
	}
	seen := make(map[string]bool, len(c.Scheduler.Phases))
	for _, p := range c.Scheduler.Phases {
		if seen[p] {
			return fmt.Errorf("phase %q listed twice", p)
		}
		seen[p] = true
	}
	return nil
}

// SlogLevel maps LogLevel onto a slog level. Unknown values mean info.
func (c *ContractorConfig) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
