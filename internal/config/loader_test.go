package config

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name            string
		globalConfig    *ContractorConfig
		projectConfig   *ContractorConfig
		expectProviders int
		expectAgents    int
		checkAgent      string
		expectProvider  string
		expectTimeout   int
		expectParallel  int
	}{
		{
			name:            "No config files - returns defaults",
			expectProviders: 2,
			expectAgents:    10,
			expectTimeout:   300,
			expectParallel:  3,
		},
		{
			name: "Global only - adds new agent",
			globalConfig: &ContractorConfig{
				Agents: map[string]AgentConfig{
					"Landscaper": {
						Provider: "simulated",
						Tools:    []string{"plant_shrubs"},
					},
				},
			},
			expectProviders: 2,
			expectAgents:    11,
			checkAgent:      "Landscaper",
			expectProvider:  "simulated",
			expectTimeout:   300,
			expectParallel:  3,
		},
		{
			name: "Project only - overrides agent provider and timeout",
			projectConfig: &ContractorConfig{
				Agents: map[string]AgentConfig{
					"Carpenter": {Provider: "command"},
				},
				Scheduler: SchedulerConfig{TaskTimeoutSeconds: 60},
			},
			expectProviders: 2,
			expectAgents:    10,
			checkAgent:      "Carpenter",
			expectProvider:  "command",
			expectTimeout:   60,
			expectParallel:  3,
		},
		{
			name: "Project overrides global - project wins",
			globalConfig: &ContractorConfig{
				Providers: map[string]ProviderConfig{
					"fast": {Type: "simulated"},
				},
				Agents: map[string]AgentConfig{
					"Plumber": {Provider: "fast"},
				},
				Scheduler: SchedulerConfig{MaxParallel: 8, TaskTimeoutSeconds: 10},
			},
			projectConfig: &ContractorConfig{
				Agents: map[string]AgentConfig{
					"Plumber": {Provider: "command"},
				},
				Scheduler: SchedulerConfig{MaxParallel: 2},
			},
			expectProviders: 3,
			expectAgents:    10,
			checkAgent:      "Plumber",
			expectProvider:  "command",
			expectTimeout:   10,
			expectParallel:  2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()

			globalPath := ""
			if tt.globalConfig != nil {
				globalPath = filepath.Join(tmpDir, "global.json")
				writeJSON(t, globalPath, tt.globalConfig)
			}

			projectPath := ""
			if tt.projectConfig != nil {
				projectPath = filepath.Join(tmpDir, "project.json")
				writeJSON(t, projectPath, tt.projectConfig)
			}

			cfg, err := Load(globalPath, projectPath)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if got := len(cfg.Providers); got != tt.expectProviders {
				t.Errorf("providers count = %d, want %d", got, tt.expectProviders)
			}
			if got := len(cfg.Agents); got != tt.expectAgents {
				t.Errorf("agents count = %d, want %d", got, tt.expectAgents)
			}
			if cfg.Scheduler.TaskTimeoutSeconds != tt.expectTimeout {
				t.Errorf("timeout = %d, want %d", cfg.Scheduler.TaskTimeoutSeconds, tt.expectTimeout)
			}
			if cfg.Scheduler.MaxParallel != tt.expectParallel {
				t.Errorf("max parallel = %d, want %d", cfg.Scheduler.MaxParallel, tt.expectParallel)
			}
			if len(cfg.Scheduler.Phases) != 9 {
				t.Errorf("phases = %v", cfg.Scheduler.Phases)
			}

			if tt.checkAgent != "" {
				agent, exists := cfg.Agents[tt.checkAgent]
				if !exists {
					t.Fatalf("expected agent %q not found", tt.checkAgent)
				}
				if agent.Provider != tt.expectProvider {
					t.Errorf("agent %q provider = %q, want %q", tt.checkAgent, agent.Provider, tt.expectProvider)
				}
			}
			if err := cfg.Validate(); err != nil {
				t.Errorf("Validate: %v", err)
			}
		})
	}
}

func writeJSON(t *testing.T, path string, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshaling config: %v", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
}

func TestLoad_MalformedJSON(t *testing.T) {
	tmpDir := t.TempDir()

	globalPath := filepath.Join(tmpDir, "global.json")
	if err := os.WriteFile(globalPath, []byte("{invalid json"), 0644); err != nil {
		t.Fatalf("writing malformed config: %v", err)
	}

	if _, err := Load(globalPath, ""); err == nil {
		t.Fatal("expected error for malformed JSON, got nil")
	}
}

func TestLoad_MissingFilesNotError(t *testing.T) {
	cfg, err := Load("/nonexistent/global.json", "/nonexistent/project.json")
	if err != nil {
		t.Fatalf("expected no error for missing files, got: %v", err)
	}
	if len(cfg.Agents) != 10 {
		t.Errorf("agents count = %d, want 10", len(cfg.Agents))
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvTaskTimeout:  "45",
		EnvMaxParallel:  "5",
		EnvLogLevel:     "debug",
		EnvJournalPath:  "/tmp/journal.db",
		EnvOTLPEndpoint: "http://collector:4318",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := DefaultConfig()
	if err := ApplyEnv(cfg, lookup); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if cfg.Scheduler.TaskTimeoutSeconds != 45 || cfg.Scheduler.MaxParallel != 5 {
		t.Errorf("scheduler overrides not applied: %+v", cfg.Scheduler)
	}
	if cfg.SlogLevel() != slog.LevelDebug {
		t.Errorf("SlogLevel() = %v, want debug", cfg.SlogLevel())
	}
	if !cfg.Journal.Enabled || cfg.Journal.Path != "/tmp/journal.db" {
		t.Errorf("journal override not applied: %+v", cfg.Journal)
	}
	if !cfg.Telemetry.Enabled || cfg.Telemetry.OTLPEndpoint != "http://collector:4318" {
		t.Errorf("telemetry override not applied: %+v", cfg.Telemetry)
	}

	env[EnvTaskTimeout] = "soon"
	if err := ApplyEnv(DefaultConfig(), lookup); err == nil {
		t.Error("expected error for non-numeric timeout")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ContractorConfig)
		wantErr bool
	}{
		{"defaults", func(*ContractorConfig) {}, false},
		{"unknown provider", func(c *ContractorConfig) {
			c.Agents["Roofer"] = AgentConfig{Provider: "crane"}
		}, true},
		{"zero timeout", func(c *ContractorConfig) { c.Scheduler.TaskTimeoutSeconds = 0 }, true},
		{"negative parallel", func(c *ContractorConfig) { c.Scheduler.MaxParallel = -1 }, true},
		{"no phases", func(c *ContractorConfig) { c.Scheduler.Phases = nil }, true},
		{"duplicate phase", func(c *ContractorConfig) {
			c.Scheduler.Phases = []string{"framing", "framing"}
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
