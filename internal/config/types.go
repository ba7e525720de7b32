package config

// ProviderConfig defines how a worker's tasks are executed.
// Providers are separate from agents -- multiple agents can share one provider.
type ProviderConfig struct {
	Type    string   `json:"type"`               // Backend type matching backend.Config.Type: "simulated", "command"
	Command string   `json:"command,omitempty"`  // CLI binary for the command backend
	Args    []string `json:"args,omitempty"`     // Default args appended to every invocation
	DelayMs int      `json:"delay_ms,omitempty"` // Simulated work time per tool call
}

// AgentConfig defines a worker: its provider and its trade capability profile.
type AgentConfig struct {
	Provider     string   `json:"provider"`                // Key into Providers map
	Model        string   `json:"model,omitempty"`         // Model override passed to the provider
	Description  string   `json:"description,omitempty"`   // Short trade description
	SystemPrompt string   `json:"system_prompt,omitempty"` // Role-specific system prompt
	Tools        []string `json:"tools,omitempty"`         // Trade tools this worker may use
}

// SchedulerConfig tunes dispatch.
type SchedulerConfig struct {
	TaskTimeoutSeconds int      `json:"task_timeout_seconds,omitempty"` // Per-task dispatch timeout
	MaxParallel        int      `json:"max_parallel_tasks,omitempty"`   // In-flight cap across all workers; 0 means one per worker
	MaxPhaseIterations int      `json:"max_phase_iterations,omitempty"` // Safety limit for execute-all
	Phases             []string `json:"phases,omitempty"`               // Phase order
}

// RetryConfig tunes the transient-error retry loop around a worker call.
type RetryConfig struct {
	MaxRetries        int     `json:"max_retries,omitempty"`
	InitialIntervalMs int     `json:"initial_interval_ms,omitempty"`
	MaxIntervalMs     int     `json:"max_interval_ms,omitempty"`
	Multiplier        float64 `json:"multiplier,omitempty"`
}

// JournalConfig controls the SQLite audit journal.
type JournalConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// TelemetryConfig controls OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled      bool   `json:"enabled"`
	ServiceName  string `json:"service_name,omitempty"`
	OTLPEndpoint string `json:"otlp_endpoint,omitempty"`
	Insecure     bool   `json:"insecure,omitempty"`
}

// ContractorConfig is the top-level configuration.
type ContractorConfig struct {
	Providers map[string]ProviderConfig `json:"providers"`
	Agents    map[string]AgentConfig    `json:"agents"`
	Scheduler SchedulerConfig           `json:"scheduler"`
	Retry     RetryConfig               `json:"retry"`
	Journal   JournalConfig             `json:"journal"`
	Telemetry TelemetryConfig           `json:"telemetry"`
	LogLevel  string                    `json:"log_level,omitempty"`
}
