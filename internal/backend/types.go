package backend

import "time"

// Request is one task handed to a worker.
type Request struct {
	TaskID       string
	Agent        string
	Description  string
	Phase        string
	Requirements map[string]any
	Materials    []string
	Tools        []string // Trade tools the worker may use
	SystemPrompt string
	Model        string
	Timeout      time.Duration // Informational; the caller's context carries the deadline
	Progress     func(Progress)
}

func (r Request) emit(p Progress) {
	if r.Progress != nil {
		r.Progress(p)
	}
}

// ProgressKind classifies a streamed progress update.
type ProgressKind string

const (
	ProgressTool      ProgressKind = "tool"      // A tool call started
	ProgressOutput    ProgressKind = "output"    // A line of worker output
	ProgressReasoning ProgressKind = "reasoning" // Worker narration
)

// Progress is a streamed update emitted while a task runs.
type Progress struct {
	Kind ProgressKind
	Tool string
	Line string
}

// Usage is token/resource usage reported by a worker.
type Usage struct {
	Input  int `json:"input_tokens"`
	Output int `json:"output_tokens"`
	Total  int `json:"total_tokens,omitempty"`
}

// Sum returns Total, or Input+Output when Total was not reported.
func (u Usage) Sum() int {
	if u.Total > 0 {
		return u.Total
	}
	return u.Input + u.Output
}

// Outcome is a successful worker result.
type Outcome struct {
	Content  string
	Usage    Usage
	Metadata map[string]string
}

// Config defines the configuration for a backend.
type Config struct {
	Type         string // "simulated" or "command"
	Command      string // Binary for the command backend
	Args         []string
	WorkDir      string
	Model        string
	SystemPrompt string
	Delay        time.Duration // Simulated time per tool call
}
