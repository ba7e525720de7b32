package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// exitTempFail is sysexits' EX_TEMPFAIL; a worker exiting with it asks to be retried.
const exitTempFail = 75

// CommandAdapter runs an external CLI once per task. The prompt is written to
// stdin, every stdout line is streamed as progress, and the output is parsed
// as a JSON envelope when possible.
type CommandAdapter struct {
	command      string
	args         []string
	workDir      string
	model        string
	systemPrompt string
	procMgr      *ProcessManager
}

// commandResponse is the optional JSON envelope printed by the worker CLI.
// Example: {"result": "Framed 4 walls", "usage": {"input_tokens": 120, "output_tokens": 40}}
type commandResponse struct {
	Result  *string           `json:"result"`
	Content string            `json:"content"`
	IsError bool              `json:"is_error"`
	Usage   Usage             `json:"usage"`
	Meta    map[string]string `json:"metadata"`
}

// NewCommandAdapter creates a command adapter.
// The ProcessManager is optional - if nil, subprocesses won't be tracked.
func NewCommandAdapter(cfg Config, procMgr *ProcessManager) (*CommandAdapter, error) {
	if cfg.Command == "" {
		return nil, errors.New("command backend requires a command")
	}

	workDir := cfg.WorkDir
	if workDir == "" {
		var err error
		workDir, err = os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
	}

	return &CommandAdapter{
		command:      cfg.Command,
		args:         append([]string(nil), cfg.Args...),
		workDir:      workDir,
		model:        cfg.Model,
		systemPrompt: cfg.SystemPrompt,
		procMgr:      procMgr,
	}, nil
}

// Execute runs the worker CLI for one task.
func (a *CommandAdapter) Execute(ctx context.Context, req Request) (Outcome, error) {
	cmd := newCommand(ctx, a.command, a.buildArgs(req)...)
	cmd.Dir = a.workDir
	cmd.Stdin = strings.NewReader(BuildPrompt(req))
	cmd.Env = append(os.Environ(),
		"CONTRACTOR_TASK_ID="+req.TaskID,
		"CONTRACTOR_AGENT="+req.Agent,
	)

	stdout, stderr, err := executeCommand(ctx, cmd, a.procMgr, func(line string) {
		req.emit(Progress{Kind: ProgressOutput, Line: line})
	})
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == exitTempFail {
			return Outcome{}, Transient(err)
		}
		return Outcome{}, err
	}

	out, err := parseCommandResponse(stdout)
	if err != nil {
		return Outcome{}, fmt.Errorf("worker response: %w (stderr: %s)", err, strings.TrimSpace(string(stderr)))
	}
	return out, nil
}

// buildArgs constructs the command-line arguments for the worker CLI.
func (a *CommandAdapter) buildArgs(req Request) []string {
	args := append([]string(nil), a.args...)

	model := req.Model
	if model == "" {
		model = a.model
	}
	if model != "" {
		args = append(args, "--model", model)
	}

	prompt := req.SystemPrompt
	if prompt == "" {
		prompt = a.systemPrompt
	}
	if prompt != "" {
		args = append(args, "--system-prompt", prompt)
	}

	if len(req.Tools) > 0 {
		args = append(args, "--allowedTools", strings.Join(req.Tools, ","))
	}

	return args
}

// parseCommandResponse accepts a single JSON envelope, newline-delimited
// envelopes (the last result wins, usage is summed), or plain text.
func parseCommandResponse(data []byte) (Outcome, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return Outcome{}, errors.New("empty output")
	}

	var single commandResponse
	if err := json.Unmarshal([]byte(trimmed), &single); err == nil {
		return envelopeOutcome(single)
	}

	var (
		found bool
		last  commandResponse
		usage Usage
	)
	for _, line := range strings.Split(trimmed, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "{") {
			continue
		}
		var resp commandResponse
		if err := json.Unmarshal([]byte(line), &resp); err != nil {
			continue
		}
		usage.Input += resp.Usage.Input
		usage.Output += resp.Usage.Output
		if resp.Result != nil || resp.Content != "" {
			last = resp
			found = true
		}
	}
	if found {
		last.Usage = usage
		return envelopeOutcome(last)
	}

	// Plain text fallback
	return Outcome{Content: trimmed}, nil
}

func envelopeOutcome(resp commandResponse) (Outcome, error) {
	content := resp.Content
	if resp.Result != nil {
		content = *resp.Result
	}
	if resp.IsError {
		return Outcome{}, fmt.Errorf("worker reported error: %s", content)
	}
	usage := resp.Usage
	usage.Total = usage.Sum()
	return Outcome{
		Content:  content,
		Usage:    usage,
		Metadata: resp.Meta,
	}, nil
}
