package main

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/aristath/contractor/internal/backend"
	"github.com/aristath/contractor/internal/breakdown"
	"github.com/aristath/contractor/internal/config"
	"github.com/aristath/contractor/internal/journal"
)

// fastConfig swaps the config loader for defaults with a short simulated
// delay.
func fastConfig(t *testing.T) {
	t.Helper()
	orig := loadConfig
	loadConfig = func() (*config.ContractorConfig, error) {
		cfg := config.DefaultConfig()
		sim := cfg.Providers["simulated"]
		sim.DelayMs = 1
		cfg.Providers["simulated"] = sim
		cfg.LogLevel = "error"
		return cfg, nil
	}
	t.Cleanup(func() { loadConfig = orig })
}

func TestRun_Usage(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want int
	}{
		{"no command", nil, 2},
		{"unknown command", []string{"build"}, 2},
		{"help", []string{"help"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			if got := run(context.Background(), tt.args, &stdout, &stderr); got != tt.want {
				t.Errorf("exit code = %d, want %d", got, tt.want)
			}
			if !strings.Contains(stdout.String()+stderr.String(), "usage: contractor") {
				t.Error("usage text not printed")
			}
		})
	}
}

func TestRun_Templates(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), []string{"templates"}, &stdout, &stderr); code != 0 {
		t.Fatalf("exit code = %d, stderr: %s", code, stderr.String())
	}
	for _, name := range []string{"kitchen_remodel", "bathroom_remodel", "new_construction", "addition", "shed_construction"} {
		if !strings.Contains(stdout.String(), name) {
			t.Errorf("templates output missing %s", name)
		}
	}
}

func TestRun_Agents(t *testing.T) {
	fastConfig(t)

	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), []string{"agents"}, &stdout, &stderr); code != 0 {
		t.Fatalf("exit code = %d, stderr: %s", code, stderr.String())
	}
	for _, name := range []string{"Architect", "Electrician", "Permitting", "simulated"} {
		if !strings.Contains(stdout.String(), name) {
			t.Errorf("agents output missing %s", name)
		}
	}
}

func TestParseRunFlags(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"type", []string{"-type", "kitchen_remodel"}, ""},
		{"file", []string{"-file", "project.yaml"}, ""},
		{"params", []string{"-type", "shed_construction", "-param", "has_electrical=false", "-param", "width=8"}, ""},
		{"neither", nil, "exactly one of -type or -file"},
		{"both", []string{"-type", "addition", "-file", "x.json"}, "exactly one of -type or -file"},
		{"bad param", []string{"-type", "addition", "-param", "novalue"}, "expected key=value"},
		{"step without tui", []string{"-type", "addition", "-step"}, "-step requires -tui"},
		{"extra args", []string{"-type", "addition", "extra"}, "unexpected arguments"},
		{"plan", []string{"-type", "dog_house", "-plan"}, ""},
		{"plan without type", []string{"-file", "x.json", "-plan"}, "-plan requires -type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stderr bytes.Buffer
			opts, err := parseRunFlags(tt.args, &stderr)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if tt.name == "params" && (opts.params["has_electrical"] != "false" || opts.params["width"] != "8") {
					t.Errorf("params = %v", opts.params)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error()+stderr.String(), tt.wantErr) {
				t.Errorf("error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadBreakdown_FileWithParams(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garage.json")
	data := `{"project_type":"garage","tasks":[{"id":"1","agent":"Mason","description":"Pour slab","phase":"foundation"}]}`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	b, err := loadBreakdown(context.Background(), runOptions{file: path, params: paramFlag{"owner": "Sam"}}, nil)
	if err != nil {
		t.Fatalf("loadBreakdown: %v", err)
	}
	if b.ProjectType != "garage" || len(b.Tasks) != 1 {
		t.Errorf("breakdown = %+v", b)
	}
	if b.Parameters["owner"] != "Sam" {
		t.Errorf("parameters = %v", b.Parameters)
	}
}

func TestRun_ExecutesTemplate(t *testing.T) {
	fastConfig(t)
	dbPath := filepath.Join(t.TempDir(), "journal.db")

	var stdout, stderr bytes.Buffer
	args := []string{"run", "-type", "shed_construction", "-param", "has_electrical=false", "-journal", dbPath}
	if code := run(context.Background(), args, &stdout, &stderr); code != 0 {
		t.Fatalf("exit code = %d\nstdout: %s\nstderr: %s", code, stdout.String(), stderr.String())
	}

	out := stdout.String()
	for _, want := range []string{"Storage shed construction", "Status: completed", "Tokens:"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	// The journal has been closed by run; reopen it and check the run landed.
	store, err := journal.NewSQLiteStore(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("reopen journal: %v", err)
	}
	defer store.Close()

	id := projectID(t, out)
	rec, err := store.GetRun(context.Background(), id)
	if err != nil {
		t.Fatalf("GetRun(%s): %v", id, err)
	}
	if rec.Status != "completed" {
		t.Errorf("journal run status = %q, want completed", rec.Status)
	}
}

func TestRun_PlansUnknownType(t *testing.T) {
	fastConfig(t)

	var stdout, stderr bytes.Buffer
	args := []string{"run", "-type", "dog_house", "-param", "description=Insulated dog house for a 50 lb dog"}
	if code := run(context.Background(), args, &stdout, &stderr); code != 0 {
		t.Fatalf("exit code = %d\nstdout: %s\nstderr: %s", code, stdout.String(), stderr.String())
	}

	out := stdout.String()
	for _, want := range []string{"Insulated dog house for a 50 lb dog (dog_house)", "Design dog house structure", "Status: completed"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestLoadBreakdown_PlanFlagOverridesTemplate(t *testing.T) {
	planner := &breakdown.Planner{
		Backend: backend.NewSimulatedAdapter(backend.Config{}),
		Tools:   []string{"finalize_project_plan"},
	}

	b, err := loadBreakdown(context.Background(), runOptions{projectType: "shed_construction", plan: true}, planner)
	if err != nil {
		t.Fatalf("loadBreakdown: %v", err)
	}
	if b.ProjectType != "shed_construction" {
		t.Errorf("ProjectType = %q", b.ProjectType)
	}
	if got := b.Tasks[0].Description; !strings.HasPrefix(got, "Design shed construction structure") {
		t.Errorf("first task = %q, want the planned design task", got)
	}
}

func TestRun_UnknownTypeWithoutPlanner(t *testing.T) {
	orig := loadConfig
	loadConfig = func() (*config.ContractorConfig, error) {
		cfg := config.DefaultConfig()
		delete(cfg.Agents, breakdown.PlannerAgent)
		cfg.LogLevel = "error"
		return cfg, nil
	}
	t.Cleanup(func() { loadConfig = orig })

	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), []string{"run", "-type", "castle"}, &stdout, &stderr); code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "unknown project type") {
		t.Errorf("stderr = %q", stderr.String())
	}
}

func TestRun_InitWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg", "config.json")

	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), []string{"init", "-path", path}, &stdout, &stderr); code != 0 {
		t.Fatalf("exit code = %d, stderr: %s", code, stderr.String())
	}
	cfg, err := config.Load("", path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, ok := cfg.Agents["Architect"]; !ok {
		t.Error("written config is missing the Architect agent")
	}

	stderr.Reset()
	if code := run(context.Background(), []string{"init", "-path", path}, &stdout, &stderr); code != 1 {
		t.Errorf("second init exit code = %d, want 1", code)
	}
	if code := run(context.Background(), []string{"init", "-path", path, "-force"}, &stdout, &stderr); code != 0 {
		t.Errorf("forced init exit code = %d, want 0", code)
	}
}

func projectID(t *testing.T, out string) string {
	t.Helper()
	line, _, _ := strings.Cut(out, "\n")
	rest, ok := strings.CutPrefix(line, "Project ")
	if !ok {
		t.Fatalf("no project line in output: %q", line)
	}
	id, _, _ := strings.Cut(rest, ":")
	return id
}

// TestProcessManagerKillAllOnShutdown verifies that ProcessManager.KillAll()
// correctly terminates tracked processes during simulated shutdown.
func TestProcessManagerKillAllOnShutdown(t *testing.T) {
	pm := backend.NewProcessManager()

	cmd := exec.CommandContext(context.Background(), "sleep", "60")
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true, // Process group isolation
	}
	if err := cmd.Start(); err != nil {
		t.Fatalf("Failed to start subprocess: %v", err)
	}
	pm.Track(cmd)

	if count := pm.Count(); count != 1 {
		t.Errorf("Expected 1 tracked process, got %d", count)
	}
	if err := pm.KillAll(); err != nil {
		t.Errorf("KillAll() failed: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	select {
	case err := <-done:
		if err == nil {
			t.Error("Expected process to be killed (non-zero exit), got nil error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Process did not terminate after KillAll()")
	}

	pm.Untrack(cmd)
	if count := pm.Count(); count != 0 {
		t.Errorf("Expected 0 tracked processes after Untrack, got %d", count)
	}
}

// TestSignalContextCancellation verifies that signal.NotifyContext produces
// a context that cancels correctly when a signal is received.
func TestSignalContextCancellation(t *testing.T) {
	// Use SIGUSR1 as a safe test signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGUSR1)
	defer stop()

	if err := syscall.Kill(os.Getpid(), syscall.SIGUSR1); err != nil {
		t.Fatalf("Failed to send SIGUSR1: %v", err)
	}

	select {
	case <-ctx.Done():
	case <-time.After(1 * time.Second):
		t.Fatal("Context did not cancel after SIGUSR1")
	}
	if err := ctx.Err(); err != context.Canceled {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestRun_CancelledContext(t *testing.T) {
	fastConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var stdout, stderr bytes.Buffer
	if code := run(ctx, []string{"run", "-type", "kitchen_remodel"}, &stdout, &stderr); code == 0 {
		t.Error("cancelled run should not exit 0")
	}
}
