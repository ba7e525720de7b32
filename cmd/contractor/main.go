package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/aristath/contractor/internal/backend"
	"github.com/aristath/contractor/internal/breakdown"
	"github.com/aristath/contractor/internal/config"
	"github.com/aristath/contractor/internal/events"
	"github.com/aristath/contractor/internal/journal"
	"github.com/aristath/contractor/internal/orchestrator"
	"github.com/aristath/contractor/internal/telemetry"
	"github.com/aristath/contractor/internal/tui"
)

var version = "dev"

// loadConfig is replaced in tests.
var loadConfig = config.LoadDefault

const usageText = `usage: contractor <command> [flags]

commands:
  run        execute a project breakdown
  templates  list built-in project types
  agents     list configured workers
  init       write the default configuration to .contractor/config.json
`

func main() {
	// Create signal-aware context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usageText)
		return 2
	}

	switch args[0] {
	case "run":
		return runProject(ctx, args[1:], stdout, stderr)
	case "templates":
		return listTemplates(stdout)
	case "agents":
		return listAgents(stdout, stderr)
	case "init":
		return initConfig(args[1:], stdout, stderr)
	case "-h", "--help", "help":
		fmt.Fprint(stdout, usageText)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", args[0], usageText)
		return 2
	}
}

// paramFlag collects repeated -param key=value flags.
type paramFlag map[string]any

func (p paramFlag) String() string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, p[k])
	}
	return strings.Join(parts, ",")
}

func (p paramFlag) Set(v string) error {
	key, value, ok := strings.Cut(v, "=")
	if !ok || strings.TrimSpace(key) == "" {
		return fmt.Errorf("expected key=value, got %q", v)
	}
	p[strings.TrimSpace(key)] = value
	return nil
}

type runOptions struct {
	projectType string
	file        string
	params      paramFlag
	plan        bool
	tui         bool
	step        bool
	journal     string
}

func parseRunFlags(args []string, stderr io.Writer) (runOptions, error) {
	opts := runOptions{params: paramFlag{}}

	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.projectType, "type", "", "built-in project type (see `contractor templates`)")
	fs.StringVar(&opts.file, "file", "", "breakdown file (.json, .yaml, .yml or .hcl)")
	fs.Var(opts.params, "param", "template parameter key=value (repeatable)")
	fs.BoolVar(&opts.plan, "plan", false, "have the planning agent write the breakdown even for a built-in type")
	fs.BoolVar(&opts.tui, "tui", false, "show the terminal dashboard")
	fs.BoolVar(&opts.step, "step", false, "with -tui, advance phases manually")
	fs.StringVar(&opts.journal, "journal", "", "record the run to this SQLite journal")

	if err := fs.Parse(args); err != nil {
		return runOptions{}, err
	}
	if fs.NArg() > 0 {
		return runOptions{}, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	if (opts.projectType == "") == (opts.file == "") {
		return runOptions{}, errors.New("exactly one of -type or -file is required")
	}
	if opts.step && !opts.tui {
		return runOptions{}, errors.New("-step requires -tui")
	}
	if opts.plan && opts.projectType == "" {
		return runOptions{}, errors.New("-plan requires -type")
	}
	return opts, nil
}

// loadBreakdown reads -file, or builds the -type template. A type without a
// template, or -plan, goes to the planner when one is configured.
func loadBreakdown(ctx context.Context, opts runOptions, planner *breakdown.Planner) (breakdown.Breakdown, error) {
	if opts.file != "" {
		b, err := breakdown.Load(opts.file)
		if err != nil {
			return breakdown.Breakdown{}, err
		}
		if len(opts.params) > 0 {
			if b.Parameters == nil {
				b.Parameters = map[string]any{}
			}
			for k, v := range opts.params {
				b.Parameters[k] = v
			}
		}
		return b, nil
	}

	if !opts.plan {
		b, err := breakdown.Template(opts.projectType, opts.params)
		if planner == nil || !errors.Is(err, breakdown.ErrUnknownProjectType) {
			return b, err
		}
	}
	if planner == nil {
		return breakdown.Breakdown{}, fmt.Errorf("no %q agent configured to plan %q", breakdown.PlannerAgent, opts.projectType)
	}
	return planner.Plan(ctx, opts.projectType, "", opts.params)
}

// newPlanner builds the planner from the configured planning agent, or
// returns nil when there is none.
func newPlanner(rcfg orchestrator.RunnerConfig, pm *backend.ProcessManager) (*breakdown.Planner, error) {
	bcfg, ok := rcfg.BackendConfigs[breakdown.PlannerAgent]
	if !ok {
		return nil, nil
	}
	be, err := backend.New(bcfg, pm)
	if err != nil {
		return nil, fmt.Errorf("planning agent: %w", err)
	}

	p := &breakdown.Planner{Backend: be, Phases: rcfg.Phases, Timeout: rcfg.TaskTimeout}
	for _, w := range rcfg.Workers {
		if w.Name == breakdown.PlannerAgent {
			p.Tools = w.Tools
			p.SystemPrompt = w.SystemPrompt
			p.Model = w.Model
			continue
		}
		p.Roster = append(p.Roster, w.Name)
	}
	return p, nil
}

func runProject(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := parseRunFlags(args, stderr)
	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(stderr, "Error: %v\n", err)
		}
		return 2
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(stderr, "Error loading config: %v\n", err)
		return 1
	}
	if opts.journal != "" {
		cfg.Journal.Enabled = true
		cfg.Journal.Path = opts.journal
	}

	logOut := stderr
	if opts.tui {
		// Log lines would tear the alt screen.
		f, err := os.OpenFile("contractor.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(stderr, "Error opening log file: %v\n", err)
			return 1
		}
		defer f.Close()
		logOut = f
	}
	logger := slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	if cfg.Telemetry.Enabled {
		shutdownTracing, err := telemetry.Init(ctx, telemetry.ConfigFrom(cfg.Telemetry, version))
		if err != nil {
			fmt.Fprintf(stderr, "Error initializing telemetry: %v\n", err)
			return 1
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTracing(flushCtx); err != nil {
				logger.Warn("telemetry shutdown failed", "err", err)
			}
		}()
	}

	// Create ProcessManager for subprocess tracking
	pm := backend.NewProcessManager()

	rcfg, err := orchestrator.NewRunnerConfig(cfg, pm)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	planner, err := newPlanner(rcfg, pm)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	b, err := loadBreakdown(ctx, opts, planner)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	bus := events.NewEventBus()
	rcfg.Bus = bus
	rcfg.Logger = logger

	stopJournal, err := startJournal(ctx, cfg.Journal, bus, logger)
	if err != nil {
		fmt.Fprintf(stderr, "Error opening journal: %v\n", err)
		return 1
	}
	runner := orchestrator.NewRunner(rcfg)

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := runner.Shutdown(shutdownCtx); err != nil {
			logger.Warn("runner shutdown", "err", err)
		}
		// Kill all tracked subprocesses
		if err := pm.KillAll(); err != nil {
			logger.Warn("killing subprocesses", "err", err)
		}
		bus.Close()
		stopJournal()
	}()

	if opts.tui {
		return runTUI(ctx, runner, bus, b, opts.step, stderr)
	}

	started, err := runner.Start(ctx, b)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	printStart(stdout, b, started)

	summary, err := runner.ExecuteAll(ctx)
	printSummary(stdout, summary)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if summary.Status != orchestrator.ProjectCompleted {
		return 1
	}
	return 0
}

// startJournal wires a Recorder to the bus. The returned function waits for
// the recorder to drain after the bus is closed, then closes the store.
func startJournal(ctx context.Context, cfg config.JournalConfig, bus *events.EventBus, logger *slog.Logger) (func(), error) {
	if !cfg.Enabled {
		return func() {}, nil
	}

	store, err := journal.NewSQLiteStore(ctx, cfg.Path)
	if err != nil {
		return nil, err
	}
	rec := journal.NewRecorder(store, bus, logger)

	// The recorder outlives ctx so the final events of a cancelled run are
	// still written; it stops when the bus closes.
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := rec.Run(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("journal recorder stopped", "err", err)
		}
	}()

	return func() {
		<-done
		if err := store.Close(); err != nil {
			logger.Warn("closing journal", "err", err)
		}
	}, nil
}

func runTUI(ctx context.Context, runner *orchestrator.Runner, bus *events.EventBus, b breakdown.Breakdown, step bool, stderr io.Writer) int {
	var ctrl tui.Controller
	if step {
		ctrl = runner
	}

	// The model subscribes in New, so it sees the project start.
	model := tui.New(ctx, bus, ctrl)
	if _, err := runner.Start(ctx, b); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	// Start Bubble Tea program in a goroutine so we can handle shutdown
	p := tea.NewProgram(model, tea.WithAltScreen())
	errChan := make(chan error, 1)
	go func() {
		_, err := p.Run()
		errChan <- err
	}()

	if !step {
		go func() {
			if _, err := runner.ExecuteAll(ctx); err != nil {
				slog.Warn("execution finished with error", "err", err)
			}
		}()
	}

	select {
	case err := <-errChan:
		// Normal TUI exit (user pressed 'q')
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
	case <-ctx.Done():
		slog.Info("shutdown signal received, cleaning up")
		p.Quit()

		// Wait for TUI to exit with timeout
		select {
		case err := <-errChan:
			if err != nil {
				slog.Warn("TUI exit error", "err", err)
			}
		case <-time.After(10 * time.Second):
			slog.Warn("shutdown timeout exceeded, forcing exit")
		}
	}
	return 0
}

func printStart(w io.Writer, b breakdown.Breakdown, s orchestrator.StartResult) {
	fmt.Fprintf(w, "Project %s: %s (%s)\n", s.ProjectID, b.Description, b.ProjectType)
	fmt.Fprintf(w, "%d tasks across %d phases\n", s.TotalTasks, len(s.Phases))
	for _, phase := range s.Phases {
		fmt.Fprintf(w, "  %s\n", phase)
		for _, ref := range s.ByPhase[phase] {
			fmt.Fprintf(w, "    %-4s %-12s %s\n", ref.ID, ref.Agent, ref.Description)
		}
	}
	fmt.Fprintln(w)
}

func printSummary(w io.Writer, s orchestrator.RunSummary) {
	for _, ps := range s.Phases {
		fmt.Fprintf(w, "%-18s %d completed, %d failed, %d skipped, %d blocked (%s)\n",
			ps.Phase, ps.Completed, ps.Failed, ps.Skipped, ps.Blocked, ps.Duration.Round(time.Millisecond))
		for _, t := range ps.Tasks {
			if t.Error != "" {
				fmt.Fprintf(w, "    %s %s: %s (%s)\n", t.ID, t.Agent, t.Error, t.FailureReason)
			}
		}
	}
	fmt.Fprintf(w, "\nStatus: %s\n", s.Status)
	fmt.Fprintf(w, "Tasks: %d total, %d completed, %d failed, %d skipped, %d blocked\n",
		s.Total, s.Completed, s.Failed, s.Skipped, s.Blocked)
	fmt.Fprintf(w, "Tokens: %d input, %d output, %d total\n", s.Usage.Input, s.Usage.Output, s.Usage.Total)
	fmt.Fprintf(w, "Duration: %s\n", s.Duration.Round(time.Millisecond))
}

func listTemplates(w io.Writer) int {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("PROJECT TYPE", "TASKS", "PHASES")
	for _, name := range breakdown.Templates() {
		b, err := breakdown.Template(name, nil)
		if err != nil {
			continue
		}
		phases := make(map[string]bool)
		for _, spec := range b.Tasks {
			phases[spec.Phase] = true
		}
		t.Row(name, fmt.Sprint(len(b.Tasks)), fmt.Sprint(len(phases)))
	}
	fmt.Fprintln(w, t.String())
	return 0
}

func listAgents(w, stderr io.Writer) int {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(stderr, "Error loading config: %v\n", err)
		return 1
	}

	names := make([]string, 0, len(cfg.Agents))
	for name := range cfg.Agents {
		names = append(names, name)
	}
	sort.Strings(names)

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("AGENT", "PROVIDER", "DESCRIPTION", "TOOLS")
	for _, name := range names {
		a := cfg.Agents[name]
		t.Row(name, a.Provider, a.Description, fmt.Sprint(len(a.Tools)))
	}
	fmt.Fprintln(w, t.String())
	return 0
}

func initConfig(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	fs.SetOutput(stderr)
	path := fs.String("path", filepath.Join(".contractor", "config.json"), "where to write the configuration")
	force := fs.Bool("force", false, "overwrite an existing file")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if _, err := os.Stat(*path); err == nil && !*force {
		fmt.Fprintf(stderr, "Error: %s already exists (use -force to overwrite)\n", *path)
		return 1
	}
	if err := config.Save(config.DefaultConfig(), *path); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "Wrote %s\n", *path)
	return 0
}
