package breakdown

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/aristath/contractor/internal/backend"
	"github.com/aristath/contractor/internal/scheduler"
)

// PlannerAgent is the configured worker that writes breakdowns for project
// types without a template.
const PlannerAgent = "Project Planning"

const planInstruction = `Break the %s project down into an executable construction plan.
Reply with one JSON object and nothing else:
{"tasks": [{"id": "1", "agent": "Architect", "description": "...", "phase": "planning",
  "depends_on": [], "requirements": {}, "materials": []}]}
Use sequential string ids. A task may only depend on tasks in the same or an earlier phase,
and dependencies must not form a cycle. Use only the listed agents and phases.`

// Planner asks a planning worker for the breakdown of an arbitrary project
// type. The reply is decoded with ParseJSON and must load into a task graph.
type Planner struct {
	Backend      backend.Backend
	Agent        string // Defaults to PlannerAgent
	Tools        []string
	SystemPrompt string
	Model        string
	Roster       []string          // Agents a plan may assign; empty allows any
	Phases       []scheduler.Phase // Defaults to scheduler.DefaultPhases
	Timeout      time.Duration     // Zero leaves the deadline to ctx
}

// Plan asks be for a breakdown of projectType with default planner settings.
func Plan(ctx context.Context, be backend.Backend, projectType, description string, params map[string]any) (Breakdown, error) {
	return Planner{Backend: be}.Plan(ctx, projectType, description, params)
}

// Plan generates and checks a breakdown. An empty description falls back to
// the "description" parameter, then to the project type.
func (p Planner) Plan(ctx context.Context, projectType, description string, params map[string]any) (Breakdown, error) {
	if projectType == "" {
		return Breakdown{}, errors.New("plan: missing project type")
	}
	if p.Backend == nil {
		return Breakdown{}, fmt.Errorf("plan %s: no planning backend", projectType)
	}
	phases := p.Phases
	if len(phases) == 0 {
		phases = scheduler.DefaultPhases
	}
	if description == "" {
		description = describe(projectType, params)
	}

	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	out, err := p.Backend.Execute(ctx, p.request(projectType, description, params, phases))
	if err != nil {
		return Breakdown{}, fmt.Errorf("plan %s: %w", projectType, err)
	}

	raw, err := extractJSON(out.Content)
	if err != nil {
		return Breakdown{}, fmt.Errorf("plan %s: %w", projectType, err)
	}
	b, err := ParseJSON(raw)
	if err != nil {
		return Breakdown{}, fmt.Errorf("plan %s: %w", projectType, err)
	}
	b.ProjectType = projectType
	b.Description = description
	b.Parameters = nil
	if len(params) > 0 {
		b.Parameters = maps.Clone(params)
	}

	if err := p.checkRoster(b); err != nil {
		return Breakdown{}, fmt.Errorf("plan %s: %w", projectType, err)
	}
	if _, err := scheduler.BuildTaskGraph(phases, b.SchedulerTasks()); err != nil {
		return Breakdown{}, fmt.Errorf("plan %s: %w", projectType, err)
	}
	return b, nil
}

func (p Planner) request(projectType, description string, params map[string]any, phases []scheduler.Phase) backend.Request {
	agent := p.Agent
	if agent == "" {
		agent = PlannerAgent
	}

	names := make([]string, len(phases))
	for i, ph := range phases {
		names[i] = string(ph)
	}
	reqs := map[string]any{
		"project_type": projectType,
		"description":  description,
		"phases":       strings.Join(names, ", "),
	}
	if len(p.Roster) > 0 {
		reqs["agents"] = strings.Join(p.Roster, ", ")
	}
	if len(params) > 0 {
		reqs["parameters"] = params
	}

	return backend.Request{
		TaskID:       "plan-" + projectType,
		Agent:        agent,
		Description:  fmt.Sprintf(planInstruction, strings.ReplaceAll(projectType, "_", " ")),
		Phase:        names[0],
		Requirements: reqs,
		Tools:        p.Tools,
		SystemPrompt: p.SystemPrompt,
		Model:        p.Model,
		Timeout:      p.Timeout,
	}
}

func (p Planner) checkRoster(b Breakdown) error {
	if len(p.Roster) == 0 {
		return nil
	}
	for _, spec := range b.Tasks {
		if !slices.Contains(p.Roster, spec.Agent) {
			return fmt.Errorf("task %q: agent %q is not on the roster", spec.ID, spec.Agent)
		}
	}
	return nil
}

// extractJSON returns the JSON object in a worker reply, which may be wrapped
// in a fenced code block or surrounded by prose.
func extractJSON(content string) ([]byte, error) {
	s := content
	if _, rest, ok := strings.Cut(s, "```"); ok {
		if body, _, ok := strings.Cut(rest, "```"); ok {
			s = body
		}
	}
	start, end := strings.Index(s, "{"), strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return nil, errors.New("reply contains no JSON object")
	}
	return []byte(s[start : end+1]), nil
}

func describe(projectType string, params map[string]any) string {
	if d, ok := params["description"].(string); ok && d != "" {
		return d
	}
	words := strings.ReplaceAll(projectType, "_", " ")
	return strings.ToUpper(words[:1]) + words[1:]
}
