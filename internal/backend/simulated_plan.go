package backend

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// planTool marks a worker as the project planner. The simulated adapter
// answers such a worker with a breakdown instead of trade results.
const planTool = "finalize_project_plan"

type plannedTask struct {
	ID           string         `json:"id"`
	Agent        string         `json:"agent"`
	Description  string         `json:"description"`
	Phase        string         `json:"phase"`
	DependsOn    []string       `json:"depends_on,omitempty"`
	Requirements map[string]any `json:"requirements,omitempty"`
	Materials    []string       `json:"materials,omitempty"`
}

func isPlanning(req Request) bool {
	return slices.Contains(req.Tools, planTool)
}

// simulatedPlan lays out the small outdoor structure pattern: design, permit,
// footings, frame, roof, doors, finish and a final inspection.
func simulatedPlan(req Request) (string, error) {
	subject := "project"
	if pt, ok := req.Requirements["project_type"].(string); ok && pt != "" {
		subject = strings.ReplaceAll(pt, "_", " ")
	}

	tasks := []plannedTask{
		{ID: "1", Agent: "Architect", Phase: "planning",
			Description: fmt.Sprintf("Design %s structure with scaled floor plan drawings", subject),
			Materials:   []string{"drafting tools", "measuring tape"}},
		{ID: "2", Agent: "Permitting", Phase: "permitting", DependsOn: []string{"1"},
			Description: fmt.Sprintf("Get required permits for the %s", subject)},
		{ID: "3", Agent: "Mason", Phase: "foundation", DependsOn: []string{"2"},
			Description:  fmt.Sprintf("Pour concrete foundation footings for the %s", subject),
			Requirements: map[string]any{"level": true},
			Materials:    []string{"concrete mix", "gravel"}},
		{ID: "4", Agent: "Carpenter", Phase: "framing", DependsOn: []string{"3"},
			Description: fmt.Sprintf("Frame walls and floor of the %s", subject),
			Materials:   []string{"pressure-treated 2x4s", "plywood", "wood screws"}},
		{ID: "5", Agent: "Roofer", Phase: "framing", DependsOn: []string{"4"},
			Description: fmt.Sprintf("Install underlayment and shingles on the %s roof", subject),
			Materials:   []string{"roofing underlayment", "asphalt shingles"}},
		{ID: "6", Agent: "Carpenter", Phase: "finishing", DependsOn: []string{"5"},
			Description: fmt.Sprintf("Install doors on the %s", subject)},
		{ID: "7", Agent: "Painter", Phase: "finishing", DependsOn: []string{"6"},
			Description: fmt.Sprintf("Prime surfaces and paint exterior of the %s", subject),
			Materials:   []string{"exterior primer", "exterior paint"}},
		{ID: "8", Agent: "Permitting", Phase: "final_inspection", DependsOn: []string{"7"},
			Description: fmt.Sprintf("Schedule inspection of the finished %s", subject)},
	}

	data, err := json.MarshalIndent(struct {
		Tasks []plannedTask `json:"tasks"`
	}{tasks}, "", "  ")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Plan for the %s:\n```json\n%s\n```", subject, data), nil
}
