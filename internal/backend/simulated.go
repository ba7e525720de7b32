package backend

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// toolResults are the canned summaries the simulated worker reports per trade tool.
var toolResults = map[string]string{
	"create_floor_plan":         "Floor plan drafted with room layout and dimensions",
	"create_elevation_drawings": "Elevation drawings produced for all sides",
	"design_kitchen_layout":     "Kitchen work triangle and cabinet layout designed",
	"design_bathroom_layout":    "Bathroom fixture layout designed to code clearances",
	"create_structural_plan":    "Structural plan with load paths and beam sizing",
	"specify_materials":         "Material specification sheet prepared",

	"frame_walls":           "Walls framed with studs 16in on center and doubled top plates",
	"install_doors":         "Doors hung, shimmed and swing-checked",
	"build_cabinets":        "Cabinet boxes built and installed level",
	"install_wood_flooring": "Wood flooring installed with expansion gaps",
	"hang_drywall":          "Drywall hung, taped and finished",
	"build_stairs":          "Stair stringers cut and treads installed",

	"wire_outlets_switches":     "Outlets and switches wired with 12/2 and 14/2 cable",
	"install_lighting_fixtures": "Lighting fixtures mounted and connected",
	"upgrade_electrical_panel":  "Electrical panel upgraded and labeled",
	"run_new_circuits":          "New circuits pulled with breakers installed",
	"install_ceiling_fans":      "Ceiling fans mounted on fan-rated boxes",
	"troubleshoot_wiring":       "Wiring fault traced and corrected",

	"install_sink":         "Sink set, faucet connected and drain tested",
	"install_toilet":       "Toilet set on new wax ring and supply connected",
	"install_shower":       "Shower valve and pan installed and pressure tested",
	"repair_pipes":         "Supply lines replaced and leak tested",
	"unclog_drain":         "Drain cleared and flow verified",
	"install_water_heater": "Water heater installed with expansion tank",

	"lay_brick_wall":           "Brick wall laid with mortar joints tooled",
	"pour_concrete_foundation": "Footings and foundation poured and cured",
	"repair_masonry":           "Damaged masonry repointed",
	"install_pavers":           "Pavers laid on compacted base",
	"build_fireplace":          "Firebox and chimney built",

	"paint_interior_walls": "Interior walls painted with two coats",
	"paint_exterior":       "Exterior surfaces painted",
	"prime_surfaces":       "Surfaces primed",
	"remove_old_paint":     "Old paint stripped",
	"refinish_cabinets":    "Cabinets sanded and refinished",
	"apply_wallpaper":      "Wallpaper hung and seams rolled",

	"install_heating_system": "Furnace installed and fired",
	"install_ac_unit":        "Condenser set and line set charged",
	"install_ductwork":       "Supply and return ductwork run and sealed",
	"install_thermostat":     "Thermostat mounted and programmed",
	"perform_maintenance":    "System serviced and filters replaced",

	"install_shingles":     "Shingles installed over underlayment",
	"repair_leak":          "Roof leak patched and sealed",
	"install_flashing":     "Flashing installed at valleys and penetrations",
	"install_underlayment": "Synthetic underlayment rolled out",
	"clean_gutters":        "Gutters cleared and downspouts flushed",
	"inspect_roof":         "Roof inspected with no defects found",

	"get_required_permits": "Required permits identified",
	"apply_for_permit":     "Permit application submitted",
	"check_permit_status":  "Permit approved",
	"schedule_inspection":  "Inspection scheduled and passed",

	"analyze_project_scope":      "Project scope, scale and required trades analyzed",
	"generate_task_breakdown":    "Task list generated",
	"validate_task_dependencies": "Dependencies checked for cycles and phase order",
	"assign_construction_phases": "Tasks assigned to construction phases",
	"finalize_project_plan":      "Project plan finalized",
}

// SimulatedAdapter performs tasks by walking the worker's tool list and
// reporting canned trade results. It never touches the network.
type SimulatedAdapter struct {
	delay time.Duration
}

// NewSimulatedAdapter creates a simulated worker.
func NewSimulatedAdapter(cfg Config) *SimulatedAdapter {
	return &SimulatedAdapter{delay: cfg.Delay}
}

// Execute reports one progress event per tool, waiting the configured delay
// between calls. A planning worker walks all of its tools and replies with a
// JSON breakdown.
func (a *SimulatedAdapter) Execute(ctx context.Context, req Request) (Outcome, error) {
	planning := isPlanning(req)
	tools := relevantTools(req)
	if planning {
		tools = req.Tools
	}
	req.emit(Progress{Kind: ProgressReasoning, Line: fmt.Sprintf("%s reviewing task %s", req.Agent, req.TaskID)})

	var lines []string
	for _, tool := range tools {
		if err := ctx.Err(); err != nil {
			return Outcome{}, err
		}
		req.emit(Progress{Kind: ProgressTool, Tool: tool, Line: "calling " + tool})

		if a.delay > 0 {
			timer := time.NewTimer(a.delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return Outcome{}, ctx.Err()
			case <-timer.C:
			}
		}

		res, ok := toolResults[tool]
		if !ok {
			res = "Completed " + strings.ReplaceAll(tool, "_", " ")
		}
		lines = append(lines, fmt.Sprintf("- %s: %s", tool, res))
	}

	content := fmt.Sprintf("%s completed task %s: %s", req.Agent, req.TaskID, req.Description)
	if len(lines) > 0 {
		content += "\n" + strings.Join(lines, "\n")
	}
	if planning {
		plan, err := simulatedPlan(req)
		if err != nil {
			return Outcome{}, err
		}
		content = plan
	}

	prompt := BuildPrompt(req)
	usage := Usage{Input: estimateTokens(prompt), Output: estimateTokens(content)}
	usage.Total = usage.Sum()

	return Outcome{
		Content: content,
		Usage:   usage,
		Metadata: map[string]string{
			"backend":    "simulated",
			"tool_calls": fmt.Sprintf("%d", len(tools)),
		},
	}, nil
}

// relevantTools picks the tools whose words appear in the task description,
// falling back to the first tool so every task makes at least one call.
func relevantTools(req Request) []string {
	desc := strings.ToLower(req.Description)
	var picked []string
	for _, tool := range req.Tools {
		for _, word := range strings.Split(tool, "_") {
			if len(word) > 3 && strings.Contains(desc, word) {
				picked = append(picked, tool)
				break
			}
		}
	}
	if len(picked) == 0 && len(req.Tools) > 0 {
		picked = req.Tools[:1]
	}
	return picked
}

// estimateTokens approximates tokens at four characters each.
func estimateTokens(s string) int {
	return (len(s) + 3) / 4
}
