package config

import "github.com/aristath/contractor/internal/scheduler"

const (
	DefaultTaskTimeoutSeconds = 300
	DefaultMaxParallel        = 3
	DefaultMaxPhaseIterations = 50
)

// DefaultConfig returns the default configuration with the built-in providers
// and the trade roster.
func DefaultConfig() *ContractorConfig {
	phases := make([]string, len(scheduler.DefaultPhases))
	for i, p := range scheduler.DefaultPhases {
		phases[i] = string(p)
	}

	return &ContractorConfig{
		Providers: map[string]ProviderConfig{
			"simulated": {
				Type:    "simulated",
				DelayMs: 50,
			},
			"command": {
				Type:    "command",
				Command: "claude",
				Args:    []string{"-p", "--output-format", "json"},
			},
		},
		Agents: map[string]AgentConfig{
			"Architect": {
				Provider:     "simulated",
				Description:  "Designs floor plans, layouts and structural plans",
				SystemPrompt: "You are an expert Architect on a construction project.",
				Tools: []string{
					"create_floor_plan", "create_elevation_drawings", "design_kitchen_layout",
					"design_bathroom_layout", "create_structural_plan", "specify_materials",
				},
			},
			"Carpenter": {
				Provider:     "simulated",
				Description:  "Framing, doors, cabinets, flooring, drywall and stairs",
				SystemPrompt: "You are an expert Carpenter on a construction project.",
				Tools: []string{
					"frame_walls", "install_doors", "build_cabinets",
					"install_wood_flooring", "hang_drywall", "build_stairs",
				},
			},
			"Electrician": {
				Provider:     "simulated",
				Description:  "Wiring, fixtures, panels and circuits",
				SystemPrompt: "You are an expert Electrician on a construction project.",
				Tools: []string{
					"wire_outlets_switches", "install_lighting_fixtures", "upgrade_electrical_panel",
					"run_new_circuits", "install_ceiling_fans", "troubleshoot_wiring",
				},
			},
			"Plumber": {
				Provider:     "simulated",
				Description:  "Fixtures, pipes, drains and water heaters",
				SystemPrompt: "You are an expert Plumber on a construction project.",
				Tools: []string{
					"install_sink", "install_toilet", "install_shower",
					"repair_pipes", "unclog_drain", "install_water_heater",
				},
			},
			"Mason": {
				Provider:     "simulated",
				Description:  "Concrete, brick and stone work",
				SystemPrompt: "You are an expert Mason on a construction project.",
				Tools: []string{
					"lay_brick_wall", "pour_concrete_foundation", "repair_masonry",
					"install_pavers", "build_fireplace",
				},
			},
			"Painter": {
				Provider:     "simulated",
				Description:  "Interior and exterior finishes",
				SystemPrompt: "You are an expert Painter on a construction project.",
				Tools: []string{
					"paint_interior_walls", "paint_exterior", "prime_surfaces",
					"remove_old_paint", "refinish_cabinets", "apply_wallpaper",
				},
			},
			"HVAC": {
				Provider:     "simulated",
				Description:  "Heating, cooling and ventilation",
				SystemPrompt: "You are an expert HVAC technician on a construction project.",
				Tools: []string{
					"install_heating_system", "install_ac_unit", "install_ductwork",
					"install_thermostat", "perform_maintenance",
				},
			},
			"Roofer": {
				Provider:     "simulated",
				Description:  "Roofing, flashing and gutters",
				SystemPrompt: "You are an expert Roofer on a construction project.",
				Tools: []string{
					"install_shingles", "repair_leak", "install_flashing",
					"install_underlayment", "clean_gutters", "inspect_roof",
				},
			},
			"Permitting": {
				Provider:     "simulated",
				Description:  "Permit applications and inspections",
				SystemPrompt: "You handle building permits and inspection scheduling.",
				Tools: []string{
					"get_required_permits", "apply_for_permit", "check_permit_status", "schedule_inspection",
				},
			},
			"Project Planning": {
				Provider:     "simulated",
				Description:  "Breaks project types without a template into tasks",
				SystemPrompt: "You are an expert construction project planner. Reply with the plan as JSON.",
				Tools: []string{
					"analyze_project_scope", "generate_task_breakdown", "validate_task_dependencies",
					"assign_construction_phases", "finalize_project_plan",
				},
			},
		},
		Scheduler: SchedulerConfig{
			TaskTimeoutSeconds: DefaultTaskTimeoutSeconds,
			MaxParallel:        DefaultMaxParallel,
			MaxPhaseIterations: DefaultMaxPhaseIterations,
			Phases:             phases,
		},
		Retry: RetryConfig{
			MaxRetries:        3,
			InitialIntervalMs: 1000,
			MaxIntervalMs:     30000,
			Multiplier:        2.0,
		},
		Journal: JournalConfig{
			Enabled: false,
			Path:    ".contractor/journal.db",
		},
		Telemetry: TelemetryConfig{
			Enabled:     false,
			ServiceName: "contractor",
		},
		LogLevel: "info",
	}
}
