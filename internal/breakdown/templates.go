package breakdown

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

type templateFunc func(params map[string]any) []TaskSpec

type template struct {
	title string
	build templateFunc
}

var templates = map[string]template{
	"kitchen_remodel":   {"Kitchen remodel", kitchenRemodel},
	"bathroom_remodel":  {"Bathroom remodel", bathroomRemodel},
	"new_construction":  {"New construction", newConstruction},
	"addition":          {"Home addition", addition},
	"shed_construction": {"Storage shed construction", shedConstruction},
}

// Templates returns the built-in project types in sorted order.
func Templates() []string {
	names := make([]string, 0, len(templates))
	for name := range templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Template generates the standard breakdown for a project type. A string
// "description" parameter overrides the default project description.
func Template(projectType string, params map[string]any) (Breakdown, error) {
	tmpl, ok := templates[projectType]
	if !ok {
		return Breakdown{}, fmt.Errorf("%w: %q", ErrUnknownProjectType, projectType)
	}

	description := tmpl.title
	if d, ok := params["description"].(string); ok && d != "" {
		description = d
	}

	return Breakdown{
		ProjectType: projectType,
		Description: description,
		Parameters:  params,
		Tasks:       tmpl.build(params),
	}, nil
}

func task(id, agent, description, phase string, deps ...string) TaskSpec {
	return TaskSpec{ID: id, Agent: agent, Description: description, Phase: phase, DependsOn: deps}
}

func kitchenRemodel(map[string]any) []TaskSpec {
	return []TaskSpec{
		task("1", "Architect", "Design kitchen layout", "planning"),
		task("2", "Permitting", "Apply for building permit", "permitting", "1"),
		task("3", "Carpenter", "Remove old cabinets", "demolition", "2"),
		task("4", "Plumber", "Update plumbing rough-in", "rough_in", "3"),
		task("5", "Electrician", "Update electrical rough-in", "rough_in", "3"),
		task("6", "Permitting", "Schedule rough-in inspection", "inspection", "4", "5"),
		task("7", "Carpenter", "Install new cabinets", "finishing", "6"),
		task("8", "Electrician", "Install lighting fixtures", "finishing", "7"),
		task("9", "Plumber", "Install sink and fixtures", "finishing", "7"),
		task("10", "Painter", "Paint walls", "finishing", "7"),
		task("11", "Permitting", "Final inspection", "final_inspection", "8", "9", "10"),
	}
}

func bathroomRemodel(map[string]any) []TaskSpec {
	return []TaskSpec{
		task("1", "Architect", "Design bathroom layout", "planning"),
		task("2", "Permitting", "Apply for permits", "permitting", "1"),
		task("3", "Carpenter", "Demolition work", "demolition", "2"),
		task("4", "Plumber", "Rough-in plumbing", "rough_in", "3"),
		task("5", "Electrician", "Rough-in electrical", "rough_in", "3"),
		task("6", "Permitting", "Rough-in inspection", "inspection", "4", "5"),
		task("7", "Carpenter", "Install drywall", "finishing", "6"),
		task("8", "Painter", "Paint and tile work", "finishing", "7"),
		task("9", "Plumber", "Install fixtures", "finishing", "8"),
		task("10", "Electrician", "Install light fixtures", "finishing", "8"),
		task("11", "Permitting", "Final inspection", "final_inspection", "9", "10"),
	}
}

func newConstruction(map[string]any) []TaskSpec {
	return []TaskSpec{
		task("1", "Architect", "Create architectural plans", "planning"),
		task("2", "Permitting", "Apply for building permits", "permitting", "1"),
		task("3", "Mason", "Pour foundation", "foundation", "2"),
		task("4", "Carpenter", "Frame walls and roof", "framing", "3"),
		task("5", "Roofer", "Install roof", "framing", "4"),
		task("6", "Electrician", "Electrical rough-in", "rough_in", "4"),
		task("7", "Plumber", "Plumbing rough-in", "rough_in", "4"),
		task("8", "HVAC", "HVAC installation", "rough_in", "4"),
		task("9", "Permitting", "Rough-in inspection", "inspection", "6", "7", "8"),
		task("10", "Carpenter", "Install drywall", "finishing", "9"),
		task("11", "Painter", "Paint interior", "finishing", "10"),
		task("12", "Carpenter", "Install flooring and trim", "finishing", "11"),
		task("13", "Electrician", "Install fixtures", "finishing", "10"),
		task("14", "Plumber", "Install fixtures", "finishing", "10"),
		task("15", "Permitting", "Final inspection", "final_inspection", "12", "13", "14"),
	}
}

func addition(map[string]any) []TaskSpec {
	return []TaskSpec{
		task("1", "Architect", "Design addition plans", "planning"),
		task("2", "Permitting", "Apply for permits", "permitting", "1"),
		task("3", "Mason", "Pour foundation", "foundation", "2"),
		task("4", "Carpenter", "Frame addition", "framing", "3"),
		task("5", "Roofer", "Extend roof", "framing", "4"),
		task("6", "Electrician", "Electrical rough-in", "rough_in", "4"),
		task("7", "Plumber", "Plumbing rough-in", "rough_in", "4"),
		task("8", "HVAC", "Extend HVAC", "rough_in", "4"),
		task("9", "Permitting", "Rough-in inspection", "inspection", "6", "7", "8"),
		task("10", "Carpenter", "Drywall and finishing", "finishing", "9"),
		task("11", "Painter", "Paint", "finishing", "10"),
		task("12", "Permitting", "Final inspection", "final_inspection", "11"),
	}
}

// shedConstruction builds a storage shed. Parameters: has_electrical (default
// false), has_foundation (default true) and dimensions {width, length, height}
// in feet (default 10x12, height 8). Width, length and height may also be
// given as top-level parameters.
func shedConstruction(params map[string]any) []TaskSpec {
	hasElectrical := boolParam(params, "has_electrical", false)
	hasFoundation := boolParam(params, "has_foundation", true)
	width, length, height := shedDimensions(params)

	var specs []TaskSpec
	next := 1
	add := func(spec TaskSpec) string {
		spec.ID = strconv.Itoa(next)
		next++
		specs = append(specs, spec)
		return spec.ID
	}

	planning := add(TaskSpec{
		Agent:        "Architect",
		Description:  fmt.Sprintf("Design shed plans (%gx%g ft)", width, length),
		Phase:        "planning",
		Requirements: map[string]any{"width": width, "length": length, "height": height},
		Materials:    []string{"blueprints", "specifications"},
	})

	base := planning
	if hasFoundation {
		base = add(TaskSpec{
			Agent:        "Mason",
			Description:  "Pour concrete foundation slab",
			Phase:        "foundation",
			DependsOn:    []string{planning},
			Requirements: map[string]any{"area": width * length},
			Materials:    []string{"concrete", "rebar", "gravel"},
		})
	}

	framing := add(TaskSpec{
		Agent:        "Carpenter",
		Description:  "Frame walls and install door/window openings",
		Phase:        "framing",
		DependsOn:    []string{base},
		Requirements: map[string]any{"wall_count": 4, "door_count": 1, "window_count": 1},
		Materials:    []string{"2x4 lumber", "plywood", "nails", "door frame", "window frame"},
	})

	trusses := add(TaskSpec{
		Agent:        "Carpenter",
		Description:  "Build and install roof trusses",
		Phase:        "framing",
		DependsOn:    []string{framing},
		Requirements: map[string]any{"span": width},
		Materials:    []string{"2x4 lumber", "truss plates", "plywood sheathing"},
	})

	roofing := add(TaskSpec{
		Agent:        "Roofer",
		Description:  "Install roofing (shingles and underlayment)",
		Phase:        "rough_in",
		DependsOn:    []string{trusses},
		Requirements: map[string]any{"area": width * length * 1.3},
		Materials:    []string{"asphalt shingles", "roofing felt", "drip edge", "nails"},
	})

	sidingDeps := []string{roofing}
	if hasElectrical {
		electrical := add(TaskSpec{
			Agent:        "Electrician",
			Description:  "Install electrical wiring, outlet, and light fixture",
			Phase:        "rough_in",
			DependsOn:    []string{framing},
			Requirements: map[string]any{"outlets": 1, "lights": 1},
			Materials:    []string{"electrical wire", "outlet", "light fixture", "breaker"},
		})
		sidingDeps = append(sidingDeps, electrical)
	}

	siding := add(TaskSpec{
		Agent:        "Carpenter",
		Description:  "Install exterior siding",
		Phase:        "finishing",
		DependsOn:    sidingDeps,
		Requirements: map[string]any{"area": (width + length) * 2 * height},
		Materials:    []string{"siding panels", "trim", "corner boards", "nails"},
	})

	openings := add(TaskSpec{
		Agent:        "Carpenter",
		Description:  "Install door and window",
		Phase:        "finishing",
		DependsOn:    []string{siding},
		Requirements: map[string]any{"door_count": 1, "window_count": 1},
		Materials:    []string{"entry door", "window", "hinges", "hardware"},
	})

	painting := add(TaskSpec{
		Agent:        "Painter",
		Description:  "Paint exterior finish",
		Phase:        "finishing",
		DependsOn:    []string{openings},
		Requirements: map[string]any{"coats": 2},
		Materials:    []string{"exterior paint", "primer", "brushes", "rollers"},
	})

	add(TaskSpec{
		Agent:       "Carpenter",
		Description: "Final walkthrough and cleanup",
		Phase:       "final_inspection",
		DependsOn:   []string{painting},
		Requirements: map[string]any{
			"checklist": []string{"doors close properly", "roof is sealed", "paint is dry"},
		},
	})

	return specs
}

func shedDimensions(params map[string]any) (width, length, height float64) {
	width, length, height = 10, 12, 8

	dims, _ := params["dimensions"].(map[string]any)
	lookup := func(key string, def float64) float64 {
		if v, ok := numberParam(dims, key); ok {
			return v
		}
		if v, ok := numberParam(params, key); ok {
			return v
		}
		return def
	}
	return lookup("width", width), lookup("length", length), lookup("height", height)
}

// boolParam reads a boolean parameter that may arrive as a bool or as a
// string from the command line.
func boolParam(params map[string]any, key string, def bool) bool {
	switch v := params[key].(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	return def
}

func numberParam(params map[string]any, key string) (float64, bool) {
	switch v := params[key].(type) {
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case float64:
		return v, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	}
	return 0, false
}
