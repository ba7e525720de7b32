package breakdown

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	ctyjson "github.com/zclconf/go-cty/cty/json"
	"gopkg.in/yaml.v3"
)

// CustomProjectType is used for loaded breakdowns that do not name a type.
const CustomProjectType = "custom"

// Load reads a breakdown file. The format follows the extension: .json,
// .yaml/.yml or .hcl.
func Load(path string) (Breakdown, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Breakdown{}, fmt.Errorf("breakdown: read %s: %w", path, err)
	}

	var b Breakdown
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		b, err = ParseJSON(data)
	case ".yaml", ".yml":
		b, err = ParseYAML(data)
	case ".hcl":
		b, err = ParseHCL(data, path)
	default:
		return Breakdown{}, fmt.Errorf("breakdown: unsupported file extension %q", ext)
	}
	if err != nil {
		return Breakdown{}, fmt.Errorf("breakdown: %s: %w", path, err)
	}
	return b, nil
}

// ParseJSON decodes a breakdown from JSON.
func ParseJSON(data []byte) (Breakdown, error) {
	var b Breakdown
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&b); err != nil {
		return Breakdown{}, fmt.Errorf("decode json: %w", err)
	}
	return normalize(b)
}

// ParseYAML decodes a breakdown from YAML.
func ParseYAML(data []byte) (Breakdown, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Breakdown{}, fmt.Errorf("breakdown payload is empty")
	}
	var b Breakdown
	if err := yaml.Unmarshal(data, &b); err != nil {
		return Breakdown{}, fmt.Errorf("decode yaml: %w", err)
	}
	return normalize(b)
}

// hclBreakdownFile is the top-level structure of an HCL breakdown:
//
//	project {
//	  type        = "shed_construction"
//	  description = "Backyard shed"
//	}
//
//	task "1" {
//	  agent       = "Architect"
//	  description = "Design shed plans"
//	  phase       = "planning"
//	}
type hclBreakdownFile struct {
	Project *hclProject `hcl:"project,block"`
	Tasks   []*hclTask  `hcl:"task,block"`
}

type hclProject struct {
	Type        string         `hcl:"type,optional"`
	Description string         `hcl:"description,optional"`
	Parameters  hcl.Expression `hcl:"parameters,optional"`
}

type hclTask struct {
	ID             string         `hcl:"id,label"`
	Agent          string         `hcl:"agent"`
	Description    string         `hcl:"description,optional"`
	Phase          string         `hcl:"phase"`
	DependsOn      []string       `hcl:"depends_on,optional"`
	Materials      []string       `hcl:"materials,optional"`
	Requirements   hcl.Expression `hcl:"requirements,optional"`
	TimeoutSeconds int            `hcl:"timeout_seconds,optional"`
}

// ParseHCL decodes a breakdown from HCL. filename is used in diagnostics.
func ParseHCL(data []byte, filename string) (Breakdown, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, filename)
	if diags.HasErrors() {
		return Breakdown{}, fmt.Errorf("parse hcl: %w", diags)
	}

	var parsed hclBreakdownFile
	if diags := gohcl.DecodeBody(file.Body, nil, &parsed); diags.HasErrors() {
		return Breakdown{}, fmt.Errorf("decode hcl: %w", diags)
	}

	var b Breakdown
	if parsed.Project != nil {
		b.ProjectType = parsed.Project.Type
		b.Description = parsed.Project.Description
		params, err := objectValue(parsed.Project.Parameters)
		if err != nil {
			return Breakdown{}, fmt.Errorf("project parameters: %w", err)
		}
		b.Parameters = params
	}

	for _, t := range parsed.Tasks {
		reqs, err := objectValue(t.Requirements)
		if err != nil {
			return Breakdown{}, fmt.Errorf("task %q requirements: %w", t.ID, err)
		}
		b.Tasks = append(b.Tasks, TaskSpec{
			ID:             t.ID,
			Agent:          t.Agent,
			Description:    t.Description,
			Phase:          t.Phase,
			DependsOn:      t.DependsOn,
			Materials:      t.Materials,
			Requirements:   reqs,
			TimeoutSeconds: t.TimeoutSeconds,
		})
	}
	return normalize(b)
}

// objectValue evaluates a static HCL object expression into plain Go values
// by way of its JSON form.
func objectValue(expr hcl.Expression) (map[string]any, error) {
	if expr == nil {
		return nil, nil
	}
	val, diags := expr.Value(nil)
	if diags.HasErrors() {
		return nil, diags
	}
	if val.IsNull() {
		return nil, nil
	}
	if ty := val.Type(); !ty.IsObjectType() && !ty.IsMapType() {
		return nil, fmt.Errorf("expected an object, got %s", ty.FriendlyName())
	}

	raw, err := ctyjson.SimpleJSONValue{Value: val}.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func normalize(b Breakdown) (Breakdown, error) {
	if b.ProjectType == "" {
		b.ProjectType = CustomProjectType
	}
	if err := b.Validate(); err != nil {
		return Breakdown{}, err
	}
	return b, nil
}
