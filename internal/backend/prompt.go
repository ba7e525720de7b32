package backend

import (
	"fmt"
	"sort"
	"strings"
)

// BuildPrompt renders the instruction sent to a worker for one task.
func BuildPrompt(req Request) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Task ID: %s\n", req.TaskID)
	fmt.Fprintf(&b, "Description: %s\n", req.Description)
	if req.Phase != "" {
		fmt.Fprintf(&b, "Phase: %s\n", req.Phase)
	}
	b.WriteString("\n")

	b.WriteString("Requirements: ")
	if len(req.Requirements) == 0 {
		b.WriteString("none")
	} else {
		keys := make([]string, 0, len(req.Requirements))
		for k := range req.Requirements {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%v", k, req.Requirements[k])
		}
	}
	b.WriteString("\n")

	b.WriteString("Materials needed: ")
	if len(req.Materials) == 0 {
		b.WriteString("none")
	} else {
		b.WriteString(strings.Join(req.Materials, ", "))
	}
	b.WriteString("\n")

	if len(req.Tools) > 0 {
		fmt.Fprintf(&b, "Available tools: %s\n", strings.Join(req.Tools, ", "))
	}

	b.WriteString("\nComplete this task using your specialized tools. Call each tool once and provide a summary when done.")
	return b.String()
}
