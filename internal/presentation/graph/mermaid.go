package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/stevekinney/silvan-sub003/pkg/domain"
)

// Overlay carries the derived verdict drawn as the final node of the graph.
type Overlay struct {
	Convergence *domain.RunConvergence
}

// GenerateMermaid produces a Mermaid flowchart of a run's steps in start order.
// Step shapes follow status:
// - done: [Rectangle]
// - failed: [[Subroutine]]
// - running: ([Stadium])
// - not started: [/Parallelogram/]
func GenerateMermaid(state *domain.RunState, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")
	if state == nil {
		return sb.String()
	}

	ids := Order(state)
	prev := ""
	for _, id := range ids {
		rec := state.Data.Steps[id]
		safeID := sanitizeMermaidID(id)

		opener, closer := "[", "]"
		switch rec.Status {
		case domain.StepFailed:
			opener, closer = "[[", "]]"
		case domain.StepRunning:
			opener, closer = "([", "])"
		case domain.StepNotStarted:
			opener, closer = "[/", "/]"
		}

		label := id
		if rec.StartedAt != nil && rec.EndedAt != nil {
			label = fmt.Sprintf("%s <br/> ⏱️ %s", id, rec.EndedAt.Sub(*rec.StartedAt))
		}
		sb.WriteString(fmt.Sprintf("    %s%s\"%s\"%s\n", safeID, opener, escape(label), closer))

		if prev != "" {
			sb.WriteString(fmt.Sprintf("    %s --> %s\n", prev, safeID))
		}
		prev = safeID
	}

	if overlay != nil && overlay.Convergence != nil {
		conv := overlay.Convergence
		sb.WriteString(fmt.Sprintf("    verdict((\"%s\"))\n", escape(string(conv.Status))))
		if prev != "" {
			sb.WriteString(fmt.Sprintf("    %s -. \"%s\" .-> verdict\n", prev, escape(conv.ReasonCode)))
		}
	}

	sb.WriteString("\n    %% Status Styles\n")
	// Black text keeps labels readable on both light and dark themes.
	sb.WriteString("    classDef done fill:#e8f5e9,stroke:#2e7d32,stroke-width:2px,color:#000;\n")
	sb.WriteString("    classDef failed fill:#ffebee,stroke:#c62828,stroke-width:2px,color:#000;\n")
	sb.WriteString("    classDef running fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")
	for _, id := range ids {
		switch state.Data.Steps[id].Status {
		case domain.StepDone:
			sb.WriteString(fmt.Sprintf("    class %s done;\n", sanitizeMermaidID(id)))
		case domain.StepFailed:
			sb.WriteString(fmt.Sprintf("    class %s failed;\n", sanitizeMermaidID(id)))
		case domain.StepRunning:
			sb.WriteString(fmt.Sprintf("    class %s running;\n", sanitizeMermaidID(id)))
		}
	}
	return sb.String()
}

// Order returns step ids sorted by start time; steps that never started come last, by id.
func Order(state *domain.RunState) []string {
	ids := make([]string, 0, len(state.Data.Steps))
	for id, rec := range state.Data.Steps {
		if rec != nil {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := state.Data.Steps[ids[i]].StartedAt, state.Data.Steps[ids[j]].StartedAt
		switch {
		case a != nil && b != nil && !a.Equal(*b):
			return a.Before(*b)
		case a != nil && b == nil:
			return true
		case a == nil && b != nil:
			return false
		}
		return ids[i] < ids[j]
	})
	return ids
}

func escape(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	return s
}
