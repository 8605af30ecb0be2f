package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/muesli/termenv"
	silvan "github.com/stevekinney/silvan-sub003"
	"github.com/stevekinney/silvan-sub003/internal/presentation/graph"
	"github.com/stevekinney/silvan-sub003/pkg/domain"
)

var statusColors = map[domain.ConvergenceStatus]string{
	domain.ConvergenceRunning:          "#60a5fa",
	domain.ConvergenceWaitingForUser:   "#fbbf24",
	domain.ConvergenceWaitingForCI:     "#fbbf24",
	domain.ConvergenceWaitingForReview: "#fbbf24",
	domain.ConvergenceBlocked:          "#f87171",
	domain.ConvergenceFailed:           "#ef4444",
	domain.ConvergenceConverged:        "#34d399",
	domain.ConvergenceAborted:          "#9ca3af",
}

// StatusLine renders a one-line verdict, colored for profile p.
func StatusLine(runID string, conv domain.RunConvergence, p termenv.Profile) string {
	status := p.String(string(conv.Status)).Bold()
	if c, ok := statusColors[conv.Status]; ok {
		status = status.Foreground(p.Color(c))
	}
	line := fmt.Sprintf("%s  %s  %s", runID, status, conv.Message)
	if len(conv.NextActions) > 0 {
		actions := make([]string, len(conv.NextActions))
		for i, a := range conv.NextActions {
			actions[i] = string(a)
		}
		line += "  " + p.String("→ "+strings.Join(actions, ", ")).Faint().String()
	}
	return line
}

// RunReport renders a markdown report of one run.
func RunReport(report silvan.Report) string {
	st := report.State
	conv := report.Convergence

	var sb strings.Builder
	fmt.Fprintf(&sb, "# Run %s\n\n", st.RunID)
	fmt.Fprintf(&sb, "**%s** (`%s`): %s\n\n", conv.Status, conv.ReasonCode, conv.Message)
	if len(conv.NextActions) > 0 {
		actions := make([]string, len(conv.NextActions))
		for i, a := range conv.NextActions {
			actions[i] = "`" + string(a) + "`"
		}
		fmt.Fprintf(&sb, "Next: %s\n\n", strings.Join(actions, ", "))
	}

	sb.WriteString("| Field | Value |\n|---|---|\n")
	fmt.Fprintf(&sb, "| Status | %s |\n", st.Data.Run.Status)
	fmt.Fprintf(&sb, "| Phase | %s |\n", st.Data.Run.Phase)
	if st.Data.Run.Step != "" {
		fmt.Fprintf(&sb, "| Step | %s |\n", st.Data.Run.Step)
	}
	fmt.Fprintf(&sb, "| Updated | %s |\n", st.Data.Run.UpdatedAt.Format(time.RFC3339))
	if s := st.Data.Summary; s != nil {
		if s.CI != "" {
			fmt.Fprintf(&sb, "| CI | %s |\n", s.CI)
		}
		if s.PRURL != "" {
			fmt.Fprintf(&sb, "| PR | %s |\n", s.PRURL)
		}
		if s.CheckpointSHA != "" {
			fmt.Fprintf(&sb, "| Checkpoint | `%s` |\n", s.CheckpointSHA)
		}
	}
	if g := st.Data.LocalGateSummary; g != nil {
		fmt.Fprintf(&sb, "| Local gate | %d blocker(s), %d warning(s) |\n", g.Blockers, g.Warnings)
	}
	if af := st.Data.VerificationAutoFixSummary; af != nil {
		fmt.Fprintf(&sb, "| Auto-fix | %s, attempt %d of %d |\n", af.Status, af.Attempts, af.MaxAttempts)
	}

	if ids := graph.Order(st); len(ids) > 0 {
		sb.WriteString("\n## Steps\n\n| Step | Status | Duration | Error |\n|---|---|---|---|\n")
		for _, id := range ids {
			rec := st.Data.Steps[id]
			dur := ""
			if rec.StartedAt != nil && rec.EndedAt != nil {
				dur = rec.EndedAt.Sub(*rec.StartedAt).String()
			}
			msg := ""
			if rec.Error != nil {
				msg = strings.ReplaceAll(rec.Error.Message, "|", "\\|")
			}
			fmt.Fprintf(&sb, "| %s | %s | %s | %s |\n", id, rec.Status, dur, msg)
		}
	}

	if arts := st.Artifacts(); len(arts) > 0 {
		sb.WriteString("\n## Artifacts\n\n")
		for _, a := range arts {
			fmt.Fprintf(&sb, "- `%s/%s` (%s, %s)\n", a.StepID, a.Name, a.Kind, shortDigest(a.Digest))
		}
	}

	if report.Summary.Total > 0 {
		sb.WriteString("\n## Events\n\n")
		types := make([]string, 0, len(report.Summary.ByType))
		for t := range report.Summary.ByType {
			types = append(types, string(t))
		}
		sort.Strings(types)
		for _, t := range types {
			fmt.Fprintf(&sb, "- %s: %d\n", t, report.Summary.ByType[domain.EventType(t)])
		}
	}

	if len(report.Findings) > 0 {
		sb.WriteString("\n## Findings\n\n")
		for _, f := range report.Findings {
			fmt.Fprintf(&sb, "- **%s** `%s`: %s\n", f.Code, f.StepID, f.Message)
		}
	}
	return sb.String()
}

func shortDigest(d string) string {
	if len(d) > 12 {
		return d[:12]
	}
	return d
}
