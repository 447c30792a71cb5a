package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/ShayCichocki/nova/internal/projection"
	"github.com/ShayCichocki/nova/pkg/models"
)

// StatusView renders a projection as a static report.
type StatusView struct {
	width int

	// Styles
	headerStyle    lipgloss.Style
	sectionStyle   lipgloss.Style
	labelStyle     lipgloss.Style
	valueStyle     lipgloss.Style
	dimStyle       lipgloss.Style
	progressFull   lipgloss.Style
	progressEmpty  lipgloss.Style
	milestoneStyle lipgloss.Style
	statusStyles   map[models.TaskStatus]lipgloss.Style
}

// NewStatusView creates a StatusView for a terminal of the given width.
// A width of zero means 80 columns.
func NewStatusView(width int) *StatusView {
	if width <= 0 {
		width = 80
	}
	return &StatusView{
		width: width,

		headerStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(lipgloss.Color("238")).
			MarginBottom(1),

		sectionStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("252")),

		labelStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Width(12),

		valueStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")).
			Bold(true),

		dimStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),

		progressFull: lipgloss.NewStyle().
			Foreground(lipgloss.Color("34")),

		progressEmpty: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),

		milestoneStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true),

		statusStyles: map[models.TaskStatus]lipgloss.Style{
			models.TaskStatusCompleted:  lipgloss.NewStyle().Foreground(lipgloss.Color("34")),
			models.TaskStatusInProgress: lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
			models.TaskStatusPending:    lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
			models.TaskStatusBlocked:    lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
			models.TaskStatusFailed:     lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		},
	}
}

// statusGlyphs marks each display status in task lists.
var statusGlyphs = map[models.TaskStatus]string{
	models.TaskStatusCompleted:  "✓",
	models.TaskStatusInProgress: "●",
	models.TaskStatusPending:    "○",
	models.TaskStatusBlocked:    "◌",
	models.TaskStatusFailed:     "✗",
}

// Render draws st.
func (v *StatusView) Render(st *projection.Status) string {
	var b strings.Builder

	b.WriteString(v.headerStyle.Render(fmt.Sprintf("%s (%s)", st.Root.Title, st.Root.ID)))
	b.WriteString("\n")

	root := st.Rollups.Level0
	b.WriteString(v.labelStyle.Render("Status:"))
	b.WriteString(v.status(root.Status))
	b.WriteString("\n")

	b.WriteString(v.labelStyle.Render("Tasks:"))
	b.WriteString(v.valueStyle.Render(v.counts(st)))
	b.WriteString("\n")

	b.WriteString(v.labelStyle.Render("Tokens:"))
	b.WriteString(v.valueStyle.Render(formatTokens(root.TokenUsage)))
	b.WriteString("\n")

	b.WriteString(v.labelStyle.Render("Cost:"))
	b.WriteString(v.valueStyle.Render(fmt.Sprintf("$%.4f", root.CostUSD)))
	b.WriteString("  ")
	b.WriteString(v.dimStyle.Render(fmt.Sprintf("%.0fs worker time", root.DurationSeconds)))
	b.WriteString("\n")

	b.WriteString(v.renderProgressBar(st.Progress()*100, 30))
	b.WriteString("\n")

	if len(st.Milestones) > 0 {
		b.WriteString("\n")
		b.WriteString(v.sectionStyle.Render("Milestones"))
		b.WriteString("\n")
		for _, m := range st.Milestones {
			b.WriteString("  ")
			b.WriteString(v.milestoneStyle.Render("★ " + m.Name))
			b.WriteString(v.dimStyle.Render("  " + m.Message))
			b.WriteString("\n")
		}
	}

	for _, branch := range st.Branches {
		b.WriteString("\n")
		b.WriteString(v.renderBranch(st, branch))
	}
	return b.String()
}

func (v *StatusView) renderBranch(st *projection.Status, branch string) string {
	var b strings.Builder
	r := st.Rollups.Level1[branch]
	b.WriteString(v.sectionStyle.Render(branch))
	b.WriteString(" ")
	b.WriteString(v.status(r.Status))
	b.WriteString(v.dimStyle.Render(fmt.Sprintf("  %d tasks  $%.4f", r.TaskCount, r.CostUSD)))
	b.WriteString("\n")

	// Groups of this branch, in the projection's order.
	for _, key := range st.Groups {
		g, ok := st.Rollups.Level2[key]
		if !ok || !strings.HasPrefix(key, branch+"/") {
			continue
		}
		b.WriteString("  ")
		b.WriteString(v.valueStyle.Render(strings.TrimPrefix(key, branch+"/")))
		b.WriteString(" ")
		b.WriteString(v.status(g.Status))
		b.WriteString("\n")

		for _, id := range st.Order {
			t := st.Tasks[id]
			if t.Hierarchy.GroupKey() != key {
				continue
			}
			b.WriteString(v.renderTask(t))
		}
	}
	return b.String()
}

func (v *StatusView) renderTask(t projection.TaskView) string {
	style := v.statusStyles[t.DisplayStatus]
	line := fmt.Sprintf("    %s %s %s",
		style.Render(statusGlyphs[t.DisplayStatus]),
		v.dimStyle.Render(clip(t.ID, 14)),
		clip(t.Title, v.width-40))
	if t.Metrics != nil {
		line += v.dimStyle.Render(fmt.Sprintf("  %s $%.4f", formatTokens(t.Metrics.TokenUsage), t.Metrics.CostUSD))
	}
	if t.RetryCount > 0 {
		line += v.dimStyle.Render(fmt.Sprintf("  retry %d", t.RetryCount))
	}
	line += "\n"
	if t.DisplayStatus == models.TaskStatusFailed && t.LastFailureReason != "" {
		reason := t.LastFailureReason
		if t.TimedOut {
			reason = "timed out: " + reason
		}
		line += "        " + style.Render(clip(reason, v.width-10)) + "\n"
	}
	return line
}

func (v *StatusView) status(s models.TaskStatus) string {
	return v.statusStyles[s].Render(string(s))
}

// counts summarizes display statuses, e.g. "3/5 completed, 1 failed".
func (v *StatusView) counts(st *projection.Status) string {
	parts := []string{fmt.Sprintf("%d/%d completed", st.Counts[models.TaskStatusCompleted], len(st.Tasks))}
	var others []string
	for s, n := range st.Counts {
		if s != models.TaskStatusCompleted && n > 0 {
			others = append(others, fmt.Sprintf("%d %s", n, s))
		}
	}
	sort.Strings(others)
	return strings.Join(append(parts, others...), ", ")
}

// renderProgressBar renders a progress bar.
func (v *StatusView) renderProgressBar(pct float64, width int) string {
	if pct > 100 {
		pct = 100
	}
	if pct < 0 {
		pct = 0
	}

	filled := int(pct / 100 * float64(width))
	empty := width - filled

	bar := v.progressFull.Render(strings.Repeat("█", filled)) +
		v.progressEmpty.Render(strings.Repeat("░", empty))

	return fmt.Sprintf("  %s %.0f%%", bar, pct)
}

func formatTokens(u models.TokenUsage) string {
	return fmt.Sprintf("%s in / %s out / %s cache", humanCount(u.Input), humanCount(u.Output), humanCount(u.CacheRead+u.CacheCreation))
}

func humanCount(n int64) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	case n >= 1_000:
		return fmt.Sprintf("%.1fk", float64(n)/1_000)
	default:
		return fmt.Sprintf("%d", n)
	}
}

func clip(s string, max int) string {
	if max < 4 {
		max = 4
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
