package ux

import (
	"fmt"
	"sort"
	"strings"

	"gridnerd/internal/agent"
	"gridnerd/internal/articulation"
	"gridnerd/internal/tactile"
	"gridnerd/internal/workbook"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// StatusBadge renders a status word on a colored background.
func StatusBadge(s Styles, status string) string {
	var bg lipgloss.Color
	// Report, connection and result statuses share the words success and error.
	switch status {
	case string(articulation.ReportSuccess), agent.HealthOK:
		bg = Success
	case string(articulation.ReportPartialSuccess), string(articulation.ReportWarning), string(workbook.StatePartial), agent.HealthDegraded:
		bg = Warning
	case string(articulation.ReportError):
		bg = Destructive
	default:
		bg = Info
	}
	return s.Badge.Background(bg).Render(strings.ToUpper(strings.ReplaceAll(status, "_", " ")))
}

// RenderReport renders a batch report: status, message, actions and explanation.
func RenderReport(s Styles, r articulation.Report) string {
	var sb strings.Builder
	sb.WriteString(StatusBadge(s, string(r.Status)))
	sb.WriteString(" ")
	sb.WriteString(s.Bold.Render(r.Message))
	sb.WriteString("\n")

	if len(r.ActionsTaken) > 0 {
		sb.WriteString("\n")
		sb.WriteString(s.Title.Render("Actions"))
		sb.WriteString("\n")
		for i, action := range r.ActionsTaken {
			mark := s.Success.Render("✓")
			if i < len(r.Results) && !r.Results[i].Succeeded() {
				mark = s.Error.Render("✗")
			} else if i < len(r.Results) && r.Results[i].Status == tactile.StatusWarning {
				mark = s.Warning.Render("!")
			}
			fmt.Fprintf(&sb, "  %s %s\n", mark, action)
		}
	}

	for _, res := range r.Results {
		if rows, ok := res.Data.([][]any); ok && len(rows) > 0 {
			sb.WriteString("\n")
			sb.WriteString(RenderTable(s, rows))
			sb.WriteString("\n")
		}
	}

	if r.Explanation != "" {
		sb.WriteString("\n")
		sb.WriteString(s.Muted.Render(r.Explanation))
		sb.WriteString("\n")
	}
	if r.BatchID != "" {
		sb.WriteString(s.Muted.Render("batch " + r.BatchID))
		sb.WriteString("\n")
	}
	return sb.String()
}

// RenderResult renders a single command result.
func RenderResult(s Styles, res tactile.ExecutionResult) string {
	var sb strings.Builder
	sb.WriteString(StatusBadge(s, string(res.Status)))
	if res.Type != "" {
		sb.WriteString(" ")
		sb.WriteString(s.Bold.Render(res.Type))
	}
	sb.WriteString("\n")
	if res.Message != "" {
		sb.WriteString(res.Message)
		sb.WriteString("\n")
	}
	if res.Error != "" {
		sb.WriteString(s.Error.Render(res.Error))
		sb.WriteString("\n")
	}
	if rows, ok := res.Data.([][]any); ok && len(rows) > 0 {
		sb.WriteString(RenderTable(s, rows))
		sb.WriteString("\n")
	}
	return sb.String()
}

// RenderTable renders a value matrix as a bordered table.
func RenderTable(s Styles, rows [][]any) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(s.Theme.Border))
	for _, row := range rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = cellText(v)
		}
		t.Row(cells...)
	}
	return t.String()
}

func cellText(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case float64:
		return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.6f", x), "0"), ".")
	default:
		return fmt.Sprint(x)
	}
}

// RenderConnection renders a connection status line.
func RenderConnection(s Styles, st workbook.ConnectionStatus) string {
	line := StatusBadge(s, string(st.State)) + " " + st.Message
	if st.WorkbookName != "" {
		where := st.WorkbookName
		if st.SheetName != "" {
			where += " › " + st.SheetName
		}
		line += "\n" + s.Muted.Render(where)
	}
	return line + "\n"
}

// RenderHealth renders the health report as a boxed key/value list.
func RenderHealth(s Styles, h agent.Health) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s\n\n", StatusBadge(s, h.Status), s.Title.Render("gridNERD "+h.Version))

	kv := func(k, v string) {
		fmt.Fprintf(&sb, "%s %s\n", s.Muted.Render(fmt.Sprintf("%-12s", k)), v)
	}
	conn := string(h.Connection.State)
	if h.Connection.WorkbookName != "" {
		conn += " (" + h.Connection.WorkbookName + ")"
	}
	kv("workbook", conn)
	ai := "not configured"
	if h.AIConfigured {
		ai = "configured"
		if h.Model != "" {
			ai += " (" + h.Model + ")"
		}
	}
	kv("ai", ai)
	kv("extracted", fmt.Sprintf("%d plans, %d commands, %d empty", h.Extraction.TotalProcessed, h.Extraction.Commands, h.Extraction.Empty))
	kv("dispatched", fmt.Sprintf("%d total, %d ok, %d warnings, %d failed", h.Dispatch.Total, h.Dispatch.Succeeded, h.Dispatch.Warnings, h.Dispatch.Failed))
	if p := h.Process; p != nil {
		kv("process", fmt.Sprintf("pid %d, rss %.1f MiB, cpu %.1f%%, %d goroutines", p.PID, float64(p.RSSBytes)/(1<<20), p.CPUPercent, p.NumGoroutine))
	}
	return s.Box.Render(strings.TrimRight(sb.String(), "\n")) + "\n"
}

// RenderExtraction renders the outcome of an offline extraction.
func RenderExtraction(s Styles, ext articulation.Extraction) string {
	if len(ext.Commands) == 0 {
		return StatusBadge(s, string(articulation.ReportWarning)) + " " + articulation.NoCommandsMessage + "\n"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %d command(s) via %s tier\n", s.Title.Render("Extracted"), len(ext.Commands), ext.Tier)
	for i, cmd := range ext.Commands {
		fmt.Fprintf(&sb, "%s %s\n", s.Muted.Render(fmt.Sprintf("%2d.", i+1)), cmd.Describe())
		fmt.Fprintf(&sb, "    %s\n", articulation.ActionText(cmd))
	}
	return sb.String()
}

// RenderContextKeys lists the keys of a context override map, sorted.
func RenderContextKeys(s Styles, ctx map[string]any) string {
	if len(ctx) == 0 {
		return ""
	}
	keys := make([]string, 0, len(ctx))
	for k := range ctx {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return s.Muted.Render("context: "+strings.Join(keys, ", ")) + "\n"
}

// NewMarkdownRenderer creates a glamour renderer wrapping at width.
func NewMarkdownRenderer(width int) (*glamour.TermRenderer, error) {
	if width <= 0 {
		width = 80
	}
	return glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
}

// RenderMarkdown renders md for the terminal. On renderer failure md is returned as is.
func RenderMarkdown(md string, width int) string {
	r, err := NewMarkdownRenderer(width)
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return out
}
