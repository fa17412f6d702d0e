package articulation

import (
	"fmt"
	"regexp"
	"strings"

	"gridnerd/internal/logging"
	"gridnerd/internal/tactile"
	"gridnerd/internal/tools"
)

// =============================================================================
// RESULT AGGREGATOR - execution results to a human-readable report
// =============================================================================

// ReportStatus is the overall outcome of a batch.
type ReportStatus string

const (
	ReportSuccess        ReportStatus = "success"
	ReportPartialSuccess ReportStatus = "partial_success"
	ReportError          ReportStatus = "error"
	ReportWarning        ReportStatus = "warning"
)

// Canned texts for a plan with no extractable commands.
const (
	NoCommandsMessage     = "No actionable commands were extracted from the query."
	NoCommandsExplanation = "I understood your request but couldn't determine specific spreadsheet actions to take. " +
		"Please try rephrasing your request with more specific instructions."
	DefaultExplanation = "Executed the requested spreadsheet operations."
)

// Report is the aggregated outcome of a batch.
type Report struct {
	Status       ReportStatus              `json:"status"`
	Message      string                    `json:"message"`
	ActionsTaken []string                  `json:"action_taken"`
	Explanation  string                    `json:"explanation"`
	Results      []tactile.ExecutionResult `json:"results,omitempty"`
	BatchID      string                    `json:"batch_id,omitempty"`
}

// EmptyReport is the warning report for a batch with no commands.
func EmptyReport() Report {
	return Report{
		Status:       ReportWarning,
		Message:      NoCommandsMessage,
		ActionsTaken: []string{},
		Explanation:  NoCommandsExplanation,
	}
}

// ErrorReport is a top-level failure report: nothing was executed.
func ErrorReport(message, explanation string) Report {
	return Report{
		Status:       ReportError,
		Message:      message,
		ActionsTaken: []string{},
		Explanation:  explanation,
	}
}

// Aggregate summarizes results, which must be parallel to commands.
// The plan text supplies the explanation.
func Aggregate(query, plan string, commands []tools.Command, results []tactile.ExecutionResult) Report {
	if len(results) == 0 {
		return EmptyReport()
	}

	succeeded := 0
	actions := make([]string, 0, len(results))
	for i, res := range results {
		var cmd tools.Command
		if i < len(commands) {
			cmd = commands[i]
		}
		action := ActionText(cmd)
		if res.Succeeded() {
			succeeded++
		} else {
			reason := res.Error
			if reason == "" {
				reason = "Unknown error"
			}
			action += fmt.Sprintf(" (Failed: %s)", reason)
		}
		actions = append(actions, action)
	}

	total := len(results)
	report := Report{
		ActionsTaken: actions,
		Explanation:  ExtractExplanation(plan),
		Results:      results,
	}
	switch {
	case succeeded == total:
		report.Status = ReportSuccess
		report.Message = fmt.Sprintf("Successfully executed %d spreadsheet operations.", total)
	case succeeded > 0:
		report.Status = ReportPartialSuccess
		report.Message = fmt.Sprintf("Partially completed the request. %d out of %d operations succeeded.", succeeded, total)
	default:
		report.Status = ReportError
		report.Message = "Could not execute the requested spreadsheet operations."
	}

	logging.Articulation("aggregated %q: %s (%d/%d)", truncate(query, 60), report.Status, succeeded, total)
	return report
}

// ActionText describes a command for the report, using positional captures bound
// to their named fields.
func ActionText(cmd tools.Command) string {
	b := tools.Bind(cmd)
	switch b.Kind() {
	case tools.KindInsertFormula:
		return fmt.Sprintf("Inserted formula %s at %s", b.Text("formula"), b.Text("cell"))
	case tools.KindFormatRange:
		return fmt.Sprintf("Formatted range %s", b.Text("range"))
	case tools.KindCreateChart:
		if ct := b.Text("chart_type"); ct != "" {
			return fmt.Sprintf("Created %s chart using data from %s", ct, b.Text("data_range"))
		}
		return fmt.Sprintf("Created chart using data from %s", b.Text("data_range"))
	case tools.KindGetData:
		return fmt.Sprintf("Retrieved data from range %s", b.Text("range"))
	case tools.KindInsertData:
		return fmt.Sprintf("Inserted data into %s", b.Text("range"))
	case tools.KindSortData:
		return fmt.Sprintf("Sorted %s by %s", b.Text("range"), b.Text("sort_column"))
	case tools.KindFilterData:
		return fmt.Sprintf("Filtered %s on %s by %s", b.Text("range"), b.Text("filter_column"), b.Text("criteria"))
	default:
		typ := cmd.Type
		if typ == "" {
			typ = "unknown"
		}
		return fmt.Sprintf("Executed %s command", typ)
	}
}

var explanationRe = regexp.MustCompile(`(?is)(?:explanation|I will|Here's what I'll do):(.*?)(?:\n\n|\z)`)

// ExtractExplanation returns the first explanation paragraph of a plan, or DefaultExplanation.
func ExtractExplanation(plan string) string {
	m := explanationRe.FindStringSubmatch(plan)
	if m == nil {
		return DefaultExplanation
	}
	text := strings.Trim(m[1], " \t\r\n*_")
	if text == "" {
		return DefaultExplanation
	}
	return text
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
