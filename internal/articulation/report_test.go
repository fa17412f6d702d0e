package articulation

import (
	"encoding/json"
	"strings"
	"testing"

	"gridnerd/internal/tactile"
	"gridnerd/internal/tools"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregate_Status(t *testing.T) {
	cmds := []tools.Command{
		tools.NewCommand(tools.KindInsertFormula, map[string]any{"cell": "B2", "formula": "=SUM(A1:A10)"}),
		tools.NewCommand(tools.KindGetData, map[string]any{"range": "A1:B2"}),
		tools.NewCommand(tools.KindFormatRange, map[string]any{"range": "A1"}),
	}
	ok := tactile.Success("done", nil)
	warn := tactile.Warning("fell back", nil)
	bad := tactile.Failure(assert.AnError)

	tests := []struct {
		name    string
		results []tactile.ExecutionResult
		want    ReportStatus
		message string
	}{
		{"all succeeded", []tactile.ExecutionResult{ok, ok, ok}, ReportSuccess, "Successfully executed 3 spreadsheet operations."},
		{"warning counts as success", []tactile.ExecutionResult{ok, warn, ok}, ReportSuccess, "Successfully executed 3 spreadsheet operations."},
		{"one failed", []tactile.ExecutionResult{ok, bad, ok}, ReportPartialSuccess, "Partially completed the request. 2 out of 3 operations succeeded."},
		{"all failed", []tactile.ExecutionResult{bad, bad, bad}, ReportError, "Could not execute the requested spreadsheet operations."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Aggregate("q", "", cmds, tt.results)
			assert.Equal(t, tt.want, got.Status)
			assert.Equal(t, tt.message, got.Message)
			assert.Len(t, got.ActionsTaken, len(cmds))
		})
	}
}

func TestAggregate_ExactlyOneFailedSuffix(t *testing.T) {
	const n = 5
	cmds := make([]tools.Command, n)
	results := make([]tactile.ExecutionResult, n)
	for i := range cmds {
		cmds[i] = tools.NewCommand(tools.KindGetData, map[string]any{"range": "A1"})
		results[i] = tactile.Success("ok", nil)
	}
	results[3] = tactile.Failure(&tactile.ExecutionError{Type: "get_data", Err: assert.AnError})

	got := Aggregate("q", "", cmds, results)
	require.Equal(t, ReportPartialSuccess, got.Status)
	require.Len(t, got.ActionsTaken, n)

	failed := 0
	for _, a := range got.ActionsTaken {
		if strings.Contains(a, "(Failed: ") {
			failed++
		}
	}
	assert.Equal(t, 1, failed)
	assert.Equal(t, "Retrieved data from range A1 (Failed: error executing get_data command: "+assert.AnError.Error()+")", got.ActionsTaken[3])
}

func TestAggregate_Empty(t *testing.T) {
	got := Aggregate("q", "no plan", nil, nil)
	assert.Equal(t, ReportWarning, got.Status)
	assert.Equal(t, NoCommandsMessage, got.Message)
	assert.Equal(t, NoCommandsExplanation, got.Explanation)
	assert.NotNil(t, got.ActionsTaken)
	assert.Empty(t, got.ActionsTaken)

	data, err := json.Marshal(got)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"action_taken":[]`)
}

func TestActionText(t *testing.T) {
	tests := []struct {
		cmd  tools.Command
		want string
	}{
		{tools.NewCommand(tools.KindInsertFormula, map[string]any{"cell": "C2", "formula": "=A2*B2"}), "Inserted formula =A2*B2 at C2"},
		{tools.NewCommand(tools.KindFormatRange, map[string]any{"range": "A1:D1"}), "Formatted range A1:D1"},
		{tools.NewCommand(tools.KindCreateChart, map[string]any{"data_range": "A1:B5"}), "Created chart using data from A1:B5"},
		{tools.NewCommand(tools.KindCreateChart, map[string]any{"data_range": "A1:B5", "chart_type": "pie"}), "Created pie chart using data from A1:B5"},
		{tools.NewCommand(tools.KindInsertData, map[string]any{"range": "B2", "data": 4}), "Inserted data into B2"},
		{tools.Command{Type: "sort_data", Params: map[string]any{}, Positional: []string{"the sales table", "revenue"}}, "Sorted the sales table by revenue"},
		{tools.Command{Type: "filter_data", Params: map[string]any{}, Positional: []string{"A1:D20", "region equals North"}}, "Filtered A1:D20 on region by North"},
		{tools.Command{Type: "create_formula"}, "Executed create_formula command"},
		{tools.Command{}, "Executed unknown command"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ActionText(tt.cmd))
	}
}

func TestExtractExplanation(t *testing.T) {
	tests := []struct {
		name string
		plan string
		want string
	}{
		{"labelled paragraph", "Explanation: I'll total column A.\n\n```json\n{}\n```", "I'll total column A."},
		{"markdown emphasis", "**Explanation:** **Sorting by revenue.**\n\nMore text", "Sorting by revenue."},
		{"i will", "OK. I will: add a chart of sales", "add a chart of sales"},
		{"case insensitive", "HERE'S WHAT I'LL DO: format the header\n\nrest", "format the header"},
		{"no match", "just do it", DefaultExplanation},
		{"empty body", "Explanation:\n\nnext", DefaultExplanation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractExplanation(tt.plan))
		})
	}
}

func TestErrorReport(t *testing.T) {
	got := ErrorReport("not connected to workbook", "Open the workbook and retry.")
	assert.Equal(t, ReportError, got.Status)
	assert.Empty(t, got.ActionsTaken)
	assert.NotNil(t, got.ActionsTaken)
}
