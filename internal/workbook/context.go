package workbook

import "sort"

// ConnState is the outcome of a connection attempt.
type ConnState string

const (
	StateSuccess ConnState = "success"
	StatePartial ConnState = "partial" // workbook reachable, requested sheet missing
	StateError   ConnState = "error"
)

// ConnectionStatus describes the current connection to the workbook.
type ConnectionStatus struct {
	State        ConnState `json:"status"`
	Message      string    `json:"message"`
	WorkbookName string    `json:"workbook_name,omitempty"`
	SheetName    string    `json:"sheet_name,omitempty"`
}

// Usable reports whether commands can run against the connection.
func (s ConnectionStatus) Usable() bool {
	return s.State == StateSuccess || s.State == StatePartial
}

// Context is a snapshot of spreadsheet state passed to the AI service.
type Context map[string]any

// Context keys.
const (
	KeyWorkbookName = "workbook_name"
	KeySheetName    = "sheet_name"
	KeySelection    = "selection"
	KeySheetData    = "sheet_data"
	KeyFormulas     = "formulas"
)

// FormulaRef locates a formula in the sheet.
type FormulaRef struct {
	Address string `json:"address"`
	Formula string `json:"formula"`
}

// Merge returns a copy of c with overrides applied. Override keys win.
func (c Context) Merge(overrides map[string]any) Context {
	out := make(Context, len(c)+len(overrides))
	for k, v := range c {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}

// snapshot builds a Context from the used range of a sheet.
// rows must start at A1; formulas are keyed by address.
func snapshot(workbookName, sheet string, rows [][]any, formulas map[string]string, selection string, limits Limits) Context {
	sample := make([][]any, 0, min(len(rows), limits.SampleRows))
	for i, row := range rows {
		if i >= limits.SampleRows {
			break
		}
		n := min(len(row), limits.SampleCols)
		line := make([]any, n)
		copy(line, row[:n])
		sample = append(sample, line)
	}

	addrs := make([]string, 0, len(formulas))
	for a := range formulas {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool { return lessAddress(addrs[i], addrs[j]) })
	refs := make([]FormulaRef, 0, min(len(addrs), limits.MaxFormulas))
	for _, a := range addrs {
		if len(refs) >= limits.MaxFormulas {
			break
		}
		refs = append(refs, FormulaRef{Address: a, Formula: formulas[a]})
	}

	if selection == "" {
		selection = "A1"
	}
	var selected any
	if col, row, err := cellCoords(selection); err == nil && row <= len(rows) && col <= len(rows[row-1]) {
		selected = rows[row-1][col-1]
	}

	return Context{
		KeyWorkbookName: workbookName,
		KeySheetName:    sheet,
		KeySelection:    map[string]any{"address": selection, "value": selected},
		KeySheetData:    sample,
		KeyFormulas:     refs,
	}
}
