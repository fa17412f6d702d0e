package tactile

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gridnerd/internal/tools"
	"gridnerd/internal/workbook"
)

// DefaultChartPosition anchors charts when no position is given.
const DefaultChartPosition = "A10"

// execute runs one validated operation. The switch covers every Op; the default
// case guards against kinds added to tools without a handler.
func execute(ctx context.Context, s workbook.Surface, op tools.Op) (ExecutionResult, error) {
	switch op := op.(type) {
	case tools.InsertFormula:
		return insertFormula(ctx, s, op)
	case tools.FormatRange:
		return formatRange(ctx, s, op)
	case tools.CreateChart:
		return createChart(ctx, s, op)
	case tools.GetData:
		return getData(ctx, s, op)
	case tools.InsertData:
		return insertData(ctx, s, op)
	case tools.SortData:
		return sortData(ctx, s, op)
	case tools.FilterData:
		return filterData(ctx, s, op)
	default:
		return ExecutionResult{}, &tools.ValidationError{Type: string(op.Kind()), Err: tools.ErrUnknownKind}
	}
}

func insertFormula(ctx context.Context, s workbook.Surface, op tools.InsertFormula) (ExecutionResult, error) {
	formula := op.Formula
	if !strings.HasPrefix(formula, "=") {
		formula = "=" + formula
	}
	if err := s.SetFormula(ctx, op.Cell, formula); err != nil {
		return ExecutionResult{}, err
	}
	return Success(fmt.Sprintf("Inserted formula %s at %s", formula, op.Cell), nil), nil
}

func formatRange(ctx context.Context, s workbook.Surface, op tools.FormatRange) (ExecutionResult, error) {
	if op.Format.IsEmpty() {
		return Warning(fmt.Sprintf("No formatting options given for %s", op.Range), nil), nil
	}
	f := workbook.Format{
		NumberFormat: op.Format.NumberFormat,
		Bold:         op.Format.Bold,
		Italic:       op.Format.Italic,
		Underline:    op.Format.Underline,
		FontColor:    op.Format.FontColor,
		FillColor:    op.Format.FillColor,
	}
	if err := s.ApplyFormatting(ctx, op.Range, f); err != nil {
		return ExecutionResult{}, err
	}
	return Success(fmt.Sprintf("Formatted range %s", op.Range), nil), nil
}

func createChart(ctx context.Context, s workbook.Surface, op tools.CreateChart) (ExecutionResult, error) {
	chartType, known := tools.NormalizeChartType(op.ChartType)
	position := op.Position
	if position == "" {
		position = DefaultChartPosition
	}
	chart := workbook.ChartSpec{DataRange: op.DataRange, Type: chartType, Position: position, Title: op.Title}
	if err := s.CreateChart(ctx, chart); err != nil {
		return ExecutionResult{}, err
	}
	if !known {
		return Warning(fmt.Sprintf("Unsupported chart type %q; created a %s chart from %s at %s",
			op.ChartType, chartType, op.DataRange, position), nil), nil
	}
	return Success(fmt.Sprintf("Created %s chart from %s at %s", chartType, op.DataRange, position), nil), nil
}

func getData(ctx context.Context, s workbook.Surface, op tools.GetData) (ExecutionResult, error) {
	data, err := s.ReadRange(ctx, op.Range)
	if err != nil {
		return ExecutionResult{}, err
	}
	return Success(fmt.Sprintf("Retrieved data from %s", op.Range), data), nil
}

func insertData(ctx context.Context, s workbook.Surface, op tools.InsertData) (ExecutionResult, error) {
	values, err := ToMatrix(op.Data)
	if err != nil {
		return ExecutionResult{}, err
	}
	if err := s.WriteRange(ctx, op.Range, values); err != nil {
		return ExecutionResult{}, err
	}
	return Success(fmt.Sprintf("Inserted data into %s", op.Range), nil), nil
}

func sortData(ctx context.Context, s workbook.Surface, op tools.SortData) (ExecutionResult, error) {
	rng, err := workbook.ParseRange(op.Range)
	if err != nil {
		return ExecutionResult{}, err
	}
	col, err := ResolveColumn(ctx, s, rng, op.Column)
	if err != nil {
		return ExecutionResult{}, err
	}
	order, known := tools.NormalizeSortOrder(op.Order)
	ascending := order == tools.SortOrders[0]
	if err := s.SortRange(ctx, op.Range, col, ascending); err != nil {
		return ExecutionResult{}, err
	}
	if !known {
		return Warning(fmt.Sprintf("Unrecognized sort order %q; sorted %s by column %d %s",
			op.Order, op.Range, col, order), nil), nil
	}
	return Success(fmt.Sprintf("Sorted %s by column %d %s", op.Range, col, order), nil), nil
}

func filterData(ctx context.Context, s workbook.Surface, op tools.FilterData) (ExecutionResult, error) {
	rng, err := workbook.ParseRange(op.Range)
	if err != nil {
		return ExecutionResult{}, err
	}
	col, err := ResolveColumn(ctx, s, rng, op.Column)
	if err != nil {
		return ExecutionResult{}, err
	}
	if err := s.ApplyFilter(ctx, op.Range, col, op.Criteria); err != nil {
		return ExecutionResult{}, err
	}
	return Success(fmt.Sprintf("Filtered %s on column %d by %s", op.Range, col, op.Criteria), nil), nil
}

// ResolveColumn maps a column reference to a 1-based index within rng. It accepts a
// number relative to the range, a column letter inside the range, or a header name
// from the first row of the range (case-insensitive).
func ResolveColumn(ctx context.Context, s workbook.Surface, rng workbook.Range, column string) (int, error) {
	ref := strings.TrimSpace(column)
	if ref == "" {
		return 0, fmt.Errorf("empty column reference")
	}

	if n, ok := parseFinite(ref); ok {
		idx := int(n)
		if float64(idx) != n || idx < 1 || idx > rng.Cols() {
			return 0, fmt.Errorf("column %s outside %s (1-%d)", ref, rng.Ref(), rng.Cols())
		}
		return idx, nil
	}

	if abs, err := workbook.ColumnNumber(ref); err == nil && abs >= rng.StartCol && abs <= rng.EndCol {
		return abs - rng.StartCol + 1, nil
	}

	header := rng
	header.EndRow = header.StartRow
	rows, err := s.ReadRange(ctx, header.String())
	if err != nil {
		return 0, err
	}
	if len(rows) > 0 {
		for i, v := range rows[0] {
			if v == nil {
				continue
			}
			if strings.EqualFold(strings.TrimSpace(fmt.Sprint(v)), ref) {
				return i + 1, nil
			}
		}
	}
	return 0, fmt.Errorf("column %q not found in %s", ref, rng.Ref())
}

// ToMatrix shapes insert_data payloads into rows: a scalar becomes one cell, a flat
// list one row, and a list of lists a table. A string holding a JSON array is decoded
// first; other numeric strings become numbers.
func ToMatrix(data any) ([][]any, error) {
	switch v := data.(type) {
	case nil:
		return nil, fmt.Errorf("%w: data", tools.ErrMissingRequiredArg)
	case string:
		text := strings.TrimSpace(v)
		if strings.HasPrefix(text, "[") {
			var decoded []any
			if err := json.Unmarshal([]byte(text), &decoded); err == nil {
				return ToMatrix(decoded)
			}
		}
		if f, ok := parseFinite(text); ok {
			return [][]any{{f}}, nil
		}
		return [][]any{{v}}, nil
	case []any:
		if len(v) == 0 {
			return nil, fmt.Errorf("%w: data is empty", tools.ErrInvalidArgType)
		}
		nested := false
		for _, item := range v {
			if _, ok := item.([]any); ok {
				nested = true
				break
			}
		}
		if !nested {
			return [][]any{v}, nil
		}
		rows := make([][]any, 0, len(v))
		for _, item := range v {
			if row, ok := item.([]any); ok {
				rows = append(rows, row)
			} else {
				rows = append(rows, []any{item})
			}
		}
		return rows, nil
	case [][]any:
		return v, nil
	case []string:
		row := make([]any, len(v))
		for i, s := range v {
			row[i] = s
		}
		return [][]any{row}, nil
	case map[string]any:
		return nil, fmt.Errorf("%w: data must be a value, a list or a list of rows", tools.ErrInvalidArgType)
	default:
		return [][]any{{v}}, nil
	}
}

// parseFinite parses text as a number. NaN and infinities are left as text.
func parseFinite(text string) (float64, bool) {
	f, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
