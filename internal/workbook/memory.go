package workbook

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Operation names used by MemorySurface.Fail and Calls.
const (
	OpConnect         = "connect"
	OpPing            = "ping"
	OpReadContext     = "read_context"
	OpReadRange       = "read_range"
	OpWriteRange      = "write_range"
	OpSetFormula      = "set_formula"
	OpApplyFormatting = "apply_formatting"
	OpCreateChart     = "create_chart"
	OpSortRange       = "sort_range"
	OpApplyFilter     = "apply_filter"
)

// FilterSpec records an auto-filter applied to a MemorySurface.
type FilterSpec struct {
	Range    string
	Column   int
	Criteria string
}

type cellKey struct{ col, row int }

// MemorySurface is a single-sheet in-memory workbook.
// It can simulate an unreachable host, a missing sheet, a dropped session, and
// per-operation failures.
type MemorySurface struct {
	mu sync.Mutex

	name  string
	sheet string

	cells    map[cellKey]any
	formulas map[cellKey]string
	formats  map[string]Format
	charts   []ChartSpec
	filters  []FilterSpec
	hidden   map[int]bool

	limits         Limits
	selection      string
	screenUpdating bool

	connected    bool
	unreachable  bool
	sheetMissing bool
	failures     map[string]error
	calls        []string
}

// NewMemorySurface returns an empty, reachable surface.
func NewMemorySurface(workbookName, sheet string) *MemorySurface {
	if sheet == "" {
		sheet = "Sheet1"
	}
	return &MemorySurface{
		name:           workbookName,
		sheet:          sheet,
		cells:          make(map[cellKey]any),
		formulas:       make(map[cellKey]string),
		formats:        make(map[string]Format),
		hidden:         make(map[int]bool),
		limits:         DefaultLimits(),
		screenUpdating: true,
		failures:       make(map[string]error),
	}
}

// SetLimits sets the Context snapshot limits.
func (m *MemorySurface) SetLimits(l Limits) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limits = l
}

// SetUnreachable makes Connect and Ping fail.
func (m *MemorySurface) SetUnreachable(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unreachable = v
	if v {
		m.connected = false
	}
}

// SetSheetMissing makes Connect report a partial connection.
func (m *MemorySurface) SetSheetMissing(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sheetMissing = v
}

// Drop simulates a lost session: Ping fails until the next Connect.
func (m *MemorySurface) Drop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
}

// Fail makes every call of op return err. A nil err clears the failure.
func (m *MemorySurface) Fail(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, op)
		return
	}
	m.failures[op] = err
}

// Calls returns the operations performed so far, in order.
func (m *MemorySurface) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// Charts returns the charts created so far.
func (m *MemorySurface) Charts() []ChartSpec {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ChartSpec(nil), m.charts...)
}

// Filters returns the filters applied so far.
func (m *MemorySurface) Filters() []FilterSpec {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]FilterSpec(nil), m.filters...)
}

// FormatOf returns the format applied to address.
func (m *MemorySurface) FormatOf(address string) (Format, bool) {
	r, err := ParseRange(address)
	if err != nil {
		return Format{}, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.formats[r.Ref()]
	return f, ok
}

// RowHidden reports whether a filter hid the given 1-based row.
func (m *MemorySurface) RowHidden(row int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hidden[row]
}

// Value returns the value of a cell.
func (m *MemorySurface) Value(cell string) any {
	col, row, err := cellCoords(cell)
	if err != nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cells[cellKey{col, row}]
}

// Formula returns the formula of a cell.
func (m *MemorySurface) Formula(cell string) string {
	col, row, err := cellCoords(cell)
	if err != nil {
		return ""
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.formulas[cellKey{col, row}]
}

// Load fills the sheet from rows starting at A1, without recording a call.
func (m *MemorySurface) Load(rows [][]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for r, row := range rows {
		for c, v := range row {
			m.cells[cellKey{c + 1, r + 1}] = v
		}
	}
}

func (m *MemorySurface) enter(op string) error {
	m.calls = append(m.calls, op)
	if err, ok := m.failures[op]; ok {
		return err
	}
	if op != OpConnect && !m.connected {
		return ErrNotConnected
	}
	return nil
}

// Connect implements Surface.
func (m *MemorySurface) Connect(_ context.Context) (ConnectionStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(OpConnect); err != nil {
		return ConnectionStatus{State: StateError, Message: err.Error()}, err
	}
	if m.unreachable {
		err := errors.New("workbook host unreachable")
		return ConnectionStatus{State: StateError, Message: err.Error()}, err
	}
	m.connected = true
	if m.sheetMissing {
		return ConnectionStatus{
			State:        StatePartial,
			Message:      "Connected to workbook but no active sheet; using the first sheet",
			WorkbookName: m.name,
		}, nil
	}
	return ConnectionStatus{
		State:        StateSuccess,
		Message:      fmt.Sprintf("Connected to %s", m.name),
		WorkbookName: m.name,
		SheetName:    m.sheet,
	}, nil
}

// Ping implements Surface.
func (m *MemorySurface) Ping(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unreachable {
		return errors.New("workbook host unreachable")
	}
	return m.enter(OpPing)
}

// Disconnect implements Surface.
func (m *MemorySurface) Disconnect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	return nil
}

// ScreenUpdating implements SessionSettings.
func (m *MemorySurface) ScreenUpdating() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.screenUpdating
}

// SetScreenUpdating implements SessionSettings.
func (m *MemorySurface) SetScreenUpdating(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.screenUpdating = on
}

// ReadContext implements Surface.
func (m *MemorySurface) ReadContext(_ context.Context) (Context, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(OpReadContext); err != nil {
		return nil, err
	}

	maxCol, maxRow := 0, 0
	for k := range m.cells {
		maxCol, maxRow = max(maxCol, k.col), max(maxRow, k.row)
	}
	rows := make([][]any, maxRow)
	for r := range rows {
		rows[r] = make([]any, maxCol)
		for c := range rows[r] {
			rows[r][c] = m.cells[cellKey{c + 1, r + 1}]
		}
	}
	formulas := make(map[string]string, len(m.formulas))
	for k, f := range m.formulas {
		formulas[cellName(k.col, k.row)] = f
	}
	return snapshot(m.name, m.sheet, rows, formulas, m.selection, m.limits), nil
}

// ReadRange implements Surface.
func (m *MemorySurface) ReadRange(_ context.Context, address string) ([][]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(OpReadRange); err != nil {
		return nil, err
	}
	r, err := m.bounded(address)
	if err != nil {
		return nil, err
	}
	return m.readLocked(r), nil
}

func (m *MemorySurface) readLocked(r Range) [][]any {
	out := make([][]any, r.Rows())
	for i := range out {
		out[i] = make([]any, r.Cols())
		for j := range out[i] {
			out[i][j] = m.cells[cellKey{r.StartCol + j, r.StartRow + i}]
		}
	}
	return out
}

// WriteRange implements Surface.
func (m *MemorySurface) WriteRange(_ context.Context, address string, values [][]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(OpWriteRange); err != nil {
		return err
	}
	r, err := m.parse(address)
	if err != nil {
		return err
	}
	m.writeLocked(r.StartCol, r.StartRow, values)
	m.selection = r.TopLeft()
	return nil
}

func (m *MemorySurface) writeLocked(col, row int, values [][]any) {
	for i, line := range values {
		for j, v := range line {
			k := cellKey{col + j, row + i}
			m.cells[k] = v
			delete(m.formulas, k)
		}
	}
}

// SetFormula implements Surface.
func (m *MemorySurface) SetFormula(_ context.Context, cell, formula string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(OpSetFormula); err != nil {
		return err
	}
	r, err := m.bounded(cell)
	if err != nil {
		return err
	}
	for row := r.StartRow; row <= r.EndRow; row++ {
		for col := r.StartCol; col <= r.EndCol; col++ {
			m.formulas[cellKey{col, row}] = formula
			m.cells[cellKey{col, row}] = nil
		}
	}
	m.selection = r.TopLeft()
	return nil
}

// ApplyFormatting implements Surface. Formats accumulate per address.
func (m *MemorySurface) ApplyFormatting(_ context.Context, address string, f Format) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(OpApplyFormatting); err != nil {
		return err
	}
	r, err := m.bounded(address)
	if err != nil {
		return err
	}
	key := r.Ref()
	m.formats[key] = mergeFormat(m.formats[key], f)
	return nil
}

// CreateChart implements Surface.
func (m *MemorySurface) CreateChart(_ context.Context, chart ChartSpec) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(OpCreateChart); err != nil {
		return err
	}
	if _, err := m.parse(chart.DataRange); err != nil {
		return err
	}
	if _, err := m.parse(chart.Position); err != nil {
		return err
	}
	m.charts = append(m.charts, chart)
	return nil
}

// SortRange implements Surface.
func (m *MemorySurface) SortRange(_ context.Context, address string, keyColumn int, ascending bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(OpSortRange); err != nil {
		return err
	}
	r, err := m.bounded(address)
	if err != nil {
		return err
	}
	if keyColumn < 1 || keyColumn > r.Cols() {
		return fmt.Errorf("sort column %d outside %s", keyColumn, r.Ref())
	}
	if r.Rows() < 2 {
		return nil
	}
	body := m.readLocked(Range{StartCol: r.StartCol, StartRow: r.StartRow + 1, EndCol: r.EndCol, EndRow: r.EndRow})
	SortRows(body, keyColumn-1, ascending)
	m.writeLocked(r.StartCol, r.StartRow+1, body)
	return nil
}

// ApplyFilter implements Surface. Rows that do not match are hidden.
func (m *MemorySurface) ApplyFilter(_ context.Context, address string, column int, criteria string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(OpApplyFilter); err != nil {
		return err
	}
	r, err := m.bounded(address)
	if err != nil {
		return err
	}
	if column < 1 || column > r.Cols() {
		return fmt.Errorf("filter column %d outside %s", column, r.Ref())
	}
	crit := ParseCriterion(criteria)
	for row := r.StartRow + 1; row <= r.EndRow; row++ {
		m.hidden[row] = !crit.Match(m.cells[cellKey{r.StartCol + column - 1, row}])
	}
	m.filters = append(m.filters, FilterSpec{Range: r.Ref(), Column: column, Criteria: criteria})
	return nil
}

func (m *MemorySurface) parse(address string) (Range, error) {
	r, err := ParseRange(address)
	if err != nil {
		return Range{}, err
	}
	if r.Sheet != "" && !strings.EqualFold(r.Sheet, m.sheet) {
		return Range{}, fmt.Errorf("%w: %s", ErrSheetNotFound, r.Sheet)
	}
	return r, nil
}

// bounded parses address and applies the cell cap.
func (m *MemorySurface) bounded(address string) (Range, error) {
	r, err := m.parse(address)
	if err != nil {
		return Range{}, err
	}
	if err := m.limits.CheckRange(r); err != nil {
		return Range{}, err
	}
	return r, nil
}

// mergeFormat overlays the set properties of next onto prev.
func mergeFormat(prev, next Format) Format {
	if next.NumberFormat != "" {
		prev.NumberFormat = next.NumberFormat
	}
	if next.Bold != nil {
		prev.Bold = next.Bold
	}
	if next.Italic != nil {
		prev.Italic = next.Italic
	}
	if next.Underline != nil {
		prev.Underline = next.Underline
	}
	if next.FontColor != "" {
		prev.FontColor = next.FontColor
	}
	if next.FillColor != "" {
		prev.FillColor = next.FillColor
	}
	return prev
}
