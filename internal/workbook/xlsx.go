package workbook

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"gridnerd/internal/logging"

	"github.com/fsnotify/fsnotify"
	"github.com/xuri/excelize/v2"
)

// XLSXOptions configures an XLSXSurface.
type XLSXOptions struct {
	Path            string
	Sheet           string // empty means the active sheet
	CreateIfMissing bool
	Watch           bool
	Limits          Limits
}

// XLSXSurface drives an .xlsx file on disk.
//
// Screen updating maps to autosave: while it is on, every mutation is written back
// to the file. An external change to the file marks the session stale; the next
// Ping fails and the Connection reloads the workbook.
type XLSXSurface struct {
	opts XLSXOptions

	mu        sync.Mutex
	file      *excelize.File
	sheet     string
	autosave  bool
	selection string
	extent    cellKey // bottom-right of cells written this session
	stamp     fileStamp
	watcher   *fileWatcher
	stale     atomic.Bool
}

type fileStamp struct {
	modTime time.Time
	size    int64
}

func (a fileStamp) same(b fileStamp) bool {
	return a.size == b.size && a.modTime.Equal(b.modTime)
}

func stampOf(path string) (fileStamp, error) {
	info, err := os.Stat(path)
	if err != nil {
		return fileStamp{}, err
	}
	return fileStamp{modTime: info.ModTime(), size: info.Size()}, nil
}

// NewXLSXSurface returns a disconnected surface for opts.Path.
func NewXLSXSurface(opts XLSXOptions) *XLSXSurface {
	if opts.Limits == (Limits{}) {
		opts.Limits = DefaultLimits()
	}
	return &XLSXSurface{opts: opts, autosave: true}
}

// Path returns the workbook path.
func (s *XLSXSurface) Path() string { return s.opts.Path }

// Connect implements Surface.
func (s *XLSXSurface) Connect(_ context.Context) (ConnectionStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()

	f, err := s.open()
	if err != nil {
		return ConnectionStatus{State: StateError, Message: err.Error()}, err
	}

	name := filepath.Base(s.opts.Path)
	sheet, found := resolveSheet(f, s.opts.Sheet)
	if sheet == "" {
		_ = f.Close()
		err := errors.New("workbook has no worksheets")
		return ConnectionStatus{State: StateError, Message: err.Error(), WorkbookName: name}, err
	}

	s.file = f
	s.sheet = sheet
	s.selection = ""
	s.extent = cellKey{}
	s.stale.Store(false)
	if st, err := stampOf(s.opts.Path); err == nil {
		s.stamp = st
	}
	if s.opts.Watch {
		s.startWatchLocked()
	}

	if !found {
		return ConnectionStatus{
			State:        StatePartial,
			Message:      fmt.Sprintf("Connected to %s but sheet %q was not found; using %q", name, s.opts.Sheet, sheet),
			WorkbookName: name,
			SheetName:    sheet,
		}, nil
	}
	return ConnectionStatus{
		State:        StateSuccess,
		Message:      fmt.Sprintf("Connected to %s", name),
		WorkbookName: name,
		SheetName:    sheet,
	}, nil
}

func (s *XLSXSurface) open() (*excelize.File, error) {
	path := s.opts.Path
	if path == "" {
		return nil, errors.New("no workbook path configured")
	}
	if _, err := os.Stat(path); err == nil {
		f, err := excelize.OpenFile(path)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		return f, nil
	} else if !errors.Is(err, os.ErrNotExist) || !s.opts.CreateIfMissing {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	f := excelize.NewFile()
	if s.opts.Sheet != "" {
		if err := f.SetSheetName(f.GetSheetName(0), s.opts.Sheet); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("create %s: %w", path, err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	logging.Workbook("created workbook %s", path)
	return f, nil
}

// resolveSheet returns the requested sheet, or the active sheet and false when it
// does not exist.
func resolveSheet(f *excelize.File, want string) (string, bool) {
	active := f.GetSheetName(f.GetActiveSheetIndex())
	if active == "" {
		if list := f.GetSheetList(); len(list) > 0 {
			active = list[0]
		}
	}
	if want == "" {
		return active, true
	}
	idx, err := f.GetSheetIndex(want)
	if err != nil || idx < 0 {
		return active, false
	}
	return f.GetSheetList()[idx], true
}

func (s *XLSXSurface) startWatchLocked() {
	w, err := newFileWatcher(s.opts.Path, func(fsnotify.Op) {
		s.stale.Store(true)
	})
	if err != nil {
		logging.WorkbookWarn("cannot watch %s: %v", s.opts.Path, err)
		return
	}
	w.Start()
	s.watcher = w
}

// Ping implements Surface.
func (s *XLSXSurface) Ping(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return ErrNotConnected
	}
	if s.stale.Load() {
		st, err := stampOf(s.opts.Path)
		if err != nil {
			return fmt.Errorf("workbook file: %w", err)
		}
		if !st.same(s.stamp) {
			return errors.New("workbook changed on disk")
		}
		s.stale.Store(false)
	}
	if idx, err := s.file.GetSheetIndex(s.sheet); err != nil || idx < 0 {
		return fmt.Errorf("%w: %s", ErrSheetNotFound, s.sheet)
	}
	return nil
}

// Disconnect implements Surface.
func (s *XLSXSurface) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked()
}

func (s *XLSXSurface) closeLocked() error {
	if s.watcher != nil {
		s.watcher.Stop()
		s.watcher = nil
	}
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// ScreenUpdating implements SessionSettings.
func (s *XLSXSurface) ScreenUpdating() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.autosave
}

// SetScreenUpdating implements SessionSettings.
func (s *XLSXSurface) SetScreenUpdating(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.autosave = on
}

// Save writes the workbook to disk regardless of autosave.
func (s *XLSXSurface) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return ErrNotConnected
	}
	return s.saveLocked()
}

func (s *XLSXSurface) saveLocked() error {
	if err := s.file.SaveAs(s.opts.Path); err != nil {
		return fmt.Errorf("save %s: %w", s.opts.Path, err)
	}
	if st, err := stampOf(s.opts.Path); err == nil {
		s.stamp = st
	}
	return nil
}

func (s *XLSXSurface) persistLocked() error {
	if !s.autosave {
		return nil
	}
	return s.saveLocked()
}

// target resolves address against the connected workbook.
func (s *XLSXSurface) target(address string) (string, Range, error) {
	if s.file == nil {
		return "", Range{}, ErrNotConnected
	}
	r, err := ParseRange(address)
	if err != nil {
		return "", Range{}, err
	}
	sheet := s.sheet
	if r.Sheet != "" {
		idx, err := s.file.GetSheetIndex(r.Sheet)
		if err != nil || idx < 0 {
			return "", Range{}, fmt.Errorf("%w: %s", ErrSheetNotFound, r.Sheet)
		}
		sheet = s.file.GetSheetList()[idx]
	}
	return sheet, r, nil
}

// bounded resolves address and applies the cell cap.
func (s *XLSXSurface) bounded(address string) (string, Range, error) {
	sheet, r, err := s.target(address)
	if err != nil {
		return "", Range{}, err
	}
	if err := s.opts.Limits.CheckRange(r); err != nil {
		return "", Range{}, err
	}
	return sheet, r, nil
}

// ReadContext implements Surface.
func (s *XLSXSurface) ReadContext(_ context.Context) (Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil, ErrNotConnected
	}

	raw, err := s.file.GetRows(s.sheet)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.sheet, err)
	}
	limits := s.opts.Limits
	rows := make([][]any, 0, min(len(raw), limits.SampleRows))
	for r := 0; r < len(raw) && r < limits.SampleRows; r++ {
		n := min(len(raw[r]), limits.SampleCols)
		row := make([]any, n)
		for c := 0; c < n; c++ {
			row[c] = s.valueLocked(s.sheet, cellName(c+1, r+1))
		}
		rows = append(rows, row)
	}

	// Rows holding only formulas without cached values are absent from GetRows.
	maxRow, maxCol := max(len(raw), s.extent.row), s.extent.col
	for _, row := range raw {
		maxCol = max(maxCol, len(row))
	}
	formulas := make(map[string]string)
scan:
	for r := 0; r < maxRow; r++ {
		for c := 0; c < maxCol; c++ {
			if len(formulas) >= limits.MaxFormulas {
				break scan
			}
			addr := cellName(c+1, r+1)
			if f, err := s.file.GetCellFormula(s.sheet, addr); err == nil && f != "" {
				formulas[addr] = withEquals(f)
			}
		}
	}
	return snapshot(filepath.Base(s.opts.Path), s.sheet, rows, formulas, s.selection, limits), nil
}

// ReadRange implements Surface.
func (s *XLSXSurface) ReadRange(_ context.Context, address string) ([][]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sheet, r, err := s.bounded(address)
	if err != nil {
		return nil, err
	}
	return s.readLocked(sheet, r), nil
}

func (s *XLSXSurface) readLocked(sheet string, r Range) [][]any {
	out := make([][]any, r.Rows())
	for i := range out {
		out[i] = make([]any, r.Cols())
		for j := range out[i] {
			out[i][j] = s.valueLocked(sheet, cellName(r.StartCol+j, r.StartRow+i))
		}
	}
	return out
}

// valueLocked reads a cell as nil, bool, float64 or string.
func (s *XLSXSurface) valueLocked(sheet, cell string) any {
	raw, err := s.file.GetCellValue(sheet, cell, excelize.Options{RawCellValue: true})
	if err != nil || raw == "" {
		return nil
	}
	typ, _ := s.file.GetCellType(sheet, cell)
	switch typ {
	case excelize.CellTypeBool:
		return raw == "1" || strings.EqualFold(raw, "true")
	case excelize.CellTypeSharedString, excelize.CellTypeInlineString, excelize.CellTypeFormula:
		return raw
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return raw
}

// WriteRange implements Surface. Strings starting with "=" are written as formulas.
func (s *XLSXSurface) WriteRange(_ context.Context, address string, values [][]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sheet, r, err := s.target(address)
	if err != nil {
		return err
	}
	if err := s.writeLocked(sheet, r.StartCol, r.StartRow, values); err != nil {
		return err
	}
	s.selection = r.TopLeft()
	return s.persistLocked()
}

func (s *XLSXSurface) writeLocked(sheet string, col, row int, values [][]any) error {
	for i, line := range values {
		for j, v := range line {
			cell := cellName(col+j, row+i)
			s.touch(col+j, row+i)
			if text, ok := v.(string); ok && strings.HasPrefix(text, "=") {
				if err := s.file.SetCellFormula(sheet, cell, text); err != nil {
					return fmt.Errorf("write %s: %w", cell, err)
				}
				continue
			}
			if err := s.file.SetCellValue(sheet, cell, v); err != nil {
				return fmt.Errorf("write %s: %w", cell, err)
			}
		}
	}
	return nil
}

// SetFormula implements Surface. A range receives the formula in every cell.
func (s *XLSXSurface) SetFormula(_ context.Context, cell, formula string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sheet, r, err := s.bounded(cell)
	if err != nil {
		return err
	}
	for row := r.StartRow; row <= r.EndRow; row++ {
		for col := r.StartCol; col <= r.EndCol; col++ {
			if err := s.file.SetCellFormula(sheet, cellName(col, row), formula); err != nil {
				return fmt.Errorf("set formula %s: %w", cellName(col, row), err)
			}
			s.touch(col, row)
		}
	}
	s.selection = r.TopLeft()
	return s.persistLocked()
}

// ApplyFormatting implements Surface. The style of the top-left cell is the base
// that the format is merged into.
func (s *XLSXSurface) ApplyFormatting(_ context.Context, address string, format Format) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sheet, r, err := s.bounded(address)
	if err != nil {
		return err
	}

	base := &excelize.Style{}
	if id, err := s.file.GetCellStyle(sheet, r.TopLeft()); err == nil && id != 0 {
		if st, err := s.file.GetStyle(id); err == nil && st != nil {
			base = st
		}
	}
	styleID, err := s.file.NewStyle(applyFormat(base, format))
	if err != nil {
		return fmt.Errorf("style %s: %w", r.Ref(), err)
	}
	if err := s.file.SetCellStyle(sheet, r.TopLeft(), r.BottomRight(), styleID); err != nil {
		return fmt.Errorf("style %s: %w", r.Ref(), err)
	}
	return s.persistLocked()
}

func applyFormat(st *excelize.Style, f Format) *excelize.Style {
	if f.Bold != nil || f.Italic != nil || f.Underline != nil || f.FontColor != "" {
		if st.Font == nil {
			st.Font = &excelize.Font{}
		}
		if f.Bold != nil {
			st.Font.Bold = *f.Bold
		}
		if f.Italic != nil {
			st.Font.Italic = *f.Italic
		}
		if f.Underline != nil {
			st.Font.Underline = ""
			if *f.Underline {
				st.Font.Underline = "single"
			}
		}
		if f.FontColor != "" {
			st.Font.Color = "#" + f.FontColor
		}
	}
	if f.FillColor != "" {
		st.Fill = excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#" + f.FillColor}}
	}
	if f.NumberFormat != "" {
		nf := f.NumberFormat
		st.CustomNumFmt = &nf
	}
	return st
}

var chartTypes = map[string]excelize.ChartType{
	"column":  excelize.Col,
	"bar":     excelize.Bar,
	"line":    excelize.Line,
	"pie":     excelize.Pie,
	"scatter": excelize.Scatter,
	"area":    excelize.Area,
}

// CreateChart implements Surface. The first column of the data range holds the
// categories, the first row the series names; every other column is a series.
func (s *XLSXSurface) CreateChart(_ context.Context, spec ChartSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sheet, r, err := s.target(spec.DataRange)
	if err != nil {
		return err
	}
	typ, ok := chartTypes[spec.Type]
	if !ok {
		return fmt.Errorf("unsupported chart type %q", spec.Type)
	}
	if r.Rows() < 2 {
		return fmt.Errorf("chart data %s needs a header row and at least one data row", r.Ref())
	}
	_, pos, err := s.target(spec.Position)
	if err != nil {
		return err
	}

	chart := &excelize.Chart{Type: typ}
	body := Range{StartRow: r.StartRow + 1, EndRow: r.EndRow}
	first := r.StartCol
	if r.Cols() > 1 {
		first = r.StartCol + 1
	}
	for col := first; col <= r.EndCol; col++ {
		series := excelize.ChartSeries{
			Name:   Range{StartCol: col, StartRow: r.StartRow, EndCol: col, EndRow: r.StartRow}.Absolute(sheet),
			Values: Range{StartCol: col, StartRow: body.StartRow, EndCol: col, EndRow: body.EndRow}.Absolute(sheet),
		}
		if r.Cols() > 1 {
			series.Categories = Range{StartCol: r.StartCol, StartRow: body.StartRow, EndCol: r.StartCol, EndRow: body.EndRow}.Absolute(sheet)
		}
		chart.Series = append(chart.Series, series)
	}
	if spec.Title != "" {
		chart.Title = []excelize.RichTextRun{{Text: spec.Title}}
	}

	if err := s.file.AddChart(sheet, pos.TopLeft(), chart); err != nil {
		return fmt.Errorf("add chart: %w", err)
	}
	return s.persistLocked()
}

// SortRange implements Surface. Body rows are rewritten as values.
func (s *XLSXSurface) SortRange(_ context.Context, address string, keyColumn int, ascending bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sheet, r, err := s.bounded(address)
	if err != nil {
		return err
	}
	if keyColumn < 1 || keyColumn > r.Cols() {
		return fmt.Errorf("sort column %d outside %s", keyColumn, r.Ref())
	}
	if r.Rows() < 2 {
		return nil
	}
	body := s.readLocked(sheet, Range{StartCol: r.StartCol, StartRow: r.StartRow + 1, EndCol: r.EndCol, EndRow: r.EndRow})
	SortRows(body, keyColumn-1, ascending)
	if err := s.writeLocked(sheet, r.StartCol, r.StartRow+1, body); err != nil {
		return err
	}
	return s.persistLocked()
}

// ApplyFilter implements Surface. It records an auto-filter and hides the body rows
// that do not match.
func (s *XLSXSurface) ApplyFilter(_ context.Context, address string, column int, criteria string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sheet, r, err := s.bounded(address)
	if err != nil {
		return err
	}
	if column < 1 || column > r.Cols() {
		return fmt.Errorf("filter column %d outside %s", column, r.Ref())
	}

	crit := ParseCriterion(criteria)
	col := r.StartCol + column - 1
	opts := []excelize.AutoFilterOptions{{Column: ColumnName(col), Expression: crit.Expression()}}
	if err := s.file.AutoFilter(sheet, r.Ref(), opts); err != nil {
		return fmt.Errorf("auto filter %s: %w", r.Ref(), err)
	}
	for row := r.StartRow + 1; row <= r.EndRow; row++ {
		visible := crit.Match(s.valueLocked(sheet, cellName(col, row)))
		if err := s.file.SetRowVisible(sheet, row, visible); err != nil {
			return fmt.Errorf("filter row %d: %w", row, err)
		}
	}
	return s.persistLocked()
}

func (s *XLSXSurface) touch(col, row int) {
	s.extent = cellKey{col: max(s.extent.col, col), row: max(s.extent.row, row)}
}

func withEquals(formula string) string {
	if strings.HasPrefix(formula, "=") {
		return formula
	}
	return "=" + formula
}
