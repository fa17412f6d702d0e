// Package workbook is the spreadsheet automation surface: the boundary between the
// command pipeline and an actual workbook.
//
// A Surface performs primitive operations (read a range, set a formula, sort rows).
// A Connection owns one Surface for the life of the process and decides when it must
// be reconnected. Two surfaces ship with the package:
//
//	MemorySurface  - an in-memory sheet, used by tests and the "memory" driver
//	XLSXSurface    - an .xlsx file on disk, via excelize, watched with fsnotify
package workbook

import (
	"context"
	"fmt"
)

// Surface is the spreadsheet automation surface.
// Addresses are A1 references, optionally sheet-qualified ("Data!A1:C10").
// Column indexes passed to SortRange and ApplyFilter are 1-based and relative to
// the range. Operations that visit every cell of a range reject ranges above the
// cell cap (Limits.CheckRange) with ErrRangeTooLarge.
type Surface interface {
	// Connect opens the workbook. A reachable workbook without the requested sheet
	// yields StatePartial and a nil error.
	Connect(ctx context.Context) (ConnectionStatus, error)

	// Ping reports whether the session opened by Connect is still usable.
	Ping(ctx context.Context) error

	Disconnect() error

	// ReadContext snapshots the current sheet for prompting.
	ReadContext(ctx context.Context) (Context, error)

	ReadRange(ctx context.Context, address string) ([][]any, error)

	// WriteRange writes values starting at the top-left cell of address.
	WriteRange(ctx context.Context, address string, values [][]any) error

	SetFormula(ctx context.Context, cell, formula string) error
	ApplyFormatting(ctx context.Context, address string, format Format) error
	CreateChart(ctx context.Context, chart ChartSpec) error

	// SortRange sorts the rows below the header row of address.
	SortRange(ctx context.Context, address string, keyColumn int, ascending bool) error

	ApplyFilter(ctx context.Context, address string, column int, criteria string) error
}

// SessionSettings is implemented by surfaces with a screen-updating toggle.
// The dispatcher forces it on while a command runs and restores it afterwards.
type SessionSettings interface {
	ScreenUpdating() bool
	SetScreenUpdating(on bool)
}

// Format holds cell formatting. Nil pointers and empty strings leave a property as is.
type Format struct {
	NumberFormat string
	Bold         *bool
	Italic       *bool
	Underline    *bool
	FontColor    string // RRGGBB
	FillColor    string // RRGGBB
}

// ChartSpec describes a chart to add. Type is one of column, bar, line, pie, scatter, area.
type ChartSpec struct {
	DataRange string
	Type      string
	Position  string
	Title     string
}

// DefaultMaxCells caps the cells one operation may touch when Limits.MaxCells is unset.
const DefaultMaxCells = 100000

// Limits bounds the size of a Context snapshot and of the ranges commands operate on.
type Limits struct {
	SampleRows  int
	SampleCols  int
	MaxFormulas int
	MaxCells    int // 0 means DefaultMaxCells
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{SampleRows: 10, SampleCols: 10, MaxFormulas: 10, MaxCells: DefaultMaxCells}
}

// CheckRange rejects ranges larger than the cell cap before anything is allocated
// for them. A whole-sheet reference such as A1:XFD1048576 parses fine but holds
// about 17 billion cells.
func (l Limits) CheckRange(r Range) error {
	limit := l.MaxCells
	if limit <= 0 {
		limit = DefaultMaxCells
	}
	if n := r.Cells(); n > limit {
		return fmt.Errorf("%w: %s has %d cells (limit %d)", ErrRangeTooLarge, r.Ref(), n, limit)
	}
	return nil
}
