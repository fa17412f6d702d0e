package workbook

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Range is a rectangular block of cells. Coordinates are 1-based and inclusive.
type Range struct {
	Sheet    string // empty means the connection's sheet
	StartCol int
	StartRow int
	EndCol   int
	EndRow   int
}

// ParseRange parses "B2", "A1:C10", "$A$1:$C$10" or a sheet-qualified form such as
// "Data!A1:C10" or "'Q3 Sales'!A1".
func ParseRange(address string) (Range, error) {
	addr := strings.TrimSpace(address)
	var r Range
	if i := strings.LastIndex(addr, "!"); i >= 0 {
		r.Sheet = strings.Trim(addr[:i], "'")
		addr = addr[i+1:]
	}
	if addr == "" {
		return Range{}, fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}

	first, second, isRange := strings.Cut(addr, ":")
	c1, r1, err := cellCoords(first)
	if err != nil {
		return Range{}, fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	c2, r2 := c1, r1
	if isRange {
		if c2, r2, err = cellCoords(second); err != nil {
			return Range{}, fmt.Errorf("%w: %q", ErrInvalidAddress, address)
		}
	}

	r.StartCol, r.EndCol = min(c1, c2), max(c1, c2)
	r.StartRow, r.EndRow = min(r1, r2), max(r1, r2)
	return r, nil
}

// Cols returns the width of the range.
func (r Range) Cols() int { return r.EndCol - r.StartCol + 1 }

// Rows returns the height of the range.
func (r Range) Rows() int { return r.EndRow - r.StartRow + 1 }

// Cells returns the number of cells in the range.
func (r Range) Cells() int { return r.Rows() * r.Cols() }

// Ref returns the unqualified reference, "A1:C10" or "B2" for a single cell.
func (r Range) Ref() string {
	start := cellName(r.StartCol, r.StartRow)
	if r.StartCol == r.EndCol && r.StartRow == r.EndRow {
		return start
	}
	return start + ":" + cellName(r.EndCol, r.EndRow)
}

// TopLeft returns the first cell of the range.
func (r Range) TopLeft() string { return cellName(r.StartCol, r.StartRow) }

// BottomRight returns the last cell of the range.
func (r Range) BottomRight() string { return cellName(r.EndCol, r.EndRow) }

func (r Range) String() string {
	if r.Sheet == "" {
		return r.Ref()
	}
	if strings.ContainsAny(r.Sheet, " -'") {
		return "'" + r.Sheet + "'!" + r.Ref()
	}
	return r.Sheet + "!" + r.Ref()
}

// Absolute returns the sheet-qualified absolute reference used by chart series,
// e.g. "Sheet1!$B$2:$B$9".
func (r Range) Absolute(sheet string) string {
	if r.Sheet != "" {
		sheet = r.Sheet
	}
	start, _ := excelize.CoordinatesToCellName(r.StartCol, r.StartRow, true)
	end, _ := excelize.CoordinatesToCellName(r.EndCol, r.EndRow, true)
	if strings.ContainsAny(sheet, " -'") {
		sheet = "'" + sheet + "'"
	}
	return sheet + "!" + start + ":" + end
}

// Column returns the single-column sub-range at 1-based offset col.
func (r Range) Column(col int) Range {
	c := r.StartCol + col - 1
	return Range{Sheet: r.Sheet, StartCol: c, StartRow: r.StartRow, EndCol: c, EndRow: r.EndRow}
}

// ColumnNumber converts column letters such as "C" or "AB" to a 1-based number.
func ColumnNumber(letters string) (int, error) {
	n, err := excelize.ColumnNameToNumber(strings.TrimSpace(letters))
	if err != nil {
		return 0, fmt.Errorf("%w: column %q", ErrInvalidAddress, letters)
	}
	return n, nil
}

// ColumnName converts a 1-based column number to letters.
func ColumnName(n int) string {
	name, err := excelize.ColumnNumberToName(n)
	if err != nil {
		return ""
	}
	return name
}

func cellCoords(cell string) (col, row int, err error) {
	return excelize.CellNameToCoordinates(strings.ReplaceAll(strings.TrimSpace(cell), "$", ""))
}

func cellName(col, row int) string {
	name, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return ""
	}
	return name
}

// lessAddress orders cell addresses row-major.
func lessAddress(a, b string) bool {
	ac, ar, errA := cellCoords(a)
	bc, br, errB := cellCoords(b)
	if errA != nil || errB != nil {
		return a < b
	}
	if ar != br {
		return ar < br
	}
	return ac < bc
}
