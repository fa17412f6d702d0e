package tools

// Op is a validated command. The set of implementations is closed: every Op is one of
// the seven recognized kinds and satisfies that kind's required-field table.
type Op interface {
	Kind() Kind
	isOp()
}

// InsertFormula writes Formula into Cell.
type InsertFormula struct {
	Cell    string
	Formula string
}

// FormatRange applies Format to Range.
type FormatRange struct {
	Range  string
	Format FormatSpec
}

// FormatSpec holds the formatting options of a format_range command.
// Nil pointers and empty strings leave the property untouched.
type FormatSpec struct {
	NumberFormat string
	Bold         *bool
	Italic       *bool
	Underline    *bool
	FontColor    string // RRGGBB
	FillColor    string // RRGGBB
}

// IsEmpty reports whether no option is set.
func (f FormatSpec) IsEmpty() bool {
	return f.NumberFormat == "" && f.Bold == nil && f.Italic == nil && f.Underline == nil &&
		f.FontColor == "" && f.FillColor == ""
}

// CreateChart draws a chart of DataRange. ChartType is as given and may be empty
// or unsupported; see NormalizeChartType.
type CreateChart struct {
	DataRange string
	ChartType string
	Position  string
	Title     string
}

// GetData reads Range.
type GetData struct {
	Range string
}

// InsertData writes Data (scalar, row or table) starting at Range.
type InsertData struct {
	Range string
	Data  any
}

// SortData sorts the body rows of Range by Column.
type SortData struct {
	Range  string
	Column string // index, letter or header name
	Order  string // as given, may be empty
}

// FilterData filters Range on Column by Criteria.
type FilterData struct {
	Range    string
	Column   string // index, letter or header name
	Criteria string
}

func (InsertFormula) Kind() Kind { return KindInsertFormula }
func (FormatRange) Kind() Kind   { return KindFormatRange }
func (CreateChart) Kind() Kind   { return KindCreateChart }
func (GetData) Kind() Kind       { return KindGetData }
func (InsertData) Kind() Kind    { return KindInsertData }
func (SortData) Kind() Kind      { return KindSortData }
func (FilterData) Kind() Kind    { return KindFilterData }

func (InsertFormula) isOp() {}
func (FormatRange) isOp()   {}
func (CreateChart) isOp()   {}
func (GetData) isOp()       {}
func (InsertData) isOp()    {}
func (SortData) isOp()      {}
func (FilterData) isOp()    {}
