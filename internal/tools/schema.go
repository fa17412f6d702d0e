package tools

// Property describes a single parameter of a command kind.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Default     any    `json:"default,omitempty"`
	Enum        []any  `json:"enum,omitempty"`
}

// Schema defines what a command kind accepts.
// This drives validation, prompt instructions and tool descriptions.
type Schema struct {
	Kind        Kind                `json:"type"`
	Description string              `json:"description"`
	Required    []string            `json:"required"`
	Properties  map[string]Property `json:"properties"`

	// Positional lists the fields bound, in order, from pattern captures when the
	// named field is absent. Empty means the kind has no positional form.
	Positional []string `json:"-"`
}

// ChartTypes lists the supported chart types. The first entry is the default.
var ChartTypes = []string{"column", "bar", "line", "pie", "scatter", "area"}

// SortOrders lists the accepted sort orders. The first entry is the default.
var SortOrders = []string{"ascending", "descending"}

// criteriaText is a pseudo-field: the second filter_data capture, "<column> <op> <criteria...>".
const criteriaText = "criteria_text"

var schemas = []Schema{
	{
		Kind:        KindInsertFormula,
		Description: "Write a formula into a cell",
		Required:    []string{"cell", "formula"},
		Properties: map[string]Property{
			"cell":    {Type: "string", Description: "Target cell, e.g. C2"},
			"formula": {Type: "string", Description: "Formula text; a leading = is added when missing"},
		},
	},
	{
		Kind:        KindFormatRange,
		Description: "Apply number format, font and fill options to a range",
		Required:    []string{"range"},
		Properties: map[string]Property{
			"range": {Type: "string", Description: "Target range, e.g. A1:D1"},
			"formatting": {Type: "object", Description: "Options: number_format, font_bold, italic, underline, font_color, fill_color"},
		},
	},
	{
		Kind:        KindCreateChart,
		Description: "Create a chart from a data range",
		Required:    []string{"data_range"},
		Positional:  []string{"chart_type", "data_range"},
		Properties: map[string]Property{
			"data_range": {Type: "string", Description: "Source data including the header row"},
			"chart_type": {Type: "string", Description: "Chart type", Default: ChartTypes[0], Enum: anySlice(ChartTypes)},
			"position":   {Type: "string", Description: "Top-left anchor cell", Default: "A10"},
			"title":      {Type: "string", Description: "Chart title"},
		},
	},
	{
		Kind:        KindGetData,
		Description: "Read the values of a range",
		Required:    []string{"range"},
		Properties: map[string]Property{
			"range": {Type: "string", Description: "Range to read"},
		},
	},
	{
		Kind:        KindInsertData,
		Description: "Write a value, a row or a table of values starting at a range",
		Required:    []string{"range", "data"},
		Positional:  []string{"data", "range"},
		Properties: map[string]Property{
			"range": {Type: "string", Description: "Target range or top-left cell"},
			"data":  {Type: "array", Description: "Scalar, list (one row) or list of rows"},
		},
	},
	{
		Kind:        KindSortData,
		Description: "Sort the rows of a range by one column; the first row is a header",
		Required:    []string{"range", "sort_column"},
		Positional:  []string{"range", "sort_column"},
		Properties: map[string]Property{
			"range":       {Type: "string", Description: "Range including the header row"},
			"sort_column": {Type: "string", Description: "1-based index within the range, column letter, or header name"},
			"sort_order":  {Type: "string", Description: "Sort order", Default: SortOrders[0], Enum: anySlice(SortOrders)},
		},
	},
	{
		Kind:        KindFilterData,
		Description: "Apply an auto-filter on one column of a range",
		Required:    []string{"range", "filter_column", "criteria"},
		Positional:  []string{"range", criteriaText},
		Properties: map[string]Property{
			"range":         {Type: "string", Description: "Range including the header row"},
			"filter_column": {Type: "string", Description: "1-based index within the range, column letter, or header name"},
			"criteria":      {Type: "string", Description: "Value to keep, optionally prefixed by an operator such as >10"},
		},
	},
}

var schemaIndex = func() map[Kind]Schema {
	idx := make(map[Kind]Schema, len(schemas))
	for _, s := range schemas {
		idx[s.Kind] = s
	}
	return idx
}()

// Lookup returns the schema of a recognized kind.
func Lookup(kind Kind) (Schema, bool) {
	s, ok := schemaIndex[kind]
	return s, ok
}

// IsKnown reports whether typ names a recognized kind.
func IsKnown(typ string) bool {
	_, ok := schemaIndex[Kind(typ)]
	return ok
}

// Schemas returns every recognized kind in a stable order.
func Schemas() []Schema {
	out := make([]Schema, len(schemas))
	copy(out, schemas)
	return out
}

// Kinds returns the recognized kind names in a stable order.
func Kinds() []Kind {
	out := make([]Kind, len(schemas))
	for i, s := range schemas {
		out[i] = s.Kind
	}
	return out
}

func anySlice(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}
