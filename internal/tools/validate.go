package tools

import (
	"fmt"
	"strconv"
	"strings"
)

// Validate checks cmd against the schema of its kind and returns the typed operation.
// The returned error is always a *ValidationError.
func Validate(cmd Command) (Op, error) {
	if strings.TrimSpace(cmd.Type) == "" {
		return nil, &ValidationError{Err: ErrUnknownKind}
	}
	schema, ok := Lookup(cmd.Kind())
	if !ok {
		return nil, &ValidationError{Type: cmd.Type, Err: ErrUnknownKind}
	}

	bound := Bind(cmd)
	for _, field := range schema.Required {
		if isMissing(bound.Params[field]) {
			return nil, &ValidationError{Type: cmd.Type, Field: field, Err: ErrMissingRequiredArg}
		}
	}

	op, err := decode(bound)
	if err != nil {
		return nil, err
	}
	return op, nil
}

// Bind returns a copy of cmd with positional captures bound to the named fields of its
// kind. Named fields that are already present are never overridden.
func Bind(cmd Command) Command {
	out := Command{Type: cmd.Type, Params: make(map[string]any, len(cmd.Params)+2), Positional: cmd.Positional}
	for k, v := range cmd.Params {
		out.Params[k] = v
	}

	schema, ok := Lookup(cmd.Kind())
	if !ok || len(cmd.Positional) == 0 {
		return out
	}

	for i, field := range schema.Positional {
		if i >= len(cmd.Positional) {
			break
		}
		val := trimCapture(cmd.Positional[i])
		if field == criteriaText {
			bindCriteria(out.Params, val)
			continue
		}
		if isMissing(out.Params[field]) {
			out.Params[field] = val
		}
	}
	return out
}

// bindCriteria splits "<column> <op> <criteria...>", e.g. "region equals North".
func bindCriteria(params map[string]any, text string) {
	words := strings.Fields(text)
	if len(words) < 3 {
		return
	}
	if isMissing(params["filter_column"]) {
		params["filter_column"] = words[0]
	}
	if isMissing(params["criteria"]) {
		params["criteria"] = strings.Join(words[2:], " ")
	}
}

func trimCapture(s string) string {
	return strings.TrimRight(strings.TrimSpace(s), ".,;!")
}

func isMissing(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	default:
		return false
	}
}

func decode(cmd Command) (Op, error) {
	d := decoder{cmd: cmd}
	var op Op
	switch cmd.Kind() {
	case KindInsertFormula:
		op = InsertFormula{Cell: d.str("cell"), Formula: d.str("formula")}
	case KindFormatRange:
		op = FormatRange{Range: d.str("range"), Format: d.format()}
	case KindCreateChart:
		op = CreateChart{
			DataRange: d.str("data_range"),
			ChartType: d.optStr("chart_type"),
			Position:  d.optStr("position"),
			Title:     d.optStr("title"),
		}
	case KindGetData:
		op = GetData{Range: d.str("range")}
	case KindInsertData:
		op = InsertData{Range: d.str("range"), Data: cmd.Params["data"]}
	case KindSortData:
		op = SortData{Range: d.str("range"), Column: d.str("sort_column"), Order: d.optStr("sort_order")}
	case KindFilterData:
		op = FilterData{Range: d.str("range"), Column: d.str("filter_column"), Criteria: d.str("criteria")}
	default:
		return nil, &ValidationError{Type: cmd.Type, Err: ErrUnknownKind}
	}
	if d.err != nil {
		return nil, d.err
	}
	return op, nil
}

// decoder reads typed fields and keeps the first error.
type decoder struct {
	cmd Command
	err error
}

func (d *decoder) fail(field string) {
	if d.err == nil {
		d.err = &ValidationError{Type: d.cmd.Type, Field: field, Err: ErrInvalidArgType}
	}
}

func (d *decoder) str(field string) string {
	s, ok := scalarString(d.cmd.Params[field])
	if !ok {
		d.fail(field)
		return ""
	}
	return strings.TrimSpace(s)
}

func (d *decoder) optStr(field string) string {
	if isMissing(d.cmd.Params[field]) {
		return ""
	}
	return d.str(field)
}

// format collects options from "formatting" or "format_options", then from top-level
// keys, then from the "format_type" shorthand.
func (d *decoder) format() FormatSpec {
	opts := map[string]any{}
	for _, key := range []string{"format_options", "formatting"} {
		if v, ok := d.cmd.Params[key]; ok && v != nil {
			m, ok := asStringMap(v)
			if !ok {
				d.fail(key)
				return FormatSpec{}
			}
			for k, val := range m {
				opts[k] = val
			}
		}
	}
	for k, v := range d.cmd.Params {
		if _, exists := opts[k]; !exists {
			opts[k] = v
		}
	}

	var spec FormatSpec
	if v, ok := opts["number_format"]; ok {
		s, ok := scalarString(v)
		if !ok {
			d.fail("number_format")
		}
		spec.NumberFormat = s
	}
	spec.Bold = d.flag(opts, "font_bold", "bold")
	spec.Italic = d.flag(opts, "italic", "font_italic")
	spec.Underline = d.flag(opts, "underline", "font_underline")
	spec.FontColor = d.color(opts, "font_color")
	spec.FillColor = d.color(opts, "fill_color", "color")

	if ft, ok := scalarString(opts["format_type"]); ok {
		on := true
		switch strings.ToLower(strings.TrimSpace(ft)) {
		case "bold":
			if spec.Bold == nil {
				spec.Bold = &on
			}
		case "italic":
			if spec.Italic == nil {
				spec.Italic = &on
			}
		case "underline":
			if spec.Underline == nil {
				spec.Underline = &on
			}
		}
	}
	return spec
}

func (d *decoder) flag(opts map[string]any, keys ...string) *bool {
	for _, k := range keys {
		v, ok := opts[k]
		if !ok || v == nil {
			continue
		}
		switch x := v.(type) {
		case bool:
			return &x
		case string:
			b, err := strconv.ParseBool(strings.TrimSpace(x))
			if err != nil {
				d.fail(k)
				return nil
			}
			return &b
		default:
			d.fail(k)
			return nil
		}
	}
	return nil
}

func (d *decoder) color(opts map[string]any, keys ...string) string {
	for _, k := range keys {
		v, ok := opts[k]
		if !ok || v == nil {
			continue
		}
		c, err := ParseColor(v)
		if err != nil {
			d.fail(k)
			return ""
		}
		return c
	}
	return ""
}

var namedColors = map[string]string{
	"black":  "000000",
	"white":  "FFFFFF",
	"red":    "FF0000",
	"green":  "00FF00",
	"blue":   "0000FF",
	"yellow": "FFFF00",
	"orange": "FFA500",
	"gray":   "808080",
	"grey":   "808080",
	"purple": "800080",
}

// ParseColor normalizes a color to RRGGBB. It accepts "#RRGGBB", "RRGGBB", a few color
// names, an [r, g, b] list, or an integer in the spreadsheet BGR encoding (R + G*256 + B*65536).
func ParseColor(v any) (string, error) {
	switch x := v.(type) {
	case string:
		s := strings.TrimPrefix(strings.TrimSpace(x), "#")
		if named, ok := namedColors[strings.ToLower(s)]; ok {
			return named, nil
		}
		if len(s) == 6 {
			if _, err := strconv.ParseUint(s, 16, 32); err == nil {
				return strings.ToUpper(s), nil
			}
		}
		return "", fmt.Errorf("%w: color %q", ErrInvalidArgType, x)
	case []any:
		if len(x) != 3 {
			return "", fmt.Errorf("%w: color needs 3 components", ErrInvalidArgType)
		}
		var rgb [3]int
		for i, c := range x {
			s, ok := scalarString(c)
			n, err := strconv.Atoi(s)
			if !ok || err != nil || n < 0 || n > 255 {
				return "", fmt.Errorf("%w: color component %v", ErrInvalidArgType, c)
			}
			rgb[i] = n
		}
		return fmt.Sprintf("%02X%02X%02X", rgb[0], rgb[1], rgb[2]), nil
	default:
		s, ok := scalarString(v)
		n, err := strconv.ParseInt(s, 10, 64)
		if !ok || err != nil || n < 0 || n > 0xFFFFFF {
			return "", fmt.Errorf("%w: color %v", ErrInvalidArgType, v)
		}
		r, g, b := n&0xFF, (n>>8)&0xFF, (n>>16)&0xFF
		return fmt.Sprintf("%02X%02X%02X", r, g, b), nil
	}
}

// NormalizeChartType maps free text such as "a bar" or "Line" to a supported chart type.
// It reports false and returns the default when nothing matches.
func NormalizeChartType(s string) (string, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ChartTypes[0], true
	}
	for _, word := range strings.Fields(s) {
		for _, t := range ChartTypes {
			if word == t {
				return t, true
			}
		}
	}
	return ChartTypes[0], false
}

// NormalizeSortOrder maps "asc", "descending" and similar to a supported order.
// It reports false and returns the default when nothing matches.
func NormalizeSortOrder(s string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "asc", "ascending", "up", "a-z":
		return SortOrders[0], true
	case "desc", "descending", "down", "z-a":
		return SortOrders[1], true
	default:
		return SortOrders[0], false
	}
}
