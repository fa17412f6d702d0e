package workbook

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// SortRows stably sorts rows by the 0-based column key. Numbers compare numerically and
// sort before text; text compares case-insensitively; blanks sort last in both orders.
func SortRows(rows [][]any, key int, ascending bool) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := cellAt(rows[i], key), cellAt(rows[j], key)
		ab, bb := isBlank(a), isBlank(b)
		switch {
		case ab && bb:
			return false
		case ab:
			return false
		case bb:
			return true
		}
		c := CompareValues(a, b)
		if ascending {
			return c < 0
		}
		return c > 0
	})
}

// CompareValues orders two cell values.
func CompareValues(a, b any) int {
	af, aNum := toFloat(a)
	bf, bNum := toFloat(b)
	switch {
	case aNum && bNum:
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		}
		return 0
	case aNum:
		return -1
	case bNum:
		return 1
	}
	return strings.Compare(strings.ToLower(textOf(a)), strings.ToLower(textOf(b)))
}

// Criterion is a parsed filter criterion such as ">=10", "<>North" or "East*".
type Criterion struct {
	Op    string // one of = <> > >= < <=
	Value string
}

var criterionOps = []struct{ prefix, op string }{
	{">=", ">="}, {"<=", "<="}, {"<>", "<>"}, {"!=", "<>"}, {"==", "="},
	{">", ">"}, {"<", "<"}, {"=", "="},
}

// ParseCriterion splits an optional comparison operator from the criterion value.
// Without an operator the criterion is an equality test.
func ParseCriterion(s string) Criterion {
	s = strings.TrimSpace(s)
	for _, o := range criterionOps {
		if strings.HasPrefix(s, o.prefix) {
			return Criterion{Op: o.op, Value: strings.TrimSpace(s[len(o.prefix):])}
		}
	}
	return Criterion{Op: "=", Value: s}
}

// Match reports whether a cell value satisfies the criterion. Equality is
// case-insensitive and supports * and ? wildcards.
func (c Criterion) Match(v any) bool {
	want, wantNum := toFloat(c.Value)
	got, gotNum := toFloat(v)
	if wantNum && gotNum {
		switch c.Op {
		case ">":
			return got > want
		case ">=":
			return got >= want
		case "<":
			return got < want
		case "<=":
			return got <= want
		case "<>":
			return got != want
		default:
			return got == want
		}
	}

	text := strings.ToLower(textOf(v))
	target := strings.ToLower(c.Value)
	switch c.Op {
	case "=":
		return wildcardMatch(target, text)
	case "<>":
		return !wildcardMatch(target, text)
	default:
		cmp := strings.Compare(text, target)
		switch c.Op {
		case ">":
			return cmp > 0
		case ">=":
			return cmp >= 0
		case "<":
			return cmp < 0
		default:
			return cmp <= 0
		}
	}
}

// Expression renders the criterion in auto-filter expression syntax, e.g. "x >= 10".
func (c Criterion) Expression() string {
	op := c.Op
	switch op {
	case "=":
		op = "=="
	case "<>":
		op = "!="
	}
	return fmt.Sprintf("x %s %s", op, c.Value)
}

func wildcardMatch(pattern, s string) bool {
	if !strings.ContainsAny(pattern, "*?") {
		return pattern == s
	}
	expr := regexp.QuoteMeta(pattern)
	expr = strings.ReplaceAll(expr, `\*`, ".*")
	expr = strings.ReplaceAll(expr, `\?`, ".")
	re, err := regexp.Compile("^" + expr + "$")
	if err != nil {
		return false
	}
	return re.MatchString(s)
}

func cellAt(row []any, i int) any {
	if i < 0 || i >= len(row) {
		return nil
	}
	return row[i]
}

func isBlank(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case int32:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func textOf(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
