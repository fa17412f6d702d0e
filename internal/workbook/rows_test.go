package workbook

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSortRows(t *testing.T) {
	rows := [][]any{
		{"pear", 3.0},
		{"Apple", nil},
		{"fig", "10"},
		{"apple", 2.0},
		{"kiwi", "n/a"},
	}

	asc := cloneRows(rows)
	SortRows(asc, 1, true)
	assert.Equal(t, []any{"apple", "pear", "fig", "kiwi", "Apple"}, column(asc, 0))

	desc := cloneRows(rows)
	SortRows(desc, 1, false)
	assert.Equal(t, []any{"kiwi", "fig", "pear", "apple", "Apple"}, column(desc, 0))

	byName := cloneRows(rows)
	SortRows(byName, 0, true)
	// Stable: "Apple" stays ahead of "apple".
	assert.Equal(t, []any{"Apple", "apple", "fig", "kiwi", "pear"}, column(byName, 0))
}

func TestCriterion(t *testing.T) {
	tests := []struct {
		criteria string
		value    any
		want     bool
	}{
		{"North", "north", true},
		{"North", "South", false},
		{">10", 12.0, true},
		{">10", "9", false},
		{">=10", 10, true},
		{"<5", 4.5, true},
		{"<>East", "West", true},
		{"!=East", "east", false},
		{"=N*", "Northwest", true},
		{"?est", "West", true},
		{"<>N*", "North", false},
		{"100", "100", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseCriterion(tt.criteria).Match(tt.value), "%s vs %v", tt.criteria, tt.value)
	}
}

func TestCriterion_Expression(t *testing.T) {
	assert.Equal(t, "x == North", ParseCriterion("North").Expression())
	assert.Equal(t, "x >= 10", ParseCriterion(">= 10").Expression())
	assert.Equal(t, "x != East", ParseCriterion("<>East").Expression())
}

func cloneRows(rows [][]any) [][]any {
	out := make([][]any, len(rows))
	for i, r := range rows {
		out[i] = append([]any(nil), r...)
	}
	return out
}

func column(rows [][]any, i int) []any {
	out := make([]any, len(rows))
	for r, row := range rows {
		out[r] = row[i]
	}
	return out
}
