package articulation

import (
	"testing"

	"gridnerd/internal/tools"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipeline_Extract(t *testing.T) {
	tests := []struct {
		name     string
		plan     string
		want     []tools.Command
		wantTier string
	}{
		{
			name: "fenced json object",
			plan: "Explanation: total the column.\n\n```json\n{\"type\":\"insert_formula\",\"cell\":\"B2\",\"formula\":\"=SUM(A1:A10)\"}\n```\n",
			want: []tools.Command{
				{Type: "insert_formula", Params: map[string]any{"cell": "B2", "formula": "=SUM(A1:A10)"}},
			},
			wantTier: TierStructured,
		},
		{
			name: "untagged block with list, elements without type skipped",
			plan: "```\n[{\"type\":\"get_data\",\"range\":\"A1:B2\"}, {\"range\":\"C1\"}, 7, {\"type\":\"format_range\",\"range\":\"A1\"}]\n```",
			want: []tools.Command{
				{Type: "get_data", Params: map[string]any{"range": "A1:B2"}},
				{Type: "format_range", Params: map[string]any{"range": "A1"}},
			},
			wantTier: TierStructured,
		},
		{
			name: "several blocks keep order, bad blocks skipped",
			plan: "First:\n```json\n{\"type\":\"get_data\",\"range\":\"A1\"}\n```\n" +
				"Broken:\n```json\n{\"type\": \n```\n" +
				"No type:\n```json\n{\"cell\":\"A1\"}\n```\n" +
				"Then:\n```json\n{\"type\":\"sort_data\",\"range\":\"A1:C9\",\"sort_column\":\"B\"}\n```",
			want: []tools.Command{
				{Type: "get_data", Params: map[string]any{"range": "A1"}},
				{Type: "sort_data", Params: map[string]any{"range": "A1:C9", "sort_column": "B"}},
			},
			wantTier: TierStructured,
		},
		{
			name: "yaml block",
			plan: "```yaml\n- type: create_chart\n  data_range: A1:B5\n  chart_type: line\n```",
			want: []tools.Command{
				{Type: "create_chart", Params: map[string]any{"data_range": "A1:B5", "chart_type": "line"}},
			},
			wantTier: TierStructured,
		},
		{
			name: "sort template",
			plan: "sort the sales table by revenue",
			want: []tools.Command{
				{Type: "sort_data", Params: map[string]any{}, Positional: []string{"the sales table", "revenue"}},
			},
			wantTier: TierPattern,
		},
		{
			name: "two templates in order of the table",
			plan: "Filter A1:D20 by region equals North\nInsert 42 into B2",
			want: []tools.Command{
				{Type: "insert_data", Params: map[string]any{}, Positional: []string{"42", "B2"}},
				{Type: "filter_data", Params: map[string]any{}, Positional: []string{"A1:D20", "region equals North"}},
			},
			wantTier: TierPattern,
		},
		{
			name: "pattern tier wins over heuristic",
			plan: "Put the total in C5 using =SUM(C1:C4)",
			want: []tools.Command{
				{Type: "insert_data", Params: map[string]any{}, Positional: []string{"the total", "C5 using =SUM(C1:C4)"}},
			},
			wantTier: TierPattern,
		},
		{
			name: "heuristic only",
			plan: "Cell D7 should hold =AVERAGE(D1:D6)\n",
			want: []tools.Command{
				{Type: "insert_formula", Params: map[string]any{"cell": "D7", "formula": "=AVERAGE(D1:D6)"}},
			},
			wantTier: TierHeuristic,
		},
		{
			name:     "empty plan",
			plan:     "",
			want:     nil,
			wantTier: "",
		},
		{
			name:     "cell without formula",
			plan:     "Look at B2 please.",
			want:     nil,
			wantTier: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPipeline()
			got := p.Extract(tt.plan)
			if diff := cmp.Diff(tt.want, got.Commands); diff != "" {
				t.Errorf("Extract() mismatch (-want +got):\n%s", diff)
			}
			assert.Equal(t, tt.wantTier, got.Tier)
		})
	}
}

func TestPipeline_StructuredSuppressesPatterns(t *testing.T) {
	plan := "I will sort A1:C10 by Sales and insert 5 into D1.\n\n" +
		"```json\n{\"type\":\"get_data\",\"range\":\"A1:C10\"}\n```"

	got := ExtractCommands(plan)
	require.Len(t, got, 1)
	assert.Equal(t, "get_data", got[0].Type)
}

func TestPipeline_Stats(t *testing.T) {
	p := NewPipeline()
	p.Extract("```json\n{\"type\":\"get_data\",\"range\":\"A1\"}\n```")
	p.Extract("sort A1:B3 by B")
	p.Extract("nothing here")

	stats := p.Stats()
	assert.Equal(t, 3, stats.TotalProcessed)
	assert.Equal(t, 1, stats.Empty)
	assert.Equal(t, 1, stats.ByTier[TierStructured])
	assert.Equal(t, 1, stats.ByTier[TierPattern])
	assert.Equal(t, 2, stats.Commands)

	// Stats returns a copy.
	stats.ByTier[TierHeuristic] = 99
	assert.Zero(t, p.Stats().ByTier[TierHeuristic])

	p.ResetStats()
	assert.Zero(t, p.Stats().TotalProcessed)
}

type fixedExtractor struct {
	name string
	cmds []tools.Command
	hits *int
}

func (f fixedExtractor) Name() string { return f.name }

func (f fixedExtractor) Extract(string) []tools.Command {
	*f.hits++
	return f.cmds
}

func TestPipeline_StopsAtFirstNonEmptyTier(t *testing.T) {
	var first, second, third int
	p := NewPipeline(
		fixedExtractor{name: "a", hits: &first},
		fixedExtractor{name: "b", hits: &second, cmds: []tools.Command{{Type: "get_data"}}},
		fixedExtractor{name: "c", hits: &third, cmds: []tools.Command{{Type: "format_range"}}},
	)

	got := p.Extract("anything")
	assert.Equal(t, "b", got.Tier)
	assert.Equal(t, 1, first)
	assert.Equal(t, 1, second)
	assert.Equal(t, 0, third)
}

func TestBlockExtractor_InlineFence(t *testing.T) {
	got := BlockExtractor{}.Extract("Run ```{\"type\":\"get_data\",\"range\":\"B1\"}``` now")
	require.Len(t, got, 1)
	assert.Equal(t, "B1", got[0].Text("range"))
}

func TestBlockExtractor_TaggedInlineFence(t *testing.T) {
	got := BlockExtractor{}.Extract("Run ```json {\"type\":\"get_data\",\"range\":\"B1\"}``` and ```yaml [{type: format_range, range: A1}]```")
	require.Len(t, got, 2)
	assert.Equal(t, "B1", got[0].Text("range"))
	assert.Equal(t, "format_range", got[1].Type)

	plan := "Plan: ```json {\"type\":\"insert_formula\",\"cell\":\"B2\",\"formula\":\"=SUM(A1:A10)\"}```"
	ext := NewPipeline().Extract(plan)
	assert.Equal(t, TierStructured, ext.Tier)
	want := []tools.Command{{Type: "insert_formula", Params: map[string]any{"cell": "B2", "formula": "=SUM(A1:A10)"}}}
	if diff := cmp.Diff(want, ext.Commands); diff != "" {
		t.Errorf("Extract() mismatch (-want +got):\n%s", diff)
	}
}

func TestPatternExtractor_CaseInsensitive(t *testing.T) {
	got := NewPatternExtractor(DefaultPatterns).Extract("CREATE a Pie CHART FROM A1:B4")
	require.Len(t, got, 1)
	assert.Equal(t, "create_chart", got[0].Type)
	assert.Equal(t, []string{"a Pie", "A1:B4"}, got[0].Positional)
}
