package tactile

import (
	"context"
	"errors"
	"strings"
	"testing"

	"gridnerd/internal/tools"
	"gridnerd/internal/workbook"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func salesSurface() *workbook.MemorySurface {
	mem := workbook.NewMemorySurface("sales.xlsx", "Sheet1")
	mem.Load([][]any{
		{"Region", "Revenue"},
		{"North", 30.0},
		{"South", 10.0},
		{"East", 20.0},
	})
	return mem
}

func newTestDispatcher(s workbook.Surface) *Dispatcher {
	return NewDispatcher(workbook.NewConnection(s))
}

func cmd(kind tools.Kind, params map[string]any) tools.Command {
	return tools.NewCommand(kind, params)
}

func TestDispatch_ValidationLeavesSurfaceUntouched(t *testing.T) {
	mem := salesSurface()
	d := newTestDispatcher(mem)

	for _, c := range []tools.Command{
		cmd(tools.KindInsertFormula, map[string]any{"cell": "B2"}),
		{Type: "create_formula", Params: map[string]any{}},
		{Params: map[string]any{"cell": "A1"}},
		cmd(tools.KindFilterData, map[string]any{"range": "A1:B4", "filter_column": "Region", "criteria": ""}),
	} {
		res := d.Dispatch(context.Background(), c)
		assert.Equal(t, StatusError, res.Status, c.Describe())
		assert.NotEmpty(t, res.Error)
		assert.Equal(t, c.Type, res.Type)
	}
	assert.Empty(t, mem.Calls())
}

func TestDispatch_UnknownTypeMessage(t *testing.T) {
	d := newTestDispatcher(salesSurface())
	res := d.Dispatch(context.Background(), tools.Command{Type: "create_formula", Params: map[string]any{}})
	assert.Equal(t, "unrecognized command type: create_formula", res.Error)
}

func TestDispatchBatch_IsolatesFailures(t *testing.T) {
	mem := salesSurface()
	boom := errors.New("boom")
	mem.Fail(workbook.OpApplyFormatting, boom)
	d := newTestDispatcher(mem)

	cmds := []tools.Command{
		cmd(tools.KindInsertFormula, map[string]any{"cell": "B5", "formula": "SUM(B2:B4)"}),
		cmd(tools.KindFormatRange, map[string]any{"range": "A1:B1", "formatting": map[string]any{"bold": true}}),
		{Type: "do_magic", Params: map[string]any{}},
		cmd(tools.KindGetData, map[string]any{"range": "A1:B2"}),
	}
	results, err := d.DispatchBatch(context.Background(), cmds)
	require.NoError(t, err)
	require.Len(t, results, len(cmds))

	assert.Equal(t, StatusSuccess, results[0].Status)
	assert.Equal(t, "=SUM(B2:B4)", mem.Formula("B5"))

	assert.Equal(t, StatusError, results[1].Status)
	assert.Equal(t, "error executing format_range command: boom", results[1].Error)

	assert.Equal(t, StatusError, results[2].Status)
	assert.Equal(t, "do_magic", results[2].Type)

	assert.Equal(t, StatusSuccess, results[3].Status)
	assert.Equal(t, [][]any{{"Region", "Revenue"}, {"North", 30.0}}, results[3].Data)

	stats := d.Stats()
	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 2, stats.Succeeded)
	assert.Equal(t, 2, stats.Failed)
	assert.Equal(t, 1, stats.ByType["do_magic"])
}

func TestDispatchBatch_ConnectionLossAbortsRemaining(t *testing.T) {
	mem := salesSurface()
	mem.SetUnreachable(true)
	d := newTestDispatcher(mem)

	cmds := []tools.Command{
		cmd(tools.KindGetData, map[string]any{"range": "A1"}),
		cmd(tools.KindGetData, map[string]any{"range": "A2"}),
		cmd(tools.KindGetData, map[string]any{"range": "A3"}),
	}
	results, err := d.DispatchBatch(context.Background(), cmds)
	assert.True(t, workbook.IsConnectionError(err))
	require.Len(t, results, 3)
	for _, res := range results {
		assert.Equal(t, StatusError, res.Status)
		assert.True(t, strings.HasPrefix(res.Error, "not connected to workbook: "), res.Error)
	}
	assert.Equal(t, []string{workbook.OpConnect}, mem.Calls(), "one connection attempt for the whole batch")
}

func TestDispatchBatch_ConnectionLostMidBatch(t *testing.T) {
	mem := salesSurface()
	lost := &workbook.ConnectionError{Op: "set_formula", Err: errors.New("host went away")}
	mem.Fail(workbook.OpSetFormula, lost)
	d := newTestDispatcher(mem)

	results, err := d.DispatchBatch(context.Background(), []tools.Command{
		cmd(tools.KindGetData, map[string]any{"range": "A1"}),
		cmd(tools.KindInsertFormula, map[string]any{"cell": "C2", "formula": "=B2*2"}),
		cmd(tools.KindGetData, map[string]any{"range": "A2"}),
	})
	require.ErrorIs(t, err, workbook.ErrNotConnected)
	require.Len(t, results, 3)
	assert.Equal(t, StatusSuccess, results[0].Status)
	assert.Equal(t, StatusError, results[1].Status)
	assert.Equal(t, StatusError, results[2].Status)
	assert.Equal(t, err.Error(), results[2].Error)
	calls := mem.Calls()
	assert.Equal(t, workbook.OpSetFormula, calls[len(calls)-1], "third command never reached the surface")
}

func TestDispatch_ReconnectsDroppedSession(t *testing.T) {
	mem := salesSurface()
	conn := workbook.NewConnection(mem)
	d := NewDispatcher(conn)
	conn.Connect(context.Background())

	mem.Drop()
	res := d.Dispatch(context.Background(), cmd(tools.KindGetData, map[string]any{"range": "A1"}))
	assert.Equal(t, StatusSuccess, res.Status)
}

func TestDispatchBatch_CancelledContext(t *testing.T) {
	mem := salesSurface()
	d := newTestDispatcher(mem)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := d.DispatchBatch(ctx, []tools.Command{
		cmd(tools.KindGetData, map[string]any{"range": "A1"}),
		cmd(tools.KindGetData, map[string]any{"range": "A2"}),
	})
	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, results, 2)
	for _, res := range results {
		assert.Equal(t, StatusError, res.Status)
		assert.Equal(t, context.Canceled.Error(), res.Error)
	}
	assert.Empty(t, mem.Calls())
}

// spySurface records the screen-updating flag seen by SetFormula and panics on ReadRange.
type spySurface struct {
	*workbook.MemorySurface
	seen []bool
}

func (s *spySurface) SetFormula(ctx context.Context, cell, formula string) error {
	s.seen = append(s.seen, s.ScreenUpdating())
	return s.MemorySurface.SetFormula(ctx, cell, formula)
}

func (s *spySurface) ReadRange(context.Context, string) ([][]any, error) {
	panic("surface exploded")
}

func TestDispatch_ScreenUpdatingForcedAndRestored(t *testing.T) {
	spy := &spySurface{MemorySurface: salesSurface()}
	spy.SetScreenUpdating(false)
	d := newTestDispatcher(spy)

	res := d.Dispatch(context.Background(), cmd(tools.KindInsertFormula, map[string]any{"cell": "C1", "formula": "=1"}))
	require.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, []bool{true}, spy.seen)
	assert.False(t, spy.ScreenUpdating())
}

func TestDispatch_RecoversPanics(t *testing.T) {
	spy := &spySurface{MemorySurface: salesSurface()}
	spy.SetScreenUpdating(false)
	d := newTestDispatcher(spy)

	results, err := d.DispatchBatch(context.Background(), []tools.Command{
		cmd(tools.KindGetData, map[string]any{"range": "A1"}),
		cmd(tools.KindInsertFormula, map[string]any{"cell": "C1", "formula": "=1"}),
	})
	require.NoError(t, err, "a panic is isolated to its command")
	require.Len(t, results, 2)
	assert.Equal(t, StatusError, results[0].Status)
	assert.Equal(t, "error executing get_data command: panic: surface exploded", results[0].Error)
	assert.Equal(t, "get_data", results[0].Type)
	assert.Equal(t, StatusSuccess, results[1].Status)
	assert.False(t, spy.ScreenUpdating(), "restored after panic")
}

func TestDispatch_CreateChartDefaults(t *testing.T) {
	mem := salesSurface()
	d := newTestDispatcher(mem)

	res := d.Dispatch(context.Background(), cmd(tools.KindCreateChart, map[string]any{"data_range": "A1:B4"}))
	assert.Equal(t, StatusSuccess, res.Status)

	res = d.Dispatch(context.Background(), cmd(tools.KindCreateChart, map[string]any{"data_range": "A1:B4", "chart_type": "radar", "position": "D2"}))
	assert.Equal(t, StatusWarning, res.Status)
	assert.True(t, res.Succeeded())
	assert.Empty(t, res.Error)

	res = d.Dispatch(context.Background(), tools.Command{Type: "create_chart", Params: map[string]any{}, Positional: []string{"a line", "A1:B4"}})
	assert.Equal(t, StatusSuccess, res.Status)

	charts := mem.Charts()
	require.Len(t, charts, 3)
	assert.Equal(t, workbook.ChartSpec{DataRange: "A1:B4", Type: "column", Position: DefaultChartPosition}, charts[0])
	assert.Equal(t, workbook.ChartSpec{DataRange: "A1:B4", Type: "column", Position: "D2"}, charts[1])
	assert.Equal(t, "line", charts[2].Type)
}

func TestDispatch_SortAndFilter(t *testing.T) {
	ctx := context.Background()
	mem := salesSurface()
	d := newTestDispatcher(mem)

	res := d.Dispatch(ctx, cmd(tools.KindSortData, map[string]any{"range": "A1:B4", "sort_column": "revenue", "sort_order": "desc"}))
	require.Equal(t, StatusSuccess, res.Status, res.Error)
	assert.Equal(t, "North", mem.Value("A2"))
	assert.Equal(t, "South", mem.Value("A4"))

	res = d.Dispatch(ctx, cmd(tools.KindSortData, map[string]any{"range": "A1:B4", "sort_column": 1.0, "sort_order": "sideways"}))
	assert.Equal(t, StatusWarning, res.Status)
	assert.Equal(t, "East", mem.Value("A2"))

	res = d.Dispatch(ctx, tools.Command{Type: "filter_data", Params: map[string]any{}, Positional: []string{"A1:B4", "Region equals North."}})
	require.Equal(t, StatusSuccess, res.Status, res.Error)
	filters := mem.Filters()
	require.Len(t, filters, 1)
	assert.Equal(t, workbook.FilterSpec{Range: "A1:B4", Column: 1, Criteria: "North"}, filters[0])

	res = d.Dispatch(ctx, cmd(tools.KindSortData, map[string]any{"range": "A1:B4", "sort_column": "Profit"}))
	assert.Equal(t, StatusError, res.Status)
	assert.Contains(t, res.Error, `column "Profit" not found in A1:B4`)
}

func TestDispatch_WholeSheetRangesRejected(t *testing.T) {
	ctx := context.Background()
	mem := salesSurface()
	d := newTestDispatcher(mem)

	const sheet = "A1:XFD1048576"
	bold := map[string]any{"bold": true}
	for _, c := range []tools.Command{
		cmd(tools.KindGetData, map[string]any{"range": sheet}),
		cmd(tools.KindInsertFormula, map[string]any{"cell": sheet, "formula": "=1"}),
		cmd(tools.KindFormatRange, map[string]any{"range": sheet, "formatting": bold}),
		cmd(tools.KindSortData, map[string]any{"range": sheet, "sort_column": 1.0}),
		cmd(tools.KindFilterData, map[string]any{"range": sheet, "filter_column": "Region", "criteria": "North"}),
	} {
		res := d.Dispatch(ctx, c)
		require.Equal(t, StatusError, res.Status, c.Describe())
		assert.Contains(t, res.Error, "range too large", c.Describe())
	}
	assert.Equal(t, "North", mem.Value("A2"))
	assert.Empty(t, mem.Formula("A1"))
	assert.Empty(t, mem.Filters())
}

func TestDispatch_InsertData(t *testing.T) {
	ctx := context.Background()
	mem := salesSurface()
	d := newTestDispatcher(mem)

	res := d.Dispatch(ctx, tools.Command{Type: "insert_data", Params: map[string]any{}, Positional: []string{"42", "D1"}})
	require.Equal(t, StatusSuccess, res.Status, res.Error)
	assert.Equal(t, 42.0, mem.Value("D1"))

	res = d.Dispatch(ctx, cmd(tools.KindInsertData, map[string]any{"range": "D2", "data": []any{[]any{"a", "b"}, []any{1.0, 2.0}}}))
	require.Equal(t, StatusSuccess, res.Status, res.Error)
	assert.Equal(t, "b", mem.Value("E2"))
	assert.Equal(t, 2.0, mem.Value("E3"))
}

func TestResolveColumn(t *testing.T) {
	ctx := context.Background()
	mem := workbook.NewMemorySurface("b.xlsx", "Sheet1")
	mem.Load([][]any{{nil, nil, "NaN", "Tax", "Total"}})
	_, err := mem.Connect(ctx)
	require.NoError(t, err)
	rng, err := workbook.ParseRange("C1:E9")
	require.NoError(t, err)

	tests := []struct {
		ref     string
		want    int
		wantErr bool
	}{
		{"1", 1, false},
		{"3", 3, false},
		{"2.0", 2, false},
		{"4", 0, true},
		{"0", 0, true},
		{"D", 2, false},
		{"e", 3, false},
		{"A", 0, true},
		{"tax", 2, false},
		{" Total ", 3, false},
		{"nan", 1, false},
		{"Inf", 0, true},
		{"Price", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		got, err := ResolveColumn(ctx, mem, rng, tt.ref)
		if tt.wantErr {
			assert.Error(t, err, tt.ref)
			continue
		}
		require.NoError(t, err, tt.ref)
		assert.Equal(t, tt.want, got, tt.ref)
	}
}

func TestToMatrix(t *testing.T) {
	tests := []struct {
		name    string
		in      any
		want    [][]any
		wantErr bool
	}{
		{"scalar", 7.0, [][]any{{7.0}}, false},
		{"numeric string", "42", [][]any{{42.0}}, false},
		{"text", "hello", [][]any{{"hello"}}, false},
		{"nan stays text", "NaN", [][]any{{"NaN"}}, false},
		{"inf stays text", "Inf", [][]any{{"Inf"}}, false},
		{"signed infinity stays text", "-infinity", [][]any{{"-infinity"}}, false},
		{"overflow stays text", "1e999", [][]any{{"1e999"}}, false},
		{"padded number", " 3.5 ", [][]any{{3.5}}, false},
		{"row", []any{1.0, "x"}, [][]any{{1.0, "x"}}, false},
		{"table", []any{[]any{1.0}, []any{2.0, 3.0}}, [][]any{{1.0}, {2.0, 3.0}}, false},
		{"mixed", []any{[]any{1.0}, 2.0}, [][]any{{1.0}, {2.0}}, false},
		{"json text", "[[1,2],[3,4]]", [][]any{{1.0, 2.0}, {3.0, 4.0}}, false},
		{"empty list", []any{}, nil, true},
		{"object", map[string]any{"a": 1}, nil, true},
		{"nil", nil, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToMatrix(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExecutionResult(t *testing.T) {
	assert.True(t, Success("ok", nil).Succeeded())
	assert.True(t, Warning("meh", nil).Succeeded())

	f := Failure(nil)
	assert.False(t, f.Succeeded())
	assert.Equal(t, "unknown error", f.Error)

	err := &ExecutionError{Type: "get_data", Err: workbook.ErrInvalidAddress}
	assert.ErrorIs(t, err, ErrExecution)
	assert.ErrorIs(t, err, workbook.ErrInvalidAddress)
}
