package agent

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"gridnerd/internal/articulation"
	"gridnerd/internal/config"
	"gridnerd/internal/perception"
	"gridnerd/internal/tactile"
	"gridnerd/internal/tools"
	"gridnerd/internal/workbook"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	// The genai SDK pulls in opencensus, which starts a stats worker at init.
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

func salesSurface() *workbook.MemorySurface {
	mem := workbook.NewMemorySurface("sales.xlsx", "Sheet1")
	mem.Load([][]any{
		{"Product", "Qty", "Price"},
		{"Widget", 2.0, 3.0},
		{"Gadget", 5.0, 4.0},
	})
	return mem
}

// fixedLLM returns plan for every prompt and records the prompts it saw.
type fixedLLM struct {
	mu      sync.Mutex
	plan    string
	err     error
	prompts []string
}

func (f *fixedLLM) Generate(_ context.Context, prompt string, _ *perception.Image) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	return f.plan, f.err
}

func (f *fixedLLM) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

func newAgent(llm perception.LLMClient, s workbook.Surface) *Agent {
	return New(Options{LLM: llm, Connection: workbook.NewConnection(s), Version: "test"})
}

func TestRunAutonomousQuery_Success(t *testing.T) {
	mem := salesSurface()
	llm := &fixedLLM{plan: "Explanation: total each row.\n\n" +
		"```json\n{\"type\":\"insert_formula\",\"cell\":\"D2\",\"formula\":\"=B2*C2\"}\n```"}
	a := newAgent(llm, mem)

	report := a.RunAutonomousQuery(context.Background(), "multiply qty by price", nil, nil)

	assert.Equal(t, articulation.ReportSuccess, report.Status)
	assert.Equal(t, "Successfully executed 1 spreadsheet operations.", report.Message)
	assert.Equal(t, []string{"Inserted formula =B2*C2 at D2"}, report.ActionsTaken)
	assert.Equal(t, "total each row.", report.Explanation)
	assert.NotEmpty(t, report.BatchID)
	assert.Equal(t, "=B2*C2", mem.Formula("D2"))

	// The planning prompt carries the workbook context.
	require.Equal(t, 1, llm.calls())
	assert.Contains(t, llm.prompts[0], "sales.xlsx")
	assert.Contains(t, llm.prompts[0], "User Request: multiply qty by price")
}

func TestRunAutonomousQuery_EmptyPlan(t *testing.T) {
	a := newAgent(&fixedLLM{plan: "I'm not sure what to do here."}, salesSurface())

	report := a.RunAutonomousQuery(context.Background(), "make it nicer", nil, nil)

	assert.Equal(t, articulation.ReportWarning, report.Status)
	assert.Equal(t, articulation.NoCommandsMessage, report.Message)
	assert.NotNil(t, report.ActionsTaken)
	assert.Empty(t, report.ActionsTaken)
	assert.NotEmpty(t, report.BatchID)
}

func TestRunAutonomousQuery_PartialSuccess(t *testing.T) {
	mem := salesSurface()
	mem.Fail(workbook.OpApplyFormatting, errors.New("locked"))
	llm := &fixedLLM{plan: "```json\n[" +
		"{\"type\":\"format_range\",\"range\":\"A1:C1\",\"formatting\":{\"bold\":true}}," +
		"{\"type\":\"get_data\",\"range\":\"A1:C3\"}" +
		"]\n```"}
	a := newAgent(llm, mem)

	report := a.RunAutonomousQuery(context.Background(), "bold the header", nil, nil)

	assert.Equal(t, articulation.ReportPartialSuccess, report.Status)
	assert.Equal(t, "Partially completed the request. 1 out of 2 operations succeeded.", report.Message)
	require.Len(t, report.ActionsTaken, 2)
	assert.Equal(t, "Formatted range A1:C1 (Failed: error executing format_range command: locked)", report.ActionsTaken[0])
	assert.Equal(t, "Retrieved data from range A1:C3", report.ActionsTaken[1])
	require.Len(t, report.Results, 2)
	assert.Equal(t, tactile.StatusSuccess, report.Results[1].Status)
}

func TestRunAutonomousQuery_ConnectionLostMidBatch(t *testing.T) {
	mem := salesSurface()
	mem.Fail(workbook.OpSetFormula, &workbook.ConnectionError{Op: "set_formula", Err: errors.New("host went away")})
	llm := &fixedLLM{plan: "```json\n[" +
		"{\"type\":\"get_data\",\"range\":\"A1:C1\"}," +
		"{\"type\":\"insert_formula\",\"cell\":\"D2\",\"formula\":\"=B2*C2\"}," +
		"{\"type\":\"get_data\",\"range\":\"A2:C2\"}" +
		"]\n```"}
	a := newAgent(llm, mem)

	report := a.RunAutonomousQuery(context.Background(), "total each row", nil, nil)

	assert.Equal(t, articulation.ReportError, report.Status)
	assert.Equal(t, "not connected to workbook: set_formula: host went away", report.Message)
	assert.Equal(t, explainNotConnected, report.Explanation)
	require.Len(t, report.Results, 3)
	assert.Equal(t, tactile.StatusSuccess, report.Results[0].Status)
	assert.Equal(t, tactile.StatusError, report.Results[2].Status)
	require.Len(t, report.ActionsTaken, 3)
	assert.Equal(t, "Retrieved data from range A1:C1", report.ActionsTaken[0])
	assert.NotEmpty(t, report.BatchID)
}

func TestRunAutonomousQuery_LLMFailure(t *testing.T) {
	a := newAgent(&fixedLLM{err: errors.New("quota exceeded")}, salesSurface())

	report := a.RunAutonomousQuery(context.Background(), "sum column B", nil, nil)

	assert.Equal(t, articulation.ReportError, report.Status)
	assert.Contains(t, report.Message, "quota exceeded")
	assert.Contains(t, report.Message, perception.ErrAIService.Error())
	assert.Empty(t, report.ActionsTaken)
}

func TestRunAutonomousQuery_NotConfigured(t *testing.T) {
	mem := salesSurface()
	a := newAgent(nil, mem)

	report := a.RunAutonomousQuery(context.Background(), "sum column B", nil, nil)

	assert.Equal(t, articulation.ReportError, report.Status)
	assert.Equal(t, perception.ErrNotConfigured.Error(), report.Message)
	assert.Empty(t, mem.Calls())
	assert.False(t, a.AIConfigured())
}

func TestRunAutonomousQuery_Unreachable(t *testing.T) {
	mem := salesSurface()
	mem.SetUnreachable(true)
	llm := &fixedLLM{plan: "```json\n{\"type\":\"get_data\",\"range\":\"A1\"}\n```"}
	a := newAgent(llm, mem)

	report := a.RunAutonomousQuery(context.Background(), "read A1", nil, nil)

	assert.Equal(t, articulation.ReportError, report.Status)
	assert.Contains(t, report.Message, "not connected to workbook")
	assert.Equal(t, explainNotConnected, report.Explanation)
	assert.Zero(t, llm.calls())
}

func TestRunAutonomousQuery_OverridesWin(t *testing.T) {
	llm := &fixedLLM{plan: "nothing to do"}
	a := newAgent(llm, salesSurface())

	a.RunAutonomousQuery(context.Background(), "hello", map[string]any{workbook.KeyWorkbookName: "override.xlsx"}, nil)

	require.Equal(t, 1, llm.calls())
	assert.Contains(t, llm.prompts[0], "override.xlsx")
	assert.NotContains(t, llm.prompts[0], "sales.xlsx")
}

func TestRunAutonomousQuery_RecoversPanics(t *testing.T) {
	llm := perception.LLMClientFunc(func(context.Context, string, *perception.Image) (string, error) {
		panic("model exploded")
	})
	a := newAgent(llm, salesSurface())

	report := a.RunAutonomousQuery(context.Background(), "anything", nil, nil)

	assert.Equal(t, articulation.ReportError, report.Status)
	assert.Equal(t, "Internal error: model exploded", report.Message)
	assert.NotEmpty(t, report.BatchID)
}

func TestRunAutonomousQuery_Serialized(t *testing.T) {
	var inFlight, peak atomic.Int32
	llm := perception.LLMClientFunc(func(context.Context, string, *perception.Image) (string, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return "```json\n{\"type\":\"get_data\",\"range\":\"A1\"}\n```", nil
	})
	a := newAgent(llm, salesSurface())

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			report := a.RunAutonomousQuery(context.Background(), "read A1", nil, nil)
			assert.Equal(t, articulation.ReportSuccess, report.Status)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), peak.Load())
	assert.Equal(t, 6, a.CheckHealth(context.Background()).Dispatch.Total)
}

func TestRunAutonomousQuery_CancelledWhileWaiting(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	llm := perception.LLMClientFunc(func(context.Context, string, *perception.Image) (string, error) {
		close(started)
		<-release
		return "", nil
	})
	a := newAgent(llm, salesSurface())

	done := make(chan articulation.Report)
	go func() { done <- a.RunAutonomousQuery(context.Background(), "first", nil, nil) }()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report := a.RunAutonomousQuery(ctx, "second", nil, nil)
	assert.Equal(t, articulation.ReportError, report.Status)
	assert.Equal(t, explainCancelled, report.Explanation)

	close(release)
	assert.Equal(t, articulation.ReportWarning, (<-done).Status)
}

func TestAnswerQuery(t *testing.T) {
	llm := &fixedLLM{plan: "Use =SUM(B2:B3)."}
	mem := salesSurface()
	a := newAgent(llm, mem)

	// Not connected yet: no workbook context, no surface calls.
	answer, err := a.AnswerQuery(context.Background(), "how do I total qty?", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "Use =SUM(B2:B3).", answer)
	assert.NotContains(t, llm.prompts[0], "sales.xlsx")
	assert.Empty(t, mem.Calls())

	status := a.Connect(context.Background())
	require.True(t, status.Usable())

	_, err = a.AnswerQuery(context.Background(), "how do I total qty?", map[string]any{"note": "quarterly"}, nil)
	require.NoError(t, err)
	assert.Contains(t, llm.prompts[1], "sales.xlsx")
	assert.Contains(t, llm.prompts[1], "quarterly")
	assert.NotContains(t, mem.Calls(), workbook.OpWriteRange)
}

func TestAnswerQuery_Errors(t *testing.T) {
	_, err := newAgent(nil, salesSurface()).AnswerQuery(context.Background(), "q", nil, nil)
	assert.ErrorIs(t, err, perception.ErrNotConfigured)

	_, err = newAgent(&fixedLLM{err: perception.ErrAIService}, salesSurface()).AnswerQuery(context.Background(), "q", nil, nil)
	assert.ErrorIs(t, err, perception.ErrAIService)

	boom := perception.LLMClientFunc(func(context.Context, string, *perception.Image) (string, error) { panic("boom") })
	_, err = newAgent(boom, salesSurface()).AnswerQuery(context.Background(), "q", nil, nil)
	assert.EqualError(t, err, "internal error: boom")
}

func TestExecuteCommand(t *testing.T) {
	mem := salesSurface()
	a := newAgent(nil, mem)

	res := a.ExecuteCommand(context.Background(), tools.NewCommand(tools.KindGetData, map[string]any{"range": "A1:B2"}))
	require.Equal(t, tactile.StatusSuccess, res.Status)
	assert.Equal(t, [][]any{{"Product", "Qty"}, {"Widget", 2.0}}, res.Data)

	res = a.ExecuteCommand(context.Background(), tools.NewCommand(tools.KindInsertFormula, map[string]any{"cell": "D2"}))
	assert.Equal(t, tactile.StatusError, res.Status)
	assert.Equal(t, "insert_formula", res.Type)
}

func TestCheckHealth(t *testing.T) {
	mem := salesSurface()
	a := newAgent(&fixedLLM{}, mem)

	h := a.CheckHealth(context.Background())
	assert.Equal(t, HealthOK, h.Status)
	assert.True(t, h.Connected)
	assert.Equal(t, "sales.xlsx", h.Connection.WorkbookName)
	assert.True(t, h.AIConfigured)
	assert.Equal(t, "test", h.Version)
	require.NotNil(t, h.Process)
	assert.Positive(t, h.Process.PID)
	assert.Positive(t, h.Process.NumGoroutine)

	mem.SetUnreachable(true)
	h = a.CheckHealth(context.Background())
	assert.Equal(t, HealthDegraded, h.Status)
	assert.False(t, h.Connected)
	assert.Equal(t, workbook.StateError, h.Connection.State)
}

func TestCheckHealth_DuringBatch(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	llm := perception.LLMClientFunc(func(context.Context, string, *perception.Image) (string, error) {
		close(started)
		<-release
		return "", nil
	})
	mem := salesSurface()
	a := newAgent(llm, mem)

	done := make(chan articulation.Report)
	go func() { done <- a.RunAutonomousQuery(context.Background(), "first", nil, nil) }()
	<-started

	before := mem.Calls()
	h := a.CheckHealth(context.Background())
	assert.True(t, h.Connected)
	assert.Equal(t, workbook.StateSuccess, h.Connection.State)
	assert.Equal(t, before, mem.Calls(), "health check must not touch the workbook mid-batch")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	status := a.Connect(ctx)
	assert.Equal(t, workbook.StateError, status.State)
	assert.Contains(t, status.Message, "Request cancelled")
	assert.Equal(t, before, mem.Calls())

	connected := make(chan workbook.ConnectionStatus)
	go func() { connected <- a.Connect(context.Background()) }()
	select {
	case <-connected:
		t.Fatal("Connect ran while a batch held the workbook")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	assert.Equal(t, articulation.ReportWarning, (<-done).Status)
	assert.Equal(t, workbook.StateSuccess, (<-connected).State)
	assert.Contains(t, mem.Calls(), workbook.OpConnect)
}

func TestNewSurface(t *testing.T) {
	cfg := config.DefaultConfig()

	cfg.Workbook.Driver = config.DriverMemory
	s, err := NewSurface(cfg.Workbook)
	require.NoError(t, err)
	assert.IsType(t, &workbook.MemorySurface{}, s)

	cfg.Workbook.Driver = config.DriverXLSX
	s, err = NewSurface(cfg.Workbook)
	require.NoError(t, err)
	assert.IsType(t, &workbook.XLSXSurface{}, s)

	cfg.Workbook.Driver = "com"
	_, err = NewSurface(cfg.Workbook)
	assert.Error(t, err)
}

func TestFromConfig_NoAPIKey(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Workbook.Driver = config.DriverMemory

	a, err := FromConfig(context.Background(), cfg)
	require.NoError(t, err)
	assert.False(t, a.AIConfigured())
	assert.True(t, a.Connect(context.Background()).Usable())
}
