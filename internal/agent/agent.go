// Package agent exposes gridNERD's public operations: answer a spreadsheet question,
// run a request autonomously against the workbook, execute a single command, connect,
// and report health.
//
// Every operation returns a structured result. Internal panics are recovered at this
// boundary and reported as errors.
//
// Pipeline of RunAutonomousQuery:
//
//	query → Classify → BuildActionPrompt(+context) → LLM → Extract → DispatchBatch → Aggregate
package agent

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"gridnerd/internal/articulation"
	"gridnerd/internal/logging"
	"gridnerd/internal/perception"
	"gridnerd/internal/tactile"
	"gridnerd/internal/tools"
	"gridnerd/internal/workbook"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// Explanations attached to top-level error reports.
const (
	explainNotConnected = "Open the workbook (or check the configured path) and try again."
	explainAIService    = "The AI service could not produce an action plan. Check the API key and try again."
	explainInternal     = "An internal error occurred while processing the request."
	explainCancelled    = "The request was cancelled before it could run."
	explainInterrupted  = "The request was cancelled part way through; the remaining commands were not run."
)

// Options configures an Agent.
type Options struct {
	// LLM is the AI planning service. Nil means not configured: AI operations fail
	// with perception.ErrNotConfigured.
	LLM perception.LLMClient

	// Connection owns the automation surface. Required.
	Connection *workbook.Connection

	// Pipeline extracts commands from plans. Defaults to the three-tier cascade.
	Pipeline *articulation.Pipeline

	// Classifier picks the prompt category. Defaults to perception.DefaultRules.
	Classifier *perception.Classifier

	Version string
}

// Agent runs the request pipeline. Batches are serialized: at most one
// RunAutonomousQuery or ExecuteCommand touches the workbook at a time.
type Agent struct {
	llm        perception.LLMClient
	conn       *workbook.Connection
	pipeline   *articulation.Pipeline
	classifier *perception.Classifier
	dispatcher *tactile.Dispatcher
	batches    *semaphore.Weighted
	version    string
}

// New creates an Agent.
func New(opts Options) *Agent {
	if opts.Pipeline == nil {
		opts.Pipeline = articulation.NewPipeline()
	}
	if opts.Classifier == nil {
		opts.Classifier = perception.NewClassifier(perception.DefaultRules)
	}
	return &Agent{
		llm:        opts.LLM,
		conn:       opts.Connection,
		pipeline:   opts.Pipeline,
		classifier: opts.Classifier,
		dispatcher: tactile.NewDispatcher(opts.Connection),
		batches:    semaphore.NewWeighted(1),
		version:    opts.Version,
	}
}

// Pipeline returns the extraction pipeline.
func (a *Agent) Pipeline() *articulation.Pipeline { return a.pipeline }

// AIConfigured reports whether an AI planning service is available.
func (a *Agent) AIConfigured() bool { return a.llm != nil }

// Connect opens the workbook connection. It waits for any running batch to finish.
func (a *Agent) Connect(ctx context.Context) (status workbook.ConnectionStatus) {
	defer func() {
		if r := recover(); r != nil {
			logging.AgentError("panic in Connect: %v\n%s", r, debug.Stack())
			status = workbook.ConnectionStatus{State: workbook.StateError, Message: fmt.Sprintf("internal error: %v", r)}
		}
	}()
	if err := a.batches.Acquire(ctx, 1); err != nil {
		return workbook.ConnectionStatus{State: workbook.StateError, Message: fmt.Sprintf("Request cancelled: %v", err)}
	}
	defer a.batches.Release(1)
	return a.conn.Connect(ctx)
}

// Close disconnects from the workbook.
func (a *Agent) Close() error {
	return a.conn.Disconnect()
}

// AnswerQuery answers a spreadsheet question without touching the workbook.
// The workbook context is included only when already connected; overrides win on
// key collisions.
func (a *Agent) AnswerQuery(ctx context.Context, query string, overrides map[string]any, image *perception.Image) (answer string, err error) {
	defer func() {
		if r := recover(); r != nil {
			logging.AgentError("panic in AnswerQuery: %v\n%s", r, debug.Stack())
			answer, err = "", fmt.Errorf("internal error: %v", r)
		}
	}()

	if a.llm == nil {
		return "", perception.ErrNotConfigured
	}

	var sheet workbook.Context
	if a.conn.IsConnected() {
		sheet = a.readContext(ctx)
	}
	category := a.classifier.Classify(query)
	prompt := articulation.BuildPrompt(query, category, sheet.Merge(overrides))
	logging.Agent("answer: category=%s query=%q", category, query)

	return a.llm.Generate(ctx, prompt, image)
}

// RunAutonomousQuery plans and executes a request against the workbook. It always
// returns a report.
func (a *Agent) RunAutonomousQuery(ctx context.Context, query string, overrides map[string]any, image *perception.Image) (report articulation.Report) {
	batchID := uuid.NewString()
	defer func() {
		if r := recover(); r != nil {
			logging.AgentError("[%s] panic in RunAutonomousQuery: %v\n%s", batchID, r, debug.Stack())
			report = articulation.ErrorReport(fmt.Sprintf("Internal error: %v", r), explainInternal)
		}
		report.BatchID = batchID
	}()

	if err := a.batches.Acquire(ctx, 1); err != nil {
		return articulation.ErrorReport(fmt.Sprintf("Request cancelled: %v", err), explainCancelled)
	}
	defer a.batches.Release(1)

	timer := logging.StartTimer(logging.CategoryAgent, "Autonomous query "+batchID)
	defer timer.Stop()

	if a.llm == nil {
		return articulation.ErrorReport(perception.ErrNotConfigured.Error(), explainAIService)
	}
	if err := a.conn.EnsureLive(ctx); err != nil {
		logging.AgentError("[%s] %v", batchID, err)
		return articulation.ErrorReport(err.Error(), explainNotConnected)
	}

	sheet := a.readContext(ctx).Merge(overrides)
	category := a.classifier.Classify(query)
	prompt := articulation.BuildActionPrompt(query, category, sheet)
	logging.Agent("[%s] autonomous: category=%s query=%q", batchID, category, query)

	plan, err := a.llm.Generate(ctx, prompt, image)
	if err != nil {
		logging.AgentError("[%s] planning failed: %v", batchID, err)
		if !errors.Is(err, perception.ErrAIService) {
			err = fmt.Errorf("%w: %v", perception.ErrAIService, err)
		}
		return articulation.ErrorReport(err.Error(), explainAIService)
	}

	extraction := a.pipeline.Extract(plan)
	if len(extraction.Commands) == 0 {
		logging.Agent("[%s] no commands extracted", batchID)
		return articulation.EmptyReport()
	}
	logging.Agent("[%s] extracted %d commands via %s tier", batchID, len(extraction.Commands), extraction.Tier)

	results, abort := a.dispatcher.DispatchBatch(ctx, extraction.Commands)
	report = articulation.Aggregate(query, plan, extraction.Commands, results)
	if abort != nil {
		logging.AgentError("[%s] batch aborted: %v", batchID, abort)
		explanation := explainInterrupted
		if workbook.IsConnectionError(abort) {
			explanation = explainNotConnected
		}
		aborted := articulation.ErrorReport(abort.Error(), explanation)
		aborted.ActionsTaken = report.ActionsTaken
		aborted.Results = report.Results
		return aborted
	}
	return report
}

// ExecuteCommand validates and runs a single command.
func (a *Agent) ExecuteCommand(ctx context.Context, cmd tools.Command) (res tactile.ExecutionResult) {
	defer func() {
		if r := recover(); r != nil {
			logging.AgentError("panic in ExecuteCommand: %v\n%s", r, debug.Stack())
			res = tactile.Failure(fmt.Errorf("internal error: %v", r))
			res.Type = cmd.Type
		}
	}()

	if err := a.batches.Acquire(ctx, 1); err != nil {
		res = tactile.Failure(err)
		res.Type = cmd.Type
		return res
	}
	defer a.batches.Release(1)

	return a.dispatcher.Dispatch(ctx, cmd)
}

// readContext snapshots the workbook. Failures are logged and yield an empty context.
func (a *Agent) readContext(ctx context.Context) workbook.Context {
	sheet, err := a.conn.Surface().ReadContext(ctx)
	if err != nil {
		logging.AgentError("read context: %v", err)
		return workbook.Context{}
	}
	return sheet
}
