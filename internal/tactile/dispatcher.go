package tactile

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"gridnerd/internal/logging"
	"gridnerd/internal/tools"
	"gridnerd/internal/workbook"
)

// DispatchStats counts dispatched commands by outcome.
type DispatchStats struct {
	Total     int            `json:"total"`
	Succeeded int            `json:"succeeded"`
	Warnings  int            `json:"warnings"`
	Failed    int            `json:"failed"`
	ByType    map[string]int `json:"by_type"`
}

// Dispatcher executes commands against the surface owned by a Connection.
// Commands run strictly one at a time, in the order given.
type Dispatcher struct {
	conn *workbook.Connection

	mu    sync.Mutex
	stats DispatchStats
}

// NewDispatcher creates a dispatcher bound to conn.
func NewDispatcher(conn *workbook.Connection) *Dispatcher {
	return &Dispatcher{
		conn:  conn,
		stats: DispatchStats{ByType: make(map[string]int)},
	}
}

// Dispatch validates and executes one command. It never panics and never returns
// without a result.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd tools.Command) ExecutionResult {
	res, _ := d.dispatch(ctx, cmd)
	return res
}

// DispatchBatch executes cmds in order and returns exactly one result per command.
// A failed command never stops its siblings. A lost connection or a cancelled
// context does: every remaining command gets the same error result without
// touching the surface, and that error is returned alongside the results.
func (d *Dispatcher) DispatchBatch(ctx context.Context, cmds []tools.Command) ([]ExecutionResult, error) {
	timer := logging.StartTimer(logging.CategoryTactile, fmt.Sprintf("Batch of %d commands", len(cmds)))
	defer timer.Stop()

	results := make([]ExecutionResult, 0, len(cmds))
	var abort error
	for i, cmd := range cmds {
		if abort == nil {
			if err := ctx.Err(); err != nil {
				abort = err
			}
		}
		if abort != nil {
			res := Failure(abort)
			res.Type = cmd.Type
			d.record(res)
			results = append(results, res)
			continue
		}

		res, fatal := d.dispatch(ctx, cmd)
		results = append(results, res)
		if fatal != nil {
			logging.TactileWarn("batch aborted at command %d/%d: %v", i+1, len(cmds), fatal)
			abort = fatal
		}
	}
	return results, abort
}

// dispatch returns the result and, separately, any error that must abort the batch.
func (d *Dispatcher) dispatch(ctx context.Context, cmd tools.Command) (res ExecutionResult, fatal error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			logging.TactileError("panic executing %s: %v\n%s", cmd.Type, r, debug.Stack())
			res = Failure(&ExecutionError{Type: cmd.Type, Err: fmt.Errorf("panic: %v", r)})
			fatal = nil
		}
		res.Type = cmd.Type
		d.record(res)
		logging.TactileDebug("%s -> %s in %v", cmd.Describe(), res.Status, time.Since(start))
	}()

	op, err := tools.Validate(cmd)
	if err != nil {
		logging.TactileWarn("rejected command: %v", err)
		return Failure(err), nil
	}

	if err := d.conn.EnsureLive(ctx); err != nil {
		return Failure(err), err
	}

	surface := d.conn.Surface()
	if ss, ok := surface.(workbook.SessionSettings); ok {
		prev := ss.ScreenUpdating()
		ss.SetScreenUpdating(true)
		defer ss.SetScreenUpdating(prev)
	}

	res, err = execute(ctx, surface, op)
	if err != nil {
		if workbook.IsConnectionError(err) {
			fatal = err
		}
		var verr *tools.ValidationError
		if errors.As(err, &verr) {
			return Failure(err), fatal
		}
		return Failure(&ExecutionError{Type: cmd.Type, Err: err}), fatal
	}
	logging.Tactile("%s: %s", cmd.Type, res.Message)
	return res, nil
}

func (d *Dispatcher) record(res ExecutionResult) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stats.Total++
	d.stats.ByType[res.Type]++
	switch res.Status {
	case StatusSuccess:
		d.stats.Succeeded++
	case StatusWarning:
		d.stats.Warnings++
	default:
		d.stats.Failed++
	}
}

// Stats returns a copy of the dispatch counters.
func (d *Dispatcher) Stats() DispatchStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := d.stats
	out.ByType = make(map[string]int, len(d.stats.ByType))
	for k, v := range d.stats.ByType {
		out.ByType[k] = v
	}
	return out
}
