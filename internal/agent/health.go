package agent

import (
	"context"
	"os"
	"runtime"

	"gridnerd/internal/articulation"
	"gridnerd/internal/logging"
	"gridnerd/internal/tactile"
	"gridnerd/internal/workbook"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
	"golang.org/x/sync/errgroup"
)

// Health statuses.
const (
	HealthOK       = "ok"
	HealthDegraded = "degraded"
)

// Health is the service health report.
type Health struct {
	Status       string                     `json:"status"`
	Connected    bool                       `json:"connected"`
	Connection   workbook.ConnectionStatus  `json:"connection"`
	AIConfigured bool                       `json:"ai_configured"`
	Model        string                     `json:"model,omitempty"`
	Version      string                     `json:"version,omitempty"`
	Extraction   articulation.PipelineStats `json:"extraction"`
	Dispatch     tactile.DispatchStats      `json:"dispatch"`
	Process      *ProcessStats              `json:"process,omitempty"`
}

// ProcessStats describes the running process.
type ProcessStats struct {
	PID              int32   `json:"pid"`
	RSSBytes         uint64  `json:"rss_bytes"`
	CPUPercent       float64 `json:"cpu_percent"`
	NumGoroutine     int     `json:"goroutines"`
	SystemMemPercent float64 `json:"system_memory_percent"`
}

type modelNamer interface {
	Model() string
}

// CheckHealth verifies the workbook session (reconnecting once if needed) and collects
// process statistics. Process statistics are best effort. While a batch holds the
// workbook the session is not touched and the last known status is reported.
func (a *Agent) CheckHealth(ctx context.Context) Health {
	h := Health{
		AIConfigured: a.llm != nil,
		Version:      a.version,
	}
	if m, ok := a.llm.(modelNamer); ok {
		h.Model = m.Model()
	}

	var proc *ProcessStats
	g, gctx := errgroup.WithContext(ctx)
	if a.batches.TryAcquire(1) {
		g.Go(func() error {
			defer a.batches.Release(1)
			if err := a.conn.EnsureLive(gctx); err != nil {
				logging.AgentDebug("health: %v", err)
			}
			return nil
		})
	} else {
		logging.AgentDebug("health: batch in progress, reporting last connection status")
	}
	g.Go(func() error {
		proc = processStats(gctx)
		return nil
	})
	_ = g.Wait()

	h.Connected = a.conn.IsConnected()
	h.Connection = a.conn.Status()
	h.Extraction = a.pipeline.Stats()
	h.Dispatch = a.dispatcher.Stats()
	h.Process = proc

	h.Status = HealthOK
	if !h.Connected || !h.AIConfigured {
		h.Status = HealthDegraded
	}
	return h
}

func processStats(ctx context.Context) *ProcessStats {
	stats := &ProcessStats{
		PID:          int32(os.Getpid()),
		NumGoroutine: runtime.NumGoroutine(),
	}
	p, err := process.NewProcessWithContext(ctx, stats.PID)
	if err != nil {
		logging.AgentDebug("health: process stats unavailable: %v", err)
		return stats
	}
	if info, err := p.MemoryInfoWithContext(ctx); err == nil && info != nil {
		stats.RSSBytes = info.RSS
	}
	if cpu, err := p.CPUPercentWithContext(ctx); err == nil {
		stats.CPUPercent = cpu
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil && vm != nil {
		stats.SystemMemPercent = vm.UsedPercent
	}
	return stats
}
