package agent

import (
	"context"
	"errors"
	"fmt"

	"gridnerd/internal/config"
	"gridnerd/internal/logging"
	"gridnerd/internal/perception"
	"gridnerd/internal/workbook"
)

// NewSurface builds the automation surface selected by the workbook driver.
func NewSurface(cfg config.WorkbookConfig) (workbook.Surface, error) {
	limits := workbook.Limits{
		SampleRows:  cfg.SampleRows,
		SampleCols:  cfg.SampleCols,
		MaxFormulas: cfg.MaxFormulas,
		MaxCells:    cfg.MaxCells,
	}
	switch cfg.Driver {
	case config.DriverXLSX, "":
		return workbook.NewXLSXSurface(workbook.XLSXOptions{
			Path:            cfg.Path,
			Sheet:           cfg.Sheet,
			CreateIfMissing: cfg.CreateIfMissing,
			Watch:           cfg.Watch,
			Limits:          limits,
		}), nil
	case config.DriverMemory:
		sheet := cfg.Sheet
		if sheet == "" {
			sheet = "Sheet1"
		}
		s := workbook.NewMemorySurface("memory", sheet)
		s.SetLimits(limits)
		return s, nil
	default:
		return nil, fmt.Errorf("unknown workbook driver: %s", cfg.Driver)
	}
}

// NewLLM builds the AI planning client. A missing API key yields (nil, nil): the agent
// runs in execution-only mode.
func NewLLM(ctx context.Context, cfg *config.Config) (perception.LLMClient, error) {
	if !cfg.HasAPIKey() {
		logging.Boot("no API key configured; AI operations disabled")
		return nil, nil
	}
	client, err := perception.NewGeminiClient(ctx, perception.GeminiConfig{
		APIKey:          cfg.LLM.APIKey,
		Model:           cfg.LLM.Model,
		Timeout:         cfg.GetLLMTimeout(),
		Temperature:     cfg.LLM.Temperature,
		MaxOutputTokens: cfg.LLM.MaxOutputTokens,
	})
	if err != nil {
		if errors.Is(err, perception.ErrNotConfigured) {
			return nil, nil
		}
		return nil, err
	}
	return client, nil
}

// FromConfig wires an Agent from configuration. The workbook is not connected yet.
func FromConfig(ctx context.Context, cfg *config.Config) (*Agent, error) {
	surface, err := NewSurface(cfg.Workbook)
	if err != nil {
		return nil, err
	}
	llm, err := NewLLM(ctx, cfg)
	if err != nil {
		return nil, err
	}
	logging.Boot("agent: driver=%s workbook=%s ai=%t", cfg.Workbook.Driver, cfg.Workbook.Path, llm != nil)
	return New(Options{
		LLM:        llm,
		Connection: workbook.NewConnection(surface),
		Version:    cfg.Version,
	}), nil
}
