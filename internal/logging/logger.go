// Package logging provides config-driven categorized logging for gridNERD on top of zap.
// Every category is a named child of one base logger, so output can be filtered by the
// "logger" field. Until Initialize or SetLogger is called all logging is a no-op.
package logging

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot         Category = "boot"         // Boot/initialization
	CategoryAPI          Category = "api"          // AI planning service calls
	CategoryPerception   Category = "perception"   // Query classification
	CategoryArticulation Category = "articulation" // Prompt building, extraction, aggregation
	CategoryTactile      Category = "tactile"      // Command dispatch
	CategoryWorkbook     Category = "workbook"     // Automation surface and connection lifecycle
	CategoryAgent        Category = "agent"        // Public operations
	CategoryServer       Category = "server"       // HTTP and MCP surfaces
)

// AllCategories lists every category in display order.
var AllCategories = []Category{
	CategoryBoot, CategoryAPI, CategoryPerception, CategoryArticulation,
	CategoryTactile, CategoryWorkbook, CategoryAgent, CategoryServer,
}

// Options mirrors the relevant parts of config.LoggingConfig
// to avoid circular imports
type Options struct {
	Level      string          // debug, info, warn, error
	Format     string          // json, text
	File       string          // empty = stderr
	Categories map[string]bool // absent = enabled
}

var (
	mu         sync.RWMutex
	base       = zap.NewNop()
	categories map[string]bool
	loggers    = make(map[Category]*zap.SugaredLogger)
)

// Initialize builds the base zap logger from opts and installs it.
func Initialize(opts Options) error {
	var cfg zap.Config
	if opts.Format == "json" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	level := opts.Level
	if level == "" {
		level = "info"
	}
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", opts.Level, err)
	}
	cfg.Level = lvl

	if opts.File != "" {
		cfg.OutputPaths = []string{opts.File}
		cfg.ErrorOutputPaths = []string{opts.File}
	} else {
		cfg.OutputPaths = []string{"stderr"}
	}

	logger, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}

	install(logger, opts.Categories)
	return nil
}

// SetLogger installs an already-built logger with every category enabled.
// Tests use it with zaptest/observer.
func SetLogger(logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	install(logger, nil)
}

func install(logger *zap.Logger, cats map[string]bool) {
	mu.Lock()
	defer mu.Unlock()
	base = logger
	categories = cats
	loggers = make(map[Category]*zap.SugaredLogger)
}

// L returns the base logger.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// Sync flushes buffered entries.
func Sync() {
	_ = L().Sync()
}

// IsCategoryEnabled returns whether a specific category is enabled
func IsCategoryEnabled(category Category) bool {
	mu.RLock()
	defer mu.RUnlock()
	if categories == nil {
		return true
	}
	enabled, exists := categories[string(category)]
	if !exists {
		return true
	}
	return enabled
}

// Get returns (or creates) a logger for the given category.
// Returns a no-op logger if the category is disabled.
func Get(category Category) *zap.SugaredLogger {
	if !IsCategoryEnabled(category) {
		return zap.NewNop().Sugar()
	}

	mu.RLock()
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}
	l := base.Named(string(category)).Sugar()
	loggers[category] = l
	return l
}

// =============================================================================
// CONVENIENCE FUNCTIONS - Quick logging without getting a logger first
// These are no-ops if the category is disabled
// =============================================================================

// Boot logs to the boot category
func Boot(format string, args ...interface{}) { Get(CategoryBoot).Infof(format, args...) }

// BootDebug logs debug to the boot category
func BootDebug(format string, args ...interface{}) { Get(CategoryBoot).Debugf(format, args...) }

// API logs to the api category
func API(format string, args ...interface{}) { Get(CategoryAPI).Infof(format, args...) }

// APIDebug logs debug to the api category
func APIDebug(format string, args ...interface{}) { Get(CategoryAPI).Debugf(format, args...) }

// APIError logs an error to the api category
func APIError(format string, args ...interface{}) { Get(CategoryAPI).Errorf(format, args...) }

// Perception logs to the perception category
func Perception(format string, args ...interface{}) { Get(CategoryPerception).Infof(format, args...) }

// PerceptionDebug logs debug to the perception category
func PerceptionDebug(format string, args ...interface{}) {
	Get(CategoryPerception).Debugf(format, args...)
}

// Articulation logs to the articulation category
func Articulation(format string, args ...interface{}) {
	Get(CategoryArticulation).Infof(format, args...)
}

// ArticulationDebug logs debug to the articulation category
func ArticulationDebug(format string, args ...interface{}) {
	Get(CategoryArticulation).Debugf(format, args...)
}

// Tactile logs to the tactile category
func Tactile(format string, args ...interface{}) { Get(CategoryTactile).Infof(format, args...) }

// TactileDebug logs debug to the tactile category
func TactileDebug(format string, args ...interface{}) { Get(CategoryTactile).Debugf(format, args...) }

// TactileWarn logs a warning to the tactile category
func TactileWarn(format string, args ...interface{}) { Get(CategoryTactile).Warnf(format, args...) }

// TactileError logs an error to the tactile category
func TactileError(format string, args ...interface{}) { Get(CategoryTactile).Errorf(format, args...) }

// Workbook logs to the workbook category
func Workbook(format string, args ...interface{}) { Get(CategoryWorkbook).Infof(format, args...) }

// WorkbookDebug logs debug to the workbook category
func WorkbookDebug(format string, args ...interface{}) {
	Get(CategoryWorkbook).Debugf(format, args...)
}

// WorkbookWarn logs a warning to the workbook category
func WorkbookWarn(format string, args ...interface{}) { Get(CategoryWorkbook).Warnf(format, args...) }

// Agent logs to the agent category
func Agent(format string, args ...interface{}) { Get(CategoryAgent).Infof(format, args...) }

// AgentDebug logs debug to the agent category
func AgentDebug(format string, args ...interface{}) { Get(CategoryAgent).Debugf(format, args...) }

// AgentError logs an error to the agent category
func AgentError(format string, args ...interface{}) { Get(CategoryAgent).Errorf(format, args...) }

// Server logs to the server category
func Server(format string, args ...interface{}) { Get(CategoryServer).Infof(format, args...) }

// ServerDebug logs debug to the server category
func ServerDebug(format string, args ...interface{}) { Get(CategoryServer).Debugf(format, args...) }

// ServerError logs an error to the server category
func ServerError(format string, args ...interface{}) { Get(CategoryServer).Errorf(format, args...) }

// =============================================================================
// PERFORMANCE TIMING
// =============================================================================

// Timer measures an operation and logs its duration on Stop.
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer starts timing an operation.
func StartTimer(category Category, operation string) *Timer {
	return &Timer{category: category, op: operation, start: time.Now()}
}

// Stop ends the timer and logs the duration at debug level.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debugf("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold logs a warning if the duration exceeds threshold.
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warnf("%s took %v (threshold: %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debugf("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}
