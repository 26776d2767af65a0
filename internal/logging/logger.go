// Package logging provides categorized structured logging for prognos.
// Each subsystem gets a named zap child logger from a shared root; the root
// is configured once at startup from the logging section of the config.
package logging

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category names a subsystem logger.
type Category string

const (
	CategoryBoot      Category = "boot"      // Startup and wiring
	CategoryForecast  Category = "forecast"  // Synthesis and aggregation
	CategoryDecompose Category = "decompose" // Sub-forecast coordination
	CategoryScheduler Category = "scheduler" // API slot scheduling
	CategoryAgent     Category = "agent"     // LLM elicitation calls
	CategoryStore     Category = "store"     // Forecast journal
)

var (
	mu      sync.RWMutex
	root    *zap.Logger
	loggers = make(map[Category]*zap.Logger)
)

// Initialize builds the root logger. Level is "debug", "info", "warn" or
// "error"; anything else falls back to info. Safe to call more than once;
// the last call wins and clears cached category loggers.
func Initialize(level string) error {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(level))
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		return err
	}

	mu.Lock()
	defer mu.Unlock()
	root = logger
	loggers = make(map[Category]*zap.Logger)
	return nil
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Get returns the logger for a category. Before Initialize it returns a
// no-op logger so library code never has to nil-check.
func Get(category Category) *zap.Logger {
	mu.RLock()
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	r := root
	mu.RUnlock()

	if r == nil {
		return zap.NewNop()
	}

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}
	l := root.Named(string(category))
	loggers[category] = l
	return l
}

// Sync flushes buffered log entries. Call at shutdown.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	if root != nil {
		_ = root.Sync()
	}
}
