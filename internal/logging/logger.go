// Package logging provides config-driven categorized file-based logging for classpane.
// Logs are written to <workspace>/logs/ with a separate file per category.
// Logging is controlled by logging.debug_mode in the config - when false, no logs are written
// and every category logger is a no-op, which keeps the terminal panel clean.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot       Category = "boot"       // Startup, config, CLI wiring
	CategoryEngine     Category = "engine"     // Class model, flushes, echo suppression
	CategoryCompletion Category = "completion" // Class-name fetches
	CategoryBrowser    Category = "browser"    // DevTools session, DOM mirror, CSS events
	CategoryHTMLDoc    Category = "htmldoc"    // Offline document, file watching
	CategoryUI         Category = "ui"         // Terminal panel
)

// Categories lists every category, in display order.
var Categories = []Category{
	CategoryBoot,
	CategoryEngine,
	CategoryCompletion,
	CategoryBrowser,
	CategoryHTMLDoc,
	CategoryUI,
}

// Settings mirrors config.LoggingConfig to avoid an import cycle.
type Settings struct {
	DebugMode  bool
	Level      string
	JSON       bool
	Categories map[string]bool
}

var (
	mu       sync.RWMutex
	settings Settings
	logsDir  string
	level    zap.AtomicLevel = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	loggers                  = make(map[Category]*categoryLogger)
)

type categoryLogger struct {
	logger *zap.Logger
	file   *os.File
}

// Initialize sets up the logging directory under dir.
// Should be called once at startup. Nothing is created unless debug mode is on.
func Initialize(dir string, s Settings) error {
	if dir == "" {
		return fmt.Errorf("workspace path required")
	}

	CloseAll()

	mu.Lock()
	settings = s
	logsDir = filepath.Join(dir, "logs")
	lvl, err := zapcore.ParseLevel(s.Level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	level.SetLevel(lvl)
	mu.Unlock()

	if !s.DebugMode {
		return nil
	}

	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	boot := Get(CategoryBoot)
	boot.Info("logging initialized",
		zap.String("logs_dir", logsDir),
		zap.String("level", lvl.String()),
		zap.Bool("json", s.JSON))
	for _, cat := range Categories {
		boot.Debug("category", zap.String("name", string(cat)), zap.Bool("enabled", IsCategoryEnabled(cat)))
	}
	return nil
}

// IsDebugMode returns whether debug logging is enabled
func IsDebugMode() bool {
	mu.RLock()
	defer mu.RUnlock()
	return settings.DebugMode
}

// IsCategoryEnabled returns whether a specific category is enabled.
// Categories missing from the config default to enabled in debug mode.
func IsCategoryEnabled(category Category) bool {
	mu.RLock()
	defer mu.RUnlock()

	if !settings.DebugMode {
		return false
	}
	enabled, exists := settings.Categories[string(category)]
	if !exists {
		return true
	}
	return enabled
}

// Get returns (or creates) a logger for the given category.
// Returns a no-op logger if debug mode is disabled or category is disabled.
func Get(category Category) *zap.Logger {
	if !IsCategoryEnabled(category) {
		return zap.NewNop()
	}

	mu.RLock()
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l.logger
	}
	dir := logsDir
	jsonFormat := settings.JSON
	mu.RUnlock()

	if dir == "" {
		return zap.NewNop()
	}

	mu.Lock()
	defer mu.Unlock()

	// Double-check after acquiring write lock
	if l, ok := loggers[category]; ok {
		return l.logger
	}

	date := time.Now().Format("2006-01-02")
	logPath := filepath.Join(dir, fmt.Sprintf("%s_%s.log", date, category))
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[logging] Warning: could not open log file %s: %v\n", logPath, err)
		return zap.NewNop()
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var enc zapcore.Encoder
	if jsonFormat {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		enc = zapcore.NewConsoleEncoder(encCfg)
	}
	core := zapcore.NewCore(enc, zapcore.AddSync(file), level)
	l := &categoryLogger{
		logger: zap.New(core).Named(string(category)),
		file:   file,
	}
	loggers[category] = l
	return l.logger
}

// CloseAll flushes and closes all open log files (call at shutdown)
func CloseAll() {
	mu.Lock()
	defer mu.Unlock()

	for _, l := range loggers {
		_ = l.logger.Sync()
		if l.file != nil {
			l.file.Close()
		}
	}
	loggers = make(map[Category]*categoryLogger)
}

// Boot logs to the boot category
func Boot(msg string, fields ...zap.Field) {
	Get(CategoryBoot).Info(msg, fields...)
}

// BootWarn logs a warning to the boot category
func BootWarn(msg string, fields ...zap.Field) {
	Get(CategoryBoot).Warn(msg, fields...)
}

// Timer helps measure operation duration
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation
func StartTimer(category Category, operation string) *Timer {
	return &Timer{
		category: category,
		op:       operation,
		start:    time.Now(),
	}
}

// Stop logs the elapsed time at debug level and returns it.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug(t.op+" completed", zap.Duration("elapsed", elapsed))
	return elapsed
}

// StopWithThreshold logs a warning when the operation was slower than threshold.
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warn(t.op+" was slow",
			zap.Duration("elapsed", elapsed),
			zap.Duration("threshold", threshold))
	} else {
		Get(t.category).Debug(t.op+" completed", zap.Duration("elapsed", elapsed))
	}
	return elapsed
}
