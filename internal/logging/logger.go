// Package logging provides categorized structured logging for graphrag.
// Each subsystem logs under its own category so operators can raise or lower
// verbosity per concern without touching the rest of the pipeline.
package logging

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/subsystem.
type Category string

const (
	CategorySystem    Category = "system"    // Facade wiring, startup, shutdown
	CategoryStore     Category = "store"     // Graph store operations
	CategoryVector    Category = "vector"    // Vector store operations
	CategoryEmbedding Category = "embedding" // Embedding engine
	CategoryLLM       Category = "llm"       // LLM API calls
	CategoryIngest    Category = "ingest"    // Dual-store ingestion
	CategoryRAG       Category = "rag"       // Context retrieval
	CategoryGenerator Category = "generator" // Query generation
	CategoryExecutor  Category = "executor"  // Query execution
	CategoryPrompt    Category = "prompt"    // Prompt assembly
)

// Config controls logging behavior. Zero value logs info and above to stderr.
type Config struct {
	DebugMode  bool            `yaml:"debug_mode" json:"debug_mode"`
	Level      string          `yaml:"level" json:"level"`
	JSONFormat bool            `yaml:"json_format" json:"json_format"`
	Categories map[string]bool `yaml:"categories" json:"categories"` // nil = all enabled
	FilePath   string          `yaml:"file_path" json:"file_path"`   // optional log file
}

// Logger wraps a zap sugared logger bound to a category.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
	enabled  bool
}

var (
	mu      sync.RWMutex
	root    *zap.Logger
	cfg     Config
	loggers = make(map[Category]*Logger)
)

// Initialize builds the root zap logger from config. Safe to call more than
// once; later calls replace the root and invalidate cached category loggers.
func Initialize(c Config) error {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	if c.JSONFormat {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	level := parseLevel(c.Level)
	if c.DebugMode {
		level = zapcore.DebugLevel
	}

	sink := zapcore.Lock(os.Stderr)
	if c.FilePath != "" {
		f, err := os.OpenFile(c.FilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file %s: %w", c.FilePath, err)
		}
		sink = zapcore.Lock(f)
	}

	core := zapcore.NewCore(enc, sink, level)

	mu.Lock()
	defer mu.Unlock()
	root = zap.New(core)
	cfg = c
	loggers = make(map[Category]*Logger)
	return nil
}

func parseLevel(s string) zapcore.Level {
	switch strings.ToLower(s) {
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

// IsDebugMode reports whether debug logging is active.
func IsDebugMode() bool {
	mu.RLock()
	defer mu.RUnlock()
	return cfg.DebugMode
}

// IsCategoryEnabled reports whether a category emits logs. A nil category map
// enables everything.
func IsCategoryEnabled(category Category) bool {
	mu.RLock()
	defer mu.RUnlock()
	return categoryEnabledLocked(category)
}

func categoryEnabledLocked(category Category) bool {
	if cfg.Categories == nil {
		return true
	}
	enabled, present := cfg.Categories[string(category)]
	if !present {
		return true
	}
	return enabled
}

// Get returns the logger for a category, creating it on first use.
func Get(category Category) *Logger {
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
	base := root
	if base == nil {
		base = zap.NewNop()
	}
	l := &Logger{
		category: category,
		sugar:    base.Sugar().With("category", string(category)),
		enabled:  categoryEnabledLocked(category),
	}
	loggers[category] = l
	return l
}

// Debug logs at debug level with printf formatting.
func (l *Logger) Debug(format string, args ...interface{}) {
	if !l.enabled {
		return
	}
	l.sugar.Debugf(format, args...)
}

// Info logs at info level with printf formatting.
func (l *Logger) Info(format string, args ...interface{}) {
	if !l.enabled {
		return
	}
	l.sugar.Infof(format, args...)
}

// Warn logs at warn level with printf formatting.
func (l *Logger) Warn(format string, args ...interface{}) {
	if !l.enabled {
		return
	}
	l.sugar.Warnf(format, args...)
}

// Error logs at error level with printf formatting.
func (l *Logger) Error(format string, args ...interface{}) {
	if !l.enabled {
		return
	}
	l.sugar.Errorf(format, args...)
}

// With returns a logger carrying additional structured fields.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{
		category: l.category,
		sugar:    l.sugar.With(keysAndValues...),
		enabled:  l.enabled,
	}
}

// Sync flushes buffered log entries.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	if root != nil {
		_ = root.Sync()
	}
}

// Category convenience helpers. Info level logs the main flow; Debug carries
// the noisy detail.

func System(format string, args ...interface{}) { Get(CategorySystem).Info(format, args...) }
func SystemDebug(format string, args ...interface{}) {
	Get(CategorySystem).Debug(format, args...)
}

func Store(format string, args ...interface{}) { Get(CategoryStore).Info(format, args...) }
func StoreDebug(format string, args ...interface{}) {
	Get(CategoryStore).Debug(format, args...)
}

func Vector(format string, args ...interface{}) { Get(CategoryVector).Info(format, args...) }
func VectorDebug(format string, args ...interface{}) {
	Get(CategoryVector).Debug(format, args...)
}

func Embedding(format string, args ...interface{}) { Get(CategoryEmbedding).Info(format, args...) }
func EmbeddingDebug(format string, args ...interface{}) {
	Get(CategoryEmbedding).Debug(format, args...)
}

func LLM(format string, args ...interface{}) { Get(CategoryLLM).Info(format, args...) }
func LLMDebug(format string, args ...interface{}) {
	Get(CategoryLLM).Debug(format, args...)
}

func Ingest(format string, args ...interface{}) { Get(CategoryIngest).Info(format, args...) }
func IngestDebug(format string, args ...interface{}) {
	Get(CategoryIngest).Debug(format, args...)
}

func RAG(format string, args ...interface{}) { Get(CategoryRAG).Info(format, args...) }
func RAGDebug(format string, args ...interface{}) {
	Get(CategoryRAG).Debug(format, args...)
}

func Generator(format string, args ...interface{}) { Get(CategoryGenerator).Info(format, args...) }
func GeneratorDebug(format string, args ...interface{}) {
	Get(CategoryGenerator).Debug(format, args...)
}

func Executor(format string, args ...interface{}) { Get(CategoryExecutor).Info(format, args...) }
func ExecutorDebug(format string, args ...interface{}) {
	Get(CategoryExecutor).Debug(format, args...)
}

func Prompt(format string, args ...interface{}) { Get(CategoryPrompt).Info(format, args...) }
func PromptDebug(format string, args ...interface{}) {
	Get(CategoryPrompt).Debug(format, args...)
}
