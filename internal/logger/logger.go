package logger

import (
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// root logger
var log atomic.Pointer[Logger]

// Level is one of the five levels the engine's ambient logging exposes.
// zap has no "trace" level of its own, so Trace is carried as debug-level
// output tagged with a "trace": true field.
type Level string

const (
	LevelTrace Level = "trace"
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// ValidLogLevels is the set of level names configuration accepts.
var ValidLogLevels = map[string]struct{}{
	string(LevelTrace): {},
	string(LevelDebug): {},
	string(LevelInfo):  {},
	string(LevelWarn):  {},
	string(LevelError): {},
}

// LoggingConfig is the subset of pkg/config.LoggingConfig a component
// logger is built from. Defined here, rather than imported, so this
// package stays independent of the config package.
type LoggingConfig interface {
	GetComponentLevel(component string) string
	GetDefaultLevel() string
	IsDevelopment() bool
}

// Logger wraps zap.SugaredLogger to provide a consistent logging interface across the project.
// It provides both structured logging (with fields) and printf-style logging methods.
// atomicLevel and levelName are shared across every Logger derived from the
// same root via WithComponent, so changing the level on one changes it
// everywhere (spec ambient logging: "a running process can raise/lower
// verbosity for every component at once").
type Logger struct {
	*zap.SugaredLogger
	atomicLevel zap.AtomicLevel
	levelName   *atomic.Pointer[string]
	component   string
}

func parseZapLevel(level string) (zapcore.Level, error) {
	name := level
	if Level(level) == LevelTrace {
		name = string(LevelDebug)
	}
	zapLevel, err := zapcore.ParseLevel(name)
	if err != nil {
		return 0, fmt.Errorf("logger: parse level %q: %w", level, err)
	}
	return zapLevel, nil
}

// NewLogger creates a new logger with the specified configuration.
// level can be "trace", "debug", "info", "warn", "error".
// development mode enables stack traces and uses console encoder
func NewLogger(level string, development bool) (*Logger, error) {
	var config zap.Config

	if development {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		config = zap.NewProductionConfig()
	}

	zapLevel, err := parseZapLevel(level)
	if err != nil {
		return nil, err
	}
	config.Level = zap.NewAtomicLevelAt(zapLevel)

	zapLogger, err := config.Build()
	if err != nil {
		return nil, err
	}

	sugared := zapLogger.Sugar()
	if Level(level) == LevelTrace {
		sugared = sugared.With("trace", true)
	}

	name := level
	holder := &atomic.Pointer[string]{}
	holder.Store(&name)

	return &Logger{SugaredLogger: sugared, atomicLevel: config.Level, levelName: holder}, nil
}

// NewComponentLogger builds a logger and scopes it to component in one call.
func NewComponentLogger(component, level string, development bool) *Logger {
	l, err := NewLogger(level, development)
	if err != nil {
		panic(fmt.Sprintf("logger: invalid level %q for component %q: %v", level, component, err))
	}
	return l.WithComponent(component)
}

// NewComponentLoggerFromConfig builds a component-scoped logger using the
// level cfg resolves for that component. Panics on an invalid level, since
// configuration is validated at load time. A nil cfg falls back to "info",
// non-development.
func NewComponentLoggerFromConfig(component string, cfg LoggingConfig) *Logger {
	level := "info"
	development := false
	if cfg != nil {
		level = cfg.GetComponentLevel(component)
		development = cfg.IsDevelopment()
	}
	return NewComponentLogger(component, level, development)
}

// NewNopLogger creates a no-op logger that discards all logs.
// Useful for testing.
func NewNopLogger() *Logger {
	holder := &atomic.Pointer[string]{}
	name := string(LevelInfo)
	holder.Store(&name)
	return &Logger{
		SugaredLogger: zap.NewNop().Sugar(),
		atomicLevel:   zap.NewAtomicLevelAt(zapcore.InfoLevel),
		levelName:     holder,
	}
}

// WithComponent creates a child logger with a component name field, sharing
// this logger's atomic level.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		SugaredLogger: l.With("component", component),
		atomicLevel:   l.atomicLevel,
		levelName:     l.levelName,
		component:     component,
	}
}

// GetComponent returns the component name this logger was scoped to, or ""
// for the root logger.
func (l *Logger) GetComponent() string {
	return l.component
}

// GetLevel returns the level name this logger (or any logger sharing its
// atomic level) was last set to.
func (l *Logger) GetLevel() string {
	name := l.levelName.Load()
	if name == nil {
		return ""
	}
	return *name
}

// SetLevel changes the level shared by this logger and every logger derived
// from the same root via WithComponent.
func (l *Logger) SetLevel(level string) error {
	zapLevel, err := parseZapLevel(level)
	if err != nil {
		return err
	}
	l.atomicLevel.SetLevel(zapLevel)
	name := level
	l.levelName.Store(&name)
	return nil
}

// Close flushes any buffered log entries.
func (l *Logger) Close() error {
	return l.Sync()
}

func GetDefaultLogger() *Logger {
	l := log.Load()
	if l != nil {
		return l
	}
	// default level: debug
	zapLogger, err := NewLogger("debug", true)
	if err != nil {
		panic(err)
	}
	log.Store(zapLogger)
	return log.Load()
}
