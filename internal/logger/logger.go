package logger

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Format selects the encoder of the global logger.
type Format string

// Supported formats.
const (
	FormatConsole Format = "console"
	FormatJSON    Format = "json"
)

var (
	// global is the shared logger instance used throughout the application.
	//nolint:gochecknoglobals // Logger is used all over the project, so it's okay.
	global *zap.SugaredLogger
	// globalLevel is the minimum level of the global logger, adjustable at runtime.
	//nolint:gochecknoglobals // If the logging level is not set, the application will have no logs.
	globalLevel = zap.NewAtomicLevelAt(zap.InfoLevel)
)

func init() { //nolint:gochecknoinits // If the logging level is not set, the application will have no logs.
	SetLogger(New(globalLevel, FormatConsole))
}

// New creates a sugared logger writing to stdout in the given format.
// A nil level falls back to the global atomic level.
func New(level zapcore.LevelEnabler, format Format, options ...zap.Option) *zap.SugaredLogger {
	if level == nil {
		level = globalLevel
	}

	core := zapcore.NewCore(newEncoder(format), zapcore.AddSync(os.Stdout), level)

	return zap.New(core, options...).Sugar()
}

func newEncoder(format Format) zapcore.Encoder {
	//nolint:exhaustruct // I'm okay with default encoder configuration values.
	config := zapcore.EncoderConfig{
		TimeKey:        "time",
		MessageKey:     "message",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
		EncodeName:     zapcore.FullNameEncoder,
	}

	if format == FormatJSON {
		return zapcore.NewJSONEncoder(config)
	}

	config.EncodeLevel = zapcore.CapitalColorLevelEncoder
	config.ConsoleSeparator = ", "

	return zapcore.NewConsoleEncoder(config)
}

// ParseLogLevel converts string input to zap log level.
func ParseLogLevel(s string) (zapcore.Level, bool) {
	level, err := zapcore.ParseLevel(strings.TrimSpace(s))
	if err != nil {
		return zapcore.InfoLevel, false
	}

	return level, true
}

// ParseFormat converts string input to a Format; empty means console.
func ParseFormat(s string) (Format, bool) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatConsole:
		return FormatConsole, true
	case FormatJSON:
		return FormatJSON, true
	default:
		return FormatConsole, false
	}
}

// Configure applies a level and format from settings to the global logger.
func Configure(level, format string) error {
	lvl, ok := ParseLogLevel(level)
	if !ok {
		return fmt.Errorf("unknown log level %q", level)
	}

	f, ok := ParseFormat(format)
	if !ok {
		return fmt.Errorf("unknown log format %q", format)
	}

	SetLogger(New(globalLevel, f))
	SetLevel(lvl)

	return nil
}

// Level returns the current logging level of the global logger.
func Level() zapcore.Level {
	return globalLevel.Level()
}

// Logger returns the global logger.
func Logger() *zap.SugaredLogger {
	return global
}

// SetLogger sets the global logger.
// This function is not thread-safe.
func SetLogger(l *zap.SugaredLogger) {
	global = l
}

// SetLevel sets the log level for the global logger.
func SetLevel(level zapcore.Level) {
	//nolint: errcheck // No need to check the error here.
	defer global.Sync()

	globalLevel.SetLevel(level)
}
