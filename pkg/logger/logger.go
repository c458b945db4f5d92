// Package logger provides the engine's structured logging facade: a zap-
// backed Logger with lumberjack-based file rotation and an ergonomic
// WithField/WithFields/WithError/Named call-site API.
package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Format selects the encoder used for log lines.
type Format string

const (
	FormatJSON    Format = "json"
	FormatConsole Format = "console"
)

// Config controls how a Logger is constructed.
type Config struct {
	Level      string // debug, info, warn, error
	Format     Format
	ServiceName string

	// File output; when Filename is empty, logs go to stdout.
	Filename   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// DefaultConfig returns sane development defaults.
func DefaultConfig(serviceName string) Config {
	return Config{
		Level:       "info",
		Format:      FormatConsole,
		ServiceName: serviceName,
	}
}

// ProductionConfig returns JSON-structured, rotated-file defaults.
func ProductionConfig(serviceName string) Config {
	return Config{
		Level:       "info",
		Format:      FormatJSON,
		ServiceName: serviceName,
		Filename:    "/var/log/arbengine/" + serviceName + ".log",
		MaxSizeMB:   100,
		MaxBackups:  5,
		MaxAgeDays:  28,
		Compress:    true,
	}
}

// Logger wraps *zap.Logger with the call-site conveniences the rest of the
// codebase is written against.
type Logger struct {
	z *zap.Logger
}

// New builds a Logger for serviceName using DefaultConfig.
func New(serviceName string) *Logger {
	l, err := NewLogger(DefaultConfig(serviceName))
	if err != nil {
		// Fall back to a minimal always-available logger; logging must
		// never be the reason the engine fails to start.
		z, _ := zap.NewProduction()
		return &Logger{z: z}
	}
	return l
}

// NewLogger builds a Logger from an explicit Config.
func NewLogger(cfg Config) (*Logger, error) {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "timestamp"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if cfg.Format == FormatJSON {
		encoder = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	}

	var writer zapcore.WriteSyncer
	if cfg.Filename != "" {
		writer = zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.Filename,
			MaxSize:    nz(cfg.MaxSizeMB, 100),
			MaxBackups: nz(cfg.MaxBackups, 5),
			MaxAge:     nz(cfg.MaxAgeDays, 28),
			Compress:   cfg.Compress,
		})
	} else {
		writer = zapcore.AddSync(os.Stdout)
	}

	core := zapcore.NewCore(encoder, writer, getLogLevel(cfg.Level))
	z := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	if cfg.ServiceName != "" {
		z = z.With(zap.String("service", cfg.ServiceName))
	}
	return &Logger{z: z}, nil
}

func nz(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func getLogLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func (l *Logger) Debug(msg string, fields ...Field) { l.z.Debug(msg, toZap(fields)...) }
func (l *Logger) Info(msg string, fields ...Field)  { l.z.Info(msg, toZap(fields)...) }
func (l *Logger) Warn(msg string, fields ...Field)  { l.z.Warn(msg, toZap(fields)...) }
func (l *Logger) Error(msg string, fields ...Field) { l.z.Error(msg, toZap(fields)...) }
func (l *Logger) Fatal(msg string, fields ...Field) { l.z.Fatal(msg, toZap(fields)...) }

// Sync flushes any buffered log entries.
func (l *Logger) Sync() error { return l.z.Sync() }

// Named returns a child Logger tagged with a "component" field.
func (l *Logger) Named(name string) *Logger {
	return &Logger{z: l.z.With(zap.String("component", name))}
}

// WithField returns a child Logger with one additional structured field.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{z: l.z.With(zap.Any(key, value))}
}

// WithFields returns a child Logger with several additional fields.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	z := l.z
	for k, v := range fields {
		z = z.With(zap.Any(k, v))
	}
	return &Logger{z: z}
}

// WithError returns a child Logger with the error attached under "error".
func (l *Logger) WithError(err error) *Logger {
	return &Logger{z: l.z.With(zap.Error(err))}
}

// Field is a lightweight key/value pair, avoiding a direct zap.Field
// dependency at every call site.
type Field struct {
	Key   string
	Value interface{}
}

func String(k, v string) Field          { return Field{k, v} }
func Int(k string, v int) Field         { return Field{k, v} }
func Duration(k string, v interface{}) Field { return Field{k, v} }
func Err(v error) Field                 { return Field{"error", v} }
func Any(k string, v interface{}) Field { return Field{k, v} }

func toZap(fields []Field) []zap.Field {
	out := make([]zap.Field, 0, len(fields))
	for _, f := range fields {
		out = append(out, zap.Any(f.Key, f.Value))
	}
	return out
}
