// Package logger wraps zap behind the small object-logging surface used by
// every pipeline component.
package logger

import (
	"os"
	"strings"
	"sync/atomic"

	"github.com/samvad-hq/samvad-article-pipeline/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the structured logging surface shared by pipeline components.
// Every call logs obj as a single structured field named key.
type Logger interface {
	InfoObj(msg, key string, obj interface{})
	DebugObj(msg, key string, obj interface{})
	WarnObj(msg, key string, obj interface{})
	ErrorObj(msg, key string, obj interface{})
}

// std backs the package-level helpers once Init has run.
var std atomic.Pointer[zapLogger]

// Init builds the process logger from config and installs it for the
// package-level helpers. Development environments get the console encoder;
// everything else logs JSON to stdout.
func Init(cfg *config.Config) (Logger, error) {
	base := zap.New(newCore(cfg, zapcore.Lock(os.Stdout)),
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	).With(zap.String("app", cfg.AppName), zap.String("env", cfg.Env))

	l := &zapLogger{z: base.WithOptions(zap.AddCallerSkip(1))}
	std.Store(l)
	return l, nil
}

func newCore(cfg *config.Config, out zapcore.WriteSyncer) zapcore.Core {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	encoder := zapcore.NewJSONEncoder(encoderCfg)
	if strings.EqualFold(cfg.Env, "development") {
		encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	}
	return zapcore.NewCore(encoder, out, ParseLevel(cfg.LogLevel))
}

// ParseLevel maps a config level string to a zap level, defaulting to info.
func ParseLevel(raw string) zapcore.Level {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "warning" {
		raw = "warn"
	}
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		return zapcore.InfoLevel
	}
	return level
}

// Close flushes the process logger.
func Close() error {
	if l := std.Load(); l != nil {
		return l.z.Sync()
	}
	return nil
}

// New wraps a zap.Logger so it satisfies Logger.
func New(z *zap.Logger) Logger {
	if z == nil {
		return NopLogger{}
	}
	return &zapLogger{z: z.WithOptions(zap.AddCallerSkip(1))}
}

type zapLogger struct {
	z *zap.Logger
}

func (l *zapLogger) InfoObj(msg, key string, obj interface{})  { l.z.Info(msg, zap.Any(key, obj)) }
func (l *zapLogger) DebugObj(msg, key string, obj interface{}) { l.z.Debug(msg, zap.Any(key, obj)) }
func (l *zapLogger) WarnObj(msg, key string, obj interface{})  { l.z.Warn(msg, zap.Any(key, obj)) }
func (l *zapLogger) ErrorObj(msg, key string, obj interface{}) { l.z.Error(msg, zap.Any(key, obj)) }

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) InfoObj(string, string, interface{})  {}
func (NopLogger) DebugObj(string, string, interface{}) {}
func (NopLogger) WarnObj(string, string, interface{})  {}
func (NopLogger) ErrorObj(string, string, interface{}) {}

// Ensure returns log, or a NopLogger when log is nil.
func Ensure(log Logger) Logger {
	if log == nil {
		return NopLogger{}
	}
	return log
}

// Default returns the logger installed by Init, or a NopLogger before Init.
func Default() Logger {
	if l := std.Load(); l != nil {
		return l
	}
	return NopLogger{}
}

// Package-level helpers log through Default; they are no-ops before Init.

func InfoObj(msg, key string, obj interface{})  { Default().InfoObj(msg, key, obj) }
func DebugObj(msg, key string, obj interface{}) { Default().DebugObj(msg, key, obj) }
func WarnObj(msg, key string, obj interface{})  { Default().WarnObj(msg, key, obj) }
func ErrorObj(msg, key string, obj interface{}) { Default().ErrorObj(msg, key, obj) }
