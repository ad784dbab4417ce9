package logger

import (
	"context"
	"log/slog"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
	"go.uber.org/zap/zapcore"
)

var (
	globalLogger *slog.Logger
	zapLogger    *zap.Logger
	once         sync.Once
)

func Init(level string) {
	once.Do(func() {
		var zapLevel zapcore.Level
		switch level {
		case "debug":
			zapLevel = zapcore.DebugLevel
		case "warn":
			zapLevel = zapcore.WarnLevel
		case "error":
			zapLevel = zapcore.ErrorLevel
		default:
			zapLevel = zapcore.InfoLevel
		}

		// JSON production core, exposed through slog
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapLevel)
		cfg.EncoderConfig.TimeKey = "time"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		built, err := cfg.Build()
		if err != nil {
			built = zap.NewNop()
		}
		zapLogger = built
		globalLogger = slog.New(zapslog.NewHandler(built.Core()))
		slog.SetDefault(globalLogger)
	})
}

// Get returns the global logger instance, initialising it at info level
// when Init was never called.
func Get() *slog.Logger {
	Init("info")
	return globalLogger
}

// Sync flushes buffered entries of the underlying core.
func Sync() {
	if zapLogger != nil {
		_ = zapLogger.Sync()
	}
}

// Helper functions for quick logging
func Info(msg string, args ...any) {
	Get().Info(msg, args...)
}

func Error(msg string, args ...any) {
	Get().Error(msg, args...)
}

func Warn(msg string, args ...any) {
	Get().Warn(msg, args...)
}

func Debug(msg string, args ...any) {
	Get().Debug(msg, args...)
}

func With(args ...any) *slog.Logger {
	return Get().With(args...)
}

func LogError(ctx context.Context, err error, msg string, args ...any) {
	if err == nil {
		return
	}
	args = append(args, slog.String("error", err.Error()))
	Get().ErrorContext(ctx, msg, args...)
}
