package logger

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Brownie44l1/fer-inference/pkg/errors"
)

var globalLogger *Logger

// Logger is a zap SugaredLogger whose error-level calls are also sent to an
// errors.Tracker when one is attached.
type Logger struct {
	*zap.SugaredLogger
	tracker errors.Tracker
}

// New builds a logger. env "production" selects JSON output; anything else
// gets the colored console encoder. Unknown levels mean info.
func New(level string, env string) (*Logger, error) {
	var config zap.Config

	if env == "production" {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		zapLevel = zapcore.InfoLevel
	}
	config.Level = zap.NewAtomicLevelAt(zapLevel)

	zl, err := config.Build(
		zap.AddCallerSkip(1),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	if err != nil {
		return nil, err
	}

	return &Logger{SugaredLogger: zl.Sugar()}, nil
}

// Init replaces the process logger returned by Get.
func Init(level string, env string) error {
	l, err := New(level, env)
	if err != nil {
		return err
	}
	globalLogger = l
	return nil
}

// Nop discards everything.
func Nop() *Logger {
	return &Logger{SugaredLogger: zap.NewNop().Sugar()}
}

// SetErrorTracker attaches tracker to the process logger. Children created
// with With afterwards inherit it.
func SetErrorTracker(tracker errors.Tracker) {
	globalLogger = Get().WithErrorTracker(tracker)
}

// Get returns the process logger, a development logger until Init runs.
func Get() *Logger {
	if globalLogger == nil {
		zl, _ := zap.NewDevelopment()
		globalLogger = &Logger{SugaredLogger: zl.Sugar()}
	}
	return globalLogger
}

// WithErrorTracker returns a copy of l reporting to tracker.
func (l *Logger) WithErrorTracker(tracker errors.Tracker) *Logger {
	return &Logger{SugaredLogger: l.SugaredLogger, tracker: tracker}
}

// With returns a child logger carrying the extra key/value pairs.
func (l *Logger) With(args ...interface{}) *Logger {
	return &Logger{
		SugaredLogger: l.SugaredLogger.With(args...),
		tracker:       l.tracker,
	}
}

func (l *Logger) Error(args ...interface{}) {
	l.SugaredLogger.Error(args...)
	l.report(context.Background(), errors.Wrapf(errors.ErrInternal, "%v", fmt.Sprint(args...)), nil)
}

func (l *Logger) Errorf(template string, args ...interface{}) {
	l.SugaredLogger.Errorf(template, args...)
	l.report(context.Background(), fmt.Errorf(template, args...), nil)
}

func (l *Logger) Errorw(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Errorw(msg, keysAndValues...)
	l.report(context.Background(), errors.New(msg), nil)
}

// Capture logs msg with err and the key/value pairs, then reports err itself
// (not msg) to the tracker with tags. Use it where the error value matters
// more than the log line, such as a failed request.
func (l *Logger) Capture(ctx context.Context, err error, tags map[string]string, msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Errorw(msg, append(keysAndValues, "error", err)...)
	if err != nil {
		l.report(ctx, err, tags)
	}
}

func (l *Logger) report(ctx context.Context, err error, tags map[string]string) {
	if l.tracker == nil {
		return
	}
	if tags == nil {
		tags = map[string]string{"component": "logger"}
	}
	_ = l.tracker.CaptureError(ctx, err, tags)
}

// Sync flushes the process logger.
func Sync() error {
	if globalLogger != nil {
		return globalLogger.Sync()
	}
	return nil
}
