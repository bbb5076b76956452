package logger

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var base atomic.Pointer[zap.Logger]

func init() {
	base.Store(build("info", "console"))
}

// Init replaces the process-wide zap core. Loggers created before the call keep
// resolving the current core on every write.
func Init(level, format string) {
	base.Store(build(level, format))
}

// SetBase installs an already built zap logger, mainly for tests.
func SetBase(z *zap.Logger) {
	base.Store(z)
}

func build(level, format string) *zap.Logger {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
	}

	var encoder zapcore.Encoder
	if format == "json" {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), parseLevel(level))
	return zap.New(core, zap.AddStacktrace(zapcore.ErrorLevel))
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
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

type Logger struct {
	component string
	file      string
	function  string
}

func New(component string) Logger {
	return Logger{component: component}
}

func (l Logger) File(name string) Logger {
	l.file = name
	return l
}

func (l Logger) Function(name string) Logger {
	l.function = name
	return l
}

func (l Logger) sugar() *zap.SugaredLogger {
	z := base.Load().Named(l.component)
	if l.file != "" {
		z = z.With(zap.String("file", l.file))
	}
	if l.function != "" {
		z = z.With(zap.String("function", l.function))
	}
	return z.Sugar()
}

func (l Logger) Debug(msg string, args ...any) {
	l.sugar().Debugw(msg, args...)
}

func (l Logger) Info(msg string, args ...any) {
	l.sugar().Infow(msg, args...)
}

func (l Logger) Warn(msg string, args ...any) {
	l.sugar().Warnw(msg, args...)
}

// Err logs msg with the cause and returns the cause wrapped with msg.
func (l Logger) Err(msg string, err error, args ...any) error {
	l.Er(msg, err, args...)
	if err == nil {
		return errors.New(msg)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Er logs msg with the cause without returning anything.
func (l Logger) Er(msg string, err error, args ...any) {
	l.sugar().Errorw(msg, append(args, "error", err)...)
}

// Error logs msg and returns it as a new error.
func (l Logger) Error(msg string, args ...any) error {
	l.sugar().Errorw(msg, args...)
	return errors.New(msg)
}

// Wrap logs msg and returns sentinel wrapped with msg so callers can match it
// with errors.Is.
func (l Logger) Wrap(sentinel error, msg string, args ...any) error {
	l.sugar().Warnw(msg, append(args, "kind", sentinel.Error())...)
	return fmt.Errorf("%s: %w", msg, sentinel)
}

func (l Logger) ErrMsg(msg string) error {
	l.sugar().Error(msg)
	return errors.New(msg)
}

func (l Logger) ErMsg(msg string) {
	l.sugar().Error(msg)
}
