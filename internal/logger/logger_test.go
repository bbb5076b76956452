package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func observe(t *testing.T, level zapcore.Level) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(level)
	previous := base.Load()
	SetBase(zap.New(core))
	t.Cleanup(func() { SetBase(previous) })
	return logs
}

func TestLogger_ContextFields(t *testing.T) {
	logs := observe(t, zapcore.DebugLevel)

	New("engine").File("requirements").Function("GetRequirements").
		Info("computed", "destination", "TH")

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "computed", entry.Message)
	assert.Equal(t, "engine", entry.LoggerName)

	fields := entry.ContextMap()
	assert.Equal(t, "requirements", fields["file"])
	assert.Equal(t, "GetRequirements", fields["function"])
	assert.Equal(t, "TH", fields["destination"])
}

func TestLogger_ErrWrapsCause(t *testing.T) {
	logs := observe(t, zapcore.DebugLevel)
	cause := errors.New("disk full")

	err := New("store").Function("Save").Err("failed to save entry", cause, "id", "abc")

	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "failed to save entry: disk full", err.Error())
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, zapcore.ErrorLevel, logs.All()[0].Level)
}

func TestLogger_ErrorAndWrap(t *testing.T) {
	observe(t, zapcore.DebugLevel)
	sentinel := errors.New("not found")

	err := New("store").Error("entry missing", "id", "abc")
	assert.EqualError(t, err, "entry missing")

	wrapped := New("store").Wrap(sentinel, "passport lookup")
	assert.ErrorIs(t, wrapped, sentinel)
	assert.EqualError(t, wrapped, "passport lookup: not found")

	assert.EqualError(t, New("x").ErrMsg("boom"), "boom")
}

func TestLogger_LevelFiltering(t *testing.T) {
	logs := observe(t, zapcore.WarnLevel)

	log := New("cache")
	log.Debug("hidden")
	log.Info("hidden")
	log.Warn("shown")

	assert.Equal(t, 1, logs.Len())
}

func TestGormLogger_Trace(t *testing.T) {
	logs := observe(t, zapcore.DebugLevel)
	gl := NewGormLogger(gormlogger.Warn, 10*time.Millisecond)
	query := func() (string, int64) { return "SELECT 1", 1 }

	gl.Trace(context.Background(), time.Now(), query, gormlogger.ErrRecordNotFound)
	assert.Equal(t, 0, logs.Len(), "record not found is not logged")

	gl.Trace(context.Background(), time.Now(), query, errors.New("syntax error"))
	assert.Equal(t, 1, logs.FilterMessage("SQL error").Len())

	gl.Trace(context.Background(), time.Now().Add(-time.Second), query, nil)
	assert.Equal(t, 1, logs.FilterMessage("slow SQL").Len())

	silent := gl.LogMode(gormlogger.Silent)
	silent.Trace(context.Background(), time.Now(), query, errors.New("ignored"))
	assert.Equal(t, 2, logs.Len())
}

func TestGormLevel(t *testing.T) {
	assert.Equal(t, gormlogger.Info, GormLevel("debug"))
	assert.Equal(t, gormlogger.Warn, GormLevel("info"))
	assert.Equal(t, gormlogger.Error, GormLevel("error"))
}
