package logging

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObserved(level zapcore.Level) (Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return NewLoggerFromCore(core), logs
}

func TestLoggerEmitsFields(t *testing.T) {
	log, logs := newObserved(zapcore.DebugLevel)

	log.Info("contract resolved",
		String("contract_id", "abc"),
		Int("counter_offers", 2),
		Bool("using_original_dates", true),
		Duration("elapsed", 5*time.Millisecond),
	)

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "contract resolved", entries[0].Message)

	fields := entries[0].ContextMap()
	assert.Equal(t, "abc", fields["contract_id"])
	assert.Equal(t, int64(2), fields["counter_offers"])
	assert.Equal(t, true, fields["using_original_dates"])
}

func TestLoggerLevelFiltering(t *testing.T) {
	log, logs := newObserved(zapcore.WarnLevel)

	log.Debug("noise")
	log.Info("noise")
	log.Warn("kept")
	log.Error("kept")

	assert.Equal(t, 2, logs.Len())
}

func TestWithAttachesFieldsToChildren(t *testing.T) {
	log, logs := newObserved(zapcore.InfoLevel)

	child := log.With(String("user_id", "u-1"))
	child.Info("listed contracts")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "u-1", entries[0].ContextMap()["user_id"])

	// Parent is not mutated.
	log.Info("plain")
	assert.NotContains(t, logs.All()[1].ContextMap(), "user_id")
}

func TestErrField(t *testing.T) {
	log, logs := newObserved(zapcore.InfoLevel)

	log.Error("send failed", Err(errors.New("smtp: boom")))
	log.Error("no cause", Err(nil))

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "smtp: boom", entries[0].ContextMap()["error"])
	assert.Equal(t, "<nil>", entries[1].ContextMap()["error"])
}

func TestNewLoggerDefaults(t *testing.T) {
	log, err := NewLogger(LogConfig{})
	require.NoError(t, err)
	require.NotNil(t, log)
}

func TestNopLoggerIsSilent(t *testing.T) {
	log := NewNopLogger()
	// Must not panic, and chaining returns a usable logger.
	log.With(String("k", "v")).Named("x").Info("ignored")
}
