package logger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"DEBUG":   zapcore.DebugLevel,
		"warn":    zapcore.WarnLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"info":    zapcore.InfoLevel,
		"":        zapcore.InfoLevel,
		"bogus":   zapcore.InfoLevel,
	}
	for in, want := range cases {
		assert.Equal(t, want, parseLevel(in), "parseLevel(%q)", in)
	}
}

func TestNew(t *testing.T) {
	l, err := New(Config{Level: "debug"})
	require.NoError(t, err)
	require.NotNil(t, l)
}

func TestWithAttachesFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	l := FromZap(zap.New(core)).With(String("component", "scheduler"))

	l.Info("run finished", Int("sources", 2), Error(errors.New("boom")))
	l.Debug("dropped")

	entries := logs.All()
	require.Len(t, entries, 1)
	ctx := entries[0].ContextMap()
	assert.Equal(t, "scheduler", ctx["component"])
	assert.EqualValues(t, 2, ctx["sources"])
	assert.Equal(t, "boom", ctx["error"])
}
