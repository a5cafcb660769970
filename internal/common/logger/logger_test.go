package logger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"info", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"", zapcore.InfoLevel},
		{"verbose", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLevel(tt.in))
		})
	}
}

func TestZapWrapper_WithCarriesFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := NewZapAdapter(zap.New(core))

	scoped := log.With(map[string]interface{}{"component": "ask"})
	scoped.Info("answered", map[string]interface{}{"intent": "follow_up"})
	scoped.WithError(errors.New("boom")).Error("failed", nil)

	entries := logs.All()
	assert.Len(t, entries, 2)

	first := entries[0].ContextMap()
	assert.Equal(t, "ask", first["component"])
	assert.Equal(t, "follow_up", first["intent"])

	second := entries[1].ContextMap()
	assert.Equal(t, "boom", second["error"])
}

func TestToZapFields_ErrorValues(t *testing.T) {
	fields := toZapFields(map[string]interface{}{"cause": errors.New("x")})
	assert.Len(t, fields, 1)
	assert.Equal(t, zapcore.ErrorType, fields[0].Type)

	assert.Nil(t, toZapFields(nil))
}

func TestNew_FallsBackOnBadOutput(t *testing.T) {
	l := New("info", "json", "/nonexistent-dir/for/sure/log.txt")
	assert.NotNil(t, l)
}
