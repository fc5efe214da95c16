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

func TestLogGridEventFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	l := Wrap(zap.New(core))

	l.LogGrid("place", 7, map[string]interface{}{"ask_count": 3})
	l.LogFill("fill_ask", 7<<32|0x80000001, nil)
	l.LogError(errors.New("boom"), map[string]interface{}{"op": "cancel_grid"})

	require.Equal(t, 3, logs.Len())
	entries := logs.All()
	assert.Equal(t, "grid_event", entries[0].Message)
	assert.Equal(t, "place", entries[0].ContextMap()["event"])
	assert.EqualValues(t, 7, entries[0].ContextMap()["grid_id"])
	assert.Equal(t, "0x0000000780000001", entries[1].ContextMap()["handle"])
	assert.Equal(t, "boom", entries[2].ContextMap()["error"])
}

func TestNewRejectsBadLevel(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	assert.Error(t, err)

	l, err := New(DefaultConfig())
	require.NoError(t, err)
	assert.NotNil(t, l.WithFields(map[string]interface{}{"component": "test"}))
}
