package config

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherReloadsOnWrite(t *testing.T) {
	path := writeTempConfig(t, sampleConfig)
	w, err := NewWatcher(path, HotReloadConfig{Enabled: true}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	updates := make(chan AppConfig, 4)
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx, func(c AppConfig) { updates <- c }) }()

	// 无效内容被拒绝，不触发回调
	require.NoError(t, os.WriteFile(path, []byte("env: staging\n"), 0o644))
	updated := strings.Replace(sampleConfig, "oneshot_fee_bps: 800", "oneshot_fee_bps: 900", 1)
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))

	select {
	case c := <-updates:
		assert.Equal(t, uint32(900), c.Engine.OneshotFeeBps)
	case <-time.After(3 * time.Second):
		t.Fatal("expected update callback")
	}

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	path := writeTempConfig(t, sampleConfig)
	w, err := NewWatcher(path, HotReloadConfig{Enabled: true}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	called := false
	go func() { _ = os.WriteFile(path+".bak", []byte(sampleConfig), 0o644) }()
	err = w.Start(ctx, func(AppConfig) { called = true })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, called)
}

func TestNewWatcherMissingDir(t *testing.T) {
	_, err := NewWatcher("/nonexistent/dir/cfg.yaml", DefaultHotReloadConfig(), nil)
	assert.Error(t, err)
}
