package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeOverridesFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestNewWatcher_MissingFileFails(t *testing.T) {
	_, err := NewWatcher(filepath.Join(t.TempDir(), "missing.json"), nil, nil)
	assert.Error(t, err)
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	file := filepath.Join(t.TempDir(), "overrides.json")
	writeOverridesFile(t, file, `{"samplingRates": {"info": 1.0}}`)

	reloaded := make(chan *Overrides, 1)
	watcher, err := NewWatcher(file, &WatcherConfig{
		DebounceDuration: 50 * time.Millisecond,
		OnChange: func(overrides *Overrides) error {
			select {
			case reloaded <- overrides:
			default:
			}
			return nil
		},
	}, nil)
	require.NoError(t, err)

	watcher.Start()
	defer watcher.Stop()

	writeOverridesFile(t, file, `{"samplingRates": {"info": 0.2}}`)

	select {
	case overrides := <-reloaded:
		assert.Equal(t, 0.2, overrides.SamplingRates["info"])
	case <-time.After(3 * time.Second):
		t.Fatal("watcher did not reload after write")
	}
}

func TestWatcher_InvalidContentKeepsPreviousAndReportsError(t *testing.T) {
	file := filepath.Join(t.TempDir(), "overrides.json")
	writeOverridesFile(t, file, `{"samplingRates": {"info": 1.0}}`)

	applied := make(chan struct{}, 1)
	failed := make(chan error, 1)
	watcher, err := NewWatcher(file, &WatcherConfig{
		DebounceDuration: 50 * time.Millisecond,
		OnChange: func(overrides *Overrides) error {
			select {
			case applied <- struct{}{}:
			default:
			}
			return nil
		},
		OnError: func(err error) {
			select {
			case failed <- err:
			default:
			}
		},
	}, nil)
	require.NoError(t, err)

	watcher.Start()
	defer watcher.Stop()

	// Conteúdo inválido dispara OnError, nunca OnChange
	writeOverridesFile(t, file, `{"samplingRates": {"info": 7}}`)

	select {
	case err := <-failed:
		assert.Error(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("watcher did not report reload failure")
	}

	select {
	case <-applied:
		t.Fatal("invalid overrides must not be applied")
	default:
	}
}
