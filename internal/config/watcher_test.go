package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeSettings(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newTestWatcher(t *testing.T, path string) *Watcher {
	t.Helper()
	w, err := NewWatcher(path, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })
	return w
}

func TestWatcher_InitialSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	writeSettings(t, path, "provider: stub\nmodel: stub\n")

	w := newTestWatcher(t, path)
	assert.Equal(t, "stub", w.Snapshot().Provider)
	assert.Equal(t, "stub", w.Snapshot().Model)
}

func TestWatcher_MissingFileYieldsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	w := newTestWatcher(t, path)
	assert.Equal(t, DefaultChatSettings(), w.Snapshot())
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	writeSettings(t, path, "provider: stub\nmodel: stub\n")
	w := newTestWatcher(t, path)

	writeSettings(t, path, "provider: gemini\nmodel: gemini-2.0-flash\ntemperature: 0.7\n")

	require.Eventually(t, func() bool {
		return w.Snapshot().Provider == "gemini"
	}, 3*time.Second, 25*time.Millisecond, "settings never reloaded")
	assert.Equal(t, 0.7, w.Snapshot().Temperature)
}

func TestWatcher_ReloadFailureKeepsPrevious(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	writeSettings(t, path, "provider: stub\nmodel: stub\ntemperature: 0.4\n")
	w := newTestWatcher(t, path)

	writeSettings(t, path, "provider: [unclosed")

	assert.Never(t, func() bool {
		return w.Snapshot().Provider != "stub"
	}, 500*time.Millisecond, 25*time.Millisecond, "broken file must not replace the snapshot")
	assert.Equal(t, 0.4, w.Snapshot().Temperature)
}

func TestWatcher_IgnoresSiblingFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")
	writeSettings(t, path, "provider: stub\nmodel: stub\n")
	w := newTestWatcher(t, path)

	writeSettings(t, filepath.Join(dir, "other.yaml"), "provider: gemini\n")

	assert.Never(t, func() bool {
		return w.Snapshot().Provider != "stub"
	}, 300*time.Millisecond, 25*time.Millisecond)
}
