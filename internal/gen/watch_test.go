package gen

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchTree(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	for _, d := range []string{"a/b", ".git/objects", "testdata/x", "vendor/m"} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, d), 0o755))
	}

	w, err := fsnotify.NewWatcher()
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, watchTree(w, root))
	assert.ElementsMatch(t, []string{
		root,
		filepath.Join(root, "a"),
		filepath.Join(root, "a", "b"),
	}, w.WatchList())
}

func TestHandleNewDirectory(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	w, err := fsnotify.NewWatcher()
	require.NoError(t, err)
	defer w.Close()
	require.NoError(t, watchTree(w, root))

	g := New(DefaultConfig(), nil)

	sub := filepath.Join(root, "sub")
	require.NoError(t, os.MkdirAll(filepath.Join(sub, "inner"), 0o755))
	assert.True(t, g.handle(w, fsnotify.Event{Name: sub, Op: fsnotify.Create}))
	assert.Contains(t, w.WatchList(), sub)
	assert.Contains(t, w.WatchList(), filepath.Join(sub, "inner"))

	hidden := filepath.Join(root, ".cache")
	require.NoError(t, os.Mkdir(hidden, 0o755))
	assert.False(t, g.handle(w, fsnotify.Event{Name: hidden, Op: fsnotify.Create}))
	assert.NotContains(t, w.WatchList(), hidden)
}

func TestRelevant(t *testing.T) {
	t.Parallel()

	g := New(DefaultConfig(), nil)
	tests := []struct {
		event fsnotify.Event
		want  bool
	}{
		{fsnotify.Event{Name: "/p/a.go", Op: fsnotify.Write}, true},
		{fsnotify.Event{Name: "/p/a.go", Op: fsnotify.Remove}, true},
		{fsnotify.Event{Name: "/p/a.go", Op: fsnotify.Chmod}, false},
		{fsnotify.Event{Name: "/p/coerce_gen.go", Op: fsnotify.Write}, false},
		{fsnotify.Event{Name: "/p/README.md", Op: fsnotify.Write}, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, g.relevant(tt.event), tt.event.String())
	}
}

func TestResetTimerDropsStaleTick(t *testing.T) {
	t.Parallel()

	timer := time.NewTimer(time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	resetTimer(timer, time.Hour)
	defer timer.Stop()

	select {
	case <-timer.C:
		t.Fatal("stale tick delivered after reset")
	default:
	}
}
