package stride

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func (s *countingSink) seen(files, dirs []string) func() bool {
	return func() bool {
		s.lock.Lock()
		defer s.lock.Unlock()
		for _, f := range files {
			if s.files[f] == 0 {
				return false
			}
		}
		for _, d := range dirs {
			if s.dirs[d] == 0 {
				return false
			}
		}
		return true
	}
}

// startWatch runs Watch in the background until the test ends.
func startWatch(t *testing.T, root string, sink AccessSink, opts WatchOptions) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, root, sink, opts)
	}()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})
	// Give the watcher a moment to initialize
	time.Sleep(200 * time.Millisecond)
}

func TestWatch(t *testing.T) {
	root := t.TempDir()
	buildTree(t, root, "existing/")

	sink := newCountingSink()
	startWatch(t, root, sink, WatchOptions{Recursive: true})

	buildTree(t, root, "top.txt", "existing/inner.txt")
	require.Eventually(t, sink.seen([]string{"top.txt", "existing/inner.txt"}, nil), 5*time.Second, 50*time.Millisecond)

	// New directories are listed and, in recursive mode, watched.
	require.NoError(t, os.Mkdir(filepath.Join(root, "fresh"), 0o755))
	require.Eventually(t, sink.seen(nil, []string{"fresh"}), 5*time.Second, 50*time.Millisecond)
	buildTree(t, root, "fresh/new.txt")
	require.Eventually(t, sink.seen([]string{"fresh/new.txt"}, nil), 5*time.Second, 50*time.Millisecond)
}

func TestWatchHidden(t *testing.T) {
	root := t.TempDir()

	sink := newCountingSink()
	startWatch(t, root, sink, WatchOptions{})

	buildTree(t, root, ".swap", "visible")
	require.Eventually(t, sink.seen([]string{"visible"}, nil), 5*time.Second, 50*time.Millisecond)

	sink.lock.Lock()
	defer sink.lock.Unlock()
	require.NotContains(t, sink.files, ".swap")
}

func TestWatchOnEvent(t *testing.T) {
	root := t.TempDir()

	events := make(chan string, 16)
	startWatch(t, root, newCountingSink(), WatchOptions{
		Events: []WatchEvent{EventCreate},
		OnEvent: func(path string, isDir bool) {
			events <- path
		},
	})

	buildTree(t, root, "a")
	select {
	case path := <-events:
		require.Equal(t, "a", path)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestWatchTimeout(t *testing.T) {
	root := t.TempDir()
	start := time.Now()
	require.NoError(t, Watch(context.Background(), root, newCountingSink(), WatchOptions{Timeout: 100 * time.Millisecond}))
	require.Less(t, time.Since(start), 5*time.Second)
}

func TestWatchMissingRoot(t *testing.T) {
	err := Watch(context.Background(), filepath.Join(t.TempDir(), "missing"), newCountingSink(), WatchOptions{})
	require.Error(t, err)
}
