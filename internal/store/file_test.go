package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFile_WritesOneFilePerKey(t *testing.T) {
	dir := t.TempDir()
	f, err := OpenFile(dir)
	require.NoError(t, err)
	defer f.Close()

	ctx := context.Background()
	require.NoError(t, f.Set(ctx, "blog-posts", []byte("[]")))
	require.NoError(t, f.Set(ctx, "blog-user", []byte("{}")))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"blog-posts.kv", "blog-user.kv"}, names)
}

func TestFile_Closed(t *testing.T) {
	f, err := OpenFile(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, _, err = f.Get(context.Background(), "k")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, f.Set(context.Background(), "k", nil), ErrClosed)
}

func TestFile_WatchReportsSetAndDelete(t *testing.T) {
	f, err := OpenFile(t.TempDir())
	require.NoError(t, err)
	defer f.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := f.Watch(ctx)
	require.NoError(t, err)

	require.NoError(t, f.Set(context.Background(), "blog-posts", []byte("[]")))
	ev := waitForEvent(t, events, "blog-posts")
	assert.Equal(t, EventSet, ev.Op)

	require.NoError(t, f.Delete(context.Background(), "blog-posts"))
	ev = waitForEvent(t, events, "blog-posts")
	assert.Equal(t, EventDelete, ev.Op)

	cancel()
	for range events {
		// drain until the watcher goroutine closes the channel
	}
}

func TestFile_WatchMissingDir(t *testing.T) {
	f := &File{dir: filepath.Join(t.TempDir(), "gone")}
	_, err := f.Watch(context.Background())
	assert.Error(t, err)
}

func TestKeyEvent(t *testing.T) {
	tests := []struct {
		name   string
		event  fsnotify.Event
		want   Event
		wantOK bool
	}{
		{"create", fsnotify.Event{Name: "/d/blog-posts.kv", Op: fsnotify.Create}, Event{Key: "blog-posts", Op: EventSet}, true},
		{"write", fsnotify.Event{Name: "/d/blog-posts.kv", Op: fsnotify.Write}, Event{Key: "blog-posts", Op: EventSet}, true},
		{"remove", fsnotify.Event{Name: "/d/blog-user.kv", Op: fsnotify.Remove}, Event{Key: "blog-user", Op: EventDelete}, true},
		{"escaped key", fsnotify.Event{Name: "/d/a%2Fb.kv", Op: fsnotify.Create}, Event{Key: "a/b", Op: EventSet}, true},
		{"temp file", fsnotify.Event{Name: "/d/.tmp-123", Op: fsnotify.Create}, Event{}, false},
		{"foreign file", fsnotify.Event{Name: "/d/notes.txt", Op: fsnotify.Write}, Event{}, false},
		{"chmod", fsnotify.Event{Name: "/d/blog-posts.kv", Op: fsnotify.Chmod}, Event{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := keyEvent(tt.event)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

// waitForEvent returns the next event for key, skipping unrelated ones.
func waitForEvent(t *testing.T, events <-chan Event, key string) Event {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			require.True(t, ok, "event channel closed early")
			if ev.Key == key {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for event on %q", key)
		}
	}
}
