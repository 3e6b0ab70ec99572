package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/livedown/internal/errors"
)

func TestEventTypeString(t *testing.T) {
	testCases := []struct {
		eventType EventType
		expected  string
	}{
		{EventTypeCreated, "created"},
		{EventTypeModified, "modified"},
		{EventTypeDeleted, "deleted"},
		{EventTypeRenamed, "renamed"},
		{EventType(99), "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.eventType.String())
		})
	}
}

func setupTestWatcher(t *testing.T, content string, opts ...Option) (*Watcher, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.md")
	if content != "" {
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	opts = append([]Option{WithDebounce(10 * time.Millisecond)}, opts...)
	w, err := Open(path, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return w, path
}

func waitEvent(t *testing.T, w *Watcher) ChangeEvent {
	t.Helper()
	select {
	case ev, ok := <-w.Events():
		require.True(t, ok, "events channel closed")
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for change event")
		return ChangeEvent{}
	}
}

func assertNoEvent(t *testing.T, w *Watcher, wait time.Duration) {
	t.Helper()
	select {
	case ev := <-w.Events():
		t.Fatalf("unexpected event: %+v", ev)
	case <-time.After(wait):
	}
}

func TestOpenResolvesAbsolutePath(t *testing.T) {
	w, path := setupTestWatcher(t, "# Hi")
	assert.True(t, filepath.IsAbs(w.Path()))
	assert.Equal(t, filepath.Clean(path), w.Path())
}

func TestOpenMissingDirectory(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing", "doc.md"))
	require.Error(t, err)
	assert.True(t, errors.HasErrorCode(err, errors.ErrCodeWatchFailed))
}

func TestWriteEmitsEvent(t *testing.T) {
	w, path := setupTestWatcher(t, "# Hi")

	require.NoError(t, os.WriteFile(path, []byte("# Hi\n\n- [ ] task"), 0o644))

	ev := waitEvent(t, w)
	assert.Equal(t, w.Path(), ev.Path)
	assert.GreaterOrEqual(t, ev.Coalesced, 1)
}

func TestMissingDocumentCanAppear(t *testing.T) {
	w, path := setupTestWatcher(t, "")

	require.NoError(t, os.WriteFile(path, []byte("late"), 0o644))

	ev := waitEvent(t, w)
	assert.Equal(t, w.Path(), ev.Path)
}

func TestSiblingChangesIgnored(t *testing.T) {
	w, path := setupTestWatcher(t, "# Hi")

	sibling := filepath.Join(filepath.Dir(path), "other.md")
	require.NoError(t, os.WriteFile(sibling, []byte("noise"), 0o644))

	assertNoEvent(t, w, 200*time.Millisecond)
}

func TestAtomicSaveByRename(t *testing.T) {
	w, path := setupTestWatcher(t, "# Hi")

	tmp := filepath.Join(filepath.Dir(path), ".doc.md.swp")
	require.NoError(t, os.WriteFile(tmp, []byte("# Saved"), 0o644))
	require.NoError(t, os.Rename(tmp, path))

	ev := waitEvent(t, w)
	assert.Equal(t, w.Path(), ev.Path)

	// Still watching after the original inode was replaced
	require.NoError(t, os.WriteFile(path, []byte("# Again"), 0o644))
	waitEvent(t, w)
}

func TestDeleteThenRecreate(t *testing.T) {
	w, path := setupTestWatcher(t, "# Hi", WithDebounce(0))

	require.NoError(t, os.Remove(path))
	ev := waitEvent(t, w)
	assert.Equal(t, EventTypeDeleted, ev.Type)

	require.NoError(t, os.WriteFile(path, []byte("# Back"), 0o644))
	ev = waitEvent(t, w)
	assert.Equal(t, w.Path(), ev.Path)
}

func TestCloseIsIdempotentAndClosesChannels(t *testing.T) {
	w, path := setupTestWatcher(t, "# Hi")

	require.NoError(t, w.Close())
	assert.NoError(t, w.Close())

	_, ok := <-w.Events()
	assert.False(t, ok)
	_, ok = <-w.Errors()
	assert.False(t, ok)

	// Writes after Close must not panic on the closed channels
	require.NoError(t, os.WriteFile(path, []byte("# After"), 0o644))
	time.Sleep(50 * time.Millisecond)
}
