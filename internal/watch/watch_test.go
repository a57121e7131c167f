package watch

import (
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu    sync.Mutex
	paths []string
}

func (r *recorder) Invalidate(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, path)
}

func (r *recorder) seen(path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Contains(r.paths, path)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.paths)
}

func TestDebounceCoalescesEvents(t *testing.T) {
	rec := &recorder{}
	w, err := New(t.TempDir(), rec, time.Hour)
	require.NoError(t, err)
	defer w.Stop()

	w.record("/photos/a.jpg")
	w.record("/photos/a.jpg")
	w.record("/photos/b.png")
	assert.Equal(t, 0, rec.count(), "nothing is delivered before the quiet period")

	w.flush()
	assert.Equal(t, 2, rec.count())
	assert.True(t, rec.seen("/photos/a.jpg"))
	assert.True(t, rec.seen("/photos/b.png"))

	w.flush()
	assert.Equal(t, 2, rec.count())
}

func TestHandleFiltersEvents(t *testing.T) {
	rec := &recorder{}
	w, err := New(t.TempDir(), rec, time.Hour)
	require.NoError(t, err)
	defer w.Stop()

	w.handle(fsnotify.Event{Name: "/photos/a.jpg", Op: fsnotify.Write})
	w.handle(fsnotify.Event{Name: "/photos/notes.txt", Op: fsnotify.Write})
	w.handle(fsnotify.Event{Name: "/photos/.hidden/b.jpg", Op: fsnotify.Remove})
	w.handle(fsnotify.Event{Name: "/photos/c.jpg", Op: fsnotify.Chmod})
	w.flush()

	assert.Equal(t, 1, rec.count())
	assert.True(t, rec.seen("/photos/a.jpg"))
}

func TestWatcherDeliversChanges(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "2024")
	require.NoError(t, os.Mkdir(sub, 0o755))
	photo := filepath.Join(sub, "photo.jpg")
	require.NoError(t, os.WriteFile(photo, []byte("one"), 0o644))

	rec := &recorder{}
	w, err := New(root, rec, 20*time.Millisecond)
	require.NoError(t, err)
	w.Start()
	defer w.Stop()

	require.NoError(t, os.WriteFile(photo, []byte("two"), 0o644))
	assert.Eventually(t, func() bool { return rec.seen(photo) }, 5*time.Second, 10*time.Millisecond)

	// Directories created after start are watched too.
	later := filepath.Join(root, "later")
	require.NoError(t, os.Mkdir(later, 0o755))
	require.Eventually(t, func() bool {
		w.mu.Lock()
		defer w.mu.Unlock()
		return w.dirs == 3
	}, 5*time.Second, 10*time.Millisecond)

	added := filepath.Join(later, "new.png")
	require.NoError(t, os.WriteFile(added, []byte("x"), 0o644))
	assert.Eventually(t, func() bool { return rec.seen(added) }, 5*time.Second, 10*time.Millisecond)
}

func TestStopFlushesPendingChanges(t *testing.T) {
	rec := &recorder{}
	w, err := New(t.TempDir(), rec, time.Hour)
	require.NoError(t, err)
	w.Start()

	w.record("/photos/a.jpg")
	w.Stop()
	assert.True(t, rec.seen("/photos/a.jpg"))

	w.record("/photos/b.jpg")
	w.flush()
	assert.False(t, rec.seen("/photos/b.jpg"), "nothing is recorded after Stop")
}

func TestNewFailsForMissingRoot(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing"), &recorder{}, 0)
	assert.Error(t, err)
}
