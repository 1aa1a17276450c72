package documents

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unihelp/cli/internal/vectorstore"
)

const testDebounce = 25 * time.Millisecond

func startWatcher(t *testing.T, p *Pipeline, dir string) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- NewWatcher(p, dir, testDebounce, log.New(io.Discard, "", 0)).Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("watcher did not stop")
		}
	})
	// Give the watcher a moment to register before the test touches files.
	time.Sleep(50 * time.Millisecond)
	return cancel
}

func storeCount(t *testing.T, store vectorstore.Store) func() int {
	t.Helper()
	return func() int {
		n, err := store.Count(context.Background())
		require.NoError(t, err)
		return n
	}
}

func TestWatcherIndexesNewFile(t *testing.T) {
	dir := t.TempDir()
	store := newTestStore(t)
	startWatcher(t, newTestPipeline(t, store, &stubEmbedder{}), dir)

	writeDoc(t, dir, "fees.txt", wordRun(20))

	count := storeCount(t, store)
	assert.Eventually(t, func() bool { return count() == 3 }, 3*time.Second, 10*time.Millisecond)
}

func TestWatcherReindexesChangedFile(t *testing.T) {
	dir := t.TempDir()
	store := newTestStore(t)
	pipeline := newTestPipeline(t, store, &stubEmbedder{})

	path := writeDoc(t, dir, "fees.txt", wordRun(20))
	_, err := pipeline.IngestFile(context.Background(), path, false)
	require.NoError(t, err)

	startWatcher(t, pipeline, dir)
	require.NoError(t, os.WriteFile(path, []byte(wordRun(5)), 0644))

	count := storeCount(t, store)
	assert.Eventually(t, func() bool { return count() == 1 }, 3*time.Second, 10*time.Millisecond)
}

func TestWatcherRemovesDeletedFile(t *testing.T) {
	dir := t.TempDir()
	store := newTestStore(t)
	pipeline := newTestPipeline(t, store, &stubEmbedder{})

	path := writeDoc(t, dir, "fees.txt", wordRun(5))
	_, err := pipeline.IngestFile(context.Background(), path, false)
	require.NoError(t, err)

	startWatcher(t, pipeline, dir)
	require.NoError(t, os.Remove(path))

	count := storeCount(t, store)
	assert.Eventually(t, func() bool { return count() == 0 }, 3*time.Second, 10*time.Millisecond)
}

func TestWatcherIgnoresIrrelevantFiles(t *testing.T) {
	dir := t.TempDir()
	store := newTestStore(t)
	startWatcher(t, newTestPipeline(t, store, &stubEmbedder{}), dir)

	writeDoc(t, dir, ".draft.txt", wordRun(5))
	writeDoc(t, dir, "photo.png", "not a document")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "archive.txt.d"), 0755))

	time.Sleep(6 * testDebounce)
	count := storeCount(t, store)
	assert.Zero(t, count())
}

func TestWatcherCoalescesEventBursts(t *testing.T) {
	dir := t.TempDir()
	store := newTestStore(t)
	emb := &stubEmbedder{}
	startWatcher(t, newTestPipeline(t, store, emb), dir)

	// Several rapid rewrites within one debounce window land as a single
	// ingestion of the final content.
	path := filepath.Join(dir, "visa.md")
	for i := 0; i < 4; i++ {
		require.NoError(t, os.WriteFile(path, []byte(wordRun(5)), 0644))
		time.Sleep(2 * time.Millisecond)
	}

	count := storeCount(t, store)
	assert.Eventually(t, func() bool { return count() == 1 }, 3*time.Second, 10*time.Millisecond)

	time.Sleep(6 * testDebounce)
	assert.Equal(t, 1, emb.callCount())
}

func TestWatcherMissingDirectory(t *testing.T) {
	pipeline := newTestPipeline(t, newTestStore(t), &stubEmbedder{})
	w := NewWatcher(pipeline, filepath.Join(t.TempDir(), "nope"), testDebounce, log.New(io.Discard, "", 0))
	require.Error(t, w.Run(context.Background()))
}
