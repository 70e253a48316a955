package database_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/postqueue/internal/database"
)

func newTestStore(t *testing.T) database.Store {
	t.Helper()

	db, err := database.Open(context.Background(), filepath.Join(t.TempDir(), "queue.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close(db, nil) })

	return database.NewStore(db, nil)
}

func photo(id string) database.MediaRef {
	return database.MediaRef{Kind: database.MediaPhoto, FileID: id}
}

func TestStore_EnqueueOrder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStore(t)

	var ids []int64
	for _, caption := range []string{"first", "second", "third"} {
		id, err := store.Enqueue(ctx, database.MediaItems{photo(caption)}, caption, nil)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	entries, err := store.PeekAll(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	for i, entry := range entries {
		assert.Equal(t, ids[i], entry.ID)
		if i > 0 {
			assert.Greater(t, entry.ID, entries[i-1].ID)
		}
	}
	assert.Equal(t, "first", entries[0].Caption)
	assert.Equal(t, "third", entries[2].Caption)
	assert.Equal(t, database.MediaItems{photo("second")}, entries[1].Items)
}

func TestStore_EnqueueTextAndSource(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStore(t)

	id, err := store.Enqueue(ctx, nil, "just text", &database.Source{ChatID: 42, MessageID: 7})
	require.NoError(t, err)

	entry, err := store.PeekOldest(ctx)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, id, entry.ID)
	assert.Empty(t, entry.Items)
	assert.NotZero(t, entry.CreatedAt)

	src, ok := entry.Source()
	require.True(t, ok)
	assert.Equal(t, database.Source{ChatID: 42, MessageID: 7}, src)
}

func TestStore_EnqueueRejectsUnknownKind(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	_, err := store.Enqueue(context.Background(),
		database.MediaItems{{Kind: "sticker", FileID: "x"}}, "", nil)
	require.Error(t, err)
}

func TestStore_DequeueOldestDrainsInOrder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStore(t)

	const n = 5
	var ids []int64
	for i := 0; i < n; i++ {
		id, err := store.Enqueue(ctx, nil, "post", nil)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	for i := 0; i < n; i++ {
		entry, err := store.DequeueOldest(ctx)
		require.NoError(t, err)
		require.NotNil(t, entry)
		assert.Equal(t, ids[i], entry.ID)
	}

	entry, err := store.DequeueOldest(ctx)
	require.NoError(t, err)
	assert.Nil(t, entry)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestStore_ConcurrentDequeueAtMostOnce(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStore(t)

	const entries = 40
	for i := 0; i < entries; i++ {
		_, err := store.Enqueue(ctx, nil, "post", nil)
		require.NoError(t, err)
	}

	var (
		mu   sync.Mutex
		got  []int64
		wg   sync.WaitGroup
		errs = make(chan error, entries*2)
	)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				entry, err := store.DequeueOldest(ctx)
				if err != nil {
					errs <- err
					return
				}
				if entry == nil {
					return
				}
				mu.Lock()
				got = append(got, entry.ID)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	require.Len(t, got, entries)
	seen := make(map[int64]bool, len(got))
	for _, id := range got {
		assert.False(t, seen[id], "entry %d dequeued twice", id)
		seen[id] = true
	}
}

func TestStore_DeleteByID(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStore(t)

	keep, err := store.Enqueue(ctx, nil, "keep", nil)
	require.NoError(t, err)
	drop, err := store.Enqueue(ctx, nil, "drop", nil)
	require.NoError(t, err)

	n, err := store.DeleteByID(ctx, drop+100)
	require.NoError(t, err)
	assert.Zero(t, n)

	entries, err := store.PeekAll(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	n, err = store.DeleteByID(ctx, drop)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	entries, err = store.PeekAll(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, keep, entries[0].ID)
}

func TestStore_DeleteLastRemovesNewest(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStore(t)

	var ids []int64
	for i := 0; i < 3; i++ {
		id, err := store.Enqueue(ctx, nil, "post", nil)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	n, err := store.DeleteLast(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	entries, err := store.PeekAll(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, ids[0], entries[0].ID)
	assert.Equal(t, ids[1], entries[1].ID)

	// A new entry never reuses the id of the deleted one.
	next, err := store.Enqueue(ctx, nil, "post", nil)
	require.NoError(t, err)
	assert.Greater(t, next, ids[2])
}

func TestStore_DeleteLastOnEmptyQueue(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	n, err := store.DeleteLast(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStore_ClearAndStats(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStore(t)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Queued)
	assert.False(t, stats.OldestID.Valid)

	var ids []int64
	for i := 0; i < 4; i++ {
		id, err := store.Enqueue(ctx, nil, "post", nil)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	stats, err = store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Queued)
	assert.Equal(t, ids[0], stats.OldestID.Int64)
	assert.Equal(t, ids[3], stats.NewestID.Int64)
	assert.True(t, stats.OldestCreatedAt.Valid)

	n, err := store.Clear(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 4, n)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestStore_LastPublishedMarkerUpsert(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStore(t)

	_, ok, err := store.GetLastPublishedMessageID(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.SetLastPublishedMessageID(ctx, 100))
	id, ok, err := store.GetLastPublishedMessageID(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 100, id)

	require.NoError(t, store.SetLastPublishedMessageID(ctx, 205))
	id, ok, err = store.GetLastPublishedMessageID(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 205, id)
}

func TestStore_MixedMediaRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStore(t)

	items := database.MediaItems{
		{Kind: database.MediaVideo, FileID: "v1"},
		{Kind: database.MediaPhoto, FileID: "p1"},
		{Kind: database.MediaDocument, FileID: "d1"},
	}
	_, err := store.Enqueue(ctx, items, "mixed", nil)
	require.NoError(t, err)

	entry, err := store.DequeueOldest(ctx)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, items, entry.Items)
	_, ok := entry.Source()
	assert.False(t, ok)
}

func TestStore_Maintenance(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	require.NoError(t, store.RunSQLMaintenance(context.Background()))
}

func TestOpen_ReopenKeepsEntries(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "queue.db")

	db, err := database.Open(ctx, path, nil)
	require.NoError(t, err)
	id, err := database.NewStore(db, nil).Enqueue(ctx, nil, "kept", nil)
	require.NoError(t, err)
	database.Close(db, nil)

	db, err = database.Open(ctx, path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close(db, nil) })

	entry, err := database.NewStore(db, nil).PeekOldest(ctx)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, id, entry.ID)
	assert.Equal(t, "kept", entry.Caption)
}

func TestOpen_EmptyPath(t *testing.T) {
	t.Parallel()
	_, err := database.Open(context.Background(), " ", nil)
	require.Error(t, err)
}
