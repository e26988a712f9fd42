package posts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/quill/internal/config"
	"github.com/roach88/quill/internal/store"
	"github.com/roach88/quill/internal/testutil"
)

// newTestStore returns a store over a fresh memory backend with a clock
// that advances one minute per post.
func newTestStore(t *testing.T, opts ...Option) (*Store, *store.Memory) {
	t.Helper()
	backend := store.NewMemory()
	t.Cleanup(func() { backend.Close() })

	base := []Option{
		WithClock(testutil.NewStepClock(time.Time{}, time.Minute)),
		WithIDGenerator(testutil.NewSequentialIDGenerator("")),
	}
	return New(backend, append(base, opts...)...), backend
}

func TestCreate_ThenGetByIDReturnsEqualPost(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	created, err := s.Create(ctx, "Hello", "<p>World</p>", "u1")
	require.NoError(t, err)

	got, found, err := s.GetByID(ctx, created.ID)
	require.NoError(t, err)
	require.True(t, found)
	if diff := cmp.Diff(created, got); diff != "" {
		t.Errorf("GetByID() mismatch (-created +got):\n%s", diff)
	}
}

func TestCreate_HelloWorldScenario(t *testing.T) {
	ctx := context.Background()
	s := New(store.NewMemory())

	older, err := s.Create(ctx, "Earlier", "<p>first</p>", "u1")
	require.NoError(t, err)

	// The production generator and clock: ids are prefixed UUIDv7s and
	// createdAt is the wall clock.
	time.Sleep(2 * time.Millisecond)
	p, err := s.Create(ctx, "Hello", "<p>World</p>", "u1")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(p.ID, IDPrefix), "id %q lacks prefix", p.ID)
	assert.Greater(t, len(p.ID), len(IDPrefix))
	assert.NotEqual(t, older.ID, p.ID)
	_, err = time.Parse(time.RFC3339Nano, p.CreatedAt.Format(TimeLayout))
	assert.NoError(t, err)

	list, err := s.ListByAuthor(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, p.ID, list[0].ID)
	assert.Equal(t, older.ID, list[1].ID)
}

func TestGetByID_MissingIsAbsentNotError(t *testing.T) {
	s, _ := newTestStore(t)

	got, found, err := s.GetByID(context.Background(), "nonexistent")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, Post{}, got)
}

func TestListByAuthor_EmptyStore(t *testing.T) {
	s, _ := newTestStore(t)

	list, err := s.ListByAuthor(context.Background(), "u1")
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}

func TestListByAuthor_FiltersAndSortsNewestFirst(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	for _, c := range []struct{ title, author string }{
		{"a1", "alice"}, {"b1", "bob"}, {"a2", "alice"}, {"b2", "bob"}, {"a3", "alice"},
	} {
		_, err := s.Create(ctx, c.title, "<p>"+c.title+"</p>", c.author)
		require.NoError(t, err)
	}

	list, err := s.ListByAuthor(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"a3", "a2", "a1"}, titles(list))
	for i := 1; i < len(list); i++ {
		assert.False(t, list[i].CreatedAt.After(list[i-1].CreatedAt), "list not sorted descending")
	}

	// Idempotent read with no intervening writes.
	again, err := s.ListByAuthor(ctx, "alice")
	require.NoError(t, err)
	if diff := cmp.Diff(list, again); diff != "" {
		t.Errorf("repeated ListByAuthor() differs:\n%s", diff)
	}

	none, err := s.ListByAuthor(ctx, "carol")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestListByAuthor_PartitionsByAuthor(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	authors := []string{"u1", "u2", "u3", "u4"}
	created := make(map[string][]string)
	for i := 0; i < 12; i++ {
		author := authors[i%len(authors)]
		p, err := s.Create(ctx, fmt.Sprintf("post %d", i), "<p>x</p>", author)
		require.NoError(t, err)
		created[author] = append(created[author], p.ID)
	}

	total := 0
	for _, author := range authors {
		list, err := s.ListByAuthor(ctx, author)
		require.NoError(t, err)
		total += len(list)
		var ids []string
		for _, p := range list {
			assert.Equal(t, author, p.AuthorID)
			ids = append(ids, p.ID)
		}
		assert.ElementsMatch(t, created[author], ids)
	}
	assert.Equal(t, 12, total)
}

func TestListByAuthor_EqualTimestampsNewestInsertedFirst(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, WithClock(testutil.NewStepClock(time.Time{}, 0)))

	for _, title := range []string{"first", "second", "third"} {
		_, err := s.Create(ctx, title, "<p>x</p>", "u1")
		require.NoError(t, err)
	}

	list, err := s.ListByAuthor(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"third", "second", "first"}, titles(list))
}

func TestListByAuthor_DoesNotMutateStoredCollection(t *testing.T) {
	ctx := context.Background()
	s, backend := newTestStore(t)

	_, err := s.Create(ctx, "one", "<p>1</p>", "u1")
	require.NoError(t, err)
	_, err = s.Create(ctx, "two", "<p>2</p>", "u1")
	require.NoError(t, err)

	before, _, err := backend.Get(ctx, config.DefaultPostsKey)
	require.NoError(t, err)
	_, err = s.ListByAuthor(ctx, "u1")
	require.NoError(t, err)
	after, _, err := backend.Get(ctx, config.DefaultPostsKey)
	require.NoError(t, err)

	assert.Equal(t, string(before), string(after))
}

func TestCreate_StoredFormat(t *testing.T) {
	ctx := context.Background()
	s, backend := newTestStore(t)

	_, err := s.Create(ctx, "Hello", "<p>World & more</p>", "u1")
	require.NoError(t, err)

	raw, found, err := backend.Get(ctx, config.DefaultPostsKey)
	require.NoError(t, err)
	require.True(t, found)
	assert.JSONEq(t, `[{
		"id": "post_0001",
		"title": "Hello",
		"content": "<p>World & more</p>",
		"authorId": "u1",
		"createdAt": "2024-01-01T09:00:00.000Z"
	}]`, string(raw))
	// Markup is stored unescaped.
	assert.Contains(t, string(raw), "<p>World & more</p>")
}

func TestCreate_AppendsInInsertionOrder(t *testing.T) {
	ctx := context.Background()
	s, backend := newTestStore(t)

	for _, title := range []string{"a", "b", "c"} {
		_, err := s.Create(ctx, title, "<p>x</p>", "u1")
		require.NoError(t, err)
	}

	raw, _, err := backend.Get(ctx, config.DefaultPostsKey)
	require.NoError(t, err)
	var records []record
	require.NoError(t, json.Unmarshal(raw, &records))
	require.Len(t, records, 3)
	assert.Equal(t, "a", records[0].Title)
	assert.Equal(t, "c", records[2].Title)
}

func TestCreate_NormalizesTitle(t *testing.T) {
	s, _ := newTestStore(t)

	// "e" followed by a combining acute accent composes to a single rune.
	p, err := s.Create(context.Background(), "Cafe\u0301", "<p>x</p>", "u1")
	require.NoError(t, err)
	assert.Equal(t, "Caf\u00e9", p.Title)
}

func TestStore_ReadsExistingCollection(t *testing.T) {
	ctx := context.Background()
	s, backend := newTestStore(t)

	blob := `[
		{"id":"post_1700000000000","title":"Old","content":"<p>old</p>","authorId":"u1","createdAt":"2023-11-14T22:13:20.000Z"},
		{"id":"post_1700000060000","title":"New","content":"<p>new</p>","authorId":"u1","createdAt":"2023-11-14T22:14:20.000Z"}
	]`
	require.NoError(t, backend.Set(ctx, config.DefaultPostsKey, []byte(blob)))

	list, err := s.ListByAuthor(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"New", "Old"}, titles(list))

	p, found, err := s.GetByID(ctx, "post_1700000000000")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC), p.CreatedAt.UTC())
}

func TestStore_CorruptCollectionFailSoft(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	s, backend := newTestStore(t, WithMetrics(metrics))

	require.NoError(t, backend.Set(ctx, config.DefaultPostsKey, []byte(`{not json`)))

	list, err := s.ListByAuthor(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, list)

	_, found, err := s.GetByID(ctx, "post_0001")
	require.NoError(t, err)
	assert.False(t, found)

	p, err := s.Create(ctx, "Fresh", "<p>start over</p>", "u1")
	require.NoError(t, err)

	backup, found, err := backend.Get(ctx, config.DefaultPostsKey+corruptSuffix)
	require.NoError(t, err)
	require.True(t, found, "corrupt collection was not preserved")
	assert.Equal(t, `{not json`, string(backup))

	list, err = s.ListByAuthor(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, p.ID, list[0].ID)

	assert.Equal(t, float64(3), promtestutil.ToFloat64(metrics.corrupt))
}

func TestStore_RepeatedCorruptionKeepsEveryBackup(t *testing.T) {
	ctx := context.Background()
	s, backend := newTestStore(t)

	blobs := []string{`{first`, `{second`, `{third`}
	for _, blob := range blobs {
		require.NoError(t, backend.Set(ctx, config.DefaultPostsKey, []byte(blob)))
		_, err := s.Create(ctx, "Fresh", "<p>again</p>", "u1")
		require.NoError(t, err)
	}

	keys := []string{
		config.DefaultPostsKey + corruptSuffix,
		config.DefaultPostsKey + corruptSuffix + ".1",
		config.DefaultPostsKey + corruptSuffix + ".2",
	}
	for i, key := range keys {
		backup, found, err := backend.Get(ctx, key)
		require.NoError(t, err)
		require.True(t, found, "missing backup %s", key)
		assert.Equal(t, blobs[i], string(backup))
	}

	list, err := s.ListByAuthor(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestStore_CorruptCollectionStrict(t *testing.T) {
	ctx := context.Background()
	s, backend := newTestStore(t, WithStrict(true))

	require.NoError(t, backend.Set(ctx, config.DefaultPostsKey, []byte(`[{"id":1}]`)))

	_, err := s.ListByAuthor(ctx, "u1")
	assert.ErrorIs(t, err, ErrCorrupt)

	_, _, err = s.GetByID(ctx, "x")
	assert.ErrorIs(t, err, ErrCorrupt)

	_, err = s.Create(ctx, "t", "<p>c</p>", "u1")
	assert.ErrorIs(t, err, ErrCorrupt)

	// Strict mode never overwrites the stored value.
	raw, _, err := backend.Get(ctx, config.DefaultPostsKey)
	require.NoError(t, err)
	assert.Equal(t, `[{"id":1}]`, string(raw))
}

func TestStore_BadTimestampIsCorrupt(t *testing.T) {
	ctx := context.Background()
	s, backend := newTestStore(t, WithStrict(true))

	blob := `[{"id":"post_1","title":"t","content":"c","authorId":"u1","createdAt":"yesterday"}]`
	require.NoError(t, backend.Set(ctx, config.DefaultPostsKey, []byte(blob)))

	_, err := s.ListByAuthor(ctx, "u1")
	require.ErrorIs(t, err, ErrCorrupt)
	assert.Contains(t, err.Error(), "createdAt")
}

func TestStore_CustomKey(t *testing.T) {
	ctx := context.Background()
	s, backend := newTestStore(t, WithKey("other-posts"))

	_, err := s.Create(ctx, "t", "<p>c</p>", "u1")
	require.NoError(t, err)

	_, found, err := backend.Get(ctx, "other-posts")
	require.NoError(t, err)
	assert.True(t, found)
	_, found, err = backend.Get(ctx, config.DefaultPostsKey)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStore_LatencyIsApplied(t *testing.T) {
	s, _ := newTestStore(t, WithLatency(30*time.Millisecond))

	start := time.Now()
	_, err := s.ListByAuthor(context.Background(), "u1")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestStore_CancelledDuringLatency(t *testing.T) {
	s, backend := newTestStore(t, WithLatency(time.Hour))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := s.Create(ctx, "t", "<p>c</p>", "u1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	_, found, err := backend.Get(context.Background(), config.DefaultPostsKey)
	require.NoError(t, err)
	assert.False(t, found, "cancelled create must not write")
}

func TestStore_BackendWriteFailure(t *testing.T) {
	backend := &failingBackend{Memory: store.NewMemory(), setErr: errors.New("quota exceeded")}
	s := New(backend)

	_, err := s.Create(context.Background(), "t", "<p>c</p>", "u1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
	assert.Contains(t, err.Error(), "create post")
}

func TestStore_BackendReadFailure(t *testing.T) {
	backend := &failingBackend{Memory: store.NewMemory(), getErr: errors.New("disk on fire")}
	s := New(backend)

	_, err := s.ListByAuthor(context.Background(), "u1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCorrupt)

	_, _, err = s.GetByID(context.Background(), "x")
	require.Error(t, err)
}

func TestStore_ConcurrentCreatesInOneProcess(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Create(ctx, fmt.Sprintf("p%d", i), "<p>x</p>", "u1")
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	list, err := s.ListByAuthor(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, list, 20)
}

func TestStore_MetricsCountOperations(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	s, _ := newTestStore(t, WithMetrics(metrics))

	_, err := s.Create(ctx, "t", "<p>c</p>", "u1")
	require.NoError(t, err)
	_, err = s.ListByAuthor(ctx, "u1")
	require.NoError(t, err)
	_, _, err = s.GetByID(ctx, "missing")
	require.NoError(t, err)

	assert.Equal(t, float64(1), promtestutil.ToFloat64(metrics.operations.WithLabelValues("create", "ok")))
	assert.Equal(t, float64(1), promtestutil.ToFloat64(metrics.operations.WithLabelValues("list", "ok")))
	assert.Equal(t, float64(1), promtestutil.ToFloat64(metrics.operations.WithLabelValues("get", "ok")))
	assert.Equal(t, 3, promtestutil.CollectAndCount(metrics.duration))
}

func titles(posts []Post) []string {
	out := make([]string, len(posts))
	for i, p := range posts {
		out[i] = p.Title
	}
	return out
}

// failingBackend wraps Memory and fails reads or writes on demand.
type failingBackend struct {
	*store.Memory
	getErr error
	setErr error
}

func (f *failingBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if f.getErr != nil {
		return nil, false, f.getErr
	}
	return f.Memory.Get(ctx, key)
}

func (f *failingBackend) Set(ctx context.Context, key string, value []byte) error {
	if f.setErr != nil {
		return f.setErr
	}
	return f.Memory.Set(ctx, key, value)
}
