// Package posts implements the post store: list-by-author, get-by-id and
// create over a single serialized collection held in one key-value slot.
//
// Every operation waits out a configurable latency before touching the
// backend, so callers treat the store the way they would a network service.
// Create rewrites the whole collection; one writer per slot is assumed.
package posts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/quill/internal/config"
	"github.com/roach88/quill/internal/store"
)

// corruptSuffix names the slot an undecodable collection is copied to
// before Create overwrites it. Later backups get a numeric suffix so an
// earlier one is never replaced.
const corruptSuffix = ".corrupt"

// record is the stored shape of a Post.
type record struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	AuthorID  string `json:"authorId"`
	CreatedAt string `json:"createdAt"`
}

// Store is the post store.
type Store struct {
	backend store.Backend
	key     string
	latency time.Duration
	strict  bool
	ids     IDGenerator
	clock   Clock
	logger  *zap.Logger
	metrics *Metrics

	// mu serializes read-modify-write within this process.
	mu sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithKey sets the slot the collection is stored under.
func WithKey(key string) Option {
	return func(s *Store) { s.key = key }
}

// WithLatency sets the artificial delay applied before every operation.
func WithLatency(d time.Duration) Option {
	return func(s *Store) { s.latency = d }
}

// WithStrict makes an undecodable collection an ErrCorrupt error instead
// of an empty collection.
func WithStrict(strict bool) Option {
	return func(s *Store) { s.strict = strict }
}

// WithIDGenerator overrides the UUIDv7 id generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(s *Store) { s.ids = g }
}

// WithClock overrides the wall clock.
func WithClock(c Clock) Option {
	return func(s *Store) { s.clock = c }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// FromConfig translates the posts section of the configuration to options.
func FromConfig(cfg config.PostsConfig) []Option {
	return []Option{
		WithKey(cfg.Key),
		WithLatency(cfg.LatencyDuration()),
		WithStrict(cfg.Strict),
	}
}

// New creates a Store over backend.
func New(backend store.Backend, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		key:     config.DefaultPostsKey,
		ids:     UUIDv7Generator{},
		clock:   SystemClock{},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListByAuthor returns the author's posts, newest first. Posts with equal
// timestamps keep newest-inserted first. No matches yields an empty slice.
func (s *Store) ListByAuthor(ctx context.Context, authorID string) (_ []Post, err error) {
	defer func(done func(error)) { done(err) }(s.metrics.observe("list"))

	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	all, _, err := s.load(ctx)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}

	out := make([]Post, 0)
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].AuthorID == authorID {
			out = append(out, all[i])
		}
	}
	slices.SortStableFunc(out, func(a, b Post) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	s.logger.Debug("listed posts", zap.String("author", authorID), zap.Int("count", len(out)))
	return out, nil
}

// GetByID returns the post with the given id. A missing id reports
// found=false with a nil error.
func (s *Store) GetByID(ctx context.Context, postID string) (_ Post, found bool, err error) {
	defer func(done func(error)) { done(err) }(s.metrics.observe("get"))

	if err := s.wait(ctx); err != nil {
		return Post{}, false, err
	}
	all, _, err := s.load(ctx)
	if err != nil {
		return Post{}, false, fmt.Errorf("get post: %w", err)
	}

	for _, p := range all {
		if p.ID == postID {
			return p, true, nil
		}
	}
	s.logger.Debug("post not found", zap.String("id", postID))
	return Post{}, false, nil
}

// Create appends a new post and writes the whole collection back.
func (s *Store) Create(ctx context.Context, title, content, authorID string) (_ Post, err error) {
	defer func(done func(error)) { done(err) }(s.metrics.observe("create"))

	if err := s.wait(ctx); err != nil {
		return Post{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	all, raw, err := s.load(ctx)
	if err != nil {
		return Post{}, fmt.Errorf("create post: %w", err)
	}
	if raw != nil {
		backupKey, err := s.freeBackupKey(ctx)
		if err != nil {
			return Post{}, fmt.Errorf("create post: preserve corrupt collection: %w", err)
		}
		if err := s.backend.Set(ctx, backupKey, raw); err != nil {
			return Post{}, fmt.Errorf("create post: preserve corrupt collection: %w", err)
		}
		s.logger.Warn("corrupt post collection moved aside",
			zap.String("key", s.key),
			zap.String("backup_key", backupKey))
	}

	p := Post{
		ID:        s.ids.NewID(),
		Title:     norm.NFC.String(title),
		Content:   content,
		AuthorID:  authorID,
		CreatedAt: s.clock.Now().UTC().Truncate(time.Millisecond),
	}

	data, err := encode(append(all, p))
	if err != nil {
		return Post{}, fmt.Errorf("create post: %w", err)
	}
	if err := s.backend.Set(ctx, s.key, data); err != nil {
		return Post{}, fmt.Errorf("create post: %w", err)
	}

	s.logger.Info("post created",
		zap.String("id", p.ID),
		zap.String("author", authorID),
		zap.Int("collection_size", len(all)+1))
	return p, nil
}

// wait applies the configured latency, returning early if ctx ends.
func (s *Store) wait(ctx context.Context) error {
	if s.latency <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(s.latency)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// freeBackupKey returns the first unused slot of <key>.corrupt,
// <key>.corrupt.1, <key>.corrupt.2 and so on.
func (s *Store) freeBackupKey(ctx context.Context) (string, error) {
	base := s.key + corruptSuffix
	key := base
	for n := 1; ; n++ {
		_, found, err := s.backend.Get(ctx, key)
		if err != nil {
			return "", err
		}
		if !found {
			return key, nil
		}
		key = base + "." + strconv.Itoa(n)
	}
}

// load reads and decodes the collection. An absent slot is an empty
// collection. When the slot cannot be decoded and the store is not strict,
// load returns an empty collection together with the raw bytes.
func (s *Store) load(ctx context.Context) (posts []Post, corruptRaw []byte, err error) {
	raw, found, err := s.backend.Get(ctx, s.key)
	if err != nil {
		return nil, nil, err
	}
	if !found {
		return nil, nil, nil
	}

	posts, err = decode(raw)
	if err == nil {
		return posts, nil, nil
	}

	s.metrics.corruptRead()
	if s.strict {
		return nil, nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	s.logger.Warn("ignoring corrupt post collection",
		zap.String("key", s.key),
		zap.Int("bytes", len(raw)),
		zap.Error(err))
	return nil, raw, nil
}

func decode(raw []byte) ([]Post, error) {
	var records []record
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, err
	}

	posts := make([]Post, 0, len(records))
	for i, r := range records {
		createdAt, err := time.Parse(time.RFC3339Nano, r.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("post %d (%s): createdAt: %w", i, r.ID, err)
		}
		posts = append(posts, Post{
			ID:        r.ID,
			Title:     r.Title,
			Content:   r.Content,
			AuthorID:  r.AuthorID,
			CreatedAt: createdAt,
		})
	}
	return posts, nil
}

// encode serializes the collection with HTML escaping disabled so stored
// markup stays readable.
func encode(posts []Post) ([]byte, error) {
	records := make([]record, len(posts))
	for i, p := range posts {
		records[i] = record{
			ID:        p.ID,
			Title:     p.Title,
			Content:   p.Content,
			AuthorID:  p.AuthorID,
			CreatedAt: p.CreatedAt.UTC().Format(TimeLayout),
		}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(records); err != nil {
		return nil, fmt.Errorf("encode posts: %w", err)
	}
	return bytes.TrimSpace(buf.Bytes()), nil
}
