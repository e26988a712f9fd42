package posts

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// IDPrefix marks every generated post id.
const IDPrefix = "post_"

// IDGenerator produces post ids.
type IDGenerator interface {
	NewID() string
}

// UUIDv7Generator generates time-sortable ids: IDPrefix followed by a
// UUIDv7.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// NewID panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) NewID() string {
	return IDPrefix + uuid.Must(uuid.NewV7()).String()
}

// FixedIDGenerator returns predetermined ids, for deterministic tests and
// golden output.
type FixedIDGenerator struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixedIDGenerator creates a generator that returns ids in order.
func NewFixedIDGenerator(ids ...string) *FixedIDGenerator {
	return &FixedIDGenerator{ids: ids}
}

// NewID panics once all ids are consumed, to catch tests that create more
// posts than they planned for.
func (g *FixedIDGenerator) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.ids) {
		panic("FixedIDGenerator: all ids exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}

// Clock supplies creation timestamps.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}
