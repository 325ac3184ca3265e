package report

import (
	"context"
	"sync"

	"github.com/lexigame/session-service/pkg/session"
)

// Snapshot is the cached export artifact: the rendered payload plus the
// validity metadata captured at build time. A snapshot always represents
// the default export (no date bounds, descending order); filtered builds
// are never stored.
type Snapshot struct {
	// Payload is the full CSV document, header included.
	Payload string

	// Fingerprint is the store content checksum at build time.
	Fingerprint string

	// MaxSessionID is the highest session ID observed at build time.
	MaxSessionID int64

	// RowCount is the number of data rows in the payload.
	RowCount int
}

// Matches reports whether the snapshot is still an exact image of the
// store described by sum. Both checks are required: the fingerprint
// catches in-place updates, the max ID catches inserts that a checksum
// could coincidentally miss.
func (s *Snapshot) Matches(sum session.Summary) bool {
	return s.Fingerprint == sum.Fingerprint && s.MaxSessionID == sum.MaxID
}

// Cache persists at most one snapshot. Implementations replace the whole
// snapshot atomically on Store; there is no merge and no partial write.
type Cache interface {
	// Fetch returns the stored snapshot, or nil when none is stored.
	// It never touches the session store.
	Fetch(ctx context.Context) (*Snapshot, error)

	// Store replaces the previous snapshot with snap.
	Store(ctx context.Context, snap *Snapshot) error
}

// MemoryCache implements Cache with an in-process snapshot guarded by a
// mutex. Used in tests and single-instance deployments without Redis.
type MemoryCache struct {
	mu   sync.RWMutex
	snap *Snapshot
}

// NewMemoryCache creates an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{}
}

// Fetch returns the stored snapshot, or nil when none is stored.
func (c *MemoryCache) Fetch(_ context.Context) (*Snapshot, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.snap == nil {
		return nil, nil //nolint:nilnil // Cache interface specifies nil,nil for absent
	}
	cp := *c.snap
	return &cp, nil
}

// Store replaces the previous snapshot.
func (c *MemoryCache) Store(_ context.Context, snap *Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cp := *snap
	c.snap = &cp
	return nil
}

// Verify interface compliance.
var _ Cache = (*MemoryCache)(nil)
