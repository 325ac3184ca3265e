// Package redis provides Redis-backed snapshot storage for the report cache.
package redis

import (
	"context"
	"fmt"
	"strconv"

	goredis "github.com/redis/go-redis/v9"

	"github.com/lexigame/session-service/pkg/report"
)

// The four snapshot keys. They are written with a single MSET and read
// with a single MGET so no key is ever observed newer than the others.
const (
	keyPayload     = "sessions_csv"
	keyFingerprint = "sessions_checksum"
	keyMaxID       = "lastseen_session_id"
	keyRowCount    = "session_count"
)

// commander is the slice of the go-redis client the cache uses.
type commander interface {
	MGet(ctx context.Context, keys ...string) *goredis.SliceCmd
	MSet(ctx context.Context, values ...any) *goredis.StatusCmd
}

// Cache implements report.Cache on a Redis backend.
type Cache struct {
	rdb commander
}

// New creates a Redis-backed report cache.
func New(rdb *goredis.Client) *Cache {
	return &Cache{rdb: rdb}
}

// Fetch reads all four snapshot keys in one round trip. A missing key
// means no snapshot is stored; a corrupt value is reported as an error so
// the caller can degrade to a rebuild.
func (c *Cache) Fetch(ctx context.Context) (*report.Snapshot, error) {
	vals, err := c.rdb.MGet(ctx, keyPayload, keyFingerprint, keyMaxID, keyRowCount).Result()
	if err != nil {
		return nil, fmt.Errorf("reading snapshot keys: %w", err)
	}

	fields := make([]string, len(vals))
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			return nil, nil //nolint:nilnil // Cache interface specifies nil,nil for absent
		}
		fields[i] = s
	}

	maxID, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", keyMaxID, err)
	}
	rowCount, err := strconv.Atoi(fields[3])
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", keyRowCount, err)
	}

	return &report.Snapshot{
		Payload:      fields[0],
		Fingerprint:  fields[1],
		MaxSessionID: maxID,
		RowCount:     rowCount,
	}, nil
}

// Store overwrites all four snapshot keys in one MSET.
func (c *Cache) Store(ctx context.Context, snap *report.Snapshot) error {
	err := c.rdb.MSet(ctx,
		keyPayload, snap.Payload,
		keyFingerprint, snap.Fingerprint,
		keyMaxID, strconv.FormatInt(snap.MaxSessionID, 10),
		keyRowCount, strconv.Itoa(snap.RowCount),
	).Err()
	if err != nil {
		return fmt.Errorf("writing snapshot keys: %w", err)
	}
	return nil
}

// Verify interface compliance.
var _ report.Cache = (*Cache)(nil)
