package report

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexigame/session-service/pkg/session"
)

func TestSnapshotMatches(t *testing.T) {
	snap := &Snapshot{Fingerprint: "abc", MaxSessionID: 9}

	tests := []struct {
		name string
		sum  session.Summary
		want bool
	}{
		{"both match", session.Summary{Fingerprint: "abc", MaxID: 9}, true},
		{"fingerprint diverged", session.Summary{Fingerprint: "def", MaxID: 9}, false},
		{"max id diverged", session.Summary{Fingerprint: "abc", MaxID: 10}, false},
		{"both diverged", session.Summary{Fingerprint: "def", MaxID: 10}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, snap.Matches(tt.sum))
		})
	}
}

func TestMemoryCacheEmpty(t *testing.T) {
	c := NewMemoryCache()

	snap, err := c.Fetch(context.Background())
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestMemoryCacheRoundTrip(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	stored := &Snapshot{
		Payload:      Header + "1, 2, ada, 5, , Algebra, 2026-03-01, 8, 10, 0.8, 09:00, 09:45, 00:45, PC, \n",
		Fingerprint:  "abc",
		MaxSessionID: 1,
		RowCount:     1,
	}
	require.NoError(t, c.Store(ctx, stored))

	got, err := c.Fetch(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, stored, got)
}

func TestMemoryCacheReplaces(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	require.NoError(t, c.Store(ctx, &Snapshot{Fingerprint: "old", MaxSessionID: 1}))
	require.NoError(t, c.Store(ctx, &Snapshot{Fingerprint: "new", MaxSessionID: 2}))

	got, err := c.Fetch(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "new", got.Fingerprint)
	assert.Equal(t, int64(2), got.MaxSessionID)
}

func TestMemoryCacheCopies(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	snap := &Snapshot{Fingerprint: "abc"}
	require.NoError(t, c.Store(ctx, snap))
	snap.Fingerprint = "mutated after store"

	first, err := c.Fetch(ctx)
	require.NoError(t, err)
	first.Fingerprint = "mutated after fetch"

	second, err := c.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, "abc", second.Fingerprint)
}
