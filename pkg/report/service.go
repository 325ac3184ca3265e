package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lexigame/session-service/pkg/session"
)

// ErrNoData indicates that no session records matched the export filter.
// It is a distinct outcome, not a store failure.
var ErrNoData = errors.New("no session records to export")

// Source provides the two store queries the export needs: the cheap
// staleness probe and the full joined scan.
type Source interface {
	Summary(ctx context.Context) (session.Summary, error)
	ExportRows(ctx context.Context, filter session.ExportFilter) ([]session.ExportRow, error)
}

// Service orchestrates one export request: probe the store, consult the
// cache, rebuild and re-cache on a miss. Requests are independent; there
// is no cross-request coordination and no retry. Concurrent rebuilds are
// resolved last-store-wins, which is safe because each stored snapshot
// was valid for the store state it was built from and validity is
// re-checked on every read.
type Service struct {
	src   Source
	cache Cache
	log   *slog.Logger
}

// NewService creates an export service over the given store and cache.
func NewService(src Source, cache Cache, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{src: src, cache: cache, log: log}
}

// Export returns the CSV payload for the filter. The cached snapshot is
// served only for the default export (no dates, descending order) and
// only when the store's current fingerprint and max session ID both match
// the snapshot. Store failures are fatal to the request; cache failures
// are logged and treated as misses.
func (s *Service) Export(ctx context.Context, filter session.ExportFilter) (string, error) {
	if filter.Order == "" {
		filter.Order = session.SortDesc
	}

	sum, err := s.src.Summary(ctx)
	if err != nil {
		return "", fmt.Errorf("probing session store: %w", err)
	}

	if payload, ok := s.cachedPayload(ctx, sum, filter); ok {
		return payload, nil
	}

	rows, err := s.src.ExportRows(ctx, filter)
	if err != nil {
		return "", fmt.Errorf("scanning session store: %w", err)
	}
	if len(rows) == 0 {
		return "", ErrNoData
	}

	payload, err := BuildCSV(rows)
	if err != nil {
		return "", fmt.Errorf("building export: %w", err)
	}

	if !filter.HasFilters() {
		snap := &Snapshot{
			Payload:      payload,
			Fingerprint:  sum.Fingerprint,
			MaxSessionID: sum.MaxID,
			RowCount:     len(rows),
		}
		if err := s.cache.Store(ctx, snap); err != nil {
			s.log.Warn("report cache store failed, serving uncached payload", "error", err)
		}
	}

	return payload, nil
}

// cachedPayload decides whether the stored snapshot may serve the request.
// Any filter bypasses the cache outright; a fetch error or a fingerprint
// or max-ID divergence is a miss.
func (s *Service) cachedPayload(ctx context.Context, sum session.Summary, filter session.ExportFilter) (string, bool) {
	if filter.HasFilters() {
		return "", false
	}

	snap, err := s.cache.Fetch(ctx)
	if err != nil {
		s.log.Warn("report cache unreachable, rebuilding export", "error", err)
		return "", false
	}
	if snap == nil || !snap.Matches(sum) {
		return "", false
	}
	return snap.Payload, true
}
