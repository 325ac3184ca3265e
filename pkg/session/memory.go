package session

import (
	"context"
	"crypto/md5" //nolint:gosec // fingerprint for cache staleness, not security
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// MemoryStore implements Store using in-memory maps. It is intended for
// tests and local development; fingerprints are recomputed from record
// content on every Summary call, mirroring the database store.
type MemoryStore struct {
	mu       sync.RWMutex
	nextID   int64
	nextLog  int64
	sessions map[int64]*Record
	answers  map[int64][]LoggedAnswer
	users    map[int64]string
	modules  map[int64]string
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nextID:   1,
		nextLog:  1,
		sessions: make(map[int64]*Record),
		answers:  make(map[int64][]LoggedAnswer),
		users:    make(map[int64]string),
		modules:  make(map[int64]string),
	}
}

// AddUser registers a user display name for joins.
func (s *MemoryStore) AddUser(id int64, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[id] = name
}

// AddModule registers a module display name for joins.
func (s *MemoryStore) AddModule(id int64, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modules[id] = name
}

// Create persists a new session record and assigns its ID.
func (s *MemoryStore) Create(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec.ID = s.nextID
	s.nextID++
	cp := *rec
	s.sessions[rec.ID] = &cp
	return nil
}

// Get retrieves a session by ID, joined with its module name.
func (s *MemoryStore) Get(_ context.Context, id int64) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	cp.ModuleName = s.modules[rec.ModuleID]
	return &cp, nil
}

// End closes an open session with an end time and score.
func (s *MemoryStore) End(_ context.Context, id int64, endTime string, playerScore int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	if rec.EndTime != nil {
		return ErrAlreadyEnded
	}
	rec.EndTime = &endTime
	rec.PlayerScore = &playerScore
	return nil
}

// LogAnswer records one answer against a session.
func (s *MemoryStore) LogAnswer(_ context.Context, ans *LoggedAnswer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[ans.SessionID]; !ok {
		return ErrNotFound
	}
	ans.LogID = s.nextLog
	s.nextLog++
	s.answers[ans.SessionID] = append(s.answers[ans.SessionID], *ans)
	return nil
}

// AnswersFor returns all answers logged for a session, in log order.
func (s *MemoryStore) AnswersFor(_ context.Context, sessionID int64) ([]LoggedAnswer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]LoggedAnswer, len(s.answers[sessionID]))
	copy(out, s.answers[sessionID])
	return out, nil
}

// Search returns sessions matching the filter, ordered by session ID ascending.
func (s *MemoryStore) Search(_ context.Context, filter SearchFilter) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Record
	for _, rec := range s.sessions {
		if filter.UserID != nil && rec.UserID != *filter.UserID {
			continue
		}
		if filter.UserName != "" && s.users[rec.UserID] != filter.UserName {
			continue
		}
		if filter.ModuleID != nil && rec.ModuleID != *filter.ModuleID {
			continue
		}
		if filter.Platform != "" && rec.Platform != filter.Platform {
			continue
		}
		if filter.SessionDate != "" && rec.SessionDate != filter.SessionDate {
			continue
		}
		cp := *rec
		cp.ModuleName = s.modules[rec.ModuleID]
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// List returns every session joined with its module name.
func (s *MemoryStore) List(ctx context.Context) ([]Record, error) {
	return s.Search(ctx, SearchFilter{})
}

// ExportRows returns the joined export view under the filter.
func (s *MemoryStore) ExportRows(_ context.Context, filter ExportFilter) ([]ExportRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []ExportRow
	for _, rec := range s.sessions {
		if filter.StartDate != "" && rec.SessionDate < filter.StartDate {
			continue
		}
		if filter.EndDate != "" && rec.SessionDate > filter.EndDate {
			continue
		}
		row := ExportRow{Record: *rec, UserName: s.users[rec.UserID]}
		row.ModuleName = s.modules[rec.ModuleID]
		for _, ans := range s.answers[rec.ID] {
			row.Attempted++
			if row.LastAnswerAt == nil || ans.AnsweredAt > *row.LastAnswerAt {
				at := ans.AnsweredAt
				row.LastAnswerAt = &at
			}
		}
		out = append(out, row)
	}

	desc := filter.Order != SortAsc
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.SessionDate != b.SessionDate {
			if desc {
				return a.SessionDate > b.SessionDate
			}
			return a.SessionDate < b.SessionDate
		}
		if desc {
			return a.ID > b.ID
		}
		return a.ID < b.ID
	})
	return out, nil
}

// Summary returns the current fingerprint, max session ID and row count.
func (s *MemoryStore) Summary(_ context.Context) (Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]int64, 0, len(s.sessions))
	var maxID int64
	for id := range s.sessions {
		ids = append(ids, id)
		if id > maxID {
			maxID = id
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var b strings.Builder
	for _, id := range ids {
		rec := s.sessions[id]
		fmt.Fprintf(&b, "%d|%d|%d|%s|%s|%s|%s|%s|%s|%s\n",
			rec.ID, rec.UserID, rec.ModuleID, rec.SessionDate, rec.StartTime,
			strOrEmpty(rec.EndTime), intOrEmpty(rec.PlayerScore),
			rec.Platform, strOrEmpty(rec.Mode), int64OrEmpty(rec.DeletedModuleID))
	}
	sum := md5.Sum([]byte(b.String())) //nolint:gosec // staleness check only

	return Summary{
		Fingerprint: hex.EncodeToString(sum[:]),
		MaxID:       maxID,
		Count:       len(s.sessions),
	}, nil
}

func strOrEmpty(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func intOrEmpty(p *int) string {
	if p == nil {
		return ""
	}
	return fmt.Sprintf("%d", *p)
}

func int64OrEmpty(p *int64) string {
	if p == nil {
		return ""
	}
	return fmt.Sprintf("%d", *p)
}

// Verify interface compliance.
var _ Store = (*MemoryStore)(nil)
