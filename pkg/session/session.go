// Package session provides play-session records for the game platform.
// It defines the Store interface for session persistence and the Record
// type that represents one playthrough of a module by a user.
package session

import (
	"context"
	"errors"
	"time"
)

// Platform tags as stored on a session record. Two characters, matching
// the values the game clients send after normalization.
const (
	PlatformPC     = "cp"
	PlatformMobile = "mb"
	PlatformVR     = "vr"
)

// ValidPlatform reports whether tag is one of the recognized platform tags.
func ValidPlatform(tag string) bool {
	switch tag {
	case PlatformPC, PlatformMobile, PlatformVR:
		return true
	}
	return false
}

// Sentinel errors returned by Store implementations.
var (
	// ErrNotFound indicates no session exists for the given ID.
	ErrNotFound = errors.New("session not found")

	// ErrAlreadyEnded indicates an attempt to end a session that already
	// has an end time. Ended sessions are immutable.
	ErrAlreadyEnded = errors.New("session already ended")
)

// Record is one play session. EndTime and PlayerScore are nil until the
// session is ended; once set the record is never mutated again.
type Record struct {
	// ID is assigned by the store on creation and immutable thereafter.
	ID int64

	// UserID identifies the player who owns the session.
	UserID int64

	// ModuleID identifies the module that was played.
	ModuleID int64

	// DeletedModuleID preserves the module reference if the module is
	// later removed from the catalog.
	DeletedModuleID *int64

	// SessionDate is the calendar date of the session (YYYY-MM-DD).
	SessionDate string

	// StartTime is the wall-clock start in HH:MM.
	StartTime string

	// EndTime is the wall-clock end in HH:MM, nil while the session is open.
	EndTime *string

	// PlayerScore is the final score, nil while the session is open.
	PlayerScore *int

	// Platform is the two-character platform tag (cp, mb, vr).
	Platform string

	// Mode is an optional game-mode tag.
	Mode *string

	// ModuleName is the joined module display name. Populated by reads
	// that join the module catalog; empty otherwise.
	ModuleName string
}

// Ended reports whether the session has been closed with an end time.
func (r *Record) Ended() bool {
	return r.EndTime != nil
}

// LoggedAnswer is one answer a player gave during a session.
type LoggedAnswer struct {
	LogID      int64
	QuestionID int64
	TermID     int64
	SessionID  int64
	Correct    bool
	Mode       *string

	// AnsweredAt is the wall-clock time the answer was logged, in HH:MM.
	AnsweredAt string
}

// SearchFilter narrows a session search. Nil/empty fields are ignored;
// the store translates set fields into parameterized predicates.
type SearchFilter struct {
	UserID      *int64
	UserName    string
	ModuleID    *int64
	Platform    string
	SessionDate string
}

// SortOrder is the export row ordering on session date.
type SortOrder string

// Export sort orders. Descending is the default and the only order the
// report cache will serve.
const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// Valid reports whether o is a recognized sort order.
func (o SortOrder) Valid() bool {
	return o == SortAsc || o == SortDesc
}

// ExportFilter narrows and orders the joined export query.
type ExportFilter struct {
	// StartDate and EndDate bound SessionDate inclusively when non-empty
	// (YYYY-MM-DD).
	StartDate string
	EndDate   string

	// Order sorts by session date. Defaults to SortDesc when empty.
	Order SortOrder
}

// HasFilters reports whether the filter deviates from the default export:
// any date bound, or a non-default sort order. Filtered exports are never
// served from or written to the report cache.
func (f ExportFilter) HasFilters() bool {
	return f.StartDate != "" || f.EndDate != "" || (f.Order != "" && f.Order != SortDesc)
}

// ExportRow is the denormalized per-session view consumed by the report
// aggregator: the record joined with user and module display names plus
// answer-log aggregates.
type ExportRow struct {
	Record

	UserName string

	// Attempted is the number of answers logged for the session.
	Attempted int

	// LastAnswerAt is the HH:MM time of the most recent logged answer,
	// nil when the session has no logged answers. Used to derive elapsed
	// time for sessions that were never explicitly ended.
	LastAnswerAt *string
}

// Summary is the cheap staleness probe over the whole session table: a
// content fingerprint, the highest assigned session ID, and the row count.
// The report cache compares Fingerprint and MaxID against a stored
// snapshot to decide whether a cached export is still valid.
type Summary struct {
	Fingerprint string
	MaxID       int64
	Count       int
}

// Store defines the interface for session persistence.
type Store interface {
	// Create persists a new session record and assigns its ID.
	Create(ctx context.Context, rec *Record) error

	// Get retrieves a session by ID, joined with its module name.
	// Returns ErrNotFound if no such session exists.
	Get(ctx context.Context, id int64) (*Record, error)

	// End closes an open session with an end time and score. Returns
	// ErrNotFound for unknown IDs and ErrAlreadyEnded if the session
	// already has an end time.
	End(ctx context.Context, id int64, endTime string, playerScore int) error

	// LogAnswer records one answer against a session.
	LogAnswer(ctx context.Context, ans *LoggedAnswer) error

	// AnswersFor returns all answers logged for a session, in log order.
	AnswersFor(ctx context.Context, sessionID int64) ([]LoggedAnswer, error)

	// Search returns sessions matching the filter, joined with module
	// names, ordered by session ID ascending.
	Search(ctx context.Context, filter SearchFilter) ([]Record, error)

	// List returns every session joined with its module name.
	List(ctx context.Context) ([]Record, error)

	// ExportRows returns the joined export view under the filter, ordered
	// by session date per filter.Order.
	ExportRows(ctx context.Context, filter ExportFilter) ([]ExportRow, error)

	// Summary returns the current table fingerprint, max session ID and
	// row count in a single query.
	Summary(ctx context.Context) (Summary, error)
}

// Clock abstracts wall-clock reads so handlers can default session dates
// and times deterministically in tests.
type Clock func() time.Time
