// Package postgres provides PostgreSQL storage for play sessions.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/lexigame/session-service/pkg/session"
)

const dateFormat = "2006-01-02"

// psq is the PostgreSQL statement builder with dollar placeholders.
var psq = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// recordColumns lists session columns returned by SELECT queries, joined
// with the module display name.
var recordColumns = []string{
	"s.session_id", "s.user_id", "s.module_id", "s.deleted_module_id",
	"s.session_date", "s.start_time", "s.end_time", "s.player_score",
	"s.platform", "s.mode", "m.name",
}

// exportColumns lists columns returned by the joined export query, in
// scan order.
var exportColumns = []string{
	"s.session_id", "s.user_id", "u.username", "s.module_id",
	"s.deleted_module_id", "m.name", "s.session_date", "s.player_score",
	"s.start_time", "s.end_time", "s.platform", "s.mode",
	"COUNT(la.log_id)", "MAX(la.answered_at)",
}

// Store implements session.Store using PostgreSQL.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL session store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create persists a new session record and assigns its ID. The insert
// runs in its own transaction; any failure rolls the write back.
func (s *Store) Create(ctx context.Context, rec *session.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
		INSERT INTO sessions (user_id, module_id, session_date, start_time, platform, mode)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING session_id
	`
	err = tx.QueryRowContext(ctx, query,
		rec.UserID, rec.ModuleID, rec.SessionDate, rec.StartTime, rec.Platform, rec.Mode,
	).Scan(&rec.ID)
	if err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing session insert: %w", err)
	}
	return nil
}

// Get retrieves a session by ID, joined with its module name.
func (s *Store) Get(ctx context.Context, id int64) (*session.Record, error) {
	query, args, err := psq.Select(recordColumns...).
		From("sessions s").
		Join("modules m ON m.module_id = s.module_id").
		Where(sq.Eq{"s.session_id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building session query: %w", err)
	}

	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning session: %w", err)
	}
	return rec, nil
}

// End closes an open session with an end time and score. The current end
// time is checked under a row lock so an ended session is never mutated.
func (s *Store) End(ctx context.Context, id int64, endTime string, playerScore int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var current sql.NullString
	row := tx.QueryRowContext(ctx,
		`SELECT end_time FROM sessions WHERE session_id = $1 FOR UPDATE`, id)
	if err := row.Scan(&current); err != nil {
		if err == sql.ErrNoRows {
			return session.ErrNotFound
		}
		return fmt.Errorf("locking session row: %w", err)
	}
	if current.Valid {
		return session.ErrAlreadyEnded
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE sessions SET end_time = $1, player_score = $2 WHERE session_id = $3`,
		endTime, playerScore, id)
	if err != nil {
		return fmt.Errorf("ending session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing session end: %w", err)
	}
	return nil
}

// LogAnswer records one answer against a session.
func (s *Store) LogAnswer(ctx context.Context, ans *session.LoggedAnswer) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var one int
	row := tx.QueryRowContext(ctx, `SELECT 1 FROM sessions WHERE session_id = $1`, ans.SessionID)
	if err := row.Scan(&one); err != nil {
		if err == sql.ErrNoRows {
			return session.ErrNotFound
		}
		return fmt.Errorf("checking session: %w", err)
	}

	query := `
		INSERT INTO logged_answers (question_id, term_id, session_id, correct, mode, answered_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING log_id
	`
	err = tx.QueryRowContext(ctx, query,
		ans.QuestionID, ans.TermID, ans.SessionID, ans.Correct, ans.Mode, ans.AnsweredAt,
	).Scan(&ans.LogID)
	if err != nil {
		return fmt.Errorf("inserting logged answer: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing logged answer: %w", err)
	}
	return nil
}

// AnswersFor returns all answers logged for a session, in log order.
func (s *Store) AnswersFor(ctx context.Context, sessionID int64) ([]session.LoggedAnswer, error) {
	query := `
		SELECT log_id, question_id, term_id, session_id, correct, mode, answered_at
		FROM logged_answers
		WHERE session_id = $1
		ORDER BY log_id
	`
	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying logged answers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var answers []session.LoggedAnswer
	for rows.Next() {
		var ans session.LoggedAnswer
		var mode sql.NullString
		if err := rows.Scan(&ans.LogID, &ans.QuestionID, &ans.TermID,
			&ans.SessionID, &ans.Correct, &mode, &ans.AnsweredAt); err != nil {
			return nil, fmt.Errorf("scanning logged answer: %w", err)
		}
		if mode.Valid {
			ans.Mode = &mode.String
		}
		answers = append(answers, ans)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating logged answer rows: %w", err)
	}
	return answers, nil
}

// applySearchFilter adds filter conditions to a SELECT builder. Every set
// field becomes a parameterized predicate; nothing is spliced into the
// query text.
func applySearchFilter(qb sq.SelectBuilder, filter session.SearchFilter) sq.SelectBuilder {
	if filter.UserID != nil {
		qb = qb.Where(sq.Eq{"s.user_id": *filter.UserID})
	}
	if filter.UserName != "" {
		qb = qb.Where(sq.Eq{"u.username": filter.UserName})
	}
	if filter.ModuleID != nil {
		qb = qb.Where(sq.Eq{"s.module_id": *filter.ModuleID})
	}
	if filter.Platform != "" {
		qb = qb.Where(sq.Eq{"s.platform": filter.Platform})
	}
	if filter.SessionDate != "" {
		qb = qb.Where(sq.Eq{"s.session_date": filter.SessionDate})
	}
	return qb
}

// Search returns sessions matching the filter, ordered by session ID ascending.
func (s *Store) Search(ctx context.Context, filter session.SearchFilter) ([]session.Record, error) {
	qb := psq.Select(recordColumns...).
		From("sessions s").
		Join("modules m ON m.module_id = s.module_id").
		Join("users u ON u.user_id = s.user_id")
	qb = applySearchFilter(qb, filter).OrderBy("s.session_id ASC")

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building search query: %w", err)
	}
	return s.queryRecords(ctx, query, args)
}

// List returns every session joined with its module name.
func (s *Store) List(ctx context.Context) ([]session.Record, error) {
	query, args, err := psq.Select(recordColumns...).
		From("sessions s").
		Join("modules m ON m.module_id = s.module_id").
		OrderBy("s.session_id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building list query: %w", err)
	}
	return s.queryRecords(ctx, query, args)
}

// ExportRows returns the joined export view under the filter. Rows are
// ordered by session date with session ID as a tie-break so that repeated
// builds from the same table state are byte-identical.
func (s *Store) ExportRows(ctx context.Context, filter session.ExportFilter) ([]session.ExportRow, error) {
	qb := psq.Select(exportColumns...).
		From("sessions s").
		LeftJoin("logged_answers la ON la.session_id = s.session_id").
		Join("users u ON u.user_id = s.user_id").
		Join("modules m ON m.module_id = s.module_id")

	if filter.StartDate != "" {
		qb = qb.Where(sq.GtOrEq{"s.session_date": filter.StartDate})
	}
	if filter.EndDate != "" {
		qb = qb.Where(sq.LtOrEq{"s.session_date": filter.EndDate})
	}

	dir := "DESC"
	if filter.Order == session.SortAsc {
		dir = "ASC"
	}
	qb = qb.GroupBy("s.session_id", "u.username", "m.name").
		OrderBy("s.session_date "+dir, "s.session_id "+dir)

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building export query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying export rows: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []session.ExportRow
	for rows.Next() {
		row, err := scanExportRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating export rows: %w", err)
	}
	return out, nil
}

// Summary returns the table content fingerprint, max session ID and row
// count in a single query. The fingerprint is an md5 over the ordered row
// text, so any update to an existing row changes it; the max ID catches
// inserts independently of checksum collisions.
func (s *Store) Summary(ctx context.Context) (session.Summary, error) {
	query := `
		SELECT COUNT(*),
		       COALESCE(MAX(session_id), 0),
		       md5(COALESCE(string_agg(s::text, ',' ORDER BY session_id), ''))
		FROM sessions s
	`
	var sum session.Summary
	err := s.db.QueryRowContext(ctx, query).Scan(&sum.Count, &sum.MaxID, &sum.Fingerprint)
	if err != nil {
		return session.Summary{}, fmt.Errorf("querying session summary: %w", err)
	}
	return sum, nil
}

func (s *Store) queryRecords(ctx context.Context, query string, args []any) ([]session.Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []session.Record
	for rows.Next() {
		rec, err := scanRecordRow(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating session rows: %w", err)
	}
	return records, nil
}

// scanner matches both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRecordInto(sc scanner, rec *session.Record) error {
	var (
		deletedModule sql.NullInt64
		date          time.Time
		endTime       sql.NullString
		score         sql.NullInt64
		mode          sql.NullString
	)
	err := sc.Scan(&rec.ID, &rec.UserID, &rec.ModuleID, &deletedModule,
		&date, &rec.StartTime, &endTime, &score, &rec.Platform, &mode, &rec.ModuleName)
	if err != nil {
		return err
	}
	rec.SessionDate = date.Format(dateFormat)
	if deletedModule.Valid {
		rec.DeletedModuleID = &deletedModule.Int64
	}
	if endTime.Valid {
		rec.EndTime = &endTime.String
	}
	if score.Valid {
		v := int(score.Int64)
		rec.PlayerScore = &v
	}
	if mode.Valid {
		rec.Mode = &mode.String
	}
	return nil
}

func scanRecord(row *sql.Row) (*session.Record, error) {
	var rec session.Record
	if err := scanRecordInto(row, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func scanRecordRow(rows *sql.Rows) (*session.Record, error) {
	var rec session.Record
	if err := scanRecordInto(rows, &rec); err != nil {
		return nil, fmt.Errorf("scanning session row: %w", err)
	}
	return &rec, nil
}

func scanExportRow(rows *sql.Rows) (session.ExportRow, error) {
	var (
		row           session.ExportRow
		deletedModule sql.NullInt64
		date          time.Time
		score         sql.NullInt64
		endTime       sql.NullString
		mode          sql.NullString
		lastAnswer    sql.NullString
	)
	err := rows.Scan(&row.ID, &row.UserID, &row.UserName, &row.ModuleID,
		&deletedModule, &row.ModuleName, &date, &score, &row.StartTime,
		&endTime, &row.Platform, &mode, &row.Attempted, &lastAnswer)
	if err != nil {
		return row, fmt.Errorf("scanning export row: %w", err)
	}
	row.SessionDate = date.Format(dateFormat)
	if deletedModule.Valid {
		row.DeletedModuleID = &deletedModule.Int64
	}
	if score.Valid {
		v := int(score.Int64)
		row.PlayerScore = &v
	}
	if endTime.Valid {
		row.EndTime = &endTime.String
	}
	if mode.Valid {
		row.Mode = &mode.String
	}
	if lastAnswer.Valid {
		row.LastAnswerAt = &lastAnswer.String
	}
	return row, nil
}

// Verify interface compliance.
var _ session.Store = (*Store)(nil)
