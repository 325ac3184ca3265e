package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore() *MemoryStore {
	store := NewMemoryStore()
	store.AddUser(1, "ada")
	store.AddUser(2, "grace")
	store.AddModule(10, "Algebra")
	store.AddModule(11, "Geometry")
	return store
}

func createSession(t *testing.T, store *MemoryStore, userID, moduleID int64, date string) *Record {
	t.Helper()
	rec := &Record{
		UserID:      userID,
		ModuleID:    moduleID,
		SessionDate: date,
		StartTime:   "09:00",
		Platform:    PlatformPC,
	}
	require.NoError(t, store.Create(context.Background(), rec))
	return rec
}

func TestMemoryStoreCreateAssignsIDs(t *testing.T) {
	store := newTestStore()

	first := createSession(t, store, 1, 10, "2026-03-01")
	second := createSession(t, store, 1, 10, "2026-03-01")

	assert.Equal(t, int64(1), first.ID)
	assert.Equal(t, int64(2), second.ID)
}

func TestMemoryStoreGet(t *testing.T) {
	store := newTestStore()
	rec := createSession(t, store, 1, 10, "2026-03-01")

	got, err := store.Get(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, "Algebra", got.ModuleName)
	assert.False(t, got.Ended())

	_, err = store.Get(context.Background(), 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreEnd(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	rec := createSession(t, store, 1, 10, "2026-03-01")

	require.NoError(t, store.End(ctx, rec.ID, "09:45", 8))

	got, err := store.Get(ctx, rec.ID)
	require.NoError(t, err)
	require.True(t, got.Ended())
	assert.Equal(t, "09:45", *got.EndTime)
	assert.Equal(t, 8, *got.PlayerScore)

	assert.ErrorIs(t, store.End(ctx, rec.ID, "10:00", 9), ErrAlreadyEnded)
	assert.ErrorIs(t, store.End(ctx, 999, "10:00", 9), ErrNotFound)
}

func TestMemoryStoreLogAnswer(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	rec := createSession(t, store, 1, 10, "2026-03-01")

	ans := &LoggedAnswer{QuestionID: 3, TermID: 4, SessionID: rec.ID, Correct: true, AnsweredAt: "09:05"}
	require.NoError(t, store.LogAnswer(ctx, ans))
	assert.Equal(t, int64(1), ans.LogID)

	err := store.LogAnswer(ctx, &LoggedAnswer{QuestionID: 3, SessionID: 999, AnsweredAt: "09:05"})
	assert.ErrorIs(t, err, ErrNotFound)

	answers, err := store.AnswersFor(ctx, rec.ID)
	require.NoError(t, err)
	require.Len(t, answers, 1)
	assert.Equal(t, int64(3), answers[0].QuestionID)

	answers, err = store.AnswersFor(ctx, 999)
	require.NoError(t, err)
	assert.Empty(t, answers)
}

func TestMemoryStoreSearch(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	createSession(t, store, 1, 10, "2026-03-01")
	createSession(t, store, 2, 10, "2026-03-01")
	require.NoError(t, store.Create(ctx, &Record{
		UserID:      1,
		ModuleID:    11,
		SessionDate: "2026-03-02",
		StartTime:   "09:00",
		Platform:    PlatformVR,
	}))

	userID := int64(1)
	moduleID := int64(11)

	tests := []struct {
		name    string
		filter  SearchFilter
		wantIDs []int64
	}{
		{"empty filter returns all", SearchFilter{}, []int64{1, 2, 3}},
		{"by user id", SearchFilter{UserID: &userID}, []int64{1, 3}},
		{"by user name", SearchFilter{UserName: "grace"}, []int64{2}},
		{"by module", SearchFilter{ModuleID: &moduleID}, []int64{3}},
		{"by platform", SearchFilter{Platform: PlatformVR}, []int64{3}},
		{"by date", SearchFilter{SessionDate: "2026-03-02"}, []int64{3}},
		{"combined", SearchFilter{UserID: &userID, SessionDate: "2026-03-01"}, []int64{1}},
		{"no match", SearchFilter{UserName: "nobody"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := store.Search(ctx, tt.filter)
			require.NoError(t, err)
			ids := make([]int64, 0, len(records))
			for _, rec := range records {
				ids = append(ids, rec.ID)
			}
			if tt.wantIDs == nil {
				assert.Empty(t, ids)
				return
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}

func TestMemoryStoreExportRows(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()
	first := createSession(t, store, 1, 10, "2026-03-01")
	createSession(t, store, 2, 11, "2026-03-02")

	require.NoError(t, store.LogAnswer(ctx, &LoggedAnswer{QuestionID: 1, SessionID: first.ID, AnsweredAt: "09:05"}))
	require.NoError(t, store.LogAnswer(ctx, &LoggedAnswer{QuestionID: 2, SessionID: first.ID, AnsweredAt: "09:20"}))

	rows, err := store.ExportRows(ctx, ExportFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	// Descending by default, newest session first.
	assert.Equal(t, "2026-03-02", rows[0].SessionDate)
	assert.Equal(t, "grace", rows[0].UserName)
	assert.Equal(t, 0, rows[0].Attempted)
	assert.Nil(t, rows[0].LastAnswerAt)

	assert.Equal(t, "2026-03-01", rows[1].SessionDate)
	assert.Equal(t, "ada", rows[1].UserName)
	assert.Equal(t, "Algebra", rows[1].ModuleName)
	assert.Equal(t, 2, rows[1].Attempted)
	require.NotNil(t, rows[1].LastAnswerAt)
	assert.Equal(t, "09:20", *rows[1].LastAnswerAt)

	t.Run("ascending", func(t *testing.T) {
		rows, err := store.ExportRows(ctx, ExportFilter{Order: SortAsc})
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, "2026-03-01", rows[0].SessionDate)
	})

	t.Run("date bounds", func(t *testing.T) {
		rows, err := store.ExportRows(ctx, ExportFilter{StartDate: "2026-03-02", EndDate: "2026-03-02"})
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "2026-03-02", rows[0].SessionDate)
	})
}

func TestMemoryStoreSummary(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()

	empty, err := store.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), empty.MaxID)
	assert.Equal(t, 0, empty.Count)

	rec := createSession(t, store, 1, 10, "2026-03-01")

	afterInsert, err := store.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), afterInsert.MaxID)
	assert.Equal(t, 1, afterInsert.Count)
	assert.NotEqual(t, empty.Fingerprint, afterInsert.Fingerprint)

	// Stable across reads that do not change content.
	again, err := store.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, afterInsert, again)

	// An in-place update moves the fingerprint but not the max ID.
	require.NoError(t, store.End(ctx, rec.ID, "09:45", 8))

	afterUpdate, err := store.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, afterInsert.MaxID, afterUpdate.MaxID)
	assert.Equal(t, afterInsert.Count, afterUpdate.Count)
	assert.NotEqual(t, afterInsert.Fingerprint, afterUpdate.Fingerprint)
}
