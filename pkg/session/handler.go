package session

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/lexigame/session-service/pkg/api"
	"github.com/lexigame/session-service/pkg/auth"
)

const (
	dateFormat  = "2006-01-02"
	clockFormat = "15:04"
)

// HandlerConfig configures a Handler.
type HandlerConfig struct {
	Store Store

	// Clock defaults session dates and start times; nil means time.Now.
	Clock Clock

	Logger *slog.Logger
}

// Handler serves the session lifecycle endpoints.
type Handler struct {
	store Store
	clock Clock
	log   *slog.Logger
}

// NewHandler creates the session handler.
func NewHandler(cfg HandlerConfig) *Handler {
	h := &Handler{
		store: cfg.Store,
		clock: cfg.Clock,
		log:   cfg.Logger,
	}
	if h.clock == nil {
		h.clock = time.Now
	}
	if h.log == nil {
		h.log = slog.Default()
	}
	return h
}

// RegisterRoutes registers the lifecycle routes on mux. All routes expect
// auth.Middleware to have populated the request context.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/sessions", h.Start)
	mux.HandleFunc("POST /api/sessions/end", h.End)
	mux.HandleFunc("GET /api/sessions/{id}", h.Get)
	mux.HandleFunc("POST /api/answers", h.LogAnswer)
	mux.HandleFunc("GET /api/sessions/search", h.Search)
	mux.HandleFunc("GET /api/sessions", h.List)
}

type startRequest struct {
	ModuleID    int64  `json:"moduleID"`
	Mode        string `json:"mode"`
	SessionDate string `json:"sessionDate"`
	StartTime   string `json:"startTime"`
	Platform    string `json:"platform"`
}

// Start creates a session record for the authenticated caller. The date
// and start time default to the current clock; the platform tag is
// normalized ("pc" to "cp") and validated before any store access.
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFrom(r.Context())
	if !ok {
		api.WriteError(w, http.StatusUnauthorized, "Invalid user")
		return
	}

	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.ModuleID == 0 {
		api.WriteError(w, http.StatusBadRequest, "moduleID of module used in session required")
		return
	}

	platform := strings.ToLower(req.Platform)
	if platform == "pc" {
		platform = PlatformPC
	}
	if !ValidPlatform(platform) {
		api.WriteError(w, http.StatusBadRequest, "Not a valid platform")
		return
	}

	now := h.clock()
	sessionDate := req.SessionDate
	if sessionDate == "" {
		sessionDate = now.Format(dateFormat)
	} else if _, err := time.Parse(dateFormat, sessionDate); err != nil {
		api.WriteError(w, http.StatusBadRequest, "Invalid session date")
		return
	}
	startTime := req.StartTime
	if startTime == "" {
		startTime = now.Format(clockFormat)
	}

	rec := &Record{
		UserID:      user.ID,
		ModuleID:    req.ModuleID,
		SessionDate: sessionDate,
		StartTime:   startTime,
		Platform:    platform,
	}
	if req.Mode != "" {
		rec.Mode = &req.Mode
	}

	if err := h.store.Create(r.Context(), rec); err != nil {
		h.log.Error("creating session failed", "error", err)
		api.WriteError(w, http.StatusInternalServerError, "Error starting session")
		return
	}

	api.WriteData(w, http.StatusCreated, map[string]int64{"sessionID": rec.ID})
}

type endRequest struct {
	SessionID   int64  `json:"sessionID"`
	EndTime     string `json:"endTime"`
	PlayerScore *int   `json:"playerScore"`
}

// End closes a previously started session with the player's final score.
// Ending an unknown or already-ended session is rejected.
func (h *Handler) End(w http.ResponseWriter, r *http.Request) {
	var req endRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.SessionID == 0 {
		api.WriteError(w, http.StatusBadRequest, "ID of session needed in int format to retrieve is required")
		return
	}
	if req.PlayerScore == nil {
		api.WriteError(w, http.StatusBadRequest, "Need to specify what's the score of the user in this session (integer format)")
		return
	}

	endTime := req.EndTime
	if endTime == "" {
		endTime = h.clock().Format(clockFormat)
	}

	err := h.store.End(r.Context(), req.SessionID, endTime, *req.PlayerScore)
	switch {
	case errors.Is(err, ErrNotFound):
		api.WriteError(w, http.StatusBadRequest, "Session not found for provided ID")
		return
	case errors.Is(err, ErrAlreadyEnded):
		api.WriteError(w, http.StatusBadRequest, "Session already ended")
		return
	case err != nil:
		h.log.Error("ending session failed", "session_id", req.SessionID, "error", err)
		api.WriteError(w, http.StatusInternalServerError, "Error ending session")
		return
	}

	api.WriteData(w, http.StatusOK, "Session successfully ended")
}

// Get returns one session record and all the answers logged against it.
// Students may only read their own sessions.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFrom(r.Context())
	if !ok {
		api.WriteError(w, http.StatusUnauthorized, "Invalid user")
		return
	}

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		api.WriteError(w, http.StatusBadRequest, "ID of session needed to retrieve is required")
		return
	}

	rec, err := h.store.Get(r.Context(), id)
	if errors.Is(err, ErrNotFound) {
		api.WriteError(w, http.StatusBadRequest, "No sessions found for the given ID")
		return
	}
	if err != nil {
		h.log.Error("fetching session failed", "session_id", id, "error", err)
		api.WriteError(w, http.StatusInternalServerError, "Error retrieving session")
		return
	}

	if !user.Elevated() && rec.UserID != user.ID {
		api.WriteError(w, http.StatusBadRequest, "Unauthorized to access this session")
		return
	}

	answers, err := h.store.AnswersFor(r.Context(), id)
	if err != nil {
		h.log.Error("fetching logged answers failed", "session_id", id, "error", err)
		api.WriteError(w, http.StatusInternalServerError, "Error retrieving session")
		return
	}

	api.WriteData(w, http.StatusOK, map[string]any{
		"session":        recordJSON(*rec),
		"logged_answers": answersJSON(answers),
	})
}

type answerRequest struct {
	SessionID  int64  `json:"sessionID"`
	QuestionID int64  `json:"questionID"`
	TermID     int64  `json:"termID"`
	Correct    bool   `json:"correct"`
	Mode       string `json:"mode"`
}

// LogAnswer records one answer against an existing session.
func (h *Handler) LogAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.SessionID == 0 || req.QuestionID == 0 {
		api.WriteError(w, http.StatusBadRequest, "sessionID and questionID are required")
		return
	}

	ans := &LoggedAnswer{
		QuestionID: req.QuestionID,
		TermID:     req.TermID,
		SessionID:  req.SessionID,
		Correct:    req.Correct,
		AnsweredAt: h.clock().Format(clockFormat),
	}
	if req.Mode != "" {
		ans.Mode = &req.Mode
	}

	err := h.store.LogAnswer(r.Context(), ans)
	if errors.Is(err, ErrNotFound) {
		api.WriteError(w, http.StatusBadRequest, "Session not found for provided ID")
		return
	}
	if err != nil {
		h.log.Error("logging answer failed", "session_id", req.SessionID, "error", err)
		api.WriteError(w, http.StatusInternalServerError, "Error logging answer")
		return
	}

	api.WriteData(w, http.StatusCreated, map[string]int64{"logID": ans.LogID})
}

// Search returns sessions matching the query parameters. Callers below
// the professor level are pinned to their own records regardless of the
// userID parameter.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFrom(r.Context())
	if !ok {
		api.WriteError(w, http.StatusUnauthorized, "Invalid user")
		return
	}

	q := r.URL.Query()
	filter := SearchFilter{
		UserName:    q.Get("userName"),
		Platform:    q.Get("platform"),
		SessionDate: q.Get("sessionDate"),
	}

	if raw := q.Get("moduleID"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			api.WriteError(w, http.StatusBadRequest, "Invalid moduleID format")
			return
		}
		filter.ModuleID = &id
	}

	if user.Elevated() {
		if raw := q.Get("userID"); raw != "" {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				api.WriteError(w, http.StatusBadRequest, "Invalid userID format")
				return
			}
			filter.UserID = &id
		}
	} else {
		own := user.ID
		filter.UserID = &own
	}

	records, err := h.store.Search(r.Context(), filter)
	if err != nil {
		h.log.Error("searching sessions failed", "error", err)
		api.WriteError(w, http.StatusInternalServerError, "Error searching sessions")
		return
	}
	if len(records) == 0 {
		api.WriteData(w, http.StatusNoContent, "No sessions found for the user")
		return
	}

	api.WriteData(w, http.StatusOK, recordsJSON(records))
}

// List returns every session record. Superuser only.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFrom(r.Context())
	if !ok || !user.Superuser() {
		api.WriteError(w, http.StatusUnauthorized, "Unauthorized user")
		return
	}

	records, err := h.store.List(r.Context())
	if err != nil {
		h.log.Error("listing sessions failed", "error", err)
		api.WriteError(w, http.StatusInternalServerError, "Error retrieving sessions")
		return
	}
	if len(records) == 0 {
		api.WriteData(w, api.StatusOKEmpty, "No sessions found")
		return
	}

	api.WriteData(w, http.StatusOK, recordsJSON(records))
}

// recordJSON renders a record with the field names the game clients expect.
func recordJSON(rec Record) map[string]any {
	return map[string]any{
		"sessionID":       rec.ID,
		"userID":          rec.UserID,
		"moduleID":        rec.ModuleID,
		"deletedModuleID": rec.DeletedModuleID,
		"sessionDate":     rec.SessionDate,
		"startTime":       rec.StartTime,
		"endTime":         rec.EndTime,
		"playerScore":     rec.PlayerScore,
		"platform":        rec.Platform,
		"mode":            rec.Mode,
		"moduleName":      rec.ModuleName,
	}
}

func recordsJSON(records []Record) []map[string]any {
	out := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		out = append(out, recordJSON(rec))
	}
	return out
}

func answersJSON(answers []LoggedAnswer) []map[string]any {
	out := make([]map[string]any, 0, len(answers))
	for _, ans := range answers {
		out = append(out, map[string]any{
			"logID":      ans.LogID,
			"questionID": ans.QuestionID,
			"termID":     ans.TermID,
			"sessionID":  ans.SessionID,
			"correct":    ans.Correct,
			"mode":       ans.Mode,
			"answeredAt": ans.AnsweredAt,
		})
	}
	return out
}
