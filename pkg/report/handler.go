package report

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/lexigame/session-service/pkg/api"
	"github.com/lexigame/session-service/pkg/session"
)

const exportDateFormat = "2006-01-02"

// Handler serves the session export endpoint.
type Handler struct {
	svc *Service
	log *slog.Logger
}

// NewHandler creates the export handler.
func NewHandler(svc *Service, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, log: log}
}

// Export streams the aggregated CSV, optionally bounded by an inclusive
// session-date range and re-ordered ascending. The route must be guarded
// by auth.RequireSuperuser; parameter validation happens here, before any
// store or cache access.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	order := session.SortDesc
	if raw := q.Get("order"); raw != "" {
		order = session.SortOrder(strings.ToLower(raw))
		if !order.Valid() {
			api.WriteError(w, http.StatusBadRequest, "Invalid sort order")
			return
		}
	}

	filter := session.ExportFilter{
		StartDate: q.Get("startDate"),
		EndDate:   q.Get("endDate"),
		Order:     order,
	}
	for _, d := range []string{filter.StartDate, filter.EndDate} {
		if d == "" {
			continue
		}
		if _, err := time.Parse(exportDateFormat, d); err != nil {
			api.WriteError(w, http.StatusBadRequest, "Invalid date filter")
			return
		}
	}

	payload, err := h.svc.Export(r.Context(), filter)
	if errors.Is(err, ErrNoData) {
		api.WriteError(w, http.StatusNotFound, "No data found")
		return
	}
	if err != nil {
		h.log.Error("session export failed", "error", err)
		api.WriteError(w, http.StatusInternalServerError, "Error retrieving data")
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename=Sessions.csv")
	_, _ = w.Write([]byte(payload))
}
