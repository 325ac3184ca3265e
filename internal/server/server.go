// Package server composes the HTTP surface of the session service.
package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/lexigame/session-service/pkg/auth"
	"github.com/lexigame/session-service/pkg/config"
	"github.com/lexigame/session-service/pkg/health"
	"github.com/lexigame/session-service/pkg/report"
	"github.com/lexigame/session-service/pkg/session"
)

// Deps are the constructed collaborators the server wires together.
type Deps struct {
	Store    session.Store
	Reports  *report.Service
	Verifier *auth.Verifier
	Checker  *health.Checker
	Logger   *slog.Logger
}

// New builds the http.Server: health probes unauthenticated, every /api
// route behind token verification, and the export additionally behind the
// superuser gate.
func New(cfg config.ServerConfig, deps Deps) *http.Server {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	sessionHandler := session.NewHandler(session.HandlerConfig{
		Store:  deps.Store,
		Logger: log,
	})
	reportHandler := report.NewHandler(deps.Reports, log)

	apiMux := http.NewServeMux()
	sessionHandler.RegisterRoutes(apiMux)
	apiMux.Handle("GET /api/sessions/export",
		auth.RequireSuperuser(http.HandlerFunc(reportHandler.Export)))

	root := http.NewServeMux()
	if deps.Checker != nil {
		root.HandleFunc("GET /healthz", deps.Checker.LivenessHandler())
		root.HandleFunc("GET /readyz", deps.Checker.ReadinessHandler())
	}
	root.Handle("/api/", auth.Middleware(deps.Verifier)(apiMux))

	return &http.Server{
		Addr:         cfg.Address,
		Handler:      requestLog(log)(root),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
}

// statusWriter captures the response status for the request log.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// requestLog attaches a request ID and logs one line per request.
func requestLog(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = uuid.NewString()
			}
			w.Header().Set("X-Request-ID", requestID)

			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(sw, r)

			log.Info("request",
				"request_id", requestID,
				"method", r.Method,
				"path", r.URL.Path,
				"status", sw.status,
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}
