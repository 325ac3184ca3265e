package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexigame/session-service/pkg/auth"
	"github.com/lexigame/session-service/pkg/config"
	"github.com/lexigame/session-service/pkg/health"
	"github.com/lexigame/session-service/pkg/report"
	"github.com/lexigame/session-service/pkg/session"
)

type serverFixture struct {
	store    *session.MemoryStore
	verifier *auth.Verifier
	handler  http.Handler
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()

	store := session.NewMemoryStore()
	store.AddUser(1, "ada")
	store.AddModule(10, "Algebra")

	verifier := auth.NewVerifier("test-secret")
	checker := health.NewChecker()
	checker.SetReady()

	srv := New(config.ServerConfig{Address: ":0"}, Deps{
		Store:    store,
		Reports:  report.NewService(store, report.NewMemoryCache(), nil),
		Verifier: verifier,
		Checker:  checker,
	})
	return &serverFixture{store: store, verifier: verifier, handler: srv.Handler}
}

func (f *serverFixture) token(t *testing.T, id int64, permission string) string {
	t.Helper()
	token, err := f.verifier.Sign(auth.User{ID: id, Permission: permission})
	require.NoError(t, err)
	return token
}

func (f *serverFixture) do(method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpointsUnauthenticated(t *testing.T) {
	f := newServerFixture(t)

	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/healthz", "", "").Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/readyz", "", "").Code)
}

func TestAPIRequiresToken(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(http.MethodGet, "/api/sessions", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"message":"Invalid user","code":401}`, rec.Body.String())
}

func TestSessionLifecycleThroughServer(t *testing.T) {
	f := newServerFixture(t)
	token := f.token(t, 1, auth.RoleStudent)

	rec := f.do(http.MethodPost, "/api/sessions", token,
		`{"moduleID":10,"platform":"pc"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(http.MethodPost, "/api/answers", token,
		`{"sessionID":1,"questionID":3,"termID":4,"correct":true}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(http.MethodPost, "/api/sessions/end", token,
		`{"sessionID":1,"endTime":"10:00","playerScore":1}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodGet, "/api/sessions/1", token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"moduleName":"Algebra"`)
}

func TestExportGatedToSuperuser(t *testing.T) {
	f := newServerFixture(t)

	for _, permission := range []string{auth.RoleStudent, auth.RoleAssistant, auth.RoleProfessor} {
		res := f.do(http.MethodGet, "/api/sessions/export", f.token(t, 1, permission), "")
		assert.Equal(t, http.StatusUnauthorized, res.Code, permission)
	}
}

func TestExportThroughServer(t *testing.T) {
	f := newServerFixture(t)
	superToken := f.token(t, 99, auth.RoleSuperuser)

	t.Run("empty store", func(t *testing.T) {
		res := f.do(http.MethodGet, "/api/sessions/export", superToken, "")
		assert.Equal(t, http.StatusNotFound, res.Code)
	})

	t.Run("with data", func(t *testing.T) {
		studentToken := f.token(t, 1, auth.RoleStudent)
		res := f.do(http.MethodPost, "/api/sessions", studentToken,
			`{"moduleID":10,"platform":"vr","sessionDate":"2026-03-01","startTime":"09:00"}`)
		require.Equal(t, http.StatusCreated, res.Code)

		res = f.do(http.MethodGet, "/api/sessions/export", superToken, "")
		require.Equal(t, http.StatusOK, res.Code)
		assert.Equal(t, "text/csv", res.Header().Get("Content-Type"))
		assert.Equal(t, "attachment; filename=Sessions.csv", res.Header().Get("Content-Disposition"))
		assert.True(t, strings.HasPrefix(res.Body.String(), report.Header))
		assert.Contains(t, res.Body.String(), "Virtual Reality")
	})

	t.Run("invalid parameters", func(t *testing.T) {
		res := f.do(http.MethodGet, "/api/sessions/export?order=sideways", superToken, "")
		assert.Equal(t, http.StatusBadRequest, res.Code)

		res = f.do(http.MethodGet, "/api/sessions/export?startDate=01/03/2026", superToken, "")
		assert.Equal(t, http.StatusBadRequest, res.Code)
	})
}

func TestRequestIDHeader(t *testing.T) {
	f := newServerFixture(t)

	t.Run("generated when absent", func(t *testing.T) {
		rec := f.do(http.MethodGet, "/healthz", "", "")
		assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	})

	t.Run("passed through when present", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.Header.Set("X-Request-ID", "req-123")
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, req)

		assert.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))
	})
}
