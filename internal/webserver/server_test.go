package webserver

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *WebServer {
	t.Helper()
	s := New("test-secret", time.Hour, "/login")
	s.Group().POST("/login", func(c echo.Context) error { return c.String(http.StatusOK, "open") })
	s.Group().GET("/whoami", func(c echo.Context) error {
		return c.String(http.StatusOK, CurrentClaims(c).Username)
	})
	s.Group().POST("/decide", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }, RequireRole(RoleOperator))
	s.Group().DELETE("/danger", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }, RequireRole(RoleAdmin))
	return s
}

func do(s *WebServer, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)
	return rec
}

func TestPublicRouteSkipsAuth(t *testing.T) {
	s := newTestServer(t)
	rec := do(s, http.MethodPost, ApiPrefix+"/login", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "open", rec.Body.String())
}

func TestTokenRequired(t *testing.T) {
	s := newTestServer(t)
	assert.Equal(t, http.StatusUnauthorized, do(s, http.MethodGet, ApiPrefix+"/whoami", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(s, http.MethodGet, ApiPrefix+"/whoami", "garbage").Code)

	other := New("other-secret", time.Hour)
	foreign, _, err := other.IssueToken("mallory", RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, do(s, http.MethodGet, ApiPrefix+"/whoami", foreign).Code)
}

func TestClaimsAndRoles(t *testing.T) {
	s := newTestServer(t)
	opToken, expires, err := s.IssueToken("siti", RoleOperator)
	require.NoError(t, err)
	assert.True(t, expires.After(time.Now()))

	rec := do(s, http.MethodGet, ApiPrefix+"/whoami", opToken)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "siti", rec.Body.String())

	assert.Equal(t, http.StatusNoContent, do(s, http.MethodPost, ApiPrefix+"/decide", opToken).Code)
	assert.Equal(t, http.StatusForbidden, do(s, http.MethodDelete, ApiPrefix+"/danger", opToken).Code)

	adminToken, _, err := s.IssueToken("root", RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, do(s, http.MethodPost, ApiPrefix+"/decide", adminToken).Code)
	assert.Equal(t, http.StatusNoContent, do(s, http.MethodDelete, ApiPrefix+"/danger", adminToken).Code)
}
