package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"payroll-backend/internal/handlers"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newEngine(mw gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/admin", mw, func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString("admin_username"))
	})
	return r
}

func get(r http.Handler, remote, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.RemoteAddr = remote
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestLocalhostOnly(t *testing.T) {
	l := NewLocalhostOnly(quietLogger(), []string{"10.0.0.0/8", "203.0.113.7", "not-an-ip", "300.1.1.1/99"})
	r := newEngine(l.Restrict())

	cases := []struct {
		remote string
		status int
	}{
		{"127.0.0.1:4000", http.StatusOK},
		{"[::1]:4000", http.StatusOK},
		{"10.20.30.40:4000", http.StatusOK},
		{"203.0.113.7:4000", http.StatusOK},
		{"203.0.113.8:4000", http.StatusForbidden},
		{"192.0.2.1:4000", http.StatusForbidden},
	}
	for _, tc := range cases {
		w := get(r, tc.remote, "")
		assert.Equal(t, tc.status, w.Code, tc.remote)
	}

	w := get(r, "192.0.2.1:4000", "")
	assert.Contains(t, w.Body.String(), "IP_NOT_ALLOWED")
}

func TestRequireAdminAuth(t *testing.T) {
	secret := "admin-secret"
	a := NewAdminAuthMiddleware(quietLogger(), secret)
	r := newEngine(a.RequireAdminAuth())

	token, err := handlers.GenerateAdminJWTToken([]byte(secret), "ops", time.Hour)
	require.NoError(t, err)

	w := get(r, "127.0.0.1:1", "Bearer "+token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ops", w.Body.String())

	w = get(r, "127.0.0.1:1", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "MISSING_AUTH_HEADER")

	w = get(r, "127.0.0.1:1", "Token "+token)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_AUTH_FORMAT")

	forged, err := handlers.GenerateAdminJWTToken([]byte("other"), "ops", time.Hour)
	require.NoError(t, err)
	w = get(r, "127.0.0.1:1", "Bearer "+forged)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_TOKEN")
}
