package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func newEngine(allowlist []string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORS(allowlist))
	r.POST("/api/v1/query", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestCORS_AllowAll(t *testing.T) {
	rec := httptest.NewRecorder()
	newEngine(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/query", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_Allowlist(t *testing.T) {
	r := newEngine([]string{" https://docs.example.com ", ""})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/query", nil)
	req.Header.Set("Origin", "https://docs.example.com")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, "https://docs.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "Origin", rec.Header().Get("Vary"))

	req = httptest.NewRequest(http.MethodPost, "/api/v1/query", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestCORS_Preflight(t *testing.T) {
	rec := httptest.NewRecorder()
	newEngine(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/v1/query", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
}
