package middleware_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"socialdm/backend/internal/api/middleware"
	"socialdm/backend/internal/apperr"
	"socialdm/backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func init() {
	gin.SetMode(gin.TestMode)
	logger.Disable()
}

type stubVerifier map[string]string

func (v stubVerifier) Verify(token string) (string, error) {
	if id, ok := v[token]; ok {
		return id, nil
	}
	return "", apperr.Authentication("invalid token")
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestErrorHandler_MapsKinds(t *testing.T) {
	r := gin.New()
	r.Use(middleware.ErrorHandler())
	r.GET("/denied", func(c *gin.Context) { _ = c.Error(apperr.AccessDenied("nope")) })
	r.GET("/boom", func(c *gin.Context) { _ = c.Error(errors.New("dial tcp: refused")) })
	r.GET("/panic", func(c *gin.Context) { panic("kaboom") })

	w := serve(r, httptest.NewRequest(http.MethodGet, "/denied", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.JSONEq(t, `{"error":"nope","kind":"access_denied"}`, w.Body.String())

	w = serve(r, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "refused", "infrastructure detail stays server-side")

	w = serve(r, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestAuth(t *testing.T) {
	r := gin.New()
	r.Use(middleware.ErrorHandler(), middleware.Auth(stubVerifier{"good": "alice"}))
	r.GET("/me", func(c *gin.Context) { c.String(http.StatusOK, middleware.UserID(c)) })

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer good")
	w := serve(r, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice", w.Body.String())

	w = serve(r, httptest.NewRequest(http.MethodGet, "/me?token=good", nil))
	assert.Equal(t, "alice", w.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/me?token=good", nil)
	req.Header.Set("Authorization", "Basic good")
	assert.Equal(t, http.StatusUnauthorized, serve(r, req).Code, "a non-bearer header is not overridden by the query")

	assert.Equal(t, http.StatusUnauthorized, serve(r, httptest.NewRequest(http.MethodGet, "/me", nil)).Code)
}

func TestRateLimit_PerIP(t *testing.T) {
	limiter := middleware.NewIPRateLimiter(rate.Limit(0.001), 2)
	r := gin.New()
	r.Use(middleware.ErrorHandler(), middleware.RateLimit(limiter))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	from := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = ip + ":1234"
		return serve(r, req).Code
	}
	assert.Equal(t, http.StatusNoContent, from("10.0.0.1"))
	assert.Equal(t, http.StatusNoContent, from("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, from("10.0.0.1"))
	assert.Equal(t, http.StatusNoContent, from("10.0.0.2"))
}

func TestIPRateLimiter_Cleanup(t *testing.T) {
	limiter := middleware.NewIPRateLimiter(rate.Limit(1), 1)
	limiter.GetLimiter("10.0.0.1")

	assert.Equal(t, 0, limiter.Cleanup(time.Now()))
	assert.Equal(t, 1, limiter.Cleanup(time.Now().Add(time.Hour)))
}

func TestCORS(t *testing.T) {
	r := gin.New()
	r.Use(middleware.CORS([]string{"http://app.local"}))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "http://app.local")
	req.Header.Set("Access-Control-Request-Method", "GET")
	w := serve(r, req)
	assert.Equal(t, "http://app.local", w.Header().Get("Access-Control-Allow-Origin"))
}
