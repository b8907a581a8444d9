package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	redis_rate "github.com/go-redis/redis_rate/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crowpro-api/config"
	"crowpro-api/helper"
	"crowpro-api/models"
	"crowpro-api/services"
	"crowpro-api/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type stubVerifier struct {
	users map[string]*models.User
}

func (v stubVerifier) VerifyAccess(_ context.Context, token string) (*models.User, *services.AccessClaims, error) {
	if user, ok := v.users[token]; ok {
		return user, &services.AccessClaims{}, nil
	}
	return nil, nil, models.ErrTokenInvalid
}

func authRouter(verifier TokenVerifier) *gin.Engine {
	h := &helper.HTTPHelper{}
	router := gin.New()
	whoami := func(c *gin.Context) {
		if user := CurrentUser(c); user != nil {
			c.String(http.StatusOK, "%d:%s", user.ID, AccessToken(c))
			return
		}
		c.String(http.StatusOK, "anonymous")
	}
	router.GET("/private", AuthMiddleware(verifier, h), whoami)
	router.GET("/public", OptionalAuth(verifier), whoami)
	return router
}

func get(router http.Handler, path string, mutate func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if mutate != nil {
		mutate(req)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	router := authRouter(stubVerifier{users: map[string]*models.User{"good": {ID: 7}}})

	w := get(router, "/private", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), models.ErrTokenMissing.Message)

	w = get(router, "/private", func(r *http.Request) { r.Header.Set("Authorization", "Bearer bad") })
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = get(router, "/private", func(r *http.Request) { r.Header.Set("Authorization", "Token good") })
	assert.Equal(t, http.StatusUnauthorized, w.Code, "only the bearer scheme is accepted")

	w = get(router, "/private", func(r *http.Request) { r.Header.Set("Authorization", "Bearer good") })
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "7:good", w.Body.String())

	w = get(router, "/private", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: AccessCookie, Value: "good"}) })
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestOptionalAuth(t *testing.T) {
	router := authRouter(stubVerifier{users: map[string]*models.User{"good": {ID: 7}}})

	assert.Equal(t, "anonymous", get(router, "/public", nil).Body.String())
	assert.Equal(t, "anonymous", get(router, "/public", func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer expired")
	}).Body.String())
	assert.Equal(t, "7:good", get(router, "/public", func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer good")
	}).Body.String())
}

func TestCORS(t *testing.T) {
	router := gin.New()
	router.Use(CORS(config.CORSConfig{
		AllowedOrigins:   []string{"https://app.example.com"},
		AllowedMethods:   []string{"GET", "POST"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	}))
	router.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "https://app.example.com")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))

	w = get(router, "/x", func(r *http.Request) { r.Header.Set("Origin", "https://evil.example.com") })
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimiter(t *testing.T) {
	client, _ := testutil.NewRedis(t)
	rl := NewRateLimiter(client, config.RateLimitConfig{Requests: 1, Window: time.Minute, Burst: 2}, "auth", &helper.HTTPHelper{}, discard)

	router := gin.New()
	router.POST("/login", rl.Handler(), func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = "10.1.1.1:1234"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		codes = append(codes, w.Code)
		if w.Code == http.StatusTooManyRequests {
			assert.NotEmpty(t, w.Header().Get("Retry-After"))
		}
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	req.RemoteAddr = "10.2.2.2:1234"
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code, "limits are per client")
}

func TestLocalLimiterFallback(t *testing.T) {
	l := &localLimiter{}
	limit := redis_rate.Limit{Rate: 1, Burst: 1, Period: time.Minute}

	assert.Equal(t, 1, l.allow("k", limit).Allowed)
	res := l.allow("k", limit)
	assert.Equal(t, 0, res.Allowed)
	assert.Greater(t, res.RetryAfter, time.Duration(0))
	assert.Equal(t, 1, l.allow("other", limit).Allowed)
}

type memoryRecorder struct {
	mu      sync.Mutex
	entries []*models.RequestLog
	err     error
}

func (m *memoryRecorder) Record(_ context.Context, entry *models.RequestLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return m.err
}

type fixedGeo struct{}

func (fixedGeo) Locate(net.IP) (string, string, error) {
	return "Indonesia", "Asia/Jakarta", nil
}

func TestRequestLog(t *testing.T) {
	recorder := &memoryRecorder{}
	router := gin.New()
	router.Use(RequestLog(recorder, fixedGeo{}, 1024, discard))
	router.POST("/api/v1/auth/login", func(c *gin.Context) {
		var req models.LoginRequest
		require.NoError(t, c.ShouldBindJSON(&req))
		c.Set(userKey, &models.User{ID: 3})
		c.String(http.StatusOK, req.Email)
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login?next=1", strings.NewReader(`{"email":"a@x.com","password":"Secret123!"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer secret-token")
	req.Header.Set("User-Agent", "Mozilla/5.0 (iPhone; CPU iPhone OS 16_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.0 Mobile/15E148 Safari/604.1")
	req.RemoteAddr = "203.0.113.9:5555"
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "a@x.com", w.Body.String(), "the handler still sees the full body")

	require.Len(t, recorder.entries, 1)
	entry := recorder.entries[0]
	assert.Equal(t, "POST", entry.Method)
	assert.Equal(t, "/api/v1/auth/login?next=1", entry.Path)
	assert.Equal(t, http.StatusOK, entry.StatusCode)
	assert.Equal(t, "203.0.113.9", entry.RemoteAddr)
	require.NotNil(t, entry.UserID)
	assert.Equal(t, uint(3), *entry.UserID)
	assert.Equal(t, "Mobile", entry.Device)
	assert.Contains(t, entry.Browser, "Safari")
	assert.Equal(t, "Indonesia", entry.Country)
	assert.Equal(t, "Asia/Jakarta", entry.Timezone)
	assert.NotContains(t, entry.Body, "Secret123!")
	assert.Contains(t, entry.Body, "a@x.com")

	var headers map[string]string
	require.NoError(t, json.Unmarshal(entry.Headers, &headers))
	assert.Equal(t, redacted, headers["Authorization"])
}

func TestRequestLogFailureDoesNotAffectResponse(t *testing.T) {
	recorder := &memoryRecorder{err: errors.New("db down")}
	router := gin.New()
	router.Use(RequestLog(recorder, nil, 16, discard))
	router.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	w := get(router, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
	assert.Len(t, recorder.entries, 1)
	assert.Empty(t, recorder.entries[0].Body)
}

func TestCaptureBodyTruncates(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("abcdefghij"))
	assert.Equal(t, "abcd...", captureBody(req, 4))

	rest, err := io.ReadAll(req.Body)
	require.NoError(t, err)
	assert.Equal(t, "abcdefghij", string(rest))

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"refresh":"tok`))
	assert.Equal(t, redacted, captureBody(req, 12))
}
