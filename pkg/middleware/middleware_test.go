package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"smallbiznis-rewards/pkg/errutil"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
	gin.SetMode(gin.TestMode)
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Reason  string `json:"reason"`
		Message string `json:"message"`
	} `json:"error"`
}

func serve(r *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	r.ServeHTTP(w, req)
	return w
}

func TestErrorRendersBaseError(t *testing.T) {
	r := gin.New()
	r.Use(Error())
	r.GET("/gone", func(c *gin.Context) {
		_ = c.Error(errutil.Gone("award expired", nil, errutil.WithReason("EXPIRED")))
	})
	r.GET("/plain", func(c *gin.Context) {
		_ = c.Error(errors.New("boom"))
	})
	r.GET("/ok", func(c *gin.Context) {
		c.String(http.StatusOK, "fine")
	})

	w := serve(r, http.MethodGet, "/gone")
	require.Equal(t, http.StatusGone, w.Code)
	var body errorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, "gone", body.Error.Code)
	require.Equal(t, "EXPIRED", body.Error.Reason)

	w = serve(r, http.MethodGet, "/plain")
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, "internal", body.Error.Code)
	require.NotContains(t, w.Body.String(), "boom")

	w = serve(r, http.MethodGet, "/ok")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "fine", w.Body.String())
}

func TestKeyedLimiter(t *testing.T) {
	l := NewKeyedLimiter(60, 2)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	require.True(t, l.Allow("a"))
	require.True(t, l.Allow("a"))
	require.False(t, l.Allow("a"))
	require.True(t, l.Allow("b"), "keys have independent buckets")

	now = now.Add(time.Second)
	require.True(t, l.Allow("a"))

	now = now.Add(time.Hour)
	l.Allow("c")
	l.mu.Lock()
	_, kept := l.entries["a"]
	l.mu.Unlock()
	require.False(t, kept, "idle keys are evicted")
}

func TestRateLimit(t *testing.T) {
	limiter := NewKeyedLimiter(1, 1)

	r := gin.New()
	r.Use(Error())
	r.POST("/accounts/:account_id/claim", RateLimit(limiter, ParamKey("account_id")), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	require.Equal(t, http.StatusNoContent, serve(r, http.MethodPost, "/accounts/acc-1/claim").Code)
	require.Equal(t, http.StatusTooManyRequests, serve(r, http.MethodPost, "/accounts/acc-1/claim").Code)
	require.Equal(t, http.StatusNoContent, serve(r, http.MethodPost, "/accounts/acc-2/claim").Code)
}

func TestRateLimitDisabled(t *testing.T) {
	r := gin.New()
	r.GET("/x", RateLimit(nil, ParamKey("id")), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	for i := 0; i < 5; i++ {
		require.Equal(t, http.StatusNoContent, serve(r, http.MethodGet, "/x").Code)
	}
}
