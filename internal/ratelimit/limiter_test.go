package ratelimit

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/JakeFAU/fraud-detection/internal/metrics"
)

func TestLimiterAllowPerClient(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l := New(Config{RPS: 1, Burst: 2})
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"), "clients have independent buckets")

	now = now.Add(time.Second)
	assert.True(t, l.Allow("a"), "one token refills per second")
}

func TestLimiterDisabled(t *testing.T) {
	t.Parallel()

	l := New(Config{})
	for i := 0; i < 100; i++ {
		assert.True(t, l.Allow("a"))
	}
}

func TestLimiterEvictsIdleClients(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l := New(Config{RPS: 1, Burst: 1, IdleTTL: time.Minute})
	l.now = func() time.Time { return now }

	l.Allow("a")
	l.Allow("b")
	assert.Equal(t, 2, l.Len())

	now = now.Add(2 * time.Minute)
	l.Allow("c")
	assert.Equal(t, 1, l.Len())
}

func TestMiddlewareReturns429(t *testing.T) {
	metrics.Init()
	l := New(Config{RPS: 0.001, Burst: 1})
	h := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/predict", nil)
	req.RemoteAddr = "10.0.0.1:1234"

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.JSONEq(t, `{"error":"rate limit exceeded"}`, rec.Body.String())
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestClientKey(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.7:5555"
	assert.Equal(t, "192.0.2.7", ClientKey(req))

	req.Header.Set("X-API-Key", "abc")
	assert.Equal(t, "192.0.2.7", ClientKey(req), "unverified keys must not pick the bucket")

	req = req.WithContext(WithClient(req.Context(), KeyID("abc")))
	assert.Equal(t, KeyID("abc"), ClientKey(req))
	assert.NotContains(t, ClientKey(req), "abc")
}

func TestKeyIDIsStableAndOpaque(t *testing.T) {
	t.Parallel()

	assert.Equal(t, KeyID("s3cret-key"), KeyID("s3cret-key"))
	assert.NotEqual(t, KeyID("s3cret-key"), KeyID("other-key"))
	assert.Len(t, KeyID("s3cret-key"), len("key:")+12)
	assert.NotContains(t, KeyID("s3cret-key"), "s3cret")
}

func TestMiddlewareIgnoresRotatingHeaderKeys(t *testing.T) {
	t.Parallel()

	metrics.Init()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l := New(Config{RPS: 1, Burst: 1})
	l.now = func() time.Time { return now }
	h := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	allowed := 0
	for i := range 50 {
		req := httptest.NewRequest(http.MethodPost, "/predict", nil)
		req.RemoteAddr = "10.0.0.9:4000"
		req.Header.Set("X-API-Key", fmt.Sprintf("spoof-%d", i))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code == http.StatusOK {
			allowed++
		}
	}
	assert.Equal(t, 1, allowed)
	assert.Equal(t, 1, l.Len())
}
