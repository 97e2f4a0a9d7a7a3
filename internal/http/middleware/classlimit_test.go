package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/retroplay/arcade-backend/internal/limiter"
)

func newClassLimitRouter(l *limiter.Limiter, class limiter.Class, pre ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	for _, h := range pre {
		r.Use(h)
	}
	r.Use(ClassLimit(l, class))
	r.GET("/ok", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	return r
}

func TestClassLimit_NilLimiter_PassesThrough(t *testing.T) {
	r := newClassLimitRouter(nil, limiter.ClassPlay)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("nil limiter should pass through, got %d", w.Code)
	}
}

func TestClassLimit_AllowsWithinBudget_ThenBlocks(t *testing.T) {
	l := limiter.New(map[limiter.Class]limiter.Policy{
		limiter.ClassPlay: {Window: time.Minute, Max: 2, Block: 2 * time.Minute},
	})
	r := newClassLimitRouter(l, limiter.ClassPlay, func(c *gin.Context) {
		c.Set("accountID", "p1")
		c.Next()
	})

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d should be allowed, got %d", i+1, w.Code)
		}
	}

	// Third request exceeds Max=2 and triggers the hard block.
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if ra := w.Header().Get("Retry-After"); ra == "" {
		t.Fatalf("expected Retry-After header")
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if body["code"] != "too_many_requests" {
		t.Fatalf("unexpected code: %v", body)
	}
	msg, _ := body["message"].(string)
	if !strings.Contains(msg, "play") {
		t.Fatalf("message should name the class, got %q", msg)
	}
	secs, okN := body["retry_after_seconds"].(float64)
	if !okN || secs < 1 {
		t.Fatalf("expected retry_after_seconds >= 1, got %v", body["retry_after_seconds"])
	}
	// 2 minute block rounds up to at least 120 seconds.
	if secs < 120 {
		t.Fatalf("expected block of at least 120s, got %v", secs)
	}
}

func TestClassLimit_Debounce_RejectsRapidDoubleSubmit(t *testing.T) {
	l := limiter.New(map[limiter.Class]limiter.Policy{
		limiter.ClassPlay: {Window: time.Minute, Max: 100, Block: time.Minute, Debounce: time.Second},
	})
	r := newClassLimitRouter(l, limiter.ClassPlay, func(c *gin.Context) {
		c.Set("accountID", "p2")
		c.Next()
	})

	w1 := httptest.NewRecorder()
	r.ServeHTTP(w1, httptest.NewRequest(http.MethodGet, "/ok", nil))
	if w1.Code != http.StatusOK {
		t.Fatalf("first request should pass, got %d", w1.Code)
	}

	// Immediate second request lands inside the debounce interval.
	w2 := httptest.NewRecorder()
	r.ServeHTTP(w2, httptest.NewRequest(http.MethodGet, "/ok", nil))
	if w2.Code != http.StatusTooManyRequests {
		t.Fatalf("double submit should be rejected, got %d", w2.Code)
	}
	// Sub-second remainder still reports at least one second.
	var body map[string]any
	_ = json.Unmarshal(w2.Body.Bytes(), &body)
	if secs, _ := body["retry_after_seconds"].(float64); secs < 1 {
		t.Fatalf("expected retry_after_seconds >= 1, got %v", body["retry_after_seconds"])
	}
}

func TestClassLimit_PerAccountIsolation(t *testing.T) {
	l := limiter.New(map[limiter.Class]limiter.Policy{
		limiter.ClassRead: {Window: time.Minute, Max: 1, Block: time.Minute},
	})
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Identity())
	r.Use(ClassLimit(l, limiter.ClassRead))
	r.GET("/ok", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	do := func(account string) int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ok", nil)
		req.Header.Set(HeaderAccountID, account)
		r.ServeHTTP(w, req)
		return w.Code
	}

	if do("alice") != http.StatusOK {
		t.Fatalf("alice's first request should pass")
	}
	if do("alice") != http.StatusTooManyRequests {
		t.Fatalf("alice's second request should be limited")
	}
	// A different account has its own budget.
	if do("bob") != http.StatusOK {
		t.Fatalf("bob should not share alice's budget")
	}
}

func TestClassLimit_ReplayBypass(t *testing.T) {
	l := limiter.New(map[limiter.Class]limiter.Policy{
		limiter.ClassPlay: {Window: time.Minute, Max: 1, Block: time.Minute},
	})
	r := newClassLimitRouter(l, limiter.ClassPlay, func(c *gin.Context) {
		c.Set("accountID", "p3")
		c.Set(ctxKeyRateBypass, true)
		c.Next()
	})

	// Well past Max=1, every request passes because of the bypass flag.
	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("replay %d should bypass the gate, got %d", i+1, w.Code)
		}
	}
}
