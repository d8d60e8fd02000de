package security

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"vigia_backend/internal/util"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(h gin.HandlerFunc, req *http.Request) (*httptest.ResponseRecorder, *gin.Context) {
	var seen *gin.Context
	r := gin.New()
	r.Use(h)
	r.Any("/ping", func(c *gin.Context) {
		seen = c
		c.Status(http.StatusOK)
	})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w, seen
}

func TestRequestIDAssignsAndEchoes(t *testing.T) {
	w, c := serve(RequestID(), httptest.NewRequest(http.MethodGet, "/ping", nil))
	id := w.Header().Get(util.RequestIDHeader)
	if id == "" {
		t.Fatalf("expected a generated request id")
	}
	if c.GetString(util.RequestIDKey) != id {
		t.Fatalf("context id %q does not match header %q", c.GetString(util.RequestIDKey), id)
	}

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(util.RequestIDHeader, "abc-123")
	w, _ = serve(RequestID(), req)
	if got := w.Header().Get(util.RequestIDHeader); got != "abc-123" {
		t.Fatalf("caller id not reused, got %q", got)
	}
}

func TestCORS(t *testing.T) {
	h := CORS([]string{"http://localhost:5173"})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	w, _ := serve(h, req)
	if w.Header().Get("Access-Control-Allow-Origin") != "http://localhost:5173" {
		t.Fatalf("allowed origin not echoed: %v", w.Header())
	}

	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "http://evil.example")
	w, _ = serve(h, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unknown origin must not be allowed, got %q", got)
	}

	req = httptest.NewRequest(http.MethodOptions, "/ping", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	w, _ = serve(h, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("preflight should answer 204, got %d", w.Code)
	}
}

func TestCORSWildcard(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "http://anywhere.example")
	w, _ := serve(CORS([]string{"*"}), req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("expected *, got %q", got)
	}
	if w.Header().Get("Access-Control-Allow-Credentials") != "" {
		t.Fatalf("wildcard must not allow credentials")
	}
}

func TestRateLimiterRejectsBurst(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := RateLimiter(ctx, 2, time.Hour)
	r := gin.New()
	r.Use(h)
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
		codes = append(codes, w.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("unexpected status sequence %v", codes)
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	h := RateLimiter(context.Background(), 0, time.Minute)
	for i := 0; i < 5; i++ {
		w, _ := serve(h, httptest.NewRequest(http.MethodGet, "/ping", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("disabled limiter must pass every request, got %d", w.Code)
		}
	}
}
