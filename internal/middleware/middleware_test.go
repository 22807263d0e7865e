package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(LocaleFromContext(r.Context())))
	})
}

func TestLocaleMiddleware(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Accept-Language", "ko-KR,ko;q=0.9,en;q=0.5")
	rec := httptest.NewRecorder()
	LocaleMiddleware(okHandler()).ServeHTTP(rec, req)
	if rec.Body.String() != "ko" || rec.Header().Get("Content-Language") != "ko" {
		t.Fatalf("locale = %q", rec.Body.String())
	}
}

func TestAuthenticatorRequire(t *testing.T) {
	auth := NewAuthenticator(strings.Repeat("k", 32))
	var who string
	h := auth.Require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		who, _ = ClinicianFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/submissions", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing token status = %d", rec.Code)
	}

	tok, err := auth.SignToken("doc@example.com", time.Hour)
	if err != nil {
		t.Fatalf("SignToken error: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/api/submissions", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || who != "doc@example.com" {
		t.Fatalf("valid token status = %d who = %q", rec.Code, who)
	}

	other, _ := NewAuthenticator(strings.Repeat("x", 32)).SignToken("doc@example.com", time.Hour)
	req.Header.Set("Authorization", "Bearer "+other)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("foreign token status = %d", rec.Code)
	}

	expired, _ := auth.SignToken("doc@example.com", -time.Minute)
	req.Header.Set("Authorization", "Bearer "+expired)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expired token status = %d", rec.Code)
	}

	if _, err := NewAuthenticator("").SignToken("x", time.Hour); err == nil {
		t.Fatalf("expected error without secret")
	}
}

func TestRateLimiter(t *testing.T) {
	l := NewRateLimiter(1, 2)
	now := time.Date(2025, 11, 19, 9, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	limited := 0
	l.OnLimit = func() { limited++ }
	h := l.Middleware(okHandler())

	codes := []int{}
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/sessions/x/chat", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	if codes[0] != 200 || codes[1] != 200 || codes[2] != http.StatusTooManyRequests || limited != 1 {
		t.Fatalf("codes = %v limited = %d", codes, limited)
	}
	if !l.Allow("10.0.0.2") {
		t.Fatalf("other client should have its own bucket")
	}

	now = now.Add(time.Hour)
	if n := l.Prune(); n != 2 {
		t.Fatalf("pruned %d, want 2", n)
	}
}

func TestCORS(t *testing.T) {
	h := CORS([]string{"https://clinic.example"})(okHandler())
	req := httptest.NewRequest(http.MethodOptions, "/api/pack", nil)
	req.Header.Set("Origin", "https://clinic.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent || rec.Header().Get("Access-Control-Allow-Origin") != "https://clinic.example" {
		t.Fatalf("preflight = %d %v", rec.Code, rec.Header())
	}
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("unexpected origin allowed")
	}
}

func TestRecovery(t *testing.T) {
	h := Recovery(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
}
