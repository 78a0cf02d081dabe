package httpx

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWithCORS_PreflightShortCircuits(t *testing.T) {
	mw := WithCORS(CORSPolicy{
		AllowedOrigins: []string{"https://app.example.com"},
		AllowedMethods: []string{"GET", "POST"},
	})
	called := false
	h := mw(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))

	req := httptest.NewRequest(http.MethodOptions, "/appointments", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if called {
		t.Fatal("preflight must not reach the handler")
	}
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Fatalf("Allow-Origin = %q", got)
	}
}

func TestWithCORS_UnlistedOriginGetsNoHeaders(t *testing.T) {
	mw := WithCORS(CORSPolicy{AllowedOrigins: []string{"https://app.example.com"}})
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/appointments", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unlisted origin must get no Allow-Origin, got %q", got)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("request must still pass through, got %d", rec.Code)
	}
}

func TestResolveOrigin_WildcardWithCredentialsEchoes(t *testing.T) {
	got, ok := resolveOrigin("https://app.example.com", []string{"*"}, true)
	if !ok || got != "https://app.example.com" {
		t.Fatalf("resolveOrigin = %q, %v", got, ok)
	}
	got, ok = resolveOrigin("https://app.example.com", []string{"*"}, false)
	if !ok || got != "*" {
		t.Fatalf("resolveOrigin = %q, %v", got, ok)
	}
}
