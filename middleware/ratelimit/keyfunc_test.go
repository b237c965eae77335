package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"ephemeral-core/internal/auth"
)

func TestDefaultKeyFunc_PrefersAuthenticatedPrincipal(t *testing.T) {
	fn := DefaultKeyFunc(true)

	r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
	r.RemoteAddr = "10.0.0.1:1234"
	r.Header.Set("X-Forwarded-For", "1.2.3.4")
	r = r.WithContext(auth.WithPrincipal(r.Context(), auth.Principal{Name: "alice"}))

	got := fn(r)
	if got.Key != "alice" || got.Kind != KindUser {
		t.Fatalf("expected user key alice, got %+v", got)
	}
}

func TestDefaultKeyFunc_TrustXForwardedForUsesFirstIP(t *testing.T) {
	fn := DefaultKeyFunc(true)

	r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
	r.RemoteAddr = "10.0.0.9:5555"
	r.Header.Set("X-Forwarded-For", "1.2.3.4, 5.6.7.8")

	got := fn(r)
	if got.Key != "ip:1.2.3.4" || got.Kind != KindIP {
		t.Fatalf("expected first XFF ip, got %+v", got)
	}
}

func TestDefaultKeyFunc_FallsBackToXRealIP(t *testing.T) {
	fn := DefaultKeyFunc(true)

	r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
	r.RemoteAddr = "10.0.0.9:5555"
	r.Header.Set("X-Forwarded-For", "garbage")
	r.Header.Set("X-Real-IP", " 8.8.8.8 ")

	if got := fn(r); got.Key != "ip:8.8.8.8" {
		t.Fatalf("expected X-Real-IP, got %+v", got)
	}
}

func TestDefaultKeyFunc_IgnoresProxyHeadersWhenUntrusted(t *testing.T) {
	fn := DefaultKeyFunc(false)

	r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
	r.RemoteAddr = "10.0.0.9:5555"
	r.Header.Set("X-Forwarded-For", "1.2.3.4")
	r.Header.Set("X-Real-IP", "8.8.8.8")

	if got := fn(r); got.Key != "ip:10.0.0.9" {
		t.Fatalf("expected remote host, got %+v", got)
	}
}

func TestDefaultKeyFunc_UnknownWhenNothingUsable(t *testing.T) {
	fn := DefaultKeyFunc(false)

	r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
	r.RemoteAddr = ""

	if got := fn(r); got.Key != "ip:unknown" || got.Kind != KindIP {
		t.Fatalf("expected ip:unknown, got %+v", got)
	}
}
