package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef-test-secret"

func TestVerifier_IssueThenVerify(t *testing.T) {
	v, err := NewVerifier(testSecret, WithIssuer("coordinator"))
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	tok, err := v.Issue(Principal{Name: "admin", Roles: []string{"ADMIN", "USER"}}, time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	p, err := v.Verify(tok)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if p.Name != "admin" || !p.HasRole("admin") || !p.HasRole("USER") {
		t.Fatalf("unexpected principal: %+v", p)
	}
}

func TestVerifier_RejectsExpiredAndForeignTokens(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	issuer, _ := NewVerifier(testSecret, WithTimeFunc(func() time.Time { return past }))
	expired, _ := issuer.Issue(Principal{Name: "u"}, time.Minute)

	v, _ := NewVerifier(testSecret)
	if _, err := v.Verify(expired); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}

	other, _ := NewVerifier("another-secret-with-enough-len")
	foreign, _ := other.Issue(Principal{Name: "u"}, time.Minute)
	if _, err := v.Verify(foreign); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for foreign signature, got %v", err)
	}

	if _, err := v.Verify(""); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected ErrMissingToken, got %v", err)
	}
}

func TestNewVerifier_RejectsWeakSecret(t *testing.T) {
	if _, err := NewVerifier("short"); err == nil {
		t.Fatalf("expected weak secret error")
	}
}

func TestMiddleware_AttachesPrincipalAndGuardsRoles(t *testing.T) {
	v, _ := NewVerifier(testSecret)
	userTok, _ := v.Issue(Principal{Name: "joao", Roles: []string{"USER"}}, time.Minute)
	adminTok, _ := v.Issue(Principal{Name: "admin", Roles: []string{"ADMIN"}}, time.Minute)

	var seen string
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, _ := FromContext(r.Context())
		seen = p.Name
		w.WriteHeader(http.StatusOK)
	})
	h := Middleware(v)(RequireRoles("ADMIN")(final))

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"anonymous", "", http.StatusUnauthorized},
		{"garbage", "Bearer nope", http.StatusUnauthorized},
		{"user", "Bearer " + userTok, http.StatusForbidden},
		{"admin", "Bearer " + adminTok, http.StatusOK},
	}
	for _, tc := range cases {
		r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
		if tc.header != "" {
			r.Header.Set("Authorization", tc.header)
		}
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		if w.Code != tc.want {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.want, w.Code)
		}
	}
	if seen != "admin" {
		t.Fatalf("expected admin principal in handler, got %q", seen)
	}
}
