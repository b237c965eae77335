package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"ephemeral-core/internal/auth"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("LOG_LEVEL", "error")

	var out, errOut bytes.Buffer
	root := newRootCommand()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestTokenCommand_IssuesVerifiableToken(t *testing.T) {
	const secret = "0123456789abcdef0123456789abcdef"
	t.Setenv("JWT_SECRET", secret)
	t.Setenv("JWT_ISSUER", "coordinator")

	out, err := execute(t, "token", "--sub", "ana", "--roles", "ADMIN, USER,")
	if err != nil {
		t.Fatalf("token: %v", err)
	}

	v, _ := auth.NewVerifier(secret, auth.WithIssuer("coordinator"))
	p, err := v.Verify(strings.TrimSpace(out))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if p.Name != "ana" || len(p.Roles) != 2 || !p.HasRole("ADMIN") || !p.HasRole("USER") {
		t.Fatalf("unexpected principal %+v", p)
	}
}

func TestTokenCommand_RequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	if _, err := execute(t, "token"); err == nil {
		t.Fatalf("expected error without JWT_SECRET")
	}
}

func TestGenerateSecretCommand(t *testing.T) {
	out, err := execute(t, "generate-jwt-secret")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	secret, ok := strings.CutPrefix(strings.TrimSpace(out), "JWT_SECRET=")
	if !ok || len(secret) != 2*secretByteLength {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestGenerateSecretCommand_ReadFailure(t *testing.T) {
	orig := randomRead
	randomRead = func([]byte) (int, error) { return 0, errors.New("no entropy") }
	defer func() { randomRead = orig }()

	if _, err := execute(t, "generate-jwt-secret"); err == nil {
		t.Fatalf("expected error when random source fails")
	}
}

func TestRunCommand_PrintsResult(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/regionais" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":1,"nome":"Cuiaba"},{"id":2,"nome":"Sinop"}]`))
	}))
	defer upstream.Close()

	t.Setenv("REGIONAIS_API_URL", upstream.URL)
	t.Setenv("STORE_DRIVER", "memory")

	out, err := execute(t, "run")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if got["totalProcessadas"] != float64(2) || got["inseridas"] != float64(2) || got["ativas"] != float64(2) {
		t.Fatalf("unexpected result %v", got)
	}
}

func TestRunCommand_UpstreamFailure(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer upstream.Close()

	t.Setenv("REGIONAIS_API_URL", upstream.URL)
	t.Setenv("STORE_DRIVER", "memory")

	_, err := execute(t, "run")
	if err == nil || !strings.Contains(err.Error(), "upstream unavailable") {
		t.Fatalf("expected upstream error, got %v", err)
	}
}
