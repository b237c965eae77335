package logging

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":        slog.LevelInfo,
		"DEBUG":   slog.LevelDebug,
		" warn ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"err":     slog.LevelError,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil {
			t.Fatalf("ParseLevel(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseLevel(%q) = %s, want %s", in, got, want)
		}
	}
	if _, err := ParseLevel("verbose"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestNew_JSONWritesToWriter(t *testing.T) {
	var buf bytes.Buffer
	lg, err := New(Options{Level: "info", JSON: true, Writer: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	lg.Info("hello", "k", "v")
	if !strings.Contains(buf.String(), `"msg":"hello"`) {
		t.Fatalf("expected json output, got %q", buf.String())
	}
}

func TestShortID(t *testing.T) {
	if got := ShortID("abc"); got != "abc" {
		t.Fatalf("expected short id untouched, got %q", got)
	}
	if got := ShortID("0123456789abcdef"); got != "01234567..." {
		t.Fatalf("expected truncated id, got %q", got)
	}
}

func TestRequestLog_RecordsStatus(t *testing.T) {
	var buf bytes.Buffer
	lg, _ := New(Options{Level: "info", Writer: &buf})

	h := RequestLog(lg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	r := httptest.NewRequest(http.MethodGet, "http://example/x", nil)
	h.ServeHTTP(httptest.NewRecorder(), r)

	out := buf.String()
	if !strings.Contains(out, "status=418") || !strings.Contains(out, "level=WARN") {
		t.Fatalf("unexpected log line: %q", out)
	}
}
