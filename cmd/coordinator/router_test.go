package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ephemeral-core/internal/auth"
	"ephemeral-core/internal/config"
	"ephemeral-core/internal/logging"
	rlinfra "ephemeral-core/middleware/ratelimit/infra"
	"ephemeral-core/notify"
	"ephemeral-core/reconcile/domain"
	recinfra "ephemeral-core/reconcile/infra"
	ticketinfra "ephemeral-core/ticket/infra"

	"github.com/gorilla/websocket"
)

type nopRunner struct{}

func (nopRunner) Reconcile(context.Context) (domain.Result, error) { return domain.Result{}, nil }

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestServer(t *testing.T, maxRequests int) (*httptest.Server, *auth.Verifier) {
	t.Helper()
	lg := logging.Discard()

	v, err := auth.NewVerifier(testSecret)
	if err != nil {
		t.Fatalf("verifier: %v", err)
	}
	broker := ticketinfra.NewBroker(ticketinfra.WithLogger(lg))
	hub := notify.NewHub(broker, notify.WithLogger(lg), notify.WithPingInterval(0))
	mem := rlinfra.NewMemoryStatsStore()

	cfg := config.Default()
	d := deps{
		limiter:    rlinfra.NewWindowStore(maxRequests, time.Minute),
		stats:      mem,
		statsView:  mem,
		pool:       rlinfra.NewChanPool(8),
		verifier:   v,
		broker:     broker,
		hub:        hub,
		store:      recinfra.NewMemoryStore(domain.LocalRecord{ID: 1, Name: "Cuiaba", Active: true}),
		reconciler: nopRunner{},
	}

	srv := httptest.NewServer(newRouter(cfg, lg, d))
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return srv, v
}

func bearer(t *testing.T, v *auth.Verifier, p auth.Principal) string {
	t.Helper()
	tok, err := v.Issue(p, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return "Bearer " + tok
}

func get(t *testing.T, url, authz string) *http.Response {
	t.Helper()
	req, _ := http.NewRequest(http.MethodGet, url, nil)
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	return resp
}

func TestRouter_HealthzIsNotRateLimited(t *testing.T) {
	srv, _ := newTestServer(t, 1)

	for i := 0; i < 3; i++ {
		resp := get(t, srv.URL+"/healthz", "")
		var body map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("call %d: expected 200, got %d", i+1, resp.StatusCode)
		}
		if body["status"] != "ok" || body["maxInFlight"] != float64(8) || body["inFlight"] != float64(0) {
			t.Fatalf("unexpected health body %v", body)
		}
	}
}

func TestRouter_AnonymousBudgetThenUserBudget(t *testing.T) {
	srv, v := newTestServer(t, 2)

	for i := 0; i < 2; i++ {
		resp := get(t, srv.URL+"/api/v1/regionais", "")
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("call %d: expected 200, got %d", i+1, resp.StatusCode)
		}
	}

	resp := get(t, srv.URL+"/api/v1/regionais", "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.StatusCode)
	}
	if resp.Header.Get("X-RateLimit-Type") != "ip" || resp.Header.Get("Retry-After") == "" {
		t.Fatalf("unexpected throttle headers %v", resp.Header)
	}

	// autenticado tem janela própria
	resp = get(t, srv.URL+"/api/v1/regionais", bearer(t, v, auth.Principal{Name: "ana"}))
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected authenticated caller to have its own budget, got %d", resp.StatusCode)
	}
}

func TestRouter_TicketIssueThenWebsocket(t *testing.T) {
	srv, v := newTestServer(t, 10)

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/ws/ticket", nil)
	req.Header.Set("Authorization", bearer(t, v, auth.Principal{Name: "ana", Roles: []string{"USER"}}))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body struct {
		Ticket       string `json:"ticket"`
		WebsocketURL string `json:"websocketUrl"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}

	conn, _, err := websocket.DefaultDialer.Dial(body.WebsocketURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", body.WebsocketURL, err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var m notify.Message
	if err := conn.ReadJSON(&m); err != nil {
		t.Fatalf("read: %v", err)
	}
	if m.Type != "CONNECTED" {
		t.Fatalf("expected CONNECTED, got %+v", m)
	}

	// segundo uso do mesmo ticket
	_, wsResp, err := websocket.DefaultDialer.Dial(body.WebsocketURL, nil)
	if err == nil {
		t.Fatalf("expected reused ticket to be rejected")
	}
	if wsResp == nil || wsResp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 on reuse, got %+v", wsResp)
	}
}

func TestRouter_TicketRequiresAuthentication(t *testing.T) {
	srv, _ := newTestServer(t, 10)

	resp, err := http.Post(srv.URL+"/api/v1/ws/ticket", "application/json", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestRouter_AdminRoutes(t *testing.T) {
	srv, v := newTestServer(t, 10)

	user := bearer(t, v, auth.Principal{Name: "ana", Roles: []string{"USER"}})
	admin := bearer(t, v, auth.Principal{Name: "root", Roles: []string{"ADMIN"}})

	for _, path := range []string{"/api/v1/ws/stats", "/api/v1/ratelimit/stats"} {
		resp := get(t, srv.URL+path, user)
		resp.Body.Close()
		if resp.StatusCode != http.StatusForbidden {
			t.Fatalf("%s: expected 403 for non-admin, got %d", path, resp.StatusCode)
		}

		resp = get(t, srv.URL+path, admin)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s: expected 200 for admin, got %d", path, resp.StatusCode)
		}
	}
}
