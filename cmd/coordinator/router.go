package main

import (
	"log/slog"
	"net/http"

	"ephemeral-core/internal/auth"
	"ephemeral-core/internal/config"
	"ephemeral-core/internal/logging"
	"ephemeral-core/internal/respond"
	"ephemeral-core/middleware/ratelimit"
	rldomain "ephemeral-core/middleware/ratelimit/domain"
	"ephemeral-core/notify"
	"ephemeral-core/reconcile"
	recdomain "ephemeral-core/reconcile/domain"
	"ephemeral-core/ticket"
	ticketdomain "ephemeral-core/ticket/domain"

	"github.com/go-chi/chi/v5"
)

const wsPath = "/ws/regionais"

// deps são as instâncias montadas em run; os testes montam as suas.
type deps struct {
	limiter    rldomain.Limiter
	stats      rldomain.StatsStore
	statsView  rldomain.StatsReader
	pool       rldomain.SlotPool
	verifier   *auth.Verifier
	broker     ticketdomain.Broker
	hub        *notify.Hub
	store      recdomain.Store
	reconciler reconcile.Runner
}

func newRouter(cfg config.Config, lg *slog.Logger, d deps) http.Handler {
	r := chi.NewRouter()
	r.Use(logging.RequestLog(lg))
	r.Use(auth.Middleware(d.verifier))
	r.Use(ratelimit.Middleware(ratelimit.Options{
		Limiter:            d.limiter,
		Stats:              d.stats,
		TrustXForwardedFor: cfg.RateLimit.TrustXForwardedFor,
		Skip:               ratelimit.SkipPrefixes("/healthz", "/ws/"),
		Logger:             lg,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		body := map[string]any{"status": "ok"}
		if d.pool != nil {
			body["inFlight"] = d.pool.InUse()
			body["maxInFlight"] = d.pool.Cap()
		}
		respond.JSON(w, http.StatusOK, body)
	})
	if d.hub != nil {
		r.Get(wsPath, d.hub.ServeWS)
	}

	tickets := &ticket.Handler{Broker: d.broker, WSPath: wsPath, Logger: lg}
	if d.hub != nil {
		tickets.Conns = d.hub
	}
	regionais := &reconcile.Handler{Reconciler: d.reconciler, Store: d.store, Logger: lg}

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(ratelimit.ConcurrencyMiddleware(ratelimit.ConcurrencyOptions{
			Max:            cfg.Concurrency.Max,
			Pool:           d.pool,
			AcquireTimeout: cfg.Concurrency.Timeout,
			Logger:         lg,
		}))

		api.With(auth.RequireRoles()).Post("/ws/ticket", tickets.Issue)
		api.With(auth.RequireRoles("ADMIN")).Get("/ws/stats", tickets.Stats)
		if d.statsView != nil {
			api.With(auth.RequireRoles("ADMIN")).Get("/ratelimit/stats", func(w http.ResponseWriter, r *http.Request) {
				snap, err := d.statsView.Snapshot(r.Context())
				if err != nil {
					lg.Error("ratelimit stats read failed", "err", err)
					respond.Error(w, http.StatusServiceUnavailable, "estatisticas indisponiveis")
					return
				}
				respond.JSON(w, http.StatusOK, snap)
			})
		}
		api.Mount("/regionais", regionais.Routes())
	})
	return r
}
