package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ephemeral-core/internal/auth"
	"ephemeral-core/internal/config"
	"ephemeral-core/internal/logging"
	rldomain "ephemeral-core/middleware/ratelimit/domain"
	rlinfra "ephemeral-core/middleware/ratelimit/infra"
	"ephemeral-core/notify"
	recapp "ephemeral-core/reconcile/application"
	recinfra "ephemeral-core/reconcile/infra"
	ticketinfra "ephemeral-core/ticket/infra"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
)

func main() {
	configPath := pflag.StringP("config", "c", os.Getenv("CONFIG_FILE"), "arquivo YAML de configuração")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(2)
	}
	lg, err := logging.New(logging.Options{Level: cfg.Log.Level, JSON: cfg.Log.JSON, SetDefault: true})
	if err != nil {
		fmt.Fprintf(os.Stderr, "log config error: %v\n", err)
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, lg); err != nil {
		lg.Error("coordinator stopped", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, lg *slog.Logger) error {
	d := deps{}

	if cfg.RateLimit.Enabled {
		lim := newLimiter(cfg.RateLimit)
		lim.StartJanitor(ctx)
		d.limiter = lim
	}

	if cfg.RateLimit.Stats.Enabled {
		rdb, err := dialRedis(ctx, cfg.RateLimit.Stats.RedisAddr, cfg.RateLimit.Stats.RedisPassword, cfg.RateLimit.Stats.RedisDB)
		if err != nil {
			return fmt.Errorf("redis stats: %w", err)
		}
		defer func() { _ = rdb.Close() }()

		rs := rlinfra.NewRedisStatsStore(
			rdb,
			rlinfra.WithStatsPrefix(cfg.RateLimit.Stats.Prefix),
			rlinfra.WithStatsTTL(cfg.RateLimit.Stats.TTL),
			rlinfra.WithStatsBucket(cfg.RateLimit.Stats.Bucket),
			rlinfra.WithStatsTrackKeys(cfg.RateLimit.Stats.TrackKeys),
		)
		d.stats, d.statsView = rs, rs
	} else {
		ms := rlinfra.NewMemoryStatsStore(rlinfra.WithTrackKeys(cfg.RateLimit.Stats.TrackKeys))
		d.stats, d.statsView = ms, ms
	}

	if cfg.Concurrency.Max > 0 {
		d.pool = rlinfra.NewChanPool(cfg.Concurrency.Max)
	}

	if cfg.Auth.JWTSecret != "" {
		v, err := auth.NewVerifier(cfg.Auth.JWTSecret, auth.WithIssuer(cfg.Auth.Issuer))
		if err != nil {
			return err
		}
		d.verifier = v
	} else {
		lg.Warn("JWT_SECRET not set; every request is anonymous and ticket issuance is disabled")
	}

	broker := ticketinfra.NewBroker(
		ticketinfra.WithTTL(cfg.Ticket.TTL()),
		ticketinfra.WithCleanupEvery(cfg.Ticket.CleanupEvery),
		ticketinfra.WithLogger(lg),
	)
	broker.StartJanitor(ctx)
	d.broker = broker

	d.hub = notify.NewHub(broker, notify.WithLogger(lg))
	defer d.hub.Close()

	var publisher notify.Publisher = d.hub
	if cfg.Notify.RedisAddr != "" {
		rdb, err := dialRedis(ctx, cfg.Notify.RedisAddr, "", 0)
		if err != nil {
			return fmt.Errorf("redis notify: %w", err)
		}
		defer func() { _ = rdb.Close() }()

		relay := notify.NewRedisRelay(rdb, cfg.Notify.Channel, d.hub, lg)
		go func() {
			if err := relay.Run(ctx); err != nil {
				lg.Error("notify relay stopped", "err", err)
			}
		}()
		publisher = relay
	}

	store, closeStore, err := recinfra.Open(ctx, recinfra.StoreConfig{
		Driver: cfg.Store.Driver,
		Path:   cfg.Store.Path,
		DSN:    cfg.Store.DSN,
	})
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer closeStore()

	d.store = store
	d.reconciler = recapp.New(
		recinfra.NewHTTPSource(cfg.Reconcile.SourceURL, cfg.Reconcile.Timeout),
		store,
		recapp.WithNotifier(publisher),
		recapp.WithRefuseEmpty(cfg.Reconcile.RefuseEmpty),
		recapp.WithLogger(lg),
	)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           newRouter(cfg, lg, d),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// sem WriteTimeout: conexões websocket ficam abertas
		IdleTimeout: 90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	lg.Info("coordinator listening", "addr", cfg.ListenAddr)
	lg.Info("rate limit",
		"enabled", cfg.RateLimit.Enabled,
		"algorithm", cfg.RateLimit.Algorithm,
		"maxRequests", cfg.RateLimit.MaxRequests,
		"windowSeconds", cfg.RateLimit.WindowSeconds,
		"trustXFF", cfg.RateLimit.TrustXForwardedFor,
		"redisStats", cfg.RateLimit.Stats.Enabled,
	)
	lg.Info("tickets", "ttl", cfg.Ticket.TTL(), "cleanupEvery", cfg.Ticket.CleanupEvery)
	lg.Info("regionais", "source", cfg.Reconcile.SourceURL, "store", cfg.Store.Driver, "notifyRedis", cfg.Notify.RedisAddr != "")
	lg.Info("concurrency", "max", cfg.Concurrency.Max, "acquireTimeout", cfg.Concurrency.Timeout)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

type janitorLimiter interface {
	rldomain.Limiter
	StartJanitor(ctx rlinfra.DoneContext)
}

func newLimiter(c config.RateLimitConfig) janitorLimiter {
	if c.Algorithm == "bucket" {
		return rlinfra.NewBucketStore(c.MaxRequests, c.Window(), rlinfra.WithCleanupEvery(c.CleanupEvery))
	}
	return rlinfra.NewWindowStore(c.MaxRequests, c.Window(), rlinfra.WithWindowCleanupEvery(c.CleanupEvery))
}

func dialRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}
