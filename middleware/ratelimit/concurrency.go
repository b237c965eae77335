package ratelimit

import (
	"log/slog"
	"net/http"
	"time"

	"ephemeral-core/internal/logging"
	"ephemeral-core/internal/respond"
	"ephemeral-core/middleware/ratelimit/application"
	"ephemeral-core/middleware/ratelimit/domain"
	"ephemeral-core/middleware/ratelimit/infra"
)

// ConcurrencyOptions limita requests simultâneos; Max <= 0 e Pool nil desligam.
type ConcurrencyOptions struct {
	Max int
	// Pool permite compartilhar o semáforo (ex: /healthz lendo InUse).
	// Se nil, um ChanPool de Max vagas é criado.
	Pool           domain.SlotPool
	RejectStatus   int
	AcquireTimeout time.Duration
	Logger         *slog.Logger
}

func ConcurrencyMiddleware(opts ConcurrencyOptions) func(next http.Handler) http.Handler {
	if opts.Pool == nil {
		if opts.Max <= 0 {
			return func(next http.Handler) http.Handler { return next }
		}
		opts.Pool = infra.NewChanPool(opts.Max)
	}
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusServiceUnavailable
	}
	lg := logging.Or(opts.Logger)

	svc := application.ConcurrencyService{
		Pool:           opts.Pool,
		AcquireTimeout: opts.AcquireTimeout,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			release, ok := svc.Acquire(r.Context())
			if !ok {
				lg.Warn("no concurrency slot", "path", r.URL.Path, "inUse", opts.Pool.InUse(), "max", opts.Pool.Cap())
				w.Header().Set("Retry-After", "1")
				respond.Error(w, opts.RejectStatus, "servidor ocupado, tente novamente em instantes")
				return
			}
			defer release()

			next.ServeHTTP(w, r)
		})
	}
}
