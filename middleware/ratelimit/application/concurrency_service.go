package application

import (
	"context"
	"time"

	"ephemeral-core/middleware/ratelimit/domain"
)

// ConcurrencyService decide se um request ganha vaga no pool.
type ConcurrencyService struct {
	Pool domain.SlotPool
	// AcquireTimeout <= 0 espera enquanto o ctx do request viver.
	AcquireTimeout time.Duration
}

// Acquire devolve (release, ok); ok=false significa que nenhuma vaga foi tomada
// e não há nada para liberar.
func (s ConcurrencyService) Acquire(ctx context.Context) (func(), bool) {
	if s.Pool == nil {
		return func() {}, true
	}
	if s.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.AcquireTimeout)
		defer cancel()
	}
	return s.Pool.Acquire(ctx)
}
