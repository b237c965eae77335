package infra

import (
	"context"

	"ephemeral-core/middleware/ratelimit/domain"
)

// ChanPool é um semáforo de capacidade fixa sobre um channel bufferizado.
type ChanPool struct {
	sem chan struct{}
}

var _ domain.SlotPool = (*ChanPool)(nil)

// NewChanPool cria o semáforo; n < 1 vira 1.
func NewChanPool(n int) *ChanPool {
	return &ChanPool{sem: make(chan struct{}, max(1, n))}
}

func (p *ChanPool) Acquire(ctx context.Context) (func(), bool) {
	// ctx já cancelado perde, mesmo com vaga livre
	if ctx.Err() != nil {
		return nil, false
	}
	select {
	case p.sem <- struct{}{}:
		return func() { <-p.sem }, true
	case <-ctx.Done():
		return nil, false
	}
}

func (p *ChanPool) InUse() int { return len(p.sem) }
func (p *ChanPool) Cap() int   { return cap(p.sem) }
