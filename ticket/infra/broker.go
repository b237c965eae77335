package infra

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"ephemeral-core/internal/clock"
	"ephemeral-core/internal/logging"
	"ephemeral-core/ticket/domain"

	"github.com/google/uuid"
)

type entry struct {
	ticket domain.Ticket
	state  atomic.Int32 // domain.State
}

// Broker guarda os tickets ativos num sync.Map indexado pelo id.
//
// Redeem tira a entrada do mapa (LoadAndDelete) e só então troca o estado
// com CAS: dois redeems concorrentes do mesmo id nunca vencem juntos.
type Broker struct {
	entries sync.Map // string -> *entry

	ttl          time.Duration
	cleanupEvery time.Duration
	clock        clock.Clock
	newID        func() string
	log          *slog.Logger

	active   atomic.Int64
	issued   atomic.Int64
	redeemed atomic.Int64
	expired  atomic.Int64
	rejected atomic.Int64
}

var _ domain.Broker = (*Broker)(nil)

type Option func(*Broker)

func WithTTL(d time.Duration) Option {
	return func(b *Broker) { b.ttl = d }
}

func WithCleanupEvery(d time.Duration) Option {
	return func(b *Broker) { b.cleanupEvery = d }
}

func WithClock(c clock.Clock) Option {
	return func(b *Broker) { b.clock = clock.Or(c) }
}

func WithLogger(lg *slog.Logger) Option {
	return func(b *Broker) { b.log = logging.Or(lg) }
}

// WithIDGenerator troca o gerador de ids (uuid v4 por padrão).
func WithIDGenerator(fn func() string) Option {
	return func(b *Broker) {
		if fn != nil {
			b.newID = fn
		}
	}
}

func NewBroker(opts ...Option) *Broker {
	b := &Broker{
		ttl:          30 * time.Second,
		cleanupEvery: 30 * time.Second,
		clock:        clock.System{},
		newID:        uuid.NewString,
		log:          slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Broker) TTL() time.Duration { return b.ttl }

// Issue sempre funciona: gera o id, grava como active e devolve uma cópia.
func (b *Broker) Issue(identity string, capabilities []string) domain.Ticket {
	now := b.clock.Now()
	t := domain.Ticket{
		ID:           b.newID(),
		Identity:     identity,
		Capabilities: slices.Clone(capabilities),
		CreatedAt:    now,
		ExpiresAt:    now.Add(b.ttl),
	}

	b.entries.Store(t.ID, &entry{ticket: t})
	b.issued.Add(1)
	b.active.Add(1)

	b.log.Debug("ticket issued", "identity", identity, "ticket", logging.ShortID(t.ID), "ttl", b.ttl)
	return t
}

// Redeem consome o ticket. Qualquer falha devolve (Ticket{}, false) e, se o
// ticket era conhecido, ele some do mapa do mesmo jeito.
func (b *Broker) Redeem(id string) (domain.Ticket, bool) {
	if strings.TrimSpace(id) == "" {
		b.rejected.Add(1)
		return domain.Ticket{}, false
	}

	v, ok := b.entries.LoadAndDelete(id)
	if !ok {
		b.rejected.Add(1)
		b.log.Debug("ticket unknown", "ticket", logging.ShortID(id))
		return domain.Ticket{}, false
	}
	b.active.Add(-1)
	e := v.(*entry)

	if e.ticket.ExpiredAt(b.clock.Now()) {
		e.state.CompareAndSwap(int32(domain.StateActive), int32(domain.StateExpired))
		b.rejected.Add(1)
		b.log.Debug("ticket expired", "ticket", logging.ShortID(id), "identity", e.ticket.Identity)
		return domain.Ticket{}, false
	}
	if !e.state.CompareAndSwap(int32(domain.StateActive), int32(domain.StateConsumed)) {
		b.rejected.Add(1)
		return domain.Ticket{}, false
	}

	b.redeemed.Add(1)
	b.log.Debug("ticket redeemed", "ticket", logging.ShortID(id), "identity", e.ticket.Identity)
	return e.ticket, true
}

// Peek é somente leitura: não consome nem remove.
func (b *Broker) Peek(id string) bool {
	v, ok := b.entries.Load(id)
	if !ok {
		return false
	}
	e := v.(*entry)
	return domain.State(e.state.Load()) == domain.StateActive && !e.ticket.ExpiredAt(b.clock.Now())
}

// Sweep remove tickets com expiresAt < now, usados ou não.
// Uma entrada por vez; Redeem concorrente continua funcionando durante a varredura.
func (b *Broker) Sweep() int {
	now := b.clock.Now()
	removed := 0
	b.entries.Range(func(k, v any) bool {
		e := v.(*entry)
		if !e.ticket.ExpiresAt.Before(now) {
			return true
		}
		if b.entries.CompareAndDelete(k, e) {
			e.state.CompareAndSwap(int32(domain.StateActive), int32(domain.StateExpired))
			b.active.Add(-1)
			b.expired.Add(1)
			removed++
		}
		return true
	})
	return removed
}

func (b *Broker) Stats() domain.Stats {
	return domain.Stats{
		Active:   int(b.active.Load()),
		Issued:   b.issued.Load(),
		Redeemed: b.redeemed.Load(),
		Expired:  b.expired.Load(),
		Rejected: b.rejected.Load(),
		TTL:      b.ttl,
	}
}

// StartJanitor roda Sweep a cada cleanupEvery até o ctx encerrar.
func (b *Broker) StartJanitor(ctx context.Context) {
	if b.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(b.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if n := b.Sweep(); n > 0 {
					b.log.Debug("expired tickets swept", "removed", n, "active", b.active.Load())
				}
			}
		}
	}()
}
