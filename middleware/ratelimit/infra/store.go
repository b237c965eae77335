package infra

import (
	"sync"
	"sync/atomic"
	"time"

	"ephemeral-core/internal/clock"
	"ephemeral-core/middleware/ratelimit/domain"

	"golang.org/x/time/rate"
)

// Store é a alternativa token-bucket (x/time/rate) ao WindowStore,
// selecionada com rateLimit.algorithm=bucket.
//
// Com os mesmos knobs (maxRequests por windowSeconds) vira burst=maxRequests
// e reposição contínua de maxRequests/windowSeconds tokens por segundo.
type Store struct {
	entries      sync.Map // string -> *storeEntry
	rps          rate.Limit
	burst        int
	window       time.Duration // só quando criado via NewBucketStore
	idleTTL      time.Duration
	cleanupEvery time.Duration
	clock        clock.Clock
}

type storeEntry struct {
	lim      *rate.Limiter
	lastSeen atomic.Int64 // unix nano
}

type StoreOption func(*Store)

func WithIdleTTL(d time.Duration) StoreOption {
	return func(s *Store) { s.idleTTL = d }
}

func WithCleanupEvery(d time.Duration) StoreOption {
	return func(s *Store) { s.cleanupEvery = d }
}

func WithClock(c clock.Clock) StoreOption {
	return func(s *Store) { s.clock = clock.Or(c) }
}

func NewStore(rps float64, burst int, opts ...StoreOption) *Store {
	s := &Store{
		rps:          rate.Limit(rps),
		burst:        burst,
		idleTTL:      15 * time.Minute,
		cleanupEvery: 2 * time.Minute,
		clock:        clock.System{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewBucketStore traduz "max por janela" para token-bucket.
func NewBucketStore(max int, window time.Duration, opts ...StoreOption) *Store {
	rps := float64(max) / window.Seconds()
	opts = append([]StoreOption{WithIdleTTL(2 * window)}, opts...)
	s := NewStore(rps, max, opts...)
	s.window = window
	return s
}

func (s *Store) Limit() int { return s.burst }

// Window é o tempo para um bucket vazio encher de novo.
func (s *Store) Window() time.Duration {
	if s.window > 0 {
		return s.window
	}
	if s.rps <= 0 {
		return 0
	}
	return time.Duration(float64(s.burst) / float64(s.rps) * float64(time.Second))
}

func (s *Store) CleanupEvery() time.Duration { return s.cleanupEvery }

// Get devolve (criando se preciso) o limiter da chave.
func (s *Store) Get(key domain.Key) *rate.Limiter {
	now := s.clock.Now()
	k := string(key)

	v, ok := s.entries.Load(k)
	if !ok {
		v, _ = s.entries.LoadOrStore(k, &storeEntry{lim: rate.NewLimiter(s.rps, s.burst)})
	}
	ent := v.(*storeEntry)
	ent.lastSeen.Store(now.UnixNano())
	return ent.lim
}

// Admit implementa domain.Limiter.
func (s *Store) Admit(key domain.Key) domain.Decision {
	lim := s.Get(key)
	now := s.clock.Now()

	dec := domain.Decision{Limit: s.burst, Window: s.Window()}
	if lim.AllowN(now, 1) {
		dec.Allowed = true
		dec.Remaining = max(0, int(lim.TokensAt(now)))
		return dec
	}
	if s.rps > 0 {
		missing := 1 - lim.TokensAt(now)
		dec.RetryAfter = time.Duration(missing / float64(s.rps) * float64(time.Second))
	}
	return dec
}

// Remaining implementa domain.Limiter; chave desconhecida tem o bucket cheio.
func (s *Store) Remaining(key domain.Key) int {
	v, ok := s.entries.Load(string(key))
	if !ok {
		return s.burst
	}
	return max(0, int(v.(*storeEntry).lim.TokensAt(s.clock.Now())))
}

func (s *Store) Cleanup() int {
	cutoff := s.clock.Now().Add(-s.idleTTL).UnixNano()
	removed := 0
	s.entries.Range(func(k, v any) bool {
		ent := v.(*storeEntry)
		if ent.lastSeen.Load() < cutoff && s.entries.CompareAndDelete(k, ent) {
			removed++
		}
		return true
	})
	return removed
}

// StartJanitor inicia uma goroutine que limpa chaves inativas periodicamente.
// Pare cancelando o contexto.
func (s *Store) StartJanitor(ctx DoneContext) {
	startJanitor(ctx, s.cleanupEvery, func() { s.Cleanup() })
}
