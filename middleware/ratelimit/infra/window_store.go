package infra

import (
	"sync"
	"time"

	"ephemeral-core/internal/clock"
	"ephemeral-core/middleware/ratelimit/domain"
)

// WindowStore implementa domain.Limiter com janela fixa por chave e reset
// preguiçoso (a janela só é renovada quando a chave volta a aparecer).
//
// Cada chave tem seu próprio mutex; o mapa é um sync.Map, então chaves
// diferentes nunca esperam umas pelas outras.
type WindowStore struct {
	entries      sync.Map // string -> *windowEntry
	max          int
	window       time.Duration
	cleanupEvery time.Duration
	clock        clock.Clock
}

type windowEntry struct {
	mu    sync.Mutex
	start time.Time
	count int
	// removed é marcado pelo Cleanup (com mu travado) antes de tirar a entrada
	// do mapa; quem ainda tinha o ponteiro precisa buscar outra.
	removed bool
}

type WindowOption func(*WindowStore)

func WithWindowClock(c clock.Clock) WindowOption {
	return func(s *WindowStore) { s.clock = clock.Or(c) }
}

func WithWindowCleanupEvery(d time.Duration) WindowOption {
	return func(s *WindowStore) { s.cleanupEvery = d }
}

// NewWindowStore cria um limiter de `max` requests por `window` por chave.
func NewWindowStore(max int, window time.Duration, opts ...WindowOption) *WindowStore {
	s := &WindowStore{
		max:          max,
		window:       window,
		cleanupEvery: time.Minute,
		clock:        clock.System{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *WindowStore) Limit() int                  { return s.max }
func (s *WindowStore) Window() time.Duration       { return s.window }
func (s *WindowStore) CleanupEvery() time.Duration { return s.cleanupEvery }

func (s *WindowStore) load(key string) *windowEntry {
	if v, ok := s.entries.Load(key); ok {
		return v.(*windowEntry)
	}
	v, _ := s.entries.LoadOrStore(key, &windowEntry{})
	return v.(*windowEntry)
}

// Admit implementa domain.Limiter.
// Reset da janela, checagem e incremento acontecem na mesma seção crítica da chave.
func (s *WindowStore) Admit(key domain.Key) domain.Decision {
	k := string(key)
	for {
		e := s.load(k)
		e.mu.Lock()
		if e.removed {
			e.mu.Unlock()
			continue
		}

		now := s.clock.Now()
		if !now.Before(e.start.Add(s.window)) {
			e.start = now
			e.count = 0
		}
		dec := domain.Decision{Limit: s.max, Window: s.window}

		if e.count >= s.max {
			dec.RetryAfter = e.start.Add(s.window).Sub(now)
			e.mu.Unlock()
			return dec
		}
		e.count++
		dec.Allowed = true
		dec.Remaining = s.max - e.count
		e.mu.Unlock()
		return dec
	}
}

// Remaining implementa domain.Limiter sem criar nem renovar a janela.
func (s *WindowStore) Remaining(key domain.Key) int {
	v, ok := s.entries.Load(string(key))
	if !ok {
		return s.max
	}
	e := v.(*windowEntry)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed || !s.clock.Now().Before(e.start.Add(s.window)) {
		return s.max
	}
	return max(0, s.max-e.count)
}

// Cleanup remove chaves cuja janela começou há mais de 2x a duração da janela.
// Trava uma entrada por vez; nunca o mapa inteiro.
func (s *WindowStore) Cleanup() int {
	cutoff := s.clock.Now().Add(-2 * s.window)
	removed := 0
	s.entries.Range(func(k, v any) bool {
		e := v.(*windowEntry)
		e.mu.Lock()
		if e.start.Before(cutoff) {
			e.removed = true
			if s.entries.CompareAndDelete(k, e) {
				removed++
			}
		}
		e.mu.Unlock()
		return true
	})
	return removed
}

// Len conta as chaves rastreadas (O(n); para testes e diagnóstico).
func (s *WindowStore) Len() int {
	n := 0
	s.entries.Range(func(any, any) bool { n++; return true })
	return n
}

// StartJanitor roda Cleanup a cada CleanupEvery até o ctx encerrar.
func (s *WindowStore) StartJanitor(ctx DoneContext) {
	startJanitor(ctx, s.cleanupEvery, func() { s.Cleanup() })
}
