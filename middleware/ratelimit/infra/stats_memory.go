package infra

import (
	"context"
	"maps"
	"sync"

	"ephemeral-core/middleware/ratelimit/domain"
)

// MemoryStatsStore guarda contadores de decisões em memória.
// É o padrão quando não há Redis configurado.
//
// Não expira nada; com WithTrackKeys o mapa por chave cresce com o número de clientes.
type MemoryStatsStore struct {
	mu      sync.Mutex
	total   domain.Counters
	byRoute map[string]domain.Counters
	byKind  map[string]domain.Counters
	byKey   map[string]domain.Counters

	trackKeys bool
}

var (
	_ domain.StatsStore  = (*MemoryStatsStore)(nil)
	_ domain.StatsReader = (*MemoryStatsStore)(nil)
)

type MemoryStatsOption func(*MemoryStatsStore)

func WithTrackKeys(track bool) MemoryStatsOption {
	return func(s *MemoryStatsStore) { s.trackKeys = track }
}

func NewMemoryStatsStore(opts ...MemoryStatsOption) *MemoryStatsStore {
	s := &MemoryStatsStore{
		byRoute: make(map[string]domain.Counters),
		byKind:  make(map[string]domain.Counters),
		byKey:   make(map[string]domain.Counters),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func bump(m map[string]domain.Counters, k string, allowed bool) {
	c := m[k]
	c.Add(allowed)
	m[k] = c
}

func (s *MemoryStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	route := ev.Method + " " + ev.Path

	s.mu.Lock()
	defer s.mu.Unlock()

	s.total.Add(ev.Allowed)
	bump(s.byRoute, route, ev.Allowed)
	if ev.KeyKind != "" {
		bump(s.byKind, ev.KeyKind, ev.Allowed)
	}
	if s.trackKeys {
		bump(s.byKey, string(ev.Key), ev.Allowed)
	}
	return nil
}

// Snapshot devolve cópias; o chamador pode mexer à vontade.
func (s *MemoryStatsStore) Snapshot(context.Context) (domain.StatsSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := domain.StatsSnapshot{
		Total:   s.total,
		ByKind:  maps.Clone(s.byKind),
		ByRoute: maps.Clone(s.byRoute),
	}
	if s.trackKeys {
		out.ByKey = maps.Clone(s.byKey)
	}
	return out, nil
}
