// Package clock abstrai a fonte de tempo usada nos cálculos de expiração
// (janelas do rate limit, TTL de tickets).
//
// Produção usa System; testes usam Manual para avançar o tempo sem sleep.
package clock

import (
	"sync"
	"time"
)

type Clock interface {
	Now() time.Time
}

// System delega para time.Now (inclui leitura monotônica).
type System struct{}

func (System) Now() time.Time { return time.Now() }

// Or retorna c, ou System quando c é nil.
func Or(c Clock) Clock {
	if c == nil {
		return System{}
	}
	return c
}

// Manual é um relógio controlado pelo teste.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance move o relógio para frente (d negativo volta no tempo).
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}

func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	m.now = t
	m.mu.Unlock()
}
