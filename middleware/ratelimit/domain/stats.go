package domain

import (
	"context"
	"time"
)

// StatsEvent é uma decisão do rate limit vista de fora.
// KeyKind é "user" (principal) ou "ip".
//
// Key e Path têm cardinalidade alta; quem grava decide se guarda.
type StatsEvent struct {
	Key     Key
	KeyKind string
	Allowed bool

	Method string
	Path   string

	At time.Time
}

// StatsStore grava decisões. Best-effort: o middleware só loga o erro.
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}

type Counters struct {
	Allowed int64 `json:"allowed"`
	Denied  int64 `json:"denied"`
}

func (c *Counters) Add(allowed bool) {
	if allowed {
		c.Allowed++
		return
	}
	c.Denied++
}

// StatsSnapshot é o que /api/v1/ratelimit/stats devolve.
type StatsSnapshot struct {
	Total   Counters            `json:"total"`
	ByKind  map[string]Counters `json:"byKind"`
	ByRoute map[string]Counters `json:"byRoute"`
	ByKey   map[string]Counters `json:"byKey,omitempty"`
}

// StatsReader é implementado pelos stores que conseguem ler de volta o que gravaram.
type StatsReader interface {
	Snapshot(ctx context.Context) (StatsSnapshot, error)
}
