package infra

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"ephemeral-core/reconcile/domain"
)

// MemoryStore guarda os registros em memória (STORE_DRIVER=memory e testes).
//
// Transações trabalham numa cópia e trocam o mapa no commit; txMu deixa uma
// transação por vez.
type MemoryStore struct {
	txMu sync.Mutex

	mu   sync.RWMutex
	rows map[int]domain.LocalRecord
}

var _ domain.Store = (*MemoryStore)(nil)

func NewMemoryStore(seed ...domain.LocalRecord) *MemoryStore {
	s := &MemoryStore{rows: make(map[int]domain.LocalRecord, len(seed))}
	for _, r := range seed {
		s.rows[r.ID] = r
	}
	return s
}

type memoryTx struct {
	rows map[int]domain.LocalRecord
}

func (t *memoryTx) LoadAll(context.Context) (map[int]domain.LocalRecord, error) {
	return maps.Clone(t.rows), nil
}

func (t *memoryTx) Save(_ context.Context, rec domain.LocalRecord) error {
	t.rows[rec.ID] = rec
	return nil
}

func (t *memoryTx) DeactivateMissing(_ context.Context, seen map[int]struct{}, now time.Time) (int, error) {
	n := 0
	for id, r := range t.rows {
		if !r.Active {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		r.Active = false
		r.UpdatedAt = now
		t.rows[id] = r
		n++
	}
	return n, nil
}

func (s *MemoryStore) WithinTx(ctx context.Context, fn func(context.Context, domain.Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	tx := &memoryTx{rows: maps.Clone(s.rows)}
	s.mu.RUnlock()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.rows = tx.rows
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) List(_ context.Context, activeOnly bool) ([]domain.LocalRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.LocalRecord, 0, len(s.rows))
	for _, r := range s.rows {
		if activeOnly && !r.Active {
			continue
		}
		out = append(out, r)
	}
	sortByName(out)
	return out, nil
}

func (s *MemoryStore) Get(_ context.Context, id int) (domain.LocalRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rows[id]
	if !ok {
		return domain.LocalRecord{}, domain.ErrNotFound
	}
	return r, nil
}

func (s *MemoryStore) Counts(context.Context) (domain.Counts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := domain.Counts{Total: len(s.rows)}
	for _, r := range s.rows {
		if r.Active {
			c.Active++
		}
	}
	c.Inactive = c.Total - c.Active
	return c, nil
}

// mesma ordem do ORDER BY nome, id dos stores SQL
func sortByName(rows []domain.LocalRecord) {
	slices.SortFunc(rows, func(a, b domain.LocalRecord) int {
		if c := cmp.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}
