package infra

import (
	"context"
	"errors"
	"testing"
	"time"

	"ephemeral-core/reconcile/domain"
)

// exerciseStore roda o mesmo roteiro contra qualquer domain.Store vazio.
func exerciseStore(t *testing.T, s domain.Store) {
	t.Helper()
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0).UTC()
	later := now.Add(30 * time.Minute)

	err := s.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		for _, r := range []domain.LocalRecord{
			{ID: 3, Name: "Sinop", Active: true, UpdatedAt: now},
			{ID: 1, Name: "Cuiaba", Active: true, UpdatedAt: now},
			{ID: 2, Name: "Barra do Garcas", Active: true, UpdatedAt: now},
		} {
			if err := tx.Save(ctx, r); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed tx: %v", err)
	}

	list, err := s.List(ctx, false)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 3 || list[0].Name != "Barra do Garcas" || list[1].Name != "Cuiaba" || list[2].Name != "Sinop" {
		t.Fatalf("expected list ordered by name, got %+v", list)
	}

	// rollback: nada do que foi escrito pode aparecer
	boom := errors.New("boom")
	err = s.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		if err := tx.Save(ctx, domain.LocalRecord{ID: 9, Name: "Fantasma", Active: true, UpdatedAt: now}); err != nil {
			return err
		}
		if _, err := tx.DeactivateMissing(ctx, map[int]struct{}{}, later); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected tx error to propagate, got %v", err)
	}
	if _, err := s.Get(ctx, 9); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected rolled back insert to be absent, got %v", err)
	}
	c, err := s.Counts(ctx)
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if c.Total != 3 || c.Active != 3 || c.Inactive != 0 {
		t.Fatalf("expected rollback to keep all active, got %+v", c)
	}

	// desativa quem não foi visto e devolve a contagem
	var deactivated int
	err = s.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		all, err := tx.LoadAll(ctx)
		if err != nil {
			return err
		}
		if len(all) != 3 || all[1].Name != "Cuiaba" {
			t.Errorf("unexpected LoadAll: %+v", all)
		}
		deactivated, err = tx.DeactivateMissing(ctx, map[int]struct{}{1: {}}, later)
		return err
	})
	if err != nil {
		t.Fatalf("deactivate tx: %v", err)
	}
	if deactivated != 2 {
		t.Fatalf("expected 2 deactivated, got %d", deactivated)
	}

	active, err := s.List(ctx, true)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active) != 1 || active[0].ID != 1 {
		t.Fatalf("expected only id 1 active, got %+v", active)
	}

	got, err := s.Get(ctx, 3)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Active || got.Name != "Sinop" || !got.UpdatedAt.Equal(later) {
		t.Fatalf("expected id 3 kept but inactive and stamped %v, got %+v", later, got)
	}

	c, err = s.Counts(ctx)
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if c.Total != 3 || c.Active != 1 || c.Inactive != 2 {
		t.Fatalf("unexpected counts %+v", c)
	}

	// já inativos não contam de novo
	err = s.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		deactivated, err = tx.DeactivateMissing(ctx, map[int]struct{}{1: {}}, later)
		return err
	})
	if err != nil || deactivated != 0 {
		t.Fatalf("expected second deactivate to touch nothing, got n=%d err=%v", deactivated, err)
	}

	// conjunto vazio desativa todo mundo
	err = s.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		deactivated, err = tx.DeactivateMissing(ctx, map[int]struct{}{}, later)
		return err
	})
	if err != nil || deactivated != 1 {
		t.Fatalf("expected empty set to deactivate the last active, got n=%d err=%v", deactivated, err)
	}

	// upsert reativa e renomeia
	err = s.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		return tx.Save(ctx, domain.LocalRecord{ID: 2, Name: "Barra", Active: true, UpdatedAt: now.Add(time.Hour)})
	})
	if err != nil {
		t.Fatalf("upsert tx: %v", err)
	}
	got, err = s.Get(ctx, 2)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.Active || got.Name != "Barra" || !got.UpdatedAt.Equal(now.Add(time.Hour)) {
		t.Fatalf("unexpected upserted record %+v", got)
	}

	empty, err := s.List(ctx, true)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(empty) != 1 {
		t.Fatalf("expected one active record, got %+v", empty)
	}

	// id acima de 32 bits não pode colidir com o id 1
	big := 1<<32 + 1
	err = s.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		return tx.Save(ctx, domain.LocalRecord{ID: big, Name: "Nova Mutum", Active: true, UpdatedAt: now})
	})
	if err != nil {
		t.Fatalf("save big id: %v", err)
	}
	got, err = s.Get(ctx, big)
	if err != nil || got.ID != big || got.Name != "Nova Mutum" {
		t.Fatalf("expected big id stored intact, got %+v err=%v", got, err)
	}
	if got, err = s.Get(ctx, 1); err != nil || got.Name != "Cuiaba" {
		t.Fatalf("expected id 1 untouched by big id, got %+v err=%v", got, err)
	}

	err = s.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		deactivated, err = tx.DeactivateMissing(ctx, map[int]struct{}{big: {}}, later)
		return err
	})
	if err != nil || deactivated != 1 {
		t.Fatalf("expected only id 2 deactivated, got n=%d err=%v", deactivated, err)
	}
	if got, err = s.Get(ctx, big); err != nil || !got.Active {
		t.Fatalf("expected big id kept active, got %+v err=%v", got, err)
	}
}
