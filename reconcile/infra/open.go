package infra

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"ephemeral-core/reconcile/domain"
)

// StoreConfig é o subconjunto da configuração que escolhe o store.
type StoreConfig struct {
	Driver string // sqlite | postgres | memory
	Path   string
	DSN    string
}

// Open abre o store pedido. O close devolvido é sempre não-nil.
func Open(ctx context.Context, cfg StoreConfig) (domain.Store, func(), error) {
	switch cfg.Driver {
	case "", "sqlite":
		if dir := filepath.Dir(cfg.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, func() {}, fmt.Errorf("sqlite dir: %w", err)
			}
		}
		s, err := OpenSQLite(ctx, cfg.Path)
		if err != nil {
			return nil, func() {}, err
		}
		return s, func() { _ = s.Close() }, nil
	case "postgres":
		s, err := OpenPostgres(ctx, cfg.DSN)
		if err != nil {
			return nil, func() {}, err
		}
		return s, s.Close, nil
	case "memory":
		return NewMemoryStore(), func() {}, nil
	default:
		return nil, func() {}, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
