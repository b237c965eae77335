package infra

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ephemeral-core/reconcile/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS regional (
  id BIGINT PRIMARY KEY,
  nome VARCHAR(200) NOT NULL,
  ativo BOOLEAN NOT NULL DEFAULT TRUE,
  atualizado_em TIMESTAMPTZ NOT NULL DEFAULT now()
);
-- bases criadas com id INTEGER; no-op quando já é BIGINT
ALTER TABLE regional ALTER COLUMN id TYPE BIGINT;
CREATE INDEX IF NOT EXISTS idx_regional_nome ON regional(nome);
CREATE INDEX IF NOT EXISTS idx_regional_ativo ON regional(ativo);
`

// PostgresStore guarda os registros no Postgres via pgxpool (STORE_DRIVER=postgres).
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ domain.Store = (*PostgresStore)(nil)

// OpenPostgres conecta, valida com ping e garante o schema.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() { s.pool.Close() }

type postgresTx struct {
	tx pgx.Tx
}

func (t *postgresTx) LoadAll(ctx context.Context) (map[int]domain.LocalRecord, error) {
	// FOR UPDATE: outra instância reconciliando espera esta terminar
	rows, err := t.tx.Query(ctx, "SELECT id, nome, ativo, atualizado_em FROM regional FOR UPDATE")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int]domain.LocalRecord)
	for rows.Next() {
		r, err := scanPostgres(rows)
		if err != nil {
			return nil, err
		}
		out[r.ID] = r
	}
	return out, rows.Err()
}

func (t *postgresTx) Save(ctx context.Context, r domain.LocalRecord) error {
	_, err := t.tx.Exec(ctx, `
INSERT INTO regional(id, nome, ativo, atualizado_em) VALUES($1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE SET nome = EXCLUDED.nome, ativo = EXCLUDED.ativo, atualizado_em = EXCLUDED.atualizado_em
`, int64(r.ID), r.Name, r.Active, r.UpdatedAt)
	return err
}

func (t *postgresTx) DeactivateMissing(ctx context.Context, seen map[int]struct{}, now time.Time) (int, error) {
	ids := make([]int64, 0, len(seen))
	for id := range seen {
		ids = append(ids, int64(id))
	}
	tag, err := t.tx.Exec(ctx, `
UPDATE regional SET ativo = FALSE, atualizado_em = $2
WHERE ativo AND NOT (id = ANY($1::int8[]))
`, ids, now)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) WithinTx(ctx context.Context, fn func(context.Context, domain.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	if err := fn(ctx, &postgresTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) List(ctx context.Context, activeOnly bool) ([]domain.LocalRecord, error) {
	q := "SELECT id, nome, ativo, atualizado_em FROM regional"
	if activeOnly {
		q += " WHERE ativo"
	}
	q += " ORDER BY nome, id"

	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.LocalRecord{}
	for rows.Next() {
		r, err := scanPostgres(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Get(ctx context.Context, id int) (domain.LocalRecord, error) {
	row := s.pool.QueryRow(ctx, "SELECT id, nome, ativo, atualizado_em FROM regional WHERE id = $1", int64(id))
	r, err := scanPostgres(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.LocalRecord{}, domain.ErrNotFound
	}
	return r, err
}

func (s *PostgresStore) Counts(ctx context.Context) (domain.Counts, error) {
	var total, active int64
	err := s.pool.QueryRow(ctx, "SELECT COUNT(*), COUNT(*) FILTER (WHERE ativo) FROM regional").Scan(&total, &active)
	return domain.Counts{Total: int(total), Active: int(active), Inactive: int(total - active)}, err
}

func scanPostgres(row pgx.Row) (domain.LocalRecord, error) {
	var (
		id int64
		r  domain.LocalRecord
	)
	if err := row.Scan(&id, &r.Name, &r.Active, &r.UpdatedAt); err != nil {
		return domain.LocalRecord{}, err
	}
	r.ID = int(id)
	return r, nil
}
