package infra

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
	"time"

	"ephemeral-core/reconcile/domain"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore é o store padrão (modernc.org/sqlite, sem cgo).
type SQLiteStore struct {
	db *sql.DB
}

var _ domain.Store = (*SQLiteStore)(nil)

func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}

	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path))
	if err != nil {
		return nil, err
	}
	// uma conexão: SQLite serializa escrita de qualquer jeito
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
  id TEXT PRIMARY KEY,
  applied_at INTEGER NOT NULL
);
`); err != nil {
		return err
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		body, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return err
		}
		sum := sha256.Sum256(body)
		id := name + ":" + hex.EncodeToString(sum[:])

		var v string
		err = db.QueryRowContext(ctx, "SELECT id FROM schema_migrations WHERE id = ?", id).Scan(&v)
		if err == nil {
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		if err := applyMigration(ctx, db, id, string(body)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
	}
	return nil
}

func applyMigration(ctx context.Context, db *sql.DB, id, body string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, body); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations(id, applied_at) VALUES(?, strftime('%s','now'))", id); err != nil {
		return err
	}
	return tx.Commit()
}

type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) LoadAll(ctx context.Context) (map[int]domain.LocalRecord, error) {
	rows, err := t.tx.QueryContext(ctx, "SELECT id, nome, ativo, atualizado_em FROM regional")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int]domain.LocalRecord)
	for rows.Next() {
		r, err := scanSQLite(rows)
		if err != nil {
			return nil, err
		}
		out[r.ID] = r
	}
	return out, rows.Err()
}

func (t *sqliteTx) Save(ctx context.Context, r domain.LocalRecord) error {
	_, err := t.tx.ExecContext(ctx, `
INSERT INTO regional(id, nome, ativo, atualizado_em) VALUES(?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET nome=excluded.nome, ativo=excluded.ativo, atualizado_em=excluded.atualizado_em
`, r.ID, r.Name, r.Active, r.UpdatedAt.Unix())
	return err
}

func (t *sqliteTx) DeactivateMissing(ctx context.Context, seen map[int]struct{}, now time.Time) (int, error) {
	ids := slices.Sorted(maps.Keys(seen))
	if ids == nil {
		ids = []int{}
	}
	list, err := json.Marshal(ids)
	if err != nil {
		return 0, err
	}

	// json_each evita montar um IN (...) com milhares de placeholders
	res, err := t.tx.ExecContext(ctx, `
UPDATE regional SET ativo = 0, atualizado_em = ?
WHERE ativo = 1 AND id NOT IN (SELECT value FROM json_each(?))
`, now.Unix(), string(list))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *SQLiteStore) WithinTx(ctx context.Context, fn func(context.Context, domain.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(ctx, &sqliteTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) List(ctx context.Context, activeOnly bool) ([]domain.LocalRecord, error) {
	q := "SELECT id, nome, ativo, atualizado_em FROM regional"
	if activeOnly {
		q += " WHERE ativo = 1"
	}
	q += " ORDER BY nome, id"

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.LocalRecord{}
	for rows.Next() {
		r, err := scanSQLite(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Get(ctx context.Context, id int) (domain.LocalRecord, error) {
	row := s.db.QueryRowContext(ctx, "SELECT id, nome, ativo, atualizado_em FROM regional WHERE id = ?", id)
	r, err := scanSQLite(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.LocalRecord{}, domain.ErrNotFound
	}
	return r, err
}

func (s *SQLiteStore) Counts(ctx context.Context) (domain.Counts, error) {
	var c domain.Counts
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(CASE WHEN ativo = 1 THEN 1 ELSE 0 END), 0) FROM regional",
	).Scan(&c.Total, &c.Active)
	c.Inactive = c.Total - c.Active
	return c, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSQLite(sc scanner) (domain.LocalRecord, error) {
	var (
		r       domain.LocalRecord
		updated int64
	)
	if err := sc.Scan(&r.ID, &r.Name, &r.Active, &updated); err != nil {
		return domain.LocalRecord{}, err
	}
	if updated > 0 {
		r.UpdatedAt = time.Unix(updated, 0).UTC()
	}
	return r, nil
}
