// Package infra tem as implementações concretas do reconciliador:
//
//   - HTTPSource: GET {base}/v1/regionais
//   - SQLiteStore: modernc.org/sqlite com migrações embutidas (padrão)
//   - PostgresStore: jackc/pgx/v5
//   - MemoryStore: em memória, para desenvolvimento e testes
package infra
