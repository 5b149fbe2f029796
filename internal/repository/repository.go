// Пакет repository — PostgreSQL-бэкенд персистентного хранилища справочника.
// Чистый SQL через pgx, одна таблица kv_store.
package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX — минимальный набор операций kv_store.
// Реализуется *pgxpool.Pool и pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}
