// Package repository реализует SQL-доступ к агрегатам биллингового ядра.
// Репозитории работают поверх Querier (им может быть *sql.Tx внутри
// Unit of Work или *sql.DB для внетранзакционных чтений) и никогда
// не фиксируют транзакцию сами.
package repository

import (
	"context"
	"database/sql"
)

// Querier минимальный набор методов database/sql, нужный репозиториям.
// Ему удовлетворяют и *sql.DB, и *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
