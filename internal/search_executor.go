package internal

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Executor runs rendered search SQL on one backend.
type Executor interface {
	QueryMaps(ctx context.Context, query string, args ...any) ([]map[string]any, error)
	Count(ctx context.Context, query string, args ...any) (int64, error)
}

// queryPool is the part of pgxpool.Pool the search path needs. Every call
// acquires its own connection.
type queryPool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresExecutor runs search SQL through pgx.
type PostgresExecutor struct {
	pool queryPool
}

// NewPostgresExecutor creates an executor over pool.
func NewPostgresExecutor(pool queryPool) *PostgresExecutor {
	return &PostgresExecutor{pool: pool}
}

func (e *PostgresExecutor) QueryMaps(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	rows, err := e.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search query failed: %w", err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, fmt.Errorf("failed to read search rows: %w", err)
	}
	return out, nil
}

func (e *PostgresExecutor) Count(ctx context.Context, query string, args ...any) (int64, error) {
	var total int64
	if err := e.pool.QueryRow(ctx, query, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count query failed: %w", err)
	}
	return total, nil
}

// SQLExecutor runs search SQL through database/sql, used for DuckDB.
type SQLExecutor struct {
	db *sql.DB
}

// NewSQLExecutor creates an executor over db.
func NewSQLExecutor(db *sql.DB) *SQLExecutor {
	return &SQLExecutor{db: db}
}

func (e *SQLExecutor) QueryMaps(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search query failed: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read search columns: %w", err)
	}
	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan search row: %w", err)
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			row[c] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read search rows: %w", err)
	}
	return out, nil
}

func (e *SQLExecutor) Count(ctx context.Context, query string, args ...any) (int64, error) {
	var total int64
	if err := e.db.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count query failed: %w", err)
	}
	return total, nil
}
