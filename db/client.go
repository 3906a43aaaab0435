package db

import (
	"context"
	"database/sql"
)

// Querier is the subset of *sql.DB and *sql.Tx the table helpers need, so
// every helper runs unchanged inside or outside a transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// loggingQuerier logs every statement before delegating
type loggingQuerier struct {
	Querier
}

func (d *DB) querier(q Querier) Querier {
	if d.logQueries {
		return loggingQuerier{q}
	}
	return q
}

func logQuery(kind string, query string, args []any) {
	logger.Debug().
		Str("kind", kind).
		Str("sql", query).
		Interface("params", args).
		Msg("db query")
}

func (l loggingQuerier) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	logQuery("run", query, args)
	return l.Querier.ExecContext(ctx, query, args...)
}

func (l loggingQuerier) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	logQuery("select", query, args)
	return l.Querier.QueryContext(ctx, query, args...)
}

func (l loggingQuerier) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	logQuery("get", query, args)
	return l.Querier.QueryRowContext(ctx, query, args...)
}

// Select runs a SELECT query returning multiple rows
// The scanner function is called for each row to map results
func Select[T any](ctx context.Context, q Querier, query string, args []any, scanner func(*sql.Rows) (T, error)) ([]T, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []T
	for rows.Next() {
		item, err := scanner(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, item)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return results, nil
}

// SelectOne runs a SELECT query returning a single row (or nil if not found)
func SelectOne[T any](ctx context.Context, q Querier, query string, args []any, scanner func(*sql.Row) (T, error)) (*T, error) {
	row := q.QueryRowContext(ctx, query, args...)
	result, err := scanner(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &result, nil
}

// Count returns the count of rows matching the query
func Count(ctx context.Context, q Querier, query string, args ...any) (int, error) {
	var count int
	if err := q.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}
