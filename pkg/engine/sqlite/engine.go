// Package sqlite implements the query engine over SQLite dataset files.
// Each dataset is attached read-only to a throwaway in-memory database, so a
// query can join across datasets while never mutating them.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/quarrylabs/quarry/pkg/models"
)

// Engine executes SQL against attached SQLite dataset files.
type Engine struct{}

// New creates an Engine.
func New() *Engine {
	return &Engine{}
}

// Execute attaches each dataset file read-only and runs the query. Engine
// errors are returned raw; translation happens at the orchestration layer.
func (e *Engine) Execute(ctx context.Context, sqlText string, files []string) (*models.QueryResult, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open scratch database: %w", err)
	}
	defer db.Close()

	// ATTACH is connection-scoped, so pin a single connection.
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	for i, path := range files {
		uri := fmt.Sprintf("file:%s?mode=ro&immutable=1", path)
		stmt := fmt.Sprintf("ATTACH DATABASE %s AS ds%d", quote(uri), i+1)
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("attach dataset %s: %w", path, err)
		}
	}

	rows, err := conn.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	result := &models.QueryResult{Columns: columns, Rows: [][]any{}}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result.TotalRows = len(result.Rows)
	return result, nil
}

// quote wraps a string in single quotes for use inside ATTACH, which does not
// accept placeholders.
func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
