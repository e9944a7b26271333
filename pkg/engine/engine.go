// Package engine defines the query-execution contract the worker pool runs
// behind process isolation.
package engine

import (
	"context"

	"github.com/quarrylabs/quarry/pkg/models"
)

// Engine runs SQL against locally materialized dataset files and returns a
// shaped result, or a descriptive execution error suitable for translation.
type Engine interface {
	Execute(ctx context.Context, sql string, files []string) (*models.QueryResult, error)
}

// Func adapts a plain function to the Engine interface.
type Func func(ctx context.Context, sql string, files []string) (*models.QueryResult, error)

// Execute implements Engine.
func (f Func) Execute(ctx context.Context, sql string, files []string) (*models.QueryResult, error) {
	return f(ctx, sql, files)
}
