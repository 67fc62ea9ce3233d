package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Checker adapts a pool to the liveness-check shape used by the health server.
type Checker struct {
	Pool *pgxpool.Pool
}

// Name identifies the collaborator in status output.
func (c Checker) Name() string { return "postgres" }

// Ping returns an error when the pool is missing or unreachable.
func (c Checker) Ping(ctx context.Context) error {
	if c.Pool == nil {
		return fmt.Errorf("pool is nil")
	}
	return c.Pool.Ping(ctx)
}
