// Package store persists agent state: A/B assignments, channel
// preferences, qualification snapshots, per-user settings, opt-outs and
// the audit trail in Postgres, plus sessions and transcripts in Redis.
package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("realty/store")

var ErrNotFound = errors.New("store: not found")

// querier is the slice of pgxpool.Pool the stores use; pgxmock satisfies it.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}
