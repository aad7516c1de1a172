package ports

import (
	"context"

	"github.com/alejandrodnm/squarebot/internal/domain"
)

// Changes is what a pool mutation asks the store to commit alongside the
// updated pool, in the same transaction.
type Changes struct {
	// Audit events; those whose DedupeKey was already used are dropped.
	Audit []domain.AuditEvent
	// Winners, when non-nil, replaces the pool's derived winner set.
	Winners []domain.Winner
	// LockedTotalDelta is added to the global locked prize pool aggregate.
	LockedTotalDelta float64
}

// Commit reports what an UpdatePool call actually persisted.
type Commit struct {
	Pool domain.Pool
	// Audit holds only the events inserted by this commit.
	Audit []domain.AuditEvent
	// Deduped counts events skipped because their key was already used.
	Deduped int
}

// MutateFunc receives the freshly read pool and mutates it in place.
// Returning domain.ErrNoChange aborts the transaction as a no-op.
type MutateFunc func(p *domain.Pool) (Changes, error)

// PoolStore is the authoritative store of pool state and its ledgers.
type PoolStore interface {
	CreatePool(ctx context.Context, p domain.Pool) error
	GetPool(ctx context.Context, poolID string) (domain.Pool, error)
	ListPools(ctx context.Context) ([]domain.Pool, error)

	// UpdatePool runs one atomic read-modify-write. A write against a stale
	// version fails with domain.ErrConflict; callers retry.
	UpdatePool(ctx context.Context, poolID string, fn MutateFunc) (Commit, error)

	Winners(ctx context.Context, poolID string) ([]domain.Winner, error)
	AuditEvents(ctx context.Context, poolID string) ([]domain.AuditEvent, error)

	// LockedTotal returns the global locked-in prize pool aggregate.
	LockedTotal(ctx context.Context) (float64, error)
	// RecomputeLockedTotal rebuilds the aggregate from every locked pool.
	RecomputeLockedTotal(ctx context.Context) (float64, error)

	Close() error
}
