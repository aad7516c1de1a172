// Package coordinator serializes every state-changing operation on a pool
// through one atomic read-modify-write against the store, and hands only the
// audit events that were actually committed to downstream consumers.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/squarebot/internal/domain"
	"github.com/alejandrodnm/squarebot/internal/metrics"
	"github.com/alejandrodnm/squarebot/internal/ports"
)

const (
	defaultMaxAttempts  = 5
	defaultRetryBackoff = 50 * time.Millisecond
)

// Config contiene la política de reintentos ante conflictos de versión.
type Config struct {
	MaxAttempts  int           // 0 = 5
	RetryBackoff time.Duration // se multiplica por el número de intento
	Now          func() time.Time
}

// Actor es quien dispara una operación administrativa.
type Actor struct {
	ID    string
	Admin bool
}

// SystemActor es el scheduler: actúa con permisos de admin.
var SystemActor = Actor{ID: "system", Admin: true}

func (a Actor) canManage(p domain.Pool) bool {
	return a.Admin || (a.ID != "" && a.ID == p.OwnerID)
}

// Coordinator es el único escritor de estado de pools.
type Coordinator struct {
	cfg      Config
	store    ports.PoolStore
	notifier ports.Notifier
	axes     *domain.AxisGenerator
	metrics  *metrics.Metrics
}

// New crea un Coordinator. notifier y m pueden ser nil.
func New(cfg Config, store ports.PoolStore, notifier ports.Notifier, axes *domain.AxisGenerator, m *metrics.Metrics) *Coordinator {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = defaultRetryBackoff
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if axes == nil {
		axes = domain.NewAxisGenerator()
	}
	return &Coordinator{cfg: cfg, store: store, notifier: notifier, axes: axes, metrics: m}
}

// attempt es el estado que una mutación deja para después del commit.
// Se resetea en cada reintento.
type attempt struct {
	winners []domain.Winner
}

// update ejecuta fn dentro de UpdatePool reintentando conflictos. ErrNoChange
// se devuelve tal cual para que el caller decida si es un no-op.
func (c *Coordinator) update(ctx context.Context, op, poolID string, fn func(p *domain.Pool, st *attempt) (ports.Changes, error)) (ports.Commit, error) {
	for n := 1; ; n++ {
		st := &attempt{}
		commit, err := c.store.UpdatePool(ctx, poolID, func(p *domain.Pool) (ports.Changes, error) {
			return fn(p, st)
		})
		if err == nil {
			c.publish(ctx, commit, st.winners)
			return commit, nil
		}
		if !errors.Is(err, domain.ErrConflict) || n >= c.cfg.MaxAttempts {
			return ports.Commit{}, err
		}

		c.metrics.Conflict()
		slog.Debug("version conflict, retrying", "op", op, "pool_id", poolID, "attempt", n)
		select {
		case <-time.After(time.Duration(n) * c.cfg.RetryBackoff):
		case <-ctx.Done():
			return ports.Commit{}, fmt.Errorf("coordinator.%s: %w", op, ctx.Err())
		}
	}
}

// publish cuenta y notifica solo lo que el commit insertó de verdad.
func (c *Coordinator) publish(ctx context.Context, commit ports.Commit, winners []domain.Winner) {
	kinds := make([]string, 0, len(commit.Audit))
	for _, e := range commit.Audit {
		kinds = append(kinds, string(e.Kind))
	}
	c.metrics.AuditCommitted(kinds, commit.Deduped)

	if c.notifier == nil || len(commit.Audit) == 0 {
		return
	}
	if err := c.notifier.NotifyAudit(ctx, commit.Pool, commit.Audit, winners); err != nil {
		slog.Warn("notify failed", "pool_id", commit.Pool.ID, "err", err)
	}
}

// ignoreNoChange convierte ErrNoChange en éxito silencioso.
func ignoreNoChange(err error) error {
	if errors.Is(err, domain.ErrNoChange) {
		return nil
	}
	return err
}

// Pool devuelve el estado confirmado del pool.
func (c *Coordinator) Pool(ctx context.Context, poolID string) (domain.Pool, error) {
	return c.store.GetPool(ctx, poolID)
}

// Winners devuelve el set de winners derivado y persistido.
func (c *Coordinator) Winners(ctx context.Context, poolID string) ([]domain.Winner, error) {
	return c.store.Winners(ctx, poolID)
}

// Audit devuelve el ledger del pool.
func (c *Coordinator) Audit(ctx context.Context, poolID string) ([]domain.AuditEvent, error) {
	return c.store.AuditEvents(ctx, poolID)
}
