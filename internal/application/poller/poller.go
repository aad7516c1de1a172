// Package poller es el scheduler: en cada tick bloquea los pools con
// auto_lock que están por empezar y sincroniza el marcador de los que lo
// necesitan, con un límite de fetches concurrentes.
package poller

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alejandrodnm/squarebot/internal/application/coordinator"
	"github.com/alejandrodnm/squarebot/internal/domain"
	"github.com/alejandrodnm/squarebot/internal/metrics"
	"github.com/alejandrodnm/squarebot/internal/ports"
)

// Motivos de skip, usados como label de métricas.
const (
	SkipNone      = ""
	SkipSettled   = "settled"
	SkipTooEarly  = "too_early"
	SkipUnchanged = "unchanged"
)

// Config contiene la configuración del poller.
type Config struct {
	Interval     time.Duration
	FetchHorizon time.Duration // pools sin bloquear que empiezan más allá no se consultan
	AutoLockLead time.Duration // 0 = no auto-lock
	Workers      int           // fetches concurrentes (0 = 4)
	Once         bool
	Now          func() time.Time
}

// DefaultConfig devuelve la configuración por defecto.
func DefaultConfig() Config {
	return Config{
		Interval:     30 * time.Second,
		FetchHorizon: 2 * time.Hour,
		AutoLockLead: 10 * time.Minute,
		Workers:      4,
	}
}

// PoolLister es la parte del store que el poller necesita.
type PoolLister interface {
	ListPools(ctx context.Context) ([]domain.Pool, error)
}

// Applier es la parte del coordinator que el poller usa para escribir.
type Applier interface {
	ApplyFeed(ctx context.Context, poolID string, feed domain.GameFeed) (coordinator.FeedResult, error)
	AutoLock(ctx context.Context, poolID string) (bool, error)
}

// Poller es el orquestador del loop de sincronización.
type Poller struct {
	cfg      Config
	pools    PoolLister
	provider ports.ScoreProvider
	applier  Applier
	metrics  *metrics.Metrics
}

// PassStats resume una pasada.
type PassStats struct {
	Pools     int
	Locked    int
	Synced    int
	Skipped   int
	Failed    int
	Finalized int
}

// New crea un Poller con todas las dependencias inyectadas. m puede ser nil.
func New(cfg Config, pools PoolLister, provider ports.ScoreProvider, applier Applier, m *metrics.Metrics) *Poller {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.FetchHorizon <= 0 {
		cfg.FetchHorizon = def.FetchHorizon
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Poller{cfg: cfg, pools: pools, provider: provider, applier: applier, metrics: m}
}

// Run ejecuta el loop hasta que el contexto se cancele.
// Si cfg.Once está activo, solo ejecuta una pasada.
func (p *Poller) Run(ctx context.Context) error {
	slog.Info("poller starting",
		"interval", p.cfg.Interval,
		"horizon", p.cfg.FetchHorizon,
		"auto_lock_lead", p.cfg.AutoLockLead,
		"workers", p.cfg.Workers,
		"once", p.cfg.Once,
	)

	if _, err := p.RunOnce(ctx); err != nil {
		slog.Error("sync pass failed", "err", err)
		if p.cfg.Once {
			return err
		}
	}
	if p.cfg.Once {
		return nil
	}

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("poller stopped")
			return nil
		case <-ticker.C:
			if _, err := p.RunOnce(ctx); err != nil {
				slog.Error("sync pass failed", "err", err)
			}
		}
	}
}

// RunOnce ejecuta una pasada completa: auto-lock y después sync. Solo falla
// si no se pudo listar los pools; los fallos por pool se cuentan y se loguean.
func (p *Poller) RunOnce(ctx context.Context) (PassStats, error) {
	start := time.Now()
	defer func() { p.metrics.CycleCompleted(time.Since(start).Seconds()) }()

	pools, err := p.pools.ListPools(ctx)
	if err != nil {
		return PassStats{}, fmt.Errorf("poller.RunOnce: list pools: %w", err)
	}
	stats := PassStats{Pools: len(pools)}
	now := p.cfg.Now()

	stats.Locked = p.autoLock(ctx, pools, now)

	results := make([]outcome, len(pools))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Workers)
	for i, pool := range pools {
		if reason := SkipFetch(pool, now, p.cfg.FetchHorizon); reason != SkipNone {
			p.metrics.PoolSkipped(reason)
			results[i] = outcome{skipped: true}
			slog.Debug("pool skipped", "pool_id", pool.ID, "reason", reason)
			continue
		}
		g.Go(func() error {
			// un pool que falla no aborta al resto
			results[i] = p.syncPool(gctx, pool, now)
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		switch {
		case r.err != nil:
			stats.Failed++
		case r.skipped:
			stats.Skipped++
		default:
			stats.Synced++
			stats.Finalized += r.finalized
		}
	}

	slog.Info("sync pass complete",
		"pools", stats.Pools,
		"locked", stats.Locked,
		"synced", stats.Synced,
		"skipped", stats.Skipped,
		"failed", stats.Failed,
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return stats, nil
}

type outcome struct {
	skipped   bool
	finalized int
	err       error
}

// syncPool hace fetch fuera de la transacción, normaliza contra el snapshot
// listado y solo llama al coordinator si algo cambió.
func (p *Poller) syncPool(ctx context.Context, pool domain.Pool, now time.Time) outcome {
	feed, err := p.provider.FetchGame(ctx, pool.Game)
	if err != nil {
		p.metrics.FetchFailed()
		slog.Warn("fetch game failed", "pool_id", pool.ID, "event_id", pool.Game.EventID, "err", err)
		return outcome{err: err}
	}

	if !domain.Normalize(pool.Scores, pool.Events, feed, now).Changed {
		p.metrics.PoolSkipped(SkipUnchanged)
		return outcome{skipped: true}
	}

	res, err := p.applier.ApplyFeed(ctx, pool.ID, feed)
	if err != nil {
		slog.Error("apply feed failed", "pool_id", pool.ID, "err", err)
		return outcome{err: err}
	}
	p.metrics.PoolSynced()
	return outcome{finalized: len(res.NewlyFinal)}
}

// autoLock bloquea los pools con auto_lock cuyo inicio cae dentro del lead.
func (p *Poller) autoLock(ctx context.Context, pools []domain.Pool, now time.Time) int {
	if p.cfg.AutoLockLead <= 0 {
		return 0
	}
	n := 0
	for _, pool := range pools {
		if !DueForAutoLock(pool, now, p.cfg.AutoLockLead) {
			continue
		}
		locked, err := p.applier.AutoLock(ctx, pool.ID)
		if err != nil {
			slog.Error("auto-lock failed", "pool_id", pool.ID, "err", err)
			continue
		}
		if locked {
			n++
		}
	}
	return n
}

// SkipFetch decide si un pool no necesita consultar al proveedor en este
// tick. Devuelve SkipNone cuando hay que consultar.
//
// Un pool sin bloquear, todavía en pre-partido y cuyo inicio está más allá
// de now+horizon no tiene nada que sincronizar. Un pool liquidado tampoco.
func SkipFetch(p domain.Pool, now time.Time, horizon time.Duration) string {
	if p.Settled {
		return SkipSettled
	}
	if !p.Locked && p.PreGame() && p.Game.StartTime.After(now.Add(horizon)) {
		return SkipTooEarly
	}
	return SkipNone
}

// DueForAutoLock reporta si el scheduler debe bloquear el pool ahora.
func DueForAutoLock(p domain.Pool, now time.Time, lead time.Duration) bool {
	if p.Locked || !p.AutoLock || p.Game.StartTime.IsZero() {
		return false
	}
	return !p.Game.StartTime.After(now.Add(lead))
}
