package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alejandrodnm/squarebot/internal/domain"
	"github.com/alejandrodnm/squarebot/internal/ports"
)

// Recompute re-deriva los winners desde el estado guardado (reparación).
// No toca scores ni ejes; los winner_computed que ya existían se deduplican.
func (c *Coordinator) Recompute(ctx context.Context, poolID string) ([]domain.Winner, error) {
	var winners []domain.Winner
	_, err := c.update(ctx, "Recompute", poolID, func(p *domain.Pool, st *attempt) (ports.Changes, error) {
		now := c.cfg.Now()
		st.winners = domain.DeriveWinners(*p)
		winners = st.winners
		p.Settled = domain.SettledBy(*p, st.winners)

		ch := ports.Changes{Winners: st.winners}
		ch.Audit = append(ch.Audit, domain.NewAuditEvent(p.ID, domain.AuditRecomputed, "", map[string]any{
			"winners": len(st.winners),
			"total":   domain.TotalPaid(st.winners),
		}, now))
		ch.Audit = append(ch.Audit, winnerAudits(*p, st.winners, nil, nil, now)...)
		return ch, nil
	})
	if err != nil {
		return nil, fmt.Errorf("coordinator.Recompute %s: %w", poolID, err)
	}
	return winners, nil
}

// RecomputeAll recorre todos los pools bloqueados. Un pool que falla no
// aborta el resto; se devuelve el primer error.
func (c *Coordinator) RecomputeAll(ctx context.Context) (int, error) {
	pools, err := c.store.ListPools(ctx)
	if err != nil {
		return 0, fmt.Errorf("coordinator.RecomputeAll: list: %w", err)
	}
	var firstErr error
	n := 0
	for _, p := range pools {
		if !p.Locked {
			continue
		}
		if _, err := c.Recompute(ctx, p.ID); err != nil {
			slog.Error("recompute failed", "pool_id", p.ID, "err", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		n++
	}
	return n, firstErr
}

// RecomputeTotals reconstruye el agregado global de premios bloqueados.
func (c *Coordinator) RecomputeTotals(ctx context.Context) (float64, error) {
	total, err := c.store.RecomputeLockedTotal(ctx)
	if err != nil {
		return 0, fmt.Errorf("coordinator.RecomputeTotals: %w", err)
	}
	c.metrics.SetLockedPrize(total)
	slog.Info("locked total recomputed", "total", total)
	return total, nil
}

// Draw resuelve por sorteo un rollover final pendiente. Idempotente: un pool
// ya sorteado devuelve el resultado guardado.
func (c *Coordinator) Draw(ctx context.Context, poolID string, actor Actor) (domain.DrawResult, error) {
	var result domain.DrawResult
	_, err := c.update(ctx, "Draw", poolID, func(p *domain.Pool, st *attempt) (ports.Changes, error) {
		if !actor.canManage(*p) {
			return ports.Changes{}, domain.ErrPermissionDenied
		}
		if p.Draw != nil {
			result = *p.Draw
			return ports.Changes{}, domain.ErrNoChange
		}
		if !p.Locked {
			return ports.Changes{}, domain.ErrPoolNotLocked
		}

		pending := domain.DeriveWinners(*p)
		if !domain.HasPendingDraw(pending) {
			return ports.Changes{}, domain.ErrNoPendingDraw
		}
		var sold []domain.Cell
		for _, cell := range p.Cells {
			if cell.Claimed() {
				sold = append(sold, cell)
			}
		}
		if len(sold) == 0 {
			return ports.Changes{}, domain.ErrNoPendingDraw
		}

		now := c.cfg.Now()
		cell := sold[c.axes.Intn(len(sold))]
		result = domain.DrawResult{CellID: cell.ID, Owner: cell.Owner, DrawnBy: actor.ID, DrawnAt: now}
		p.Draw = &result

		st.winners = domain.DeriveWinners(*p)
		p.Settled = domain.SettledBy(*p, st.winners)

		ch := ports.Changes{Winners: st.winners}
		ch.Audit = append(ch.Audit, domain.NewAuditEvent(p.ID, domain.AuditRolloverDrawn, domain.DrawKey(p.ID), map[string]any{
			"cell":     cell.ID,
			"owner":    cell.Owner,
			"by":       actor.ID,
			"eligible": len(sold),
		}, now))
		ch.Audit = append(ch.Audit, winnerAudits(*p, st.winners, map[domain.Period]bool{}, map[string]bool{}, now)...)
		return ch, nil
	})
	if errors.Is(err, domain.ErrNoChange) {
		return result, nil
	}
	if err != nil {
		return domain.DrawResult{}, fmt.Errorf("coordinator.Draw %s: %w", poolID, err)
	}
	slog.Info("rollover drawn", "pool_id", poolID, "cell", result.CellID, "owner", result.Owner)
	return result, nil
}
