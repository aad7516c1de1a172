package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alejandrodnm/squarebot/internal/domain"
	"github.com/alejandrodnm/squarebot/internal/ports"
)

// Lock congela el grid y genera el primer par de ejes. Sobre un pool ya
// bloqueado devuelve los dígitos guardados sin efectos nuevos. El agregado
// global solo se incrementa en la tx que observa unlocked → locked.
func (c *Coordinator) Lock(ctx context.Context, poolID string, actor Actor) (domain.AxisPair, error) {
	axis, _, err := c.lock(ctx, "Lock", poolID, actor, false)
	return axis, err
}

// AutoLock es el lock del scheduler para pools con auto_lock. Devuelve true
// solo si esta llamada hizo la transición.
func (c *Coordinator) AutoLock(ctx context.Context, poolID string) (bool, error) {
	_, locked, err := c.lock(ctx, "AutoLock", poolID, SystemActor, true)
	return locked, err
}

func (c *Coordinator) lock(ctx context.Context, op, poolID string, actor Actor, auto bool) (domain.AxisPair, bool, error) {
	var axis domain.AxisPair
	_, err := c.update(ctx, op, poolID, func(p *domain.Pool, st *attempt) (ports.Changes, error) {
		if !actor.canManage(*p) {
			return ports.Changes{}, domain.ErrPermissionDenied
		}
		if p.Locked {
			axis, _ = domain.AxisSlot(p.Axes, 0)
			return ports.Changes{}, domain.ErrNoChange
		}
		if auto && !p.AutoLock {
			return ports.Changes{}, domain.ErrNoChange
		}
		if err := p.Rules.ValidateForLock(); err != nil {
			return ports.Changes{}, err
		}
		if !p.Cells.Valid() {
			return ports.Changes{}, fmt.Errorf("%w: grid ids are not contiguous", domain.ErrInvalidCell)
		}

		now := c.cfg.Now()
		p.Locked = true
		p.LockedAt = &now
		a, created := domain.EnsureAxis(p, c.axes, 0, now)
		axis = a

		ch := ports.Changes{LockedTotalDelta: p.NetPot()}
		ch.Audit = append(ch.Audit, domain.NewAuditEvent(p.ID, domain.AuditPoolLocked, domain.LockKey(p.ID), map[string]any{
			"by":      actor.ID,
			"sold":    p.Cells.Sold(),
			"net_pot": p.NetPot(),
		}, now))
		if created {
			ch.Audit = append(ch.Audit, axisAudit(*p, a, now))
		}
		if p.Rules.FourSetAxis {
			// lock tardío: los periodos ya cerrados abren sus slots ahora
			for _, period := range domain.Checkpoints {
				slot, ok := domain.NextAxisSlot(period)
				if !ok || !p.Scores.Snapshot(period).Set {
					continue
				}
				if next, created := domain.EnsureAxis(p, c.axes, slot, now); created {
					ch.Audit = append(ch.Audit, axisAudit(*p, next, now))
				}
			}
		}

		// un lock tardío puede encontrarse periodos ya finalizados
		st.winners = domain.DeriveWinners(*p)
		ch.Winners = st.winners
		ch.Audit = append(ch.Audit, winnerAudits(*p, st.winners, nil, nil, now)...)
		p.Settled = domain.SettledBy(*p, st.winners)
		return ch, nil
	})
	if errors.Is(err, domain.ErrNoChange) {
		return axis, false, nil
	}
	if err != nil {
		return domain.AxisPair{}, false, fmt.Errorf("coordinator.%s %s: %w", op, poolID, err)
	}
	slog.Info("pool locked", "pool_id", poolID, "by", actor.ID)
	c.refreshLockedGauge(ctx)
	return axis, true, nil
}

func (c *Coordinator) refreshLockedGauge(ctx context.Context) {
	if c.metrics == nil {
		return
	}
	total, err := c.store.LockedTotal(ctx)
	if err != nil {
		slog.Warn("read locked total failed", "err", err)
		return
	}
	c.metrics.SetLockedPrize(total)
}
