package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alejandrodnm/squarebot/internal/domain"
	"github.com/alejandrodnm/squarebot/internal/ports"
)

// FeedResult resume lo que un ApplyFeed confirmó.
type FeedResult struct {
	Changed    bool
	NewlyFinal []domain.Period
	NewEvents  int
	Audit      int
	Settled    bool
}

// ApplyFeed normaliza el feed contra el último estado confirmado y, si algo
// cambió, confirma scores, ejes nuevos, winners y auditoría en una sola tx.
// Se re-normaliza en cada intento: el feed es la entrada, no el snapshot que
// leyó el poller.
func (c *Coordinator) ApplyFeed(ctx context.Context, poolID string, feed domain.GameFeed) (FeedResult, error) {
	var res FeedResult
	commit, err := c.update(ctx, "ApplyFeed", poolID, func(p *domain.Pool, st *attempt) (ports.Changes, error) {
		res = FeedResult{}
		now := c.cfg.Now()

		norm := domain.Normalize(p.Scores, p.Events, feed, now)
		if !norm.Changed {
			return ports.Changes{}, domain.ErrNoChange
		}
		p.Scores = norm.State
		p.Events = norm.Events

		var ch ports.Changes
		finalized := make(map[domain.Period]bool, len(norm.NewlyFinal))
		for _, period := range norm.NewlyFinal {
			finalized[period] = true
			ch.Audit = append(ch.Audit, periodAudit(*p, period, now))
		}

		if !p.Locked {
			// sin ejes no hay winners; un lock posterior los deriva
			res = FeedResult{Changed: true, NewlyFinal: norm.NewlyFinal, NewEvents: len(norm.NewEvents)}
			return ch, nil
		}

		if p.Rules.FourSetAxis {
			for _, period := range norm.NewlyFinal {
				slot, ok := domain.NextAxisSlot(period)
				if !ok {
					continue
				}
				if a, created := domain.EnsureAxis(p, c.axes, slot, now); created {
					ch.Audit = append(ch.Audit, axisAudit(*p, a, now))
				}
			}
		}

		newEvents := make(map[string]bool, len(norm.NewEvents))
		for _, e := range norm.NewEvents {
			newEvents[e.ID] = true
		}

		st.winners = domain.DeriveWinners(*p)
		ch.Winners = st.winners
		ch.Audit = append(ch.Audit, winnerAudits(*p, st.winners, finalized, newEvents, now)...)
		p.Settled = domain.SettledBy(*p, st.winners)

		res = FeedResult{
			Changed:    true,
			NewlyFinal: norm.NewlyFinal,
			NewEvents:  len(norm.NewEvents),
			Settled:    p.Settled,
		}
		return ch, nil
	})
	if errors.Is(err, domain.ErrNoChange) {
		return FeedResult{}, nil
	}
	if err != nil {
		return FeedResult{}, fmt.Errorf("coordinator.ApplyFeed %s: %w", poolID, err)
	}

	res.Audit = len(commit.Audit)
	for _, period := range res.NewlyFinal {
		slog.Info("period finalized", "pool_id", poolID, "period", period)
	}
	if res.Settled {
		slog.Info("pool settled", "pool_id", poolID)
	}
	return res, nil
}
