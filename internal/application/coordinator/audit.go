package coordinator

import (
	"time"

	"github.com/alejandrodnm/squarebot/internal/domain"
)

// winnerAudits emite winner_computed para los winners con dueño real.
// periods/events limitan la emisión a lo recién finalizado; nil = todos.
// La dedupe_key hace que repetirlo sea inocuo.
func winnerAudits(p domain.Pool, winners []domain.Winner, periods map[domain.Period]bool, events map[string]bool, now time.Time) []domain.AuditEvent {
	var out []domain.AuditEvent
	for _, w := range winners {
		if w.Owner == "" || w.IsPending || w.Unclaimed {
			continue
		}

		var key string
		switch {
		case w.Period == domain.PeriodEvent:
			if events != nil && !events[w.EventID] {
				continue
			}
			key = domain.EventWinnerKey(p.ID, w.EventID, w.CellID)
		case w.IsRollover && w.Period == domain.PeriodFinal:
			if periods != nil && !periods[domain.PeriodFinal] && p.Draw == nil {
				continue
			}
			key = domain.RolloverKey(p.ID)
		default:
			if periods != nil && !periods[w.Period] {
				continue
			}
			key = domain.WinnerKey(p.ID, w.Period, w.HomeDigit, w.AwayDigit, w.CellID)
		}

		payload := map[string]any{
			"period":     string(w.Period),
			"cell":       w.CellID,
			"owner":      w.Owner,
			"amount":     w.Amount,
			"home_digit": w.HomeDigit,
			"away_digit": w.AwayDigit,
		}
		if w.IsReverse {
			payload["reverse"] = true
		}
		if w.IsRollover {
			payload["rollover"] = true
		}
		if w.EventID != "" {
			payload["event_id"] = w.EventID
		}
		out = append(out, domain.NewAuditEvent(p.ID, domain.AuditWinnerComputed, key, payload, now))
	}
	return out
}

func axisAudit(p domain.Pool, a domain.AxisPair, now time.Time) domain.AuditEvent {
	return domain.NewAuditEvent(p.ID, domain.AuditDigitsGenerated, domain.AxisKey(p.ID, a.Slot), map[string]any{
		"slot":           a.Slot,
		"trigger_period": a.TriggerPeriod,
		"home":           a.Home[:],
		"away":           a.Away[:],
	}, now)
}

func periodAudit(p domain.Pool, period domain.Period, now time.Time) domain.AuditEvent {
	snap := p.Scores.Snapshot(period)
	return domain.NewAuditEvent(p.ID, domain.AuditPeriodFinalized, domain.PeriodKey(p.ID, period), map[string]any{
		"period": string(period),
		"home":   snap.Home,
		"away":   snap.Away,
	}, now)
}
