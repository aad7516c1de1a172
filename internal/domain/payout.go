package domain

import (
	"fmt"
	"sort"
)

// PeriodResult holds the resolved candidates of a finalized checkpoint.
type PeriodResult struct {
	Period     Period
	Candidates []Candidate
}

// EventResult holds the resolved candidates of a logged scoring event.
type EventResult struct {
	Event      ScoreEvent
	Candidates []Candidate
}

// PayoutInput is everything the calculator needs; it holds no references to
// the store so the calculation can be replayed offline.
type PayoutInput struct {
	Rules    Rules
	Sold     int
	Periods  []PeriodResult
	Events   []EventResult
	GameOver bool
	Draw     *DrawResult
}

// CalculatePayouts turns resolved winners into amounts. It never fails: bad
// input yields fewer or zero-amount entries, never a panic. When every
// rollover chain resolves to a real owner the emitted amounts sum to the net pot.
func CalculatePayouts(in PayoutInput) []Winner {
	net := NetPot(in.Sold, in.Rules.CostPerCell, in.Rules.CharityPct)
	periods := sortedPeriods(in.Periods)
	pc := &periodCalc{rules: in.Rules, draw: in.Draw}

	switch in.Rules.Mode {
	case ModeEveryScoreEqual:
		return payEvents(in.Rules, in.Events, net, in.GameOver)

	case ModeEveryScoreHybrid:
		finalReserve := net * clampPct(in.Rules.HybridFinalPct) / 100
		halfReserve := net * clampPct(in.Rules.HybridHalfPct) / 100
		remainder := net - finalReserve - halfReserve
		if remainder < 0 {
			remainder = 0
		}
		out := payEvents(in.Rules, in.Events, remainder, in.GameOver)
		for _, pr := range periods {
			switch pr.Period {
			case PeriodHalf:
				out = append(out, pc.pay(pr, halfReserve)...)
			case PeriodFinal:
				out = append(out, pc.pay(pr, finalReserve)...)
			}
		}
		return out

	default:
		var out []Winner
		for _, pr := range periods {
			alloc := net * clampPct(in.Rules.PayoutPct[pr.Period]) / 100
			out = append(out, pc.pay(pr, alloc)...)
		}
		return out
	}
}

// TotalPaid sums the amount of every entry.
func TotalPaid(ws []Winner) float64 {
	total := 0.0
	for _, w := range ws {
		total += w.Amount
	}
	return total
}

// HasPendingDraw reports whether a final rollover awaits the admin draw.
func HasPendingDraw(ws []Winner) bool {
	for _, w := range ws {
		if w.IsPending {
			return true
		}
	}
	return false
}

// periodCalc carries the rollover balance across checkpoints.
type periodCalc struct {
	rules    Rules
	draw     *DrawResult
	rollover float64
	last     *Winner
}

func (c *periodCalc) pay(pr PeriodResult, alloc float64) []Winner {
	amount := alloc
	carried := 0.0
	if c.rules.QuarterlyRollover {
		carried = c.rollover
		amount += carried
		c.rollover = 0
	}

	var out []Winner
	if len(pr.Candidates) == 0 {
		if c.rules.QuarterlyRollover {
			c.rollover += amount
		} else {
			out = append(out, Winner{Period: pr.Period, CellID: -1, Amount: amount, Unclaimed: true, Description: "unresolved"})
		}
	}

	share := 0.0
	if n := len(pr.Candidates); n > 0 {
		share = amount / float64(n)
	}
	for _, cand := range pr.Candidates {
		w := winnerFrom(cand, pr.Period)
		switch {
		case !cand.Unclaimed():
			w.Amount = share
			if carried > 0 {
				w.Description = fmt.Sprintf("includes %.2f rollover", carried/float64(len(pr.Candidates)))
			}
			c.last = &w
		case c.rules.QuarterlyRollover:
			w.Unclaimed = true
			w.IsRollover = true
			w.Description = "unclaimed, rolled over"
			c.rollover += share
		default:
			w.Unclaimed = true
			w.Amount = share
			w.Description = "unclaimed, kept by house"
		}
		out = append(out, w)
	}

	if pr.Period == PeriodFinal && c.rollover > 0 {
		out = append(out, c.settleFinal())
	}
	return out
}

// settleFinal resolves the rollover balance left after the Final period.
func (c *periodCalc) settleFinal() Winner {
	balance := c.rollover
	c.rollover = 0

	if c.rules.FinalRollover != FinalAdminDraw && c.last != nil {
		return Winner{
			Period:      PeriodFinal,
			CellID:      c.last.CellID,
			Owner:       c.last.Owner,
			Amount:      balance,
			HomeDigit:   c.last.HomeDigit,
			AwayDigit:   c.last.AwayDigit,
			IsRollover:  true,
			Description: "rollover awarded to most recent winner",
		}
	}
	if c.draw != nil {
		return Winner{
			Period:      PeriodFinal,
			CellID:      c.draw.CellID,
			Owner:       c.draw.Owner,
			Amount:      balance,
			IsRollover:  true,
			Description: "rollover awarded by draw",
		}
	}
	return Winner{
		Period:      PeriodFinal,
		CellID:      -1,
		Amount:      balance,
		IsRollover:  true,
		IsPending:   true,
		Description: "rollover pending admin draw",
	}
}

// PayableEvents filters the event log down to the payable population:
// score changes only, overtime excluded unless enabled.
func PayableEvents(rules Rules, events []EventResult) []EventResult {
	var out []EventResult
	prev := Score{}
	for _, er := range events {
		cur := Score{Home: er.Event.Home, Away: er.Event.Away}
		changed := cur != prev
		prev = cur
		if !changed {
			continue
		}
		if er.Event.Overtime && !rules.IncludeOvertimeEvents {
			continue
		}
		out = append(out, er)
	}
	return out
}

// payEvents splits pot equally across payable events, applying the unsold
// policy to shares that land on unclaimed cells.
func payEvents(rules Rules, events []EventResult, pot float64, gameOver bool) []Winner {
	valid := PayableEvents(rules, events)
	if len(valid) == 0 {
		if gameOver && pot > 0 {
			return []Winner{bonusEntry(pot)}
		}
		return nil
	}

	share := pot / float64(len(valid))
	carry := 0.0
	var out []Winner
	for _, er := range valid {
		amount := share + carry
		carry = 0

		cands := er.Candidates
		if len(cands) == 0 {
			cands = []Candidate{{Period: PeriodEvent, CellID: -1}}
		}
		split := amount / float64(len(cands))
		for _, cand := range cands {
			w := winnerFrom(cand, PeriodEvent)
			w.EventID = er.Event.ID
			w.Description = er.Event.Description
			switch {
			case !cand.Unclaimed():
				w.Amount = split
			case rules.UnsoldEvents == UnsoldHouse:
				w.Unclaimed = true
				w.Amount = split
			default:
				w.Unclaimed = true
				w.IsRollover = true
				carry += split
			}
			out = append(out, w)
		}
	}

	if carry > 0 && gameOver {
		out = append(out, bonusEntry(carry))
	}
	return out
}

func bonusEntry(amount float64) Winner {
	return Winner{
		Period:      PeriodBonus,
		CellID:      -1,
		Amount:      amount,
		Unclaimed:   true,
		IsRollover:  true,
		Description: "unclaimed bonus",
	}
}

func winnerFrom(c Candidate, p Period) Winner {
	return Winner{
		Period:    p,
		CellID:    c.CellID,
		Owner:     c.Owner,
		HomeDigit: c.HomeDigit,
		AwayDigit: c.AwayDigit,
		IsReverse: c.IsReverse,
	}
}

func sortedPeriods(in []PeriodResult) []PeriodResult {
	out := make([]PeriodResult, 0, len(in))
	for _, pr := range in {
		if pr.Period.Number() > 0 {
			out = append(out, pr)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Period.Number() < out[j].Period.Number()
	})
	return out
}

func clampPct(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
