package domain

// axisFor picks the pair used to resolve a live period. Single-set pools
// always use slot 0.
func axisFor(p Pool, period int) (AxisPair, bool) {
	if p.Rules.FourSetAxis {
		return ActiveAxis(p.Axes, period)
	}
	return AxisSlot(p.Axes, 0)
}

// PayoutInputFor resolves every finalized checkpoint and logged event of the
// pool against its grid and axes. A pool without axes resolves nothing.
func PayoutInputFor(p Pool) PayoutInput {
	in := PayoutInput{
		Rules:    p.Rules,
		Sold:     p.Cells.Sold(),
		GameOver: p.Scores.Ended() && p.Scores.Final.Set,
		Draw:     p.Draw,
	}
	if len(p.Axes) == 0 {
		return in
	}

	for _, period := range Checkpoints {
		snap := p.Scores.Snapshot(period)
		if !snap.Set {
			continue
		}
		axis, ok := axisFor(p, period.Number())
		if !ok {
			continue
		}
		in.Periods = append(in.Periods, PeriodResult{
			Period:     period,
			Candidates: Resolve(period, snap.Home, snap.Away, axis, p.Cells, p.Rules.ReverseWinners),
		})
	}

	if p.Rules.Mode.EveryScore() {
		for _, e := range p.Events {
			axis, ok := axisFor(p, e.Period)
			if !ok {
				continue
			}
			in.Events = append(in.Events, EventResult{
				Event:      e,
				Candidates: Resolve(PeriodEvent, e.Home, e.Away, axis, p.Cells, p.Rules.ReverseWinners),
			})
		}
	}
	return in
}

// DeriveWinners recomputes the full winner set from stored pool state. The
// result is never nil so callers can use it to replace a stored set.
func DeriveWinners(p Pool) []Winner {
	ws := CalculatePayouts(PayoutInputFor(p))
	if ws == nil {
		ws = []Winner{}
	}
	return ws
}

// SettledBy reports whether the pool is terminal given its derived winners:
// Final is set and no rollover awaits a draw.
func SettledBy(p Pool, winners []Winner) bool {
	return p.Locked && p.Scores.Final.Set && !HasPendingDraw(winners)
}
