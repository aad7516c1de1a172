package domain

import (
	"fmt"
	"time"
)

// Game status as reported by the score provider.
const (
	StatusPre   = "pre"
	StatusLive  = "in"
	StatusFinal = "post"
)

// regulationPeriods is the number of quarters before overtime.
const regulationPeriods = 4

// Score is a cumulative home/away pair.
type Score struct {
	Home int `json:"home"`
	Away int `json:"away"`
}

func (s Score) add(o Score) Score { return Score{Home: s.Home + o.Home, Away: s.Away + o.Away} }

// ScoreSnapshot is the cumulative score frozen at a period boundary.
// Once Set it is historical fact and never replaced.
type ScoreSnapshot struct {
	Score
	Set   bool       `json:"set"`
	SetAt *time.Time `json:"set_at,omitempty"`
}

// Phase is the live game-phase metadata.
type Phase struct {
	Status string `json:"status"`
	Period int    `json:"period"`
	Clock  string `json:"clock,omitempty"`
}

// ScoreState holds everything the pool knows about the game score.
type ScoreState struct {
	Q1      ScoreSnapshot `json:"q1"`
	Half    ScoreSnapshot `json:"half"`
	Q3      ScoreSnapshot `json:"q3"`
	Final   ScoreSnapshot `json:"final"`
	Current Score         `json:"current"`
	Phase   Phase         `json:"phase"`
}

// Snapshot returns the snapshot for a checkpoint period.
func (s *ScoreState) Snapshot(p Period) *ScoreSnapshot {
	switch p {
	case PeriodQ1:
		return &s.Q1
	case PeriodHalf:
		return &s.Half
	case PeriodQ3:
		return &s.Q3
	case PeriodFinal:
		return &s.Final
	}
	return nil
}

// Ended reports whether the provider marked the game as over.
func (s ScoreState) Ended() bool { return s.Phase.Status == StatusFinal }

// ScoreEvent is an immutable entry of the score-change log.
type ScoreEvent struct {
	ID          string    `json:"id"`
	Seq         int       `json:"seq"`
	Home        int       `json:"home"`
	Away        int       `json:"away"`
	Period      int       `json:"period"`
	Description string    `json:"description,omitempty"`
	At          time.Time `json:"at"`
	Overtime    bool      `json:"overtime,omitempty"`
}

// TeamLine is one team's side of a provider summary, already parsed.
// Deltas are per-period points (not cumulative).
type TeamLine struct {
	Abbrev   string
	Name     string
	Deltas   []int
	Total    int
	HasTotal bool
}

// delta returns the points scored in period n (1-based); missing periods are 0.
func (t TeamLine) delta(n int) int {
	if n < 1 || n > len(t.Deltas) {
		return 0
	}
	return t.Deltas[n-1]
}

func (t TeamLine) sum() int {
	total := 0
	for _, d := range t.Deltas {
		total += d
	}
	return total
}

// ScoringPlay is a discrete scoring play reported by the provider, with the
// running score after the play.
type ScoringPlay struct {
	ID     string
	Home   int
	Away   int
	Period int
	Text   string
}

// GameFeed is a provider summary converted at the ingestion boundary.
type GameFeed struct {
	EventID string
	Status  string
	Period  int
	Clock   string
	Home    TeamLine
	Away    TeamLine
	Plays   []ScoringPlay
}

// NormalizeResult is the outcome of applying a feed to the stored state.
type NormalizeResult struct {
	State      ScoreState
	Events     []ScoreEvent
	NewEvents  []ScoreEvent
	NewlyFinal []Period
	Changed    bool
}

// Cumulative converts the feed's per-period deltas into boundary scores.
// Final uses the provider's running total once the game went to overtime.
func Cumulative(feed GameFeed) (q1, half, q3, final Score) {
	period := func(n int) Score {
		return Score{Home: feed.Home.delta(n), Away: feed.Away.delta(n)}
	}
	q1 = period(1)
	half = q1.add(period(2))
	q3 = half.add(period(3))
	final = q3.add(period(4))
	if feed.Period > regulationPeriods && feed.Home.HasTotal && feed.Away.HasTotal {
		final = Score{Home: feed.Home.Total, Away: feed.Away.Total}
	}
	return q1, half, q3, final
}

// PeriodIsFinal reports whether a checkpoint is over given the live phase.
func PeriodIsFinal(p Period, livePeriod int, ended bool) bool {
	if ended {
		return true
	}
	if p == PeriodFinal {
		return false
	}
	return livePeriod > p.Number()
}

// Normalize applies a provider feed to the previous state. It never fails and
// never replaces a snapshot that is already set.
func Normalize(prev ScoreState, log []ScoreEvent, feed GameFeed, now time.Time) NormalizeResult {
	res := NormalizeResult{State: prev, Events: log}
	state := &res.State

	phase := Phase{Status: feed.Status, Period: feed.Period, Clock: feed.Clock}
	if prev.Ended() && phase.Status != StatusFinal {
		// stale provider data after the game ended
		phase = prev.Phase
	}
	if phase != prev.Phase {
		state.Phase = phase
		res.Changed = true
	}

	current := Score{Home: feed.Home.sum(), Away: feed.Away.sum()}
	if feed.Home.HasTotal && feed.Away.HasTotal {
		current = Score{Home: feed.Home.Total, Away: feed.Away.Total}
	}
	if current != prev.Current {
		state.Current = current
		res.Changed = true
	}

	q1, half, q3, final := Cumulative(feed)
	values := map[Period]Score{PeriodQ1: q1, PeriodHalf: half, PeriodQ3: q3, PeriodFinal: final}
	ended := state.Ended()
	for _, p := range Checkpoints {
		snap := state.Snapshot(p)
		if snap.Set || !PeriodIsFinal(p, state.Phase.Period, ended) {
			continue
		}
		at := now
		*snap = ScoreSnapshot{Score: values[p], Set: true, SetAt: &at}
		res.NewlyFinal = append(res.NewlyFinal, p)
		res.Changed = true
	}

	res.NewEvents = newEvents(log, prev.Current, current, feed, now)
	if len(res.NewEvents) > 0 {
		res.Events = append(append([]ScoreEvent(nil), log...), res.NewEvents...)
		res.Changed = true
	}
	return res
}

// newEvents returns the scoring events not yet in the log. Provider plays are
// matched by id; without plays a change of the current score is logged.
func newEvents(log []ScoreEvent, prevCurrent, current Score, feed GameFeed, now time.Time) []ScoreEvent {
	known := make(map[string]bool, len(log))
	for _, e := range log {
		known[e.ID] = true
	}
	seq := len(log)

	var out []ScoreEvent
	if len(feed.Plays) > 0 {
		for _, p := range feed.Plays {
			if p.ID == "" || known[p.ID] {
				continue
			}
			known[p.ID] = true
			seq++
			out = append(out, ScoreEvent{
				ID:          p.ID,
				Seq:         seq,
				Home:        p.Home,
				Away:        p.Away,
				Period:      p.Period,
				Description: p.Text,
				At:          now,
				Overtime:    p.Period > regulationPeriods,
			})
		}
		return out
	}

	if current == prevCurrent || feed.Status == StatusPre {
		return nil
	}
	seq++
	return []ScoreEvent{{
		ID:          fmt.Sprintf("seq-%d", seq),
		Seq:         seq,
		Home:        current.Home,
		Away:        current.Away,
		Period:      feed.Period,
		Description: fmt.Sprintf("score %d-%d (P%d %s)", current.Home, current.Away, feed.Period, feed.Clock),
		At:          now,
		Overtime:    feed.Period > regulationPeriods,
	}}
}
