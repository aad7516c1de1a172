package domain

import "time"

// GridSize is the number of claimable cells on a squares board.
const GridSize = 100

// Period is a scoring checkpoint of the game, or one of the tags used for
// per-event payouts.
type Period string

const (
	PeriodQ1    Period = "q1"
	PeriodHalf  Period = "half"
	PeriodQ3    Period = "q3"
	PeriodFinal Period = "final"
	PeriodEvent Period = "Event"
	PeriodBonus Period = "Bonus"
)

// Checkpoints lists the four canonical periods in game order.
var Checkpoints = [4]Period{PeriodQ1, PeriodHalf, PeriodQ3, PeriodFinal}

// Number returns the live period index at which the checkpoint is scored
// (Q1=1, Half=2, Q3=3, Final=4). Non-checkpoint tags return 0.
func (p Period) Number() int {
	switch p {
	case PeriodQ1:
		return 1
	case PeriodHalf:
		return 2
	case PeriodQ3:
		return 3
	case PeriodFinal:
		return 4
	}
	return 0
}

// Cell is one position of the 10x10 grid.
type Cell struct {
	ID    int    `json:"id"`
	Owner string `json:"owner,omitempty"`
	Paid  bool   `json:"paid,omitempty"`
}

func (c Cell) Row() int { return c.ID / 10 }

func (c Cell) Col() int { return c.ID % 10 }

// Claimed reports whether the cell has an owner.
func (c Cell) Claimed() bool { return c.Owner != "" }

// Grid is the full board, indexed by cell id.
type Grid [GridSize]Cell

// NewGrid returns an empty board with contiguous ids 0-99.
func NewGrid() Grid {
	var g Grid
	for i := range g {
		g[i].ID = i
	}
	return g
}

// Valid reports whether every cell id matches its position.
func (g Grid) Valid() bool {
	for i, c := range g {
		if c.ID != i {
			return false
		}
	}
	return true
}

// Sold counts claimed cells.
func (g Grid) Sold() int {
	n := 0
	for _, c := range g {
		if c.Claimed() {
			n++
		}
	}
	return n
}

// Owners returns the distinct owners in cell order.
func (g Grid) Owners() []string {
	seen := make(map[string]bool)
	var out []string
	for _, c := range g {
		if c.Claimed() && !seen[c.Owner] {
			seen[c.Owner] = true
			out = append(out, c.Owner)
		}
	}
	return out
}

// Game is the sporting event a pool is tied to.
type Game struct {
	EventID   string    `json:"event_id"`
	Sport     string    `json:"sport"`
	League    string    `json:"league"`
	HomeTeam  string    `json:"home_team"`
	AwayTeam  string    `json:"away_team"`
	StartTime time.Time `json:"start_time"`
}

// DrawResult records the administrative random draw that settles a pending
// final rollover.
type DrawResult struct {
	CellID  int       `json:"cell_id"`
	Owner   string    `json:"owner"`
	DrawnBy string    `json:"drawn_by"`
	DrawnAt time.Time `json:"drawn_at"`
}

// Pool is the aggregate root. Only the store mutates it, through the
// coordinator; everything else works on copies.
type Pool struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	OwnerID  string       `json:"owner_id"`
	Game     Game         `json:"game"`
	Cells    Grid         `json:"cells"`
	Scores   ScoreState   `json:"scores"`
	Axes     []AxisPair   `json:"axes,omitempty"`
	Rules    Rules        `json:"rules"`
	Events   []ScoreEvent `json:"events,omitempty"`
	Locked   bool         `json:"locked"`
	LockedAt *time.Time   `json:"locked_at,omitempty"`
	AutoLock bool         `json:"auto_lock"`
	Draw     *DrawResult  `json:"draw,omitempty"`
	Settled  bool         `json:"settled"`

	// Version is the optimistic concurrency token maintained by the store.
	Version int64 `json:"-"`
}

// NetPot returns the distributable pot for the currently sold cells.
func (p Pool) NetPot() float64 {
	return NetPot(p.Cells.Sold(), p.Rules.CostPerCell, p.Rules.CharityPct)
}

// PreGame reports whether the provider has not started the game yet.
func (p Pool) PreGame() bool {
	return p.Scores.Phase.Status == "" || p.Scores.Phase.Status == StatusPre
}

// Clone returns a deep copy so callers can mutate without aliasing slices.
func (p Pool) Clone() Pool {
	c := p
	if p.Axes != nil {
		c.Axes = append([]AxisPair(nil), p.Axes...)
	}
	if p.Events != nil {
		c.Events = append([]ScoreEvent(nil), p.Events...)
	}
	if p.LockedAt != nil {
		t := *p.LockedAt
		c.LockedAt = &t
	}
	if p.Draw != nil {
		d := *p.Draw
		c.Draw = &d
	}
	c.Rules.PayoutPct = clonePct(p.Rules.PayoutPct)
	return c
}

func clonePct(m map[Period]float64) map[Period]float64 {
	if m == nil {
		return nil
	}
	out := make(map[Period]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Winner is a derived payout record. It is recomputed from pool state and
// never edited by hand.
type Winner struct {
	Period      Period  `json:"period"`
	EventID     string  `json:"event_id,omitempty"`
	CellID      int     `json:"cell_id"`
	Owner       string  `json:"owner,omitempty"`
	Amount      float64 `json:"amount"`
	HomeDigit   int     `json:"home_digit"`
	AwayDigit   int     `json:"away_digit"`
	IsReverse   bool    `json:"is_reverse,omitempty"`
	IsRollover  bool    `json:"is_rollover,omitempty"`
	IsPending   bool    `json:"is_pending,omitempty"`
	Unclaimed   bool    `json:"unclaimed,omitempty"`
	Description string  `json:"description,omitempty"`
}
