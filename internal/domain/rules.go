package domain

import (
	"fmt"
	"math"
)

// PayoutMode selects how the net pot is distributed.
type PayoutMode string

const (
	ModeStandard         PayoutMode = "standard"
	ModeEveryScoreEqual  PayoutMode = "every_score_equal"
	ModeEveryScoreHybrid PayoutMode = "every_score_hybrid"
)

// EveryScore reports whether the mode pays per scoring event.
func (m PayoutMode) EveryScore() bool {
	return m == ModeEveryScoreEqual || m == ModeEveryScoreHybrid
}

// FinalRolloverPolicy decides who receives the rollover balance when the
// Final period lands on an unclaimed cell.
type FinalRolloverPolicy string

const (
	FinalToLastWinner FinalRolloverPolicy = "last_winner"
	FinalAdminDraw    FinalRolloverPolicy = "admin_draw"
)

// UnsoldEventPolicy decides what happens to an event share won by an
// unclaimed cell.
type UnsoldEventPolicy string

const (
	UnsoldRolloverNext UnsoldEventPolicy = "rollover_next"
	UnsoldHouse        UnsoldEventPolicy = "house"
	// UnsoldSplitPrevious has no defined distribution rule and is rejected.
	UnsoldSplitPrevious UnsoldEventPolicy = "split_previous_winners"
)

// Rules is the payout configuration and rule-variation flags of a pool.
type Rules struct {
	CostPerCell float64            `json:"cost_per_cell" yaml:"cost_per_cell"`
	PayoutPct   map[Period]float64 `json:"payout_pct" yaml:"payout_pct"`
	CharityPct  float64            `json:"charity_pct" yaml:"charity_pct"`
	Mode        PayoutMode         `json:"mode" yaml:"mode"`

	// Hybrid reserves, in percent of the net pot.
	HybridFinalPct float64 `json:"hybrid_final_pct" yaml:"hybrid_final_pct"`
	HybridHalfPct  float64 `json:"hybrid_half_pct" yaml:"hybrid_half_pct"`

	ReverseWinners        bool                `json:"reverse_winners" yaml:"reverse_winners"`
	FourSetAxis           bool                `json:"four_set_axis" yaml:"four_set_axis"`
	QuarterlyRollover     bool                `json:"quarterly_rollover" yaml:"quarterly_rollover"`
	FinalRollover         FinalRolloverPolicy `json:"final_rollover" yaml:"final_rollover"`
	UnsoldEvents          UnsoldEventPolicy   `json:"unsold_events" yaml:"unsold_events"`
	IncludeOvertimeEvents bool                `json:"include_overtime_events" yaml:"include_overtime_events"`

	// CoalesceTouchdownPAT would merge a touchdown with its extra point into a
	// single payable event. No merge algorithm is defined, so it is rejected.
	CoalesceTouchdownPAT bool `json:"coalesce_touchdown_pat,omitempty" yaml:"coalesce_touchdown_pat"`
}

// DefaultRules is a plain quarterly pool: 20/20/20/40, no rollover.
func DefaultRules() Rules {
	return Rules{
		CostPerCell: 10,
		PayoutPct: map[Period]float64{
			PeriodQ1: 20, PeriodHalf: 20, PeriodQ3: 20, PeriodFinal: 40,
		},
		Mode:          ModeStandard,
		FinalRollover: FinalToLastWinner,
		UnsoldEvents:  UnsoldRolloverNext,
	}
}

const pctTolerance = 1e-6

// Validate rejects configurations that are inconsistent or that ask for
// behavior with no defined semantics.
func (r Rules) Validate() error {
	if r.CostPerCell < 0 {
		return fmt.Errorf("%w: negative cost per cell", ErrInvalidRules)
	}
	if r.CharityPct < 0 || r.CharityPct > 100 {
		return fmt.Errorf("%w: charity pct %.2f out of range", ErrInvalidRules, r.CharityPct)
	}
	switch r.Mode {
	case ModeStandard, ModeEveryScoreEqual:
	case ModeEveryScoreHybrid:
		if r.HybridFinalPct < 0 || r.HybridHalfPct < 0 {
			return fmt.Errorf("%w: negative hybrid weight", ErrInvalidRules)
		}
		if r.HybridFinalPct+r.HybridHalfPct > 100+pctTolerance {
			return fmt.Errorf("%w: hybrid weights sum to %.2f%%", ErrInvalidRules, r.HybridFinalPct+r.HybridHalfPct)
		}
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidRules, r.Mode)
	}

	sum := 0.0
	for p, pct := range r.PayoutPct {
		if p.Number() == 0 {
			return fmt.Errorf("%w: payout pct for unknown period %q", ErrInvalidRules, p)
		}
		if pct < 0 {
			return fmt.Errorf("%w: negative payout pct for %s", ErrInvalidRules, p)
		}
		sum += pct
	}
	if r.Mode == ModeStandard && sum > 100+pctTolerance {
		return fmt.Errorf("%w: payout pct sum to %.2f%%", ErrInvalidRules, sum)
	}

	switch r.FinalRollover {
	case "", FinalToLastWinner, FinalAdminDraw:
	default:
		return fmt.Errorf("%w: unknown final rollover policy %q", ErrInvalidRules, r.FinalRollover)
	}
	switch r.UnsoldEvents {
	case "", UnsoldRolloverNext, UnsoldHouse:
	case UnsoldSplitPrevious:
		return fmt.Errorf("%w: unsold policy %q has no distribution rule", ErrInvalidRules, r.UnsoldEvents)
	default:
		return fmt.Errorf("%w: unknown unsold policy %q", ErrInvalidRules, r.UnsoldEvents)
	}
	if r.CoalesceTouchdownPAT {
		return fmt.Errorf("%w: touchdown/extra-point coalescing is not supported", ErrInvalidRules)
	}
	return nil
}

// ValidateForLock is Validate plus the go-live requirement that a standard
// pool distributes the whole pot.
func (r Rules) ValidateForLock() error {
	if err := r.Validate(); err != nil {
		return err
	}
	if r.Mode != ModeStandard {
		return nil
	}
	sum := 0.0
	for _, pct := range r.PayoutPct {
		sum += pct
	}
	if math.Abs(sum-100) > pctTolerance {
		return fmt.Errorf("%w: payout pct sum to %.2f%%, want 100%%", ErrInvalidRules, sum)
	}
	return nil
}

// NetPot is the distributable pot after the charity deduction.
func NetPot(sold int, costPerCell, charityPct float64) float64 {
	if sold <= 0 || costPerCell <= 0 {
		return 0
	}
	return float64(sold) * costPerCell * (1 - charityPct/100)
}
