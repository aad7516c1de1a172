package domain

import (
	crand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"
	"sync"
	"time"
)

// MaxAxisSlots is the number of axis pairs a four-set pool can hold.
const MaxAxisSlots = 4

// AxisPair maps the last digit of each team's score to a grid column (home)
// or row (away). Immutable once generated.
type AxisPair struct {
	Slot          int       `json:"slot"`
	TriggerPeriod int       `json:"trigger_period"`
	Home          [10]int   `json:"home"`
	Away          [10]int   `json:"away"`
	GeneratedAt   time.Time `json:"generated_at"`
}

// Valid reports whether both arrays are permutations of 0-9.
func (a AxisPair) Valid() bool {
	return isPermutation(a.Home) && isPermutation(a.Away)
}

func isPermutation(xs [10]int) bool {
	var seen [10]bool
	for _, x := range xs {
		if x < 0 || x > 9 || seen[x] {
			return false
		}
		seen[x] = true
	}
	return true
}

// AxisGenerator produces independent digit permutations. Safe for concurrent use.
type AxisGenerator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewAxisGenerator seeds a ChaCha8 source from crypto/rand.
func NewAxisGenerator() *AxisGenerator {
	var seed [32]byte
	if _, err := crand.Read(seed[:]); err != nil {
		// crypto/rand.Read does not fail on supported platforms
		binary.LittleEndian.PutUint64(seed[:], uint64(time.Now().UnixNano()))
	}
	return &AxisGenerator{rng: rand.New(rand.NewChaCha8(seed))}
}

// NewSeededAxisGenerator returns a deterministic generator for tests and
// offline simulation.
func NewSeededAxisGenerator(seed uint64) *AxisGenerator {
	return &AxisGenerator{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Generate builds a fresh pair with two independent Fisher-Yates shuffles.
func (g *AxisGenerator) Generate(slot int, now time.Time) AxisPair {
	g.mu.Lock()
	defer g.mu.Unlock()
	return AxisPair{
		Slot:          slot,
		TriggerPeriod: slot + 1,
		Home:          g.shuffle(),
		Away:          g.shuffle(),
		GeneratedAt:   now,
	}
}

// Intn exposes the generator for other random draws (administrative rollover draw).
func (g *AxisGenerator) Intn(n int) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rng.IntN(n)
}

func (g *AxisGenerator) shuffle() [10]int {
	var d [10]int
	for i := range d {
		d[i] = i
	}
	for i := len(d) - 1; i > 0; i-- {
		j := g.rng.IntN(i + 1)
		d[i], d[j] = d[j], d[i]
	}
	return d
}

// AxisSlot returns the stored pair for a slot.
func AxisSlot(axes []AxisPair, slot int) (AxisPair, bool) {
	for _, a := range axes {
		if a.Slot == slot {
			return a, true
		}
	}
	return AxisPair{}, false
}

// EnsureAxis generates the pair for slot unless it already exists. The second
// return value is true only when a new pair was created.
func EnsureAxis(p *Pool, g *AxisGenerator, slot int, now time.Time) (AxisPair, bool) {
	if a, ok := AxisSlot(p.Axes, slot); ok {
		return a, false
	}
	a := g.Generate(slot, now)
	p.Axes = append(p.Axes, a)
	return a, true
}

// NextAxisSlot returns the slot opened by finalizing period p in four-set
// mode: Q1 opens slot 1, Half slot 2, Q3 slot 3. Final opens none.
func NextAxisSlot(p Period) (int, bool) {
	switch p {
	case PeriodQ1:
		return 1, true
	case PeriodHalf:
		return 2, true
	case PeriodQ3:
		return 3, true
	}
	return 0, false
}

// ActiveAxis returns the pair in force at a live period: the latest
// generated pair whose trigger period is <= period, else the first.
func ActiveAxis(axes []AxisPair, period int) (AxisPair, bool) {
	if len(axes) == 0 {
		return AxisPair{}, false
	}
	best := -1
	for i, a := range axes {
		if a.TriggerPeriod > period {
			continue
		}
		if best < 0 || a.Slot > axes[best].Slot {
			best = i
		}
	}
	if best >= 0 {
		return axes[best], true
	}
	first := 0
	for i, a := range axes {
		if a.Slot < axes[first].Slot {
			first = i
		}
	}
	return axes[first], true
}
