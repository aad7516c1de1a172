package coordinator_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/squarebot/internal/adapters/storage"
	"github.com/alejandrodnm/squarebot/internal/application/coordinator"
	"github.com/alejandrodnm/squarebot/internal/domain"
	"github.com/alejandrodnm/squarebot/internal/ports"
)

// --- fakes ---

type recordingNotifier struct {
	mu     sync.Mutex
	events []domain.AuditEvent
}

func (n *recordingNotifier) NotifyAudit(_ context.Context, _ domain.Pool, events []domain.AuditEvent, _ []domain.Winner) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, events...)
	return nil
}

func (n *recordingNotifier) count(kind domain.AuditKind) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, e := range n.events {
		if e.Kind == kind {
			c++
		}
	}
	return c
}

// conflictStore falla las primeras `fail` escrituras con ErrConflict, como si
// otro escritor hubiera confirmado entre la lectura y la escritura.
type conflictStore struct {
	ports.PoolStore
	mu    sync.Mutex
	fail  int
	calls int
}

func (s *conflictStore) UpdatePool(ctx context.Context, poolID string, fn ports.MutateFunc) (ports.Commit, error) {
	s.mu.Lock()
	s.calls++
	failNow := s.fail > 0
	if failNow {
		s.fail--
	}
	s.mu.Unlock()

	if failNow {
		p, err := s.PoolStore.GetPool(ctx, poolID)
		if err != nil {
			return ports.Commit{}, err
		}
		if _, err := fn(&p); err != nil {
			return ports.Commit{}, err
		}
		return ports.Commit{}, fmt.Errorf("fake: %w", domain.ErrConflict)
	}
	return s.PoolStore.UpdatePool(ctx, poolID, fn)
}

// --- fixture ---

var kickoff = time.Date(2026, 2, 8, 23, 30, 0, 0, time.UTC)

type fixture struct {
	store    *storage.SQLiteStore
	notifier *recordingNotifier
	coord    *coordinator.Coordinator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := storage.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	n := &recordingNotifier{}
	cfg := coordinator.Config{RetryBackoff: time.Millisecond, Now: func() time.Time { return kickoff }}
	return &fixture{
		store:    store,
		notifier: n,
		coord:    coordinator.New(cfg, store, n, domain.NewSeededAxisGenerator(42), nil),
	}
}

// createPool da de alta un pool con todas las celdas vendidas salvo skip.
func (f *fixture) createPool(t *testing.T, rules domain.Rules, skip ...int) domain.Pool {
	t.Helper()
	ctx := context.Background()
	p, err := f.coord.Create(ctx, coordinator.NewPool{
		Name:    "Big Game",
		OwnerID: "owner-1",
		Game:    domain.Game{EventID: "401547417", Sport: "football", League: "nfl", StartTime: kickoff},
		Rules:   rules,
	})
	require.NoError(t, err)

	skipped := make(map[int]bool)
	for _, s := range skip {
		skipped[s] = true
	}
	for i := 0; i < domain.GridSize; i++ {
		if skipped[i] {
			continue
		}
		require.NoError(t, f.coord.Claim(ctx, p.ID, i, fmt.Sprintf("user-%02d", i)))
	}
	return p
}

func (f *fixture) auditCount(t *testing.T, poolID string, kind domain.AuditKind) int {
	t.Helper()
	events, err := f.store.AuditEvents(context.Background(), poolID)
	require.NoError(t, err)
	n := 0
	for _, e := range events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

func liveFeed(status string, period int, home, away []int) domain.GameFeed {
	return domain.GameFeed{
		EventID: "401547417",
		Status:  status,
		Period:  period,
		Home:    domain.TeamLine{Abbrev: "KC", Deltas: home},
		Away:    domain.TeamLine{Abbrev: "SF", Deltas: away},
	}
}

var owner = coordinator.Actor{ID: "owner-1"}

// --- lock ---

func TestLock_UnauthorizedActor(t *testing.T) {
	f := newFixture(t)
	p := f.createPool(t, domain.DefaultRules())

	_, err := f.coord.Lock(context.Background(), p.ID, coordinator.Actor{ID: "someone-else"})
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	got, err := f.store.GetPool(context.Background(), p.ID)
	require.NoError(t, err)
	assert.False(t, got.Locked)
	assert.Empty(t, got.Axes)
}

func TestLock_IdempotentAndAggregateOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.createPool(t, domain.DefaultRules())

	axis, err := f.coord.Lock(ctx, p.ID, owner)
	require.NoError(t, err)
	assert.True(t, axis.Valid())
	assert.Equal(t, 0, axis.Slot)

	again, err := f.coord.Lock(ctx, p.ID, coordinator.Actor{ID: "admin", Admin: true})
	require.NoError(t, err)
	assert.Equal(t, axis.Home, again.Home)
	assert.Equal(t, axis.Away, again.Away)

	total, err := f.store.LockedTotal(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 1000.0, total, 0.001)

	assert.Equal(t, 1, f.auditCount(t, p.ID, domain.AuditPoolLocked))
	assert.Equal(t, 1, f.auditCount(t, p.ID, domain.AuditDigitsGenerated))
	assert.Equal(t, 1, f.notifier.count(domain.AuditPoolLocked))
}

func TestLock_InvalidRulesFailClosed(t *testing.T) {
	f := newFixture(t)
	rules := domain.DefaultRules()
	rules.PayoutPct = map[domain.Period]float64{domain.PeriodQ1: 30, domain.PeriodFinal: 50}
	p := f.createPool(t, rules)

	_, err := f.coord.Lock(context.Background(), p.ID, owner)
	assert.ErrorIs(t, err, domain.ErrInvalidRules)

	total, err := f.store.LockedTotal(context.Background())
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestCreate_RejectsUndefinedRules(t *testing.T) {
	f := newFixture(t)
	rules := domain.DefaultRules()
	rules.CoalesceTouchdownPAT = true
	_, err := f.coord.Create(context.Background(), coordinator.NewPool{OwnerID: "owner-1", Rules: rules})
	assert.ErrorIs(t, err, domain.ErrInvalidRules)
}

func TestAutoLock_OnlyWhenEnabled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.createPool(t, domain.DefaultRules())

	locked, err := f.coord.AutoLock(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, locked)

	auto, err := f.coord.Create(ctx, coordinator.NewPool{OwnerID: "owner-2", Rules: domain.DefaultRules(), AutoLock: true})
	require.NoError(t, err)

	locked, err = f.coord.AutoLock(ctx, auto.ID)
	require.NoError(t, err)
	assert.True(t, locked)

	locked, err = f.coord.AutoLock(ctx, auto.ID)
	require.NoError(t, err)
	assert.False(t, locked)
}

// --- cells ---

func TestClaim_Rules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.createPool(t, domain.DefaultRules(), 5)

	assert.ErrorIs(t, f.coord.Claim(ctx, p.ID, 0, "intruder"), domain.ErrCellTaken)
	assert.ErrorIs(t, f.coord.Claim(ctx, p.ID, 100, "alice"), domain.ErrInvalidCell)
	assert.NoError(t, f.coord.Claim(ctx, p.ID, 0, "user-00")) // propio: no-op

	_, err := f.coord.Lock(ctx, p.ID, owner)
	require.NoError(t, err)
	assert.ErrorIs(t, f.coord.Claim(ctx, p.ID, 5, "late"), domain.ErrPoolLocked)
}

func TestConfirmPayment_OncePerCell(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.createPool(t, domain.DefaultRules(), 7)

	require.NoError(t, f.coord.ConfirmPayment(ctx, p.ID, 3, owner))
	require.NoError(t, f.coord.ConfirmPayment(ctx, p.ID, 3, owner))
	assert.ErrorIs(t, f.coord.ConfirmPayment(ctx, p.ID, 7, owner), domain.ErrInvalidCell)
	assert.ErrorIs(t, f.coord.ConfirmPayment(ctx, p.ID, 3, coordinator.Actor{ID: "user-03"}), domain.ErrPermissionDenied)

	assert.Equal(t, 1, f.auditCount(t, p.ID, domain.AuditPaymentConfirmed))
	got, err := f.store.GetPool(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, got.Cells[3].Paid)
}

// --- feed ---

func TestApplyFeed_PeriodFinalizedExactlyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.createPool(t, domain.DefaultRules())
	_, err := f.coord.Lock(ctx, p.ID, owner)
	require.NoError(t, err)

	feed := liveFeed(domain.StatusLive, 2, []int{7}, []int{3})
	res, err := f.coord.ApplyFeed(ctx, p.ID, feed)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, []domain.Period{domain.PeriodQ1}, res.NewlyFinal)

	// Mismo feed: nada cambia, nada se emite.
	res, err = f.coord.ApplyFeed(ctx, p.ID, feed)
	require.NoError(t, err)
	assert.False(t, res.Changed)

	// El reloj avanza: cambia la fase pero Q1 ya está escrito.
	feed.Clock = "9:12"
	res, err = f.coord.ApplyFeed(ctx, p.ID, feed)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Empty(t, res.NewlyFinal)

	assert.Equal(t, 1, f.auditCount(t, p.ID, domain.AuditPeriodFinalized))
	assert.Equal(t, 1, f.auditCount(t, p.ID, domain.AuditWinnerComputed))
	assert.Equal(t, 1, f.notifier.count(domain.AuditPeriodFinalized))

	ws, err := f.store.Winners(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, ws, 1)
	assert.Equal(t, domain.PeriodQ1, ws[0].Period)
	assert.InDelta(t, 200.0, ws[0].Amount, 0.001)
	assert.Equal(t, 7, ws[0].HomeDigit)
	assert.Equal(t, 3, ws[0].AwayDigit)
}

func TestApplyFeed_UnlockedPoolRecordsScoresOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.createPool(t, domain.DefaultRules())

	res, err := f.coord.ApplyFeed(ctx, p.ID, liveFeed(domain.StatusLive, 2, []int{7}, []int{3}))
	require.NoError(t, err)
	assert.Equal(t, []domain.Period{domain.PeriodQ1}, res.NewlyFinal)

	ws, err := f.store.Winners(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, ws)

	// Un lock tardío deriva los winners de lo ya finalizado.
	_, err = f.coord.Lock(ctx, p.ID, owner)
	require.NoError(t, err)
	ws, err = f.store.Winners(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, ws, 1)
}

func TestApplyFeed_FourSetOpensNextSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rules := domain.DefaultRules()
	rules.FourSetAxis = true
	p := f.createPool(t, rules)
	_, err := f.coord.Lock(ctx, p.ID, owner)
	require.NoError(t, err)

	_, err = f.coord.ApplyFeed(ctx, p.ID, liveFeed(domain.StatusLive, 3, []int{7, 3}, []int{0, 10}))
	require.NoError(t, err)

	got, err := f.store.GetPool(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, got.Axes, 3) // lock + Q1 + Half
	for i, a := range got.Axes {
		assert.Equal(t, i, a.Slot)
		assert.Equal(t, i+1, a.TriggerPeriod)
		assert.True(t, a.Valid())
	}
	assert.Equal(t, 3, f.auditCount(t, p.ID, domain.AuditDigitsGenerated))
}

func TestLock_LateFourSetBackfillsClosedSlots(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rules := domain.DefaultRules()
	rules.FourSetAxis = true
	p := f.createPool(t, rules)

	// Q1 cierra antes del lock
	_, err := f.coord.ApplyFeed(ctx, p.ID, liveFeed(domain.StatusLive, 2, []int{7}, []int{3}))
	require.NoError(t, err)
	_, err = f.coord.Lock(ctx, p.ID, owner)
	require.NoError(t, err)

	got, err := f.store.GetPool(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, got.Axes, 2) // lock + Q1 ya cerrado
	assert.Equal(t, 2, f.auditCount(t, p.ID, domain.AuditDigitsGenerated))

	_, err = f.coord.ApplyFeed(ctx, p.ID, liveFeed(domain.StatusLive, 3, []int{7, 3}, []int{3, 10}))
	require.NoError(t, err)

	got, err = f.store.GetPool(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, got.Axes, 3)
	slot1, ok := domain.AxisSlot(got.Axes, 1)
	require.True(t, ok)

	ws, err := f.store.Winners(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, ws, 2)
	assert.Equal(t, domain.PeriodHalf, ws[1].Period)
	assert.Equal(t, cellOf(slot1, 0, 3), ws[1].CellID)
}

func TestApplyFeed_RetriesConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.createPool(t, domain.DefaultRules())
	_, err := f.coord.Lock(ctx, p.ID, owner)
	require.NoError(t, err)

	cs := &conflictStore{PoolStore: f.store, fail: 2}
	coord := coordinator.New(coordinator.Config{MaxAttempts: 3, RetryBackoff: time.Millisecond}, cs, f.notifier, domain.NewSeededAxisGenerator(1), nil)

	res, err := coord.ApplyFeed(ctx, p.ID, liveFeed(domain.StatusLive, 2, []int{7}, []int{3}))
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, 3, cs.calls)
	assert.Equal(t, 1, f.auditCount(t, p.ID, domain.AuditPeriodFinalized))
}

func TestApplyFeed_GivesUpAfterMaxAttempts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.createPool(t, domain.DefaultRules())

	cs := &conflictStore{PoolStore: f.store, fail: 10}
	coord := coordinator.New(coordinator.Config{MaxAttempts: 2, RetryBackoff: time.Millisecond}, cs, nil, nil, nil)

	_, err := coord.ApplyFeed(ctx, p.ID, liveFeed(domain.StatusLive, 2, []int{7}, []int{3}))
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Equal(t, 2, cs.calls)
}

// --- rollover + draw ---

// cellAt devuelve los dígitos (home, away) que resuelven a la celda dada.
func cellAt(axis domain.AxisPair, cell int) (home, away int) {
	return axis.Home[cell%10], axis.Away[cell/10]
}

// cellOf devuelve la celda cuyos ejes muestran esos dígitos.
func cellOf(axis domain.AxisPair, home, away int) int {
	row, col := -1, -1
	for i := 0; i < 10; i++ {
		if axis.Home[i] == home {
			col = i
		}
		if axis.Away[i] == away {
			row = i
		}
	}
	return row*10 + col
}

func TestFullGame_AdminDrawSettlesPendingRollover(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rules := domain.DefaultRules()
	rules.QuarterlyRollover = true
	rules.FinalRollover = domain.FinalAdminDraw

	// Se descubren los ejes con un pool de prueba y un generador con la misma semilla.
	probe := domain.NewSeededAxisGenerator(42).Generate(0, kickoff)
	zeroCell := -1
	for r := 0; r < 10; r++ {
		for c := 0; c < 10; c++ {
			if probe.Home[c] == 0 && probe.Away[r] == 0 {
				zeroCell = r*10 + c
			}
		}
	}
	require.GreaterOrEqual(t, zeroCell, 0)
	unsold := (zeroCell + 1) % domain.GridSize

	p := f.createPool(t, rules, unsold)
	axis, err := f.coord.Lock(ctx, p.ID, owner)
	require.NoError(t, err)
	require.Equal(t, probe.Home, axis.Home)

	h, a := cellAt(axis, unsold)
	final := liveFeed(domain.StatusFinal, 4, []int{0, 0, 0, h}, []int{0, 0, 0, a})
	_, err = f.coord.ApplyFeed(ctx, p.ID, final)
	require.NoError(t, err)

	ws, err := f.store.Winners(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, domain.HasPendingDraw(ws))
	got, err := f.store.GetPool(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, got.Settled)

	_, err = f.coord.Draw(ctx, p.ID, coordinator.Actor{ID: "user-01"})
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	draw, err := f.coord.Draw(ctx, p.ID, owner)
	require.NoError(t, err)
	assert.NotEqual(t, unsold, draw.CellID)
	assert.NotEmpty(t, draw.Owner)

	again, err := f.coord.Draw(ctx, p.ID, owner)
	require.NoError(t, err)
	assert.Equal(t, draw.CellID, again.CellID)
	assert.Equal(t, draw.Owner, again.Owner)

	ws, err = f.store.Winners(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, domain.HasPendingDraw(ws))
	// 99 celdas vendidas × $10.
	assert.InDelta(t, 990.0, domain.TotalPaid(ws), 0.001)

	got, err = f.store.GetPool(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, got.Settled)
	assert.Equal(t, 1, f.auditCount(t, p.ID, domain.AuditRolloverDrawn))
}

func TestApplyFeed_ReverseWinnersEachAudited(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rules := domain.DefaultRules()
	rules.ReverseWinners = true
	p := f.createPool(t, rules)
	axis, err := f.coord.Lock(ctx, p.ID, owner)
	require.NoError(t, err)

	feed := liveFeed(domain.StatusLive, 2, []int{7}, []int{3})
	for i := 0; i < 2; i++ {
		_, err = f.coord.ApplyFeed(ctx, p.ID, feed)
		require.NoError(t, err)
	}
	_, err = f.coord.Recompute(ctx, p.ID)
	require.NoError(t, err)

	ws, err := f.store.Winners(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, ws, 2)
	primary, reverse := cellOf(axis, 7, 3), cellOf(axis, 3, 7)
	assert.Equal(t, primary, ws[0].CellID)
	assert.Equal(t, reverse, ws[1].CellID)
	assert.True(t, ws[1].IsReverse)
	for _, w := range ws {
		assert.InDelta(t, 100.0, w.Amount, 0.001)
		assert.Equal(t, fmt.Sprintf("user-%02d", w.CellID), w.Owner)
	}

	assert.Equal(t, 2, f.auditCount(t, p.ID, domain.AuditWinnerComputed))
	assert.Equal(t, 2, f.notifier.count(domain.AuditWinnerComputed))
}

func TestFullGame_QuarterlyRolloverAwardedAtFinal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rules := domain.DefaultRules()
	rules.QuarterlyRollover = true

	axis0 := domain.NewSeededAxisGenerator(42).Generate(0, kickoff)
	zeroCell := cellOf(axis0, 0, 0)
	unsold := cellOf(axis0, 3, 7)

	p := f.createPool(t, rules, unsold)
	axis, err := f.coord.Lock(ctx, p.ID, owner)
	require.NoError(t, err)
	require.Equal(t, axis0.Home, axis.Home)

	// Q1, Half y Q3 en 0-0; el Final cae en la celda sin vender.
	final := liveFeed(domain.StatusFinal, 4, []int{0, 0, 0, 3}, []int{0, 0, 0, 7})
	for i := 0; i < 2; i++ {
		_, err = f.coord.ApplyFeed(ctx, p.ID, final)
		require.NoError(t, err)
	}

	ws, err := f.store.Winners(ctx, p.ID)
	require.NoError(t, err)
	var rollover *domain.Winner
	for i := range ws {
		if ws[i].IsRollover && !ws[i].Unclaimed {
			rollover = &ws[i]
		}
	}
	require.NotNil(t, rollover)
	assert.Equal(t, domain.PeriodFinal, rollover.Period)
	assert.Equal(t, zeroCell, rollover.CellID)
	assert.InDelta(t, 396.0, rollover.Amount, 0.001)
	assert.InDelta(t, 990.0, domain.TotalPaid(ws), 0.001)

	got, err := f.store.GetPool(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, got.Settled)

	// Q1 + Half + Q3 + rollover del Final
	assert.Equal(t, 4, f.auditCount(t, p.ID, domain.AuditWinnerComputed))
	assert.Equal(t, 4, f.notifier.count(domain.AuditWinnerComputed))
}

func TestDraw_WithoutPendingRollover(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.createPool(t, domain.DefaultRules())
	_, err := f.coord.Lock(ctx, p.ID, owner)
	require.NoError(t, err)

	_, err = f.coord.Draw(ctx, p.ID, owner)
	assert.ErrorIs(t, err, domain.ErrNoPendingDraw)
}

// --- recompute ---

func TestRecompute_DoesNotDuplicateWinnerAudit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.createPool(t, domain.DefaultRules())
	_, err := f.coord.Lock(ctx, p.ID, owner)
	require.NoError(t, err)
	_, err = f.coord.ApplyFeed(ctx, p.ID, liveFeed(domain.StatusLive, 3, []int{7, 7}, []int{3, 0}))
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		ws, err := f.coord.Recompute(ctx, p.ID)
		require.NoError(t, err)
		assert.Len(t, ws, 2)
	}

	assert.Equal(t, 2, f.auditCount(t, p.ID, domain.AuditRecomputed))
	assert.Equal(t, 2, f.auditCount(t, p.ID, domain.AuditWinnerComputed))
}

func TestRecomputeTotals_RebuildsAggregate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.createPool(t, domain.DefaultRules(), 0, 1, 2, 3, 4, 5, 6, 7, 8, 9)
	_, err := f.coord.Lock(ctx, p.ID, owner)
	require.NoError(t, err)

	total, err := f.coord.RecomputeTotals(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 900.0, total, 0.001)
}
