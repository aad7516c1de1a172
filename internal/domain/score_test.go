package domain

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 2, 8, 23, 30, 0, 0, time.UTC)

func feed(status string, period int, home, away []int) GameFeed {
	return GameFeed{
		EventID: "401547999",
		Status:  status,
		Period:  period,
		Home:    TeamLine{Abbrev: "KC", Deltas: home},
		Away:    TeamLine{Abbrev: "SF", Deltas: away},
	}
}

func TestCumulative(t *testing.T) {
	f := feed(StatusFinal, 4, []int{7, 3, 10, 5}, []int{0, 10, 3, 9})
	q1, half, q3, final := Cumulative(f)
	assert.Equal(t, Score{Home: 7, Away: 0}, q1)
	assert.Equal(t, Score{Home: 10, Away: 10}, half)
	assert.Equal(t, Score{Home: 20, Away: 13}, q3)
	assert.Equal(t, Score{Home: 25, Away: 22}, final)
}

func TestCumulative_MissingPeriodsAreZero(t *testing.T) {
	f := feed(StatusLive, 2, []int{7}, nil)
	q1, half, q3, final := Cumulative(f)
	assert.Equal(t, Score{Home: 7}, q1)
	assert.Equal(t, Score{Home: 7}, half)
	assert.Equal(t, Score{Home: 7}, q3)
	assert.Equal(t, Score{Home: 7}, final)
}

func TestCumulative_OvertimeUsesProviderTotal(t *testing.T) {
	f := feed(StatusFinal, 5, []int{3, 7, 0, 10, 6}, []int{7, 3, 7, 3, 0})
	f.Home.Total, f.Home.HasTotal = 26, true
	f.Away.Total, f.Away.HasTotal = 20, true
	_, _, _, final := Cumulative(f)
	assert.Equal(t, Score{Home: 26, Away: 20}, final)
}

func TestPeriodIsFinal(t *testing.T) {
	assert.False(t, PeriodIsFinal(PeriodQ1, 1, false))
	assert.True(t, PeriodIsFinal(PeriodQ1, 2, false))
	assert.False(t, PeriodIsFinal(PeriodHalf, 2, false))
	assert.True(t, PeriodIsFinal(PeriodHalf, 3, false))
	assert.False(t, PeriodIsFinal(PeriodFinal, 5, false))
	assert.True(t, PeriodIsFinal(PeriodFinal, 4, true))
	assert.True(t, PeriodIsFinal(PeriodQ3, 3, true))
}

func TestNormalize_FinalizesInOrder(t *testing.T) {
	res := Normalize(ScoreState{}, nil, feed(StatusLive, 3, []int{7, 3, 0}, []int{0, 10, 0}), testNow)

	require.True(t, res.Changed)
	assert.Equal(t, []Period{PeriodQ1, PeriodHalf}, res.NewlyFinal)
	assert.True(t, res.State.Q1.Set)
	assert.Equal(t, Score{Home: 7, Away: 0}, res.State.Q1.Score)
	assert.Equal(t, Score{Home: 10, Away: 10}, res.State.Half.Score)
	assert.False(t, res.State.Q3.Set)
	assert.Equal(t, Score{Home: 10, Away: 10}, res.State.Current)
	assert.Equal(t, 3, res.State.Phase.Period)
}

func TestNormalize_WriteOnce(t *testing.T) {
	first := Normalize(ScoreState{}, nil, feed(StatusLive, 2, []int{7, 0}, []int{3, 0}), testNow)
	require.Equal(t, Score{Home: 7, Away: 3}, first.State.Q1.Score)

	// el proveedor corrige Q1 más tarde: el snapshot no se toca
	second := Normalize(first.State, first.Events, feed(StatusLive, 2, []int{6, 0}, []int{3, 0}), testNow.Add(time.Minute))
	assert.Equal(t, Score{Home: 7, Away: 3}, second.State.Q1.Score)
	assert.Empty(t, second.NewlyFinal)
	assert.Equal(t, Score{Home: 6, Away: 3}, second.State.Current)
}

func TestNormalize_NoChange(t *testing.T) {
	f := feed(StatusLive, 1, []int{7}, []int{0})
	first := Normalize(ScoreState{}, nil, f, testNow)
	second := Normalize(first.State, first.Events, f, testNow.Add(time.Minute))
	assert.False(t, second.Changed)
	assert.Empty(t, second.NewEvents)
	if diff := cmp.Diff(first.State, second.State); diff != "" {
		t.Fatalf("state drifted (-first +second):\n%s", diff)
	}
}

func TestNormalize_GameEndedSetsAllPeriods(t *testing.T) {
	res := Normalize(ScoreState{}, nil, feed(StatusFinal, 4, []int{7, 3, 10, 5}, []int{0, 10, 3, 9}), testNow)
	assert.Equal(t, []Period{PeriodQ1, PeriodHalf, PeriodQ3, PeriodFinal}, res.NewlyFinal)
	assert.Equal(t, Score{Home: 25, Away: 22}, res.State.Final.Score)
}

func TestNormalize_StaleFeedAfterEndIgnoresPhase(t *testing.T) {
	ended := Normalize(ScoreState{}, nil, feed(StatusFinal, 4, []int{7, 3, 10, 5}, []int{0, 10, 3, 9}), testNow)
	stale := Normalize(ended.State, ended.Events, feed(StatusLive, 4, []int{7, 3, 10, 5}, []int{0, 10, 3, 9}), testNow)
	assert.Equal(t, StatusFinal, stale.State.Phase.Status)
	assert.False(t, stale.Changed)
}

func TestNormalize_EventsFromPlays(t *testing.T) {
	f := feed(StatusLive, 1, []int{7}, []int{3})
	f.Plays = []ScoringPlay{
		{ID: "p1", Home: 0, Away: 3, Period: 1, Text: "SF field goal"},
		{ID: "p2", Home: 7, Away: 3, Period: 1, Text: "KC touchdown"},
	}
	first := Normalize(ScoreState{}, nil, f, testNow)
	require.Len(t, first.NewEvents, 2)
	assert.Equal(t, 1, first.Events[0].Seq)
	assert.Equal(t, "p2", first.Events[1].ID)

	f.Plays = append(f.Plays, ScoringPlay{ID: "p3", Home: 7, Away: 10, Period: 5, Text: "SF touchdown"})
	second := Normalize(first.State, first.Events, f, testNow)
	require.Len(t, second.NewEvents, 1)
	assert.Equal(t, 3, second.NewEvents[0].Seq)
	assert.True(t, second.NewEvents[0].Overtime)
	assert.Len(t, second.Events, 3)
	// el log anterior no se modifica
	assert.Len(t, first.Events, 2)
}

func TestNormalize_SyntheticEventWithoutPlays(t *testing.T) {
	first := Normalize(ScoreState{}, nil, feed(StatusLive, 1, []int{7}, []int{0}), testNow)
	require.Len(t, first.NewEvents, 1)
	assert.Equal(t, 7, first.NewEvents[0].Home)

	pre := Normalize(ScoreState{}, nil, feed(StatusPre, 0, nil, nil), testNow)
	assert.Empty(t, pre.NewEvents)
}
