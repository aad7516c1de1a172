package espn

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/squarebot/internal/domain"
)

func decodeSummary(t *testing.T, raw string) summaryResponse {
	t.Helper()
	var r summaryResponse
	require.NoError(t, json.Unmarshal([]byte(raw), &r))
	return r
}

func TestFlexInt(t *testing.T) {
	tests := []struct {
		in    string
		n     int
		valid bool
	}{
		{`7`, 7, true},
		{`"14"`, 14, true},
		{`" 3 "`, 3, true},
		{`21.0`, 21, true},
		{`null`, 0, false},
		{`""`, 0, false},
		{`"n/a"`, 0, false},
		{`true`, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var f flexInt
			require.NoError(t, json.Unmarshal([]byte(tt.in), &f))
			assert.Equal(t, tt.n, f.N)
			assert.Equal(t, tt.valid, f.Valid)
		})
	}
}

func TestMapSummary_MalformedFieldsDefaultToZero(t *testing.T) {
	r := decodeSummary(t, `{
		"header": {"competitions": [{
			"status": {"period": "two", "type": {"state": "in"}},
			"competitors": [
				{"homeAway": "home", "score": "", "linescores": [{"displayValue": "7"}, {"displayValue": "-"}]},
				{"homeAway": "away", "score": {"bad": 1}, "linescores": [{"value": 3}]}
			]
		}]}
	}`)

	feed := mapSummary("evt-1", r)
	assert.Equal(t, "evt-1", feed.EventID)
	assert.Equal(t, domain.StatusLive, feed.Status)
	assert.Zero(t, feed.Period)
	assert.Equal(t, []int{7, 0}, feed.Home.Deltas)
	assert.False(t, feed.Home.HasTotal)
	assert.Equal(t, []int{3}, feed.Away.Deltas)
	assert.False(t, feed.Away.HasTotal)
}

func TestMapSummary_NoCompetitionIsPreGame(t *testing.T) {
	feed := mapSummary("evt-1", decodeSummary(t, `{"header": {}}`))
	assert.Equal(t, domain.StatusPre, feed.Status)
	assert.Empty(t, feed.Plays)
}

func TestMapStatus(t *testing.T) {
	assert.Equal(t, domain.StatusFinal, mapStatus(statusType{State: "in", Completed: true}))
	assert.Equal(t, domain.StatusLive, mapStatus(statusType{State: "IN"}))
	assert.Equal(t, domain.StatusFinal, mapStatus(statusType{State: "post"}))
	assert.Equal(t, domain.StatusPre, mapStatus(statusType{State: "postponed"}))
}

func TestSplitCompetitors_FallbackOrder(t *testing.T) {
	cs := []competitor{{ID: "a"}, {ID: "b"}}
	home, away := splitCompetitors(cs)
	require.NotNil(t, home)
	require.NotNil(t, away)
	assert.Equal(t, "a", home.ID)
	assert.Equal(t, "b", away.ID)

	cs = []competitor{{ID: "a"}, {ID: "b", HomeAway: "home"}}
	home, away = splitCompetitors(cs)
	assert.Equal(t, "b", home.ID)
	assert.Equal(t, "a", away.ID)
}
