package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/squarebot/internal/domain"
)

func TestParsePoolFile(t *testing.T) {
	data := []byte(`
name: Big Game
owner_id: owner-1
auto_lock: true
game:
  event_id: "401547417"
  home_team: KC
  away_team: SF
  start_time: 2026-02-08T18:30:00-05:00
rules:
  quarterly_rollover: true
  final_rollover: admin_draw
cells:
  0: alice
  69: bob
`)
	req, cells, err := parsePoolFile(data)
	require.NoError(t, err)

	assert.Equal(t, "owner-1", req.OwnerID)
	assert.True(t, req.AutoLock)
	assert.Equal(t, "football", req.Game.Sport)
	assert.Equal(t, "nfl", req.Game.League)
	assert.Equal(t, time.Date(2026, 2, 8, 23, 30, 0, 0, time.UTC), req.Game.StartTime)

	// los campos ausentes conservan el default
	assert.InDelta(t, 10.0, req.Rules.CostPerCell, 1e-9)
	assert.InDelta(t, 40.0, req.Rules.PayoutPct[domain.PeriodFinal], 1e-9)
	assert.True(t, req.Rules.QuarterlyRollover)
	assert.Equal(t, domain.FinalAdminDraw, req.Rules.FinalRollover)
	assert.NoError(t, req.Rules.ValidateForLock())

	assert.Equal(t, map[int]string{0: "alice", 69: "bob"}, cells)
}

func TestParsePoolFile_Errors(t *testing.T) {
	_, _, err := parsePoolFile([]byte("cells:\n  100: carol\n"))
	assert.ErrorIs(t, err, domain.ErrInvalidCell)

	_, _, err = parsePoolFile([]byte("game: [broken"))
	assert.Error(t, err)
}
