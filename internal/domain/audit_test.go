package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeKey_StableAndDistinct(t *testing.T) {
	assert.Equal(t, PeriodKey("pool-1", PeriodQ1), PeriodKey("pool-1", PeriodQ1))
	assert.NotEqual(t, PeriodKey("pool-1", PeriodQ1), PeriodKey("pool-1", PeriodHalf))
	assert.NotEqual(t, PeriodKey("pool-1", PeriodQ1), PeriodKey("pool-2", PeriodQ1))
	assert.NotEqual(t, WinnerKey("pool-1", PeriodQ1, 7, 4, 47), WinnerKey("pool-1", PeriodQ1, 4, 7, 47))
	// el reverse comparte dígitos con el primario pero no la celda
	assert.NotEqual(t, WinnerKey("pool-1", PeriodQ1, 7, 3, 52), WinnerKey("pool-1", PeriodQ1, 7, 3, 0))
	assert.Equal(t, WinnerKey("pool-1", PeriodQ1, 7, 3, 52), WinnerKey("pool-1", PeriodQ1, 7, 3, 52))
	assert.Len(t, LockKey("pool-1"), 32)
}

func TestDedupeKey_NoSeparatorCollision(t *testing.T) {
	assert.NotEqual(t, DedupeKey("ab", "c"), DedupeKey("a", "bc"))
}

func TestNewAuditEvent(t *testing.T) {
	e := NewAuditEvent("pool-1", AuditPoolLocked, LockKey("pool-1"), map[string]any{"by": "owner"}, testNow)
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, AuditPoolLocked, e.Kind)
	assert.Equal(t, testNow, e.CreatedAt)
}
