package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AuditKind names the side effect an audit event records.
type AuditKind string

const (
	AuditDigitsGenerated  AuditKind = "digits_generated"
	AuditPoolLocked       AuditKind = "pool_locked"
	AuditPeriodFinalized  AuditKind = "period_finalized"
	AuditWinnerComputed   AuditKind = "winner_computed"
	AuditPaymentConfirmed AuditKind = "payment_confirmed"
	AuditRolloverDrawn    AuditKind = "rollover_drawn"
	AuditRecomputed       AuditKind = "results_recomputed"
)

// AuditEvent is an append-only ledger entry. At most one event is ever
// committed per non-empty DedupeKey.
type AuditEvent struct {
	ID        string         `json:"id"`
	PoolID    string         `json:"pool_id"`
	Kind      AuditKind      `json:"kind"`
	DedupeKey string         `json:"dedupe_key,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// NewAuditEvent builds an event with a fresh id.
func NewAuditEvent(poolID string, kind AuditKind, dedupeKey string, payload map[string]any, now time.Time) AuditEvent {
	return AuditEvent{
		ID:        uuid.NewString(),
		PoolID:    poolID,
		Kind:      kind,
		DedupeKey: dedupeKey,
		Payload:   payload,
		CreatedAt: now.UTC(),
	}
}

// DedupeKey hashes stable inputs into a fixed-width key.
func DedupeKey(parts ...string) string {
	h := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(h[:16])
}

func LockKey(poolID string) string { return DedupeKey(poolID, "lock") }

func AxisKey(poolID string, slot int) string {
	return DedupeKey(poolID, "axis", fmt.Sprint(slot))
}

func PeriodKey(poolID string, p Period) string {
	return DedupeKey(poolID, "period", string(p))
}

// WinnerKey is keyed on the winning digits and the cell. A repaired snapshot
// with different digits is recorded separately, and the reverse winner of a
// period shares the digits but not the cell.
func WinnerKey(poolID string, p Period, homeDigit, awayDigit, cellID int) string {
	return DedupeKey(poolID, "winner", string(p), fmt.Sprintf("%d-%d", homeDigit, awayDigit), fmt.Sprint(cellID))
}

func PaymentKey(poolID string, cellID int) string {
	return DedupeKey(poolID, "payment", fmt.Sprint(cellID))
}

func DrawKey(poolID string) string { return DedupeKey(poolID, "draw") }

// EventWinnerKey identifies the winner of one logged scoring event.
func EventWinnerKey(poolID, eventID string, cellID int) string {
	return DedupeKey(poolID, "winner", string(PeriodEvent), eventID, fmt.Sprint(cellID))
}

// RolloverKey identifies the settlement of the final rollover balance.
func RolloverKey(poolID string) string { return DedupeKey(poolID, "winner", "rollover") }
