package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("stale pool version")
	ErrNoChange         = errors.New("no change")
	ErrPermissionDenied = errors.New("permission denied")
	ErrPoolLocked       = errors.New("pool is locked")
	ErrPoolNotLocked    = errors.New("pool is not locked")
	ErrInvalidRules     = errors.New("invalid payout rules")
	ErrInvalidCell      = errors.New("invalid cell")
	ErrCellTaken        = errors.New("cell already claimed")
	ErrNoPendingDraw    = errors.New("no pending rollover draw")
)
