package ports

import (
	"context"

	"github.com/alejandrodnm/squarebot/internal/domain"
)

// Notifier consumes newly committed audit events (emails, narratives, console).
// It only reads; it must never mutate pool state.
type Notifier interface {
	NotifyAudit(ctx context.Context, pool domain.Pool, events []domain.AuditEvent, winners []domain.Winner) error
}
