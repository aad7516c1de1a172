package coordinator

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/alejandrodnm/squarebot/internal/domain"
	"github.com/alejandrodnm/squarebot/internal/ports"
)

// NewPool es lo mínimo para dar de alta un pool.
type NewPool struct {
	ID       string // vacío = uuid nuevo
	Name     string
	OwnerID  string
	Game     domain.Game
	Rules    domain.Rules
	AutoLock bool
}

// Create valida las reglas y da de alta un pool vacío y desbloqueado.
func (c *Coordinator) Create(ctx context.Context, req NewPool) (domain.Pool, error) {
	if req.OwnerID == "" {
		return domain.Pool{}, fmt.Errorf("coordinator.Create: %w: owner required", domain.ErrPermissionDenied)
	}
	if err := req.Rules.Validate(); err != nil {
		return domain.Pool{}, fmt.Errorf("coordinator.Create: %w", err)
	}
	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	p := domain.Pool{
		ID:       id,
		Name:     req.Name,
		OwnerID:  req.OwnerID,
		Game:     req.Game,
		Cells:    domain.NewGrid(),
		Rules:    req.Rules,
		AutoLock: req.AutoLock,
	}
	if err := c.store.CreatePool(ctx, p); err != nil {
		return domain.Pool{}, fmt.Errorf("coordinator.Create: %w", err)
	}
	p.Version = 1
	return p, nil
}

// Claim asigna una celda libre. Rechazado una vez bloqueado el pool;
// reclamar de nuevo la propia celda es un no-op.
func (c *Coordinator) Claim(ctx context.Context, poolID string, cellID int, owner string) error {
	_, err := c.update(ctx, "Claim", poolID, func(p *domain.Pool, _ *attempt) (ports.Changes, error) {
		if cellID < 0 || cellID >= domain.GridSize || owner == "" {
			return ports.Changes{}, domain.ErrInvalidCell
		}
		if p.Locked {
			return ports.Changes{}, domain.ErrPoolLocked
		}
		cell := &p.Cells[cellID]
		switch cell.Owner {
		case owner:
			return ports.Changes{}, domain.ErrNoChange
		case "":
			cell.Owner = owner
			return ports.Changes{}, nil
		default:
			return ports.Changes{}, domain.ErrCellTaken
		}
	})
	if err = ignoreNoChange(err); err != nil {
		return fmt.Errorf("coordinator.Claim %s/%d: %w", poolID, cellID, err)
	}
	return nil
}

// ConfirmPayment marca una celda vendida como pagada. Un audit por celda, nunca más.
func (c *Coordinator) ConfirmPayment(ctx context.Context, poolID string, cellID int, actor Actor) error {
	_, err := c.update(ctx, "ConfirmPayment", poolID, func(p *domain.Pool, _ *attempt) (ports.Changes, error) {
		if !actor.canManage(*p) {
			return ports.Changes{}, domain.ErrPermissionDenied
		}
		if cellID < 0 || cellID >= domain.GridSize || !p.Cells[cellID].Claimed() {
			return ports.Changes{}, domain.ErrInvalidCell
		}
		cell := &p.Cells[cellID]
		if cell.Paid {
			return ports.Changes{}, domain.ErrNoChange
		}
		cell.Paid = true

		now := c.cfg.Now()
		return ports.Changes{Audit: []domain.AuditEvent{
			domain.NewAuditEvent(p.ID, domain.AuditPaymentConfirmed, domain.PaymentKey(p.ID, cellID), map[string]any{
				"cell":   cellID,
				"owner":  cell.Owner,
				"amount": p.Rules.CostPerCell,
				"by":     actor.ID,
			}, now),
		}}, nil
	})
	if err != nil && !errors.Is(err, domain.ErrNoChange) {
		return fmt.Errorf("coordinator.ConfirmPayment %s/%d: %w", poolID, cellID, err)
	}
	return nil
}
