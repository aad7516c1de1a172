package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/squarebot/internal/domain"
	"github.com/alejandrodnm/squarebot/internal/ports"
)

// Console implementa ports.Notifier escribiendo el ledger a un io.Writer.
// Es el consumidor downstream de referencia: solo ve eventos recién
// confirmados, nunca reintentos deduplicados.
type Console struct {
	mu    sync.Mutex
	out   io.Writer
	table bool
}

// NewConsole crea un notificador que escribe a stdout.
func NewConsole(table bool) *Console {
	return &Console{out: os.Stdout, table: table}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer, table bool) *Console {
	return &Console{out: w, table: table}
}

// NotifyAudit imprime una línea por evento nuevo y, en modo tabla, los winners
// vigentes cuando el commit los recalculó.
func (c *Console) NotifyAudit(_ context.Context, pool domain.Pool, events []domain.AuditEvent, winners []domain.Winner) error {
	if len(events) == 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	name := truncate(poolLabel(pool), 30)
	for _, e := range events {
		fmt.Fprintf(c.out, "[%s] %s %-18s %s\n",
			e.CreatedAt.Local().Format("15:04:05"), name, e.Kind, summarize(e.Payload))
	}

	if c.table && winners != nil && touchesWinners(events) {
		c.printWinners(pool, winners)
	}
	return nil
}

// PrintWinners imprime la tabla de winners del pool.
func (c *Console) PrintWinners(pool domain.Pool, winners []domain.Winner) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.printWinners(pool, winners)
}

// PrintAudit imprime el ledger completo del pool.
func (c *Console) PrintAudit(pool domain.Pool, events []domain.AuditEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintf(c.out, "\n%s — %d audit events\n", poolLabel(pool), len(events))
	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Time", "Kind", "Details")
	for i, e := range events {
		table.Append(
			fmt.Sprintf("%d", i+1),
			e.CreatedAt.Local().Format(time.DateTime),
			string(e.Kind),
			truncate(summarize(e.Payload), 60),
		)
	}
	table.Render()
}

func (c *Console) printWinners(pool domain.Pool, winners []domain.Winner) {
	fmt.Fprintf(c.out, "\n%s — net pot $%.2f (%d/%d sold)\n",
		poolLabel(pool), pool.NetPot(), pool.Cells.Sold(), domain.GridSize)

	if len(winners) == 0 {
		fmt.Fprintln(c.out, "  no winners yet")
		return
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Period", "Cell", "Owner", "Digits", "Amount", "Notes")
	for i, w := range winners {
		cell := "-"
		if w.CellID >= 0 {
			cell = fmt.Sprintf("%d", w.CellID)
		}
		owner := w.Owner
		if owner == "" {
			owner = "-"
		}
		digits := "-"
		if w.CellID >= 0 || w.Period.Number() > 0 {
			digits = fmt.Sprintf("%d-%d", w.HomeDigit, w.AwayDigit)
		}
		table.Append(
			fmt.Sprintf("%d", i+1),
			periodLabel(w),
			cell,
			truncate(owner, 20),
			digits,
			fmt.Sprintf("$%.2f", w.Amount),
			notes(w),
		)
	}
	table.Render()

	fmt.Fprintf(c.out, "  Total: $%.2f", domain.TotalPaid(winners))
	if domain.HasPendingDraw(winners) {
		fmt.Fprint(c.out, "  (final rollover pending admin draw)")
	}
	fmt.Fprintln(c.out)
}

// --- helpers ---

func poolLabel(p domain.Pool) string {
	if p.Name != "" {
		return p.Name
	}
	return p.ID
}

func periodLabel(w domain.Winner) string {
	if w.EventID != "" {
		return string(w.Period) + " " + w.EventID
	}
	return string(w.Period)
}

func notes(w domain.Winner) string {
	var parts []string
	if w.IsReverse {
		parts = append(parts, "reverse")
	}
	if w.IsRollover {
		parts = append(parts, "rollover")
	}
	if w.IsPending {
		parts = append(parts, "pending")
	}
	if w.Unclaimed {
		parts = append(parts, "house")
	}
	if w.Description != "" {
		parts = append(parts, w.Description)
	}
	return truncate(strings.Join(parts, ", "), 40)
}

func touchesWinners(events []domain.AuditEvent) bool {
	for _, e := range events {
		switch e.Kind {
		case domain.AuditWinnerComputed, domain.AuditRecomputed, domain.AuditRolloverDrawn:
			return true
		}
	}
	return false
}

// summarize aplana el payload a "k=v" ordenado por clave.
func summarize(payload map[string]any) string {
	if len(payload) == 0 {
		return ""
	}
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, payload[k]))
	}
	return strings.Join(parts, " ")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

var _ ports.Notifier = (*Console)(nil)
