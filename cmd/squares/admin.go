package main

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/alejandrodnm/squarebot/internal/adapters/notify"
	"github.com/alejandrodnm/squarebot/internal/application/coordinator"
)

// command agrupa las operaciones one-shot del CLI.
type command struct {
	ctx     context.Context
	coord   *coordinator.Coordinator
	console *notify.Console
}

func (c command) create(path string) error {
	req, cells, err := loadPoolFile(path)
	if err != nil {
		return err
	}
	p, err := c.coord.Create(c.ctx, req)
	if err != nil {
		return err
	}

	ids := make([]int, 0, len(cells))
	for id := range cells {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		if err := c.coord.Claim(c.ctx, p.ID, id, cells[id]); err != nil {
			return fmt.Errorf("claim cell %d: %w", id, err)
		}
	}
	slog.Info("pool created", "pool_id", p.ID, "name", p.Name, "claimed", len(ids))
	fmt.Println(p.ID)
	return nil
}

func (c command) lock(poolID string, actor coordinator.Actor) error {
	axis, err := c.coord.Lock(c.ctx, poolID, actor)
	if err != nil {
		return err
	}
	fmt.Printf("home: %v\naway: %v\n", axis.Home, axis.Away)
	return nil
}

// pay recibe "<pool>/<cell>".
func (c command) pay(arg string, actor coordinator.Actor) error {
	i := strings.LastIndex(arg, "/")
	if i <= 0 {
		return fmt.Errorf("pay: want <pool>/<cell>, got %q", arg)
	}
	cell, err := strconv.Atoi(arg[i+1:])
	if err != nil {
		return fmt.Errorf("pay: cell: %w", err)
	}
	return c.coord.ConfirmPayment(c.ctx, arg[:i], cell, actor)
}

func (c command) recompute(target string) error {
	if target == "all" {
		n, err := c.coord.RecomputeAll(c.ctx)
		slog.Info("recompute complete", "pools", n)
		return err
	}
	if _, err := c.coord.Recompute(c.ctx, target); err != nil {
		return err
	}
	return c.winners(target)
}

func (c command) totals() error {
	total, err := c.coord.RecomputeTotals(c.ctx)
	if err != nil {
		return err
	}
	fmt.Printf("locked prize total: $%.2f\n", total)
	return nil
}

func (c command) draw(poolID string, actor coordinator.Actor) error {
	res, err := c.coord.Draw(c.ctx, poolID, actor)
	if err != nil {
		return err
	}
	fmt.Printf("drawn cell %d (%s)\n", res.CellID, res.Owner)
	return c.winners(poolID)
}

func (c command) winners(poolID string) error {
	p, err := c.coord.Pool(c.ctx, poolID)
	if err != nil {
		return err
	}
	ws, err := c.coord.Winners(c.ctx, poolID)
	if err != nil {
		return err
	}
	c.console.PrintWinners(p, ws)
	return nil
}

func (c command) audit(poolID string) error {
	p, err := c.coord.Pool(c.ctx, poolID)
	if err != nil {
		return err
	}
	events, err := c.coord.Audit(c.ctx, poolID)
	if err != nil {
		return err
	}
	c.console.PrintAudit(p, events)
	return nil
}
