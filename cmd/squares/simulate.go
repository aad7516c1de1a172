package main

// simulate.go: replay offline de un pool contra un summary guardado.
//
// Usa el mismo camino que producción (coordinator + store SQLite en memoria)
// para que la simulación y el sync en vivo den exactamente los mismos winners.

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/alejandrodnm/squarebot/internal/adapters/espn"
	"github.com/alejandrodnm/squarebot/internal/adapters/notify"
	"github.com/alejandrodnm/squarebot/internal/adapters/storage"
	"github.com/alejandrodnm/squarebot/internal/application/coordinator"
	"github.com/alejandrodnm/squarebot/internal/domain"
)

type simulation struct {
	Pool    domain.Pool
	Winners []domain.Winner
}

func runSimulate(ctx context.Context, poolPath, feedPath string, seed uint64, fill bool, console *notify.Console) error {
	req, cells, err := loadPoolFile(poolPath)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(feedPath)
	if err != nil {
		return fmt.Errorf("simulate: read feed %q: %w", feedPath, err)
	}
	feed, err := espn.ParseSummary(req.Game.EventID, data)
	if err != nil {
		return err
	}

	sim, err := simulate(ctx, req, cells, feed, seed, fill)
	if err != nil {
		return err
	}
	a, _ := domain.AxisSlot(sim.Pool.Axes, 0)
	fmt.Printf("home axis: %v\naway axis: %v\n", a.Home, a.Away)
	console.PrintWinners(sim.Pool, sim.Winners)
	return nil
}

// simulate crea el pool en un store efímero, lo bloquea como sistema y le
// aplica el feed. Con fill, las celdas libres reciben dueños ficticios.
func simulate(ctx context.Context, req coordinator.NewPool, cells map[int]string, feed domain.GameFeed, seed uint64, fill bool) (simulation, error) {
	store, err := storage.NewSQLiteStore(":memory:")
	if err != nil {
		return simulation{}, fmt.Errorf("simulate: %w", err)
	}
	defer store.Close()

	coord := coordinator.New(coordinator.Config{}, store, nil, domain.NewSeededAxisGenerator(seed), nil)
	if req.OwnerID == "" {
		req.OwnerID = coordinator.SystemActor.ID
	}
	p, err := coord.Create(ctx, req)
	if err != nil {
		return simulation{}, fmt.Errorf("simulate: %w", err)
	}

	if fill {
		cells = fillCells(cells, seed)
	}
	ids := make([]int, 0, len(cells))
	for id := range cells {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		if err := coord.Claim(ctx, p.ID, id, cells[id]); err != nil {
			return simulation{}, fmt.Errorf("simulate: claim %d: %w", id, err)
		}
	}

	if _, err := coord.Lock(ctx, p.ID, coordinator.SystemActor); err != nil {
		return simulation{}, fmt.Errorf("simulate: %w", err)
	}
	if _, err := coord.ApplyFeed(ctx, p.ID, feed); err != nil {
		return simulation{}, fmt.Errorf("simulate: %w", err)
	}

	out := simulation{}
	if out.Pool, err = coord.Pool(ctx, p.ID); err != nil {
		return simulation{}, fmt.Errorf("simulate: %w", err)
	}
	if out.Winners, err = coord.Winners(ctx, p.ID); err != nil {
		return simulation{}, fmt.Errorf("simulate: %w", err)
	}
	return out, nil
}

// fillCells completa el grid con usernames deterministas para la semilla.
func fillCells(cells map[int]string, seed uint64) map[int]string {
	f := gofakeit.New(seed)
	out := make(map[int]string, domain.GridSize)
	for id := 0; id < domain.GridSize; id++ {
		if owner, ok := cells[id]; ok {
			out[id] = owner
			continue
		}
		out[id] = f.Username()
	}
	return out
}
