package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/alejandrodnm/squarebot/internal/application/coordinator"
	"github.com/alejandrodnm/squarebot/internal/domain"
)

// poolFile es el formato YAML de -create.
type poolFile struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	OwnerID  string `yaml:"owner_id"`
	AutoLock bool   `yaml:"auto_lock"`
	Game     struct {
		EventID   string    `yaml:"event_id"`
		Sport     string    `yaml:"sport"`
		League    string    `yaml:"league"`
		HomeTeam  string    `yaml:"home_team"`
		AwayTeam  string    `yaml:"away_team"`
		StartTime time.Time `yaml:"start_time"`
	} `yaml:"game"`
	// Rules se mezcla sobre DefaultRules: lo que falta conserva el default.
	Rules domain.Rules `yaml:"rules"`
	// Cells asigna dueños iniciales: cell id → owner.
	Cells map[int]string `yaml:"cells"`
}

// loadPoolFile lee y convierte un archivo de pool.
func loadPoolFile(path string) (coordinator.NewPool, map[int]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return coordinator.NewPool{}, nil, fmt.Errorf("loadPoolFile: read %q: %w", path, err)
	}
	return parsePoolFile(data)
}

func parsePoolFile(data []byte) (coordinator.NewPool, map[int]string, error) {
	pf := poolFile{Rules: domain.DefaultRules()}
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return coordinator.NewPool{}, nil, fmt.Errorf("parsePoolFile: parse YAML: %w", err)
	}
	if pf.Game.Sport == "" {
		pf.Game.Sport = "football"
	}
	if pf.Game.League == "" {
		pf.Game.League = "nfl"
	}
	for id := range pf.Cells {
		if id < 0 || id >= domain.GridSize {
			return coordinator.NewPool{}, nil, fmt.Errorf("parsePoolFile: %w: cell %d", domain.ErrInvalidCell, id)
		}
	}

	req := coordinator.NewPool{
		ID:      pf.ID,
		Name:    pf.Name,
		OwnerID: pf.OwnerID,
		Game: domain.Game{
			EventID:   pf.Game.EventID,
			Sport:     pf.Game.Sport,
			League:    pf.Game.League,
			HomeTeam:  pf.Game.HomeTeam,
			AwayTeam:  pf.Game.AwayTeam,
			StartTime: pf.Game.StartTime.UTC(),
		},
		Rules:    pf.Rules,
		AutoLock: pf.AutoLock,
	}
	return req, pf.Cells, nil
}
