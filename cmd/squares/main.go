package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alejandrodnm/squarebot/config"
	"github.com/alejandrodnm/squarebot/internal/adapters/espn"
	"github.com/alejandrodnm/squarebot/internal/adapters/notify"
	"github.com/alejandrodnm/squarebot/internal/adapters/storage"
	"github.com/alejandrodnm/squarebot/internal/application/coordinator"
	"github.com/alejandrodnm/squarebot/internal/application/poller"
	"github.com/alejandrodnm/squarebot/internal/metrics"
	"github.com/alejandrodnm/squarebot/internal/ports"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	once := flag.Bool("once", false, "run one sync pass and exit")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	table := flag.Bool("table", false, "print winners table on every winner change")

	create := flag.String("create", "", "create a pool from a YAML file and exit")
	lock := flag.String("lock", "", "lock the pool with this id and exit")
	actor := flag.String("actor", "", "acting user id for -lock / -draw / -pay")
	admin := flag.Bool("admin", false, "act as platform admin")
	pay := flag.String("pay", "", "confirm payment: <pool>/<cell>")
	recompute := flag.String("recompute", "", "re-derive winners for a pool id, or 'all'")
	totals := flag.Bool("totals", false, "rebuild the global locked prize aggregate and exit")
	draw := flag.String("draw", "", "run the admin draw for a pending final rollover")
	winners := flag.String("winners", "", "print the winners table of a pool and exit")
	audit := flag.String("audit", "", "print the audit ledger of a pool and exit")
	sim := flag.String("simulate", "", "replay a pool YAML offline against -feed and exit")
	feed := flag.String("feed", "testdata/fixtures/espn_summary.json", "saved provider summary for -simulate")
	seed := flag.Uint64("seed", 1, "axis seed for -simulate")
	fill := flag.Bool("fill", false, "fill unclaimed cells with fake owners in -simulate")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *sim != "" {
		if err := runSimulate(ctx, *sim, *feed, *seed, *fill, notify.NewConsole(true)); err != nil {
			slog.Error("simulation failed", "err", err)
			os.Exit(1)
		}
		return
	}

	store, err := openStore(ctx, cfg.Storage)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "driver", cfg.Storage.Driver)
		os.Exit(1)
	}
	defer store.Close()

	m := metrics.New()
	console := notify.NewConsole(*table)
	coord := coordinator.New(coordinator.Config{
		MaxAttempts:  cfg.Coordinator.MaxAttempts,
		RetryBackoff: cfg.RetryBackoff(),
	}, store, console, nil, m)

	who := coordinator.Actor{ID: *actor, Admin: *admin}
	cmd := command{ctx: ctx, coord: coord, console: console}

	switch {
	case *create != "":
		err = cmd.create(*create)
	case *lock != "":
		err = cmd.lock(*lock, who)
	case *pay != "":
		err = cmd.pay(*pay, who)
	case *recompute != "":
		err = cmd.recompute(*recompute)
	case *totals:
		err = cmd.totals()
	case *draw != "":
		err = cmd.draw(*draw, who)
	case *winners != "":
		err = cmd.winners(*winners)
	case *audit != "":
		err = cmd.audit(*audit)
	default:
		err = runSync(ctx, cfg, store, coord, m, *once)
	}
	if err != nil {
		slog.Error("squarebot exited with error", "err", err)
		os.Exit(1)
	}
}

// runSync arranca el poller y, si está configurado, el endpoint /metrics.
func runSync(ctx context.Context, cfg *config.Config, store ports.PoolStore, coord *coordinator.Coordinator, m *metrics.Metrics, once bool) error {
	slog.Info("squarebot starting",
		"interval", cfg.SyncInterval(),
		"driver", cfg.Storage.Driver,
		"provider", cfg.Provider.BaseURL,
		"once", once,
	)

	if cfg.Metrics.Addr != "" && !once {
		srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: metricsMux(m), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", "err", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		slog.Info("metrics listening", "addr", cfg.Metrics.Addr)
	}

	// el agregado arranca coherente aunque se haya editado la base a mano
	if _, err := coord.RecomputeTotals(ctx); err != nil {
		slog.Warn("initial locked total failed", "err", err)
	}

	provider := espn.NewClient(cfg.Provider.BaseURL, cfg.Provider.Rate)
	p := poller.New(poller.Config{
		Interval:     cfg.SyncInterval(),
		FetchHorizon: cfg.FetchHorizon(),
		AutoLockLead: cfg.AutoLockLead(),
		Workers:      cfg.Sync.Workers,
		Once:         once,
	}, store, provider, coord, m)

	if err := p.Run(ctx); err != nil {
		return fmt.Errorf("poller: %w", err)
	}
	slog.Info("squarebot stopped cleanly")
	return nil
}

func metricsMux(m *metrics.Metrics) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return mux
}

// openStore elige el adaptador según storage.driver.
func openStore(ctx context.Context, cfg config.StorageConfig) (ports.PoolStore, error) {
	if cfg.Driver == "postgres" {
		s, err := storage.NewPostgresStore(ctx, cfg.DSN, cfg.MaxConns)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	s, err := storage.NewSQLiteStore(cfg.DSN)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
