package storage

// postgres.go: mismo contrato que SQLiteStore sobre PostgreSQL (pgx).
//
// Diferencias con SQLite:
//   - Varios procesos pueden compartir la base, así que la lectura dentro de
//     UpdatePool usa SELECT ... FOR UPDATE y el guard de versión sigue activo.
//   - Las transacciones las abre el trm.Manager: los repos internos obtienen
//     la tx activa del contexto con trmpgx.DefaultCtxGetter.
//   - El schema vive en migrations/*.sql embebidos y se registra en
//     schema_migrations.

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	trmpgx "github.com/avito-tech/go-transaction-manager/drivers/pgxv5/v2"
	"github.com/avito-tech/go-transaction-manager/trm/v2"
	"github.com/avito-tech/go-transaction-manager/trm/v2/manager"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alejandrodnm/squarebot/internal/domain"
	"github.com/alejandrodnm/squarebot/internal/ports"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// PostgresStore implementa ports.PoolStore usando PostgreSQL.
type PostgresStore struct {
	pool      *pgxpool.Pool
	txManager trm.Manager
}

// NewPostgresStore conecta, aplica migraciones pendientes y prepara el tx manager.
func NewPostgresStore(ctx context.Context, dsn string, maxConns int) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("storage.NewPostgresStore: parse config: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = int32(maxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("storage.NewPostgresStore: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage.NewPostgresStore: ping: %w", err)
	}

	m, err := manager.New(trmpgx.NewDefaultFactory(pool))
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage.NewPostgresStore: tx manager: %w", err)
	}

	s := &PostgresStore{pool: pool, txManager: m}
	if err := s.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// runMigrations aplica en orden lexicográfico los .sql embebidos que aún no
// figuren en schema_migrations.
func (s *PostgresStore) runMigrations(ctx context.Context) error {
	const createTracker = `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			filename   TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`
	if _, err := s.pool.Exec(ctx, createTracker); err != nil {
		return fmt.Errorf("storage.runMigrations: create tracker: %w", err)
	}

	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("storage.runMigrations: read dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}

		var applied bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE filename = $1)`, name,
		).Scan(&applied); err != nil {
			return fmt.Errorf("storage.runMigrations: check %s: %w", name, err)
		}
		if applied {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("storage.runMigrations: read %s: %w", name, err)
		}

		err = s.txManager.Do(ctx, func(ctx context.Context) error {
			tr := trmpgx.DefaultCtxGetter.DefaultTrOrDB(ctx, s.pool)
			if _, err := tr.Exec(ctx, string(data)); err != nil {
				return fmt.Errorf("exec: %w", err)
			}
			if _, err := tr.Exec(ctx, `INSERT INTO schema_migrations (filename) VALUES ($1)`, name); err != nil {
				return fmt.Errorf("record: %w", err)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("storage.runMigrations %s: %w", name, err)
		}
	}
	return nil
}

// CreatePool inserta un pool nuevo con version 1.
func (s *PostgresStore) CreatePool(ctx context.Context, p domain.Pool) error {
	state, err := encodePool(p)
	if err != nil {
		return err
	}
	sqlStr, args, err := psql.Insert("pools").
		Columns("id", "version", "locked", "settled", "start_time", "state", "updated_at").
		Values(p.ID, 1, p.Locked, p.Settled, p.Game.StartTime, state, time.Now().UTC()).
		ToSql()
	if err != nil {
		return fmt.Errorf("storage.CreatePool: build: %w", err)
	}
	if _, err := s.pool.Exec(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("storage.CreatePool %s: %w", p.ID, err)
	}
	return nil
}

// GetPool devuelve el último estado confirmado del pool.
func (s *PostgresStore) GetPool(ctx context.Context, poolID string) (domain.Pool, error) {
	return s.readPool(ctx, poolID, false)
}

// ListPools devuelve todos los pools ordenados por inicio del partido.
func (s *PostgresStore) ListPools(ctx context.Context) ([]domain.Pool, error) {
	sqlStr, args, err := psql.Select("version", "state").From("pools").OrderBy("start_time", "id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("storage.ListPools: build: %w", err)
	}
	return s.queryPools(ctx, sqlStr, args...)
}

// UpdatePool: SELECT FOR UPDATE → fn → UPDATE con guard de versión → auditoría,
// winners y agregado, todo dentro de una tx del manager.
func (s *PostgresStore) UpdatePool(ctx context.Context, poolID string, fn ports.MutateFunc) (ports.Commit, error) {
	var commit ports.Commit
	err := s.txManager.Do(ctx, func(ctx context.Context) error {
		commit = ports.Commit{}
		tr := trmpgx.DefaultCtxGetter.DefaultTrOrDB(ctx, s.pool)

		p, err := s.readPool(ctx, poolID, true)
		if err != nil {
			return err
		}
		readVersion := p.Version

		changes, err := fn(&p)
		if err != nil {
			return err
		}

		state, err := encodePool(p)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		sqlStr, args, err := psql.Update("pools").
			Set("state", state).
			Set("version", sq.Expr("version + 1")).
			Set("locked", p.Locked).
			Set("settled", p.Settled).
			Set("start_time", p.Game.StartTime).
			Set("updated_at", now).
			Where(sq.Eq{"id": poolID, "version": readVersion}).
			ToSql()
		if err != nil {
			return fmt.Errorf("build update: %w", err)
		}
		tag, err := tr.Exec(ctx, sqlStr, args...)
		if err != nil {
			return fmt.Errorf("write pool: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrConflict
		}

		for _, ev := range changes.Audit {
			inserted, err := s.insertAudit(ctx, ev)
			if err != nil {
				return err
			}
			if inserted {
				commit.Audit = append(commit.Audit, ev)
			} else {
				commit.Deduped++
			}
		}

		if changes.Winners != nil {
			if err := s.replaceWinners(ctx, poolID, changes.Winners); err != nil {
				return err
			}
		}

		if changes.LockedTotalDelta != 0 {
			if _, err := tr.Exec(ctx, `
				INSERT INTO global_stats (id, locked_prize_total, updated_at) VALUES (1, $1, $2)
				ON CONFLICT (id) DO UPDATE SET
					locked_prize_total = global_stats.locked_prize_total + EXCLUDED.locked_prize_total,
					updated_at         = EXCLUDED.updated_at`,
				changes.LockedTotalDelta, now,
			); err != nil {
				return fmt.Errorf("bump stats: %w", err)
			}
		}

		p.Version = readVersion + 1
		commit.Pool = p
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrNoChange) {
			return ports.Commit{}, domain.ErrNoChange
		}
		return ports.Commit{}, fmt.Errorf("storage.UpdatePool %s: %w", poolID, err)
	}
	return commit, nil
}

// Winners devuelve los winners derivados del pool en orden de cálculo.
func (s *PostgresStore) Winners(ctx context.Context, poolID string) ([]domain.Winner, error) {
	sqlStr, args, err := psql.Select(
		"period", "COALESCE(event_id, '')", "cell_id", "COALESCE(owner, '')", "amount",
		"home_digit", "away_digit", "is_reverse", "is_rollover", "is_pending", "unclaimed",
		"COALESCE(description, '')",
	).From("winners").Where(sq.Eq{"pool_id": poolID}).OrderBy("seq").ToSql()
	if err != nil {
		return nil, fmt.Errorf("storage.Winners: build: %w", err)
	}

	rows, err := s.pool.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("storage.Winners: query: %w", err)
	}
	defer rows.Close()

	var out []domain.Winner
	for rows.Next() {
		var w domain.Winner
		var period string
		var hd, ad int16
		if err := rows.Scan(&period, &w.EventID, &w.CellID, &w.Owner, &w.Amount, &hd, &ad,
			&w.IsReverse, &w.IsRollover, &w.IsPending, &w.Unclaimed, &w.Description); err != nil {
			return nil, fmt.Errorf("storage.Winners: scan row: %w", err)
		}
		w.Period = domain.Period(period)
		w.HomeDigit, w.AwayDigit = int(hd), int(ad)
		out = append(out, w)
	}
	return out, rows.Err()
}

// AuditEvents devuelve el ledger del pool en orden de inserción.
func (s *PostgresStore) AuditEvents(ctx context.Context, poolID string) ([]domain.AuditEvent, error) {
	sqlStr, args, err := psql.Select("id", "pool_id", "kind", "COALESCE(dedupe_key, '')", "payload", "created_at").
		From("audit_events").Where(sq.Eq{"pool_id": poolID}).OrderBy("seq").ToSql()
	if err != nil {
		return nil, fmt.Errorf("storage.AuditEvents: build: %w", err)
	}

	rows, err := s.pool.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("storage.AuditEvents: query: %w", err)
	}
	defer rows.Close()

	var out []domain.AuditEvent
	for rows.Next() {
		var e domain.AuditEvent
		var kind string
		var payload []byte
		if err := rows.Scan(&e.ID, &e.PoolID, &kind, &e.DedupeKey, &payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage.AuditEvents: scan row: %w", err)
		}
		e.Kind = domain.AuditKind(kind)
		e.Payload = decodePayload(string(payload))
		out = append(out, e)
	}
	return out, rows.Err()
}

// LockedTotal devuelve el agregado global (0 si nunca se bloqueó un pool).
func (s *PostgresStore) LockedTotal(ctx context.Context) (float64, error) {
	var total float64
	err := s.pool.QueryRow(ctx, `SELECT locked_prize_total FROM global_stats WHERE id = 1`).Scan(&total)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("storage.LockedTotal: %w", err)
	}
	return total, nil
}

// RecomputeLockedTotal reconstruye el agregado desde los pools bloqueados.
func (s *PostgresStore) RecomputeLockedTotal(ctx context.Context) (float64, error) {
	var total float64
	err := s.txManager.Do(ctx, func(ctx context.Context) error {
		total = 0
		pools, err := s.queryPools(ctx, `SELECT version, state FROM pools WHERE locked FOR SHARE`)
		if err != nil {
			return err
		}
		for _, p := range pools {
			total += p.NetPot()
		}
		tr := trmpgx.DefaultCtxGetter.DefaultTrOrDB(ctx, s.pool)
		_, err = tr.Exec(ctx, `
			INSERT INTO global_stats (id, locked_prize_total, updated_at) VALUES (1, $1, NOW())
			ON CONFLICT (id) DO UPDATE SET
				locked_prize_total = EXCLUDED.locked_prize_total,
				updated_at         = EXCLUDED.updated_at`, total)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("storage.RecomputeLockedTotal: %w", err)
	}
	return total, nil
}

// Close cierra el pool de conexiones.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// --- helpers internos ---

func (s *PostgresStore) readPool(ctx context.Context, poolID string, forUpdate bool) (domain.Pool, error) {
	q := psql.Select("version", "state").From("pools").Where(sq.Eq{"id": poolID})
	if forUpdate {
		q = q.Suffix("FOR UPDATE")
	}
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return domain.Pool{}, fmt.Errorf("storage.readPool: build: %w", err)
	}

	tr := trmpgx.DefaultCtxGetter.DefaultTrOrDB(ctx, s.pool)
	var version int64
	var state []byte
	err = tr.QueryRow(ctx, sqlStr, args...).Scan(&version, &state)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Pool{}, fmt.Errorf("storage.readPool %s: %w", poolID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Pool{}, fmt.Errorf("storage.readPool %s: %w", poolID, err)
	}
	return decodePool(string(state), version)
}

func (s *PostgresStore) queryPools(ctx context.Context, sqlStr string, args ...any) ([]domain.Pool, error) {
	tr := trmpgx.DefaultCtxGetter.DefaultTrOrDB(ctx, s.pool)
	rows, err := tr.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("storage.queryPools: %w", err)
	}
	defer rows.Close()

	var pools []domain.Pool
	for rows.Next() {
		var version int64
		var state []byte
		if err := rows.Scan(&version, &state); err != nil {
			return nil, fmt.Errorf("storage.queryPools: scan row: %w", err)
		}
		p, err := decodePool(string(state), version)
		if err != nil {
			return nil, err
		}
		pools = append(pools, p)
	}
	return pools, rows.Err()
}

func (s *PostgresStore) insertAudit(ctx context.Context, ev domain.AuditEvent) (bool, error) {
	payload, err := encodePayload(ev.Payload)
	if err != nil {
		return false, err
	}
	sqlStr, args, err := psql.Insert("audit_events").
		Columns("id", "pool_id", "kind", "dedupe_key", "payload", "created_at").
		Values(ev.ID, ev.PoolID, string(ev.Kind), nullable(ev.DedupeKey), nullable(payload), ev.CreatedAt.UTC()).
		Suffix("ON CONFLICT (dedupe_key) DO NOTHING").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("storage.insertAudit: build: %w", err)
	}

	tr := trmpgx.DefaultCtxGetter.DefaultTrOrDB(ctx, s.pool)
	tag, err := tr.Exec(ctx, sqlStr, args...)
	if err != nil {
		return false, fmt.Errorf("storage.insertAudit %s: %w", ev.Kind, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) replaceWinners(ctx context.Context, poolID string, winners []domain.Winner) error {
	tr := trmpgx.DefaultCtxGetter.DefaultTrOrDB(ctx, s.pool)
	if _, err := tr.Exec(ctx, `DELETE FROM winners WHERE pool_id = $1`, poolID); err != nil {
		return fmt.Errorf("storage.replaceWinners %s: delete: %w", poolID, err)
	}
	if len(winners) == 0 {
		return nil
	}

	q := psql.Insert("winners").Columns(
		"pool_id", "seq", "period", "event_id", "cell_id", "owner", "amount", "home_digit", "away_digit",
		"is_reverse", "is_rollover", "is_pending", "unclaimed", "description",
	)
	for i, w := range winners {
		q = q.Values(poolID, i, string(w.Period), nullable(w.EventID), w.CellID, nullable(w.Owner), w.Amount,
			w.HomeDigit, w.AwayDigit, w.IsReverse, w.IsRollover, w.IsPending, w.Unclaimed, nullable(w.Description))
	}
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("storage.replaceWinners: build: %w", err)
	}
	if _, err := tr.Exec(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("storage.replaceWinners %s: insert: %w", poolID, err)
	}
	return nil
}

var _ ports.PoolStore = (*PostgresStore)(nil)
