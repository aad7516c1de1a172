package storage

// sqlite.go: almacenamiento autoritativo de pools (SQLite, pure Go, sin CGo).
//
// Estrategia:
//   - `pools`: una fila por pool con el estado JSON y una columna `version`.
//     Cada UpdatePool lee, muta y reescribe con `WHERE version = ?`; si otro
//     escritor llegó antes no se actualiza ninguna fila → domain.ErrConflict.
//   - `audit_events`: append-only. `dedupe_key` es UNIQUE y se inserta con
//     ON CONFLICT DO NOTHING, así un reintento nunca duplica el ledger.
//   - `winners`: artefacto derivado, se reemplaza entero en cada commit.
//   - `global_stats`: una sola fila con el agregado de premios bloqueados.
//   Todo lo anterior se escribe en la misma transacción.

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/alejandrodnm/squarebot/internal/domain"
	"github.com/alejandrodnm/squarebot/internal/ports"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS pools (
    id          TEXT PRIMARY KEY,
    version     INTEGER  NOT NULL DEFAULT 1,
    locked      INTEGER  NOT NULL DEFAULT 0,
    settled     INTEGER  NOT NULL DEFAULT 0,
    start_time  TEXT,
    state       TEXT     NOT NULL,
    updated_at  TEXT     NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_events (
    id          TEXT PRIMARY KEY,
    pool_id     TEXT NOT NULL,
    kind        TEXT NOT NULL,
    dedupe_key  TEXT UNIQUE,
    payload     TEXT,
    created_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS winners (
    pool_id     TEXT    NOT NULL,
    seq         INTEGER NOT NULL,
    period      TEXT    NOT NULL,
    event_id    TEXT,
    cell_id     INTEGER NOT NULL,
    owner       TEXT,
    amount      REAL    NOT NULL DEFAULT 0,
    home_digit  INTEGER NOT NULL DEFAULT 0,
    away_digit  INTEGER NOT NULL DEFAULT 0,
    is_reverse  INTEGER NOT NULL DEFAULT 0,
    is_rollover INTEGER NOT NULL DEFAULT 0,
    is_pending  INTEGER NOT NULL DEFAULT 0,
    unclaimed   INTEGER NOT NULL DEFAULT 0,
    description TEXT,
    PRIMARY KEY (pool_id, seq)
);

CREATE TABLE IF NOT EXISTS global_stats (
    id                  INTEGER PRIMARY KEY CHECK (id = 1),
    locked_prize_total  REAL NOT NULL DEFAULT 0,
    updated_at          TEXT
);

CREATE INDEX IF NOT EXISTS idx_pools_start   ON pools(start_time);
CREATE INDEX IF NOT EXISTS idx_audit_pool    ON audit_events(pool_id, created_at);
`

// SQLiteStore implementa ports.PoolStore usando SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore abre (o crea) la base de datos en la ruta dada y aplica el schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStore: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStore: apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// CreatePool inserta un pool nuevo con version 1.
func (s *SQLiteStore) CreatePool(ctx context.Context, p domain.Pool) error {
	state, err := encodePool(p)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO pools (id, version, locked, settled, start_time, state, updated_at) VALUES (?, 1, ?, ?, ?, ?, ?)`,
		p.ID, boolInt(p.Locked), boolInt(p.Settled), formatTime(p.Game.StartTime), state, formatTime(time.Now()),
	); err != nil {
		return fmt.Errorf("storage.CreatePool %s: %w", p.ID, err)
	}
	return nil
}

// GetPool devuelve el último estado confirmado del pool.
func (s *SQLiteStore) GetPool(ctx context.Context, poolID string) (domain.Pool, error) {
	return readPool(ctx, s.db, poolID)
}

// ListPools devuelve todos los pools ordenados por inicio del partido.
func (s *SQLiteStore) ListPools(ctx context.Context) ([]domain.Pool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT version, state FROM pools ORDER BY start_time, id`)
	if err != nil {
		return nil, fmt.Errorf("storage.ListPools: query: %w", err)
	}
	defer rows.Close()

	var pools []domain.Pool
	for rows.Next() {
		var version int64
		var state string
		if err := rows.Scan(&version, &state); err != nil {
			return nil, fmt.Errorf("storage.ListPools: scan row: %w", err)
		}
		p, err := decodePool(state, version)
		if err != nil {
			return nil, err
		}
		pools = append(pools, p)
	}
	return pools, rows.Err()
}

// UpdatePool ejecuta fn sobre el estado recién leído y confirma pool, auditoría,
// winners y agregado en una sola transacción.
func (s *SQLiteStore) UpdatePool(ctx context.Context, poolID string, fn ports.MutateFunc) (ports.Commit, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ports.Commit{}, fmt.Errorf("storage.UpdatePool: begin tx: %w", err)
	}
	defer tx.Rollback()

	p, err := readPool(ctx, tx, poolID)
	if err != nil {
		return ports.Commit{}, err
	}
	readVersion := p.Version

	changes, err := fn(&p)
	if err != nil {
		return ports.Commit{}, err
	}

	state, err := encodePool(p)
	if err != nil {
		return ports.Commit{}, err
	}
	now := time.Now()
	res, err := tx.ExecContext(ctx, `
		UPDATE pools
		   SET state = ?, version = version + 1, locked = ?, settled = ?, start_time = ?, updated_at = ?
		 WHERE id = ? AND version = ?`,
		state, boolInt(p.Locked), boolInt(p.Settled), formatTime(p.Game.StartTime), formatTime(now),
		poolID, readVersion,
	)
	if err != nil {
		return ports.Commit{}, fmt.Errorf("storage.UpdatePool %s: write pool: %w", poolID, err)
	}
	if n, err := res.RowsAffected(); err != nil || n == 0 {
		return ports.Commit{}, fmt.Errorf("storage.UpdatePool %s: %w", poolID, domain.ErrConflict)
	}

	commit := ports.Commit{}
	for _, ev := range changes.Audit {
		inserted, err := insertAudit(ctx, tx, ev)
		if err != nil {
			return ports.Commit{}, err
		}
		if inserted {
			commit.Audit = append(commit.Audit, ev)
		} else {
			commit.Deduped++
		}
	}

	if changes.Winners != nil {
		if err := replaceWinners(ctx, tx, poolID, changes.Winners); err != nil {
			return ports.Commit{}, err
		}
	}

	if changes.LockedTotalDelta != 0 {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO global_stats (id, locked_prize_total, updated_at) VALUES (1, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				locked_prize_total = locked_prize_total + excluded.locked_prize_total,
				updated_at         = excluded.updated_at`,
			changes.LockedTotalDelta, formatTime(now),
		); err != nil {
			return ports.Commit{}, fmt.Errorf("storage.UpdatePool %s: bump stats: %w", poolID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return ports.Commit{}, fmt.Errorf("storage.UpdatePool %s: commit: %w", poolID, err)
	}
	p.Version = readVersion + 1
	commit.Pool = p
	return commit, nil
}

// Winners devuelve los winners derivados del pool en orden de cálculo.
func (s *SQLiteStore) Winners(ctx context.Context, poolID string) ([]domain.Winner, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT period, COALESCE(event_id, ''), cell_id, COALESCE(owner, ''), amount,
		       home_digit, away_digit, is_reverse, is_rollover, is_pending, unclaimed,
		       COALESCE(description, '')
		  FROM winners
		 WHERE pool_id = ?
		 ORDER BY seq`, poolID)
	if err != nil {
		return nil, fmt.Errorf("storage.Winners: query: %w", err)
	}
	defer rows.Close()

	var out []domain.Winner
	for rows.Next() {
		var w domain.Winner
		var period string
		var rev, roll, pend, uncl int
		if err := rows.Scan(&period, &w.EventID, &w.CellID, &w.Owner, &w.Amount,
			&w.HomeDigit, &w.AwayDigit, &rev, &roll, &pend, &uncl, &w.Description); err != nil {
			return nil, fmt.Errorf("storage.Winners: scan row: %w", err)
		}
		w.Period = domain.Period(period)
		w.IsReverse, w.IsRollover, w.IsPending, w.Unclaimed = rev == 1, roll == 1, pend == 1, uncl == 1
		out = append(out, w)
	}
	return out, rows.Err()
}

// AuditEvents devuelve el ledger del pool en orden de inserción.
func (s *SQLiteStore) AuditEvents(ctx context.Context, poolID string) ([]domain.AuditEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, pool_id, kind, COALESCE(dedupe_key, ''), COALESCE(payload, ''), created_at
		  FROM audit_events
		 WHERE pool_id = ?
		 ORDER BY created_at, rowid`, poolID)
	if err != nil {
		return nil, fmt.Errorf("storage.AuditEvents: query: %w", err)
	}
	defer rows.Close()

	var out []domain.AuditEvent
	for rows.Next() {
		var e domain.AuditEvent
		var kind, payload, createdAt string
		if err := rows.Scan(&e.ID, &e.PoolID, &kind, &e.DedupeKey, &payload, &createdAt); err != nil {
			return nil, fmt.Errorf("storage.AuditEvents: scan row: %w", err)
		}
		e.Kind = domain.AuditKind(kind)
		e.Payload = decodePayload(payload)
		e.CreatedAt = parseTime(createdAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

// LockedTotal devuelve el agregado global (0 si nunca se bloqueó un pool).
func (s *SQLiteStore) LockedTotal(ctx context.Context) (float64, error) {
	var total float64
	err := s.db.QueryRowContext(ctx, `SELECT locked_prize_total FROM global_stats WHERE id = 1`).Scan(&total)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("storage.LockedTotal: %w", err)
	}
	return total, nil
}

// RecomputeLockedTotal reconstruye el agregado sumando todos los pools bloqueados.
// Idempotente: escribe el valor absoluto, no un delta.
func (s *SQLiteStore) RecomputeLockedTotal(ctx context.Context) (float64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("storage.RecomputeLockedTotal: begin tx: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT version, state FROM pools WHERE locked = 1`)
	if err != nil {
		return 0, fmt.Errorf("storage.RecomputeLockedTotal: query: %w", err)
	}
	total := 0.0
	for rows.Next() {
		var version int64
		var state string
		if err := rows.Scan(&version, &state); err != nil {
			rows.Close()
			return 0, fmt.Errorf("storage.RecomputeLockedTotal: scan row: %w", err)
		}
		p, err := decodePool(state, version)
		if err != nil {
			rows.Close()
			return 0, err
		}
		total += p.NetPot()
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("storage.RecomputeLockedTotal: rows: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO global_stats (id, locked_prize_total, updated_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			locked_prize_total = excluded.locked_prize_total,
			updated_at         = excluded.updated_at`,
		total, formatTime(time.Now()),
	); err != nil {
		return 0, fmt.Errorf("storage.RecomputeLockedTotal: write: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("storage.RecomputeLockedTotal: commit: %w", err)
	}
	return total, nil
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- helpers internos ---

// queryer es lo común entre *sql.DB y *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func readPool(ctx context.Context, q queryer, poolID string) (domain.Pool, error) {
	var version int64
	var state string
	err := q.QueryRowContext(ctx, `SELECT version, state FROM pools WHERE id = ?`, poolID).Scan(&version, &state)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Pool{}, fmt.Errorf("storage.readPool %s: %w", poolID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Pool{}, fmt.Errorf("storage.readPool %s: %w", poolID, err)
	}
	return decodePool(state, version)
}

// insertAudit devuelve false si la dedupe_key ya estaba usada.
func insertAudit(ctx context.Context, ex execer, ev domain.AuditEvent) (bool, error) {
	payload, err := encodePayload(ev.Payload)
	if err != nil {
		return false, err
	}
	res, err := ex.ExecContext(ctx, `
		INSERT INTO audit_events (id, pool_id, kind, dedupe_key, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(dedupe_key) DO NOTHING`,
		ev.ID, ev.PoolID, string(ev.Kind), nullable(ev.DedupeKey), payload, formatTime(ev.CreatedAt),
	)
	if err != nil {
		return false, fmt.Errorf("storage.insertAudit %s: %w", ev.Kind, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("storage.insertAudit %s: rows affected: %w", ev.Kind, err)
	}
	return n == 1, nil
}

func replaceWinners(ctx context.Context, ex execer, poolID string, winners []domain.Winner) error {
	if _, err := ex.ExecContext(ctx, `DELETE FROM winners WHERE pool_id = ?`, poolID); err != nil {
		return fmt.Errorf("storage.replaceWinners %s: delete: %w", poolID, err)
	}
	for i, w := range winners {
		if _, err := ex.ExecContext(ctx, `
			INSERT INTO winners
				(pool_id, seq, period, event_id, cell_id, owner, amount, home_digit, away_digit,
				 is_reverse, is_rollover, is_pending, unclaimed, description)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			poolID, i, string(w.Period), nullable(w.EventID), w.CellID, nullable(w.Owner), w.Amount,
			w.HomeDigit, w.AwayDigit, boolInt(w.IsReverse), boolInt(w.IsRollover), boolInt(w.IsPending),
			boolInt(w.Unclaimed), nullable(w.Description),
		); err != nil {
			return fmt.Errorf("storage.replaceWinners %s: insert %d: %w", poolID, i, err)
		}
	}
	return nil
}

// Compile-time interface check.
var _ ports.PoolStore = (*SQLiteStore)(nil)
