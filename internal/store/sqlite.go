package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"lifesim/internal/economy"
	"lifesim/internal/peer"
)

// SQLite keeps replicas in a local file, for single-process deployments and
// tests.
type SQLite struct {
	conn *sqlx.DB
}

func OpenSQLite(path string) (*SQLite, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer avoids SQLITE_BUSY under the parallel quarter advance.
	conn.SetMaxOpenConns(1)

	db := &SQLite{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

func (db *SQLite) Close() error {
	return db.conn.Close()
}

func (db *SQLite) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS replicas (
		actor_id TEXT PRIMARY KEY,
		turn INTEGER NOT NULL,
		cash INTEGER NOT NULL,
		snapshot_json TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS reports (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		actor_id TEXT NOT NULL,
		turn INTEGER NOT NULL,
		net_profit INTEGER NOT NULL,
		report_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_reports_actor ON reports(actor_id, id);
	`
	_, err := db.conn.Exec(schema)
	return err
}

func (db *SQLite) SaveSnapshot(ctx context.Context, snap peer.Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO replicas (actor_id, turn, cash, snapshot_json, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(actor_id) DO UPDATE SET
			turn = excluded.turn,
			cash = excluded.cash,
			snapshot_json = excluded.snapshot_json,
			updated_at = excluded.updated_at
	`, snap.Player.ID, snap.Turn, snap.Player.Cash, string(raw), time.Now().UTC().Format(time.RFC3339))
	return err
}

func (db *SQLite) LoadSnapshot(ctx context.Context, actorID string) (peer.Snapshot, error) {
	var raw string
	err := db.conn.GetContext(ctx, &raw, "SELECT snapshot_json FROM replicas WHERE actor_id = ?", actorID)
	if errors.Is(err, sql.ErrNoRows) {
		return peer.Snapshot{}, fmt.Errorf("%w: %s", ErrNotFound, actorID)
	}
	if err != nil {
		return peer.Snapshot{}, err
	}
	var snap peer.Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return peer.Snapshot{}, fmt.Errorf("decode snapshot %s: %w", actorID, err)
	}
	return snap, nil
}

func (db *SQLite) ListActors(ctx context.Context) ([]string, error) {
	var ids []string
	err := db.conn.SelectContext(ctx, &ids, "SELECT actor_id FROM replicas ORDER BY actor_id")
	return ids, err
}

func (db *SQLite) AppendReport(ctx context.Context, actorID string, r economy.Report) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	_, err = db.conn.ExecContext(ctx,
		"INSERT INTO reports (actor_id, turn, net_profit, report_json) VALUES (?, ?, ?, ?)",
		actorID, r.Turn, r.NetProfit, string(raw))
	return err
}

func (db *SQLite) Reports(ctx context.Context, actorID string, limit int) ([]economy.Report, error) {
	var rows []string
	err := db.conn.SelectContext(ctx, &rows,
		"SELECT report_json FROM reports WHERE actor_id = ? ORDER BY id DESC LIMIT ?",
		actorID, reportLimit(limit))
	if err != nil {
		return nil, err
	}
	out := make([]economy.Report, 0, len(rows))
	for _, raw := range rows {
		var r economy.Report
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, fmt.Errorf("decode report: %w", err)
		}
		out = append(out, r)
	}
	return out, nil
}
