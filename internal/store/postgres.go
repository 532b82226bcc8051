package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"lifesim/internal/economy"
	"lifesim/internal/peer"
)

// Postgres stores snapshots as JSONB rows. The pool is owned by the caller.
type Postgres struct {
	db *pgxpool.Pool
}

func NewPostgres(ctx context.Context, db *pgxpool.Pool) (*Postgres, error) {
	s := &Postgres{db: db}
	if err := s.migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Postgres) migrate(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
		CREATE SCHEMA IF NOT EXISTS lifesim;

		CREATE TABLE IF NOT EXISTS lifesim.replicas (
			actor_id text PRIMARY KEY,
			turn integer NOT NULL,
			cash bigint NOT NULL,
			snapshot jsonb NOT NULL,
			updated_at timestamptz NOT NULL DEFAULT now()
		);

		CREATE TABLE IF NOT EXISTS lifesim.reports (
			id bigserial PRIMARY KEY,
			actor_id text NOT NULL,
			turn integer NOT NULL,
			net_profit bigint NOT NULL,
			report jsonb NOT NULL,
			created_at timestamptz NOT NULL DEFAULT now()
		);

		CREATE INDEX IF NOT EXISTS reports_actor_idx ON lifesim.reports (actor_id, id DESC);
	`)
	return err
}

func (s *Postgres) Close() error {
	return nil
}

func (s *Postgres) SaveSnapshot(ctx context.Context, snap peer.Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO lifesim.replicas (actor_id, turn, cash, snapshot, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (actor_id) DO UPDATE
		SET turn = EXCLUDED.turn,
		    cash = EXCLUDED.cash,
		    snapshot = EXCLUDED.snapshot,
		    updated_at = now()
	`, snap.Player.ID, snap.Turn, snap.Player.Cash, raw)
	return err
}

func (s *Postgres) LoadSnapshot(ctx context.Context, actorID string) (peer.Snapshot, error) {
	var raw []byte
	err := s.db.QueryRow(ctx, `SELECT snapshot FROM lifesim.replicas WHERE actor_id = $1`, actorID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return peer.Snapshot{}, fmt.Errorf("%w: %s", ErrNotFound, actorID)
	}
	if err != nil {
		return peer.Snapshot{}, err
	}
	var snap peer.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return peer.Snapshot{}, fmt.Errorf("decode snapshot %s: %w", actorID, err)
	}
	return snap, nil
}

func (s *Postgres) ListActors(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT actor_id FROM lifesim.replicas ORDER BY actor_id`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (s *Postgres) AppendReport(ctx context.Context, actorID string, r economy.Report) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO lifesim.reports (actor_id, turn, net_profit, report)
		VALUES ($1, $2, $3, $4)
	`, actorID, r.Turn, r.NetProfit, raw)
	return err
}

func (s *Postgres) Reports(ctx context.Context, actorID string, limit int) ([]economy.Report, error) {
	rows, err := s.db.Query(ctx, `
		SELECT report
		FROM lifesim.reports
		WHERE actor_id = $1
		ORDER BY id DESC
		LIMIT $2
	`, actorID, reportLimit(limit))
	if err != nil {
		return nil, err
	}
	raws, err := pgx.CollectRows(rows, pgx.RowTo[[]byte])
	if err != nil {
		return nil, err
	}
	out := make([]economy.Report, 0, len(raws))
	for _, raw := range raws {
		var r economy.Report
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, fmt.Errorf("decode report: %w", err)
		}
		out = append(out, r)
	}
	return out, nil
}
