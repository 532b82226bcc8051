// Package store persists actor replicas and quarterly report history.
package store

import (
	"context"
	"errors"

	"lifesim/internal/economy"
	"lifesim/internal/peer"
)

var ErrNotFound = errors.New("snapshot not found")

// Store is the save layer behind the game service. Everything it writes is
// plain data: snapshots and reports round-trip through JSON.
type Store interface {
	SaveSnapshot(ctx context.Context, snap peer.Snapshot) error
	LoadSnapshot(ctx context.Context, actorID string) (peer.Snapshot, error)
	ListActors(ctx context.Context) ([]string, error)
	AppendReport(ctx context.Context, actorID string, r economy.Report) error
	// Reports returns the most recent reports first.
	Reports(ctx context.Context, actorID string, limit int) ([]economy.Report, error)
	Close() error
}

const defaultReportLimit = 20

func reportLimit(limit int) int {
	if limit <= 0 || limit > 200 {
		return defaultReportLimit
	}
	return limit
}
