package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/judgmentops/queue-be/internal/queue/domain"
)

// UpsertHeartbeat records worker liveness. The first call from a worker
// creates its row; subsequent calls only bump last_heartbeat.
func (s *Storage) UpsertHeartbeat(ctx context.Context, workerID, hostname string) error {
	query := `
		INSERT INTO worker_heartbeats (worker_id, hostname, started_at, last_heartbeat)
		VALUES ($1, $2, now(), now())
		ON CONFLICT (worker_id) DO UPDATE SET last_heartbeat = now()
	`

	_, err := s.db.ExecContext(ctx, query, workerID, hostname)
	if err != nil {
		return fmt.Errorf("failed to upsert heartbeat: %w", err)
	}

	s.logger.Debug("Worker heartbeat recorded", slog.String("worker_id", workerID))
	return nil
}

// DeleteHeartbeat removes a worker's liveness row on clean shutdown so it
// does not linger until the stale-row prune.
func (s *Storage) DeleteHeartbeat(ctx context.Context, workerID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM worker_heartbeats WHERE worker_id = $1`, workerID)
	if err != nil {
		return fmt.Errorf("failed to delete heartbeat: %w", err)
	}
	return nil
}

// CountWorkers returns the total number of heartbeat rows and how many of
// them beat within the liveness window.
func (s *Storage) CountWorkers(ctx context.Context, window time.Duration) (total, active int, err error) {
	query := `
		SELECT
			count(*),
			count(*) FILTER (WHERE last_heartbeat > now() - make_interval(secs => $1))
		FROM worker_heartbeats
	`

	row := s.db.QueryRowContext(ctx, query, window.Seconds())
	if err := row.Scan(&total, &active); err != nil {
		return 0, 0, fmt.Errorf("failed to count workers: %w", err)
	}
	return total, active, nil
}

// LastHeartbeat returns the most recent heartbeat across all workers, or nil
// when no worker has ever registered.
func (s *Storage) LastHeartbeat(ctx context.Context) (*time.Time, error) {
	var hb domain.WorkerHeartbeat
	err := s.db.GetContext(ctx, &hb, `
		SELECT worker_id, hostname, started_at, last_heartbeat
		FROM worker_heartbeats
		ORDER BY last_heartbeat DESC
		LIMIT 1
	`)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get last heartbeat: %w", err)
	}
	return &hb.LastHeartbeat, nil
}

// PruneHeartbeats deletes heartbeat rows stale past the given age. Stale rows
// are already ignored by CountWorkers; pruning just keeps the table from
// accumulating one row per dead worker forever.
func (s *Storage) PruneHeartbeats(ctx context.Context, olderThan time.Duration) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM worker_heartbeats WHERE last_heartbeat < now() - make_interval(secs => $1)`,
		olderThan.Seconds(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to prune heartbeats: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows > 0 {
		s.logger.Info("Pruned stale worker heartbeats", slog.Int64("count", rows))
	}
	return rows, nil
}
