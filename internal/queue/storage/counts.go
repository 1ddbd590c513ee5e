package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/judgmentops/queue-be/internal/queue/domain"
)

// StatusCounts returns the number of jobs per status. Statuses with no jobs
// are absent from the map.
func (s *Storage) StatusCounts(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, count(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count jobs by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		counts[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate status counts: %w", err)
	}
	return counts, nil
}

// CountStuck returns the number of processing jobs whose started_at is older
// than the timeout. This is the same predicate ResetStuck repairs, so a
// non-zero count means the reaper has work outstanding.
func (s *Storage) CountStuck(ctx context.Context, timeout time.Duration) (int64, error) {
	var n int64
	err := s.db.GetContext(ctx, &n,
		`SELECT count(*) FROM jobs WHERE status = $1 AND started_at < now() - make_interval(secs => $2)`,
		domain.JobStatusProcessing, timeout.Seconds(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to count stuck jobs: %w", err)
	}
	return n, nil
}

// CountFailedSince returns the number of jobs sitting in the terminal failed
// state that got there after the cutoff.
func (s *Storage) CountFailedSince(ctx context.Context, since time.Time) (int64, error) {
	var n int64
	err := s.db.GetContext(ctx, &n,
		`SELECT count(*) FROM jobs WHERE status = $1 AND updated_at >= $2`,
		domain.JobStatusFailed, since,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to count recent failures: %w", err)
	}
	return n, nil
}
