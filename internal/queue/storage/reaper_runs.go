package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/judgmentops/queue-be/internal/queue/domain"
)

// RecordReaperRun appends the audit record for one reaper sweep. Rows are
// never mutated after this write.
func (s *Storage) RecordReaperRun(ctx context.Context, run *domain.ReaperRun) error {
	query := `
		INSERT INTO reaper_runs (status, triggered_by, start_time, end_time, return_message, jobs_reset)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := s.db.ExecContext(ctx, query,
		run.Status,
		run.Trigger,
		run.StartTime,
		run.EndTime,
		run.ReturnMessage,
		run.JobsReset,
	)
	if err != nil {
		return fmt.Errorf("failed to record reaper run: %w", err)
	}
	return nil
}

// LastReaperRun returns the most recent sweep record, or nil when the reaper
// has never run.
func (s *Storage) LastReaperRun(ctx context.Context) (*domain.ReaperRun, error) {
	var run domain.ReaperRun
	err := s.db.GetContext(ctx, &run, `
		SELECT id, status, triggered_by, start_time, end_time, return_message, jobs_reset
		FROM reaper_runs
		ORDER BY start_time DESC
		LIMIT 1
	`)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get last reaper run: %w", err)
	}
	return &run, nil
}
