package handler

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/judgmentops/queue-be/internal/queue/storage"
)

// Job listings paginate on a (created_at, job_id) keyset. The cursor is an
// opaque base64 token to clients, "unixnano|job_id" underneath.

func EncodeJobCursor(cursor *storage.JobCursor) string {
	raw := fmt.Sprintf("%d|%s", cursor.CreatedAt.UnixNano(), cursor.JobID)
	return base64.StdEncoding.EncodeToString([]byte(raw))
}

func DecodeJobCursor(token string) (*storage.JobCursor, error) {
	if token == "" {
		return nil, nil
	}

	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("malformed cursor: %w", err)
	}

	nanosStr, jobID, ok := strings.Cut(string(raw), "|")
	if !ok || jobID == "" {
		return nil, fmt.Errorf("malformed cursor: missing separator")
	}

	nanos, err := strconv.ParseInt(nanosStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("malformed cursor timestamp: %w", err)
	}

	return &storage.JobCursor{
		CreatedAt: time.Unix(0, nanos),
		JobID:     jobID,
	}, nil
}
