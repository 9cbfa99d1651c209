package pgtracking

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS trackers (
  id BIGSERIAL PRIMARY KEY,
  subscriber_id BIGINT NOT NULL,
  carrier TEXT NOT NULL,
  tracking_number TEXT NOT NULL,
  added_at TIMESTAMPTZ NOT NULL,
  last_observed_event_time TIMESTAMPTZ NOT NULL,
  retain BOOLEAN NOT NULL DEFAULT FALSE
)`,
		`CREATE INDEX IF NOT EXISTS idx_trackers_subscriber_id ON trackers(subscriber_id)`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
