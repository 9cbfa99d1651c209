package pgtracking

import (
	"context"
	"time"

	"github.com/BearBump/ParcelBox/internal/models"
	"github.com/BearBump/ParcelBox/internal/storage"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

const trackerColumns = `id, subscriber_id, carrier, tracking_number, added_at, last_observed_event_time, retain`

func (s *Storage) CreateTracker(ctx context.Context, in models.TrackerCreateInput) (*models.Tracker, error) {
	now := time.Now().UTC()

	row := s.db.QueryRow(ctx, `
INSERT INTO trackers (subscriber_id, carrier, tracking_number, added_at, last_observed_event_time, retain)
VALUES ($1,$2,$3,$4,$5,FALSE)
RETURNING `+trackerColumns,
		in.SubscriberID, in.Carrier, in.TrackingNumber, now, in.LastObservedEventTime.UTC())

	t, err := scanTracker(row)
	if err != nil {
		return nil, errors.Wrap(err, "insert tracker")
	}
	return t, nil
}

func (s *Storage) GetTracker(ctx context.Context, id int64) (*models.Tracker, error) {
	row := s.db.QueryRow(ctx, `SELECT `+trackerColumns+` FROM trackers WHERE id = $1`, id)
	t, err := scanTracker(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "select tracker")
	}
	return t, nil
}

func (s *Storage) ListTrackersBySubscriber(ctx context.Context, subscriberID int64) ([]*models.Tracker, error) {
	rows, err := s.db.Query(ctx, `SELECT `+trackerColumns+` FROM trackers WHERE subscriber_id = $1 ORDER BY id`, subscriberID)
	if err != nil {
		return nil, errors.Wrap(err, "select trackers by subscriber")
	}
	return collectTrackers(rows)
}

func (s *Storage) ListAllTrackers(ctx context.Context) ([]*models.Tracker, error) {
	rows, err := s.db.Query(ctx, `SELECT `+trackerColumns+` FROM trackers ORDER BY id`)
	if err != nil {
		return nil, errors.Wrap(err, "select trackers")
	}
	return collectTrackers(rows)
}

// AdvanceLastObserved moves last_observed_event_time forward to t.
// It reports false when the row is gone or already at or after t.
func (s *Storage) AdvanceLastObserved(ctx context.Context, id int64, t time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, `
UPDATE trackers
SET last_observed_event_time = $2
WHERE id = $1 AND last_observed_event_time < $2
`, id, t.UTC())
	if err != nil {
		return false, errors.Wrap(err, "advance last observed")
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Storage) SetRetain(ctx context.Context, id, subscriberID int64, retain bool) (bool, error) {
	tag, err := s.db.Exec(ctx, `UPDATE trackers SET retain = $3 WHERE id = $1 AND subscriber_id = $2`, id, subscriberID, retain)
	if err != nil {
		return false, errors.Wrap(err, "set retain")
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Storage) DeleteTracker(ctx context.Context, id, subscriberID int64) (bool, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM trackers WHERE id = $1 AND subscriber_id = $2`, id, subscriberID)
	if err != nil {
		return false, errors.Wrap(err, "delete tracker")
	}
	return tag.RowsAffected() == 1, nil
}

func scanTracker(row pgx.Row) (*models.Tracker, error) {
	var t models.Tracker
	if err := row.Scan(
		&t.ID, &t.SubscriberID, &t.Carrier, &t.TrackingNumber,
		&t.AddedAt, &t.LastObservedEventTime, &t.Retain,
	); err != nil {
		return nil, err
	}
	t.AddedAt = t.AddedAt.UTC()
	t.LastObservedEventTime = t.LastObservedEventTime.UTC()
	return &t, nil
}

func collectTrackers(rows pgx.Rows) ([]*models.Tracker, error) {
	defer rows.Close()

	out := make([]*models.Tracker, 0)
	for rows.Next() {
		t, err := scanTracker(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan tracker")
		}
		out = append(out, t)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}
