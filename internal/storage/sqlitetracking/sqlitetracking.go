package sqlitetracking

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BearBump/ParcelBox/internal/models"
	"github.com/BearBump/ParcelBox/internal/storage"
	"github.com/pkg/errors"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schema string

// Storage keeps trackers in a single SQLite file. Times are stored as unix milliseconds.
type Storage struct {
	db *sql.DB
}

func New(ctx context.Context, path string, busyTimeout time.Duration) (*Storage, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "create sqlite dir")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	// один писатель
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if busyTimeout <= 0 {
		busyTimeout = 5 * time.Second
	}
	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeout.Milliseconds()),
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, errors.Wrap(err, "sqlite pragma")
		}
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "init schema")
	}
	return &Storage{db: db}, nil
}

func (s *Storage) Ping(ctx context.Context) error {
	return errors.Wrap(s.db.PingContext(ctx), "ping sqlite")
}

func (s *Storage) Close() {
	if s.db != nil {
		_ = s.db.Close()
	}
}

const trackerColumns = `id, subscriber_id, carrier, tracking_number, added_at, last_observed_event_time, retain`

func (s *Storage) CreateTracker(ctx context.Context, in models.TrackerCreateInput) (*models.Tracker, error) {
	now := time.Now().UTC()
	row := s.db.QueryRowContext(ctx, `
INSERT INTO trackers (subscriber_id, carrier, tracking_number, added_at, last_observed_event_time, retain)
VALUES (?,?,?,?,?,0)
RETURNING `+trackerColumns,
		in.SubscriberID, in.Carrier, in.TrackingNumber, now.UnixMilli(), in.LastObservedEventTime.UnixMilli())

	t, err := scanTracker(row)
	if err != nil {
		return nil, errors.Wrap(err, "insert tracker")
	}
	return t, nil
}

func (s *Storage) GetTracker(ctx context.Context, id int64) (*models.Tracker, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+trackerColumns+` FROM trackers WHERE id = ?`, id)
	t, err := scanTracker(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "select tracker")
	}
	return t, nil
}

func (s *Storage) ListTrackersBySubscriber(ctx context.Context, subscriberID int64) ([]*models.Tracker, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+trackerColumns+` FROM trackers WHERE subscriber_id = ? ORDER BY id`, subscriberID)
	if err != nil {
		return nil, errors.Wrap(err, "select trackers by subscriber")
	}
	return collectTrackers(rows)
}

func (s *Storage) ListAllTrackers(ctx context.Context) ([]*models.Tracker, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+trackerColumns+` FROM trackers ORDER BY id`)
	if err != nil {
		return nil, errors.Wrap(err, "select trackers")
	}
	return collectTrackers(rows)
}

func (s *Storage) AdvanceLastObserved(ctx context.Context, id int64, t time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE trackers SET last_observed_event_time = ? WHERE id = ? AND last_observed_event_time < ?`,
		t.UnixMilli(), id, t.UnixMilli())
	if err != nil {
		return false, errors.Wrap(err, "advance last observed")
	}
	return affectedOne(res)
}

func (s *Storage) SetRetain(ctx context.Context, id, subscriberID int64, retain bool) (bool, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE trackers SET retain = ? WHERE id = ? AND subscriber_id = ?`, retain, id, subscriberID)
	if err != nil {
		return false, errors.Wrap(err, "set retain")
	}
	return affectedOne(res)
}

func (s *Storage) DeleteTracker(ctx context.Context, id, subscriberID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM trackers WHERE id = ? AND subscriber_id = ?`, id, subscriberID)
	if err != nil {
		return false, errors.Wrap(err, "delete tracker")
	}
	return affectedOne(res)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTracker(row scanner) (*models.Tracker, error) {
	var (
		t                   models.Tracker
		addedMs, observedMs int64
	)
	if err := row.Scan(&t.ID, &t.SubscriberID, &t.Carrier, &t.TrackingNumber, &addedMs, &observedMs, &t.Retain); err != nil {
		return nil, err
	}
	t.AddedAt = time.UnixMilli(addedMs).UTC()
	t.LastObservedEventTime = time.UnixMilli(observedMs).UTC()
	return &t, nil
}

func collectTrackers(rows *sql.Rows) ([]*models.Tracker, error) {
	defer rows.Close()

	out := make([]*models.Tracker, 0)
	for rows.Next() {
		t, err := scanTracker(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan tracker")
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "rows")
	}
	return out, nil
}

func affectedOne(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "rows affected")
	}
	return n == 1, nil
}
