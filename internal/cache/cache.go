package cache

import (
	"context"
	"strconv"
	"time"
)

// BytesCache is a best-effort key/value cache. A miss is (nil, false, nil).
type BytesCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Locker serializes work on one key. The returned func releases the lock
// and is safe to call once.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// SnapshotKey is where the last fetched parcel of a tracker is cached.
func SnapshotKey(trackerID int64) string {
	return "parcelbox:tracker:" + strconv.FormatInt(trackerID, 10) + ":snapshot"
}
