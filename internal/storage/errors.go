package storage

import "github.com/pkg/errors"

// ErrNotFound is returned by stores when a tracker id does not exist.
var ErrNotFound = errors.New("tracker not found")
