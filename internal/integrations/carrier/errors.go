package carrier

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrUnknownCarrier = errors.New("unknown carrier")
	// ErrNotFound means the source acknowledged that the number does not exist.
	ErrNotFound = errors.New("tracking number not found")
)

// SourceError is a transient failure talking to a carrier: transport, unexpected
// HTTP status, malformed body or missing required fields.
type SourceError struct {
	Carrier string
	Op      string
	Err     error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Carrier, e.Op, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

func NewSourceError(carrier, op string, err error) error {
	return &SourceError{Carrier: carrier, Op: op, Err: err}
}

func IsSourceError(err error) bool {
	var se *SourceError
	return errors.As(err, &se)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
