package storage

import (
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestErrNotFound_Wrapped(t *testing.T) {
	err := errors.Wrapf(ErrNotFound, "get tracker %d", 7)
	require.True(t, errors.Is(err, ErrNotFound))
	require.Equal(t, ErrNotFound, errors.Cause(err))
	require.Contains(t, fmt.Sprintf("%+v", ErrNotFound), "storage.init")
}
