package poller

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/BearBump/ParcelBox/internal/models"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	mu    sync.Mutex
	calls int
	items []*models.Tracker
	err   error
}

func (r *fakeRepo) ListAllTrackers(ctx context.Context) ([]*models.Tracker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return r.items, r.err
}

func (r *fakeRepo) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func TestPoller_Run_StopsOnContextCancel(t *testing.T) {
	repo := &fakeRepo{}
	p := New(repo, &fakeEval{}, nil, nil).WithSettings(5*time.Millisecond, 1, 1)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := p.Run(ctx)
	require.Error(t, err)
	require.GreaterOrEqual(t, repo.callCount(), 2)
}

func TestPoller_Run_FirstCycleImmediateAndTrigger(t *testing.T) {
	repo := &fakeRepo{}
	p := New(repo, &fakeEval{}, nil, nil).WithSettings(time.Hour, 1, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool { return repo.callCount() == 1 }, time.Second, time.Millisecond)
	p.Trigger()
	require.Eventually(t, func() bool { return repo.callCount() == 2 }, time.Second, time.Millisecond)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}
