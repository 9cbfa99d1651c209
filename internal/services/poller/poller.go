package poller

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BearBump/ParcelBox/internal/models"
	"github.com/BearBump/ParcelBox/internal/services/engine"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type Repository interface {
	ListAllTrackers(ctx context.Context) ([]*models.Tracker, error)
}

type Evaluator interface {
	Evaluate(ctx context.Context, t *models.Tracker) (engine.Outcome, error)
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

// Poller evaluates every tracker once per cycle, forever.
// One tracker failing never aborts the cycle.
type Poller struct {
	repo Repository
	eval Evaluator
	rl   RateLimiter
	log  *zap.Logger

	pollInterval       time.Duration
	concurrency        int
	rateLimitPerMinute int64
	carrierRateLimits  map[string]int64
	rateLimitWait      time.Duration

	triggerCh chan struct{}

	startedAtUnixNano   int64
	lastCycleUnixNano   atomic.Int64
	lastTriggerUnixNano atomic.Int64
	totalCycles         atomic.Int64
	totalListed         atomic.Int64
	totalEvaluated      atomic.Int64
	totalNotified       atomic.Int64
	totalPrompted       atomic.Int64
	totalErrors         atomic.Int64
	inFlight            atomic.Int64
	lastErrorMu         sync.Mutex
	lastError           string
}

func New(repo Repository, eval Evaluator, rl RateLimiter, log *zap.Logger) *Poller {
	if log == nil {
		log = zap.NewNop()
	}
	return &Poller{
		repo: repo, eval: eval, rl: rl, log: log,
		pollInterval:       60 * time.Second,
		concurrency:        1,
		rateLimitPerMinute: 120,
		carrierRateLimits:  map[string]int64{},
		rateLimitWait:      500 * time.Millisecond,
		triggerCh:          make(chan struct{}, 1),
		startedAtUnixNano:  time.Now().UTC().UnixNano(),
	}
}

func (p *Poller) WithSettings(pollInterval time.Duration, concurrency int, rlPerMin int64) *Poller {
	if pollInterval > 0 {
		p.pollInterval = pollInterval
	}
	if concurrency > 0 {
		p.concurrency = concurrency
	}
	if rlPerMin > 0 {
		p.rateLimitPerMinute = rlPerMin
	}
	return p
}

// WithCarrierRateLimits overrides the per-minute limit for individual carrier codes.
func (p *Poller) WithCarrierRateLimits(limits map[string]int) *Poller {
	for code, n := range limits {
		if n > 0 {
			p.carrierRateLimits[strings.ToLower(code)] = int64(n)
		}
	}
	return p
}

func (p *Poller) PollInterval() time.Duration {
	return p.pollInterval
}

// Trigger forces an immediate poll cycle (best-effort, non-blocking).
func (p *Poller) Trigger() {
	p.lastTriggerUnixNano.Store(time.Now().UTC().UnixNano())
	select {
	case p.triggerCh <- struct{}{}:
	default:
	}
}

type Stats struct {
	StartedAt      time.Time  `json:"startedAt"`
	LastCycleAt    *time.Time `json:"lastCycleAt,omitempty"`
	LastTriggerAt  *time.Time `json:"lastTriggerAt,omitempty"`
	TotalCycles    int64      `json:"totalCycles"`
	TotalListed    int64      `json:"totalListed"`
	TotalEvaluated int64      `json:"totalEvaluated"`
	TotalNotified  int64      `json:"totalNotified"`
	TotalPrompted  int64      `json:"totalPrompted"`
	TotalErrors    int64      `json:"totalErrors"`
	InFlight       int64      `json:"inFlight"`
	LastError      string     `json:"lastError,omitempty"`
}

func (p *Poller) Stats() Stats {
	st := Stats{
		StartedAt:      time.Unix(0, p.startedAtUnixNano).UTC(),
		TotalCycles:    p.totalCycles.Load(),
		TotalListed:    p.totalListed.Load(),
		TotalEvaluated: p.totalEvaluated.Load(),
		TotalNotified:  p.totalNotified.Load(),
		TotalPrompted:  p.totalPrompted.Load(),
		TotalErrors:    p.totalErrors.Load(),
		InFlight:       p.inFlight.Load(),
	}
	if n := p.lastCycleUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastCycleAt = &t
	}
	if n := p.lastTriggerUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastTriggerAt = &t
	}
	p.lastErrorMu.Lock()
	st.LastError = p.lastError
	p.lastErrorMu.Unlock()
	return st
}

// Run polls until ctx is cancelled. The first cycle starts immediately.
func (p *Poller) Run(ctx context.Context) error {
	t := time.NewTicker(p.pollInterval)
	defer t.Stop()

	p.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			p.runOnce(ctx)
		case <-p.triggerCh:
			p.runOnce(ctx)
		}
	}
}

func (p *Poller) runOnce(ctx context.Context) {
	now := time.Now().UTC()
	p.lastCycleUnixNano.Store(now.UnixNano())
	p.totalCycles.Add(1)

	items, err := p.repo.ListAllTrackers(ctx)
	if err != nil {
		p.log.Error("list trackers", zap.Error(err))
		p.setLastError(err)
		return
	}
	p.totalListed.Add(int64(len(items)))

	sem := make(chan struct{}, p.concurrency)
	var wg sync.WaitGroup
	for _, tr := range items {
		// на остановке новые треки не берём, но дожидаемся уже запущенных
		select {
		case <-ctx.Done():
		case sem <- struct{}{}:
		}
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		trCopy := tr
		p.inFlight.Add(1)
		go func() {
			defer func() {
				p.inFlight.Add(-1)
				<-sem
				wg.Done()
			}()
			if err := p.processOne(ctx, trCopy); err != nil {
				p.totalErrors.Add(1)
				p.setLastError(err)
				p.log.Error("evaluate tracker", zap.Int64("tracker_id", trCopy.ID), zap.Error(err))
			}
			p.totalEvaluated.Add(1)
		}()
	}
	wg.Wait()
}

func (p *Poller) processOne(ctx context.Context, tr *models.Tracker) error {
	if err := p.waitRateLimit(ctx, tr.Carrier); err != nil {
		return err
	}

	out, err := p.eval.Evaluate(ctx, tr)
	if out.Notified {
		p.totalNotified.Add(1)
	}
	if out.Prompted {
		p.totalPrompted.Add(1)
	}
	return err
}

func (p *Poller) waitRateLimit(ctx context.Context, carrierCode string) error {
	if p.rl == nil || p.rateLimitPerMinute <= 0 {
		return nil
	}
	limit := p.rateLimitPerMinute
	if l, ok := p.carrierRateLimits[strings.ToLower(carrierCode)]; ok {
		limit = l
	}

	key := fmt.Sprintf("rl:carrier:%s", strings.ToLower(carrierCode))
	for {
		allowed, n, err := p.rl.Allow(ctx, key, limit, time.Minute)
		if err != nil {
			return errors.Wrap(err, "rate limit")
		}
		if allowed {
			return nil
		}
		// Слишком много запросов в минуту: ждём, чтобы разгрузить источник.
		p.log.Warn("rate limit exceeded", zap.String("carrier", carrierCode), zap.Int64("count", n))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.rateLimitWait):
		}
	}
}

func (p *Poller) setLastError(err error) {
	p.lastErrorMu.Lock()
	p.lastError = err.Error()
	p.lastErrorMu.Unlock()
}
