package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/BearBump/ParcelBox/config"
	"github.com/BearBump/ParcelBox/internal/integrations/carrier"
	"github.com/BearBump/ParcelBox/internal/models"
	"github.com/BearBump/ParcelBox/internal/notify"
	"github.com/BearBump/ParcelBox/internal/notify/kafkasink"
	"github.com/BearBump/ParcelBox/internal/services/engine"
	"github.com/BearBump/ParcelBox/internal/services/poller"
	"github.com/BearBump/ParcelBox/internal/storage"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeStore struct {
	mu       sync.Mutex
	trackers map[int64]*models.Tracker
	pingErr  error
}

func newFakeStore(ts ...*models.Tracker) *fakeStore {
	s := &fakeStore{trackers: map[int64]*models.Tracker{}}
	for _, t := range ts {
		s.trackers[t.ID] = t
	}
	return s
}

func (s *fakeStore) ListAllTrackers(ctx context.Context) ([]*models.Tracker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Tracker, 0, len(s.trackers))
	for _, t := range s.trackers {
		cp := *t
		out = append(out, &cp)
	}
	return out, nil
}

func (s *fakeStore) GetTracker(ctx context.Context, id int64) (*models.Tracker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trackers[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *fakeStore) AdvanceLastObserved(ctx context.Context, id int64, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trackers[id]
	if !ok || !t.LastObservedEventTime.Before(at) {
		return false, nil
	}
	t.LastObservedEventTime = at
	return true, nil
}

func (s *fakeStore) Ping(ctx context.Context) error { return s.pingErr }

type fetcherFunc func(ctx context.Context, carrier, number string) (*models.Parcel, error)

func (f fetcherFunc) Fetch(ctx context.Context, c, n string) (*models.Parcel, error) { return f(ctx, c, n) }

func TestDefaultWorkerFactories_SelectSink(t *testing.T) {
	f := defaultWorkerFactories()

	s, closeFn, err := f.newSink(&config.Config{Kafka: config.KafkaConfig{Host: "localhost", Port: 9092}}, zap.NewNop())
	require.NoError(t, err)
	_, ok := s.(*kafkasink.Sink)
	require.True(t, ok)
	closeFn()

	s, closeFn, err = f.newSink(&config.Config{}, zap.NewNop())
	require.NoError(t, err)
	_, ok = s.(notify.SinkFunc)
	require.True(t, ok)
	require.NoError(t, s.Notify(context.Background(), notify.NewText(1, "hi")))
	closeFn()
}

func TestDefaultWorkerFactories_Redis(t *testing.T) {
	f := defaultWorkerFactories()

	rd := f.newRedis(&config.Config{}, zap.NewNop())
	_, ok := rd.locker.(*engine.LocalLocker)
	require.True(t, ok)
	require.Nil(t, rd.snapshots)
	require.Nil(t, rd.rl)
	rd.close()

	mr := miniredis.RunT(t)
	host, port := mr.Host(), mr.Server().Addr().Port
	rd = f.newRedis(&config.Config{Redis: config.RedisConfig{Host: host, Port: port}}, zap.NewNop())
	require.NotNil(t, rd.snapshots)
	require.NotNil(t, rd.rl)

	unlock, err := rd.locker.Lock(context.Background(), "tracker:1")
	require.NoError(t, err)
	unlock()
	rd.close()
}

func TestDefaultWorkerFactories_Fetcher(t *testing.T) {
	f := defaultWorkerFactories()
	r, ok := f.newFetcher(&config.Config{Carriers: config.CarriersConfig{EnableFake: true}}, zap.NewNop()).(*carrier.Registry)
	require.True(t, ok)
	require.Contains(t, r.Codes(), "fake")
}

func testFactories(st *fakeStore, fetch engine.Fetcher, sink notify.Sink, closed *bool) workerFactories {
	return workerFactories{
		newStorage: func(ctx context.Context, cfg *config.Config, log *zap.Logger) (workerStore, func(), error) {
			return st, func() { *closed = true }, nil
		},
		newSink: func(cfg *config.Config, log *zap.Logger) (notify.Sink, func(), error) {
			return sink, func() {}, nil
		},
		newRedis: func(cfg *config.Config, log *zap.Logger) redisDeps {
			return redisDeps{locker: engine.NewLocalLocker()}
		},
		newFetcher: func(cfg *config.Config, log *zap.Logger) engine.Fetcher { return fetch },
	}
}

func TestRunWorker_ContextCanceled(t *testing.T) {
	closed := false
	fetch := fetcherFunc(func(ctx context.Context, c, n string) (*models.Parcel, error) {
		return nil, errors.New("не должен вызываться")
	})
	f := testFactories(newFakeStore(), fetch, notify.SinkFunc(func(context.Context, notify.Notification) error { return nil }), &closed)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := RunWorker(ctx, &config.Config{}, f, workerHTTPOpts{}, zap.NewNop())
	require.ErrorIs(t, err, context.Canceled)
	require.True(t, closed)
}

func TestRunWorker_StorageError(t *testing.T) {
	f := defaultWorkerFactories()
	f.newStorage = func(ctx context.Context, cfg *config.Config, log *zap.Logger) (workerStore, func(), error) {
		return nil, nil, errors.New("db down")
	}
	err := RunWorker(context.Background(), &config.Config{}, f, workerHTTPOpts{}, zap.NewNop())
	require.EqualError(t, err, "db down")
}

func TestRunWorker_NotifiesNewEvent(t *testing.T) {
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	st := newFakeStore(&models.Tracker{ID: 1, SubscriberID: 10, Carrier: "cj", TrackingNumber: "6000", LastObservedEventTime: base})

	table := models.StatusTable{"간선상차": models.DeliveryStatusInProgress}
	fetch := fetcherFunc(func(ctx context.Context, c, n string) (*models.Parcel, error) {
		return models.NewParcel(table, c, n, []models.TrackingEvent{
			{Time: base, Status: "간선상차"},
			{Time: base.Add(time.Hour), Status: "간선상차", Location: "Seoul"},
		}), nil
	})

	var mu sync.Mutex
	var got []notify.Notification
	sink := notify.SinkFunc(func(ctx context.Context, n notify.Notification) error {
		mu.Lock()
		got = append(got, n)
		mu.Unlock()
		return nil
	})

	closed := false
	cfg := &config.Config{ParcelBox: config.ParcelBoxConfig{WorkerPollIntervalSeconds: 1}}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- RunWorker(ctx, cfg, testFactories(st, fetch, sink, &closed), workerHTTPOpts{}, zap.NewNop()) }()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, 3*time.Second, 20*time.Millisecond)

	// следующий цикл уже ничего не шлёт
	time.Sleep(1200 * time.Millisecond)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	require.Equal(t, notify.KindEvent, got[0].Kind)
	require.Equal(t, int64(10), got[0].SubscriberID)
	require.Contains(t, got[0].Text, "Location: Seoul")
}

func writeSwagger(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "worker-swagger.json")
	require.NoError(t, os.WriteFile(p, []byte(`{"swagger":"2.0"}`), 0o600))
	return p
}

func startWorkerHTTP(t *testing.T, opts workerHTTPOpts) string {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	addrCh := make(chan string, 1)
	opts.httpAddr = "127.0.0.1:0"
	opts.onListen = func(addr string) { addrCh <- addr }

	errCh := make(chan error, 1)
	go func() { errCh <- runWorkerHTTPServer(ctx, opts) }()

	var addr string
	select {
	case addr = <-addrCh:
	case err := <-errCh:
		t.Fatalf("worker http did not start: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting worker http")
	}

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-errCh:
			require.NoError(t, err)
		case <-time.After(3 * time.Second):
			t.Error("timeout waiting worker http to stop")
		}
	})
	return "http://" + addr
}

func TestWorkerHTTP_Routes(t *testing.T) {
	p := poller.New(newFakeStore(), nil, nil, nil)
	base := startWorkerHTTP(t, workerHTTPOpts{
		swaggerPath: writeSwagger(t),
		poller:      p,
		cfg:         &config.Config{ParcelBox: config.ParcelBoxConfig{WorkerConcurrency: 3}},
		ready:       func(context.Context) error { return nil },
	})

	resp, err := http.Get(base + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(base + "/readyz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Post(base+"/trigger", "application/json", nil)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.JSONEq(t, `{"triggered":true}`, string(body))

	resp, err = http.Get(base + "/stats")
	require.NoError(t, err)
	var st poller.Stats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	resp.Body.Close()
	require.NotNil(t, st.LastTriggerAt)

	resp, err = http.Get(base + "/config")
	require.NoError(t, err)
	var cfgOut map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&cfgOut))
	resp.Body.Close()
	require.Equal(t, float64(3), cfgOut["concurrency"])
	require.NotContains(t, cfgOut, "telegramToken")

	resp, err = http.Get(base + "/swagger.json")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
	require.Contains(t, string(body), `"swagger"`)
}

func TestWorkerHTTP_NotReady(t *testing.T) {
	base := startWorkerHTTP(t, workerHTTPOpts{
		swaggerPath: writeSwagger(t),
		ready:       func(context.Context) error { return errors.New("ping failed") },
	})

	resp, err := http.Get(base + "/readyz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp2, err := http.Get(base + "/stats")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp2.Body)
	resp2.Body.Close()
	require.Contains(t, string(body), "poller not wired")
}

func TestWorkerHTTP_SwaggerRequired(t *testing.T) {
	err := runWorkerHTTPServer(context.Background(), workerHTTPOpts{httpAddr: "127.0.0.1:0"})
	require.Error(t, err)

	err = runWorkerHTTPServer(context.Background(), workerHTTPOpts{
		httpAddr:    "127.0.0.1:0",
		swaggerPath: filepath.Join(t.TempDir(), "missing.json"),
	})
	require.Error(t, err)
}

func TestWorkerFetchTimeout(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	log := zap.New(core)

	require.Equal(t, 30*time.Second, workerFetchTimeout(0, 5*time.Minute, log))
	require.Equal(t, 10*time.Second, workerFetchTimeout(0, 20*time.Second, log))
	require.Equal(t, 0, logs.Len())

	require.Equal(t, 20*time.Second, workerFetchTimeout(20, time.Minute, log))
	require.Equal(t, 0, logs.Len())

	// больше половины интервала — режем и предупреждаем
	require.Equal(t, 30*time.Second, workerFetchTimeout(90, time.Minute, log))
	require.Equal(t, 1, logs.FilterMessageSnippet("capped").Len())
}
