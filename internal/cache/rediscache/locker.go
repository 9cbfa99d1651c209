package rediscache

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// снимаем лок только если он всё ещё наш
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker is a SET NX PX lock shared by every process talking to the same Redis.
// ttl bounds how long a crashed holder can block others.
type Locker struct {
	c     *redis.Client
	ttl   time.Duration
	retry time.Duration
}

func NewLocker(addr string, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Locker{
		c:     redis.NewClient(&redis.Options{Addr: addr}),
		ttl:   ttl,
		retry: 50 * time.Millisecond,
	}
}

func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	key = "parcelbox:lock:" + key
	token := uuid.NewString()

	for {
		ok, err := l.c.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, errors.Wrap(err, "redis lock")
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, errors.Wrap(ctx.Err(), "redis lock")
		case <-time.After(l.retry):
		}
	}

	released := false
	return func() {
		if released {
			return
		}
		released = true
		// освобождаем даже если ctx вызывающего уже отменён
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(rctx, l.c, []string{key}, token).Err()
	}, nil
}

func (l *Locker) Close() error {
	return l.c.Close()
}
