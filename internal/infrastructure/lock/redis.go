package lock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// ErrLockTimeout is returned when the key stays held past the wait budget.
var ErrLockTimeout = errors.New("lock: timed out waiting for key")

// releaseScript deletes the key only if this holder still owns it.
var releaseScript = redis.NewScript(`
if redis.call('get', KEYS[1]) == ARGV[1] then
    return redis.call('del', KEYS[1])
end
return 0
`)

// RedisLocker serialises writers across service replicas with SET NX PX.
// The TTL bounds how long a crashed holder can block a key.
type RedisLocker struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	retry  time.Duration
	wait   time.Duration
}

type RedisOption func(*RedisLocker)

func WithRetryInterval(d time.Duration) RedisOption { return func(l *RedisLocker) { l.retry = d } }
func WithMaxWait(d time.Duration) RedisOption       { return func(l *RedisLocker) { l.wait = d } }

func NewRedisLocker(client redis.UniversalClient, prefix string, ttl time.Duration, opts ...RedisOption) *RedisLocker {
	l := &RedisLocker{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		retry:  10 * time.Millisecond,
		wait:   5 * time.Second,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := l.prefix + "{" + key + "}"
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			return nil, errors.Wrapf(err, "lock: acquire %s", key)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return nil, errors.Wrap(ErrLockTimeout, key)
		}
		timer := time.NewTimer(l.retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	return func() {
		// Released on a fresh context: the caller's may already be done.
		relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		_ = releaseScript.Run(relCtx, l.client, []string{redisKey}, token).Err()
	}, nil
}
