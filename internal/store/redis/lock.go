package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	backend "github.com/redis/go-redis/v9"

	"github.com/capitalize-ai/support-flow/internal/lock"
)

const (
	// DefaultLockTTL bounds how long a crashed holder keeps a conversation.
	// A live holder keeps extending the lock until it unlocks.
	DefaultLockTTL = 30 * time.Second

	defaultRetryInterval = 50 * time.Millisecond
)

// Deletes the key only if it still holds our token.
var unlockScript = backend.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// Resets the expiry only if the key still holds our token.
var extendScript = backend.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
else
	return 0
end
`)

// Locker is a lock.Locker backed by Redis SET NX PX, shared by all replicas.
// A held lock is extended every ttl/3 until it is released, so a turn may
// outlive the ttl.
type Locker struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
	retry  time.Duration
}

var _ lock.Locker = (*Locker)(nil)

// NewLocker creates a Redis locker. A zero ttl uses DefaultLockTTL.
func NewLocker(client *backend.Client, prefix string, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	return &Locker{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		retry:  defaultRetryInterval,
	}
}

// Lock polls until the key is acquired or ctx is done.
func (l *Locker) Lock(ctx context.Context, key string) (lock.UnlockFunc, error) {
	lockKey := l.prefix + "lock:" + key
	token := uuid.NewString()

	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, lockKey, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("redis error acquiring lock: %w", err)
		}
		if ok {
			return l.hold(lockKey, token), nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// hold starts extending the lock and returns the func that stops the
// extension and deletes the key.
func (l *Locker) hold(lockKey, token string) lock.UnlockFunc {
	stop := make(chan struct{})
	done := make(chan struct{})
	go l.extend(lockKey, token, stop, done)

	var once sync.Once
	return func(ctx context.Context) error {
		once.Do(func() {
			close(stop)
			<-done
		})
		return unlockScript.Run(ctx, l.client, []string{lockKey}, token).Err()
	}
}

func (l *Locker) extend(lockKey, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	interval := l.ttl / 3
	if interval <= 0 {
		interval = l.ttl
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), interval)
		n, err := extendScript.Run(ctx, l.client, []string{lockKey}, token, l.ttl.Milliseconds()).Int()
		cancel()
		// The lock is gone or held by someone else; nothing left to extend.
		if err == nil && n == 0 {
			return
		}
	}
}
