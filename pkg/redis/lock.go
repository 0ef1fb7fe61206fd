package redis

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrLockNotAcquired means another holder owns the key.
	ErrLockNotAcquired = errors.New("lock not acquired")
	// ErrLockNotHeld means the lease expired or was taken over before release.
	ErrLockNotHeld = errors.New("lock not held")
)

// ownerOnly runs the command in ARGV[2] against KEYS[1] only while ARGV[1] still owns it.
var ownerOnly = redis.NewScript(`
if redis.call("get", KEYS[1]) ~= ARGV[1] then
	return 0
end
if ARGV[2] == "del" then
	return redis.call("del", KEYS[1])
end
return redis.call("pexpire", KEYS[1], ARGV[3])
`)

// ImportLockKey serializes imports and undos of a single user.
func ImportLockKey(userID string) string {
	return "import:" + userID
}

// Locker hands out SET NX leases under a key prefix.
type Locker struct {
	client *Client
	prefix string
}

func NewLocker(client *Client, prefix string) *Locker {
	if prefix == "" {
		prefix = "fern:lock:"
	}
	return &Locker{client: client, prefix: prefix}
}

// Lease is a held lock. Its token identifies the holder across Extend and Release.
type Lease struct {
	rdb   *redis.Client
	key   string
	token string
}

// Acquire takes key for ttl without waiting.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error) {
	lease := &Lease{rdb: l.client.rdb, key: l.prefix + key, token: uuid.NewString()}
	won, err := lease.rdb.SetNX(ctx, lease.key, lease.token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, ErrLockNotAcquired
	}
	return lease, nil
}

func (lease *Lease) Extend(ctx context.Context, ttl time.Duration) error {
	return lease.run(ctx, "pexpire", ttl.Milliseconds())
}

func (lease *Lease) Release(ctx context.Context) error {
	return lease.run(ctx, "del", 0)
}

func (lease *Lease) run(ctx context.Context, op string, ms int64) error {
	n, err := ownerOnly.Run(ctx, lease.rdb, []string{lease.key}, lease.token, op, ms).Int64()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLockNotHeld
	}
	return nil
}

// WithLock runs fn under key. The lease is renewed every ttl/3 while fn runs, so a
// long import keeps its lock; fn's context is cancelled if a renewal finds the lease lost.
func (l *Locker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) error {
	lease, err := l.Acquire(ctx, key, ttl)
	if err != nil {
		return err
	}
	log := l.client.logger.WithContext(ctx).WithField("lock", lease.key)

	every := ttl / 3
	if every <= 0 {
		every = time.Second
	}

	runCtx, cancel := context.WithCancel(ctx)
	renewed := make(chan struct{})
	go func() {
		defer close(renewed)
		tick := time.NewTicker(every)
		defer tick.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-tick.C:
				if err := lease.Extend(runCtx, ttl); err != nil && runCtx.Err() == nil {
					log.WithError(err).Warn("lock renewal failed; abandoning work")
					cancel()
					return
				}
			}
		}
	}()

	err = fn(runCtx)
	cancel()
	<-renewed

	if relErr := lease.Release(context.WithoutCancel(ctx)); relErr != nil {
		log.WithError(relErr).Warn("lock release failed")
	}
	return err
}
