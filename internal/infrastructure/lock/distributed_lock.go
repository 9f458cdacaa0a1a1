package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

var ErrLockFailed = errors.New("failed to acquire distributed lock")

// DistributedLock is a SET NX/EX lock with ownership-checked release.
//
// Reconciliation correctness does not depend on it: the compare-and-set on
// payment.status decides every race. The lock only keeps a webhook delivery
// and a concurrent status poll from both calling the gateway's verify
// endpoint for the same reference at the same time.
type DistributedLock struct {
	client     *redis.Client
	key        string
	value      string
	expiration time.Duration
}

func NewDistributedLock(client *redis.Client, key, value string, expiration time.Duration) *DistributedLock {
	return &DistributedLock{
		client:     client,
		key:        key,
		value:      value,
		expiration: expiration,
	}
}

// TryLock attempts a single non-blocking acquisition.
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	success, err := l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
	if err != nil {
		return false, err
	}
	return success, nil
}

// Lock retries until acquired or maxRetries exhausted.
func (l *DistributedLock) Lock(ctx context.Context, retryInterval time.Duration, maxRetries int) error {
	for i := 0; i < maxRetries; i++ {
		success, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if success {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
		}
	}
	return ErrLockFailed
}

// Unlock releases the lock only if this instance still owns it. The
// check-and-delete runs as a Lua script so an expired lock taken over by
// another holder is never deleted from here.
func (l *DistributedLock) Unlock(ctx context.Context) error {
	script := `
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		else
			return 0
		end
	`
	_, err := l.client.Eval(ctx, script, []string{l.key}, l.value).Result()
	return err
}

// NewReconcileLock scopes a lock to one payment reference. Webhook ingest
// and status polls for different references never contend.
func NewReconcileLock(client *redis.Client, reference string, expiration time.Duration) *DistributedLock {
	key := fmt.Sprintf("payment:reconcile:lock:%s", reference)
	return NewDistributedLock(client, key, uuid.NewString(), expiration)
}
