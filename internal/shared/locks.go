package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// AccountLockKey builds redis keys for per-account critical sections.
func AccountLockKey(accountID string) string {
	return fmt.Sprintf("deposit:account:%s:lock", accountID)
}

// ErrAccountBusy indicates another transaction currently holds the account lock.
var ErrAccountBusy = E(KindConflict, "account is processing another transaction")

// AccountLocker serialises transactions per account using a redis SetNX lease.
// Best effort only: strict serialisation belongs to the ledger's own locking.
type AccountLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewAccountLocker constructs the locker. TTL bounds how long a crashed
// request can hold an account.
func NewAccountLocker(client *redis.Client, ttl time.Duration) *AccountLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &AccountLocker{client: client, ttl: ttl}
}

// Acquire takes the lock for accountID or returns ErrAccountBusy.
func (l *AccountLocker) Acquire(ctx context.Context, accountID string) (func(), error) {
	if l == nil || l.client == nil {
		return func() {}, nil
	}
	key := AccountLockKey(accountID)
	ok, err := l.client.SetNX(ctx, key, "1", l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("shared: acquire account lock: %w", err)
	}
	if !ok {
		return nil, ErrAccountBusy
	}
	release := func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := l.client.Del(releaseCtx, key).Err(); err != nil && !errors.Is(err, redis.Nil) {
			// Lease expiry reclaims the key.
			_ = err
		}
	}
	return release, nil
}
