package shared

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLocker(t *testing.T) *AccountLocker {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewAccountLocker(client, time.Minute)
}

func TestAccountLockerSerialisesSameAccount(t *testing.T) {
	locker := newTestLocker(t)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "7001")
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	if _, err := locker.Acquire(ctx, "7001"); !errors.Is(err, ErrAccountBusy) {
		t.Fatalf("expected ErrAccountBusy, got %v", err)
	}

	// A different account is not blocked.
	releaseOther, err := locker.Acquire(ctx, "7002")
	if err != nil {
		t.Fatalf("other account acquire: %v", err)
	}
	releaseOther()

	release()
	release2, err := locker.Acquire(ctx, "7001")
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	release2()
}

func TestAccountLockerBusyIsConflict(t *testing.T) {
	if KindOf(ErrAccountBusy) != KindConflict {
		t.Fatalf("account busy should map to conflict")
	}
}
