package auth

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestPurgeExpiredOnlyRemovesPastEntries(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	short, _ := NewTokenCodec("s", WithTokenTTL(time.Minute), WithCodecClock(clock.Now))
	long, _ := NewTokenCodec("s", WithTokenTTL(time.Hour), WithCodecClock(clock.Now))
	store := NewMemoryRevocationStore(long, WithRevocationClock(clock.Now))
	ctx := context.Background()

	expiring, _, _ := short.Sign(1, "alice")
	lasting, _, _ := long.Sign(1, "alice")
	_ = store.Add(ctx, expiring)
	_ = store.Add(ctx, lasting)

	clock.Advance(2 * time.Minute)
	sweeper := NewSweeper(store, time.Minute)

	n, err := sweeper.SweepOnce(ctx)
	if err != nil || n != 1 {
		t.Fatalf("SweepOnce=%d err=%v", n, err)
	}
	n, err = sweeper.SweepOnce(ctx)
	if err != nil || n != 0 {
		t.Fatalf("second SweepOnce=%d err=%v", n, err)
	}
	if revoked, _ := store.IsRevoked(ctx, lasting); !revoked {
		t.Fatal("unexpired entry was purged")
	}
}

type countingStore struct {
	RevocationStore
	calls atomic.Int32
}

func (c *countingStore) PurgeExpired(context.Context) (int64, error) {
	c.calls.Add(1)
	return 0, nil
}

func TestSweeperRunStopsOnCancel(t *testing.T) {
	store := &countingStore{}
	sweeper := NewSweeper(store, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweeper.Run(ctx)
		close(done)
	}()

	deadline := time.After(time.Second)
	for store.calls.Load() < 2 {
		select {
		case <-deadline:
			t.Fatalf("sweeper ran %d times", store.calls.Load())
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
