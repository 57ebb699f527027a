package campaign

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func testRedis(t *testing.T) *redis.Client {
	t.Helper()
	srv := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: srv.Addr()})
}

func TestLockerSerializesPerCampaign(t *testing.T) {
	locker := NewLocker(testRedis(t), 30*time.Second)
	ctx := context.Background()
	campaignID := uuid.New()

	release, ok, err := locker.Acquire(ctx, campaignID)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if !ok {
		t.Fatal("expected first acquire to succeed")
	}

	if _, ok, err = locker.Acquire(ctx, campaignID); err != nil {
		t.Fatalf("second acquire: %v", err)
	} else if ok {
		t.Fatal("expected second acquire on the same campaign to be refused")
	}

	release()

	release2, ok, err := locker.Acquire(ctx, campaignID)
	if err != nil {
		t.Fatalf("re-acquire: %v", err)
	}
	if !ok {
		t.Fatal("expected acquire after release to succeed")
	}
	release2()
}

func TestLockerIndependentCampaigns(t *testing.T) {
	locker := NewLocker(testRedis(t), 30*time.Second)
	ctx := context.Background()

	releaseA, okA, err := locker.Acquire(ctx, uuid.New())
	if err != nil || !okA {
		t.Fatalf("acquire A: ok=%v err=%v", okA, err)
	}
	defer releaseA()

	releaseB, okB, err := locker.Acquire(ctx, uuid.New())
	if err != nil || !okB {
		t.Fatalf("acquire B: ok=%v err=%v", okB, err)
	}
	defer releaseB()
}

func TestLockerRefusesLeaseHeldByAnotherInstance(t *testing.T) {
	srv := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	first := NewLocker(rdb, 30*time.Second)
	second := NewLocker(rdb, 30*time.Second)
	ctx := context.Background()
	campaignID := uuid.New()

	release, ok, err := first.Acquire(ctx, campaignID)
	if err != nil || !ok {
		t.Fatalf("instance one acquire: ok=%v err=%v", ok, err)
	}

	if _, ok, err = second.Acquire(ctx, campaignID); err != nil {
		t.Fatalf("instance two acquire: %v", err)
	} else if ok {
		t.Fatal("expected lease held by another instance to be refused")
	}

	release()

	release2, ok, err := second.Acquire(ctx, campaignID)
	if err != nil || !ok {
		t.Fatalf("instance two acquire after release: ok=%v err=%v", ok, err)
	}
	release2()
}

func TestLockerLeaseExpires(t *testing.T) {
	srv := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	first := NewLocker(rdb, time.Second)
	second := NewLocker(rdb, time.Second)
	ctx := context.Background()
	campaignID := uuid.New()

	if _, ok, err := first.Acquire(ctx, campaignID); err != nil || !ok {
		t.Fatalf("acquire: ok=%v err=%v", ok, err)
	}

	// A crashed holder never releases; the TTL frees the lease.
	srv.FastForward(2 * time.Second)

	release, ok, err := second.Acquire(ctx, campaignID)
	if err != nil {
		t.Fatalf("acquire after expiry: %v", err)
	}
	if !ok {
		t.Fatal("expected expired lease to be re-acquirable")
	}
	release()
}
