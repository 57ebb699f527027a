package campaign

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lease only if this instance still owns it, so a
// lease that expired and was re-acquired elsewhere is never deleted by the
// old holder.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker serializes work per campaign. The in-process map guards against
// overlapping ticks inside one instance; the redis lease guards against a
// second scheduler instance processing the same campaign concurrently.
// Acquire is non-blocking: a busy campaign is skipped until the next tick.
type Locker struct {
	mu     sync.Mutex
	active map[uuid.UUID]bool

	rdb      *redis.Client
	instance string
	ttl      time.Duration
}

func NewLocker(rdb *redis.Client, ttl time.Duration) *Locker {
	return &Locker{
		active:   make(map[uuid.UUID]bool),
		rdb:      rdb,
		instance: uuid.NewString(),
		ttl:      ttl,
	}
}

// Acquire takes the per-campaign lease. It returns ok=false when another
// worker holds it; the caller skips the campaign for this tick. The release
// func is safe to call exactly once.
func (l *Locker) Acquire(ctx context.Context, campaignID uuid.UUID) (release func(), ok bool, err error) {
	l.mu.Lock()
	if l.active[campaignID] {
		l.mu.Unlock()
		return nil, false, nil
	}
	l.active[campaignID] = true
	l.mu.Unlock()

	localRelease := func() {
		l.mu.Lock()
		delete(l.active, campaignID)
		l.mu.Unlock()
	}

	if l.rdb == nil {
		return localRelease, true, nil
	}

	key := leaseKey(campaignID)
	acquired, err := l.rdb.SetNX(ctx, key, l.instance, l.ttl).Result()
	if err != nil {
		localRelease()
		return nil, false, fmt.Errorf("acquire campaign lease: %w", err)
	}
	if !acquired {
		localRelease()
		return nil, false, nil
	}

	return func() {
		// Best effort: an expired lease self-heals via the TTL.
		_ = releaseScript.Run(context.WithoutCancel(ctx), l.rdb, []string{key}, l.instance).Err()
		localRelease()
	}, true, nil
}

func leaseKey(campaignID uuid.UUID) string {
	return "campaign_lease:" + campaignID.String()
}
