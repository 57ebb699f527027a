package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"outreach_backend/platform/logger"
)

func TestTickPayloadRoundTrip(t *testing.T) {
	scheduledAt := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	task, err := NewTickTask(scheduledAt)
	if err != nil {
		t.Fatalf("new tick task: %v", err)
	}
	if task.Type() != TypeEngagementTick {
		t.Fatalf("unexpected task type %s", task.Type())
	}

	payload, err := ParseTickPayload(task)
	if err != nil {
		t.Fatalf("parse payload: %v", err)
	}
	if !payload.ScheduledAt.Equal(scheduledAt) {
		t.Fatalf("expected %v, got %v", scheduledAt, payload.ScheduledAt)
	}
}

type countingEnqueuer struct {
	calls int32
}

func (e *countingEnqueuer) EnqueueTick(context.Context, time.Time) error {
	atomic.AddInt32(&e.calls, 1)
	return nil
}

type tickerConfig struct{ interval time.Duration }

func (c tickerConfig) GetRedisURL() string            { return "redis://localhost:6379" }
func (c tickerConfig) GetRedisTLSInsecure() bool      { return false }
func (c tickerConfig) GetAsynqQueueName() string      { return "engagement" }
func (c tickerConfig) GetAsynqConcurrency() int       { return 1 }
func (c tickerConfig) GetTickInterval() time.Duration { return c.interval }

func TestDispatcherEnqueuesImmediatelyAndPeriodically(t *testing.T) {
	enqueuer := &countingEnqueuer{}
	d := NewDispatcher(tickerConfig{interval: 20 * time.Millisecond}, enqueuer, logger.New("development"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for atomic.LoadInt32(&enqueuer.calls) < 3 {
		select {
		case <-deadline:
			t.Fatalf("expected at least 3 enqueues, got %d", atomic.LoadInt32(&enqueuer.calls))
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop on context cancellation")
	}
}

func TestRedisClientOptParsesURL(t *testing.T) {
	opt, err := RedisClientOpt(tickerConfig{interval: time.Minute})
	if err != nil {
		t.Fatalf("redis client opt: %v", err)
	}
	if opt.Addr != "localhost:6379" {
		t.Fatalf("unexpected addr %s", opt.Addr)
	}
	if opt.TLSConfig != nil {
		t.Fatal("plain redis url must not enable TLS")
	}
}
