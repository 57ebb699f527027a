package scheduler

import (
	"context"
	"time"

	"outreach_backend/platform/config"
	"outreach_backend/platform/logger"
)

// Enqueuer is the producer surface the dispatcher needs; *Client implements
// it, tests substitute their own.
type Enqueuer interface {
	EnqueueTick(ctx context.Context, scheduledAt time.Time) error
}

// Dispatcher enqueues a tick task on a fixed interval. Task uniqueness on the
// queue side makes running several dispatchers harmless.
type Dispatcher struct {
	enqueuer Enqueuer
	interval time.Duration
	log      *logger.Logger
}

func NewDispatcher(cfg config.SchedulerConfig, enqueuer Enqueuer, log *logger.Logger) *Dispatcher {
	return &Dispatcher{
		enqueuer: enqueuer,
		interval: cfg.GetTickInterval(),
		log:      log,
	}
}

// Run blocks until ctx is cancelled. The first tick fires immediately so a
// fresh deployment does not wait a full interval before processing overdue
// engagements.
func (d *Dispatcher) Run(ctx context.Context) {
	d.log.Info("tick dispatcher started", "interval", d.interval.String())

	d.enqueue(ctx)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.log.Info("tick dispatcher stopped")
			return
		case <-ticker.C:
			d.enqueue(ctx)
		}
	}
}

func (d *Dispatcher) enqueue(ctx context.Context) {
	if err := d.enqueuer.EnqueueTick(ctx, time.Now()); err != nil {
		d.log.Error("enqueue tick failed", "error", err.Error())
	}
}
