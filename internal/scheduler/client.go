package scheduler

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"outreach_backend/platform/config"
	"outreach_backend/platform/logger"
)

// RedisClientOpt builds the asynq connection options from the configured
// redis URL, honoring TLS when the URL scheme is rediss.
func RedisClientOpt(cfg config.SchedulerConfig) (asynq.RedisClientOpt, error) {
	opt, err := redis.ParseURL(cfg.GetRedisURL())
	if err != nil {
		return asynq.RedisClientOpt{}, fmt.Errorf("parse redis url: %w", err)
	}

	clientOpt := asynq.RedisClientOpt{
		Addr:     opt.Addr,
		Username: opt.Username,
		Password: opt.Password,
		DB:       opt.DB,
	}
	if opt.TLSConfig != nil {
		clientOpt.TLSConfig = opt.TLSConfig
		if cfg.GetRedisTLSInsecure() {
			clientOpt.TLSConfig = &tls.Config{InsecureSkipVerify: true}
		}
	}
	return clientOpt, nil
}

// Client enqueues scheduler tasks.
type Client struct {
	client *asynq.Client
	queue  string
	ttl    time.Duration
	log    *logger.Logger
}

func NewClient(cfg config.SchedulerConfig, log *logger.Logger) (*Client, error) {
	opt, err := RedisClientOpt(cfg)
	if err != nil {
		return nil, err
	}
	return &Client{
		client: asynq.NewClient(opt),
		queue:  cfg.GetAsynqQueueName(),
		ttl:    cfg.GetTickInterval(),
		log:    log,
	}, nil
}

// EnqueueTick schedules one engagement tick. Uniqueness over the tick
// interval collapses duplicate enqueues from concurrent dispatchers.
func (c *Client) EnqueueTick(ctx context.Context, scheduledAt time.Time) error {
	task, err := NewTickTask(scheduledAt)
	if err != nil {
		return err
	}

	info, err := c.client.EnqueueContext(ctx, task,
		asynq.Queue(c.queue),
		asynq.MaxRetry(2),
		asynq.Unique(c.ttl),
	)
	if err != nil {
		if errors.Is(err, asynq.ErrDuplicateTask) {
			return nil
		}
		return fmt.Errorf("enqueue tick: %w", err)
	}

	c.log.Debug("tick enqueued", "task_id", info.ID, "queue", info.Queue)
	return nil
}

func (c *Client) Close() error {
	return c.client.Close()
}
