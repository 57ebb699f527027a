package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"outreach_backend/platform/config"
	"outreach_backend/platform/logger"
)

// Ticker is the campaign orchestrator surface the worker drives.
type Ticker interface {
	Tick(ctx context.Context) error
}

// Worker consumes scheduler tasks from the queue.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	log    *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, ticker Ticker, log *logger.Logger) (*Worker, error) {
	opt, err := RedisClientOpt(cfg)
	if err != nil {
		return nil, err
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: cfg.GetAsynqConcurrency(),
		Queues:      map[string]int{cfg.GetAsynqQueueName(): 1},
		Logger:      asynqLogger{log},
	})

	w := &Worker{server: server, mux: asynq.NewServeMux(), log: log}
	w.mux.HandleFunc(TypeEngagementTick, func(ctx context.Context, task *asynq.Task) error {
		payload, err := ParseTickPayload(task)
		if err != nil {
			return err
		}
		started := time.Now()
		if err := ticker.Tick(ctx); err != nil {
			return err
		}
		log.Info("engagement tick processed",
			"scheduled_at", payload.ScheduledAt,
			"duration_ms", time.Since(started).Milliseconds())
		return nil
	})
	return w, nil
}

// Run blocks until ctx is cancelled, then shuts the server down gracefully.
func (w *Worker) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		w.log.Info("stopping scheduler worker")
		w.server.Shutdown()
	}()
	return w.server.Run(w.mux)
}

// asynqLogger adapts the structured logger to asynq's logging interface.
type asynqLogger struct {
	log *logger.Logger
}

func (l asynqLogger) Debug(args ...interface{}) { l.log.Debug(sprint(args...)) }
func (l asynqLogger) Info(args ...interface{})  { l.log.Info(sprint(args...)) }
func (l asynqLogger) Warn(args ...interface{})  { l.log.Warn(sprint(args...)) }
func (l asynqLogger) Error(args ...interface{}) { l.log.Error(sprint(args...)) }
func (l asynqLogger) Fatal(args ...interface{}) { l.log.Error(sprint(args...)) }

func sprint(args ...interface{}) string { return fmt.Sprint(args...) }
