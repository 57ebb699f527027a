// Package scheduler runs the periodic engagement tick through asynq so that
// exactly one worker processes each tick even with several instances running.
package scheduler

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// Task type names.
const (
	TypeEngagementTick = "engagement:tick"
)

// TickPayload carries the wall-clock time the tick was scheduled for.
type TickPayload struct {
	ScheduledAt time.Time `json:"scheduledAt"`
}

// NewTickTask builds an engagement tick task.
func NewTickTask(scheduledAt time.Time) (*asynq.Task, error) {
	payload, err := json.Marshal(TickPayload{ScheduledAt: scheduledAt})
	if err != nil {
		return nil, fmt.Errorf("marshal tick payload: %w", err)
	}
	return asynq.NewTask(TypeEngagementTick, payload), nil
}

// ParseTickPayload decodes a tick task payload.
func ParseTickPayload(task *asynq.Task) (TickPayload, error) {
	var payload TickPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return TickPayload{}, fmt.Errorf("unmarshal tick payload: %w", err)
	}
	return payload, nil
}
