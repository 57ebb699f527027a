// Package delivery implements the outbound channel providers (email, sms,
// voice) behind the engagement machine's Provider port. Each provider retries
// transient failures with exponential backoff; a returned error means the
// attempt is spent and the engagement records a failed touchpoint.
package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"

	"outreach_backend/internal/engagement"
	"outreach_backend/internal/policy"
	"outreach_backend/platform/logger"
)

// Sender delivers on exactly one channel.
type Sender interface {
	Send(ctx context.Context, req engagement.DispatchRequest) error
}

const (
	maxRetries  = 2
	backoffBase = 500 * time.Millisecond
)

// Router fans a dispatch out to the sender for its channel.
type Router struct {
	senders map[policy.Channel]Sender
	log     *logger.Logger
}

func NewRouter(log *logger.Logger) *Router {
	return &Router{senders: make(map[policy.Channel]Sender), log: log}
}

// Register binds a sender to a channel. Unregistered channels fail at
// dispatch time, which surfaces as a failed touchpoint rather than a crash.
func (r *Router) Register(channel policy.Channel, sender Sender) {
	r.senders[channel] = sender
}

// Dispatch implements the engagement Provider port. Transient sender errors
// are retried with backoff inside the caller's dispatch timeout.
func (r *Router) Dispatch(ctx context.Context, req engagement.DispatchRequest) error {
	sender, ok := r.senders[req.Channel]
	if !ok {
		return fmt.Errorf("no sender registered for channel %s", req.Channel)
	}

	backoff := retry.WithMaxRetries(maxRetries, retry.NewExponential(backoffBase))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := sender.Send(ctx, req); err != nil {
			r.log.Warn("send attempt failed",
				"channel", string(req.Channel),
				"contact_id", req.Contact.ID.String(),
				"error", err.Error())
			return retry.RetryableError(err)
		}
		return nil
	})
}
