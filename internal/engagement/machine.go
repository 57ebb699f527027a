// Package engagement implements the per-contact outreach state machine.
// It owns transitions, attempt accounting and channel escalation; campaign
// level coordination (conflict windows, sibling promotion) lives in the
// campaign package, which drives this machine.
package engagement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"outreach_backend/internal/engagement/domain"
	"outreach_backend/internal/engagement/repository"
	"outreach_backend/internal/events"
	"outreach_backend/internal/policy"
	"outreach_backend/platform/logger"
)

// Contact is the minimal contact view the machine needs to reach someone.
type Contact struct {
	ID    uuid.UUID
	Name  string
	Email string
	Phone string
	Role  string
}

// Message is a composed outreach payload. Subject is empty for sms and call.
type Message struct {
	Subject string
	Body    string
}

// ComposeRequest carries everything the composer needs to produce a message.
type ComposeRequest struct {
	Contact      Contact
	Organization string
	Tier         policy.Tier
	Channel      policy.Channel
	Attempt      int

	// ColleagueRef is set when this contact was promoted after a colleague's
	// engagement was exhausted; the message references the prior outreach.
	ColleagueRef *Contact
}

// Composer produces channel-appropriate outreach content.
type Composer interface {
	Compose(ctx context.Context, req ComposeRequest) (Message, error)
}

// DispatchRequest is one outbound delivery order.
type DispatchRequest struct {
	Channel policy.Channel
	Contact Contact
	Message Message
}

// Provider delivers a message on a channel. Implementations retry transient
// failures internally; a returned error means the attempt is spent.
type Provider interface {
	Dispatch(ctx context.Context, req DispatchRequest) error
}

// Repository is the persistence surface the machine depends on.
type Repository interface {
	Create(ctx context.Context, params repository.CreateParams) (repository.EngagementState, error)
	GetByID(ctx context.Context, id uuid.UUID) (repository.EngagementState, error)
	UpdateState(ctx context.Context, params repository.UpdateStateParams) (repository.EngagementState, error)
	AppendTouchpoint(ctx context.Context, params repository.CreateTouchpointParams) (repository.Touchpoint, error)
}

// Machine executes engagement transitions. It is stateless; all state lives
// in the repository and every write goes through the version check there.
type Machine struct {
	repo            Repository
	provider        Provider
	composer        Composer
	pol             *policy.Policy
	bus             events.Bus
	log             *logger.Logger
	dispatchTimeout time.Duration
	now             func() time.Time
}

func NewMachine(repo Repository, provider Provider, composer Composer, pol *policy.Policy, bus events.Bus, log *logger.Logger, dispatchTimeout time.Duration) *Machine {
	return &Machine{
		repo:            repo,
		provider:        provider,
		composer:        composer,
		pol:             pol,
		bus:             bus,
		log:             log,
		dispatchTimeout: dispatchTimeout,
		now:             time.Now,
	}
}

// WithClock overrides the machine's time source.
func (m *Machine) WithClock(now func() time.Time) *Machine {
	m.now = now
	return m
}

// ActivateParams starts outreach for one contact within a campaign.
type ActivateParams struct {
	CampaignID   uuid.UUID
	ContactID    uuid.UUID
	LeadID       uuid.UUID
	Tier         policy.Tier
	Contact      Contact
	Organization string
	ColleagueRef *Contact

	// NotBefore defers the first dispatch. The engagement is created and
	// scheduled for that time; nothing is sent until the tick finds it due.
	NotBefore *time.Time
}

// Activate creates an engagement, assesses it against the cadence table and
// dispatches the first outreach attempt, leaving the state Awaiting_Response
// at attempt 1. When NotBefore lies in the future the dispatch is held back
// instead: the engagement parks in Awaiting_Response at attempt 0 and the
// scheduler sends the first attempt once it comes due.
func (m *Machine) Activate(ctx context.Context, params ActivateParams) (repository.EngagementState, error) {
	cadence, err := m.pol.CadenceFor(params.Tier)
	if err != nil {
		return repository.EngagementState{}, err
	}

	state, err := m.repo.Create(ctx, repository.CreateParams{
		CampaignID: params.CampaignID,
		ContactID:  params.ContactID,
		LeadID:     params.LeadID,
		Tier:       params.Tier,
	})
	if err != nil {
		return repository.EngagementState{}, fmt.Errorf("create engagement: %w", err)
	}

	state, err = m.transition(ctx, state, repository.UpdateStateParams{
		ID:              state.ID,
		ExpectedVersion: state.Version,
		State:           domain.StateAssessed,
	})
	if err != nil {
		return state, err
	}

	if params.NotBefore != nil && params.NotBefore.After(m.now()) {
		return m.transition(ctx, state, repository.UpdateStateParams{
			ID:              state.ID,
			ExpectedVersion: state.Version,
			State:           domain.StateAwaitingResponse,
			NextScheduledAt: params.NotBefore,
		})
	}

	return m.dispatch(ctx, state, cadence, params.Contact, params.ColleagueRef, params.Organization, domain.StateAwaitingResponse)
}

// FollowUpParams drives one tick-due engagement forward.
type FollowUpParams struct {
	State        repository.EngagementState
	Contact      Contact
	Organization string
	ColleagueRef *Contact
}

// FollowUp advances a due engagement: it either dispatches the next attempt
// on the ladder channel, or transitions to Exhausted when the attempt budget
// is spent. Version conflicts propagate; the caller re-reads and retries.
func (m *Machine) FollowUp(ctx context.Context, params FollowUpParams) (repository.EngagementState, error) {
	state := params.State
	if !domain.IsSchedulable(state.State) {
		return state, fmt.Errorf("engagement %s is not schedulable in state %s", state.ID, state.State)
	}

	cadence, err := m.pol.CadenceFor(state.Tier)
	if err != nil {
		return state, err
	}

	if state.AttemptCount >= cadence.MaxAttempts {
		return m.transition(ctx, state, repository.UpdateStateParams{
			ID:              state.ID,
			ExpectedVersion: state.Version,
			State:           domain.StateExhausted,
			AttemptCount:    state.AttemptCount,
			CurrentChannel:  state.CurrentChannel,
			LastContactedAt: state.LastContactedAt,
		})
	}

	return m.dispatch(ctx, state, cadence, params.Contact, params.ColleagueRef, params.Organization, domain.StateFollowingUp)
}

// dispatch performs one outreach attempt and persists the resulting
// transition. A provider failure still consumes the attempt slot and still
// schedules the next follow-up; only the touchpoint outcome differs.
func (m *Machine) dispatch(ctx context.Context, state repository.EngagementState, cadence policy.Cadence, contact Contact, colleagueRef *Contact, organization, nextState string) (repository.EngagementState, error) {
	attempt := state.AttemptCount + 1
	channel := cadence.ChannelForAttempt(attempt)

	msg, err := m.composer.Compose(ctx, ComposeRequest{
		Contact:      contact,
		Organization: organization,
		Tier:         state.Tier,
		Channel:      channel,
		Attempt:      attempt,
		ColleagueRef: colleagueRef,
	})

	outcome := repository.OutcomeSent
	if err == nil {
		dispatchCtx, cancel := context.WithTimeout(ctx, m.dispatchTimeout)
		err = m.provider.Dispatch(dispatchCtx, DispatchRequest{
			Channel: channel,
			Contact: contact,
			Message: msg,
		})
		cancel()
	}
	if err != nil {
		outcome = repository.OutcomeFailed
		m.log.DispatchFailure(string(channel), contact.ID.String(), attempt, err)
	}

	var colleagueRefID *uuid.UUID
	if colleagueRef != nil {
		colleagueRefID = &colleagueRef.ID
	}
	var subject *string
	if msg.Subject != "" {
		subject = &msg.Subject
	}
	tp, tpErr := m.repo.AppendTouchpoint(ctx, repository.CreateTouchpointParams{
		CampaignID:     state.CampaignID,
		EngagementID:   state.ID,
		ContactID:      state.ContactID,
		Channel:        channel,
		Outcome:        outcome,
		ColleagueRefID: colleagueRefID,
		Subject:        subject,
	})
	if tpErr != nil {
		return state, fmt.Errorf("record touchpoint: %w", tpErr)
	}
	m.bus.Publish(ctx, events.TouchpointRecorded{
		BaseEvent:    events.NewBaseEvent(),
		TouchpointID: tp.ID,
		EngagementID: state.ID,
		CampaignID:   state.CampaignID,
		ContactID:    state.ContactID,
		Channel:      channel,
		Outcome:      outcome,
	})

	now := m.now()
	next := now.Add(cadence.Interval)
	return m.transition(ctx, state, repository.UpdateStateParams{
		ID:               state.ID,
		ExpectedVersion:  state.Version,
		State:            nextState,
		AttemptCount:     attempt,
		CurrentChannel:   &channel,
		LastContactedAt:  &now,
		NextScheduledAt:  &next,
		ResponseReceived: state.ResponseReceived,
	})
}

// RecordResponseParams applies an inbound response signal.
type RecordResponseParams struct {
	EngagementID uuid.UUID
	Channel      string
	Detail       string
	ContactName  string
	Organization string
}

// RecordResponse preempts the scheduled path: the engagement moves to
// Responded and immediately escalates to a human. The first response is
// authoritative; later signals are logged as touchpoints without any
// transition. A lost version race is re-read and retried once.
func (m *Machine) RecordResponse(ctx context.Context, params RecordResponseParams) (repository.EngagementState, error) {
	state, err := m.repo.GetByID(ctx, params.EngagementID)
	if err != nil {
		return repository.EngagementState{}, err
	}

	for try := 0; ; try++ {
		if !domain.CanReceiveResponse(state.State) {
			return m.logLateResponse(ctx, state, params)
		}

		var detail *string
		if params.Detail != "" {
			detail = &params.Detail
		}
		tp, err := m.repo.AppendTouchpoint(ctx, repository.CreateTouchpointParams{
			CampaignID:   state.CampaignID,
			EngagementID: state.ID,
			ContactID:    state.ContactID,
			Channel:      policy.Channel(params.Channel),
			Outcome:      repository.OutcomeResponded,
			Detail:       detail,
		})
		if err != nil {
			return state, fmt.Errorf("record response touchpoint: %w", err)
		}

		state, err = m.transition(ctx, state, repository.UpdateStateParams{
			ID:               state.ID,
			ExpectedVersion:  state.Version,
			State:            domain.StateResponded,
			AttemptCount:     state.AttemptCount,
			CurrentChannel:   state.CurrentChannel,
			LastContactedAt:  state.LastContactedAt,
			ResponseReceived: true,
		})
		if errors.Is(err, repository.ErrVersionConflict) && try == 0 {
			m.log.PersistenceConflict("engagement_state", params.EngagementID.String())
			if state, err = m.repo.GetByID(ctx, params.EngagementID); err != nil {
				return repository.EngagementState{}, err
			}
			continue
		}
		if err != nil {
			return state, err
		}

		m.bus.Publish(ctx, events.ResponseReceived{
			BaseEvent:    events.NewBaseEvent(),
			EngagementID: state.ID,
			CampaignID:   state.CampaignID,
			ContactID:    state.ContactID,
			Channel:      params.Channel,
			Detail:       params.Detail,
		})

		state, err = m.transition(ctx, state, repository.UpdateStateParams{
			ID:               state.ID,
			ExpectedVersion:  state.Version,
			State:            domain.StateEscalated,
			AttemptCount:     state.AttemptCount,
			CurrentChannel:   state.CurrentChannel,
			LastContactedAt:  state.LastContactedAt,
			ResponseReceived: true,
		})
		if err != nil {
			return state, err
		}

		m.bus.Publish(ctx, events.EngagementEscalated{
			BaseEvent:       events.NewBaseEvent(),
			EngagementID:    state.ID,
			CampaignID:      state.CampaignID,
			ContactID:       state.ContactID,
			ContactName:     params.ContactName,
			Organization:    params.Organization,
			ResponseTouchID: &tp.ID,
			ResponseDetail:  params.Detail,
		})
		return state, nil
	}
}

// logLateResponse records a response that arrived after the engagement left
// the responsive states. The touchpoint keeps the timeline honest; nothing
// else changes.
func (m *Machine) logLateResponse(ctx context.Context, state repository.EngagementState, params RecordResponseParams) (repository.EngagementState, error) {
	var detail *string
	if params.Detail != "" {
		detail = &params.Detail
	}
	_, err := m.repo.AppendTouchpoint(ctx, repository.CreateTouchpointParams{
		CampaignID:   state.CampaignID,
		EngagementID: state.ID,
		ContactID:    state.ContactID,
		Channel:      policy.Channel(params.Channel),
		Outcome:      repository.OutcomeResponded,
		Detail:       detail,
	})
	if err != nil {
		return state, fmt.Errorf("record late response touchpoint: %w", err)
	}
	m.log.Info("late_response_logged",
		"engagement_id", state.ID.String(),
		"state", state.State,
	)
	return state, nil
}

// Close moves an exhausted engagement to its terminal Closed state.
func (m *Machine) Close(ctx context.Context, state repository.EngagementState) (repository.EngagementState, error) {
	return m.transition(ctx, state, repository.UpdateStateParams{
		ID:               state.ID,
		ExpectedVersion:  state.Version,
		State:            domain.StateClosed,
		AttemptCount:     state.AttemptCount,
		CurrentChannel:   state.CurrentChannel,
		LastContactedAt:  state.LastContactedAt,
		ResponseReceived: state.ResponseReceived,
	})
}

// transition validates the edge against the transition table, persists it and
// publishes the state-changed event.
func (m *Machine) transition(ctx context.Context, state repository.EngagementState, params repository.UpdateStateParams) (repository.EngagementState, error) {
	if !domain.CanTransition(state.State, params.State) {
		return state, fmt.Errorf("illegal transition %s -> %s for engagement %s", state.State, params.State, state.ID)
	}

	updated, err := m.repo.UpdateState(ctx, params)
	if err != nil {
		return state, err
	}

	m.bus.Publish(ctx, events.EngagementStateChanged{
		BaseEvent:    events.NewBaseEvent(),
		EngagementID: updated.ID,
		CampaignID:   updated.CampaignID,
		ContactID:    updated.ContactID,
		OldState:     state.State,
		NewState:     updated.State,
		Attempt:      updated.AttemptCount,
	})
	return updated, nil
}
