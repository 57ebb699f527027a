// Package campaign coordinates multi-contact outreach per organization:
// contact ranking, sibling promotion, conflict windows and campaign
// termination. Per-contact mechanics live in the engagement package.
package campaign

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"outreach_backend/internal/campaign/repository"
	"outreach_backend/internal/engagement"
	endomain "outreach_backend/internal/engagement/domain"
	enrepo "outreach_backend/internal/engagement/repository"
	"outreach_backend/internal/events"
	"outreach_backend/internal/policy"
	"outreach_backend/platform/apperr"
	"outreach_backend/platform/logger"
)

const (
	// dueBatchSize bounds how many due engagements one tick loads.
	dueBatchSize = 200
	// campaignParallelism bounds concurrent campaign processing per tick.
	// Engagements within one campaign always run serially under the lock.
	campaignParallelism = 8

	pauseReasonWindow   = "dispatch_within_conflict_window"
	pauseReasonResponse = "response_received"
)

// Store is the campaign persistence surface the orchestrator depends on.
type Store interface {
	CreateIfAbsent(ctx context.Context, orgDomain, organization string) (repository.Campaign, error)
	GetByID(ctx context.Context, id uuid.UUID) (repository.Campaign, error)
	GetByOrgDomain(ctx context.Context, orgDomain string) (repository.Campaign, error)
	SetStatus(ctx context.Context, id uuid.UUID, status string, conflictFlag bool) (repository.Campaign, error)
	SetPrimaryContact(ctx context.Context, id, contactID uuid.UUID) error
	SetFirstResponder(ctx context.Context, id, contactID uuid.UUID) error
	RequestCancel(ctx context.Context, id uuid.UUID) (repository.Campaign, error)
	UpsertContact(ctx context.Context, params repository.UpsertContactParams) (repository.Contact, error)
	GetContact(ctx context.Context, id uuid.UUID) (repository.Contact, error)
	ListContacts(ctx context.Context, orgDomain string) ([]repository.Contact, error)
}

// EngagementStore is the read surface over engagement state the orchestrator
// needs; writes go through the Machine.
type EngagementStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (enrepo.EngagementState, error)
	ListByCampaign(ctx context.Context, campaignID uuid.UUID) ([]enrepo.EngagementState, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]enrepo.EngagementState, error)
	LastDispatchAt(ctx context.Context, campaignID, excludeContactID uuid.UUID) (*time.Time, error)
}

// Machine drives individual engagement transitions.
type Machine interface {
	Activate(ctx context.Context, params engagement.ActivateParams) (enrepo.EngagementState, error)
	FollowUp(ctx context.Context, params engagement.FollowUpParams) (enrepo.EngagementState, error)
	RecordResponse(ctx context.Context, params engagement.RecordResponseParams) (enrepo.EngagementState, error)
	Close(ctx context.Context, state enrepo.EngagementState) (enrepo.EngagementState, error)
}

// Orchestrator owns campaign-level decisions. All mutations for one campaign
// happen under its lock; distinct campaigns proceed in parallel.
type Orchestrator struct {
	store       Store
	engagements EngagementStore
	machine     Machine
	pol         *policy.Policy
	bus         events.Bus
	locker      *Locker
	log         *logger.Logger
	now         func() time.Time
}

func NewOrchestrator(store Store, engagements EngagementStore, machine Machine, pol *policy.Policy, bus events.Bus, locker *Locker, log *logger.Logger) *Orchestrator {
	return &Orchestrator{
		store:       store,
		engagements: engagements,
		machine:     machine,
		pol:         pol,
		bus:         bus,
		locker:      locker,
		log:         log,
		now:         time.Now,
	}
}

// QualifiedLead carries the lead fields the orchestrator needs to fold a
// qualified lead into its organization's campaign.
type QualifiedLead struct {
	LeadID       uuid.UUID
	Organization string
	OrgDomain    string
	ContactName  string
	ContactRole  string
	Email        string
	Phone        string
	Tier         policy.Tier
}

// OnLeadQualified folds a qualified lead into the campaign for its org
// domain, creating the campaign on first sight. The contact joins the
// priority queue; if the campaign has no primary yet, outreach starts
// immediately.
func (o *Orchestrator) OnLeadQualified(ctx context.Context, lead QualifiedLead) error {
	if !o.pol.Engageable(lead.Tier) {
		o.log.Info("lead below engagement threshold",
			"lead_id", lead.LeadID.String(), "tier", string(lead.Tier))
		return nil
	}

	camp, err := o.store.CreateIfAbsent(ctx, lead.OrgDomain, lead.Organization)
	if err != nil {
		return fmt.Errorf("ensure campaign: %w", err)
	}

	var email, phone *string
	if lead.Email != "" {
		email = &lead.Email
	}
	if lead.Phone != "" {
		phone = &lead.Phone
	}
	contact, err := o.store.UpsertContact(ctx, repository.UpsertContactParams{
		OrgDomain: lead.OrgDomain,
		Name:      lead.ContactName,
		Email:     email,
		Phone:     phone,
		Role:      lead.ContactRole,
		Priority:  RolePriority(lead.ContactRole),
	})
	if err != nil {
		return fmt.Errorf("upsert contact: %w", err)
	}

	if camp.Status != repository.StatusActive || camp.CancelRequested || camp.PrimaryContactID != nil {
		// Contact queued; it becomes reachable through sibling promotion.
		return nil
	}

	release, ok, err := o.locker.Acquire(ctx, camp.ID)
	if err != nil {
		return err
	}
	if !ok {
		// A concurrent tick owns the campaign; it will pick the primary up.
		return nil
	}
	defer release()

	// Re-read under the lock: a racing intake may have activated a primary.
	camp, err = o.store.GetByID(ctx, camp.ID)
	if err != nil {
		return err
	}
	if camp.PrimaryContactID != nil || camp.Status != repository.StatusActive {
		return nil
	}

	return o.activateContact(ctx, camp, contact, lead.LeadID, lead.Tier, nil)
}

// Tick processes every due engagement, grouped by campaign. Campaigns run in
// parallel; a campaign that cannot take its lock is skipped until next tick.
func (o *Orchestrator) Tick(ctx context.Context) error {
	due, err := o.engagements.ListDue(ctx, o.now(), dueBatchSize)
	if err != nil {
		return fmt.Errorf("list due engagements: %w", err)
	}

	byCampaign := make(map[uuid.UUID][]enrepo.EngagementState)
	var order []uuid.UUID
	for _, state := range due {
		if _, seen := byCampaign[state.CampaignID]; !seen {
			order = append(order, state.CampaignID)
		}
		byCampaign[state.CampaignID] = append(byCampaign[state.CampaignID], state)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(campaignParallelism)
	for _, campaignID := range order {
		campaignID := campaignID
		states := byCampaign[campaignID]
		g.Go(func() error {
			if err := o.processCampaign(gctx, campaignID, states); err != nil {
				// One broken campaign must not starve the rest of the tick.
				o.log.Error("campaign tick failed",
					"campaign_id", campaignID.String(), "error", err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (o *Orchestrator) processCampaign(ctx context.Context, campaignID uuid.UUID, due []enrepo.EngagementState) error {
	release, ok, err := o.locker.Acquire(ctx, campaignID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	defer release()

	camp, err := o.store.GetByID(ctx, campaignID)
	if err != nil {
		return err
	}

	if camp.CancelRequested && !isTerminalStatus(camp.Status) {
		if _, err := o.store.SetStatus(ctx, camp.ID, repository.StatusCancelled, false); err != nil {
			return err
		}
		o.bus.Publish(ctx, events.CampaignCancelled{
			BaseEvent: events.NewBaseEvent(), CampaignID: camp.ID, CancelledAt: o.now(),
		})
		return nil
	}

	if camp.Status == repository.StatusPaused {
		camp, err = o.maybeResume(ctx, camp)
		if err != nil {
			return err
		}
	}
	if camp.Status != repository.StatusActive {
		return nil
	}

	for _, stale := range due {
		paused, err := o.processEngagement(ctx, &camp, stale)
		if err != nil {
			o.log.Error("engagement follow-up failed",
				"engagement_id", stale.ID.String(), "error", err)
			continue
		}
		if paused {
			// Remaining due engagements stay scheduled and are retried once
			// the campaign resumes.
			return nil
		}
	}
	return nil
}

// processEngagement advances one due engagement. It returns paused=true when
// conflict detection paused the whole campaign.
func (o *Orchestrator) processEngagement(ctx context.Context, camp *repository.Campaign, stale enrepo.EngagementState) (paused bool, err error) {
	// Re-read: the batch snapshot may predate a response or another worker.
	state, err := o.engagements.GetByID(ctx, stale.ID)
	if err != nil {
		return false, err
	}
	if !o.isDue(state) {
		return false, nil
	}

	conflicted, reason, err := o.inConflict(ctx, *camp, state.ContactID)
	if err != nil {
		return false, err
	}
	if conflicted {
		if err := o.pause(ctx, camp, reason); err != nil {
			return false, err
		}
		return true, nil
	}

	contact, err := o.store.GetContact(ctx, state.ContactID)
	if err != nil {
		return false, err
	}

	// A deferred promotion reaches its first dispatch here; recover the
	// exhausted colleague so the opening message can reference them.
	var colleagueRef *engagement.Contact
	if state.AttemptCount == 0 {
		if colleagueRef, err = o.colleagueReference(ctx, camp.ID, state.ContactID); err != nil {
			return false, err
		}
	}

	newState, err := o.machine.FollowUp(ctx, engagement.FollowUpParams{
		State:        state,
		Contact:      toEngagementContact(contact),
		Organization: camp.Organization,
		ColleagueRef: colleagueRef,
	})
	if errors.Is(err, enrepo.ErrVersionConflict) {
		o.log.PersistenceConflict("engagement_state", state.ID.String())
		fresh, gerr := o.engagements.GetByID(ctx, state.ID)
		if gerr != nil {
			return false, gerr
		}
		if !o.isDue(fresh) {
			return false, nil
		}
		newState, err = o.machine.FollowUp(ctx, engagement.FollowUpParams{
			State:        fresh,
			Contact:      toEngagementContact(contact),
			Organization: camp.Organization,
			ColleagueRef: colleagueRef,
		})
		if errors.Is(err, enrepo.ErrVersionConflict) {
			// Give up for this tick; the row stays due and is retried.
			o.log.PersistenceConflict("engagement_state", state.ID.String())
			return false, nil
		}
	}
	if err != nil {
		return false, err
	}

	if newState.State == endomain.StateExhausted {
		if _, err := o.machine.Close(ctx, newState); err != nil {
			return false, err
		}
		if err := o.ensureActiveEngagement(ctx, camp); err != nil {
			return false, err
		}
	}
	return false, nil
}

// inConflict applies the campaign conflict rules: a recorded response holds
// all automated outreach, and a recent dispatch to any other contact at the
// organization defers new dispatches until the window elapses.
func (o *Orchestrator) inConflict(ctx context.Context, camp repository.Campaign, contactID uuid.UUID) (bool, string, error) {
	states, err := o.engagements.ListByCampaign(ctx, camp.ID)
	if err != nil {
		return false, "", err
	}
	for _, s := range states {
		if s.ResponseReceived {
			return true, pauseReasonResponse, nil
		}
	}

	last, err := o.engagements.LastDispatchAt(ctx, camp.ID, contactID)
	if err != nil {
		return false, "", err
	}
	if last != nil && o.now().Sub(*last) < o.pol.ConflictWindow {
		return true, pauseReasonWindow, nil
	}
	return false, "", nil
}

func (o *Orchestrator) pause(ctx context.Context, camp *repository.Campaign, reason string) error {
	updated, err := o.store.SetStatus(ctx, camp.ID, repository.StatusPaused, true)
	if err != nil {
		return err
	}
	*camp = updated
	o.bus.Publish(ctx, events.CampaignPaused{
		BaseEvent: events.NewBaseEvent(), CampaignID: camp.ID, Reason: reason,
	})
	o.log.Info("campaign paused", "campaign_id", camp.ID.String(), "reason", reason)
	return nil
}

// maybeResume lifts a window pause once the window has elapsed. A pause
// caused by a response never auto-resumes; the campaign waits for an
// operator verdict.
func (o *Orchestrator) maybeResume(ctx context.Context, camp repository.Campaign) (repository.Campaign, error) {
	conflicted, _, err := o.inConflict(ctx, camp, uuid.Nil)
	if err != nil {
		return camp, err
	}
	if conflicted {
		return camp, nil
	}

	updated, err := o.store.SetStatus(ctx, camp.ID, repository.StatusActive, false)
	if err != nil {
		return camp, err
	}
	o.bus.Publish(ctx, events.CampaignResumed{
		BaseEvent: events.NewBaseEvent(), CampaignID: camp.ID,
	})
	o.log.Info("campaign resumed", "campaign_id", camp.ID.String())

	// The pause may have interrupted a promotion.
	if err := o.ensureActiveEngagement(ctx, &updated); err != nil {
		return updated, err
	}
	return updated, nil
}

// ensureActiveEngagement promotes the next reachable contact when no
// engagement is live, or closes the campaign as lost when the queue is empty
// and nobody ever responded.
func (o *Orchestrator) ensureActiveEngagement(ctx context.Context, camp *repository.Campaign) error {
	states, err := o.engagements.ListByCampaign(ctx, camp.ID)
	if err != nil {
		return err
	}

	engaged := make(map[uuid.UUID]bool, len(states))
	var lastClosed *enrepo.EngagementState
	for i := range states {
		s := states[i]
		engaged[s.ContactID] = true
		if s.ResponseReceived {
			// A human owns this conversation; never promote past it.
			return nil
		}
		if !endomain.IsTerminal(s.State) && s.State != endomain.StateExhausted {
			// A live engagement exists; nothing to promote.
			return nil
		}
		if s.State == endomain.StateClosed {
			if lastClosed == nil || s.UpdatedAt.After(lastClosed.UpdatedAt) {
				lastClosed = &states[i]
			}
		}
	}

	contacts, err := o.store.ListContacts(ctx, camp.OrgDomain)
	if err != nil {
		return err
	}

	var colleagueRef *engagement.Contact
	if lastClosed != nil {
		if prev, err := o.store.GetContact(ctx, lastClosed.ContactID); err == nil {
			ref := toEngagementContact(prev)
			colleagueRef = &ref
		}
	}

	for _, contact := range contacts {
		if engaged[contact.ID] || !reachable(contact) {
			continue
		}
		tier, leadID := o.inheritedTier(states)
		if err := o.activateContact(ctx, *camp, contact, leadID, tier, colleagueRef); err != nil {
			return err
		}
		if lastClosed != nil {
			o.bus.Publish(ctx, events.ContactPromoted{
				BaseEvent:          events.NewBaseEvent(),
				CampaignID:         camp.ID,
				PromotedContactID:  contact.ID,
				ExhaustedContactID: lastClosed.ContactID,
			})
		}
		return nil
	}

	// Queue empty with no response: the campaign is lost.
	if _, err := o.store.SetStatus(ctx, camp.ID, repository.StatusLost, false); err != nil {
		return err
	}
	o.bus.Publish(ctx, events.CampaignLost{
		BaseEvent: events.NewBaseEvent(), CampaignID: camp.ID,
	})
	o.log.Info("campaign lost", "campaign_id", camp.ID.String())
	return nil
}

// inheritedTier carries the prior engagement's tier and lead forward to a
// promoted sibling; the organization's qualification, not the individual
// contact, sets the cadence.
func (o *Orchestrator) inheritedTier(states []enrepo.EngagementState) (policy.Tier, uuid.UUID) {
	if len(states) == 0 {
		return policy.TierWarm, uuid.Nil
	}
	latest := states[len(states)-1]
	return latest.Tier, latest.LeadID
}

func (o *Orchestrator) activateContact(ctx context.Context, camp repository.Campaign, contact repository.Contact, leadID uuid.UUID, tier policy.Tier, colleagueRef *engagement.Contact) error {
	// The separation window binds a promoted contact's first attempt too:
	// a recent dispatch to a colleague pushes activation past the window.
	notBefore, err := o.windowClearance(ctx, camp.ID, contact.ID)
	if err != nil {
		return err
	}

	state, err := o.machine.Activate(ctx, engagement.ActivateParams{
		CampaignID:   camp.ID,
		ContactID:    contact.ID,
		LeadID:       leadID,
		Tier:         tier,
		Contact:      toEngagementContact(contact),
		Organization: camp.Organization,
		ColleagueRef: colleagueRef,
		NotBefore:    notBefore,
	})
	if err != nil {
		return fmt.Errorf("activate contact %s: %w", contact.ID, err)
	}
	if err := o.store.SetPrimaryContact(ctx, camp.ID, contact.ID); err != nil {
		return err
	}
	o.log.Info("contact activated",
		"campaign_id", camp.ID.String(),
		"contact_id", contact.ID.String(),
		"engagement_id", state.ID.String(),
		"tier", string(tier),
		"deferred", notBefore != nil)
	return nil
}

// windowClearance returns the earliest time a first dispatch to contactID may
// go out without breaching the separation window, or nil when it may go now.
func (o *Orchestrator) windowClearance(ctx context.Context, campaignID, contactID uuid.UUID) (*time.Time, error) {
	last, err := o.engagements.LastDispatchAt(ctx, campaignID, contactID)
	if err != nil {
		return nil, err
	}
	if last == nil {
		return nil, nil
	}
	if clear := last.Add(o.pol.ConflictWindow); clear.After(o.now()) {
		return &clear, nil
	}
	return nil, nil
}

// colleagueReference resolves the most recently closed sibling's contact for
// a first-attempt dispatch, or nil when no colleague was engaged before.
func (o *Orchestrator) colleagueReference(ctx context.Context, campaignID, contactID uuid.UUID) (*engagement.Contact, error) {
	states, err := o.engagements.ListByCampaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	var lastClosed *enrepo.EngagementState
	for i := range states {
		s := states[i]
		if s.ContactID == contactID || s.State != endomain.StateClosed {
			continue
		}
		if lastClosed == nil || s.UpdatedAt.After(lastClosed.UpdatedAt) {
			lastClosed = &states[i]
		}
	}
	if lastClosed == nil {
		return nil, nil
	}

	prev, err := o.store.GetContact(ctx, lastClosed.ContactID)
	if err != nil {
		return nil, err
	}
	ref := toEngagementContact(prev)
	return &ref, nil
}

// RecordResponse applies an inbound response: the engagement escalates to a
// human and the campaign pauses pending an operator verdict.
func (o *Orchestrator) RecordResponse(ctx context.Context, engagementID uuid.UUID, channel, detail string) error {
	state, err := o.engagements.GetByID(ctx, engagementID)
	if err != nil {
		return err
	}
	camp, err := o.store.GetByID(ctx, state.CampaignID)
	if err != nil {
		return err
	}
	contact, err := o.store.GetContact(ctx, state.ContactID)
	if err != nil {
		return err
	}

	updated, err := o.machine.RecordResponse(ctx, engagement.RecordResponseParams{
		EngagementID: engagementID,
		Channel:      channel,
		Detail:       detail,
		ContactName:  contact.Name,
		Organization: camp.Organization,
	})
	if err != nil {
		return err
	}
	if updated.State != endomain.StateEscalated {
		// Late or duplicate response; logged by the machine, nothing to do.
		return nil
	}

	if err := o.store.SetFirstResponder(ctx, camp.ID, contact.ID); err != nil {
		return err
	}
	if camp.Status == repository.StatusActive {
		if err := o.pause(ctx, &camp, pauseReasonResponse); err != nil {
			return err
		}
	}
	return nil
}

// MarkWon closes a campaign as converted. A win requires that somebody
// actually responded.
func (o *Orchestrator) MarkWon(ctx context.Context, campaignID uuid.UUID) error {
	camp, err := o.store.GetByID(ctx, campaignID)
	if err != nil {
		return err
	}
	if isTerminalStatus(camp.Status) {
		return apperr.Conflict(fmt.Sprintf("campaign is already %s", camp.Status))
	}
	if camp.FirstResponderID == nil {
		return apperr.Validation("campaign cannot be won without a responding contact")
	}
	if _, err := o.store.SetStatus(ctx, camp.ID, repository.StatusWon, false); err != nil {
		return err
	}
	o.bus.Publish(ctx, events.CampaignWon{
		BaseEvent: events.NewBaseEvent(), CampaignID: camp.ID, ContactID: *camp.FirstResponderID,
	})
	return nil
}

// MarkLost closes a campaign as not converted.
func (o *Orchestrator) MarkLost(ctx context.Context, campaignID uuid.UUID) error {
	camp, err := o.store.GetByID(ctx, campaignID)
	if err != nil {
		return err
	}
	if isTerminalStatus(camp.Status) {
		return apperr.Conflict(fmt.Sprintf("campaign is already %s", camp.Status))
	}
	if _, err := o.store.SetStatus(ctx, camp.ID, repository.StatusLost, false); err != nil {
		return err
	}
	o.bus.Publish(ctx, events.CampaignLost{
		BaseEvent: events.NewBaseEvent(), CampaignID: camp.ID,
	})
	return nil
}

// Cancel flags the campaign; the next tick finalizes the status so that an
// in-flight dispatch under the lock is never interrupted mid-write.
func (o *Orchestrator) Cancel(ctx context.Context, campaignID uuid.UUID) error {
	camp, err := o.store.GetByID(ctx, campaignID)
	if err != nil {
		return err
	}
	if isTerminalStatus(camp.Status) {
		return apperr.Conflict(fmt.Sprintf("campaign is already %s", camp.Status))
	}
	if _, err := o.store.RequestCancel(ctx, campaignID); err != nil {
		return err
	}
	o.log.Info("campaign cancellation requested", "campaign_id", campaignID.String())
	return nil
}

func (o *Orchestrator) isDue(state enrepo.EngagementState) bool {
	return endomain.IsSchedulable(state.State) &&
		state.NextScheduledAt != nil &&
		!state.NextScheduledAt.After(o.now())
}

func isTerminalStatus(status string) bool {
	switch status {
	case repository.StatusWon, repository.StatusLost, repository.StatusCancelled:
		return true
	}
	return false
}

func toEngagementContact(c repository.Contact) engagement.Contact {
	out := engagement.Contact{ID: c.ID, Name: c.Name, Role: c.Role}
	if c.Email != nil {
		out.Email = *c.Email
	}
	if c.Phone != nil {
		out.Phone = *c.Phone
	}
	return out
}

// reachable requires at least one usable address.
func reachable(c repository.Contact) bool {
	return (c.Email != nil && *c.Email != "") || (c.Phone != nil && *c.Phone != "")
}
