package campaign

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"outreach_backend/internal/campaign/repository"
	"outreach_backend/internal/engagement"
	endomain "outreach_backend/internal/engagement/domain"
	enrepo "outreach_backend/internal/engagement/repository"
	"outreach_backend/internal/policy"
	"outreach_backend/platform/apperr"
	platformevents "outreach_backend/platform/events"
	"outreach_backend/platform/logger"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fakeCampaignStore struct {
	mu        sync.Mutex
	campaigns map[uuid.UUID]repository.Campaign
	byDomain  map[string]uuid.UUID
	contacts  map[uuid.UUID]repository.Contact
	clock     *fakeClock
}

func newFakeCampaignStore(clock *fakeClock) *fakeCampaignStore {
	return &fakeCampaignStore{
		campaigns: make(map[uuid.UUID]repository.Campaign),
		byDomain:  make(map[string]uuid.UUID),
		contacts:  make(map[uuid.UUID]repository.Contact),
		clock:     clock,
	}
}

func (s *fakeCampaignStore) CreateIfAbsent(_ context.Context, orgDomain, organization string) (repository.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.byDomain[orgDomain]; ok {
		return s.campaigns[id], nil
	}
	c := repository.Campaign{
		ID:           uuid.New(),
		OrgDomain:    orgDomain,
		Organization: organization,
		Status:       repository.StatusActive,
		CreatedAt:    s.clock.Now(),
		UpdatedAt:    s.clock.Now(),
	}
	s.campaigns[c.ID] = c
	s.byDomain[orgDomain] = c.ID
	return c, nil
}

func (s *fakeCampaignStore) GetByID(_ context.Context, id uuid.UUID) (repository.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return repository.Campaign{}, repository.ErrNotFound
	}
	return c, nil
}

func (s *fakeCampaignStore) GetByOrgDomain(_ context.Context, orgDomain string) (repository.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byDomain[orgDomain]
	if !ok {
		return repository.Campaign{}, repository.ErrNotFound
	}
	return s.campaigns[id], nil
}

func (s *fakeCampaignStore) SetStatus(_ context.Context, id uuid.UUID, status string, conflictFlag bool) (repository.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return repository.Campaign{}, repository.ErrNotFound
	}
	c.Status = status
	c.ConflictFlag = conflictFlag
	c.UpdatedAt = s.clock.Now()
	s.campaigns[id] = c
	return c, nil
}

func (s *fakeCampaignStore) SetPrimaryContact(_ context.Context, id, contactID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return repository.ErrNotFound
	}
	c.PrimaryContactID = &contactID
	s.campaigns[id] = c
	return nil
}

func (s *fakeCampaignStore) SetFirstResponder(_ context.Context, id, contactID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return repository.ErrNotFound
	}
	if c.FirstResponderID == nil {
		c.FirstResponderID = &contactID
		s.campaigns[id] = c
	}
	return nil
}

func (s *fakeCampaignStore) RequestCancel(_ context.Context, id uuid.UUID) (repository.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return repository.Campaign{}, repository.ErrNotFound
	}
	c.CancelRequested = true
	s.campaigns[id] = c
	return c, nil
}

func (s *fakeCampaignStore) UpsertContact(_ context.Context, params repository.UpsertContactParams) (repository.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := contactIdentity(params.Email, params.Phone)
	for id, existing := range s.contacts {
		if existing.OrgDomain != params.OrgDomain || key == nil {
			continue
		}
		if strPtrEq(contactIdentity(existing.Email, existing.Phone), key) {
			existing.Name = params.Name
			existing.Phone = params.Phone
			existing.Role = params.Role
			existing.Priority = params.Priority
			s.contacts[id] = existing
			return existing, nil
		}
	}
	c := repository.Contact{
		ID:        uuid.New(),
		OrgDomain: params.OrgDomain,
		Name:      params.Name,
		Email:     params.Email,
		Phone:     params.Phone,
		Role:      params.Role,
		Priority:  params.Priority,
		CreatedAt: s.clock.Now(),
	}
	s.contacts[c.ID] = c
	return c, nil
}

func (s *fakeCampaignStore) GetContact(_ context.Context, id uuid.UUID) (repository.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contacts[id]
	if !ok {
		return repository.Contact{}, repository.ErrContactNotFound
	}
	return c, nil
}

func (s *fakeCampaignStore) ListContacts(_ context.Context, orgDomain string) ([]repository.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []repository.Contact
	for _, c := range s.contacts {
		if c.OrgDomain == orgDomain {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func strPtrEq(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// contactIdentity mirrors the contacts unique index: email when present,
// otherwise phone.
func contactIdentity(email, phone *string) *string {
	if email != nil {
		return email
	}
	return phone
}

// fakeEngagementStore backs both the machine's write path and the
// orchestrator's read path.
type fakeEngagementStore struct {
	mu           sync.Mutex
	states       map[uuid.UUID]enrepo.EngagementState
	order        []uuid.UUID
	touchpoints  []enrepo.Touchpoint
	clock        *fakeClock
	conflictNext bool
}

func newFakeEngagementStore(clock *fakeClock) *fakeEngagementStore {
	return &fakeEngagementStore{states: make(map[uuid.UUID]enrepo.EngagementState), clock: clock}
}

func (s *fakeEngagementStore) Create(_ context.Context, params enrepo.CreateParams) (enrepo.EngagementState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := enrepo.EngagementState{
		ID:         uuid.New(),
		CampaignID: params.CampaignID,
		ContactID:  params.ContactID,
		LeadID:     params.LeadID,
		State:      endomain.StateNew,
		Tier:       params.Tier,
		Version:    1,
		CreatedAt:  s.clock.Now(),
	}
	s.states[state.ID] = state
	s.order = append(s.order, state.ID)
	return state, nil
}

func (s *fakeEngagementStore) GetByID(_ context.Context, id uuid.UUID) (enrepo.EngagementState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[id]
	if !ok {
		return enrepo.EngagementState{}, enrepo.ErrNotFound
	}
	return state, nil
}

func (s *fakeEngagementStore) UpdateState(_ context.Context, params enrepo.UpdateStateParams) (enrepo.EngagementState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[params.ID]
	if !ok {
		return enrepo.EngagementState{}, enrepo.ErrNotFound
	}
	if state.Version != params.ExpectedVersion {
		return enrepo.EngagementState{}, enrepo.ErrVersionConflict
	}
	state.State = params.State
	state.AttemptCount = params.AttemptCount
	state.CurrentChannel = params.CurrentChannel
	state.LastContactedAt = params.LastContactedAt
	state.NextScheduledAt = params.NextScheduledAt
	state.ResponseReceived = params.ResponseReceived
	state.Version++
	state.UpdatedAt = s.clock.Now()
	s.states[params.ID] = state
	if s.conflictNext {
		// The write landed, as if a concurrent worker made the identical
		// transition first, but this caller lost the version race.
		s.conflictNext = false
		return enrepo.EngagementState{}, enrepo.ErrVersionConflict
	}
	return state, nil
}

func (s *fakeEngagementStore) loseNextWrite() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conflictNext = true
}

func (s *fakeEngagementStore) AppendTouchpoint(_ context.Context, params enrepo.CreateTouchpointParams) (enrepo.Touchpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tp := enrepo.Touchpoint{
		ID:             uuid.New(),
		CampaignID:     params.CampaignID,
		EngagementID:   params.EngagementID,
		ContactID:      params.ContactID,
		Channel:        params.Channel,
		Outcome:        params.Outcome,
		ColleagueRefID: params.ColleagueRefID,
		Subject:        params.Subject,
		Detail:         params.Detail,
		OccurredAt:     s.clock.Now(),
	}
	s.touchpoints = append(s.touchpoints, tp)
	return tp, nil
}

func (s *fakeEngagementStore) ListByCampaign(_ context.Context, campaignID uuid.UUID) ([]enrepo.EngagementState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []enrepo.EngagementState
	for _, id := range s.order {
		if state := s.states[id]; state.CampaignID == campaignID {
			out = append(out, state)
		}
	}
	return out, nil
}

func (s *fakeEngagementStore) ListDue(_ context.Context, now time.Time, limit int) ([]enrepo.EngagementState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []enrepo.EngagementState
	for _, id := range s.order {
		state := s.states[id]
		if endomain.IsSchedulable(state.State) && state.NextScheduledAt != nil && !state.NextScheduledAt.After(now) {
			out = append(out, state)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextScheduledAt.Before(*out[j].NextScheduledAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeEngagementStore) LastDispatchAt(_ context.Context, campaignID, excludeContactID uuid.UUID) (*time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *time.Time
	for i := range s.touchpoints {
		tp := s.touchpoints[i]
		if tp.CampaignID != campaignID || tp.ContactID == excludeContactID {
			continue
		}
		if tp.Outcome != enrepo.OutcomeSent && tp.Outcome != enrepo.OutcomeFailed {
			continue
		}
		if latest == nil || tp.OccurredAt.After(*latest) {
			latest = &s.touchpoints[i].OccurredAt
		}
	}
	return latest, nil
}

func (s *fakeEngagementStore) seed(state enrepo.EngagementState) enrepo.EngagementState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if state.ID == uuid.Nil {
		state.ID = uuid.New()
	}
	if state.Version == 0 {
		state.Version = 1
	}
	s.states[state.ID] = state
	s.order = append(s.order, state.ID)
	return state
}

type recordingProvider struct {
	mu         sync.Mutex
	dispatched []engagement.DispatchRequest
}

func (p *recordingProvider) Dispatch(_ context.Context, req engagement.DispatchRequest) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dispatched = append(p.dispatched, req)
	return nil
}

func (p *recordingProvider) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.dispatched)
}

type stubComposer struct{}

func (stubComposer) Compose(_ context.Context, req engagement.ComposeRequest) (engagement.Message, error) {
	return engagement.Message{Subject: "Hello", Body: "Hi " + req.Contact.Name}, nil
}

type fixture struct {
	clock    *fakeClock
	store    *fakeCampaignStore
	engStore *fakeEngagementStore
	provider *recordingProvider
	orch     *Orchestrator
	machine  *engagement.Machine
	pol      *policy.Policy
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
	log := logger.New("development")
	bus := platformevents.NewInMemoryBus(log)
	pol := policy.Default()
	store := newFakeCampaignStore(clock)
	engStore := newFakeEngagementStore(clock)
	provider := &recordingProvider{}
	machine := engagement.NewMachine(engStore, provider, stubComposer{}, pol, bus, log, 5*time.Second).WithClock(clock.Now)
	orch := NewOrchestrator(store, engStore, machine, pol, bus, NewLocker(nil, 30*time.Second), log)
	orch.now = clock.Now

	return &fixture{clock: clock, store: store, engStore: engStore, provider: provider, orch: orch, machine: machine, pol: pol}
}

func hotLead(name, role, email string) QualifiedLead {
	return QualifiedLead{
		LeadID:       uuid.New(),
		Organization: "Acme",
		OrgDomain:    "acme.test",
		ContactName:  name,
		ContactRole:  role,
		Email:        email,
		Phone:        "+12025550123",
		Tier:         policy.TierHot,
	}
}

func (f *fixture) campaign(t *testing.T) repository.Campaign {
	t.Helper()
	camp, err := f.store.GetByOrgDomain(context.Background(), "acme.test")
	if err != nil {
		t.Fatalf("campaign lookup: %v", err)
	}
	return camp
}

func TestQualifiedLeadStartsCampaign(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.orch.OnLeadQualified(ctx, hotLead("Dana Reyes", "VP Operations", "dana@acme.test")); err != nil {
		t.Fatalf("on lead qualified: %v", err)
	}

	camp := f.campaign(t)
	if camp.Status != repository.StatusActive {
		t.Fatalf("expected active campaign, got %s", camp.Status)
	}
	if camp.PrimaryContactID == nil {
		t.Fatal("expected primary contact to be set")
	}

	states, _ := f.engStore.ListByCampaign(ctx, camp.ID)
	if len(states) != 1 {
		t.Fatalf("expected one engagement, got %d", len(states))
	}
	if states[0].State != endomain.StateAwaitingResponse || states[0].AttemptCount != 1 {
		t.Fatalf("expected first attempt dispatched, got %s attempt %d", states[0].State, states[0].AttemptCount)
	}
	if f.provider.count() != 1 {
		t.Fatalf("expected 1 dispatch, got %d", f.provider.count())
	}
}

func TestUnqualifiedLeadStartsNothing(t *testing.T) {
	f := newFixture(t)
	lead := hotLead("Pat Low", "Intern", "pat@acme.test")
	lead.Tier = policy.TierUnqualified

	if err := f.orch.OnLeadQualified(context.Background(), lead); err != nil {
		t.Fatalf("on lead qualified: %v", err)
	}
	if _, err := f.store.GetByOrgDomain(context.Background(), "acme.test"); err == nil {
		t.Fatal("expected no campaign for an unqualified lead")
	}
}

func TestSecondLeadJoinsQueueWithoutSecondDispatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.orch.OnLeadQualified(ctx, hotLead("Dana Reyes", "VP Operations", "dana@acme.test")); err != nil {
		t.Fatalf("first lead: %v", err)
	}
	if err := f.orch.OnLeadQualified(ctx, hotLead("Sam Ortiz", "Office Manager", "sam@acme.test")); err != nil {
		t.Fatalf("second lead: %v", err)
	}

	camp := f.campaign(t)
	states, _ := f.engStore.ListByCampaign(ctx, camp.ID)
	if len(states) != 1 {
		t.Fatalf("second contact must wait for promotion, got %d engagements", len(states))
	}
	contacts, _ := f.store.ListContacts(ctx, "acme.test")
	if len(contacts) != 2 {
		t.Fatalf("expected 2 contacts, got %d", len(contacts))
	}
}

func TestTickFollowsUpWhenDue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.orch.OnLeadQualified(ctx, hotLead("Dana Reyes", "VP Operations", "dana@acme.test")); err != nil {
		t.Fatalf("lead: %v", err)
	}

	// Nothing due yet.
	if err := f.orch.Tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if f.provider.count() != 1 {
		t.Fatalf("premature dispatch: got %d", f.provider.count())
	}

	f.clock.Advance(4*time.Hour + time.Minute)
	if err := f.orch.Tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}

	camp := f.campaign(t)
	states, _ := f.engStore.ListByCampaign(ctx, camp.ID)
	if states[0].AttemptCount != 2 || states[0].State != endomain.StateFollowingUp {
		t.Fatalf("expected attempt 2 in Following_Up, got %d in %s", states[0].AttemptCount, states[0].State)
	}
}

func TestExhaustedPrimaryPromotesSiblingWithColleagueReference(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.orch.OnLeadQualified(ctx, hotLead("Dana Reyes", "VP Operations", "dana@acme.test")); err != nil {
		t.Fatalf("first lead: %v", err)
	}
	if err := f.orch.OnLeadQualified(ctx, hotLead("Sam Ortiz", "Office Manager", "sam@acme.test")); err != nil {
		t.Fatalf("second lead: %v", err)
	}

	camp := f.campaign(t)
	primaryID := *camp.PrimaryContactID

	// Drive the HOT cadence to its 5-attempt budget, then one more due tick
	// to exhaust.
	for i := 0; i < 5; i++ {
		f.clock.Advance(4*time.Hour + time.Minute)
		if err := f.orch.Tick(ctx); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
	}

	states, _ := f.engStore.ListByCampaign(ctx, camp.ID)
	if len(states) != 2 {
		t.Fatalf("expected promotion to create a second engagement, got %d", len(states))
	}

	var primaryState, siblingState enrepo.EngagementState
	for _, s := range states {
		if s.ContactID == primaryID {
			primaryState = s
		} else {
			siblingState = s
		}
	}
	if primaryState.State != endomain.StateClosed {
		t.Fatalf("expected exhausted primary to be closed, got %s", primaryState.State)
	}
	if siblingState.State != endomain.StateAwaitingResponse || siblingState.AttemptCount != 1 {
		t.Fatalf("expected promoted sibling on attempt 1, got %s attempt %d", siblingState.State, siblingState.AttemptCount)
	}
	if siblingState.Tier != policy.TierHot {
		t.Fatalf("promoted sibling must inherit the campaign tier, got %s", siblingState.Tier)
	}

	var refFound bool
	for _, tp := range f.engStore.touchpoints {
		if tp.EngagementID == siblingState.ID && tp.ColleagueRefID != nil && *tp.ColleagueRefID == primaryID {
			refFound = true
		}
	}
	if !refFound {
		t.Fatal("expected the promotion touchpoint to reference the exhausted colleague")
	}

	camp = f.campaign(t)
	if camp.PrimaryContactID == nil || *camp.PrimaryContactID == primaryID {
		t.Fatal("expected primary contact to move to the promoted sibling")
	}
}

func TestPromotionRespectsSeparationWindow(t *testing.T) {
	f := newFixture(t)
	f.pol.ConflictWindow = 10 * time.Hour
	ctx := context.Background()

	if err := f.orch.OnLeadQualified(ctx, hotLead("Dana Reyes", "VP Operations", "dana@acme.test")); err != nil {
		t.Fatalf("first lead: %v", err)
	}
	if err := f.orch.OnLeadQualified(ctx, hotLead("Sam Ortiz", "Office Manager", "sam@acme.test")); err != nil {
		t.Fatalf("second lead: %v", err)
	}

	camp := f.campaign(t)
	primaryID := *camp.PrimaryContactID

	// Exhaust the primary over the HOT cadence. The window is longer than
	// the cadence interval, so the promotion lands inside it.
	for i := 0; i < 5; i++ {
		f.clock.Advance(4*time.Hour + time.Minute)
		if err := f.orch.Tick(ctx); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
	}

	lastPrimary, _ := f.engStore.LastDispatchAt(ctx, camp.ID, uuid.Nil)
	if lastPrimary == nil {
		t.Fatal("expected dispatches to the primary")
	}
	if f.provider.count() != 5 {
		t.Fatalf("promotion inside the window must not dispatch, got %d", f.provider.count())
	}

	var sibling enrepo.EngagementState
	states, _ := f.engStore.ListByCampaign(ctx, camp.ID)
	for _, s := range states {
		if s.ContactID != primaryID {
			sibling = s
		}
	}
	if sibling.State != endomain.StateAwaitingResponse || sibling.AttemptCount != 0 {
		t.Fatalf("expected deferred sibling at attempt 0, got %s attempt %d", sibling.State, sibling.AttemptCount)
	}
	clear := lastPrimary.Add(f.pol.ConflictWindow)
	if sibling.NextScheduledAt == nil || sibling.NextScheduledAt.Before(clear) {
		t.Fatalf("sibling scheduled at %v, want no earlier than %v", sibling.NextScheduledAt, clear)
	}

	// Still inside the window nothing goes out.
	f.clock.Advance(5 * time.Hour)
	if err := f.orch.Tick(ctx); err != nil {
		t.Fatalf("tick inside window: %v", err)
	}
	if f.provider.count() != 5 {
		t.Fatalf("dispatch inside the separation window, got %d", f.provider.count())
	}

	// Past the window the deferred first attempt runs and references the
	// exhausted colleague.
	f.clock.Advance(2 * time.Hour)
	if err := f.orch.Tick(ctx); err != nil {
		t.Fatalf("tick past window: %v", err)
	}
	if f.provider.count() != 6 {
		t.Fatalf("expected the deferred dispatch after the window, got %d", f.provider.count())
	}

	var gapOK, refOK bool
	for _, tp := range f.engStore.touchpoints {
		if tp.EngagementID != sibling.ID || tp.Outcome != enrepo.OutcomeSent {
			continue
		}
		gapOK = tp.OccurredAt.Sub(*lastPrimary) >= f.pol.ConflictWindow
		refOK = tp.ColleagueRefID != nil && *tp.ColleagueRefID == primaryID
	}
	if !gapOK {
		t.Fatal("sibling dispatched inside the separation window")
	}
	if !refOK {
		t.Fatal("expected the deferred first touchpoint to reference the exhausted colleague")
	}
}

func TestFollowUpLostVersionRaceDispatchesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.orch.OnLeadQualified(ctx, hotLead("Dana Reyes", "VP Operations", "dana@acme.test")); err != nil {
		t.Fatalf("lead: %v", err)
	}

	f.clock.Advance(4*time.Hour + time.Minute)
	f.engStore.loseNextWrite()
	if err := f.orch.Tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}

	// Activation plus exactly one follow-up: the retry after the lost race
	// re-reads, sees the attempt already advanced and stands down.
	if f.provider.count() != 2 {
		t.Fatalf("lost version race must not re-dispatch, got %d dispatches", f.provider.count())
	}

	camp := f.campaign(t)
	states, _ := f.engStore.ListByCampaign(ctx, camp.ID)
	if states[0].AttemptCount != 2 || states[0].State != endomain.StateFollowingUp {
		t.Fatalf("expected attempt 2 in Following_Up, got %d in %s", states[0].AttemptCount, states[0].State)
	}
}

func TestPhoneOnlyLeadDoesNotDuplicateContact(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	lead := hotLead("Dana Reyes", "VP Operations", "")
	if err := f.orch.OnLeadQualified(ctx, lead); err != nil {
		t.Fatalf("first intake: %v", err)
	}
	repeat := hotLead("Dana Reyes", "Head of Operations", "")
	if err := f.orch.OnLeadQualified(ctx, repeat); err != nil {
		t.Fatalf("repeat intake: %v", err)
	}

	contacts, _ := f.store.ListContacts(ctx, "acme.test")
	if len(contacts) != 1 {
		t.Fatalf("expected one contact for a repeated phone-only lead, got %d", len(contacts))
	}
	if contacts[0].Role != "Head of Operations" {
		t.Fatalf("expected the repeat intake to refresh the contact, got role %q", contacts[0].Role)
	}
}

func TestConflictWindowPausesThenResumes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	camp, err := f.store.CreateIfAbsent(ctx, "acme.test", "Acme")
	if err != nil {
		t.Fatalf("create campaign: %v", err)
	}
	email1, email2 := "dana@acme.test", "sam@acme.test"
	c1, _ := f.store.UpsertContact(ctx, repository.UpsertContactParams{OrgDomain: "acme.test", Name: "Dana", Email: &email1, Role: "VP", Priority: 70})
	c2, _ := f.store.UpsertContact(ctx, repository.UpsertContactParams{OrgDomain: "acme.test", Name: "Sam", Email: &email2, Role: "Manager", Priority: 40})

	// Two engagements both due in the same tick.
	due := f.clock.Now().Add(-time.Minute)
	channel := policy.ChannelEmail
	for _, contact := range []repository.Contact{c1, c2} {
		f.engStore.seed(enrepo.EngagementState{
			CampaignID:      camp.ID,
			ContactID:       contact.ID,
			LeadID:          uuid.New(),
			State:           endomain.StateAwaitingResponse,
			Tier:            policy.TierHot,
			AttemptCount:    1,
			CurrentChannel:  &channel,
			NextScheduledAt: &due,
		})
	}

	if err := f.orch.Tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}

	if f.provider.count() != 1 {
		t.Fatalf("expected exactly one dispatch in the tick, got %d", f.provider.count())
	}
	camp, _ = f.store.GetByID(ctx, camp.ID)
	if camp.Status != repository.StatusPaused || !camp.ConflictFlag {
		t.Fatalf("expected paused campaign with conflict flag, got %s flag=%v", camp.Status, camp.ConflictFlag)
	}

	// While paused nothing dispatches, even though one engagement is due.
	if err := f.orch.Tick(ctx); err != nil {
		t.Fatalf("paused tick: %v", err)
	}
	if f.provider.count() != 1 {
		t.Fatalf("paused campaign must not dispatch, got %d", f.provider.count())
	}

	// Past the window the campaign resumes and the deferred dispatch runs.
	f.clock.Advance(f.pol.ConflictWindow + time.Minute)
	if err := f.orch.Tick(ctx); err != nil {
		t.Fatalf("resume tick: %v", err)
	}

	camp, _ = f.store.GetByID(ctx, camp.ID)
	if camp.Status != repository.StatusActive || camp.ConflictFlag {
		t.Fatalf("expected resumed campaign, got %s flag=%v", camp.Status, camp.ConflictFlag)
	}
	if f.provider.count() != 2 {
		t.Fatalf("expected deferred dispatch after resume, got %d", f.provider.count())
	}
}

func TestResponsePausesCampaignForOperator(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.orch.OnLeadQualified(ctx, hotLead("Dana Reyes", "VP Operations", "dana@acme.test")); err != nil {
		t.Fatalf("lead: %v", err)
	}
	camp := f.campaign(t)
	states, _ := f.engStore.ListByCampaign(ctx, camp.ID)

	if err := f.orch.RecordResponse(ctx, states[0].ID, "email", "let's talk"); err != nil {
		t.Fatalf("record response: %v", err)
	}

	state, _ := f.engStore.GetByID(ctx, states[0].ID)
	if state.State != endomain.StateEscalated {
		t.Fatalf("expected Escalated_To_Human, got %s", state.State)
	}

	camp = f.campaign(t)
	if camp.Status != repository.StatusPaused {
		t.Fatalf("expected paused campaign after response, got %s", camp.Status)
	}
	if camp.FirstResponderID == nil || *camp.FirstResponderID != state.ContactID {
		t.Fatal("expected first responder to be recorded")
	}

	// A response pause never auto-resumes.
	f.clock.Advance(24 * time.Hour)
	if err := f.orch.Tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}
	camp = f.campaign(t)
	if camp.Status != repository.StatusPaused {
		t.Fatalf("response pause must await an operator verdict, got %s", camp.Status)
	}

	if err := f.orch.MarkWon(ctx, camp.ID); err != nil {
		t.Fatalf("mark won: %v", err)
	}
	camp = f.campaign(t)
	if camp.Status != repository.StatusWon {
		t.Fatalf("expected won, got %s", camp.Status)
	}
}

func TestMarkWonRequiresResponse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.orch.OnLeadQualified(ctx, hotLead("Dana Reyes", "VP Operations", "dana@acme.test")); err != nil {
		t.Fatalf("lead: %v", err)
	}
	camp := f.campaign(t)

	err := f.orch.MarkWon(ctx, camp.ID)
	if err == nil {
		t.Fatal("expected winning without a response to fail")
	}
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestLastContactExhaustedMarksCampaignLost(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.orch.OnLeadQualified(ctx, hotLead("Dana Reyes", "VP Operations", "dana@acme.test")); err != nil {
		t.Fatalf("lead: %v", err)
	}

	for i := 0; i < 5; i++ {
		f.clock.Advance(4*time.Hour + time.Minute)
		if err := f.orch.Tick(ctx); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
	}

	camp := f.campaign(t)
	if camp.Status != repository.StatusLost {
		t.Fatalf("expected lost campaign when the only contact is exhausted, got %s", camp.Status)
	}
}

func TestCancelTakesEffectOnNextTick(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.orch.OnLeadQualified(ctx, hotLead("Dana Reyes", "VP Operations", "dana@acme.test")); err != nil {
		t.Fatalf("lead: %v", err)
	}
	camp := f.campaign(t)

	if err := f.orch.Cancel(ctx, camp.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	f.clock.Advance(4*time.Hour + time.Minute)
	if err := f.orch.Tick(ctx); err != nil {
		t.Fatalf("tick: %v", err)
	}

	camp = f.campaign(t)
	if camp.Status != repository.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", camp.Status)
	}
	if f.provider.count() != 1 {
		t.Fatalf("cancelled campaign must not dispatch, got %d", f.provider.count())
	}

	if err := f.orch.Cancel(ctx, camp.ID); err == nil {
		t.Fatal("expected cancelling a terminal campaign to fail")
	}
}
