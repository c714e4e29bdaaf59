package service

import (
	"cmp"
	"context"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/sakif/hackhub/internal/baas"
	"github.com/sakif/hackhub/internal/metrics"
	"github.com/sakif/hackhub/internal/model"
	"github.com/sakif/hackhub/internal/repository"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================
//
// In-memory repositories. Each one can be told to fail, so tests can walk
// every branch of a workflow without a backend.

func uniqueViolation() error {
	return &baas.Error{Service: baas.ServiceData, Status: http.StatusConflict, Code: baas.CodeUniqueViolation, Message: "duplicate key value violates unique constraint"}
}

func fkViolation() error {
	return &baas.Error{Service: baas.ServiceData, Status: http.StatusConflict, Code: baas.CodeForeignKeyViolation, Message: "violates foreign key constraint"}
}

var errBackendDown = &baas.Error{Service: baas.ServiceData, Status: http.StatusServiceUnavailable, Message: "backend unavailable"}

type fakeUsers struct {
	mu        sync.Mutex
	rows      map[string]model.User
	ensures   int
	ensureErr error
	findErr   error
}

func newFakeUsers() *fakeUsers { return &fakeUsers{rows: make(map[string]model.User)} }

func (f *fakeUsers) FindByID(_ context.Context, id string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	u, ok := f.rows[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (f *fakeUsers) Ensure(_ context.Context, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensures++
	if f.ensureErr != nil {
		return f.ensureErr
	}
	if _, ok := f.rows[u.ID]; !ok {
		f.rows[u.ID] = *u
	}
	return nil
}

func (f *fakeUsers) Save(_ context.Context, u *model.User) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[u.ID] = *u
	out := *u
	return &out, nil
}

type fakeProfiles struct {
	mu        sync.Mutex
	rows      map[string]model.Profile
	ensureErr error
	findErr   error
}

func newFakeProfiles() *fakeProfiles { return &fakeProfiles{rows: make(map[string]model.Profile)} }

func (f *fakeProfiles) FindByID(_ context.Context, id string) (*model.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	p, ok := f.rows[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (f *fakeProfiles) Ensure(_ context.Context, p *model.Profile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ensureErr != nil {
		return f.ensureErr
	}
	if _, ok := f.rows[p.ID]; !ok {
		f.rows[p.ID] = *p
	}
	return nil
}

func (f *fakeProfiles) ListByIDs(_ context.Context, ids []string) ([]model.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Profile
	for _, id := range ids {
		if p, ok := f.rows[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

type fakeEvents struct {
	mu        sync.Mutex
	rows      map[string]model.Event
	n         int
	creates   int
	createErr error

	// updateFiltered makes SetStatus match no row, as a row policy would.
	updateFiltered bool
}

func newFakeEvents() *fakeEvents { return &fakeEvents{rows: make(map[string]model.Event)} }

func (f *fakeEvents) add(e model.Event) model.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.n++
	if e.ID == "" {
		e.ID = "event-" + strconv.Itoa(f.n)
	}
	f.rows[e.ID] = e
	return e
}

func (f *fakeEvents) Create(_ context.Context, e *model.Event) (*model.Event, error) {
	f.mu.Lock()
	f.creates++
	err := f.createErr
	for _, existing := range f.rows {
		if existing.Slug == e.Slug {
			err = uniqueViolation()
		}
	}
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	out := f.add(*e)
	return &out, nil
}

func (f *fakeEvents) FindBySlug(_ context.Context, slug string) (*model.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.rows {
		if e.Slug == slug {
			return &e, nil
		}
	}
	return nil, nil
}

func (f *fakeEvents) FindByID(_ context.Context, id string) (*model.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.rows[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (f *fakeEvents) List(_ context.Context, status model.EventStatus, _ repository.ListOptions) ([]model.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Event
	for _, e := range f.rows {
		if status == "" || e.Status == status {
			out = append(out, e)
		}
	}
	slices.SortFunc(out, func(a, b model.Event) int { return a.StartDate.Compare(b.StartDate) })
	return out, nil
}

func (f *fakeEvents) ListByIDs(_ context.Context, ids []string) ([]model.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Event
	for _, id := range ids {
		if e, ok := f.rows[id]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeEvents) SetStatus(_ context.Context, id string, status model.EventStatus) (*model.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.rows[id]
	if !ok || f.updateFiltered {
		return nil, nil
	}
	e.Status = status
	f.rows[id] = e
	return &e, nil
}

type fakeRegs struct {
	mu       sync.Mutex
	rows     []model.EventRegistration
	// skipFind makes Find miss existing rows, as a concurrent request would.
	skipFind bool
}

func (f *fakeRegs) Find(_ context.Context, eventID, userID string) (*model.EventRegistration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.skipFind {
		return nil, nil
	}
	for _, r := range f.rows {
		if r.EventID == eventID && r.UserID == userID {
			return &r, nil
		}
	}
	return nil, nil
}

func (f *fakeRegs) Create(_ context.Context, reg *model.EventRegistration) (*model.EventRegistration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		if r.EventID == reg.EventID && r.UserID == reg.UserID {
			return nil, uniqueViolation()
		}
	}
	out := *reg
	out.ID = "reg-" + strconv.Itoa(len(f.rows)+1)
	f.rows = append(f.rows, out)
	return &out, nil
}

func (f *fakeRegs) Delete(_ context.Context, eventID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = slices.DeleteFunc(f.rows, func(r model.EventRegistration) bool {
		return r.EventID == eventID && r.UserID == userID
	})
	return nil
}

func (f *fakeRegs) CountByEvent(_ context.Context, eventID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.rows {
		if r.EventID == eventID {
			n++
		}
	}
	return n, nil
}

func (f *fakeRegs) ListByUser(_ context.Context, userID string) ([]model.EventRegistration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.EventRegistration
	for _, r := range f.rows {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRegs) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

type fakeTeams struct {
	mu   sync.Mutex
	rows map[string]model.Team
}

func newFakeTeams() *fakeTeams { return &fakeTeams{rows: make(map[string]model.Team)} }

func (f *fakeTeams) Create(_ context.Context, t *model.Team) (*model.Team, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := *t
	out.ID = "team-" + strconv.Itoa(len(f.rows)+1)
	f.rows[out.ID] = out
	return &out, nil
}

func (f *fakeTeams) FindByID(_ context.Context, id string) (*model.Team, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.rows[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (f *fakeTeams) ListByEvent(_ context.Context, eventID string) ([]model.Team, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Team
	for _, t := range f.rows {
		if t.EventID == eventID {
			out = append(out, t)
		}
	}
	slices.SortFunc(out, func(a, b model.Team) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (f *fakeTeams) ListByIDs(_ context.Context, ids []string) ([]model.Team, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Team
	for _, id := range ids {
		if t, ok := f.rows[id]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}

// fakeMembers fails the next failCreates Create calls with createErr.
type fakeMembers struct {
	mu          sync.Mutex
	rows        []model.TeamMember
	creates     int
	failCreates int
	createErr   error
}

func (f *fakeMembers) Create(_ context.Context, m *model.TeamMember) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if f.failCreates > 0 {
		f.failCreates--
		return f.createErr
	}
	for _, r := range f.rows {
		if r.TeamID == m.TeamID && r.UserID == m.UserID {
			return uniqueViolation()
		}
	}
	f.rows = append(f.rows, *m)
	return nil
}

func (f *fakeMembers) Find(_ context.Context, teamID, userID string) (*model.TeamMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		if r.TeamID == teamID && r.UserID == userID {
			return &r, nil
		}
	}
	return nil, nil
}

func (f *fakeMembers) ListByTeam(_ context.Context, teamID string) ([]model.TeamMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.TeamMember
	for _, r := range f.rows {
		if r.TeamID == teamID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeMembers) ListByUser(_ context.Context, userID string) ([]model.TeamMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.TeamMember
	for _, r := range f.rows {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakeJobs struct {
	mu   sync.Mutex
	rows []model.Job
}

func (f *fakeJobs) Create(_ context.Context, j *model.Job) (*model.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := *j
	out.ID = "job-" + strconv.Itoa(len(f.rows)+1)
	created := time.Now().Add(time.Duration(len(f.rows)) * time.Second)
	out.CreatedAt = &created
	f.rows = append(f.rows, out)
	return &out, nil
}

func (f *fakeJobs) ListOpen(_ context.Context, _ repository.ListOptions) ([]model.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Job
	for _, j := range f.rows {
		if j.Status == model.JobOpen {
			out = append(out, j)
		}
	}
	slices.SortFunc(out, func(a, b model.Job) int { return b.CreatedAt.Compare(*a.CreatedAt) })
	return out, nil
}

// deps bundles one set of fakes plus the services built on them.
type deps struct {
	users    *fakeUsers
	profiles *fakeProfiles
	events   *fakeEvents
	regs     *fakeRegs
	teams    *fakeTeams
	members  *fakeMembers
	jobs     *fakeJobs
	outbox   *MemoryOutbox
	metrics  *metrics.Metrics
	guard    *SubmissionGuard
	runner   *Runner

	reconciler *Reconciler
	eventSvc   *EventService
	teamSvc    *TeamService
	jobSvc     *JobService
	profileSvc *ProfileService
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testNow is the fixed clock of every service built by newDeps.
var testNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func newDeps(t *testing.T) *deps {
	t.Helper()
	logger := discardLogger()
	d := &deps{
		users:    newFakeUsers(),
		profiles: newFakeProfiles(),
		events:   newFakeEvents(),
		regs:     &fakeRegs{},
		teams:    newFakeTeams(),
		members:  &fakeMembers{},
		jobs:     &fakeJobs{},
		outbox:   NewMemoryOutbox(),
		metrics:  metrics.New(),
		guard:    NewSubmissionGuard(),
	}
	d.runner = NewRunner(d.guard, d.metrics, logger)
	d.reconciler = NewReconciler(d.users, d.profiles, logger)
	d.eventSvc = NewEventService(d.events, d.regs, d.teams, d.members, d.profiles, d.reconciler, d.runner, logger)
	d.eventSvc.now = func() time.Time { return testNow }
	d.teamSvc = NewTeamService(d.teams, d.members, d.events, d.regs, d.profiles, d.outbox, d.runner, d.metrics, logger)
	d.teamSvc.now = func() time.Time { return testNow }
	d.teamSvc.backoff = time.Millisecond
	d.jobSvc = NewJobService(d.jobs, d.reconciler, d.runner, logger)
	d.profileSvc = NewProfileService(d.users, d.runner, logger)
	return d
}

func candidate(id string) Actor {
	return Actor{
		ClientID: "client-" + id,
		Identity: model.Identity{ID: id, Email: id + "@example.com", Metadata: model.IdentityMetadata{FullName: "User " + id}},
		Role:     model.RoleResult{Status: model.RoleKnown, Role: model.RoleCandidate},
	}
}

func recruiter(id string) Actor {
	a := candidate(id)
	a.Role = model.RoleResult{Status: model.RoleKnown, Role: model.RoleRecruiter}
	return a
}

// publishedEvent stores a published event starting a week after testNow.
func (d *deps) publishedEvent(slug, creator string) model.Event {
	start := testNow.Add(7 * 24 * time.Hour)
	return d.events.add(model.Event{
		Slug:        slug,
		Title:       "Event " + slug,
		Description: "Two days of building things",
		StartDate:   start,
		EndDate:     start.Add(48 * time.Hour),
		MaxTeamSize: 4,
		Status:      model.EventPublished,
		CreatorID:   creator,
	})
}
