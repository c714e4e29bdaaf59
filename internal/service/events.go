package service

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/sakif/hackhub/internal/apperror"
	"github.com/sakif/hackhub/internal/baas"
	"github.com/sakif/hackhub/internal/model"
	"github.com/sakif/hackhub/internal/repository"
)

// Event form rules.
const (
	MinTitleLength       = 3
	MinDescriptionLength = 10
	MinSlugLength        = 3
	MaxSlugLength        = 60
	MinTeamSize          = 1
	MaxTeamSize          = 10
	DefaultTeamSize      = 4
)

var slugPattern = regexp.MustCompile(`^[a-z0-9-]+$`)

// EventService runs event creation, publication and registration, and
// builds the event read models.
type EventService struct {
	events     repository.EventRepository
	regs       repository.RegistrationRepository
	teams      repository.TeamRepository
	members    repository.TeamMemberRepository
	profiles   repository.ProfileRepository
	reconciler *Reconciler
	runner     *Runner
	logger     *slog.Logger
	now        func() time.Time
}

func NewEventService(
	events repository.EventRepository,
	regs repository.RegistrationRepository,
	teams repository.TeamRepository,
	members repository.TeamMemberRepository,
	profiles repository.ProfileRepository,
	reconciler *Reconciler,
	runner *Runner,
	logger *slog.Logger,
) *EventService {
	return &EventService{
		events:     events,
		regs:       regs,
		teams:      teams,
		members:    members,
		profiles:   profiles,
		reconciler: reconciler,
		runner:     runner,
		logger:     logger,
		now:        time.Now,
	}
}

type EventInput struct {
	Title                string
	Description          string
	Slug                 string
	StartDate            time.Time
	EndDate              time.Time
	RegistrationDeadline *time.Time
	MaxTeamSize          int
	CoverImage           string
	Requirements         []string
}

func (in *EventInput) normalize() error {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.Slug = strings.TrimSpace(in.Slug)
	in.CoverImage = strings.TrimSpace(in.CoverImage)

	switch {
	case len(in.Title) < MinTitleLength:
		return apperror.ValidationFailed("title",
			fmt.Sprintf("Title must be at least %d characters", MinTitleLength))
	case len(in.Description) < MinDescriptionLength:
		return apperror.ValidationFailed("description",
			fmt.Sprintf("Description must be at least %d characters", MinDescriptionLength))
	case len(in.Slug) < MinSlugLength:
		return apperror.ValidationFailed("slug",
			fmt.Sprintf("Slug must be at least %d characters", MinSlugLength))
	case len(in.Slug) > MaxSlugLength:
		return apperror.ValidationFailed("slug",
			fmt.Sprintf("Slug must be %d characters or less", MaxSlugLength))
	case !slugPattern.MatchString(in.Slug):
		return apperror.ValidationFailed("slug", "Slug can only contain lowercase letters, numbers, and hyphens")
	case in.StartDate.IsZero():
		return apperror.ValidationFailed("start_date", "Start date is required")
	case in.EndDate.IsZero():
		return apperror.ValidationFailed("end_date", "End date is required")
	case in.EndDate.Before(in.StartDate):
		return apperror.ValidationFailed("end_date", "End date must be on or after the start date")
	case in.RegistrationDeadline != nil && in.RegistrationDeadline.After(in.StartDate):
		return apperror.ValidationFailed("registration_deadline", "Registration must close before the event starts")
	}

	if in.MaxTeamSize == 0 {
		in.MaxTeamSize = DefaultTeamSize
	}
	if in.MaxTeamSize < MinTeamSize || in.MaxTeamSize > MaxTeamSize {
		return apperror.ValidationFailed("max_team_size",
			fmt.Sprintf("Team size must be between %d and %d", MinTeamSize, MaxTeamSize))
	}

	reqs := in.Requirements[:0:0]
	for _, r := range in.Requirements {
		if r = strings.TrimSpace(r); r != "" {
			reqs = append(reqs, r)
		}
	}
	in.Requirements = reqs
	return nil
}

// SuggestSlug derives a slug from an event title: lowercase ASCII letters
// and digits, everything else collapsed into single hyphens.
func SuggestSlug(title string) string {
	var b strings.Builder
	pendingHyphen := false
	for _, r := range strings.ToLower(title) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
			continue
		}
		pendingHyphen = true
	}
	slug := b.String()
	if len(slug) > MaxSlugLength {
		slug = strings.TrimRight(slug[:MaxSlugLength], "-")
	}
	return slug
}

// CreateEvent inserts a draft event owned by the actor. A taken slug is a
// field error and nothing is written.
func (s *EventService) CreateEvent(ctx context.Context, actor Actor, in EventInput) (*Result, error) {
	return s.runner.Run(ctx, actor.ClientID, "create_event", func(ctx context.Context) (*Result, error) {
		if actor.Role.Effective() != model.RoleCandidate {
			return nil, apperror.Forbidden("Only candidates can create events")
		}
		if err := in.normalize(); err != nil {
			return nil, err
		}

		if err := s.reconciler.EnsureActorRecord(ctx, actor); err != nil {
			return nil, fmt.Errorf("creating event: %w", err)
		}

		taken, err := s.events.FindBySlug(ctx, in.Slug)
		if err != nil {
			return nil, fmt.Errorf("checking slug: %w", err)
		}
		if taken != nil {
			return nil, apperror.ValidationFailed("slug", "This slug is already taken. Please choose another one.")
		}

		event := &model.Event{
			Slug:                 in.Slug,
			Title:                in.Title,
			Description:          in.Description,
			StartDate:            in.StartDate.UTC(),
			EndDate:              in.EndDate.UTC(),
			RegistrationDeadline: utcPtr(in.RegistrationDeadline),
			MaxTeamSize:          in.MaxTeamSize,
			Status:               model.EventDraft,
			CreatorID:            actor.ID(),
			Requirements:         in.Requirements,
		}
		if in.CoverImage != "" {
			event.CoverImage = &in.CoverImage
		}

		created, err := s.events.Create(ctx, event)
		if baas.IsUniqueViolation(err) {
			// Lost a race for the slug.
			return nil, apperror.ValidationFailed("slug", "This slug is already taken. Please choose another one.")
		}
		if err != nil {
			return nil, fmt.Errorf("creating event: %w", err)
		}

		s.logger.Info("event created",
			slog.String("id", created.ID),
			slog.String("slug", created.Slug),
			slog.String("creator", actor.ID()),
		)
		return success(PathDashboard, "Event created successfully", created), nil
	})
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// Publish moves a draft event to published. Only its creator may do so.
func (s *EventService) Publish(ctx context.Context, actor Actor, slug string) (*Result, error) {
	return s.runner.Run(ctx, actor.ClientID, "publish_event", func(ctx context.Context) (*Result, error) {
		event, err := s.events.FindBySlug(ctx, slug)
		if err != nil {
			return nil, fmt.Errorf("loading event: %w", err)
		}
		if event == nil {
			return nil, apperror.NotFound("event", slug)
		}
		if event.CreatorID != actor.ID() {
			return nil, apperror.Forbidden("Only the event's creator can publish it")
		}
		redirect := "/events/" + event.Slug
		if event.Status == model.EventPublished {
			return success(redirect, "Event is already published", event), nil
		}

		updated, err := s.events.SetStatus(ctx, event.ID, model.EventPublished)
		if err != nil {
			return nil, fmt.Errorf("publishing event: %w", err)
		}
		if updated == nil {
			// The row was there a moment ago; the backend's row policy
			// filtered the update.
			return nil, apperror.Forbidden("You don't have permission to publish this event")
		}
		s.logger.Info("event published", slog.String("id", event.ID), slog.String("slug", event.Slug))
		return success(redirect, "Event published", updated), nil
	})
}

// EventCard is an event plus its creator's name.
type EventCard struct {
	model.Event
	CreatorName string           `json:"creator_name"`
	Phase       model.EventPhase `json:"phase"`
}

// EventsPage groups published events by phase, each group ordered by start
// date.
type EventsPage struct {
	Live     []EventCard `json:"live"`
	Upcoming []EventCard `json:"upcoming"`
	Past     []EventCard `json:"past"`
}

func (s *EventService) ListEvents(ctx context.Context) (*EventsPage, error) {
	events, err := s.events.List(ctx, model.EventPublished, repository.ListOptions{})
	if err != nil {
		s.logger.Error("failed to list events", slog.String("error", err.Error()))
		return nil, fmt.Errorf("listing events: %w", err)
	}
	cards, err := s.cards(ctx, events)
	if err != nil {
		return nil, err
	}

	page := &EventsPage{Live: []EventCard{}, Upcoming: []EventCard{}, Past: []EventCard{}}
	for _, c := range cards {
		switch c.Phase {
		case model.PhaseLive:
			page.Live = append(page.Live, c)
		case model.PhaseUpcoming:
			page.Upcoming = append(page.Upcoming, c)
		default:
			page.Past = append(page.Past, c)
		}
	}
	return page, nil
}

func (s *EventService) cards(ctx context.Context, events []model.Event) ([]EventCard, error) {
	names, err := s.creatorNames(ctx, events)
	if err != nil {
		return nil, err
	}
	now := s.now()
	cards := make([]EventCard, 0, len(events))
	for _, e := range events {
		cards = append(cards, EventCard{Event: e, CreatorName: names[e.CreatorID], Phase: e.PhaseAt(now)})
	}
	return cards, nil
}

func (s *EventService) creatorNames(ctx context.Context, events []model.Event) (map[string]string, error) {
	var ids []string
	for _, e := range events {
		if !slices.Contains(ids, e.CreatorID) {
			ids = append(ids, e.CreatorID)
		}
	}
	profiles, err := s.profiles.ListByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("loading creators: %w", err)
	}
	names := make(map[string]string, len(profiles))
	for _, p := range profiles {
		names[p.ID] = p.FullName
	}
	return names, nil
}

// EventDetails is everything the event page shows.
type EventDetails struct {
	Event             EventCard    `json:"event"`
	IsCreator         bool         `json:"is_creator"`
	Registered        bool         `json:"registered"`
	RegistrationOpen  bool         `json:"registration_open"`
	RegistrationCount int          `json:"registration_count"`
	MyTeam            *model.Team  `json:"my_team"`
	Teams             []model.Team `json:"teams"`
}

// Details loads an event by slug. actor is nil for visitors. Drafts are
// visible to their creator only.
func (s *EventService) Details(ctx context.Context, actor *Actor, slug string) (*EventDetails, error) {
	event, err := s.events.FindBySlug(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("loading event: %w", err)
	}
	isCreator := event != nil && actor != nil && event.CreatorID == actor.ID()
	if event == nil || (event.Status != model.EventPublished && !isCreator) {
		return nil, apperror.NotFound("event", slug)
	}

	cards, err := s.cards(ctx, []model.Event{*event})
	if err != nil {
		return nil, err
	}
	d := &EventDetails{
		Event:            cards[0],
		IsCreator:        isCreator,
		RegistrationOpen: event.Status == model.EventPublished && event.RegistrationOpenAt(s.now()),
	}

	if d.RegistrationCount, err = s.regs.CountByEvent(ctx, event.ID); err != nil {
		return nil, fmt.Errorf("counting registrations: %w", err)
	}
	if d.Teams, err = s.teams.ListByEvent(ctx, event.ID); err != nil {
		return nil, fmt.Errorf("loading teams: %w", err)
	}
	if d.Teams == nil {
		d.Teams = []model.Team{}
	}

	if actor == nil {
		return d, nil
	}
	reg, err := s.regs.Find(ctx, event.ID, actor.ID())
	if err != nil {
		return nil, fmt.Errorf("loading registration: %w", err)
	}
	d.Registered = reg != nil
	if d.MyTeam, err = userTeamForEvent(ctx, s.members, s.teams, actor.ID(), event.ID); err != nil {
		return nil, err
	}
	return d, nil
}

// userTeamForEvent returns the team userID belongs to for eventID, if any.
func userTeamForEvent(ctx context.Context, members repository.TeamMemberRepository, teams repository.TeamRepository, userID, eventID string) (*model.Team, error) {
	memberships, err := members.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading memberships: %w", err)
	}
	if len(memberships) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(memberships))
	for _, m := range memberships {
		ids = append(ids, m.TeamID)
	}
	ts, err := teams.ListByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("loading teams: %w", err)
	}
	for i := range ts {
		if ts[i].EventID == eventID {
			return &ts[i], nil
		}
	}
	return nil, nil
}

// Register signs the actor up for an event. Registering twice is reported
// as already registered; no second row is written.
func (s *EventService) Register(ctx context.Context, actor Actor, slug string) (*Result, error) {
	return s.runner.Run(ctx, actor.ClientID, "register_event", func(ctx context.Context) (*Result, error) {
		event, err := s.events.FindBySlug(ctx, slug)
		if err != nil {
			return nil, fmt.Errorf("loading event: %w", err)
		}
		if event == nil || event.Status != model.EventPublished {
			return nil, apperror.NotFound("event", slug)
		}
		redirect := "/events/" + event.Slug
		const already = "You're already registered for this event"

		existing, err := s.regs.Find(ctx, event.ID, actor.ID())
		if err != nil {
			return nil, fmt.Errorf("loading registration: %w", err)
		}
		if existing != nil {
			return success(redirect, already, existing), nil
		}
		if !event.RegistrationOpenAt(s.now()) {
			return nil, apperror.ValidationFailed("event", "Registration for this event is closed")
		}

		if err := s.reconciler.EnsureActorRecord(ctx, actor); err != nil {
			return nil, fmt.Errorf("registering: %w", err)
		}
		reg, err := s.regs.Create(ctx, &model.EventRegistration{EventID: event.ID, UserID: actor.ID()})
		if baas.IsUniqueViolation(err) {
			return success(redirect, already, nil), nil
		}
		if err != nil {
			return nil, fmt.Errorf("registering: %w", err)
		}

		s.logger.Info("registered for event",
			slog.String("event", event.ID),
			slog.String("user", actor.ID()),
		)
		return success(redirect, "Successfully registered for this event!", reg), nil
	})
}

// CancelRegistration removes the actor's registration, if there is one.
func (s *EventService) CancelRegistration(ctx context.Context, actor Actor, slug string) (*Result, error) {
	return s.runner.Run(ctx, actor.ClientID, "cancel_registration", func(ctx context.Context) (*Result, error) {
		event, err := s.events.FindBySlug(ctx, slug)
		if err != nil {
			return nil, fmt.Errorf("loading event: %w", err)
		}
		if event == nil {
			return nil, apperror.NotFound("event", slug)
		}
		if err := s.regs.Delete(ctx, event.ID, actor.ID()); err != nil {
			return nil, fmt.Errorf("cancelling registration: %w", err)
		}
		s.logger.Info("registration cancelled",
			slog.String("event", event.ID),
			slog.String("user", actor.ID()),
		)
		return success("/events/"+event.Slug, "Registration cancelled", nil), nil
	})
}

// Participating lists the events userID registered for, latest start first.
func (s *EventService) Participating(ctx context.Context, userID string) ([]EventCard, error) {
	regs, err := s.regs.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading registrations: %w", err)
	}
	ids := make([]string, 0, len(regs))
	for _, r := range regs {
		ids = append(ids, r.EventID)
	}
	events, err := s.events.ListByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("loading events: %w", err)
	}
	slices.SortFunc(events, func(a, b model.Event) int { return b.StartDate.Compare(a.StartDate) })
	return s.cards(ctx, events)
}
