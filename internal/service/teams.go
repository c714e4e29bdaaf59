package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/hackhub/internal/apperror"
	"github.com/sakif/hackhub/internal/baas"
	"github.com/sakif/hackhub/internal/metrics"
	"github.com/sakif/hackhub/internal/model"
	"github.com/sakif/hackhub/internal/repository"
)

const (
	MaxTeamNameLength = 100

	// leaderAttempts inserts of the leader row are made inline, waiting
	// leaderBackoff, then twice that, between them.
	leaderAttempts = 3
	leaderBackoff  = 200 * time.Millisecond

	// MaxSweepAttempts is how many sweeps try a pending membership before
	// it is abandoned.
	MaxSweepAttempts = 5
)

// TeamService runs the team creation saga: insert the team, then its
// leader membership. The team row is never deleted if the second step
// fails; the membership goes to the outbox and SweepMemberships retries it.
type TeamService struct {
	teams    repository.TeamRepository
	members  repository.TeamMemberRepository
	events   repository.EventRepository
	regs     repository.RegistrationRepository
	profiles repository.ProfileRepository
	outbox   MembershipOutbox
	runner   *Runner
	metrics  *metrics.Metrics
	logger   *slog.Logger
	backoff  time.Duration
	now      func() time.Time
}

func NewTeamService(
	teams repository.TeamRepository,
	members repository.TeamMemberRepository,
	events repository.EventRepository,
	regs repository.RegistrationRepository,
	profiles repository.ProfileRepository,
	outbox MembershipOutbox,
	runner *Runner,
	m *metrics.Metrics,
	logger *slog.Logger,
) *TeamService {
	return &TeamService{
		teams:    teams,
		members:  members,
		events:   events,
		regs:     regs,
		profiles: profiles,
		outbox:   outbox,
		runner:   runner,
		metrics:  m,
		logger:   logger,
		backoff:  leaderBackoff,
		now:      time.Now,
	}
}

type TeamInput struct {
	EventID           string
	Name              string
	Description       string
	LookingForMembers bool
}

// EligibleEvents lists the events the actor registered for that have not
// ended yet: the ones a team can be created for.
func (s *TeamService) EligibleEvents(ctx context.Context, actor Actor) ([]model.Event, error) {
	regs, err := s.regs.ListByUser(ctx, actor.ID())
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
	now := s.now()
	eligible := make([]model.Event, 0, len(events))
	for _, e := range events {
		if e.PhaseAt(now) != model.PhaseEnded {
			eligible = append(eligible, e)
		}
	}
	return eligible, nil
}

// CreateTeam creates a team for an event the actor registered for, with the
// actor as its leader.
func (s *TeamService) CreateTeam(ctx context.Context, actor Actor, in TeamInput) (*Result, error) {
	return s.runner.Run(ctx, actor.ClientID, "create_team", func(ctx context.Context) (*Result, error) {
		in.Name = strings.TrimSpace(in.Name)
		in.Description = strings.TrimSpace(in.Description)
		switch {
		case actor.Role.Effective() != model.RoleCandidate:
			return nil, apperror.Forbidden("Only candidates can create teams")
		case in.Name == "":
			return nil, apperror.ValidationFailed("name", "Team name is required")
		case len(in.Name) > MaxTeamNameLength:
			return nil, apperror.ValidationFailed("name",
				fmt.Sprintf("Team name must be %d characters or less", MaxTeamNameLength))
		case in.EventID == "":
			return nil, apperror.ValidationFailed("event_id", "Please select an event")
		}

		event, err := s.events.FindByID(ctx, in.EventID)
		if err != nil {
			return nil, fmt.Errorf("loading event: %w", err)
		}
		if event == nil {
			return nil, apperror.ValidationFailed("event_id", "Please select an event")
		}
		if event.PhaseAt(s.now()) == model.PhaseEnded {
			return nil, apperror.ValidationFailed("event_id", "This event has ended")
		}
		reg, err := s.regs.Find(ctx, event.ID, actor.ID())
		if err != nil {
			return nil, fmt.Errorf("loading registration: %w", err)
		}
		if reg == nil {
			return nil, apperror.Forbidden("Register for the event before creating a team")
		}
		mine, err := userTeamForEvent(ctx, s.members, s.teams, actor.ID(), event.ID)
		if err != nil {
			return nil, err
		}
		if mine != nil {
			return nil, apperror.ValidationFailed("event_id", "You already have a team for this event")
		}

		// === STEP 1: the team ===
		team, err := s.teams.Create(ctx, &model.Team{
			Name:              in.Name,
			Description:       in.Description,
			EventID:           event.ID,
			LookingForMembers: in.LookingForMembers,
		})
		if err != nil {
			return nil, fmt.Errorf("creating team: %w", err)
		}
		redirect := "/teams/" + team.ID

		// === STEP 2: the leader ===
		if err := s.addLeader(ctx, team.ID, actor.ID()); err != nil {
			s.deferLeader(ctx, team.ID, actor.ID(), err)
			return partial(redirect,
				"Team created, but adding you as its leader failed. We'll keep retrying.", team), nil
		}

		s.logger.Info("team created",
			slog.String("id", team.ID),
			slog.String("event", event.ID),
			slog.String("leader", actor.ID()),
		)
		return success(redirect, "Team created successfully!", team), nil
	})
}

func (s *TeamService) addLeader(ctx context.Context, teamID, userID string) error {
	delay := s.backoff
	var err error
	for attempt := 1; attempt <= leaderAttempts; attempt++ {
		err = s.members.Create(ctx, &model.TeamMember{TeamID: teamID, UserID: userID, Role: model.MemberLeader})
		if err == nil || baas.IsUniqueViolation(err) {
			return nil
		}
		if attempt == leaderAttempts {
			break
		}
		s.logger.Warn("adding team leader failed, retrying",
			slog.String("team", teamID),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}

func (s *TeamService) deferLeader(ctx context.Context, teamID, userID string, cause error) {
	p := PendingMembership{
		ID:        xid.New().String(),
		TeamID:    teamID,
		UserID:    userID,
		LastError: cause.Error(),
		CreatedAt: s.now().UTC(),
	}
	// The request may already be cancelled; the entry must still be kept.
	if err := s.outbox.Save(context.WithoutCancel(ctx), p); err != nil {
		s.logger.Error("team has no leader and no pending membership was recorded",
			slog.String("team", teamID),
			slog.String("user", userID),
			slog.String("error", err.Error()),
		)
		return
	}
	s.metrics.Outbox("recorded")
	s.logger.Warn("leader membership deferred",
		slog.String("team", teamID),
		slog.String("entry", p.ID),
		slog.String("error", cause.Error()),
	)
}

// SweepReport counts what one sweep did.
type SweepReport struct {
	Resolved  int
	Retried   int
	Abandoned int
}

// SweepMemberships retries every pending leader membership once. An entry
// whose membership already exists is resolved without writing. After
// MaxSweepAttempts failures, or when the team or user no longer exists, the
// entry is abandoned and the orphaned team is logged.
func (s *TeamService) SweepMemberships(ctx context.Context) (SweepReport, error) {
	var report SweepReport
	pending, err := s.outbox.Pending(ctx)
	if err != nil {
		return report, err
	}

	for _, p := range pending {
		err := s.retryMembership(ctx, p)
		switch {
		case err == nil:
			report.Resolved++
			s.metrics.Outbox("resolved")
			s.logger.Info("pending membership resolved", slog.String("team", p.TeamID), slog.String("entry", p.ID))
			err = s.outbox.Remove(ctx, p.ID)
		case baas.IsForeignKeyViolation(err) || p.Attempts+1 >= MaxSweepAttempts:
			report.Abandoned++
			s.metrics.Outbox("abandoned")
			s.logger.Error("abandoning pending membership, team left without leader",
				slog.String("team", p.TeamID),
				slog.String("user", p.UserID),
				slog.Int("attempts", p.Attempts+1),
				slog.String("error", err.Error()),
			)
			err = s.outbox.Remove(ctx, p.ID)
		default:
			report.Retried++
			s.metrics.Outbox("retried")
			p.Attempts++
			p.LastError = err.Error()
			err = s.outbox.Save(ctx, p)
		}
		if err != nil {
			return report, err
		}
	}
	return report, nil
}

func (s *TeamService) retryMembership(ctx context.Context, p PendingMembership) error {
	existing, err := s.members.Find(ctx, p.TeamID, p.UserID)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	err = s.members.Create(ctx, &model.TeamMember{TeamID: p.TeamID, UserID: p.UserID, Role: model.MemberLeader})
	if baas.IsUniqueViolation(err) {
		return nil
	}
	return err
}

// MemberView is a team member with a display name.
type MemberView struct {
	model.TeamMember
	FullName string `json:"full_name"`
}

// TeamDetails is everything the team page shows. PendingLeader is set
// while the leader membership is still in the outbox.
type TeamDetails struct {
	Team          model.Team   `json:"team"`
	Event         *model.Event `json:"event"`
	Members       []MemberView `json:"members"`
	PendingLeader bool         `json:"pending_leader"`
}

func (s *TeamService) Team(ctx context.Context, id string) (*TeamDetails, error) {
	team, err := s.teams.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading team: %w", err)
	}
	if team == nil {
		return nil, apperror.NotFound("team", id)
	}
	event, err := s.events.FindByID(ctx, team.EventID)
	if err != nil {
		return nil, fmt.Errorf("loading event: %w", err)
	}
	members, err := s.members.ListByTeam(ctx, team.ID)
	if err != nil {
		return nil, fmt.Errorf("loading members: %w", err)
	}

	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.UserID)
	}
	profiles, err := s.profiles.ListByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("loading member names: %w", err)
	}
	names := make(map[string]string, len(profiles))
	for _, p := range profiles {
		names[p.ID] = p.FullName
	}

	d := &TeamDetails{Team: *team, Event: event, Members: make([]MemberView, 0, len(members))}
	hasLeader := false
	for _, m := range members {
		d.Members = append(d.Members, MemberView{TeamMember: m, FullName: names[m.UserID]})
		hasLeader = hasLeader || m.Role == model.MemberLeader
	}
	if !hasLeader {
		pending, err := s.outbox.Pending(ctx)
		if err != nil {
			s.logger.Warn("could not read membership outbox", slog.String("error", err.Error()))
		}
		for _, p := range pending {
			if p.TeamID == team.ID {
				d.PendingLeader = true
				break
			}
		}
	}
	return d, nil
}
