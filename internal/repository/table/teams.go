package table

import (
	"context"
	"fmt"

	"github.com/sakif/hackhub/internal/baas"
	"github.com/sakif/hackhub/internal/model"
	"github.com/sakif/hackhub/internal/repository"
)

var (
	_ repository.TeamRepository       = (*TeamTable)(nil)
	_ repository.TeamMemberRepository = (*TeamMemberTable)(nil)
	_ repository.JobRepository        = (*JobTable)(nil)
)

type TeamTable struct {
	api baas.DataAPI
}

func (t *TeamTable) Create(ctx context.Context, team *model.Team) (*model.Team, error) {
	return insert(ctx, t.api, baas.TableTeams, team)
}

func (t *TeamTable) FindByID(ctx context.Context, id string) (*model.Team, error) {
	return findOne[model.Team](ctx, t.api, baas.TableTeams, baas.NewQuery().Eq("id", id))
}

func (t *TeamTable) ListByEvent(ctx context.Context, eventID string) ([]model.Team, error) {
	return list[model.Team](ctx, t.api, baas.TableTeams,
		baas.NewQuery().Eq("event_id", eventID).Order("created_at", false))
}

func (t *TeamTable) ListByIDs(ctx context.Context, ids []string) ([]model.Team, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return list[model.Team](ctx, t.api, baas.TableTeams, baas.NewQuery().In("id", ids))
}

type TeamMemberTable struct {
	api baas.DataAPI
}

func (t *TeamMemberTable) Create(ctx context.Context, member *model.TeamMember) error {
	if err := t.api.Insert(ctx, baas.TableTeamMembers, member, nil); err != nil {
		return fmt.Errorf("table: adding %s to team %s: %w", member.UserID, member.TeamID, err)
	}
	return nil
}

func (t *TeamMemberTable) Find(ctx context.Context, teamID, userID string) (*model.TeamMember, error) {
	return findOne[model.TeamMember](ctx, t.api, baas.TableTeamMembers,
		baas.NewQuery().Eq("team_id", teamID).Eq("user_id", userID))
}

func (t *TeamMemberTable) ListByTeam(ctx context.Context, teamID string) ([]model.TeamMember, error) {
	return list[model.TeamMember](ctx, t.api, baas.TableTeamMembers,
		baas.NewQuery().Eq("team_id", teamID).Order("joined_at", false))
}

func (t *TeamMemberTable) ListByUser(ctx context.Context, userID string) ([]model.TeamMember, error) {
	return list[model.TeamMember](ctx, t.api, baas.TableTeamMembers, baas.NewQuery().Eq("user_id", userID))
}

type JobTable struct {
	api baas.DataAPI
}

func (t *JobTable) Create(ctx context.Context, job *model.Job) (*model.Job, error) {
	return insert(ctx, t.api, baas.TableJobs, job)
}

func (t *JobTable) ListOpen(ctx context.Context, opts repository.ListOptions) ([]model.Job, error) {
	return list[model.Job](ctx, t.api, baas.TableJobs,
		baas.NewQuery().Eq("status", string(model.JobOpen)).Order("created_at", true).LimitTo(opts.Limit))
}
