package table

import (
	"context"
	"fmt"

	"github.com/sakif/hackhub/internal/baas"
	"github.com/sakif/hackhub/internal/model"
	"github.com/sakif/hackhub/internal/repository"
)

var (
	_ repository.UserRepository    = (*UserTable)(nil)
	_ repository.ProfileRepository = (*ProfileTable)(nil)
)

// ensureOpts is a conditional insert keyed on the primary key.
var ensureOpts = baas.UpsertOptions{OnConflict: "id", IgnoreDuplicates: true}

type UserTable struct {
	api baas.DataAPI
}

func (t *UserTable) FindByID(ctx context.Context, id string) (*model.User, error) {
	return findOne[model.User](ctx, t.api, baas.TableUsers, baas.NewQuery().Eq("id", id))
}

func (t *UserTable) Ensure(ctx context.Context, user *model.User) error {
	if err := t.api.Upsert(ctx, baas.TableUsers, user, ensureOpts, nil); err != nil {
		return fmt.Errorf("table: ensuring user %s: %w", user.ID, err)
	}
	return nil
}

func (t *UserTable) Save(ctx context.Context, user *model.User) (*model.User, error) {
	var out model.User
	if err := t.api.Upsert(ctx, baas.TableUsers, user, baas.UpsertOptions{OnConflict: "id"}, &out); err != nil {
		return nil, fmt.Errorf("table: saving user %s: %w", user.ID, err)
	}
	return &out, nil
}

type ProfileTable struct {
	api baas.DataAPI
}

func (t *ProfileTable) FindByID(ctx context.Context, id string) (*model.Profile, error) {
	return findOne[model.Profile](ctx, t.api, baas.TableProfiles, baas.NewQuery().Eq("id", id))
}

func (t *ProfileTable) Ensure(ctx context.Context, profile *model.Profile) error {
	if err := t.api.Upsert(ctx, baas.TableProfiles, profile, ensureOpts, nil); err != nil {
		return fmt.Errorf("table: ensuring profile %s: %w", profile.ID, err)
	}
	return nil
}

func (t *ProfileTable) ListByIDs(ctx context.Context, ids []string) ([]model.Profile, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return list[model.Profile](ctx, t.api, baas.TableProfiles, baas.NewQuery().In("id", ids))
}
