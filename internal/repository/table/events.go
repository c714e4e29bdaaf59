package table

import (
	"context"
	"fmt"

	"github.com/sakif/hackhub/internal/baas"
	"github.com/sakif/hackhub/internal/model"
	"github.com/sakif/hackhub/internal/repository"
)

var (
	_ repository.EventRepository        = (*EventTable)(nil)
	_ repository.RegistrationRepository = (*RegistrationTable)(nil)
)

type EventTable struct {
	api baas.DataAPI
}

func (t *EventTable) Create(ctx context.Context, event *model.Event) (*model.Event, error) {
	return insert(ctx, t.api, baas.TableEvents, event)
}

func (t *EventTable) FindBySlug(ctx context.Context, slug string) (*model.Event, error) {
	return findOne[model.Event](ctx, t.api, baas.TableEvents, baas.NewQuery().Eq("slug", slug))
}

func (t *EventTable) FindByID(ctx context.Context, id string) (*model.Event, error) {
	return findOne[model.Event](ctx, t.api, baas.TableEvents, baas.NewQuery().Eq("id", id))
}

func (t *EventTable) List(ctx context.Context, status model.EventStatus, opts repository.ListOptions) ([]model.Event, error) {
	q := baas.NewQuery().Order("start_date", false).LimitTo(opts.Limit)
	if status != "" {
		q.Eq("status", string(status))
	}
	return list[model.Event](ctx, t.api, baas.TableEvents, q)
}

func (t *EventTable) ListByIDs(ctx context.Context, ids []string) ([]model.Event, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return list[model.Event](ctx, t.api, baas.TableEvents,
		baas.NewQuery().In("id", ids).Order("start_date", true))
}

func (t *EventTable) SetStatus(ctx context.Context, id string, status model.EventStatus) (*model.Event, error) {
	var out model.Event
	err := t.api.Update(ctx, baas.TableEvents,
		map[string]any{"status": status}, baas.NewQuery().Eq("id", id), &out)
	if err != nil {
		return nil, fmt.Errorf("table: setting status of event %s: %w", id, err)
	}
	if out.ID == "" {
		return nil, nil
	}
	return &out, nil
}

type RegistrationTable struct {
	api baas.DataAPI
}

func regQuery(eventID, userID string) *baas.Query {
	return baas.NewQuery().Eq("event_id", eventID).Eq("user_id", userID)
}

func (t *RegistrationTable) Find(ctx context.Context, eventID, userID string) (*model.EventRegistration, error) {
	return findOne[model.EventRegistration](ctx, t.api, baas.TableRegistrations, regQuery(eventID, userID))
}

func (t *RegistrationTable) Create(ctx context.Context, reg *model.EventRegistration) (*model.EventRegistration, error) {
	return insert(ctx, t.api, baas.TableRegistrations, reg)
}

func (t *RegistrationTable) Delete(ctx context.Context, eventID, userID string) error {
	if err := t.api.Delete(ctx, baas.TableRegistrations, regQuery(eventID, userID)); err != nil {
		return fmt.Errorf("table: deleting registration of %s for %s: %w", userID, eventID, err)
	}
	return nil
}

func (t *RegistrationTable) CountByEvent(ctx context.Context, eventID string) (int, error) {
	rows, err := list[model.EventRegistration](ctx, t.api, baas.TableRegistrations,
		baas.NewQuery().Select("id").Eq("event_id", eventID))
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

func (t *RegistrationTable) ListByUser(ctx context.Context, userID string) ([]model.EventRegistration, error) {
	return list[model.EventRegistration](ctx, t.api, baas.TableRegistrations,
		baas.NewQuery().Eq("user_id", userID).Order("registered_at", true))
}
