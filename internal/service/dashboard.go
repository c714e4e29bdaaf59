package service

import (
	"context"

	"github.com/sakif/hackhub/internal/model"
)

// Dashboard is the signed-in landing page.
type Dashboard struct {
	Identity      model.Identity   `json:"identity"`
	DisplayName   string           `json:"display_name"`
	Role          model.RoleResult `json:"role"`
	EffectiveRole model.Role       `json:"effective_role"`
	Participating []EventCard      `json:"participating"`
}

func (s *EventService) Dashboard(ctx context.Context, actor Actor) (*Dashboard, error) {
	events, err := s.Participating(ctx, actor.ID())
	if err != nil {
		return nil, err
	}
	return &Dashboard{
		Identity:      actor.Identity,
		DisplayName:   actor.Identity.DisplayName(),
		Role:          actor.Role,
		EffectiveRole: actor.Role.Effective(),
		Participating: events,
	}, nil
}
