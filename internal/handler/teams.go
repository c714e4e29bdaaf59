package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/hackhub/internal/service"
)

type TeamHandler struct {
	teams  *service.TeamService
	logger *slog.Logger
}

func NewTeamHandler(teams *service.TeamService, logger *slog.Logger) *TeamHandler {
	return &TeamHandler{teams: teams, logger: logger}
}

// HandleCreatePage lists the events the user may create a team for: ones
// they registered for that have not ended.
//
// HTTP: GET /teams/create
func (h *TeamHandler) HandleCreatePage(w http.ResponseWriter, r *http.Request) {
	a, ok := signedIn(w, r)
	if !ok {
		return
	}
	events, err := h.teams.EligibleEvents(dataContext(r).Context(), a)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"page": "create_team", "events": events})
}

// HandleCreate creates a team with the caller as leader. When the leader
// membership could not be written the answer is a partial result that still
// redirects to the new team.
//
// HTTP: POST /teams/create
// FORM: event_id, name, description, looking_for_members
func (h *TeamHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	a, ok := signedIn(w, r)
	if !ok {
		return
	}
	form, err := readForm(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.teams.CreateTeam(dataContext(r).Context(), a, service.TeamInput{
		EventID:           form.Get("event_id"),
		Name:              form.Get("name"),
		Description:       form.Get("description"),
		LookingForMembers: parseBool(form, "looking_for_members"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeResult(w, res)
}

// HTTP: GET /teams/{id}
func (h *TeamHandler) HandleDetails(w http.ResponseWriter, r *http.Request) {
	d, err := h.teams.Team(dataContext(r).Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}
