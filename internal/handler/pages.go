package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/hackhub/internal/model"
	"github.com/sakif/hackhub/internal/service"
)

// PageHandler serves the landing pages and the signed-in home pages that
// are not tied to one resource.
type PageHandler struct {
	events *service.EventService
	logger *slog.Logger
}

func NewPageHandler(events *service.EventService, logger *slog.Logger) *PageHandler {
	return &PageHandler{events: events, logger: logger}
}

type link struct {
	Label string `json:"label"`
	Href  string `json:"href"`
}

type landing struct {
	Page          string `json:"page"`
	Authenticated bool   `json:"authenticated"`
	Links         []link `json:"links"`
}

// HandleHome is the landing page. Its links depend on the auth state and,
// when signed in, on the effective role.
//
// HTTP: GET /
func (h *PageHandler) HandleHome(w http.ResponseWriter, r *http.Request) {
	st := snapshot(r)

	page := landing{Page: "home", Authenticated: st.Authenticated()}
	page.Links = []link{{"Events", "/events"}, {"Jobs", "/jobs"}, {"Features", "/features"}}
	switch {
	case !st.Authenticated():
		page.Links = append(page.Links, link{"Sign in", "/auth/login"}, link{"Sign up", "/auth/signup"})
	case st.Role.Effective() == model.RoleRecruiter:
		page.Links = append(page.Links, link{"Dashboard", "/dashboard"}, link{"Post a job", "/jobs/create"})
	default:
		page.Links = append(page.Links, link{"Dashboard", "/dashboard"}, link{"Host an event", "/events/create"})
	}
	writeJSON(w, http.StatusOK, page)
}

type feature struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

var features = []feature{
	{"Host hackathons", "Create an event, pick a slug and publish it when it is ready."},
	{"Build a team", "Register for an event and start a team for it."},
	{"Find talent", "Recruiters post jobs that candidates can browse and search."},
	{"Sign in your way", "Email and password, Google or GitHub."},
}

// HTTP: GET /features
func (h *PageHandler) HandleFeatures(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"page": "features", "features": features})
}

// HandleDashboard shows the signed-in user's summary. RequireAuth has
// already turned visitors away.
//
// HTTP: GET /dashboard
func (h *PageHandler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	a, ok := signedIn(w, r)
	if !ok {
		return
	}
	d, err := h.events.Dashboard(dataContext(r).Context(), a)
	if err != nil {
		h.logger.Error("failed to load dashboard", slog.String("error", err.Error()))
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// HandleSettings shows the signed-in account.
//
// HTTP: GET /settings
func (h *PageHandler) HandleSettings(w http.ResponseWriter, r *http.Request) {
	st := snapshot(r)
	writeJSON(w, http.StatusOK, map[string]any{
		"page":         "settings",
		"email":        st.Identity.Email,
		"display_name": st.Identity.DisplayName(),
		"role":         st.Role,
	})
}
