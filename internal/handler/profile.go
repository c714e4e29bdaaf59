package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/hackhub/internal/service"
)

type ProfileHandler struct {
	profiles *service.ProfileService
	logger   *slog.Logger
}

func NewProfileHandler(profiles *service.ProfileService, logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, logger: logger}
}

// HTTP: GET /profile
func (h *ProfileHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	a, ok := signedIn(w, r)
	if !ok {
		return
	}
	view, err := h.profiles.Get(dataContext(r).Context(), a)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HTTP: POST /profile
// FORM: full_name, avatar_url, bio, skills, github_url, linkedin_url, portfolio_url
func (h *ProfileHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	a, ok := signedIn(w, r)
	if !ok {
		return
	}
	form, err := readForm(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.profiles.Update(dataContext(r).Context(), a, service.ProfileInput{
		FullName:     form.Get("full_name"),
		AvatarURL:    form.Get("avatar_url"),
		Bio:          form.Get("bio"),
		Skills:       form.Get("skills"),
		GitHubURL:    form.Get("github_url"),
		LinkedInURL:  form.Get("linkedin_url"),
		PortfolioURL: form.Get("portfolio_url"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeResult(w, res)
}
