package handler

import (
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/hackhub/internal/apperror"
	"github.com/sakif/hackhub/internal/service"
)

// EventHandler serves event listing, details, creation, publishing and
// registration.
type EventHandler struct {
	events *service.EventService
	logger *slog.Logger
}

func NewEventHandler(events *service.EventService, logger *slog.Logger) *EventHandler {
	return &EventHandler{events: events, logger: logger}
}

// HandleList returns published events grouped into live, upcoming and past.
//
// HTTP: GET /events
func (h *EventHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	page, err := h.events.ListEvents(dataContext(r).Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// HandleDetails returns one event. Drafts are only found by their creator.
//
// HTTP: GET /events/{slug}
func (h *EventHandler) HandleDetails(w http.ResponseWriter, r *http.Request) {
	d, err := h.events.Details(dataContext(r).Context(), actor(r), chi.URLParam(r, "slug"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func eventInput(values url.Values) (service.EventInput, error) {
	in := service.EventInput{
		Title:        values.Get("title"),
		Description:  values.Get("description"),
		Slug:         values.Get("slug"),
		CoverImage:   values.Get("cover_image"),
		Requirements: service.SplitList(values.Get("requirements")),
	}
	if in.Slug == "" {
		in.Slug = service.SuggestSlug(in.Title)
	}

	var err error
	if in.StartDate, err = parseDate(values, "start_date"); err != nil {
		return in, err
	}
	if in.EndDate, err = parseDate(values, "end_date"); err != nil {
		return in, err
	}
	deadline, err := parseDate(values, "registration_deadline")
	if err != nil {
		return in, err
	}
	if !deadline.IsZero() {
		in.RegistrationDeadline = &deadline
	}
	if raw := strings.TrimSpace(values.Get("max_team_size")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return in, apperror.ValidationFailed("max_team_size", "Team size must be a whole number")
		}
		in.MaxTeamSize = n
	}
	return in, nil
}

// HandleCreate creates a draft event. An empty slug is derived from the
// title.
//
// HTTP: POST /events/create
// FORM: title, description, slug, start_date, end_date,
//
//	registration_deadline, max_team_size, cover_image, requirements
func (h *EventHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	a, ok := signedIn(w, r)
	if !ok {
		return
	}
	form, err := readForm(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	in, err := eventInput(form)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.events.CreateEvent(dataContext(r).Context(), a, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeResult(w, res)
}

// HTTP: POST /events/{slug}/publish
func (h *EventHandler) HandlePublish(w http.ResponseWriter, r *http.Request) {
	a, ok := signedIn(w, r)
	if !ok {
		return
	}
	res, err := h.events.Publish(dataContext(r).Context(), a, chi.URLParam(r, "slug"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeResult(w, res)
}

// HTTP: POST /events/{slug}/register
func (h *EventHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	a, ok := signedIn(w, r)
	if !ok {
		return
	}
	res, err := h.events.Register(dataContext(r).Context(), a, chi.URLParam(r, "slug"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeResult(w, res)
}

// HTTP: DELETE /events/{slug}/register
func (h *EventHandler) HandleCancelRegistration(w http.ResponseWriter, r *http.Request) {
	a, ok := signedIn(w, r)
	if !ok {
		return
	}
	res, err := h.events.CancelRegistration(dataContext(r).Context(), a, chi.URLParam(r, "slug"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeResult(w, res)
}
