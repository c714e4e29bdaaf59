package handler

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sakif/hackhub/internal/apperror"
	"github.com/sakif/hackhub/internal/middleware"
	"github.com/sakif/hackhub/internal/service"
	"github.com/sakif/hackhub/internal/session"
)

// maxFormBytes caps request bodies.
const maxFormBytes = 1 << 20

// readForm accepts both HTML form posts and JSON objects and returns the
// fields as url.Values. JSON arrays become comma-separated lists, which is
// how the forms send skills and requirements.
func readForm(w http.ResponseWriter, r *http.Request) (url.Values, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)

	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct != "application/json" {
		if err := r.ParseForm(); err != nil {
			return nil, apperror.ValidationFailed("", "Could not read the form")
		}
		return r.PostForm, nil
	}

	var raw map[string]any
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		return nil, apperror.ValidationFailed("", "Request body must be a JSON object")
	}
	out := make(url.Values, len(raw))
	for k, v := range raw {
		switch v := v.(type) {
		case nil:
		case string:
			out.Set(k, v)
		case float64:
			out.Set(k, strconv.FormatFloat(v, 'f', -1, 64))
		case bool:
			out.Set(k, strconv.FormatBool(v))
		case []any:
			parts := make([]string, 0, len(v))
			for _, item := range v {
				parts = append(parts, fmt.Sprint(item))
			}
			out.Set(k, strings.Join(parts, ","))
		default:
			return nil, apperror.ValidationFailed(k, "Unsupported value")
		}
	}
	return out, nil
}

// Date inputs arrive as RFC 3339, as an HTML datetime-local value or as a
// bare date.
var dateLayouts = []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02"}

func parseDate(form url.Values, field string) (time.Time, error) {
	raw := strings.TrimSpace(form.Get(field))
	if raw == "" {
		return time.Time{}, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, apperror.ValidationFailed(field, "Enter a valid date")
}

func parseBool(form url.Values, field string) bool {
	switch strings.ToLower(strings.TrimSpace(form.Get(field))) {
	case "true", "on", "1", "yes":
		return true
	}
	return false
}

// browser returns the caller's session store and id. Sessions middleware
// runs on every route, so a missing store is a wiring bug.
func browser(r *http.Request) (*session.Store, string) {
	store, _ := middleware.StoreFromContext(r.Context())
	return store, middleware.SessionIDFromContext(r.Context())
}

// snapshot is the auth state Sessions checked for this request. Handlers
// take identity, role and token from it rather than from the live store,
// so a sign-out in another tab cannot change them halfway through.
func snapshot(r *http.Request) session.State {
	if st, ok := middleware.StateFromContext(r.Context()); ok {
		return st
	}
	if store, _ := browser(r); store != nil {
		return store.State()
	}
	return session.State{}
}

// actor builds the workflow actor for a signed-in browser. It is nil for
// visitors.
func actor(r *http.Request) *service.Actor {
	st := snapshot(r)
	if !st.Authenticated() {
		return nil
	}
	return &service.Actor{ClientID: middleware.SessionIDFromContext(r.Context()), Identity: *st.Identity, Role: st.Role}
}

// signedIn is actor for routes behind RequireAuth.
func signedIn(w http.ResponseWriter, r *http.Request) (service.Actor, bool) {
	a := actor(r)
	if a == nil {
		http.Redirect(w, r, middleware.LoginPath, http.StatusSeeOther)
		return service.Actor{}, false
	}
	return *a, true
}

// dataContext carries the request's access token to the backend.
func dataContext(r *http.Request) *http.Request {
	return r.WithContext(snapshot(r).Context(r.Context()))
}
