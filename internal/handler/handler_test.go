package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/hackhub/internal/apperror"
	"github.com/sakif/hackhub/internal/baas"
)

func TestWriteError_Mapping(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantCode  int
		wantType  string
		wantField string
	}{
		{"validation keeps field", fmt.Errorf("creating event: %w", apperror.ValidationFailed("slug", "taken")), http.StatusBadRequest, "validation_error", "slug"},
		{"unauthorized", apperror.Unauthorized("Invalid login credentials", nil), http.StatusUnauthorized, "unauthorized", ""},
		{"forbidden", apperror.Forbidden("Only recruiters can post jobs"), http.StatusForbidden, "forbidden", ""},
		{"not found", apperror.NotFound("event", "x"), http.StatusNotFound, "not_found", ""},
		{"duplicate submission", apperror.Conflict("submission", "create_event"), http.StatusConflict, "conflict", ""},
		{"unexpected", errors.New("pq: connection reset"), http.StatusInternalServerError, "internal_error", ""},
		{"partial as error", apperror.Partial("half done", nil), http.StatusInternalServerError, "internal_error", ""},
		{"rejected access token", fmt.Errorf("loading events: %w", &baas.Error{Service: baas.ServiceData, Status: http.StatusUnauthorized, Message: "JWT expired"}), http.StatusUnauthorized, "session_expired", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, httptest.NewRequest(http.MethodGet, "/", nil), tt.err)

			assert.Equal(t, tt.wantCode, rec.Code)
			var body ErrorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, tt.wantType, body.Error)
			assert.Equal(t, tt.wantField, body.Field)
			if tt.wantCode == http.StatusInternalServerError {
				assert.NotContains(t, body.Message, "pq:")
			}
		})
	}
}

func TestReadForm_JSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(
		`{"title":"Hack","max_team_size":4,"looking_for_members":true,"required_skills":["go","sql"],"bio":null}`))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	form, err := readForm(httptest.NewRecorder(), req)
	require.NoError(t, err)
	assert.Equal(t, "Hack", form.Get("title"))
	assert.Equal(t, "4", form.Get("max_team_size"))
	assert.True(t, parseBool(form, "looking_for_members"))
	assert.Equal(t, "go,sql", form.Get("required_skills"))
	assert.False(t, form.Has("bio"))
}

func TestReadForm_URLEncoded(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("name=Owls&looking_for_members=on"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	form, err := readForm(httptest.NewRecorder(), req)
	require.NoError(t, err)
	assert.Equal(t, "Owls", form.Get("name"))
	assert.True(t, parseBool(form, "looking_for_members"))
}

func TestReadForm_BadJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`["not", "an", "object"]`))
	req.Header.Set("Content-Type", "application/json")

	_, err := readForm(httptest.NewRecorder(), req)
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestParseDate(t *testing.T) {
	want := time.Date(2026, 7, 1, 9, 30, 0, 0, time.UTC)
	for _, raw := range []string{"2026-07-01T09:30:00Z", "2026-07-01T11:30:00+02:00", "2026-07-01T09:30"} {
		got, err := parseDate(url.Values{"start_date": {raw}}, "start_date")
		require.NoError(t, err, raw)
		assert.True(t, want.Equal(got), raw)
	}

	got, err := parseDate(url.Values{}, "start_date")
	require.NoError(t, err)
	assert.True(t, got.IsZero())

	_, err = parseDate(url.Values{"end_date": {"next tuesday"}}, "end_date")
	assert.Equal(t, "end_date", apperror.FieldOf(err))
}

func TestEventInput(t *testing.T) {
	in, err := eventInput(url.Values{
		"title":                 {"Summer Hackathon"},
		"start_date":            {"2026-07-01"},
		"end_date":              {"2026-07-03"},
		"registration_deadline": {"2026-06-25"},
		"requirements":          {"laptop, idea"},
	})
	require.NoError(t, err)
	assert.Equal(t, "summer-hackathon", in.Slug, "slug suggested from the title")
	require.NotNil(t, in.RegistrationDeadline)
	assert.Equal(t, []string{"laptop", "idea"}, in.Requirements)
	assert.Zero(t, in.MaxTeamSize)

	_, err = eventInput(url.Values{"title": {"x"}, "max_team_size": {"four"}})
	assert.Equal(t, "max_team_size", apperror.FieldOf(err))
}

func TestNotFound(t *testing.T) {
	rec := httptest.NewRecorder()
	NotFound(rec, httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "/nowhere")
}
