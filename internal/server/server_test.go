package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/hackhub/internal/config"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Backend.Mode = config.ModeLocal
	cfg.Local.DBPath = ":memory:"
	cfg.Local.JWTSecret = "test-secret-at-least-16-chars!!"
	cfg.Server.SiteURL = "http://localhost:8080"
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := New(cfg, logger)
	require.NoError(t, err)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		s.Close()
	})
	return ts
}

func TestNew_LocalModeWarnsDevOnly(t *testing.T) {
	var logs strings.Builder
	s, err := New(testConfig(), slog.New(slog.NewTextHandler(&logs, nil)))
	require.NoError(t, err)
	defer s.Close()

	assert.Contains(t, logs.String(), "level=WARN")
	assert.Contains(t, logs.String(), "development and tests only")
}

// browserClient keeps cookies like a browser but does not follow
// redirects, so tests can assert on them.
type browserClient struct {
	t    *testing.T
	base string
	http *http.Client
}

func newBrowser(t *testing.T, ts *httptest.Server) *browserClient {
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &browserClient{t: t, base: ts.URL, http: &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}}
}

func (b *browserClient) do(method, path string, body any) (*http.Response, map[string]any) {
	b.t.Helper()
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(b.t, err)
		rdr = strings.NewReader(string(raw))
	}
	req, err := http.NewRequest(method, b.base+path, rdr)
	require.NoError(b.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := b.http.Do(req)
	require.NoError(b.t, err)
	defer resp.Body.Close()

	var out map[string]any
	data, err := io.ReadAll(resp.Body)
	require.NoError(b.t, err)
	if len(data) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(b.t, json.Unmarshal(data, &out), string(data))
	}
	return resp, out
}

func (b *browserClient) signUpAndIn(email, role string) {
	b.t.Helper()
	resp, body := b.do(http.MethodPost, "/auth/signup", map[string]any{
		"email": email, "password": "secret123", "full_name": "Test " + role, "user_type": role,
	})
	require.Equal(b.t, http.StatusOK, resp.StatusCode, body)
	resp, body = b.do(http.MethodPost, "/auth/login", map[string]any{"email": email, "password": "secret123"})
	require.Equal(b.t, http.StatusOK, resp.StatusCode, body)
}

func TestDashboard_RedirectsVisitors(t *testing.T) {
	ts := newTestServer(t, testConfig())
	b := newBrowser(t, ts)

	resp, _ := b.do(http.MethodGet, "/dashboard", nil)
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/auth/login", resp.Header.Get("Location"))

	resp, _ = b.do(http.MethodPost, "/events/create", map[string]any{"title": "x"})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
}

func TestHealthChecksAndNotFound(t *testing.T) {
	ts := newTestServer(t, testConfig())
	b := newBrowser(t, ts)

	resp, body := b.do(http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.Empty(t, resp.Cookies(), "health checks do not open sessions")

	resp, body = b.do(http.MethodGet, "/no/such/page", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", body["error"])

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "hackhub_http_requests_total")
}

func TestSignUpThenSignIn(t *testing.T) {
	ts := newTestServer(t, testConfig())
	b := newBrowser(t, ts)

	resp, body := b.do(http.MethodPost, "/auth/signup", map[string]any{
		"email": "alice@example.com", "password": "secret123", "full_name": "Alice", "user_type": "candidate",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, "/auth/login", body["redirect"])

	_, state := b.do(http.MethodGet, "/auth/session", nil)
	assert.Nil(t, state["identity"], "sign-up leaves the browser signed out")

	resp, body = b.do(http.MethodPost, "/auth/login", map[string]any{"email": "alice@example.com", "password": "nope-nope"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "unauthorized", body["error"])

	resp, body = b.do(http.MethodPost, "/auth/login", map[string]any{"email": "alice@example.com", "password": "secret123"})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "/dashboard", body["redirect"])

	resp, dash := b.do(http.MethodGet, "/dashboard", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "candidate", dash["effective_role"])

	resp, _ = b.do(http.MethodPost, "/auth/logout", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = b.do(http.MethodGet, "/dashboard", nil)
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
}

func TestSignUp_FormPostValidation(t *testing.T) {
	ts := newTestServer(t, testConfig())

	form := url.Values{"email": {"not-an-email"}, "password": {"secret123"}, "full_name": {"Bob"}}
	resp, err := http.PostForm(ts.URL+"/auth/signup", form)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "email", body["field"])
}

func TestEventTeamAndJobFlow(t *testing.T) {
	ts := newTestServer(t, testConfig())
	alice := newBrowser(t, ts)
	alice.signUpAndIn("alice@example.com", "candidate")

	start := time.Now().Add(30 * 24 * time.Hour).UTC()
	event := map[string]any{
		"title":         "Summer Hackathon",
		"description":   "Build something over a weekend",
		"slug":          "summer-hack",
		"start_date":    start.Format(time.RFC3339),
		"end_date":      start.Add(48 * time.Hour).Format(time.RFC3339),
		"max_team_size": 4,
	}
	resp, body := alice.do(http.MethodPost, "/events/create", event)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)

	resp, body = alice.do(http.MethodPost, "/events/create", event)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "slug", body["field"])
	assert.Equal(t, "This slug is already taken. Please choose another one.", body["message"])

	resp, body = alice.do(http.MethodPost, "/events/summer-hack/publish", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	resp, body = alice.do(http.MethodPost, "/events/summer-hack/register", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "Successfully registered for this event!", body["message"])

	resp, body = alice.do(http.MethodGet, "/events/summer-hack", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["registered"])
	eventID := body["event"].(map[string]any)["id"].(string)

	resp, body = alice.do(http.MethodPost, "/teams/create", map[string]any{
		"event_id": eventID, "name": "Night Owls", "looking_for_members": true,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "success", body["status"])
	teamPath := body["redirect"].(string)

	resp, body = alice.do(http.MethodGet, teamPath, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	members := body["members"].([]any)
	require.Len(t, members, 1)
	assert.Equal(t, "leader", members[0].(map[string]any)["role"])

	// Candidates cannot post jobs; recruiters can.
	job := map[string]any{
		"title":            "Backend Engineer",
		"company_name":     "Acme",
		"location":         "Berlin",
		"type":             "Full-Time",
		"experience_level": "Senior",
		"description":      "Build and run our Go services",
		"required_skills":  []string{"Go", "SQL"},
		"salary_min":       "60000",
		"salary_max":       "90000",
		"salary_currency":  "EUR",
	}
	resp, body = alice.do(http.MethodPost, "/jobs/create", job)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "Only recruiters can post jobs", body["message"])

	rita := newBrowser(t, ts)
	rita.signUpAndIn("rita@example.com", "recruiter")
	resp, body = rita.do(http.MethodPost, "/jobs/create", job)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)

	resp, err := http.Get(ts.URL + "/jobs?search=berlin")
	require.NoError(t, err)
	defer resp.Body.Close()
	var jobs []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&jobs))
	require.Len(t, jobs, 1)
	assert.Equal(t, map[string]any{"min": 60000.0, "max": 90000.0, "currency": "EUR"}, jobs[0]["salary_range"])
}

func TestAuthRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.Auth = 2
	ts := newTestServer(t, cfg)
	b := newBrowser(t, ts)

	creds := map[string]any{"email": "ghost@example.com", "password": "whatever1"}
	for i := 0; i < 2; i++ {
		resp, _ := b.do(http.MethodPost, "/auth/login", creds)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}
	resp, body := b.do(http.MethodPost, "/auth/login", creds)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "rate_limited", body["error"])
}
