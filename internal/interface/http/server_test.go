package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stepbattle/stepbattle/internal/application/command"
	"github.com/stepbattle/stepbattle/internal/application/query"
	"github.com/stepbattle/stepbattle/internal/domain/competition"
	"github.com/stepbattle/stepbattle/internal/domain/schedule"
	"github.com/stepbattle/stepbattle/internal/infrastructure/persistence/memory"
	"github.com/stepbattle/stepbattle/internal/infrastructure/scheduler"
	"github.com/stepbattle/stepbattle/internal/interface/http/handlers"
	"github.com/stepbattle/stepbattle/config"
)

const testSecret = "s3cret-token"

type testEnv struct {
	repo       *memory.Repository
	membership *memory.Membership
	handler    http.Handler
}

func newTestEnv(t *testing.T, features config.FeatureFlags, secret string) *testEnv {
	t.Helper()
	repo := memory.NewRepository()
	membership := memory.NewMembership()

	deps := Dependencies{
		RecordSubmission:   command.NewRecordSubmissionHandler(repo),
		GetLeaderboard:     query.NewGetLeaderboardHandler(repo, membership),
		GetGapTrend:        query.NewGetGapTrendHandler(repo),
		GetPostingSchedule: query.NewGetPostingScheduleHandler(repo, schedule.DefaultConfig()),
		HealthChecker:      handlers.NewCompositeHealthChecker("test"),
		Features:           features,
	}
	if secret != "" {
		auth, err := handlers.NewBearerAuth(secret)
		require.NoError(t, err)
		deps.Auth = auth
	}

	cfg := DefaultConfig()
	cfg.RateLimitPerMinute = 0
	srv := NewServer(cfg, deps)
	return &testEnv{repo: repo, membership: membership, handler: srv.Handler()}
}

func (e *testEnv) do(method, path, body, token string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func allFeatures() config.FeatureFlags {
	return config.FeatureFlags{Reminders: true, GapTrend: true, LegacyWebhook: true, ReadAPI: true}
}

// ─────────────────────────────────────────────────────────────────────────────
// Health
// ─────────────────────────────────────────────────────────────────────────────

func TestHealth(t *testing.T) {
	env := newTestEnv(t, allFeatures(), testSecret)

	rec := env.do(http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = env.do(http.MethodGet, "/health/ready", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthOnlyServer_ReportsSchedulerReadiness(t *testing.T) {
	sched := scheduler.New(scheduler.Config{Tick: time.Hour})
	hc := handlers.NewCompositeHealthChecker("test")
	hc.AddCheck("scheduler", sched.Ready)

	cfg := DefaultConfig()
	cfg.RateLimitPerMinute = 0
	handler := NewServer(cfg, Dependencies{HealthChecker: hc}).Handler()

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	assert.Equal(t, http.StatusServiceUnavailable, get("/health/ready").Code)
	assert.Equal(t, http.StatusNotFound, get("/api/guilds/g1/leaderboard").Code)

	require.NoError(t, sched.Start(context.Background()))
	defer func() { _ = sched.Stop(context.Background()) }()

	rec := get("/health/ready")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"scheduler"`)
}

// ─────────────────────────────────────────────────────────────────────────────
// Ingestion
// ─────────────────────────────────────────────────────────────────────────────

func TestSubmitSteps_RejectionOrder(t *testing.T) {
	env := newTestEnv(t, allFeatures(), testSecret)

	tests := []struct {
		name   string
		method string
		body   string
		token  string
		status int
		msg    string
	}{
		{"wrong method wins over auth", http.MethodGet, "", "", http.StatusMethodNotAllowed, "Method not allowed"},
		{"missing token", http.MethodPost, `{"user":"a","steps":1,"guildId":"g"}`, "", http.StatusUnauthorized, "Unauthorized"},
		{"wrong token", http.MethodPost, `{"user":"a","steps":1,"guildId":"g"}`, "nope", http.StatusUnauthorized, "Unauthorized"},
		{"auth wins over payload", http.MethodPost, `not json`, "", http.StatusUnauthorized, "Unauthorized"},
		{"malformed json", http.MethodPost, `not json`, testSecret, http.StatusBadRequest, "Invalid payload format"},
		{"fractional steps", http.MethodPost, `{"user":"a","steps":12.5,"guildId":"g"}`, testSecret, http.StatusBadRequest, "Invalid payload format"},
		{"too many steps", http.MethodPost, `{"user":"a","steps":1000001,"guildId":"g"}`, testSecret, http.StatusBadRequest, "Invalid payload format"},
		{"negative steps", http.MethodPost, `{"user":"a","steps":-1,"guildId":"g"}`, testSecret, http.StatusBadRequest, "Invalid payload format"},
		{"steps as string", http.MethodPost, `{"user":"a","steps":"100","guildId":"g"}`, testSecret, http.StatusBadRequest, "Invalid payload format"},
		{"missing guild", http.MethodPost, `{"user":"a","steps":100}`, testSecret, http.StatusBadRequest, "Invalid payload format"},
		{"blank user", http.MethodPost, `{"user":"  ","steps":100,"guildId":"g"}`, testSecret, http.StatusBadRequest, "Invalid payload format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(tt.method, "/api/steps", tt.body, tt.token)
			assert.Equal(t, tt.status, rec.Code)

			var resp JSONResponse
			decode(t, rec, &resp)
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.msg, resp.Error.Message)
		})
	}
}

func TestSubmitSteps_FirstThenReplace(t *testing.T) {
	env := newTestEnv(t, allFeatures(), testSecret)

	rec := env.do(http.MethodPost, "/api/steps", `{"user":"ann-phone","steps":5000,"guildId":"g1"}`, testSecret)
	require.Equal(t, http.StatusOK, rec.Code)
	var first SubmitStepsResponse
	decode(t, rec, &first)
	assert.True(t, first.Success)
	assert.Equal(t, "Successfully submitted 5,000 steps for this week.", first.Message)
	assert.Nil(t, first.PreviousValue)

	rec = env.do(http.MethodPost, "/api/steps", `{"user":"ann-phone","steps":7250,"guildId":"g1"}`, testSecret)
	require.Equal(t, http.StatusOK, rec.Code)
	var second SubmitStepsResponse
	decode(t, rec, &second)
	assert.Equal(t, "Updated your step submission from 5,000 to 7,250 steps for this week.", second.Message)
	require.NotNil(t, second.PreviousValue)
	assert.Equal(t, 5000, *second.PreviousValue)

	p, err := env.repo.GetParticipant(context.Background(), "g1", "ann-phone")
	require.NoError(t, err)
	require.Len(t, p.History, 1)
	assert.Equal(t, 7250, p.History[0].StepCount)
}

func TestSubmitSteps_ZeroStepsAccepted(t *testing.T) {
	env := newTestEnv(t, allFeatures(), testSecret)
	rec := env.do(http.MethodPost, "/api/steps", `{"user":"ann-phone","steps":0,"guildId":"g1"}`, testSecret)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLegacyWebhookToggle(t *testing.T) {
	body := `{"user":"ann-phone","steps":10,"guildId":"g1"}`

	on := newTestEnv(t, allFeatures(), testSecret)
	assert.Equal(t, http.StatusOK, on.do(http.MethodPost, "/webhook", body, testSecret).Code)

	flags := allFeatures()
	flags.LegacyWebhook = false
	off := newTestEnv(t, flags, testSecret)
	assert.Equal(t, http.StatusNotFound, off.do(http.MethodPost, "/webhook", body, testSecret).Code)
}

func TestNoSecretDisablesAPI(t *testing.T) {
	env := newTestEnv(t, allFeatures(), "")
	rec := env.do(http.MethodPost, "/api/steps", `{"user":"a","steps":1,"guildId":"g"}`, "anything")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/health", "", "").Code)
}

// ─────────────────────────────────────────────────────────────────────────────
// Read API
// ─────────────────────────────────────────────────────────────────────────────

func TestReadAPI_Leaderboard(t *testing.T) {
	env := newTestEnv(t, allFeatures(), testSecret)
	now := time.Now().UTC()

	for _, s := range []struct {
		device, chat, name string
		steps              int
	}{
		{"ann-phone", "1", "Ann", 9000},
		{"bob-phone", "2", "Bob", 4000},
	} {
		rec := env.do(http.MethodPost, "/api/steps",
			`{"user":"`+s.device+`","steps":`+itoa(s.steps)+`,"guildId":"g1"}`, testSecret)
		require.Equal(t, http.StatusOK, rec.Code)

		link, err := competition.NewIdentityLink("g1", s.chat, s.device, now)
		require.NoError(t, err)
		require.NoError(t, env.repo.CreateIdentityLink(context.Background(), link))
		env.membership.Add("g1", competition.Member{ChatIdentity: s.chat, DisplayName: s.name})
	}

	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodGet, "/api/guilds/g1/leaderboard", "", "").Code)

	rec := env.do(http.MethodGet, "/api/guilds/g1/leaderboard?limit=1", "", testSecret)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-store, no-cache, must-revalidate, max-age=0", rec.Header().Get("Cache-Control"))

	var resp struct {
		Success bool                        `json:"success"`
		Data    query.GetLeaderboardResult `json:"data"`
	}
	decode(t, rec, &resp)
	assert.True(t, resp.Success)
	assert.Equal(t, "g1", resp.Data.ScopeID)
	assert.Equal(t, 2, resp.Data.TotalCount)
	require.Len(t, resp.Data.Entries, 1)
	assert.Equal(t, "Ann", resp.Data.Entries[0].DisplayName)
	assert.True(t, resp.Data.Entries[0].IsLeader)

	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodGet, "/api/guilds/g1/leaderboard?limit=x", "", testSecret).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodGet, "/api/guilds/g1/leaderboard?limit=-3", "", testSecret).Code)
}

func TestReadAPI_Schedule(t *testing.T) {
	env := newTestEnv(t, allFeatures(), testSecret)

	rec := env.do(http.MethodGet, "/api/guilds/g1/schedule?count=3", "", testSecret)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data query.GetPostingScheduleResult `json:"data"`
	}
	decode(t, rec, &resp)
	assert.Len(t, resp.Data.Posts, 3)

	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodGet, "/api/guilds/g1/schedule?count=99", "", testSecret).Code)
}

func TestReadAPI_GapTrendToggle(t *testing.T) {
	env := newTestEnv(t, allFeatures(), testSecret)
	rec := env.do(http.MethodGet, "/api/guilds/g1/participants/ann-phone/gap", "", testSecret)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data query.GetGapTrendResult `json:"data"`
	}
	decode(t, rec, &resp)
	assert.Equal(t, "ann-phone", resp.Data.ParticipantID)
	assert.False(t, resp.Data.Available)

	flags := allFeatures()
	flags.GapTrend = false
	off := newTestEnv(t, flags, testSecret)
	assert.Equal(t, http.StatusNotFound, off.do(http.MethodGet, "/api/guilds/g1/participants/ann-phone/gap", "", testSecret).Code)

	flags.ReadAPI = false
	noRead := newTestEnv(t, flags, testSecret)
	assert.Equal(t, http.StatusNotFound, noRead.do(http.MethodGet, "/api/guilds/g1/leaderboard", "", testSecret).Code)
}

// ─────────────────────────────────────────────────────────────────────────────
// Rate limiter
// ─────────────────────────────────────────────────────────────────────────────

func TestRateLimiter(t *testing.T) {
	rl := newRateLimiter(2, time.Minute)
	defer rl.Stop()

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"))
}

func TestGetClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "10.0.0.1", getClientIP(r))

	r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	assert.Equal(t, "203.0.113.7", getClientIP(r))
}

func itoa(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}
