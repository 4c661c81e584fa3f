package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/stepbattle/stepbattle/internal/application/command"
	"github.com/stepbattle/stepbattle/internal/application/query"
	"github.com/stepbattle/stepbattle/internal/domain/competition"
	"github.com/stepbattle/stepbattle/internal/domain/shared"
	"github.com/stepbattle/stepbattle/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH
// ══════════════════════════════════════════════════════════════════════════════

// handleHealth is the liveness probe; it answers plain "OK".
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady runs the dependency checks.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker == nil {
		writeJSON(w, r, http.StatusOK, map[string]string{"status": "ready"})
		return
	}
	status := s.deps.HealthChecker.Check(r.Context())
	if !status.Healthy {
		writeBody(w, http.StatusServiceUnavailable, JSONResponse{
			Success:   false,
			Data:      status,
			Error:     &APIError{Code: "not_ready", Message: status.Message, Retryable: true},
			RequestID: getRequestID(r.Context()),
		})
		return
	}
	writeJSON(w, r, http.StatusOK, status)
}

// ══════════════════════════════════════════════════════════════════════════════
// INGESTION
// ══════════════════════════════════════════════════════════════════════════════

// SubmitStepsRequest is the device payload. Pointers tell a missing field
// from a zero one.
type SubmitStepsRequest struct {
	User    *string  `json:"user"`
	Steps   *float64 `json:"steps"`
	GuildID *string  `json:"guildId"`
}

// SubmitStepsResponse is the ingestion reply.
type SubmitStepsResponse struct {
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	PreviousValue *int   `json:"previousValue,omitempty"`
}

var errInvalidPayload = errors.New("Invalid payload format")

// validate returns the trimmed device name, guild and step count.
func (p SubmitStepsRequest) validate() (string, string, int, error) {
	if p.User == nil || p.GuildID == nil || p.Steps == nil {
		return "", "", 0, errInvalidPayload
	}
	user := strings.TrimSpace(*p.User)
	guild := strings.TrimSpace(*p.GuildID)
	if user == "" || guild == "" {
		return "", "", 0, errInvalidPayload
	}
	steps, err := shared.StepCountFromFloat(*p.Steps)
	if err != nil {
		return "", "", 0, errInvalidPayload
	}
	return user, guild, steps.Int(), nil
}

// handleSubmitSteps records one device submission for today's window.
// POST /api/steps (alias POST /webhook)
func (s *Server) handleSubmitSteps(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSONError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed", false)
		return
	}
	if !s.deps.Auth.Authorized(r) {
		s.denyUnauthorized(w, r)
		return
	}

	var payload SubmitStepsRequest
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&payload); err != nil {
		writeJSONError(w, r, http.StatusBadRequest, "invalid_payload", errInvalidPayload.Error(), false)
		return
	}
	user, guild, steps, err := payload.validate()
	if err != nil {
		writeJSONError(w, r, http.StatusBadRequest, "invalid_payload", err.Error(), false)
		return
	}

	result, err := s.deps.RecordSubmission.Handle(r.Context(), command.RecordSubmissionCommand{
		ScopeID:       guild,
		ParticipantID: user,
		DisplayName:   user,
		StepCount:     steps,
		Source:        competition.SourceDeviceAPI,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	logger.FromContext(r.Context()).Info("device submission recorded",
		logger.ScopeID(guild),
		logger.ParticipantID(user),
		logger.StepCount(steps),
		logger.Bool("replaced", result.Replaced),
	)

	writeBody(w, http.StatusOK, SubmitStepsResponse{
		Success:       true,
		Message:       result.Message(),
		PreviousValue: result.PreviousValue,
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// READ API
// ══════════════════════════════════════════════════════════════════════════════

// handleGetLeaderboard returns the ranked entries of a guild.
// GET /api/guilds/{guildId}/leaderboard?limit=N
func (s *Server) handleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit, ok := s.intParam(w, r, "limit", 0)
	if !ok {
		return
	}
	result, err := s.deps.GetLeaderboard.Handle(r.Context(), query.GetLeaderboardQuery{
		ScopeID: r.PathValue("guildId"),
		Limit:   limit,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	for _, u := range result.Unverified {
		s.logger.Warn("participant left out: membership check failed",
			logger.ScopeID(result.ScopeID), logger.ParticipantID(u.ParticipantID), logger.Err(u.Err))
	}
	writeJSON(w, r, http.StatusOK, result)
}

// handleGetGapTrend returns a participant's day-over-day gap change.
// GET /api/guilds/{guildId}/participants/{participantId}/gap
func (s *Server) handleGetGapTrend(w http.ResponseWriter, r *http.Request) {
	result, err := s.deps.GetGapTrend.Handle(r.Context(), query.GetGapTrendQuery{
		ScopeID:       r.PathValue("guildId"),
		ParticipantID: r.PathValue("participantId"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

// handleGetSchedule returns the next posting and reminder times.
// GET /api/guilds/{guildId}/schedule?count=N
func (s *Server) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	count, ok := s.intParam(w, r, "count", 1)
	if !ok {
		return
	}
	result, err := s.deps.GetPostingSchedule.Handle(r.Context(), query.GetPostingScheduleQuery{
		ScopeID: r.PathValue("guildId"),
		Count:   count,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) denyUnauthorized(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="stepbattle"`)
	writeJSONError(w, r, http.StatusUnauthorized, "unauthorized", "Unauthorized", false)
}

// writeError maps application errors to status codes.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case shared.IsValidation(err):
		writeJSONError(w, r, http.StatusBadRequest, "invalid_request", err.Error(), false)
	case shared.IsNotFound(err):
		writeJSONError(w, r, http.StatusNotFound, "not_found", err.Error(), false)
	case shared.IsConflict(err):
		writeJSONError(w, r, http.StatusConflict, "conflict", "Another submission for this window is in progress, please retry", true)
	case shared.IsExternalService(err):
		logger.FromContext(r.Context()).Warn("upstream failure", logger.Err(err))
		writeJSONError(w, r, http.StatusBadGateway, "upstream_error", "Upstream service unavailable", true)
	default:
		logger.FromContext(r.Context()).Error("request failed", logger.String("path", r.URL.Path), logger.Err(err))
		writeJSONError(w, r, http.StatusInternalServerError, "internal_server_error", "Internal server error", false)
	}
}

// intParam parses an optional integer query parameter, writing 400 on failure.
func (s *Server) intParam(w http.ResponseWriter, r *http.Request, key string, def int) (int, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		writeJSONError(w, r, http.StatusBadRequest, "invalid_request", key+" must be an integer", false)
		return 0, false
	}
	return n, true
}
