// Package api provides the HTTP API handlers and routing for coursesync.
package api

import (
	"context"
	"coursesync/internal/apperrors"
	"coursesync/internal/health"
	"coursesync/internal/job"
	"coursesync/internal/reconcile"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
)

// maxRequestBodySize limits request body to 1MB to prevent memory exhaustion
const maxRequestBodySize = 1 << 20 // 1 MB

// ActingUserHeader names the identity recorded as a job's creator.
const ActingUserHeader = "X-Acting-User"

const defaultActingUser = "api"

// Jobs reads job records. *job.Runner implements it.
type Jobs interface {
	Get(ctx context.Context, id string) (*job.Job, error)
	GetLog(ctx context.Context, id string) (string, error)
	List(ctx context.Context, limit int) ([]job.Job, error)
}

// Reconciler submits reconciliation jobs. *reconcile.Service implements it.
type Reconciler interface {
	Audit(ctx context.Context, creator string) (string, error)
	InviteMembers(ctx context.Context, creator string, courseID int64) (string, error)
	PullTeams(ctx context.Context, creator string, courseID int64, groupSetID string) (string, error)
	PushTeams(ctx context.Context, creator string, courseID int64) (string, error)
	CreateRepos(ctx context.Context, creator string, courseID int64, opts reconcile.RepoOptions) (string, error)
	AddTeamMember(ctx context.Context, creator string, memberID int64) (string, error)
	RemoveTeamMember(ctx context.Context, creator string, memberID int64) (string, error)
	DeleteTeam(ctx context.Context, creator string, teamID int64) (string, error)
	RemoveStudent(ctx context.Context, creator string, studentID int64) (string, error)
	RemoveStaff(ctx context.Context, creator string, staffID int64) (string, error)
}

// SubmitResponse is returned for every accepted job submission.
type SubmitResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// ListResponse wraps GET /v1/jobs results.
type ListResponse struct {
	Jobs []job.Job `json:"jobs"`
}

type pullTeamsRequest struct {
	GroupSetID string `json:"groupSetId"`
}

// Handler contains HTTP handlers for the coursesync API
type Handler struct {
	jobs       Jobs
	reconciler Reconciler
	health     *health.Checker
}

// NewHandler creates a new API handler
func NewHandler(jobs Jobs, reconciler Reconciler, healthChecker *health.Checker) *Handler {
	return &Handler{
		jobs:       jobs,
		reconciler: reconciler,
		health:     healthChecker,
	}
}

// MembershipAudit handles POST /v1/jobs/membership-audit
func (h *Handler) MembershipAudit(w http.ResponseWriter, r *http.Request) {
	id, err := h.reconciler.Audit(r.Context(), actingUser(r))
	h.writeSubmitted(w, r, id, err)
}

// InviteMembers handles POST /v1/courses/{courseId}/jobs/invite-members
func (h *Handler) InviteMembers(w http.ResponseWriter, r *http.Request) {
	courseID, ok := h.pathID(w, r, "courseId")
	if !ok {
		return
	}
	id, err := h.reconciler.InviteMembers(r.Context(), actingUser(r), courseID)
	h.writeSubmitted(w, r, id, err)
}

// PullTeams handles POST /v1/courses/{courseId}/jobs/pull-teams
func (h *Handler) PullTeams(w http.ResponseWriter, r *http.Request) {
	courseID, ok := h.pathID(w, r, "courseId")
	if !ok {
		return
	}
	var req pullTeamsRequest
	if !h.decode(w, r, &req) {
		return
	}
	id, err := h.reconciler.PullTeams(r.Context(), actingUser(r), courseID, req.GroupSetID)
	h.writeSubmitted(w, r, id, err)
}

// PushTeams handles POST /v1/courses/{courseId}/jobs/push-teams
func (h *Handler) PushTeams(w http.ResponseWriter, r *http.Request) {
	courseID, ok := h.pathID(w, r, "courseId")
	if !ok {
		return
	}
	id, err := h.reconciler.PushTeams(r.Context(), actingUser(r), courseID)
	h.writeSubmitted(w, r, id, err)
}

// CreateRepos handles POST /v1/courses/{courseId}/jobs/create-repos
func (h *Handler) CreateRepos(w http.ResponseWriter, r *http.Request) {
	courseID, ok := h.pathID(w, r, "courseId")
	if !ok {
		return
	}
	var opts reconcile.RepoOptions
	if !h.decode(w, r, &opts) {
		return
	}
	id, err := h.reconciler.CreateRepos(r.Context(), actingUser(r), courseID, opts)
	h.writeSubmitted(w, r, id, err)
}

// AddTeamMember handles POST /v1/team-members/{memberId}/jobs/add
func (h *Handler) AddTeamMember(w http.ResponseWriter, r *http.Request) {
	memberID, ok := h.pathID(w, r, "memberId")
	if !ok {
		return
	}
	id, err := h.reconciler.AddTeamMember(r.Context(), actingUser(r), memberID)
	h.writeSubmitted(w, r, id, err)
}

// RemoveTeamMember handles POST /v1/team-members/{memberId}/jobs/remove
func (h *Handler) RemoveTeamMember(w http.ResponseWriter, r *http.Request) {
	memberID, ok := h.pathID(w, r, "memberId")
	if !ok {
		return
	}
	id, err := h.reconciler.RemoveTeamMember(r.Context(), actingUser(r), memberID)
	h.writeSubmitted(w, r, id, err)
}

// DeleteTeam handles POST /v1/teams/{teamId}/jobs/delete
func (h *Handler) DeleteTeam(w http.ResponseWriter, r *http.Request) {
	teamID, ok := h.pathID(w, r, "teamId")
	if !ok {
		return
	}
	id, err := h.reconciler.DeleteTeam(r.Context(), actingUser(r), teamID)
	h.writeSubmitted(w, r, id, err)
}

// RemoveStudent handles POST /v1/students/{studentId}/jobs/remove
func (h *Handler) RemoveStudent(w http.ResponseWriter, r *http.Request) {
	studentID, ok := h.pathID(w, r, "studentId")
	if !ok {
		return
	}
	id, err := h.reconciler.RemoveStudent(r.Context(), actingUser(r), studentID)
	h.writeSubmitted(w, r, id, err)
}

// RemoveStaff handles POST /v1/staff/{staffId}/jobs/remove
func (h *Handler) RemoveStaff(w http.ResponseWriter, r *http.Request) {
	staffID, ok := h.pathID(w, r, "staffId")
	if !ok {
		return
	}
	id, err := h.reconciler.RemoveStaff(r.Context(), actingUser(r), staffID)
	h.writeSubmitted(w, r, id, err)
}

// ListJobs handles GET /v1/jobs
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	jobs, err := h.jobs.List(r.Context(), limit)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	if jobs == nil {
		jobs = []job.Job{}
	}

	h.writeJSON(w, http.StatusOK, ListResponse{Jobs: jobs})
}

// GetJob handles GET /v1/jobs/{jobId}
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")
	if jobID == "" {
		h.writeError(w, http.StatusBadRequest, "Job ID is required")
		return
	}

	j, err := h.jobs.Get(r.Context(), jobID)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, j)
}

// GetJobLog handles GET /v1/jobs/{jobId}/log. The log is returned as
// plain text, one line per entry.
func (h *Handler) GetJobLog(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")
	if jobID == "" {
		h.writeError(w, http.StatusBadRequest, "Job ID is required")
		return
	}

	log, err := h.jobs.GetLog(r.Context(), jobID)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := io.WriteString(w, log); err != nil {
		slog.Error("Failed to write job log", "error", err, "jobId", jobID)
	}
}

// Livez handles GET /livez - liveness probe.
// Returns 200 if the process is alive. Does not check dependencies.
func (h *Handler) Livez(w http.ResponseWriter, r *http.Request) {
	response := h.health.Liveness(r.Context())
	h.writeJSON(w, http.StatusOK, response)
}

// Readyz handles GET /readyz - readiness probe.
// Returns 503 if the database is unavailable.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	response := h.health.Readiness(r.Context())

	status := http.StatusOK
	if !response.IsHealthy() {
		status = http.StatusServiceUnavailable
	}

	h.writeJSON(w, status, response)
}

// actingUser returns the identity a request acts as.
func actingUser(r *http.Request) string {
	if user := strings.TrimSpace(r.Header.Get(ActingUserHeader)); user != "" {
		return user
	}
	return defaultActingUser
}

// pathID parses a positive integer path parameter, writing a 400 on failure.
func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		h.writeError(w, http.StatusBadRequest, name+" must be a positive integer")
		return 0, false
	}
	return id, true
}

// decode reads a JSON body into v, writing a 400 on failure. An empty body
// leaves v untouched so the service can report missing fields.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		h.writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

func (h *Handler) writeSubmitted(w http.ResponseWriter, r *http.Request, id string, err error) {
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, SubmitResponse{ID: id, Status: job.StatusRunning})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeError writes an error response
func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// handleError handles errors from service layer with appropriate HTTP status codes.
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatus(err)
	if status >= 500 {
		slog.Error("Internal error", "error", err, "path", r.URL.Path)
	} else {
		slog.Warn("Client error", "error", err, "path", r.URL.Path, "status", status)
	}
	h.writeError(w, status, err.Error())
}
