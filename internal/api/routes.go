package api

import (
	"coursesync/internal/health"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// requestTimeout bounds request handling. Submissions return before their
// jobs run, so this only covers lookups and persistence.
const requestTimeout = 30 * time.Second

// RouterConfig holds dependencies for the router.
type RouterConfig struct {
	Jobs           Jobs
	Reconciler     Reconciler
	Metrics        HTTPMetrics
	HealthChecker  *health.Checker
	APIKey         string
	AllowedOrigins []string
}

// NewRouter creates a new HTTP router with all routes configured.
func NewRouter(cfg RouterConfig) http.Handler {
	handler := NewHandler(cfg.Jobs, cfg.Reconciler, cfg.HealthChecker)

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()

	// Middleware chain (outermost first)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(LoggingMiddleware())
	if cfg.Metrics != nil {
		r.Use(MetricsMiddleware(cfg.Metrics))
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", ActingUserHeader},
		MaxAge:         300,
	}))
	r.Use(ContentTypeMiddleware())
	r.Use(middleware.Timeout(requestTimeout))

	// Health check endpoints (liveness/readiness probes) - no auth required
	r.Get("/livez", handler.Livez)
	r.Get("/readyz", handler.Readyz)

	r.Route("/v1", func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.APIKey))

		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", handler.ListJobs)
			r.Post("/membership-audit", handler.MembershipAudit)
			r.Get("/{jobId}", handler.GetJob)
			r.Get("/{jobId}/log", handler.GetJobLog)
		})

		r.Route("/courses/{courseId}/jobs", func(r chi.Router) {
			r.Post("/invite-members", handler.InviteMembers)
			r.Post("/pull-teams", handler.PullTeams)
			r.Post("/push-teams", handler.PushTeams)
			r.Post("/create-repos", handler.CreateRepos)
		})

		r.Post("/team-members/{memberId}/jobs/add", handler.AddTeamMember)
		r.Post("/team-members/{memberId}/jobs/remove", handler.RemoveTeamMember)
		r.Post("/teams/{teamId}/jobs/delete", handler.DeleteTeam)
		r.Post("/students/{studentId}/jobs/remove", handler.RemoveStudent)
		r.Post("/staff/{staffId}/jobs/remove", handler.RemoveStaff)
	})

	return r
}
