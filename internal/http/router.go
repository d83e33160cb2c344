package http

import (
	"log/slog"
	"net/http"
	"time"

	"growthboard/internal/auth"
	"growthboard/internal/board"
	"growthboard/internal/plan"
	"growthboard/internal/repo"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type API struct {
	Repo    *repo.Repo
	Plan    *plan.Service
	Boards  *board.Manager
	Auth    *auth.Manager
	Log     *slog.Logger
	Origins []string
}

func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(90 * time.Second))
	r.Use(a.loggingMiddleware)
	r.Use(a.corsMiddleware)

	r.Get("/health", a.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(a.authMiddleware)

		r.Get("/days/{day}/tasks", a.handleDayTasks)
		r.Put("/days/{day}/order", a.handleReorder)

		r.Route("/tasks", func(r chi.Router) {
			r.Post("/", a.handleAddTask)
			r.Patch("/{id}", a.handleUpdateTask)
			r.Delete("/{id}", a.handleDeleteTask)
			r.Post("/{id}/complete", a.handleCompleteTask)
			r.Post("/{id}/skip", a.handleSkipTask)
			r.Put("/{id}/note", a.handleTaskNote)
		})

		r.Post("/nudges/accept", a.handleAcceptNudge)

		r.Route("/weeks/{week}", func(r chi.Router) {
			r.Get("/", a.handleWeekStatus)
			r.Post("/regenerate", a.handleRegenerateWeek)
			r.Post("/review", a.handleWeeklyReview)
		})

		r.Get("/progress", a.handleProgress)
		r.Get("/profile", a.handleGetProfile)
		r.Put("/profile", a.handleUpdateProfile)

		r.Route("/milestones", func(r chi.Router) {
			r.Get("/", a.handleListMilestones)
			r.Post("/", a.handleCreateMilestone)
			r.Patch("/{id}/progress", a.handleMilestoneProgress)
			r.Post("/{id}/unlock", a.handleUnlockMilestone)
		})

		r.Post("/content", a.handleCreateContent)
	})

	return r
}
