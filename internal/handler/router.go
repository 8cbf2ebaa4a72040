package handler

import (
	"net/http"

	"github.com/equipedash/equipe-dash-go/internal/domain"
	"github.com/equipedash/equipe-dash-go/internal/infra/observability"
	"github.com/equipedash/equipe-dash-go/internal/port"
	"github.com/equipedash/equipe-dash-go/internal/repository"
	"github.com/equipedash/equipe-dash-go/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Deps bundles everything the router serves. Sessions and the profile
// cache feed the auth middleware; the rest back individual routes.
type Deps struct {
	Sessions      *service.SessionManager
	Events        *service.EventService
	Notifications *service.NotificationService
	Meta          *service.MetaService
	Performance   *service.PerformanceService
	Users         *repository.Users
	Streamer      *Streamer
	ProfileCache  port.Cache[*domain.UserProfile]
	JWTSecret     string
	Metrics       *observability.Metrics
	Logger        *zap.Logger
}

// NewRouter creates the HTTP router with all routes and middleware.
// The route surface mirrors the SPA pages: calendar, performance,
// team roster, group goal and notifications.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(d.Logger))
	r.Use(observability.MetricsMiddleware(d.Metrics))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})
	r.Handle("/metrics", promhttp.HandlerFor(d.Metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {

		// Public: credentials in, tokens out.
		r.Post("/auth/signup", signupHandler(d.Sessions, d.Logger))
		r.Post("/auth/login", loginHandler(d.Sessions, d.Logger))

		// Everything else requires a valid Supabase access token.
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(d.Sessions, d.ProfileCache, d.JWTSecret, d.Metrics, d.Logger))

			r.Post("/auth/logout", logoutHandler(d.Sessions, d.Logger))
			r.Get("/auth/session", sessionHandler())

			// Team roster
			r.Get("/users", listUsersHandler(d.Users, d.Logger))
			r.Get("/users/{userId}", getUserHandler(d.Users, d.Logger))
			r.Patch("/users/{userId}", updateProfileHandler(d.Users, d.Logger))

			// Calendar
			r.Get("/events", listEventsHandler(d.Events, d.Logger))
			r.Post("/events", createEventHandler(d.Events, d.Logger))
			r.Patch("/events/{eventId}", updateEventHandler(d.Events, d.Logger))
			r.Delete("/events/{eventId}", deleteEventHandler(d.Events, d.Logger))

			// Announcements
			r.Get("/notifications", listNotificationsHandler(d.Notifications, d.Logger))
			r.Post("/notifications", createNotificationHandler(d.Notifications, d.Logger))
			r.Delete("/notifications/{notificationId}", deleteNotificationHandler(d.Notifications, d.Logger))

			// Group goal
			r.Get("/meta", getMetaHandler(d.Meta, d.Logger))
			r.Put("/meta", setMetaHandler(d.Meta, d.Logger))

			// Performance charts
			r.Get("/performance/team", teamPerformanceHandler(d.Performance, d.Logger))
			r.Get("/performance/agents/{agentId}", agentPerformanceHandler(d.Performance, d.Logger))

			// Live snapshots
			r.Get("/stream/{table}", d.Streamer.Handle)

			// Synchronization health
			r.Get("/metrics/sync", syncMetricsHandler(d.Metrics))
		})
	})

	return r
}

func syncMetricsHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, metrics.GetSyncSnapshot())
	}
}
