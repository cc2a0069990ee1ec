package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"blogpilot/internal/auth"
	"blogpilot/internal/http/handlers"
	"blogpilot/internal/http/respond"
	"blogpilot/internal/middleware"
	"blogpilot/internal/ratelimit"
)

const jsonBodyLimit = 2 << 20

// Options configures NewRouter. Limiters may be nil to disable limiting.
type Options struct {
	Verifier       auth.Verifier
	UserLimiter    ratelimit.Limiter
	PublicLimiter  ratelimit.Limiter
	Registry       *prometheus.Registry
	AllowedOrigins []string
	// StaticDir serves locally stored uploads under /static when set.
	StaticDir string
	Logger    zerolog.Logger
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		middleware.Logger(opts.Logger),
		chimw.Recoverer,
		middleware.SecureHeaders,
		middleware.CORS(opts.AllowedOrigins),
	)
	if opts.Registry != nil {
		r.Use(newHTTPMetrics(opts.Registry).middleware)
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(opts.Registry, promhttp.HandlerOpts{}))
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respond.Error(w, http.StatusNotFound, respond.CodeNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respond.Error(w, http.StatusMethodNotAllowed, respond.CodeInvalidInput, "method not allowed")
	})

	if opts.StaticDir != "" {
		r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir(opts.StaticDir))))
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", app.Health)
		r.Get("/ready", app.Ready)

		// Public credit API authenticated with bp_ keys.
		r.Route("/public", func(r chi.Router) {
			r.Use(middleware.APIKeyAuth(app.APIKeys))
			if opts.PublicLimiter != nil {
				r.Use(middleware.RateLimit(opts.PublicLimiter, middleware.ByAPIKey, opts.Logger))
			}
			r.Use(middleware.MaxBody(jsonBodyLimit), middleware.Geo(app.Country))
			r.Get("/credits", app.PublicBalance)
			r.Post("/credits/deduct", app.PublicDeduct)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(opts.Verifier, opts.Logger))
			if opts.UserLimiter != nil {
				r.Use(middleware.RateLimit(opts.UserLimiter, byUser, opts.Logger))
			}

			r.Post("/uploads", app.Upload)

			r.Group(func(r chi.Router) {
				r.Use(middleware.MaxBody(jsonBodyLimit))

				r.Get("/me", app.Me)

				r.Get("/credits", app.Credits)
				r.Get("/credits/transactions", app.Transactions)
				r.Post("/credits/deduct", app.Deduct)

				r.Route("/posts", func(r chi.Router) {
					r.Get("/", app.ListPosts)
					r.Post("/", app.CreatePost)
					r.Get("/export", app.ExportPosts)
					r.Route("/{id}", func(r chi.Router) {
						r.Get("/", app.GetPost)
						r.Put("/", app.UpdatePost)
						r.Delete("/", app.DeletePost)
						r.Post("/publish", app.PublishPost)
						r.Post("/schedule", app.SchedulePost)
						r.Post("/archive", app.ArchivePost)
						r.Post("/wordpress", app.SyncPostWordPress)
						r.Post("/threads", app.SharePostThreads)
					})
				})

				r.Route("/integrations", func(r chi.Router) {
					r.Post("/wordpress", app.ConnectWordPress)
					r.Delete("/wordpress", app.DisconnectWordPress)
					r.Get("/wordpress/categories", app.WordPressCategories)
					r.Post("/threads", app.ConnectThreads)
					r.Delete("/threads", app.DisconnectThreads)
				})

				r.Route("/api-keys", func(r chi.Router) {
					r.Get("/", app.ListAPIKeys)
					r.Post("/", app.CreateAPIKey)
					r.Delete("/{id}", app.RevokeAPIKey)
				})

				r.Route("/admin", func(r chi.Router) {
					r.Use(middleware.RequireAdmin)
					r.Post("/credits/grant", app.AdminGrant)
					r.Post("/credits/adjust", app.AdminAdjust)
					r.Post("/credits/refund", app.AdminRefund)
					r.Get("/credits/audit/{uid}", app.AdminAudit)
					r.Get("/users/{uid}/transactions", app.AdminUserTransactions)
					r.Get("/credit-config", app.AdminGetCreditConfig)
					r.Put("/credit-config", app.AdminPutCreditConfig)
				})
			})
		})
	})

	return r
}

func byUser(r *http.Request) string {
	if id := middleware.UserIDFromContext(r.Context()); id != "" {
		return "user:" + id
	}
	return middleware.ByIP(r)
}
