package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/redmonkez12/printcost-auth/internal/auth"
	"github.com/redmonkez12/printcost-auth/internal/config"
	"github.com/redmonkez12/printcost-auth/internal/httputil"
	"github.com/redmonkez12/printcost-auth/internal/logging"
	"github.com/redmonkez12/printcost-auth/internal/metrics"
	"github.com/redmonkez12/printcost-auth/internal/ratelimit"
)

const (
	healthPath  = "/health"
	metricsPath = "/metrics"
)

// NewRouter creates and configures the HTTP router
func NewRouter(
	cfg *config.Config,
	authHandler *auth.Handler,
	authMiddleware *auth.Middleware,
	limiter ratelimit.Limiter,
	m *metrics.Metrics,
	logger *logging.Logger,
) *chi.Mux {
	r := chi.NewRouter()

	// CORS - must be first. Preflights pass through to Preflight, which
	// always answers them.
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:     cfg.Server.AllowedOrigins,
		AllowedMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:     []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:     []string{"Content-Length", "Retry-After"},
		MaxAge:             300, // 5 minutes
		OptionsPassthrough: true,
	}))
	r.Use(Preflight)

	// Global middleware
	r.Use(SecurityHeaders)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.RequestLogger(logger))
	r.Use(Recoverer)
	r.Use(m.Middleware)
	r.Use(ratelimit.Middleware(limiter, m, healthPath, metricsPath))

	r.NotFound(notFound)
	r.MethodNotAllowed(notFound)

	r.Get(healthPath, handleHealth)
	if m != nil {
		r.Method(http.MethodGet, metricsPath, m.Handler())
	}

	// Swagger UI - only in development
	if cfg.Server.IsDevelopment() {
		logger.Info("swagger UI enabled at /swagger/*")
		r.Get("/swagger/*", httpSwagger.WrapHandler)
	}

	r.Route(cfg.Server.AuthBasePath, func(r chi.Router) {
		r.Post("/signup", authHandler.Signup)
		r.Get("/verify-email", authHandler.VerifyEmail)
		r.Post("/resend-verification", authHandler.ResendVerification)
		r.Post("/login", authHandler.Login)
		r.Post("/forgot-password", authHandler.ForgotPassword)
		r.Post("/reset-password", authHandler.ResetPassword)

		// Session routes
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.RequireSession)
			r.Get("/me", authHandler.Me)
			r.Post("/logout", authHandler.Logout)
		})
	})

	return r
}

// handleHealth is a simple health check endpoint
// @Summary      Health check
// @Description  Check if the API is running
// @Tags         health
// @Produce      json
// @Success      200 {object} map[string]string
// @Router       /health [get]
func handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.RespondJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}
