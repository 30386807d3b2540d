package http

import (
	"log/slog"
	"net/http"

	"github.com/geocoder89/userhub/internal/config"
	"github.com/geocoder89/userhub/internal/http/handlers"
	"github.com/geocoder89/userhub/internal/http/middlewares"
	"github.com/geocoder89/userhub/internal/observability"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// Deps are the collaborators the router mounts. Prom, Gatherer and Limiter are optional.
type Deps struct {
	Users    handlers.UserCreator
	Checks   []handlers.Check
	Prom     *observability.Prom
	Gatherer prometheus.Gatherer
	Limiter  middlewares.Limiter
}

func NewRouter(log *slog.Logger, cfg config.Config, deps Deps) *gin.Engine {
	if cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	// middleware

	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware("userhub"))
	r.Use(middlewares.RequestID())
	r.Use(middlewares.RequestLogger(log))
	if deps.Prom != nil {
		r.Use(deps.Prom.GinHandleMiddleware())
	}
	r.Use(middlewares.SecurityHeaders(cfg.Env == "prod"))
	r.Use(middlewares.CORSMiddleware(cfg.CORSAllowedOrigins))

	// health
	h := handlers.NewHealthHandler(deps.Checks...)
	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)

	if deps.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	limiter := deps.Limiter
	if limiter == nil {
		limiter = middlewares.NewRateLimiter(cfg.SignupRateLimit, cfg.SignupRateWindow)
	}

	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 1 << 20
	}

	usersHandler := handlers.NewUsersHandler(deps.Users, cfg.StoreTimeout)

	r.POST("/users",
		middlewares.RateLimit(limiter, middlewares.KeyByIP, log),
		middlewares.RequireJSON(),
		middlewares.MaxBodyBytes(maxBody),
		usersHandler.CreateUser,
	)

	r.NoRoute(func(ctx *gin.Context) {
		handlers.RespondError(ctx, http.StatusNotFound, "not_found", "Route not found", nil)
	})

	return r
}
