package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-kg/internal/config"
	"github.com/noah-isme/gema-kg/internal/handler"
	"github.com/noah-isme/gema-kg/internal/middleware"
	"github.com/noah-isme/gema-kg/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	CourseHandler         *handler.CourseHandler
	MaterialHandler       *handler.MaterialHandler
	GradingHandler        *handler.GradingHandler
	AnalyticsHandler      *handler.AnalyticsHandler
	RecommendationHandler *handler.RecommendationHandler
	HealthStore           handler.Pinger
	JWTMiddleware         fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	if cfg.MetricsEnabled {
		app.Get("/metrics", observability.MetricsHandler())
	}

	// Common v1 group for health & headers
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.HealthStore))

	// Use provided JWT middleware, or a no-op if nil
	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}
	secured := app.Group("/api/v1", jwtMiddleware)

	staff := middleware.RequireRole(middleware.AuthRoleInstructor, middleware.AuthRoleAdmin)

	if deps.CourseHandler != nil {
		deps.CourseHandler.Register(secured, staff)
	}

	if deps.MaterialHandler != nil {
		deps.MaterialHandler.Register(secured, staff)
	}

	if deps.GradingHandler != nil {
		window := cfg.GradingRateWindow
		if window <= 0 {
			window = time.Minute
		}
		deps.GradingHandler.RegisterWrites(secured, staff, middleware.RateLimit("grading", cfg.GradingRateLimit, window))
		deps.GradingHandler.RegisterReads(secured, staff)
	}

	if deps.AnalyticsHandler != nil {
		deps.AnalyticsHandler.Register(secured, staff)
	}

	if deps.RecommendationHandler != nil {
		next := func(c *fiber.Ctx) error { return c.Next() }
		studentOwner := middleware.WithAuth(next, middleware.AuthOptions{
			Role:             middleware.AuthRoleAny,
			OwnerParam:       "key",
			OwnerBypassRoles: []string{middleware.AuthRoleInstructor},
		})
		instructorOwner := middleware.WithAuth(next, middleware.AuthOptions{
			Role:       middleware.AuthRoleInstructor,
			OwnerParam: "key",
		})
		deps.RecommendationHandler.RegisterStudent(secured, studentOwner)
		deps.RecommendationHandler.RegisterInstructor(secured, instructorOwner)
	}
}
