package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-grader/internal/config"
	"github.com/noah-isme/gema-grader/internal/handler"
	"github.com/noah-isme/gema-grader/internal/middleware"
	"github.com/noah-isme/gema-grader/internal/observability"
)

// Dependencies groups router dependencies for registration. QuestionHandler is nil when no
// question store is configured.
type Dependencies struct {
	GradingHandler  *handler.GradingHandler
	QuestionHandler *handler.QuestionHandler
	Generator       handler.Prober
	AuthMiddleware  fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.Generator))

	gradingLimit := middleware.RateLimit("grading", cfg.RateLimitMax, orDefault(cfg.RateLimitWindow, time.Minute))

	if deps.GradingHandler != nil {
		api.Post("/grading", gradingLimit, deps.GradingHandler.Grade)
	}

	if deps.QuestionHandler == nil {
		return
	}

	// Authoring is open when no JWT secret is configured.
	authoring := []fiber.Handler{}
	if deps.AuthMiddleware != nil {
		authoring = append(authoring, deps.AuthMiddleware, middleware.RequireRole("teacher", "admin"))
	}
	authoring = append(authoring, deps.QuestionHandler.Create)

	questions := api.Group("/questions")
	questions.Get("", deps.QuestionHandler.List)
	questions.Post("", authoring...)
	if deps.GradingHandler != nil {
		questions.Post("/:id/grade", gradingLimit, deps.GradingHandler.GradeQuestion)
	}
}

func orDefault(value, fallback time.Duration) time.Duration {
	if value <= 0 {
		return fallback
	}
	return value
}
