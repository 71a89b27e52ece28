package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-grader/internal/config"
	"github.com/noah-isme/gema-grader/internal/utils"
)

// Prober reports whether the generation backend answers.
type Prober interface {
	Probe(ctx context.Context) error
}

// HealthResponse represents the payload returned by the health endpoint.
type HealthResponse struct {
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	Service     string    `json:"service"`
	Environment string    `json:"environment"`
	Generator   string    `json:"generator"`
	Embedding   string    `json:"embedding"`
}

// HealthCheck reports service health. A generator that does not answer degrades the status
// but never fails the check, since grading still completes on fallbacks.
func HealthCheck(cfg config.Config, generator Prober) fiber.Handler {
	return func(c *fiber.Ctx) error {
		payload := HealthResponse{
			Status:      "ok",
			Timestamp:   time.Now().UTC(),
			Service:     cfg.AppName,
			Environment: cfg.AppEnv,
			Generator:   "down",
			Embedding:   cfg.EmbeddingProvider,
		}

		if generator != nil {
			timeout := cfg.GeneratorProbeTimeout
			if timeout <= 0 {
				timeout = 5 * time.Second
			}
			ctx, cancel := context.WithTimeout(c.UserContext(), timeout)
			defer cancel()
			if err := generator.Probe(ctx); err == nil {
				payload.Generator = "up"
			}
		}
		if payload.Generator == "down" {
			payload.Status = "degraded"
		}

		return utils.SendSuccess(c, "service healthy", payload)
	}
}
