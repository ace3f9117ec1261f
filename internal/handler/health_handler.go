package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-kg/internal/config"
	"github.com/noah-isme/gema-kg/internal/utils"
)

// HealthResponse represents the payload returned by the health endpoint.
type HealthResponse struct {
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	Service     string    `json:"service"`
	Environment string    `json:"environment"`
	GraphStore  string    `json:"graph_store"`
}

// Pinger is satisfied by the graph store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthCheck returns a handler that reports application health information.
func HealthCheck(cfg config.Config, store Pinger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		payload := HealthResponse{
			Status:      "ok",
			Timestamp:   time.Now().UTC(),
			Service:     cfg.AppName,
			Environment: cfg.AppEnv,
			GraphStore:  "ok",
		}

		if store != nil {
			ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
			defer cancel()
			if err := store.Ping(ctx); err != nil {
				payload.Status = "degraded"
				payload.GraphStore = "unavailable"
				return utils.Fail(c, fiber.StatusServiceUnavailable, "graph store unavailable", payload)
			}
		}

		return utils.SendSuccess(c, "service healthy", payload)
	}
}
