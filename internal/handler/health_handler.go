package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/peer-eval-api/internal/config"
	"github.com/noah-isme/peer-eval-api/internal/utils"
)

// HealthResponse represents the payload returned by the health endpoint.
type HealthResponse struct {
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	Service     string    `json:"service"`
	Environment string    `json:"environment"`
	Scale       ScaleInfo `json:"scale"`
}

// ScaleInfo reports the rating scale the engine scores against.
type ScaleInfo struct {
	Min         float64 `json:"min"`
	Neutral     float64 `json:"neutral"`
	Max         float64 `json:"max"`
	OutputBound float64 `json:"output_bound"`
}

// HealthCheck returns a handler that reports application health information.
func HealthCheck(cfg config.Config) fiber.Handler {
	scale := ScaleInfo{
		Min:         cfg.Scoring.ScaleMin,
		Neutral:     cfg.Scoring.Neutral,
		Max:         cfg.Scoring.ScaleMax,
		OutputBound: cfg.Scoring.OutputBound,
	}

	return func(c *fiber.Ctx) error {
		return utils.SendSuccess(c, "service healthy", HealthResponse{
			Status:      "ok",
			Timestamp:   time.Now().UTC(),
			Service:     cfg.AppName,
			Environment: cfg.AppEnv,
			Scale:       scale,
		})
	}
}
