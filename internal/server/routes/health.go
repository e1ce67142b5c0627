package routes

import (
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/ca-hub/ca-hub/internal/credential"
)

// RegisterHealthRoutes 暴露 /healthz，汇报最近一次凭证请求结果与缓存规模。
func RegisterHealthRoutes(app *fiber.App, cache *credential.Cache) {
	if app == nil || cache == nil {
		return
	}

	app.Get("/healthz", func(c fiber.Ctx) error {
		payload := healthPayload{
			Status:       "healthy",
			CacheEntries: cache.Len(),
		}

		if outcome, ok := cache.LastOutcome(); ok && !outcome.OK {
			payload.Status = "unhealthy"
			payload.LastError = &errorPayload{
				Message:   outcome.Message,
				Timestamp: outcome.At.Format(time.RFC3339Nano),
			}
			return c.Status(fiber.StatusInternalServerError).JSON(payload)
		}

		return c.JSON(payload)
	})
}

type healthPayload struct {
	Status       string        `json:"status"`
	LastError    *errorPayload `json:"lastError"`
	CacheEntries int           `json:"cacheEntries"`
}

type errorPayload struct {
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}
