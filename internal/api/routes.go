package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SessionState reports whether the agent is waiting to log in again.
type SessionState interface {
	Pending() bool
}

func RegisterRoutes(app *fiber.App, st SnapshotStore, session SessionState, handler *SyncHandler) {
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		checks := map[string]string{
			"store":   "ok",
			"session": "ok",
		}
		status := "ok"
		code := fiber.StatusOK

		healthCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := st.HealthCheck(healthCtx); err != nil {
			checks["store"] = err.Error()
			status = "degraded"
			code = fiber.StatusServiceUnavailable
		}

		// a pending relogin is recovered by the next sync run
		if session != nil && session.Pending() {
			checks["session"] = "relogin_pending"
			status = "degraded"
		}

		return c.Status(code).JSON(fiber.Map{
			"status": status,
			"checks": checks,
		})
	})

	v1 := app.Group("/api/v1")
	v1.Get("/collections", handler.ListCollections)
	v1.Get("/snapshots/:collection", handler.GetSnapshot)
	v1.Post("/sync", handler.TriggerSync)
}
