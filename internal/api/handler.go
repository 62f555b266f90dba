package api

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/Checker-Finance/backoffice/internal/jobs"
	"github.com/Checker-Finance/backoffice/internal/store"
)

// SnapshotStore is the read side of the snapshot store.
type SnapshotStore interface {
	GetSnapshot(ctx context.Context, collection string) (*store.Snapshot, error)
	HealthCheck(ctx context.Context) error
}

// Syncer runs collection syncs on demand.
type Syncer interface {
	Collections() []string
	RunOnce(ctx context.Context) []jobs.Result
	SyncCollection(ctx context.Context, name string) jobs.Result
}

// SyncHandler serves snapshots and manual sync triggers.
type SyncHandler struct {
	logger *zap.Logger
	store  SnapshotStore
	syncer Syncer
}

func NewSyncHandler(logger *zap.Logger, st SnapshotStore, syncer Syncer) *SyncHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SyncHandler{logger: logger, store: st, syncer: syncer}
}

// ListCollections returns the collections the agent syncs.
func (h *SyncHandler) ListCollections(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"collections": h.syncer.Collections()})
}

// GetSnapshot returns the last stored snapshot of :collection.
func (h *SyncHandler) GetSnapshot(c *fiber.Ctx) error {
	name := c.Params("collection")

	snap, err := h.store.GetSnapshot(c.UserContext(), name)
	if errors.Is(err, store.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no snapshot for " + name})
	}
	if err != nil {
		h.logger.Error("api.get_snapshot.failed", zap.String("collection", name), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(snap)
}

// TriggerSync runs a sync now: every collection, or only ?collection=.
func (h *SyncHandler) TriggerSync(c *fiber.Ctx) error {
	var results []jobs.Result
	if name := c.Query("collection"); name != "" {
		res := h.syncer.SyncCollection(c.UserContext(), name)
		if errors.Is(res.Err, jobs.ErrUnknownCollection) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": res.Error})
		}
		results = []jobs.Result{res}
	} else {
		results = h.syncer.RunOnce(c.UserContext())
	}

	code := fiber.StatusOK
	for _, r := range results {
		if r.Err != nil {
			code = fiber.StatusMultiStatus
			break
		}
	}
	return c.Status(code).JSON(fiber.Map{"results": results})
}
