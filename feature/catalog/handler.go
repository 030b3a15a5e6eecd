package catalog

import (
	"catalog-sync/core/logger"
	"catalog-sync/core/model"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Handler exposes the shared catalog over HTTP.
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler creates the catalog HTTP handler.
func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes registers the catalog routes.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	group := app.Group("/catalog")
	group.Get("/", h.HandleGetCatalog)
	group.Get("/stats", h.HandleGetStats)
	group.Post("/refresh", h.HandleRefresh)
}

// HandleGetCatalog returns the merged catalog, loading it when stale.
// Optional query parameters: kind (asset|token), folder (display path).
func (h *Handler) HandleGetCatalog(c *fiber.Ctx) error {
	l := logger.WithRayID(h.logger, c)

	result, err := h.service.Load(c.Context())
	if err != nil {
		l.Error("Catalog load failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	items := result.Items
	if kind := c.Query("kind"); kind != "" {
		items = filterItems(items, func(r model.InventoryRecord) bool {
			return string(r.Kind) == kind
		})
	}
	if folder := c.Query("folder"); folder != "" {
		items = filterItems(items, func(r model.InventoryRecord) bool {
			return r.DisplayPath == folder
		})
	}

	if result.Partial {
		l.Warn("Serving partial catalog", zap.Error(result.Err))
	}
	return c.JSON(fiber.Map{
		"version": result.Version,
		"partial": result.Partial,
		"count":   len(items),
		"items":   items,
	})
}

// HandleGetStats returns per-folder aggregates for one kind.
func (h *Handler) HandleGetStats(c *fiber.Ctx) error {
	kind := model.Kind(c.Query("kind", string(model.KindAsset)))
	if kind != model.KindAsset && kind != model.KindToken {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "unknown kind",
		})
	}
	return c.JSON(fiber.Map{
		"kind":    kind,
		"folders": h.service.Stats(kind),
	})
}

// HandleRefresh invalidates the catalog and kicks off a fresh load.
func (h *Handler) HandleRefresh(c *fiber.Ctx) error {
	l := logger.WithRayID(h.logger, c)
	h.service.Invalidate()

	result, err := h.service.Load(c.Context())
	if err != nil {
		l.Error("Catalog refresh failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(fiber.Map{
		"version": result.Version,
		"partial": result.Partial,
		"count":   len(result.Items),
	})
}

func filterItems(items []model.InventoryRecord, keep func(model.InventoryRecord) bool) []model.InventoryRecord {
	out := make([]model.InventoryRecord, 0, len(items))
	for _, r := range items {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}
