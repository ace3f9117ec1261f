package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-kg/internal/service"
	"github.com/noah-isme/gema-kg/internal/utils"
)

const defaultCriteriaLimit = 10

// AnalyticsHandler serves graph analytics reports.
type AnalyticsHandler struct {
	service service.AnalyticsService
	logger  zerolog.Logger
}

// NewAnalyticsHandler builds an analytics handler.
func NewAnalyticsHandler(service service.AnalyticsService, logger zerolog.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{
		service: service,
		logger:  logger.With().Str("component", "analytics_handler").Logger(),
	}
}

// Register attaches the routes to the provided router group behind the given guards.
func (h *AnalyticsHandler) Register(router fiber.Router, guards ...fiber.Handler) {
	router.Get("/analytics", guarded(guards, h.report)...)
	router.Post("/analytics/run", guarded(guards, h.run)...)
	router.Get("/analytics/criteria", guarded(guards, h.criteria)...)
}

func (h *AnalyticsHandler) report(c *fiber.Ctx) error {
	report, err := h.service.Report(c.UserContext(), courseScope(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.OK(c, report, "analytics retrieved", fiber.Map{"cache_hit": report.CacheHit})
}

func (h *AnalyticsHandler) run(c *fiber.Ctx) error {
	report, err := h.service.Run(c.UserContext(), courseScope(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "analytics recomputed", report)
}

func (h *AnalyticsHandler) criteria(c *fiber.Ctx) error {
	limit, err := parseQueryInt(c, "limit", defaultCriteriaLimit)
	if err != nil || limit < 0 {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid limit parameter")
	}

	items, err := h.service.TopCriteria(c.UserContext(), courseScope(c), limit)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "criteria retrieved", items)
}
