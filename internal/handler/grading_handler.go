package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-kg/internal/dto"
	"github.com/noah-isme/gema-kg/internal/models"
	"github.com/noah-isme/gema-kg/internal/service"
	"github.com/noah-isme/gema-kg/internal/utils"
)

const (
	defaultSimilarityThreshold = 0.7
	defaultGradeDiffThreshold  = 15.0
	defaultSimilarLimit        = 10
)

// GradingHandler exposes grading, similarity and consistency endpoints.
type GradingHandler struct {
	grading    service.GradingService
	similarity service.SimilarityService
	logger     zerolog.Logger
}

// NewGradingHandler builds a grading handler.
func NewGradingHandler(grading service.GradingService, similarity service.SimilarityService, logger zerolog.Logger) *GradingHandler {
	return &GradingHandler{
		grading:    grading,
		similarity: similarity,
		logger:     logger.With().Str("component", "grading_handler").Logger(),
	}
}

// RegisterWrites attaches the grading routes, which record mistakes and may call the grader.
func (h *GradingHandler) RegisterWrites(router fiber.Router, guards ...fiber.Handler) {
	router.Post("/submissions/:key/grade", guarded(guards, h.applyGrade)...)
	router.Post("/submissions/:key/auto-grade", guarded(guards, h.autoGrade)...)
}

// RegisterReads attaches the similarity and consistency routes.
func (h *GradingHandler) RegisterReads(router fiber.Router, guards ...fiber.Handler) {
	router.Get("/submissions/:key/similar", guarded(guards, h.similar)...)
	router.Get("/submissions/:key/consistency", guarded(guards, h.consistency)...)
}

func (h *GradingHandler) applyGrade(c *fiber.Ctx) error {
	var payload dto.GradeRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	result, err := h.grading.ApplyGrade(c.UserContext(), vertexID(c, models.CollectionSubmissions, "key"), payload)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "submission graded", result)
}

func (h *GradingHandler) autoGrade(c *fiber.Ctx) error {
	var payload dto.AutoGradeRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	result, err := h.grading.AutoGrade(c.UserContext(), vertexID(c, models.CollectionSubmissions, "key"), payload)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "submission graded", result)
}

func (h *GradingHandler) similar(c *fiber.Ctx) error {
	threshold, err := parseQueryFloat(c, "threshold", defaultSimilarityThreshold)
	if err != nil || threshold < 0 || threshold > 1 {
		return utils.SendError(c, fiber.StatusBadRequest, "threshold must be between 0 and 1")
	}
	limit, err := parseQueryInt(c, "limit", defaultSimilarLimit)
	if err != nil || limit < 0 {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid limit parameter")
	}

	items, err := h.similarity.FindSimilar(c.UserContext(), vertexID(c, models.CollectionSubmissions, "key"), threshold, limit)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.OK(c, items, "similar submissions retrieved", fiber.Map{"threshold": threshold, "count": len(items)})
}

func (h *GradingHandler) consistency(c *fiber.Ctx) error {
	threshold, err := parseQueryFloat(c, "threshold", defaultSimilarityThreshold)
	if err != nil || threshold < 0 || threshold > 1 {
		return utils.SendError(c, fiber.StatusBadRequest, "threshold must be between 0 and 1")
	}
	gradeDiff, err := parseQueryFloat(c, "grade_diff", defaultGradeDiffThreshold)
	if err != nil || gradeDiff < 0 {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid grade_diff parameter")
	}

	report, err := h.similarity.CheckConsistency(c.UserContext(), vertexID(c, models.CollectionSubmissions, "key"), threshold, gradeDiff)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "consistency checked", report)
}
