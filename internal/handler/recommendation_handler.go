package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-kg/internal/models"
	"github.com/noah-isme/gema-kg/internal/service"
	"github.com/noah-isme/gema-kg/internal/utils"
)

const defaultRecommendationLimit = 5

// RecommendationHandler serves study recommendations and problem sections.
type RecommendationHandler struct {
	service service.RecommendationService
	logger  zerolog.Logger
}

// NewRecommendationHandler builds a recommendation handler.
func NewRecommendationHandler(service service.RecommendationService, logger zerolog.Logger) *RecommendationHandler {
	return &RecommendationHandler{
		service: service,
		logger:  logger.With().Str("component", "recommendation_handler").Logger(),
	}
}

// RegisterStudent attaches the student facing routes.
func (h *RecommendationHandler) RegisterStudent(router fiber.Router, guards ...fiber.Handler) {
	router.Get("/students/:key/recommendations", guarded(guards, h.forStudent)...)
}

// RegisterInstructor attaches the instructor facing routes.
func (h *RecommendationHandler) RegisterInstructor(router fiber.Router, guards ...fiber.Handler) {
	router.Get("/instructors/:key/problem-sections", guarded(guards, h.forInstructor)...)
}

func (h *RecommendationHandler) forStudent(c *fiber.Ctx) error {
	limit, err := parseQueryInt(c, "limit", defaultRecommendationLimit)
	if err != nil || limit < 0 {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid limit parameter")
	}

	items, err := h.service.SectionsForStudent(c.UserContext(), vertexID(c, models.CollectionStudents, "key"), limit)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "recommendations retrieved", items)
}

func (h *RecommendationHandler) forInstructor(c *fiber.Ctx) error {
	limit, err := parseQueryInt(c, "limit", defaultRecommendationLimit)
	if err != nil || limit < 0 {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid limit parameter")
	}

	items, err := h.service.ProblemSectionsForInstructor(c.UserContext(), vertexID(c, models.CollectionInstructors, "key"), limit)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "problem sections retrieved", items)
}
