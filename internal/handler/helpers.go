package handler

import (
	"errors"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-kg/internal/graphstore"
	"github.com/noah-isme/gema-kg/internal/middleware"
	"github.com/noah-isme/gema-kg/internal/models"
	"github.com/noah-isme/gema-kg/internal/service"
	"github.com/noah-isme/gema-kg/internal/utils"
)

// vertexID rebuilds a collection/key id from a route parameter holding the key.
func vertexID(c *fiber.Ctx, collection, param string) string {
	key := strings.TrimSpace(c.Params(param))
	if key == "" {
		return ""
	}
	return collection + "/" + key
}

func parseQueryInt(c *fiber.Ctx, key string, fallback int) (int, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return fallback, nil
	}
	return strconv.Atoi(value)
}

func parseQueryFloat(c *fiber.Ctx, key string, fallback float64) (float64, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return fallback, nil
	}
	return strconv.ParseFloat(value, 64)
}

// courseScope reads the optional course_id query parameter. Both bare keys and full ids are
// accepted.
func courseScope(c *fiber.Ctx) string {
	value := strings.TrimSpace(c.Query("course_id"))
	if value == "" || strings.Contains(value, "/") {
		return value
	}
	return models.CollectionCourses + "/" + value
}

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	logger := base
	if c != nil {
		if correlation := middleware.GetCorrelationID(c); correlation != "" {
			logger = base.With().Str("correlation_id", correlation).Logger()
		}
	}
	return &logger
}

func validationDetails(err error) map[string]string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return nil
	}
	details := make(map[string]string, len(validationErrors))
	for _, fieldErr := range validationErrors {
		details[fieldErr.Field()] = fieldErr.Tag()
	}
	return details
}

// respondError maps service and store errors onto HTTP responses.
func respondError(c *fiber.Ctx, logger zerolog.Logger, err error) error {
	if details := validationDetails(err); details != nil {
		return utils.Fail(c, fiber.StatusBadRequest, "validation failed", details)
	}

	switch {
	case errors.Is(err, service.ErrSubmissionNotFound),
		errors.Is(err, service.ErrStudentNotFound),
		errors.Is(err, service.ErrInstructorNotFound),
		errors.Is(err, service.ErrCourseNotFound),
		errors.Is(err, service.ErrAssignmentNotFound),
		errors.Is(err, graphstore.ErrNotFound):
		return utils.SendError(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrDuplicateClassCode),
		errors.Is(err, service.ErrMistakesAlreadyRecorded):
		return utils.SendError(c, fiber.StatusConflict, err.Error())
	case errors.Is(err, models.ErrSchemaViolation):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrSubmissionNotGraded), errors.Is(err, service.ErrNotEnrolled):
		return utils.SendError(c, fiber.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, service.ErrUnsupportedMaterial):
		return utils.SendError(c, fiber.StatusUnsupportedMediaType, err.Error())
	case errors.Is(err, service.ErrMaterialTooLarge):
		return utils.SendError(c, fiber.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, service.ErrGraderUnavailable):
		return utils.SendError(c, fiber.StatusServiceUnavailable, err.Error())
	case errors.Is(err, graphstore.ErrStoreUnavailable):
		requestLogger(logger, c).Error().Err(err).Msg("graph store unavailable")
		return utils.SendError(c, fiber.StatusServiceUnavailable, "graph store unavailable")
	default:
		requestLogger(logger, c).Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}

// guarded prepends route-level middleware to a handler.
func guarded(guards []fiber.Handler, handler fiber.Handler) []fiber.Handler {
	chain := make([]fiber.Handler, 0, len(guards)+1)
	chain = append(chain, guards...)
	return append(chain, handler)
}
