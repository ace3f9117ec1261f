package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-kg/internal/dto"
	"github.com/noah-isme/gema-kg/internal/models"
	"github.com/noah-isme/gema-kg/internal/service"
	"github.com/noah-isme/gema-kg/internal/utils"
)

// MaterialHandler exposes course material ingestion and topic linking.
type MaterialHandler struct {
	service service.MaterialService
	logger  zerolog.Logger
}

// NewMaterialHandler builds a material handler.
func NewMaterialHandler(service service.MaterialService, logger zerolog.Logger) *MaterialHandler {
	return &MaterialHandler{
		service: service,
		logger:  logger.With().Str("component", "material_handler").Logger(),
	}
}

// Register attaches the routes to the provided router group behind the given guards.
func (h *MaterialHandler) Register(router fiber.Router, guards ...fiber.Handler) {
	router.Post("/courses/:key/materials", guarded(guards, h.ingest)...)
	router.Post("/courses/:key/materials/upload", guarded(guards, h.upload)...)
	router.Get("/courses/:key/sections", guarded(guards, h.listSections)...)
	router.Post("/courses/:key/topics/link", guarded(guards, h.linkTopics)...)
}

func (h *MaterialHandler) ingest(c *fiber.Ctx) error {
	var payload dto.MaterialIngestRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	payload.CourseID = vertexID(c, models.CollectionCourses, "key")

	material, err := h.service.Ingest(c.UserContext(), payload)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "material ingested", material)
}

func (h *MaterialHandler) upload(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "file is required")
	}

	material, err := h.service.IngestFile(c.UserContext(), vertexID(c, models.CollectionCourses, "key"), c.FormValue("topic"), file)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "material ingested", material)
}

func (h *MaterialHandler) listSections(c *fiber.Ctx) error {
	sections, err := h.service.ListSections(c.UserContext(), vertexID(c, models.CollectionCourses, "key"))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "sections retrieved", sections)
}

func (h *MaterialHandler) linkTopics(c *fiber.Ctx) error {
	result, err := h.service.LinkTopics(c.UserContext(), vertexID(c, models.CollectionCourses, "key"))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "topics linked", result)
}
