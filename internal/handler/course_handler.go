package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-kg/internal/dto"
	"github.com/noah-isme/gema-kg/internal/models"
	"github.com/noah-isme/gema-kg/internal/service"
	"github.com/noah-isme/gema-kg/internal/utils"
)

// CourseHandler exposes people, course, enrollment and submission endpoints.
type CourseHandler struct {
	service service.CourseService
	logger  zerolog.Logger
}

// NewCourseHandler builds a course handler instance.
func NewCourseHandler(service service.CourseService, logger zerolog.Logger) *CourseHandler {
	return &CourseHandler{
		service: service,
		logger:  logger.With().Str("component", "course_handler").Logger(),
	}
}

// Register attaches the routes to the provided router group behind the given guards.
func (h *CourseHandler) Register(router fiber.Router, guards ...fiber.Handler) {
	router.Post("/students", guarded(guards, h.registerStudent)...)
	router.Post("/instructors", guarded(guards, h.registerInstructor)...)
	router.Post("/courses", guarded(guards, h.createCourse)...)
	router.Get("/courses/:key", guarded(guards, h.getCourse)...)
	router.Post("/courses/:key/assignments", guarded(guards, h.addAssignment)...)
	router.Post("/courses/:key/enrollments", guarded(guards, h.enroll)...)
	router.Post("/submissions", guarded(guards, h.createSubmission)...)
	router.Get("/submissions/:key", guarded(guards, h.getSubmission)...)
}

func (h *CourseHandler) registerStudent(c *fiber.Ctx) error {
	var payload dto.StudentCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	student, err := h.service.RegisterStudent(c.UserContext(), payload)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "student registered", student)
}

func (h *CourseHandler) registerInstructor(c *fiber.Ctx) error {
	var payload dto.InstructorCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	instructor, err := h.service.RegisterInstructor(c.UserContext(), payload)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "instructor registered", instructor)
}

func (h *CourseHandler) createCourse(c *fiber.Ctx) error {
	var payload dto.CourseCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	course, err := h.service.CreateCourse(c.UserContext(), payload)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "course created", course)
}

func (h *CourseHandler) getCourse(c *fiber.Ctx) error {
	course, err := h.service.GetCourse(c.UserContext(), vertexID(c, models.CollectionCourses, "key"))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "course retrieved", course)
}

func (h *CourseHandler) addAssignment(c *fiber.Ctx) error {
	var payload dto.AssignmentCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	course, err := h.service.AddAssignment(c.UserContext(), vertexID(c, models.CollectionCourses, "key"), payload)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "assignment added", course)
}

func (h *CourseHandler) enroll(c *fiber.Ctx) error {
	var payload dto.EnrollRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	student, err := h.service.Enroll(c.UserContext(), vertexID(c, models.CollectionCourses, "key"), payload)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "student enrolled", student)
}

func (h *CourseHandler) createSubmission(c *fiber.Ctx) error {
	var payload dto.SubmissionCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	submission, err := h.service.CreateSubmission(c.UserContext(), payload)
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "submission created", submission)
}

func (h *CourseHandler) getSubmission(c *fiber.Ctx) error {
	submission, err := h.service.GetSubmission(c.UserContext(), vertexID(c, models.CollectionSubmissions, "key"))
	if err != nil {
		return respondError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "submission retrieved", submission)
}
