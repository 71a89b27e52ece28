package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-grader/internal/dto"
	"github.com/noah-isme/gema-grader/internal/service"
	"github.com/noah-isme/gema-grader/internal/utils"
)

// QuestionHandler serves the stored question corpus.
type QuestionHandler struct {
	service service.QuestionService
	logger  zerolog.Logger
}

// NewQuestionHandler constructs a question handler.
func NewQuestionHandler(service service.QuestionService, logger zerolog.Logger) *QuestionHandler {
	return &QuestionHandler{
		service: service,
		logger:  logger.With().Str("component", "question_handler").Logger(),
	}
}

// List handles GET /questions.
func (h *QuestionHandler) List(c *fiber.Ctx) error {
	response, err := h.service.List(c.UserContext())
	if err != nil {
		requestLogger(c, "question_handler", h.logger).Error().Err(err).Msg("failed to list questions")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to retrieve questions")
	}

	return utils.SendSuccess(c, "questions retrieved", response)
}

// Create handles POST /questions.
func (h *QuestionHandler) Create(c *fiber.Ctx) error {
	var payload dto.CreateQuestionRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	response, err := h.service.Create(c.UserContext(), payload)
	if err != nil {
		if isValidationError(err) {
			return utils.SendValidationError(c, err)
		}
		requestLogger(c, "question_handler", h.logger).Error().Err(err).Msg("failed to create question")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to create question")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "question created", response)
}
