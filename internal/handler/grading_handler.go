package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-grader/internal/dto"
	"github.com/noah-isme/gema-grader/internal/grading"
	"github.com/noah-isme/gema-grader/internal/service"
	"github.com/noah-isme/gema-grader/internal/utils"
)

// GradingHandler exposes the grading pipeline over HTTP.
type GradingHandler struct {
	service service.GradingService
	logger  zerolog.Logger
}

// NewGradingHandler constructs a grading handler.
func NewGradingHandler(service service.GradingService, logger zerolog.Logger) *GradingHandler {
	return &GradingHandler{
		service: service,
		logger:  logger.With().Str("component", "grading_handler").Logger(),
	}
}

// Grade handles POST /grading with an inline rubric and answer key.
func (h *GradingHandler) Grade(c *fiber.Ctx) error {
	var payload dto.GradingRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	response, err := h.service.Grade(c.UserContext(), payload)
	if err != nil {
		return h.fail(c, err)
	}

	return utils.SendSuccess(c, "answer graded", response)
}

// GradeQuestion handles POST /questions/:id/grade against a stored question.
func (h *GradingHandler) GradeQuestion(c *fiber.Ctx) error {
	questionID, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid question id")
	}

	var payload dto.QuestionGradingRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	response, err := h.service.GradeQuestion(c.UserContext(), questionID, payload)
	if err != nil {
		return h.fail(c, err)
	}

	return utils.SendSuccess(c, "answer graded", response)
}

func (h *GradingHandler) fail(c *fiber.Ctx, err error) error {
	var stageErr *grading.StageError
	switch {
	case isValidationError(err):
		return utils.SendValidationError(c, err)
	case errors.Is(err, service.ErrQuestionNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "question not found")
	case errors.Is(err, service.ErrQuestionIncomplete):
		return utils.SendError(c, fiber.StatusUnprocessableEntity, "question is missing its rubric or answer key")
	case service.IsGradingAborted(err) && errors.As(err, &stageErr):
		return utils.SendFail(c, fiber.StatusUnprocessableEntity, "grading aborted", map[string]string{"stage": string(stageErr.Stage)})
	default:
		requestLogger(c, "grading_handler", h.logger).Error().Err(err).Msg("failed to grade answer")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to grade answer")
	}
}
