package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-grader/internal/dto"
	"github.com/noah-isme/gema-grader/internal/grading"
	"github.com/noah-isme/gema-grader/internal/repository"
)

var (
	// ErrQuestionNotFound indicates the requested question does not exist.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrQuestionIncomplete indicates the question lacks a rubric or answer key.
	ErrQuestionIncomplete = errors.New("question is missing its rubric or answer key")
)

// Grader runs one submission through the grading pipeline.
type Grader interface {
	Grade(ctx context.Context, submission grading.Submission) (grading.Outcome, error)
}

// GradingService exposes free-text grading to the HTTP layer.
type GradingService interface {
	Grade(ctx context.Context, req dto.GradingRequest) (dto.GradingResponse, error)
	GradeQuestion(ctx context.Context, questionID uint, req dto.QuestionGradingRequest) (dto.GradingResponse, error)
}

type gradingService struct {
	grader    Grader
	questions repository.QuestionRepository
	publisher GradingPublisher
	validator *validator.Validate
	logger    zerolog.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// NewGradingService constructs the grading workflow. questions and publisher may be nil.
func NewGradingService(grader Grader, questions repository.QuestionRepository, publisher GradingPublisher, validate *validator.Validate, logger zerolog.Logger) GradingService {
	return &gradingService{
		grader:    grader,
		questions: questions,
		publisher: publisher,
		validator: validate,
		logger:    logger.With().Str("component", "grading_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/gema-grader/internal/service/grading"),
		now:       time.Now,
	}
}

func (s *gradingService) Grade(ctx context.Context, req dto.GradingRequest) (dto.GradingResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.GradingResponse{}, err
	}

	return s.run(ctx, nil, grading.Submission{
		StudentAnswer: req.StudentAnswer,
		Rubric:        req.Rubric,
		AnswerKey:     req.AnswerKey,
	})
}

func (s *gradingService) GradeQuestion(ctx context.Context, questionID uint, req dto.QuestionGradingRequest) (dto.GradingResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.GradingResponse{}, err
	}
	if s.questions == nil {
		return dto.GradingResponse{}, ErrQuestionNotFound
	}

	question, err := s.questions.GetByID(ctx, questionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.GradingResponse{}, ErrQuestionNotFound
		}
		return dto.GradingResponse{}, err
	}
	if !question.Gradable() {
		return dto.GradingResponse{}, ErrQuestionIncomplete
	}

	return s.run(ctx, &question.ID, grading.Submission{
		StudentAnswer: req.Text,
		Rubric:        question.Rubric,
		AnswerKey:     question.AnswerKey,
	})
}

func (s *gradingService) run(ctx context.Context, questionID *uint, submission grading.Submission) (dto.GradingResponse, error) {
	runID := uuid.New().String()
	ctx, span := s.tracer.Start(ctx, "grading.submit", trace.WithAttributes(attribute.String("grading.run_id", runID)))
	defer span.End()

	logger := s.logger.With().Str("run_id", runID).Logger()
	if questionID != nil {
		logger = logger.With().Uint("question_id", *questionID).Logger()
	}

	outcome, err := s.grader.Grade(ctx, submission)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "grading aborted")
		logger.Warn().Err(err).Msg("grading failed")
		return dto.GradingResponse{}, err
	}

	response := dto.GradingResponse{
		QuestionID:     questionID,
		RunID:          runID,
		Score:          outcome.Result.Total(),
		MaxScore:       outcome.Result.MaxPoints,
		DetailedScores: nonNilInts(outcome.Result.Scores),
		IncorrectParts: nonNilStrings(outcome.Result.Incorrect),
		RubricMethod:   outcome.Rubric.Method,
		ScoringMethod:  outcome.ScoringMethod,
		Segments: dto.SegmentsResponse{
			Student:   nonNilStrings(outcome.StudentSegments),
			Reference: nonNilStrings(outcome.ReferenceSegments),
		},
	}
	if outcome.FeedbackAvailable {
		feedback := outcome.Feedback
		response.Feedback = &feedback
	}

	logger.Info().Int("score", response.Score).Int("max_score", response.MaxScore).Msg("grading completed")
	s.announce(ctx, logger, response, outcome.FeedbackAvailable)

	return response, nil
}

func (s *gradingService) announce(ctx context.Context, logger zerolog.Logger, response dto.GradingResponse, feedbackAvailable bool) {
	if s.publisher == nil {
		return
	}

	event := dto.GradingEvent{
		RunID:             response.RunID,
		QuestionID:        response.QuestionID,
		Score:             response.Score,
		MaxScore:          response.MaxScore,
		IncorrectCount:    len(response.IncorrectParts),
		FeedbackAvailable: feedbackAvailable,
		GradedAt:          s.now().UTC().Format(time.RFC3339),
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		logger.Warn().Err(err).Msg("failed to publish grading event")
	}
}

// IsGradingAborted reports whether err came from a pipeline run that could not finish.
func IsGradingAborted(err error) bool {
	var stageErr *grading.StageError
	return errors.As(err, &stageErr) && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func nonNilInts(values []int) []int {
	if values == nil {
		return []int{}
	}
	return values
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func normalizeText(value string) string {
	return strings.TrimSpace(value)
}
