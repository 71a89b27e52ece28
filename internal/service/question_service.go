package service

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-grader/internal/dto"
	"github.com/noah-isme/gema-grader/internal/models"
	"github.com/noah-isme/gema-grader/internal/repository"
)

// QuestionService manages the stored question corpus.
type QuestionService interface {
	List(ctx context.Context) (dto.QuestionListResponse, error)
	Create(ctx context.Context, req dto.CreateQuestionRequest) (dto.QuestionResponse, error)
	SeedFromFile(ctx context.Context, path string) (int64, error)
}

type questionService struct {
	repo      repository.QuestionRepository
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewQuestionService constructs the question corpus service.
func NewQuestionService(repo repository.QuestionRepository, validate *validator.Validate, logger zerolog.Logger) QuestionService {
	return &questionService{
		repo:      repo,
		validator: validate,
		logger:    logger.With().Str("component", "question_service").Logger(),
	}
}

func (s *questionService) List(ctx context.Context) (dto.QuestionListResponse, error) {
	questions, err := s.repo.List(ctx)
	if err != nil {
		return dto.QuestionListResponse{}, err
	}

	summaries := make([]dto.QuestionSummary, 0, len(questions))
	for _, question := range questions {
		summaries = append(summaries, dto.NewQuestionSummary(question))
	}

	return dto.QuestionListResponse{Questions: summaries, TotalQuestions: len(summaries)}, nil
}

func (s *questionService) Create(ctx context.Context, req dto.CreateQuestionRequest) (dto.QuestionResponse, error) {
	req.Question = normalizeText(req.Question)
	req.AnswerKey = normalizeText(req.AnswerKey)
	req.Rubric = normalizeText(req.Rubric)
	if err := s.validator.Struct(req); err != nil {
		return dto.QuestionResponse{}, err
	}

	question := models.Question{
		Text:      req.Text,
		Prompt:    req.Question,
		AnswerKey: req.AnswerKey,
		Rubric:    req.Rubric,
	}
	if err := s.repo.Create(ctx, &question); err != nil {
		return dto.QuestionResponse{}, err
	}

	s.logger.Info().Uint("question_id", question.ID).Msg("question created")
	return dto.NewQuestionResponse(question), nil
}

// courseWorkItem is one entry of a course_work.json corpus file.
type courseWorkItem struct {
	ID        uint   `json:"id"`
	Text      string `json:"text"`
	Questions string `json:"questions"`
	Answer    string `json:"answer"`
	Rubric    string `json:"rubric"`
}

func (s *questionService) SeedFromFile(ctx context.Context, path string) (int64, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read course work: %w", err)
	}

	var items []courseWorkItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return 0, fmt.Errorf("decode course work: %w", err)
	}

	questions := make([]models.Question, 0, len(items))
	for _, item := range items {
		if item.ID == 0 {
			s.logger.Warn().Str("question", item.Questions).Msg("skipping course work entry without id")
			continue
		}
		questions = append(questions, models.Question{
			ID:        item.ID,
			Text:      item.Text,
			Prompt:    normalizeText(item.Questions),
			AnswerKey: normalizeText(item.Answer),
			Rubric:    normalizeText(item.Rubric),
		})
	}

	affected, err := s.repo.UpsertBatch(ctx, questions)
	if err != nil {
		return 0, err
	}
	s.logger.Info().Int64("affected", affected).Str("path", path).Msg("course work seeded")
	return affected, nil
}
