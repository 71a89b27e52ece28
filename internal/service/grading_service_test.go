package service

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-grader/internal/dto"
	"github.com/noah-isme/gema-grader/internal/grading"
	"github.com/noah-isme/gema-grader/internal/models"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

type graderStub struct {
	outcome grading.Outcome
	err     error
	last    grading.Submission
}

func (g *graderStub) Grade(ctx context.Context, submission grading.Submission) (grading.Outcome, error) {
	g.last = submission
	return g.outcome, g.err
}

type questionRepoStub struct {
	items  map[uint]models.Question
	err    error
	seeded []models.Question
}

func (q *questionRepoStub) List(ctx context.Context) ([]models.Question, error) {
	out := make([]models.Question, 0, len(q.items))
	for id := uint(1); id <= uint(len(q.items)); id++ {
		out = append(out, q.items[id])
	}
	return out, q.err
}

func (q *questionRepoStub) GetByID(ctx context.Context, id uint) (models.Question, error) {
	if q.err != nil {
		return models.Question{}, q.err
	}
	question, ok := q.items[id]
	if !ok {
		return models.Question{}, gorm.ErrRecordNotFound
	}
	return question, nil
}

func (q *questionRepoStub) Create(ctx context.Context, question *models.Question) error {
	if q.err != nil {
		return q.err
	}
	if q.items == nil {
		q.items = map[uint]models.Question{}
	}
	question.ID = uint(len(q.items) + 1)
	q.items[question.ID] = *question
	return nil
}

func (q *questionRepoStub) UpsertBatch(ctx context.Context, questions []models.Question) (int64, error) {
	q.seeded = append(q.seeded, questions...)
	return int64(len(questions)), q.err
}

type publisherStub struct {
	mu     sync.Mutex
	events []dto.GradingEvent
	err    error
}

func (p *publisherStub) Publish(ctx context.Context, event dto.GradingEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func partialOutcome() grading.Outcome {
	return grading.Outcome{
		Result:            grading.Result{Scores: []int{1, 0}, MaxPoints: 2, Incorrect: []string{"wrong idea"}},
		Feedback:          "Revisit the second reason.",
		FeedbackAvailable: true,
		Rubric:            grading.RubricInfo{MaxPoints: 2, PartCount: 2, Method: grading.MethodLLM},
		StudentSegments:   []string{"right idea", "wrong idea"},
		ReferenceSegments: []string{"first", "second"},
		ScoringMethod:     grading.ScoringMutualBest,
	}
}

func TestGradingServiceGradeMapsOutcome(t *testing.T) {
	grader := &graderStub{outcome: partialOutcome()}
	publisher := &publisherStub{}
	svc := NewGradingService(grader, nil, publisher, validator.New(), testLogger()).(*gradingService)
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC) }

	resp, err := svc.Grade(context.Background(), dto.GradingRequest{StudentAnswer: "answer", Rubric: "rubric", AnswerKey: "key"})
	require.NoError(t, err)

	require.NotEmpty(t, resp.RunID)
	require.Nil(t, resp.QuestionID)
	require.Equal(t, 1, resp.Score)
	require.Equal(t, 2, resp.MaxScore)
	require.Equal(t, []int{1, 0}, resp.DetailedScores)
	require.Equal(t, []string{"wrong idea"}, resp.IncorrectParts)
	require.NotNil(t, resp.Feedback)
	require.Equal(t, "Revisit the second reason.", *resp.Feedback)
	require.Equal(t, grading.MethodLLM, resp.RubricMethod)
	require.Equal(t, []string{"right idea", "wrong idea"}, resp.Segments.Student)
	require.Equal(t, grading.Submission{StudentAnswer: "answer", Rubric: "rubric", AnswerKey: "key"}, grader.last)

	require.Len(t, publisher.events, 1)
	event := publisher.events[0]
	require.Equal(t, resp.RunID, event.RunID)
	require.Equal(t, 1, event.IncorrectCount)
	require.True(t, event.FeedbackAvailable)
	require.Equal(t, "2026-03-01T10:00:00Z", event.GradedAt)
}

func TestGradingServiceValidatesRequest(t *testing.T) {
	grader := &graderStub{}
	svc := NewGradingService(grader, nil, nil, validator.New(), testLogger())

	_, err := svc.Grade(context.Background(), dto.GradingRequest{StudentAnswer: "answer"})
	require.Error(t, err)
	var validationErrs validator.ValidationErrors
	require.True(t, errors.As(err, &validationErrs))
	require.Empty(t, grader.last.StudentAnswer)
}

func TestGradingServiceMissingFeedbackIsNull(t *testing.T) {
	outcome := partialOutcome()
	outcome.Feedback = ""
	outcome.FeedbackAvailable = false
	outcome.Result.Incorrect = nil
	svc := NewGradingService(&graderStub{outcome: outcome}, nil, nil, validator.New(), testLogger())

	resp, err := svc.Grade(context.Background(), dto.GradingRequest{StudentAnswer: "a", Rubric: "r", AnswerKey: "k"})
	require.NoError(t, err)
	require.Nil(t, resp.Feedback)
	require.NotNil(t, resp.IncorrectParts)
	require.Empty(t, resp.IncorrectParts)
}

func TestGradingServicePropagatesAbort(t *testing.T) {
	abort := &grading.StageError{Stage: grading.StageRepair, Err: grading.ErrMalformedSegments}
	publisher := &publisherStub{}
	svc := NewGradingService(&graderStub{err: abort}, nil, publisher, validator.New(), testLogger())

	_, err := svc.Grade(context.Background(), dto.GradingRequest{StudentAnswer: "a", Rubric: "r", AnswerKey: "k"})
	require.Error(t, err)
	require.True(t, IsGradingAborted(err))
	require.Empty(t, publisher.events)

	cancelled := &grading.StageError{Stage: grading.StageScoring, Err: context.Canceled}
	require.False(t, IsGradingAborted(cancelled))
	require.False(t, IsGradingAborted(errors.New("boom")))
}

func TestGradingServicePublishFailureIsNotFatal(t *testing.T) {
	publisher := &publisherStub{err: errors.New("nats down")}
	svc := NewGradingService(&graderStub{outcome: partialOutcome()}, nil, publisher, validator.New(), testLogger())

	_, err := svc.Grade(context.Background(), dto.GradingRequest{StudentAnswer: "a", Rubric: "r", AnswerKey: "k"})
	require.NoError(t, err)
	require.Len(t, publisher.events, 1)
}

func TestGradingServiceGradeQuestion(t *testing.T) {
	repo := &questionRepoStub{items: map[uint]models.Question{
		1: {ID: 1, Prompt: "Explain.", AnswerKey: "stored key", Rubric: "stored rubric"},
		2: {ID: 2, Prompt: "Draft.", AnswerKey: "key only"},
	}}
	grader := &graderStub{outcome: partialOutcome()}
	publisher := &publisherStub{}
	svc := NewGradingService(grader, repo, publisher, validator.New(), testLogger())

	resp, err := svc.GradeQuestion(context.Background(), 1, dto.QuestionGradingRequest{Text: "student text"})
	require.NoError(t, err)
	require.NotNil(t, resp.QuestionID)
	require.Equal(t, uint(1), *resp.QuestionID)
	require.Equal(t, grading.Submission{StudentAnswer: "student text", Rubric: "stored rubric", AnswerKey: "stored key"}, grader.last)
	require.Equal(t, uint(1), *publisher.events[0].QuestionID)

	_, err = svc.GradeQuestion(context.Background(), 2, dto.QuestionGradingRequest{Text: "student text"})
	require.True(t, errors.Is(err, ErrQuestionIncomplete))

	_, err = svc.GradeQuestion(context.Background(), 9, dto.QuestionGradingRequest{Text: "student text"})
	require.True(t, errors.Is(err, ErrQuestionNotFound))

	_, err = svc.GradeQuestion(context.Background(), 1, dto.QuestionGradingRequest{})
	require.Error(t, err)
}

func TestGradingServiceWithoutQuestionStore(t *testing.T) {
	svc := NewGradingService(&graderStub{}, nil, nil, validator.New(), testLogger())

	_, err := svc.GradeQuestion(context.Background(), 1, dto.QuestionGradingRequest{Text: "student text"})
	require.True(t, errors.Is(err, ErrQuestionNotFound))
}
