package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-grader/internal/config"
	"github.com/noah-isme/gema-grader/internal/dto"
	"github.com/noah-isme/gema-grader/internal/grading"
	"github.com/noah-isme/gema-grader/internal/handler"
	"github.com/noah-isme/gema-grader/internal/service"
)

type envelope[T any] struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Data    T                 `json:"data"`
	Details map[string]string `json:"details"`
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body interface{}) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decodeResponse(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(target))
}

type mockGradingService struct {
	response   dto.GradingResponse
	err        error
	lastInline dto.GradingRequest
	lastID     uint
	lastText   string
}

func (m *mockGradingService) Grade(_ context.Context, req dto.GradingRequest) (dto.GradingResponse, error) {
	m.lastInline = req
	return m.response, m.err
}

func (m *mockGradingService) GradeQuestion(_ context.Context, id uint, req dto.QuestionGradingRequest) (dto.GradingResponse, error) {
	m.lastID = id
	m.lastText = req.Text
	return m.response, m.err
}

func gradingApp(svc service.GradingService) *fiber.App {
	app := fiber.New()
	h := handler.NewGradingHandler(svc, zerolog.New(io.Discard))
	app.Post("/api/v1/grading", h.Grade)
	app.Post("/api/v1/questions/:id/grade", h.GradeQuestion)
	return app
}

func TestGradingHandlerGradeSuccess(t *testing.T) {
	feedback := "Revisit the second reason."
	svc := &mockGradingService{response: dto.GradingResponse{
		RunID:          "run-1",
		Score:          1,
		MaxScore:       2,
		DetailedScores: []int{1, 0},
		IncorrectParts: []string{"wrong idea"},
		Feedback:       &feedback,
		RubricMethod:   grading.MethodLLM,
	}}

	resp := doJSON(t, gradingApp(svc), http.MethodPost, "/api/v1/grading", dto.GradingRequest{StudentAnswer: "a", Rubric: "r", AnswerKey: "k"})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body envelope[dto.GradingResponse]
	decodeResponse(t, resp, &body)
	require.True(t, body.Success)
	require.Equal(t, "run-1", body.Data.RunID)
	require.Equal(t, []int{1, 0}, body.Data.DetailedScores)
	require.Equal(t, feedback, *body.Data.Feedback)
	require.Equal(t, "a", svc.lastInline.StudentAnswer)
}

func TestGradingHandlerFeedbackNullWhenAbsent(t *testing.T) {
	svc := &mockGradingService{response: dto.GradingResponse{RunID: "run-2", DetailedScores: []int{0}, IncorrectParts: []string{"x"}}}

	resp := doJSON(t, gradingApp(svc), http.MethodPost, "/api/v1/grading", dto.GradingRequest{StudentAnswer: "a", Rubric: "r", AnswerKey: "k"})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var raw struct {
		Data map[string]json.RawMessage `json:"data"`
	}
	decodeResponse(t, resp, &raw)
	require.Equal(t, "null", string(raw.Data["feedback"]))
}

func TestGradingHandlerErrors(t *testing.T) {
	validationErr := validator.New().Struct(dto.GradingRequest{})
	cases := []struct {
		name   string
		err    error
		status int
		stage  string
	}{
		{name: "validation", err: validationErr, status: fiber.StatusBadRequest},
		{name: "not found", err: service.ErrQuestionNotFound, status: fiber.StatusNotFound},
		{name: "incomplete", err: service.ErrQuestionIncomplete, status: fiber.StatusUnprocessableEntity},
		{name: "aborted", err: &grading.StageError{Stage: grading.StageRepair, Err: grading.ErrMalformedSegments}, status: fiber.StatusUnprocessableEntity, stage: "repair"},
		{name: "cancelled", err: &grading.StageError{Stage: grading.StageScoring, Err: context.Canceled}, status: fiber.StatusInternalServerError},
		{name: "generic", err: errors.New("boom"), status: fiber.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &mockGradingService{err: tc.err}
			resp := doJSON(t, gradingApp(svc), http.MethodPost, "/api/v1/questions/3/grade", dto.QuestionGradingRequest{Text: "answer"})
			require.Equal(t, tc.status, resp.StatusCode)

			var body envelope[json.RawMessage]
			decodeResponse(t, resp, &body)
			require.False(t, body.Success)
			if tc.stage != "" {
				require.Equal(t, tc.stage, body.Details["stage"])
			}
		})
	}
}

func TestGradingHandlerGradeQuestionParsesID(t *testing.T) {
	svc := &mockGradingService{response: dto.GradingResponse{RunID: "run-3"}}
	app := gradingApp(svc)

	resp := doJSON(t, app, http.MethodPost, "/api/v1/questions/12/grade", dto.QuestionGradingRequest{Text: "my answer"})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, uint(12), svc.lastID)
	require.Equal(t, "my answer", svc.lastText)

	for _, path := range []string{"/api/v1/questions/abc/grade", "/api/v1/questions/0/grade"} {
		resp = doJSON(t, app, http.MethodPost, path, dto.QuestionGradingRequest{Text: "my answer"})
		require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	}
}

func TestGradingHandlerRejectsMalformedBody(t *testing.T) {
	app := gradingApp(&mockGradingService{})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/grading", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

type mockQuestionService struct {
	list    dto.QuestionListResponse
	created dto.QuestionResponse
	err     error
}

func (m *mockQuestionService) List(context.Context) (dto.QuestionListResponse, error) {
	return m.list, m.err
}

func (m *mockQuestionService) Create(_ context.Context, req dto.CreateQuestionRequest) (dto.QuestionResponse, error) {
	if m.err != nil {
		return dto.QuestionResponse{}, m.err
	}
	m.created.Question = req.Question
	return m.created, nil
}

func (m *mockQuestionService) SeedFromFile(context.Context, string) (int64, error) {
	return 0, nil
}

func questionApp(svc service.QuestionService) *fiber.App {
	app := fiber.New()
	h := handler.NewQuestionHandler(svc, zerolog.New(io.Discard))
	app.Get("/api/v1/questions", h.List)
	app.Post("/api/v1/questions", h.Create)
	return app
}

func TestQuestionHandlerList(t *testing.T) {
	svc := &mockQuestionService{list: dto.QuestionListResponse{
		Questions:      []dto.QuestionSummary{{ID: 1, Question: "Why?", TextPreview: "Because..."}},
		TotalQuestions: 1,
	}}

	resp := doJSON(t, questionApp(svc), http.MethodGet, "/api/v1/questions", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body envelope[dto.QuestionListResponse]
	decodeResponse(t, resp, &body)
	require.Equal(t, 1, body.Data.TotalQuestions)
	require.Equal(t, "Why?", body.Data.Questions[0].Question)

	failing := &mockQuestionService{err: errors.New("db down")}
	resp = doJSON(t, questionApp(failing), http.MethodGet, "/api/v1/questions", nil)
	require.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
}

func TestQuestionHandlerCreate(t *testing.T) {
	svc := &mockQuestionService{created: dto.QuestionResponse{ID: 5}}

	resp := doJSON(t, questionApp(svc), http.MethodPost, "/api/v1/questions", dto.CreateQuestionRequest{Question: "Why?", AnswerKey: "k", Rubric: "r"})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var body envelope[dto.QuestionResponse]
	decodeResponse(t, resp, &body)
	require.Equal(t, uint(5), body.Data.ID)
	require.Equal(t, "Why?", body.Data.Question)

	invalid := &mockQuestionService{err: validator.New().Struct(dto.CreateQuestionRequest{})}
	resp = doJSON(t, questionApp(invalid), http.MethodPost, "/api/v1/questions", dto.CreateQuestionRequest{})
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

type proberStub struct {
	err error
}

func (p proberStub) Probe(context.Context) error {
	return p.err
}

func TestHealthCheckReportsGenerator(t *testing.T) {
	cfg := config.Config{AppName: "GEMA Grader", AppEnv: "test", EmbeddingProvider: "ollama"}

	cases := []struct {
		name      string
		prober    handler.Prober
		generator string
		status    string
	}{
		{name: "up", prober: proberStub{}, generator: "up", status: "ok"},
		{name: "down", prober: proberStub{err: errors.New("connection refused")}, generator: "down", status: "degraded"},
		{name: "absent", prober: nil, generator: "down", status: "degraded"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app := fiber.New()
			app.Get("/api/v1/health", handler.HealthCheck(cfg, tc.prober))

			resp := doJSON(t, app, http.MethodGet, "/api/v1/health", nil)
			require.Equal(t, fiber.StatusOK, resp.StatusCode)

			var body envelope[handler.HealthResponse]
			decodeResponse(t, resp, &body)
			require.Equal(t, tc.generator, body.Data.Generator)
			require.Equal(t, tc.status, body.Data.Status)
			require.Equal(t, "GEMA Grader", body.Data.Service)
		})
	}
}
