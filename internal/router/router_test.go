package router_test

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-grader/internal/config"
	"github.com/noah-isme/gema-grader/internal/dto"
	"github.com/noah-isme/gema-grader/internal/handler"
	"github.com/noah-isme/gema-grader/internal/middleware"
	"github.com/noah-isme/gema-grader/internal/router"
)

type gradingStub struct{}

func (gradingStub) Grade(context.Context, dto.GradingRequest) (dto.GradingResponse, error) {
	return dto.GradingResponse{RunID: "run"}, nil
}

func (gradingStub) GradeQuestion(context.Context, uint, dto.QuestionGradingRequest) (dto.GradingResponse, error) {
	return dto.GradingResponse{RunID: "run"}, nil
}

type questionStub struct{}

func (questionStub) List(context.Context) (dto.QuestionListResponse, error) {
	return dto.QuestionListResponse{}, nil
}

func (questionStub) Create(context.Context, dto.CreateQuestionRequest) (dto.QuestionResponse, error) {
	return dto.QuestionResponse{ID: 1}, nil
}

func (questionStub) SeedFromFile(context.Context, string) (int64, error) {
	return 0, nil
}

func newApp(withQuestions bool, secret string) *fiber.App {
	logger := zerolog.New(io.Discard)
	cfg := config.Config{AppName: "GEMA Grader", RateLimitMax: 2}

	deps := router.Dependencies{GradingHandler: handler.NewGradingHandler(gradingStub{}, logger)}
	if withQuestions {
		deps.QuestionHandler = handler.NewQuestionHandler(questionStub{}, logger)
	}
	if secret != "" {
		deps.AuthMiddleware = middleware.Authenticate(secret)
	}

	app := fiber.New()
	router.Register(app, cfg, deps)
	return app
}

func request(t *testing.T, app *fiber.App, method, path, token string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(`{"text":"a","student_answer":"a","rubric":"r","answer_key":"k"}`))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func TestRegisterExposesCoreRoutes(t *testing.T) {
	app := newApp(false, "")

	resp := request(t, app, http.MethodGet, "/api/v1/health", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "GEMA Grader", resp.Header.Get("X-Application"))

	resp = request(t, app, http.MethodPost, "/api/v1/grading", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp = request(t, app, http.MethodGet, "/metrics", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.True(t, strings.Contains(string(body), "go_goroutines"))

	resp = request(t, app, http.MethodGet, "/api/v1/questions", "")
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestRegisterRateLimitsGrading(t *testing.T) {
	app := newApp(true, "")

	require.Equal(t, fiber.StatusOK, request(t, app, http.MethodPost, "/api/v1/grading", "").StatusCode)
	require.Equal(t, fiber.StatusOK, request(t, app, http.MethodPost, "/api/v1/questions/1/grade", "").StatusCode)
	require.Equal(t, fiber.StatusTooManyRequests, request(t, app, http.MethodPost, "/api/v1/grading", "").StatusCode)
}

func TestRegisterQuestionAuthoring(t *testing.T) {
	open := newApp(true, "")
	require.Equal(t, fiber.StatusOK, request(t, open, http.MethodGet, "/api/v1/questions", "").StatusCode)
	require.Equal(t, fiber.StatusCreated, request(t, open, http.MethodPost, "/api/v1/questions", "").StatusCode)

	secured := newApp(true, "secret")
	require.Equal(t, fiber.StatusUnauthorized, request(t, secured, http.MethodPost, "/api/v1/questions", "").StatusCode)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "9", "role": "teacher"}).SignedString([]byte("secret"))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, request(t, secured, http.MethodPost, "/api/v1/questions", token).StatusCode)
	require.Equal(t, fiber.StatusOK, request(t, secured, http.MethodGet, "/api/v1/questions", "").StatusCode)
}
