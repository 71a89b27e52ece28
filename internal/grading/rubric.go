package grading

import (
	"context"
	"regexp"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-grader/pkg/ai"
)

const (
	// MethodLLM marks rubric values extracted from generator output.
	MethodLLM = "llm"
	// MethodFallback marks rubric values substituted from configured defaults.
	MethodFallback = "fallback"
)

var (
	pointsPattern = regexp.MustCompile(`(?i)points?\s*:?\s*(\d+)`)
	partsPattern  = regexp.MustCompile(`(?i)parts?\s*:?\s*(\d+)`)
)

// RubricInfo is the score ceiling and expected segment count derived from a rubric.
type RubricInfo struct {
	MaxPoints int    `json:"max_points"`
	PartCount int    `json:"part_count"`
	Method    string `json:"method"`
}

// RubricAnalyzer derives RubricInfo from free-text rubrics. Implementations never fail.
type RubricAnalyzer interface {
	Analyze(ctx context.Context, rubric string) RubricInfo
}

// RubricDefaults are substituted when extraction fails.
type RubricDefaults struct {
	MaxPoints int
	PartCount int
}

type rubricAnalyzer struct {
	generator ai.Generator
	defaults  RubricDefaults
	tokens    int
	logger    zerolog.Logger
}

// NewRubricAnalyzer builds an analyzer issuing one short generation call per rubric.
func NewRubricAnalyzer(generator ai.Generator, defaults RubricDefaults, responseTokens int, logger zerolog.Logger) RubricAnalyzer {
	if defaults.MaxPoints <= 0 {
		defaults.MaxPoints = 3
	}
	if defaults.PartCount <= 0 {
		defaults.PartCount = 3
	}
	if responseTokens <= 0 {
		responseTokens = 100
	}

	return &rubricAnalyzer{
		generator: generator,
		defaults:  defaults,
		tokens:    responseTokens,
		logger:    logger.With().Str("component", "rubric_analyzer").Logger(),
	}
}

func (a *rubricAnalyzer) Analyze(ctx context.Context, rubric string) RubricInfo {
	fallback := RubricInfo{MaxPoints: a.defaults.MaxPoints, PartCount: a.defaults.PartCount, Method: MethodFallback}

	if a.generator == nil {
		return fallback
	}

	response, ok := a.generator.Generate(ctx, rubricPrompt(rubric), ai.Options{ResponseTokens: a.tokens, Purpose: "rubric"})
	if !ok {
		a.logger.Warn().Msg("rubric generation absent, using defaults")
		return fallback
	}

	points, pointsOK := extractPositive(pointsPattern, response)
	parts, partsOK := extractPositive(partsPattern, response)
	if !pointsOK || !partsOK {
		a.logger.Warn().Str("response", response).Msg("rubric response missing points or parts, using defaults")
		return fallback
	}

	a.logger.Debug().Int("max_points", points).Int("part_count", parts).Msg("rubric analysed")
	return RubricInfo{MaxPoints: points, PartCount: parts, Method: MethodLLM}
}

func extractPositive(pattern *regexp.Regexp, text string) (int, bool) {
	match := pattern.FindStringSubmatch(text)
	if len(match) < 2 {
		return 0, false
	}
	value, err := strconv.Atoi(match[1])
	if err != nil || value <= 0 {
		return 0, false
	}
	return value, true
}
