package grading

import (
	"context"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-grader/pkg/ai"
)

// FullCreditMessage is returned without a generation call when every point was earned.
const FullCreditMessage = "Full marks: your answer covers every point of the answer key."

// FeedbackSynthesizer turns scoring results into short corrective feedback.
type FeedbackSynthesizer interface {
	// Synthesize returns false when feedback could not be produced.
	Synthesize(ctx context.Context, req FeedbackRequest) (string, bool)
}

// FeedbackRequest carries everything the feedback prompt is conditioned on.
type FeedbackRequest struct {
	Scores        []int
	MaxPoints     int
	ReferenceText string
	StudentText   string
	Incorrect     []string
}

type feedbackSynthesizer struct {
	generator ai.Generator
	tokens    int
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
}

// NewFeedbackSynthesizer builds a synthesizer backed by the generator.
func NewFeedbackSynthesizer(generator ai.Generator, responseTokens int, logger zerolog.Logger) FeedbackSynthesizer {
	if responseTokens <= 0 {
		responseTokens = 1000
	}
	return &feedbackSynthesizer{
		generator: generator,
		tokens:    responseTokens,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger.With().Str("component", "feedback_synthesizer").Logger(),
	}
}

func (f *feedbackSynthesizer) Synthesize(ctx context.Context, req FeedbackRequest) (string, bool) {
	if Total(req.Scores) == req.MaxPoints {
		return FullCreditMessage, true
	}
	if f.generator == nil {
		return "", false
	}

	prompt := feedbackPrompt(req.ReferenceText, req.StudentText, req.Incorrect)
	response, ok := f.generator.Generate(ctx, prompt, ai.Options{ResponseTokens: f.tokens, Purpose: "feedback"})
	if !ok {
		f.logger.Warn().Msg("feedback generation absent")
		return "", false
	}

	clean := strings.TrimSpace(f.sanitizer.Sanitize(response))
	if clean == "" {
		return "", false
	}
	return clean, true
}

// Total sums per-segment scores.
func Total(scores []int) int {
	total := 0
	for _, score := range scores {
		total += score
	}
	return total
}
