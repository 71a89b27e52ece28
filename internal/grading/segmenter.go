package grading

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-grader/pkg/ai"
)

// Segmenter asks the generator to split an answer into ordered topical segments.
// It returns raw, unrepaired generator text in the array-of-single-key-objects format.
type Segmenter interface {
	Segment(ctx context.Context, text string, expectedParts int) string
}

type segmenter struct {
	generator ai.Generator
	tokens    int
	logger    zerolog.Logger
}

// NewSegmenter builds a segmenter issuing one generation call per text.
func NewSegmenter(generator ai.Generator, responseTokens int, logger zerolog.Logger) Segmenter {
	if responseTokens <= 0 {
		responseTokens = 10000
	}
	return &segmenter{
		generator: generator,
		tokens:    responseTokens,
		logger:    logger.With().Str("component", "segmenter").Logger(),
	}
}

// Segment falls back to the whole text as one segment when the generator is absent.
func (s *segmenter) Segment(ctx context.Context, text string, expectedParts int) string {
	if expectedParts <= 0 {
		expectedParts = 1
	}

	if s.generator == nil {
		return SingleSegment(text)
	}

	response, ok := s.generator.Generate(ctx, segmentPrompt(text, expectedParts), ai.Options{ResponseTokens: s.tokens, Purpose: "segment"})
	if !ok {
		s.logger.Warn().Msg("segmentation generation absent, treating text as one segment")
		return SingleSegment(text)
	}

	return closeArray(response)
}

// closeArray appends the array terminator the generator tends to drop under token pressure.
func closeArray(response string) string {
	trimmed := strings.TrimSpace(response)
	if !strings.HasSuffix(trimmed, "]") {
		trimmed += "]"
	}
	return trimmed
}
