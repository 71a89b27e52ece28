package grading

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestSegmenterClosesTruncatedArray(t *testing.T) {
	generator := newScriptedGenerator().on("segment", func(string) (string, bool) {
		return "  [{\"point1\": \"First, a\"}, {\"point2\": \"Second, b\"}\n", true
	})
	segmenter := NewSegmenter(generator, 0, zerolog.Nop())

	raw := segmenter.Segment(context.Background(), "First, a. Second, b.", 2)
	require.Equal(t, `[{"point1": "First, a"}, {"point2": "Second, b"}]`, raw)

	segments, err := NewParser(zerolog.Nop()).ParseSegments(raw)
	require.NoError(t, err)
	require.Equal(t, []string{"First, a", "Second, b"}, segments)
}

func TestSegmenterKeepsCompleteArray(t *testing.T) {
	generator := newScriptedGenerator().on("segment", func(string) (string, bool) {
		return `[{"point1": "whole text"}]`, true
	})

	raw := NewSegmenter(generator, 0, zerolog.Nop()).Segment(context.Background(), "whole text", 1)
	require.Equal(t, `[{"point1": "whole text"}]`, raw)
}

func TestSegmenterPromptCarriesTextAndPartCount(t *testing.T) {
	var seen string
	generator := newScriptedGenerator().on("segment", func(prompt string) (string, bool) {
		seen = prompt
		return `[{"point1": "x"}]`, true
	})

	NewSegmenter(generator, 0, zerolog.Nop()).Segment(context.Background(), "Firstly, water boils.", 4)
	require.Contains(t, seen, "Firstly, water boils.")
	require.Contains(t, seen, "THERE ARE 4 parts total")
}

func TestSegmenterFallsBackToWholeText(t *testing.T) {
	text := `He said "hello" twice`

	absent := NewSegmenter(newScriptedGenerator(), 0, zerolog.Nop()).Segment(context.Background(), text, 2)
	segments, err := NewParser(zerolog.Nop()).ParseSegments(absent)
	require.NoError(t, err)
	require.Equal(t, []string{text}, segments)

	noGenerator := NewSegmenter(nil, 0, zerolog.Nop()).Segment(context.Background(), text, 2)
	require.Equal(t, absent, noGenerator)
}
