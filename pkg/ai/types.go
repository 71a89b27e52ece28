package ai

import "context"

// Options tunes a single generation call.
type Options struct {
	// MaxRetries bounds the number of attempts. Zero falls back to the client default.
	MaxRetries int
	// ResponseTokens is the token budget for the generated response.
	ResponseTokens int
	// Temperature overrides the client temperature when non-nil.
	Temperature *float32
	// Purpose labels metrics and logs ("rubric", "segment", "feedback").
	Purpose string
}

// Request is the provider-neutral payload handed to a Backend.
type Request struct {
	Prompt         string
	ResponseTokens int
	Temperature    float32
	TopP           float32
}

// Backend performs one generation attempt against a text-generation service.
type Backend interface {
	Complete(ctx context.Context, req Request) (string, error)
	Ping(ctx context.Context) error
	Model() string
}

// Generator is the contract consumed by the grading pipeline. The boolean is false
// when every attempt failed and the caller must apply its fallback.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts Options) (string, bool)
}

// Embedder turns texts into fixed-length vectors, one per input, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Float32 returns a pointer to v, for Options.Temperature.
func Float32(v float32) *float32 {
	return &v
}
