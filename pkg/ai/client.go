package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	generationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "grader",
		Subsystem: "ai",
		Name:      "generation_duration_seconds",
		Help:      "Duration of successful generation attempts",
	}, []string{"model", "purpose"})

	generationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "grader",
		Subsystem: "ai",
		Name:      "generation_failures_total",
		Help:      "Number of failed generation attempts",
	}, []string{"model", "purpose"})

	generationExhausted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "grader",
		Subsystem: "ai",
		Name:      "generation_exhausted_total",
		Help:      "Number of generation calls that ran out of attempts",
	}, []string{"model", "purpose"})
)

// ErrEmptyResponse is returned by backends that answered without any text.
var ErrEmptyResponse = errors.New("empty generation response")

// ClientConfig bounds latency and retries of the generation client.
type ClientConfig struct {
	// MaxRetries is the attempt count per call; zero selects the default of 2.
	MaxRetries   int
	Timeout      time.Duration
	ProbeTimeout time.Duration
	Temperature  float32
	TopP         float32
}

// Client wraps a Backend with per-attempt timeouts and a bounded retry loop.
// It holds no mutable state and is safe for concurrent use.
type Client struct {
	backend Backend
	cfg     ClientConfig
	tracer  trace.Tracer
	logger  zerolog.Logger
}

// NewClient builds a generation client around the backend.
func NewClient(backend Backend, cfg ClientConfig, logger zerolog.Logger) *Client {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 5 * time.Second
	}
	if cfg.TopP <= 0 {
		cfg.TopP = 0.9
	}

	return &Client{
		backend: backend,
		cfg:     cfg,
		tracer:  otel.Tracer("github.com/noah-isme/gema-grader/pkg/ai"),
		logger:  logger.With().Str("component", "generation_client").Logger(),
	}
}

// Generate sends the prompt, retrying failed attempts. It never returns an error:
// exhaustion is reported through the boolean so callers can fall back.
func (c *Client) Generate(parent context.Context, prompt string, opts Options) (string, bool) {
	if c == nil || c.backend == nil {
		return "", false
	}

	attempts := opts.MaxRetries
	if attempts <= 0 {
		attempts = c.cfg.MaxRetries
	}
	temperature := c.cfg.Temperature
	if opts.Temperature != nil {
		temperature = *opts.Temperature
	}
	purpose := opts.Purpose
	if purpose == "" {
		purpose = "generic"
	}
	model := c.backend.Model()

	ctx, span := c.tracer.Start(parent, "generation.generate", trace.WithAttributes(
		attribute.String("model", model),
		attribute.String("purpose", purpose),
		attribute.Int("max_attempts", attempts),
	))
	defer span.End()

	req := Request{
		Prompt:         prompt,
		ResponseTokens: opts.ResponseTokens,
		Temperature:    temperature,
		TopP:           c.cfg.TopP,
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			lastErr = ctx.Err()
			break
		}

		text, err := c.attempt(ctx, req, purpose)
		if err == nil {
			span.SetAttributes(attribute.Int("attempts", attempt))
			return text, true
		}

		lastErr = err
		generationFailures.WithLabelValues(model, purpose).Inc()
		c.logger.Warn().Err(err).Str("purpose", purpose).Int("attempt", attempt).Msg("generation attempt failed")
	}

	generationExhausted.WithLabelValues(model, purpose).Inc()
	if lastErr != nil {
		span.RecordError(lastErr)
		span.SetStatus(codes.Error, lastErr.Error())
	}
	c.logger.Error().Err(lastErr).Str("purpose", purpose).Msg("all generation attempts failed, using fallback")
	return "", false
}

func (c *Client) attempt(ctx context.Context, req Request, purpose string) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	start := time.Now()
	text, err := c.backend.Complete(attemptCtx, req)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyResponse
	}
	generationDuration.WithLabelValues(c.backend.Model(), purpose).Observe(time.Since(start).Seconds())
	return text, nil
}

// Probe checks that the backend is reachable within the probe timeout.
func (c *Client) Probe(ctx context.Context) error {
	if c == nil || c.backend == nil {
		return fmt.Errorf("generation backend not configured")
	}
	probeCtx, cancel := context.WithTimeout(ctx, c.cfg.ProbeTimeout)
	defer cancel()

	if err := c.backend.Ping(probeCtx); err != nil {
		return fmt.Errorf("probe %s: %w", c.backend.Model(), err)
	}
	return nil
}
