package ai

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
)

// OllamaConfig defines connection details for an Ollama server.
type OllamaConfig struct {
	URL        string
	Model      string
	HTTPClient *http.Client
}

// OllamaBackend generates text through the Ollama /api/generate endpoint.
type OllamaBackend struct {
	client *api.Client
	model  string
}

func newOllamaClient(cfg OllamaConfig) (*api.Client, error) {
	raw := strings.TrimSpace(cfg.URL)
	if raw == "" {
		raw = "http://localhost:11434"
	}
	base, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse ollama url: %w", err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return api.NewClient(base, httpClient), nil
}

// NewOllamaBackend builds a generation backend using the provided configuration.
func NewOllamaBackend(cfg OllamaConfig) (*OllamaBackend, error) {
	if cfg.Model == "" {
		cfg.Model = "llama3:8b"
	}
	client, err := newOllamaClient(cfg)
	if err != nil {
		return nil, err
	}
	return &OllamaBackend{client: client, model: cfg.Model}, nil
}

// Model returns the configured model name.
func (o *OllamaBackend) Model() string {
	return o.model
}

// Complete issues one non-streaming generate request.
func (o *OllamaBackend) Complete(ctx context.Context, req Request) (string, error) {
	stream := false
	options := map[string]interface{}{
		"temperature": req.Temperature,
		"top_p":       req.TopP,
	}
	if req.ResponseTokens > 0 {
		options["num_predict"] = req.ResponseTokens
	}

	generate := api.GenerateRequest{
		Model:   o.model,
		Prompt:  req.Prompt,
		Stream:  &stream,
		Options: options,
	}

	var builder strings.Builder
	err := o.client.Generate(ctx, &generate, func(resp api.GenerateResponse) error {
		_, err := builder.WriteString(resp.Response)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("ollama generate: %w", err)
	}

	return builder.String(), nil
}

// Ping lists local models, which doubles as a liveness check.
func (o *OllamaBackend) Ping(ctx context.Context) error {
	if _, err := o.client.List(ctx); err != nil {
		return fmt.Errorf("ollama list models: %w", err)
	}
	return nil
}

// OllamaEmbedder produces embeddings through the Ollama /api/embed endpoint.
type OllamaEmbedder struct {
	client *api.Client
	model  string
}

// NewOllamaEmbedder builds an embedder sharing the Ollama connection settings.
func NewOllamaEmbedder(cfg OllamaConfig) (*OllamaEmbedder, error) {
	if cfg.Model == "" {
		cfg.Model = "nomic-embed-text"
	}
	client, err := newOllamaClient(cfg)
	if err != nil {
		return nil, err
	}
	return &OllamaEmbedder{client: client, model: cfg.Model}, nil
}

// Embed encodes all texts in one batch request.
func (e *OllamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	resp, err := e.client.Embed(ctx, &api.EmbedRequest{
		Model: e.model,
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama embed returned %d vectors for %d inputs", len(resp.Embeddings), len(texts))
	}

	return resp.Embeddings, nil
}
