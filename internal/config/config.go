package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the grading service. It is read once at
// startup and never mutated afterwards.
type Config struct {
	AppName string
	AppEnv  string
	AppPort string

	GeneratorProvider     string
	GeneratorURL          string
	GeneratorModel        string
	OpenAIAPIKey          string
	GeneratorMaxRetries   int
	GeneratorTimeout      time.Duration
	GeneratorProbeTimeout time.Duration
	GeneratorTemperature  float32
	GeneratorTopP         float32
	RubricTokens          int
	SegmentTokens         int
	FeedbackTokens        int

	EmbeddingProvider string
	EmbeddingURL      string
	EmbeddingModel    string
	EmbeddingTimeout  time.Duration

	DefaultPoints      int
	DefaultParts       int
	FullMatchThreshold float64
	MatchThreshold     float64

	DatabaseURL    string
	DatabaseDriver string
	SeedFile       string

	RedisURL       string
	RubricCacheTTL time.Duration

	NATSURL     string
	NATSSubject string

	JWTSecret string

	RateLimitMax    int
	RateLimitWindow time.Duration
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("GRADER")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)
	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "GEMA Grader")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")

	v.SetDefault("generator.provider", "ollama")
	v.SetDefault("generator.url", "")
	v.SetDefault("generator.model", "")
	v.SetDefault("generator.max_retries", 2)
	v.SetDefault("generator.timeout", "30s")
	v.SetDefault("generator.probe_timeout", "5s")
	v.SetDefault("generator.temperature", 0.1)
	v.SetDefault("generator.top_p", 0.9)
	v.SetDefault("generator.rubric_tokens", 100)
	v.SetDefault("generator.segment_tokens", 10000)
	v.SetDefault("generator.feedback_tokens", 1000)

	v.SetDefault("embedding.provider", "ollama")
	v.SetDefault("embedding.url", "")
	v.SetDefault("embedding.model", "")
	v.SetDefault("embedding.timeout", "30s")

	v.SetDefault("grading.default_points", 3)
	v.SetDefault("grading.default_parts", 3)
	v.SetDefault("grading.full_match_threshold", 0.8)
	v.SetDefault("grading.match_threshold", 0.7)

	v.SetDefault("database.url", "")
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("seed.file", "")
	v.SetDefault("redis.url", "")
	v.SetDefault("rubric_cache.ttl", "24h")
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.subject", "grading.completed")
	v.SetDefault("jwt.secret", "")
	v.SetDefault("openai_api_key", "")

	v.SetDefault("rate_limit.max", 20)
	v.SetDefault("rate_limit.window", "1m")
}

func fromViper(v *viper.Viper) (Config, error) {
	durations := map[string]time.Duration{}
	for _, key := range []string{"generator.timeout", "generator.probe_timeout", "embedding.timeout", "rubric_cache.ttl", "rate_limit.window"} {
		value, err := time.ParseDuration(v.GetString(key))
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", key, err)
		}
		if value <= 0 {
			return Config{}, fmt.Errorf("%s must be positive", key)
		}
		durations[key] = value
	}

	cfg := Config{
		AppName: v.GetString("app.name"),
		AppEnv:  v.GetString("app.env"),
		AppPort: v.GetString("app.port"),

		GeneratorProvider:     strings.ToLower(v.GetString("generator.provider")),
		GeneratorURL:          v.GetString("generator.url"),
		GeneratorModel:        v.GetString("generator.model"),
		OpenAIAPIKey:          v.GetString("openai_api_key"),
		GeneratorMaxRetries:   v.GetInt("generator.max_retries"),
		GeneratorTimeout:      durations["generator.timeout"],
		GeneratorProbeTimeout: durations["generator.probe_timeout"],
		GeneratorTemperature:  float32(v.GetFloat64("generator.temperature")),
		GeneratorTopP:         float32(v.GetFloat64("generator.top_p")),
		RubricTokens:          v.GetInt("generator.rubric_tokens"),
		SegmentTokens:         v.GetInt("generator.segment_tokens"),
		FeedbackTokens:        v.GetInt("generator.feedback_tokens"),

		EmbeddingProvider: strings.ToLower(v.GetString("embedding.provider")),
		EmbeddingURL:      v.GetString("embedding.url"),
		EmbeddingModel:    v.GetString("embedding.model"),
		EmbeddingTimeout:  durations["embedding.timeout"],

		DefaultPoints:      v.GetInt("grading.default_points"),
		DefaultParts:       v.GetInt("grading.default_parts"),
		FullMatchThreshold: v.GetFloat64("grading.full_match_threshold"),
		MatchThreshold:     v.GetFloat64("grading.match_threshold"),

		DatabaseURL:    v.GetString("database.url"),
		DatabaseDriver: strings.ToLower(v.GetString("database.driver")),
		SeedFile:       v.GetString("seed.file"),

		RedisURL:       v.GetString("redis.url"),
		RubricCacheTTL: durations["rubric_cache.ttl"],

		NATSURL:     v.GetString("nats.url"),
		NATSSubject: v.GetString("nats.subject"),

		JWTSecret: v.GetString("jwt.secret"),

		RateLimitMax:    v.GetInt("rate_limit.max"),
		RateLimitWindow: durations["rate_limit.window"],
	}

	if cfg.EmbeddingURL == "" && cfg.EmbeddingProvider == cfg.GeneratorProvider {
		cfg.EmbeddingURL = cfg.GeneratorURL
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.GeneratorProvider {
	case "ollama":
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("openai generator requires an api key")
		}
	default:
		return fmt.Errorf("unsupported generator provider %q", c.GeneratorProvider)
	}

	switch c.EmbeddingProvider {
	case "ollama", "none":
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("openai embedding requires an api key")
		}
	default:
		return fmt.Errorf("unsupported embedding provider %q", c.EmbeddingProvider)
	}

	switch c.DatabaseDriver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q", c.DatabaseDriver)
	}

	if c.GeneratorMaxRetries < 1 {
		return fmt.Errorf("generator max retries must be at least 1")
	}
	if c.DefaultPoints <= 0 || c.DefaultParts <= 0 {
		return fmt.Errorf("grading defaults must be positive")
	}
	if c.MatchThreshold <= 0 || c.MatchThreshold > 1 || c.FullMatchThreshold <= 0 || c.FullMatchThreshold > 1 {
		return fmt.Errorf("grading thresholds must be in (0, 1]")
	}
	if c.RateLimitMax <= 0 {
		return fmt.Errorf("rate limit max must be positive")
	}
	return nil
}
