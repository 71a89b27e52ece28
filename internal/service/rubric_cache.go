package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-grader/internal/grading"
)

type cachedRubricAnalyzer struct {
	next   grading.RubricAnalyzer
	cache  *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// NewCachedRubricAnalyzer memoises generator-derived rubric analyses in Redis. Fallback
// results are not cached so a recovered generator can refine them on the next request.
func NewCachedRubricAnalyzer(next grading.RubricAnalyzer, cache *redis.Client, ttl time.Duration, logger zerolog.Logger) grading.RubricAnalyzer {
	if cache == nil {
		return next
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &cachedRubricAnalyzer{
		next:   next,
		cache:  cache,
		ttl:    ttl,
		logger: logger.With().Str("component", "rubric_cache").Logger(),
	}
}

func (a *cachedRubricAnalyzer) Analyze(ctx context.Context, rubric string) grading.RubricInfo {
	key := rubricCacheKey(rubric)

	cached, err := a.cache.Get(ctx, key).Result()
	switch {
	case err == nil:
		var info grading.RubricInfo
		if jsonErr := json.Unmarshal([]byte(cached), &info); jsonErr == nil && info.MaxPoints > 0 && info.PartCount > 0 {
			return info
		}
		a.logger.Warn().Str("key", key).Msg("discarding unreadable rubric cache entry")
	case !errors.Is(err, redis.Nil):
		a.logger.Warn().Err(err).Msg("rubric cache lookup failed")
	}

	info := a.next.Analyze(ctx, rubric)
	if info.Method != grading.MethodLLM {
		return info
	}

	payload, err := json.Marshal(info)
	if err != nil {
		return info
	}
	if err := a.cache.Set(ctx, key, payload, a.ttl).Err(); err != nil {
		a.logger.Warn().Err(err).Msg("failed to cache rubric analysis")
	}
	return info
}

func rubricCacheKey(rubric string) string {
	sum := sha256.Sum256([]byte(rubric))
	return "grader:rubric:v1:" + hex.EncodeToString(sum[:])
}
