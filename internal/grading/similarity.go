package grading

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-grader/pkg/ai"
)

// Scoring methods reported alongside the scores.
const (
	ScoringMutualBest = "mutual_best"
	ScoringSingle     = "single"
	ScoringUnscored   = "unscored"
)

var (
	// ErrDimensionMismatch indicates two embeddings of different lengths were compared.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	// ErrNonFiniteSimilarity indicates an embedding held NaN or infinite components.
	ErrNonFiniteSimilarity = errors.New("non-finite similarity")
)

// Matrix holds cosine similarities; rows are student segments, columns reference segments.
type Matrix [][]float64

// Shape returns the row and column counts.
func (m Matrix) Shape() (int, int) {
	if len(m) == 0 {
		return 0, 0
	}
	return len(m), len(m[0])
}

// RowArgmax returns the column holding the largest value in row i. Ties go to the lowest index.
func (m Matrix) RowArgmax(i int) (int, float64) {
	best, value := 0, math.Inf(-1)
	for j, v := range m[i] {
		if v > value {
			best, value = j, v
		}
	}
	return best, value
}

// ColArgmax returns the row holding the largest value in column j. Ties go to the lowest index.
func (m Matrix) ColArgmax(j int) int {
	best, value := 0, math.Inf(-1)
	for i := range m {
		if m[i][j] > value {
			best, value = i, m[i][j]
		}
	}
	return best
}

// Cosine returns the cosine similarity of a and b clamped to [-1, 1]. Zero vectors score 0;
// NaN or infinite components that make the result non-finite yield ErrNonFiniteSimilarity.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}
	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}
	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if math.IsNaN(sim) || math.IsInf(sim, 0) {
		return 0, ErrNonFiniteSimilarity
	}
	return math.Max(-1, math.Min(1, sim)), nil
}

// NewMatrix computes the pairwise similarity of every student and reference vector.
func NewMatrix(student, reference [][]float32) (Matrix, error) {
	matrix := make(Matrix, len(student))
	for i, s := range student {
		row := make([]float64, len(reference))
		for j, r := range reference {
			sim, err := Cosine(s, r)
			if err != nil {
				return nil, err
			}
			row[j] = sim
		}
		matrix[i] = row
	}
	return matrix, nil
}

// Thresholds configure the similarity cut-offs.
type Thresholds struct {
	// FullMatch applies to the single-segment-per-side case, which is all or nothing.
	FullMatch float64
	// Match applies per segment in the mutual-best-match case.
	Match float64
}

// DefaultThresholds returns the standard cut-offs.
func DefaultThresholds() Thresholds {
	return Thresholds{FullMatch: 0.8, Match: 0.7}
}

// ScoreResult is the per-segment outcome of one scoring call.
type ScoreResult struct {
	Scores    []int
	Incorrect []string
	Matrix    Matrix
	Method    string
}

// ScoreMatrix applies the scoring policy to a precomputed matrix. The matrix must have
// one row per student segment.
func ScoreMatrix(matrix Matrix, student []string, maxPoints int, th Thresholds) ScoreResult {
	rows, cols := matrix.Shape()
	result := ScoreResult{
		Scores:    make([]int, len(student)),
		Incorrect: []string{},
		Matrix:    matrix,
		Method:    ScoringMutualBest,
	}

	if rows == 0 || cols == 0 {
		result.Incorrect = append(result.Incorrect, student...)
		return result
	}

	if rows == 1 && cols == 1 {
		result.Method = ScoringSingle
		if matrix[0][0] > th.FullMatch {
			result.Scores[0] = maxPoints
		} else {
			result.Incorrect = append(result.Incorrect, student[0])
		}
		return result
	}

	for i := 0; i < rows; i++ {
		j, value := matrix.RowArgmax(i)
		if matrix.ColArgmax(j) == i && value > th.Match {
			result.Scores[i] = 1
			continue
		}
		result.Incorrect = append(result.Incorrect, student[i])
	}
	return result
}

// Scorer embeds segment sequences and scores student segments against the reference.
type Scorer struct {
	embedder   ai.Embedder
	thresholds Thresholds
	logger     zerolog.Logger
}

// NewScorer builds a scorer. A nil embedder yields all-zero scores.
func NewScorer(embedder ai.Embedder, thresholds Thresholds, logger zerolog.Logger) *Scorer {
	if thresholds.FullMatch == 0 && thresholds.Match == 0 {
		thresholds = DefaultThresholds()
	}
	return &Scorer{
		embedder:   embedder,
		thresholds: thresholds,
		logger:     logger.With().Str("component", "similarity_scorer").Logger(),
	}
}

// Score embeds both sequences through the same embedder and applies ScoreMatrix.
// Embedding failures degrade to all-zero scores instead of failing the run.
func (s *Scorer) Score(ctx context.Context, reference, student []string, maxPoints int) ScoreResult {
	if len(reference) == 0 || len(student) == 0 {
		return ScoreMatrix(Matrix{}, student, maxPoints, s.thresholds)
	}

	if s.embedder == nil {
		s.logger.Warn().Msg("no embedding backend configured, scoring all segments as zero")
		return unscored(student)
	}

	texts := make([]string, 0, len(student)+len(reference))
	texts = append(texts, student...)
	texts = append(texts, reference...)

	vectors, err := s.embedder.Embed(ctx, texts)
	if err == nil && len(vectors) != len(texts) {
		err = fmt.Errorf("embedder returned %d vectors for %d segments", len(vectors), len(texts))
	}
	if err != nil {
		s.logger.Warn().Err(err).Msg("embedding failed, scoring all segments as zero")
		return unscored(student)
	}

	matrix, err := NewMatrix(vectors[:len(student)], vectors[len(student):])
	if err != nil {
		s.logger.Warn().Err(err).Msg("similarity matrix failed, scoring all segments as zero")
		return unscored(student)
	}

	return ScoreMatrix(matrix, student, maxPoints, s.thresholds)
}

func unscored(student []string) ScoreResult {
	incorrect := make([]string, len(student))
	copy(incorrect, student)
	return ScoreResult{
		Scores:    make([]int, len(student)),
		Incorrect: incorrect,
		Matrix:    Matrix{},
		Method:    ScoringUnscored,
	}
}
