package grading

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/gema-grader/internal/observability"
)

// Stage is one state of a grading run.
type Stage string

// Grading run states, in the only order a run may visit them.
const (
	StageStart          Stage = "start"
	StageRubricAnalysis Stage = "rubric_analysis"
	StageSegmentation   Stage = "segmentation"
	StageRepair         Stage = "repair"
	StageScoring        Stage = "scoring"
	StageFeedback       Stage = "feedback"
	StageDone           Stage = "done"
)

var stageOrder = []Stage{StageStart, StageRubricAnalysis, StageSegmentation, StageRepair, StageScoring, StageFeedback, StageDone}

// StageError reports the state a run aborted in.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("grading aborted during %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Submission is the input of one grading run.
type Submission struct {
	StudentAnswer string
	Rubric        string
	AnswerKey     string
}

// Result is the per-segment grading outcome. It is built fresh for every run.
type Result struct {
	Scores    []int    `json:"scores"`
	MaxPoints int      `json:"max_points"`
	Incorrect []string `json:"incorrect_segments"`
}

// Total sums the per-segment scores.
func (r Result) Total() int {
	return Total(r.Scores)
}

// Outcome is what a completed run yields.
type Outcome struct {
	Result            Result
	Feedback          string
	FeedbackAvailable bool
	Rubric            RubricInfo
	StudentSegments   []string
	ReferenceSegments []string
	ScoringMethod     string
	Stages            []Stage
}

// SimilarityScorer scores student segments against reference segments.
type SimilarityScorer interface {
	Score(ctx context.Context, reference, student []string, maxPoints int) ScoreResult
}

// Pipeline sequences rubric analysis, segmentation, repair, scoring and feedback.
// It keeps no per-run state; every call to Grade allocates its own.
type Pipeline struct {
	analyzer  RubricAnalyzer
	segmenter Segmenter
	parser    *Parser
	scorer    SimilarityScorer
	feedback  FeedbackSynthesizer
	tracer    trace.Tracer
	logger    zerolog.Logger
}

// PipelineDeps groups the collaborators of a Pipeline.
type PipelineDeps struct {
	Analyzer  RubricAnalyzer
	Segmenter Segmenter
	Parser    *Parser
	Scorer    SimilarityScorer
	Feedback  FeedbackSynthesizer
}

// NewPipeline wires the grading stages together.
func NewPipeline(deps PipelineDeps, logger zerolog.Logger) *Pipeline {
	parser := deps.Parser
	if parser == nil {
		parser = NewParser(logger)
	}
	return &Pipeline{
		analyzer:  deps.Analyzer,
		segmenter: deps.Segmenter,
		parser:    parser,
		scorer:    deps.Scorer,
		feedback:  deps.Feedback,
		tracer:    otel.Tracer("github.com/noah-isme/gema-grader/internal/grading"),
		logger:    logger.With().Str("component", "grading_pipeline").Logger(),
	}
}

type run struct {
	stage   Stage
	outcome Outcome
}

func (r *run) advance(ctx context.Context, next Stage) error {
	for i, stage := range stageOrder {
		if stage != r.stage {
			continue
		}
		if i+1 >= len(stageOrder) || stageOrder[i+1] != next {
			return fmt.Errorf("illegal transition %s -> %s", r.stage, next)
		}
		break
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	r.stage = next
	r.outcome.Stages = append(r.outcome.Stages, next)
	return nil
}

// Grade runs one submission through every stage. Only unrecoverable failures, chiefly
// segment lists that cannot be decoded, abort the run; no partial outcome is returned then.
func (p *Pipeline) Grade(parent context.Context, submission Submission) (Outcome, error) {
	ctx, span := p.tracer.Start(parent, "grading.run")
	defer span.End()

	r := &run{stage: StageStart}
	outcome, err := p.grade(ctx, r, submission)
	if err != nil {
		stageErr := &StageError{Stage: r.nextStage(), Err: err}
		span.RecordError(stageErr)
		span.SetStatus(codes.Error, string(stageErr.Stage))
		observability.GradingRuns().WithLabelValues("aborted").Inc()
		p.logger.Error().Err(err).Str("stage", string(stageErr.Stage)).Msg("grading run aborted")
		return Outcome{}, stageErr
	}

	span.SetAttributes(
		attribute.Int("grading.max_points", outcome.Result.MaxPoints),
		attribute.Int("grading.score", outcome.Result.Total()),
	)
	observability.GradingRuns().WithLabelValues("completed").Inc()
	return outcome, nil
}

// nextStage is the stage a failed run was attempting to enter or complete.
func (r *run) nextStage() Stage {
	if len(r.outcome.Stages) == 0 {
		return StageRubricAnalysis
	}
	return r.stage
}

func (p *Pipeline) grade(ctx context.Context, r *run, submission Submission) (Outcome, error) {
	if err := r.advance(ctx, StageRubricAnalysis); err != nil {
		return Outcome{}, err
	}
	p.timed(ctx, StageRubricAnalysis, func(ctx context.Context) {
		r.outcome.Rubric = p.analyzer.Analyze(ctx, submission.Rubric)
	})
	if r.outcome.Rubric.Method == MethodFallback {
		observability.GradingFallbacks().WithLabelValues(string(StageRubricAnalysis)).Inc()
	}

	if err := r.advance(ctx, StageSegmentation); err != nil {
		return Outcome{}, err
	}
	var studentRaw, referenceRaw string
	var segmentErr error
	p.timed(ctx, StageSegmentation, func(ctx context.Context) {
		group, groupCtx := errgroup.WithContext(ctx)
		group.Go(func() error {
			studentRaw = p.segmenter.Segment(groupCtx, submission.StudentAnswer, r.outcome.Rubric.PartCount)
			return groupCtx.Err()
		})
		group.Go(func() error {
			referenceRaw = p.segmenter.Segment(groupCtx, submission.AnswerKey, r.outcome.Rubric.PartCount)
			return groupCtx.Err()
		})
		segmentErr = group.Wait()
	})
	if segmentErr != nil {
		return Outcome{}, segmentErr
	}

	if err := r.advance(ctx, StageRepair); err != nil {
		return Outcome{}, err
	}
	var parseErr error
	p.timed(ctx, StageRepair, func(ctx context.Context) {
		r.outcome.StudentSegments, parseErr = p.parser.ParseSegments(studentRaw)
		if parseErr != nil {
			parseErr = fmt.Errorf("student answer: %w", parseErr)
			return
		}
		r.outcome.ReferenceSegments, parseErr = p.parser.ParseSegments(referenceRaw)
		if parseErr != nil {
			parseErr = fmt.Errorf("answer key: %w", parseErr)
		}
	})
	if parseErr != nil {
		return Outcome{}, parseErr
	}

	if err := r.advance(ctx, StageScoring); err != nil {
		return Outcome{}, err
	}
	maxPoints := r.outcome.Rubric.MaxPoints
	var scored ScoreResult
	p.timed(ctx, StageScoring, func(ctx context.Context) {
		scored = p.scorer.Score(ctx, r.outcome.ReferenceSegments, r.outcome.StudentSegments, maxPoints)
	})
	if scored.Method == ScoringUnscored {
		observability.GradingFallbacks().WithLabelValues(string(StageScoring)).Inc()
	}
	r.outcome.ScoringMethod = scored.Method
	r.outcome.Result = Result{
		Scores:    scored.Scores,
		MaxPoints: maxPoints,
		Incorrect: scored.Incorrect,
	}

	if err := r.advance(ctx, StageFeedback); err != nil {
		return Outcome{}, err
	}
	p.timed(ctx, StageFeedback, func(ctx context.Context) {
		r.outcome.Feedback, r.outcome.FeedbackAvailable = p.feedback.Synthesize(ctx, FeedbackRequest{
			Scores:        r.outcome.Result.Scores,
			MaxPoints:     maxPoints,
			ReferenceText: submission.AnswerKey,
			StudentText:   submission.StudentAnswer,
			Incorrect:     r.outcome.Result.Incorrect,
		})
	})
	if !r.outcome.FeedbackAvailable {
		observability.GradingFallbacks().WithLabelValues(string(StageFeedback)).Inc()
	}

	if err := r.advance(ctx, StageDone); err != nil {
		return Outcome{}, err
	}

	p.logger.Info().
		Int("score", r.outcome.Result.Total()).
		Int("max_points", maxPoints).
		Int("student_segments", len(r.outcome.StudentSegments)).
		Int("reference_segments", len(r.outcome.ReferenceSegments)).
		Str("rubric_method", r.outcome.Rubric.Method).
		Str("scoring_method", r.outcome.ScoringMethod).
		Msg("grading run completed")

	return r.outcome, nil
}

func (p *Pipeline) timed(ctx context.Context, stage Stage, fn func(ctx context.Context)) {
	stageCtx, span := p.tracer.Start(ctx, "grading."+string(stage))
	defer span.End()

	start := time.Now()
	fn(stageCtx)
	observability.GradingStageLatency().WithLabelValues(string(stage)).Observe(time.Since(start).Seconds())
}
