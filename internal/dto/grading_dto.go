package dto

// GradingRequest grades a free-text answer against an inline rubric and answer key.
type GradingRequest struct {
	StudentAnswer string `json:"student_answer" validate:"required,max=20000"`
	Rubric        string `json:"rubric" validate:"required,max=10000"`
	AnswerKey     string `json:"answer_key" validate:"required,max=20000"`
}

// QuestionGradingRequest grades a free-text answer against a stored question.
type QuestionGradingRequest struct {
	Text string `json:"text" validate:"required,max=20000"`
}

// SegmentsResponse exposes the segment texts scoring operated on.
type SegmentsResponse struct {
	Student   []string `json:"student"`
	Reference []string `json:"reference"`
}

// GradingResponse is the outcome of one grading run.
type GradingResponse struct {
	QuestionID     *uint            `json:"question_id,omitempty"`
	RunID          string           `json:"run_id"`
	Score          int              `json:"score"`
	MaxScore       int              `json:"max_score"`
	DetailedScores []int            `json:"detailed_scores"`
	IncorrectParts []string         `json:"incorrect_parts"`
	Feedback       *string          `json:"feedback"`
	RubricMethod   string           `json:"rubric_method"`
	ScoringMethod  string           `json:"scoring_method"`
	Segments       SegmentsResponse `json:"segments"`
}

// GradingEvent is published after every completed run.
type GradingEvent struct {
	RunID             string `json:"run_id"`
	QuestionID        *uint  `json:"question_id,omitempty"`
	Score             int    `json:"score"`
	MaxScore          int    `json:"max_score"`
	IncorrectCount    int    `json:"incorrect_count"`
	FeedbackAvailable bool   `json:"feedback_available"`
	GradedAt          string `json:"graded_at"`
}
