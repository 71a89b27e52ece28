package dto

import "github.com/noah-isme/gema-grader/internal/models"

// QuestionPreviewLength is the rune count of reading text shown in question listings.
const QuestionPreviewLength = 200

// QuestionSummary lists a question without its answer key or rubric.
type QuestionSummary struct {
	ID          uint   `json:"id"`
	Question    string `json:"question"`
	TextPreview string `json:"text_preview"`
}

// QuestionListResponse wraps the available questions.
type QuestionListResponse struct {
	Questions      []QuestionSummary `json:"questions"`
	TotalQuestions int               `json:"total_questions"`
}

// CreateQuestionRequest authors a gradable question.
type CreateQuestionRequest struct {
	Text      string `json:"text" validate:"max=50000"`
	Question  string `json:"question" validate:"required,max=2000"`
	AnswerKey string `json:"answer" validate:"required,max=20000"`
	Rubric    string `json:"rubric" validate:"required,max=10000"`
}

// QuestionResponse is the full question as returned to authors.
type QuestionResponse struct {
	ID        uint   `json:"id"`
	Text      string `json:"text"`
	Question  string `json:"question"`
	AnswerKey string `json:"answer"`
	Rubric    string `json:"rubric"`
}

// NewQuestionSummary builds the listing entry for a question.
func NewQuestionSummary(question models.Question) QuestionSummary {
	return QuestionSummary{
		ID:          question.ID,
		Question:    question.Prompt,
		TextPreview: previewText(question.Text, QuestionPreviewLength),
	}
}

// NewQuestionResponse maps a stored question to its author view.
func NewQuestionResponse(question models.Question) QuestionResponse {
	return QuestionResponse{
		ID:        question.ID,
		Text:      question.Text,
		Question:  question.Prompt,
		AnswerKey: question.AnswerKey,
		Rubric:    question.Rubric,
	}
}

func previewText(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}
