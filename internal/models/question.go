package models

import "time"

// Question is one gradable exercise: the prompt shown to students, the reading text it is
// based on, the reference answer key and the free-text rubric.
type Question struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Text      string    `gorm:"type:text" json:"text"`
	Prompt    string    `gorm:"type:text;not null" json:"question"`
	AnswerKey string    `gorm:"type:text" json:"answer"`
	Rubric    string    `gorm:"type:text" json:"rubric"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Gradable reports whether the question carries both inputs grading needs.
func (q Question) Gradable() bool {
	return q.AnswerKey != "" && q.Rubric != ""
}
