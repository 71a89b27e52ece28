package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gema-grader/internal/models"
)

// QuestionRepository persists gradable questions.
type QuestionRepository interface {
	List(ctx context.Context) ([]models.Question, error)
	GetByID(ctx context.Context, id uint) (models.Question, error)
	Create(ctx context.Context, question *models.Question) error
	UpsertBatch(ctx context.Context, questions []models.Question) (int64, error)
}

type questionRepository struct {
	db *gorm.DB
}

// NewQuestionRepository constructs a repository backed by GORM.
func NewQuestionRepository(db *gorm.DB) QuestionRepository {
	return &questionRepository{db: db}
}

func (r *questionRepository) List(ctx context.Context) ([]models.Question, error) {
	var questions []models.Question
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&questions).Error; err != nil {
		return nil, err
	}
	return questions, nil
}

func (r *questionRepository) GetByID(ctx context.Context, id uint) (models.Question, error) {
	var question models.Question
	err := r.db.WithContext(ctx).First(&question, id).Error
	return question, err
}

func (r *questionRepository) Create(ctx context.Context, question *models.Question) error {
	return r.db.WithContext(ctx).Create(question).Error
}

// UpsertBatch writes questions with their corpus ids. On Postgres the id sequence is moved
// past the highest id afterwards so later Create calls do not collide with seeded rows.
func (r *questionRepository) UpsertBatch(ctx context.Context, questions []models.Question) (int64, error) {
	if len(questions) == 0 {
		return 0, nil
	}

	var affected int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"text", "prompt", "answer_key", "rubric", "updated_at"}),
		}).Create(&questions)
		if result.Error != nil {
			return result.Error
		}
		affected = result.RowsAffected

		if tx.Dialector.Name() != "postgres" {
			return nil
		}
		return tx.Exec(resyncQuestionIDSequence).Error
	})
	if err != nil {
		return 0, err
	}
	return affected, nil
}

const resyncQuestionIDSequence = `SELECT setval(pg_get_serial_sequence('questions', 'id'), (SELECT MAX(id) FROM questions))`
