package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/peer-eval-api/internal/models"
)

// GradeRepository persists peer-scored grades, one row per evaluation and student.
type GradeRepository interface {
	GetByEvaluationAndUser(ctx context.Context, evaluationID, userInfoID uint) (models.Grade, error)
	ListByEvaluation(ctx context.Context, evaluationID uint) ([]models.Grade, error)
	Upsert(ctx context.Context, grade *models.Grade) error
}

type gradeRepository struct {
	db *gorm.DB
}

// NewGradeRepository constructs a grade repository.
func NewGradeRepository(db *gorm.DB) GradeRepository {
	return &gradeRepository{db: db}
}

func (r *gradeRepository) GetByEvaluationAndUser(ctx context.Context, evaluationID, userInfoID uint) (models.Grade, error) {
	var grade models.Grade
	if err := r.db.WithContext(ctx).
		Where("evaluation_id = ? AND user_info_id = ?", evaluationID, userInfoID).
		First(&grade).Error; err != nil {
		return models.Grade{}, err
	}

	return grade, nil
}

func (r *gradeRepository) ListByEvaluation(ctx context.Context, evaluationID uint) ([]models.Grade, error) {
	var grades []models.Grade
	if err := r.db.WithContext(ctx).
		Where("evaluation_id = ?", evaluationID).
		Order("user_info_id ASC").
		Find(&grades).Error; err != nil {
		return nil, err
	}

	return grades, nil
}

// Upsert inserts the grade or overwrites the existing row for the same
// evaluation and student.
func (r *gradeRepository) Upsert(ctx context.Context, grade *models.Grade) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "evaluation_id"}, {Name: "user_info_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"group_grade", "evaluation_grade", "final_grade", "updated_at"}),
	}).Create(grade).Error
}
