package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/peer-eval-api/internal/models"
)

// ResponseRepository reads student submissions of an evaluation.
type ResponseRepository interface {
	ListByEvaluation(ctx context.Context, evaluationID uint) ([]models.Response, error)
}

type responseRepository struct {
	db *gorm.DB
}

// NewResponseRepository constructs a response repository.
func NewResponseRepository(db *gorm.DB) ResponseRepository {
	return &responseRepository{db: db}
}

func (r *responseRepository) ListByEvaluation(ctx context.Context, evaluationID uint) ([]models.Response, error) {
	var responses []models.Response
	if err := r.db.WithContext(ctx).
		Where("evaluation_id = ?", evaluationID).
		Order("created_at DESC, id DESC").
		Find(&responses).Error; err != nil {
		return nil, err
	}

	return responses, nil
}
