package repository

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/noah-isme/peer-eval-api/internal/models"
)

// StudentRepository provides access to course rosters and group membership.
type StudentRepository interface {
	GetByID(ctx context.Context, id uint) (models.Student, error)
	ListByCourse(ctx context.Context, courseID uint) ([]models.Student, error)
	ListGroupMates(ctx context.Context, courseID, studentID uint) ([]models.Student, error)
}

type studentRepository struct {
	db *gorm.DB
}

// NewStudentRepository constructs a student repository.
func NewStudentRepository(db *gorm.DB) StudentRepository {
	return &studentRepository{db: db}
}

func (r *studentRepository) GetByID(ctx context.Context, id uint) (models.Student, error) {
	var student models.Student
	if err := r.db.WithContext(ctx).First(&student, id).Error; err != nil {
		return models.Student{}, err
	}

	return student, nil
}

func (r *studentRepository) ListByCourse(ctx context.Context, courseID uint) ([]models.Student, error) {
	var students []models.Student
	if err := r.db.WithContext(ctx).
		Where("course_id = ?", courseID).
		Order("id ASC").
		Find(&students).Error; err != nil {
		return nil, err
	}

	return students, nil
}

// ListGroupMates returns the other members of the student's group in the
// course. Students without a group have no mates.
func (r *studentRepository) ListGroupMates(ctx context.Context, courseID, studentID uint) ([]models.Student, error) {
	student, err := r.GetByID(ctx, studentID)
	if err != nil {
		return nil, err
	}

	group := student.GroupName()
	if group == "" {
		return []models.Student{}, nil
	}

	var mates []models.Student
	if err := r.db.WithContext(ctx).
		Where("course_id = ? AND id <> ? AND TRIM(group_name) = ?", courseID, studentID, strings.TrimSpace(group)).
		Order("id ASC").
		Find(&mates).Error; err != nil {
		return nil, err
	}

	return mates, nil
}
