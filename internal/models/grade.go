package models

import "time"

// Grade is the persisted result of peer scoring for one student in one
// evaluation. Grades are stored as two-decimal strings.
type Grade struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	EvaluationID    uint      `gorm:"not null;uniqueIndex:idx_grades_evaluation_user" json:"evaluation_id"`
	UserInfoID      uint      `gorm:"not null;uniqueIndex:idx_grades_evaluation_user" json:"user_info_id"`
	GroupGrade      string    `gorm:"size:16;not null" json:"group_grade"`
	EvaluationGrade string    `gorm:"size:16;not null" json:"evaluation_grade"`
	FinalGrade      string    `gorm:"size:16;not null" json:"final_grade"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
