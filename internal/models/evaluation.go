package models

import (
	"time"

	"gorm.io/datatypes"
)

// QuestionTypeLinear marks a rating question scored on a linear scale.
const QuestionTypeLinear = "linear"

// Criterion is one weighted rating dimension of a linear question.
type Criterion struct {
	Label  string  `json:"label"`
	Weight float64 `json:"weight"`
}

// Question is an evaluation prompt. Only linear questions carry criteria.
type Question struct {
	ID       string      `json:"id"`
	Type     string      `json:"type"`
	Title    string      `json:"title"`
	Criteria []Criterion `json:"criteria,omitempty"`
}

// Evaluation is a peer evaluation authored by a professor for a course.
type Evaluation struct {
	ID           uint                          `gorm:"primaryKey" json:"id"`
	CourseID     uint                          `gorm:"not null;index" json:"course_id"`
	Title        string                        `gorm:"size:255;not null" json:"title"`
	Instructions string                        `gorm:"type:text" json:"instructions"`
	Deadline     *time.Time                    `json:"deadline"`
	Questions    datatypes.JSONSlice[Question] `json:"questions"`
	Sections     datatypes.JSONSlice[string]   `json:"sections"`
	CreatedAt    time.Time                     `json:"created_at"`
	UpdatedAt    time.Time                     `json:"updated_at"`
}
