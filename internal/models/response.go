package models

import (
	"time"

	"gorm.io/datatypes"
)

// Rating is a single score a respondent gave to a classmate on one criterion.
type Rating struct {
	RatedID   uint    `json:"rated_id"`
	Criterion string  `json:"criterion"`
	Score     float64 `json:"score"`
}

// Response is one submission of an evaluation by a respondent. Data holds
// entries in the legacy "ratedId--criterion--score" encoding, Ratings the
// structured form.
type Response struct {
	ID           uint                        `gorm:"primaryKey" json:"id"`
	EvaluationID uint                        `gorm:"not null;index" json:"evaluation_id"`
	UserInfoID   uint                        `gorm:"not null;index" json:"user_info_id"`
	Data         datatypes.JSONSlice[string] `json:"data"`
	Ratings      datatypes.JSONSlice[Rating] `json:"ratings"`
	CreatedAt    time.Time                   `json:"created_at"`
}
