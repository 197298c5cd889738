package dto

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/noah-isme/peer-eval-api/internal/models"
	"github.com/noah-isme/peer-eval-api/internal/scoring"
)

// ScoreValue is a peer score that may be unavailable. Unavailable scores are
// serialized as the string "N/A".
type ScoreValue struct {
	Value     float64
	Available bool
}

// NewScoreValue wraps a computed score.
func NewScoreValue(value float64) ScoreValue {
	return ScoreValue{Value: value, Available: true}
}

// UnavailableScore returns a score that could not be computed.
func UnavailableScore() ScoreValue {
	return ScoreValue{}
}

// Interface returns the score as fed to the injustice detector.
func (s ScoreValue) Interface() interface{} {
	if !s.Available {
		return scoring.ScoreUnavailable
	}
	return s.Value
}

// MarshalJSON implements json.Marshaler.
func (s ScoreValue) MarshalJSON() ([]byte, error) {
	if !s.Available {
		return json.Marshal(scoring.ScoreUnavailable)
	}
	return json.Marshal(s.Value)
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *ScoreValue) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*s = UnavailableScore()
		return nil
	}

	var raw interface{}
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return err
	}
	if text, ok := raw.(string); ok {
		text = strings.TrimSpace(text)
		if strings.EqualFold(text, scoring.ScoreUnavailable) {
			*s = UnavailableScore()
			return nil
		}
		raw = text
	}

	value, err := cast.ToFloat64E(raw)
	if err != nil {
		return fmt.Errorf("invalid score value %s", string(trimmed))
	}
	*s = NewScoreValue(value)
	return nil
}

// PeerEvaluationResultResponse is one student's peer score.
type PeerEvaluationResultResponse struct {
	UserInfoID          uint       `json:"user_info_id"`
	Name                string     `json:"name"`
	Group               *string    `json:"group"`
	PeerEvaluationScore ScoreValue `json:"peer_evaluation_score"`
	MateCount           int        `json:"mate_count"`
	RaterCount          int        `json:"rater_count"`
}

// NewPeerEvaluationResultResponse maps an engine result to its API shape.
func NewPeerEvaluationResultResponse(result scoring.Result) PeerEvaluationResultResponse {
	return PeerEvaluationResultResponse{
		UserInfoID:          result.UserInfoID,
		Name:                result.Name,
		Group:               result.Group,
		PeerEvaluationScore: NewScoreValue(result.PeerEvaluationScore),
		MateCount:           result.MateCount,
		RaterCount:          result.RaterCount,
	}
}

// UnavailablePeerEvaluationResult reports a student whose score could not be computed.
func UnavailablePeerEvaluationResult(student models.Student) PeerEvaluationResultResponse {
	return PeerEvaluationResultResponse{
		UserInfoID:          student.ID,
		Name:                student.Name,
		Group:               student.Group,
		PeerEvaluationScore: UnavailableScore(),
	}
}

// PeerScoresResponse lists the peer scores of an evaluation.
type PeerScoresResponse struct {
	EvaluationID uint                           `json:"evaluation_id"`
	Results      []PeerEvaluationResultResponse `json:"results"`
	GeneratedAt  time.Time                      `json:"generated_at"`
	CacheHit     bool                           `json:"cache_hit"`
}

// SaveGradesRequest optionally narrows a grading run to some students.
type SaveGradesRequest struct {
	StudentIDs []uint `json:"student_ids" validate:"omitempty,dive,gt=0"`
}

// GradeResponse serializes a persisted grade.
type GradeResponse struct {
	EvaluationID    uint      `json:"evaluation_id"`
	UserInfoID      uint      `json:"user_info_id"`
	GroupGrade      string    `json:"group_grade"`
	EvaluationGrade string    `json:"evaluation_grade"`
	FinalGrade      string    `json:"final_grade"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// NewGradeResponse maps a grade model to its API shape.
func NewGradeResponse(grade models.Grade) GradeResponse {
	return GradeResponse{
		EvaluationID:    grade.EvaluationID,
		UserInfoID:      grade.UserInfoID,
		GroupGrade:      grade.GroupGrade,
		EvaluationGrade: grade.EvaluationGrade,
		FinalGrade:      grade.FinalGrade,
		UpdatedAt:       grade.UpdatedAt,
	}
}

// NewGradeResponses maps a list of grades.
func NewGradeResponses(grades []models.Grade) []GradeResponse {
	responses := make([]GradeResponse, 0, len(grades))
	for _, grade := range grades {
		responses = append(responses, NewGradeResponse(grade))
	}
	return responses
}

// GradeFailure reports a student whose grade could not be saved.
type GradeFailure struct {
	UserInfoID uint   `json:"user_info_id"`
	Error      string `json:"error"`
}

// SaveGradesResponse summarizes a grading run.
type SaveGradesResponse struct {
	EvaluationID uint            `json:"evaluation_id"`
	Saved        []GradeResponse `json:"saved"`
	Failed       []GradeFailure  `json:"failed"`
}

// InjusticeResultInput is one score submitted for injustice detection.
// PeerEvaluationScore accepts a number or "N/A".
type InjusticeResultInput struct {
	UserInfoID          uint        `json:"user_info_id" validate:"required,gt=0"`
	Name                string      `json:"name" validate:"max=255"`
	Group               *string     `json:"group" validate:"omitempty,max=64"`
	PeerEvaluationScore interface{} `json:"peer_evaluation_score"`
}

// InjusticeRequest carries the scores to inspect.
type InjusticeRequest struct {
	Results []InjusticeResultInput `json:"results" validate:"required,dive"`
}

// InjusticeStudentResponse is a member of a flagged group.
type InjusticeStudentResponse struct {
	UserInfoID uint    `json:"user_info_id"`
	Name       string  `json:"name"`
	Score      float64 `json:"score"`
}

// InjusticeCaseResponse is a group flagged for professor review.
type InjusticeCaseResponse struct {
	Group        string                     `json:"group"`
	AverageScore float64                    `json:"average_score"`
	StudentCount int                        `json:"student_count"`
	Students     []InjusticeStudentResponse `json:"students"`
}

// NewInjusticeCaseResponses maps detector output to its API shape.
func NewInjusticeCaseResponses(cases []scoring.InjusticeCase) []InjusticeCaseResponse {
	responses := make([]InjusticeCaseResponse, 0, len(cases))
	for _, flagged := range cases {
		students := make([]InjusticeStudentResponse, 0, len(flagged.Students))
		for _, student := range flagged.Students {
			students = append(students, InjusticeStudentResponse{
				UserInfoID: student.UserInfoID,
				Name:       student.Name,
				Score:      student.Score,
			})
		}
		responses = append(responses, InjusticeCaseResponse{
			Group:        flagged.Group,
			AverageScore: flagged.AverageScore,
			StudentCount: flagged.StudentCount,
			Students:     students,
		})
	}
	return responses
}
