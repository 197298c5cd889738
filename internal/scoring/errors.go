package scoring

import "errors"

var (
	// ErrNoResponses indicates an evaluation has no responses to score from.
	ErrNoResponses = errors.New("no responses found for this evaluation")
	// ErrNoScoringQuestion indicates the evaluation has no linear question.
	ErrNoScoringQuestion = errors.New("evaluation has no linear scoring question")
	// ErrInvalidCriteria indicates the scoring question cannot produce a weighted average.
	ErrInvalidCriteria = errors.New("scoring question criteria are invalid")
	// ErrInvalidScale indicates the rating scale constants are inconsistent.
	ErrInvalidScale = errors.New("rating scale is invalid")
)
