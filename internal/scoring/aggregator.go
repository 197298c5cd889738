package scoring

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/noah-isme/peer-eval-api/internal/models"
)

// Result is the peer score computed for one student.
type Result struct {
	UserInfoID          uint
	Name                string
	Group               *string
	PeerEvaluationScore float64
	MateCount           int
	RaterCount          int
}

// Engine converts peer ratings into bounded scores. It performs no I/O and
// holds no mutable state, so one Engine can serve concurrent callers.
type Engine struct {
	scale  Scale
	logger zerolog.Logger
}

// NewEngine builds a scoring engine for the given scale.
func NewEngine(scale Scale, logger zerolog.Logger) (*Engine, error) {
	if err := scale.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		scale:  scale,
		logger: logger.With().Str("component", "scoring_engine").Logger(),
	}, nil
}

// Scale returns the scale the engine rescales onto.
func (e *Engine) Scale() Scale {
	return e.scale
}

// ScoringQuestion returns the first linear question of the evaluation.
func (e *Engine) ScoringQuestion(evaluation models.Evaluation) (models.Question, error) {
	question, found := lo.Find([]models.Question(evaluation.Questions), func(q models.Question) bool {
		return strings.EqualFold(strings.TrimSpace(q.Type), models.QuestionTypeLinear)
	})
	if !found {
		return models.Question{}, ErrNoScoringQuestion
	}

	if len(question.Criteria) == 0 {
		return models.Question{}, fmt.Errorf("%w: question %q has no criteria", ErrInvalidCriteria, question.ID)
	}

	var weightSum float64
	for _, criterion := range question.Criteria {
		if criterion.Weight < 0 || !isFinite(criterion.Weight) {
			return models.Question{}, fmt.Errorf("%w: criterion %q has weight %v", ErrInvalidCriteria, criterion.Label, criterion.Weight)
		}
		weightSum += criterion.Weight
	}
	if weightSum <= 0 {
		return models.Question{}, fmt.Errorf("%w: question %q weights sum to zero", ErrInvalidCriteria, question.ID)
	}

	return question, nil
}

// ComputePeerScore scores one student from the latest responses of the given
// group mates.
func (e *Engine) ComputePeerScore(evaluation models.Evaluation, student models.Student, mates []models.Student, indexed map[uint]models.Response) (Result, error) {
	question, err := e.ScoringQuestion(evaluation)
	if err != nil {
		return Result{}, err
	}

	ratings := make(map[uint][]models.Rating, len(mates))
	for _, mate := range mates {
		if response, ok := indexed[mate.ID]; ok {
			ratings[mate.ID] = DecodeRatings(response, e.logger)
		}
	}

	return e.score(question, student, mates, ratings), nil
}

// ComputePeerScores scores every target against its group mates in roster.
// One result is returned per target, in the order given.
func (e *Engine) ComputePeerScores(evaluation models.Evaluation, roster []models.Student, targets []models.Student, indexed map[uint]models.Response) ([]Result, error) {
	if len(indexed) == 0 {
		return nil, ErrNoResponses
	}

	question, err := e.ScoringQuestion(evaluation)
	if err != nil {
		return nil, err
	}

	ratings := make(map[uint][]models.Rating, len(indexed))
	for respondentID, response := range indexed {
		ratings[respondentID] = DecodeRatings(response, e.logger)
	}

	results := make([]Result, 0, len(targets))
	for _, target := range targets {
		results = append(results, e.score(question, target, GroupMates(target, roster), ratings))
	}

	return results, nil
}

// GroupMates returns the roster members sharing the student's group,
// excluding the student. Students without a group have no mates.
func GroupMates(student models.Student, roster []models.Student) []models.Student {
	group := student.GroupName()
	if group == "" {
		return nil
	}

	return lo.Filter(roster, func(candidate models.Student, _ int) bool {
		return candidate.ID != student.ID && candidate.GroupName() == group
	})
}

func (e *Engine) score(question models.Question, student models.Student, mates []models.Student, ratingsByRespondent map[uint][]models.Rating) Result {
	result := Result{
		UserInfoID: student.ID,
		Name:       student.Name,
		Group:      student.Group,
	}

	peers := lo.UniqBy(lo.Filter(mates, func(mate models.Student, _ int) bool {
		return mate.ID != student.ID
	}), func(mate models.Student) uint {
		return mate.ID
	})
	result.MateCount = len(peers)
	if len(peers) == 0 {
		return result
	}

	sums := make(map[string]float64, len(question.Criteria))
	counts := make(map[string]int, len(question.Criteria))
	for _, mate := range peers {
		ratings, responded := ratingsByRespondent[mate.ID]
		if !responded {
			continue
		}
		given := e.ratingsFor(student.ID, ratings)
		if len(given) > 0 {
			result.RaterCount++
		}
		for slug, value := range given {
			sums[slug] += value
			counts[slug]++
		}
	}

	mateCount := float64(len(peers))
	var weighted, weightSum float64
	for _, criterion := range question.Criteria {
		slug := Slugify(criterion.Label)
		total := sums[slug]
		if missing := len(peers) - counts[slug]; missing > 0 {
			total += float64(missing) * e.scale.Neutral
		}
		weighted += (total / mateCount) * criterion.Weight
		weightSum += criterion.Weight
	}

	result.PeerEvaluationScore = e.scale.Rescale(weighted / weightSum)
	return result
}

// ratingsFor collects one rating per criterion slug given to target. When a
// respondent rated the same criterion twice, the last entry wins.
func (e *Engine) ratingsFor(targetID uint, ratings []models.Rating) map[string]float64 {
	given := make(map[string]float64)
	for _, rating := range ratings {
		if rating.RatedID != targetID {
			continue
		}
		given[Slugify(rating.Criterion)] = e.scale.ClampRating(rating.Score)
	}
	return given
}
