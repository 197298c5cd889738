package scoring

import (
	"math"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cast"

	"github.com/noah-isme/peer-eval-api/internal/models"
)

const legacySeparator = "--"

// Slugify turns a criterion label into the key raters reference it by:
// lower case, whitespace runs collapsed into a single dash.
func Slugify(label string) string {
	return strings.Join(strings.Fields(strings.ToLower(label)), "-")
}

// EncodeLegacyRating renders a rating in the "ratedId--criterion--score" form.
func EncodeLegacyRating(rating models.Rating) string {
	return strings.Join([]string{
		strconv.FormatUint(uint64(rating.RatedID), 10),
		Slugify(rating.Criterion),
		strconv.FormatFloat(rating.Score, 'f', -1, 64),
	}, legacySeparator)
}

// DecodeLegacyRating parses a "ratedId--criterion--score" entry.
func DecodeLegacyRating(entry string) (models.Rating, bool) {
	parts := strings.Split(entry, legacySeparator)
	if len(parts) != 3 {
		return models.Rating{}, false
	}

	ratedID, err := strconv.ParseUint(strings.TrimSpace(parts[0]), 10, 64)
	if err != nil || ratedID == 0 {
		return models.Rating{}, false
	}

	criterion := strings.TrimSpace(parts[1])
	if criterion == "" {
		return models.Rating{}, false
	}

	score, err := cast.ToFloat64E(strings.TrimSpace(parts[2]))
	if err != nil || !isFinite(score) {
		return models.Rating{}, false
	}

	return models.Rating{RatedID: uint(ratedID), Criterion: criterion, Score: score}, true
}

// DecodeRatings returns the usable ratings of a response: structured ratings
// first, then legacy entries. Malformed entries are logged and skipped.
func DecodeRatings(response models.Response, logger zerolog.Logger) []models.Rating {
	ratings := make([]models.Rating, 0, len(response.Ratings)+len(response.Data))

	for _, rating := range response.Ratings {
		if rating.RatedID == 0 || strings.TrimSpace(rating.Criterion) == "" || !isFinite(rating.Score) {
			logger.Warn().
				Uint("response_id", response.ID).
				Uint("respondent_id", response.UserInfoID).
				Msg("skipping malformed rating")
			continue
		}
		ratings = append(ratings, rating)
	}

	for _, entry := range response.Data {
		rating, ok := DecodeLegacyRating(entry)
		if !ok {
			logger.Warn().
				Uint("response_id", response.ID).
				Uint("respondent_id", response.UserInfoID).
				Str("entry", entry).
				Msg("skipping malformed rating entry")
			continue
		}
		ratings = append(ratings, rating)
	}

	return ratings
}

func isFinite(value float64) bool {
	return !math.IsNaN(value) && !math.IsInf(value, 0)
}
