package scoring

import "github.com/noah-isme/peer-eval-api/internal/models"

// IndexLatestResponses keeps the most recent response of every respondent.
// Responses created at the same instant are ordered by ID, highest wins.
func IndexLatestResponses(responses []models.Response) map[uint]models.Response {
	indexed := make(map[uint]models.Response, len(responses))
	for _, response := range responses {
		current, exists := indexed[response.UserInfoID]
		if !exists || isMoreRecent(response, current) {
			indexed[response.UserInfoID] = response
		}
	}
	return indexed
}

func isMoreRecent(candidate, current models.Response) bool {
	if candidate.CreatedAt.Equal(current.CreatedAt) {
		return candidate.ID > current.ID
	}
	return candidate.CreatedAt.After(current.CreatedAt)
}
