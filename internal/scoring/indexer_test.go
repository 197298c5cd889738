package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/peer-eval-api/internal/models"
)

func TestIndexLatestResponses(t *testing.T) {
	base := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	responses := []models.Response{
		{ID: 1, UserInfoID: 10, CreatedAt: base},
		{ID: 2, UserInfoID: 10, CreatedAt: base.Add(time.Hour)},
		{ID: 3, UserInfoID: 10, CreatedAt: base.Add(30 * time.Minute)},
		{ID: 4, UserInfoID: 20, CreatedAt: base},
	}

	indexed := IndexLatestResponses(responses)
	require.Len(t, indexed, 2)
	require.Equal(t, uint(2), indexed[10].ID)
	require.Equal(t, uint(4), indexed[20].ID)
	_, ok := indexed[30]
	require.False(t, ok)
}

func TestIndexLatestResponsesTieBreaksOnID(t *testing.T) {
	at := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

	forward := IndexLatestResponses([]models.Response{
		{ID: 5, UserInfoID: 10, CreatedAt: at},
		{ID: 8, UserInfoID: 10, CreatedAt: at},
	})
	backward := IndexLatestResponses([]models.Response{
		{ID: 8, UserInfoID: 10, CreatedAt: at},
		{ID: 5, UserInfoID: 10, CreatedAt: at},
	})

	require.Equal(t, uint(8), forward[10].ID)
	require.Equal(t, uint(8), backward[10].ID)
}

func TestIndexLatestResponsesEmpty(t *testing.T) {
	require.Empty(t, IndexLatestResponses(nil))
}
