package scoring

import (
	"sort"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/cast"
)

const (
	// NoGroupLabel buckets students without a group.
	NoGroupLabel = "Sin grupo"
	// ScoreUnavailable marks a score that could not be computed.
	ScoreUnavailable = "N/A"
)

// InjusticeEntry is one student's score as fed to the detector. Score may be
// a number, a numeric string, or ScoreUnavailable.
type InjusticeEntry struct {
	UserInfoID uint
	Name       string
	Group      *string
	Score      interface{}
}

// InjusticeStudent is a member of a flagged group.
type InjusticeStudent struct {
	UserInfoID uint
	Name       string
	Score      float64
}

// InjusticeCase is a group whose mean peer score is negative.
type InjusticeCase struct {
	Group        string
	AverageScore float64
	StudentCount int
	Students     []InjusticeStudent
}

// DetectInjustice flags groups of two or more students whose mean score is
// strictly negative. Members are listed from the lowest score up.
func DetectInjustice(entries []InjusticeEntry) []InjusticeCase {
	groups := lo.GroupBy(entries, func(entry InjusticeEntry) string {
		return groupLabel(entry.Group)
	})

	cases := make([]InjusticeCase, 0)
	for group, members := range groups {
		if len(members) <= 1 {
			continue
		}

		students := lo.Map(members, func(entry InjusticeEntry, _ int) InjusticeStudent {
			return InjusticeStudent{
				UserInfoID: entry.UserInfoID,
				Name:       entry.Name,
				Score:      CoerceScore(entry.Score),
			}
		})

		average := lo.SumBy(students, func(student InjusticeStudent) float64 {
			return student.Score
		}) / float64(len(students))
		if average >= 0 {
			continue
		}

		sort.SliceStable(students, func(i, j int) bool {
			return students[i].Score < students[j].Score
		})

		cases = append(cases, InjusticeCase{
			Group:        group,
			AverageScore: average,
			StudentCount: len(students),
			Students:     students,
		})
	}

	sort.Slice(cases, func(i, j int) bool {
		if cases[i].AverageScore != cases[j].AverageScore {
			return cases[i].AverageScore < cases[j].AverageScore
		}
		return cases[i].Group < cases[j].Group
	})

	return cases
}

// CoerceScore converts a score value to a number. ScoreUnavailable and values
// that are not numeric count as zero.
func CoerceScore(value interface{}) float64 {
	if text, ok := value.(string); ok {
		text = strings.TrimSpace(text)
		if text == "" || strings.EqualFold(text, ScoreUnavailable) {
			return 0
		}
		value = text
	}

	score, err := cast.ToFloat64E(value)
	if err != nil || !isFinite(score) {
		return 0
	}
	return score
}

func groupLabel(group *string) string {
	if group == nil {
		return NoGroupLabel
	}
	trimmed := strings.TrimSpace(*group)
	if trimmed == "" {
		return NoGroupLabel
	}
	return trimmed
}
