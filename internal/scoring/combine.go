package scoring

import (
	"math"
	"strconv"
	"strings"

	"github.com/spf13/cast"
)

// DefaultGroupGrade is the baseline group grade used when none was stored,
// the minimum passing grade.
const DefaultGroupGrade = 4.0

// GradeValues are the three grade columns, formatted with two decimals.
type GradeValues struct {
	GroupGrade      string
	EvaluationGrade string
	FinalGrade      string
}

// Combiner merges a stored group grade with a peer score.
type Combiner struct {
	baseline float64
}

// NewCombiner returns a combiner that falls back to baseline when no group
// grade is available.
func NewCombiner(baseline float64) Combiner {
	if !isFinite(baseline) {
		baseline = DefaultGroupGrade
	}
	return Combiner{baseline: baseline}
}

// Combine uses the default baseline.
func Combine(previousGroupGrade *string, peerScore float64) GradeValues {
	return NewCombiner(DefaultGroupGrade).Combine(previousGroupGrade, peerScore)
}

// Combine adds the peer score to the group grade. The final grade is the sum
// of the two already rounded components.
func (c Combiner) Combine(previousGroupGrade *string, peerScore float64) GradeValues {
	group := round2(c.groupGrade(previousGroupGrade))
	evaluation := 0.0
	if isFinite(peerScore) {
		evaluation = round2(peerScore)
	}

	return GradeValues{
		GroupGrade:      formatGrade(group),
		EvaluationGrade: formatGrade(evaluation),
		FinalGrade:      formatGrade(round2(group + evaluation)),
	}
}

func (c Combiner) groupGrade(previous *string) float64 {
	if previous == nil {
		return c.baseline
	}
	raw := strings.ReplaceAll(strings.TrimSpace(*previous), ",", ".")
	if raw == "" {
		return c.baseline
	}
	value, err := cast.ToFloat64E(raw)
	if err != nil || !isFinite(value) {
		return c.baseline
	}
	return value
}

func round2(value float64) float64 {
	rounded := math.Round(value*100) / 100
	if rounded == 0 {
		return 0
	}
	return rounded
}

func formatGrade(value float64) string {
	return strconv.FormatFloat(value, 'f', 2, 64)
}
