package scoring

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func stringPtr(value string) *string {
	return &value
}

func TestCombineDefaultsGroupGrade(t *testing.T) {
	grade := Combine(nil, -1.0)
	require.Equal(t, GradeValues{GroupGrade: "4.00", EvaluationGrade: "-1.00", FinalGrade: "3.00"}, grade)
}

func TestCombineWithStoredGroupGrade(t *testing.T) {
	grade := Combine(stringPtr("5.5"), 0.25)
	require.Equal(t, "5.50", grade.GroupGrade)
	require.Equal(t, "0.25", grade.EvaluationGrade)
	require.Equal(t, "5.75", grade.FinalGrade)

	grade = Combine(stringPtr("6,2"), -0.333)
	require.Equal(t, "6.20", grade.GroupGrade)
	require.Equal(t, "-0.33", grade.EvaluationGrade)
	require.Equal(t, "5.87", grade.FinalGrade)
}

func TestCombineFallsBackOnUnparseableGroupGrade(t *testing.T) {
	for _, raw := range []string{"", "  ", "pendiente"} {
		grade := Combine(stringPtr(raw), 0.5)
		require.Equal(t, "4.00", grade.GroupGrade, raw)
		require.Equal(t, "4.50", grade.FinalGrade, raw)
	}
}

func TestCombineNeverPrintsNegativeZero(t *testing.T) {
	grade := Combine(nil, -0.001)
	require.Equal(t, "0.00", grade.EvaluationGrade)
	require.Equal(t, "4.00", grade.FinalGrade)
}

func TestCombineIsIdempotent(t *testing.T) {
	combiner := NewCombiner(3.5)
	first := combiner.Combine(nil, 0.4)
	second := combiner.Combine(nil, 0.4)
	require.Equal(t, first, second)
	require.Equal(t, "3.50", first.GroupGrade)
	require.Equal(t, "3.90", first.FinalGrade)
}
