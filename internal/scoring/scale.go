package scoring

import (
	"fmt"
	"math"
)

// Scale describes the rating scale raters use and the symmetric range peer
// scores are mapped onto. The neutral value maps to exactly zero.
type Scale struct {
	Min         float64
	Neutral     float64
	Max         float64
	OutputBound float64
}

// DefaultScale is the five point "much less than expected" to "much more than
// expected" scale, mapped onto [-1, 1].
func DefaultScale() Scale {
	return Scale{Min: 1, Neutral: 3, Max: 5, OutputBound: 1}
}

// Validate reports whether the scale can be used for rescaling.
func (s Scale) Validate() error {
	values := []float64{s.Min, s.Neutral, s.Max, s.OutputBound}
	for _, value := range values {
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return fmt.Errorf("%w: non-finite bound", ErrInvalidScale)
		}
	}
	if !(s.Min < s.Neutral && s.Neutral < s.Max) {
		return fmt.Errorf("%w: expected min < neutral < max, got %v/%v/%v", ErrInvalidScale, s.Min, s.Neutral, s.Max)
	}
	if s.OutputBound <= 0 {
		return fmt.Errorf("%w: output bound must be positive", ErrInvalidScale)
	}
	return nil
}

// Rescale maps an aggregated rating onto [-OutputBound, OutputBound].
func (s Scale) Rescale(aggregate float64) float64 {
	span := s.Neutral - s.Min
	score := (aggregate - s.Neutral) * (s.OutputBound / span)
	return clamp(score, -s.OutputBound, s.OutputBound)
}

// ClampRating keeps a single rating inside the scale.
func (s Scale) ClampRating(value float64) float64 {
	return clamp(value, s.Min, s.Max)
}

func clamp(value, lower, upper float64) float64 {
	if value < lower {
		return lower
	}
	if value > upper {
		return upper
	}
	return value
}
