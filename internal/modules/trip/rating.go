// README: Rating strategies used when a completed trip carries no rating.
package trip

import (
	"math/rand/v2"

	"tripengine/internal/types"
)

type RatingStrategy interface {
	Rate(t Trip) float64
}

// UniformRating draws a rating uniformly from [Min, Max] with one decimal.
type UniformRating struct {
	Min float64
	Max float64
}

func DefaultRating() UniformRating {
	return UniformRating{Min: 4.0, Max: 5.0}
}

func (u UniformRating) Rate(Trip) float64 {
	v := u.Min + rand.Float64()*(u.Max-u.Min)
	return types.RoundTo(v, 1)
}

type FixedRating float64

func (f FixedRating) Rate(Trip) float64 { return float64(f) }
