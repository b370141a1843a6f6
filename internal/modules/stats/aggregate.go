// README: Pure statistics over a worker's trips.
package stats

import (
	"sort"

	"tripengine/internal/modules/trip"
	"tripengine/internal/types"
)

type Stats struct {
	Total          int         `json:"total_trips"`
	Completed      int         `json:"completed_trips"`
	Active         int         `json:"active_trips"`
	Cancelled      int         `json:"cancelled_trips"`
	TotalEarnings  types.Money `json:"total_earnings"`
	AverageRating  float64     `json:"average_rating"`
	CompletionRate float64     `json:"completion_rate"`
}

// Aggregate is order-independent: earnings are integer cents and ratings are
// sorted before summing.
func Aggregate(trips []trip.Trip) Stats {
	var s Stats
	ratings := make([]float64, 0, len(trips))

	for _, t := range trips {
		s.Total++
		switch {
		case t.Status == trip.StatusCompleted:
			s.Completed++
			s.TotalEarnings += t.Fare
		case t.Status == trip.StatusCancelled:
			s.Cancelled++
		case t.Status.InProgress():
			s.Active++
		}
		if t.Rating != nil {
			ratings = append(ratings, *t.Rating)
		}
	}

	if len(ratings) > 0 {
		sort.Float64s(ratings)
		var sum float64
		for _, r := range ratings {
			sum += r
		}
		s.AverageRating = types.RoundTo(sum/float64(len(ratings)), 1)
	}
	if s.Total > 0 {
		s.CompletionRate = types.RoundTo(float64(s.Completed)/float64(s.Total)*100, 1)
	}
	return s
}
