// README: Earnings summaries by calendar period.
package stats

import (
	"time"

	"tripengine/internal/modules/trip"
	"tripengine/internal/types"
)

type EarningsSummary struct {
	Today      types.Money               `json:"today"`
	Week       types.Money               `json:"week"`
	Month      types.Money               `json:"month"`
	Lifetime   types.Money               `json:"lifetime"`
	TripsToday int                       `json:"trips_today"`
	ByKind     map[trip.Kind]types.Money `json:"by_kind"`
}

// Earnings buckets completed trips by CompletedAt in loc. Weeks start on
// Monday. Completed trips without a timestamp count toward Lifetime only.
func Earnings(trips []trip.Trip, now time.Time, loc *time.Location) EarningsSummary {
	if loc == nil {
		loc = time.UTC
	}
	now = now.In(loc)
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	weekStart := dayStart.AddDate(0, 0, -((int(dayStart.Weekday()) + 6) % 7))
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)

	out := EarningsSummary{ByKind: make(map[trip.Kind]types.Money)}

	for _, t := range trips {
		if t.Status != trip.StatusCompleted {
			continue
		}
		c := t.Fare
		out.Lifetime += c
		out.ByKind[t.OrderKind] += c
		if t.CompletedAt == nil {
			continue
		}
		at := t.CompletedAt.In(loc)
		if at.After(now) {
			continue
		}
		if !at.Before(dayStart) {
			out.Today += c
			out.TripsToday++
		}
		if !at.Before(weekStart) {
			out.Week += c
		}
		if !at.Before(monthStart) {
			out.Month += c
		}
	}

	return out
}
