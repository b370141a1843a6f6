// README: Trip history views.
package stats

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"tripengine/internal/modules/trip"
)

type Filter string

const (
	FilterAll       Filter = "all"
	FilterCompleted Filter = "completed"
	FilterCancelled Filter = "cancelled"
)

func ParseFilter(s string) (Filter, error) {
	switch f := Filter(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FilterAll, nil
	case FilterAll, FilterCompleted, FilterCancelled:
		return f, nil
	default:
		return "", fmt.Errorf("unknown history filter %q", s)
	}
}

// History returns the terminal trips matching f, most recent first. Ties keep
// their input order.
func History(trips []trip.Trip, f Filter) []trip.Trip {
	out := make([]trip.Trip, 0, len(trips))
	for _, t := range trips {
		if !t.Status.Terminal() {
			continue
		}
		if f == FilterCompleted && t.Status != trip.StatusCompleted {
			continue
		}
		if f == FilterCancelled && t.Status != trip.StatusCancelled {
			continue
		}
		out = append(out, t.Clone())
	}
	sort.SliceStable(out, func(i, j int) bool {
		return sortTime(out[i]).After(sortTime(out[j]))
	})
	return out
}

func sortTime(t trip.Trip) time.Time {
	if t.CompletedAt != nil {
		return *t.CompletedAt
	}
	if t.AcceptedAt != nil {
		return *t.AcceptedAt
	}
	return time.Time{}
}
