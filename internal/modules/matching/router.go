// README: Routes normalized trips to the workers whose capability serves them.
package matching

import "tripengine/internal/modules/trip"

// Route keeps the trips c is allowed to see, preserving their order.
func Route(trips []trip.Trip, c Capability) []trip.Trip {
	out := make([]trip.Trip, 0, len(trips))
	for _, t := range trips {
		if c.Admits(t.OrderKind) {
			out = append(out, t)
		}
	}
	return out
}
