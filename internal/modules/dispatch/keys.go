// README: Cache key layout.
package dispatch

import (
	"tripengine/internal/modules/matching"
	"tripengine/internal/types"
)

func availablePrefix(c matching.Capability) string {
	return "available:" + string(c) + ":"
}

func availableKey(c matching.Capability, workerID types.ID) string {
	return availablePrefix(c) + string(workerID)
}

func statsKey(workerID types.ID) string {
	return "stats:" + string(workerID)
}

func historyKey(workerID types.ID) string {
	return "history:" + string(workerID)
}
