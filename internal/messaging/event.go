// README: Trip lifecycle events published to the configured broker.
package messaging

import (
	"time"

	"tripengine/internal/modules/trip"
	"tripengine/internal/types"
)

type EventType string

const (
	EventTripAccepted     EventType = "trip.accepted"
	EventTripTransitioned EventType = "trip.transitioned"
	EventAcceptLost       EventType = "trip.accept_lost"
	EventWorkerOnline     EventType = "worker.online"
	EventWorkerOffline    EventType = "worker.offline"
)

type Event struct {
	ID       types.ID    `json:"id"`
	Type     EventType   `json:"type"`
	TripID   types.ID    `json:"trip_id,omitempty"`
	Kind     trip.Kind   `json:"kind,omitempty"`
	WorkerID types.ID    `json:"worker_id"`
	From     trip.Status `json:"from,omitempty"`
	Status   trip.Status `json:"status,omitempty"`
	Fare     types.Money `json:"fare,omitempty"`
	At       time.Time   `json:"at"`
}

func NewEvent(typ EventType, workerID types.ID, at time.Time) Event {
	return Event{ID: types.NewID(), Type: typ, WorkerID: workerID, At: at.UTC()}
}

// RoutingKey is the broker routing key / partition key for e.
func (e Event) RoutingKey() string {
	if e.Kind == "" {
		return string(e.Type)
	}
	return string(e.Type) + "." + string(e.Kind)
}

// Key groups a trip's events on one partition.
func (e Event) Key() []byte {
	if e.TripID != "" {
		return []byte(string(e.Kind) + "/" + string(e.TripID))
	}
	return []byte(e.WorkerID)
}
