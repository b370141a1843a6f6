// README: Order backend contract shared by the Postgres and in-memory stores.
package order

import (
	"context"
	"errors"
	"time"

	"tripengine/internal/modules/trip"
	"tripengine/internal/types"
)

// ErrExists is returned by Create when the kind/id pair is taken.
var ErrExists = errors.New("order already exists")

// Backend is the authoritative order store. Accept is a compare-and-set:
// exactly one concurrent caller wins, the rest get trip.ErrAlreadyAssigned.
type Backend interface {
	ListAvailableOrders(ctx context.Context) ([]RawOrder, error)
	ListWorkerTrips(ctx context.Context, workerID types.ID) ([]RawOrder, error)
	AcceptOrder(ctx context.Context, ref trip.Ref, workerID types.ID) (RawOrder, error)
	UpdateTripStatus(ctx context.Context, ref trip.Ref, u StatusUpdate) (RawOrder, error)
	VerifyOTP(ctx context.Context, ref trip.Ref, otp string) error
	AppendEarningsLedger(ctx context.Context, e LedgerEntry) error
}

// StatusUpdate carries a backend-vocabulary status plus the fields that
// travel with it.
type StatusUpdate struct {
	Status       string
	Rating       *float64
	CancelReason string
	ActorID      types.ID
}

// LedgerEntry is one completed-trip earning. Appends are idempotent per trip.
type LedgerEntry struct {
	ID        types.ID
	WorkerID  types.ID
	Ref       trip.Ref
	Amount    types.Money
	CreatedAt time.Time
}

type Event struct {
	ID         int64
	Ref        trip.Ref
	FromStatus string
	ToStatus   string
	ActorType  string
	ActorID    *types.ID
	CreatedAt  time.Time
}

// terminalBackendStatuses covers both vocabularies.
var terminalBackendStatuses = []string{"completed", "delivered", "cancelled"}

func isTerminalBackend(s string) bool {
	for _, t := range terminalBackendStatuses {
		if s == t {
			return true
		}
	}
	return false
}

// checkBackendTransition validates a stored-to-requested move in backend words.
func checkBackendTransition(kind trip.Kind, from, to string) error {
	if isTerminalBackend(from) {
		return trip.ErrTripClosed
	}
	if !trip.CanTransition(kind, MachineStatus(kind, from), MachineStatus(kind, to)) {
		return trip.ErrInvalidTransition
	}
	return nil
}
