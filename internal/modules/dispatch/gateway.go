// README: Adapts the order backend to the trip state machine.
package dispatch

import (
	"context"

	"tripengine/internal/modules/order"
	"tripengine/internal/modules/trip"
	"tripengine/internal/types"
)

type gateway struct {
	backend    order.Backend
	normalizer order.Normalizer
}

func (g gateway) Accept(ctx context.Context, ref trip.Ref, workerID types.ID) (trip.Trip, error) {
	raw, err := g.backend.AcceptOrder(ctx, ref, workerID)
	if err != nil {
		return trip.Trip{}, err
	}
	return g.normalizer.Normalize(raw), nil
}

func (g gateway) UpdateStatus(ctx context.Context, ref trip.Ref, to trip.Status, p trip.Payload) (trip.Trip, error) {
	raw, err := g.backend.UpdateTripStatus(ctx, ref, order.StatusUpdate{
		Status:       order.ToBackendStatus(ref.Kind, to),
		Rating:       p.Rating,
		CancelReason: string(p.CancelReason),
		ActorID:      p.Actor,
	})
	if err != nil {
		return trip.Trip{}, err
	}
	return g.normalizer.Normalize(raw), nil
}

func (g gateway) VerifyOTP(ctx context.Context, ref trip.Ref, otp string) error {
	return g.backend.VerifyOTP(ctx, ref, otp)
}
