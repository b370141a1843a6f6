// README: Backend decorator that wraps every call in a span.
package dispatch

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"tripengine/internal/modules/order"
	"tripengine/internal/modules/trip"
	"tripengine/internal/observability"
	"tripengine/internal/types"
)

type tracedBackend struct {
	next order.Backend
}

func (b tracedBackend) ListAvailableOrders(ctx context.Context) (out []order.RawOrder, err error) {
	ctx, span := observability.StartSpan(ctx, "backend.list_available_orders")
	defer func() {
		span.SetAttributes(attribute.Int("orders", len(out)))
		observability.EndSpan(span, err)
	}()
	return b.next.ListAvailableOrders(ctx)
}

func (b tracedBackend) ListWorkerTrips(ctx context.Context, workerID types.ID) (out []order.RawOrder, err error) {
	ctx, span := observability.StartSpan(ctx, "backend.list_worker_trips", attribute.String("worker_id", string(workerID)))
	defer func() {
		span.SetAttributes(attribute.Int("trips", len(out)))
		observability.EndSpan(span, err)
	}()
	return b.next.ListWorkerTrips(ctx, workerID)
}

func (b tracedBackend) AcceptOrder(ctx context.Context, ref trip.Ref, workerID types.ID) (o order.RawOrder, err error) {
	ctx, span := observability.StartSpan(ctx, "backend.accept_order",
		attribute.String("trip", ref.String()), attribute.String("worker_id", string(workerID)))
	defer func() { observability.EndSpan(span, err) }()
	return b.next.AcceptOrder(ctx, ref, workerID)
}

func (b tracedBackend) UpdateTripStatus(ctx context.Context, ref trip.Ref, u order.StatusUpdate) (o order.RawOrder, err error) {
	ctx, span := observability.StartSpan(ctx, "backend.update_trip_status",
		attribute.String("trip", ref.String()), attribute.String("status", u.Status))
	defer func() { observability.EndSpan(span, err) }()
	return b.next.UpdateTripStatus(ctx, ref, u)
}

func (b tracedBackend) VerifyOTP(ctx context.Context, ref trip.Ref, otp string) (err error) {
	ctx, span := observability.StartSpan(ctx, "backend.verify_otp", attribute.String("trip", ref.String()))
	defer func() { observability.EndSpan(span, err) }()
	return b.next.VerifyOTP(ctx, ref, otp)
}

func (b tracedBackend) AppendEarningsLedger(ctx context.Context, e order.LedgerEntry) (err error) {
	ctx, span := observability.StartSpan(ctx, "backend.append_earnings_ledger", attribute.String("trip", e.Ref.String()))
	defer func() { observability.EndSpan(span, err) }()
	return b.next.AppendEarningsLedger(ctx, e)
}
