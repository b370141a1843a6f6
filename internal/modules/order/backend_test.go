// README: Behaviour shared by every Backend implementation (run with -race).
package order

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"tripengine/internal/modules/trip"
	"tripengine/internal/types"
)

type testBackend interface {
	Backend
	Create(ctx context.Context, o RawOrder, otp string) error
	Get(ctx context.Context, ref trip.Ref) (RawOrder, int, error)
	Events(ctx context.Context, ref trip.Ref) ([]Event, error)
}

func runBackendSuite(t *testing.T, newBackend func(t *testing.T) testBackend) {
	t.Run("ConcurrentAcceptSameOrder", func(t *testing.T) {
		testConcurrentAcceptSameOrder(t, newBackend(t))
	})
	t.Run("ConcurrentAcceptVsCancel", func(t *testing.T) {
		testConcurrentAcceptVsCancel(t, newBackend(t))
	})
	t.Run("AcceptUnknownOrder", func(t *testing.T) {
		b := newBackend(t)
		_, err := b.AcceptOrder(context.Background(), trip.Ref{Kind: trip.KindTaxi, ID: "missing"}, "d1")
		if !errors.Is(err, trip.ErrNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
	})
	t.Run("StatusFlow", func(t *testing.T) {
		testStatusFlow(t, newBackend(t))
	})
	t.Run("DeliveryVocabulary", func(t *testing.T) {
		testDeliveryVocabulary(t, newBackend(t))
	})
	t.Run("VerifyOTP", func(t *testing.T) {
		testVerifyOTP(t, newBackend(t))
	})
	t.Run("Listings", func(t *testing.T) {
		testListings(t, newBackend(t))
	})
}

func createTaxi(t *testing.T, b testBackend, id string) trip.Ref {
	t.Helper()
	fare := 150.0
	o := &TaxiOrder{
		Common:         Common{OrderID: types.ID(id), Fare: &fare},
		PickupLocation: &Location{Address: "A St"},
		Dropoff:        "B Ave",
	}
	if err := b.Create(context.Background(), o, ""); err != nil {
		t.Fatalf("create order: %v", err)
	}
	return trip.Ref{Kind: trip.KindTaxi, ID: types.ID(id)}
}

func testConcurrentAcceptSameOrder(t *testing.T, b testBackend) {
	ctx := context.Background()
	ref := createTaxi(t, b, "multi_accept")

	const attempts = 8
	var wg sync.WaitGroup
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(did types.ID) {
			defer wg.Done()
			_, err := b.AcceptOrder(ctx, ref, did)
			errs <- err
		}(types.ID(fmt.Sprintf("d%d", i)))
	}
	wg.Wait()
	close(errs)

	success := 0
	for err := range errs {
		if err == nil {
			success++
			continue
		}
		if !errors.Is(err, trip.ErrAlreadyAssigned) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if success != 1 {
		t.Fatalf("expected exactly 1 success, got %d", success)
	}

	o, version, err := b.Get(ctx, ref)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if o.Base().Status != "accepted" {
		t.Fatalf("unexpected final status: %s", o.Base().Status)
	}
	if o.Base().WorkerID == "" {
		t.Fatalf("expected worker_id to be set")
	}
	if version != 1 {
		t.Fatalf("expected version 1, got %d", version)
	}
}

func testConcurrentAcceptVsCancel(t *testing.T, b testBackend) {
	ctx := context.Background()
	ref := createTaxi(t, b, "accept_cancel")

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := b.AcceptOrder(ctx, ref, "d1")
		errs <- err
	}()
	go func() {
		defer wg.Done()
		_, err := b.UpdateTripStatus(ctx, ref, StatusUpdate{Status: "cancelled", CancelReason: "customer_cancelled"})
		errs <- err
	}()
	wg.Wait()
	close(errs)

	success := 0
	for err := range errs {
		if err == nil {
			success++
			continue
		}
		if !errors.Is(err, trip.ErrAlreadyAssigned) && !errors.Is(err, trip.ErrInvalidTransition) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if success < 1 || success > 2 {
		t.Fatalf("expected 1 or 2 successes, got %d", success)
	}

	o, _, err := b.Get(ctx, ref)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	status := o.Base().Status
	if success == 2 && status != "cancelled" {
		t.Fatalf("expected cancelled after accept+cancel, got %s", status)
	}
	if status != "accepted" && status != "cancelled" {
		t.Fatalf("unexpected final status: %s", status)
	}
}

func testStatusFlow(t *testing.T, b testBackend) {
	ctx := context.Background()
	ref := createTaxi(t, b, "flow")

	if _, err := b.AcceptOrder(ctx, ref, "d1"); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := b.UpdateTripStatus(ctx, ref, StatusUpdate{Status: "riding", ActorID: "d1"}); !errors.Is(err, trip.ErrInvalidTransition) {
		t.Fatalf("accepted -> riding: expected invalid transition, got %v", err)
	}
	for _, s := range []string{"active", "riding"} {
		if _, err := b.UpdateTripStatus(ctx, ref, StatusUpdate{Status: s, ActorID: "d1"}); err != nil {
			t.Fatalf("-> %s: %v", s, err)
		}
	}
	rating := 4.5
	o, err := b.UpdateTripStatus(ctx, ref, StatusUpdate{Status: "completed", Rating: &rating, ActorID: "d1"})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	c := o.Base()
	if c.Status != "completed" || c.Rating == nil || *c.Rating != 4.5 || c.CompletedAt == nil {
		t.Fatalf("unexpected completed order: %+v", c)
	}
	if _, err := b.UpdateTripStatus(ctx, ref, StatusUpdate{Status: "cancelled", CancelReason: "other"}); !errors.Is(err, trip.ErrTripClosed) {
		t.Fatalf("expected closed trip, got %v", err)
	}

	events, err := b.Events(ctx, ref)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	want := [][2]string{
		{"pending", "accepted"},
		{"accepted", "active"},
		{"active", "riding"},
		{"riding", "completed"},
	}
	if len(events) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(events))
	}
	for i, e := range events {
		if e.FromStatus != want[i][0] || e.ToStatus != want[i][1] {
			t.Fatalf("event %d: got %s -> %s", i, e.FromStatus, e.ToStatus)
		}
		if e.ActorID == nil || *e.ActorID != "d1" {
			t.Fatalf("event %d: expected actor d1", i)
		}
	}
}

func testDeliveryVocabulary(t *testing.T, b testBackend) {
	ctx := context.Background()
	o := &FoodOrder{Common: Common{OrderID: "food1"}, RestaurantName: "Noodle Bar"}
	if err := b.Create(ctx, o, ""); err != nil {
		t.Fatalf("create: %v", err)
	}
	ref := trip.Ref{Kind: trip.KindFood, ID: "food1"}

	if _, err := b.AcceptOrder(ctx, ref, "r1"); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := b.UpdateTripStatus(ctx, ref, StatusUpdate{Status: "active"}); err != nil {
		t.Fatalf("active: %v", err)
	}
	// Direct hand-off skips out_for_delivery.
	got, err := b.UpdateTripStatus(ctx, ref, StatusUpdate{Status: "delivered"})
	if err != nil {
		t.Fatalf("delivered: %v", err)
	}
	if got.Base().Status != "delivered" || got.Base().CompletedAt == nil {
		t.Fatalf("unexpected delivered order: %+v", got.Base())
	}
	if NewNormalizer(nil).Normalize(got).Status != trip.StatusCompleted {
		t.Fatalf("delivered should normalize to completed")
	}
}

func testVerifyOTP(t *testing.T, b testBackend) {
	ctx := context.Background()
	withOTP := &TaxiOrder{Common: Common{OrderID: "otp1", IsCOD: true}}
	if err := b.Create(ctx, withOTP, "4821"); err != nil {
		t.Fatalf("create: %v", err)
	}
	ref := trip.Ref{Kind: trip.KindTaxi, ID: "otp1"}
	if err := b.VerifyOTP(ctx, ref, "4821"); err != nil {
		t.Fatalf("matching otp: %v", err)
	}
	if err := b.VerifyOTP(ctx, ref, "0000"); !errors.Is(err, trip.ErrOTPMismatch) {
		t.Fatalf("expected mismatch, got %v", err)
	}

	noOTP := createTaxi(t, b, "otp2")
	if err := b.VerifyOTP(ctx, noOTP, ""); !errors.Is(err, trip.ErrOTPMismatch) {
		t.Fatalf("empty stored otp must not verify, got %v", err)
	}
	if err := b.VerifyOTP(ctx, trip.Ref{Kind: trip.KindTaxi, ID: "nope"}, "1"); !errors.Is(err, trip.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func testListings(t *testing.T, b testBackend) {
	ctx := context.Background()
	first := createTaxi(t, b, "list1")
	createTaxi(t, b, "list2")
	if err := b.Create(ctx, &PorterOrder{Common: Common{OrderID: "list1"}}, ""); err != nil {
		t.Fatalf("same id under another kind: %v", err)
	}

	if _, err := b.AcceptOrder(ctx, first, "d9"); err != nil {
		t.Fatalf("accept: %v", err)
	}

	available, err := b.ListAvailableOrders(ctx)
	if err != nil {
		t.Fatalf("list available: %v", err)
	}
	if len(available) != 2 {
		t.Fatalf("expected 2 available orders, got %d", len(available))
	}
	for _, o := range available {
		if o.Kind() == trip.KindTaxi && o.Base().ID() == first.ID {
			t.Fatalf("accepted order still listed as available")
		}
	}

	mine, err := b.ListWorkerTrips(ctx, "d9")
	if err != nil {
		t.Fatalf("list worker trips: %v", err)
	}
	if len(mine) != 1 || mine[0].Base().ID() != first.ID || mine[0].Kind() != trip.KindTaxi {
		t.Fatalf("unexpected worker trips: %d", len(mine))
	}
}
