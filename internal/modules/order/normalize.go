// README: Normalizer turns raw backend orders of any kind into trips.
package order

import (
	"math"
	"strings"

	"tripengine/internal/modules/trip"
	"tripengine/internal/types"
)

const (
	FallbackPickup  = "Pickup Location"
	FallbackDropoff = "Drop Location"
)

// Normalizer is pure. The only configuration is the per-kind default pickup
// used when a delivery order omits its origin.
type Normalizer struct {
	DefaultPickup map[trip.Kind]string
}

func NewNormalizer(defaultPickup map[trip.Kind]string) Normalizer {
	return Normalizer{DefaultPickup: defaultPickup}
}

// Normalize never fails: every address resolves to a non-empty string and
// every number to a finite value.
func (n Normalizer) Normalize(raw RawOrder) trip.Trip {
	c := raw.Base()
	t := trip.Trip{
		ID:             c.ID(),
		OrderKind:      raw.Kind(),
		Status:         NormalizeStatus(c.Status),
		RawStatus:      c.Status,
		Fare:           resolveFare(c),
		AcceptedAt:     c.AcceptedAt,
		CompletedAt:    c.CompletedAt,
		CustomerName:   c.CustomerName,
		CustomerPhone:  c.CustomerPhone,
		Rating:         c.Rating,
		CancelReason:   trip.CancelReason(c.CancelReason),
		WorkerID:       c.WorkerID,
		CashOnDelivery: c.cashOnDelivery(),
	}
	defaultPickup := n.DefaultPickup[raw.Kind()]

	var from, to *Location
	switch o := raw.(type) {
	case *EcommerceOrder:
		t.PickupAddress = firstNonEmpty(o.WarehouseAddress, defaultPickup, FallbackPickup)
		t.DropoffAddress = firstNonEmpty(o.DeliveryAddress, FallbackDropoff)
		t.ItemDescription = o.ItemDescription
	case *FoodOrder:
		t.PickupAddress = firstNonEmpty(o.RestaurantAddress, defaultPickup, FallbackPickup)
		t.DropoffAddress = firstNonEmpty(o.DeliveryAddress, FallbackDropoff)
		t.ItemDescription = o.RestaurantName
	case *GroceryOrder:
		t.PickupAddress = firstNonEmpty(o.StoreAddress, defaultPickup, FallbackPickup)
		t.DropoffAddress = firstNonEmpty(o.DeliveryAddress, FallbackDropoff)
		t.ItemDescription = o.ItemDescription
	case *TaxiOrder:
		t.PickupAddress = firstNonEmpty(o.PickupLocation.address(), o.Pickup, FallbackPickup)
		t.DropoffAddress = firstNonEmpty(o.DropoffLocation.address(), o.Dropoff, FallbackDropoff)
		t.VehicleType = o.VehicleType
		from, to = o.PickupLocation, o.DropoffLocation
	case *PorterOrder:
		t.PickupAddress = firstNonEmpty(o.PickupLocation.address(), o.Pickup, FallbackPickup)
		t.DropoffAddress = firstNonEmpty(o.DropoffLocation.address(), o.Dropoff, FallbackDropoff)
		t.VehicleType = o.VehicleType
		t.ItemDescription = o.ItemDescription
		from, to = o.PickupLocation, o.DropoffLocation
	}
	t.Distance = resolveDistance(c.Distance, from, to)
	return t.Clone()
}

// NormalizeAll keeps input order.
func (n Normalizer) NormalizeAll(raws []RawOrder) []trip.Trip {
	out := make([]trip.Trip, 0, len(raws))
	for _, r := range raws {
		out = append(out, n.Normalize(r))
	}
	return out
}

// NormalizeStatus maps backend vocabulary onto display statuses. Unknown
// values pass through unchanged.
func NormalizeStatus(raw string) trip.Status {
	switch raw {
	case "delivered":
		return trip.StatusCompleted
	case "out_for_delivery", "accepted":
		return trip.StatusActive
	default:
		return trip.Status(raw)
	}
}

// ToBackendStatus is the outbound mapping used when writing a status to the
// backend. Delivery kinds keep their own words for the last two legs.
func ToBackendStatus(kind trip.Kind, s trip.Status) string {
	if kind.Delivery() {
		switch s {
		case trip.StatusRiding:
			return "out_for_delivery"
		case trip.StatusCompleted:
			return "delivered"
		}
	}
	return string(s)
}

// MachineStatus recovers the state machine status from a stored backend
// status. It is the inverse of ToBackendStatus.
func MachineStatus(kind trip.Kind, raw string) trip.Status {
	if kind.Delivery() {
		switch raw {
		case "out_for_delivery":
			return trip.StatusRiding
		case "delivered":
			return trip.StatusCompleted
		}
	}
	return trip.Status(raw)
}

func resolveFare(c *Common) types.Money {
	for _, v := range []*float64{c.Earnings, c.Fare, c.TotalAmount} {
		if finite(v) {
			return types.FromMajor(*v)
		}
	}
	return 0
}

func resolveDistance(raw *float64, from, to *Location) float64 {
	if finite(raw) {
		return *raw
	}
	a, okA := from.point()
	b, okB := to.point()
	if okA && okB {
		return types.RoundTo(types.DistanceKm(a, b), 2)
	}
	return 0
}

func finite(v *float64) bool {
	return v != nil && !math.IsNaN(*v) && !math.IsInf(*v, 0)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
