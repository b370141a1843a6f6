// README: Trip aggregate, order kinds and status definitions.
package trip

import (
	"fmt"
	"strings"
	"time"

	"tripengine/internal/types"
)

type Kind string

const (
	KindEcommerce Kind = "ecommerce"
	KindFood      Kind = "food"
	KindGrocery   Kind = "grocery"
	KindTaxi      Kind = "taxi"
	KindPorter    Kind = "porter"
)

// Kinds lists every supported order kind in a stable order.
var Kinds = []Kind{KindEcommerce, KindFood, KindGrocery, KindTaxi, KindPorter}

func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Delivery reports whether the kind moves goods to a customer address.
func (k Kind) Delivery() bool {
	return k == KindEcommerce || k == KindFood || k == KindGrocery
}

func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("unknown order kind %q", s)
	}
	return k, nil
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusActive    Status = "active"
	StatusRiding    Status = "riding"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// ParseStatus accepts the statuses a worker may request. pending is never a
// valid target.
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusAccepted, StatusActive, StatusRiding, StatusCompleted, StatusCancelled:
		return st, nil
	default:
		return "", fmt.Errorf("unknown trip status %q", s)
	}
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// InProgress reports whether a worker currently holds the trip.
func (s Status) InProgress() bool {
	return s == StatusAccepted || s == StatusActive || s == StatusRiding
}

type CancelReason string

const (
	CancelCustomerUnavailable CancelReason = "customer_unavailable"
	CancelCustomerCancelled   CancelReason = "customer_cancelled"
	CancelVehicleIssue        CancelReason = "vehicle_issue"
	CancelAddressNotFound     CancelReason = "address_not_found"
	CancelUnsafeLocation      CancelReason = "unsafe_location"
	CancelOther               CancelReason = "other"
)

var cancelReasons = map[CancelReason]struct{}{
	CancelCustomerUnavailable: {},
	CancelCustomerCancelled:   {},
	CancelVehicleIssue:        {},
	CancelAddressNotFound:     {},
	CancelUnsafeLocation:      {},
	CancelOther:               {},
}

func (r CancelReason) Valid() bool {
	_, ok := cancelReasons[r]
	return ok
}

// Ref identifies a trip. Order ids are only unique within a kind.
type Ref struct {
	Kind Kind
	ID   types.ID
}

func (r Ref) String() string { return string(r.Kind) + "/" + string(r.ID) }

type Trip struct {
	ID              types.ID     `json:"id"`
	OrderKind       Kind         `json:"order_kind"`
	Status          Status       `json:"status"`
	RawStatus       string       `json:"raw_status,omitempty"`
	PickupAddress   string       `json:"pickup_address"`
	DropoffAddress  string       `json:"dropoff_address"`
	Fare            types.Money  `json:"fare"`
	Distance        float64      `json:"distance"`
	AcceptedAt      *time.Time   `json:"accepted_at,omitempty"`
	CompletedAt     *time.Time   `json:"completed_at,omitempty"`
	CustomerName    string       `json:"customer_name,omitempty"`
	CustomerPhone   string       `json:"customer_phone,omitempty"`
	Rating          *float64     `json:"rating,omitempty"`
	CancelReason    CancelReason `json:"cancel_reason,omitempty"`
	WorkerID        types.ID     `json:"worker_id,omitempty"`
	CashOnDelivery  bool         `json:"cash_on_delivery"`
	ItemDescription string       `json:"item_description,omitempty"`
	VehicleType     string       `json:"vehicle_type,omitempty"`
}

func (t Trip) Ref() Ref { return Ref{Kind: t.OrderKind, ID: t.ID} }

// Clone returns a copy that shares no pointers with t.
func (t Trip) Clone() Trip {
	out := t
	out.AcceptedAt = cloneTime(t.AcceptedAt)
	out.CompletedAt = cloneTime(t.CompletedAt)
	if t.Rating != nil {
		r := *t.Rating
		out.Rating = &r
	}
	return out
}

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
