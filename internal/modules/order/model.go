// README: Raw backend order shapes, one struct per order kind.
package order

import (
	"time"

	"tripengine/internal/modules/trip"
	"tripengine/internal/types"
)

// RawOrder is the closed set of backend order records. Only the types in this
// file implement it.
type RawOrder interface {
	Kind() trip.Kind
	Base() *Common
	isRawOrder()
}

// Location is a named point as sent by ride-style backends.
type Location struct {
	Address string   `json:"address,omitempty"`
	Lat     *float64 `json:"lat,omitempty"`
	Lng     *float64 `json:"lng,omitempty"`
}

func (l *Location) address() string {
	if l == nil {
		return ""
	}
	return l.Address
}

func (l *Location) point() (types.Point, bool) {
	if l == nil || l.Lat == nil || l.Lng == nil {
		return types.Point{}, false
	}
	return types.Point{Lat: *l.Lat, Lng: *l.Lng}, true
}

// Common carries the fields every kind shares. All monetary and distance
// fields are optional on the wire.
type Common struct {
	OrderID       types.ID   `json:"order_id,omitempty"`
	LegacyID      types.ID   `json:"_id,omitempty"`
	Status        string     `json:"status,omitempty"`
	Earnings      *float64   `json:"earnings,omitempty"`
	Fare          *float64   `json:"fare,omitempty"`
	TotalAmount   *float64   `json:"total_amount,omitempty"`
	Distance      *float64   `json:"distance,omitempty"`
	CustomerName  string     `json:"customer_name,omitempty"`
	CustomerPhone string     `json:"customer_phone,omitempty"`
	Rating        *float64   `json:"rating,omitempty"`
	CancelReason  string     `json:"cancel_reason,omitempty"`
	PaymentMethod string     `json:"payment_method,omitempty"`
	IsCOD         bool       `json:"is_cod,omitempty"`
	WorkerID      types.ID   `json:"worker_id,omitempty"`
	CreatedAt     *time.Time `json:"created_at,omitempty"`
	AcceptedAt    *time.Time `json:"accepted_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

func (c *Common) Base() *Common { return c }

// ID prefers order_id and falls back to the legacy _id field.
func (c *Common) ID() types.ID {
	if c.OrderID != "" {
		return c.OrderID
	}
	return c.LegacyID
}

func (c *Common) cashOnDelivery() bool {
	return c.IsCOD || c.PaymentMethod == "cod" || c.PaymentMethod == "cash"
}

type EcommerceOrder struct {
	Common
	WarehouseAddress string `json:"warehouse_address,omitempty"`
	DeliveryAddress  string `json:"delivery_address,omitempty"`
	ItemDescription  string `json:"item_description,omitempty"`
}

type FoodOrder struct {
	Common
	RestaurantName    string `json:"restaurant_name,omitempty"`
	RestaurantAddress string `json:"restaurant_address,omitempty"`
	DeliveryAddress   string `json:"delivery_address,omitempty"`
}

type GroceryOrder struct {
	Common
	StoreAddress    string `json:"store_address,omitempty"`
	DeliveryAddress string `json:"delivery_address,omitempty"`
	ItemDescription string `json:"item_description,omitempty"`
}

type TaxiOrder struct {
	Common
	PickupLocation  *Location `json:"pickup_location,omitempty"`
	DropoffLocation *Location `json:"dropoff_location,omitempty"`
	Pickup          string    `json:"pickup,omitempty"`
	Dropoff         string    `json:"dropoff,omitempty"`
	VehicleType     string    `json:"vehicle_type,omitempty"`
}

type PorterOrder struct {
	Common
	PickupLocation  *Location `json:"pickup_location,omitempty"`
	DropoffLocation *Location `json:"dropoff_location,omitempty"`
	Pickup          string    `json:"pickup,omitempty"`
	Dropoff         string    `json:"dropoff,omitempty"`
	VehicleType     string    `json:"vehicle_type,omitempty"`
	ItemDescription string    `json:"item_description,omitempty"`
}

func (*EcommerceOrder) Kind() trip.Kind { return trip.KindEcommerce }
func (*FoodOrder) Kind() trip.Kind      { return trip.KindFood }
func (*GroceryOrder) Kind() trip.Kind   { return trip.KindGrocery }
func (*TaxiOrder) Kind() trip.Kind      { return trip.KindTaxi }
func (*PorterOrder) Kind() trip.Kind    { return trip.KindPorter }

func (*EcommerceOrder) isRawOrder() {}
func (*FoodOrder) isRawOrder()      {}
func (*GroceryOrder) isRawOrder()   {}
func (*TaxiOrder) isRawOrder()      {}
func (*PorterOrder) isRawOrder()    {}
