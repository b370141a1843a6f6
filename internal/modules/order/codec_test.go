package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripengine/internal/modules/trip"
)

func TestDecodeDiscriminant(t *testing.T) {
	o, err := Decode([]byte(`{"type":"food","order_id":"f1","restaurant_address":"Deli","is_cod":true}`))
	require.NoError(t, err)
	food, ok := o.(*FoodOrder)
	require.True(t, ok)
	assert.Equal(t, "Deli", food.RestaurantAddress)
	assert.True(t, food.IsCOD)

	o, err = Decode([]byte(`{"order_kind":"Porter","_id":"p1","pickup":"Dock 4"}`))
	require.NoError(t, err)
	assert.Equal(t, trip.KindPorter, o.Kind())
	assert.Equal(t, "p1", string(o.Base().ID()))
}

func TestDecodeUnknownKind(t *testing.T) {
	_, err := Decode([]byte(`{"type":"drone","order_id":"x"}`))
	assert.ErrorIs(t, err, ErrUnknownKind)

	_, err = Decode([]byte(`{"order_id":"x"}`))
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestDecodeListSkipsBadItems(t *testing.T) {
	orders, err := DecodeList([]byte(`[
		{"type":"taxi","order_id":"t1"},
		{"type":"drone","order_id":"d1"},
		{"type":"grocery","order_id":"g1"}
	]`))
	assert.ErrorIs(t, err, ErrUnknownKind)
	require.Len(t, orders, 2)
	assert.Equal(t, trip.KindTaxi, orders[0].Kind())
	assert.Equal(t, trip.KindGrocery, orders[1].Kind())
}

func TestEncodeWritesDiscriminant(t *testing.T) {
	in := &TaxiOrder{Common: Common{OrderID: "t9", Fare: f(80)}, Pickup: "Airport", VehicleType: "sedan"}
	data, err := Encode(in)
	require.NoError(t, err)

	out, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}
