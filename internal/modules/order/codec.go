// README: JSON codec for raw orders, keyed on the "type" discriminant.
package order

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"tripengine/internal/modules/trip"
)

var ErrUnknownKind = errors.New("unknown order kind")

var factories = map[trip.Kind]func() RawOrder{
	trip.KindEcommerce: func() RawOrder { return &EcommerceOrder{} },
	trip.KindFood:      func() RawOrder { return &FoodOrder{} },
	trip.KindGrocery:   func() RawOrder { return &GroceryOrder{} },
	trip.KindTaxi:      func() RawOrder { return &TaxiOrder{} },
	trip.KindPorter:    func() RawOrder { return &PorterOrder{} },
}

type envelope struct {
	Type      string `json:"type"`
	OrderKind string `json:"order_kind"`
}

// Decode reads one raw order. The discriminant is "type", with "order_kind"
// accepted as an alias.
func Decode(data []byte) (RawOrder, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode order envelope: %w", err)
	}
	disc := env.Type
	if disc == "" {
		disc = env.OrderKind
	}
	mk, ok := factories[trip.Kind(strings.ToLower(strings.TrimSpace(disc)))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, disc)
	}
	o := mk()
	if err := json.Unmarshal(data, o); err != nil {
		return nil, fmt.Errorf("decode %s order: %w", o.Kind(), err)
	}
	return o, nil
}

// DecodeList decodes a JSON array of raw orders. Records that fail to decode
// are skipped and reported in the joined error.
func DecodeList(data []byte) ([]RawOrder, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decode order list: %w", err)
	}
	out := make([]RawOrder, 0, len(items))
	var errs []error
	for i, item := range items {
		o, err := Decode(item)
		if err != nil {
			errs = append(errs, fmt.Errorf("item %d: %w", i, err))
			continue
		}
		out = append(out, o)
	}
	return out, errors.Join(errs...)
}

// Encode writes o with its discriminant.
func Encode(o RawOrder) ([]byte, error) {
	body, err := json.Marshal(o)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	kind, err := json.Marshal(o.Kind())
	if err != nil {
		return nil, err
	}
	fields["type"] = kind
	return json.Marshal(fields)
}
