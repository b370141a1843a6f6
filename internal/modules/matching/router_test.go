// README: Router tests: partition properties and order preservation.
package matching

import (
	"testing"

	"tripengine/internal/modules/trip"
	"tripengine/internal/types"
)

func TestPartitionCoversEveryKindOnce(t *testing.T) {
	for _, k := range trip.Kinds {
		owners := 0
		for _, c := range Capabilities {
			if c.Admits(k) {
				owners++
			}
		}
		if owners != 1 {
			t.Fatalf("kind %s admitted by %d capabilities, want 1", k, owners)
		}
	}
}

func TestRouteScenario(t *testing.T) {
	trips := []trip.Trip{
		{ID: "1", OrderKind: trip.KindFood},
		{ID: "2", OrderKind: trip.KindTaxi},
		{ID: "3", OrderKind: trip.KindGrocery},
		{ID: "4", OrderKind: trip.KindPorter},
		{ID: "5", OrderKind: trip.KindEcommerce},
		{ID: "6", OrderKind: trip.Kind("drone")},
	}

	cases := []struct {
		c    Capability
		want []types.ID
	}{
		{CapabilityGeneralRider, []types.ID{"1", "3", "5"}},
		{CapabilityTaxi, []types.ID{"2"}},
		{CapabilityPorter, []types.ID{"4"}},
	}
	for _, tc := range cases {
		got := Route(trips, tc.c)
		if len(got) != len(tc.want) {
			t.Fatalf("%s: got %d trips, want %d", tc.c, len(got), len(tc.want))
		}
		for i := range got {
			if got[i].ID != tc.want[i] {
				t.Fatalf("%s: position %d got %s want %s", tc.c, i, got[i].ID, tc.want[i])
			}
		}
	}

	total := 0
	for _, c := range Capabilities {
		total += len(Route(trips, c))
	}
	if total != 5 {
		t.Fatalf("routed %d trips across capabilities, want 5 (unknown kind dropped)", total)
	}
}

func TestRouteEmpty(t *testing.T) {
	if got := Route(nil, CapabilityTaxi); len(got) != 0 {
		t.Fatalf("expected empty result, got %d", len(got))
	}
}

func TestParseCapability(t *testing.T) {
	c, err := ParseCapability("Taxi")
	if err != nil || c != CapabilityTaxi {
		t.Fatalf("ParseCapability: %v %v", c, err)
	}
	if _, err := ParseCapability("pilot"); err == nil {
		t.Fatalf("expected error for unknown capability")
	}
	kinds := CapabilityGeneralRider.Kinds()
	if len(kinds) != 3 || kinds[0] != trip.KindEcommerce {
		t.Fatalf("unexpected general rider kinds: %v", kinds)
	}
}
