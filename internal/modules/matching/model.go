// README: Service capabilities and the kind -> capability partition.
package matching

import (
	"fmt"
	"strings"

	"tripengine/internal/modules/trip"
)

type Capability string

const (
	CapabilityGeneralRider Capability = "general_rider"
	CapabilityTaxi         Capability = "taxi"
	CapabilityPorter       Capability = "porter"
)

var Capabilities = []Capability{CapabilityGeneralRider, CapabilityTaxi, CapabilityPorter}

// partition assigns every kind to exactly one capability. A kind missing here
// is visible to nobody.
var partition = map[trip.Kind]Capability{
	trip.KindEcommerce: CapabilityGeneralRider,
	trip.KindFood:      CapabilityGeneralRider,
	trip.KindGrocery:   CapabilityGeneralRider,
	trip.KindTaxi:      CapabilityTaxi,
	trip.KindPorter:    CapabilityPorter,
}

func ParseCapability(s string) (Capability, error) {
	c := Capability(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Capabilities {
		if c == known {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown service capability %q", s)
}

func CapabilityFor(k trip.Kind) (Capability, bool) {
	c, ok := partition[k]
	return c, ok
}

func (c Capability) Admits(k trip.Kind) bool {
	owner, ok := partition[k]
	return ok && owner == c
}

// Kinds lists the kinds c serves, in trip.Kinds order.
func (c Capability) Kinds() []trip.Kind {
	var out []trip.Kind
	for _, k := range trip.Kinds {
		if c.Admits(k) {
			out = append(out, k)
		}
	}
	return out
}
