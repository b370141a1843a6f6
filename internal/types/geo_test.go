package types

import (
	"math"
	"testing"
)

func TestDistanceKm(t *testing.T) {
	// Taipei Main Station -> Taipei 101, roughly 5.2 km apart.
	a := Point{Lat: 25.0478, Lng: 121.5170}
	b := Point{Lat: 25.0340, Lng: 121.5645}
	got := DistanceKm(a, b)
	if got < 4.5 || got > 5.5 {
		t.Fatalf("expected ~5 km, got %.3f", got)
	}
	if DistanceKm(a, a) != 0 {
		t.Fatalf("expected zero distance for identical points")
	}
}

func TestRoundTo(t *testing.T) {
	if got := RoundTo(4.46, 1); math.Abs(got-4.5) > 1e-9 {
		t.Fatalf("RoundTo(4.46,1)=%v", got)
	}
}
