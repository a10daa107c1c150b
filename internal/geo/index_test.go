package geo

import (
	"testing"
)

func testIndex() *PinIndex {
	index := NewPinIndex()
	index.Insert("nyc", Location{Latitude: 40.7128, Longitude: -74.0060})
	index.Insert("london", Location{Latitude: 51.5074, Longitude: -0.1278})
	index.Insert("paris", Location{Latitude: 48.8566, Longitude: 2.3522})
	index.Insert("tokyo", Location{Latitude: 35.6762, Longitude: 139.6503})
	return index
}

func TestPinIndexWithin(t *testing.T) {
	index := testIndex()

	pins, err := index.Within(BoundingBox{MinLon: -5, MinLat: 45, MaxLon: 10, MaxLat: 55})
	if err != nil {
		t.Fatalf("Within failed: %v", err)
	}

	if len(pins) != 2 {
		t.Fatalf("Expected 2 pins in Europe box, got %d", len(pins))
	}

	found := map[string]bool{}
	for _, p := range pins {
		found[p.ID] = true
	}
	if !found["london"] || !found["paris"] {
		t.Errorf("Expected london and paris, got %v", pins)
	}
}

func TestPinIndexNearest(t *testing.T) {
	index := testIndex()

	pins := index.Nearest(Location{Latitude: 48.0, Longitude: 2.0}, 1)
	if len(pins) != 1 {
		t.Fatalf("Expected 1 pin, got %d", len(pins))
	}
	if pins[0].ID != "paris" {
		t.Errorf("Expected paris, got %s", pins[0].ID)
	}

	// k larger than the index is capped
	if got := len(index.Nearest(Location{}, 10)); got != 4 {
		t.Errorf("Expected 4 pins, got %d", got)
	}

	if got := index.Nearest(Location{}, 0); got != nil {
		t.Errorf("Expected nil for k=0, got %v", got)
	}
}

func TestPinIndexInsertMovesAndRemove(t *testing.T) {
	index := testIndex()

	index.Insert("paris", Location{Latitude: -33.8688, Longitude: 151.2093})
	if index.Len() != 4 {
		t.Errorf("Expected re-insert to keep 4 pins, got %d", index.Len())
	}

	pins, err := index.Within(BoundingBox{MinLon: -5, MinLat: 45, MaxLon: 10, MaxLat: 55})
	if err != nil {
		t.Fatalf("Within failed: %v", err)
	}
	if len(pins) != 1 || pins[0].ID != "london" {
		t.Errorf("Expected only london after moving paris, got %v", pins)
	}

	index.Remove("london")
	index.Remove("missing")
	if index.Len() != 3 {
		t.Errorf("Expected 3 pins after remove, got %d", index.Len())
	}
}
