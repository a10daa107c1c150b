package geo

import (
	"fmt"
	"sync"

	"github.com/dhconnelly/rtreego"
)

const (
	tolerance   = 0.0001
	minChildren = 25
	maxChildren = 50
	dimensions  = 2
)

// IndexedPin is a pin position known to the PinIndex
type IndexedPin struct {
	ID       string
	Location Location
}

// pinItem wraps an IndexedPin for R-Tree indexing
type pinItem struct {
	pin  IndexedPin
	rect *rtreego.Rect
}

func (pi *pinItem) Bounds() *rtreego.Rect {
	return pi.rect
}

// PinIndex is a thread-safe R-Tree of dropped pins. The map uses it to find
// the pin a tap landed on and to list the pins inside the visible region.
type PinIndex struct {
	mu    sync.RWMutex
	tree  *rtreego.Rtree
	items map[string]*pinItem
}

// NewPinIndex creates an empty pin index
func NewPinIndex() *PinIndex {
	return &PinIndex{
		tree:  rtreego.NewTree(dimensions, minChildren, maxChildren),
		items: make(map[string]*pinItem),
	}
}

// Insert adds or moves a pin
func (x *PinIndex) Insert(id string, loc Location) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if old, ok := x.items[id]; ok {
		x.tree.Delete(old)
	}

	item := &pinItem{
		pin:  IndexedPin{ID: id, Location: loc},
		rect: rtreego.Point{loc.Latitude, loc.Longitude}.ToRect(tolerance),
	}
	x.tree.Insert(item)
	x.items[id] = item
}

// Remove drops a pin from the index. Removing an unknown id is a no-op.
func (x *PinIndex) Remove(id string) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if item, ok := x.items[id]; ok {
		x.tree.Delete(item)
		delete(x.items, id)
	}
}

// Len returns the number of indexed pins
func (x *PinIndex) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.items)
}

// Nearest returns up to k pins closest to loc, nearest first
func (x *PinIndex) Nearest(loc Location, k int) []IndexedPin {
	if k <= 0 {
		return nil
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	if len(x.items) == 0 {
		return nil
	}
	if k > len(x.items) {
		k = len(x.items)
	}

	results := x.tree.NearestNeighbors(k, rtreego.Point{loc.Latitude, loc.Longitude})
	pins := make([]IndexedPin, 0, len(results))
	for _, result := range results {
		item, ok := result.(*pinItem)
		if !ok || item == nil {
			continue
		}
		pins = append(pins, item.pin)
	}
	return pins
}

// Within returns the pins inside box
func (x *PinIndex) Within(box BoundingBox) ([]IndexedPin, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	// Degenerate boxes are widened by the point tolerance so a box around a
	// single pin still has a valid rect.
	latLen := box.MaxLat - box.MinLat
	lonLen := box.MaxLon - box.MinLon
	if latLen <= 0 {
		latLen = tolerance
	}
	if lonLen <= 0 {
		lonLen = tolerance
	}

	bounds, err := rtreego.NewRect(rtreego.Point{box.MinLat, box.MinLon}, []float64{latLen, lonLen})
	if err != nil {
		return nil, fmt.Errorf("invalid bounding box: %w", err)
	}

	results := x.tree.SearchIntersect(bounds)
	pins := make([]IndexedPin, 0, len(results))
	for _, result := range results {
		item, ok := result.(*pinItem)
		if !ok || !box.Contains(item.pin.Location) {
			continue
		}
		pins = append(pins, item.pin)
	}
	return pins, nil
}
