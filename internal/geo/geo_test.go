package geo

import (
	"math/rand"
	"testing"
)

func TestComputeBoundingBox(t *testing.T) {
	tests := []struct {
		name       string
		loc        Location
		halfWidth  float64
		halfHeight float64
		want       BoundingBox
	}{
		{
			name:       "san francisco",
			loc:        Location{Latitude: 37.5, Longitude: -122.5},
			halfWidth:  1,
			halfHeight: 1,
			want:       BoundingBox{MinLon: -123.5, MinLat: 36.5, MaxLon: -121.5, MaxLat: 38.5},
		},
		{
			name:       "clamped at north pole and date line",
			loc:        Location{Latitude: 89.5, Longitude: 179.5},
			halfWidth:  1,
			halfHeight: 1,
			want:       BoundingBox{MinLon: 178.5, MinLat: 88.5, MaxLon: 180, MaxLat: 90},
		},
		{
			name:       "clamped at south pole and date line",
			loc:        Location{Latitude: -89.5, Longitude: -179.5},
			halfWidth:  1,
			halfHeight: 1,
			want:       BoundingBox{MinLon: -180, MinLat: -90, MaxLon: -178.5, MaxLat: -88.5},
		},
		{
			name:       "half width only moves the lower longitude bound",
			loc:        Location{Latitude: 0, Longitude: 0},
			halfWidth:  3,
			halfHeight: 1,
			want:       BoundingBox{MinLon: -3, MinLat: -1, MaxLon: 1, MaxLat: 1},
		},
		{
			name:       "negative extents collapse to the center",
			loc:        Location{Latitude: 10, Longitude: 20},
			halfWidth:  -1,
			halfHeight: -1,
			want:       BoundingBox{MinLon: 20, MinLat: 10, MaxLon: 20, MaxLat: 10},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeBoundingBox(tt.loc, tt.halfWidth, tt.halfHeight)
			if got != tt.want {
				t.Errorf("ComputeBoundingBox() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestComputeBoundingBox_AlwaysValid(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 5000; i++ {
		loc := Location{
			Latitude:  rng.Float64()*180 - 90,
			Longitude: rng.Float64()*360 - 180,
		}
		box := ComputeBoundingBox(loc, rng.Float64()*5, rng.Float64()*5)

		if box.MinLon > box.MaxLon || box.MinLat > box.MaxLat {
			t.Fatalf("inverted box %+v for %v", box, loc)
		}
		if box.MinLon < LonMin || box.MaxLon > LonMax || box.MinLat < LatMin || box.MaxLat > LatMax {
			t.Fatalf("box %+v escapes the global domain for %v", box, loc)
		}
	}
}

func TestBoundingBoxString(t *testing.T) {
	box := BoundingBox{MinLon: -123.4194, MinLat: 36.7749, MaxLon: -121.4194, MaxLat: 38.7749}
	expected := "-123.4194,36.7749,-121.4194,38.7749"
	if box.String() != expected {
		t.Errorf("Expected %s, got %s", expected, box.String())
	}
}

func TestLocationValidate(t *testing.T) {
	tests := []struct {
		loc     Location
		wantErr bool
	}{
		{Location{Latitude: 37.7749, Longitude: -122.4194}, false},
		{Location{Latitude: 90, Longitude: 180}, false},
		{Location{Latitude: -90, Longitude: -180}, false},
		{Location{Latitude: 90.1, Longitude: 0}, true},
		{Location{Latitude: 0, Longitude: -180.5}, true},
	}

	for _, tt := range tests {
		t.Run(tt.loc.String(), func(t *testing.T) {
			err := tt.loc.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
