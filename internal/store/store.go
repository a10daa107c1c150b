package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"codeberg.org/snonux/virtualtourist/internal/geo"
)

// ErrNotFound is returned when a pin or photo does not exist
var ErrNotFound = errors.New("not found")

// Pin is a user-placed map location
type Pin struct {
	ID        string    `json:"id" bson:"_id"`
	Latitude  float64   `json:"latitude" bson:"latitude"`
	Longitude float64   `json:"longitude" bson:"longitude"`
	CreatedAt time.Time `json:"created_at" bson:"createdAt"`
}

// Location returns the coordinates of the pin
func (p Pin) Location() geo.Location {
	return geo.Location{Latitude: p.Latitude, Longitude: p.Longitude}
}

// Photo is the persisted metadata of one photo of a pin. The ID is assigned
// by the photo API and is unique across all pins.
type Photo struct {
	ID        string    `json:"id" bson:"_id"`
	PinID     string    `json:"pin_id" bson:"pinId"`
	Position  int       `json:"position" bson:"position"` // grid position within the album
	Title     string    `json:"title,omitempty" bson:"title,omitempty"`
	ImageURL  string    `json:"image_url,omitempty" bson:"imageUrl,omitempty"`
	CreatedAt time.Time `json:"created_at" bson:"createdAt"`
}

// Store persists pins and their photos.
//
// Implementations may buffer writes until Save is called. Buffered writes
// are shared by all callers, so a caller that fails halfway through its
// writes must Discard them before anyone else saves. Creating a photo whose
// ID already exists is silently ignored.
type Store interface {
	CreatePin(ctx context.Context, pin Pin) error
	GetPin(ctx context.Context, id string) (Pin, error)
	ListPins(ctx context.Context) ([]Pin, error)
	// DeletePin removes the pin and all of its photos
	DeletePin(ctx context.Context, id string) error

	CreatePhoto(ctx context.Context, photo Photo) error
	GetPhoto(ctx context.Context, id string) (Photo, error)
	DeletePhoto(ctx context.Context, id string) error
	ListPhotos(ctx context.Context, pinID string) ([]Photo, error)

	Save(ctx context.Context) error
	// Discard drops buffered writes; write-through stores have none
	Discard(ctx context.Context) error
	Close(ctx context.Context) error
}

// Config selects and configures a Store implementation
type Config struct {
	Driver        string `mapstructure:"driver"` // sqlite, mongo or memory
	Path          string `mapstructure:"path"`
	MongoURI      string `mapstructure:"mongo_uri"`
	MongoDatabase string `mapstructure:"mongo_database"`
}

// Open creates the store selected by cfg.Driver
func Open(ctx context.Context, cfg Config, logger zerolog.Logger) (Store, error) {
	switch cfg.Driver {
	case "", "sqlite":
		return OpenSQLite(ctx, cfg.Path, logger)
	case "mongo":
		return OpenMongo(ctx, cfg.MongoURI, cfg.MongoDatabase, logger)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

func sortPhotos(photos []Photo) {
	sort.SliceStable(photos, func(i, j int) bool {
		if photos[i].Position != photos[j].Position {
			return photos[i].Position < photos[j].Position
		}
		return photos[i].ID < photos[j].ID
	})
}

func sortPins(pins []Pin) {
	sort.SliceStable(pins, func(i, j int) bool {
		if !pins[i].CreatedAt.Equal(pins[j].CreatedAt) {
			return pins[i].CreatedAt.Before(pins[j].CreatedAt)
		}
		return pins[i].ID < pins[j].ID
	})
}
