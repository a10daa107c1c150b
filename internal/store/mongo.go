package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	pinsCollection   = "pins"
	photosCollection = "photos"
)

// MongoStore persists pins and photos in MongoDB. Every write goes straight
// to the database, Save is a no-op.
type MongoStore struct {
	client *mongo.Client // nil when the database is owned by the caller
	pins   *mongo.Collection
	photos *mongo.Collection
	logger zerolog.Logger
}

// OpenMongo connects to uri and uses the given database
func OpenMongo(ctx context.Context, uri, database string, logger zerolog.Logger) (*MongoStore, error) {
	if uri == "" {
		return nil, fmt.Errorf("mongo store URI is required")
	}
	if database == "" {
		database = "virtualtourist"
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	s, err := NewMongoStore(ctx, client.Database(database), logger)
	if err != nil {
		client.Disconnect(ctx)
		return nil, err
	}
	s.client = client

	logger.Debug().Str("database", database).Msg("mongo store opened")
	return s, nil
}

// NewMongoStore uses an existing database handle and ensures its indexes
func NewMongoStore(ctx context.Context, db *mongo.Database, logger zerolog.Logger) (*MongoStore, error) {
	s := &MongoStore{
		pins:   db.Collection(pinsCollection),
		photos: db.Collection(photosCollection),
		logger: logger,
	}

	_, err := s.photos.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "pinId", Value: 1}, {Key: "position", Value: 1}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create photo index: %w", err)
	}
	return s, nil
}

func (s *MongoStore) CreatePin(ctx context.Context, pin Pin) error {
	if _, err := s.pins.InsertOne(ctx, pin); err != nil {
		return fmt.Errorf("failed to insert pin %s: %w", pin.ID, err)
	}
	return nil
}

func (s *MongoStore) GetPin(ctx context.Context, id string) (Pin, error) {
	var pin Pin
	err := s.pins.FindOne(ctx, bson.M{"_id": id}).Decode(&pin)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Pin{}, fmt.Errorf("pin %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Pin{}, fmt.Errorf("failed to find pin %s: %w", id, err)
	}
	return pin, nil
}

func (s *MongoStore) ListPins(ctx context.Context) ([]Pin, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := s.pins.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list pins: %w", err)
	}

	pins := []Pin{}
	if err := cursor.All(ctx, &pins); err != nil {
		return nil, fmt.Errorf("failed to decode pins: %w", err)
	}
	return pins, nil
}

func (s *MongoStore) DeletePin(ctx context.Context, id string) error {
	res, err := s.pins.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete pin %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("pin %s: %w", id, ErrNotFound)
	}

	if _, err := s.photos.DeleteMany(ctx, bson.M{"pinId": id}); err != nil {
		return fmt.Errorf("failed to delete photos of pin %s: %w", id, err)
	}
	return nil
}

func (s *MongoStore) CreatePhoto(ctx context.Context, photo Photo) error {
	if err := s.requirePin(ctx, photo.PinID); err != nil {
		return err
	}

	_, err := s.photos.InsertOne(ctx, photo)
	if mongo.IsDuplicateKeyError(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to insert photo %s: %w", photo.ID, err)
	}
	return nil
}

func (s *MongoStore) GetPhoto(ctx context.Context, id string) (Photo, error) {
	var photo Photo
	err := s.photos.FindOne(ctx, bson.M{"_id": id}).Decode(&photo)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Photo{}, fmt.Errorf("photo %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Photo{}, fmt.Errorf("failed to find photo %s: %w", id, err)
	}
	return photo, nil
}

func (s *MongoStore) DeletePhoto(ctx context.Context, id string) error {
	res, err := s.photos.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete photo %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("photo %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *MongoStore) ListPhotos(ctx context.Context, pinID string) ([]Photo, error) {
	if err := s.requirePin(ctx, pinID); err != nil {
		return nil, err
	}

	opts := options.Find().SetSort(bson.D{{Key: "position", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := s.photos.Find(ctx, bson.M{"pinId": pinID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list photos of pin %s: %w", pinID, err)
	}

	photos := []Photo{}
	if err := cursor.All(ctx, &photos); err != nil {
		return nil, fmt.Errorf("failed to decode photos: %w", err)
	}
	return photos, nil
}

func (s *MongoStore) Save(ctx context.Context) error {
	return nil
}

func (s *MongoStore) Discard(ctx context.Context) error {
	return nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) requirePin(ctx context.Context, pinID string) error {
	n, err := s.pins.CountDocuments(ctx, bson.M{"_id": pinID})
	if err != nil {
		return fmt.Errorf("failed to query pin %s: %w", pinID, err)
	}
	if n == 0 {
		return fmt.Errorf("pin %s: %w", pinID, ErrNotFound)
	}
	return nil
}
