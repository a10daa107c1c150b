package store

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore keeps everything in process memory. Writes are visible
// immediately and Save is a no-op.
type MemoryStore struct {
	mu     sync.RWMutex
	pins   map[string]Pin
	photos map[string]Photo
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		pins:   make(map[string]Pin),
		photos: make(map[string]Photo),
	}
}

func (s *MemoryStore) CreatePin(ctx context.Context, pin Pin) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.pins[pin.ID]; exists {
		return fmt.Errorf("pin %s already exists", pin.ID)
	}
	s.pins[pin.ID] = pin
	return nil
}

func (s *MemoryStore) GetPin(ctx context.Context, id string) (Pin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pin, ok := s.pins[id]
	if !ok {
		return Pin{}, fmt.Errorf("pin %s: %w", id, ErrNotFound)
	}
	return pin, nil
}

func (s *MemoryStore) ListPins(ctx context.Context) ([]Pin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pins := make([]Pin, 0, len(s.pins))
	for _, pin := range s.pins {
		pins = append(pins, pin)
	}
	sortPins(pins)
	return pins, nil
}

func (s *MemoryStore) DeletePin(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pins[id]; !ok {
		return fmt.Errorf("pin %s: %w", id, ErrNotFound)
	}
	for photoID, photo := range s.photos {
		if photo.PinID == id {
			delete(s.photos, photoID)
		}
	}
	delete(s.pins, id)
	return nil
}

func (s *MemoryStore) CreatePhoto(ctx context.Context, photo Photo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pins[photo.PinID]; !ok {
		return fmt.Errorf("pin %s: %w", photo.PinID, ErrNotFound)
	}
	if _, exists := s.photos[photo.ID]; exists {
		return nil
	}
	s.photos[photo.ID] = photo
	return nil
}

func (s *MemoryStore) GetPhoto(ctx context.Context, id string) (Photo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	photo, ok := s.photos[id]
	if !ok {
		return Photo{}, fmt.Errorf("photo %s: %w", id, ErrNotFound)
	}
	return photo, nil
}

func (s *MemoryStore) DeletePhoto(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.photos[id]; !ok {
		return fmt.Errorf("photo %s: %w", id, ErrNotFound)
	}
	delete(s.photos, id)
	return nil
}

func (s *MemoryStore) ListPhotos(ctx context.Context, pinID string) ([]Photo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.pins[pinID]; !ok {
		return nil, fmt.Errorf("pin %s: %w", pinID, ErrNotFound)
	}

	photos := []Photo{}
	for _, photo := range s.photos {
		if photo.PinID == pinID {
			photos = append(photos, photo)
		}
	}
	sortPhotos(photos)
	return photos, nil
}

func (s *MemoryStore) Save(ctx context.Context) error {
	return nil
}

func (s *MemoryStore) Discard(ctx context.Context) error {
	return nil
}

func (s *MemoryStore) Close(ctx context.Context) error {
	return nil
}
