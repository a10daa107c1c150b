package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"codeberg.org/snonux/virtualtourist/internal"
	"codeberg.org/snonux/virtualtourist/internal/album"
	"codeberg.org/snonux/virtualtourist/internal/geo"
	"codeberg.org/snonux/virtualtourist/internal/image"
	"codeberg.org/snonux/virtualtourist/internal/store"
)

var (
	// ErrBusy is returned while a collection of the pin is being searched
	// or exported
	ErrBusy = errors.New("photo collection download in progress")

	// ErrNoImage is returned for photos the API returned without an image URL
	ErrNoImage = errors.New("photo has no image")
)

// Fetcher downloads images in the background for the binder and blocking
// for single lookups. *image.Fetcher implements it.
type Fetcher interface {
	album.Fetcher
	Download(ctx context.Context, url string) ([]byte, error)
}

// Config wires a Processor to its collaborators
type Config struct {
	Store    store.Store
	Searcher image.PhotoSearcher
	Fetcher  Fetcher
	Cache    *image.Cache // created when nil

	// ExportConcurrency bounds the number of photos exported at once
	ExportConcurrency int

	Logger zerolog.Logger
	Now    func() time.Time
	NewID  func() string
}

// Processor handles pins and their photo albums
type Processor struct {
	store    store.Store
	searcher image.PhotoSearcher
	fetcher  Fetcher
	cache    *image.Cache
	index    *geo.PinIndex

	dispatcher *album.Dispatcher
	binder     *album.Binder

	exportConcurrency int
	slots             atomic.Int64
	logger            zerolog.Logger
	now               func() time.Time
	newID             func() string

	mu   sync.Mutex
	busy map[string]bool

	// writeMu makes each write-then-Save sequence one unit of work on the
	// store, whose pending writes are shared
	writeMu sync.Mutex
}

// NewProcessor creates a processor and loads all pins into the pin index
func NewProcessor(ctx context.Context, cfg *Config) (*Processor, error) {
	if cfg == nil || cfg.Store == nil {
		return nil, fmt.Errorf("processor needs a store")
	}

	p := &Processor{
		store:             cfg.Store,
		searcher:          cfg.Searcher,
		fetcher:           cfg.Fetcher,
		cache:             cfg.Cache,
		index:             geo.NewPinIndex(),
		exportConcurrency: cfg.ExportConcurrency,
		logger:            cfg.Logger,
		now:               cfg.Now,
		newID:             cfg.NewID,
		busy:              make(map[string]bool),
	}
	if p.cache == nil {
		p.cache = image.NewCache(p.logger)
	}
	if p.exportConcurrency <= 0 {
		p.exportConcurrency = 8
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.newID == nil {
		p.newID = internal.NewPinID
	}

	if err := p.rebuildIndex(ctx); err != nil {
		return nil, err
	}

	p.dispatcher = album.NewDispatcher(context.Background(), 256, p.logger)
	p.binder = album.NewBinder(&album.BinderConfig{
		Cache:      p.cache,
		Fetcher:    p.fetcher,
		Dispatcher: p.dispatcher,
		Logger:     p.logger,
	})

	return p, nil
}

func (p *Processor) rebuildIndex(ctx context.Context) error {
	pins, err := p.store.ListPins(ctx)
	if err != nil {
		return fmt.Errorf("failed to load pins: %w", err)
	}
	for _, pin := range pins {
		p.index.Insert(pin.ID, pin.Location())
	}
	p.logger.Debug().Int("pins", len(pins)).Msg("pin index built")
	return nil
}

// Cache returns the image cache shared by all albums
func (p *Processor) Cache() *image.Cache {
	return p.cache
}

// Binder returns the binder that shows photos in grid slots
func (p *Processor) Binder() *album.Binder {
	return p.binder
}

// Close cancels running downloads and stops the dispatcher. The store is
// left open.
func (p *Processor) Close(ctx context.Context) error {
	err := p.binder.Close(ctx)
	p.dispatcher.Stop()
	return err
}

// update runs fn as one unit of work: its writes are saved together or, if
// fn fails, discarded so the next Save cannot commit half of them
func (p *Processor) update(ctx context.Context, fn func() error) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	err := fn()
	if err == nil {
		err = p.store.Save(ctx)
	}
	if err != nil {
		if derr := p.store.Discard(context.Background()); derr != nil {
			p.logger.Error().Err(derr).Msg("failed to discard pending changes")
		}
		return err
	}
	return nil
}

// checkIdle fails with ErrBusy while a search or export holds pinID. Deletes
// only check the pin, so any number of them can run side by side.
func (p *Processor) checkIdle(pinID string) error {
	if p.Busy(pinID) {
		return fmt.Errorf("pin %s: %w", pinID, ErrBusy)
	}
	return nil
}

// acquire marks pinID busy or fails with ErrBusy if it already is
func (p *Processor) acquire(pinID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.busy[pinID] {
		return fmt.Errorf("pin %s: %w", pinID, ErrBusy)
	}
	p.busy[pinID] = true
	return nil
}

func (p *Processor) release(pinID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.busy, pinID)
}

// Busy reports whether a collection download for pinID is running
func (p *Processor) Busy(pinID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.busy[pinID]
}

// Search runs a photo search around loc without storing anything
func (p *Processor) Search(ctx context.Context, loc geo.Location) ([]image.PhotoRecord, error) {
	if p.searcher == nil {
		return nil, fmt.Errorf("no photo searcher configured")
	}
	return p.searcher.Search(ctx, loc)
}

// LoadAlbum returns the photos of a pin. A pin without photos gets a new
// collection from the photo search first.
func (p *Processor) LoadAlbum(ctx context.Context, pinID string) ([]store.Photo, error) {
	if err := p.acquire(pinID); err != nil {
		return nil, err
	}
	defer p.release(pinID)

	pin, err := p.store.GetPin(ctx, pinID)
	if err != nil {
		return nil, err
	}

	photos, err := p.store.ListPhotos(ctx, pinID)
	if err != nil {
		return nil, err
	}
	if len(photos) > 0 {
		p.logger.Debug().Str("pin_id", pinID).Int("photos", len(photos)).Msg("album loaded from store")
		return photos, nil
	}

	return p.searchAndStore(ctx, pin)
}

// ListPhotos returns the stored photos of a pin without searching
func (p *Processor) ListPhotos(ctx context.Context, pinID string) ([]store.Photo, error) {
	if _, err := p.store.GetPin(ctx, pinID); err != nil {
		return nil, err
	}
	return p.store.ListPhotos(ctx, pinID)
}

// NewCollection replaces all photos of a pin with a fresh search result
func (p *Processor) NewCollection(ctx context.Context, pinID string) ([]store.Photo, error) {
	if err := p.acquire(pinID); err != nil {
		return nil, err
	}
	defer p.release(pinID)

	pin, err := p.store.GetPin(ctx, pinID)
	if err != nil {
		return nil, err
	}

	err = p.update(ctx, func() error {
		return p.deletePhotosOf(ctx, pinID)
	})
	if err != nil {
		return nil, err
	}

	return p.searchAndStore(ctx, pin)
}

// searchAndStore runs the photo search for pin and persists the results
func (p *Processor) searchAndStore(ctx context.Context, pin store.Pin) ([]store.Photo, error) {
	if p.searcher == nil {
		return nil, fmt.Errorf("no photo searcher configured")
	}

	records, err := p.searcher.Search(ctx, pin.Location())
	if err != nil {
		return nil, fmt.Errorf("photo search for pin %s failed: %w", pin.ID, err)
	}

	createdAt := p.now().UTC()
	err = p.update(ctx, func() error {
		for i, rec := range records {
			photo := store.Photo{
				ID:        rec.ID,
				PinID:     pin.ID,
				Position:  i,
				Title:     rec.Title,
				ImageURL:  rec.ImageURL,
				CreatedAt: createdAt,
			}
			if err := p.store.CreatePhoto(ctx, photo); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	photos, err := p.store.ListPhotos(ctx, pin.ID)
	if err != nil {
		return nil, err
	}

	p.logger.Info().
		Str("pin_id", pin.ID).
		Str("provider", p.searcher.Name()).
		Int("found", len(records)).
		Int("stored", len(photos)).
		Msg("new photo collection")
	return photos, nil
}

// deletePhotosOf removes every photo of pinID from the store and the cache.
// It runs inside update.
func (p *Processor) deletePhotosOf(ctx context.Context, pinID string) error {
	photos, err := p.store.ListPhotos(ctx, pinID)
	if err != nil {
		return err
	}

	for _, photo := range photos {
		if err := p.store.DeletePhoto(ctx, photo.ID); err != nil {
			return err
		}
		if err := p.binder.Forget(ctx, photo.ID); err != nil {
			return err
		}
	}
	return nil
}

// DeletePhoto removes a single photo and its cached image
func (p *Processor) DeletePhoto(ctx context.Context, photoID string) error {
	photo, err := p.store.GetPhoto(ctx, photoID)
	if err != nil {
		return err
	}

	if err := p.checkIdle(photo.PinID); err != nil {
		return err
	}

	err = p.update(ctx, func() error {
		if err := p.store.DeletePhoto(ctx, photoID); err != nil {
			return err
		}
		return p.binder.Forget(ctx, photoID)
	})
	if err != nil {
		return err
	}

	p.logger.Debug().Str("photo_id", photoID).Str("pin_id", photo.PinID).Msg("photo deleted")
	return nil
}

// PhotoImage returns the image of a photo from the cache, downloading it on a miss
func (p *Processor) PhotoImage(ctx context.Context, photoID string) (*image.Image, error) {
	photo, err := p.store.GetPhoto(ctx, photoID)
	if err != nil {
		return nil, err
	}
	if photo.ImageURL == "" {
		return nil, fmt.Errorf("photo %s: %w", photoID, ErrNoImage)
	}

	if img, ok := p.cache.Get(photoID); ok {
		return img, nil
	}

	data, err := p.fetcher.Download(ctx, photo.ImageURL)
	if err != nil {
		return nil, err
	}
	img, err := image.Decode(data)
	if err != nil {
		return nil, &image.DownloadError{URL: photo.ImageURL, Err: err}
	}

	// the photo may have been deleted while downloading
	_, err = p.binder.Put(ctx, photoID, img, func() bool {
		_, err := p.store.GetPhoto(ctx, photoID)
		return err == nil
	})
	if err != nil {
		return nil, err
	}
	return img, nil
}
