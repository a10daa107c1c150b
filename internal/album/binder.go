package album

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"codeberg.org/snonux/virtualtourist/internal/image"
)

// Asset is a built-in picture shown instead of a downloaded photo
type Asset int

const (
	// AssetPlaceholder is shown while a download is running
	AssetPlaceholder Asset = iota
	// AssetNoImage is shown for photos without a URL or failed downloads
	AssetNoImage
)

func (a Asset) String() string {
	switch a {
	case AssetPlaceholder:
		return "placeholder"
	case AssetNoImage:
		return "no-image"
	default:
		return "unknown"
	}
}

// Sink displays the photo bound to one slot. Its methods are only ever
// called from the Dispatcher.
type Sink interface {
	Slot() SlotID
	SetImage(img *image.Image)
	SetAsset(asset Asset)
	SetLoading(loading bool)
}

// Fetcher starts background downloads. *image.Fetcher implements it.
type Fetcher interface {
	Fetch(ctx context.Context, url string) *image.Task
}

// BinderConfig wires a Binder to its collaborators
type BinderConfig struct {
	Cache      *image.Cache
	Fetcher    Fetcher
	Dispatcher *Dispatcher
	Logger     zerolog.Logger
}

// Binder decides for each bound photo whether it comes from the cache or the
// network, and makes sure a slot only ever shows the photo last bound to it.
type Binder struct {
	cache      *image.Cache
	fetcher    Fetcher
	dispatcher *Dispatcher
	slots      *SlotRegistry
	logger     zerolog.Logger

	watchers sync.WaitGroup
}

// NewBinder creates a binder
func NewBinder(cfg *BinderConfig) *Binder {
	return &Binder{
		cache:      cfg.Cache,
		fetcher:    cfg.Fetcher,
		dispatcher: cfg.Dispatcher,
		slots:      NewSlotRegistry(),
		logger:     cfg.Logger,
	}
}

// Bind shows photo in sink. The download, if one is needed, runs under ctx.
// Bind must not be called from a function running on the Dispatcher.
func (b *Binder) Bind(ctx context.Context, photo image.PhotoRecord, sink Sink) error {
	return b.dispatcher.Do(ctx, func() {
		b.bind(ctx, photo, sink)
	})
}

func (b *Binder) bind(ctx context.Context, photo image.PhotoRecord, sink Sink) {
	slot := sink.Slot()

	if !photo.HasImage() {
		b.slots.Release(slot)
		sink.SetAsset(AssetNoImage)
		sink.SetLoading(false)
		return
	}

	if img, ok := b.cache.Get(photo.ID); ok {
		b.slots.Release(slot)
		sink.SetImage(img)
		sink.SetLoading(false)
		return
	}

	sink.SetAsset(AssetPlaceholder)
	sink.SetLoading(true)

	task := b.fetcher.Fetch(ctx, photo.ImageURL)
	binding := b.slots.Replace(slot, photo.ID, task)

	b.logger.Debug().
		Str("photo_id", photo.ID).
		Int("slot", int(slot)).
		Msg("image download started")

	b.watchers.Add(1)
	go b.await(binding, task, photo, sink)
}

// await waits for the download off the dispatcher and hands the outcome back to it
func (b *Binder) await(binding *Binding, task *image.Task, photo image.PhotoRecord, sink Sink) {
	defer b.watchers.Done()

	data, err := task.Result()
	if errors.Is(err, image.ErrCanceled) {
		b.dispatcher.Post(func() {
			b.slots.Settle(binding)
		})
		b.logger.Debug().Str("photo_id", photo.ID).Int("slot", int(binding.Slot())).Msg("image download canceled")
		return
	}

	var img *image.Image
	if err == nil {
		img, err = image.Decode(data)
	}

	b.dispatcher.Post(func() {
		current, keep := b.slots.Settle(binding)

		if err != nil {
			b.logger.Warn().
				Err(err).
				Str("photo_id", photo.ID).
				Str("url", photo.ImageURL).
				Int("slot", int(binding.Slot())).
				Msg("image download failed")
			if current {
				sink.SetAsset(AssetNoImage)
				sink.SetLoading(false)
			}
			return
		}

		if keep {
			b.cache.Put(photo.ID, img)
		}
		if current {
			sink.SetImage(img)
			sink.SetLoading(false)
		}
	})
}

// Unbind cancels the download running for slot, e.g. when its view goes away
func (b *Binder) Unbind(ctx context.Context, slot SlotID) error {
	return b.dispatcher.Do(ctx, func() {
		b.slots.Release(slot)
	})
}

// Forget drops photoID from the cache and cancels its downloads so that a
// late completion cannot put it back
func (b *Binder) Forget(ctx context.Context, photoID string) error {
	return b.dispatcher.Do(ctx, func() {
		if n := b.slots.Forget(photoID); n > 0 {
			b.logger.Debug().Str("photo_id", photoID).Int("downloads", n).Msg("canceled downloads of forgotten photo")
		}
		b.cache.Remove(photoID)
	})
}

// Put stores img in the cache from the dispatcher if exists, evaluated there
// as well, still reports the photo as present. A nil exists always stores.
func (b *Binder) Put(ctx context.Context, photoID string, img *image.Image, exists func() bool) (bool, error) {
	stored := false
	err := b.dispatcher.Do(ctx, func() {
		if exists != nil && !exists() {
			return
		}
		b.cache.Put(photoID, img)
		stored = true
	})
	return stored, err
}

// Wait blocks until every download started so far has been handled
func (b *Binder) Wait(ctx context.Context) error {
	b.watchers.Wait()
	// completions are posted before the watchers finish
	return b.dispatcher.Do(ctx, func() {})
}

// InFlight returns the number of slots with a running download
func (b *Binder) InFlight() int {
	return b.slots.Len()
}

// Close cancels every running download and waits for the watchers to finish
func (b *Binder) Close(ctx context.Context) error {
	err := b.dispatcher.Do(ctx, func() {
		if n := b.slots.CancelAll(); n > 0 {
			b.logger.Debug().Int("downloads", n).Msg("canceled pending downloads")
		}
	})
	if errors.Is(err, ErrStopped) {
		b.slots.CancelAll()
		err = nil
	}
	b.watchers.Wait()
	return err
}
