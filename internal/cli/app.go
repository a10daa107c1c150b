package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"codeberg.org/snonux/virtualtourist/internal/image"
	"codeberg.org/snonux/virtualtourist/internal/processor"
	"codeberg.org/snonux/virtualtourist/internal/store"
)

// ErrNoAPIKey is returned by commands that search without flickr.api_key
var ErrNoAPIKey = errors.New("flickr.api_key is not set (config file or VIRTUALTOURIST_FLICKR_API_KEY)")

// App bundles the store and processor built from a Config
type App struct {
	Config    *Config
	Logger    zerolog.Logger
	Store     store.Store
	Processor *processor.Processor
}

// NewApp opens the configured store and wires the processor to it. Without
// an API key the processor has no searcher and only works on stored albums.
func NewApp(ctx context.Context, cfg *Config, logger zerolog.Logger) (*App, error) {
	st, err := store.Open(ctx, cfg.Store, logger)
	if err != nil {
		return nil, err
	}

	var searcher image.PhotoSearcher
	if cfg.Flickr.APIKey != "" {
		client, err := image.NewFlickrClient(&image.FlickrConfig{
			BaseURL:           cfg.Flickr.BaseURL,
			Options:           cfg.Flickr.SearchOptions(),
			Timeout:           cfg.Flickr.Timeout,
			RequestsPerSecond: cfg.Flickr.RequestsPerSecond,
			Burst:             cfg.Flickr.Burst,
			BreakerThreshold:  cfg.Flickr.BreakerThreshold,
			BreakerCooldown:   cfg.Flickr.BreakerCooldown,
			Logger:            logger,
		})
		if err != nil {
			st.Close(ctx)
			return nil, err
		}
		searcher = client
	}

	fetcher := image.NewFetcher(&image.DownloadOptions{
		Timeout:      cfg.Download.Timeout,
		MaxSizeBytes: cfg.Download.MaxSizeBytes,
	}, logger)

	p, err := processor.NewProcessor(ctx, &processor.Config{
		Store:             st,
		Searcher:          searcher,
		Fetcher:           fetcher,
		ExportConcurrency: cfg.Download.Concurrency,
		Logger:            logger,
	})
	if err != nil {
		st.Close(ctx)
		return nil, err
	}

	return &App{Config: cfg, Logger: logger, Store: st, Processor: p}, nil
}

// RequireSearch fails with ErrNoAPIKey when no photo search is configured
func (a *App) RequireSearch() error {
	if a.Config.Flickr.APIKey == "" {
		return ErrNoAPIKey
	}
	return nil
}

// Close stops the processor and closes the store
func (a *App) Close(ctx context.Context) error {
	perr := a.Processor.Close(ctx)
	if err := a.Store.Close(ctx); err != nil {
		return fmt.Errorf("failed to close store: %w", err)
	}
	return perr
}
