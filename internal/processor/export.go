package processor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"codeberg.org/snonux/virtualtourist/internal"
	"codeberg.org/snonux/virtualtourist/internal/album"
	"codeberg.org/snonux/virtualtourist/internal/archive"
	"codeberg.org/snonux/virtualtourist/internal/image"
)

// ExportResult summarizes an album export
type ExportResult struct {
	Dir      string   `json:"dir"`
	Archived string   `json:"archived,omitempty"` // where the previous export went
	Files    []string `json:"files"`
	Missing  []string `json:"missing,omitempty"` // photos without URL or with failed downloads
}

// fileSink collects the outcome of one bound photo
type fileSink struct {
	slot album.SlotID

	mu      sync.Mutex
	img     *image.Image
	settled chan struct{}
	once    sync.Once
}

func newFileSink(slot album.SlotID) *fileSink {
	return &fileSink{slot: slot, settled: make(chan struct{})}
}

func (s *fileSink) Slot() album.SlotID { return s.slot }

func (s *fileSink) SetImage(img *image.Image) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.img = img
}

func (s *fileSink) SetAsset(asset album.Asset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.img = nil
}

func (s *fileSink) SetLoading(loading bool) {
	if !loading {
		s.once.Do(func() { close(s.settled) })
	}
}

func (s *fileSink) image() *image.Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.img
}

// Export writes the images of a pin's album to dir, one file per photo named
// after the photo ID. With archivePrevious an existing dir is archived first.
func (p *Processor) Export(ctx context.Context, pinID, dir string, archivePrevious bool) (*ExportResult, error) {
	if err := p.acquire(pinID); err != nil {
		return nil, err
	}
	defer p.release(pinID)

	photos, err := p.store.ListPhotos(ctx, pinID)
	if err != nil {
		return nil, err
	}

	result := &ExportResult{Dir: dir, Files: []string{}}
	if archivePrevious {
		if _, err := os.Stat(dir); err == nil {
			archived, err := archive.ArchiveExport(dir)
			if err != nil {
				return nil, err
			}
			result.Archived = archived
			p.logger.Info().Str("dir", dir).Str("archive", archived).Msg("previous export archived")
		}
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}

	// each export gets its own range of slots
	base := int(p.slots.Add(int64(len(photos)))) - len(photos)

	files := make([]string, len(photos))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.exportConcurrency)

	for i, photo := range photos {
		i, photo := i, photo
		g.Go(func() error {
			sink := newFileSink(album.SlotID(base + i))
			rec := image.PhotoRecord{ID: photo.ID, Title: photo.Title, ImageURL: photo.ImageURL}
			if err := p.binder.Bind(gctx, rec, sink); err != nil {
				return err
			}

			select {
			case <-sink.settled:
			case <-gctx.Done():
				return gctx.Err()
			}

			img := sink.image()
			if img == nil {
				return nil
			}

			name := internal.SanitizeFilename(photo.ID) + img.Extension()
			if err := os.WriteFile(filepath.Join(dir, name), img.Data, 0644); err != nil {
				return fmt.Errorf("failed to write %s: %w", name, err)
			}
			files[i] = name
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, photo := range photos {
		if files[i] == "" {
			result.Missing = append(result.Missing, photo.ID)
			continue
		}
		result.Files = append(result.Files, files[i])
	}

	p.logger.Info().
		Str("pin_id", pinID).
		Str("dir", dir).
		Int("written", len(result.Files)).
		Int("missing", len(result.Missing)).
		Msg("album exported")
	return result, nil
}
