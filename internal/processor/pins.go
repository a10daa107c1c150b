package processor

import (
	"context"
	"fmt"

	"codeberg.org/snonux/virtualtourist/internal/batch"
	"codeberg.org/snonux/virtualtourist/internal/geo"
	"codeberg.org/snonux/virtualtourist/internal/store"
)

// DropPin stores a new pin at loc
func (p *Processor) DropPin(ctx context.Context, loc geo.Location) (store.Pin, error) {
	if err := loc.Validate(); err != nil {
		return store.Pin{}, err
	}

	pin := store.Pin{
		ID:        p.newID(),
		Latitude:  loc.Latitude,
		Longitude: loc.Longitude,
		CreatedAt: p.now().UTC(),
	}
	err := p.update(ctx, func() error {
		return p.store.CreatePin(ctx, pin)
	})
	if err != nil {
		return store.Pin{}, err
	}

	p.index.Insert(pin.ID, loc)
	p.logger.Info().Str("pin_id", pin.ID).Stringer("location", loc).Msg("pin dropped")
	return pin, nil
}

// DropPins stores one pin per entry of a batch file. It stops at the first
// failure and returns the pins created so far.
func (p *Processor) DropPins(ctx context.Context, batchFile string) ([]store.Pin, error) {
	entries, err := batch.ReadBatchFile(batchFile)
	if err != nil {
		return nil, err
	}

	pins := make([]store.Pin, 0, len(entries))
	for _, entry := range entries {
		pin, err := p.DropPin(ctx, entry.Location)
		if err != nil {
			return pins, fmt.Errorf("line %d: %w", entry.Line, err)
		}
		pins = append(pins, pin)
	}
	return pins, nil
}

// GetPin returns a single pin
func (p *Processor) GetPin(ctx context.Context, pinID string) (store.Pin, error) {
	return p.store.GetPin(ctx, pinID)
}

// ListPins returns all pins, oldest first
func (p *Processor) ListPins(ctx context.Context) ([]store.Pin, error) {
	return p.store.ListPins(ctx)
}

// DeletePin removes a pin with all of its photos and cached images
func (p *Processor) DeletePin(ctx context.Context, pinID string) error {
	if err := p.checkIdle(pinID); err != nil {
		return err
	}

	err := p.update(ctx, func() error {
		if _, err := p.store.GetPin(ctx, pinID); err != nil {
			return err
		}
		if err := p.deletePhotosOf(ctx, pinID); err != nil {
			return err
		}
		return p.store.DeletePin(ctx, pinID)
	})
	if err != nil {
		return err
	}

	p.index.Remove(pinID)
	p.logger.Info().Str("pin_id", pinID).Msg("pin deleted")
	return nil
}

// NearestPins returns up to k pins closest to loc, nearest first
func (p *Processor) NearestPins(ctx context.Context, loc geo.Location, k int) ([]store.Pin, error) {
	if err := loc.Validate(); err != nil {
		return nil, err
	}
	return p.resolve(ctx, p.index.Nearest(loc, k))
}

// PinsWithin returns all pins inside box
func (p *Processor) PinsWithin(ctx context.Context, box geo.BoundingBox) ([]store.Pin, error) {
	found, err := p.index.Within(box)
	if err != nil {
		return nil, err
	}
	return p.resolve(ctx, found)
}

func (p *Processor) resolve(ctx context.Context, found []geo.IndexedPin) ([]store.Pin, error) {
	pins := make([]store.Pin, 0, len(found))
	for _, f := range found {
		pin, err := p.store.GetPin(ctx, f.ID)
		if err != nil {
			return nil, err
		}
		pins = append(pins, pin)
	}
	return pins, nil
}
