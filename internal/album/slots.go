package album

import "sync"

// SlotID identifies a reusable grid position
type SlotID int

// Handle is an in-flight operation that can be aborted
type Handle interface {
	// Cancel reports whether the cancellation won against completion
	Cancel() bool
}

// Binding ties the in-flight download of one photo to the slot it was
// started for
type Binding struct {
	slot    SlotID
	photoID string
	handle  Handle

	// guarded by the registry mutex
	superseded bool
	forgotten  bool
}

// Slot returns the slot the download was started for
func (b *Binding) Slot() SlotID {
	return b.slot
}

// PhotoID returns the photo being downloaded
func (b *Binding) PhotoID() string {
	return b.photoID
}

// SlotRegistry keeps at most one in-flight download per slot. Replacing the
// binding of an occupied slot cancels the previous download.
//
// Bindings stay pending until Settle is called for them, even after they
// were superseded, so Forget can still reach downloads whose completion has
// not been handled yet.
type SlotRegistry struct {
	mu      sync.Mutex
	slots   map[SlotID]*Binding
	pending map[*Binding]struct{}
}

// NewSlotRegistry creates an empty registry
func NewSlotRegistry() *SlotRegistry {
	return &SlotRegistry{
		slots:   make(map[SlotID]*Binding),
		pending: make(map[*Binding]struct{}),
	}
}

// Replace registers handle as the download for slot, canceling whatever was
// registered there before
func (r *SlotRegistry) Replace(slot SlotID, photoID string, handle Handle) *Binding {
	b := &Binding{slot: slot, photoID: photoID, handle: handle}

	r.mu.Lock()
	previous := r.slots[slot]
	if previous != nil {
		previous.superseded = true
	}
	r.slots[slot] = b
	r.pending[b] = struct{}{}
	r.mu.Unlock()

	if previous != nil {
		previous.handle.Cancel()
	}
	return b
}

// Release cancels the download registered for slot, if any. It reports
// whether there was one.
func (r *SlotRegistry) Release(slot SlotID) bool {
	r.mu.Lock()
	previous := r.slots[slot]
	if previous != nil {
		previous.superseded = true
		delete(r.slots, slot)
	}
	r.mu.Unlock()

	if previous == nil {
		return false
	}
	previous.handle.Cancel()
	return true
}

// Current reports whether b is still the binding of its slot
func (r *SlotRegistry) Current(b *Binding) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.slots[b.slot] == b
}

// Settle removes b once its completion has been handled. current reports
// whether the slot still belongs to b, keep whether the result may still be
// cached.
func (r *SlotRegistry) Settle(b *Binding) (current, keep bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.pending, b)
	if r.slots[b.slot] == b {
		delete(r.slots, b.slot)
	}
	return !b.superseded, !b.forgotten
}

// Forget cancels every pending download of photoID and marks it so its
// result is never cached. It returns how many downloads were affected.
func (r *SlotRegistry) Forget(photoID string) int {
	var handles []Handle

	r.mu.Lock()
	for b := range r.pending {
		if b.photoID != photoID {
			continue
		}
		b.forgotten = true
		handles = append(handles, b.handle)
	}
	r.mu.Unlock()

	for _, h := range handles {
		h.Cancel()
	}
	return len(handles)
}

// CancelAll cancels every pending download and empties all slots
func (r *SlotRegistry) CancelAll() int {
	var handles []Handle

	r.mu.Lock()
	for b := range r.pending {
		b.superseded = true
		handles = append(handles, b.handle)
	}
	r.slots = make(map[SlotID]*Binding)
	r.mu.Unlock()

	for _, h := range handles {
		h.Cancel()
	}
	return len(handles)
}

// Len returns the number of occupied slots
func (r *SlotRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.slots)
}

// Pending returns the number of bindings not settled yet
func (r *SlotRegistry) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
