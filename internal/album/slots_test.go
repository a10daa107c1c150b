package album

import (
	"sync"
	"sync/atomic"
	"testing"
)

type countingHandle struct {
	cancels atomic.Int32
	done    atomic.Bool
}

func (h *countingHandle) Cancel() bool {
	h.cancels.Add(1)
	return !h.done.Load()
}

func TestSlotRegistry_ReplaceCancelsPrevious(t *testing.T) {
	r := NewSlotRegistry()
	first, second := &countingHandle{}, &countingHandle{}

	a := r.Replace(1, "a", first)
	if !r.Current(a) {
		t.Fatal("Expected fresh binding to be current")
	}

	b := r.Replace(1, "b", second)
	if first.cancels.Load() != 1 {
		t.Errorf("Expected previous handle canceled once, got %d", first.cancels.Load())
	}
	if second.cancels.Load() != 0 {
		t.Error("New handle must not be canceled")
	}
	if r.Current(a) || !r.Current(b) {
		t.Error("Expected slot 1 to belong to the second binding")
	}
	if r.Len() != 1 || r.Pending() != 2 {
		t.Errorf("Expected 1 slot and 2 pending, got %d and %d", r.Len(), r.Pending())
	}

	current, keep := r.Settle(a)
	if current || !keep {
		t.Errorf("Settle(superseded) = %v, %v", current, keep)
	}
	current, keep = r.Settle(b)
	if !current || !keep {
		t.Errorf("Settle(current) = %v, %v", current, keep)
	}
	if r.Len() != 0 || r.Pending() != 0 {
		t.Errorf("Expected empty registry, got %d slots and %d pending", r.Len(), r.Pending())
	}
}

func TestSlotRegistry_SlotsAreIndependent(t *testing.T) {
	r := NewSlotRegistry()
	h1, h2 := &countingHandle{}, &countingHandle{}

	r.Replace(1, "a", h1)
	r.Replace(2, "a", h2)

	if h1.cancels.Load() != 0 || h2.cancels.Load() != 0 {
		t.Error("Bindings on different slots must not cancel each other")
	}
	if r.Len() != 2 {
		t.Errorf("Expected 2 slots, got %d", r.Len())
	}
}

func TestSlotRegistry_Release(t *testing.T) {
	r := NewSlotRegistry()
	h := &countingHandle{}

	b := r.Replace(3, "a", h)
	if !r.Release(3) {
		t.Fatal("Expected Release to find the binding")
	}
	if r.Release(3) {
		t.Error("Expected second Release to find nothing")
	}
	if h.cancels.Load() != 1 {
		t.Errorf("Expected one cancel, got %d", h.cancels.Load())
	}

	if current, _ := r.Settle(b); current {
		t.Error("Released binding must not be current")
	}
}

func TestSlotRegistry_Forget(t *testing.T) {
	r := NewSlotRegistry()
	h1, h2, other := &countingHandle{}, &countingHandle{}, &countingHandle{}

	b1 := r.Replace(1, "a", h1)
	// superseded but still pending
	r.Replace(1, "x", &countingHandle{})
	b2 := r.Replace(2, "a", h2)
	b3 := r.Replace(3, "b", other)

	if n := r.Forget("a"); n != 2 {
		t.Errorf("Expected 2 forgotten downloads, got %d", n)
	}
	if other.cancels.Load() != 0 {
		t.Error("Forget must leave other photos alone")
	}

	if _, keep := r.Settle(b1); keep {
		t.Error("Forgotten superseded binding must not be kept")
	}
	current, keep := r.Settle(b2)
	if !current || keep {
		t.Errorf("Settle(forgotten current) = %v, %v", current, keep)
	}
	if _, keep := r.Settle(b3); !keep {
		t.Error("Unrelated binding must be kept")
	}

	if n := r.Forget("a"); n != 0 {
		t.Errorf("Expected settled bindings to be out of reach, got %d", n)
	}
}

func TestSlotRegistry_CancelAll(t *testing.T) {
	r := NewSlotRegistry()
	handles := []*countingHandle{{}, {}, {}}
	for i, h := range handles {
		r.Replace(SlotID(i), "p", h)
	}

	if n := r.CancelAll(); n != 3 {
		t.Errorf("Expected 3 canceled, got %d", n)
	}
	for i, h := range handles {
		if h.cancels.Load() != 1 {
			t.Errorf("handle %d canceled %d times", i, h.cancels.Load())
		}
	}
	if r.Len() != 0 {
		t.Errorf("Expected no occupied slots, got %d", r.Len())
	}
}

func TestSlotRegistry_ConcurrentReplace(t *testing.T) {
	r := NewSlotRegistry()
	var wg sync.WaitGroup

	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				b := r.Replace(SlotID(i%4), "p", &countingHandle{})
				r.Settle(b)
			}
		}()
	}
	wg.Wait()

	if r.Pending() != 0 {
		t.Errorf("Expected nothing pending, got %d", r.Pending())
	}
}
