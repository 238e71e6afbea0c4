package registry

import (
	"errors"
	"sync"
	"testing"

	"github.com/dshills/chartbridge/internal/chart"
)

func TestRegisterLookup(t *testing.T) {
	r := New()
	c := chart.New("a", nil)

	h := r.Register(c)
	if h == 0 {
		t.Fatal("Register returned zero handle")
	}

	got, err := r.Lookup(h)
	if err != nil {
		t.Fatalf("Lookup error = %v", err)
	}
	if got != c {
		t.Error("Lookup returned a different instance")
	}
}

func TestUnregister(t *testing.T) {
	r := New()
	h := r.Register(chart.New("a", nil))

	if err := r.Unregister(h); err != nil {
		t.Fatalf("Unregister error = %v", err)
	}
	if _, err := r.Lookup(h); !errors.Is(err, ErrHandleNotFound) {
		t.Errorf("Lookup after Unregister error = %v, want ErrHandleNotFound", err)
	}
	if err := r.Unregister(h); !errors.Is(err, ErrHandleNotFound) {
		t.Errorf("second Unregister error = %v, want ErrHandleNotFound", err)
	}
	if r.Len() != 0 {
		t.Errorf("Len = %d, want 0", r.Len())
	}
}

func TestLookupUnknown(t *testing.T) {
	r := New()
	if _, err := r.Lookup(42); !errors.Is(err, ErrHandleNotFound) {
		t.Errorf("Lookup(42) error = %v, want ErrHandleNotFound", err)
	}
	if _, err := r.Lookup(0); !errors.Is(err, ErrHandleNotFound) {
		t.Errorf("Lookup(0) error = %v, want ErrHandleNotFound", err)
	}
}

func TestHandlesNeverReused(t *testing.T) {
	r := New()
	seen := make(map[Handle]bool)
	for i := 0; i < 100; i++ {
		h := r.Register(chart.New("c", nil))
		if seen[h] {
			t.Fatalf("handle %s reused", h)
		}
		seen[h] = true
		if i%2 == 0 {
			_ = r.Unregister(h)
		}
	}
}

func TestWithFirstHandle(t *testing.T) {
	r := New(WithFirstHandle(7))
	if h := r.Register(chart.New("c", nil)); h != 7 {
		t.Errorf("first handle = %s, want 7", h)
	}
	if h := r.Register(chart.New("c", nil)); h != 8 {
		t.Errorf("second handle = %s, want 8", h)
	}
}

func TestHandlesSorted(t *testing.T) {
	r := New()
	for i := 0; i < 5; i++ {
		r.Register(chart.New("c", nil))
	}
	_ = r.Unregister(3)

	got := r.Handles()
	want := []Handle{1, 2, 4, 5}
	if len(got) != len(want) {
		t.Fatalf("Handles() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Handles()[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestRangeStops(t *testing.T) {
	r := New()
	for i := 0; i < 3; i++ {
		r.Register(chart.New("c", nil))
	}
	count := 0
	r.Range(func(Handle, chart.Instance) bool {
		count++
		return count < 2
	})
	if count != 2 {
		t.Errorf("Range visited %d entries, want 2", count)
	}
}

func TestConcurrentAccess(t *testing.T) {
	r := New()
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				h := r.Register(chart.New("c", nil))
				if _, err := r.Lookup(h); err != nil {
					t.Errorf("Lookup of fresh handle failed: %v", err)
					return
				}
				if err := r.Unregister(h); err != nil {
					t.Errorf("Unregister failed: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	if r.Len() != 0 {
		t.Errorf("Len = %d after concurrent register/unregister, want 0", r.Len())
	}
}
