package window

import "testing"

func TestRingEmpty(t *testing.T) {
	r := NewRing[int](4)
	if r.Len() != 0 {
		t.Fatalf("expected empty ring, got len %d", r.Len())
	}
	if _, ok := r.PopFront(); ok {
		t.Error("expected PopFront on empty ring to report false")
	}
	if _, ok := r.Front(); ok {
		t.Error("expected Front on empty ring to report false")
	}
	if _, ok := r.Back(); ok {
		t.Error("expected Back on empty ring to report false")
	}
	if got := r.Items(); got != nil {
		t.Errorf("expected nil items, got %v", got)
	}
}

func TestRingPushAndPop(t *testing.T) {
	r := NewRing[int](4)
	for i := 0; i < 3; i++ {
		r.PushBack(i)
	}
	for i := 0; i < 3; i++ {
		v, ok := r.PopFront()
		if !ok || v != i {
			t.Fatalf("pop %d: got (%d, %v)", i, v, ok)
		}
	}
	if r.Len() != 0 {
		t.Errorf("expected empty ring after pops, got %d", r.Len())
	}
}

func TestRingGrowsWhenFull(t *testing.T) {
	r := NewRing[int](2)
	for i := 0; i < 9; i++ {
		r.PushBack(i)
	}
	if r.Len() != 9 {
		t.Fatalf("expected 9 items, got %d", r.Len())
	}
	for i, v := range r.Items() {
		if v != i {
			t.Errorf("item %d: got %d", i, v)
		}
	}
}

func TestRingWrapAroundKeepsOrder(t *testing.T) {
	r := NewRing[int](4)
	// Advance head so subsequent pushes wrap the underlying slice.
	for i := 0; i < 3; i++ {
		r.PushBack(i)
	}
	r.PopFront()
	r.PopFront()
	for i := 3; i < 8; i++ {
		r.PushBack(i)
	}

	want := []int{2, 3, 4, 5, 6, 7}
	got := r.Items()
	if len(got) != len(want) {
		t.Fatalf("expected %d items, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("item %d: got %d, want %d", i, got[i], want[i])
		}
		if r.At(i) != want[i] {
			t.Errorf("At(%d): got %d, want %d", i, r.At(i), want[i])
		}
	}
	if back, _ := r.Back(); back != 7 {
		t.Errorf("Back: got %d, want 7", back)
	}
}

func TestRingRetain(t *testing.T) {
	r := NewRing[int](4)
	for i := 0; i < 6; i++ {
		r.PushBack(i)
	}
	removed := r.Retain(func(v int) bool { return v%2 == 0 })
	if removed != 3 {
		t.Errorf("expected 3 removed, got %d", removed)
	}
	want := []int{0, 2, 4}
	got := r.Items()
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("item %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestRingClear(t *testing.T) {
	r := NewRing[string](2)
	r.PushBack("a")
	r.PushBack("b")
	r.Clear()
	if r.Len() != 0 {
		t.Errorf("expected empty after Clear, got %d", r.Len())
	}
	r.PushBack("c")
	if f, _ := r.Front(); f != "c" {
		t.Errorf("Front after Clear+Push: got %q", f)
	}
}

func TestRingAtOutOfRangePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for out-of-range At")
		}
	}()
	r := NewRing[int](2)
	r.PushBack(1)
	r.At(1)
}
