package timeseries

import "testing"

func TestWindowFillsThenSlides(t *testing.T) {
	w, err := NewWindow(3)
	if err != nil {
		t.Fatalf("new window: %v", err)
	}
	for i := 0; i < 2; i++ {
		w.Insert(float64(i), float64(10*i))
	}
	if w.Len() != 2 || w.MinTime() != 0 || w.LastTime() != 1 {
		t.Fatalf("unexpected partial window: len=%d min=%f last=%f", w.Len(), w.MinTime(), w.LastTime())
	}

	for i := 2; i < 5; i++ {
		w.Insert(float64(i), float64(10*i))
	}
	if w.Len() != 3 {
		t.Fatalf("expected full window, got len=%d", w.Len())
	}
	if w.MinTime() != 2 {
		t.Fatalf("expected oldest time 2, got %f", w.MinTime())
	}
	for i := 0; i < 3; i++ {
		if got, want := w.Time(i), float64(i+2); got != want {
			t.Fatalf("time[%d]=%f want %f", i, got, want)
		}
		if got, want := w.Value(i), float64(10*(i+2)); got != want {
			t.Fatalf("value[%d]=%f want %f", i, got, want)
		}
	}
}

func TestWindowClear(t *testing.T) {
	w, err := NewWindow(2)
	if err != nil {
		t.Fatalf("new window: %v", err)
	}
	w.Insert(1, 1)
	w.Insert(2, 2)
	w.Insert(3, 3)
	w.Clear()
	if w.Len() != 0 || w.LastTime() != 0 {
		t.Fatalf("expected empty window after clear, len=%d", w.Len())
	}
	w.Insert(7, 70)
	if w.MinTime() != 7 || w.Value(0) != 70 {
		t.Fatalf("unexpected window after reuse: min=%f value=%f", w.MinTime(), w.Value(0))
	}
}

func TestWindowRejectsBadCapacity(t *testing.T) {
	if _, err := NewWindow(0); err == nil {
		t.Fatal("expected capacity error")
	}
}

func TestWindowIndexOutOfRangePanics(t *testing.T) {
	w, _ := NewWindow(4)
	w.Insert(0, 1)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for unstored index")
		}
	}()
	_ = w.Value(1)
}
