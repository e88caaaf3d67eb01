// Package timeseries provides a fixed-capacity sliding window of (time, value)
// samples. Once full, each insert overwrites the oldest sample.
package timeseries

import "fmt"

type Window struct {
	times  []float64
	values []float64
	next   int
	stored int
	min    int
	last   float64
}

func NewWindow(capacity int) (*Window, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("window capacity must be positive: %d", capacity)
	}
	return &Window{
		times:  make([]float64, capacity),
		values: make([]float64, capacity),
	}, nil
}

func (w *Window) Cap() int { return len(w.times) }
func (w *Window) Len() int { return w.stored }

// LastTime is the timestamp of the most recent insert, or 0 when empty.
func (w *Window) LastTime() float64 { return w.last }

// MinTime is the timestamp of the oldest stored sample.
func (w *Window) MinTime() float64 { return w.times[w.min] }

func (w *Window) Insert(t, v float64) {
	w.last = t
	capacity := len(w.times)
	if w.stored < capacity {
		if w.stored == 0 {
			w.min = w.next
		}
		w.stored++
	} else {
		w.min = (w.next + 1) % capacity
	}
	w.times[w.next] = t
	w.values[w.next] = v
	w.next = (w.next + 1) % capacity
}

// Value returns the i-th oldest stored value.
func (w *Window) Value(i int) float64 { return w.values[w.internal(i)] }

// Time returns the i-th oldest stored timestamp.
func (w *Window) Time(i int) float64 { return w.times[w.internal(i)] }

func (w *Window) internal(i int) int {
	if i < 0 || i >= w.stored {
		panic(fmt.Sprintf("timeseries: index %d out of range [0,%d)", i, w.stored))
	}
	if w.stored < len(w.times) {
		return i
	}
	return (w.next + i) % len(w.times)
}

func (w *Window) Clear() {
	w.next = 0
	w.stored = 0
	w.min = 0
	w.last = 0
	clear(w.times)
	clear(w.values)
}
