package pqueue

import (
	"math"
	"math/rand/v2"
	"sort"
	"testing"
)

func TestIndexedMinAndUpdate(t *testing.T) {
	q := NewIndexed([]float64{5, 3, 8, 1, math.Inf(1)})
	if item, key, ok := q.Min(); !ok || item != 3 || key != 1 {
		t.Fatalf("unexpected min: item=%d key=%f", item, key)
	}

	q.Update(3, 10)
	if item, key, _ := q.Min(); item != 1 || key != 3 {
		t.Fatalf("unexpected min after increase: item=%d key=%f", item, key)
	}
	q.Update(4, 0.5)
	if item, _, _ := q.Min(); item != 4 {
		t.Fatalf("expected item 4 after decrease, got %d", item)
	}
	if q.Key(3) != 10 {
		t.Fatalf("unexpected key for item 3: %f", q.Key(3))
	}
}

func TestIndexedEmptyHasNoMin(t *testing.T) {
	q := NewIndexed([]float64(nil))
	if q.Len() != 0 {
		t.Fatalf("expected empty queue, got %d items", q.Len())
	}
	if item, _, ok := q.Min(); ok || item != -1 {
		t.Fatalf("expected no min on empty queue, got item=%d ok=%v", item, ok)
	}
}

func TestIndexedRandomUpdatesKeepHeapOrder(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	keys := make([]int, 64)
	for i := range keys {
		keys[i] = rng.IntN(1000)
	}
	q := NewIndexed(keys)
	for step := 0; step < 2000; step++ {
		item := rng.IntN(len(keys))
		keys[item] = rng.IntN(1000)
		q.Update(item, keys[item])

		_, got, _ := q.Min()
		want := keys[0]
		for _, k := range keys {
			want = min(want, k)
		}
		if got != want {
			t.Fatalf("step %d: min=%d want %d", step, got, want)
		}
	}
}

func TestEventQueueOrdersAndReusesSlots(t *testing.T) {
	q := NewEventQueue(4)
	in := []float64{4, 1, 3, 2, 6, 5}
	for _, v := range in {
		q.Push(v)
	}
	if v, ok := q.Peek(); !ok || v != 1 {
		t.Fatalf("unexpected peek: %f %v", v, ok)
	}
	var out []float64
	for q.Len() > 0 {
		v, _ := q.Pop()
		out = append(out, v)
	}
	if !sort.Float64sAreSorted(out) || len(out) != len(in) {
		t.Fatalf("events not popped in order: %v", out)
	}
	if _, ok := q.Pop(); ok {
		t.Fatal("expected empty queue")
	}

	arena := len(q.arena)
	q.Push(9)
	q.Push(7)
	if len(q.arena) != arena {
		t.Fatalf("expected slot reuse, arena grew from %d to %d", arena, len(q.arena))
	}
	q.Clear()
	if q.Len() != 0 {
		t.Fatalf("expected empty queue after clear, got %d", q.Len())
	}
}

func TestFIFO(t *testing.T) {
	var q FIFO
	for i := 0; i < 3000; i++ {
		q.Push(float64(i))
	}
	for i := 0; i < 3000; i++ {
		v, ok := q.Pop()
		if !ok || v != float64(i) {
			t.Fatalf("pop %d: got %f %v", i, v, ok)
		}
	}
	if _, ok := q.Peek(); ok {
		t.Fatal("expected empty fifo")
	}
	q.Push(1)
	q.Clear()
	if q.Len() != 0 {
		t.Fatal("expected empty fifo after clear")
	}
}
