// Package pqueue holds the priority queues used by the discrete-event
// simulators.
package pqueue

import "golang.org/x/exp/constraints"

// Indexed is a min-heap over a fixed set of items 0..n-1, each carrying a
// key that can be changed in place in O(log n).
type Indexed[K constraints.Ordered] struct {
	keys []K
	heap []int // heap position -> item
	pos  []int // item -> heap position
}

func NewIndexed[K constraints.Ordered](keys []K) *Indexed[K] {
	q := &Indexed[K]{
		keys: append([]K(nil), keys...),
		heap: make([]int, len(keys)),
		pos:  make([]int, len(keys)),
	}
	for i := range keys {
		q.heap[i] = i
		q.pos[i] = i
	}
	for i := len(keys)/2 - 1; i >= 0; i-- {
		q.down(i)
	}
	return q
}

func (q *Indexed[K]) Len() int { return len(q.keys) }

func (q *Indexed[K]) Key(item int) K { return q.keys[item] }

// Min returns the item with the smallest key. ok is false when the queue
// holds no items.
func (q *Indexed[K]) Min() (item int, key K, ok bool) {
	if len(q.heap) == 0 {
		return -1, key, false
	}
	item = q.heap[0]
	return item, q.keys[item], true
}

func (q *Indexed[K]) Update(item int, key K) {
	old := q.keys[item]
	q.keys[item] = key
	switch {
	case key < old:
		q.up(q.pos[item])
	case old < key:
		q.down(q.pos[item])
	}
}

func (q *Indexed[K]) less(i, j int) bool {
	return q.keys[q.heap[i]] < q.keys[q.heap[j]]
}

func (q *Indexed[K]) swap(i, j int) {
	q.heap[i], q.heap[j] = q.heap[j], q.heap[i]
	q.pos[q.heap[i]] = i
	q.pos[q.heap[j]] = j
}

func (q *Indexed[K]) up(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if !q.less(i, parent) {
			return
		}
		q.swap(i, parent)
		i = parent
	}
}

func (q *Indexed[K]) down(i int) {
	n := len(q.heap)
	for {
		smallest := i
		if l := 2*i + 1; l < n && q.less(l, smallest) {
			smallest = l
		}
		if r := 2*i + 2; r < n && q.less(r, smallest) {
			smallest = r
		}
		if smallest == i {
			return
		}
		q.swap(i, smallest)
		i = smallest
	}
}
