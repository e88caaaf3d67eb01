package pqueue

import "container/heap"

// EventQueue orders pending completion times. Records live in an arena and
// popped slots go on a free list for reuse, so steady-state scheduling does
// not allocate.
type EventQueue struct {
	arena []float64
	free  []int
	order slotHeap
}

func NewEventQueue(capacity int) *EventQueue {
	q := &EventQueue{
		arena: make([]float64, 0, capacity),
		free:  make([]int, 0, capacity),
	}
	q.order.arena = &q.arena
	q.order.slots = make([]int, 0, capacity)
	return q
}

func (q *EventQueue) Len() int { return len(q.order.slots) }

func (q *EventQueue) Push(t float64) {
	var slot int
	if n := len(q.free); n > 0 {
		slot = q.free[n-1]
		q.free = q.free[:n-1]
		q.arena[slot] = t
	} else {
		slot = len(q.arena)
		q.arena = append(q.arena, t)
	}
	heap.Push(&q.order, slot)
}

func (q *EventQueue) Peek() (float64, bool) {
	if len(q.order.slots) == 0 {
		return 0, false
	}
	return q.arena[q.order.slots[0]], true
}

func (q *EventQueue) Pop() (float64, bool) {
	if len(q.order.slots) == 0 {
		return 0, false
	}
	slot := heap.Pop(&q.order).(int)
	t := q.arena[slot]
	q.arena[slot] = 0
	q.free = append(q.free, slot)
	return t, true
}

// Clear releases every pending record back to the free list.
func (q *EventQueue) Clear() {
	for _, slot := range q.order.slots {
		q.arena[slot] = 0
		q.free = append(q.free, slot)
	}
	q.order.slots = q.order.slots[:0]
}

type slotHeap struct {
	arena *[]float64
	slots []int
}

func (h slotHeap) Len() int           { return len(h.slots) }
func (h slotHeap) Less(i, j int) bool { return (*h.arena)[h.slots[i]] < (*h.arena)[h.slots[j]] }
func (h slotHeap) Swap(i, j int)      { h.slots[i], h.slots[j] = h.slots[j], h.slots[i] }

func (h *slotHeap) Push(x any) { h.slots = append(h.slots, x.(int)) }

func (h *slotHeap) Pop() any {
	n := len(h.slots)
	slot := h.slots[n-1]
	h.slots = h.slots[:n-1]
	return slot
}

// FIFO is a time-ordered queue for pure delays, where completions are
// scheduled in the order they are created.
type FIFO struct {
	items []float64
	head  int
}

func (q *FIFO) Len() int { return len(q.items) - q.head }

func (q *FIFO) Push(t float64) {
	if q.head > 0 && q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	}
	q.items = append(q.items, t)
}

func (q *FIFO) Peek() (float64, bool) {
	if q.Len() == 0 {
		return 0, false
	}
	return q.items[q.head], true
}

func (q *FIFO) Pop() (float64, bool) {
	if q.Len() == 0 {
		return 0, false
	}
	t := q.items[q.head]
	q.head++
	if q.head > 1024 && q.head*2 > len(q.items) {
		n := copy(q.items, q.items[q.head:])
		q.items = q.items[:n]
		q.head = 0
	}
	return t, true
}

func (q *FIFO) Clear() {
	q.items = q.items[:0]
	q.head = 0
}
