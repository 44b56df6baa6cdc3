// Package pqueue provides a bounded priority queue used by the Manhattan
// binner to retain the strongest associations it has seen so far while
// streaming through a sorted variant file, handing anything it evicts to a
// caller-supplied callback.
//
// Pop/Drain always return the item with the largest priority value held by
// the queue. AddCapped keeps the size smallest-priority items added so far:
// on overflow it evicts whichever of (current largest held, incoming item)
// has the larger priority, so the retained set is always the size smallest
// priorities seen. Ties in priority are broken by insertion order so the
// queue never has to compare payloads.
package pqueue

import "container/heap"

// Item is one entry handed to a Queue.
type Item struct {
	Value    interface{}
	Priority float64
}

type entry struct {
	item Item
	seq  int64
}

type innerHeap []entry

func (h innerHeap) Len() int { return len(h) }

func (h innerHeap) Less(i, j int) bool {
	if h[i].item.Priority != h[j].item.Priority {
		return h[i].item.Priority > h[j].item.Priority
	}
	return h[i].seq > h[j].seq
}

func (h innerHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *innerHeap) Push(x interface{}) { *h = append(*h, x.(entry)) }

func (h *innerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

// Queue is a bounded max-priority queue: Pop returns the largest-priority
// item currently held; AddCapped bounds the queue by evicting the item with
// the larger priority between the incoming item and the current maximum.
type Queue struct {
	h       innerHeap
	nextSeq int64
}

// New returns an empty queue.
func New() *Queue {
	return &Queue{}
}

// Len reports the number of items currently held.
func (q *Queue) Len() int { return q.h.Len() }

// Add unconditionally inserts item at the given priority.
func (q *Queue) Add(value interface{}, priority float64) {
	heap.Push(&q.h, entry{item: Item{Value: value, Priority: priority}, seq: q.nextSeq})
	q.nextSeq++
}

// AddCapped inserts (value, priority) while keeping the queue at most size
// items long. If the queue is already at size, the larger of {the current
// maximum-priority member, the incoming item} is evicted and passed to
// onEvict (which may be nil). Eviction never fires while the queue is below
// size.
func (q *Queue) AddCapped(value interface{}, priority float64, size int, onEvict func(Item)) {
	if q.h.Len() < size {
		q.Add(value, priority)
		return
	}
	incoming := Item{Value: value, Priority: priority}
	top := q.h[0].item
	if priority < top.Priority {
		heap.Push(&q.h, entry{item: incoming, seq: q.nextSeq})
		q.nextSeq++
		evicted := heap.Pop(&q.h).(entry).item
		if onEvict != nil {
			onEvict(evicted)
		}
		return
	}
	if onEvict != nil {
		onEvict(incoming)
	}
}

// Pop removes and returns the item with the largest priority, with ok false
// if the queue is empty.
func (q *Queue) Pop() (Item, bool) {
	if q.h.Len() == 0 {
		return Item{}, false
	}
	return heap.Pop(&q.h).(entry).item, true
}

// Drain removes and returns every held item, largest priority first.
func (q *Queue) Drain() []Item {
	out := make([]Item, 0, q.h.Len())
	for q.h.Len() > 0 {
		out = append(out, heap.Pop(&q.h).(entry).item)
	}
	return out
}

// Peek returns the largest-priority item without removing it.
func (q *Queue) Peek() (Item, bool) {
	if q.h.Len() == 0 {
		return Item{}, false
	}
	return q.h[0].item, true
}
