package sequencer

import "container/heap"

// noteOff is one pending note-off: AtMillis is the absolute time (in the
// clock's monotonic millisecond base) the note-off fires.
type noteOff struct {
	AtMillis int64
	Channel  int
	Note     int
}

// noteOffHeap is a binary min-heap ordered by AtMillis, per spec.md §4.6
// step 2's "push (note_off_time, channel, note) into a binary min-heap."
type noteOffHeap []noteOff

func (h noteOffHeap) Len() int            { return len(h) }
func (h noteOffHeap) Less(i, j int) bool  { return h[i].AtMillis < h[j].AtMillis }
func (h noteOffHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *noteOffHeap) Push(x any)         { *h = append(*h, x.(noteOff)) }
func (h *noteOffHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

var _ heap.Interface = (*noteOffHeap)(nil)

func heapPush(h *noteOffHeap, n noteOff) { heap.Push(h, n) }
func heapPop(h *noteOffHeap) noteOff     { return heap.Pop(h).(noteOff) }

// popDue removes and returns every heap entry whose AtMillis is <= threshold,
// in ascending time order, per spec.md §4.6 step 3.
func popDue(h *noteOffHeap, threshold int64) []noteOff {
	var due []noteOff
	for h.Len() > 0 && (*h)[0].AtMillis <= threshold {
		due = append(due, heap.Pop(h).(noteOff))
	}
	return due
}
