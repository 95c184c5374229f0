package wave

import "container/heap"

type cursor struct {
	times []TimeIdx
	pos   int
}

type cursorHeap []*cursor

func (h cursorHeap) Len() int           { return len(h) }
func (h cursorHeap) Less(i, j int) bool { return h[i].times[h[i].pos] < h[j].times[h[j].pos] }
func (h cursorHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *cursorHeap) Push(x any)        { *h = append(*h, x.(*cursor)) }
func (h *cursorHeap) Pop() any {
	old := *h
	n := len(old)
	c := old[n-1]
	*h = old[:n-1]
	return c
}

// MergeChanges merges the change indices of several signals into one sorted
// list without duplicates.
func MergeChanges(signals ...*Signal) []TimeIdx {
	h := make(cursorHeap, 0, len(signals))
	total := 0
	for _, s := range signals {
		if s == nil || len(s.times) == 0 {
			continue
		}
		h = append(h, &cursor{times: s.times})
		total += len(s.times)
	}
	heap.Init(&h)

	out := make([]TimeIdx, 0, total)
	for h.Len() > 0 {
		c := h[0]
		t := c.times[c.pos]
		if n := len(out); n == 0 || out[n-1] != t {
			out = append(out, t)
		}
		c.pos++
		if c.pos == len(c.times) {
			heap.Pop(&h)
		} else {
			heap.Fix(&h, 0)
		}
	}
	return out
}
