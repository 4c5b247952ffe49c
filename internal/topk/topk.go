// Package topk keeps the highest scoring rows seen across a stream of
// batches.
package topk

import "cmp"

// Item is a scored row. Index is the zero-based row index.
type Item struct {
	Index int64
	Score float32
}

// better orders by score, breaking ties in favor of the lower index.
func better(a, b Item) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.Index < b.Index
}

// Heap is a bounded min-heap: its top is the worst retained item, so a
// candidate only enters when it beats the top. It does NOT implement
// container/heap to avoid interface overhead.
type Heap struct {
	capacity int
	items    []Item
}

// New creates a heap retaining at most capacity items.
func New(capacity int) *Heap {
	return &Heap{
		capacity: max(capacity, 0),
		items:    make([]Item, 0, min(max(capacity, 0), 1024)),
	}
}

// Len returns the number of retained items.
func (h *Heap) Len() int { return len(h.items) }

// Push offers an item to the heap.
func (h *Heap) Push(it Item) {
	if h.capacity == 0 {
		return
	}
	if len(h.items) < h.capacity {
		h.items = append(h.items, it)
		h.siftUp(len(h.items) - 1)
		return
	}
	if better(it, h.items[0]) {
		h.items[0] = it
		h.siftDown(0)
	}
}

// Worst returns the lowest retained item.
func (h *Heap) Worst() (Item, bool) {
	if len(h.items) == 0 {
		return Item{}, false
	}
	return h.items[0], true
}

// Full reports whether the heap holds capacity items.
func (h *Heap) Full() bool { return len(h.items) >= h.capacity }

// Sorted drains the heap and returns its items best first.
func (h *Heap) Sorted() []Item {
	out := make([]Item, len(h.items))
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = h.pop()
	}
	return out
}

// PushScores offers scores[i] as row base+i for every score that is at
// least minScore.
func (h *Heap) PushScores(base int64, scores []float32, minScore *float32) {
	for i, s := range scores {
		if minScore != nil && s < *minScore {
			continue
		}
		it := Item{Index: base + int64(i), Score: s}
		if h.Full() && !better(it, h.items[0]) {
			continue
		}
		h.Push(it)
	}
}

func (h *Heap) pop() Item {
	n := len(h.items)
	top := h.items[0]
	h.items[0] = h.items[n-1]
	h.items = h.items[:n-1]
	if len(h.items) > 0 {
		h.siftDown(0)
	}
	return top
}

// less keeps the worst item at the root.
func (h *Heap) less(i, j int) bool { return better(h.items[j], h.items[i]) }

func (h *Heap) siftUp(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if !h.less(i, parent) {
			break
		}
		h.items[i], h.items[parent] = h.items[parent], h.items[i]
		i = parent
	}
}

func (h *Heap) siftDown(i int) {
	n := len(h.items)
	for {
		left := 2*i + 1
		if left >= n {
			return
		}
		smallest := left
		if right := left + 1; right < n && h.less(right, left) {
			smallest = right
		}
		if !h.less(smallest, i) {
			return
		}
		h.items[i], h.items[smallest] = h.items[smallest], h.items[i]
		i = smallest
	}
}

// Compare orders items best first; usable with slices.SortFunc.
func Compare(a, b Item) int {
	if c := cmp.Compare(b.Score, a.Score); c != 0 {
		return c
	}
	return cmp.Compare(a.Index, b.Index)
}
