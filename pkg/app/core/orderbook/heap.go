package orderbook

// sideHeap is a fixed-capacity binary heap of orders for one side of the book.
// slots[:count] always form a valid heap under better(side, ...);
// slots[count:] are stale and never read.
//
// container/heap is not used: it grows its backing slice through Push and
// recurses through an interface, while the book must reject at capacity and
// keep every loop bounded by a static count.
type sideHeap struct {
	side  Side
	slots []Order
	count int
}

func newSideHeap(side Side, capacity int) sideHeap {
	return sideHeap{side: side, slots: make([]Order, capacity)}
}

func (h *sideHeap) full() bool { return h.count >= len(h.slots) }

func (h *sideHeap) push(o Order) bool {
	if h.full() {
		return false
	}
	h.slots[h.count] = o
	h.count++
	h.up(h.count - 1)
	return true
}

func (h *sideHeap) peek() (Order, bool) {
	if h.count == 0 {
		return Order{}, false
	}
	return h.slots[0], true
}

func (h *sideHeap) pop() (Order, bool) {
	if h.count == 0 {
		return Order{}, false
	}
	top := h.slots[0]
	last := h.count - 1
	h.slots[0] = h.slots[last]
	h.slots[last] = Order{}
	h.count = last
	h.down(0)
	return top, true
}

// up moves slot i toward the root while it is strictly better than its parent.
func (h *sideHeap) up(i int) {
	for step := 0; step < len(h.slots) && i > 0; step++ {
		parent := (i - 1) / 2
		if !better(h.side, &h.slots[i], &h.slots[parent]) {
			return
		}
		h.slots[i], h.slots[parent] = h.slots[parent], h.slots[i]
		i = parent
	}
}

// down restores the heap below slot i. Terminates in at most log2(capacity)
// swaps; the loop is additionally capped at capacity iterations.
func (h *sideHeap) down(i int) {
	for step := 0; step < len(h.slots); step++ {
		best := i
		left, right := 2*i+1, 2*i+2
		if left < h.count && better(h.side, &h.slots[left], &h.slots[best]) {
			best = left
		}
		if right < h.count && better(h.side, &h.slots[right], &h.slots[best]) {
			best = right
		}
		if best == i {
			return
		}
		h.slots[i], h.slots[best] = h.slots[best], h.slots[i]
		i = best
	}
}

// check returns the first index whose parent is worse than it, or -1.
func (h *sideHeap) check() int {
	for i := 1; i < h.count; i++ {
		if better(h.side, &h.slots[i], &h.slots[(i-1)/2]) {
			return i
		}
	}
	return -1
}

func (h *sideHeap) clone() sideHeap {
	cp := sideHeap{side: h.side, slots: make([]Order, len(h.slots)), count: h.count}
	copy(cp.slots, h.slots[:h.count])
	return cp
}
