package poller

// timerItem mirrors the original's TimerEventItem; timerHeap is a
// container/heap min-heap keyed by expiration, matching the C++
// priority_queue's inverted operator< (min-heap over a max-heap container).
type timerItem struct {
	expiration int64
	interval   int
	repeat     bool
	callback   Callback
	arg        any
}

type timerHeap []*timerItem

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].expiration < h[j].expiration }
func (h timerHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *timerHeap) Push(x any)         { *h = append(*h, x.(*timerItem)) }
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
