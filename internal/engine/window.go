package engine

import "time"

// slidingWindow holds a time-ordered run of timestamps and evicts
// entries older than the window in amortized O(1) per call.
type slidingWindow struct {
	times []time.Time
	head  int
}

func newSlidingWindow() *slidingWindow {
	return &slidingWindow{times: make([]time.Time, 0, 64)}
}

func (w *slidingWindow) Add(ts time.Time) {
	w.times = append(w.times, ts)
}

func (w *slidingWindow) Evict(cutoff time.Time) {
	for w.head < len(w.times) {
		if !w.times[w.head].Before(cutoff) {
			break
		}
		w.head++
	}
	if w.head > 0 && w.head*2 >= len(w.times) {
		w.times = append([]time.Time{}, w.times[w.head:]...)
		w.head = 0
	}
}

func (w *slidingWindow) Count() int {
	return len(w.times) - w.head
}
