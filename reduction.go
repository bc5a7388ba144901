package junction

import "sync"

// QueueReduction tracks how far the combined queue has dropped relative to the first
// tick that saw any queue at all.
type QueueReduction struct {
	mutex    sync.Mutex
	baseline int
}

// NewQueueReduction creates a reduction tracker with no baseline
func NewQueueReduction() *QueueReduction {
	return &QueueReduction{}
}

// Observe records the current combined queue and returns the reduction percentage.
// The result is 0 until a baseline exists and never negative.
func (q *QueueReduction) Observe(total int) float64 {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	if total < 0 {
		total = 0
	}
	if q.baseline == 0 {
		q.baseline = total
		return 0
	}

	reduction := float64(q.baseline-total) / float64(q.baseline) * 100
	if reduction < 0 {
		return 0
	}
	return reduction
}

// Baseline returns the recorded baseline, 0 if none yet
func (q *QueueReduction) Baseline() int {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return q.baseline
}

// Reset clears the baseline
func (q *QueueReduction) Reset() {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	q.baseline = 0
}
