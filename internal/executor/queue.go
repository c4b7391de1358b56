package executor

import "github.com/GriffinCanCode/blueprint/internal/value"

// readyItem is one dispatchable node. wave groups nodes that became
// ready from the same transition, so dispatch is FIFO across waves and
// id-ordered within a wave. Nodes parked by the concurrency cap keep
// that order.
type readyItem struct {
	id   value.NodeID
	wave uint64
}

// readyQueue is a min-heap over (wave, id).
type readyQueue []readyItem

func (q readyQueue) Len() int { return len(q) }

func (q readyQueue) Less(i, j int) bool {
	if q[i].wave != q[j].wave {
		return q[i].wave < q[j].wave
	}
	return q[i].id < q[j].id
}

func (q readyQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *readyQueue) Push(x interface{}) {
	*q = append(*q, x.(readyItem))
}

func (q *readyQueue) Pop() interface{} {
	old := *q
	n := len(old)
	it := old[n-1]
	*q = old[:n-1]
	return it
}
