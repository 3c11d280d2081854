package materializer

import (
	"container/heap"
	"sort"

	"github.com/duskboard/sync/pkg/event"
)

// topoQueue is a min-heap of records ordered by (lamport_clock ASC,
// event_id ordinal ASC), the comparator §4.E step 1 specifies.
type topoQueue []event.Record

func (q topoQueue) Len() int { return len(q) }
func (q topoQueue) Less(i, j int) bool {
	if q[i].LamportClock != q[j].LamportClock {
		return q[i].LamportClock < q[j].LamportClock
	}
	return q[i].EventID < q[j].EventID
}
func (q topoQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *topoQueue) Push(x interface{}) { *q = append(*q, x.(event.Record)) }
func (q *topoQueue) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

// topologicalOrder implements §4.E step 1: build an in-degree map
// counting only parents present in records (orphan parents are
// tolerated — ignored for in-degree purposes), then repeatedly emit the
// ready record with the lowest (lamport, event_id). Any record never
// reached because of a cycle (content-addressed ids make this
// defensive-only) is appended at the end sorted by (lamport, id).
func topologicalOrder(records []event.Record) []event.Record {
	byID := make(map[string]event.Record, len(records))
	for _, r := range records {
		byID[r.EventID] = r
	}

	inDegree := make(map[string]int, len(records))
	children := make(map[string][]string, len(records))
	for _, r := range records {
		count := 0
		for _, parentID := range r.Parents {
			if _, present := byID[parentID]; present {
				count++
				children[parentID] = append(children[parentID], r.EventID)
			}
		}
		inDegree[r.EventID] = count
	}

	q := make(topoQueue, 0, len(records))
	for _, r := range records {
		if inDegree[r.EventID] == 0 {
			q = append(q, r)
		}
	}
	heap.Init(&q)

	ordered := make([]event.Record, 0, len(records))
	emitted := make(map[string]bool, len(records))
	for q.Len() > 0 {
		r := heap.Pop(&q).(event.Record)
		ordered = append(ordered, r)
		emitted[r.EventID] = true
		for _, childID := range children[r.EventID] {
			inDegree[childID]--
			if inDegree[childID] == 0 {
				heap.Push(&q, byID[childID])
			}
		}
	}

	if len(ordered) < len(records) {
		var leftover []event.Record
		for _, r := range records {
			if !emitted[r.EventID] {
				leftover = append(leftover, r)
			}
		}
		sort.Slice(leftover, func(i, j int) bool {
			if leftover[i].LamportClock != leftover[j].LamportClock {
				return leftover[i].LamportClock < leftover[j].LamportClock
			}
			return leftover[i].EventID < leftover[j].EventID
		})
		ordered = append(ordered, leftover...)
	}

	return ordered
}
