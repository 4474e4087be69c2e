package core

import (
	"container/heap"
	"context"
)

// requestQueue orders competing requests by urgency tier descending, then
// required-by date ascending, then request id ascending for determinism.
type requestQueue []Request

func (q requestQueue) Len() int { return len(q) }

func (q requestQueue) Less(i, j int) bool {
	if q[i].Urgency.Rank() != q[j].Urgency.Rank() {
		return q[i].Urgency.Rank() > q[j].Urgency.Rank()
	}
	if !q[i].RequiredBy.Equal(q[j].RequiredBy) {
		return q[i].RequiredBy.Before(q[j].RequiredBy)
	}
	return q[i].ID < q[j].ID
}

func (q requestQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *requestQueue) Push(x any) { *q = append(*q, x.(Request)) }

func (q *requestQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

// ProcessPending drains every approved or partially fulfilled request
// through one allocation pass each, scarce units going to the most urgent
// requests first. The queue is rebuilt from ledger state on every call, so
// requests re-queued by the sweeper are picked up without bookkeeping.
func (s *Service) ProcessPending(ctx context.Context) ([]AllocationResult, error) {
	ctx, done := s.instrument(ctx, "process_pending")
	var err error
	defer func() { done(err) }()

	queue := requestQueue{}
	for _, req := range s.ledger.ListRequests() {
		switch req.Status {
		case RequestApproved, RequestPartiallyFulfilled:
			queue = append(queue, req)
		}
	}
	heap.Init(&queue)

	var results []AllocationResult
	for queue.Len() > 0 {
		req := heap.Pop(&queue).(Request)
		result, aerr := s.Allocate(ctx, req.ID)
		if aerr != nil {
			err = aerr
			return results, err
		}
		results = append(results, result)
	}
	return results, nil
}
