package schedqueue

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/cuemby/yuanrong-scheduler/pkg/log"
	"github.com/cuemby/yuanrong-scheduler/pkg/schederr"
	"github.com/cuemby/yuanrong-scheduler/pkg/types"
)

// ScheduleResult is the outcome of a successful ScheduleDecision.
type ScheduleResult struct {
	UnitID string
	Score  int64
}

// Decide computes a placement for req against whatever resource state
// the caller's scheduling framework currently holds. It is supplied by
// the driver that wires a Queue to a resourceview + schedplugin
// Framework pair; the queue itself holds no resource state.
type Decide func(req *types.ScheduleRequest) (ScheduleResult, error)

// pendingRequest is one heap entry: a request waiting for its turn at
// the single decision worker, plus the channel its caller is blocked
// on and an optional cancellation signal.
type pendingRequest struct {
	req      *types.ScheduleRequest
	resultCh chan decisionOutcome
	cancel   <-chan struct{}

	tenant     string
	priority   int
	turn       int64
	enqueuedAt time.Time
	seq        int64
}

type decisionOutcome struct {
	result ScheduleResult
	err    error
}

// priorityHeap orders pendingRequests by descending ScheduleOption
// priority, then by ascending per-tenant turn counter so no single
// tenant starves the rest at the same priority, then by FIFO
// enqueue sequence as a final tiebreak.
type priorityHeap []*pendingRequest

func (h priorityHeap) Len() int { return len(h) }

func (h priorityHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	if h[i].turn != h[j].turn {
		return h[i].turn < h[j].turn
	}
	return h[i].seq < h[j].seq
}

func (h priorityHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *priorityHeap) Push(x interface{}) { *h = append(*h, x.(*pendingRequest)) }

func (h *priorityHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// Queue serializes ScheduleDecision calls for one resource type
// (Primary or Virtual) through a single decision worker, so the
// Decide callback never has to reason about concurrent callers
// racing over the same resource state.
type Queue struct {
	mu         sync.Mutex
	heap       priorityHeap
	tenantTurn map[string]int64
	nextSeq    int64
	wake       chan struct{}
	decide     Decide
	stopOnce   sync.Once
	stopCh     chan struct{}
}

// New returns a Queue that calls decide to resolve each request it
// pops, running its decision loop on the returned goroutine's
// lifetime until ctx is canceled.
func New(ctx context.Context, name string, decide Decide) *Queue {
	q := &Queue{
		tenantTurn: make(map[string]int64),
		wake:       make(chan struct{}, 1),
		decide:     decide,
		stopCh:     make(chan struct{}),
	}
	go q.run(ctx, name)
	return q
}

// ScheduleDecision enqueues req and blocks until it is decided,
// canceled, or ctx is done. A closed/fired cancel channel makes this
// call return at once; a request not yet picked up stays in the queue
// until the worker pops and drops it, and if the decision worker has
// already started on it, the result is simply discarded.
func (q *Queue) ScheduleDecision(ctx context.Context, req *types.ScheduleRequest, cancel <-chan struct{}) (ScheduleResult, error) {
	pr := &pendingRequest{
		req:        req,
		resultCh:   make(chan decisionOutcome, 1),
		cancel:     cancel,
		tenant:     req.Instance.TenantID,
		priority:   req.Instance.ScheduleOption.Priority,
		enqueuedAt: time.Now(),
	}

	q.mu.Lock()
	pr.turn = q.tenantTurn[pr.tenant]
	pr.seq = q.nextSeq
	q.nextSeq++
	heap.Push(&q.heap, pr)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}

	select {
	case out := <-pr.resultCh:
		return out.result, out.err
	case <-ctx.Done():
		return ScheduleResult{}, ctx.Err()
	case <-cancel:
		return ScheduleResult{}, schederr.New(schederr.CodeCanceled, "request %s canceled", req.RequestID)
	}
}

func (q *Queue) run(ctx context.Context, name string) {
	l := log.WithComponent(name)
	for {
		pr := q.popNext(ctx)
		if pr == nil {
			return
		}
		if canceled(pr.cancel) {
			continue
		}

		q.mu.Lock()
		q.tenantTurn[pr.tenant]++
		q.mu.Unlock()

		result, err := q.decide(pr.req)
		if err != nil {
			l.Debug().Msg("schedule decision failed: " + err.Error())
		}
		pr.resultCh <- decisionOutcome{result: result, err: err}
	}
}

func (q *Queue) popNext(ctx context.Context) *pendingRequest {
	for {
		q.mu.Lock()
		if len(q.heap) > 0 {
			pr := heap.Pop(&q.heap).(*pendingRequest)
			q.mu.Unlock()
			return pr
		}
		q.mu.Unlock()

		select {
		case <-q.wake:
		case <-ctx.Done():
			return nil
		case <-q.stopCh:
			return nil
		}
	}
}

// Stop ends the decision loop. Requests already waiting in the heap
// never receive a result; callers should select on ctx.Done() too.
func (q *Queue) Stop() {
	q.stopOnce.Do(func() { close(q.stopCh) })
}

// Len reports how many requests are currently waiting for a
// decision; used by metrics and tests.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.heap)
}

func canceled(cancel <-chan struct{}) bool {
	if cancel == nil {
		return false
	}
	select {
	case <-cancel:
		return true
	default:
		return false
	}
}
