package resilience

import (
	"container/heap"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/toolsentry/toolsentry/internal/domain/decision"
	"github.com/toolsentry/toolsentry/internal/domain/policyengine"
)

// rank maps the port's string Priority to a heap ordering value; lower ranks
// first.
func rank(p policyengine.Priority) int {
	switch p {
	case policyengine.PriorityHigh:
		return 0
	case policyengine.PriorityLow:
		return 2
	default:
		return 1
	}
}

// job is one queued evaluation awaiting a worker.
type job struct {
	rank     int
	seq      uint64
	fn       func(ctx context.Context) (decision.InferenceDecision, error)
	resultCh chan<- jobResult
}

type jobResult struct {
	decision decision.InferenceDecision
	err      error
}

// jobHeap orders by rank (lower first), then by enqueue sequence (FIFO
// within the same priority).
type jobHeap []*job

func (h jobHeap) Len() int { return len(h) }
func (h jobHeap) Less(i, j int) bool {
	if h[i].rank != h[j].rank {
		return h[i].rank < h[j].rank
	}
	return h[i].seq < h[j].seq
}
func (h jobHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *jobHeap) Push(x any)   { *h = append(*h, x.(*job)) }
func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// Queue is a bounded, priority-ordered request queue fronting a fixed-size
// worker pool, implementing the policyengine.Queue port. Submit blocks up to
// a fixed admission timeout and fails with QueueFull once capacity is
// reached, or EnqueueTimeout if admission cannot complete in time.
type Queue struct {
	logger       *slog.Logger
	maxSize      int
	admitTimeout time.Duration

	mu      sync.Mutex
	cond    *sync.Cond
	heap    jobHeap
	nextSeq uint64
	closed  bool

	wg sync.WaitGroup

	enqueued  atomicCounter
	processed atomicCounter
	dropped   atomicCounter
	timedOut  atomicCounter
	errored   atomicCounter
}

// DefaultAdmitTimeout bounds how long Submit waits for a worker to pick up
// and finish a job before returning EnqueueTimeout.
const DefaultAdmitTimeout = 30 * time.Second

// NewQueue constructs a Queue with the given capacity and worker pool size
// and starts the worker goroutines immediately; call Stop to drain them. A
// zero admitTimeout uses DefaultAdmitTimeout.
func NewQueue(ctx context.Context, maxSize, workers int, admitTimeout time.Duration, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	if maxSize <= 0 {
		maxSize = 1
	}
	if workers <= 0 {
		workers = 1
	}
	if admitTimeout <= 0 {
		admitTimeout = DefaultAdmitTimeout
	}
	q := &Queue{
		logger:       logger,
		maxSize:      maxSize,
		admitTimeout: admitTimeout,
	}
	q.cond = sync.NewCond(&q.mu)
	heap.Init(&q.heap)

	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx)
	}
	return q
}

// Submit enqueues fn for execution by a worker, honoring priority ordering.
// It blocks until a result is available, the queue is full (QueueFull), the
// configured admission timeout elapses (EnqueueTimeout), or ctx is canceled.
func (q *Queue) Submit(ctx context.Context, priority policyengine.Priority, fn func(ctx context.Context) (decision.InferenceDecision, error)) (decision.InferenceDecision, error) {
	admitCtx, cancel := context.WithTimeout(ctx, q.admitTimeout)
	defer cancel()

	resultCh := make(chan jobResult, 1)

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return decision.InferenceDecision{}, decision.Wrap(decision.KindQueueFull, errQueueClosed)
	}
	if q.heap.Len() >= q.maxSize {
		q.mu.Unlock()
		q.dropped.inc()
		return decision.InferenceDecision{}, decision.Wrap(decision.KindQueueFull, errQueueFull)
	}
	q.nextSeq++
	j := &job{rank: rank(priority), seq: q.nextSeq, fn: fn, resultCh: resultCh}
	heap.Push(&q.heap, j)
	q.enqueued.inc()
	q.cond.Signal()
	q.mu.Unlock()

	select {
	case res := <-resultCh:
		if res.err != nil {
			q.errored.inc()
		} else {
			q.processed.inc()
		}
		return res.decision, res.err
	case <-admitCtx.Done():
		q.timedOut.inc()
		return decision.InferenceDecision{}, decision.Wrap(decision.KindEnqueueTimeout, admitCtx.Err())
	}
}

func (q *Queue) worker(ctx context.Context) {
	defer q.wg.Done()
	for {
		q.mu.Lock()
		for q.heap.Len() == 0 && !q.closed {
			q.cond.Wait()
		}
		if q.closed && q.heap.Len() == 0 {
			q.mu.Unlock()
			return
		}
		j := heap.Pop(&q.heap).(*job)
		q.mu.Unlock()

		d, err := j.fn(ctx)
		select {
		case j.resultCh <- jobResult{decision: d, err: err}:
		default:
		}
	}
}

// Stop signals workers to drain remaining jobs and exit, then waits for them.
func (q *Queue) Stop() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
	q.wg.Wait()
}

// Stats is the counter snapshot exposed via metrics and health checks.
type Stats struct {
	Depth     int
	Enqueued  int64
	Processed int64
	Dropped   int64
	TimedOut  int64
	Errored   int64
}

// Stats returns a point-in-time snapshot of queue counters.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	depth := q.heap.Len()
	q.mu.Unlock()
	return Stats{
		Depth:     depth,
		Enqueued:  q.enqueued.get(),
		Processed: q.processed.get(),
		Dropped:   q.dropped.get(),
		TimedOut:  q.timedOut.get(),
		Errored:   q.errored.get(),
	}
}

var _ policyengine.Queue = (*Queue)(nil)
