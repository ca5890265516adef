package actuator

import (
	"context"
	"sync"

	logx "plugbridge/pkg/logx"
)

// Queue is the strictly serial command queue.
//
// Contract:
//   - unbounded, append-only at the tail, consumed from the head
//   - at most one request is in flight; it runs to completion (including its
//     trailing stop) before the next head starts
//   - no priority, no cancellation, no deduplication: rapid-fire triggers
//     queue up and execute in arrival order
//   - a panicking run never stalls the queue
type Queue struct {
	run func(ctx context.Context, req Request)
	log logx.Logger

	mu    sync.Mutex
	items []Request

	wake chan struct{}

	startOnce sync.Once
	done      chan struct{}
}

func NewQueue(run func(ctx context.Context, req Request), log logx.Logger) *Queue {
	return &Queue{
		run:  run,
		log:  log,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Start launches the single consumer. Subsequent calls are no-ops.
func (q *Queue) Start(ctx context.Context) {
	q.startOnce.Do(func() {
		go q.loop(ctx)
	})
}

// Enqueue appends a request. If the queue was idle, processing begins
// immediately; otherwise the request waits its turn.
func (q *Queue) Enqueue(req Request) {
	q.mu.Lock()
	q.items = append(q.items, req)
	depth := len(q.items)
	q.mu.Unlock()

	if depth > 1 {
		// Visible lag under heavy trigger frequency is expected behavior.
		q.log.Debug("actuation queued behind in-flight work", logx.Int("depth", depth))
	}

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Len reports the number of requests not yet started.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Done is closed once the consumer has exited after ctx cancellation.
func (q *Queue) Done() <-chan struct{} { return q.done }

func (q *Queue) loop(ctx context.Context) {
	defer close(q.done)
	for {
		req, ok := q.pop()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-q.wake:
				continue
			}
		}

		q.exec(ctx, req)

		if ctx.Err() != nil {
			return
		}
	}
}

func (q *Queue) pop() (Request, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return Request{}, false
	}
	req := q.items[0]
	q.items = q.items[1:]
	return req, true
}

// exec guarantees the queue always advances even if the run throws.
func (q *Queue) exec(ctx context.Context, req Request) {
	defer func() {
		if r := recover(); r != nil {
			q.log.Error("actuation run panicked", logx.Any("panic", r), logx.String("origin", req.Origin))
		}
	}()
	q.run(ctx, req)
}
