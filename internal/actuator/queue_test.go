package actuator

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	logx "plugbridge/pkg/logx"
)

func TestQueueStrictOrdering(t *testing.T) {
	t.Parallel()

	var (
		mu       sync.Mutex
		order    []string
		inFlight atomic.Int32
		maxSeen  atomic.Int32
	)
	done := make(chan struct{}, 4)

	run := func(ctx context.Context, req Request) {
		n := inFlight.Add(1)
		if n > maxSeen.Load() {
			maxSeen.Store(n)
		}
		mu.Lock()
		order = append(order, req.Origin+":start")
		mu.Unlock()

		time.Sleep(10 * time.Millisecond)

		mu.Lock()
		order = append(order, req.Origin+":stop")
		mu.Unlock()
		inFlight.Add(-1)
		done <- struct{}{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewQueue(run, logx.Nop())
	q.Start(ctx)

	q.Enqueue(Request{Origin: "r1"})
	q.Enqueue(Request{Origin: "r2"})
	q.Enqueue(Request{Origin: "r3"})

	for i := 0; i < 3; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("queue stalled")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"r1:start", "r1:stop", "r2:start", "r2:stop", "r3:start", "r3:stop"}
	if len(order) != len(want) {
		t.Fatalf("order = %v", order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order[%d] = %s, want %s (full: %v)", i, order[i], want[i], order)
		}
	}
	if maxSeen.Load() != 1 {
		t.Fatalf("max in-flight = %d, want 1", maxSeen.Load())
	}
}

func TestQueueAdvancesPastPanic(t *testing.T) {
	t.Parallel()

	ran := make(chan string, 2)
	run := func(ctx context.Context, req Request) {
		if req.Origin == "boom" {
			ran <- "boom"
			panic("executor blew up")
		}
		ran <- req.Origin
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewQueue(run, logx.Nop())
	q.Start(ctx)

	q.Enqueue(Request{Origin: "boom"})
	q.Enqueue(Request{Origin: "after"})

	for _, want := range []string{"boom", "after"} {
		select {
		case got := <-ran:
			if got != want {
				t.Fatalf("ran %q, want %q", got, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("queue did not advance to %q", want)
		}
	}
}

func TestQueueStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	q := NewQueue(func(ctx context.Context, req Request) {}, logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	q.Start(ctx)
	cancel()

	select {
	case <-q.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("queue consumer did not exit")
	}
}
