package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yungbote/casestudy-backend/internal/platform/logger"
)

func TestPoolRunsJobs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := NewPool(logger.Nop(), Config{Name: "t", Concurrency: 2, QueueSize: 8})
	p.Start(ctx)

	var n atomic.Int32
	for i := 0; i < 5; i++ {
		if err := p.Enqueue(Job{Name: "inc", Run: func(ctx context.Context) error {
			n.Add(1)
			return nil
		}}); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}
	p.Close()
	if got := n.Load(); got != 5 {
		t.Fatalf("ran %d jobs, want 5", got)
	}
}

func TestEnqueueRejectsWhenFull(t *testing.T) {
	p := NewPool(logger.Nop(), Config{Concurrency: 1, QueueSize: 1})
	noop := Job{Name: "noop", Run: func(ctx context.Context) error { return nil }}
	if err := p.Enqueue(noop); err != nil {
		t.Fatalf("first enqueue: %v", err)
	}
	if err := p.Enqueue(noop); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("want ErrQueueFull, got %v", err)
	}
	p.Close()
	if err := p.Enqueue(noop); !errors.Is(err, ErrPoolClosed) {
		t.Fatalf("want ErrPoolClosed, got %v", err)
	}
}

func TestEnqueueWaitsForFreeSlot(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := NewPool(logger.Nop(), Config{Concurrency: 1, QueueSize: 1, EnqueueWait: 2 * time.Second})
	p.Start(ctx)

	release := make(chan struct{})
	running := make(chan struct{})
	_ = p.Enqueue(Job{Name: "slow", Run: func(ctx context.Context) error {
		close(running)
		<-release
		return nil
	}})
	<-running
	noop := Job{Name: "noop", Run: func(ctx context.Context) error { return nil }}
	if err := p.Enqueue(noop); err != nil {
		t.Fatalf("queue slot: %v", err)
	}

	time.AfterFunc(50*time.Millisecond, func() { close(release) })
	start := time.Now()
	if err := p.Enqueue(noop); err != nil {
		t.Fatalf("enqueue should wait for the worker to free a slot: %v", err)
	}
	if waited := time.Since(start); waited < 30*time.Millisecond {
		t.Fatalf("enqueue returned after %s without a free slot", waited)
	}
	p.Close()
}

func TestEnqueueGivesUpAfterWait(t *testing.T) {
	p := NewPool(logger.Nop(), Config{Concurrency: 1, QueueSize: 1, EnqueueWait: 40 * time.Millisecond})
	noop := Job{Name: "noop", Run: func(ctx context.Context) error { return nil }}
	_ = p.Enqueue(noop)
	start := time.Now()
	if err := p.Enqueue(noop); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("want ErrQueueFull, got %v", err)
	}
	if waited := time.Since(start); waited < 30*time.Millisecond {
		t.Fatalf("rejected after %s, before the wait elapsed", waited)
	}
	p.Close()
}

func TestPanicDoesNotKillWorker(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := NewPool(logger.Nop(), Config{Concurrency: 1, QueueSize: 4})
	p.Start(ctx)

	done := make(chan struct{})
	_ = p.Enqueue(Job{Name: "boom", Run: func(ctx context.Context) error { panic("boom") }})
	_ = p.Enqueue(Job{Name: "after", Run: func(ctx context.Context) error {
		close(done)
		return nil
	}})
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("worker did not survive panic")
	}
	p.Close()
}

func TestEnqueueRequiresRunFunc(t *testing.T) {
	p := NewPool(logger.Nop(), Config{})
	if err := p.Enqueue(Job{Name: "empty"}); err == nil {
		t.Fatalf("expected error")
	}
}
