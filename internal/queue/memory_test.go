package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestMemoryQueue_FIFO(t *testing.T) {
	q := NewMemoryQueue(4, 3, zap.NewNop())
	defer q.Close()
	ctx := context.Background()

	for _, p := range []string{"a", "b", "c"} {
		if err := q.Submit(ctx, []byte(p)); err != nil {
			t.Fatalf("Submit(%s): %v", p, err)
		}
	}
	for _, want := range []string{"a", "b", "c"} {
		msg, err := q.Receive(ctx)
		if err != nil {
			t.Fatalf("Receive: %v", err)
		}
		if string(msg.Payload) != want {
			t.Fatalf("expected %q, got %q", want, msg.Payload)
		}
		if msg.Attempt != 1 {
			t.Fatalf("expected first delivery attempt 1, got %d", msg.Attempt)
		}
	}
}

func TestMemoryQueue_BackpressureBlocksSubmit(t *testing.T) {
	q := NewMemoryQueue(1, 3, zap.NewNop())
	defer q.Close()
	ctx := context.Background()

	if err := q.Submit(ctx, []byte("first")); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	unblocked := make(chan error, 1)
	go func() {
		unblocked <- q.Submit(ctx, []byte("second"))
	}()

	select {
	case err := <-unblocked:
		t.Fatalf("submit on a full queue returned early: %v", err)
	case <-time.After(100 * time.Millisecond):
		// still blocked, as required
	}

	if _, err := q.Receive(ctx); err != nil {
		t.Fatalf("Receive: %v", err)
	}
	select {
	case err := <-unblocked:
		if err != nil {
			t.Fatalf("blocked submit failed: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("submit did not unblock after a receive freed capacity")
	}
}

func TestMemoryQueue_SubmitHonorsContext(t *testing.T) {
	q := NewMemoryQueue(1, 3, zap.NewNop())
	defer q.Close()

	if err := q.Submit(context.Background(), []byte("fill")); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := q.Submit(ctx, []byte("blocked"))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context.DeadlineExceeded, got %v", err)
	}
}

func TestMemoryQueue_ReceiveHonorsContext(t *testing.T) {
	q := NewMemoryQueue(1, 3, zap.NewNop())
	defer q.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := q.Receive(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context.DeadlineExceeded, got %v", err)
	}
}

func TestMemoryQueue_NackRedeliversUntilCap(t *testing.T) {
	q := NewMemoryQueue(4, 2, zap.NewNop())
	defer q.Close()
	ctx := context.Background()

	if err := q.Submit(ctx, []byte("flaky")); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	msg, err := q.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if err := q.Nack(ctx, msg); err != nil {
		t.Fatalf("Nack: %v", err)
	}

	redelivered, err := q.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive redelivery: %v", err)
	}
	if redelivered.Attempt != 2 {
		t.Fatalf("expected attempt 2 on redelivery, got %d", redelivered.Attempt)
	}
	if redelivered.ID != msg.ID {
		t.Fatalf("redelivered message changed identity: %s vs %s", redelivered.ID, msg.ID)
	}

	// Cap reached: this nack drops the message.
	if err := q.Nack(ctx, redelivered); err != nil {
		t.Fatalf("Nack at cap: %v", err)
	}
	recvCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	if _, err := q.Receive(recvCtx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected no further redelivery, got %v", err)
	}
}

func TestMemoryQueue_CloseDrainsThenReports(t *testing.T) {
	q := NewMemoryQueue(2, 3, zap.NewNop())
	ctx := context.Background()

	if err := q.Submit(ctx, []byte("pending")); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := q.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if err := q.Submit(ctx, []byte("late")); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("expected ErrQueueClosed on submit after close, got %v", err)
	}

	// The buffered message is still delivered.
	msg, err := q.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive after close: %v", err)
	}
	if string(msg.Payload) != "pending" {
		t.Fatalf("unexpected payload %q", msg.Payload)
	}

	if _, err := q.Receive(ctx); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("expected ErrQueueClosed once drained, got %v", err)
	}
}
