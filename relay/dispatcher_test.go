package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestPollReturnsQueuedRequestsInFIFOOrder(t *testing.T) {
	d := NewDispatcher(nil)

	var ids []uuid.UUID
	for i := 0; i < 10; i++ {
		payload, _ := json.Marshal(map[string]int{"n": i})
		ids = append(ids, d.Enqueue(fmt.Sprintf("cmd-%d", i), payload))
	}

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		req, ok := d.Poll(ctx, time.Second)
		if !ok {
			t.Fatalf("poll %d returned empty with %d requests queued", i, 10-i)
		}
		if req.ID != ids[i] {
			t.Errorf("poll %d: got request %s, want %s", i, req.ID, ids[i])
		}
		if want := fmt.Sprintf("cmd-%d", i); req.Command != want {
			t.Errorf("poll %d: got command %q, want %q", i, req.Command, want)
		}
	}

	if n := d.Pending(); n != 0 {
		t.Errorf("queue not drained: %d pending", n)
	}
}

func TestPollTimesOutOnEmptyQueue(t *testing.T) {
	d := NewDispatcher(nil)

	start := time.Now()
	_, ok := d.Poll(context.Background(), 50*time.Millisecond)
	if ok {
		t.Fatal("poll on empty queue returned a request")
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("poll returned after %v, before the timeout", elapsed)
	}
}

func TestEnqueueWakesBlockedPoller(t *testing.T) {
	d := NewDispatcher(nil)

	type result struct {
		req Request
		ok  bool
	}
	done := make(chan result, 1)
	go func() {
		req, ok := d.Poll(context.Background(), 5*time.Second)
		done <- result{req, ok}
	}()

	// Give the poller time to block on the wake channel.
	time.Sleep(20 * time.Millisecond)
	id := d.Enqueue("sync:update", nil)

	select {
	case res := <-done:
		if !res.ok {
			t.Fatal("poller timed out despite enqueue")
		}
		if res.req.ID != id {
			t.Errorf("poller got request %s, want %s", res.req.ID, id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("poller was not woken by enqueue")
	}
}

func TestPollRespectsContextCancellation(t *testing.T) {
	d := NewDispatcher(nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan bool, 1)
	go func() {
		_, ok := d.Poll(ctx, 10*time.Second)
		done <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case ok := <-done:
		if ok {
			t.Error("cancelled poll returned a request")
		}
	case <-time.After(time.Second):
		t.Fatal("poll did not return after context cancellation")
	}
}

func TestConcurrentPollersDoNotDuplicateRequests(t *testing.T) {
	d := NewDispatcher(nil)

	const n = 20
	for i := 0; i < n; i++ {
		d.Enqueue("cmd", nil)
	}

	seen := make(chan uuid.UUID, n)
	for i := 0; i < 4; i++ {
		go func() {
			for {
				req, ok := d.Poll(context.Background(), 100*time.Millisecond)
				if !ok {
					return
				}
				seen <- req.ID
			}
		}()
	}

	got := make(map[uuid.UUID]bool)
	for i := 0; i < n; i++ {
		select {
		case id := <-seen:
			if got[id] {
				t.Fatalf("request %s delivered twice", id)
			}
			got[id] = true
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d of %d requests delivered", i, n)
		}
	}
}
