package relay

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rbxsync/rbxsync/logging"
)

// Dispatcher owns the outbound request queue and the reply correlation map.
//
// The queue is FIFO: Poll always returns the oldest pending request. A wake
// channel is closed and replaced on every enqueue so that blocked pollers
// re-check the queue instead of re-polling on a fixed interval. Only list
// mutation happens inside the queue lock, never I/O.
type Dispatcher struct {
	mu    sync.Mutex
	queue []Request
	wake  chan struct{}

	repliesMu sync.RWMutex
	replies   map[uuid.UUID]chan Response
	closed    bool

	log *logging.Logger
}

// NewDispatcher creates an empty dispatcher. A nil logger is replaced with
// a no-op logger.
func NewDispatcher(log *logging.Logger) *Dispatcher {
	if log == nil {
		log = logging.Nop()
	}
	return &Dispatcher{
		wake:    make(chan struct{}),
		replies: make(map[uuid.UUID]chan Response),
		log:     log,
	}
}

// Enqueue appends a request to the tail of the queue under a fresh ID and
// wakes any blocked pollers. It never blocks the caller.
func (d *Dispatcher) Enqueue(command string, payload json.RawMessage) uuid.UUID {
	req := Request{ID: uuid.New(), Command: command, Payload: payload}
	d.EnqueueRequest(req)
	return req.ID
}

// EnqueueRequest appends a pre-built request to the queue. Used when the
// request ID must match an already registered correlation entry.
func (d *Dispatcher) EnqueueRequest(req Request) {
	d.mu.Lock()
	d.queue = append(d.queue, req)
	close(d.wake)
	d.wake = make(chan struct{})
	d.mu.Unlock()

	d.log.Debug("request queued",
		zap.String("id", req.ID.String()),
		zap.String("command", req.Command))
}

// Poll pops the oldest queued request, blocking until one is available or
// the timeout elapses. The second return value is false on timeout.
// Ownership of the returned request passes to the caller; the dispatcher
// keeps no record of delivered requests.
func (d *Dispatcher) Poll(ctx context.Context, timeout time.Duration) (Request, bool) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		d.mu.Lock()
		if len(d.queue) > 0 {
			req := d.queue[0]
			d.queue = d.queue[1:]
			d.mu.Unlock()
			return req, true
		}
		wake := d.wake
		d.mu.Unlock()

		select {
		case <-wake:
			// Queue changed; loop and race for the head.
		case <-deadline.C:
			return Request{}, false
		case <-ctx.Done():
			return Request{}, false
		}
	}
}

// Pending reports the number of requests waiting to be polled.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// Close tears down all registered reply channels. Waiters receive
// ErrChannelClosed; later Deliver calls are dropped.
func (d *Dispatcher) Close() {
	d.repliesMu.Lock()
	defer d.repliesMu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	for id, ch := range d.replies {
		close(ch)
		delete(d.replies, id)
	}
}
