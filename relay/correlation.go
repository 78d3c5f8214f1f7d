package relay

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrTimeout is returned when no reply arrives inside the wait window.
	ErrTimeout = errors.New("timeout waiting for plugin response")

	// ErrChannelClosed is returned when the reply channel is torn down
	// before a reply arrives, e.g. on server shutdown.
	ErrChannelClosed = errors.New("reply channel closed")
)

// register creates a correlation entry for id. The channel is buffered so
// Deliver never blocks on a slow waiter.
func (d *Dispatcher) register(id uuid.UUID) chan Response {
	ch := make(chan Response, 1)
	d.repliesMu.Lock()
	d.replies[id] = ch
	d.repliesMu.Unlock()
	return ch
}

// deregister removes the correlation entry for id. Safe to call after the
// entry is already gone.
func (d *Dispatcher) deregister(id uuid.UUID) {
	d.repliesMu.Lock()
	delete(d.replies, id)
	d.repliesMu.Unlock()
}

// AwaitReply blocks until a response with the given ID is delivered or the
// timeout elapses. The correlation entry is removed on every exit path, so
// a late reply after timeout is a no-op.
func (d *Dispatcher) AwaitReply(ctx context.Context, id uuid.UUID, timeout time.Duration) (Response, error) {
	ch := d.register(id)
	defer d.deregister(id)

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	select {
	case resp, ok := <-ch:
		if !ok {
			return Response{}, ErrChannelClosed
		}
		return resp, nil
	case <-deadline.C:
		d.log.Warn("reply wait timed out", zap.String("id", id.String()))
		return Response{}, ErrTimeout
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
}

// Do enqueues a request and waits for its reply in one step. This is the
// path used by the /sync/command and /sync/batch handlers.
func (d *Dispatcher) Do(ctx context.Context, command string, payload []byte, timeout time.Duration) (Response, error) {
	req := Request{ID: uuid.New(), Command: command, Payload: payload}

	// Register before enqueueing so a fast plugin cannot reply into a gap.
	ch := d.register(req.ID)
	defer d.deregister(req.ID)

	d.EnqueueRequest(req)

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	select {
	case resp, ok := <-ch:
		if !ok {
			return Response{}, ErrChannelClosed
		}
		return resp, nil
	case <-deadline.C:
		d.log.Warn("reply wait timed out",
			zap.String("id", req.ID.String()),
			zap.String("command", command))
		return Response{}, ErrTimeout
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
}

// Deliver routes a plugin response to its waiting caller. Responses with no
// matching entry (late, duplicate, or already timed out) are dropped.
func (d *Dispatcher) Deliver(resp Response) {
	// The send stays inside the read lock so Close cannot close the
	// channel out from under it. The channel is buffered, so the send
	// never blocks lock holders.
	d.repliesMu.RLock()
	defer d.repliesMu.RUnlock()

	ch, ok := d.replies[resp.ID]
	if !ok || d.closed {
		d.log.Debug("dropping unmatched response", zap.String("id", resp.ID.String()))
		return
	}

	select {
	case ch <- resp:
	default:
		// Entry already resolved by an earlier duplicate.
		d.log.Debug("dropping duplicate response", zap.String("id", resp.ID.String()))
	}
}
