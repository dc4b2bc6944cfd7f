package task

import (
	"context"
	"sync"
)

// Handle lets a submitter wait for a detached task to finish.
type Handle struct {
	id     string
	done   chan struct{}
	once   sync.Once
	result Result
}

func newHandle(id string) *Handle {
	return &Handle{id: id, done: make(chan struct{})}
}

func (h *Handle) ID() string { return h.id }

// Done is closed once the task has been removed from the registry.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Status is StatusRunning until the task completes.
func (h *Handle) Status() Status {
	select {
	case <-h.done:
		return h.result.Status
	default:
		return StatusRunning
	}
}

// Wait blocks until the task completes or ctx is done.
func (h *Handle) Wait(ctx context.Context) (Result, error) {
	select {
	case <-h.done:
		return h.result, nil
	case <-ctx.Done():
		return Result{ID: h.id, Status: StatusRunning}, ctx.Err()
	}
}

func (h *Handle) complete(r Result) {
	h.once.Do(func() {
		h.result = r
		close(h.done)
	})
}
