package manager

import (
	"context"
	"sync"
	"sync/atomic"
)

// Subscription is the cancellable handle for a running operation
type Subscription struct {
	ID            string
	OperationName string
	Context       context.Context
	CancelFunc    context.CancelFunc

	disposed   atomic.Bool
	onError    func(v interface{})
	done       chan struct{}
	finishOnce sync.Once
}

// NewSubscription creates a handle whose disposal cancels cancelFunc
func NewSubscription(ctx context.Context, id, operationName string, cancelFunc context.CancelFunc) *Subscription {
	if operationName == "" {
		operationName = "Unnamed Subscription"
	}

	return &Subscription{
		ID:            id,
		OperationName: operationName,
		Context:       ctx,
		CancelFunc:    cancelFunc,
		done:          make(chan struct{}),
	}
}

// Dispose cancels the operation. Only the first call has an effect and a
// panicking cancel func is recovered.
func (s *Subscription) Dispose() {
	if s == nil || !s.disposed.CompareAndSwap(false, true) {
		return
	}

	defer func() {
		if r := recover(); r != nil && s.onError != nil {
			s.onError(r)
		}
	}()

	if s.CancelFunc != nil {
		s.CancelFunc()
	}
}

// Disposed returns true once Dispose has run
func (s *Subscription) Disposed() bool {
	return s.disposed.Load()
}

// Finish marks the operation as no longer producing messages
func (s *Subscription) Finish() {
	s.finishOnce.Do(func() { close(s.done) })
}

// Done is closed by Finish
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}
