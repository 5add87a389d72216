package worker

import (
	"context"

	audit "checkin/pkg/platform/audit"
)

// ErrorHandler is told about events the store refused. The worker keeps going.
type ErrorHandler func(event audit.Event, err error)

// Worker consumes audit events from a channel and persists them until the
// channel is closed.
type Worker struct {
	store   audit.Store
	inbox   <-chan audit.Event
	onError ErrorHandler
}

func NewWorker(store audit.Store, inbox <-chan audit.Event, onError ErrorHandler) *Worker {
	if onError == nil {
		onError = func(audit.Event, error) {}
	}
	return &Worker{store: store, inbox: inbox, onError: onError}
}

// Run returns when the inbox is closed and drained, or when ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.inbox:
			if !ok {
				return nil
			}
			if err := w.store.Append(ctx, event); err != nil {
				w.onError(event, err)
			}
		}
	}
}
