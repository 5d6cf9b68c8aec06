package trigger

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/noticerun/internal/dispatch"
)

// ErrQueueFull is returned when the worker is too far behind.
var ErrQueueFull = errors.New("event queue full")

// Handler processes one event.
type Handler interface {
	Handle(ctx context.Context, ev dispatch.Event) (dispatch.Action, error)
}

// Queue buffers accepted events for a single worker.
type Queue struct {
	events chan dispatch.Event
}

// NewQueue creates a queue holding up to size events.
func NewQueue(size int) *Queue {
	if size <= 0 {
		size = 1
	}
	return &Queue{events: make(chan dispatch.Event, size)}
}

// Enqueue adds ev without blocking.
func (q *Queue) Enqueue(ev dispatch.Event) error {
	select {
	case q.events <- ev:
		return nil
	default:
		return ErrQueueFull
	}
}

// Len is the number of waiting events.
func (q *Queue) Len() int {
	return len(q.events)
}

// Run hands events to h one at a time until ctx is done. Handler errors are
// logged; the worker keeps going.
func (q *Queue) Run(ctx context.Context, h Handler) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-q.events:
			logger := log.Ctx(ctx).With().Str("event_id", uuid.NewString()).Logger()
			action, err := h.Handle(logger.WithContext(ctx), ev)
			if err != nil {
				logger.Error().Err(err).
					Int64("account_id", ev.AccountID).
					Int64("task_id", ev.TaskID).
					Str("action", action.String()).
					Msg("Event handling failed")
			}
		}
	}
}
