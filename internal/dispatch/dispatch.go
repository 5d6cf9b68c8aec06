// Package dispatch routes task webhook events to the phase that handles
// them.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/noticerun/internal/runlock"
	"github.com/sawpanic/noticerun/internal/upstream"
)

// Event names and task markers the router understands.
const (
	EventTaskCreated    = "Task.Created"
	EventHistoryCreated = "Task.History.Created"

	SystemCategory = "System Tasks"

	MarkerIncreaseNotices = "Increase Notices"
	MarkerIncreaseLetters = "Increase Letters"
	MarkerLMRInterest     = "LMR Interest"

	StatusCompleted = "Completed"
)

// Event is one task webhook notification.
type Event struct {
	AccountID int64  `json:"AccountId" validate:"gt=0"`
	TaskID    int64  `json:"TaskId" validate:"gt=0"`
	TaskType  string `json:"TaskType"`
	EventName string `json:"EventName" validate:"required"`
}

// Validate checks the required fields.
func (e Event) Validate() error {
	return validate.Struct(e)
}

var validate = validator.New()

// Action is what an event resolves to.
type Action int

const (
	ActionNone Action = iota
	ActionPrelim
	ActionNotices
	ActionLMR
	ActionLetters
)

func (a Action) String() string {
	switch a {
	case ActionPrelim:
		return "prelim"
	case ActionNotices:
		return "notices"
	case ActionLMR:
		return "lmr"
	case ActionLetters:
		return "letters"
	default:
		return "none"
	}
}

// Route decides the action for an event on task. Only tasks in the system
// category are acted on; history events only once the task is completed.
func Route(eventName string, task upstream.Task) Action {
	if task.CategoryName() != SystemCategory {
		return ActionNone
	}
	switch eventName {
	case EventTaskCreated:
		switch {
		case strings.Contains(task.Title, MarkerIncreaseNotices):
			return ActionPrelim
		case strings.Contains(task.Title, MarkerIncreaseLetters):
			return ActionLetters
		case strings.Contains(task.Title, MarkerLMRInterest):
			return ActionLMR
		}
	case EventHistoryCreated:
		if strings.Contains(task.Title, MarkerIncreaseNotices) && task.TaskStatus == StatusCompleted {
			return ActionNotices
		}
	}
	return ActionNone
}

// Session is an authenticated handle on one account.
type Session interface {
	Task(ctx context.Context, taskID int64) (upstream.Task, error)
	RunPrelim(ctx context.Context, taskID int64) error
	RunNotices(ctx context.Context, taskID int64) error
	RunLMR(ctx context.Context, taskID int64) error
}

// Opener opens sessions by account id.
type Opener interface {
	Open(ctx context.Context, accountID int64) (Session, error)
}

// Observer counts handled events by outcome.
type Observer interface {
	Event(outcome string)
}

type nopObserver struct{}

func (nopObserver) Event(string) {}

// Dispatcher handles events one at a time per task.
type Dispatcher struct {
	opener   Opener
	locker   runlock.Locker
	observer Observer
}

// New creates a Dispatcher. A nil locker never conflicts.
func New(opener Opener, locker runlock.Locker, obs Observer) *Dispatcher {
	if locker == nil {
		locker = runlock.Nop{}
	}
	if obs == nil {
		obs = nopObserver{}
	}
	return &Dispatcher{opener: opener, locker: locker, observer: obs}
}

// Handle resolves ev and runs the matching phase under the task's lock.
func (d *Dispatcher) Handle(ctx context.Context, ev Event) (Action, error) {
	if err := ev.Validate(); err != nil {
		d.observer.Event("invalid")
		return ActionNone, fmt.Errorf("invalid event: %w", err)
	}
	logger := log.Ctx(ctx).With().
		Int64("account_id", ev.AccountID).
		Int64("task_id", ev.TaskID).
		Str("event", ev.EventName).
		Logger()
	ctx = logger.WithContext(ctx)

	session, err := d.opener.Open(ctx, ev.AccountID)
	if err != nil {
		d.observer.Event("failed")
		return ActionNone, err
	}
	task, err := session.Task(ctx, ev.TaskID)
	if err != nil {
		d.observer.Event("failed")
		return ActionNone, err
	}

	action := Route(ev.EventName, task)
	switch action {
	case ActionNone:
		logger.Info().Str("title", task.Title).Str("category", task.CategoryName()).Msg("Event ignored")
		d.observer.Event("ignored")
		return action, nil
	case ActionLetters:
		logger.Info().Msg("Increase letters task received, nothing to do")
		d.observer.Event("ignored")
		return action, nil
	}

	release, err := d.locker.Acquire(ctx, runlock.Key(ev.AccountID, ev.TaskID))
	if err != nil {
		if errors.Is(err, runlock.ErrBusy) {
			logger.Warn().Msg("Task already being handled")
			d.observer.Event("busy")
		} else {
			d.observer.Event("failed")
		}
		return action, err
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			logger.Warn().Err(err).Msg("Lock release failed")
		}
	}()

	logger.Info().Str("action", action.String()).Msg("Handling task")
	switch action {
	case ActionPrelim:
		err = session.RunPrelim(ctx, ev.TaskID)
	case ActionNotices:
		err = session.RunNotices(ctx, ev.TaskID)
	case ActionLMR:
		err = session.RunLMR(ctx, ev.TaskID)
	}
	if err != nil {
		logger.Error().Err(err).Str("action", action.String()).Msg("Task handling failed")
		d.observer.Event("failed")
		return action, err
	}
	d.observer.Event("ok")
	return action, nil
}
