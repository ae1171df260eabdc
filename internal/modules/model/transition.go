package model

import (
	"errors"
	"fmt"
	"time"
)

// ControlAction is something a user, the executor or the model asks the task to do.
type ControlAction string

const (
	ActionStart         ControlAction = "start"
	ActionTakeover      ControlAction = "takeover"
	ActionResume        ControlAction = "resume"
	ActionCancel        ControlAction = "cancel"
	ActionRequestHelp   ControlAction = "request_help"
	ActionRequestReview ControlAction = "request_review"
	ActionComplete      ControlAction = "complete"
	ActionFail          ControlAction = "fail"
)

var ErrInvalidTransition = errors.New("invalid status transition")

type TransitionError struct {
	From   TaskStatus
	Action ControlAction
	To     TaskStatus
}

func (e *TransitionError) Error() string {
	if e.Action == "" {
		return fmt.Sprintf("invalid status transition from %s to %s", e.From, e.To)
	}
	return fmt.Sprintf("cannot %s a task in status %s", e.Action, e.From)
}

func (e *TransitionError) Is(target error) bool { return target == ErrInvalidTransition }

type transitionKey struct {
	from   TaskStatus
	action ControlAction
}

// transitions is the complete table of legal moves. Terminal statuses have no entries.
var transitions = map[transitionKey]TaskStatus{
	{TaskStatusPending, ActionStart}:    TaskStatusRunning,
	{TaskStatusPending, ActionResume}:   TaskStatusRunning,
	{TaskStatusPending, ActionTakeover}: TaskStatusPending,
	{TaskStatusPending, ActionCancel}:   TaskStatusCancelled,

	{TaskStatusRunning, ActionResume}:        TaskStatusRunning,
	{TaskStatusRunning, ActionTakeover}:      TaskStatusNeedsHelp,
	{TaskStatusRunning, ActionRequestHelp}:   TaskStatusNeedsHelp,
	{TaskStatusRunning, ActionRequestReview}: TaskStatusNeedsReview,
	{TaskStatusRunning, ActionComplete}:      TaskStatusCompleted,
	{TaskStatusRunning, ActionFail}:          TaskStatusFailed,
	{TaskStatusRunning, ActionCancel}:        TaskStatusCancelled,

	{TaskStatusNeedsHelp, ActionResume}:   TaskStatusRunning,
	{TaskStatusNeedsHelp, ActionTakeover}: TaskStatusNeedsHelp,
	{TaskStatusNeedsHelp, ActionComplete}: TaskStatusCompleted,
	{TaskStatusNeedsHelp, ActionFail}:     TaskStatusFailed,
	{TaskStatusNeedsHelp, ActionCancel}:   TaskStatusCancelled,

	{TaskStatusNeedsReview, ActionResume}:   TaskStatusRunning,
	{TaskStatusNeedsReview, ActionTakeover}: TaskStatusNeedsReview,
	{TaskStatusNeedsReview, ActionComplete}: TaskStatusCompleted,
	{TaskStatusNeedsReview, ActionFail}:     TaskStatusFailed,
	{TaskStatusNeedsReview, ActionCancel}:   TaskStatusCancelled,
}

// NextStatus looks up the status reached by applying action in status from.
func NextStatus(from TaskStatus, action ControlAction) (TaskStatus, error) {
	to, ok := transitions[transitionKey{from, action}]
	if !ok {
		return "", &TransitionError{From: from, Action: action}
	}
	return to, nil
}

// CanTransition reports whether some action moves a task from one status to another.
// Staying in the same non-terminal status is always allowed.
func CanTransition(from, to TaskStatus) bool {
	if from == to {
		return !from.IsTerminal()
	}
	for k, v := range transitions {
		if k.from == from && v == to {
			return true
		}
	}
	return false
}

// ActionFor returns an action moving from -> to, preferring the explicit
// lifecycle actions over control handoff.
func ActionFor(from, to TaskStatus) (ControlAction, error) {
	for _, a := range []ControlAction{
		ActionStart, ActionComplete, ActionFail, ActionCancel,
		ActionRequestHelp, ActionRequestReview, ActionResume, ActionTakeover,
	} {
		if next, ok := transitions[transitionKey{from, a}]; ok && next == to {
			return a, nil
		}
	}
	return "", &TransitionError{From: from, To: to}
}

// Apply moves the task through the table and updates control and timestamps.
func (t *Task) Apply(action ControlAction, now time.Time) error {
	next, err := NextStatus(t.Status, action)
	if err != nil {
		return err
	}

	switch action {
	case ActionTakeover:
		t.Control = RoleUser
	case ActionResume, ActionStart:
		t.Control = RoleAssistant
	}

	switch next {
	case TaskStatusRunning, TaskStatusFailed:
		if t.ExecutedAt == nil {
			t.ExecutedAt = &now
		}
	case TaskStatusCompleted:
		if t.ExecutedAt == nil {
			t.ExecutedAt = &now
		}
		t.CompletedAt = &now
	}

	t.Status = next
	t.UpdatedAt = now
	return nil
}
