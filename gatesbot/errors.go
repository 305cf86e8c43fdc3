package gatesbot

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotInQueue indicates the referenced member has no entry in the
	// sign-up queue. Non-fatal; surfaced to the actor as-is.
	ErrNotInQueue = errors.New("not currently in the queue")

	// ErrPermissionDenied indicates the actor lacks the role required
	// for a command.
	ErrPermissionDenied = errors.New("you don't have permission to do that")

	// ErrAlreadyInQueue indicates a member tried to sign up while
	// already holding a spot.
	ErrAlreadyInQueue = errors.New("you are already in a queue!")

	// ErrQueueLocked indicates a sign-up was attempted while the queue
	// is locked.
	ErrQueueLocked = errors.New("the queue is currently locked")

	// ErrUnknownGate indicates a claim referenced a gate name that isn't
	// registered.
	ErrUnknownGate = errors.New("invalid gate name")
)

// InvalidSelectionError is returned when a command references a group
// number outside the queue's current range, or a player position outside
// a group. The message distinguishes an empty range from a mistyped
// number, since operators need to know which happened.
type InvalidSelectionError struct {
	// Requested is the 1-based number the actor supplied.
	Requested int

	// Groups is the number of selectable groups, or players when Player
	// is set, at validation time.
	Groups int

	// Player marks a selection of a player within a group rather than a
	// group within the queue.
	Player bool
}

func (e *InvalidSelectionError) Error() string {
	noun, plural := "Group", "groups"
	if e.Player {
		noun, plural = "Player", "players"
	}
	switch {
	case e.Groups == 0:
		return fmt.Sprintf(
			"Invalid %s Number. No %s available to select!", noun, plural,
		)
	case e.Groups == 1:
		return fmt.Sprintf(
			"Invalid %s Number. Only one %s to select.",
			noun, strings.ToLower(noun),
		)
	default:
		return fmt.Sprintf(
			"Invalid %s Number. Must be between 1 and %d.",
			noun, e.Groups,
		)
	}
}

// validSelection validates a 1-based group number against the current
// group count, returning an *InvalidSelectionError on failure.
func validSelection(groups int, requested int) error {
	if requested < 1 || requested > groups {
		return &InvalidSelectionError{Requested: requested, Groups: groups}
	}
	return nil
}

// PersistenceError wraps a storage failure. The actor sees a generic
// message; the wrapped error goes to the logs.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %s", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
