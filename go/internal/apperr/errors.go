package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTransition is returned when a command is not valid for the current status
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrInvalidLevel is returned when a level target is not ahead of the current level or not scheduled
	ErrInvalidLevel = errors.New("invalid level")
	// ErrSessionNotActive is returned when a session is not in progress
	ErrSessionNotActive = errors.New("session not active")
	// ErrOutOfSequence is returned when an elimination position is not the next expected one
	ErrOutOfSequence = errors.New("out of sequence")
	// ErrNotMostRecent is returned when editing any elimination other than the latest
	ErrNotMostRecent = errors.New("not most recent")
	// ErrNotFound is returned when an entity does not exist
	ErrNotFound = errors.New("not found")
	// ErrForbidden is returned when the actor lacks mutation capability
	ErrForbidden = errors.New("forbidden")
	// ErrConflict is returned when a concurrent writer changed the row first
	ErrConflict = errors.New("conflict")
	// ErrInvalidArgument is returned for malformed requests
	ErrInvalidArgument = errors.New("invalid argument")
)

var codes = []struct {
	err  error
	code string
}{
	{ErrInvalidTransition, "invalid_transition"},
	{ErrInvalidLevel, "invalid_level"},
	{ErrSessionNotActive, "session_not_active"},
	{ErrOutOfSequence, "out_of_sequence"},
	{ErrNotMostRecent, "not_most_recent"},
	{ErrNotFound, "not_found"},
	{ErrForbidden, "forbidden"},
	{ErrConflict, "conflict"},
	{ErrInvalidArgument, "invalid_argument"},
}

// Code returns the machine-readable code of the first sentinel wrapped by err.
func Code(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "internal"
}

// Wrap annotates a sentinel with a formatted detail.
func Wrap(sentinel error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))
}
