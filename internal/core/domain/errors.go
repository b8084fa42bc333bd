package domain

import "errors"

var (
	// ErrDuplicateAction is returned when two actions register the same name.
	ErrDuplicateAction = errors.New("action name already registered")

	// ErrActionNotFound is returned when a lookup misses the registry.
	ErrActionNotFound = errors.New("action not found")

	// ErrUnknownTrigger is returned when an event is fired for a trigger
	// nobody ever registered. Catches typos in extension code early.
	ErrUnknownTrigger = errors.New("unknown trigger")

	ErrJobNotFound = errors.New("job not found")

	// ErrJobTerminal is returned for operations on a job that already
	// reached COMPLETED, FAILED or CANCELLED.
	ErrJobTerminal = errors.New("job already in a terminal state")

	ErrEntryNotFound = errors.New("scheduled entry not found")

	// ErrActionNotAllowed is returned when an agent plans an action
	// outside its allowed command set.
	ErrActionNotAllowed = errors.New("action not in allowed command set")
)
