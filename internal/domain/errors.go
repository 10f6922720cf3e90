package domain

import "errors"

var (
	// ErrNotFound is returned when a requested document does not exist.
	ErrNotFound = errors.New("not found")
	// ErrEventNotFound is returned when an event id does not resolve.
	ErrEventNotFound = errors.New("event not found")
	// ErrRegistrationClosed is returned when an event does not accept registrations.
	ErrRegistrationClosed = errors.New("event is not open for registration")
	// ErrSessionNotFound is returned when no questionnaire session exists.
	ErrSessionNotFound = errors.New("question session not found")
)
