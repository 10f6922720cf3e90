package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Field limits for organizer-authored content.
const (
	MaxEventTitleLen       = 200
	MaxEventDescriptionLen = 3000
	MaxEventCapacity       = 100000
	MaxQuestionPromptLen   = 300
	MaxAnswerLen           = 500
)

// FieldError represents a single field's validation error.
type FieldError struct {
	Field string `json:"field"`
	Msg   string `json:"message"`
}

func (e FieldError) Error() string { return fmt.Sprintf("%s: %s", e.Field, e.Msg) }

// EventDraft is the organizer input for a new event.
type EventDraft struct {
	Title       string
	Description string
	StartsAt    time.Time
	Capacity    int
}

// ValidateEventDraft performs strict checks on organizer input.
// now is the reference time used to reject events in the past.
func ValidateEventDraft(draft EventDraft, now time.Time) []FieldError {
	var errs []FieldError

	title := strings.TrimSpace(draft.Title)
	if title == "" {
		errs = append(errs, FieldError{"title", "required"})
	} else if utf8.RuneCountInString(title) > MaxEventTitleLen {
		errs = append(errs, FieldError{"title", fmt.Sprintf("max length %d", MaxEventTitleLen)})
	}

	if utf8.RuneCountInString(draft.Description) > MaxEventDescriptionLen {
		errs = append(errs, FieldError{"description", fmt.Sprintf("max length %d", MaxEventDescriptionLen)})
	}

	if draft.StartsAt.IsZero() {
		errs = append(errs, FieldError{"starts_at", "required"})
	} else if draft.StartsAt.Before(now) {
		errs = append(errs, FieldError{"starts_at", "must be in the future"})
	}

	if draft.Capacity <= 0 || draft.Capacity > MaxEventCapacity {
		errs = append(errs, FieldError{"capacity", fmt.Sprintf("must be between 1 and %d", MaxEventCapacity)})
	}

	return errs
}

// ValidateQuestionPrompt checks an organizer-authored question prompt.
func ValidateQuestionPrompt(prompt string) []FieldError {
	trimmed := strings.TrimSpace(prompt)
	if trimmed == "" {
		return []FieldError{{"prompt", "required"}}
	}
	if utf8.RuneCountInString(trimmed) > MaxQuestionPromptLen {
		return []FieldError{{"prompt", fmt.Sprintf("max length %d", MaxQuestionPromptLen)}}
	}
	return nil
}
