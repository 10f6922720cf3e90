package telegram

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/DenisArger/telegram-event-registration-service-sub000/internal/domain"
)

const (
	CommandStart          = "start"
	CommandHelp           = "help"
	CommandEvents         = "events"
	CommandCreateEvent    = "create_event"
	CommandAddQuestion    = "add_question"
	CommandPublishEvent   = "publish_event"
	CommandCloseEvent     = "close_event"
	CommandStatus         = "status"
	CommandEventQR        = "event_qr"
	CommandGrantOrganizer = "grant_organizer"
	CommandStats          = "stats"
)

// deepLinkPrefix marks /start payloads that point at an event.
const deepLinkPrefix = "ev_"

const argSeparator = "|"

// Command is a slash command with its raw argument string.
type Command struct {
	Name string
	Args string
}

// ParseCommand recognizes "/name[@bot] args". Any whitespace, including a
// newline, ends the name. The name is lowercased.
func ParseCommand(text string) (Command, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return Command{}, false
	}

	head, args := text[1:], ""
	if i := strings.IndexFunc(head, unicode.IsSpace); i >= 0 {
		head, args = head[:i], head[i:]
	}
	name, _, _ := strings.Cut(head, "@")
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return Command{}, false
	}

	return Command{Name: name, Args: strings.TrimSpace(args)}, true
}

// startTimeLayouts are tried in order; layouts without a zone are read as UTC.
var startTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

var errUsage = errors.New("usage")

// parseCreateEvent reads "title | start | capacity | [description]".
// errUsage means the argument shape is wrong; other errors name the bad field.
func parseCreateEvent(args string) (domain.EventDraft, error) {
	parts := strings.SplitN(args, argSeparator, 4)
	if len(parts) < 3 {
		return domain.EventDraft{}, errUsage
	}

	startsAt, err := parseStartTime(strings.TrimSpace(parts[1]))
	if err != nil {
		return domain.EventDraft{}, err
	}

	capacity, err := strconv.Atoi(strings.TrimSpace(parts[2]))
	if err != nil {
		return domain.EventDraft{}, fmt.Errorf("capacity: %q is not a number", strings.TrimSpace(parts[2]))
	}

	draft := domain.EventDraft{
		Title:    strings.TrimSpace(parts[0]),
		StartsAt: startsAt,
		Capacity: capacity,
	}
	if len(parts) == 4 {
		draft.Description = strings.TrimSpace(parts[3])
	}

	return draft, nil
}

func parseStartTime(raw string) (time.Time, error) {
	for _, layout := range startTimeLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("starts_at: %q is not a date like 2026-06-01T18:00", raw)
}

type questionArgs struct {
	EventID  string
	Prompt   string
	Required bool
}

// parseAddQuestion reads "eventID | prompt | [optional]".
func parseAddQuestion(args string) (questionArgs, error) {
	parts := strings.SplitN(args, argSeparator, 3)
	if len(parts) < 2 || strings.TrimSpace(parts[0]) == "" {
		return questionArgs{}, errUsage
	}

	q := questionArgs{
		EventID:  strings.TrimSpace(parts[0]),
		Prompt:   strings.TrimSpace(parts[1]),
		Required: true,
	}
	if len(parts) == 3 {
		switch strings.ToLower(strings.TrimSpace(parts[2])) {
		case "", "required":
		case "optional":
			q.Required = false
		default:
			return questionArgs{}, errUsage
		}
	}

	return q, nil
}

// singleArg returns the only whitespace-separated argument, if there is one.
func singleArg(args string) (string, bool) {
	fields := strings.Fields(args)
	if len(fields) != 1 {
		return "", false
	}
	return fields[0], true
}
