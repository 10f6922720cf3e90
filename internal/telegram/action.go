package telegram

import (
	"errors"
	"strconv"
	"strings"
)

// Action is the closed set of inline button tags.
type Action string

const (
	ActionRegister            Action = "reg"
	ActionCancel              Action = "cancel"
	ActionCancelConfirm       Action = "cancel_confirm"
	ActionSkip                Action = "qskip"
	ActionQuestionnaireCancel Action = "qcancel"
	ActionQuestionnaireAbort  Action = "qcancel_confirm"
	ActionQuestionnaireKeep   Action = "qcancel_keep"
	ActionPublish             Action = "pub"
	ActionClose               Action = "cls"
)

const callbackSeparator = ":"

// Telegram rejects callback data longer than this many bytes.
const maxCallbackData = 64

var (
	ErrUnknownAction     = errors.New("unknown callback action")
	ErrMalformedCallback = errors.New("malformed callback data")
)

// Callback is a parsed inline button press. Index is set only for ActionSkip.
type Callback struct {
	Action  Action
	EventID string
	Index   int
}

func knownAction(action Action) bool {
	switch action {
	case ActionRegister, ActionCancel, ActionCancelConfirm, ActionSkip,
		ActionQuestionnaireCancel, ActionQuestionnaireAbort, ActionQuestionnaireKeep,
		ActionPublish, ActionClose:
		return true
	default:
		return false
	}
}

// ParseCallback decodes "tag:eventID" or, for ActionSkip, "tag:eventID:index".
func ParseCallback(data string) (Callback, error) {
	if data == "" || len(data) > maxCallbackData {
		return Callback{}, ErrMalformedCallback
	}

	parts := strings.Split(data, callbackSeparator)
	action := Action(parts[0])
	if !knownAction(action) {
		return Callback{}, ErrUnknownAction
	}

	want := 2
	if action == ActionSkip {
		want = 3
	}
	if len(parts) != want || !validEventID(parts[1]) {
		return Callback{}, ErrMalformedCallback
	}

	cb := Callback{Action: action, EventID: parts[1]}
	if action == ActionSkip {
		index, err := strconv.Atoi(parts[2])
		if err != nil || index < 1 {
			return Callback{}, ErrMalformedCallback
		}
		cb.Index = index
	}

	return cb, nil
}

// Data encodes the callback for an inline button.
func (c Callback) Data() string {
	data := string(c.Action) + callbackSeparator + c.EventID
	if c.Action == ActionSkip {
		data += callbackSeparator + strconv.Itoa(c.Index)
	}
	return data
}

func validEventID(id string) bool {
	return id != "" && !strings.ContainsAny(id, " \t\n"+callbackSeparator)
}
