package telegram

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-telegram/bot/models"

	"github.com/DenisArger/telegram-event-registration-service-sub000/internal/domain"
	"github.com/DenisArger/telegram-event-registration-service-sub000/internal/lifecycle"
	"github.com/DenisArger/telegram-event-registration-service-sub000/internal/questionnaire"
	"github.com/DenisArger/telegram-event-registration-service-sub000/internal/render"
)

func (d *Dispatcher) handleCallback(ctx context.Context, req *request, cb Callback) error {
	userID := req.principal.UserID

	var (
		step questionnaire.Step
		err  error
	)
	switch cb.Action {
	case ActionRegister:
		step, err = d.questionnaire.Start(ctx, cb.EventID, userID)
	case ActionCancel:
		return d.confirmCancelRegistration(ctx, req, cb.EventID)
	case ActionCancelConfirm:
		return d.cancelRegistration(ctx, req, cb.EventID)
	case ActionSkip:
		step, err = d.questionnaire.Skip(ctx, cb.EventID, userID, cb.Index)
	case ActionQuestionnaireCancel:
		step, err = d.questionnaire.CancelPrompt(ctx, cb.EventID, userID)
	case ActionQuestionnaireAbort:
		step, err = d.questionnaire.CancelConfirm(ctx, cb.EventID, userID)
	case ActionQuestionnaireKeep:
		step, err = d.questionnaire.Keep(ctx, cb.EventID, userID)
	case ActionPublish:
		return d.transition(ctx, req, cb.EventID, domain.EventStatusPublished)
	case ActionClose:
		return d.transition(ctx, req, cb.EventID, domain.EventStatusClosed)
	default:
		return fmt.Errorf("unhandled callback action %q", cb.Action)
	}
	if err != nil {
		return err
	}

	return d.renderStep(ctx, req, step)
}

// renderStep replies with whatever the questionnaire step calls for.
func (d *Dispatcher) renderStep(ctx context.Context, req *request, step questionnaire.Step) error {
	switch step.Outcome {
	case questionnaire.OutcomeIgnored:
		return nil
	case questionnaire.OutcomePrompt:
		text := d.promptText(req, step)
		if step.Resumed {
			text = d.text(req, "questionnaire_resumed", nil) + "\n\n" + text
		}
		return d.send(ctx, req, text, "", d.promptKeyboard(req, step))
	case questionnaire.OutcomeInvalid:
		reason := d.text(req, step.Reason, render.Vars{"max": domain.MaxAnswerLen})
		return d.send(ctx, req, reason+"\n\n"+d.promptText(req, step), "", d.promptKeyboard(req, step))
	case questionnaire.OutcomeRequired:
		reason := d.text(req, questionnaire.ReasonAnswerRequired, nil)
		return d.send(ctx, req, reason+"\n\n"+d.promptText(req, step), "", d.promptKeyboard(req, step))
	case questionnaire.OutcomeKept:
		kept := d.text(req, "questionnaire_kept", nil)
		return d.send(ctx, req, kept+"\n\n"+d.promptText(req, step), "", d.promptKeyboard(req, step))
	case questionnaire.OutcomeExpired:
		return d.reply(ctx, req, "session_expired", nil, nil)
	case questionnaire.OutcomeConfirmCancel:
		return d.reply(ctx, req, "questionnaire_cancel_confirm", nil, keyboard([]models.InlineKeyboardButton{
			d.button(req, "button_keep", Callback{Action: ActionQuestionnaireKeep, EventID: step.EventID}),
			d.button(req, "button_confirm_cancel_questionnaire", Callback{Action: ActionQuestionnaireAbort, EventID: step.EventID}),
		}))
	case questionnaire.OutcomeCancelled:
		return d.reply(ctx, req, "questionnaire_cancelled", nil, nil)
	case questionnaire.OutcomeFinished:
		event, err := d.events.GetByID(ctx, step.EventID)
		if err != nil {
			return err
		}
		key, vars := registrationMessage(step.Registration, event.Title)
		return d.reply(ctx, req, key, vars, nil)
	case questionnaire.OutcomeAlreadyAttending:
		event, err := d.events.GetByID(ctx, step.EventID)
		if err != nil {
			return err
		}
		key, vars := alreadyAttendingMessage(step.Attendance, event.Title)
		return d.reply(ctx, req, key, vars, nil)
	default:
		return fmt.Errorf("unexpected questionnaire outcome %q", step.Outcome)
	}
}

func (d *Dispatcher) promptText(req *request, step questionnaire.Step) string {
	text := d.text(req, "question_prompt", render.Vars{
		"index":  step.Index,
		"total":  step.Total,
		"prompt": step.Question.Prompt,
	})
	if !step.Question.IsRequired {
		text += "\n" + d.text(req, "question_optional", nil)
	}
	return text
}

// promptKeyboard offers skip only for optional questions.
func (d *Dispatcher) promptKeyboard(req *request, step questionnaire.Step) models.ReplyMarkup {
	row := make([]models.InlineKeyboardButton, 0, 2)
	if !step.Question.IsRequired {
		row = append(row, d.button(req, "button_skip", Callback{Action: ActionSkip, EventID: step.EventID, Index: step.Index}))
	}
	row = append(row, d.button(req, "button_cancel_questionnaire", Callback{Action: ActionQuestionnaireCancel, EventID: step.EventID}))
	return keyboard(row)
}

func registrationMessage(result domain.RegisterResult, title string) (string, render.Vars) {
	vars := render.Vars{"title": title, "position": result.Position}
	switch result.Outcome {
	case domain.OutcomeWaitlisted:
		return "waitlisted", vars
	case domain.OutcomeAlreadyRegistered:
		return "already_registered", vars
	case domain.OutcomeAlreadyWaitlisted:
		return "already_waitlisted", vars
	default:
		return "registered", vars
	}
}

func alreadyAttendingMessage(attendance domain.Attendance, title string) (string, render.Vars) {
	vars := render.Vars{"title": title, "position": attendance.Position}
	if attendance.State == domain.AttendanceWaitlisted {
		return "already_waitlisted", vars
	}
	return "already_registered", vars
}

func statusMessage(attendance domain.Attendance, title string) (string, render.Vars) {
	vars := render.Vars{"title": title, "position": attendance.Position}
	switch attendance.State {
	case domain.AttendanceRegistered:
		return "status_registered", vars
	case domain.AttendanceWaitlisted:
		return "status_waitlisted", vars
	default:
		return "status_none", vars
	}
}

func (d *Dispatcher) confirmCancelRegistration(ctx context.Context, req *request, eventID string) error {
	event, err := d.events.GetByID(ctx, eventID)
	if err != nil {
		return err
	}

	attendance, err := d.registrations.Status(ctx, event.ID, req.principal.UserID)
	if err != nil {
		return err
	}
	if attendance.State == domain.AttendanceNone {
		return d.reply(ctx, req, "not_registered", render.Vars{"title": event.Title}, nil)
	}

	return d.reply(ctx, req, "cancel_registration_confirm", render.Vars{"title": event.Title}, keyboard([]models.InlineKeyboardButton{
		d.button(req, "button_confirm_cancel_registration", Callback{Action: ActionCancelConfirm, EventID: event.ID}),
	}))
}

func (d *Dispatcher) cancelRegistration(ctx context.Context, req *request, eventID string) error {
	event, err := d.events.GetByID(ctx, eventID)
	if err != nil {
		return err
	}

	result, err := d.registrations.Cancel(ctx, event.ID, req.principal.UserID)
	if err != nil {
		return err
	}
	if result.Outcome == domain.OutcomeNotRegistered {
		return d.reply(ctx, req, "not_registered", render.Vars{"title": event.Title}, nil)
	}

	if err := d.reply(ctx, req, "registration_cancelled", render.Vars{"title": event.Title}, nil); err != nil {
		return err
	}
	if result.Promoted() {
		d.notifyPromoted(ctx, req, event, result.PromotedUserID)
	}
	return nil
}

// notifyPromoted tells the promoted user about their seat in their own chat
// and language. Failures are logged; the cancellation already happened.
func (d *Dispatcher) notifyPromoted(ctx context.Context, req *request, event domain.Event, userID int64) {
	log := d.log(req).WithField("promoted_user_id", userID)

	target := &request{sender: req.sender, chatID: userID, eventID: event.ID}
	promoted, err := d.directory.GetByID(ctx, userID)
	switch {
	case err == nil:
		target.principal = promoted
		target.locale = promoted.LanguageCode
		if promoted.ChatID != 0 {
			target.chatID = promoted.ChatID
		}
	case !errors.Is(err, domain.ErrNotFound):
		log.WithField("event", "promotion_lookup_failed").WithError(err).Warn("failed to load promoted principal")
	}

	if err := d.reply(ctx, target, "promoted", render.Vars{"title": event.Title}, nil); err != nil {
		log.WithField("event", "promotion_notify_failed").WithError(err).Warn("failed to notify promoted user")
		return
	}
	log.WithField("event", "promotion_notified").Info("notified promoted user")
}

func (d *Dispatcher) transition(ctx context.Context, req *request, eventID string, target domain.EventStatus) error {
	decision, err := d.lifecycle.Transition(ctx, req.principal, eventID, target)
	if err != nil {
		return err
	}

	switch decision.Result {
	case lifecycle.ResultApplied:
		key := "lifecycle_published"
		if target == domain.EventStatusClosed {
			key = "lifecycle_closed"
		}
		return d.reply(ctx, req, key, render.Vars{"title": decision.Event.Title}, nil)
	case lifecycle.ResultDenied:
		return d.reply(ctx, req, "access_denied", nil, nil)
	case lifecycle.ResultNotFound:
		return d.reply(ctx, req, "event_not_found", nil, nil)
	case lifecycle.ResultInvalidTransition:
		return d.reply(ctx, req, "lifecycle_invalid", render.Vars{
			"title":   decision.Event.Title,
			"current": decision.Current,
			"target":  decision.Target,
		}, nil)
	case lifecycle.ResultNotUpdated:
		return d.reply(ctx, req, "lifecycle_not_updated", nil, nil)
	default:
		return fmt.Errorf("unexpected lifecycle result %q", decision.Result)
	}
}
