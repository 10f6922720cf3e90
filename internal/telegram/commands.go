package telegram

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/skip2/go-qrcode"

	"github.com/DenisArger/telegram-event-registration-service-sub000/internal/domain"
	"github.com/DenisArger/telegram-event-registration-service-sub000/internal/logging"
	"github.com/DenisArger/telegram-event-registration-service-sub000/internal/render"
)

const (
	eventListLimit = 20
	cardTimeLayout = "2006-01-02 15:04 UTC"
	qrImageSize    = 512
)

var encodeQR = func(content string) ([]byte, error) {
	return qrcode.Encode(content, qrcode.Medium, qrImageSize)
}

func (d *Dispatcher) handleCommand(ctx context.Context, req *request, cmd Command) error {
	switch cmd.Name {
	case CommandStart:
		return d.handleStart(ctx, req, cmd.Args)
	case CommandHelp:
		return d.handleHelp(ctx, req)
	case CommandEvents:
		return d.handleEvents(ctx, req)
	case CommandCreateEvent:
		return d.handleCreateEvent(ctx, req, cmd.Args)
	case CommandAddQuestion:
		return d.handleAddQuestion(ctx, req, cmd.Args)
	case CommandPublishEvent, CommandCloseEvent:
		eventID, ok := singleArg(cmd.Args)
		if !ok {
			return d.reply(ctx, req, "usage_event_id", render.Vars{"command": "/" + cmd.Name}, nil)
		}
		req.eventID = eventID
		target := domain.EventStatusPublished
		if cmd.Name == CommandCloseEvent {
			target = domain.EventStatusClosed
		}
		return d.transition(ctx, req, eventID, target)
	case CommandStatus:
		return d.handleStatus(ctx, req, cmd.Args)
	case CommandEventQR:
		return d.handleEventQR(ctx, req, cmd.Args)
	case CommandGrantOrganizer:
		return d.handleGrantOrganizer(ctx, req, cmd.Args)
	case CommandStats:
		return d.handleStats(ctx, req)
	default:
		return d.reply(ctx, req, "unknown_command", nil, nil)
	}
}

func (d *Dispatcher) deny(ctx context.Context, req *request) error {
	d.log(req).WithFields(logging.Fields{
		"event": "access_denied",
		"role":  req.principal.Role,
	}).Info("command denied")
	return d.reply(ctx, req, "access_denied", nil, nil)
}

func (d *Dispatcher) handleStart(ctx context.Context, req *request, args string) error {
	if err := d.reply(ctx, req, "greeting", render.Vars{"name": req.principal.DisplayName}, nil); err != nil {
		return err
	}

	eventID, ok := strings.CutPrefix(strings.TrimSpace(args), deepLinkPrefix)
	if !ok || eventID == "" {
		return nil
	}
	req.eventID = eventID

	event, err := d.events.GetByID(ctx, eventID)
	if err != nil {
		return err
	}
	return d.sendEventCard(ctx, req, event)
}

func (d *Dispatcher) handleHelp(ctx context.Context, req *request) error {
	sections := []string{d.text(req, "help_participant", nil)}
	if req.principal.CanManageEvents() {
		sections = append(sections, d.text(req, "help_organizer", nil))
	}
	if req.principal.Role.CanGrantRoles() {
		sections = append(sections, d.text(req, "help_admin", nil))
	}
	return d.send(ctx, req, strings.Join(sections, "\n\n"), "", nil)
}

func (d *Dispatcher) handleEvents(ctx context.Context, req *request) error {
	events, err := d.events.ListByStatus(ctx, domain.EventStatusPublished, eventListLimit)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return d.reply(ctx, req, "events_empty", nil, nil)
	}

	for _, event := range events {
		if err := d.sendEventCard(ctx, req, event); err != nil {
			return err
		}
	}
	return nil
}

// sendEventCard renders the event as MarkdownV2 with the buttons that apply
// to its status and the viewer's role.
func (d *Dispatcher) sendEventCard(ctx context.Context, req *request, event domain.Event) error {
	summary, err := d.registrations.Summary(ctx, event.ID)
	if err != nil {
		return err
	}

	blocks := []string{"*" + render.EscapeText(event.Title) + "*"}
	if description := render.MarkdownToChat(event.Description); description != "" {
		blocks = append(blocks, description)
	}

	facts := []string{
		d.text(req, "event_when", render.Vars{"starts_at": event.StartsAt.UTC().Format(cardTimeLayout)}),
		d.text(req, "event_seats", render.Vars{"registered": summary.Registered, "capacity": event.Capacity}),
	}
	if summary.Waitlisted > 0 {
		facts = append(facts, d.text(req, "event_waitlist", render.Vars{"waitlisted": summary.Waitlisted}))
	}
	if event.Status != domain.EventStatusPublished {
		facts = append(facts, d.text(req, "event_status", render.Vars{"status": event.Status}))
	}
	if req.principal.CanManageEvents() {
		facts = append(facts, d.text(req, "event_id", render.Vars{"event_id": event.ID}))
	}
	for i, fact := range facts {
		facts[i] = render.EscapeText(fact)
	}
	blocks = append(blocks, strings.Join(facts, "\n"))

	return d.send(ctx, req, strings.Join(blocks, "\n\n"), models.ParseModeMarkdown, d.cardKeyboard(req, event))
}

func (d *Dispatcher) cardKeyboard(req *request, event domain.Event) models.ReplyMarkup {
	var attendee, organizer []models.InlineKeyboardButton
	if event.Status == domain.EventStatusPublished {
		attendee = append(attendee,
			d.button(req, "button_register", Callback{Action: ActionRegister, EventID: event.ID}),
			d.button(req, "button_cancel_registration", Callback{Action: ActionCancel, EventID: event.ID}),
		)
	}
	if req.principal.CanManageEvents() {
		switch event.Status {
		case domain.EventStatusDraft:
			organizer = append(organizer, d.button(req, "button_publish", Callback{Action: ActionPublish, EventID: event.ID}))
		case domain.EventStatusPublished:
			organizer = append(organizer, d.button(req, "button_close", Callback{Action: ActionClose, EventID: event.ID}))
		}
	}
	return keyboard(attendee, organizer)
}

func (d *Dispatcher) handleCreateEvent(ctx context.Context, req *request, args string) error {
	if !req.principal.CanManageEvents() {
		return d.deny(ctx, req)
	}

	draft, err := parseCreateEvent(args)
	if errors.Is(err, errUsage) {
		return d.reply(ctx, req, "create_event_usage", nil, nil)
	}
	if err != nil {
		return d.reply(ctx, req, "create_event_invalid", render.Vars{"details": err.Error()}, nil)
	}

	if fieldErrs := domain.ValidateEventDraft(draft, d.clock.Now()); len(fieldErrs) > 0 {
		return d.reply(ctx, req, "create_event_invalid", render.Vars{"details": joinFieldErrors(fieldErrs)}, nil)
	}

	event, err := d.events.Create(ctx, draft, req.principal.UserID, d.clock.Now())
	if err != nil {
		return err
	}
	req.eventID = event.ID

	d.log(req).WithFields(logging.Fields{
		"event":    "event_created",
		"capacity": event.Capacity,
	}).Info("draft event created")

	return d.reply(ctx, req, "event_created", render.Vars{"title": event.Title, "event_id": event.ID}, nil)
}

func (d *Dispatcher) handleAddQuestion(ctx context.Context, req *request, args string) error {
	if !req.principal.CanManageEvents() {
		return d.deny(ctx, req)
	}

	parsed, err := parseAddQuestion(args)
	if err != nil {
		return d.reply(ctx, req, "add_question_usage", nil, nil)
	}
	req.eventID = parsed.EventID

	event, err := d.events.GetByID(ctx, parsed.EventID)
	if err != nil {
		return err
	}
	if event.Status == domain.EventStatusClosed {
		return d.reply(ctx, req, "add_question_closed", nil, nil)
	}
	if fieldErrs := domain.ValidateQuestionPrompt(parsed.Prompt); len(fieldErrs) > 0 {
		return d.reply(ctx, req, "add_question_invalid", render.Vars{"details": joinFieldErrors(fieldErrs)}, nil)
	}

	question, err := d.questions.Add(ctx, event.ID, parsed.Prompt, parsed.Required, d.clock.Now())
	if err != nil {
		return err
	}

	d.log(req).WithFields(logging.Fields{
		"event":    "question_added",
		"position": question.Position,
		"required": question.IsRequired,
	}).Info("registration question added")

	return d.reply(ctx, req, "question_added", render.Vars{"position": question.Position, "title": event.Title}, nil)
}

func (d *Dispatcher) handleStatus(ctx context.Context, req *request, args string) error {
	eventID, ok := singleArg(args)
	if !ok {
		return d.reply(ctx, req, "usage_event_id", render.Vars{"command": "/" + CommandStatus}, nil)
	}
	req.eventID = eventID

	event, err := d.events.GetByID(ctx, eventID)
	if err != nil {
		return err
	}

	attendance, err := d.registrations.Status(ctx, event.ID, req.principal.UserID)
	if err != nil {
		return err
	}

	key, vars := statusMessage(attendance, event.Title)
	return d.reply(ctx, req, key, vars, nil)
}

func (d *Dispatcher) handleEventQR(ctx context.Context, req *request, args string) error {
	if !req.principal.CanManageEvents() {
		return d.deny(ctx, req)
	}

	eventID, ok := singleArg(args)
	if !ok {
		return d.reply(ctx, req, "usage_event_id", render.Vars{"command": "/" + CommandEventQR}, nil)
	}
	req.eventID = eventID

	event, err := d.events.GetByID(ctx, eventID)
	if err != nil {
		return err
	}

	username, err := d.resolveUsername(ctx, req.sender)
	if err != nil {
		return err
	}
	if username == "" {
		return d.reply(ctx, req, "qr_unavailable", nil, nil)
	}

	link := "https://t.me/" + username + "?start=" + deepLinkPrefix + event.ID
	png, err := encodeQR(link)
	if err != nil {
		return fmt.Errorf("encode qr code: %w", err)
	}

	_, err = req.sender.SendPhoto(ctx, &bot.SendPhotoParams{
		ChatID:  req.chatID,
		Photo:   &models.InputFileUpload{Filename: "event-" + event.ID + ".png", Data: bytes.NewReader(png)},
		Caption: d.text(req, "qr_caption", render.Vars{"title": event.Title, "link": link}),
	})
	if err != nil {
		return fmt.Errorf("send qr code: %w", err)
	}
	return nil
}

func (d *Dispatcher) resolveUsername(ctx context.Context, sender Sender) (string, error) {
	if d.botUsername != "" {
		return d.botUsername, nil
	}

	me, err := sender.GetMe(ctx)
	if err != nil {
		return "", fmt.Errorf("get bot identity: %w", err)
	}
	if me == nil {
		return "", nil
	}
	return me.Username, nil
}

func (d *Dispatcher) handleGrantOrganizer(ctx context.Context, req *request, args string) error {
	if !req.principal.Role.CanGrantRoles() {
		return d.deny(ctx, req)
	}

	raw, ok := singleArg(args)
	if !ok {
		return d.reply(ctx, req, "grant_usage", nil, nil)
	}
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || userID <= 0 {
		return d.reply(ctx, req, "grant_usage", nil, nil)
	}

	target, err := d.directory.GetByID(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return d.reply(ctx, req, "grant_unknown_user", render.Vars{"user_id": userID}, nil)
	}
	if err != nil {
		return err
	}

	// Never demote an admin.
	if domain.RolePriority(target.Role) < domain.RolePriorityOrganizer {
		if err := d.directory.SetRole(ctx, userID, domain.RoleOrganizer); err != nil {
			return fmt.Errorf("grant organizer: %w", err)
		}
		d.log(req).WithFields(logging.Fields{
			"event":          "role_granted",
			"target_user_id": userID,
			"role":           domain.RoleOrganizer,
		}).Info("organizer role granted")
	}

	return d.reply(ctx, req, "grant_done", render.Vars{"user_id": userID}, nil)
}

func (d *Dispatcher) handleStats(ctx context.Context, req *request) error {
	if !req.principal.Role.CanGrantRoles() {
		return d.deny(ctx, req)
	}

	principals, err := d.stats.CountPrincipals(ctx)
	if err != nil {
		return err
	}
	events, err := d.stats.CountEvents(ctx)
	if err != nil {
		return err
	}

	return d.reply(ctx, req, "stats", render.Vars{"principals": principals, "events": events}, nil)
}

func joinFieldErrors(errs []domain.FieldError) string {
	parts := make([]string, 0, len(errs))
	for _, fe := range errs {
		parts = append(parts, fe.Error())
	}
	return strings.Join(parts, "; ")
}
