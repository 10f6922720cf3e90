package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"github.com/DenisArger/telegram-event-registration-service-sub000/internal/clock"
	"github.com/DenisArger/telegram-event-registration-service-sub000/internal/domain"
	"github.com/DenisArger/telegram-event-registration-service-sub000/internal/feature/principal"
	"github.com/DenisArger/telegram-event-registration-service-sub000/internal/lifecycle"
	"github.com/DenisArger/telegram-event-registration-service-sub000/internal/logging"
	"github.com/DenisArger/telegram-event-registration-service-sub000/internal/questionnaire"
	"github.com/DenisArger/telegram-event-registration-service-sub000/internal/render"
)

// Sender is the subset of the Bot API the dispatcher uses. *bot.Bot satisfies it.
type Sender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	SendPhoto(ctx context.Context, params *bot.SendPhotoParams) (*models.Message, error)
	AnswerCallbackQuery(ctx context.Context, params *bot.AnswerCallbackQueryParams) (bool, error)
	GetMe(ctx context.Context) (*models.User, error)
}

// PrincipalRegistrar upserts the acting user.
type PrincipalRegistrar interface {
	EnsurePrincipal(ctx context.Context, identity principal.Identity) (domain.Principal, error)
}

// PrincipalDirectory looks principals up and changes their role.
type PrincipalDirectory interface {
	GetByID(ctx context.Context, userID int64) (domain.Principal, error)
	SetRole(ctx context.Context, userID int64, role domain.Role) error
}

// EventStore creates and reads events.
type EventStore interface {
	Create(ctx context.Context, draft domain.EventDraft, createdBy int64, now time.Time) (domain.Event, error)
	GetByID(ctx context.Context, eventID string) (domain.Event, error)
	ListByStatus(ctx context.Context, status domain.EventStatus, limit int64) ([]domain.Event, error)
}

// QuestionStore appends registration questions.
type QuestionStore interface {
	Add(ctx context.Context, eventID, prompt string, required bool, now time.Time) (domain.RegistrationQuestion, error)
}

// Registrations is the registration gateway minus Register, which only the
// questionnaire calls.
type Registrations interface {
	Cancel(ctx context.Context, eventID string, userID int64) (domain.CancelResult, error)
	Status(ctx context.Context, eventID string, userID int64) (domain.Attendance, error)
	Summary(ctx context.Context, eventID string) (domain.SeatSummary, error)
}

// Questionnaire drives intake sessions.
type Questionnaire interface {
	Start(ctx context.Context, eventID string, userID int64) (questionnaire.Step, error)
	Answer(ctx context.Context, userID int64, text string) (questionnaire.Step, error)
	Skip(ctx context.Context, eventID string, userID int64, index int) (questionnaire.Step, error)
	CancelPrompt(ctx context.Context, eventID string, userID int64) (questionnaire.Step, error)
	CancelConfirm(ctx context.Context, eventID string, userID int64) (questionnaire.Step, error)
	Keep(ctx context.Context, eventID string, userID int64) (questionnaire.Step, error)
}

// Lifecycle applies event status transitions.
type Lifecycle interface {
	Transition(ctx context.Context, actor domain.Principal, eventID string, target domain.EventStatus) (lifecycle.Decision, error)
}

// StatsProvider exposes aggregate counts for admin diagnostics.
type StatsProvider interface {
	CountPrincipals(ctx context.Context) (int64, error)
	CountEvents(ctx context.Context) (int64, error)
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

func WithPrincipalRegistrar(registrar PrincipalRegistrar) Option {
	return func(d *Dispatcher) { d.registrar = registrar }
}

func WithPrincipalDirectory(directory PrincipalDirectory) Option {
	return func(d *Dispatcher) { d.directory = directory }
}

func WithEventStore(events EventStore) Option {
	return func(d *Dispatcher) { d.events = events }
}

func WithQuestionStore(questions QuestionStore) Option {
	return func(d *Dispatcher) { d.questions = questions }
}

func WithRegistrations(registrations Registrations) Option {
	return func(d *Dispatcher) { d.registrations = registrations }
}

func WithQuestionnaire(machine Questionnaire) Option {
	return func(d *Dispatcher) { d.questionnaire = machine }
}

func WithLifecycle(guard Lifecycle) Option {
	return func(d *Dispatcher) { d.lifecycle = guard }
}

func WithStatsProvider(stats StatsProvider) Option {
	return func(d *Dispatcher) { d.stats = stats }
}

func WithClock(clk clock.Clock) Option {
	return func(d *Dispatcher) { d.clock = clk }
}

// WithBotUsername sets the username used in deep links. Without it the
// username is fetched with getMe when a link is needed.
func WithBotUsername(username string) Option {
	return func(d *Dispatcher) { d.botUsername = strings.TrimPrefix(strings.TrimSpace(username), "@") }
}

// Dispatcher turns one update into at most a handful of replies. It keeps no
// state between updates.
type Dispatcher struct {
	catalog       *render.Catalog
	logger        *logrus.Entry
	clock         clock.Clock
	registrar     PrincipalRegistrar
	directory     PrincipalDirectory
	events        EventStore
	questions     QuestionStore
	registrations Registrations
	questionnaire Questionnaire
	lifecycle     Lifecycle
	stats         StatsProvider
	botUsername   string
}

// NewDispatcher builds a Dispatcher and checks that every dependency is set.
func NewDispatcher(catalog *render.Catalog, logger *logrus.Entry, opts ...Option) (*Dispatcher, error) {
	if catalog == nil {
		return nil, errors.New("message catalog is required")
	}
	if logger == nil {
		logger = logging.Logger()
	}

	d := &Dispatcher{
		catalog: catalog,
		logger:  logger,
		clock:   clock.Real(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}

	missing := make([]string, 0)
	if d.registrar == nil {
		missing = append(missing, "principal registrar")
	}
	if d.directory == nil {
		missing = append(missing, "principal directory")
	}
	if d.events == nil {
		missing = append(missing, "event store")
	}
	if d.questions == nil {
		missing = append(missing, "question store")
	}
	if d.registrations == nil {
		missing = append(missing, "registrations")
	}
	if d.questionnaire == nil {
		missing = append(missing, "questionnaire")
	}
	if d.lifecycle == nil {
		missing = append(missing, "lifecycle guard")
	}
	if d.stats == nil {
		missing = append(missing, "stats provider")
	}
	if d.clock == nil {
		missing = append(missing, "clock")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("dispatcher dependencies missing: %s", strings.Join(missing, ", "))
	}

	return d, nil
}

// request carries what a handler needs about the current update.
type request struct {
	sender    Sender
	principal domain.Principal
	chatID    int64
	locale    string
	eventID   string
	action    string
}

// Dispatch handles a single update. Errors and panics stop here: they are
// logged once and answered with one generic reply.
func (d *Dispatcher) Dispatch(ctx context.Context, sender Sender, update *models.Update) {
	if d == nil || sender == nil || update == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	in, ok := classify(update)
	if !ok {
		return
	}

	req := &request{
		sender:    sender,
		principal: domain.Principal{UserID: in.identity.UserID},
		chatID:    in.chatID,
		locale:    in.identity.LanguageCode,
	}

	defer func() {
		if r := recover(); r != nil {
			d.fail(ctx, req, fmt.Errorf("panic: %v", r))
		}
	}()

	var (
		cb    Callback
		cbErr error
	)
	if in.isCallback {
		cb, cbErr = ParseCallback(in.text)
		req.action, req.eventID = string(cb.Action), cb.EventID
		d.acknowledge(ctx, req, in.callbackID, cbErr)
	}

	actor, err := d.registrar.EnsurePrincipal(ctx, in.identity)
	if err != nil {
		d.fail(ctx, req, fmt.Errorf("upsert principal: %w", err))
		return
	}
	req.principal = actor
	if actor.LanguageCode != "" {
		req.locale = actor.LanguageCode
	}

	switch {
	case in.isCallback && cbErr != nil:
		return
	case in.isCallback:
		err = d.handleCallback(ctx, req, cb)
	default:
		if cmd, isCommand := ParseCommand(in.text); isCommand {
			req.action = "/" + cmd.Name
			err = d.handleCommand(ctx, req, cmd)
		} else {
			err = d.handleText(ctx, req, in.text)
		}
	}

	if err != nil {
		d.fail(ctx, req, err)
	}
}

// acknowledge answers the callback query. An unparseable callback gets the
// unknown action notice as the answer text.
func (d *Dispatcher) acknowledge(ctx context.Context, req *request, callbackID string, parseErr error) {
	params := &bot.AnswerCallbackQueryParams{CallbackQueryID: callbackID}
	if parseErr != nil {
		params.Text = d.text(req, "unknown_action", nil)
		d.log(req).WithFields(logging.Fields{
			"event":  "callback_rejected",
			"reason": parseErr.Error(),
		}).Info("rejected callback data")
	}

	if _, err := req.sender.AnswerCallbackQuery(ctx, params); err != nil {
		d.log(req).WithField("event", "callback_ack_failed").WithError(err).Warn("failed to acknowledge callback query")
	}
}

// fail maps state errors to their message and reduces everything else to the
// generic reply.
func (d *Dispatcher) fail(ctx context.Context, req *request, err error) {
	switch {
	case errors.Is(err, domain.ErrEventNotFound):
		d.notify(ctx, req, "event_not_found")
	case errors.Is(err, domain.ErrRegistrationClosed):
		d.notify(ctx, req, "registration_closed")
	default:
		d.log(req).WithField("event", "dispatch_failed").WithError(err).Error("failed to handle update")
		d.notify(ctx, req, render.KeyErrorGeneric)
	}
}

func (d *Dispatcher) notify(ctx context.Context, req *request, key string) {
	if err := d.reply(ctx, req, key, nil, nil); err != nil {
		d.log(req).WithField("event", "telegram_send_failed").WithError(err).Warn("failed to send reply")
	}
}

func (d *Dispatcher) handleText(ctx context.Context, req *request, text string) error {
	if text == "" {
		return nil
	}

	step, err := d.questionnaire.Answer(ctx, req.principal.UserID, text)
	if err != nil {
		return err
	}
	req.eventID = step.EventID
	return d.renderStep(ctx, req, step)
}

func (d *Dispatcher) log(req *request) *logrus.Entry {
	return d.logger.WithFields(logging.Context{
		UserID:  req.principal.UserID,
		ChatID:  req.chatID,
		EventID: req.eventID,
		Action:  req.action,
	}.Fields())
}

func (d *Dispatcher) text(req *request, key string, vars render.Vars) string {
	return d.catalog.Render(req.locale, key, vars)
}

func (d *Dispatcher) reply(ctx context.Context, req *request, key string, vars render.Vars, markup models.ReplyMarkup) error {
	return d.send(ctx, req, d.text(req, key, vars), "", markup)
}

func (d *Dispatcher) send(ctx context.Context, req *request, text string, mode models.ParseMode, markup models.ReplyMarkup) error {
	return sendTo(ctx, req.sender, req.chatID, text, mode, markup)
}

func sendTo(ctx context.Context, sender Sender, chatID int64, text string, mode models.ParseMode, markup models.ReplyMarkup) error {
	params := &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: mode,
	}
	if markup != nil {
		params.ReplyMarkup = markup
	}

	if _, err := sender.SendMessage(ctx, params); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

func (d *Dispatcher) button(req *request, key string, cb Callback) models.InlineKeyboardButton {
	return models.InlineKeyboardButton{Text: d.text(req, key, nil), CallbackData: cb.Data()}
}

func keyboard(rows ...[]models.InlineKeyboardButton) models.ReplyMarkup {
	kept := make([][]models.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		if len(row) > 0 {
			kept = append(kept, row)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	return &models.InlineKeyboardMarkup{InlineKeyboard: kept}
}
