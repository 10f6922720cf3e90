// Package questionnaire drives the per-user intake form that precedes a
// registration. Sessions live in the store and are re-read on every step;
// expiry is evaluated lazily against the injected clock.
package questionnaire

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/DenisArger/telegram-event-registration-service-sub000/internal/clock"
	"github.com/DenisArger/telegram-event-registration-service-sub000/internal/domain"
	"github.com/DenisArger/telegram-event-registration-service-sub000/internal/logging"
)

// SessionStore persists sessions. Advance and Claim succeed only while the
// stored index still equals expectedIndex. GetActive returns the session
// touched last.
type SessionStore interface {
	Get(ctx context.Context, eventID string, userID int64) (domain.QuestionSession, error)
	GetActive(ctx context.Context, userID int64) (domain.QuestionSession, error)
	Create(ctx context.Context, session domain.QuestionSession) (domain.QuestionSession, bool, error)
	Advance(ctx context.Context, eventID string, userID int64, expectedIndex int, answer domain.Answer, now time.Time) (bool, error)
	Touch(ctx context.Context, eventID string, userID int64, now time.Time) error
	Claim(ctx context.Context, eventID string, userID int64, expectedIndex int) (domain.QuestionSession, bool, error)
	Delete(ctx context.Context, eventID string, userID int64) error
}

// QuestionLister lists an event's active questions in order.
type QuestionLister interface {
	ListActive(ctx context.Context, eventID string) ([]domain.RegistrationQuestion, error)
}

// EventReader resolves events by id.
type EventReader interface {
	GetByID(ctx context.Context, eventID string) (domain.Event, error)
}

// Registrar is the registration gateway as seen by the questionnaire.
type Registrar interface {
	Register(ctx context.Context, eventID string, userID int64, answers []domain.Answer) (domain.RegisterResult, error)
	Status(ctx context.Context, eventID string, userID int64) (domain.Attendance, error)
}

// Outcome names what a step produced.
type Outcome string

const (
	// OutcomeIgnored means there was nothing to act on; send no reply.
	OutcomeIgnored       Outcome = "ignored"
	OutcomePrompt        Outcome = "prompt"
	OutcomeInvalid       Outcome = "invalid"
	OutcomeRequired      Outcome = "required"
	OutcomeExpired       Outcome = "expired"
	OutcomeConfirmCancel Outcome = "confirm_cancel"
	OutcomeCancelled     Outcome = "cancelled"
	OutcomeKept          Outcome = "kept"
	OutcomeFinished      Outcome = "finished"
	// OutcomeAlreadyAttending is returned by Start when the user already
	// holds a seat or a waitlist slot.
	OutcomeAlreadyAttending Outcome = "already_attending"
)

// Validation reasons carried by OutcomeInvalid.
const (
	ReasonAnswerRequired = "answer_required"
	ReasonAnswerTooLong  = "answer_too_long"
)

// Step is the result of one transition. Question, Index and Total describe
// the prompt to show next, when there is one.
type Step struct {
	Outcome      Outcome
	EventID      string
	Index        int
	Total        int
	Question     domain.SessionQuestion
	Resumed      bool
	Reason       string
	Registration domain.RegisterResult
	Attendance   domain.Attendance
}

// Machine runs questionnaire sessions.
type Machine struct {
	sessions  SessionStore
	questions QuestionLister
	events    EventReader
	registrar Registrar
	clock     clock.Clock
	ttl       time.Duration
	logger    *logrus.Entry
}

// NewMachine constructs a Machine. ttl is measured from session creation.
func NewMachine(sessions SessionStore, questions QuestionLister, events EventReader, registrar Registrar, clk clock.Clock, ttl time.Duration, logger *logrus.Entry) *Machine {
	if logger == nil {
		logger = logging.Logger()
	}
	if clk == nil {
		clk = clock.Real()
	}

	return &Machine{
		sessions:  sessions,
		questions: questions,
		events:    events,
		registrar: registrar,
		clock:     clk,
		ttl:       ttl,
		logger:    logger,
	}
}

// Start is the entry point of the register action. It registers immediately
// when the event has no questions, resumes a live session, or opens a new one.
func (m *Machine) Start(ctx context.Context, eventID string, userID int64) (Step, error) {
	if err := m.ready(ctx); err != nil {
		return Step{}, err
	}

	event, err := m.events.GetByID(ctx, eventID)
	if err != nil {
		return Step{}, err
	}
	if !event.AcceptsRegistrations() {
		return Step{}, domain.ErrRegistrationClosed
	}

	attendance, err := m.registrar.Status(ctx, event.ID, userID)
	if err != nil {
		return Step{}, err
	}
	if attendance.State != domain.AttendanceNone {
		return Step{Outcome: OutcomeAlreadyAttending, EventID: event.ID, Attendance: attendance}, nil
	}

	questions, err := m.questions.ListActive(ctx, event.ID)
	if err != nil {
		return Step{}, fmt.Errorf("list questions: %w", err)
	}
	if len(questions) == 0 {
		result, err := m.registrar.Register(ctx, event.ID, userID, nil)
		if err != nil {
			return Step{}, err
		}
		return Step{Outcome: OutcomeFinished, EventID: event.ID, Registration: result}, nil
	}

	now := m.clock.Now()

	existing, err := m.sessions.Get(ctx, event.ID, userID)
	switch {
	case err == nil && !existing.IsExpired(now):
		return m.show(ctx, existing, true)
	case err == nil:
		if err := m.sessions.Delete(ctx, event.ID, userID); err != nil {
			return Step{}, err
		}
		m.log(event.ID, userID).WithField("event", "questionnaire_expired").Info("replaced expired questionnaire")
	case !errors.Is(err, domain.ErrSessionNotFound):
		return Step{}, err
	}

	session, created, err := m.sessions.Create(ctx, domain.QuestionSession{
		EventID:      event.ID,
		UserID:       userID,
		CurrentIndex: 1,
		Questions:    domain.SnapshotQuestions(questions),
		Answers:      []domain.Answer{},
		CreatedAt:    now,
		UpdatedAt:    now,
		ExpiresAt:    now.Add(m.ttl),
	})
	if err != nil {
		return Step{}, err
	}

	if !created {
		return m.show(ctx, session, true)
	}

	m.log(event.ID, userID).WithFields(logging.Fields{
		"event":     "questionnaire_started",
		"questions": session.Total(),
	}).Info("questionnaire started")

	return promptStep(session, false), nil
}

// Answer records free text against the session whose prompt the user saw
// last. Without a session it is ignored.
func (m *Machine) Answer(ctx context.Context, userID int64, text string) (Step, error) {
	if err := m.ready(ctx); err != nil {
		return Step{}, err
	}

	session, err := m.sessions.GetActive(ctx, userID)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return Step{Outcome: OutcomeIgnored}, nil
	}
	if err != nil {
		return Step{}, err
	}

	if session.IsExpired(m.clock.Now()) {
		return m.expire(ctx, session.EventID, userID)
	}

	current, ok := session.Current()
	if !ok {
		return m.expire(ctx, session.EventID, userID)
	}

	trimmed := strings.TrimSpace(text)
	if reason := validateAnswer(trimmed, current.IsRequired); reason != "" {
		step := promptStep(session, false)
		step.Outcome = OutcomeInvalid
		step.Reason = reason
		return step, nil
	}

	answer := domain.Answer{QuestionID: current.QuestionID, Version: current.Version}
	if trimmed != "" {
		answer.Text = &trimmed
	}

	return m.advance(ctx, session, answer)
}

// Skip records an optional question as skipped. index must match the
// session's current index; stale buttons are answered as expired.
func (m *Machine) Skip(ctx context.Context, eventID string, userID int64, index int) (Step, error) {
	session, step, err := m.live(ctx, eventID, userID)
	if err != nil || step != nil {
		return derefStep(step), err
	}

	if index != session.CurrentIndex {
		return Step{Outcome: OutcomeExpired, EventID: eventID}, nil
	}

	current, ok := session.Current()
	if !ok {
		return m.expire(ctx, eventID, userID)
	}
	if current.IsRequired {
		step, err := m.show(ctx, session, false)
		if err != nil {
			return Step{}, err
		}
		step.Outcome = OutcomeRequired
		return step, nil
	}

	return m.advance(ctx, session, domain.Answer{
		QuestionID: current.QuestionID,
		Version:    current.Version,
		Skipped:    true,
	})
}

// CancelPrompt asks the user to confirm abandoning the questionnaire.
func (m *Machine) CancelPrompt(ctx context.Context, eventID string, userID int64) (Step, error) {
	session, step, err := m.live(ctx, eventID, userID)
	if err != nil || step != nil {
		return derefStep(step), err
	}

	next, err := m.show(ctx, session, false)
	if err != nil {
		return Step{}, err
	}
	next.Outcome = OutcomeConfirmCancel
	return next, nil
}

// CancelConfirm tears the session down whether or not one is left, and
// reports it cancelled. An expired session is reported as expired instead.
// Registrations are not touched.
func (m *Machine) CancelConfirm(ctx context.Context, eventID string, userID int64) (Step, error) {
	if err := m.ready(ctx); err != nil {
		return Step{}, err
	}

	session, err := m.sessions.Get(ctx, eventID, userID)
	switch {
	case err == nil && session.IsExpired(m.clock.Now()):
		return m.expire(ctx, eventID, userID)
	case err != nil && !errors.Is(err, domain.ErrSessionNotFound):
		return Step{}, err
	}

	if err := m.sessions.Delete(ctx, eventID, userID); err != nil {
		return Step{}, err
	}

	m.log(eventID, userID).WithField("event", "questionnaire_cancelled").Info("questionnaire cancelled")
	return Step{Outcome: OutcomeCancelled, EventID: eventID}, nil
}

// Keep dismisses the cancel prompt and re-shows the current question.
func (m *Machine) Keep(ctx context.Context, eventID string, userID int64) (Step, error) {
	session, step, err := m.live(ctx, eventID, userID)
	if err != nil || step != nil {
		return derefStep(step), err
	}

	next, err := m.show(ctx, session, true)
	if err != nil {
		return Step{}, err
	}
	next.Outcome = OutcomeKept
	return next, nil
}

// advance moves past the current question. On the last one it registers with
// every collected answer, then claims the session; a failed registration
// leaves the session in place.
func (m *Machine) advance(ctx context.Context, session domain.QuestionSession, answer domain.Answer) (Step, error) {
	if !session.IsLast() {
		ok, err := m.sessions.Advance(ctx, session.EventID, session.UserID, session.CurrentIndex, answer, m.clock.Now())
		if err != nil {
			return Step{}, err
		}
		if !ok {
			return Step{Outcome: OutcomeExpired, EventID: session.EventID}, nil
		}

		session.Answers = append(session.Answers, answer)
		session.CurrentIndex++

		m.log(session.EventID, session.UserID).WithFields(logging.Fields{
			"event": "questionnaire_answered",
			"index": session.CurrentIndex - 1,
		}).Debug("questionnaire advanced")

		return promptStep(session, false), nil
	}

	answers := append(append([]domain.Answer(nil), session.Answers...), answer)
	result, err := m.registrar.Register(ctx, session.EventID, session.UserID, answers)
	if err != nil {
		return Step{}, err
	}

	if _, _, err := m.sessions.Claim(ctx, session.EventID, session.UserID, session.CurrentIndex); err != nil {
		return Step{}, err
	}

	m.log(session.EventID, session.UserID).WithFields(logging.Fields{
		"event":   "questionnaire_completed",
		"answers": len(answers),
		"outcome": result.Outcome,
	}).Info("questionnaire completed")

	return Step{Outcome: OutcomeFinished, EventID: session.EventID, Registration: result}, nil
}

// live loads the (eventID, userID) session. When it is missing or expired a
// terminal Expired step is returned instead, after tearing down expired state.
func (m *Machine) live(ctx context.Context, eventID string, userID int64) (domain.QuestionSession, *Step, error) {
	if err := m.ready(ctx); err != nil {
		return domain.QuestionSession{}, nil, err
	}

	session, err := m.sessions.Get(ctx, eventID, userID)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return domain.QuestionSession{}, &Step{Outcome: OutcomeExpired, EventID: eventID}, nil
	}
	if err != nil {
		return domain.QuestionSession{}, nil, err
	}

	if session.IsExpired(m.clock.Now()) {
		step, err := m.expire(ctx, eventID, userID)
		if err != nil {
			return domain.QuestionSession{}, nil, err
		}
		return domain.QuestionSession{}, &step, nil
	}

	return session, nil, nil
}

// show touches the session so free text is routed to it, then returns its
// current prompt.
func (m *Machine) show(ctx context.Context, session domain.QuestionSession, resumed bool) (Step, error) {
	if err := m.sessions.Touch(ctx, session.EventID, session.UserID, m.clock.Now()); err != nil {
		return Step{}, err
	}
	return promptStep(session, resumed), nil
}

func (m *Machine) expire(ctx context.Context, eventID string, userID int64) (Step, error) {
	if err := m.sessions.Delete(ctx, eventID, userID); err != nil {
		return Step{}, err
	}

	m.log(eventID, userID).WithField("event", "questionnaire_expired").Info("questionnaire expired")
	return Step{Outcome: OutcomeExpired, EventID: eventID}, nil
}

func (m *Machine) ready(ctx context.Context) error {
	if m == nil || m.sessions == nil || m.questions == nil || m.events == nil || m.registrar == nil {
		return errors.New("questionnaire machine is not initialized")
	}
	if ctx == nil {
		return errors.New("context is required")
	}
	return nil
}

func (m *Machine) log(eventID string, userID int64) *logrus.Entry {
	return m.logger.WithFields(logging.Context{UserID: userID, EventID: eventID}.Fields())
}

func validateAnswer(trimmed string, required bool) string {
	n := utf8.RuneCountInString(trimmed)
	if n > domain.MaxAnswerLen {
		return ReasonAnswerTooLong
	}
	if required && n == 0 {
		return ReasonAnswerRequired
	}
	return ""
}

func promptStep(session domain.QuestionSession, resumed bool) Step {
	current, _ := session.Current()
	return Step{
		Outcome:  OutcomePrompt,
		EventID:  session.EventID,
		Index:    session.CurrentIndex,
		Total:    session.Total(),
		Question: current,
		Resumed:  resumed,
	}
}

func derefStep(step *Step) Step {
	if step == nil {
		return Step{}
	}
	return *step
}
