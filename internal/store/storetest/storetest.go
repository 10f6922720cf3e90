// Package storetest provides in-memory implementations of the store contracts
// for tests. Each type guards its state with a mutex so the atomic semantics
// of the real stores hold under concurrent callers.
package storetest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/DenisArger/telegram-event-registration-service-sub000/internal/domain"
	"github.com/DenisArger/telegram-event-registration-service-sub000/internal/feature/principal"
)

// Ledger mirrors the register/cancel/promote functions of the seat ledger.
type Ledger struct {
	mu     sync.Mutex
	events map[string]*seats
	// Err, when set, is returned by every call.
	Err error
}

type seats struct {
	registered map[int64][]domain.Answer
	waitlist   []waitlistEntry
	// lastPosition is the highest waitlist position ever handed out.
	lastPosition int
}

type waitlistEntry struct {
	userID   int64
	position int
	answers  []domain.Answer
}

// NewLedger returns an empty Ledger.
func NewLedger() *Ledger {
	return &Ledger{events: make(map[string]*seats)}
}

func (l *Ledger) seatsFor(eventID string) *seats {
	s, ok := l.events[eventID]
	if !ok {
		s = &seats{registered: make(map[int64][]domain.Answer)}
		l.events[eventID] = s
	}
	return s
}

// Register seats or waitlists userID.
func (l *Ledger) Register(_ context.Context, eventID string, userID int64, capacity int, answers []domain.Answer) (domain.RegisterResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Err != nil {
		return domain.RegisterResult{}, l.Err
	}

	s := l.seatsFor(eventID)
	if _, ok := s.registered[userID]; ok {
		return domain.RegisterResult{Outcome: domain.OutcomeAlreadyRegistered}, nil
	}
	for _, entry := range s.waitlist {
		if entry.userID == userID {
			return domain.RegisterResult{Outcome: domain.OutcomeAlreadyWaitlisted, Position: entry.position}, nil
		}
	}

	if len(s.registered) < capacity {
		s.registered[userID] = append([]domain.Answer(nil), answers...)
		return domain.RegisterResult{Outcome: domain.OutcomeRegistered}, nil
	}

	s.lastPosition++
	position := s.lastPosition
	s.waitlist = append(s.waitlist, waitlistEntry{userID: userID, position: position, answers: answers})
	return domain.RegisterResult{Outcome: domain.OutcomeWaitlisted, Position: position}, nil
}

// Cancel frees a seat or waitlist slot, promoting the waitlist head when a
// seat opens.
func (l *Ledger) Cancel(_ context.Context, eventID string, userID int64, capacity int) (domain.CancelResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Err != nil {
		return domain.CancelResult{}, l.Err
	}

	s := l.seatsFor(eventID)
	if _, ok := s.registered[userID]; ok {
		delete(s.registered, userID)
		result := domain.CancelResult{Outcome: domain.OutcomeCancelled}
		if len(s.waitlist) > 0 && len(s.registered) < capacity {
			head := s.waitlist[0]
			s.waitlist = s.waitlist[1:]
			s.registered[head.userID] = head.answers
			result.PromotedUserID = head.userID
		}
		return result, nil
	}

	for i, entry := range s.waitlist {
		if entry.userID == userID {
			s.waitlist = append(s.waitlist[:i:i], s.waitlist[i+1:]...)
			return domain.CancelResult{Outcome: domain.OutcomeCancelled}, nil
		}
	}

	return domain.CancelResult{Outcome: domain.OutcomeNotRegistered}, nil
}

// Status reports where userID stands.
func (l *Ledger) Status(_ context.Context, eventID string, userID int64) (domain.Attendance, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Err != nil {
		return domain.Attendance{}, l.Err
	}

	s := l.seatsFor(eventID)
	if _, ok := s.registered[userID]; ok {
		return domain.Attendance{State: domain.AttendanceRegistered}, nil
	}
	for _, entry := range s.waitlist {
		if entry.userID == userID {
			return domain.Attendance{State: domain.AttendanceWaitlisted, Position: entry.position}, nil
		}
	}
	return domain.Attendance{State: domain.AttendanceNone}, nil
}

// Summary counts seats and waitlist entries.
func (l *Ledger) Summary(_ context.Context, eventID string) (domain.SeatSummary, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Err != nil {
		return domain.SeatSummary{}, l.Err
	}

	s := l.seatsFor(eventID)
	return domain.SeatSummary{Registered: len(s.registered), Waitlisted: len(s.waitlist)}, nil
}

// Answers returns the answers stored with userID's seat.
func (l *Ledger) Answers(eventID string, userID int64) ([]domain.Answer, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	answers, ok := l.seatsFor(eventID).registered[userID]
	return answers, ok
}

// EventStore keeps events in memory.
type EventStore struct {
	mu     sync.Mutex
	events map[string]domain.Event
	nextID int
	// Err, when set, is returned by every call.
	Err error
}

// NewEventStore returns an EventStore seeded with events.
func NewEventStore(events ...domain.Event) *EventStore {
	s := &EventStore{events: make(map[string]domain.Event)}
	for _, event := range events {
		s.events[event.ID] = event
	}
	return s
}

// Put stores or replaces event.
func (s *EventStore) Put(event domain.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.ID] = event
}

// Create stores a new draft event with a sequential id.
func (s *EventStore) Create(_ context.Context, draft domain.EventDraft, createdBy int64, now time.Time) (domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return domain.Event{}, s.Err
	}

	s.nextID++
	event := domain.Event{
		ID:          fmt.Sprintf("ev-%d", s.nextID),
		Title:       strings.TrimSpace(draft.Title),
		Description: strings.TrimSpace(draft.Description),
		StartsAt:    draft.StartsAt,
		Capacity:    draft.Capacity,
		Status:      domain.EventStatusDraft,
		CreatedBy:   createdBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.events[event.ID] = event
	return event, nil
}

// GetByID returns the event or ErrEventNotFound.
func (s *EventStore) GetByID(_ context.Context, eventID string) (domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return domain.Event{}, s.Err
	}

	event, ok := s.events[eventID]
	if !ok {
		return domain.Event{}, domain.ErrEventNotFound
	}
	return event, nil
}

// ListByStatus returns events in status ordered by start time.
func (s *EventStore) ListByStatus(_ context.Context, status domain.EventStatus, limit int64) ([]domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}

	out := make([]domain.Event, 0)
	for _, event := range s.events {
		if event.Status == status {
			out = append(out, event)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartsAt.Before(out[j].StartsAt) })
	if limit > 0 && int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

// UpdateStatus applies from->to only if the event is still in from.
func (s *EventStore) UpdateStatus(_ context.Context, eventID string, from, to domain.EventStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return false, s.Err
	}

	event, ok := s.events[eventID]
	if !ok || event.Status != from {
		return false, nil
	}
	event.Status = to
	s.events[eventID] = event
	return true, nil
}

// Count returns the number of stored events.
func (s *EventStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// QuestionStore keeps registration questions in memory.
type QuestionStore struct {
	mu        sync.Mutex
	questions map[string][]domain.RegistrationQuestion
	nextID    int
}

// NewQuestionStore returns an empty QuestionStore.
func NewQuestionStore() *QuestionStore {
	return &QuestionStore{questions: make(map[string][]domain.RegistrationQuestion)}
}

// Add appends an active question to eventID's form.
func (s *QuestionStore) Add(_ context.Context, eventID, prompt string, required bool, now time.Time) (domain.RegistrationQuestion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	question := domain.RegistrationQuestion{
		ID:         fmt.Sprintf("q-%d", s.nextID),
		EventID:    eventID,
		Version:    1,
		Prompt:     strings.TrimSpace(prompt),
		IsRequired: required,
		Position:   len(s.questions[eventID]) + 1,
		IsActive:   true,
		CreatedAt:  now,
	}
	s.questions[eventID] = append(s.questions[eventID], question)
	return question, nil
}

// Deactivate hides a question from new sessions.
func (s *QuestionStore) Deactivate(eventID, questionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, q := range s.questions[eventID] {
		if q.ID == questionID {
			s.questions[eventID][i].IsActive = false
		}
	}
}

// ListActive returns eventID's active questions by position.
func (s *QuestionStore) ListActive(_ context.Context, eventID string) ([]domain.RegistrationQuestion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.RegistrationQuestion, 0)
	for _, q := range s.questions[eventID] {
		if q.IsActive {
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

type sessionKey struct {
	eventID string
	userID  int64
}

// SessionStore keeps questionnaire sessions in memory.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[sessionKey]domain.QuestionSession
}

// NewSessionStore returns an empty SessionStore.
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[sessionKey]domain.QuestionSession)}
}

// Get returns the session or ErrSessionNotFound.
func (s *SessionStore) Get(_ context.Context, eventID string, userID int64) (domain.QuestionSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionKey{eventID, userID}]
	if !ok {
		return domain.QuestionSession{}, domain.ErrSessionNotFound
	}
	return cloneSession(session), nil
}

// GetActive returns userID's most recently updated session.
func (s *SessionStore) GetActive(_ context.Context, userID int64) (domain.QuestionSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		latest domain.QuestionSession
		found  bool
	)
	for key, session := range s.sessions {
		if key.userID != userID {
			continue
		}
		if !found || session.UpdatedAt.After(latest.UpdatedAt) {
			latest = session
			found = true
		}
	}
	if !found {
		return domain.QuestionSession{}, domain.ErrSessionNotFound
	}
	return cloneSession(latest), nil
}

// Create stores session unless one exists for its key.
func (s *SessionStore) Create(_ context.Context, session domain.QuestionSession) (domain.QuestionSession, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := sessionKey{session.EventID, session.UserID}
	if existing, ok := s.sessions[key]; ok {
		return cloneSession(existing), false, nil
	}
	if session.Answers == nil {
		session.Answers = []domain.Answer{}
	}
	s.sessions[key] = cloneSession(session)
	return cloneSession(session), true, nil
}

// Advance appends answer and increments the index if it still equals
// expectedIndex.
func (s *SessionStore) Advance(_ context.Context, eventID string, userID int64, expectedIndex int, answer domain.Answer, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := sessionKey{eventID, userID}
	session, ok := s.sessions[key]
	if !ok || session.CurrentIndex != expectedIndex {
		return false, nil
	}
	session.Answers = append(session.Answers, answer)
	session.CurrentIndex++
	session.UpdatedAt = now
	s.sessions[key] = session
	return true, nil
}

// Touch sets the session's UpdatedAt to now.
func (s *SessionStore) Touch(_ context.Context, eventID string, userID int64, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := sessionKey{eventID, userID}
	session, ok := s.sessions[key]
	if !ok {
		return nil
	}
	session.UpdatedAt = now
	s.sessions[key] = session
	return nil
}

// Claim deletes and returns the session if it is still at expectedIndex.
func (s *SessionStore) Claim(_ context.Context, eventID string, userID int64, expectedIndex int) (domain.QuestionSession, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := sessionKey{eventID, userID}
	session, ok := s.sessions[key]
	if !ok || session.CurrentIndex != expectedIndex {
		return domain.QuestionSession{}, false, nil
	}
	delete(s.sessions, key)
	return session, true, nil
}

// Delete removes the session if present.
func (s *SessionStore) Delete(_ context.Context, eventID string, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, sessionKey{eventID, userID})
	return nil
}

// Len returns the number of stored sessions.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func cloneSession(session domain.QuestionSession) domain.QuestionSession {
	session.Questions = append([]domain.SessionQuestion(nil), session.Questions...)
	session.Answers = append([]domain.Answer{}, session.Answers...)
	return session
}

// Principals keeps principals in memory.
type Principals struct {
	mu         sync.Mutex
	principals map[int64]domain.Principal
}

// NewPrincipals returns a directory seeded with principals.
func NewPrincipals(principals ...domain.Principal) *Principals {
	p := &Principals{principals: make(map[int64]domain.Principal)}
	for _, pr := range principals {
		p.principals[pr.UserID] = pr
	}
	return p
}

// EnsurePrincipal upserts identity as a participant and refreshes its profile.
func (p *Principals) EnsurePrincipal(_ context.Context, identity principal.Identity) (domain.Principal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now().UTC()
	pr, ok := p.principals[identity.UserID]
	if !ok {
		pr = domain.Principal{UserID: identity.UserID, Role: domain.RoleParticipant, CreatedAt: now}
	}
	pr.ChatID = identity.ChatID
	if pr.ChatID == 0 {
		pr.ChatID = identity.UserID
	}
	pr.DisplayName = identity.DisplayName()
	pr.Username = identity.Username
	pr.LanguageCode = strings.ToLower(identity.LanguageCode)
	pr.UpdatedAt = now
	pr.LastSeenAt = now
	p.principals[identity.UserID] = pr
	return pr, nil
}

// GetByID returns the principal or ErrNotFound.
func (p *Principals) GetByID(_ context.Context, userID int64) (domain.Principal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pr, ok := p.principals[userID]
	if !ok {
		return domain.Principal{}, domain.ErrNotFound
	}
	return pr, nil
}

// SetRole changes an existing principal's role.
func (p *Principals) SetRole(_ context.Context, userID int64, role domain.Role) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	pr, ok := p.principals[userID]
	if !ok {
		return domain.ErrNotFound
	}
	pr.Role = role
	p.principals[userID] = pr
	return nil
}

// Stats counts principals and events from the in-memory stores.
type Stats struct {
	Principals *Principals
	Events     *EventStore
}

// CountPrincipals returns the number of principals.
func (s Stats) CountPrincipals(context.Context) (int64, error) {
	s.Principals.mu.Lock()
	defer s.Principals.mu.Unlock()
	return int64(len(s.Principals.principals)), nil
}

// CountEvents returns the number of events.
func (s Stats) CountEvents(context.Context) (int64, error) {
	return int64(s.Events.Count()), nil
}
