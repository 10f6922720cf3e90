package domain

import "time"

// SessionQuestion is the frozen copy of a question taken when a session is
// created, so later edits do not change an in-flight questionnaire.
type SessionQuestion struct {
	QuestionID string `bson:"question_id" json:"question_id"`
	Version    int    `bson:"version" json:"version"`
	Prompt     string `bson:"prompt" json:"prompt"`
	IsRequired bool   `bson:"is_required" json:"is_required"`
}

// Answer is the response recorded for one question.
type Answer struct {
	QuestionID string  `bson:"question_id" json:"question_id"`
	Version    int     `bson:"version" json:"version"`
	Text       *string `bson:"text" json:"text"`
	Skipped    bool    `bson:"skipped" json:"skipped"`
}

// QuestionSession is the in-progress questionnaire of one user for one event.
// CurrentIndex is 1-based and points at the question awaiting an answer.
type QuestionSession struct {
	EventID      string            `bson:"event_id" json:"event_id"`
	UserID       int64             `bson:"user_id" json:"user_id"`
	CurrentIndex int               `bson:"current_index" json:"current_index"`
	Questions    []SessionQuestion `bson:"questions" json:"questions"`
	Answers      []Answer          `bson:"answers" json:"answers"`
	CreatedAt    time.Time         `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time         `bson:"updated_at" json:"updated_at"`
	ExpiresAt    time.Time         `bson:"expires_at" json:"expires_at"`
}

// IsExpired reports whether the session has passed its expiry at now. It is
// never persisted.
func (s QuestionSession) IsExpired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Total returns the number of questions in the session snapshot.
func (s QuestionSession) Total() int {
	return len(s.Questions)
}

// Current returns the question at CurrentIndex.
func (s QuestionSession) Current() (SessionQuestion, bool) {
	if s.CurrentIndex < 1 || s.CurrentIndex > len(s.Questions) {
		return SessionQuestion{}, false
	}
	return s.Questions[s.CurrentIndex-1], true
}

// IsLast reports whether CurrentIndex points at the final question.
func (s QuestionSession) IsLast() bool {
	return s.CurrentIndex >= len(s.Questions)
}

// SnapshotQuestions freezes the active questions for a new session.
func SnapshotQuestions(questions []RegistrationQuestion) []SessionQuestion {
	out := make([]SessionQuestion, 0, len(questions))
	for _, q := range questions {
		out = append(out, SessionQuestion{
			QuestionID: q.ID,
			Version:    q.Version,
			Prompt:     q.Prompt,
			IsRequired: q.IsRequired,
		})
	}
	return out
}
