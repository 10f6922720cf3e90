package domain

// RegisterOutcome is the closed result vocabulary of a register attempt.
type RegisterOutcome string

const (
	OutcomeRegistered        RegisterOutcome = "registered"
	OutcomeWaitlisted        RegisterOutcome = "waitlisted"
	OutcomeAlreadyRegistered RegisterOutcome = "already_registered"
	OutcomeAlreadyWaitlisted RegisterOutcome = "already_waitlisted"
)

// RegisterResult is returned by the atomic register operation. Position is
// set for waitlist outcomes only.
type RegisterResult struct {
	Outcome  RegisterOutcome
	Position int
}

// CancelOutcome is the closed result vocabulary of a cancel attempt.
type CancelOutcome string

const (
	OutcomeCancelled     CancelOutcome = "cancelled"
	OutcomeNotRegistered CancelOutcome = "not_registered"
)

// CancelResult is returned by the atomic cancel operation. PromotedUserID is
// zero when nobody was promoted from the waitlist.
type CancelResult struct {
	Outcome        CancelOutcome
	PromotedUserID int64
}

// Promoted reports whether the cancellation moved someone off the waitlist.
func (r CancelResult) Promoted() bool {
	return r.PromotedUserID != 0
}

// AttendanceState describes where a user stands for an event.
type AttendanceState string

const (
	AttendanceNone       AttendanceState = "none"
	AttendanceRegistered AttendanceState = "registered"
	AttendanceWaitlisted AttendanceState = "waitlisted"
)

// Attendance is the read model for a user's registration status.
type Attendance struct {
	State    AttendanceState
	Position int
}

// SeatSummary counts an event's occupied seats and waitlist length.
type SeatSummary struct {
	Registered int
	Waitlisted int
}
