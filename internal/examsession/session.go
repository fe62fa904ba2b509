package examsession

import (
	"fmt"

	"github.com/stemsi/exstem-exam-client/internal/model"
)

// Phase enumerates the lifecycle states of an attempt.
type Phase string

const (
	PhaseLoading    Phase = "LOADING"
	PhaseInProgress Phase = "IN_PROGRESS"
	PhaseSubmitted  Phase = "SUBMITTED"
	PhaseLoadFailed Phase = "LOAD_FAILED"
)

// Session is an immutable snapshot of one attempt. Every transition returns a
// new value; answer slices are never shared between snapshots that differ.
type Session struct {
	Phase            Phase
	Exam             *model.ExamDefinition
	Answers          []model.Answer
	RemainingSeconds int
	// Submitting is true while a Submission Service call is outstanding.
	Submitting bool
	// Expired is set once the clock reached zero. It never clears.
	Expired bool
	Result  *model.SessionResult
	LoadErr error
}

// NewSession returns a session waiting for its exam.
func NewSession() Session {
	return Session{Phase: PhaseLoading}
}

// Loaded enters IN_PROGRESS with an empty slate and a full clock.
func (s Session) Loaded(exam *model.ExamDefinition) (Session, error) {
	if s.Phase != PhaseLoading {
		return s, fmt.Errorf("%w: load in phase %s", ErrInvalidTransition, s.Phase)
	}
	if exam == nil {
		return s, model.ErrMalformedExam
	}
	if exam.DurationMinutes <= 0 {
		return s, fmt.Errorf("%w: duration_minutes must be positive, got %d", model.ErrMalformedExam, exam.DurationMinutes)
	}

	answers := make([]model.Answer, len(exam.Questions))
	for i := range answers {
		answers[i] = model.Answer{QuestionIndex: i, SelectedOption: model.Unanswered}
	}

	return Session{
		Phase:            PhaseInProgress,
		Exam:             exam,
		Answers:          answers,
		RemainingSeconds: exam.DurationSeconds(),
	}, nil
}

// LoadFailed enters the terminal LOAD_FAILED phase.
func (s Session) LoadFailed(err error) Session {
	return Session{Phase: PhaseLoadFailed, LoadErr: err}
}

// SelectAnswer records optionIndex for questionIndex, replacing any previous choice.
func (s Session) SelectAnswer(questionIndex, optionIndex int) (Session, error) {
	if s.Phase != PhaseInProgress {
		return s, ErrNotInProgress
	}
	if s.Expired {
		return s, ErrTimeExpired
	}
	if questionIndex < 0 || questionIndex >= len(s.Answers) {
		return s, fmt.Errorf("%w: question %d of %d", ErrInvalidAnswer, questionIndex, len(s.Answers))
	}
	if optionIndex < 0 || optionIndex >= model.OptionCount {
		return s, fmt.Errorf("%w: option %d", ErrInvalidAnswer, optionIndex)
	}

	answers := make([]model.Answer, len(s.Answers))
	copy(answers, s.Answers)
	answers[questionIndex].SelectedOption = optionIndex

	next := s
	next.Answers = answers
	return next, nil
}

// Tick consumes one second. The second return value is true on the tick that
// reaches zero, and only on that tick.
func (s Session) Tick() (Session, bool) {
	if s.Phase != PhaseInProgress || s.Expired {
		return s, false
	}

	next := s
	if next.RemainingSeconds > 0 {
		next.RemainingSeconds--
	}
	if next.RemainingSeconds == 0 {
		next.Expired = true
		return next, true
	}
	return next, false
}

// DecisionKind is the verdict of BeginSubmit.
type DecisionKind int

const (
	// DecisionIgnored: not in progress, or a submission is already outstanding.
	DecisionIgnored DecisionKind = iota
	// DecisionNeedsConfirmation: unattempted questions and no confirmation given.
	DecisionNeedsConfirmation
	// DecisionProceed: the caller must now call the Submission Service.
	DecisionProceed
)

// Decision carries the BeginSubmit verdict.
type Decision struct {
	Kind        DecisionKind
	Unattempted int
}

// BeginSubmit decides whether a submission may start and, if so, marks it
// outstanding. Forced submits and submits after expiry skip confirmation.
func (s Session) BeginSubmit(forced, confirmed bool) (Session, Decision) {
	if s.Phase != PhaseInProgress || s.Submitting {
		return s, Decision{Kind: DecisionIgnored}
	}

	unattempted := s.Unattempted()
	if !forced && !s.Expired && !confirmed && unattempted > 0 {
		return s, Decision{Kind: DecisionNeedsConfirmation, Unattempted: unattempted}
	}

	next := s
	next.Submitting = true
	return next, Decision{Kind: DecisionProceed, Unattempted: unattempted}
}

// SubmitSucceeded stores the server result verbatim and enters SUBMITTED.
func (s Session) SubmitSucceeded(result *model.SessionResult) Session {
	next := s
	next.Phase = PhaseSubmitted
	next.Submitting = false
	next.Result = result
	return next
}

// SubmitFailed clears the outstanding flag. The attempt stays IN_PROGRESS.
func (s Session) SubmitFailed() Session {
	next := s
	next.Submitting = false
	return next
}

// Attempted counts answered questions. It is derived on every call.
func (s Session) Attempted() int {
	n := 0
	for _, a := range s.Answers {
		if a.Answered() {
			n++
		}
	}
	return n
}

// Unattempted counts questions still at model.Unanswered.
func (s Session) Unattempted() int {
	return len(s.Answers) - s.Attempted()
}

// Terminal reports whether no further transition is possible.
func (s Session) Terminal() bool {
	return s.Phase == PhaseSubmitted || s.Phase == PhaseLoadFailed
}
