package model

import (
	"errors"
	"fmt"
	"time"
)

const (
	// OptionCount is the number of options every question carries.
	OptionCount = 4
	// Unanswered marks an answer slot with no selected option.
	Unanswered = -1
)

// ExamDefinition is the student-facing exam, fixed for the whole attempt.
type ExamDefinition struct {
	ID              string
	Title           string
	Description     string
	DurationMinutes int
	Questions       []Question
}

// DurationSeconds returns the full time budget of the attempt.
func (e *ExamDefinition) DurationSeconds() int {
	return e.DurationMinutes * 60
}

// Question is a prompt with its ordered options. It never carries the key.
type Question struct {
	Text    string
	Options []string
}

// Answer is one slot of the answer slate.
type Answer struct {
	QuestionIndex  int `json:"question_index" binding:"min=0"`
	SelectedOption int `json:"selected_option" binding:"answer_option"`
}

// Answered reports whether an option has been selected.
func (a Answer) Answered() bool {
	return a.SelectedOption != Unanswered
}

// SessionResult is the server-computed outcome of a submission.
type SessionResult struct {
	Score    int `json:"score"`
	MaxScore int `json:"max_score"`
}

// PendingSubmission is an answer slate whose timed-out submission failed.
type PendingSubmission struct {
	ExamID    string    `json:"exam_id"`
	StudentID string    `json:"student_id"`
	Answers   []Answer  `json:"answers"`
	StashedAt time.Time `json:"stashed_at"`
}

// ─── Wire DTOs ──────────────────────────────────────────────────────

// ExamPayload is the exam paper as served by the portal (no correct answers).
type ExamPayload struct {
	ExamID      string               `json:"exam_id"`
	Title       string               `json:"title"`
	Description string               `json:"description"`
	Duration    int                  `json:"duration_minutes"`
	Questions   []QuestionForStudent `json:"questions"`
}

// QuestionForStudent is a question without the correct answer, sent to students.
type QuestionForStudent struct {
	QuestionText string   `json:"question_text"`
	Options      []string `json:"options"`
	OrderNum     int      `json:"order_num"`
}

// SubmitExamRequest is the body of a submission: one answer per question, in order.
type SubmitExamRequest struct {
	Answers []Answer `json:"answers" binding:"required,dive"`
}

// ErrMalformedExam is returned when a fetched paper cannot start an attempt.
var ErrMalformedExam = errors.New("malformed exam payload")

// Definition validates the payload and converts it to an ExamDefinition.
// Question order is kept exactly as served.
func (p *ExamPayload) Definition() (*ExamDefinition, error) {
	if p.Duration <= 0 {
		return nil, fmt.Errorf("%w: duration_minutes must be positive, got %d", ErrMalformedExam, p.Duration)
	}

	questions := make([]Question, len(p.Questions))
	for i, q := range p.Questions {
		if len(q.Options) != OptionCount {
			return nil, fmt.Errorf("%w: question %d has %d options, want %d", ErrMalformedExam, i, len(q.Options), OptionCount)
		}
		opts := make([]string, OptionCount)
		copy(opts, q.Options)
		questions[i] = Question{Text: q.QuestionText, Options: opts}
	}

	return &ExamDefinition{
		ID:              p.ExamID,
		Title:           p.Title,
		Description:     p.Description,
		DurationMinutes: p.Duration,
		Questions:       questions,
	}, nil
}
