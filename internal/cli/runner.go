// Package cli is the line-oriented terminal front end of an exam attempt.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-exam-client/internal/examsession"
)

// ErrAbandoned is returned by Run when the student quits or input ends
// before the attempt is submitted.
var ErrAbandoned = errors.New("exam abandoned before submission")

// warnAt lists the remaining-time marks announced while the clock runs.
var warnAt = []int{300, 60, 10}

// Controller is the part of examsession.Controller the runner drives.
type Controller interface {
	Start(ctx context.Context) error
	Session() examsession.Session
	SelectAnswer(questionIndex, optionIndex int) error
	Submit(ctx context.Context, confirmed bool) (examsession.SubmitOutcome, error)
	Close()
}

// Runner renders the attempt and maps typed commands onto the controller.
type Runner struct {
	in  io.Reader
	log zerolog.Logger

	mu        sync.Mutex
	out       io.Writer
	current   int
	remaining int
	expired   bool
	reported  bool

	finished     chan struct{}
	finishedOnce sync.Once
}

// New creates a Runner reading commands from in and writing to out.
func New(in io.Reader, out io.Writer, log zerolog.Logger) *Runner {
	return &Runner{
		in:        in,
		out:       out,
		log:       log.With().Str("component", "cli").Logger(),
		remaining: -1,
		finished:  make(chan struct{}),
	}
}

// OnChange is the controller's snapshot hook.
func (r *Runner) OnChange(s examsession.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch s.Phase {
	case examsession.PhaseInProgress:
		prev := r.remaining
		r.remaining = s.RemainingSeconds
		r.expired = s.Expired
		if prev < 0 || s.Submitting {
			return
		}
		for _, mark := range warnAt {
			if prev > mark && s.RemainingSeconds <= mark && s.RemainingSeconds > 0 {
				r.writef("\n** %s left **\n", formatClock(s.RemainingSeconds))
			}
		}
		if s.Expired && prev > 0 {
			r.writef("\n** Time is up. Submitting your answers. **\n")
		}
	case examsession.PhaseSubmitted:
		if !r.reported {
			r.reported = true
			r.writef("\nSubmitted. Score: %d / %d\n", s.Result.Score, s.Result.MaxScore)
		}
		r.finish()
	case examsession.PhaseLoadFailed:
		r.finish()
	}
}

// OnError is the controller's failure hook.
func (r *Runner) OnError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var loadErr *examsession.LoadError
	var submitErr *examsession.SubmitError
	switch {
	case errors.As(err, &loadErr):
		r.writef("Could not load exam %s: %v\n", loadErr.ExamID, loadErr.Err)
	case errors.As(err, &submitErr) && (submitErr.Forced || r.expired):
		r.writef("\nTime is up but the submission failed: %s\n", describe(submitErr.Err))
		r.writef("Your answers are kept and can no longer be changed. Type s to retry.\n")
	case errors.As(err, &submitErr):
		r.writef("\nSubmission failed: %s\nYou can keep answering. Type s to retry.\n", describe(submitErr.Err))
	default:
		r.writef("\nError: %v\n", err)
	}
}

// Run starts the attempt and processes commands until it is submitted, the
// student quits, input ends or ctx is cancelled. The controller is closed on return.
func (r *Runner) Run(ctx context.Context, ctrl Controller) error {
	defer ctrl.Close()

	r.printf("Loading exam...\n")
	if err := ctrl.Start(ctx); err != nil {
		return err
	}

	s := ctrl.Session()
	r.printf("\n%s\n", s.Exam.Title)
	if s.Exam.Description != "" {
		r.printf("%s\n", s.Exam.Description)
	}
	r.printf("%d questions, %d minutes. Type h for help.\n", len(s.Exam.Questions), s.Exam.DurationMinutes)
	r.render(s)

	lines := r.scan()
	for {
		line, err := r.next(ctx, lines)
		if err != nil {
			return err
		}
		if done, err := r.handle(ctx, ctrl, line, lines); done || err != nil {
			return err
		}
	}
}

// scan feeds input lines to a channel that closes at EOF.
func (r *Runner) scan() <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r.in)
		for sc.Scan() {
			lines <- strings.TrimSpace(sc.Text())
		}
	}()
	return lines
}

// next waits for a line. A finished attempt yields an empty line; closed
// input yields ErrAbandoned.
func (r *Runner) next(ctx context.Context, lines <-chan string) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-r.finished:
		return "", nil
	case line, ok := <-lines:
		if !ok {
			return "", ErrAbandoned
		}
		return line, nil
	}
}

func (r *Runner) handle(ctx context.Context, ctrl Controller, line string, lines <-chan string) (bool, error) {
	s := ctrl.Session()
	if s.Phase == examsession.PhaseSubmitted {
		return true, nil
	}

	cmd, arg, _ := strings.Cut(line, " ")
	switch strings.ToLower(cmd) {
	case "":
		r.render(s)
	case "1", "2", "3", "4":
		opt, _ := strconv.Atoi(cmd)
		if err := ctrl.SelectAnswer(r.question(), opt-1); err != nil {
			r.selectFailed(err)
			return false, nil
		}
		r.render(ctrl.Session())
	case "n":
		r.move(s, r.question()+1)
	case "p":
		r.move(s, r.question()-1)
	case "g":
		n, err := strconv.Atoi(strings.TrimSpace(arg))
		if err != nil {
			r.printf("Usage: g <question number>\n")
			return false, nil
		}
		r.move(s, n-1)
	case "s":
		return r.submit(ctx, ctrl, lines)
	case "q":
		r.printf("Leaving without submitting.\n")
		return true, ErrAbandoned
	case "h", "?":
		r.help()
	default:
		r.printf("Unknown command %q. Type h for help.\n", line)
	}
	return false, nil
}

func (r *Runner) submit(ctx context.Context, ctrl Controller, lines <-chan string) (bool, error) {
	outcome, err := ctrl.Submit(ctx, false)
	if outcome.Kind == examsession.OutcomeNeedsConfirmation {
		r.printf("%d question(s) unanswered. Submit anyway? [y/N] ", outcome.Unattempted)
		answer, err := r.next(ctx, lines)
		if err != nil {
			return true, err
		}
		if !strings.EqualFold(answer, "y") && !strings.EqualFold(answer, "yes") {
			if ctrl.Session().Phase == examsession.PhaseSubmitted {
				return true, nil
			}
			r.printf("Not submitted.\n")
			return false, nil
		}
		outcome, err = ctrl.Submit(ctx, true)
		return r.submitted(outcome, err)
	}
	return r.submitted(outcome, err)
}

func (r *Runner) submitted(outcome examsession.SubmitOutcome, err error) (bool, error) {
	switch outcome.Kind {
	case examsession.OutcomeSubmitted:
		return true, nil
	case examsession.OutcomeIgnored:
		if errors.Is(err, examsession.ErrNotInProgress) {
			return true, nil
		}
		r.printf("A submission is already in progress.\n")
	}
	// Failures were already shown through OnError.
	return false, nil
}

func (r *Runner) selectFailed(err error) {
	switch {
	case errors.Is(err, examsession.ErrTimeExpired):
		r.printf("Time is up. Answers can no longer be changed; type s to submit.\n")
	case errors.Is(err, examsession.ErrNotInProgress):
		r.printf("The exam is not in progress.\n")
	default:
		r.log.Error().Err(err).Msg("Select answer rejected")
		r.printf("That answer could not be recorded.\n")
	}
}

func (r *Runner) move(s examsession.Session, to int) {
	if to < 0 || to >= len(s.Answers) {
		r.printf("There is no question %d.\n", to+1)
		return
	}
	r.mu.Lock()
	r.current = to
	r.mu.Unlock()
	r.render(s)
}

func (r *Runner) question() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

func (r *Runner) render(s examsession.Session) {
	if s.Exam == nil || len(s.Exam.Questions) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	q := s.Exam.Questions[r.current]
	var b strings.Builder
	fmt.Fprintf(&b, "\nQuestion %d/%d   answered %d/%d   time left %s\n",
		r.current+1, len(s.Answers), s.Attempted(), len(s.Answers), formatClock(s.RemainingSeconds))
	fmt.Fprintf(&b, "%s\n", q.Text)
	selected := s.Answers[r.current].SelectedOption
	for i, opt := range q.Options {
		mark := " "
		if i == selected {
			mark = "*"
		}
		fmt.Fprintf(&b, " %s %d) %s\n", mark, i+1, opt)
	}
	b.WriteString("> ")
	r.writef("%s", b.String())
}

func (r *Runner) help() {
	r.printf(`Commands:
  1-4    choose an option for the current question
  n / p  next / previous question
  g N    go to question N
  s      submit
  q      quit without submitting
`)
}

func (r *Runner) finish() {
	r.finishedOnce.Do(func() { close(r.finished) })
}

// printf writes to out. Hooks run on the clock goroutine, so output is serialized.
func (r *Runner) printf(format string, args ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writef(format, args...)
}

// writef writes to out with r.mu held.
func (r *Runner) writef(format string, args ...interface{}) {
	fmt.Fprintf(r.out, format, args...)
}

func formatClock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

// describe renders a network error for the student.
func describe(err error) string {
	var temp interface{ Temporary() bool }
	if errors.As(err, &temp) && !temp.Temporary() {
		return "the portal rejected the answers (" + err.Error() + ")"
	}
	return err.Error()
}
