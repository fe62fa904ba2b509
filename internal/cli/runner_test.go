package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-exam-client/internal/examsession"
	"github.com/stemsi/exstem-exam-client/internal/model"
)

type stubCatalog struct {
	exam *model.ExamDefinition
	err  error
}

func (c *stubCatalog) FetchExam(ctx context.Context, examID string) (*model.ExamDefinition, error) {
	return c.exam, c.err
}

type stubSubmitter struct {
	key []int

	mu    sync.Mutex
	calls [][]model.Answer
	errs  []error
}

func (s *stubSubmitter) SubmitExam(ctx context.Context, examID string, answers []model.Answer) (*model.SessionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, answers)
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	score := 0
	for i, a := range answers {
		if a.SelectedOption == s.key[i] {
			score++
		}
	}
	return &model.SessionResult{Score: score, MaxScore: len(s.key)}, nil
}

func (s *stubSubmitter) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func threeQuestionExam() *model.ExamDefinition {
	q := func(text string) model.Question {
		return model.Question{Text: text, Options: []string{"a", "b", "c", "d"}}
	}
	return &model.ExamDefinition{
		ID:              "quiz",
		Title:           "Weekly quiz",
		DurationMinutes: 1,
		Questions:       []model.Question{q("First?"), q("Second?"), q("Third?")},
	}
}

func setup(in io.Reader, catalog examsession.Catalog, sub examsession.Submitter) (*Runner, *examsession.Controller, *bytes.Buffer) {
	out := &bytes.Buffer{}
	r := New(in, out, zerolog.Nop())
	ctrl := examsession.New("quiz", catalog, sub, examsession.Options{
		TickInterval: time.Hour,
		OnChange:     r.OnChange,
		OnError:      r.OnError,
	})
	return r, ctrl, out
}

func TestRunHappyPath(t *testing.T) {
	sub := &stubSubmitter{key: []int{1, 0, 2}}
	r, ctrl, out := setup(strings.NewReader("2\nn\n1\nn\n3\ns\n"), &stubCatalog{exam: threeQuestionExam()}, sub)

	if err := r.Run(context.Background(), ctrl); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sub.callCount() != 1 {
		t.Fatalf("submitter called %d times", sub.callCount())
	}
	for i, want := range []int{1, 0, 2} {
		if got := sub.calls[0][i].SelectedOption; got != want {
			t.Errorf("answer %d = %d, want %d", i, got, want)
		}
	}
	if !strings.Contains(out.String(), "Score: 3 / 3") {
		t.Errorf("output missing score:\n%s", out.String())
	}
}

func TestRunPartialSubmitAsksForConfirmation(t *testing.T) {
	sub := &stubSubmitter{key: []int{1, 0, 2}}
	input := "2\ns\nn\ns\ny\n"
	r, ctrl, out := setup(strings.NewReader(input), &stubCatalog{exam: threeQuestionExam()}, sub)

	if err := r.Run(context.Background(), ctrl); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sub.callCount() != 1 {
		t.Fatalf("submitter called %d times, want 1", sub.callCount())
	}
	text := out.String()
	if strings.Count(text, "2 question(s) unanswered") != 2 {
		t.Errorf("expected two confirmation prompts:\n%s", text)
	}
	if !strings.Contains(text, "Not submitted.") || !strings.Contains(text, "Score: 1 / 3") {
		t.Errorf("unexpected output:\n%s", text)
	}
	got := sub.calls[0]
	if got[0].SelectedOption != 1 || got[1].SelectedOption != model.Unanswered || got[2].SelectedOption != model.Unanswered {
		t.Errorf("submitted slate = %+v", got)
	}
}

func TestRunQuitAndEOF(t *testing.T) {
	for name, input := range map[string]string{"quit": "1\nq\n", "eof": "1\n"} {
		t.Run(name, func(t *testing.T) {
			sub := &stubSubmitter{key: []int{1, 0, 2}}
			r, ctrl, _ := setup(strings.NewReader(input), &stubCatalog{exam: threeQuestionExam()}, sub)

			if err := r.Run(context.Background(), ctrl); !errors.Is(err, ErrAbandoned) {
				t.Fatalf("Run = %v, want ErrAbandoned", err)
			}
			if sub.callCount() != 0 {
				t.Errorf("submitter called %d times", sub.callCount())
			}
			if err := ctrl.SelectAnswer(0, 1); !errors.Is(err, examsession.ErrClosed) {
				t.Errorf("controller not closed: %v", err)
			}
		})
	}
}

func TestRunLoadFailure(t *testing.T) {
	boom := errors.New("portal down")
	sub := &stubSubmitter{}
	r, ctrl, out := setup(strings.NewReader("1\ns\n"), &stubCatalog{err: boom}, sub)

	err := r.Run(context.Background(), ctrl)
	var loadErr *examsession.LoadError
	if !errors.As(err, &loadErr) || !errors.Is(err, boom) {
		t.Fatalf("Run = %v, want LoadError wrapping %v", err, boom)
	}
	if sub.callCount() != 0 {
		t.Error("submitted after load failure")
	}
	if !strings.Contains(out.String(), "Could not load exam quiz") {
		t.Errorf("output:\n%s", out.String())
	}
}

func TestRunSubmitFailureThenRetry(t *testing.T) {
	sub := &stubSubmitter{key: []int{1, 0, 2}, errs: []error{errors.New("connection reset")}}
	r, ctrl, out := setup(strings.NewReader("2\nn\n1\nn\n3\ns\ns\n"), &stubCatalog{exam: threeQuestionExam()}, sub)

	if err := r.Run(context.Background(), ctrl); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sub.callCount() != 2 {
		t.Fatalf("submitter called %d times, want 2", sub.callCount())
	}
	text := out.String()
	if !strings.Contains(text, "Submission failed: connection reset") || !strings.Contains(text, "Score: 3 / 3") {
		t.Errorf("output:\n%s", text)
	}
}

func TestRunForcedSubmitOnExpiry(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	sub := &stubSubmitter{key: []int{1, 0, 2}}
	r, ctrl, out := setup(pr, &stubCatalog{exam: threeQuestionExam()}, sub)

	done := make(chan error, 1)
	go func() { done <- r.Run(context.Background(), ctrl) }()

	deadline := time.Now().Add(2 * time.Second)
	for ctrl.Session().Phase != examsession.PhaseInProgress {
		if time.Now().After(deadline) {
			t.Fatal("exam never started")
		}
		time.Sleep(time.Millisecond)
	}

	if _, err := io.WriteString(pw, "2\n"); err != nil {
		t.Fatalf("write: %v", err)
	}
	for ctrl.Session().Attempted() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("answer never recorded")
		}
		time.Sleep(time.Millisecond)
	}

	for i := 0; i < 60; i++ {
		ctrl.Tick()
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after the forced submission")
	}

	if sub.callCount() != 1 {
		t.Fatalf("submitter called %d times", sub.callCount())
	}
	text := out.String()
	for _, want := range []string{"** 00:10 left **", "Time is up", "Score: 1 / 3"} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}
	if strings.Contains(text, "unanswered. Submit anyway?") {
		t.Error("forced submission asked for confirmation")
	}
}

func TestRunRetryAfterExpiryKeepsAnswersFrozen(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	sub := &stubSubmitter{
		key:  []int{1, 0, 2},
		errs: []error{errors.New("gateway timeout"), errors.New("gateway timeout")},
	}
	r, ctrl, out := setup(pr, &stubCatalog{exam: threeQuestionExam()}, sub)

	done := make(chan error, 1)
	go func() { done <- r.Run(context.Background(), ctrl) }()

	deadline := time.Now().Add(2 * time.Second)
	for ctrl.Session().Phase != examsession.PhaseInProgress {
		if time.Now().After(deadline) {
			t.Fatal("exam never started")
		}
		time.Sleep(time.Millisecond)
	}
	for i := 0; i < 60; i++ {
		ctrl.Tick()
	}
	if sub.callCount() != 1 {
		t.Fatalf("forced submission not attempted: %d calls", sub.callCount())
	}

	if _, err := io.WriteString(pw, "s\ns\n"); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after the retry")
	}

	text := out.String()
	if strings.Contains(text, "You can keep answering") {
		t.Errorf("told the student to keep answering after time ran out:\n%s", text)
	}
	if n := strings.Count(text, "can no longer be changed"); n != 2 {
		t.Errorf("frozen-answers notice shown %d times, want 2:\n%s", n, text)
	}
	if sub.callCount() != 3 || !strings.Contains(text, "Score: 0 / 3") {
		t.Errorf("calls=%d output:\n%s", sub.callCount(), text)
	}
}

func TestRunNavigation(t *testing.T) {
	sub := &stubSubmitter{key: []int{1, 0, 2}}
	r, ctrl, out := setup(strings.NewReader("p\ng 9\ng x\ng 3\n4\nh\nzzz\nq\n"), &stubCatalog{exam: threeQuestionExam()}, sub)

	if err := r.Run(context.Background(), ctrl); !errors.Is(err, ErrAbandoned) {
		t.Fatalf("Run = %v", err)
	}
	text := out.String()
	for _, want := range []string{
		"There is no question 0.",
		"There is no question 9.",
		"Usage: g <question number>",
		"Question 3/3",
		" * 4) d",
		"Commands:",
		`Unknown command "zzz"`,
	} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}
}

func TestFormatClock(t *testing.T) {
	for in, want := range map[int]string{0: "00:00", 59: "00:59", 61: "01:01", 5400: "90:00", -3: "00:00"} {
		if got := formatClock(in); got != want {
			t.Errorf("formatClock(%d) = %q, want %q", in, got, want)
		}
	}
}
