package examsession

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/stemsi/exstem-exam-client/internal/model"
)

func testExam(questions, minutes int) *model.ExamDefinition {
	exam := &model.ExamDefinition{ID: "exam-1", Title: "Physics", DurationMinutes: minutes}
	for i := 0; i < questions; i++ {
		exam.Questions = append(exam.Questions, model.Question{
			Text:    "question",
			Options: []string{"a", "b", "c", "d"},
		})
	}
	return exam
}

type fakeCatalog struct {
	exam  *model.ExamDefinition
	err   error
	gate  chan struct{}
	calls int
}

func (f *fakeCatalog) FetchExam(ctx context.Context, examID string) (*model.ExamDefinition, error) {
	f.calls++
	if f.gate != nil {
		<-f.gate
	}
	return f.exam, f.err
}

type submitCall struct {
	examID  string
	answers []model.Answer
}

type fakeSubmitter struct {
	mu      sync.Mutex
	calls   []submitCall
	result  *model.SessionResult
	errs    []error
	entered chan struct{}
	release chan struct{}
}

func (f *fakeSubmitter) SubmitExam(ctx context.Context, examID string, answers []model.Answer) (*model.SessionResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, submitCall{examID: examID, answers: answers})
	var err error
	if len(f.errs) > 0 {
		err = f.errs[0]
		f.errs = f.errs[1:]
	}
	f.mu.Unlock()

	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	if err != nil {
		return nil, err
	}
	return f.result, nil
}

func (f *fakeSubmitter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type manualTicker struct {
	ch      chan time.Time
	mu      sync.Mutex
	stopped bool
}

func (t *manualTicker) C() <-chan time.Time { return t.ch }

func (t *manualTicker) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}

func (t *manualTicker) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

type manualClock struct {
	mu      sync.Mutex
	tickers []*manualTicker
}

func (c *manualClock) NewTicker(d time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTicker{ch: make(chan time.Time)}
	c.tickers = append(c.tickers, t)
	return t
}

func (c *manualClock) last() *manualTicker {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.tickers) == 0 {
		return nil
	}
	return c.tickers[len(c.tickers)-1]
}

type memStash struct {
	mu        sync.Mutex
	pending   map[string]*model.PendingSubmission
	discarded int
	err       error
}

func newMemStash() *memStash {
	return &memStash{pending: make(map[string]*model.PendingSubmission)}
}

func (m *memStash) Stash(ctx context.Context, p *model.PendingSubmission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.pending[p.ExamID] = p
	return nil
}

func (m *memStash) Discard(ctx context.Context, examID, studentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pending, examID)
	m.discarded++
	return nil
}

var errNetwork = errors.New("connection reset")
