package examsession

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-exam-client/internal/logger"
	"github.com/stemsi/exstem-exam-client/internal/model"
)

// TickInterval is the countdown resolution.
const TickInterval = time.Second

// Catalog fetches the student-facing exam paper.
type Catalog interface {
	FetchExam(ctx context.Context, examID string) (*model.ExamDefinition, error)
}

// Submitter sends the full ordered answer slate and returns the server score.
type Submitter interface {
	SubmitExam(ctx context.Context, examID string, answers []model.Answer) (*model.SessionResult, error)
}

// SlateStash keeps an answer slate whose timed-out submission failed, so the
// attempt can still be handed in later.
type SlateStash interface {
	Stash(ctx context.Context, pending *model.PendingSubmission) error
	Discard(ctx context.Context, examID, studentID string) error
}

// Options configures a Controller. Every field is optional.
type Options struct {
	Clock        Clock
	TickInterval time.Duration
	Stash        SlateStash
	StudentID    string
	Logger       *zerolog.Logger
	// OnChange receives every new snapshot, outside the controller lock.
	OnChange func(Session)
	// OnError receives every load and submit failure as it happens.
	OnError func(error)
}

// OutcomeKind classifies the result of Submit.
type OutcomeKind int

const (
	OutcomeIgnored OutcomeKind = iota
	OutcomeNeedsConfirmation
	OutcomeSubmitted
	OutcomeFailed
)

// SubmitOutcome is returned by Submit.
type SubmitOutcome struct {
	Kind        OutcomeKind
	Unattempted int
	Result      *model.SessionResult
}

// Controller drives one attempt from load to result.
type Controller struct {
	examID    string
	sessionID string
	catalog   Catalog
	submitter Submitter
	opts      Options
	clock     Clock
	interval  time.Duration
	log       zerolog.Logger

	mu       sync.Mutex
	inflight sync.WaitGroup
	session  Session
	baseCtx context.Context
	ticker  Ticker
	stop    chan struct{}
	closed  bool
	stashed bool
}

// New creates a controller in the LOADING phase. Nothing is fetched until Start.
func New(examID string, catalog Catalog, submitter Submitter, opts Options) *Controller {
	c := &Controller{
		examID:    examID,
		sessionID: uuid.New().String(),
		catalog:   catalog,
		submitter: submitter,
		opts:      opts,
		clock:     opts.Clock,
		interval:  opts.TickInterval,
		session:   NewSession(),
		baseCtx:   context.Background(),
	}
	if c.clock == nil {
		c.clock = RealClock{}
	}
	if c.interval <= 0 {
		c.interval = TickInterval
	}
	base := zerolog.Nop()
	if opts.Logger != nil {
		base = *opts.Logger
	}
	c.log = logger.ForSession(base, examID, c.sessionID)
	return c
}

// ExamID returns the exam this controller attempts.
func (c *Controller) ExamID() string { return c.examID }

// Session returns the current snapshot.
func (c *Controller) Session() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// ClockRunning reports whether the countdown ticker is live.
func (c *Controller) ClockRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ticker != nil
}

// Stashed reports whether the slate of a failed timed-out submission is
// held by the stash right now.
func (c *Controller) Stashed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stashed
}

// Wait blocks until an outstanding submission has returned. Call it after
// Close to learn the final outcome of a timed-out submission.
func (c *Controller) Wait() {
	c.inflight.Wait()
}

// Start fetches the exam and enters IN_PROGRESS, or LOAD_FAILED on error.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.session.Phase != PhaseLoading {
		c.mu.Unlock()
		return ErrInvalidTransition
	}
	c.baseCtx = context.WithoutCancel(ctx)
	c.mu.Unlock()

	c.log.Debug().Msg("Fetching exam")
	exam, err := c.catalog.FetchExam(ctx, c.examID)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.log.Debug().Msg("Discarding exam fetched after close")
		return ErrClosed
	}

	var next Session
	if err == nil {
		next, err = c.session.Loaded(exam)
	}
	if err != nil {
		loadErr := &LoadError{ExamID: c.examID, Err: err}
		c.session = c.session.LoadFailed(loadErr)
		snap := c.session
		c.mu.Unlock()

		c.log.Error().Err(err).Msg("Exam load failed")
		c.notify(snap)
		c.report(loadErr)
		return loadErr
	}

	c.session = next
	c.startClockLocked()
	snap := c.session
	c.mu.Unlock()

	c.log.Info().
		Int("questions", len(exam.Questions)).
		Int("remaining_seconds", snap.RemainingSeconds).
		Msg("Exam started")
	c.notify(snap)
	return nil
}

// SelectAnswer records a choice. It never contacts a service.
func (c *Controller) SelectAnswer(questionIndex, optionIndex int) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	next, err := c.session.SelectAnswer(questionIndex, optionIndex)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.session = next
	c.mu.Unlock()

	c.notify(next)
	return nil
}

// Tick consumes one second of the budget. On the tick that reaches zero it
// stops the clock and performs the forced submission in the calling goroutine.
// It returns true on that tick.
func (c *Controller) Tick() bool {
	c.mu.Lock()
	if c.closed || c.session.Phase != PhaseInProgress || c.session.Expired {
		c.mu.Unlock()
		return false
	}
	next, expired := c.session.Tick()
	c.session = next
	if expired {
		c.stopClockLocked()
	}
	ctx := c.baseCtx
	c.mu.Unlock()

	c.notify(next)
	if expired {
		c.log.Info().Msg("Time is up, submitting")
		_, _ = c.submit(ctx, true, false)
	}
	return expired
}

// Submit is the user-initiated submission. With unattempted questions and
// confirmed=false it returns OutcomeNeedsConfirmation and changes nothing; the
// caller asks the user and calls Submit again with confirmed=true.
func (c *Controller) Submit(ctx context.Context, confirmed bool) (SubmitOutcome, error) {
	return c.submit(ctx, false, confirmed)
}

// Close tears the attempt down: the clock is cancelled and any response that
// arrives afterwards is discarded.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.stopClockLocked()
	c.log.Debug().Str("phase", string(c.session.Phase)).Msg("Session closed")
}

func (c *Controller) submit(ctx context.Context, forced, confirmed bool) (SubmitOutcome, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return SubmitOutcome{Kind: OutcomeIgnored}, ErrClosed
	}
	if c.session.Phase != PhaseInProgress {
		c.mu.Unlock()
		return SubmitOutcome{Kind: OutcomeIgnored}, ErrNotInProgress
	}

	next, decision := c.session.BeginSubmit(forced, confirmed)
	switch decision.Kind {
	case DecisionIgnored:
		c.mu.Unlock()
		c.log.Debug().Bool("forced", forced).Msg("Submission already in flight, ignoring")
		return SubmitOutcome{Kind: OutcomeIgnored}, nil
	case DecisionNeedsConfirmation:
		c.mu.Unlock()
		return SubmitOutcome{Kind: OutcomeNeedsConfirmation, Unattempted: decision.Unattempted}, nil
	}

	c.session = next
	answers := make([]model.Answer, len(next.Answers))
	copy(answers, next.Answers)
	c.inflight.Add(1)
	defer c.inflight.Done()
	c.mu.Unlock()
	c.notify(next)

	c.log.Info().
		Bool("forced", forced).
		Int("unattempted", decision.Unattempted).
		Msg("Submitting answers")

	result, err := c.submitter.SubmitExam(ctx, c.examID, answers)

	c.mu.Lock()
	if c.closed {
		expired := c.session.Expired
		c.mu.Unlock()
		if err != nil && expired {
			// Time is up, so these answers can only be handed in from the stash.
			c.log.Error().Err(err).Msg("Timed-out submission failed after close")
			c.stash(ctx, answers)
			return SubmitOutcome{Kind: OutcomeFailed}, &SubmitError{ExamID: c.examID, Forced: forced, Err: err}
		}
		c.log.Warn().Err(err).Msg("Discarding submission response received after close")
		return SubmitOutcome{Kind: OutcomeIgnored}, ErrClosed
	}

	if err != nil {
		c.session = c.session.SubmitFailed()
		snap := c.session
		c.mu.Unlock()

		submitErr := &SubmitError{ExamID: c.examID, Forced: forced, Err: err}
		c.log.Error().Err(err).Bool("forced", forced).Msg("Submission failed")
		if snap.Expired {
			c.stash(ctx, answers)
		}
		c.notify(snap)
		c.report(submitErr)
		return SubmitOutcome{Kind: OutcomeFailed}, submitErr
	}

	c.session = c.session.SubmitSucceeded(result)
	c.stopClockLocked()
	snap := c.session
	stashed := c.stashed
	c.mu.Unlock()

	c.log.Info().
		Int("score", result.Score).
		Int("max_score", result.MaxScore).
		Msg("Exam submitted")
	if stashed {
		c.discard(ctx)
	}
	c.notify(snap)
	return SubmitOutcome{Kind: OutcomeSubmitted, Result: result}, nil
}

func (c *Controller) startClockLocked() {
	c.ticker = c.clock.NewTicker(c.interval)
	c.stop = make(chan struct{})
	go c.runClock(c.ticker, c.stop)
}

func (c *Controller) stopClockLocked() {
	if c.ticker == nil {
		return
	}
	c.ticker.Stop()
	close(c.stop)
	c.ticker = nil
	c.stop = nil
}

func (c *Controller) runClock(t Ticker, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-t.C():
			if c.Tick() {
				return
			}
		}
	}
}

func (c *Controller) stash(ctx context.Context, answers []model.Answer) {
	if c.opts.Stash == nil {
		c.log.Warn().Msg("No stash configured, answers exist only in memory")
		return
	}
	// The stash must outlive a cancelled caller.
	ctx = context.WithoutCancel(ctx)
	pending := &model.PendingSubmission{
		ExamID:    c.examID,
		StudentID: c.opts.StudentID,
		Answers:   answers,
		StashedAt: time.Now(),
	}
	if err := c.opts.Stash.Stash(ctx, pending); err != nil {
		c.log.Error().Err(err).Msg("Failed to stash answers")
		return
	}
	c.mu.Lock()
	c.stashed = true
	c.mu.Unlock()
	c.log.Info().Msg("Answers stashed for resubmission")
}

func (c *Controller) discard(ctx context.Context) {
	if err := c.opts.Stash.Discard(ctx, c.examID, c.opts.StudentID); err != nil {
		c.log.Warn().Err(err).Msg("Failed to discard stashed answers")
		return
	}
	c.mu.Lock()
	c.stashed = false
	c.mu.Unlock()
}

func (c *Controller) notify(s Session) {
	if c.opts.OnChange != nil {
		c.opts.OnChange(s)
	}
}

func (c *Controller) report(err error) {
	if c.opts.OnError != nil {
		c.opts.OnError(err)
	}
}
