package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-exam-client/internal/examsession"
	"github.com/stemsi/exstem-exam-client/internal/model"
)

// PendingStore is the subset of the slate stash used for resubmission.
type PendingStore interface {
	Load(ctx context.Context, examID, studentID string) (*model.PendingSubmission, error)
	List(ctx context.Context, studentID string) ([]model.PendingSubmission, error)
	Discard(ctx context.Context, examID, studentID string) error
}

// ResubmitResult is the outcome for one stashed slate.
type ResubmitResult struct {
	ExamID string
	Result *model.SessionResult
	Err    error
}

// PendingService hands in slates whose timed-out submission failed.
// It runs only when asked; nothing here retries on a schedule.
type PendingService struct {
	store     PendingStore
	submitter examsession.Submitter
	log       zerolog.Logger
}

// NewPendingService creates a PendingService.
func NewPendingService(store PendingStore, submitter examsession.Submitter, log zerolog.Logger) *PendingService {
	return &PendingService{
		store:     store,
		submitter: submitter,
		log:       log.With().Str("component", "pending_service").Logger(),
	}
}

// List returns the student's stashed slates, oldest first.
func (s *PendingService) List(ctx context.Context, studentID string) ([]model.PendingSubmission, error) {
	return s.store.List(ctx, studentID)
}

// Resubmit hands in one stashed slate and discards it on success.
func (s *PendingService) Resubmit(ctx context.Context, examID, studentID string) (*model.SessionResult, error) {
	pending, err := s.store.Load(ctx, examID, studentID)
	if err != nil {
		return nil, fmt.Errorf("load stashed answers: %w", err)
	}
	return s.resubmit(ctx, pending)
}

// ResubmitAll hands in every stashed slate, continuing past failures.
func (s *PendingService) ResubmitAll(ctx context.Context, studentID string) ([]ResubmitResult, error) {
	pending, err := s.store.List(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("list stashed answers: %w", err)
	}

	results := make([]ResubmitResult, 0, len(pending))
	for i := range pending {
		res, err := s.resubmit(ctx, &pending[i])
		results = append(results, ResubmitResult{ExamID: pending[i].ExamID, Result: res, Err: err})
	}
	return results, nil
}

func (s *PendingService) resubmit(ctx context.Context, p *model.PendingSubmission) (*model.SessionResult, error) {
	result, err := s.submitter.SubmitExam(ctx, p.ExamID, p.Answers)
	if err != nil {
		s.log.Error().Err(err).Str("exam_id", p.ExamID).Msg("Resubmission failed, answers kept")
		return nil, fmt.Errorf("submit exam %s: %w", p.ExamID, err)
	}

	if err := s.store.Discard(ctx, p.ExamID, p.StudentID); err != nil {
		s.log.Warn().Err(err).Str("exam_id", p.ExamID).Msg("Submitted but failed to discard stash")
	}

	s.log.Info().
		Str("exam_id", p.ExamID).
		Int("score", result.Score).
		Int("max_score", result.MaxScore).
		Msg("Stashed answers submitted")
	return result, nil
}
