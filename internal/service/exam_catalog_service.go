package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-exam-client/internal/model"
)

// Catalog errors.
var (
	ErrExamNotFound       = errors.New("exam not found")
	ErrNoQuestions        = errors.New("exam has no questions")
	ErrAnswerCountInvalid = errors.New("answer count does not match question count")
	ErrInvalidAnswer      = errors.New("answer out of order or out of range")
)

// ExamSeed is one exam in the stub's seed file, answer key included.
type ExamSeed struct {
	ExamID          string         `json:"exam_id"`
	Title           string         `json:"title"`
	Description     string         `json:"description"`
	DurationMinutes int            `json:"duration_minutes"`
	Questions       []QuestionSeed `json:"questions"`
}

// QuestionSeed is a question with its correct option index.
type QuestionSeed struct {
	QuestionText  string   `json:"question_text"`
	Options       []string `json:"options"`
	CorrectOption int      `json:"correct_option"`
}

// LoadSeedFile reads a JSON array of ExamSeed.
func LoadSeedFile(path string) ([]ExamSeed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var seeds []ExamSeed
	if err := json.Unmarshal(data, &seeds); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	return seeds, nil
}

type submissionKey struct {
	examID    string
	studentID int
}

// ExamCatalogService serves exam papers and grades submissions from memory.
type ExamCatalogService struct {
	log zerolog.Logger

	mu      sync.RWMutex
	papers  map[string]*model.ExamPayload
	keys    map[string][]int
	results map[submissionKey]*model.SessionResult
}

// NewExamCatalogService creates an empty catalog.
func NewExamCatalogService(log zerolog.Logger) *ExamCatalogService {
	return &ExamCatalogService{
		log:     log.With().Str("component", "exam_catalog").Logger(),
		papers:  make(map[string]*model.ExamPayload),
		keys:    make(map[string][]int),
		results: make(map[submissionKey]*model.SessionResult),
	}
}

// Publish builds the student-facing paper and the answer key for one exam.
func (s *ExamCatalogService) Publish(seed ExamSeed) error {
	if len(seed.Questions) == 0 {
		return ErrNoQuestions
	}

	paper := &model.ExamPayload{
		ExamID:      seed.ExamID,
		Title:       seed.Title,
		Description: seed.Description,
		Duration:    seed.DurationMinutes,
		Questions:   make([]model.QuestionForStudent, len(seed.Questions)),
	}
	key := make([]int, len(seed.Questions))
	for i, q := range seed.Questions {
		paper.Questions[i] = model.QuestionForStudent{
			QuestionText: q.QuestionText,
			Options:      q.Options,
			OrderNum:     i,
		}
		key[i] = q.CorrectOption
	}
	if _, err := paper.Definition(); err != nil {
		return fmt.Errorf("exam %s: %w", seed.ExamID, err)
	}

	s.mu.Lock()
	s.papers[seed.ExamID] = paper
	s.keys[seed.ExamID] = key
	s.mu.Unlock()

	s.log.Debug().
		Str("exam_id", seed.ExamID).
		Int("questions", len(key)).
		Msg("Exam published")
	return nil
}

// PublishAll publishes every seed, skipping invalid ones. Returns the count published.
func (s *ExamCatalogService) PublishAll(seeds []ExamSeed) int {
	published := 0
	for _, seed := range seeds {
		if err := s.Publish(seed); err != nil {
			s.log.Warn().Err(err).Str("exam_id", seed.ExamID).Msg("Skipping exam")
			continue
		}
		published++
	}
	s.log.Info().Int("published", published).Int("total", len(seeds)).Msg("Catalog loaded")
	return published
}

// ExamIDs lists published exams in sorted order.
func (s *ExamCatalogService) ExamIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.papers))
	for id := range s.papers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// GetExamPayload returns the paper without correct answers.
func (s *ExamCatalogService) GetExamPayload(examID string) (*model.ExamPayload, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	paper, ok := s.papers[examID]
	if !ok {
		return nil, ErrExamNotFound
	}
	return paper, nil
}

// Grade scores a full ordered slate. One point per correct answer. A malformed
// slate is always rejected. A repeated well-formed submission from the same
// student returns the first result unchanged, so a retried request can never
// score twice.
func (s *ExamCatalogService) Grade(examID string, studentID int, answers []model.Answer) (*model.SessionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.keys[examID]
	if !ok {
		return nil, ErrExamNotFound
	}
	if len(answers) != len(key) {
		return nil, ErrAnswerCountInvalid
	}
	correct := 0
	for i, a := range answers {
		if a.QuestionIndex != i || a.SelectedOption < model.Unanswered || a.SelectedOption >= model.OptionCount {
			return nil, fmt.Errorf("%w: entry %d", ErrInvalidAnswer, i)
		}
		if a.SelectedOption == key[i] {
			correct++
		}
	}

	sk := submissionKey{examID: examID, studentID: studentID}
	if prev, ok := s.results[sk]; ok {
		s.log.Info().Str("exam_id", examID).Int("student_id", studentID).Msg("Duplicate submission, returning first result")
		return prev, nil
	}

	result := &model.SessionResult{Score: correct, MaxScore: len(key)}
	s.results[sk] = result

	s.log.Info().
		Str("exam_id", examID).
		Int("student_id", studentID).
		Int("score", result.Score).
		Int("max_score", result.MaxScore).
		Msg("Exam submitted and graded")
	return result, nil
}
