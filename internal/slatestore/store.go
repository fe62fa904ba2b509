package slatestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-exam-client/internal/config"
	"github.com/stemsi/exstem-exam-client/internal/model"
)

// ErrNotFound is returned when no slate is stashed for an exam.
var ErrNotFound = errors.New("no stashed answers for exam")

// Store keeps answer slates in Redis until they are handed in.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
	log zerolog.Logger
}

// New creates a Store. ttl <= 0 keeps entries until discarded.
func New(rdb *redis.Client, ttl time.Duration, log zerolog.Logger) *Store {
	return &Store{
		rdb: rdb,
		ttl: ttl,
		log: log.With().Str("component", "slate_store").Logger(),
	}
}

// Connect parses redisURL, pings the server and returns a client.
func Connect(ctx context.Context, redisURL string, log zerolog.Logger) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	log.Info().
		Str("addr", opt.Addr).
		Int("db", opt.DB).
		Msg("Redis connected")
	return rdb, nil
}

// Stash writes the slate and indexes it under the student, in one transaction.
func (s *Store) Stash(ctx context.Context, p *model.PendingSubmission) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal pending submission: %w", err)
	}

	indexKey := config.CacheKey.PendingExamsKey(p.StudentID)
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, config.CacheKey.PendingAnswersKey(p.ExamID, p.StudentID), raw, s.ttl)
	pipe.SAdd(ctx, indexKey, p.ExamID)
	if s.ttl > 0 {
		pipe.Expire(ctx, indexKey, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("stash answers: %w", err)
	}

	s.log.Info().
		Str("exam_id", p.ExamID).
		Str("student_id", p.StudentID).
		Int("answers", len(p.Answers)).
		Msg("Answers stashed")
	return nil
}

// Load returns the stashed slate for one exam.
func (s *Store) Load(ctx context.Context, examID, studentID string) (*model.PendingSubmission, error) {
	raw, err := s.rdb.Get(ctx, config.CacheKey.PendingAnswersKey(examID, studentID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get stashed answers: %w", err)
	}

	var p model.PendingSubmission
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("unmarshal stashed answers: %w", err)
	}
	return &p, nil
}

// List returns every slate stashed for a student, oldest first. Index entries
// whose slate already expired are pruned.
func (s *Store) List(ctx context.Context, studentID string) ([]model.PendingSubmission, error) {
	indexKey := config.CacheKey.PendingExamsKey(studentID)
	examIDs, err := s.rdb.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list stashed exams: %w", err)
	}

	pending := make([]model.PendingSubmission, 0, len(examIDs))
	for _, examID := range examIDs {
		p, err := s.Load(ctx, examID, studentID)
		if errors.Is(err, ErrNotFound) {
			s.rdb.SRem(ctx, indexKey, examID)
			continue
		}
		if err != nil {
			return nil, err
		}
		pending = append(pending, *p)
	}

	sort.Slice(pending, func(i, j int) bool {
		return pending[i].StashedAt.Before(pending[j].StashedAt)
	})
	return pending, nil
}

// Discard removes a slate once it has been handed in.
func (s *Store) Discard(ctx context.Context, examID, studentID string) error {
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, config.CacheKey.PendingAnswersKey(examID, studentID))
	pipe.SRem(ctx, config.CacheKey.PendingExamsKey(studentID), examID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("discard stashed answers: %w", err)
	}
	return nil
}
