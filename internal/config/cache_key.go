package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// PendingAnswersKey returns the key holding a stashed answer slate whose
// timed-out submission failed.
func (r *CacheKeyStruct) PendingAnswersKey(examID, studentID string) string {
	return fmt.Sprintf("student:%s:exam:%s:pending_answers", studentID, examID)
}

// PendingExamsKey returns the set of exam IDs with a stashed slate for a student.
func (r *CacheKeyStruct) PendingExamsKey(studentID string) string {
	return fmt.Sprintf("student:%s:pending_exams", studentID)
}

var CacheKey = NewCacheKeyStruct()
