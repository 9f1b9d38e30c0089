package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// TestPaperKey returns the cache key for a test's student-facing paper
func (r *CacheKeyStruct) TestPaperKey(testID string) string {
	return fmt.Sprintf("test:%s:paper", testID)
}

// AttemptStartKey returns the cache key for an attempt's session start (unix seconds)
func (r *CacheKeyStruct) AttemptStartKey(attemptID string) string {
	return fmt.Sprintf("attempt:%s:start", attemptID)
}

// AttemptAnswersKey returns the cache key for an attempt's answers hash
func (r *CacheKeyStruct) AttemptAnswersKey(attemptID string) string {
	return fmt.Sprintf("attempt:%s:answers", attemptID)
}

// AttemptFlagsKey returns the cache key for an attempt's flagged question set
func (r *CacheKeyStruct) AttemptFlagsKey(attemptID string) string {
	return fmt.Sprintf("attempt:%s:flags", attemptID)
}

// AttemptCursorKey returns the cache key for an attempt's current question index
func (r *CacheKeyStruct) AttemptCursorKey(attemptID string) string {
	return fmt.Sprintf("attempt:%s:cursor", attemptID)
}

var CacheKey = NewCacheKeyStruct()
