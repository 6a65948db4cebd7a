package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// QuizPayloadKey returns the cache key for a quiz's full payload (with answer key).
func (r *CacheKeyStruct) QuizPayloadKey(quizID string) string {
	return fmt.Sprintf("quiz:%s:payload", quizID)
}

// QuizMonitorChannel returns the Redis PubSub channel name for a quiz's live monitor.
func (r *CacheKeyStruct) QuizMonitorChannel(quizID string) string {
	return fmt.Sprintf("quiz:%s:monitor", quizID)
}

// SessionReportKey returns the cache key holding a completed session's report.
func (r *CacheKeyStruct) SessionReportKey(sessionID string) string {
	return fmt.Sprintf("session:%s:report", sessionID)
}

var CacheKey = NewCacheKeyStruct()
