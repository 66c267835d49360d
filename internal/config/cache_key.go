package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// AttemptAnswersKey returns the hash key holding the autosaved answers of an attempt
func (r *CacheKeyStruct) AttemptAnswersKey(attemptID string) string {
	return fmt.Sprintf("attempt:%s:answers", attemptID)
}

// AssessmentCatalogKey returns the cache key for an assessment's question catalog
func (r *CacheKeyStruct) AssessmentCatalogKey(assessmentID string) string {
	return fmt.Sprintf("assessment:%s:catalog", assessmentID)
}

var CacheKey = NewCacheKeyStruct()
