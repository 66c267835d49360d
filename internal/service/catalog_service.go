package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt/internal/config"
	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/repository"
)

// QuestionSource is the durable store of question sets.
type QuestionSource interface {
	GetQuestionSet(ctx context.Context, assessmentID uuid.UUID) (*model.QuestionSet, error)
	ListPublishedIDs(ctx context.Context) ([]uuid.UUID, error)
}

// CatalogService serves question sets from Redis and falls back to the
// database on a miss.
type CatalogService struct {
	source QuestionSource
	rdb    *redis.Client
	ttl    time.Duration
	log    zerolog.Logger
}

// NewCatalogService creates a new CatalogService.
func NewCatalogService(source QuestionSource, rdb *redis.Client, ttl time.Duration, log zerolog.Logger) *CatalogService {
	return &CatalogService{
		source: source,
		rdb:    rdb,
		ttl:    ttl,
		log:    log.With().Str("component", "catalog_service").Logger(),
	}
}

// FetchQuestions returns the question set of an assessment. A Redis failure
// degrades to a database read.
func (s *CatalogService) FetchQuestions(ctx context.Context, assessmentID uuid.UUID) (*model.QuestionSet, error) {
	key := config.CacheKey.AssessmentCatalogKey(assessmentID.String())

	raw, err := s.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var set model.QuestionSet
		if err := json.Unmarshal(raw, &set); err == nil {
			return &set, nil
		}
		s.log.Warn().Str("assessment_id", assessmentID.String()).Msg("Corrupt catalog cache entry, reloading")
	case !errors.Is(err, redis.Nil):
		s.log.Warn().Err(err).Str("assessment_id", assessmentID.String()).Msg("Catalog cache read failed")
	}

	return s.load(ctx, assessmentID)
}

// WarmCache loads one assessment into Redis.
func (s *CatalogService) WarmCache(ctx context.Context, assessmentID uuid.UUID) error {
	_, err := s.load(ctx, assessmentID)
	return err
}

// PrewarmAllCaches loads every published assessment into Redis before traffic.
func (s *CatalogService) PrewarmAllCaches(ctx context.Context) error {
	ids, err := s.source.ListPublishedIDs(ctx)
	if err != nil {
		return fmt.Errorf("list assessments: %w", err)
	}

	warmed := 0
	for _, id := range ids {
		if err := s.WarmCache(ctx, id); err != nil {
			s.log.Warn().Err(err).Str("assessment_id", id.String()).Msg("Prewarm failed")
			continue
		}
		warmed++
	}

	s.log.Info().
		Int("warmed", warmed).
		Int("total", len(ids)).
		Msg("Catalog cache prewarmed")
	return nil
}

// Invalidate drops the cached catalog of an assessment.
func (s *CatalogService) Invalidate(ctx context.Context, assessmentID uuid.UUID) error {
	return s.rdb.Del(ctx, config.CacheKey.AssessmentCatalogKey(assessmentID.String())).Err()
}

func (s *CatalogService) load(ctx context.Context, assessmentID uuid.UUID) (*model.QuestionSet, error) {
	set, err := s.source.GetQuestionSet(ctx, assessmentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAssessmentUnavailable
		}
		return nil, fmt.Errorf("load question set: %w", err)
	}

	payload, err := json.Marshal(set)
	if err != nil {
		return nil, fmt.Errorf("marshal question set: %w", err)
	}
	key := config.CacheKey.AssessmentCatalogKey(assessmentID.String())
	if err := s.rdb.Set(ctx, key, payload, s.ttl).Err(); err != nil {
		s.log.Warn().Err(err).Str("assessment_id", assessmentID.String()).Msg("Catalog cache write failed")
	}

	s.log.Debug().
		Str("assessment_id", assessmentID.String()).
		Int("questions", len(set.Questions)).
		Msg("Catalog cached")
	return set, nil
}
