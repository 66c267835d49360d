package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/stemsi/exstem-attempt/internal/config"
	"github.com/stemsi/exstem-attempt/internal/database"
	"github.com/stemsi/exstem-attempt/internal/logger"
	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/repository"
	"github.com/stemsi/exstem-attempt/internal/service"
)

func main() {
	file := flag.String("file", "", "JSON question set to import (default: built-in sample)")
	draft := flag.Bool("draft", false, "Create the assessment as DRAFT instead of PUBLISHED")
	warm := flag.Bool("warm", true, "Load the new catalog into Redis")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	set := sampleAssessment()
	if *file != "" {
		raw, err := os.ReadFile(*file)
		if err != nil {
			log.Fatal().Err(err).Str("file", *file).Msg("Failed to read question set")
		}
		set = &model.QuestionSet{}
		if err := json.Unmarshal(raw, set); err != nil {
			log.Fatal().Err(err).Str("file", *file).Msg("Invalid question set")
		}
	}
	if len(set.Questions) == 0 {
		log.Fatal().Msg("Question set has no questions")
	}

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	status := model.AssessmentStatusPublished
	if *draft {
		status = model.AssessmentStatusDraft
	}

	questionRepo := repository.NewQuestionRepository(pool)
	if err := questionRepo.CreateAssessment(ctx, set, status); err != nil {
		log.Fatal().Err(err).Msg("Failed to create assessment")
	}
	log.Info().
		Str("assessment_id", set.AssessmentID.String()).
		Str("status", string(status)).
		Int("questions", len(set.Questions)).
		Msg("Assessment created")

	if *warm && status == model.AssessmentStatusPublished {
		rdb, err := database.NewRedisClient(ctx, cfg, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer rdb.Close()

		catalog := service.NewCatalogService(questionRepo, rdb, cfg.CatalogCacheTTL, log)
		if err := catalog.WarmCache(ctx, set.AssessmentID); err != nil {
			log.Warn().Err(err).Msg("Cache warm failed")
		}
	}

	fmt.Println(set.AssessmentID)
}

func sampleAssessment() *model.QuestionSet {
	limit := 45 * 60
	set := &model.QuestionSet{
		Title:            "Ulangan Harian Biologi: Sel",
		TimeLimitSeconds: &limit,
	}

	objective := []struct {
		text    string
		options []model.Option
	}{
		{"Organel tempat respirasi sel adalah", []model.Option{{ID: "a", Text: "Mitokondria"}, {ID: "b", Text: "Ribosom"}, {ID: "c", Text: "Lisosom"}, {ID: "d", Text: "Vakuola"}}},
		{"Dinding sel tumbuhan tersusun atas", []model.Option{{ID: "a", Text: "Kitin"}, {ID: "b", Text: "Selulosa"}, {ID: "c", Text: "Peptidoglikan"}, {ID: "d", Text: "Lignin saja"}}},
		{"Sintesis protein terjadi di", []model.Option{{ID: "a", Text: "Nukleolus"}, {ID: "b", Text: "Badan Golgi"}, {ID: "c", Text: "Ribosom"}, {ID: "d", Text: "Sentriol"}}},
	}
	for i, q := range objective {
		set.Questions = append(set.Questions, model.Question{
			Text:     q.text,
			Category: model.QuestionCategoryObjective,
			Type:     model.QuestionTypeMultipleChoice,
			Marks:    2,
			Options:  q.options,
			OrderNum: i + 1,
		})
	}
	set.Questions = append(set.Questions, model.Question{
		Text:     "Jelaskan perbedaan sel prokariotik dan eukariotik.",
		Category: model.QuestionCategorySubjective,
		Type:     model.QuestionTypeEssay,
		Marks:    4,
		OrderNum: len(objective) + 1,
	})
	return set
}
