package model

import (
	"github.com/google/uuid"
)

// AssessmentStatus gates which assessments can be attempted.
type AssessmentStatus string

const (
	AssessmentStatusDraft     AssessmentStatus = "DRAFT"
	AssessmentStatusPublished AssessmentStatus = "PUBLISHED"
)

// QuestionCategory separates auto-gradable questions from free-text ones.
type QuestionCategory string

const (
	QuestionCategoryObjective  QuestionCategory = "OBJECTIVE"
	QuestionCategorySubjective QuestionCategory = "SUBJECTIVE"
)

type QuestionType string

const (
	QuestionTypeMultipleChoice QuestionType = "MULTIPLE_CHOICE"
	QuestionTypeTrueFalse      QuestionType = "TRUE_FALSE"
	QuestionTypeShortAnswer    QuestionType = "SHORT_ANSWER"
	QuestionTypeEssay          QuestionType = "ESSAY"
)

// Option is a selectable choice of an objective question.
type Option struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Question is a single assessment question as shown to the student (no answer key).
type Question struct {
	ID       uuid.UUID        `json:"id"`
	Text     string           `json:"text"`
	Category QuestionCategory `json:"category"`
	Type     QuestionType     `json:"type"`
	Marks    float64          `json:"marks"`
	Options  []Option         `json:"options"`
	OrderNum int              `json:"order_num"`
}

// QuestionSet is what the question provider returns for an assessment.
// TimeLimitSeconds is nil when the assessment metadata omits it.
type QuestionSet struct {
	AssessmentID     uuid.UUID  `json:"assessment_id"`
	Title            string     `json:"title"`
	TimeLimitSeconds *int       `json:"time_limit_seconds,omitempty"`
	Questions        []Question `json:"questions"`
}
