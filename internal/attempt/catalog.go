package attempt

import (
	"slices"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-attempt/internal/model"
)

// Catalog is the immutable, ordered question list of one attempt.
type Catalog struct {
	questions []model.Question
	index     map[uuid.UUID]int
	timeLimit *int
}

// NewCatalog copies the question set and indexes it by question id.
func NewCatalog(set *model.QuestionSet) (*Catalog, error) {
	if set == nil || len(set.Questions) == 0 {
		return nil, ErrEmptyCatalog
	}

	c := &Catalog{
		questions: make([]model.Question, len(set.Questions)),
		index:     make(map[uuid.UUID]int, len(set.Questions)),
	}
	for i, q := range set.Questions {
		if _, dup := c.index[q.ID]; dup {
			return nil, ErrDuplicateID
		}
		q.Options = slices.Clone(q.Options)
		c.questions[i] = q
		c.index[q.ID] = i
	}
	if set.TimeLimitSeconds != nil && *set.TimeLimitSeconds > 0 {
		limit := *set.TimeLimitSeconds
		c.timeLimit = &limit
	}
	return c, nil
}

// TimeLimit returns the catalog's time limit, or fallback when the metadata omits it.
func (c *Catalog) TimeLimit(fallback int) int {
	if c.timeLimit == nil {
		return fallback
	}
	return *c.timeLimit
}

func (c *Catalog) Len() int { return len(c.questions) }

func (c *Catalog) Get(id uuid.UUID) (model.Question, bool) {
	i, ok := c.index[id]
	if !ok {
		return model.Question{}, false
	}
	return c.questions[i], true
}

// Questions returns a copy in catalog order.
func (c *Catalog) Questions() []model.Question {
	out := make([]model.Question, len(c.questions))
	for i, q := range c.questions {
		q.Options = slices.Clone(q.Options)
		out[i] = q
	}
	return out
}

// Validate checks an edit against the question it targets.
func (c *Catalog) Validate(id uuid.UUID, v model.AnswerValue) error {
	q, ok := c.Get(id)
	if !ok {
		return ErrUnknownQuestion
	}
	if v.SelectedOptionID == nil && v.TextResponse == nil {
		return ErrInvalidAnswer
	}

	switch q.Category {
	case model.QuestionCategoryObjective:
		if v.SelectedOptionID == nil {
			return ErrInvalidAnswer
		}
		if !slices.ContainsFunc(q.Options, func(o model.Option) bool { return o.ID == *v.SelectedOptionID }) {
			return ErrInvalidAnswer
		}
	case model.QuestionCategorySubjective:
		if v.SelectedOptionID != nil {
			return ErrInvalidAnswer
		}
	}
	return nil
}
