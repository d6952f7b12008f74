package quiz

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/errors"
	"github.com/victornm/livequiz/internal/store"
)

type Config struct {
	Store store.QuizSets
	Now   func() time.Time
}

// Service authors quiz sets. Quiz sets are immutable once created.
type Service struct {
	store store.QuizSets
	now   func() time.Time
}

func NewService(c Config) *Service {
	now := c.Now
	if now == nil {
		now = time.Now
	}

	return &Service{
		store: c.Store,
		now:   now,
	}
}

type CreateQuizSetRequest struct {
	Name      string          `json:"name" yaml:"name"`
	Questions []QuestionInput `json:"questions" yaml:"questions"`
}

type QuestionInput struct {
	Body     string        `json:"body" yaml:"body"`
	ImageURL string        `json:"image_url,omitempty" yaml:"image_url,omitempty"`
	Choices  []ChoiceInput `json:"choices" yaml:"choices"`
}

type ChoiceInput struct {
	Body      string `json:"body" yaml:"body"`
	IsCorrect bool   `json:"is_correct,omitempty" yaml:"correct,omitempty"`
}

// Validate checks the authoring invariants: a name, at least one question, and for
// every question a body and at least two choices of which exactly one is correct.
func (r CreateQuizSetRequest) Validate() error {
	invalid := func(format string, args ...any) error {
		return errors.New(errors.CodeInvalidArgument, errors.WithMessagef(format, args...))
	}

	if strings.TrimSpace(r.Name) == "" {
		return invalid("quiz set name is required")
	}

	if len(r.Questions) == 0 {
		return invalid("quiz set %q has no questions", r.Name)
	}

	for i, q := range r.Questions {
		if strings.TrimSpace(q.Body) == "" {
			return invalid("question %d: body is required", i)
		}

		if len(q.Choices) < 2 {
			return invalid("question %d: at least 2 choices are required, got %d", i, len(q.Choices))
		}

		correct := 0
		for j, c := range q.Choices {
			if strings.TrimSpace(c.Body) == "" {
				return invalid("question %d choice %d: body is required", i, j)
			}
			if c.IsCorrect {
				correct++
			}
		}

		if correct != 1 {
			return invalid("question %d: exactly one correct choice is required, got %d", i, correct)
		}
	}

	return nil
}

// CreateQuizSet validates and stores a new quiz set. Questions are ordered as given.
func (s *Service) CreateQuizSet(ctx context.Context, req CreateQuizSetRequest) (*domain.QuizSet, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	qs, err := build(req, s.now())
	if err != nil {
		return nil, err
	}

	if err := s.store.InsertQuizSet(ctx, qs); err != nil {
		return nil, fmt.Errorf("insert quiz set: %w", err)
	}

	return qs, nil
}

func build(req CreateQuizSetRequest, now time.Time) (*domain.QuizSet, error) {
	newID := func() (string, error) {
		id, err := uuid.NewV7()
		if err != nil {
			return "", fmt.Errorf("generate ID: %w", err)
		}
		return id.String(), nil
	}

	qsID, err := newID()
	if err != nil {
		return nil, err
	}

	qs := &domain.QuizSet{
		QuizSetID:  qsID,
		Name:       strings.TrimSpace(req.Name),
		CreateTime: now,
		Questions:  make([]domain.Question, 0, len(req.Questions)),
	}

	for i, in := range req.Questions {
		qID, err := newID()
		if err != nil {
			return nil, err
		}

		q := domain.Question{
			QuestionID: qID,
			QuizSetID:  qsID,
			Body:       strings.TrimSpace(in.Body),
			ImageURL:   in.ImageURL,
			Order:      i,
			Choices:    make([]domain.Choice, 0, len(in.Choices)),
		}

		for _, c := range in.Choices {
			cID, err := newID()
			if err != nil {
				return nil, err
			}

			q.Choices = append(q.Choices, domain.Choice{
				ChoiceID:   cID,
				QuestionID: qID,
				Body:       strings.TrimSpace(c.Body),
				IsCorrect:  c.IsCorrect,
			})
		}

		qs.Questions = append(qs.Questions, q)
	}

	return qs, nil
}

func (s *Service) ListQuizSets(ctx context.Context) ([]domain.QuizSet, error) {
	return s.store.ListQuizSets(ctx)
}

type GetQuizSetRequest struct {
	QuizSetID string
}

// GetQuizSet returns the quiz set with its questions.
func (s *Service) GetQuizSet(ctx context.Context, req GetQuizSetRequest) (*domain.QuizSet, error) {
	qs, err := s.store.GetQuizSet(ctx, req.QuizSetID)
	if err != nil {
		return nil, err
	}

	qs.Questions, err = s.store.ListQuestions(ctx, req.QuizSetID)
	if err != nil {
		return nil, err
	}

	return qs, nil
}
