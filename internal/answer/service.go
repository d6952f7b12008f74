package answer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/errors"
	"github.com/victornm/livequiz/internal/event"
	"github.com/victornm/livequiz/internal/store"
	"github.com/victornm/livequiz/internal/telemetry"
	"github.com/victornm/livequiz/internal/token"
)

const DefaultChoiceRevealDelay = 5 * time.Second

type Store interface {
	store.QuizSets
	store.Games
	store.Participants
	store.Answers
}

type Config struct {
	EventBus *event.Bus
	Store    Store
	Tokens   *token.Issuer
	// AnswerWindow is the time after the choices are shown during which a correct answer scores points.
	AnswerWindow time.Duration
	// ChoiceRevealDelay is the time the question is shown alone before its choices.
	ChoiceRevealDelay time.Duration
	Now               func() time.Time
}

// Service is the answer ledger of games: it records at most one scored answer per
// participant and question.
type Service struct {
	eb          *event.Bus
	store       Store
	tokens      *token.Issuer
	window      time.Duration
	revealDelay time.Duration
	now         func() time.Time
}

func NewService(c Config) *Service {
	s := &Service{
		eb:          c.EventBus,
		store:       c.Store,
		tokens:      c.Tokens,
		window:      c.AnswerWindow,
		revealDelay: c.ChoiceRevealDelay,
		now:         c.Now,
	}

	if s.window <= 0 {
		s.window = DefaultWindow
	}

	if s.revealDelay < 0 {
		s.revealDelay = 0
	}

	if s.now == nil {
		s.now = time.Now
	}

	return s
}

type SubmitAnswerRequest struct {
	// Token is the participant token returned by Join.
	Token      string
	QuestionID string
	ChoiceID   string
}

type SubmitAnswerResponse struct {
	Answer  domain.Answer
	Correct bool
}

// SubmitAnswer records the answer of the participant to the current question of its game.
// The score is computed from the server clock.
func (s *Service) SubmitAnswer(ctx context.Context, req SubmitAnswerRequest) (*SubmitAnswerResponse, error) {
	resp, err := s.submitAnswer(ctx, req)
	telemetry.AnswersSubmitted.WithLabelValues(result(err)).Inc()
	return resp, err
}

func (s *Service) submitAnswer(ctx context.Context, req SubmitAnswerRequest) (*SubmitAnswerResponse, error) {
	claims, err := s.tokens.AuthorizePlayer(req.Token)
	if err != nil {
		return nil, err
	}

	p, err := s.store.GetParticipant(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}

	g, err := s.store.GetGame(ctx, p.GameID)
	if err != nil {
		return nil, err
	}

	if !g.AcceptsAnswers() {
		return nil, errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("answers are closed: game=%s phase=%s revealed=%t", g.GameID, g.Phase, g.IsAnswerRevealed))
	}

	q, err := s.currentQuestion(ctx, *g, req.QuestionID)
	if err != nil {
		return nil, err
	}

	choice, ok := q.Choice(req.ChoiceID)
	if !ok {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("choice %s does not belong to question %s", req.ChoiceID, q.QuestionID))
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate answer ID: %w", err)
	}

	now := s.now()
	elapsed := now.Sub(g.QuestionStartTime.Add(s.revealDelay))

	a := domain.Answer{
		AnswerID:      id.String(),
		ParticipantID: p.ParticipantID,
		QuestionID:    q.QuestionID,
		ChoiceID:      choice.ChoiceID,
		Score:         Score(choice.IsCorrect, elapsed, s.window),
		CreateTime:    now,
	}

	if err := s.store.InsertAnswer(ctx, &a); err != nil {
		if errors.Is(err, errors.CodeAlreadyExists) {
			return nil, errors.New(errors.CodeAlreadyExists,
				errors.WithMessagef("answer not recorded: participant %s already answered question %s", p.ParticipantID, q.QuestionID),
				errors.WithCause(err),
			)
		}

		return nil, fmt.Errorf("insert answer: %w", err)
	}

	slog.DebugContext(ctx, "answer: recorded",
		"game", g.GameID,
		"participant", p.ParticipantID,
		"question", q.QuestionID,
		"score", a.Score,
		"elapsed", elapsed,
	)

	s.eb.Publish(ctx, domain.EventAnswerSubmitted{
		GameID: g.GameID,
		Answer: a,
	})

	return &SubmitAnswerResponse{
		Answer:  a,
		Correct: choice.IsCorrect,
	}, nil
}

func (s *Service) currentQuestion(ctx context.Context, g domain.Game, questionID string) (domain.Question, error) {
	questions, err := s.store.ListQuestions(ctx, g.QuizSetID)
	if err != nil {
		return domain.Question{}, fmt.Errorf("list questions: %w", err)
	}

	for i, q := range questions {
		if q.QuestionID != questionID {
			continue
		}

		if i != g.CurrentQuestionSequence {
			return domain.Question{}, errors.New(errors.CodeFailedPrecondition,
				errors.WithMessagef("question %s is not the current question of game %s", questionID, g.GameID))
		}

		return q, nil
	}

	return domain.Question{}, errors.New(errors.CodeInvalidArgument,
		errors.WithMessagef("question %s does not belong to game %s", questionID, g.GameID))
}

func result(err error) string {
	switch {
	case err == nil:
		return "accepted"
	case errors.Is(err, errors.CodeAlreadyExists):
		return "duplicate"
	case errors.Is(err, errors.CodeFailedPrecondition):
		return "closed"
	default:
		return "invalid"
	}
}

type GetQuestionStatsRequest struct {
	GameID     string
	QuestionID string
	HostToken  string
}

// GetQuestionStats counts the answers given to a question per choice. Every choice of the
// question is listed, in order, even when nobody picked it.
func (s *Service) GetQuestionStats(ctx context.Context, req GetQuestionStatsRequest) (*domain.QuestionStats, error) {
	if err := s.tokens.AuthorizeHost(req.HostToken, req.GameID); err != nil {
		return nil, err
	}

	g, err := s.store.GetGame(ctx, req.GameID)
	if err != nil {
		return nil, err
	}

	questions, err := s.store.ListQuestions(ctx, g.QuizSetID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}

	var q *domain.Question
	for i := range questions {
		if questions[i].QuestionID == req.QuestionID {
			q = &questions[i]
			break
		}
	}

	if q == nil {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("question %s not found in game %s", req.QuestionID, req.GameID))
	}

	answers, err := s.store.ListAnswers(ctx, req.GameID, req.QuestionID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}

	perChoice := make(map[string]int, len(q.Choices))
	for _, a := range answers {
		perChoice[a.ChoiceID]++
	}

	stats := &domain.QuestionStats{
		GameID:     req.GameID,
		QuestionID: req.QuestionID,
		Total:      len(answers),
		Counts:     make([]domain.ChoiceCount, 0, len(q.Choices)),
	}

	for _, c := range q.Choices {
		if c.IsCorrect {
			stats.CorrectChoiceID = c.ChoiceID
		}
		stats.Counts = append(stats.Counts, domain.ChoiceCount{ChoiceID: c.ChoiceID, Count: perChoice[c.ChoiceID]})
	}

	return stats, nil
}
