package game

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/errors"
	"github.com/victornm/livequiz/internal/event"
	"github.com/victornm/livequiz/internal/store"
	"github.com/victornm/livequiz/internal/telemetry"
	"github.com/victornm/livequiz/internal/token"
)

const maxTransitionAttempts = 3

type Store interface {
	store.QuizSets
	store.Games
}

type Config struct {
	EventBus *event.Bus
	Store    Store
	Tokens   *token.Issuer
	// PublicURL is the base URL players open to join, the game ID is appended to <PublicURL>/play/.
	PublicURL string
	Now       func() time.Time
}

// Service owns the session state machine. All mutations are reserved to the host of the game.
type Service struct {
	eb        *event.Bus
	store     Store
	tokens    *token.Issuer
	publicURL string
	now       func() time.Time
}

func NewService(c Config) *Service {
	now := c.Now
	if now == nil {
		now = time.Now
	}

	return &Service{
		eb:        c.EventBus,
		store:     c.Store,
		tokens:    c.Tokens,
		publicURL: strings.TrimRight(c.PublicURL, "/"),
		now:       now,
	}
}

type CreateGameRequest struct {
	QuizSetID string
}

type CreateGameResponse struct {
	Game      domain.Game
	HostToken string
	JoinURL   string
}

// CreateGame creates a game of the quiz set in the lobby phase.
func (s *Service) CreateGame(ctx context.Context, req CreateGameRequest) (*CreateGameResponse, error) {
	questions, err := s.store.ListQuestions(ctx, req.QuizSetID)
	if err != nil {
		return nil, err
	}

	if len(questions) == 0 {
		return nil, failedPrecondition("quiz set %s has no questions", req.QuizSetID)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate game ID: %w", err)
	}

	g := domain.Game{
		GameID:     id.String(),
		QuizSetID:  req.QuizSetID,
		Phase:      domain.PhaseLobby,
		CreateTime: s.now(),
	}

	if err := s.store.InsertGame(ctx, &g); err != nil {
		return nil, fmt.Errorf("insert game: %w", err)
	}

	tok, err := s.tokens.IssueHost(g.GameID)
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "game: created", "game", g.GameID, "quiz_set", g.QuizSetID)

	return &CreateGameResponse{
		Game:      g,
		HostToken: tok,
		JoinURL:   s.JoinURL(g.GameID),
	}, nil
}

// JoinURL is the payload encoded in the QR code shown in the lobby.
func (s *Service) JoinURL(gameID string) string {
	return s.publicURL + "/play/" + url.PathEscape(gameID)
}

type GetGameRequest struct {
	GameID string
}

// GetGame returns the authoritative state of the game.
func (s *Service) GetGame(ctx context.Context, req GetGameRequest) (*domain.Game, error) {
	return s.store.GetGame(ctx, req.GameID)
}

type GetQuestionsRequest struct {
	GameID string
	// Token is optional. The host sees the correct choices of every question.
	Token string
}

// GetQuestions returns the questions of the game in order. Players get no choices for the
// questions not started yet, and correct choices are hidden until the answer is revealed.
func (s *Service) GetQuestions(ctx context.Context, req GetQuestionsRequest) ([]domain.Question, error) {
	g, err := s.store.GetGame(ctx, req.GameID)
	if err != nil {
		return nil, err
	}

	questions, err := s.store.ListQuestions(ctx, g.QuizSetID)
	if err != nil {
		return nil, err
	}

	if req.Token != "" && s.tokens.AuthorizeHost(req.Token, req.GameID) == nil {
		return questions, nil
	}

	for i := range questions {
		switch order := questions[i].Order; {
		case !started(*g, order):
			questions[i].Choices = nil
		case !revealed(*g, order):
			for j := range questions[i].Choices {
				questions[i].Choices[j].IsCorrect = false
			}
		}
	}

	return questions, nil
}

func started(g domain.Game, order int) bool {
	switch g.Phase {
	case domain.PhaseResult:
		return true
	case domain.PhaseQuiz:
		return order <= g.CurrentQuestionSequence
	default:
		return false
	}
}

func revealed(g domain.Game, order int) bool {
	switch g.Phase {
	case domain.PhaseResult:
		return true
	case domain.PhaseQuiz:
		return order < g.CurrentQuestionSequence || (order == g.CurrentQuestionSequence && g.IsAnswerRevealed)
	default:
		return false
	}
}

type StartGameRequest struct {
	GameID    string
	HostToken string
}

// StartGame moves the game from the lobby to its first question.
func (s *Service) StartGame(ctx context.Context, req StartGameRequest) (*domain.Game, error) {
	if err := s.tokens.AuthorizeHost(req.HostToken, req.GameID); err != nil {
		return nil, err
	}

	return s.transition(ctx, req.GameID, "start", func(g domain.Game, n int) (domain.Game, bool, error) {
		return start(g, n, s.now())
	})
}

type RevealAnswerRequest struct {
	GameID    string
	HostToken string
}

// RevealAnswer locks answers of the current question and exposes the correct choice.
func (s *Service) RevealAnswer(ctx context.Context, req RevealAnswerRequest) (*domain.Game, error) {
	if err := s.tokens.AuthorizeHost(req.HostToken, req.GameID); err != nil {
		return nil, err
	}

	return s.transition(ctx, req.GameID, "reveal", func(g domain.Game, _ int) (domain.Game, bool, error) {
		return reveal(g)
	})
}

// TimeUp reveals question sequence on behalf of the host, it is called when the answer
// window elapses or every participant answered. It is a no-op once the game moved past
// that question.
func (s *Service) TimeUp(ctx context.Context, gameID string, sequence int) (*domain.Game, error) {
	return s.transition(ctx, gameID, "reveal", func(g domain.Game, _ int) (domain.Game, bool, error) {
		if g.Phase == domain.PhaseQuiz && g.CurrentQuestionSequence != sequence {
			return g, false, nil
		}
		return reveal(g)
	})
}

type NextQuestionRequest struct {
	GameID    string
	HostToken string
}

// NextQuestion advances to the next question, or to the result phase after the last one.
func (s *Service) NextQuestion(ctx context.Context, req NextQuestionRequest) (*domain.Game, error) {
	if err := s.tokens.AuthorizeHost(req.HostToken, req.GameID); err != nil {
		return nil, err
	}

	return s.transition(ctx, req.GameID, "next", func(g domain.Game, n int) (domain.Game, bool, error) {
		return next(g, n, s.now())
	})
}

type transitionFunc func(g domain.Game, questionCount int) (domain.Game, bool, error)

// transition applies fn to the stored game with compare-and-set, retrying when another
// writer won the race. A failed transition leaves the stored game untouched.
func (s *Service) transition(ctx context.Context, gameID, name string, fn transitionFunc) (*domain.Game, error) {
	for attempt := 1; ; attempt++ {
		cur, err := s.store.GetGame(ctx, gameID)
		if err != nil {
			return nil, err
		}

		questions, err := s.store.ListQuestions(ctx, cur.QuizSetID)
		if err != nil {
			return nil, fmt.Errorf("list questions: %w", err)
		}

		nxt, changed, err := fn(*cur, len(questions))
		if err != nil {
			return nil, err
		}

		if !changed {
			return cur, nil
		}

		err = s.store.UpdateGame(ctx, *cur, nxt)
		if errors.Is(err, errors.CodeAborted) && attempt < maxTransitionAttempts {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%s game %s: %w", name, gameID, err)
		}

		telemetry.GameTransitions.WithLabelValues(name).Inc()
		slog.InfoContext(ctx, "game: transition applied",
			"game", gameID,
			"transition", name,
			"phase", nxt.Phase,
			"sequence", nxt.CurrentQuestionSequence,
			"revealed", nxt.IsAnswerRevealed,
		)

		s.eb.Publish(ctx, domain.EventGameUpdated{
			Game: nxt,
		})

		return &nxt, nil
	}
}
