package leaderboard

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/event"
	"github.com/victornm/livequiz/internal/store"
)

const (
	DefaultTopN = 10

	publishedTTL = 24 * time.Hour
)

type Store interface {
	store.Games
	store.Answers
}

type Config struct {
	EventBus *event.Bus
	Store    Store
	Redis    redis.UniversalClient
	Prefix   string
	// TopN is the number of rows published after each reveal. The final leaderboard is published in full.
	TopN int
}

// Service aggregates the answer ledger into leaderboards. Leaderboards are never cached,
// every read sums the answers again.
type Service struct {
	eb     *event.Bus
	store  Store
	redis  redis.UniversalClient
	prefix string
	topN   int
}

func NewService(c Config) *Service {
	s := &Service{
		eb:     c.EventBus,
		store:  c.Store,
		redis:  c.Redis,
		prefix: c.Prefix,
		topN:   c.TopN,
	}

	if s.topN <= 0 {
		s.topN = DefaultTopN
	}

	s.eb.Subscribe(domain.EventNameGameUpdated, func(ctx context.Context, e event.Event) error {
		return s.OnGameUpdated(ctx, e.(domain.EventGameUpdated))
	})

	return s
}

type GetLeaderboardRequest struct {
	GameID string
	// Limit keeps the first rows only, zero means every participant.
	Limit int
}

// GetLeaderboard returns the participants of a game ranked by total score, ties broken by
// join time then participant ID. Participants without answers are included with 0.
func (s *Service) GetLeaderboard(ctx context.Context, req GetLeaderboardRequest) (*domain.Leaderboard, error) {
	g, err := s.store.GetGame(ctx, req.GameID)
	if err != nil {
		return nil, err
	}

	return s.leaderboard(ctx, *g, req.Limit)
}

func (s *Service) leaderboard(ctx context.Context, g domain.Game, limit int) (*domain.Leaderboard, error) {
	rows, err := s.store.GameResults(ctx, g.GameID)
	if err != nil {
		return nil, fmt.Errorf("get game results: %w", err)
	}

	Rank(rows)

	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}

	return &domain.Leaderboard{
		GameID: g.GameID,
		Rows:   rows,
		Final:  g.Phase == domain.PhaseResult,
	}, nil
}

// Rank sorts rows in leaderboard order.
func Rank(rows []domain.LeaderboardRow) {
	slices.SortStableFunc(rows, func(a, b domain.LeaderboardRow) int {
		if c := cmp.Compare(b.TotalScore, a.TotalScore); c != 0 {
			return c
		}

		if c := a.JoinTime.Compare(b.JoinTime); c != 0 {
			return c
		}

		return cmp.Compare(a.ParticipantID, b.ParticipantID)
	})
}

type GetPodiumRequest struct {
	GameID string
}

type Podium struct {
	Top  []domain.LeaderboardRow
	Rest []domain.LeaderboardRow
}

// GetPodium splits the leaderboard for the results screen.
func (s *Service) GetPodium(ctx context.Context, req GetPodiumRequest) (*Podium, error) {
	l, err := s.GetLeaderboard(ctx, GetLeaderboardRequest{GameID: req.GameID})
	if err != nil {
		return nil, err
	}

	top, rest := l.Podium()
	return &Podium{Top: top, Rest: rest}, nil
}

// OnGameUpdated publishes the provisional leaderboard when a question is revealed and the
// final one when the game ends. Each (game, question, phase) is published once, across
// every instance sharing the Redis.
func (s *Service) OnGameUpdated(ctx context.Context, e domain.EventGameUpdated) error {
	g := e.Game

	var (
		kind  string
		limit int
	)
	switch {
	case g.Phase == domain.PhaseResult:
		kind = "final"
	case g.Phase == domain.PhaseQuiz && g.IsAnswerRevealed:
		kind, limit = "reveal", s.topN
	default:
		return nil
	}

	// The key is claimed only once the leaderboard is computed, a failed computation must be retried.
	l, err := s.leaderboard(ctx, g, limit)
	if err != nil {
		return fmt.Errorf("compute leaderboard failed: game=%s: %w", g.GameID, err)
	}

	ok, err := s.redis.SetNX(ctx, s.publishedKey(g, kind), time.Now().UnixMilli(), publishedTTL).Result()
	if err != nil {
		return fmt.Errorf("setnx: %w", err)
	}

	if !ok {
		slog.DebugContext(ctx, "leaderboard: already published", "game", g.GameID, "sequence", g.CurrentQuestionSequence, "kind", kind)
		return nil
	}

	s.eb.Publish(ctx, domain.EventLeaderboardUpdated{
		Leaderboard: *l,
	})

	return nil
}

func (s *Service) publishedKey(g domain.Game, kind string) string {
	return fmt.Sprintf("%s:game:%s:leaderboard:%d:%s", s.prefix, g.GameID, g.CurrentQuestionSequence, kind)
}
