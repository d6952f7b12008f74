package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/event"
	"github.com/victornm/livequiz/internal/telemetry"
)

const defaultBufferSize = 64

type Config struct {
	EventBus *event.Bus
	Redis    redis.UniversalClient
	Prefix   string
	// BufferSize of subscription channels. Changes are dropped for slow subscribers.
	BufferSize int
}

// Feed publishes the changes of the domain events it receives from the bus, and lets
// watchers subscribe to the changes of a game.
type Feed struct {
	redis  redis.UniversalClient
	prefix string
	buffer int
}

func New(c Config) *Feed {
	f := &Feed{
		redis:  c.Redis,
		prefix: c.Prefix,
		buffer: c.BufferSize,
	}

	if f.buffer <= 0 {
		f.buffer = defaultBufferSize
	}

	c.EventBus.Subscribe(domain.EventNameGameUpdated, func(ctx context.Context, e event.Event) error {
		g := e.(domain.EventGameUpdated).Game
		return f.publishRow(ctx, TableGames, TypeUpdate, g.GameID, g)
	})

	c.EventBus.Subscribe(domain.EventNameParticipantJoined, func(ctx context.Context, e event.Event) error {
		p := e.(domain.EventParticipantJoined).Participant
		return f.publishRow(ctx, TableParticipants, TypeInsert, p.GameID, p)
	})

	c.EventBus.Subscribe(domain.EventNameAnswerSubmitted, func(ctx context.Context, e event.Event) error {
		a := e.(domain.EventAnswerSubmitted)
		return f.publishRow(ctx, TableAnswers, TypeInsert, a.GameID, a.Answer)
	})

	c.EventBus.Subscribe(domain.EventNameLeaderboardUpdated, func(ctx context.Context, e event.Event) error {
		l := e.(domain.EventLeaderboardUpdated).Leaderboard
		return f.publishRow(ctx, TableLeaderboard, TypeUpdate, l.GameID, l)
	})

	return f
}

func (f *Feed) publishRow(ctx context.Context, table Table, typ Type, gameID string, row any) error {
	c, err := NewChange(table, typ, gameID, row)
	if err != nil {
		return err
	}

	return f.Publish(ctx, c)
}

// Publish sends the change to the subscribers of its game.
func (f *Feed) Publish(ctx context.Context, c Change) error {
	b, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("feed: marshal change: %w", err)
	}

	if err := f.redis.Publish(ctx, f.channel(c.GameID), b).Err(); err != nil {
		return fmt.Errorf("feed: publish %s/%s: %w", c.Table, c.Type, err)
	}

	telemetry.FeedChanges.WithLabelValues(string(c.Table), string(c.Type)).Inc()
	return nil
}

func (f *Feed) channel(gameID string) string {
	return fmt.Sprintf("%s:game:%s", f.prefix, gameID)
}

// Subscription delivers the changes of a game matching its filters until closed.
type Subscription struct {
	c    chan Change
	ps   *redis.PubSub
	done chan struct{}
	once sync.Once
}

// Subscribe starts receiving the changes of a game. Changes published before Subscribe
// returns are not delivered. The caller must Close the subscription.
func (f *Feed) Subscribe(ctx context.Context, gameID string, filters ...Filter) (*Subscription, error) {
	ps := f.redis.Subscribe(ctx, f.channel(gameID))

	// Wait for the confirmation so no change published after this call is missed.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("feed: subscribe game %s: %w", gameID, err)
	}

	s := &Subscription{
		c:    make(chan Change, f.buffer),
		ps:   ps,
		done: make(chan struct{}),
	}

	telemetry.FeedSubscribers.Inc()
	go s.run(ctx, gameID, filters)

	return s, nil
}

func (s *Subscription) run(ctx context.Context, gameID string, filters []Filter) {
	defer close(s.c)

	msgs := s.ps.Channel()
	for {
		select {
		case <-s.done:
			return
		case m, ok := <-msgs:
			if !ok {
				return
			}

			var c Change
			if err := json.Unmarshal([]byte(m.Payload), &c); err != nil {
				slog.WarnContext(ctx, "feed: drop malformed change", "game", gameID, "error", err)
				continue
			}

			if !MatchAny(filters, c) {
				continue
			}

			select {
			case s.c <- c:
			case <-s.done:
				return
			default:
				slog.WarnContext(ctx, "feed: drop change for slow subscriber", "game", gameID, "table", c.Table)
			}
		}
	}
}

// C is closed once the subscription is closed.
func (s *Subscription) C() <-chan Change {
	return s.c
}

// Close retires the subscription. It is safe to call more than once.
func (s *Subscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.ps.Close()
		telemetry.FeedSubscribers.Dec()
	})

	return err
}
