package feed_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/event"
	"github.com/victornm/livequiz/internal/feed"
)

func makeFeed(t *testing.T) (*feed.Feed, *event.Bus) {
	t.Helper()

	rs := miniredis.RunT(t)
	rc := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{rs.Addr()},
	})
	t.Cleanup(func() { _ = rc.Close() })

	eb := event.NewBus()
	return feed.New(feed.Config{EventBus: eb, Redis: rc, Prefix: "test"}), eb
}

func receive(t *testing.T, s *feed.Subscription) feed.Change {
	t.Helper()

	select {
	case c, ok := <-s.C():
		require.True(t, ok, "subscription closed")
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("no change received")
		return feed.Change{}
	}
}

func TestFeed_PublishesDomainEvents(t *testing.T) {
	f, eb := makeFeed(t)
	ctx := context.Background()

	s, err := f.Subscribe(ctx, "g1")
	require.NoError(t, err)
	defer s.Close()

	g := domain.Game{GameID: "g1", Phase: domain.PhaseQuiz, CurrentQuestionSequence: 1}
	eb.Publish(ctx, domain.EventGameUpdated{Game: g})

	c := receive(t, s)
	assert.Equal(t, feed.TableGames, c.Table)
	assert.Equal(t, feed.TypeUpdate, c.Type)
	assert.Equal(t, "g1", c.GameID)

	var got domain.Game
	require.NoError(t, c.Decode(&got))
	assert.Equal(t, g, got)

	eb.Publish(ctx, domain.EventParticipantJoined{Participant: domain.Participant{ParticipantID: "p1", GameID: "g1", Nickname: "alice"}})
	c = receive(t, s)
	assert.Equal(t, feed.TableParticipants, c.Table)
	assert.Equal(t, feed.TypeInsert, c.Type)

	eb.Stop()
}

func TestFeed_SubscriptionIsScopedToGame(t *testing.T) {
	f, _ := makeFeed(t)
	ctx := context.Background()

	s, err := f.Subscribe(ctx, "g1")
	require.NoError(t, err)
	defer s.Close()

	other, err := feed.NewChange(feed.TableGames, feed.TypeUpdate, "g2", domain.Game{GameID: "g2"})
	require.NoError(t, err)
	require.NoError(t, f.Publish(ctx, other))

	mine, err := feed.NewChange(feed.TableGames, feed.TypeUpdate, "g1", domain.Game{GameID: "g1"})
	require.NoError(t, err)
	require.NoError(t, f.Publish(ctx, mine))

	assert.Equal(t, "g1", receive(t, s).GameID)
}

func TestFeed_Filters(t *testing.T) {
	f, _ := makeFeed(t)
	ctx := context.Background()

	s, err := f.Subscribe(ctx, "g1", feed.Filter{Table: feed.TableAnswers, Type: feed.TypeInsert, Field: "question_id", Value: "q2"})
	require.NoError(t, err)
	defer s.Close()

	for _, q := range []string{"q1", "q2"} {
		c, err := feed.NewChange(feed.TableAnswers, feed.TypeInsert, "g1", domain.Answer{AnswerID: "a-" + q, QuestionID: q})
		require.NoError(t, err)
		require.NoError(t, f.Publish(ctx, c))
	}

	var a domain.Answer
	require.NoError(t, receive(t, s).Decode(&a))
	assert.Equal(t, "a-q2", a.AnswerID)
}

func TestFeed_Close(t *testing.T) {
	f, _ := makeFeed(t)

	s, err := f.Subscribe(context.Background(), "g1")
	require.NoError(t, err)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "close is idempotent")

	select {
	case _, ok := <-s.C():
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel not closed")
	}
}

func TestFilter_Match(t *testing.T) {
	answer, err := feed.NewChange(feed.TableAnswers, feed.TypeInsert, "g1", domain.Answer{QuestionID: "q1", Score: 500})
	require.NoError(t, err)

	tests := map[string]struct {
		filter feed.Filter
		want   bool
	}{
		"empty filter":        {filter: feed.Filter{}, want: true},
		"table":               {filter: feed.Filter{Table: feed.TableAnswers}, want: true},
		"other table":         {filter: feed.Filter{Table: feed.TableGames}, want: false},
		"other type":          {filter: feed.Filter{Table: feed.TableAnswers, Type: feed.TypeUpdate}, want: false},
		"field equal":         {filter: feed.Filter{Field: "question_id", Value: "q1"}, want: true},
		"field not equal":     {filter: feed.Filter{Field: "question_id", Value: "q2"}, want: false},
		"numeric field equal": {filter: feed.Filter{Field: "score", Value: "500"}, want: true},
		"unknown field":       {filter: feed.Filter{Field: "nope", Value: "q1"}, want: false},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Match(answer))
		})
	}

	assert.True(t, feed.MatchAny(nil, answer))
	assert.True(t, feed.MatchAny([]feed.Filter{{Table: feed.TableGames}, {Table: feed.TableAnswers}}, answer))
}
