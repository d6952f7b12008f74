//go:build integration_test

package demo

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/victornm/livequiz/internal/api"
	"github.com/victornm/livequiz/internal/client"
	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/quiz"
)

const (
	addr = "localhost:9090"
)

// TestQuiz plays a game against a running server: livequiz serve --config config/config.yaml
func TestQuiz(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	c, err := client.New(addr)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	req, err := quiz.LoadFile("../../config/quiz.example.yaml")
	require.NoError(t, err)

	qs, err := c.CreateQuizSet(ctx, req)
	require.NoError(t, err)

	g, err := c.CreateGame(ctx, api.CreateGameRequest{QuizSetID: qs.QuizSet.QuizSetID})
	require.NoError(t, err)
	t.Logf("Game %s created, join at %s", g.Game.GameID, g.JoinURL)

	host := api.HostRequest{GameID: g.Game.GameID, HostToken: g.HostToken}

	w := client.NewWatcher(client.WatcherConfig{
		Client: c,
		GameID: g.Game.GameID,
		OnChange: func(v client.View) {
			if v.Leaderboard != nil {
				t.Logf("leaderboard (final=%t):\n%s", v.Leaderboard.Final, formatLeaderboard(*v.Leaderboard))
			}
		},
	})
	wctx, stop := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(wctx)
	}()
	defer func() {
		stop()
		<-done
	}()

	var players []*client.Player
	for _, u := range []string{"u1", "u2", "u3"} {
		p := client.NewPlayer(c, client.Identity{GameID: g.Game.GameID, Nickname: u})
		require.NoError(t, p.Restore(ctx))
		players = append(players, p)
	}

	_, err = c.StartGame(ctx, host)
	require.NoError(t, err)

	questions, err := c.GetQuestions(ctx, api.GetQuestionsRequest{GameID: g.Game.GameID})
	require.NoError(t, err)

	// For each question, all players answer concurrently and the server reveals it.
	for i := range questions.Questions {
		// Choices are only sent once the question started.
		current, err := c.GetQuestions(ctx, api.GetQuestionsRequest{GameID: g.Game.GameID})
		require.NoError(t, err)

		q := current.Questions[i]
		t.Logf("Starting question %q", q.Body)

		var eg errgroup.Group
		for j, p := range players {
			choice := q.Choices[(i+j)%len(q.Choices)]
			eg.Go(func() error {
				resp, err := p.Answer(ctx, q.QuestionID, choice.ChoiceID)
				if err != nil {
					return fmt.Errorf("player %q submit answer: %w", p.Identity().Nickname, err)
				}

				t.Logf("Player %q answered %q: correct=%t, score=%d", p.Identity().Nickname, choice.Body, resp.Correct, resp.Answer.Score)
				return nil
			})
		}
		require.NoError(t, eg.Wait())

		require.Eventually(t, func() bool {
			v := w.View()
			return v.Game.CurrentQuestionSequence == i && v.Game.IsAnswerRevealed
		}, 10*time.Second, 100*time.Millisecond)

		_, err = c.NextQuestion(ctx, host)
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		return w.View().Game.Phase == domain.PhaseResult
	}, 10*time.Second, 100*time.Millisecond)

	podium, err := c.GetPodium(ctx, api.GetPodiumRequest{GameID: g.Game.GameID})
	require.NoError(t, err)
	t.Logf("podium:\n%s", formatLeaderboard(domain.Leaderboard{Rows: podium.Top}))
}

func formatLeaderboard(l domain.Leaderboard) string {
	var sb strings.Builder
	for i, r := range l.Rows {
		fmt.Fprintf(&sb, "%d. %s: %d\n", i+1, r.Nickname, r.TotalScore)
	}
	return sb.String()
}
