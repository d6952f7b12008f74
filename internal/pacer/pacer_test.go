package pacer_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/livequiz/internal/answer"
	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/event"
	"github.com/victornm/livequiz/internal/game"
	"github.com/victornm/livequiz/internal/pacer"
	"github.com/victornm/livequiz/internal/participant"
	"github.com/victornm/livequiz/internal/store/memory"
	"github.com/victornm/livequiz/internal/store/storetest"
	"github.com/victornm/livequiz/internal/token"
)

type fixture struct {
	store   *memory.Store
	games   *game.Service
	answers *answer.Service
	players *participant.Service
	pacer   *pacer.Pacer
	gameID  string
	host    string
}

func makeFixture(t *testing.T, window time.Duration) *fixture {
	t.Helper()

	eb := event.NewBus()
	tokens := token.NewIssuer(token.Config{Secret: "test"})

	f := &fixture{store: memory.New()}
	storetest.Seed(t, f.store, "qs1", 2)

	f.games = game.NewService(game.Config{EventBus: eb, Store: f.store, Tokens: tokens})
	f.answers = answer.NewService(answer.Config{EventBus: eb, Store: f.store, Tokens: tokens, AnswerWindow: window})
	f.players = participant.NewService(participant.Config{EventBus: eb, Store: f.store, Tokens: tokens})
	f.pacer = pacer.New(pacer.Config{
		EventBus:     eb,
		Store:        f.store,
		Games:        f.games,
		AnswerWindow: window,
	})

	t.Cleanup(func() {
		f.pacer.Stop()
		eb.Stop()
	})

	resp, err := f.games.CreateGame(context.Background(), game.CreateGameRequest{QuizSetID: "qs1"})
	require.NoError(t, err)
	f.gameID, f.host = resp.Game.GameID, resp.HostToken

	return f
}

func (f *fixture) join(t *testing.T, nickname string) string {
	t.Helper()
	resp, err := f.players.Join(context.Background(), participant.JoinRequest{GameID: f.gameID, Nickname: nickname})
	require.NoError(t, err)
	return resp.Token
}

func (f *fixture) start(t *testing.T) {
	t.Helper()
	_, err := f.games.StartGame(context.Background(), game.StartGameRequest{GameID: f.gameID, HostToken: f.host})
	require.NoError(t, err)
}

func (f *fixture) answer(t *testing.T, tok, questionID string) {
	t.Helper()
	_, err := f.answers.SubmitAnswer(context.Background(), answer.SubmitAnswerRequest{Token: tok, QuestionID: questionID, ChoiceID: questionID + "-c0"})
	require.NoError(t, err)
}

func (f *fixture) game(t *testing.T) domain.Game {
	t.Helper()
	g, err := f.store.GetGame(context.Background(), f.gameID)
	require.NoError(t, err)
	return *g
}

func (f *fixture) waitTracking(t *testing.T, questionID string) {
	t.Helper()
	require.Eventually(t, func() bool {
		q, ok := f.pacer.Tracking(f.gameID)
		return ok && q == questionID
	}, 2*time.Second, 5*time.Millisecond, "pacer should track %s", questionID)
}

func TestPacer_RevealsWhenEveryoneAnswered(t *testing.T) {
	f := makeFixture(t, time.Hour)
	p1, p2 := f.join(t, "alice"), f.join(t, "bob")
	f.start(t)
	f.waitTracking(t, "qs1-q0")

	f.answer(t, p1, "qs1-q0")

	time.Sleep(50 * time.Millisecond)
	assert.False(t, f.game(t).IsAnswerRevealed, "one participant has not answered yet")

	f.answer(t, p2, "qs1-q0")

	require.Eventually(t, func() bool {
		return f.game(t).IsAnswerRevealed
	}, 2*time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		_, ok := f.pacer.Tracking(f.gameID)
		return !ok
	}, time.Second, 5*time.Millisecond, "tracker is retired after the reveal")
}

func TestPacer_RevealsWhenTimeIsUp(t *testing.T) {
	f := makeFixture(t, 100*time.Millisecond)
	f.join(t, "alice")
	f.start(t)

	require.Eventually(t, func() bool {
		return f.game(t).IsAnswerRevealed
	}, 2*time.Second, 5*time.Millisecond)
}

func TestPacer_WithoutParticipantsWaitsForTheTimer(t *testing.T) {
	f := makeFixture(t, 200*time.Millisecond)
	f.start(t)
	f.waitTracking(t, "qs1-q0")

	assert.False(t, f.game(t).IsAnswerRevealed)

	require.Eventually(t, func() bool {
		return f.game(t).IsAnswerRevealed
	}, 2*time.Second, 5*time.Millisecond)
}

func TestPacer_TracksTheNextQuestion(t *testing.T) {
	f := makeFixture(t, time.Hour)
	p1 := f.join(t, "alice")
	f.start(t)
	f.waitTracking(t, "qs1-q0")

	f.answer(t, p1, "qs1-q0")
	require.Eventually(t, func() bool {
		return f.game(t).IsAnswerRevealed
	}, 2*time.Second, 5*time.Millisecond)

	_, err := f.games.NextQuestion(context.Background(), game.NextQuestionRequest{GameID: f.gameID, HostToken: f.host})
	require.NoError(t, err)
	f.waitTracking(t, "qs1-q1")

	g := f.game(t)
	assert.Equal(t, 1, g.CurrentQuestionSequence)
	assert.False(t, g.IsAnswerRevealed)

	f.answer(t, p1, "qs1-q1")
	require.Eventually(t, func() bool {
		return f.game(t).IsAnswerRevealed
	}, 2*time.Second, 5*time.Millisecond)
}

func TestPacer_HostRevealRetiresTheTracker(t *testing.T) {
	f := makeFixture(t, time.Hour)
	f.join(t, "alice")
	f.start(t)
	f.waitTracking(t, "qs1-q0")

	_, err := f.games.RevealAnswer(context.Background(), game.RevealAnswerRequest{GameID: f.gameID, HostToken: f.host})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, ok := f.pacer.Tracking(f.gameID)
		return !ok
	}, 2*time.Second, 5*time.Millisecond)
}

func TestPacer_ResumesOpenQuestions(t *testing.T) {
	ctx := context.Background()

	st := memory.New()
	storetest.Seed(t, st, "qs1", 2)

	// Left open by a previous run, the answer window is already over.
	lobby := domain.Game{GameID: "g1", QuizSetID: "qs1", Phase: domain.PhaseLobby}
	require.NoError(t, st.InsertGame(ctx, &lobby))
	open := lobby
	open.Phase = domain.PhaseQuiz
	open.QuestionStartTime = time.Now().Add(-2 * time.Hour)
	require.NoError(t, st.UpdateGame(ctx, lobby, open))

	eb := event.NewBus()
	p := pacer.New(pacer.Config{
		EventBus:     eb,
		Store:        st,
		Games:        game.NewService(game.Config{EventBus: eb, Store: st, Tokens: token.NewIssuer(token.Config{Secret: "test"})}),
		AnswerWindow: time.Hour,
	})
	t.Cleanup(func() {
		p.Stop()
		eb.Stop()
	})

	_, ok := p.Tracking("g1")
	require.False(t, ok, "nothing is tracked before resuming")

	require.NoError(t, p.Resume(ctx))

	require.Eventually(t, func() bool {
		g, err := st.GetGame(ctx, "g1")
		return err == nil && g.IsAnswerRevealed
	}, 2*time.Second, 5*time.Millisecond)
}
