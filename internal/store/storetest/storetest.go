// Package storetest holds the behaviour every store.Store implementation must share.
package storetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/errors"
	"github.com/victornm/livequiz/internal/store"
)

var epoch = time.Date(2024, 11, 22, 10, 0, 0, 0, time.UTC)

// Run runs the contract tests against stores created by newStore, one per test.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	tests := map[string]func(t *testing.T, s store.Store){
		"quiz set questions are returned in order with their choices": testQuestions,
		"game update is a compare-and-set":                            testUpdateGame,
		"open games are the unrevealed questions":                     testListOpenGames,
		"nickname is unique per game":                                 testNicknameUnique,
		"at most one answer per participant and question":             testAnswerUnique,
		"game results include participants without answers":           testGameResults,
		"missing rows are reported as not found":                      testNotFound,
	}

	for name, fn := range tests {
		t.Run(name, func(t *testing.T) {
			fn(t, newStore(t))
		})
	}
}

// Seed inserts a quiz set with n questions of 4 choices each, the first choice being correct.
func Seed(t *testing.T, s store.Store, id string, n int) *domain.QuizSet {
	t.Helper()

	qs := &domain.QuizSet{QuizSetID: id, Name: "quiz " + id, CreateTime: epoch}
	for i := n - 1; i >= 0; i-- {
		qid := fmt.Sprintf("%s-q%d", id, i)
		q := domain.Question{QuestionID: qid, QuizSetID: id, Body: fmt.Sprintf("question %d", i), Order: i}
		for j := 0; j < 4; j++ {
			q.Choices = append(q.Choices, domain.Choice{
				ChoiceID:   fmt.Sprintf("%s-c%d", qid, j),
				QuestionID: qid,
				Body:       fmt.Sprintf("choice %d", j),
				IsCorrect:  j == 0,
			})
		}
		qs.Questions = append(qs.Questions, q)
	}

	require.NoError(t, s.InsertQuizSet(context.Background(), qs))
	return qs
}

func seedGame(t *testing.T, s store.Store, id, quizSetID string) domain.Game {
	t.Helper()

	g := domain.Game{GameID: id, QuizSetID: quizSetID, Phase: domain.PhaseLobby, CreateTime: epoch}
	require.NoError(t, s.InsertGame(context.Background(), &g))
	return g
}

func seedParticipant(t *testing.T, s store.Store, id, gameID, nickname string, joined time.Time) domain.Participant {
	t.Helper()

	p := domain.Participant{ParticipantID: id, GameID: gameID, Nickname: nickname, CreateTime: joined}
	require.NoError(t, s.InsertParticipant(context.Background(), &p))
	return p
}

func testQuestions(t *testing.T, s store.Store) {
	ctx := context.Background()
	Seed(t, s, "qs1", 3)

	qs, err := s.ListQuestions(ctx, "qs1")
	require.NoError(t, err)
	require.Len(t, qs, 3)

	for i, q := range qs {
		assert.Equal(t, i, q.Order)
		require.Len(t, q.Choices, 4)
		c, ok := q.CorrectChoice()
		require.True(t, ok)
		assert.Equal(t, q.QuestionID+"-c0", c.ChoiceID)
	}

	sets, err := s.ListQuizSets(ctx)
	require.NoError(t, err)
	require.Len(t, sets, 1)
	assert.Equal(t, "quiz qs1", sets[0].Name)
}

func testUpdateGame(t *testing.T, s store.Store) {
	ctx := context.Background()
	Seed(t, s, "qs1", 2)
	prev := seedGame(t, s, "g1", "qs1")

	next := prev
	next.Phase = domain.PhaseQuiz
	next.QuestionStartTime = epoch.Add(time.Minute)
	require.NoError(t, s.UpdateGame(ctx, prev, next))

	err := s.UpdateGame(ctx, prev, next)
	assert.True(t, errors.Is(err, errors.CodeAborted), "stale previous state must be rejected: %v", err)

	got, err := s.GetGame(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseQuiz, got.Phase)
	assert.Equal(t, 0, got.CurrentQuestionSequence)
	assert.False(t, got.IsAnswerRevealed)
	assert.True(t, next.QuestionStartTime.Equal(got.QuestionStartTime))
}

func testListOpenGames(t *testing.T, s store.Store) {
	ctx := context.Background()
	Seed(t, s, "qs1", 2)

	open := func(id string, revealed bool) domain.Game {
		prev := seedGame(t, s, id, "qs1")
		next := prev
		next.Phase = domain.PhaseQuiz
		next.QuestionStartTime = epoch.Add(time.Minute)
		require.NoError(t, s.UpdateGame(ctx, prev, next))

		if revealed {
			prev = next
			next.IsAnswerRevealed = true
			require.NoError(t, s.UpdateGame(ctx, prev, next))
		}
		return next
	}

	seedGame(t, s, "g0", "qs1")
	open("g2", false)
	open("g1", false)
	open("g3", true)

	got, err := s.ListOpenGames(ctx)
	require.NoError(t, err)

	var ids []string
	for _, g := range got {
		ids = append(ids, g.GameID)
		assert.Equal(t, domain.PhaseQuiz, g.Phase)
		assert.True(t, epoch.Add(time.Minute).Equal(g.QuestionStartTime))
	}
	assert.Equal(t, []string{"g1", "g2"}, ids)
}

func testNicknameUnique(t *testing.T, s store.Store) {
	Seed(t, s, "qs1", 1)
	seedGame(t, s, "g1", "qs1")
	seedGame(t, s, "g2", "qs1")

	seedParticipant(t, s, "p1", "g1", "alice", epoch)

	err := s.InsertParticipant(context.Background(), &domain.Participant{ParticipantID: "p2", GameID: "g1", Nickname: "alice", CreateTime: epoch})
	assert.True(t, errors.Is(err, errors.CodeAlreadyExists), "duplicate nickname: %v", err)

	seedParticipant(t, s, "p3", "g2", "alice", epoch)
}

func testAnswerUnique(t *testing.T, s store.Store) {
	ctx := context.Background()
	Seed(t, s, "qs1", 1)
	seedGame(t, s, "g1", "qs1")
	seedParticipant(t, s, "p1", "g1", "alice", epoch)

	first := domain.Answer{AnswerID: "a1", ParticipantID: "p1", QuestionID: "qs1-q0", ChoiceID: "qs1-q0-c0", Score: 900, CreateTime: epoch}
	require.NoError(t, s.InsertAnswer(ctx, &first))

	again := domain.Answer{AnswerID: "a2", ParticipantID: "p1", QuestionID: "qs1-q0", ChoiceID: "qs1-q0-c1", Score: 0, CreateTime: epoch}
	err := s.InsertAnswer(ctx, &again)
	assert.True(t, errors.Is(err, errors.CodeAlreadyExists), "duplicate answer: %v", err)

	answers, err := s.ListAnswers(ctx, "g1", "qs1-q0")
	require.NoError(t, err)
	require.Len(t, answers, 1)
	assert.Equal(t, 900, answers[0].Score)
	assert.Equal(t, "qs1-q0-c0", answers[0].ChoiceID)
}

func testGameResults(t *testing.T, s store.Store) {
	ctx := context.Background()
	Seed(t, s, "qs1", 2)
	seedGame(t, s, "g1", "qs1")
	seedGame(t, s, "g2", "qs1")

	seedParticipant(t, s, "p1", "g1", "alice", epoch)
	seedParticipant(t, s, "p2", "g1", "bob", epoch.Add(time.Second))
	seedParticipant(t, s, "p3", "g2", "carol", epoch)

	for _, a := range []domain.Answer{
		{AnswerID: "a1", ParticipantID: "p1", QuestionID: "qs1-q0", ChoiceID: "qs1-q0-c0", Score: 700},
		{AnswerID: "a2", ParticipantID: "p1", QuestionID: "qs1-q1", ChoiceID: "qs1-q1-c0", Score: 300},
		{AnswerID: "a3", ParticipantID: "p3", QuestionID: "qs1-q0", ChoiceID: "qs1-q0-c0", Score: 999},
	} {
		a.CreateTime = epoch
		require.NoError(t, s.InsertAnswer(ctx, &a))
	}

	rows, err := s.GameResults(ctx, "g1")
	require.NoError(t, err)
	require.Len(t, rows, 2)

	byID := make(map[string]domain.LeaderboardRow)
	for _, r := range rows {
		byID[r.ParticipantID] = r
	}
	assert.Equal(t, 1000, byID["p1"].TotalScore)
	assert.Equal(t, "alice", byID["p1"].Nickname)
	assert.Equal(t, 0, byID["p2"].TotalScore)
	assert.Equal(t, "bob", byID["p2"].Nickname)

	n, err := s.CountParticipants(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func testNotFound(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, err := s.GetGame(ctx, "nope")
	assert.True(t, errors.Is(err, errors.CodeNotFound), "game: %v", err)

	_, err = s.GetParticipant(ctx, "nope")
	assert.True(t, errors.Is(err, errors.CodeNotFound), "participant: %v", err)

	_, err = s.GetQuizSet(ctx, "nope")
	assert.True(t, errors.Is(err, errors.CodeNotFound), "quiz set: %v", err)
}
