// Package store defines the row store the services persist to.
//
// Implementations enforce the uniqueness constraints of the schema and report
// violations as errors.CodeAlreadyExists, missing rows as errors.CodeNotFound and
// lost compare-and-set races as errors.CodeAborted.
package store

import (
	"context"

	"github.com/victornm/livequiz/internal/domain"
)

type QuizSets interface {
	// InsertQuizSet stores the quiz set with its questions and choices.
	InsertQuizSet(ctx context.Context, qs *domain.QuizSet) error
	// GetQuizSet returns the quiz set without its questions.
	GetQuizSet(ctx context.Context, quizSetID string) (*domain.QuizSet, error)
	ListQuizSets(ctx context.Context) ([]domain.QuizSet, error)
	// ListQuestions returns the questions of a quiz set with their choices, ordered by Order.
	ListQuestions(ctx context.Context, quizSetID string) ([]domain.Question, error)
}

type Games interface {
	InsertGame(ctx context.Context, g *domain.Game) error
	GetGame(ctx context.Context, gameID string) (*domain.Game, error)
	// UpdateGame replaces the state of prev with next, only if the stored state still equals prev.
	UpdateGame(ctx context.Context, prev, next domain.Game) error
	// ListOpenGames returns the games in the quiz phase whose current question is not revealed, by game ID.
	ListOpenGames(ctx context.Context) ([]domain.Game, error)
}

type Participants interface {
	// InsertParticipant is unique on (game, nickname).
	InsertParticipant(ctx context.Context, p *domain.Participant) error
	GetParticipant(ctx context.Context, participantID string) (*domain.Participant, error)
	// ListParticipants returns the participants of a game by join order.
	ListParticipants(ctx context.Context, gameID string) ([]domain.Participant, error)
	CountParticipants(ctx context.Context, gameID string) (int, error)
}

type Answers interface {
	// InsertAnswer is unique on (participant, question).
	InsertAnswer(ctx context.Context, a *domain.Answer) error
	// ListAnswers returns the answers given in a game to a question.
	ListAnswers(ctx context.Context, gameID, questionID string) ([]domain.Answer, error)
	// GameResults sums the scores of every participant of the game, participants without answers included.
	GameResults(ctx context.Context, gameID string) ([]domain.LeaderboardRow, error)
}

type Store interface {
	QuizSets
	Games
	Participants
	Answers
}
