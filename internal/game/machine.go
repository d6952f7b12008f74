package game

import (
	"time"

	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/errors"
)

// Transitions of the session state machine:
//
//	lobby --start--> quiz(0, hidden) --reveal--> quiz(n, revealed) --next--> quiz(n+1, hidden)
//	                                                              \--next on last--> result
//
// Each returns the next state and whether it differs from g. They never mutate g.

func failedPrecondition(format string, args ...any) error {
	return errors.New(errors.CodeFailedPrecondition, errors.WithMessagef(format, args...))
}

func start(g domain.Game, questionCount int, now time.Time) (domain.Game, bool, error) {
	if g.Phase != domain.PhaseLobby {
		return g, false, failedPrecondition("game %s already started: phase=%s", g.GameID, g.Phase)
	}

	if questionCount == 0 {
		return g, false, failedPrecondition("game %s has no questions", g.GameID)
	}

	g.Phase = domain.PhaseQuiz
	g.CurrentQuestionSequence = 0
	g.IsAnswerRevealed = false
	g.QuestionStartTime = now
	return g, true, nil
}

// reveal is idempotent: revealing a revealed question is not a change.
func reveal(g domain.Game) (domain.Game, bool, error) {
	if g.Phase != domain.PhaseQuiz {
		return g, false, failedPrecondition("game %s has no question to reveal: phase=%s", g.GameID, g.Phase)
	}

	if g.IsAnswerRevealed {
		return g, false, nil
	}

	g.IsAnswerRevealed = true
	return g, true, nil
}

func next(g domain.Game, questionCount int, now time.Time) (domain.Game, bool, error) {
	if g.Phase != domain.PhaseQuiz {
		return g, false, failedPrecondition("game %s is not running: phase=%s", g.GameID, g.Phase)
	}

	if !g.IsAnswerRevealed {
		return g, false, failedPrecondition("answers of question %d are not revealed yet", g.CurrentQuestionSequence)
	}

	if g.CurrentQuestionSequence+1 >= questionCount {
		g.Phase = domain.PhaseResult
		return g, true, nil
	}

	g.CurrentQuestionSequence++
	g.IsAnswerRevealed = false
	g.QuestionStartTime = now
	return g, true, nil
}
