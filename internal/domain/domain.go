package domain

import (
	"time"
)

// Phase is the state of a game.
type Phase string

const (
	PhaseLobby  Phase = "lobby"
	PhaseQuiz   Phase = "quiz"
	PhaseResult Phase = "result"
)

// Rank orders phases by progression, so a snapshot can be compared with another one.
func (p Phase) Rank() int {
	switch p {
	case PhaseLobby:
		return 0
	case PhaseQuiz:
		return 1
	case PhaseResult:
		return 2
	default:
		return -1
	}
}

// QuizSet is a named, ordered collection of questions.
type QuizSet struct {
	QuizSetID  string     `json:"id"`
	Name       string     `json:"name"`
	CreateTime time.Time  `json:"created_at"`
	Questions  []Question `json:"questions,omitempty"`
}

type Question struct {
	QuestionID string   `json:"id"`
	QuizSetID  string   `json:"quiz_set_id"`
	Body       string   `json:"body"`
	ImageURL   string   `json:"image_url,omitempty"`
	Order      int      `json:"order"`
	Choices    []Choice `json:"choices"`
}

// CorrectChoice returns the choice marked as correct.
func (q Question) CorrectChoice() (Choice, bool) {
	for _, c := range q.Choices {
		if c.IsCorrect {
			return c, true
		}
	}

	return Choice{}, false
}

func (q Question) Choice(id string) (Choice, bool) {
	for _, c := range q.Choices {
		if c.ChoiceID == id {
			return c, true
		}
	}

	return Choice{}, false
}

type Choice struct {
	ChoiceID   string `json:"id"`
	QuestionID string `json:"question_id"`
	Body       string `json:"body"`
	IsCorrect  bool   `json:"is_correct"`
}

// Game is one play-through of a quiz set.
type Game struct {
	GameID                  string    `json:"id"`
	QuizSetID               string    `json:"quiz_set_id"`
	Phase                   Phase     `json:"phase"`
	CurrentQuestionSequence int       `json:"current_question_sequence"`
	IsAnswerRevealed        bool      `json:"is_answer_revealed"`
	QuestionStartTime       time.Time `json:"question_started_at"`
	CreateTime              time.Time `json:"created_at"`
}

// AcceptsAnswers reports whether the current question is open for answers.
func (g Game) AcceptsAnswers() bool {
	return g.Phase == PhaseQuiz && !g.IsAnswerRevealed
}

// Before reports whether g is an earlier snapshot than other of the same game.
func (g Game) Before(other Game) bool {
	if g.Phase.Rank() != other.Phase.Rank() {
		return g.Phase.Rank() < other.Phase.Rank()
	}

	if g.Phase != PhaseQuiz {
		return false
	}

	if g.CurrentQuestionSequence != other.CurrentQuestionSequence {
		return g.CurrentQuestionSequence < other.CurrentQuestionSequence
	}

	return !g.IsAnswerRevealed && other.IsAnswerRevealed
}

// Participant is a player registered into a game.
type Participant struct {
	ParticipantID string    `json:"id"`
	GameID        string    `json:"game_id"`
	Nickname      string    `json:"nickname"`
	CreateTime    time.Time `json:"created_at"`
}

// Answer is a participant's response to a question.
type Answer struct {
	AnswerID      string    `json:"id"`
	ParticipantID string    `json:"participant_id"`
	QuestionID    string    `json:"question_id"`
	ChoiceID      string    `json:"choice_id"`
	Score         int       `json:"score"`
	CreateTime    time.Time `json:"created_at"`
}

// LeaderboardRow is a participant's total score within a game.
type LeaderboardRow struct {
	ParticipantID string    `json:"participant_id"`
	Nickname      string    `json:"nickname"`
	TotalScore    int       `json:"total_score"`
	JoinTime      time.Time `json:"joined_at"`
}

// Leaderboard represents a list of participants and their scores within a game.
// The list is sorted by score in descending order, ties by join time then participant ID.
type Leaderboard struct {
	GameID string           `json:"game_id"`
	Rows   []LeaderboardRow `json:"rows"`
	Final  bool             `json:"final"`
}

// Podium splits the leaderboard into the top three and the rest.
func (l Leaderboard) Podium() (top, rest []LeaderboardRow) {
	n := min(3, len(l.Rows))
	return l.Rows[:n], l.Rows[n:]
}

// QuestionStats is the answer histogram of a question within a game.
type QuestionStats struct {
	GameID          string        `json:"game_id"`
	QuestionID      string        `json:"question_id"`
	CorrectChoiceID string        `json:"correct_choice_id"`
	Total           int           `json:"total"`
	Counts          []ChoiceCount `json:"counts"`
}

type ChoiceCount struct {
	ChoiceID string `json:"choice_id"`
	Count    int    `json:"count"`
}
