package api

import (
	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/feed"
	"github.com/victornm/livequiz/internal/quiz"
)

type (
	CreateQuizSetRequest = quiz.CreateQuizSetRequest

	CreateQuizSetResponse struct {
		QuizSet domain.QuizSet `json:"quiz_set"`
	}

	ListQuizSetsRequest struct{}

	ListQuizSetsResponse struct {
		QuizSets []domain.QuizSet `json:"quiz_sets"`
	}

	CreateGameRequest struct {
		QuizSetID string `json:"quiz_set_id"`
	}

	CreateGameResponse struct {
		Game      domain.Game `json:"game"`
		HostToken string      `json:"host_token"`
		JoinURL   string      `json:"join_url"`
	}

	// HostRequest drives the state machine of a game.
	HostRequest struct {
		GameID    string `json:"game_id"`
		HostToken string `json:"host_token"`
	}

	GetGameRequest struct {
		GameID string `json:"game_id"`
	}

	GameResponse struct {
		Game domain.Game `json:"game"`
	}

	GetQuestionsRequest struct {
		GameID string `json:"game_id"`
		Token  string `json:"token,omitempty"`
	}

	GetQuestionsResponse struct {
		Questions []domain.Question `json:"questions"`
	}

	JoinRequest struct {
		GameID   string `json:"game_id"`
		Nickname string `json:"nickname"`
	}

	JoinResponse struct {
		Participant domain.Participant `json:"participant"`
		Token       string             `json:"token"`
	}

	RecoverRequest struct {
		Token string `json:"token"`
	}

	RecoverResponse struct {
		Participant domain.Participant `json:"participant"`
	}

	ListParticipantsRequest struct {
		GameID string `json:"game_id"`
	}

	ListParticipantsResponse struct {
		Participants []domain.Participant `json:"participants"`
	}

	SubmitAnswerRequest struct {
		Token      string `json:"token"`
		QuestionID string `json:"question_id"`
		ChoiceID   string `json:"choice_id"`
	}

	SubmitAnswerResponse struct {
		Answer  domain.Answer `json:"answer"`
		Correct bool          `json:"correct"`
	}

	GetQuestionStatsRequest struct {
		GameID     string `json:"game_id"`
		QuestionID string `json:"question_id"`
		HostToken  string `json:"host_token"`
	}

	GetQuestionStatsResponse struct {
		Stats domain.QuestionStats `json:"stats"`
	}

	GetLeaderboardRequest struct {
		GameID string `json:"game_id"`
		Limit  int    `json:"limit,omitempty"`
	}

	GetLeaderboardResponse struct {
		Leaderboard domain.Leaderboard `json:"leaderboard"`
	}

	GetPodiumRequest struct {
		GameID string `json:"game_id"`
	}

	GetPodiumResponse struct {
		Top  []domain.LeaderboardRow `json:"top"`
		Rest []domain.LeaderboardRow `json:"rest"`
	}

	WatchRequest struct {
		GameID  string        `json:"game_id"`
		Filters []feed.Filter `json:"filters,omitempty"`
	}
)
