package domain

const (
	EventNameGameUpdated        = "game.updated"
	EventNameParticipantJoined  = "participant.joined"
	EventNameAnswerSubmitted    = "answer.submitted"
	EventNameLeaderboardUpdated = "leaderboard.updated"
)

type EventGameUpdated struct {
	Game Game
}

func (EventGameUpdated) Name() string { return EventNameGameUpdated }

type EventParticipantJoined struct {
	Participant Participant
}

func (EventParticipantJoined) Name() string { return EventNameParticipantJoined }

type EventAnswerSubmitted struct {
	GameID string
	Answer Answer
}

func (EventAnswerSubmitted) Name() string { return EventNameAnswerSubmitted }

type EventLeaderboardUpdated struct {
	Leaderboard Leaderboard
}

func (EventLeaderboardUpdated) Name() string { return EventNameLeaderboardUpdated }
