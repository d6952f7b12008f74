package api

import (
	"context"
	"log/slog"

	"google.golang.org/grpc"

	"github.com/victornm/livequiz/internal/answer"
	"github.com/victornm/livequiz/internal/errors"
	"github.com/victornm/livequiz/internal/feed"
	"github.com/victornm/livequiz/internal/game"
	"github.com/victornm/livequiz/internal/leaderboard"
	"github.com/victornm/livequiz/internal/participant"
	"github.com/victornm/livequiz/internal/quiz"
)

type Config struct {
	// GRPC is optional, the API is registered on it when set.
	GRPC        *grpc.Server
	Quiz        *quiz.Service
	Game        *game.Service
	Participant *participant.Service
	Answer      *answer.Service
	Leaderboard *leaderboard.Service
	Feed        *feed.Feed
	// Done ends every open watch when closed.
	Done <-chan struct{}
}

type API struct {
	qs *quiz.Service
	gs *game.Service
	ps *participant.Service
	as *answer.Service
	ls *leaderboard.Service
	fd *feed.Feed

	done <-chan struct{}
}

var _ QuizServer = (*API)(nil)

func New(c Config) *API {
	a := &API{
		qs: c.Quiz,
		gs: c.Game,
		ps: c.Participant,
		as: c.Answer,
		ls: c.Leaderboard,
		fd: c.Feed,

		done: c.Done,
	}

	if c.GRPC != nil {
		c.GRPC.RegisterService(&ServiceDesc, a)
	}

	return a
}

func (a *API) CreateQuizSet(ctx context.Context, req *CreateQuizSetRequest) (*CreateQuizSetResponse, error) {
	qs, err := a.qs.CreateQuizSet(ctx, *req)
	if err != nil {
		return nil, err
	}

	return &CreateQuizSetResponse{QuizSet: *qs}, nil
}

func (a *API) ListQuizSets(ctx context.Context, _ *ListQuizSetsRequest) (*ListQuizSetsResponse, error) {
	qss, err := a.qs.ListQuizSets(ctx)
	if err != nil {
		return nil, err
	}

	return &ListQuizSetsResponse{QuizSets: qss}, nil
}

func (a *API) CreateGame(ctx context.Context, req *CreateGameRequest) (*CreateGameResponse, error) {
	resp, err := a.gs.CreateGame(ctx, game.CreateGameRequest{QuizSetID: req.QuizSetID})
	if err != nil {
		return nil, err
	}

	return &CreateGameResponse{
		Game:      resp.Game,
		HostToken: resp.HostToken,
		JoinURL:   resp.JoinURL,
	}, nil
}

func (a *API) StartGame(ctx context.Context, req *HostRequest) (*GameResponse, error) {
	g, err := a.gs.StartGame(ctx, game.StartGameRequest{GameID: req.GameID, HostToken: req.HostToken})
	if err != nil {
		return nil, err
	}

	return &GameResponse{Game: *g}, nil
}

func (a *API) RevealAnswer(ctx context.Context, req *HostRequest) (*GameResponse, error) {
	g, err := a.gs.RevealAnswer(ctx, game.RevealAnswerRequest{GameID: req.GameID, HostToken: req.HostToken})
	if err != nil {
		return nil, err
	}

	return &GameResponse{Game: *g}, nil
}

func (a *API) NextQuestion(ctx context.Context, req *HostRequest) (*GameResponse, error) {
	g, err := a.gs.NextQuestion(ctx, game.NextQuestionRequest{GameID: req.GameID, HostToken: req.HostToken})
	if err != nil {
		return nil, err
	}

	return &GameResponse{Game: *g}, nil
}

func (a *API) GetGame(ctx context.Context, req *GetGameRequest) (*GameResponse, error) {
	g, err := a.gs.GetGame(ctx, game.GetGameRequest{GameID: req.GameID})
	if err != nil {
		return nil, err
	}

	return &GameResponse{Game: *g}, nil
}

func (a *API) GetQuestions(ctx context.Context, req *GetQuestionsRequest) (*GetQuestionsResponse, error) {
	qs, err := a.gs.GetQuestions(ctx, game.GetQuestionsRequest{GameID: req.GameID, Token: req.Token})
	if err != nil {
		return nil, err
	}

	return &GetQuestionsResponse{Questions: qs}, nil
}

func (a *API) Join(ctx context.Context, req *JoinRequest) (*JoinResponse, error) {
	resp, err := a.ps.Join(ctx, participant.JoinRequest{GameID: req.GameID, Nickname: req.Nickname})
	if err != nil {
		return nil, err
	}

	return &JoinResponse{Participant: resp.Participant, Token: resp.Token}, nil
}

func (a *API) Recover(ctx context.Context, req *RecoverRequest) (*RecoverResponse, error) {
	p, err := a.ps.Recover(ctx, participant.RecoverRequest{Token: req.Token})
	if err != nil {
		return nil, err
	}

	return &RecoverResponse{Participant: *p}, nil
}

func (a *API) ListParticipants(ctx context.Context, req *ListParticipantsRequest) (*ListParticipantsResponse, error) {
	ps, err := a.ps.ListParticipants(ctx, participant.ListParticipantsRequest{GameID: req.GameID})
	if err != nil {
		return nil, err
	}

	return &ListParticipantsResponse{Participants: ps}, nil
}

func (a *API) SubmitAnswer(ctx context.Context, req *SubmitAnswerRequest) (*SubmitAnswerResponse, error) {
	resp, err := a.as.SubmitAnswer(ctx, answer.SubmitAnswerRequest{
		Token:      req.Token,
		QuestionID: req.QuestionID,
		ChoiceID:   req.ChoiceID,
	})
	if err != nil {
		return nil, err
	}

	return &SubmitAnswerResponse{Answer: resp.Answer, Correct: resp.Correct}, nil
}

func (a *API) GetQuestionStats(ctx context.Context, req *GetQuestionStatsRequest) (*GetQuestionStatsResponse, error) {
	stats, err := a.as.GetQuestionStats(ctx, answer.GetQuestionStatsRequest{
		GameID:     req.GameID,
		QuestionID: req.QuestionID,
		HostToken:  req.HostToken,
	})
	if err != nil {
		return nil, err
	}

	return &GetQuestionStatsResponse{Stats: *stats}, nil
}

func (a *API) GetLeaderboard(ctx context.Context, req *GetLeaderboardRequest) (*GetLeaderboardResponse, error) {
	if req.Limit < 0 {
		return nil, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("limit must not be negative"))
	}

	l, err := a.ls.GetLeaderboard(ctx, leaderboard.GetLeaderboardRequest{GameID: req.GameID, Limit: req.Limit})
	if err != nil {
		return nil, err
	}

	return &GetLeaderboardResponse{Leaderboard: *l}, nil
}

func (a *API) GetPodium(ctx context.Context, req *GetPodiumRequest) (*GetPodiumResponse, error) {
	p, err := a.ls.GetPodium(ctx, leaderboard.GetPodiumRequest{GameID: req.GameID})
	if err != nil {
		return nil, err
	}

	return &GetPodiumResponse{Top: p.Top, Rest: p.Rest}, nil
}

func (a *API) Watch(req *WatchRequest, stream WatchServer) error {
	ctx := stream.Context()

	sub, err := a.subscribe(ctx, req)
	if err != nil {
		return err
	}
	defer sub.Close()

	return forward(ctx, a.done, req.GameID, sub, stream.Send)
}

// subscribe opens the change-feed of an existing game.
func (a *API) subscribe(ctx context.Context, req *WatchRequest) (*feed.Subscription, error) {
	if _, err := a.gs.GetGame(ctx, game.GetGameRequest{GameID: req.GameID}); err != nil {
		return nil, err
	}

	sub, err := a.fd.Subscribe(ctx, req.GameID, req.Filters...)
	if err != nil {
		return nil, err
	}

	slog.DebugContext(ctx, "api: watching game", "game", req.GameID, "filters", len(req.Filters))
	return sub, nil
}

// forward sends the changes of sub until ctx is done or done is closed.
func forward(ctx context.Context, done <-chan struct{}, gameID string, sub *feed.Subscription, send func(*feed.Change) error) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-done:
			return nil
		case c, ok := <-sub.C():
			if !ok {
				return errors.New(errors.CodeInternal, errors.WithMessagef("change feed of game %s closed", gameID))
			}

			if err := send(&c); err != nil {
				return err
			}
		}
	}
}
