package client

import (
	"context"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/victornm/livequiz/internal/api"
	"github.com/victornm/livequiz/internal/errors"
	"github.com/victornm/livequiz/internal/feed"
	"github.com/victornm/livequiz/internal/telemetry"
)

// Client calls the quiz service over gRPC. Errors returned by its methods are *errors.Error.
type Client struct {
	conn *grpc.ClientConn
}

// New connects to target, e.g. "localhost:9090". Options are applied after the defaults,
// which use an insecure transport.
func New(target string, opts ...grpc.DialOption) (*Client, error) {
	defaults := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(api.CodecName)),
	}
	defaults = append(defaults, telemetry.GRPCClientInterceptors()...)

	conn, err := grpc.NewClient(target, append(defaults, opts...)...)
	if err != nil {
		return nil, errors.Internal(err)
	}

	return &Client{conn: conn}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func invoke[Req, Resp any](ctx context.Context, c *Client, method string, req *Req) (*Resp, error) {
	resp := new(Resp)
	if err := c.conn.Invoke(ctx, api.FullMethod(method), req, resp); err != nil {
		return nil, errors.FromGRPC(err)
	}

	return resp, nil
}

func (c *Client) CreateQuizSet(ctx context.Context, req api.CreateQuizSetRequest) (*api.CreateQuizSetResponse, error) {
	return invoke[api.CreateQuizSetRequest, api.CreateQuizSetResponse](ctx, c, "CreateQuizSet", &req)
}

func (c *Client) ListQuizSets(ctx context.Context) (*api.ListQuizSetsResponse, error) {
	return invoke[api.ListQuizSetsRequest, api.ListQuizSetsResponse](ctx, c, "ListQuizSets", &api.ListQuizSetsRequest{})
}

func (c *Client) CreateGame(ctx context.Context, req api.CreateGameRequest) (*api.CreateGameResponse, error) {
	return invoke[api.CreateGameRequest, api.CreateGameResponse](ctx, c, "CreateGame", &req)
}

func (c *Client) StartGame(ctx context.Context, req api.HostRequest) (*api.GameResponse, error) {
	return invoke[api.HostRequest, api.GameResponse](ctx, c, "StartGame", &req)
}

func (c *Client) RevealAnswer(ctx context.Context, req api.HostRequest) (*api.GameResponse, error) {
	return invoke[api.HostRequest, api.GameResponse](ctx, c, "RevealAnswer", &req)
}

func (c *Client) NextQuestion(ctx context.Context, req api.HostRequest) (*api.GameResponse, error) {
	return invoke[api.HostRequest, api.GameResponse](ctx, c, "NextQuestion", &req)
}

func (c *Client) GetGame(ctx context.Context, req api.GetGameRequest) (*api.GameResponse, error) {
	return invoke[api.GetGameRequest, api.GameResponse](ctx, c, "GetGame", &req)
}

func (c *Client) GetQuestions(ctx context.Context, req api.GetQuestionsRequest) (*api.GetQuestionsResponse, error) {
	return invoke[api.GetQuestionsRequest, api.GetQuestionsResponse](ctx, c, "GetQuestions", &req)
}

func (c *Client) Join(ctx context.Context, req api.JoinRequest) (*api.JoinResponse, error) {
	return invoke[api.JoinRequest, api.JoinResponse](ctx, c, "Join", &req)
}

func (c *Client) Recover(ctx context.Context, req api.RecoverRequest) (*api.RecoverResponse, error) {
	return invoke[api.RecoverRequest, api.RecoverResponse](ctx, c, "Recover", &req)
}

func (c *Client) ListParticipants(ctx context.Context, req api.ListParticipantsRequest) (*api.ListParticipantsResponse, error) {
	return invoke[api.ListParticipantsRequest, api.ListParticipantsResponse](ctx, c, "ListParticipants", &req)
}

func (c *Client) SubmitAnswer(ctx context.Context, req api.SubmitAnswerRequest) (*api.SubmitAnswerResponse, error) {
	return invoke[api.SubmitAnswerRequest, api.SubmitAnswerResponse](ctx, c, "SubmitAnswer", &req)
}

func (c *Client) GetQuestionStats(ctx context.Context, req api.GetQuestionStatsRequest) (*api.GetQuestionStatsResponse, error) {
	return invoke[api.GetQuestionStatsRequest, api.GetQuestionStatsResponse](ctx, c, "GetQuestionStats", &req)
}

func (c *Client) GetLeaderboard(ctx context.Context, req api.GetLeaderboardRequest) (*api.GetLeaderboardResponse, error) {
	return invoke[api.GetLeaderboardRequest, api.GetLeaderboardResponse](ctx, c, "GetLeaderboard", &req)
}

func (c *Client) GetPodium(ctx context.Context, req api.GetPodiumRequest) (*api.GetPodiumResponse, error) {
	return invoke[api.GetPodiumRequest, api.GetPodiumResponse](ctx, c, "GetPodium", &req)
}

var watchDesc = grpc.StreamDesc{
	StreamName:    "Watch",
	ServerStreams: true,
}

// Watch opens the change-feed of a game. Errors of the call itself, like an unknown
// game, are returned by the first Recv.
func (c *Client) Watch(ctx context.Context, req api.WatchRequest) (*ChangeStream, error) {
	cs, err := c.conn.NewStream(ctx, &watchDesc, api.FullMethod("Watch"))
	if err != nil {
		return nil, errors.FromGRPC(err)
	}

	if err := cs.SendMsg(&req); err != nil {
		return nil, errors.FromGRPC(err)
	}

	if err := cs.CloseSend(); err != nil {
		return nil, errors.FromGRPC(err)
	}

	return &ChangeStream{cs: cs}, nil
}

type ChangeStream struct {
	cs grpc.ClientStream
}

// Recv blocks until the next change. It returns io.EOF when the server ends the stream.
func (s *ChangeStream) Recv() (*feed.Change, error) {
	c := new(feed.Change)
	if err := s.cs.RecvMsg(c); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}

		return nil, errors.FromGRPC(err)
	}

	return c, nil
}
