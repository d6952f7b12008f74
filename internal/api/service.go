package api

import (
	"context"

	"google.golang.org/grpc"

	"github.com/victornm/livequiz/internal/errors"
	"github.com/victornm/livequiz/internal/feed"
)

const ServiceName = "livequiz.v1.QuizService"

// QuizServer is the server API of the quiz service.
type QuizServer interface {
	CreateQuizSet(context.Context, *CreateQuizSetRequest) (*CreateQuizSetResponse, error)
	ListQuizSets(context.Context, *ListQuizSetsRequest) (*ListQuizSetsResponse, error)

	CreateGame(context.Context, *CreateGameRequest) (*CreateGameResponse, error)
	StartGame(context.Context, *HostRequest) (*GameResponse, error)
	RevealAnswer(context.Context, *HostRequest) (*GameResponse, error)
	NextQuestion(context.Context, *HostRequest) (*GameResponse, error)
	GetGame(context.Context, *GetGameRequest) (*GameResponse, error)
	GetQuestions(context.Context, *GetQuestionsRequest) (*GetQuestionsResponse, error)

	Join(context.Context, *JoinRequest) (*JoinResponse, error)
	Recover(context.Context, *RecoverRequest) (*RecoverResponse, error)
	ListParticipants(context.Context, *ListParticipantsRequest) (*ListParticipantsResponse, error)

	SubmitAnswer(context.Context, *SubmitAnswerRequest) (*SubmitAnswerResponse, error)
	GetQuestionStats(context.Context, *GetQuestionStatsRequest) (*GetQuestionStatsResponse, error)

	GetLeaderboard(context.Context, *GetLeaderboardRequest) (*GetLeaderboardResponse, error)
	GetPodium(context.Context, *GetPodiumRequest) (*GetPodiumResponse, error)

	// Watch streams the changes of a game until the client goes away.
	Watch(*WatchRequest, WatchServer) error
}

type WatchServer interface {
	Send(*feed.Change) error
	grpc.ServerStream
}

type watchServer struct {
	grpc.ServerStream
}

func (s *watchServer) Send(c *feed.Change) error {
	return s.ServerStream.SendMsg(c)
}

// FullMethod returns the gRPC method path of an API method, e.g. /livequiz.v1.QuizService/Join.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// ServiceDesc describes QuizServer for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*QuizServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("CreateQuizSet", QuizServer.CreateQuizSet),
		unary("ListQuizSets", QuizServer.ListQuizSets),
		unary("CreateGame", QuizServer.CreateGame),
		unary("StartGame", QuizServer.StartGame),
		unary("RevealAnswer", QuizServer.RevealAnswer),
		unary("NextQuestion", QuizServer.NextQuestion),
		unary("GetGame", QuizServer.GetGame),
		unary("GetQuestions", QuizServer.GetQuestions),
		unary("Join", QuizServer.Join),
		unary("Recover", QuizServer.Recover),
		unary("ListParticipants", QuizServer.ListParticipants),
		unary("SubmitAnswer", QuizServer.SubmitAnswer),
		unary("GetQuestionStats", QuizServer.GetQuestionStats),
		unary("GetLeaderboard", QuizServer.GetLeaderboard),
		unary("GetPodium", QuizServer.GetPodium),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Watch",
			ServerStreams: true,
			Handler: func(srv any, stream grpc.ServerStream) error {
				in := new(WatchRequest)
				if err := stream.RecvMsg(in); err != nil {
					return err
				}

				if err := srv.(QuizServer).Watch(in, &watchServer{stream}); err != nil {
					return errors.Convert(err)
				}

				return nil
			},
		},
	},
	Metadata: "livequiz/v1/quiz",
}

// unary describes a unary method. Errors are converted to *errors.Error so their codes
// reach the client, anything else is reported as internal.
func unary[Req, Resp any](name string, call func(QuizServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	handle := func(srv any, ctx context.Context, in *Req) (any, error) {
		resp, err := call(srv.(QuizServer), ctx, in)
		if err != nil {
			return nil, errors.Convert(err)
		}

		return resp, nil
	}

	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}

			if interceptor == nil {
				return handle(srv, ctx, in)
			}

			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: FullMethod(name),
			}

			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return handle(srv, ctx, req.(*Req))
			})
		},
	}
}
