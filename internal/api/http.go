package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/victornm/livequiz/internal/errors"
)

// RegisterHTTP mounts the REST mirror of the API under /api/v1 and the change-feed
// websocket under /ws. Tokens are passed as Bearer authorization.
func (a *API) RegisterHTTP(r gin.IRouter) {
	v1 := r.Group("/api/v1")

	v1.POST("/quiz-sets", serve(a.CreateQuizSet, bindJSON[CreateQuizSetRequest]))
	v1.GET("/quiz-sets", serve(a.ListQuizSets, nil))

	v1.POST("/games", serve(a.CreateGame, bindJSON[CreateGameRequest]))
	v1.GET("/games/:id", serve(a.GetGame, func(c *gin.Context, req *GetGameRequest) error {
		req.GameID = c.Param("id")
		return nil
	}))
	v1.POST("/games/:id/start", serve(a.StartGame, bindHost))
	v1.POST("/games/:id/reveal", serve(a.RevealAnswer, bindHost))
	v1.POST("/games/:id/next", serve(a.NextQuestion, bindHost))
	v1.GET("/games/:id/questions", serve(a.GetQuestions, func(c *gin.Context, req *GetQuestionsRequest) error {
		req.GameID, req.Token = c.Param("id"), bearer(c)
		return nil
	}))
	v1.GET("/games/:id/questions/:question/stats", serve(a.GetQuestionStats, func(c *gin.Context, req *GetQuestionStatsRequest) error {
		req.GameID, req.QuestionID, req.HostToken = c.Param("id"), c.Param("question"), bearer(c)
		return nil
	}))

	v1.POST("/games/:id/participants", serve(a.Join, func(c *gin.Context, req *JoinRequest) error {
		if err := bindJSON(c, req); err != nil {
			return err
		}
		req.GameID = c.Param("id")
		return nil
	}))
	v1.GET("/games/:id/participants", serve(a.ListParticipants, func(c *gin.Context, req *ListParticipantsRequest) error {
		req.GameID = c.Param("id")
		return nil
	}))
	v1.POST("/participants/recover", serve(a.Recover, func(c *gin.Context, req *RecoverRequest) error {
		req.Token = bearer(c)
		return nil
	}))

	v1.POST("/answers", serve(a.SubmitAnswer, func(c *gin.Context, req *SubmitAnswerRequest) error {
		if err := bindJSON(c, req); err != nil {
			return err
		}
		req.Token = bearer(c)
		return nil
	}))

	v1.GET("/games/:id/leaderboard", serve(a.GetLeaderboard, func(c *gin.Context, req *GetLeaderboardRequest) error {
		req.GameID = c.Param("id")
		if s := c.Query("limit"); s != "" {
			limit, err := strconv.Atoi(s)
			if err != nil {
				return errors.New(errors.CodeInvalidArgument, errors.WithMessagef("invalid limit %q", s))
			}
			req.Limit = limit
		}
		return nil
	}))
	v1.GET("/games/:id/podium", serve(a.GetPodium, func(c *gin.Context, req *GetPodiumRequest) error {
		req.GameID = c.Param("id")
		return nil
	}))

	r.GET("/ws/games/:id", a.serveWS)
}

// serve adapts an API method to gin: bind fills the request from the HTTP request.
func serve[Req, Resp any](call func(context.Context, *Req) (*Resp, error), bind func(*gin.Context, *Req) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		req := new(Req)
		if bind != nil {
			if err := bind(c, req); err != nil {
				abort(c, err)
				return
			}
		}

		resp, err := call(c.Request.Context(), req)
		if err != nil {
			abort(c, err)
			return
		}

		c.JSON(http.StatusOK, resp)
	}
}

func bindJSON[Req any](c *gin.Context, req *Req) error {
	if err := c.ShouldBindJSON(req); err != nil {
		return errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("invalid request body: %v", err),
			errors.WithCause(err),
		)
	}

	return nil
}

func bindHost(c *gin.Context, req *HostRequest) error {
	req.GameID, req.HostToken = c.Param("id"), bearer(c)
	return nil
}

func bearer(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if len(h) > len("Bearer ") && strings.EqualFold(h[:len("Bearer ")], "Bearer ") {
		return h[len("Bearer "):]
	}

	return ""
}

type errorResponse struct {
	Error *errors.Error `json:"error"`
}

func abort(c *gin.Context, err error) {
	e := errors.Convert(err)
	if e.Code == errors.CodeInternal {
		slog.ErrorContext(c.Request.Context(), "api: request failed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"error", err,
		)
	}

	c.AbortWithStatusJSON(e.HTTPStatusCode(), errorResponse{Error: e})
}
