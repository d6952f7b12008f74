package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/livequiz/internal/answer"
	"github.com/victornm/livequiz/internal/api"
	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/event"
	"github.com/victornm/livequiz/internal/feed"
	"github.com/victornm/livequiz/internal/game"
	"github.com/victornm/livequiz/internal/leaderboard"
	"github.com/victornm/livequiz/internal/participant"
	"github.com/victornm/livequiz/internal/quiz"
	"github.com/victornm/livequiz/internal/store/memory"
	"github.com/victornm/livequiz/internal/token"
)

func makeServer(t *testing.T, opts ...func(c *api.Config)) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	rs := miniredis.RunT(t)
	rc := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{rs.Addr()}})

	eb := event.NewBus()
	st := memory.New()
	tokens := token.NewIssuer(token.Config{Secret: "test"})

	c := api.Config{
		Quiz:        quiz.NewService(quiz.Config{Store: st}),
		Game:        game.NewService(game.Config{EventBus: eb, Store: st, Tokens: tokens, PublicURL: "http://quiz.test"}),
		Participant: participant.NewService(participant.Config{EventBus: eb, Store: st, Tokens: tokens}),
		Answer:      answer.NewService(answer.Config{EventBus: eb, Store: st, Tokens: tokens}),
		Leaderboard: leaderboard.NewService(leaderboard.Config{EventBus: eb, Store: st, Redis: rc, Prefix: "test"}),
		Feed:        feed.New(feed.Config{EventBus: eb, Redis: rc, Prefix: "test"}),
	}

	for _, opt := range opts {
		opt(&c)
	}

	a := api.New(c)

	e := gin.New()
	a.RegisterHTTP(e)

	srv := httptest.NewServer(e)
	t.Cleanup(func() {
		srv.Close()
		eb.Stop()
		_ = rc.Close()
	})

	return srv
}

type client struct {
	t   *testing.T
	url string
}

// do sends body as JSON and decodes the response into out, returning the status code.
func (c client) do(method, path, tok string, body, out any) int {
	c.t.Helper()

	var r *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(c.t, err)
		r = bytes.NewReader(b)
	} else {
		r = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, c.url+path, r)
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(c.t, json.NewDecoder(resp.Body).Decode(out))
	}

	return resp.StatusCode
}

func createGame(t *testing.T, c client) api.CreateGameResponse {
	t.Helper()

	var qs api.CreateQuizSetResponse
	require.Equal(t, http.StatusOK, c.do(http.MethodPost, "/api/v1/quiz-sets", "", quiz.CreateQuizSetRequest{
		Name: "capitals",
		Questions: []quiz.QuestionInput{
			{Body: "France?", Choices: []quiz.ChoiceInput{{Body: "Paris", IsCorrect: true}, {Body: "Lyon"}}},
			{Body: "Japan?", Choices: []quiz.ChoiceInput{{Body: "Osaka"}, {Body: "Tokyo", IsCorrect: true}}},
		},
	}, &qs))

	var g api.CreateGameResponse
	require.Equal(t, http.StatusOK, c.do(http.MethodPost, "/api/v1/games", "", api.CreateGameRequest{QuizSetID: qs.QuizSet.QuizSetID}, &g))
	return g
}

func TestHTTP_Game(t *testing.T) {
	srv := makeServer(t)
	c := client{t: t, url: srv.URL}

	g := createGame(t, c)
	assert.Equal(t, "http://quiz.test/play/"+g.Game.GameID, g.JoinURL)
	base := "/api/v1/games/" + g.Game.GameID

	var joined api.JoinResponse
	require.Equal(t, http.StatusOK, c.do(http.MethodPost, base+"/participants", "", api.JoinRequest{Nickname: "alice"}, &joined))
	assert.Equal(t, "alice", joined.Participant.Nickname)

	var recovered api.RecoverResponse
	require.Equal(t, http.StatusOK, c.do(http.MethodPost, "/api/v1/participants/recover", joined.Token, nil, &recovered))
	assert.Equal(t, joined.Participant.ParticipantID, recovered.Participant.ParticipantID)

	require.Equal(t, http.StatusForbidden, c.do(http.MethodPost, base+"/start", joined.Token, nil, nil), "players cannot start the game")
	require.Equal(t, http.StatusUnauthorized, c.do(http.MethodPost, base+"/start", "", nil, nil))

	var started api.GameResponse
	require.Equal(t, http.StatusOK, c.do(http.MethodPost, base+"/start", g.HostToken, nil, &started))
	assert.Equal(t, domain.PhaseQuiz, started.Game.Phase)

	require.Equal(t, http.StatusConflict, c.do(http.MethodPost, base+"/next", g.HostToken, nil, nil), "next before reveal")

	var questions api.GetQuestionsResponse
	require.Equal(t, http.StatusOK, c.do(http.MethodGet, base+"/questions", "", nil, &questions))
	require.Len(t, questions.Questions, 2)
	q := questions.Questions[0]
	for _, ch := range q.Choices {
		assert.False(t, ch.IsCorrect, "answers are hidden from players")
	}

	var answered api.SubmitAnswerResponse
	require.Equal(t, http.StatusOK, c.do(http.MethodPost, "/api/v1/answers", joined.Token,
		api.SubmitAnswerRequest{QuestionID: q.QuestionID, ChoiceID: q.Choices[0].ChoiceID}, &answered))
	assert.True(t, answered.Correct)
	assert.Positive(t, answered.Answer.Score)

	var errResp struct {
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.Equal(t, http.StatusConflict, c.do(http.MethodPost, "/api/v1/answers", joined.Token,
		api.SubmitAnswerRequest{QuestionID: q.QuestionID, ChoiceID: q.Choices[1].ChoiceID}, &errResp))
	assert.Contains(t, errResp.Error.Message, "answer not recorded")

	require.Equal(t, http.StatusOK, c.do(http.MethodPost, base+"/reveal", g.HostToken, nil, nil))

	var stats api.GetQuestionStatsResponse
	require.Equal(t, http.StatusOK, c.do(http.MethodGet, base+"/questions/"+q.QuestionID+"/stats", g.HostToken, nil, &stats))
	assert.Equal(t, 1, stats.Stats.Total)

	var lb api.GetLeaderboardResponse
	require.Equal(t, http.StatusOK, c.do(http.MethodGet, base+"/leaderboard?limit=5", "", nil, &lb))
	require.Len(t, lb.Leaderboard.Rows, 1)
	assert.Equal(t, answered.Answer.Score, lb.Leaderboard.Rows[0].TotalScore)

	require.Equal(t, http.StatusBadRequest, c.do(http.MethodGet, base+"/leaderboard?limit=x", "", nil, nil))
	require.Equal(t, http.StatusNotFound, c.do(http.MethodGet, "/api/v1/games/nope", "", nil, nil))
}

func TestHTTP_InvalidBody(t *testing.T) {
	srv := makeServer(t)

	resp, err := http.Post(srv.URL+"/api/v1/games", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWebSocket_Feed(t *testing.T) {
	srv := makeServer(t)
	c := client{t: t, url: srv.URL}
	g := createGame(t, c)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/games/" + g.Game.GameID + "?table=participants"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Equal(t, http.StatusOK, c.do(http.MethodPost, "/api/v1/games/"+g.Game.GameID+"/participants", "", api.JoinRequest{Nickname: "bob"}, nil))

	// Changes of other tables are filtered out.
	require.Equal(t, http.StatusOK, c.do(http.MethodPost, "/api/v1/games/"+g.Game.GameID+"/start", g.HostToken, nil, nil))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ch feed.Change
	require.NoError(t, conn.ReadJSON(&ch))
	assert.Equal(t, feed.TableParticipants, ch.Table)
	assert.Equal(t, feed.TypeInsert, ch.Type)

	var p domain.Participant
	require.NoError(t, ch.Decode(&p))
	assert.Equal(t, "bob", p.Nickname)
}

func TestWebSocket_Done(t *testing.T) {
	done := make(chan struct{})
	srv := makeServer(t, func(c *api.Config) { c.Done = done })
	g := createGame(t, client{t: t, url: srv.URL})

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/games/"+g.Game.GameID, nil)
	require.NoError(t, err)
	defer conn.Close()

	close(done)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), err)
}

func TestWebSocket_UnknownGame(t *testing.T) {
	srv := makeServer(t)

	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/games/nope", nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
