package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/victornm/livequiz/internal/errors"
	"github.com/victornm/livequiz/internal/feed"
)

const writeTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// serveWS streams the changes of a game as JSON text frames. An optional filter is read
// from the query: ?table=answers&type=INSERT&field=question_id&value=<id>.
func (a *API) serveWS(c *gin.Context) {
	req := &WatchRequest{GameID: c.Param("id")}

	f := feed.Filter{
		Table: feed.Table(c.Query("table")),
		Type:  feed.Type(c.Query("type")),
		Field: c.Query("field"),
		Value: c.Query("value"),
	}
	if f != (feed.Filter{}) {
		req.Filters = append(req.Filters, f)
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// Subscribed before the handshake completes, so the client gets every change that
	// follows a successful dial.
	sub, err := a.subscribe(ctx, req)
	if err != nil {
		abort(c, err)
		return
	}
	defer sub.Close()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.WarnContext(ctx, "api: websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	var eg errgroup.Group

	// The feed is one-way, reading only detects the client going away.
	eg.Go(func() error {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return nil
			}
		}
	})

	eg.Go(func() error {
		defer conn.Close()

		err := forward(ctx, a.done, req.GameID, sub, func(ch *feed.Change) error {
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			return conn.WriteJSON(ch)
		})
		if err != nil {
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			_ = conn.WriteJSON(errorResponse{Error: errors.Convert(err)})
			return err
		}

		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeTimeout))
		return nil
	})

	if err := eg.Wait(); err != nil {
		slog.WarnContext(ctx, "api: websocket feed stopped", "game", req.GameID, "error", err)
	}
}
