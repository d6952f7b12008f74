package client

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/victornm/livequiz/internal/api"
	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/feed"
)

const DefaultResyncInterval = 5 * time.Second

// View is the local state of a game as seen by a watcher.
type View struct {
	Game         domain.Game
	Participants []domain.Participant
	// Answered counts the answers received per question ID.
	Answered    map[string]int
	Leaderboard *domain.Leaderboard
}

func (v View) clone() View {
	c := View{
		Game:         v.Game,
		Participants: slices.Clone(v.Participants),
		Answered:     make(map[string]int, len(v.Answered)),
	}

	for k, n := range v.Answered {
		c.Answered[k] = n
	}

	if v.Leaderboard != nil {
		l := *v.Leaderboard
		l.Rows = slices.Clone(l.Rows)
		c.Leaderboard = &l
	}

	return c
}

type WatcherConfig struct {
	Client *Client
	GameID string

	// ResyncInterval between two authoritative reloads, DefaultResyncInterval when zero.
	ResyncInterval time.Duration

	// OnChange is called with a copy of the view after every update. Optional.
	OnChange func(View)
}

// Watcher keeps a View of a game up to date. Changes of the feed are applied as they
// come, and the view is reloaded from the API periodically and on Resync. A reload
// overwrites whatever the feed delivered.
type Watcher struct {
	c        *Client
	gameID   string
	interval time.Duration
	onChange func(View)

	resync chan struct{}

	mu      sync.RWMutex
	view    View
	answers map[string]struct{}
}

func NewWatcher(c WatcherConfig) *Watcher {
	interval := c.ResyncInterval
	if interval <= 0 {
		interval = DefaultResyncInterval
	}

	return &Watcher{
		c:        c.Client,
		gameID:   c.GameID,
		interval: interval,
		onChange: c.OnChange,
		resync:   make(chan struct{}, 1),
		view:     View{Answered: make(map[string]int)},
		answers:  make(map[string]struct{}),
	}
}

// View returns a copy of the current view.
func (w *Watcher) View() View {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return w.view.clone()
}

// Resync asks the running watcher to reload the view, e.g. after a reconnect.
func (w *Watcher) Resync() {
	select {
	case w.resync <- struct{}{}:
	default:
	}
}

// Run watches the game until ctx is done. A failed stream is reopened on the next resync.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	var (
		changes   = make(chan *feed.Change)
		streamErr = make(chan error, 1)
		streaming bool
	)

	trigger := func() {
		w.sync(ctx)

		if !streaming {
			streaming = true
			go func() { streamErr <- w.stream(ctx, changes) }()
		}
	}

	trigger()

	for {
		select {
		case <-ctx.Done():
			return nil
		case c := <-changes:
			w.apply(ctx, c)
		case err := <-streamErr:
			streaming = false
			if err != nil {
				slog.WarnContext(ctx, "client: watch stream failed", "game", w.gameID, "error", err)
			}
		case <-ticker.C:
			trigger()
		case <-w.resync:
			trigger()
		}
	}
}

func (w *Watcher) stream(ctx context.Context, changes chan<- *feed.Change) error {
	s, err := w.c.Watch(ctx, api.WatchRequest{GameID: w.gameID})
	if err != nil {
		return err
	}

	for {
		c, err := s.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		select {
		case changes <- c:
		case <-ctx.Done():
			return nil
		}
	}
}

// sync reloads the view from the API. Failures are logged and retried on the next trigger.
func (w *Watcher) sync(ctx context.Context) {
	g, err := w.c.GetGame(ctx, api.GetGameRequest{GameID: w.gameID})
	if err != nil {
		slog.WarnContext(ctx, "client: resync game failed", "game", w.gameID, "error", err)
		return
	}

	ps, err := w.c.ListParticipants(ctx, api.ListParticipantsRequest{GameID: w.gameID})
	if err != nil {
		slog.WarnContext(ctx, "client: resync participants failed", "game", w.gameID, "error", err)
		return
	}

	var lb *domain.Leaderboard
	if g.Game.IsAnswerRevealed || g.Game.Phase == domain.PhaseResult {
		resp, err := w.c.GetLeaderboard(ctx, api.GetLeaderboardRequest{GameID: w.gameID})
		if err != nil {
			slog.WarnContext(ctx, "client: resync leaderboard failed", "game", w.gameID, "error", err)
			return
		}

		resp.Leaderboard.Final = g.Game.Phase == domain.PhaseResult
		lb = &resp.Leaderboard
	}

	w.update(func(v *View) {
		v.Game = g.Game
		v.Participants = ps.Participants
		if lb != nil {
			v.Leaderboard = lb
		}
	})
}

func (w *Watcher) apply(ctx context.Context, c *feed.Change) {
	var err error

	switch c.Table {
	case feed.TableGames:
		var g domain.Game
		if err = c.Decode(&g); err == nil {
			w.update(func(v *View) {
				if v.Game.GameID == "" || v.Game.Before(g) {
					v.Game = g
				}
			})
		}

	case feed.TableParticipants:
		var p domain.Participant
		if err = c.Decode(&p); err == nil {
			w.update(func(v *View) {
				if !slices.ContainsFunc(v.Participants, func(x domain.Participant) bool {
					return x.ParticipantID == p.ParticipantID
				}) {
					v.Participants = append(v.Participants, p)
				}
			})
		}

	case feed.TableAnswers:
		var a domain.Answer
		if err = c.Decode(&a); err == nil {
			w.update(func(v *View) {
				if _, ok := w.answers[a.AnswerID]; !ok {
					w.answers[a.AnswerID] = struct{}{}
					v.Answered[a.QuestionID]++
				}
			})
		}

	case feed.TableLeaderboard:
		var l domain.Leaderboard
		if err = c.Decode(&l); err == nil {
			w.update(func(v *View) { v.Leaderboard = &l })
		}
	}

	if err != nil {
		slog.WarnContext(ctx, "client: decode change failed", "game", w.gameID, "table", c.Table, "error", err)
	}
}

func (w *Watcher) update(fn func(v *View)) {
	w.mu.Lock()
	fn(&w.view)
	v := w.view.clone()
	w.mu.Unlock()

	if w.onChange != nil {
		w.onChange(v)
	}
}
