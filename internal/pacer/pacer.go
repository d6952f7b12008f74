// Package pacer reveals the answer of a question on behalf of the host, as soon as every
// participant answered or when the answer window is over.
package pacer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/errors"
	"github.com/victornm/livequiz/internal/event"
	"github.com/victornm/livequiz/internal/store"
	"github.com/victornm/livequiz/internal/telemetry"
)

const revealTimeout = 10 * time.Second

type Store interface {
	store.QuizSets
	store.Games
	store.Participants
	store.Answers
}

// Revealer reveals the current question of a game. It must be idempotent.
type Revealer interface {
	TimeUp(ctx context.Context, gameID string, sequence int) (*domain.Game, error)
}

type Config struct {
	EventBus          *event.Bus
	Store             Store
	Games             Revealer
	AnswerWindow      time.Duration
	ChoiceRevealDelay time.Duration
	Now               func() time.Time
}

type Pacer struct {
	store  Store
	games  Revealer
	window time.Duration
	delay  time.Duration
	now    func() time.Time

	mu       sync.Mutex
	trackers map[string]*tracker // by game
}

// tracker watches the answers of one question of a game.
type tracker struct {
	game       domain.Game
	questionID string
	expected   int
	answered   map[string]struct{}
	timer      *time.Timer
	once       sync.Once
}

func New(c Config) *Pacer {
	p := &Pacer{
		store:    c.Store,
		games:    c.Games,
		window:   c.AnswerWindow,
		delay:    c.ChoiceRevealDelay,
		now:      c.Now,
		trackers: make(map[string]*tracker),
	}

	if p.now == nil {
		p.now = time.Now
	}

	c.EventBus.Subscribe(domain.EventNameGameUpdated, func(ctx context.Context, e event.Event) error {
		return p.OnGameUpdated(ctx, e.(domain.EventGameUpdated))
	})

	c.EventBus.Subscribe(domain.EventNameAnswerSubmitted, func(ctx context.Context, e event.Event) error {
		p.OnAnswerSubmitted(ctx, e.(domain.EventAnswerSubmitted))
		return nil
	})

	return p
}

// Resume tracks the questions left open by a previous run. Deadlines already past fire at once.
func (p *Pacer) Resume(ctx context.Context) error {
	games, err := p.store.ListOpenGames(ctx)
	if err != nil {
		return fmt.Errorf("pacer: list open games: %w", err)
	}

	for _, g := range games {
		if err := p.OnGameUpdated(ctx, domain.EventGameUpdated{Game: g}); err != nil {
			slog.ErrorContext(ctx, "pacer: resume failed", "game", g.GameID, "error", err)
		}
	}

	slog.InfoContext(ctx, "pacer: resumed", "games", len(games))
	return nil
}

// OnGameUpdated arms a tracker when a question starts and retires it otherwise.
// Snapshots older than the tracked question are ignored.
func (p *Pacer) OnGameUpdated(ctx context.Context, e domain.EventGameUpdated) error {
	g := e.Game

	p.mu.Lock()
	defer p.mu.Unlock()

	cur, ok := p.trackers[g.GameID]
	// Stale or duplicated snapshot.
	if ok && !cur.game.Before(g) {
		return nil
	}

	if ok {
		p.retire(cur)
	}

	if !g.AcceptsAnswers() {
		return nil
	}

	t, err := p.track(ctx, g)
	if err != nil {
		return fmt.Errorf("pacer: track game %s: %w", g.GameID, err)
	}

	p.trackers[g.GameID] = t

	slog.DebugContext(ctx, "pacer: tracking question",
		"game", g.GameID,
		"question", t.questionID,
		"expected", t.expected,
		"answered", len(t.answered),
	)

	if t.complete() {
		go p.fire(t, "all_answered")
	}

	return nil
}

// track must be called with p.mu held.
func (p *Pacer) track(ctx context.Context, g domain.Game) (*tracker, error) {
	questions, err := p.store.ListQuestions(ctx, g.QuizSetID)
	if err != nil {
		return nil, err
	}

	if g.CurrentQuestionSequence >= len(questions) {
		return nil, fmt.Errorf("question %d out of range", g.CurrentQuestionSequence)
	}

	q := questions[g.CurrentQuestionSequence]

	expected, err := p.store.CountParticipants(ctx, g.GameID)
	if err != nil {
		return nil, err
	}

	answers, err := p.store.ListAnswers(ctx, g.GameID, q.QuestionID)
	if err != nil {
		return nil, err
	}

	t := &tracker{
		game:       g,
		questionID: q.QuestionID,
		expected:   expected,
		answered:   make(map[string]struct{}, expected),
	}

	for _, a := range answers {
		t.answered[a.ParticipantID] = struct{}{}
	}

	deadline := g.QuestionStartTime.Add(p.delay + p.window)
	t.timer = time.AfterFunc(max(0, deadline.Sub(p.now())), func() {
		p.fire(t, "timer")
	})

	return t, nil
}

func (p *Pacer) OnAnswerSubmitted(_ context.Context, e domain.EventAnswerSubmitted) {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, ok := p.trackers[e.GameID]
	if !ok || t.questionID != e.Answer.QuestionID {
		return
	}

	t.answered[e.Answer.ParticipantID] = struct{}{}
	if t.complete() {
		go p.fire(t, "all_answered")
	}
}

func (t *tracker) complete() bool {
	return t.expected > 0 && len(t.answered) >= t.expected
}

// retire must be called with p.mu held.
func (p *Pacer) retire(t *tracker) {
	t.timer.Stop()
	if p.trackers[t.game.GameID] == t {
		delete(p.trackers, t.game.GameID)
	}
}

// fire reveals the question of t once, whichever of the timer and the last answer comes first.
func (p *Pacer) fire(t *tracker, trigger string) {
	t.once.Do(func() {
		p.mu.Lock()
		p.retire(t)
		p.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), revealTimeout)
		defer cancel()

		g, err := p.games.TimeUp(ctx, t.game.GameID, t.game.CurrentQuestionSequence)
		if errors.Is(err, errors.CodeFailedPrecondition) || errors.Is(err, errors.CodeNotFound) {
			slog.DebugContext(ctx, "pacer: question already over", "game", t.game.GameID, "error", err)
			return
		}
		if err != nil {
			slog.ErrorContext(ctx, "pacer: reveal failed", "game", t.game.GameID, "trigger", trigger, "error", err)
			return
		}

		if g.CurrentQuestionSequence != t.game.CurrentQuestionSequence {
			return
		}

		telemetry.AutoReveals.WithLabelValues(trigger).Inc()
		slog.InfoContext(ctx, "pacer: answer revealed", "game", t.game.GameID, "question", t.questionID, "trigger", trigger)
	})
}

// Tracking reports the question the pacer waits answers for.
func (p *Pacer) Tracking(gameID string) (questionID string, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, ok := p.trackers[gameID]
	if !ok {
		return "", false
	}

	return t.questionID, true
}

// Stop disarms every tracker.
func (p *Pacer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, t := range p.trackers {
		p.retire(t)
	}
}
