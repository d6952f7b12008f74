package client

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"github.com/victornm/livequiz/internal/api"
	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/errors"
	"github.com/victornm/livequiz/internal/participant"
)

// JoinAttempts is the number of suffixed nicknames tried when the saved one is taken.
const JoinAttempts = 2

// Identity is what a player keeps between sessions to get back into a game.
type Identity struct {
	GameID   string `json:"game_id"`
	Nickname string `json:"nickname"`
	Token    string `json:"token,omitempty"`
}

// Player is a participant of a game, seen from the device it plays on.
type Player struct {
	c        *Client
	id       Identity
	p        domain.Participant
	suffixer func() string
}

func NewPlayer(c *Client, id Identity) *Player {
	return &Player{
		c:  c,
		id: id,
		suffixer: func() string {
			return fmt.Sprintf("%04d", rand.IntN(10000))
		},
	}
}

// Identity returns the identity to save, updated by Join and Restore.
func (p *Player) Identity() Identity {
	return p.id
}

func (p *Player) Participant() domain.Participant {
	return p.p
}

// Join registers the player with its nickname. A taken nickname is an AlreadyExists error.
func (p *Player) Join(ctx context.Context) error {
	resp, err := p.c.Join(ctx, api.JoinRequest{GameID: p.id.GameID, Nickname: p.id.Nickname})
	if err != nil {
		return err
	}

	p.p = resp.Participant
	p.id.Nickname = resp.Participant.Nickname
	p.id.Token = resp.Token
	return nil
}

// Restore gets the player back into its game: it recovers the saved participant, and when
// that one is gone joins again under the saved nickname. If the nickname was taken in the
// meantime, it retries with a random suffix before giving up.
func (p *Player) Restore(ctx context.Context) error {
	if p.id.Token != "" {
		resp, err := p.c.Recover(ctx, api.RecoverRequest{Token: p.id.Token})
		if err == nil && resp.Participant.GameID != p.id.GameID {
			err = errors.New(errors.CodeNotFound, errors.WithMessagef("saved participant belongs to game %s", resp.Participant.GameID))
		}

		if err == nil {
			p.p = resp.Participant
			return nil
		}

		if !errors.Is(err, errors.CodeNotFound) && !errors.Is(err, errors.CodeUnauthenticated) {
			return err
		}

		slog.InfoContext(ctx, "client: saved participant is gone, joining again", "game", p.id.GameID, "nickname", p.id.Nickname)
		p.id.Token = ""
	}

	base := p.id.Nickname
	err := p.Join(ctx)
	for i := 0; i < JoinAttempts && errors.Is(err, errors.CodeAlreadyExists); i++ {
		p.id.Nickname = suffixed(base, p.suffixer())
		err = p.Join(ctx)
	}

	if err != nil {
		p.id.Nickname = base
		return errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("cannot join game %s as %q", p.id.GameID, base),
			errors.WithCause(err),
		)
	}

	return nil
}

// suffixed appends s to nickname, cutting the nickname so the result stays within bounds.
func suffixed(nickname, s string) string {
	r := []rune(nickname)
	if n := participant.MaxNicknameLength - len([]rune(s)); len(r) > n {
		r = r[:n]
	}

	return string(r) + s
}

func (p *Player) Answer(ctx context.Context, questionID, choiceID string) (*api.SubmitAnswerResponse, error) {
	return p.c.SubmitAnswer(ctx, api.SubmitAnswerRequest{
		Token:      p.id.Token,
		QuestionID: questionID,
		ChoiceID:   choiceID,
	})
}
