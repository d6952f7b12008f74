package client

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/livequiz/internal/api"
	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/errors"
	"github.com/victornm/livequiz/internal/token"
)

func TestPlayer_Restore(t *testing.T) {
	ctx := context.Background()

	// Same secret as the server of makeClient.
	tokens := token.NewIssuer(token.Config{Secret: "test"})
	goneToken := func(t *testing.T, gameID string) string {
		t.Helper()
		tok, err := tokens.IssuePlayer(domain.Participant{ParticipantID: "gone", GameID: gameID, Nickname: "alice"})
		require.NoError(t, err)
		return tok
	}

	join := func(t *testing.T, c *Client, gameID, nickname string) *api.JoinResponse {
		t.Helper()
		resp, err := c.Join(ctx, api.JoinRequest{GameID: gameID, Nickname: nickname})
		require.NoError(t, err)
		return resp
	}

	tests := map[string]struct {
		arrange func(t *testing.T, c *Client, gameID string) *Player
		assert  func(t *testing.T, p *Player, err error)
	}{
		"recover saved participant": {
			arrange: func(t *testing.T, c *Client, gameID string) *Player {
				resp := join(t, c, gameID, "alice")
				return NewPlayer(c, Identity{GameID: gameID, Nickname: "alice", Token: resp.Token})
			},
			assert: func(t *testing.T, p *Player, err error) {
				require.NoError(t, err)
				assert.Equal(t, "alice", p.Participant().Nickname)
				assert.NotEmpty(t, p.Participant().ParticipantID)
			},
		},
		"join again when participant is gone": {
			arrange: func(t *testing.T, c *Client, gameID string) *Player {
				return NewPlayer(c, Identity{GameID: gameID, Nickname: "alice", Token: goneToken(t, gameID)})
			},
			assert: func(t *testing.T, p *Player, err error) {
				require.NoError(t, err)
				assert.Equal(t, "alice", p.Identity().Nickname)
				assert.NotEqual(t, "gone", p.Participant().ParticipantID)
			},
		},
		"join without saved token": {
			arrange: func(t *testing.T, c *Client, gameID string) *Player {
				return NewPlayer(c, Identity{GameID: gameID, Nickname: "alice"})
			},
			assert: func(t *testing.T, p *Player, err error) {
				require.NoError(t, err)
				assert.NotEmpty(t, p.Identity().Token)
			},
		},
		"join again when token belongs to another game": {
			arrange: func(t *testing.T, c *Client, gameID string) *Player {
				other := hostGame(t, c, 1)
				resp := join(t, c, other.Game.GameID, "alice")
				return NewPlayer(c, Identity{GameID: gameID, Nickname: "alice", Token: resp.Token})
			},
			assert: func(t *testing.T, p *Player, err error) {
				require.NoError(t, err)
				assert.Equal(t, "alice", p.Participant().Nickname)
			},
		},
		"suffix a taken nickname": {
			arrange: func(t *testing.T, c *Client, gameID string) *Player {
				join(t, c, gameID, "alice")
				p := NewPlayer(c, Identity{GameID: gameID, Nickname: "alice", Token: goneToken(t, gameID)})
				p.suffixer = func() string { return "0042" }
				return p
			},
			assert: func(t *testing.T, p *Player, err error) {
				require.NoError(t, err)
				assert.Equal(t, "alice0042", p.Participant().Nickname)
				assert.Equal(t, "alice0042", p.Identity().Nickname)
			},
		},
		"give up after the last attempt": {
			arrange: func(t *testing.T, c *Client, gameID string) *Player {
				join(t, c, gameID, "alice")
				join(t, c, gameID, "alice0042")
				p := NewPlayer(c, Identity{GameID: gameID, Nickname: "alice"})
				p.suffixer = func() string { return "0042" }
				return p
			},
			assert: func(t *testing.T, p *Player, err error) {
				require.Error(t, err)
				assert.True(t, errors.Is(err, errors.CodeFailedPrecondition), err)
				assert.Contains(t, errors.Convert(err).Message, "cannot join")
				assert.Equal(t, "alice", p.Identity().Nickname)
				assert.Empty(t, p.Identity().Token)
			},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			c := makeClient(t)
			g := hostGame(t, c, 1)

			p := tc.arrange(t, c, g.Game.GameID)
			err := p.Restore(ctx)
			tc.assert(t, p, err)
		})
	}
}

func TestSuffixed(t *testing.T) {
	tests := map[string]struct {
		nickname string
		want     string
	}{
		"short":   {nickname: "bob", want: "bob1234"},
		"at most": {nickname: "abcdefghijklmnopqrstuvwxyzabcdef", want: "abcdefghijklmnopqrstuvwxyzab1234"},
		"runes":   {nickname: "éééééééééééééééééééééééééééééééé", want: "éééééééééééééééééééééééééééé1234"},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, suffixed(tc.nickname, "1234"))
		})
	}
}
