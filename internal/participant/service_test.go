package participant_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/errors"
	"github.com/victornm/livequiz/internal/event"
	"github.com/victornm/livequiz/internal/participant"
	"github.com/victornm/livequiz/internal/store/memory"
	"github.com/victornm/livequiz/internal/store/storetest"
	"github.com/victornm/livequiz/internal/token"
)

var now = time.Date(2024, 11, 22, 10, 0, 0, 0, time.UTC)

func makeService(t *testing.T, phase domain.Phase) (*participant.Service, *memory.Store, *event.Bus) {
	t.Helper()

	st := memory.New()
	storetest.Seed(t, st, "qs1", 1)
	require.NoError(t, st.InsertGame(context.Background(), &domain.Game{
		GameID:    "g1",
		QuizSetID: "qs1",
		Phase:     phase,
	}))

	tick := now
	eb := event.NewBus()
	s := participant.NewService(participant.Config{
		EventBus: eb,
		Store:    st,
		Tokens:   token.NewIssuer(token.Config{Secret: "test"}),
		Now: func() time.Time {
			tick = tick.Add(time.Second)
			return tick
		},
	})

	return s, st, eb
}

func TestService_Join(t *testing.T) {
	type outputs struct {
		resp   *participant.JoinResponse
		err    error
		joined []domain.Participant
	}

	tests := map[string]struct {
		phase   domain.Phase
		arrange func(t *testing.T, s *participant.Service)
		req     participant.JoinRequest
		assert  func(t *testing.T, out outputs)
	}{
		"joins and trims the nickname": {
			phase: domain.PhaseLobby,
			req:   participant.JoinRequest{GameID: "g1", Nickname: "  alice "},
			assert: func(t *testing.T, out outputs) {
				require.NoError(t, out.err)
				assert.Equal(t, "alice", out.resp.Participant.Nickname)
				assert.Equal(t, "g1", out.resp.Participant.GameID)
				assert.NotEmpty(t, out.resp.Token)
				require.Len(t, out.joined, 1)
				assert.Equal(t, out.resp.Participant, out.joined[0])
			},
		},

		"late join while the quiz runs": {
			phase: domain.PhaseQuiz,
			req:   participant.JoinRequest{GameID: "g1", Nickname: "bob"},
			assert: func(t *testing.T, out outputs) {
				require.NoError(t, out.err)
			},
		},

		"duplicate nickname": {
			phase: domain.PhaseLobby,
			arrange: func(t *testing.T, s *participant.Service) {
				_, err := s.Join(context.Background(), participant.JoinRequest{GameID: "g1", Nickname: "alice"})
				require.NoError(t, err)
			},
			req: participant.JoinRequest{GameID: "g1", Nickname: "alice "},
			assert: func(t *testing.T, out outputs) {
				assert.True(t, errors.Is(out.err, errors.CodeAlreadyExists), "err: %v", out.err)
				assert.Contains(t, errors.Convert(out.err).Message, "duplicate_nickname")
				assert.Len(t, out.joined, 1, "only the first join is published")
			},
		},

		"blank nickname": {
			phase: domain.PhaseLobby,
			req:   participant.JoinRequest{GameID: "g1", Nickname: "   "},
			assert: func(t *testing.T, out outputs) {
				assert.True(t, errors.Is(out.err, errors.CodeInvalidArgument))
				assert.Empty(t, out.joined)
			},
		},

		"nickname too long": {
			phase: domain.PhaseLobby,
			req:   participant.JoinRequest{GameID: "g1", Nickname: strings.Repeat("é", participant.MaxNicknameLength+1)},
			assert: func(t *testing.T, out outputs) {
				assert.True(t, errors.Is(out.err, errors.CodeInvalidArgument))
			},
		},

		"unknown game": {
			phase: domain.PhaseLobby,
			req:   participant.JoinRequest{GameID: "nope", Nickname: "alice"},
			assert: func(t *testing.T, out outputs) {
				assert.True(t, errors.Is(out.err, errors.CodeNotFound))
			},
		},

		"game is over": {
			phase: domain.PhaseResult,
			req:   participant.JoinRequest{GameID: "g1", Nickname: "alice"},
			assert: func(t *testing.T, out outputs) {
				assert.True(t, errors.Is(out.err, errors.CodeFailedPrecondition))
			},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			s, _, eb := makeService(t, tt.phase)

			var out outputs
			joined := make(chan domain.Participant, 10)
			eb.Subscribe(domain.EventNameParticipantJoined, func(_ context.Context, e event.Event) error {
				joined <- e.(domain.EventParticipantJoined).Participant
				return nil
			})

			if tt.arrange != nil {
				tt.arrange(t, s)
			}

			out.resp, out.err = s.Join(context.Background(), tt.req)

			eb.Stop()
			close(joined)
			for p := range joined {
				out.joined = append(out.joined, p)
			}

			tt.assert(t, out)
		})
	}
}

func TestService_Recover(t *testing.T) {
	s, _, _ := makeService(t, domain.PhaseLobby)
	ctx := context.Background()

	joined, err := s.Join(ctx, participant.JoinRequest{GameID: "g1", Nickname: "alice"})
	require.NoError(t, err)

	p, err := s.Recover(ctx, participant.RecoverRequest{Token: joined.Token})
	require.NoError(t, err)
	assert.Equal(t, joined.Participant, *p)

	_, err = s.Recover(ctx, participant.RecoverRequest{Token: "garbage"})
	assert.True(t, errors.Is(err, errors.CodeUnauthenticated))

	// A token signed by the server for a participant that is gone.
	ghost, err := token.NewIssuer(token.Config{Secret: "test"}).IssuePlayer(domain.Participant{
		ParticipantID: "gone", GameID: "g1", Nickname: "ghost",
	})
	require.NoError(t, err)

	_, err = s.Recover(ctx, participant.RecoverRequest{Token: ghost})
	assert.True(t, errors.Is(err, errors.CodeNotFound))
}

func TestService_ListParticipants(t *testing.T) {
	s, _, _ := makeService(t, domain.PhaseLobby)
	ctx := context.Background()

	for _, n := range []string{"carol", "alice", "bob"} {
		_, err := s.Join(ctx, participant.JoinRequest{GameID: "g1", Nickname: n})
		require.NoError(t, err)
	}

	ps, err := s.ListParticipants(ctx, participant.ListParticipantsRequest{GameID: "g1"})
	require.NoError(t, err)

	var names []string
	for _, p := range ps {
		names = append(names, p.Nickname)
	}
	assert.Equal(t, []string{"carol", "alice", "bob"}, names, "join order")

	_, err = s.ListParticipants(ctx, participant.ListParticipantsRequest{GameID: "nope"})
	assert.True(t, errors.Is(err, errors.CodeNotFound))
}
