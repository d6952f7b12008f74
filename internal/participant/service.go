package participant

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/errors"
	"github.com/victornm/livequiz/internal/event"
	"github.com/victornm/livequiz/internal/store"
	"github.com/victornm/livequiz/internal/token"
)

const MaxNicknameLength = 32

type Store interface {
	store.Games
	store.Participants
}

type Config struct {
	EventBus *event.Bus
	Store    Store
	Tokens   *token.Issuer
	Now      func() time.Time
}

type Service struct {
	eb     *event.Bus
	store  Store
	tokens *token.Issuer
	now    func() time.Time
}

func NewService(c Config) *Service {
	now := c.Now
	if now == nil {
		now = time.Now
	}

	return &Service{
		eb:     c.EventBus,
		store:  c.Store,
		tokens: c.Tokens,
		now:    now,
	}
}

type JoinRequest struct {
	GameID   string
	Nickname string
}

type JoinResponse struct {
	Participant domain.Participant
	// Token identifies the participant in later calls and lets it recover its identity.
	Token string
}

// Join registers a participant into a game under a nickname unique within the game.
func (s *Service) Join(ctx context.Context, req JoinRequest) (*JoinResponse, error) {
	nickname, err := NormalizeNickname(req.Nickname)
	if err != nil {
		return nil, err
	}

	g, err := s.store.GetGame(ctx, req.GameID)
	if err != nil {
		return nil, err
	}

	if g.Phase == domain.PhaseResult {
		return nil, errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("game %s is over", g.GameID))
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate participant ID: %w", err)
	}

	p := domain.Participant{
		ParticipantID: id.String(),
		GameID:        g.GameID,
		Nickname:      nickname,
		CreateTime:    s.now(),
	}

	if err := s.store.InsertParticipant(ctx, &p); err != nil {
		if errors.Is(err, errors.CodeAlreadyExists) {
			return nil, errors.New(errors.CodeAlreadyExists,
				errors.WithMessagef("duplicate_nickname: %q is already taken", nickname),
				errors.WithCause(err),
			)
		}

		return nil, fmt.Errorf("insert participant: %w", err)
	}

	tok, err := s.tokens.IssuePlayer(p)
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "participant: joined", "game", p.GameID, "participant", p.ParticipantID, "nickname", p.Nickname)

	s.eb.Publish(ctx, domain.EventParticipantJoined{
		Participant: p,
	})

	return &JoinResponse{
		Participant: p,
		Token:       tok,
	}, nil
}

// NormalizeNickname trims the nickname and checks its length.
func NormalizeNickname(nickname string) (string, error) {
	nickname = strings.TrimSpace(nickname)

	if nickname == "" {
		return "", errors.New(errors.CodeInvalidArgument, errors.WithMessagef("nickname is required"))
	}

	if utf8.RuneCountInString(nickname) > MaxNicknameLength {
		return "", errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("nickname is longer than %d characters", MaxNicknameLength))
	}

	return nickname, nil
}

type RecoverRequest struct {
	Token string
}

// Recover returns the participant a saved token was issued to. A participant that no
// longer exists is reported as not found, the caller is expected to join again.
func (s *Service) Recover(ctx context.Context, req RecoverRequest) (*domain.Participant, error) {
	claims, err := s.tokens.AuthorizePlayer(req.Token)
	if err != nil {
		return nil, err
	}

	p, err := s.store.GetParticipant(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}

	if p.GameID != claims.GameID || p.Nickname != claims.Nickname {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("participant not found: %s", claims.Subject))
	}

	return p, nil
}

type ListParticipantsRequest struct {
	GameID string
}

// ListParticipants returns the participants of the game by join order.
func (s *Service) ListParticipants(ctx context.Context, req ListParticipantsRequest) ([]domain.Participant, error) {
	if _, err := s.store.GetGame(ctx, req.GameID); err != nil {
		return nil, err
	}

	return s.store.ListParticipants(ctx, req.GameID)
}
